package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/agentmemory/memoryd/internal/models"
)

// CreateKnowledgeNote inserts a curated reference note, distinct from the
// raw event stream (spec §3 "knowledge_note").
func CreateKnowledgeNote(ctx context.Context, db *sql.DB, n models.KnowledgeNote) (models.KnowledgeNote, error) {
	if n.TenantID == "" {
		return models.KnowledgeNote{}, models.NewInvalidInput("tenant_id is required")
	}
	if n.Title == "" || n.Body == "" {
		return models.KnowledgeNote{}, models.NewInvalidInput("title and body are required")
	}

	tagsJSON, err := json.Marshal(n.Tags)
	if err != nil {
		return models.KnowledgeNote{}, fmt.Errorf("marshal tags: %w", err)
	}

	err = Transact(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO knowledge_notes (id, tenant_id, project_id, title, body, tags, created_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, n.ID, n.TenantID, n.ProjectID, n.Title, n.Body, string(tagsJSON), n.CreatedBy,
			formatTime(n.CreatedAt), formatTime(n.UpdatedAt))
		if err != nil {
			return fmt.Errorf("insert knowledge note: %w", err)
		}
		return registerNodeTx(ctx, tx, n.TenantID, n.ID, "knowledge_note", n.CreatedAt)
	})
	if err != nil {
		return models.KnowledgeNote{}, err
	}
	return n, nil
}

// ListKnowledgeNotes lists notes for a project (or tenant-wide), newest-first.
func ListKnowledgeNotes(ctx context.Context, db *sql.DB, tenantID, projectID string, limit int) ([]models.KnowledgeNote, error) {
	query := `
		SELECT id, tenant_id, project_id, title, body, tags, created_by, created_at, updated_at
		FROM knowledge_notes WHERE tenant_id = ?
	`
	args := []any{tenantID}
	if projectID != "" {
		query += ` AND project_id = ?`
		args = append(args, projectID)
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var out []models.KnowledgeNote
	err := RetryWithBackoff(ctx, func() error {
		out = nil
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var n models.KnowledgeNote
			var tagsJSON, createdAt, updatedAt string
			if err := rows.Scan(&n.ID, &n.TenantID, &n.ProjectID, &n.Title, &n.Body, &tagsJSON, &n.CreatedBy, &createdAt, &updatedAt); err != nil {
				return err
			}
			if err := json.Unmarshal([]byte(tagsJSON), &n.Tags); err != nil {
				return fmt.Errorf("unmarshal tags: %w", err)
			}
			ts, err := parseTime(createdAt)
			if err != nil {
				return err
			}
			n.CreatedAt = ts
			us, err := parseTime(updatedAt)
			if err != nil {
				return err
			}
			n.UpdatedAt = us
			out = append(out, n)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list knowledge notes: %w", err)
	}
	return out, nil
}

// InsertSessionHandoffTx persists a continuity record when one agent hands
// a session to another, carrying the ACB it assembled at handoff time
// (spec §3 "handoff").
func InsertSessionHandoffTx(ctx context.Context, tx *sql.Tx, h models.SessionHandoff) error {
	if h.TenantID == "" {
		return models.NewInvalidInput("tenant_id is required")
	}
	if h.SessionID == "" {
		return models.NewInvalidInput("session_id is required")
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO session_handoffs (id, tenant_id, session_id, agent_id, summary, acb_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, h.ID, h.TenantID, h.SessionID, h.AgentID, h.Summary, h.ACBJSON, formatTime(h.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert session handoff: %w", err)
	}
	return nil
}

// ListSessionHandoffs returns handoffs for a session, newest-first.
func ListSessionHandoffs(ctx context.Context, db *sql.DB, tenantID, sessionID string) ([]models.SessionHandoff, error) {
	var out []models.SessionHandoff
	err := RetryWithBackoff(ctx, func() error {
		out = nil
		rows, err := db.QueryContext(ctx, `
			SELECT id, tenant_id, session_id, agent_id, summary, acb_json, created_at
			FROM session_handoffs WHERE tenant_id = ? AND session_id = ?
			ORDER BY created_at DESC
		`, tenantID, sessionID)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var h models.SessionHandoff
			var createdAt string
			if err := rows.Scan(&h.ID, &h.TenantID, &h.SessionID, &h.AgentID, &h.Summary, &h.ACBJSON, &createdAt); err != nil {
				return err
			}
			ts, err := parseTime(createdAt)
			if err != nil {
				return err
			}
			h.CreatedAt = ts
			out = append(out, h)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list session handoffs: %w", err)
	}
	return out, nil
}
