package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentmemory/memoryd/internal/models"
)

// InsertChunkTx inserts a retrieval chunk derived from an event, inside an
// existing transaction (spec §4.A "emits zero or more Chunks from the
// Event in the same transaction").
func InsertChunkTx(ctx context.Context, tx *sql.Tx, c models.Chunk) error {
	if c.TenantID == "" {
		return models.NewInvalidInput("tenant_id is required")
	}
	if c.SourceEventID == "" {
		return models.NewInvalidInput("source_event_id is required")
	}
	if c.Text == "" {
		return models.NewInvalidInput("chunk text must be non-empty")
	}

	tagsJSON, err := json.Marshal(c.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	var embeddingBlob any
	if len(c.Embedding) > 0 {
		embeddingBlob = encodeEmbedding(c.Embedding)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO chunks (
			id, tenant_id, source_event_id, created_at, kind, channel, sensitivity,
			tags, token_estimate, importance, text, embedding, scope, subject_type,
			subject_id, project_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID, c.TenantID, c.SourceEventID, formatTime(c.CreatedAt), string(c.Kind),
		string(c.Channel), string(c.Sensitivity), string(tagsJSON), c.TokenEstimate,
		c.Importance, c.Text, embeddingBlob, string(c.Scope), c.SubjectType, c.SubjectID,
		c.ProjectID,
	)
	if err != nil {
		return fmt.Errorf("insert chunk: %w", err)
	}

	return registerNodeTx(ctx, tx, c.TenantID, c.ID, "chunk", c.CreatedAt)
}

// GetEffectiveChunk returns a chunk's effective representation (composed
// through its approved edits) regardless of retract/quarantine status —
// a direct get is not retrieval (spec §4.D).
func GetEffectiveChunk(ctx context.Context, db *sql.DB, tenantID, id string) (models.EffectiveChunk, error) {
	var ec models.EffectiveChunk
	err := RetryWithBackoff(ctx, func() error {
		row := db.QueryRowContext(ctx, `
			SELECT id, tenant_id, source_event_id, created_at, kind, channel, sensitivity,
			       tags, token_estimate, importance, text, embedding, scope, subject_type,
			       subject_id, project_id, is_retracted, is_quarantined, blocked_channels,
			       edits_applied_count
			FROM effective_chunks
			WHERE `+TenantScopeClause+` AND id = ?
		`, tenantID, id)
		var err error
		ec, err = scanEffectiveChunk(row)
		return err
	})
	if err != nil {
		if err == sql.ErrNoRows {
			return models.EffectiveChunk{}, NotFoundErr("chunk", id)
		}
		return models.EffectiveChunk{}, err
	}
	return ec, nil
}

// GetEffectiveChunks batch-fetches effective chunks, used by the ACB
// Assembler and Capsule Service to resolve a curated id list in one round
// trip.
func GetEffectiveChunks(ctx context.Context, db *sql.DB, tenantID string, ids []string) ([]models.EffectiveChunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, tenantID)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}

	query := `
		SELECT id, tenant_id, source_event_id, created_at, kind, channel, sensitivity,
		       tags, token_estimate, importance, text, embedding, scope, subject_type,
		       subject_id, project_id, is_retracted, is_quarantined, blocked_channels,
		       edits_applied_count
		FROM effective_chunks
		WHERE ` + TenantScopeClause + ` AND id IN (` + joinPlaceholders(placeholders) + `)
	`

	var out []models.EffectiveChunk
	err := RetryWithBackoff(ctx, func() error {
		out = nil
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			ec, err := scanEffectiveChunk(rows)
			if err != nil {
				return err
			}
			out = append(out, ec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("get effective chunks: %w", err)
	}
	return out, nil
}

// ListChunksForConsolidation returns live (non-retracted, non-quarantined)
// effective chunks older than olderThan for a tenant, oldest first, for
// the Consolidation job to stratify (spec §4.L). It never returns
// retracted/quarantined content, since consolidation must not resurrect
// memory that surgery has suppressed.
func ListChunksForConsolidation(ctx context.Context, db *sql.DB, tenantID string, olderThan time.Time, limit int) ([]models.EffectiveChunk, error) {
	var out []models.EffectiveChunk
	err := RetryWithBackoff(ctx, func() error {
		out = nil
		rows, err := db.QueryContext(ctx, `
			SELECT id, tenant_id, source_event_id, created_at, kind, channel, sensitivity,
			       tags, token_estimate, importance, text, embedding, scope, subject_type,
			       subject_id, project_id, is_retracted, is_quarantined, blocked_channels,
			       edits_applied_count
			FROM effective_chunks
			WHERE `+TenantScopeClause+` AND created_at < ?
			  AND is_retracted = 0 AND is_quarantined = 0
			ORDER BY created_at ASC
			LIMIT ?
		`, tenantID, formatTime(olderThan), limit)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			ec, err := scanEffectiveChunk(rows)
			if err != nil {
				return err
			}
			out = append(out, ec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list chunks for consolidation: %w", err)
	}
	return out, nil
}

func joinPlaceholders(ps []string) string {
	out := ps[0]
	for _, p := range ps[1:] {
		out += "," + p
	}
	return out
}

func scanEffectiveChunk(row rowScanner) (models.EffectiveChunk, error) {
	var (
		ec                             models.EffectiveChunk
		kind, channel, sensitivity     string
		scope                          string
		tagsJSON, blockedChannelsJSON  string
		createdAt                      string
		embeddingBlob                  []byte
	)
	if err := row.Scan(
		&ec.ID, &ec.TenantID, &ec.SourceEventID, &createdAt, &kind, &channel, &sensitivity,
		&tagsJSON, &ec.TokenEstimate, &ec.Importance, &ec.Text, &embeddingBlob, &scope,
		&ec.SubjectType, &ec.SubjectID, &ec.ProjectID, &ec.IsRetracted, &ec.IsQuarantined,
		&blockedChannelsJSON, &ec.EditsAppliedCount,
	); err != nil {
		return models.EffectiveChunk{}, err
	}

	ec.Kind = models.EventKind(kind)
	ec.Channel = models.Channel(channel)
	ec.Sensitivity = models.Sensitivity(sensitivity)
	ec.Scope = models.Scope(scope)

	if err := json.Unmarshal([]byte(tagsJSON), &ec.Tags); err != nil {
		return models.EffectiveChunk{}, fmt.Errorf("unmarshal tags: %w", err)
	}
	if err := json.Unmarshal([]byte(blockedChannelsJSON), &ec.BlockedChannels); err != nil {
		return models.EffectiveChunk{}, fmt.Errorf("unmarshal blocked_channels: %w", err)
	}
	if len(embeddingBlob) > 0 {
		ec.Embedding = decodeEmbedding(embeddingBlob)
	}

	ts, err := parseTime(createdAt)
	if err != nil {
		return models.EffectiveChunk{}, fmt.Errorf("parse created_at: %w", err)
	}
	ec.CreatedAt = ts

	return ec, nil
}
