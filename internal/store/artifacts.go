package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/agentmemory/memoryd/internal/models"
)

// InsertArtifactTx stores a large tool-result payload out-of-line from its
// chunk (spec §4.C "large tool outputs never inflate chunks").
func InsertArtifactTx(ctx context.Context, tx *sql.Tx, a models.Artifact) error {
	if a.TenantID == "" {
		return models.NewInvalidInput("tenant_id is required")
	}
	if a.EventID == "" {
		return models.NewInvalidInput("event_id is required")
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO artifacts (id, tenant_id, event_id, content_type, payload, byte_size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.TenantID, a.EventID, a.ContentType, a.Payload, a.ByteSize, formatTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert artifact: %w", err)
	}
	return registerNodeTx(ctx, tx, a.TenantID, a.ID, "artifact", a.CreatedAt)
}

// GetArtifact fetches a single artifact by id, scoped to tenant.
func GetArtifact(ctx context.Context, db *sql.DB, tenantID, id string) (models.Artifact, error) {
	var a models.Artifact
	err := RetryWithBackoff(ctx, func() error {
		row := db.QueryRowContext(ctx, `
			SELECT id, tenant_id, event_id, content_type, payload, byte_size, created_at
			FROM artifacts WHERE tenant_id = ? AND id = ?
		`, tenantID, id)
		var createdAt string
		if err := row.Scan(&a.ID, &a.TenantID, &a.EventID, &a.ContentType, &a.Payload, &a.ByteSize, &createdAt); err != nil {
			return err
		}
		ts, err := parseTime(createdAt)
		if err != nil {
			return fmt.Errorf("parse created_at: %w", err)
		}
		a.CreatedAt = ts
		return nil
	})
	if err != nil {
		if err == sql.ErrNoRows {
			return models.Artifact{}, NotFoundErr("artifact", id)
		}
		return models.Artifact{}, err
	}
	return a, nil
}
