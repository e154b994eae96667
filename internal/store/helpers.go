package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// registerNodeTx records an entity in the nodes table so the graph package
// can attach edges to it regardless of its underlying kind. Idempotent:
// re-registering the same id is a no-op.
func registerNodeTx(ctx context.Context, tx *sql.Tx, tenantID, id, kind string, createdAt time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO nodes (id, tenant_id, kind, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, tenantID, kind, createdAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("register node: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func scanNullableTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, fmt.Errorf("parse nullable time: %w", err)
	}
	return &t, nil
}
