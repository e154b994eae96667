package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/agentmemory/memoryd/internal/models"
)

// InsertSessionInvariant persists a newly-extracted sticky invariant.
func InsertSessionInvariant(ctx context.Context, db *sql.DB, inv models.SessionInvariant) error {
	if inv.TenantID == "" || inv.SessionID == "" {
		return models.NewInvalidInput("tenant_id and session_id are required")
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO session_invariants (id, tenant_id, session_id, text, source, released, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
	`, inv.ID, inv.TenantID, inv.SessionID, inv.Text, inv.Source, formatTime(inv.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert session invariant: %w", err)
	}
	return nil
}

// InsertSessionInvariantTx is InsertSessionInvariant run inside an existing
// transaction, used by the Recorder to pin invariants extracted from an
// event in the same transaction that records the event itself.
func InsertSessionInvariantTx(ctx context.Context, tx *sql.Tx, inv models.SessionInvariant) error {
	if inv.TenantID == "" || inv.SessionID == "" {
		return models.NewInvalidInput("tenant_id and session_id are required")
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO session_invariants (id, tenant_id, session_id, text, source, released, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
	`, inv.ID, inv.TenantID, inv.SessionID, inv.Text, inv.Source, formatTime(inv.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert session invariant: %w", err)
	}
	return nil
}

// ListActiveSessionInvariants returns the un-released invariants pinned for
// a session, oldest-first, so the Budget Allocator packs them in the order
// they were first observed.
func ListActiveSessionInvariants(ctx context.Context, db *sql.DB, tenantID, sessionID string) ([]models.SessionInvariant, error) {
	var out []models.SessionInvariant
	err := RetryWithBackoff(ctx, func() error {
		out = nil
		rows, err := db.QueryContext(ctx, `
			SELECT id, tenant_id, session_id, text, source, created_at
			FROM session_invariants
			WHERE tenant_id = ? AND session_id = ? AND released = 0
			ORDER BY created_at ASC
		`, tenantID, sessionID)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var inv models.SessionInvariant
			var createdAt string
			if err := rows.Scan(&inv.ID, &inv.TenantID, &inv.SessionID, &inv.Text, &inv.Source, &createdAt); err != nil {
				return err
			}
			ts, err := parseTime(createdAt)
			if err != nil {
				return err
			}
			inv.CreatedAt = ts
			out = append(out, inv)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list session invariants: %w", err)
	}
	return out, nil
}

// ReleaseSessionInvariant marks an invariant released, so subsequent ACBs
// for the session stop pinning it (spec §4.H "until... the user explicitly
// releases them").
func ReleaseSessionInvariant(ctx context.Context, db *sql.DB, tenantID, invariantID string) error {
	return Transact(ctx, db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE session_invariants SET released = 1 WHERE tenant_id = ? AND id = ?
		`, tenantID, invariantID)
		if err != nil {
			return fmt.Errorf("release session invariant: %w", err)
		}
		ra, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if ra == 0 {
			return NotFoundErr("session_invariant", invariantID)
		}
		return nil
	})
}
