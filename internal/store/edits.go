package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentmemory/memoryd/internal/models"
)

// CreateEdit validates and inserts a MemoryEdit, verifying the target
// exists in the same tenant before committing (spec §4.E create_edit).
// When auto_approve is true the edit transitions straight to approved with
// applied_at=now; otherwise it is left pending for ApproveEdit/RejectEdit.
func CreateEdit(ctx context.Context, db *sql.DB, e models.MemoryEdit, autoApprove bool) (models.MemoryEdit, error) {
	if e.TenantID == "" {
		return models.MemoryEdit{}, models.NewInvalidInput("tenant_id is required")
	}
	if e.TargetID == "" {
		return models.MemoryEdit{}, models.NewInvalidInput("target_id is required")
	}
	if err := models.ValidatePatch(e.Op, e.Patch); err != nil {
		return models.MemoryEdit{}, err
	}

	e.Status = models.EditStatusPending
	e.AppliedAt = nil
	e.CreatedAt = time.Now().UTC()
	if autoApprove {
		now := time.Now().UTC()
		e.Status = models.EditStatusApproved
		e.AppliedAt = &now
		e.ApprovedBy = string(e.ProposedBy)
	}

	patchJSON, err := json.Marshal(e.Patch)
	if err != nil {
		return models.MemoryEdit{}, fmt.Errorf("marshal patch: %w", err)
	}

	err = Transact(ctx, db, func(tx *sql.Tx) error {
		if !targetExistsTx(ctx, tx, e.TenantID, e.TargetType, e.TargetID) {
			return NotFoundErr(string(e.TargetType), e.TargetID)
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO memory_edits (
				id, tenant_id, target_type, target_id, op, patch, reason,
				proposed_by, status, created_at, applied_at, approved_by
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			e.ID, e.TenantID, string(e.TargetType), e.TargetID, string(e.Op),
			string(patchJSON), e.Reason, string(e.ProposedBy), string(e.Status),
			formatTime(e.CreatedAt), nullableTime(e.AppliedAt), e.ApprovedBy,
		)
		if err != nil {
			return fmt.Errorf("insert memory edit: %w", err)
		}
		return registerNodeTx(ctx, tx, e.TenantID, e.ID, "edit", e.CreatedAt)
	})
	if err != nil {
		return models.MemoryEdit{}, err
	}
	return e, nil
}

func targetExistsTx(ctx context.Context, tx *sql.Tx, tenantID string, targetType models.EditTargetType, targetID string) bool {
	var table string
	switch targetType {
	case models.EditTargetChunk:
		table = "chunks"
	case models.EditTargetEvent:
		table = "events"
	case models.EditTargetDecision:
		table = "decisions"
	default:
		return false
	}
	var exists int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE tenant_id = ? AND id = ?`, tenantID, targetID).Scan(&exists)
	return err == nil
}

// ApproveEdit transitions a pending edit to approved with applied_at=now.
// Only acts on pending edits — anything else fails NotFound (spec §4.E).
func ApproveEdit(ctx context.Context, db *sql.DB, tenantID, editID, approver string) (models.MemoryEdit, error) {
	now := time.Now().UTC()
	var out models.MemoryEdit
	err := Transact(ctx, db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE memory_edits
			SET status = 'approved', applied_at = ?, approved_by = ?
			WHERE tenant_id = ? AND id = ? AND status = 'pending'
		`, formatTime(now), approver, tenantID, editID)
		if err != nil {
			return fmt.Errorf("approve edit: %w", err)
		}
		ra, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if ra == 0 {
			return NotFoundErr("edit", editID)
		}
		out, err = getEditTx(ctx, tx, tenantID, editID)
		return err
	})
	if err != nil {
		return models.MemoryEdit{}, err
	}
	return out, nil
}

// RejectEdit transitions a pending edit to rejected. Only acts on pending
// edits — anything else fails NotFound (spec §4.E).
func RejectEdit(ctx context.Context, db *sql.DB, tenantID, editID string) (models.MemoryEdit, error) {
	var out models.MemoryEdit
	err := Transact(ctx, db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE memory_edits
			SET status = 'rejected'
			WHERE tenant_id = ? AND id = ? AND status = 'pending'
		`, tenantID, editID)
		if err != nil {
			return fmt.Errorf("reject edit: %w", err)
		}
		ra, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if ra == 0 {
			return NotFoundErr("edit", editID)
		}
		out, err = getEditTx(ctx, tx, tenantID, editID)
		return err
	})
	if err != nil {
		return models.MemoryEdit{}, err
	}
	return out, nil
}

// GetEdit fetches a single edit by id, scoped to tenant.
func GetEdit(ctx context.Context, db *sql.DB, tenantID, editID string) (models.MemoryEdit, error) {
	var out models.MemoryEdit
	err := RetryWithBackoff(ctx, func() error {
		var txErr error
		out, txErr = scanEdit(db.QueryRowContext(ctx, editSelectQuery+` WHERE tenant_id = ? AND id = ?`, tenantID, editID))
		return txErr
	})
	if err != nil {
		if err == sql.ErrNoRows {
			return models.MemoryEdit{}, NotFoundErr("edit", editID)
		}
		return models.MemoryEdit{}, err
	}
	return out, nil
}

func getEditTx(ctx context.Context, tx *sql.Tx, tenantID, editID string) (models.MemoryEdit, error) {
	e, err := scanEdit(tx.QueryRowContext(ctx, editSelectQuery+` WHERE tenant_id = ? AND id = ?`, tenantID, editID))
	if err == sql.ErrNoRows {
		return models.MemoryEdit{}, NotFoundErr("edit", editID)
	}
	return e, err
}

// ListEdits returns edits targeting a specific entity, newest-first.
func ListEdits(ctx context.Context, db *sql.DB, tenantID string, targetType models.EditTargetType, targetID string) ([]models.MemoryEdit, error) {
	var out []models.MemoryEdit
	err := RetryWithBackoff(ctx, func() error {
		out = nil
		rows, err := db.QueryContext(ctx, editSelectQuery+`
			WHERE tenant_id = ? AND target_type = ? AND target_id = ?
			ORDER BY created_at DESC
		`, tenantID, string(targetType), targetID)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			e, err := scanEdit(rows)
			if err != nil {
				return err
			}
			out = append(out, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list edits: %w", err)
	}
	return out, nil
}

const editSelectQuery = `
	SELECT id, tenant_id, target_type, target_id, op, patch, reason,
	       proposed_by, status, created_at, applied_at, approved_by
	FROM memory_edits
`

func scanEdit(row rowScanner) (models.MemoryEdit, error) {
	var (
		e                          models.MemoryEdit
		targetType, op, status     string
		proposedBy                 string
		patchJSON                  string
		createdAt                  string
		appliedAt                  sql.NullString
	)
	if err := row.Scan(
		&e.ID, &e.TenantID, &targetType, &e.TargetID, &op, &patchJSON, &e.Reason,
		&proposedBy, &status, &createdAt, &appliedAt, &e.ApprovedBy,
	); err != nil {
		return models.MemoryEdit{}, err
	}

	e.TargetType = models.EditTargetType(targetType)
	e.Op = models.EditOp(op)
	e.Status = models.EditStatus(status)
	e.ProposedBy = models.ProposedBy(proposedBy)

	if err := json.Unmarshal([]byte(patchJSON), &e.Patch); err != nil {
		return models.MemoryEdit{}, fmt.Errorf("unmarshal patch: %w", err)
	}

	ts, err := parseTime(createdAt)
	if err != nil {
		return models.MemoryEdit{}, fmt.Errorf("parse created_at: %w", err)
	}
	e.CreatedAt = ts

	applied, err := scanNullableTime(appliedAt)
	if err != nil {
		return models.MemoryEdit{}, err
	}
	e.AppliedAt = applied

	return e, nil
}
