package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/agentmemory/memoryd/internal/models"
)

// InsertDecisionTx records a Decision inside an existing transaction,
// optionally superseding a prior decision (spec §3 Decision, §4.A "a
// decision event also writes a durable Decision row").
func InsertDecisionTx(ctx context.Context, tx *sql.Tx, d models.Decision) error {
	if d.TenantID == "" {
		return models.NewInvalidInput("tenant_id is required")
	}
	if d.Text == "" {
		return models.NewInvalidInput("decision text is required")
	}

	constraintsJSON, err := json.Marshal(d.Constraints)
	if err != nil {
		return fmt.Errorf("marshal constraints: %w", err)
	}
	alternativesJSON, err := json.Marshal(d.Alternatives)
	if err != nil {
		return fmt.Errorf("marshal alternatives: %w", err)
	}
	consequencesJSON, err := json.Marshal(d.Consequences)
	if err != nil {
		return fmt.Errorf("marshal consequences: %w", err)
	}

	if d.Supersedes != "" {
		predecessor, err := scanDecision(tx.QueryRowContext(ctx,
			decisionSelectQuery+` WHERE tenant_id = ? AND id = ?`, d.TenantID, d.Supersedes))
		if err == nil {
			d.Refs = mergeRefs(d.Refs, predecessor.Refs)
		} else if err != sql.ErrNoRows {
			return fmt.Errorf("load superseded decision: %w", err)
		}
	}
	refsJSON, err := json.Marshal(d.Refs)
	if err != nil {
		return fmt.Errorf("marshal refs: %w", err)
	}

	if d.Status == "" {
		d.Status = models.DecisionStatusActive
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO decisions (
			id, tenant_id, status, scope, text, rationale, constraints,
			alternatives, consequences, refs, supersedes, project_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		d.ID, d.TenantID, string(d.Status), string(d.Scope), d.Text, d.Rationale,
		string(constraintsJSON), string(alternativesJSON), string(consequencesJSON),
		string(refsJSON), d.Supersedes, d.ProjectID, formatTime(d.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}

	if d.Supersedes != "" {
		if _, err := tx.ExecContext(ctx, `
			UPDATE decisions SET status = 'superseded'
			WHERE tenant_id = ? AND id = ? AND status = 'active'
		`, d.TenantID, d.Supersedes); err != nil {
			return fmt.Errorf("supersede prior decision: %w", err)
		}
	}

	return registerNodeTx(ctx, tx, d.TenantID, d.ID, "decision", d.CreatedAt)
}

// mergeRefs appends predecessor refs not already present in refs,
// preserving refs' original order.
func mergeRefs(refs, predecessorRefs []string) []string {
	seen := make(map[string]bool, len(refs))
	for _, r := range refs {
		seen[r] = true
	}
	out := refs
	for _, r := range predecessorRefs {
		if !seen[r] {
			out = append(out, r)
			seen[r] = true
		}
	}
	return out
}

// GetDecision fetches a single decision by id, scoped to tenant.
func GetDecision(ctx context.Context, db *sql.DB, tenantID, id string) (models.Decision, error) {
	var out models.Decision
	err := RetryWithBackoff(ctx, func() error {
		var txErr error
		out, txErr = scanDecision(db.QueryRowContext(ctx, decisionSelectQuery+` WHERE tenant_id = ? AND id = ?`, tenantID, id))
		return txErr
	})
	if err != nil {
		if err == sql.ErrNoRows {
			return models.Decision{}, NotFoundErr("decision", id)
		}
		return models.Decision{}, err
	}
	return out, nil
}

// QueryDecisions lists decisions for a project (or tenant-wide when
// projectID is empty), optionally filtered to active-only.
func QueryDecisions(ctx context.Context, db *sql.DB, tenantID, projectID string, activeOnly bool, limit int) ([]models.Decision, error) {
	query := decisionSelectQuery + ` WHERE tenant_id = ?`
	args := []any{tenantID}
	if projectID != "" {
		query += ` AND project_id = ?`
		args = append(args, projectID)
	}
	if activeOnly {
		query += ` AND status = 'active'`
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var out []models.Decision
	err := RetryWithBackoff(ctx, func() error {
		out = nil
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			d, err := scanDecision(rows)
			if err != nil {
				return err
			}
			out = append(out, d)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	return out, nil
}

const decisionSelectQuery = `
	SELECT id, tenant_id, status, scope, text, rationale, constraints,
	       alternatives, consequences, refs, supersedes, project_id, created_at
	FROM decisions
`

func scanDecision(row rowScanner) (models.Decision, error) {
	var (
		d                                             models.Decision
		status, scope                                 string
		constraintsJSON, alternativesJSON             string
		consequencesJSON, refsJSON                    string
		createdAt                                     string
	)
	if err := row.Scan(
		&d.ID, &d.TenantID, &status, &scope, &d.Text, &d.Rationale, &constraintsJSON,
		&alternativesJSON, &consequencesJSON, &refsJSON, &d.Supersedes, &d.ProjectID, &createdAt,
	); err != nil {
		return models.Decision{}, err
	}

	d.Status = models.DecisionStatus(status)
	d.Scope = models.Scope(scope)

	for _, pair := range []struct {
		raw string
		out *[]string
	}{
		{constraintsJSON, &d.Constraints},
		{alternativesJSON, &d.Alternatives},
		{consequencesJSON, &d.Consequences},
		{refsJSON, &d.Refs},
	} {
		if err := json.Unmarshal([]byte(pair.raw), pair.out); err != nil {
			return models.Decision{}, fmt.Errorf("unmarshal decision array field: %w", err)
		}
	}

	ts, err := parseTime(createdAt)
	if err != nil {
		return models.Decision{}, fmt.Errorf("parse created_at: %w", err)
	}
	d.CreatedAt = ts

	return d, nil
}
