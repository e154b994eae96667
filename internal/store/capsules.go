package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentmemory/memoryd/internal/models"
)

// CreateCapsule validates every referenced chunk/decision/artifact exists
// in the tenant, computes expires_at = created_at + ttl_days, and inserts
// the capsule as active (spec §4.F create_capsule).
func CreateCapsule(ctx context.Context, db *sql.DB, c models.Capsule) (models.Capsule, error) {
	if c.TenantID == "" {
		return models.Capsule{}, models.NewInvalidInput("tenant_id is required")
	}
	if c.AuthorAgentID == "" {
		return models.Capsule{}, models.NewInvalidInput("author_agent_id is required")
	}
	if len(c.AudienceAgentIDs) == 0 {
		return models.Capsule{}, models.NewInvalidInput("audience must name at least one agent")
	}
	if c.TTLDays <= 0 {
		c.TTLDays = 7
	}
	c.Status = models.CapsuleStatusActive
	c.ExpiresAt = c.CreatedAt.AddDate(0, 0, c.TTLDays)

	err := Transact(ctx, db, func(tx *sql.Tx) error {
		for _, id := range c.Items.ChunkIDs {
			if !targetExistsTx(ctx, tx, c.TenantID, models.EditTargetChunk, id) {
				return NotFoundErr("chunk", id)
			}
		}
		for _, id := range c.Items.DecisionIDs {
			if !targetExistsTx(ctx, tx, c.TenantID, models.EditTargetDecision, id) {
				return NotFoundErr("decision", id)
			}
		}
		for _, id := range c.Items.ArtifactIDs {
			var exists int
			if err := tx.QueryRowContext(ctx, `SELECT 1 FROM artifacts WHERE tenant_id = ? AND id = ?`, c.TenantID, id).Scan(&exists); err != nil {
				return NotFoundErr("artifact", id)
			}
		}

		audienceJSON, err := json.Marshal(c.AudienceAgentIDs)
		if err != nil {
			return fmt.Errorf("marshal audience: %w", err)
		}
		itemsJSON, err := json.Marshal(c.Items)
		if err != nil {
			return fmt.Errorf("marshal items: %w", err)
		}
		risksJSON, err := json.Marshal(c.Risks)
		if err != nil {
			return fmt.Errorf("marshal risks: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO capsules (
				id, tenant_id, scope, subject_type, subject_id, author_agent_id,
				audience_agent_ids, items, risks, ttl_days, created_at, expires_at, status
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			c.ID, c.TenantID, string(c.Scope), c.SubjectType, c.SubjectID, c.AuthorAgentID,
			string(audienceJSON), string(itemsJSON), string(risksJSON), c.TTLDays,
			formatTime(c.CreatedAt), formatTime(c.ExpiresAt), string(c.Status),
		)
		if err != nil {
			return fmt.Errorf("insert capsule: %w", err)
		}
		return registerNodeTx(ctx, tx, c.TenantID, c.ID, "capsule", c.CreatedAt)
	})
	if err != nil {
		return models.Capsule{}, err
	}
	return c, nil
}

// GetCapsuleForAgent returns a capsule only when agentID is in its
// audience and it is currently active and unexpired; any other condition
// (not found, wrong audience, revoked, expired) reports NotFound so a
// revoked or expired capsule is indistinguishable from non-existence to
// outsiders (spec §4.F get_capsule).
func GetCapsuleForAgent(ctx context.Context, db *sql.DB, tenantID, capsuleID, agentID string) (models.Capsule, error) {
	var out models.Capsule
	err := RetryWithBackoff(ctx, func() error {
		var txErr error
		out, txErr = scanCapsule(db.QueryRowContext(ctx, capsuleSelectQuery+` WHERE tenant_id = ? AND id = ?`, tenantID, capsuleID))
		return txErr
	})
	if err != nil {
		if err == sql.ErrNoRows {
			return models.Capsule{}, NotFoundErr("capsule", capsuleID)
		}
		return models.Capsule{}, err
	}
	if !out.IsVisibleTo(agentID, time.Now().UTC()) {
		return models.Capsule{}, NotFoundErr("capsule", capsuleID)
	}
	return out, nil
}

// ListCapsulesForAgent returns active, unexpired capsules whose audience
// includes agentID (spec §4.F list_capsules).
func ListCapsulesForAgent(ctx context.Context, db *sql.DB, tenantID, agentID string) ([]models.Capsule, error) {
	now := formatTime(time.Now().UTC())
	var out []models.Capsule
	err := RetryWithBackoff(ctx, func() error {
		out = nil
		rows, err := db.QueryContext(ctx, capsuleSelectQuery+`
			WHERE tenant_id = ? AND status = 'active' AND expires_at > ?
			ORDER BY created_at DESC
		`, tenantID, now)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			c, err := scanCapsule(rows)
			if err != nil {
				return err
			}
			for _, a := range c.AudienceAgentIDs {
				if a == agentID {
					out = append(out, c)
					break
				}
			}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list capsules: %w", err)
	}
	return out, nil
}

// RevokeCapsule sets status=revoked, revoked_at=now (spec §4.F revoke_capsule).
func RevokeCapsule(ctx context.Context, db *sql.DB, tenantID, capsuleID string) error {
	now := time.Now().UTC()
	return Transact(ctx, db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE capsules SET status = 'revoked', revoked_at = ?
			WHERE tenant_id = ? AND id = ?
		`, formatTime(now), tenantID, capsuleID)
		if err != nil {
			return fmt.Errorf("revoke capsule: %w", err)
		}
		ra, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if ra == 0 {
			return NotFoundErr("capsule", capsuleID)
		}
		return nil
	})
}

const capsuleSelectQuery = `
	SELECT id, tenant_id, scope, subject_type, subject_id, author_agent_id,
	       audience_agent_ids, items, risks, ttl_days, created_at, expires_at,
	       status, revoked_at
	FROM capsules
`

func scanCapsule(row rowScanner) (models.Capsule, error) {
	var (
		c                                         models.Capsule
		scope, status                             string
		audienceJSON, itemsJSON, risksJSON        string
		createdAt, expiresAt                      string
		revokedAt                                 sql.NullString
	)
	if err := row.Scan(
		&c.ID, &c.TenantID, &scope, &c.SubjectType, &c.SubjectID, &c.AuthorAgentID,
		&audienceJSON, &itemsJSON, &risksJSON, &c.TTLDays, &createdAt, &expiresAt,
		&status, &revokedAt,
	); err != nil {
		return models.Capsule{}, err
	}

	c.Scope = models.Scope(scope)
	c.Status = models.CapsuleStatus(status)

	if err := json.Unmarshal([]byte(audienceJSON), &c.AudienceAgentIDs); err != nil {
		return models.Capsule{}, fmt.Errorf("unmarshal audience: %w", err)
	}
	if err := json.Unmarshal([]byte(itemsJSON), &c.Items); err != nil {
		return models.Capsule{}, fmt.Errorf("unmarshal items: %w", err)
	}
	if err := json.Unmarshal([]byte(risksJSON), &c.Risks); err != nil {
		return models.Capsule{}, fmt.Errorf("unmarshal risks: %w", err)
	}

	ts, err := parseTime(createdAt)
	if err != nil {
		return models.Capsule{}, fmt.Errorf("parse created_at: %w", err)
	}
	c.CreatedAt = ts
	ex, err := parseTime(expiresAt)
	if err != nil {
		return models.Capsule{}, fmt.Errorf("parse expires_at: %w", err)
	}
	c.ExpiresAt = ex

	revoked, err := scanNullableTime(revokedAt)
	if err != nil {
		return models.Capsule{}, err
	}
	c.RevokedAt = revoked

	return c, nil
}
