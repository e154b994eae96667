package engine

import (
	"context"
	"database/sql"
	"time"

	"github.com/agentmemory/memoryd/internal/models"
	"github.com/agentmemory/memoryd/internal/notify"
	"github.com/agentmemory/memoryd/internal/store"
)

// Capsules is the audience-restricted, TTL-bound transfer-bundle service
// of spec §4.F. It stamps ids/timestamps and fans out lifecycle
// notifications; item existence, audience non-emptiness, and visibility
// rules live in the store layer and models.Capsule.IsVisibleTo.
type Capsules struct {
	db     *sql.DB
	notify *notify.Publisher
}

// NewCapsules builds a Capsules service. notifier may be nil.
func NewCapsules(db *sql.DB, notifier *notify.Publisher) *Capsules {
	return &Capsules{db: db, notify: notifier}
}

// CreateCapsuleInput carries create_capsule's inputs.
type CreateCapsuleInput struct {
	TenantID         string
	Scope            models.Scope
	SubjectType      string
	SubjectID        string
	AuthorAgentID    string
	AudienceAgentIDs []string
	Items            models.CapsuleItems
	Risks            []string
	TTLDays          int
}

// CreateCapsule builds and persists a capsule, then notifies every
// audience agent on capsule.created.<tenant>.<agent> (spec §4.F, SPEC_FULL
// §1 notify wiring).
func (c *Capsules) CreateCapsule(ctx context.Context, in CreateCapsuleInput) (models.Capsule, error) {
	now := time.Now().UTC()
	capsule := models.Capsule{
		ID:               store.NewID(models.IDKindCapsule),
		TenantID:         in.TenantID,
		Scope:            in.Scope,
		SubjectType:      in.SubjectType,
		SubjectID:        in.SubjectID,
		AuthorAgentID:    in.AuthorAgentID,
		AudienceAgentIDs: in.AudienceAgentIDs,
		Items:            in.Items,
		Risks:            in.Risks,
		TTLDays:          in.TTLDays,
		CreatedAt:        now,
	}
	created, err := store.CreateCapsule(ctx, c.db, capsule)
	if err != nil {
		return models.Capsule{}, err
	}
	for _, agentID := range created.AudienceAgentIDs {
		_ = c.notify.PublishCapsuleCreated(created.TenantID, agentID, created.ID)
	}
	return created, nil
}

// GetCapsule returns a capsule only when visible to agentID right now.
func (c *Capsules) GetCapsule(ctx context.Context, tenantID, capsuleID, agentID string) (models.Capsule, error) {
	return store.GetCapsuleForAgent(ctx, c.db, tenantID, capsuleID, agentID)
}

// ListCapsules lists every capsule currently visible to agentID.
func (c *Capsules) ListCapsules(ctx context.Context, tenantID, agentID string) ([]models.Capsule, error) {
	return store.ListCapsulesForAgent(ctx, c.db, tenantID, agentID)
}

// RevokeCapsule marks a capsule revoked and notifies
// capsule.revoked.<tenant>.<id>. Revocation is idempotent: revoking an
// already-revoked capsule succeeds without error (spec §8 round-trip law).
func (c *Capsules) RevokeCapsule(ctx context.Context, tenantID, capsuleID string) error {
	if err := store.RevokeCapsule(ctx, c.db, tenantID, capsuleID); err != nil {
		return err
	}
	_ = c.notify.PublishCapsuleRevoked(tenantID, capsuleID)
	return nil
}
