package engine

import (
	"context"
	"database/sql"

	"github.com/agentmemory/memoryd/internal/models"
	"github.com/agentmemory/memoryd/internal/notify"
	"github.com/agentmemory/memoryd/internal/store"
)

// Surgery is the non-destructive edit workflow of spec §4.E: every
// correction is an additive MemoryEdit row, never a rewrite of the
// original event or chunk. Approved edits are immutable; undoing one
// means proposing a compensating amend or attenuate, not deleting a row.
type Surgery struct {
	db       *sql.DB
	notify   *notify.Publisher
	resolver *Resolver
}

// NewSurgery builds a Surgery. notifier may be nil. resolver may be nil,
// in which case approving a chunk edit skips cache invalidation (safe:
// the Resolver's own TTL still bounds staleness).
func NewSurgery(db *sql.DB, notifier *notify.Publisher, resolver *Resolver) *Surgery {
	return &Surgery{db: db, notify: notifier, resolver: resolver}
}

// ProposeEditInput carries create_edit's inputs.
type ProposeEditInput struct {
	TenantID    string
	TargetType  models.EditTargetType
	TargetID    string
	Op          models.EditOp
	Patch       models.EditPatch
	Reason      string
	ProposedBy  models.ProposedBy
	AutoApprove bool
}

// ProposeEdit creates a pending edit (or, when AutoApprove is set, one
// that is immediately approved — used for agent-authored corrections the
// caller has already gated through its own review flow).
func (s *Surgery) ProposeEdit(ctx context.Context, in ProposeEditInput) (models.MemoryEdit, error) {
	if in.Reason == "" {
		return models.MemoryEdit{}, models.NewInvalidInput("reason is required")
	}
	e := models.MemoryEdit{
		ID:         store.NewID(models.IDKindEdit),
		TenantID:   in.TenantID,
		TargetType: in.TargetType,
		TargetID:   in.TargetID,
		Op:         in.Op,
		Reason:     in.Reason,
		ProposedBy: in.ProposedBy,
		Patch:      in.Patch,
	}
	return store.CreateEdit(ctx, s.db, e, in.AutoApprove)
}

// ApproveEdit transitions a pending edit to approved, stamping applied_at
// (spec §4.E: "only pending edits transition; approval is idempotent only
// in the sense that re-approving an already-approved edit is NotFound").
func (s *Surgery) ApproveEdit(ctx context.Context, tenantID, editID, approver string) (models.MemoryEdit, error) {
	e, err := store.ApproveEdit(ctx, s.db, tenantID, editID, approver)
	if err != nil {
		return models.MemoryEdit{}, err
	}
	if s.resolver != nil && e.TargetType == models.EditTargetChunk {
		s.resolver.InvalidateChunk(tenantID, e.TargetID)
	}
	_ = s.notify.PublishEditApproved(tenantID, e.TargetID)
	return e, nil
}

// RejectEdit transitions a pending edit to rejected.
func (s *Surgery) RejectEdit(ctx context.Context, tenantID, editID string) (models.MemoryEdit, error) {
	return store.RejectEdit(ctx, s.db, tenantID, editID)
}

// GetEdit fetches a single edit by id.
func (s *Surgery) GetEdit(ctx context.Context, tenantID, editID string) (models.MemoryEdit, error) {
	return store.GetEdit(ctx, s.db, tenantID, editID)
}

// ListEdits lists every edit proposed against a target, in the order the
// store returns them (creation order), so a caller can audit the full
// history of corrections applied to a chunk/event/decision.
func (s *Surgery) ListEdits(ctx context.Context, tenantID string, targetType models.EditTargetType, targetID string) ([]models.MemoryEdit, error) {
	return store.ListEdits(ctx, s.db, tenantID, targetType, targetID)
}
