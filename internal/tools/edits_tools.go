package tools

import (
	"context"
	"encoding/json"

	"github.com/agentmemory/memoryd/internal/engine"
	"github.com/agentmemory/memoryd/internal/models"
	"github.com/agentmemory/memoryd/internal/output"
)

type createEditParams struct {
	TenantID    string            `json:"tenant_id"`
	TargetType  string            `json:"target_type"`
	TargetID    string            `json:"target_id"`
	Op          string            `json:"op"`
	Patch       models.EditPatch  `json:"patch"`
	Reason      string            `json:"reason"`
	ProposedBy  string            `json:"proposed_by"`
	AutoApprove bool              `json:"auto_approve,omitempty"`
}

// CreateEdit wraps Surgery.ProposeEdit (spec §6 "create_edit", §4.E).
type CreateEdit struct {
	surgery *engine.Surgery
}

func NewCreateEdit(surgery *engine.Surgery) *CreateEdit { return &CreateEdit{surgery: surgery} }

func (t *CreateEdit) Name() string        { return "create_edit" }
func (t *CreateEdit) Description() string { return "Propose a non-destructive memory surgery edit: retract, amend, quarantine, attenuate, or block." }
func (t *CreateEdit) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "tenant_id": {"type": "string"},
    "target_type": {"type": "string", "enum": ["chunk", "event", "decision"]},
    "target_id": {"type": "string"},
    "op": {"type": "string", "enum": ["retract", "amend", "quarantine", "attenuate", "block"]},
    "patch": {"type": "object"},
    "reason": {"type": "string"},
    "proposed_by": {"type": "string", "enum": ["human", "agent"]},
    "auto_approve": {"type": "boolean"}
  },
  "required": ["tenant_id", "target_type", "target_id", "op", "reason", "proposed_by"]
}`)
}

func (t *CreateEdit) Execute(ctx context.Context, params json.RawMessage) (output.Response, error) {
	var p createEditParams
	if err := json.Unmarshal(params, &p); err != nil {
		return output.Error(models.NewInvalidInput("invalid parameters: %v", err)), nil
	}
	e, err := t.surgery.ProposeEdit(ctx, engine.ProposeEditInput{
		TenantID:    p.TenantID,
		TargetType:  models.EditTargetType(p.TargetType),
		TargetID:    p.TargetID,
		Op:          models.EditOp(p.Op),
		Patch:       p.Patch,
		Reason:      p.Reason,
		ProposedBy:  models.ProposedBy(p.ProposedBy),
		AutoApprove: p.AutoApprove,
	})
	if err != nil {
		return output.Error(err), nil
	}
	return output.Success(e), nil
}

type editIDParams struct {
	TenantID string `json:"tenant_id"`
	EditID   string `json:"edit_id"`
	Approver string `json:"approver,omitempty"`
}

// ApproveEdit wraps Surgery.ApproveEdit (spec §6 "approve_edit"). Per spec
// §8, approving an already-approved edit is a NotFound, not a no-op.
type ApproveEdit struct {
	surgery *engine.Surgery
}

func NewApproveEdit(surgery *engine.Surgery) *ApproveEdit { return &ApproveEdit{surgery: surgery} }

func (t *ApproveEdit) Name() string        { return "approve_edit" }
func (t *ApproveEdit) Description() string { return "Approve a pending memory edit so it applies to future effective-chunk reads." }
func (t *ApproveEdit) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {"tenant_id": {"type": "string"}, "edit_id": {"type": "string"}, "approver": {"type": "string"}},
  "required": ["tenant_id", "edit_id", "approver"]
}`)
}

func (t *ApproveEdit) Execute(ctx context.Context, params json.RawMessage) (output.Response, error) {
	var p editIDParams
	if err := json.Unmarshal(params, &p); err != nil {
		return output.Error(models.NewInvalidInput("invalid parameters: %v", err)), nil
	}
	e, err := t.surgery.ApproveEdit(ctx, p.TenantID, p.EditID, p.Approver)
	if err != nil {
		return output.Error(err), nil
	}
	return output.Success(e), nil
}

// RejectEdit wraps Surgery.RejectEdit (spec §6 "reject_edit").
type RejectEdit struct {
	surgery *engine.Surgery
}

func NewRejectEdit(surgery *engine.Surgery) *RejectEdit { return &RejectEdit{surgery: surgery} }

func (t *RejectEdit) Name() string        { return "reject_edit" }
func (t *RejectEdit) Description() string { return "Reject a pending memory edit." }
func (t *RejectEdit) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {"tenant_id": {"type": "string"}, "edit_id": {"type": "string"}},
  "required": ["tenant_id", "edit_id"]
}`)
}

func (t *RejectEdit) Execute(ctx context.Context, params json.RawMessage) (output.Response, error) {
	var p editIDParams
	if err := json.Unmarshal(params, &p); err != nil {
		return output.Error(models.NewInvalidInput("invalid parameters: %v", err)), nil
	}
	e, err := t.surgery.RejectEdit(ctx, p.TenantID, p.EditID)
	if err != nil {
		return output.Error(err), nil
	}
	return output.Success(e), nil
}

// GetEdit wraps Surgery.GetEdit (spec §6 "get_edit").
type GetEdit struct {
	surgery *engine.Surgery
}

func NewGetEdit(surgery *engine.Surgery) *GetEdit { return &GetEdit{surgery: surgery} }

func (t *GetEdit) Name() string        { return "get_edit" }
func (t *GetEdit) Description() string { return "Fetch a single memory edit by id." }
func (t *GetEdit) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {"tenant_id": {"type": "string"}, "edit_id": {"type": "string"}},
  "required": ["tenant_id", "edit_id"]
}`)
}

func (t *GetEdit) Execute(ctx context.Context, params json.RawMessage) (output.Response, error) {
	var p editIDParams
	if err := json.Unmarshal(params, &p); err != nil {
		return output.Error(models.NewInvalidInput("invalid parameters: %v", err)), nil
	}
	e, err := t.surgery.GetEdit(ctx, p.TenantID, p.EditID)
	if err != nil {
		return output.Error(err), nil
	}
	return output.Success(e), nil
}

type listEditsParams struct {
	TenantID   string `json:"tenant_id"`
	TargetType string `json:"target_type,omitempty"`
	TargetID   string `json:"target_id,omitempty"`
}

// ListEdits wraps Surgery.ListEdits (spec §6 "list_edits").
type ListEdits struct {
	surgery *engine.Surgery
}

func NewListEdits(surgery *engine.Surgery) *ListEdits { return &ListEdits{surgery: surgery} }

func (t *ListEdits) Name() string        { return "list_edits" }
func (t *ListEdits) Description() string { return "List memory edits for a target, or for the whole tenant when target fields are omitted." }
func (t *ListEdits) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {"tenant_id": {"type": "string"}, "target_type": {"type": "string"}, "target_id": {"type": "string"}},
  "required": ["tenant_id"]
}`)
}

func (t *ListEdits) Execute(ctx context.Context, params json.RawMessage) (output.Response, error) {
	var p listEditsParams
	if err := json.Unmarshal(params, &p); err != nil {
		return output.Error(models.NewInvalidInput("invalid parameters: %v", err)), nil
	}
	edits, err := t.surgery.ListEdits(ctx, p.TenantID, models.EditTargetType(p.TargetType), p.TargetID)
	if err != nil {
		return output.Error(err), nil
	}
	return output.Success(edits), nil
}
