package tools

import (
	"context"
	"encoding/json"

	"github.com/agentmemory/memoryd/internal/engine"
	"github.com/agentmemory/memoryd/internal/models"
	"github.com/agentmemory/memoryd/internal/output"
)

type createCapsuleParams struct {
	TenantID         string              `json:"tenant_id"`
	Scope            string              `json:"scope"`
	SubjectType      string              `json:"subject_type,omitempty"`
	SubjectID        string              `json:"subject_id,omitempty"`
	AuthorAgentID    string              `json:"author_agent_id"`
	AudienceAgentIDs []string            `json:"audience_agent_ids"`
	Items            models.CapsuleItems `json:"items"`
	Risks            []string            `json:"risks,omitempty"`
	TTLDays          int                 `json:"ttl_days,omitempty"`
}

// CreateCapsule wraps Capsules.CreateCapsule (spec §6 "create_capsule").
type CreateCapsule struct {
	capsules *engine.Capsules
}

func NewCreateCapsule(capsules *engine.Capsules) *CreateCapsule { return &CreateCapsule{capsules: capsules} }

func (t *CreateCapsule) Name() string        { return "create_capsule" }
func (t *CreateCapsule) Description() string { return "Create an audience-restricted, TTL-bound capsule curating chunks/decisions/artifacts for transfer between agents." }
func (t *CreateCapsule) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "tenant_id": {"type": "string"},
    "scope": {"type": "string"},
    "subject_type": {"type": "string"},
    "subject_id": {"type": "string"},
    "author_agent_id": {"type": "string"},
    "audience_agent_ids": {"type": "array", "items": {"type": "string"}},
    "items": {"type": "object"},
    "risks": {"type": "array", "items": {"type": "string"}},
    "ttl_days": {"type": "integer"}
  },
  "required": ["tenant_id", "author_agent_id", "audience_agent_ids"]
}`)
}

func (t *CreateCapsule) Execute(ctx context.Context, params json.RawMessage) (output.Response, error) {
	var p createCapsuleParams
	if err := json.Unmarshal(params, &p); err != nil {
		return output.Error(models.NewInvalidInput("invalid parameters: %v", err)), nil
	}
	c, err := t.capsules.CreateCapsule(ctx, engine.CreateCapsuleInput{
		TenantID:         p.TenantID,
		Scope:            models.Scope(p.Scope),
		SubjectType:      p.SubjectType,
		SubjectID:        p.SubjectID,
		AuthorAgentID:    p.AuthorAgentID,
		AudienceAgentIDs: p.AudienceAgentIDs,
		Items:            p.Items,
		Risks:            p.Risks,
		TTLDays:          p.TTLDays,
	})
	if err != nil {
		return output.Error(err), nil
	}
	return output.Success(c), nil
}

type agentCapsuleParams struct {
	TenantID  string `json:"tenant_id"`
	AgentID   string `json:"agent_id"`
	CapsuleID string `json:"capsule_id,omitempty"`
}

// ListCapsules wraps Capsules.ListCapsules (spec §6 "list_capsules").
type ListCapsules struct {
	capsules *engine.Capsules
}

func NewListCapsules(capsules *engine.Capsules) *ListCapsules { return &ListCapsules{capsules: capsules} }

func (t *ListCapsules) Name() string        { return "list_capsules" }
func (t *ListCapsules) Description() string { return "List capsules visible to an agent: active, not expired, audience-matched." }
func (t *ListCapsules) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {"tenant_id": {"type": "string"}, "agent_id": {"type": "string"}},
  "required": ["tenant_id", "agent_id"]
}`)
}

func (t *ListCapsules) Execute(ctx context.Context, params json.RawMessage) (output.Response, error) {
	var p agentCapsuleParams
	if err := json.Unmarshal(params, &p); err != nil {
		return output.Error(models.NewInvalidInput("invalid parameters: %v", err)), nil
	}
	caps, err := t.capsules.ListCapsules(ctx, p.TenantID, p.AgentID)
	if err != nil {
		return output.Error(err), nil
	}
	return output.Success(caps), nil
}

// GetCapsule wraps Capsules.GetCapsule (spec §6 "get_capsule").
type GetCapsule struct {
	capsules *engine.Capsules
}

func NewGetCapsule(capsules *engine.Capsules) *GetCapsule { return &GetCapsule{capsules: capsules} }

func (t *GetCapsule) Name() string        { return "get_capsule" }
func (t *GetCapsule) Description() string { return "Fetch a single capsule if it is visible to the requesting agent." }
func (t *GetCapsule) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {"tenant_id": {"type": "string"}, "agent_id": {"type": "string"}, "capsule_id": {"type": "string"}},
  "required": ["tenant_id", "agent_id", "capsule_id"]
}`)
}

func (t *GetCapsule) Execute(ctx context.Context, params json.RawMessage) (output.Response, error) {
	var p agentCapsuleParams
	if err := json.Unmarshal(params, &p); err != nil {
		return output.Error(models.NewInvalidInput("invalid parameters: %v", err)), nil
	}
	c, err := t.capsules.GetCapsule(ctx, p.TenantID, p.CapsuleID, p.AgentID)
	if err != nil {
		return output.Error(err), nil
	}
	return output.Success(c), nil
}

type revokeCapsuleParams struct {
	TenantID  string `json:"tenant_id"`
	CapsuleID string `json:"capsule_id"`
}

// RevokeCapsule wraps Capsules.RevokeCapsule (spec §6 "revoke_capsule").
// Revocation is idempotent (spec §8): revoking an already-revoked capsule
// succeeds without error.
type RevokeCapsule struct {
	capsules *engine.Capsules
}

func NewRevokeCapsule(capsules *engine.Capsules) *RevokeCapsule { return &RevokeCapsule{capsules: capsules} }

func (t *RevokeCapsule) Name() string        { return "revoke_capsule" }
func (t *RevokeCapsule) Description() string { return "Revoke a capsule, idempotently." }
func (t *RevokeCapsule) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {"tenant_id": {"type": "string"}, "capsule_id": {"type": "string"}},
  "required": ["tenant_id", "capsule_id"]
}`)
}

func (t *RevokeCapsule) Execute(ctx context.Context, params json.RawMessage) (output.Response, error) {
	var p revokeCapsuleParams
	if err := json.Unmarshal(params, &p); err != nil {
		return output.Error(models.NewInvalidInput("invalid parameters: %v", err)), nil
	}
	if err := t.capsules.RevokeCapsule(ctx, p.TenantID, p.CapsuleID); err != nil {
		return output.Error(err), nil
	}
	return output.Success(map[string]string{"capsule_id": p.CapsuleID, "status": "revoked"}), nil
}
