package tools

import (
	"encoding/json"

	"context"

	"github.com/agentmemory/memoryd/internal/engine"
	"github.com/agentmemory/memoryd/internal/models"
	"github.com/agentmemory/memoryd/internal/output"
)

type buildACBParams struct {
	TenantID        string `json:"tenant_id"`
	SessionID       string `json:"session_id"`
	AgentID         string `json:"agent_id"`
	Channel         string `json:"channel"`
	Intent          string `json:"intent,omitempty"`
	QueryText       string `json:"query_text,omitempty"`
	MaxTokens       int    `json:"max_tokens,omitempty"`
	IncludeCapsules bool   `json:"include_capsules,omitempty"`
	ProjectID       string `json:"project_id,omitempty"`
}

// BuildACB wraps Assembler.Build (spec §6 "build_acb", §4.I).
type BuildACB struct {
	assembler *engine.Assembler
}

func NewBuildACB(assembler *engine.Assembler) *BuildACB { return &BuildACB{assembler: assembler} }

func (t *BuildACB) Name() string { return "build_acb" }
func (t *BuildACB) Description() string {
	return "Assemble a budgeted Active Context Bundle: rules, task state, decisions, retrieved evidence, recent window, and capsules, packed under the detected mode's budget profile."
}
func (t *BuildACB) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "tenant_id": {"type": "string"},
    "session_id": {"type": "string"},
    "agent_id": {"type": "string"},
    "channel": {"type": "string"},
    "intent": {"type": "string"},
    "query_text": {"type": "string"},
    "max_tokens": {"type": "integer"},
    "include_capsules": {"type": "boolean"},
    "project_id": {"type": "string"}
  },
  "required": ["tenant_id", "session_id", "agent_id", "channel"]
}`)
}

func (t *BuildACB) Execute(ctx context.Context, params json.RawMessage) (output.Response, error) {
	var p buildACBParams
	if err := json.Unmarshal(params, &p); err != nil {
		return output.Error(models.NewInvalidInput("invalid parameters: %v", err)), nil
	}
	bundle, err := t.assembler.Build(ctx, engine.BuildInput{
		TenantID:        p.TenantID,
		SessionID:       p.SessionID,
		AgentID:         p.AgentID,
		Channel:         models.Channel(p.Channel),
		Intent:          p.Intent,
		QueryText:       p.QueryText,
		MaxTokens:       p.MaxTokens,
		IncludeCapsules: p.IncludeCapsules,
		ProjectID:       p.ProjectID,
	})
	if err != nil {
		return output.Error(err), nil
	}
	return output.Success(bundle), nil
}
