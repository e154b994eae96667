package tools

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/agentmemory/memoryd/internal/engine"
	"github.com/agentmemory/memoryd/internal/models"
	"github.com/agentmemory/memoryd/internal/output"
	"github.com/agentmemory/memoryd/internal/store"
)

// recordEventParams mirrors RecordEventInput's JSON shape (spec §4.C).
type recordEventParams struct {
	TenantID    string          `json:"tenant_id"`
	SessionID   string          `json:"session_id"`
	AgentID     string          `json:"agent_id"`
	Channel     string          `json:"channel"`
	Actor       models.Actor    `json:"actor"`
	Kind        string          `json:"kind"`
	Content     json.RawMessage `json:"content"`
	Tags        []string        `json:"tags,omitempty"`
	Refs        []string        `json:"refs,omitempty"`
	Scope       string          `json:"scope,omitempty"`
	SubjectType string          `json:"subject_type,omitempty"`
	SubjectID   string          `json:"subject_id,omitempty"`
	ProjectID   string          `json:"project_id,omitempty"`
	RequestID   string          `json:"request_id,omitempty"`
}

// RecordEvent wraps Recorder.RecordEvent (spec §6 "record_event").
type RecordEvent struct {
	recorder *engine.Recorder
}

func NewRecordEvent(recorder *engine.Recorder) *RecordEvent { return &RecordEvent{recorder: recorder} }

func (t *RecordEvent) Name() string { return "record_event" }
func (t *RecordEvent) Description() string {
	return "Append a new event to a tenant's memory log and derive any chunks, decisions, or task updates it implies."
}
func (t *RecordEvent) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "tenant_id": {"type": "string"},
    "session_id": {"type": "string"},
    "agent_id": {"type": "string"},
    "channel": {"type": "string", "enum": ["private", "public", "team", "agent"]},
    "actor": {"type": "object", "properties": {"type": {"type": "string"}, "id": {"type": "string"}}},
    "kind": {"type": "string", "enum": ["message", "tool_call", "tool_result", "decision", "task_update", "artifact", "handoff", "knowledge_note"]},
    "content": {"type": "object"},
    "tags": {"type": "array", "items": {"type": "string"}},
    "refs": {"type": "array", "items": {"type": "string"}},
    "scope": {"type": "string", "enum": ["session", "user", "project", "policy", "global"]},
    "subject_type": {"type": "string"},
    "subject_id": {"type": "string"},
    "project_id": {"type": "string"},
    "request_id": {"type": "string"}
  },
  "required": ["tenant_id", "session_id", "agent_id", "channel", "actor", "kind", "content"]
}`)
}

func (t *RecordEvent) Execute(ctx context.Context, params json.RawMessage) (output.Response, error) {
	var p recordEventParams
	if err := json.Unmarshal(params, &p); err != nil {
		return output.Error(models.NewInvalidInput("invalid parameters: %v", err)), nil
	}
	result, err := t.recorder.RecordEvent(ctx, engine.RecordEventInput{
		TenantID:    p.TenantID,
		SessionID:   p.SessionID,
		AgentID:     p.AgentID,
		Channel:     models.Channel(p.Channel),
		Actor:       p.Actor,
		Kind:        models.EventKind(p.Kind),
		Content:     p.Content,
		Tags:        p.Tags,
		Refs:        p.Refs,
		Scope:       models.Scope(p.Scope),
		SubjectType: p.SubjectType,
		SubjectID:   p.SubjectID,
		ProjectID:   p.ProjectID,
		RequestID:   p.RequestID,
	})
	if err != nil {
		return output.Error(err), nil
	}
	return output.Success(result), nil
}

// getEventParams is get_event's input.
type getEventParams struct {
	TenantID string `json:"tenant_id"`
	EventID  string `json:"event_id"`
}

// GetEvent wraps store.GetEvent (spec §6 "get_event").
type GetEvent struct {
	db *sql.DB
}

// NewGetEvent builds the get_event tool.
func NewGetEvent(db *sql.DB) *GetEvent { return &GetEvent{db: db} }

func (t *GetEvent) Name() string        { return "get_event" }
func (t *GetEvent) Description() string { return "Fetch a single event by id, tenant-scoped." }
func (t *GetEvent) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {"tenant_id": {"type": "string"}, "event_id": {"type": "string"}},
  "required": ["tenant_id", "event_id"]
}`)
}

func (t *GetEvent) Execute(ctx context.Context, params json.RawMessage) (output.Response, error) {
	var p getEventParams
	if err := json.Unmarshal(params, &p); err != nil {
		return output.Error(models.NewInvalidInput("invalid parameters: %v", err)), nil
	}
	if p.TenantID == "" || p.EventID == "" {
		return output.Error(models.NewInvalidInput("tenant_id and event_id are required")), nil
	}
	ev, err := store.GetEvent(ctx, t.db, p.TenantID, p.EventID)
	if err != nil {
		return output.Error(err), nil
	}
	return output.Success(ev), nil
}
