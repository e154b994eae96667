package tools

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/agentmemory/memoryd/internal/engine"
	"github.com/agentmemory/memoryd/internal/models"
	"github.com/agentmemory/memoryd/internal/output"
	"github.com/agentmemory/memoryd/internal/store"
)

type searchChunksParams struct {
	TenantID      string `json:"tenant_id"`
	QueryText     string `json:"query_text"`
	CallerChannel string `json:"caller_channel"`
	Scope         string `json:"scope,omitempty"`
	SubjectType   string `json:"subject_type,omitempty"`
	SubjectID     string `json:"subject_id,omitempty"`
	ProjectID     string `json:"project_id,omitempty"`
	Limit         int    `json:"limit,omitempty"`
}

// SearchChunks wraps Retrieval.Search (spec §6 "search_chunks").
type SearchChunks struct {
	retrieval *engine.Retrieval
}

func NewSearchChunks(retrieval *engine.Retrieval) *SearchChunks { return &SearchChunks{retrieval: retrieval} }

func (t *SearchChunks) Name() string { return "search_chunks" }
func (t *SearchChunks) Description() string {
	return "Search effective chunks by lexical (and, when configured, vector) relevance, filtered by channel/scope/subject."
}
func (t *SearchChunks) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "tenant_id": {"type": "string"},
    "query_text": {"type": "string"},
    "caller_channel": {"type": "string"},
    "scope": {"type": "string"},
    "subject_type": {"type": "string"},
    "subject_id": {"type": "string"},
    "project_id": {"type": "string"},
    "limit": {"type": "integer"}
  },
  "required": ["tenant_id", "query_text", "caller_channel"]
}`)
}

func (t *SearchChunks) Execute(ctx context.Context, params json.RawMessage) (output.Response, error) {
	var p searchChunksParams
	if err := json.Unmarshal(params, &p); err != nil {
		return output.Error(models.NewInvalidInput("invalid parameters: %v", err)), nil
	}
	results, err := t.retrieval.Search(ctx, engine.SearchInput{
		TenantID:      p.TenantID,
		QueryText:     p.QueryText,
		CallerChannel: models.Channel(p.CallerChannel),
		Scope:         models.Scope(p.Scope),
		SubjectType:   p.SubjectType,
		SubjectID:     p.SubjectID,
		ProjectID:     p.ProjectID,
		Limit:         p.Limit,
	})
	if err != nil {
		return output.Error(err), nil
	}
	return output.Success(results), nil
}

type chunkTimelineParams struct {
	TenantID     string `json:"tenant_id"`
	ChunkID      string `json:"chunk_id"`
	WindowSeconds int   `json:"window_seconds,omitempty"`
}

const defaultTimelineWindowSeconds = 300

// GetChunkTimeline wraps store.ListEventsNearTime (spec §6
// "get_chunk_timeline").
type GetChunkTimeline struct {
	db *sql.DB
}

func NewGetChunkTimeline(db *sql.DB) *GetChunkTimeline { return &GetChunkTimeline{db: db} }

func (t *GetChunkTimeline) Name() string { return "get_chunk_timeline" }
func (t *GetChunkTimeline) Description() string {
	return "List events temporally near a chunk's source event, within a window of seconds."
}
func (t *GetChunkTimeline) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "tenant_id": {"type": "string"},
    "chunk_id": {"type": "string"},
    "window_seconds": {"type": "integer"}
  },
  "required": ["tenant_id", "chunk_id"]
}`)
}

func (t *GetChunkTimeline) Execute(ctx context.Context, params json.RawMessage) (output.Response, error) {
	var p chunkTimelineParams
	if err := json.Unmarshal(params, &p); err != nil {
		return output.Error(models.NewInvalidInput("invalid parameters: %v", err)), nil
	}
	if p.TenantID == "" || p.ChunkID == "" {
		return output.Error(models.NewInvalidInput("tenant_id and chunk_id are required")), nil
	}
	chunk, err := store.GetEffectiveChunk(ctx, t.db, p.TenantID, p.ChunkID)
	if err != nil {
		return output.Error(err), nil
	}
	windowSeconds := p.WindowSeconds
	if windowSeconds <= 0 {
		windowSeconds = defaultTimelineWindowSeconds
	}
	events, err := store.ListEventsNearTime(ctx, t.db, p.TenantID, chunk.CreatedAt, time.Duration(windowSeconds)*time.Second, 0)
	if err != nil {
		return output.Error(err), nil
	}
	return output.Success(events), nil
}

type queryDecisionsParams struct {
	TenantID   string `json:"tenant_id"`
	ProjectID  string `json:"project_id,omitempty"`
	ActiveOnly bool   `json:"active_only,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// QueryDecisions wraps store.QueryDecisions (spec §6 "query_decisions").
type QueryDecisions struct {
	db *sql.DB
}

func NewQueryDecisions(db *sql.DB) *QueryDecisions { return &QueryDecisions{db: db} }

func (t *QueryDecisions) Name() string        { return "query_decisions" }
func (t *QueryDecisions) Description() string { return "List a tenant's decisions, optionally scoped to a project and filtered to active-only." }
func (t *QueryDecisions) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "tenant_id": {"type": "string"},
    "project_id": {"type": "string"},
    "active_only": {"type": "boolean"},
    "limit": {"type": "integer"}
  },
  "required": ["tenant_id"]
}`)
}

func (t *QueryDecisions) Execute(ctx context.Context, params json.RawMessage) (output.Response, error) {
	var p queryDecisionsParams
	if err := json.Unmarshal(params, &p); err != nil {
		return output.Error(models.NewInvalidInput("invalid parameters: %v", err)), nil
	}
	decisions, err := store.QueryDecisions(ctx, t.db, p.TenantID, p.ProjectID, p.ActiveOnly, p.Limit)
	if err != nil {
		return output.Error(err), nil
	}
	return output.Success(decisions), nil
}
