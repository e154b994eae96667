package tools

import (
	"context"
	"encoding/json"

	"github.com/agentmemory/memoryd/internal/engine"
	"github.com/agentmemory/memoryd/internal/models"
	"github.com/agentmemory/memoryd/internal/output"
)

type getChunkParams struct {
	TenantID string `json:"tenant_id"`
	ChunkID  string `json:"chunk_id"`
}

// GetChunk wraps Resolver.GetChunk (spec §6 "get_chunk"). Unlike
// search_chunks, a direct get_chunk returns a retracted or quarantined
// chunk's effective view — only retrieval hides them (spec §3 scenario
// "direct get is not retrieval").
type GetChunk struct {
	resolver *engine.Resolver
}

func NewGetChunk(resolver *engine.Resolver) *GetChunk { return &GetChunk{resolver: resolver} }

func (t *GetChunk) Name() string { return "get_chunk" }
func (t *GetChunk) Description() string {
	return "Fetch a single chunk's effective view by id, including retracted or quarantined chunks."
}
func (t *GetChunk) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {"tenant_id": {"type": "string"}, "chunk_id": {"type": "string"}},
  "required": ["tenant_id", "chunk_id"]
}`)
}

func (t *GetChunk) Execute(ctx context.Context, params json.RawMessage) (output.Response, error) {
	var p getChunkParams
	if err := json.Unmarshal(params, &p); err != nil {
		return output.Error(models.NewInvalidInput("invalid parameters: %v", err)), nil
	}
	ec, err := t.resolver.GetChunk(ctx, p.TenantID, p.ChunkID)
	if err != nil {
		return output.Error(err), nil
	}
	return output.Success(ec), nil
}
