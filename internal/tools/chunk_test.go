package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentmemory/memoryd/internal/app"
	"github.com/agentmemory/memoryd/internal/embedding"
	"github.com/agentmemory/memoryd/internal/engine"
	"github.com/agentmemory/memoryd/internal/models"
	"github.com/agentmemory/memoryd/internal/store"
)

func TestGetChunkReturnsEffectiveView(t *testing.T) {
	db, err := store.InitDBWithPath(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	policy := engine.NewPolicy(app.Settings{})
	recorder := engine.NewRecorder(db, app.Settings{}, policy, embedding.NoopProvider{}, nil, engine.NewModeDetector(db))
	resolver := engine.NewResolver(db, policy)
	tool := NewGetChunk(resolver)

	content, err := json.Marshal(models.MessageContent{Text: "hello world"})
	require.NoError(t, err)
	res, err := recorder.RecordEvent(context.Background(), engine.RecordEventInput{
		TenantID:  "tenant-a",
		SessionID: "session-1",
		AgentID:   "agent-1",
		Channel:   models.ChannelAgent,
		Actor:     models.Actor{Type: models.ActorAgent, ID: "agent-1"},
		Kind:      models.EventKindMessage,
		Content:   content,
	})
	require.NoError(t, err)

	var chunkID string
	row := db.QueryRowContext(context.Background(), `SELECT id FROM chunks WHERE source_event_id = ?`, res.EventID)
	require.NoError(t, row.Scan(&chunkID))

	params, err := json.Marshal(map[string]string{"tenant_id": "tenant-a", "chunk_id": chunkID})
	require.NoError(t, err)

	resp, err := tool.Execute(context.Background(), params)
	require.NoError(t, err)
	require.True(t, resp.Success)
}

func TestGetChunkUnknownIDReturnsErrorEnvelope(t *testing.T) {
	db, err := store.InitDBWithPath(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	policy := engine.NewPolicy(app.Settings{})
	resolver := engine.NewResolver(db, policy)
	tool := NewGetChunk(resolver)

	params, err := json.Marshal(map[string]string{"tenant_id": "tenant-a", "chunk_id": "does-not-exist"})
	require.NoError(t, err)

	resp, err := tool.Execute(context.Background(), params)
	require.NoError(t, err)
	require.False(t, resp.Success)
}

func TestGetChunkInvalidParamsReturnsErrorEnvelope(t *testing.T) {
	db, err := store.InitDBWithPath(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	policy := engine.NewPolicy(app.Settings{})
	resolver := engine.NewResolver(db, policy)
	tool := NewGetChunk(resolver)

	resp, err := tool.Execute(context.Background(), json.RawMessage(`not-json`))
	require.NoError(t, err)
	require.False(t, resp.Success)
	require.Equal(t, "InvalidInput", resp.ErrorCode)
}
