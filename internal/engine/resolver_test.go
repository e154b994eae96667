package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentmemory/memoryd/internal/app"
	"github.com/agentmemory/memoryd/internal/embedding"
	"github.com/agentmemory/memoryd/internal/models"
)

// mustRecordMessage records a kind=message event and returns the chunk id
// derived from it.
func mustRecordMessage(t *testing.T, db *sql.DB, recorder *Recorder, tenantID, text string) string {
	t.Helper()
	content, err := json.Marshal(models.MessageContent{Text: text})
	require.NoError(t, err)

	res, err := recorder.RecordEvent(context.Background(), RecordEventInput{
		TenantID:  tenantID,
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
	return chunkID
}

func TestResolverGetChunkCachesAndSurvivesRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	policy := NewPolicy(app.Settings{})
	recorder := NewRecorder(db, app.Settings{}, policy, embedding.NoopProvider{}, nil, NewModeDetector(db))
	resolver := NewResolver(db, policy)
	const tenantID = "tenant-a"

	chunkID := mustRecordMessage(t, db, recorder, tenantID, "the deploy must never run on Fridays")

	first, err := resolver.GetChunk(context.Background(), tenantID, chunkID)
	require.NoError(t, err)
	require.Equal(t, "the deploy must never run on Fridays", first.Text)

	// Second call should be served from cache and return the same data.
	second, err := resolver.GetChunk(context.Background(), tenantID, chunkID)
	require.NoError(t, err)
	require.Equal(t, first.Text, second.Text)
}

func TestSurgeryApproveEditInvalidatesResolverCache(t *testing.T) {
	db := setupTestDB(t)
	policy := NewPolicy(app.Settings{})
	recorder := NewRecorder(db, app.Settings{}, policy, embedding.NoopProvider{}, nil, NewModeDetector(db))
	resolver := NewResolver(db, policy)
	surgery := NewSurgery(db, nil, resolver)
	const tenantID = "tenant-a"

	chunkID := mustRecordMessage(t, db, recorder, tenantID, "original text")

	// Warm the cache.
	cached, err := resolver.GetChunk(context.Background(), tenantID, chunkID)
	require.NoError(t, err)
	require.Equal(t, "original text", cached.Text)

	newText := "amended text"
	edit, err := surgery.ProposeEdit(context.Background(), ProposeEditInput{
		TenantID:   tenantID,
		TargetType: models.EditTargetChunk,
		TargetID:   chunkID,
		Op:         models.EditOpAmend,
		Patch:      models.EditPatch{Text: &newText},
		Reason:     "correcting a typo",
		ProposedBy: models.ProposedByAgent,
	})
	require.NoError(t, err)

	_, err = surgery.ApproveEdit(context.Background(), tenantID, edit.ID, "agent-1")
	require.NoError(t, err)

	// Without invalidation, this would still return the stale cached text
	// until chunkCacheTTL elapsed.
	after, err := resolver.GetChunk(context.Background(), tenantID, chunkID)
	require.NoError(t, err)
	require.Equal(t, newText, after.Text)
}
