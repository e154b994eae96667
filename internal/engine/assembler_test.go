package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmemory/memoryd/internal/app"
	"github.com/agentmemory/memoryd/internal/embedding"
	"github.com/agentmemory/memoryd/internal/models"
)

func TestBuildPopulatesBudgetAndSectionAccounting(t *testing.T) {
	db := setupTestDB(t)
	settings := app.Settings{}
	policy := NewPolicy(settings)
	capsules := NewCapsules(db, nil)
	retrieval := NewRetrieval(db, settings, policy, embedding.NoopProvider{}, nil)
	assembler := NewAssembler(db, settings, NewModeDetector(db), NewBudgetAllocator(), retrieval, capsules)

	out, err := assembler.Build(context.Background(), BuildInput{
		TenantID:  "tenant-a",
		SessionID: "session-1",
		AgentID:   "agent-1",
		Channel:   models.ChannelAgent,
		MaxTokens: 1000,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, out.ID)
	assert.Equal(t, 1000, out.BudgetTokens)
	assert.LessOrEqual(t, out.TokenUsedEst, out.BudgetTokens)
	require.Len(t, out.Sections, 6)

	var summed int
	for _, s := range out.Sections {
		summed += s.TokenEst
	}
	assert.Equal(t, summed, out.TokenUsedEst)
}

func TestBuildMaterializesCapsuleReferencedChunkText(t *testing.T) {
	db := setupTestDB(t)
	settings := app.Settings{}
	policy := NewPolicy(settings)
	recorder := NewRecorder(db, settings, policy, embedding.NoopProvider{}, nil, NewModeDetector(db))
	capsules := NewCapsules(db, nil)
	retrieval := NewRetrieval(db, settings, policy, embedding.NoopProvider{}, nil)
	assembler := NewAssembler(db, settings, NewModeDetector(db), NewBudgetAllocator(), retrieval, capsules)
	const tenantID = "tenant-a"

	chunkID := mustRecordMessage(t, db, recorder, tenantID, "the deploy key lives in vault")

	_, err := capsules.CreateCapsule(context.Background(), CreateCapsuleInput{
		TenantID:         tenantID,
		AuthorAgentID:    "author-1",
		AudienceAgentIDs: []string{"agent-1"},
		Items:            models.CapsuleItems{ChunkIDs: []string{chunkID}},
		TTLDays:          7,
	})
	require.NoError(t, err)

	out, err := assembler.Build(context.Background(), BuildInput{
		TenantID:        tenantID,
		SessionID:       "session-1",
		AgentID:         "agent-1",
		Channel:         models.ChannelAgent,
		MaxTokens:       1000,
		IncludeCapsules: true,
	})
	require.NoError(t, err)

	require.Len(t, out.Capsules, 1)
	assert.Contains(t, out.Capsules[0].Text, "the deploy key lives in vault")
}
