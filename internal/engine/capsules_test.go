package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmemory/memoryd/internal/models"
)

func TestCreateCapsuleRequiresAudience(t *testing.T) {
	db := setupTestDB(t)
	capsules := NewCapsules(db, nil)

	_, err := capsules.CreateCapsule(context.Background(), CreateCapsuleInput{
		TenantID:      "tenant-a",
		AuthorAgentID: "agent-1",
	})
	require.Error(t, err)
	var kerr *models.KindError
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, models.KindInvalidInput, kerr.Kind)
}

func TestCapsuleLifecycleVisibilityAndRevocation(t *testing.T) {
	db := setupTestDB(t)
	capsules := NewCapsules(db, nil)
	ctx := context.Background()
	const tenantID = "tenant-a"

	c, err := capsules.CreateCapsule(ctx, CreateCapsuleInput{
		TenantID:         tenantID,
		AuthorAgentID:    "author-1",
		AudienceAgentIDs: []string{"agent-1", "agent-2"},
		TTLDays:          7,
	})
	require.NoError(t, err)
	assert.Equal(t, models.CapsuleStatusActive, c.Status)

	// Visible to audience member.
	got, err := capsules.GetCapsule(ctx, tenantID, c.ID, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)

	// Not visible to a non-audience agent — reported as NotFound, not
	// Forbidden, so outsiders can't distinguish a hidden capsule from one
	// that never existed.
	_, err = capsules.GetCapsule(ctx, tenantID, c.ID, "agent-3")
	require.Error(t, err)
	var kerr *models.KindError
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, models.KindNotFound, kerr.Kind)

	require.NoError(t, capsules.RevokeCapsule(ctx, tenantID, c.ID))

	// Revoked capsules are no longer visible to anyone, including the
	// original audience.
	_, err = capsules.GetCapsule(ctx, tenantID, c.ID, "agent-1")
	require.Error(t, err)

	// Revoking twice is idempotent.
	require.NoError(t, capsules.RevokeCapsule(ctx, tenantID, c.ID))
}

func TestListCapsulesOnlyReturnsVisibleOnes(t *testing.T) {
	db := setupTestDB(t)
	capsules := NewCapsules(db, nil)
	ctx := context.Background()
	const tenantID = "tenant-a"

	visible, err := capsules.CreateCapsule(ctx, CreateCapsuleInput{
		TenantID:         tenantID,
		AuthorAgentID:    "author-1",
		AudienceAgentIDs: []string{"agent-1"},
		TTLDays:          7,
	})
	require.NoError(t, err)

	_, err = capsules.CreateCapsule(ctx, CreateCapsuleInput{
		TenantID:         tenantID,
		AuthorAgentID:    "author-1",
		AudienceAgentIDs: []string{"agent-2"},
		TTLDays:          7,
	})
	require.NoError(t, err)

	list, err := capsules.ListCapsules(ctx, tenantID, "agent-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, visible.ID, list[0].ID)
}
