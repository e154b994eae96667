package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentmemory/memoryd/internal/models"
)

func TestCreateEditStampsCreatedAt(t *testing.T) {
	db := setupTestDB(t)
	const tenantID = "tenant-a"

	e := mustInsertEvent(t, db, tenantID)
	text := "amended text"

	before := time.Now().UTC()
	edit, err := CreateEdit(context.Background(), db, models.MemoryEdit{
		ID:         NewID(models.IDKindEdit),
		TenantID:   tenantID,
		TargetType: models.EditTargetEvent,
		TargetID:   e.ID,
		Op:         models.EditOpAmend,
		Patch:      models.EditPatch{Text: &text},
		Reason:     "typo fix",
		ProposedBy: models.ProposedByAgent,
	}, false)
	require.NoError(t, err)

	require.False(t, edit.CreatedAt.IsZero())
	require.WithinDuration(t, before, edit.CreatedAt, 2*time.Second)

	got, err := GetEdit(context.Background(), db, tenantID, edit.ID)
	require.NoError(t, err)
	require.Equal(t, edit.CreatedAt.Unix(), got.CreatedAt.Unix())
}

func TestListEditsOrdersNewestFirstByCreatedAt(t *testing.T) {
	db := setupTestDB(t)
	const tenantID = "tenant-a"
	e := mustInsertEvent(t, db, tenantID)
	text := "v2"

	first, err := CreateEdit(context.Background(), db, models.MemoryEdit{
		ID:         NewID(models.IDKindEdit),
		TenantID:   tenantID,
		TargetType: models.EditTargetEvent,
		TargetID:   e.ID,
		Op:         models.EditOpAmend,
		Patch:      models.EditPatch{Text: &text},
		Reason:     "first pass",
		ProposedBy: models.ProposedByAgent,
	}, false)
	require.NoError(t, err)

	second, err := CreateEdit(context.Background(), db, models.MemoryEdit{
		ID:         NewID(models.IDKindEdit),
		TenantID:   tenantID,
		TargetType: models.EditTargetEvent,
		TargetID:   e.ID,
		Op:         models.EditOpAmend,
		Patch:      models.EditPatch{Text: &text},
		Reason:     "second pass",
		ProposedBy: models.ProposedByAgent,
	}, false)
	require.NoError(t, err)
	require.False(t, second.CreatedAt.Before(first.CreatedAt))

	list, err := ListEdits(context.Background(), db, tenantID, models.EditTargetEvent, e.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, second.ID, list[0].ID)
	require.Equal(t, first.ID, list[1].ID)
}
