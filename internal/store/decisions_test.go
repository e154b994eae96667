package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentmemory/memoryd/internal/models"
)

func mustInsertDecision(t *testing.T, db *sql.DB, d models.Decision) {
	t.Helper()
	if d.ID == "" {
		d.ID = NewID(models.IDKindDecision)
	}
	err := Transact(context.Background(), db, func(tx *sql.Tx) error {
		return InsertDecisionTx(context.Background(), tx, d)
	})
	require.NoError(t, err)
}

func TestSupersedingDecisionCarriesPredecessorRefsForward(t *testing.T) {
	db := setupTestDB(t)
	const tenantID = "tenant-a"

	predecessor := models.Decision{
		TenantID: tenantID,
		Scope:    models.ScopeProject,
		Text:     "use postgres",
		Refs:     []string{"evt-1", "evt-2"},
	}
	mustInsertDecision(t, db, predecessor)

	successor := models.Decision{
		TenantID:   tenantID,
		Scope:      models.ScopeProject,
		Text:       "use sqlite instead",
		Refs:       []string{"evt-3"},
		Supersedes: predecessor.ID,
	}
	mustInsertDecision(t, db, successor)

	got, err := GetDecision(context.Background(), db, tenantID, successor.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"evt-1", "evt-2", "evt-3"}, got.Refs)

	predecessorAfter, err := GetDecision(context.Background(), db, tenantID, predecessor.ID)
	require.NoError(t, err)
	require.Equal(t, models.DecisionStatusSuperseded, predecessorAfter.Status)
}

func TestSupersedingDecisionDoesNotDuplicateSharedRefs(t *testing.T) {
	db := setupTestDB(t)
	const tenantID = "tenant-a"

	predecessor := models.Decision{
		TenantID: tenantID,
		Scope:    models.ScopeProject,
		Text:     "use postgres",
		Refs:     []string{"evt-1"},
	}
	mustInsertDecision(t, db, predecessor)

	successor := models.Decision{
		TenantID:   tenantID,
		Scope:      models.ScopeProject,
		Text:       "use sqlite instead",
		Refs:       []string{"evt-1"},
		Supersedes: predecessor.ID,
	}
	mustInsertDecision(t, db, successor)

	got, err := GetDecision(context.Background(), db, tenantID, successor.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"evt-1"}, got.Refs)
}
