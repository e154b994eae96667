package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentmemory/memoryd/internal/models"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := InitDBWithPath(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("failed to initialize test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func mustInsertEvent(t *testing.T, db *sql.DB, tenantID string) models.Event {
	t.Helper()
	e := models.Event{
		ID:          NewID(models.IDKindEvent),
		TenantID:    tenantID,
		SessionID:   "session-1",
		Channel:     models.ChannelAgent,
		Actor:       models.Actor{Type: models.ActorAgent, ID: "agent-1"},
		Kind:        models.EventKindMessage,
		Sensitivity: models.SensitivityNone,
		Scope:       models.ScopeSession,
		Content:     json.RawMessage(`{"text":"hi"}`),
		CreatedAt:   time.Now().UTC(),
	}
	err := Transact(context.Background(), db, func(tx *sql.Tx) error {
		return InsertEventTx(context.Background(), tx, e)
	})
	require.NoError(t, err)
	return e
}

func TestValidateEventRequiresCoreFields(t *testing.T) {
	cases := []struct {
		name string
		fn   func(e *models.Event)
	}{
		{"tenant", func(e *models.Event) { e.TenantID = "" }},
		{"session", func(e *models.Event) { e.SessionID = "" }},
		{"channel", func(e *models.Event) { e.Channel = "" }},
		{"actor", func(e *models.Event) { e.Actor = models.Actor{} }},
		{"kind", func(e *models.Event) { e.Kind = "" }},
		{"sensitivity", func(e *models.Event) { e.Sensitivity = "" }},
		{"scope", func(e *models.Event) { e.Scope = "" }},
		{"content", func(e *models.Event) { e.Content = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := models.Event{
				TenantID:    "t1",
				SessionID:   "s1",
				Channel:     models.ChannelAgent,
				Actor:       models.Actor{Type: models.ActorAgent, ID: "a1"},
				Kind:        models.EventKindMessage,
				Sensitivity: models.SensitivityNone,
				Scope:       models.ScopeSession,
				Content:     json.RawMessage(`{}`),
			}
			tc.fn(&e)
			require.Error(t, ValidateEvent(e))
		})
	}
}

func TestValidateEventRejectsTooManyTags(t *testing.T) {
	e := models.Event{
		TenantID:    "t1",
		SessionID:   "s1",
		Channel:     models.ChannelAgent,
		Actor:       models.Actor{Type: models.ActorAgent, ID: "a1"},
		Kind:        models.EventKindMessage,
		Sensitivity: models.SensitivityNone,
		Scope:       models.ScopeSession,
		Content:     json.RawMessage(`{}`),
	}
	for i := 0; i <= MaxEventTags; i++ {
		e.Tags = append(e.Tags, "tag")
	}
	require.Error(t, ValidateEvent(e))
}

func TestListTenantIDsReturnsDistinctTenants(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	mustInsertEvent(t, db, "tenant-a")
	mustInsertEvent(t, db, "tenant-a")
	mustInsertEvent(t, db, "tenant-b")

	ids, err := ListTenantIDs(ctx, db)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"tenant-a", "tenant-b"}, ids)
}

func TestListTenantIDsEmptyWhenNoEvents(t *testing.T) {
	db := setupTestDB(t)

	ids, err := ListTenantIDs(context.Background(), db)
	require.NoError(t, err)
	require.Empty(t, ids)
}
