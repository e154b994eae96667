package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentmemory/memoryd/internal/models"
)

// TenantScopeClause filters a query to a single tenant. Every store query
// must apply it; it exists as a named constant so call sites read the same
// way the project/global scope clauses do in record_event, search_chunks,
// and friends.
const TenantScopeClause = "(tenant_id = ?)"

// MaxEventTags bounds the tags array length stored per event.
const MaxEventTags = 32

// ValidateEvent enforces the structural constraints on an Event before it
// is appended (spec §4.A "validates payload, enforces tag/size limits").
func ValidateEvent(e models.Event) error {
	if e.TenantID == "" {
		return models.NewInvalidInput("tenant_id is required")
	}
	if e.SessionID == "" {
		return models.NewInvalidInput("session_id is required")
	}
	if e.Channel == "" {
		return models.NewInvalidInput("channel is required")
	}
	if e.Actor.ID == "" || e.Actor.Type == "" {
		return models.NewInvalidInput("actor.type and actor.id are required")
	}
	if e.Kind == "" {
		return models.NewInvalidInput("kind is required")
	}
	if e.Sensitivity == "" {
		return models.NewInvalidInput("sensitivity is required")
	}
	if e.Scope == "" {
		return models.NewInvalidInput("scope is required")
	}
	if len(e.Content) == 0 || !json.Valid(e.Content) {
		return models.NewInvalidInput("content must be non-empty valid JSON")
	}
	if len(e.Tags) > MaxEventTags {
		return models.NewInvalidInput("tags exceeds max length (%d)", MaxEventTags)
	}
	return nil
}

// InsertEventTx inserts an already-validated event inside an existing
// transaction and registers it in the graph node index. Events are
// append-only: there is no UpdateEvent or DeleteEvent (spec §8 invariant 2).
func InsertEventTx(ctx context.Context, tx *sql.Tx, e models.Event) error {
	if err := ValidateEvent(e); err != nil {
		return err
	}

	tagsJSON, err := json.Marshal(e.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	refsJSON, err := json.Marshal(e.Refs)
	if err != nil {
		return fmt.Errorf("marshal refs: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (
			id, tenant_id, session_id, channel, actor_type, actor_id, kind,
			sensitivity, tags, content, refs, scope, subject_type, subject_id,
			project_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID, e.TenantID, e.SessionID, string(e.Channel), string(e.Actor.Type), e.Actor.ID,
		string(e.Kind), string(e.Sensitivity), string(tagsJSON), string(e.Content),
		string(refsJSON), string(e.Scope), e.SubjectType, e.SubjectID, e.ProjectID,
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	return registerNodeTx(ctx, tx, e.TenantID, e.ID, "event", e.CreatedAt)
}

// GetEvent fetches a single event by id, scoped to tenant. Direct get is
// never filtered by memory edits — edits apply only to chunks (spec §4.D
// "get_chunk still returns the retracted chunk; direct get is not
// retrieval").
func GetEvent(ctx context.Context, db *sql.DB, tenantID, id string) (models.Event, error) {
	var e models.Event
	err := RetryWithBackoff(ctx, func() error {
		row := db.QueryRowContext(ctx, `
			SELECT id, tenant_id, session_id, channel, actor_type, actor_id, kind,
			       sensitivity, tags, content, refs, scope, subject_type, subject_id,
			       project_id, created_at
			FROM events WHERE `+TenantScopeClause+` AND id = ?
		`, tenantID, id)
		var err error
		e, err = scanEvent(row)
		return err
	})
	if err != nil {
		if err == sql.ErrNoRows {
			return models.Event{}, NotFoundErr("event", id)
		}
		return models.Event{}, err
	}
	return e, nil
}

// ListEventsBySession returns events for a session in chronological order,
// newest-last, capped at limit (0 means no cap).
func ListEventsBySession(ctx context.Context, db *sql.DB, tenantID, sessionID string, since time.Time, limit int) ([]models.Event, error) {
	query := `
		SELECT id, tenant_id, session_id, channel, actor_type, actor_id, kind,
		       sensitivity, tags, content, refs, scope, subject_type, subject_id,
		       project_id, created_at
		FROM events
		WHERE ` + TenantScopeClause + ` AND session_id = ? AND created_at >= ?
		ORDER BY created_at ASC
	`
	args := []any{tenantID, sessionID, since.UTC().Format(time.RFC3339Nano)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var out []models.Event
	err := RetryWithBackoff(ctx, func() error {
		out = nil
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			e, err := scanEvent(rows)
			if err != nil {
				return err
			}
			out = append(out, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list events by session: %w", err)
	}
	return out, nil
}

// ListEventsNearTime returns a tenant's events within window of center,
// ordered chronologically, for get_chunk_timeline (spec §6: "events
// temporally near a chunk").
func ListEventsNearTime(ctx context.Context, db *sql.DB, tenantID string, center time.Time, window time.Duration, limit int) ([]models.Event, error) {
	from := center.Add(-window).UTC().Format(time.RFC3339Nano)
	to := center.Add(window).UTC().Format(time.RFC3339Nano)
	query := `
		SELECT id, tenant_id, session_id, channel, actor_type, actor_id, kind,
		       sensitivity, tags, content, refs, scope, subject_type, subject_id,
		       project_id, created_at
		FROM events
		WHERE ` + TenantScopeClause + ` AND created_at BETWEEN ? AND ?
		ORDER BY created_at ASC
	`
	args := []any{tenantID, from, to}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var out []models.Event
	err := RetryWithBackoff(ctx, func() error {
		out = nil
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			e, err := scanEvent(rows)
			if err != nil {
				return err
			}
			out = append(out, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list events near time: %w", err)
	}
	return out, nil
}

// ListTenantIDs returns every distinct tenant with at least one event, for
// the serve loop to fan its periodic jobs (consolidation) out across
// tenants without a separate tenant registry table.
func ListTenantIDs(ctx context.Context, db *sql.DB) ([]string, error) {
	var out []string
	err := RetryWithBackoff(ctx, func() error {
		out = nil
		rows, err := db.QueryContext(ctx, `SELECT DISTINCT tenant_id FROM events`)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var tenantID string
			if err := rows.Scan(&tenantID); err != nil {
				return err
			}
			out = append(out, tenantID)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list tenant ids: %w", err)
	}
	return out, nil
}

// ListEventsBySubject returns events tagged with a subject, newest-first,
// used by the Mode Detector and the Effective-View Resolver's recency scans.
func ListEventsBySubject(ctx context.Context, db *sql.DB, tenantID, subjectType, subjectID string, limit int) ([]models.Event, error) {
	query := `
		SELECT id, tenant_id, session_id, channel, actor_type, actor_id, kind,
		       sensitivity, tags, content, refs, scope, subject_type, subject_id,
		       project_id, created_at
		FROM events
		WHERE ` + TenantScopeClause + ` AND subject_type = ? AND subject_id = ?
		ORDER BY created_at DESC
	`
	args := []any{tenantID, subjectType, subjectID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var out []models.Event
	err := RetryWithBackoff(ctx, func() error {
		out = nil
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			e, err := scanEvent(rows)
			if err != nil {
				return err
			}
			out = append(out, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list events by subject: %w", err)
	}
	return out, nil
}

// ListRecentEventsBySession returns the last limit events of a session in
// chronological order (oldest-first), used by the ACB Assembler's recent
// window fetch (spec §4.I step 6 "last N events of session, chronological").
// Unlike ListEventsBySession (which bounds by a `since` cutoff), this bounds
// by count: it selects the newest `limit` rows, then reverses them back to
// chronological order.
func ListRecentEventsBySession(ctx context.Context, db *sql.DB, tenantID, sessionID string, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = 50
	}

	var out []models.Event
	err := RetryWithBackoff(ctx, func() error {
		out = nil
		rows, err := db.QueryContext(ctx, `
			SELECT id, tenant_id, session_id, channel, actor_type, actor_id, kind,
			       sensitivity, tags, content, refs, scope, subject_type, subject_id,
			       project_id, created_at
			FROM events
			WHERE `+TenantScopeClause+` AND session_id = ?
			ORDER BY created_at DESC
			LIMIT ?
		`, tenantID, sessionID, limit)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			e, err := scanEvent(rows)
			if err != nil {
				return err
			}
			out = append(out, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list recent events by session: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (models.Event, error) {
	var (
		e                    models.Event
		channel, actorType   string
		kind, sensitivity    string
		scope                string
		tagsJSON, refsJSON   string
		content              string
		createdAt            string
	)
	if err := row.Scan(
		&e.ID, &e.TenantID, &e.SessionID, &channel, &actorType, &e.Actor.ID, &kind,
		&sensitivity, &tagsJSON, &content, &refsJSON, &scope, &e.SubjectType, &e.SubjectID,
		&e.ProjectID, &createdAt,
	); err != nil {
		return models.Event{}, err
	}

	e.Channel = models.Channel(channel)
	e.Actor.Type = models.ActorType(actorType)
	e.Kind = models.EventKind(kind)
	e.Sensitivity = models.Sensitivity(sensitivity)
	e.Scope = models.Scope(scope)
	e.Content = json.RawMessage(content)

	if err := json.Unmarshal([]byte(tagsJSON), &e.Tags); err != nil {
		return models.Event{}, fmt.Errorf("unmarshal tags: %w", err)
	}
	if err := json.Unmarshal([]byte(refsJSON), &e.Refs); err != nil {
		return models.Event{}, fmt.Errorf("unmarshal refs: %w", err)
	}

	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return models.Event{}, fmt.Errorf("parse created_at: %w", err)
	}
	e.CreatedAt = ts

	return e, nil
}
