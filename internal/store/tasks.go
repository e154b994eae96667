package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentmemory/memoryd/internal/models"
)

// CreateTask inserts a new task at version 1 and registers it as a graph
// node so parent_of/depends_on edges can attach to it.
func CreateTask(ctx context.Context, db *sql.DB, t models.Task) (models.Task, error) {
	if t.TenantID == "" {
		return models.Task{}, models.NewInvalidInput("tenant_id is required")
	}
	if t.Title == "" {
		return models.Task{}, models.NewInvalidInput("task title is required")
	}
	if t.Status == "" {
		t.Status = models.TaskStatusBacklog
	}
	t.Version = 1

	refsJSON, err := json.Marshal(t.Refs)
	if err != nil {
		return models.Task{}, fmt.Errorf("marshal refs: %w", err)
	}
	blockedByJSON, err := json.Marshal(t.BlockedBy)
	if err != nil {
		return models.Task{}, fmt.Errorf("marshal blocked_by: %w", err)
	}

	err = Transact(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tasks (
				id, tenant_id, status, title, details, refs, priority, blocked_by,
				start_date, due_date, estimate, progress, assignee, project_id,
				version, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			t.ID, t.TenantID, string(t.Status), t.Title, t.Details, string(refsJSON),
			t.Priority, string(blockedByJSON), nullableTime(t.StartDate), nullableTime(t.DueDate),
			t.Estimate, t.Progress, t.Assignee, t.ProjectID, t.Version,
			formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		return registerNodeTx(ctx, tx, t.TenantID, t.ID, "task", t.CreatedAt)
	})
	if err != nil {
		return models.Task{}, err
	}
	return t, nil
}

// GetTask fetches a single task by id, scoped to tenant.
func GetTask(ctx context.Context, db *sql.DB, tenantID, id string) (models.Task, error) {
	var out models.Task
	err := RetryWithBackoff(ctx, func() error {
		var txErr error
		out, txErr = scanTask(db.QueryRowContext(ctx, taskSelectQuery+` WHERE tenant_id = ? AND id = ?`, tenantID, id))
		return txErr
	})
	if err != nil {
		if err == sql.ErrNoRows {
			return models.Task{}, NotFoundErr("task", id)
		}
		return models.Task{}, err
	}
	return out, nil
}

// GetTasks batch-fetches tasks by id.
func GetTasks(ctx context.Context, db *sql.DB, tenantID string, ids []string) ([]models.Task, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, tenantID)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	query := taskSelectQuery + ` WHERE tenant_id = ? AND id IN (` + joinPlaceholders(placeholders) + `)`

	var out []models.Task
	err := RetryWithBackoff(ctx, func() error {
		out = nil
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			t, err := scanTask(rows)
			if err != nil {
				return err
			}
			out = append(out, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("get tasks: %w", err)
	}
	return out, nil
}

// ListTasks lists tasks for a project (or tenant-wide when projectID is
// empty), optionally filtered to a status.
func ListTasks(ctx context.Context, db *sql.DB, tenantID, projectID string, status models.TaskStatus) ([]models.Task, error) {
	query := taskSelectQuery + ` WHERE tenant_id = ?`
	args := []any{tenantID}
	if projectID != "" {
		query += ` AND project_id = ?`
		args = append(args, projectID)
	}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY priority DESC, created_at ASC`

	var out []models.Task
	err := RetryWithBackoff(ctx, func() error {
		out = nil
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			t, err := scanTask(rows)
			if err != nil {
				return err
			}
			out = append(out, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return out, nil
}

// TaskPatch carries the optional fields UpdateTask may change; nil means
// "leave unchanged".
type TaskPatch struct {
	Status    *models.TaskStatus
	Title     *string
	Details   *string
	Priority  *int
	Assignee  *string
	Progress  *float64
	DueDate   **time.Time
	BlockedBy *[]string
}

// UpdateTask applies patch via optimistic concurrency: the caller supplies
// the version it last observed, and the update only succeeds if that
// version still matches (spec §4 "version conflict" / teacher's task CAS
// pattern in task_deps.go).
func UpdateTask(ctx context.Context, db *sql.DB, tenantID, taskID string, expectedVersion int, patch TaskPatch) (models.Task, error) {
	var out models.Task
	err := Transact(ctx, db, func(tx *sql.Tx) error {
		t, err := scanTask(tx.QueryRowContext(ctx, taskSelectQuery+` WHERE tenant_id = ? AND id = ?`, tenantID, taskID))
		if err == sql.ErrNoRows {
			return NotFoundErr("task", taskID)
		}
		if err != nil {
			return err
		}
		if t.Version != expectedVersion {
			return &VersionConflictError{Entity: "task", ID: taskID, Version: t.Version}
		}

		if patch.Status != nil {
			t.Status = *patch.Status
		}
		if patch.Title != nil {
			t.Title = *patch.Title
		}
		if patch.Details != nil {
			t.Details = *patch.Details
		}
		if patch.Priority != nil {
			t.Priority = *patch.Priority
		}
		if patch.Assignee != nil {
			t.Assignee = *patch.Assignee
		}
		if patch.Progress != nil {
			t.Progress = *patch.Progress
		}
		if patch.DueDate != nil {
			t.DueDate = *patch.DueDate
		}
		if patch.BlockedBy != nil {
			t.BlockedBy = *patch.BlockedBy
		}
		t.Version++
		t.UpdatedAt = time.Now().UTC()

		blockedByJSON, err := json.Marshal(t.BlockedBy)
		if err != nil {
			return fmt.Errorf("marshal blocked_by: %w", err)
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE tasks SET
				status = ?, title = ?, details = ?, priority = ?, blocked_by = ?,
				due_date = ?, progress = ?, assignee = ?, version = ?, updated_at = ?
			WHERE tenant_id = ? AND id = ? AND version = ?
		`,
			string(t.Status), t.Title, t.Details, t.Priority, string(blockedByJSON),
			nullableTime(t.DueDate), t.Progress, t.Assignee, t.Version, formatTime(t.UpdatedAt),
			tenantID, taskID, expectedVersion,
		)
		if err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		ra, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if ra == 0 {
			return &VersionConflictError{Entity: "task", ID: taskID, Version: expectedVersion}
		}
		out = t
		return nil
	})
	if err != nil {
		return models.Task{}, err
	}
	return out, nil
}

// DeleteTask removes a task and cascades its graph edges.
func DeleteTask(ctx context.Context, db *sql.DB, tenantID, taskID string) error {
	return Transact(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM edges WHERE tenant_id = ? AND (from_node = ? OR to_node = ?)
		`, tenantID, taskID, taskID); err != nil {
			return fmt.Errorf("cascade delete edges: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE tenant_id = ? AND id = ?`, tenantID, taskID); err != nil {
			return fmt.Errorf("delete task node: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE tenant_id = ? AND id = ?`, tenantID, taskID)
		if err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		ra, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if ra == 0 {
			return NotFoundErr("task", taskID)
		}
		return nil
	})
}

// UpsertTaskFromEventTx applies a task_update event's content (spec §4.C):
// when task_id names an existing task it patches status/title/details/
// priority in place bypassing the optimistic-concurrency check (the event
// log, not a concurrent editor, is authoritative here); otherwise it
// creates a new task, using task_id as the id when supplied so later
// events can keep referencing it.
func UpsertTaskFromEventTx(ctx context.Context, tx *sql.Tx, tenantID string, tc models.TaskUpdateContent, projectID string, now time.Time) error {
	taskID := tc.TaskID
	if taskID != "" {
		existing, err := scanTask(tx.QueryRowContext(ctx, taskSelectQuery+` WHERE tenant_id = ? AND id = ?`, tenantID, taskID))
		if err == nil {
			if tc.Title != "" {
				existing.Title = tc.Title
			}
			if tc.Status != "" {
				existing.Status = tc.Status
			}
			if tc.Details != "" {
				existing.Details = tc.Details
			}
			if tc.Priority != 0 {
				existing.Priority = tc.Priority
			}
			existing.Version++
			existing.UpdatedAt = now

			blockedByJSON, err := json.Marshal(existing.BlockedBy)
			if err != nil {
				return fmt.Errorf("marshal blocked_by: %w", err)
			}
			_, err = tx.ExecContext(ctx, `
				UPDATE tasks SET
					status = ?, title = ?, details = ?, priority = ?, blocked_by = ?,
					version = ?, updated_at = ?
				WHERE tenant_id = ? AND id = ?
			`,
				string(existing.Status), existing.Title, existing.Details, existing.Priority,
				string(blockedByJSON), existing.Version, formatTime(existing.UpdatedAt),
				tenantID, taskID,
			)
			if err != nil {
				return fmt.Errorf("upsert task (update): %w", err)
			}
			return nil
		}
		if err != sql.ErrNoRows {
			return err
		}
	} else {
		taskID = NewID(models.IDKindTask)
	}

	title := tc.Title
	if title == "" {
		title = taskID
	}
	status := tc.Status
	if status == "" {
		status = models.TaskStatusBacklog
	}
	refsJSON, err := json.Marshal([]string(nil))
	if err != nil {
		return err
	}
	blockedByJSON, err := json.Marshal([]string(nil))
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (
			id, tenant_id, status, title, details, refs, priority, blocked_by,
			start_date, due_date, estimate, progress, assignee, project_id,
			version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL, '', 0, '', ?, 1, ?, ?)
	`,
		taskID, tenantID, string(status), title, tc.Details, string(refsJSON), tc.Priority,
		string(blockedByJSON), projectID, formatTime(now), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("upsert task (insert): %w", err)
	}
	return registerNodeTx(ctx, tx, tenantID, taskID, "task", now)
}

const taskSelectQuery = `
	SELECT id, tenant_id, status, title, details, refs, priority, blocked_by,
	       start_date, due_date, estimate, progress, assignee, project_id,
	       version, created_at, updated_at
	FROM tasks
`

func scanTask(row rowScanner) (models.Task, error) {
	var (
		t                                 models.Task
		status                            string
		refsJSON, blockedByJSON           string
		startDate, dueDate                sql.NullString
		createdAt, updatedAt              string
	)
	if err := row.Scan(
		&t.ID, &t.TenantID, &status, &t.Title, &t.Details, &refsJSON, &t.Priority,
		&blockedByJSON, &startDate, &dueDate, &t.Estimate, &t.Progress, &t.Assignee,
		&t.ProjectID, &t.Version, &createdAt, &updatedAt,
	); err != nil {
		return models.Task{}, err
	}

	t.Status = models.TaskStatus(status)
	if err := json.Unmarshal([]byte(refsJSON), &t.Refs); err != nil {
		return models.Task{}, fmt.Errorf("unmarshal refs: %w", err)
	}
	if err := json.Unmarshal([]byte(blockedByJSON), &t.BlockedBy); err != nil {
		return models.Task{}, fmt.Errorf("unmarshal blocked_by: %w", err)
	}

	sd, err := scanNullableTime(startDate)
	if err != nil {
		return models.Task{}, err
	}
	t.StartDate = sd
	dd, err := scanNullableTime(dueDate)
	if err != nil {
		return models.Task{}, err
	}
	t.DueDate = dd

	ts, err := parseTime(createdAt)
	if err != nil {
		return models.Task{}, fmt.Errorf("parse created_at: %w", err)
	}
	t.CreatedAt = ts
	us, err := parseTime(updatedAt)
	if err != nil {
		return models.Task{}, fmt.Errorf("parse updated_at: %w", err)
	}
	t.UpdatedAt = us

	return t, nil
}
