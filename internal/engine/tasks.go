package engine

import (
	"context"
	"database/sql"
	"time"

	"github.com/agentmemory/memoryd/internal/models"
	"github.com/agentmemory/memoryd/internal/store"
)

// Tasks exposes task CRUD over the Kanban-style task entity (spec §6
// "Tasks: CRUD plus get_task_dependencies(depth) and
// get_project_summary").
type Tasks struct {
	db *sql.DB
}

// NewTasks builds a Tasks service.
func NewTasks(db *sql.DB) *Tasks { return &Tasks{db: db} }

// CreateTaskInput carries create_task's inputs.
type CreateTaskInput struct {
	TenantID  string
	Title     string
	Details   string
	Refs      []string
	Priority  int
	BlockedBy []string
	StartDate *time.Time
	DueDate   *time.Time
	Estimate  string
	Assignee  string
	ProjectID string
}

// CreateTask stamps an id/timestamps and inserts a new task.
func (s *Tasks) CreateTask(ctx context.Context, in CreateTaskInput) (models.Task, error) {
	now := time.Now().UTC()
	t := models.Task{
		ID:        store.NewID(models.IDKindTask),
		TenantID:  in.TenantID,
		Status:    models.TaskStatusBacklog,
		Title:     in.Title,
		Details:   in.Details,
		Refs:      in.Refs,
		Priority:  in.Priority,
		BlockedBy: in.BlockedBy,
		StartDate: in.StartDate,
		DueDate:   in.DueDate,
		Estimate:  in.Estimate,
		Assignee:  in.Assignee,
		ProjectID: in.ProjectID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return store.CreateTask(ctx, s.db, t)
}

// GetTask fetches a single task.
func (s *Tasks) GetTask(ctx context.Context, tenantID, taskID string) (models.Task, error) {
	return store.GetTask(ctx, s.db, tenantID, taskID)
}

// ListTasks lists a tenant's tasks, optionally scoped to a project and
// filtered to one status.
func (s *Tasks) ListTasks(ctx context.Context, tenantID, projectID string, status models.TaskStatus) ([]models.Task, error) {
	return store.ListTasks(ctx, s.db, tenantID, projectID, status)
}

// UpdateTaskInput carries update_task's inputs; only set fields are
// applied (spec §3 Task, optimistic concurrency via ExpectedVersion).
type UpdateTaskInput struct {
	TenantID        string
	TaskID          string
	ExpectedVersion int
	Patch           store.TaskPatch
}

// UpdateTask applies a patch via optimistic concurrency.
func (s *Tasks) UpdateTask(ctx context.Context, in UpdateTaskInput) (models.Task, error) {
	return store.UpdateTask(ctx, s.db, in.TenantID, in.TaskID, in.ExpectedVersion, in.Patch)
}

// DeleteTask removes a task.
func (s *Tasks) DeleteTask(ctx context.Context, tenantID, taskID string) error {
	return store.DeleteTask(ctx, s.db, tenantID, taskID)
}
