package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/agentmemory/memoryd/internal/engine"
	"github.com/agentmemory/memoryd/internal/models"
	"github.com/agentmemory/memoryd/internal/output"
	"github.com/agentmemory/memoryd/internal/store"
)

type createTaskParams struct {
	TenantID  string     `json:"tenant_id"`
	Title     string     `json:"title"`
	Details   string     `json:"details,omitempty"`
	Refs      []string   `json:"refs,omitempty"`
	Priority  int        `json:"priority,omitempty"`
	BlockedBy []string   `json:"blocked_by,omitempty"`
	StartDate *time.Time `json:"start_date,omitempty"`
	DueDate   *time.Time `json:"due_date,omitempty"`
	Estimate  string     `json:"estimate,omitempty"`
	Assignee  string     `json:"assignee,omitempty"`
	ProjectID string     `json:"project_id,omitempty"`
}

// CreateTask wraps Tasks.CreateTask (spec §6 "Tasks: CRUD").
type CreateTask struct {
	tasks *engine.Tasks
}

func NewCreateTask(tasks *engine.Tasks) *CreateTask { return &CreateTask{tasks: tasks} }

func (t *CreateTask) Name() string        { return "create_task" }
func (t *CreateTask) Description() string { return "Create a new task in the backlog." }
func (t *CreateTask) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "tenant_id": {"type": "string"},
    "title": {"type": "string"},
    "details": {"type": "string"},
    "refs": {"type": "array", "items": {"type": "string"}},
    "priority": {"type": "integer"},
    "blocked_by": {"type": "array", "items": {"type": "string"}},
    "estimate": {"type": "string"},
    "assignee": {"type": "string"},
    "project_id": {"type": "string"}
  },
  "required": ["tenant_id", "title"]
}`)
}

func (t *CreateTask) Execute(ctx context.Context, params json.RawMessage) (output.Response, error) {
	var p createTaskParams
	if err := json.Unmarshal(params, &p); err != nil {
		return output.Error(models.NewInvalidInput("invalid parameters: %v", err)), nil
	}
	task, err := t.tasks.CreateTask(ctx, engine.CreateTaskInput{
		TenantID:  p.TenantID,
		Title:     p.Title,
		Details:   p.Details,
		Refs:      p.Refs,
		Priority:  p.Priority,
		BlockedBy: p.BlockedBy,
		StartDate: p.StartDate,
		DueDate:   p.DueDate,
		Estimate:  p.Estimate,
		Assignee:  p.Assignee,
		ProjectID: p.ProjectID,
	})
	if err != nil {
		return output.Error(err), nil
	}
	return output.Success(task), nil
}

type taskIDParams struct {
	TenantID string `json:"tenant_id"`
	TaskID   string `json:"task_id"`
}

// GetTask wraps Tasks.GetTask (spec §6 "Tasks: CRUD").
type GetTask struct {
	tasks *engine.Tasks
}

func NewGetTask(tasks *engine.Tasks) *GetTask { return &GetTask{tasks: tasks} }

func (t *GetTask) Name() string        { return "get_task" }
func (t *GetTask) Description() string { return "Fetch a single task by id." }
func (t *GetTask) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {"tenant_id": {"type": "string"}, "task_id": {"type": "string"}},
  "required": ["tenant_id", "task_id"]
}`)
}

func (t *GetTask) Execute(ctx context.Context, params json.RawMessage) (output.Response, error) {
	var p taskIDParams
	if err := json.Unmarshal(params, &p); err != nil {
		return output.Error(models.NewInvalidInput("invalid parameters: %v", err)), nil
	}
	task, err := t.tasks.GetTask(ctx, p.TenantID, p.TaskID)
	if err != nil {
		return output.Error(err), nil
	}
	return output.Success(task), nil
}

type listTasksParams struct {
	TenantID  string `json:"tenant_id"`
	ProjectID string `json:"project_id,omitempty"`
	Status    string `json:"status,omitempty"`
}

// ListTasks wraps Tasks.ListTasks (spec §6 "Tasks: CRUD").
type ListTasks struct {
	tasks *engine.Tasks
}

func NewListTasks(tasks *engine.Tasks) *ListTasks { return &ListTasks{tasks: tasks} }

func (t *ListTasks) Name() string        { return "list_tasks" }
func (t *ListTasks) Description() string { return "List a tenant's tasks, optionally scoped to a project and filtered by status." }
func (t *ListTasks) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {"tenant_id": {"type": "string"}, "project_id": {"type": "string"}, "status": {"type": "string"}},
  "required": ["tenant_id"]
}`)
}

func (t *ListTasks) Execute(ctx context.Context, params json.RawMessage) (output.Response, error) {
	var p listTasksParams
	if err := json.Unmarshal(params, &p); err != nil {
		return output.Error(models.NewInvalidInput("invalid parameters: %v", err)), nil
	}
	tasks, err := t.tasks.ListTasks(ctx, p.TenantID, p.ProjectID, models.TaskStatus(p.Status))
	if err != nil {
		return output.Error(err), nil
	}
	return output.Success(tasks), nil
}

type updateTaskParams struct {
	TenantID        string     `json:"tenant_id"`
	TaskID          string     `json:"task_id"`
	ExpectedVersion int        `json:"expected_version"`
	Status          *string    `json:"status,omitempty"`
	Title           *string    `json:"title,omitempty"`
	Details         *string    `json:"details,omitempty"`
	Priority        *int       `json:"priority,omitempty"`
	Assignee        *string    `json:"assignee,omitempty"`
	Progress        *float64   `json:"progress,omitempty"`
	BlockedBy       *[]string  `json:"blocked_by,omitempty"`
}

// UpdateTask wraps Tasks.UpdateTask (spec §6 "Tasks: CRUD").
type UpdateTask struct {
	tasks *engine.Tasks
}

func NewUpdateTask(tasks *engine.Tasks) *UpdateTask { return &UpdateTask{tasks: tasks} }

func (t *UpdateTask) Name() string        { return "update_task" }
func (t *UpdateTask) Description() string { return "Patch a task's fields via optimistic concurrency (expected_version)." }
func (t *UpdateTask) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "tenant_id": {"type": "string"},
    "task_id": {"type": "string"},
    "expected_version": {"type": "integer"},
    "status": {"type": "string"},
    "title": {"type": "string"},
    "details": {"type": "string"},
    "priority": {"type": "integer"},
    "assignee": {"type": "string"},
    "progress": {"type": "number"},
    "blocked_by": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["tenant_id", "task_id", "expected_version"]
}`)
}

func (t *UpdateTask) Execute(ctx context.Context, params json.RawMessage) (output.Response, error) {
	var p updateTaskParams
	if err := json.Unmarshal(params, &p); err != nil {
		return output.Error(models.NewInvalidInput("invalid parameters: %v", err)), nil
	}
	patch := store.TaskPatch{
		Title:     p.Title,
		Details:   p.Details,
		Priority:  p.Priority,
		Assignee:  p.Assignee,
		Progress:  p.Progress,
		BlockedBy: p.BlockedBy,
	}
	if p.Status != nil {
		status := models.TaskStatus(*p.Status)
		patch.Status = &status
	}
	task, err := t.tasks.UpdateTask(ctx, engine.UpdateTaskInput{
		TenantID:        p.TenantID,
		TaskID:          p.TaskID,
		ExpectedVersion: p.ExpectedVersion,
		Patch:           patch,
	})
	if err != nil {
		return output.Error(err), nil
	}
	return output.Success(task), nil
}

// DeleteTask wraps Tasks.DeleteTask (spec §6 "Tasks: CRUD").
type DeleteTask struct {
	tasks *engine.Tasks
}

func NewDeleteTask(tasks *engine.Tasks) *DeleteTask { return &DeleteTask{tasks: tasks} }

func (t *DeleteTask) Name() string        { return "delete_task" }
func (t *DeleteTask) Description() string { return "Delete a task." }
func (t *DeleteTask) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {"tenant_id": {"type": "string"}, "task_id": {"type": "string"}},
  "required": ["tenant_id", "task_id"]
}`)
}

func (t *DeleteTask) Execute(ctx context.Context, params json.RawMessage) (output.Response, error) {
	var p taskIDParams
	if err := json.Unmarshal(params, &p); err != nil {
		return output.Error(models.NewInvalidInput("invalid parameters: %v", err)), nil
	}
	if err := t.tasks.DeleteTask(ctx, p.TenantID, p.TaskID); err != nil {
		return output.Error(err), nil
	}
	return output.Success(map[string]string{"task_id": p.TaskID, "status": "deleted"}), nil
}
