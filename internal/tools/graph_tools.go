package tools

import (
	"context"
	"encoding/json"

	"github.com/agentmemory/memoryd/internal/engine"
	"github.com/agentmemory/memoryd/internal/models"
	"github.com/agentmemory/memoryd/internal/output"
)

type createEdgeParams struct {
	TenantID   string         `json:"tenant_id"`
	FromNode   string         `json:"from_node"`
	ToNode     string         `json:"to_node"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
}

// CreateEdge wraps Graph.CreateEdge (spec §6 "create_edge", §4.J).
type CreateEdge struct {
	graph *engine.Graph
}

func NewCreateEdge(graph *engine.Graph) *CreateEdge { return &CreateEdge{graph: graph} }

func (t *CreateEdge) Name() string        { return "create_edge" }
func (t *CreateEdge) Description() string { return "Create a typed edge between two existing nodes; depends_on edges are rejected if they would close a cycle." }
func (t *CreateEdge) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "tenant_id": {"type": "string"},
    "from_node": {"type": "string"},
    "to_node": {"type": "string"},
    "type": {"type": "string", "enum": ["parent_of", "child_of", "references", "created_by", "related_to", "depends_on"]},
    "properties": {"type": "object"}
  },
  "required": ["tenant_id", "from_node", "to_node", "type"]
}`)
}

func (t *CreateEdge) Execute(ctx context.Context, params json.RawMessage) (output.Response, error) {
	var p createEdgeParams
	if err := json.Unmarshal(params, &p); err != nil {
		return output.Error(models.NewInvalidInput("invalid parameters: %v", err)), nil
	}
	e, err := t.graph.CreateEdge(ctx, engine.CreateEdgeInput{
		TenantID:   p.TenantID,
		FromNode:   p.FromNode,
		ToNode:     p.ToNode,
		Type:       models.EdgeType(p.Type),
		Properties: p.Properties,
	})
	if err != nil {
		return output.Error(err), nil
	}
	return output.Success(e), nil
}

type getEdgesParams struct {
	TenantID  string `json:"tenant_id"`
	NodeID    string `json:"node_id"`
	Direction string `json:"direction,omitempty"`
	Type      string `json:"type,omitempty"`
}

// GetEdges wraps Graph.GetEdges (spec §6 "get_edges").
type GetEdges struct {
	graph *engine.Graph
}

func NewGetEdges(graph *engine.Graph) *GetEdges { return &GetEdges{graph: graph} }

func (t *GetEdges) Name() string        { return "get_edges" }
func (t *GetEdges) Description() string { return "List edges touching a node, optionally filtered by direction and type." }
func (t *GetEdges) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "tenant_id": {"type": "string"},
    "node_id": {"type": "string"},
    "direction": {"type": "string", "enum": ["in", "out", ""]},
    "type": {"type": "string"}
  },
  "required": ["tenant_id", "node_id"]
}`)
}

func (t *GetEdges) Execute(ctx context.Context, params json.RawMessage) (output.Response, error) {
	var p getEdgesParams
	if err := json.Unmarshal(params, &p); err != nil {
		return output.Error(models.NewInvalidInput("invalid parameters: %v", err)), nil
	}
	edges, err := t.graph.GetEdges(ctx, p.TenantID, p.NodeID, p.Direction, p.Type)
	if err != nil {
		return output.Error(err), nil
	}
	return output.Success(edges), nil
}

type traverseParams struct {
	TenantID  string `json:"tenant_id"`
	NodeID    string `json:"node_id"`
	Type      string `json:"type,omitempty"`
	Direction string `json:"direction,omitempty"`
	Depth     int    `json:"depth,omitempty"`
}

// Traverse wraps Graph.Traverse (spec §6 "traverse").
type Traverse struct {
	graph *engine.Graph
}

func NewTraverse(graph *engine.Graph) *Traverse { return &Traverse{graph: graph} }

func (t *Traverse) Name() string        { return "traverse" }
func (t *Traverse) Description() string { return "Bounded BFS from a node, at most max_traversal_depth hops, visiting each node once." }
func (t *Traverse) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "tenant_id": {"type": "string"},
    "node_id": {"type": "string"},
    "type": {"type": "string"},
    "direction": {"type": "string"},
    "depth": {"type": "integer"}
  },
  "required": ["tenant_id", "node_id"]
}`)
}

func (t *Traverse) Execute(ctx context.Context, params json.RawMessage) (output.Response, error) {
	var p traverseParams
	if err := json.Unmarshal(params, &p); err != nil {
		return output.Error(models.NewInvalidInput("invalid parameters: %v", err)), nil
	}
	hops, err := t.graph.Traverse(ctx, p.TenantID, p.NodeID, p.Type, p.Direction, p.Depth)
	if err != nil {
		return output.Error(err), nil
	}
	return output.Success(hops), nil
}

type updateEdgePropertiesParams struct {
	TenantID string         `json:"tenant_id"`
	EdgeID   string         `json:"edge_id"`
	Patch    map[string]any `json:"patch"`
}

// UpdateEdgeProperties wraps Graph.UpdateEdgeProperties (spec §6
// "update_edge_properties").
type UpdateEdgeProperties struct {
	graph *engine.Graph
}

func NewUpdateEdgeProperties(graph *engine.Graph) *UpdateEdgeProperties {
	return &UpdateEdgeProperties{graph: graph}
}

func (t *UpdateEdgeProperties) Name() string        { return "update_edge_properties" }
func (t *UpdateEdgeProperties) Description() string { return "Merge a patch into an edge's free-form properties." }
func (t *UpdateEdgeProperties) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {"tenant_id": {"type": "string"}, "edge_id": {"type": "string"}, "patch": {"type": "object"}},
  "required": ["tenant_id", "edge_id", "patch"]
}`)
}

func (t *UpdateEdgeProperties) Execute(ctx context.Context, params json.RawMessage) (output.Response, error) {
	var p updateEdgePropertiesParams
	if err := json.Unmarshal(params, &p); err != nil {
		return output.Error(models.NewInvalidInput("invalid parameters: %v", err)), nil
	}
	e, err := t.graph.UpdateEdgeProperties(ctx, p.TenantID, p.EdgeID, p.Patch)
	if err != nil {
		return output.Error(err), nil
	}
	return output.Success(e), nil
}

type edgeIDParams struct {
	TenantID string `json:"tenant_id"`
	EdgeID   string `json:"edge_id"`
}

// DeleteEdge wraps Graph.DeleteEdge (spec §6 "delete_edge").
type DeleteEdge struct {
	graph *engine.Graph
}

func NewDeleteEdge(graph *engine.Graph) *DeleteEdge { return &DeleteEdge{graph: graph} }

func (t *DeleteEdge) Name() string        { return "delete_edge" }
func (t *DeleteEdge) Description() string { return "Delete a single edge." }
func (t *DeleteEdge) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {"tenant_id": {"type": "string"}, "edge_id": {"type": "string"}},
  "required": ["tenant_id", "edge_id"]
}`)
}

func (t *DeleteEdge) Execute(ctx context.Context, params json.RawMessage) (output.Response, error) {
	var p edgeIDParams
	if err := json.Unmarshal(params, &p); err != nil {
		return output.Error(models.NewInvalidInput("invalid parameters: %v", err)), nil
	}
	if err := t.graph.DeleteEdge(ctx, p.TenantID, p.EdgeID); err != nil {
		return output.Error(err), nil
	}
	return output.Success(map[string]string{"edge_id": p.EdgeID, "status": "deleted"}), nil
}

type projectNodeParams struct {
	TenantID      string `json:"tenant_id"`
	ProjectNodeID string `json:"project_node_id"`
}

// GetProjectTasks wraps Graph.GetProjectTasks (spec §6
// "get_project_tasks").
type GetProjectTasks struct {
	graph *engine.Graph
}

func NewGetProjectTasks(graph *engine.Graph) *GetProjectTasks { return &GetProjectTasks{graph: graph} }

func (t *GetProjectTasks) Name() string        { return "get_project_tasks" }
func (t *GetProjectTasks) Description() string { return "List a project's tasks grouped by status." }
func (t *GetProjectTasks) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {"tenant_id": {"type": "string"}, "project_node_id": {"type": "string"}},
  "required": ["tenant_id", "project_node_id"]
}`)
}

func (t *GetProjectTasks) Execute(ctx context.Context, params json.RawMessage) (output.Response, error) {
	var p projectNodeParams
	if err := json.Unmarshal(params, &p); err != nil {
		return output.Error(models.NewInvalidInput("invalid parameters: %v", err)), nil
	}
	groups, err := t.graph.GetProjectTasks(ctx, p.TenantID, p.ProjectNodeID)
	if err != nil {
		return output.Error(err), nil
	}
	return output.Success(groups), nil
}

// GetProjectSummary wraps Graph.GetProjectTasks into a rolled-up count
// view (spec §6 "get_project_summary").
type GetProjectSummary struct {
	graph *engine.Graph
}

func NewGetProjectSummary(graph *engine.Graph) *GetProjectSummary { return &GetProjectSummary{graph: graph} }

func (t *GetProjectSummary) Name() string        { return "get_project_summary" }
func (t *GetProjectSummary) Description() string { return "Summarize a project's task counts by status." }
func (t *GetProjectSummary) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {"tenant_id": {"type": "string"}, "project_node_id": {"type": "string"}},
  "required": ["tenant_id", "project_node_id"]
}`)
}

func (t *GetProjectSummary) Execute(ctx context.Context, params json.RawMessage) (output.Response, error) {
	var p projectNodeParams
	if err := json.Unmarshal(params, &p); err != nil {
		return output.Error(models.NewInvalidInput("invalid parameters: %v", err)), nil
	}
	groups, err := t.graph.GetProjectTasks(ctx, p.TenantID, p.ProjectNodeID)
	if err != nil {
		return output.Error(err), nil
	}
	counts := make(map[string]int, len(groups))
	total := 0
	for _, g := range groups {
		counts[string(g.Status)] = len(g.Tasks)
		total += len(g.Tasks)
	}
	return output.Success(map[string]any{"project_node_id": p.ProjectNodeID, "total": total, "by_status": counts}), nil
}

type taskDependenciesParams struct {
	TenantID string `json:"tenant_id"`
	TaskID   string `json:"task_id"`
	Depth    int    `json:"depth,omitempty"`
}

// GetTaskDependencies wraps Graph.GetTaskDependencies (spec §6
// "get_task_dependencies").
type GetTaskDependencies struct {
	graph *engine.Graph
}

func NewGetTaskDependencies(graph *engine.Graph) *GetTaskDependencies {
	return &GetTaskDependencies{graph: graph}
}

func (t *GetTaskDependencies) Name() string        { return "get_task_dependencies" }
func (t *GetTaskDependencies) Description() string { return "Walk a task's outgoing depends_on edges to a given depth." }
func (t *GetTaskDependencies) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {"tenant_id": {"type": "string"}, "task_id": {"type": "string"}, "depth": {"type": "integer"}},
  "required": ["tenant_id", "task_id"]
}`)
}

func (t *GetTaskDependencies) Execute(ctx context.Context, params json.RawMessage) (output.Response, error) {
	var p taskDependenciesParams
	if err := json.Unmarshal(params, &p); err != nil {
		return output.Error(models.NewInvalidInput("invalid parameters: %v", err)), nil
	}
	hops, err := t.graph.GetTaskDependencies(ctx, p.TenantID, p.TaskID, p.Depth)
	if err != nil {
		return output.Error(err), nil
	}
	return output.Success(hops), nil
}
