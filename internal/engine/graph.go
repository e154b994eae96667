package engine

import (
	"context"
	"database/sql"
	"time"

	"github.com/agentmemory/memoryd/internal/models"
	"github.com/agentmemory/memoryd/internal/store"
)

// Graph exposes the typed relationship graph's tool-surface operations
// (spec §4.J): edge CRUD, bounded traversal, and project task rollups.
// The cycle-detection and depth-bounding invariants themselves live in
// internal/store/graph.go; this layer only adds request validation and
// id/timestamp stamping.
type Graph struct {
	db *sql.DB
}

// NewGraph builds a Graph service.
func NewGraph(db *sql.DB) *Graph {
	return &Graph{db: db}
}

// CreateEdgeInput carries create_edge's inputs.
type CreateEdgeInput struct {
	TenantID   string
	FromNode   string
	ToNode     string
	Type       models.EdgeType
	Properties map[string]any
}

// CreateEdge inserts a typed edge, rejecting a depends_on edge that would
// close a cycle (spec §4.J invariant "depends_on graph stays acyclic").
func (g *Graph) CreateEdge(ctx context.Context, in CreateEdgeInput) (models.Edge, error) {
	now := time.Now().UTC()
	e := models.Edge{
		ID:         store.NewID(models.IDKindEdge),
		TenantID:   in.TenantID,
		FromNode:   in.FromNode,
		ToNode:     in.ToNode,
		Type:       in.Type,
		Properties: in.Properties,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return store.CreateEdge(ctx, g.db, e)
}

// GetEdges lists edges touching nodeID, optionally filtered by direction
// ("in"/"out"/"" for both) and edge type.
func (g *Graph) GetEdges(ctx context.Context, tenantID, nodeID, direction, edgeType string) ([]models.Edge, error) {
	return store.GetEdges(ctx, g.db, tenantID, nodeID, direction, edgeType)
}

// Traverse runs a bounded BFS from nodeID, capping depth at 5 per spec
// §4.J (the store layer enforces the cap; this layer just forwards it).
func (g *Graph) Traverse(ctx context.Context, tenantID, nodeID, edgeType, direction string, depth int) ([]store.TraversalHop, error) {
	const maxDepth = 5
	if depth <= 0 || depth > maxDepth {
		depth = maxDepth
	}
	return store.Traverse(ctx, g.db, tenantID, nodeID, edgeType, direction, depth)
}

// UpdateEdgeProperties merges patch into an edge's properties map.
func (g *Graph) UpdateEdgeProperties(ctx context.Context, tenantID, edgeID string, patch map[string]any) (models.Edge, error) {
	return store.UpdateEdgeProperties(ctx, g.db, tenantID, edgeID, patch)
}

// DeleteEdge removes a single edge.
func (g *Graph) DeleteEdge(ctx context.Context, tenantID, edgeID string) error {
	return store.DeleteEdge(ctx, g.db, tenantID, edgeID)
}

// GetProjectTasks returns a project node's tasks grouped by status, via
// its parent_of edges (spec §4.J get_project_tasks / get_project_summary).
func (g *Graph) GetProjectTasks(ctx context.Context, tenantID, projectNodeID string) ([]store.ProjectTaskGroup, error) {
	return store.GetProjectTasks(ctx, g.db, tenantID, projectNodeID)
}

// GetTaskDependencies walks a task's outgoing depends_on edges to depth
// hops (spec §6 "get_task_dependencies(depth)"); depth<=0 defaults to a
// single hop.
func (g *Graph) GetTaskDependencies(ctx context.Context, tenantID, taskID string, depth int) ([]store.TraversalHop, error) {
	if depth <= 0 {
		depth = 1
	}
	return g.Traverse(ctx, tenantID, taskID, string(models.EdgeDependsOn), "out", depth)
}
