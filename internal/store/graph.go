package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/agentmemory/memoryd/internal/models"
)

const maxTraversalNodes = 1000

// CreateEdge verifies both endpoints exist in the tenant and, for
// depends_on edges, rejects the insert with CircularDependency if a path
// from `to` back to `from` already exists via depends_on (spec §4.J,
// generalizing the teacher's task-only detectCycleTx to any node kind).
func CreateEdge(ctx context.Context, db *sql.DB, e models.Edge) (models.Edge, error) {
	if e.TenantID == "" {
		return models.Edge{}, models.NewInvalidInput("tenant_id is required")
	}
	if e.FromNode == "" || e.ToNode == "" {
		return models.Edge{}, models.NewInvalidInput("from_node and to_node are required")
	}
	if e.FromNode == e.ToNode {
		return models.Edge{}, models.NewInvalidInput("a node cannot have an edge to itself")
	}

	propsJSON, err := json.Marshal(e.Properties)
	if err != nil {
		return models.Edge{}, fmt.Errorf("marshal properties: %w", err)
	}

	err = Transact(ctx, db, func(tx *sql.Tx) error {
		if !nodeExistsTx(ctx, tx, e.TenantID, e.FromNode) {
			return NotFoundErr("node", e.FromNode)
		}
		if !nodeExistsTx(ctx, tx, e.TenantID, e.ToNode) {
			return NotFoundErr("node", e.ToNode)
		}

		if e.Type == models.EdgeDependsOn {
			reaches, err := reachesTx(ctx, tx, e.TenantID, e.ToNode, e.FromNode, models.EdgeDependsOn)
			if err != nil {
				return err
			}
			if reaches {
				return models.NewCircularDependency(e.FromNode, e.ToNode)
			}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO edges (id, tenant_id, from_node, to_node, type, properties, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, e.ID, e.TenantID, e.FromNode, e.ToNode, string(e.Type), string(propsJSON),
			formatTime(e.CreatedAt), formatTime(e.UpdatedAt))
		if err != nil {
			return fmt.Errorf("insert edge: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.Edge{}, err
	}
	return e, nil
}

func nodeExistsTx(ctx context.Context, tx *sql.Tx, tenantID, nodeID string) bool {
	var exists int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM nodes WHERE tenant_id = ? AND id = ?`, tenantID, nodeID).Scan(&exists)
	return err == nil
}

// reachesTx runs a bounded BFS from `start`, following edges of the given
// type, and reports whether `target` is reachable.
func reachesTx(ctx context.Context, tx *sql.Tx, tenantID, start, target string, edgeType models.EdgeType) (bool, error) {
	visited := map[string]bool{start: true}
	queue := []string{start}
	examined := 0

	for len(queue) > 0 && examined < maxTraversalNodes {
		current := queue[0]
		queue = queue[1:]
		examined++

		neighbors, err := queryStringColumn(ctx, tx, `
			SELECT to_node FROM edges WHERE tenant_id = ? AND from_node = ? AND type = ?
		`, tenantID, current, string(edgeType))
		if err != nil {
			return false, fmt.Errorf("reachability query: %w", err)
		}

		for _, n := range neighbors {
			if n == target {
				return true, nil
			}
			if !visited[n] {
				visited[n] = true
				queue = append(queue, n)
			}
		}
	}
	return false, nil
}

// GetEdges returns edges touching node in the requested direction,
// optionally filtered to a single edge type.
func GetEdges(ctx context.Context, db *sql.DB, tenantID, nodeID string, direction string, edgeType string) ([]models.Edge, error) {
	var clauses []string
	args := []any{}
	switch direction {
	case "out":
		clauses = []string{"from_node = ?"}
		args = append(args, nodeID)
	case "in":
		clauses = []string{"to_node = ?"}
		args = append(args, nodeID)
	default: // both
		clauses = []string{"(from_node = ? OR to_node = ?)"}
		args = append(args, nodeID, nodeID)
	}

	query := edgeSelectQuery + ` WHERE tenant_id = ? AND ` + clauses[0]
	fullArgs := append([]any{tenantID}, args...)
	if edgeType != "" {
		query += ` AND type = ?`
		fullArgs = append(fullArgs, edgeType)
	}
	query += ` ORDER BY created_at ASC`

	var out []models.Edge
	err := RetryWithBackoff(ctx, func() error {
		out = nil
		rows, err := db.QueryContext(ctx, query, fullArgs...)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			e, err := scanEdge(rows)
			if err != nil {
				return err
			}
			out = append(out, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("get edges: %w", err)
	}
	return out, nil
}

// TraversalHop is one entry of a traverse() result: the node reached, the
// depth at which it was first reached, and the edge that reached it.
type TraversalHop struct {
	NodeID string      `json:"node_id"`
	Depth  int         `json:"depth"`
	Edge   models.Edge `json:"edge"`
}

// Traverse performs a bounded BFS from node following edges of the given
// type and direction, visiting each node at most once, and truncating
// silently at depth (spec §4.J, §8 invariant 7 "traversal termination").
func Traverse(ctx context.Context, db *sql.DB, tenantID, nodeID string, edgeType, direction string, depth int) ([]TraversalHop, error) {
	if depth <= 0 {
		return nil, nil
	}
	if depth > 5 {
		depth = 5
	}

	type frontierEntry struct {
		nodeID string
		depth  int
	}

	visited := map[string]bool{nodeID: true}
	queue := []frontierEntry{{nodeID: nodeID, depth: 0}}
	var out []TraversalHop
	examined := 0

	for len(queue) > 0 && examined < maxTraversalNodes {
		cur := queue[0]
		queue = queue[1:]
		examined++
		if cur.depth >= depth {
			continue
		}

		edges, err := GetEdges(ctx, db, tenantID, cur.nodeID, direction, edgeType)
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			next := e.ToNode
			if e.ToNode == cur.nodeID {
				next = e.FromNode
			}
			if visited[next] {
				continue
			}
			visited[next] = true
			out = append(out, TraversalHop{NodeID: next, Depth: cur.depth + 1, Edge: e})
			queue = append(queue, frontierEntry{nodeID: next, depth: cur.depth + 1})
		}
	}
	return out, nil
}

// UpdateEdgeProperties shallow-merges patch into the edge's properties and
// refreshes updated_at (spec §4.J).
func UpdateEdgeProperties(ctx context.Context, db *sql.DB, tenantID, edgeID string, patch map[string]any) (models.Edge, error) {
	var out models.Edge
	err := Transact(ctx, db, func(tx *sql.Tx) error {
		e, err := scanEdge(tx.QueryRowContext(ctx, edgeSelectQuery+` WHERE tenant_id = ? AND id = ?`, tenantID, edgeID))
		if err == sql.ErrNoRows {
			return NotFoundErr("edge", edgeID)
		}
		if err != nil {
			return err
		}

		if e.Properties == nil {
			e.Properties = map[string]any{}
		}
		for k, v := range patch {
			e.Properties[k] = v
		}
		e.UpdatedAt = time.Now().UTC()

		propsJSON, err := json.Marshal(e.Properties)
		if err != nil {
			return fmt.Errorf("marshal properties: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE edges SET properties = ?, updated_at = ? WHERE tenant_id = ? AND id = ?
		`, string(propsJSON), formatTime(e.UpdatedAt), tenantID, edgeID)
		if err != nil {
			return fmt.Errorf("update edge properties: %w", err)
		}
		out = e
		return nil
	})
	if err != nil {
		return models.Edge{}, err
	}
	return out, nil
}

// DeleteEdge removes a single edge by id.
func DeleteEdge(ctx context.Context, db *sql.DB, tenantID, edgeID string) error {
	return Transact(ctx, db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM edges WHERE tenant_id = ? AND id = ?`, tenantID, edgeID)
		if err != nil {
			return fmt.Errorf("delete edge: %w", err)
		}
		ra, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if ra == 0 {
			return NotFoundErr("edge", edgeID)
		}
		return nil
	})
}

// DeleteNodeCascade removes a node and every edge touching it (spec §3
// "deleting a node cascades edge deletion").
func DeleteNodeCascade(ctx context.Context, db *sql.DB, tenantID, nodeID string) error {
	return Transact(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM edges WHERE tenant_id = ? AND (from_node = ? OR to_node = ?)
		`, tenantID, nodeID, nodeID); err != nil {
			return fmt.Errorf("cascade delete edges: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE tenant_id = ? AND id = ?`, tenantID, nodeID)
		if err != nil {
			return fmt.Errorf("delete node: %w", err)
		}
		ra, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if ra == 0 {
			return NotFoundErr("node", nodeID)
		}
		return nil
	})
}

// ProjectTaskGroup is one status bucket of GetProjectTasks's result.
type ProjectTaskGroup struct {
	Status models.TaskStatus `json:"status"`
	Tasks  []models.Task     `json:"tasks"`
}

// GetProjectTasks finds a project node's children via parent_of edges,
// groups them by task status, and orders each group by priority then
// creation time (spec §4.J get_project_tasks).
func GetProjectTasks(ctx context.Context, db *sql.DB, tenantID, projectNodeID string) ([]ProjectTaskGroup, error) {
	edges, err := GetEdges(ctx, db, tenantID, projectNodeID, "out", string(models.EdgeParentOf))
	if err != nil {
		return nil, err
	}
	if len(edges) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(edges))
	for _, e := range edges {
		ids = append(ids, e.ToNode)
	}
	tasks, err := GetTasks(ctx, db, tenantID, ids)
	if err != nil {
		return nil, err
	}

	byStatus := map[models.TaskStatus][]models.Task{}
	for _, t := range tasks {
		byStatus[t.Status] = append(byStatus[t.Status], t)
	}
	for status := range byStatus {
		group := byStatus[status]
		sort.Slice(group, func(i, j int) bool {
			if group[i].Priority != group[j].Priority {
				return group[i].Priority > group[j].Priority
			}
			return group[i].CreatedAt.Before(group[j].CreatedAt)
		})
		byStatus[status] = group
	}

	order := []models.TaskStatus{
		models.TaskStatusBacklog, models.TaskStatusOpen, models.TaskStatusDoing,
		models.TaskStatusReview, models.TaskStatusBlocked, models.TaskStatusDone,
	}
	out := make([]ProjectTaskGroup, 0, len(order))
	for _, s := range order {
		if g, ok := byStatus[s]; ok {
			out = append(out, ProjectTaskGroup{Status: s, Tasks: g})
		}
	}
	return out, nil
}

const edgeSelectQuery = `
	SELECT id, tenant_id, from_node, to_node, type, properties, created_at, updated_at
	FROM edges
`

func scanEdge(row rowScanner) (models.Edge, error) {
	var (
		e                        models.Edge
		edgeType                 string
		propsJSON                string
		createdAt, updatedAt     string
	)
	if err := row.Scan(
		&e.ID, &e.TenantID, &e.FromNode, &e.ToNode, &edgeType, &propsJSON, &createdAt, &updatedAt,
	); err != nil {
		return models.Edge{}, err
	}
	e.Type = models.EdgeType(edgeType)
	if propsJSON != "" {
		if err := json.Unmarshal([]byte(propsJSON), &e.Properties); err != nil {
			return models.Edge{}, fmt.Errorf("unmarshal properties: %w", err)
		}
	}
	ts, err := parseTime(createdAt)
	if err != nil {
		return models.Edge{}, fmt.Errorf("parse created_at: %w", err)
	}
	e.CreatedAt = ts
	us, err := parseTime(updatedAt)
	if err != nil {
		return models.Edge{}, fmt.Errorf("parse updated_at: %w", err)
	}
	e.UpdatedAt = us
	return e, nil
}
