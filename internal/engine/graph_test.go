package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmemory/memoryd/internal/models"
)

func mustCreateTask(t *testing.T, tasks *Tasks, tenantID, title string) models.Task {
	t.Helper()
	task, err := tasks.CreateTask(context.Background(), CreateTaskInput{TenantID: tenantID, Title: title})
	require.NoError(t, err)
	return task
}

func TestCreateEdgeRejectsDependsOnCycle(t *testing.T) {
	db := setupTestDB(t)
	tasks := NewTasks(db)
	graph := NewGraph(db)
	ctx := context.Background()
	const tenantID = "tenant-a"

	a := mustCreateTask(t, tasks, tenantID, "A")
	b := mustCreateTask(t, tasks, tenantID, "B")
	c := mustCreateTask(t, tasks, tenantID, "C")

	_, err := graph.CreateEdge(ctx, CreateEdgeInput{TenantID: tenantID, FromNode: a.ID, ToNode: b.ID, Type: models.EdgeDependsOn})
	require.NoError(t, err)
	_, err = graph.CreateEdge(ctx, CreateEdgeInput{TenantID: tenantID, FromNode: b.ID, ToNode: c.ID, Type: models.EdgeDependsOn})
	require.NoError(t, err)

	_, err = graph.CreateEdge(ctx, CreateEdgeInput{TenantID: tenantID, FromNode: c.ID, ToNode: a.ID, Type: models.EdgeDependsOn})
	require.Error(t, err)
	var kerr *models.KindError
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, models.KindCircularDependency, kerr.Kind)
}

func TestCreateEdgeRejectsSelfLoop(t *testing.T) {
	db := setupTestDB(t)
	tasks := NewTasks(db)
	graph := NewGraph(db)
	ctx := context.Background()
	const tenantID = "tenant-a"

	a := mustCreateTask(t, tasks, tenantID, "A")

	_, err := graph.CreateEdge(ctx, CreateEdgeInput{TenantID: tenantID, FromNode: a.ID, ToNode: a.ID, Type: models.EdgeDependsOn})
	require.Error(t, err)
	var kerr *models.KindError
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, models.KindInvalidInput, kerr.Kind)
}

func TestTraverseClampsDepth(t *testing.T) {
	db := setupTestDB(t)
	tasks := NewTasks(db)
	graph := NewGraph(db)
	ctx := context.Background()
	const tenantID = "tenant-a"

	a := mustCreateTask(t, tasks, tenantID, "A")
	b := mustCreateTask(t, tasks, tenantID, "B")
	_, err := graph.CreateEdge(ctx, CreateEdgeInput{TenantID: tenantID, FromNode: a.ID, ToNode: b.ID, Type: models.EdgeParentOf})
	require.NoError(t, err)

	hops, err := graph.Traverse(ctx, tenantID, a.ID, string(models.EdgeParentOf), "out", 99)
	require.NoError(t, err)
	require.Len(t, hops, 1)
	assert.Equal(t, b.ID, hops[0].NodeID)

	hops, err = graph.Traverse(ctx, tenantID, a.ID, string(models.EdgeParentOf), "out", 0)
	require.NoError(t, err)
	assert.Len(t, hops, 1, "depth<=0 should clamp to the max rather than return nothing")
}

func TestGetTaskDependenciesDefaultsDepthToOne(t *testing.T) {
	db := setupTestDB(t)
	tasks := NewTasks(db)
	graph := NewGraph(db)
	ctx := context.Background()
	const tenantID = "tenant-a"

	a := mustCreateTask(t, tasks, tenantID, "A")
	b := mustCreateTask(t, tasks, tenantID, "B")
	c := mustCreateTask(t, tasks, tenantID, "C")
	_, err := graph.CreateEdge(ctx, CreateEdgeInput{TenantID: tenantID, FromNode: a.ID, ToNode: b.ID, Type: models.EdgeDependsOn})
	require.NoError(t, err)
	_, err = graph.CreateEdge(ctx, CreateEdgeInput{TenantID: tenantID, FromNode: b.ID, ToNode: c.ID, Type: models.EdgeDependsOn})
	require.NoError(t, err)

	hops, err := graph.GetTaskDependencies(ctx, tenantID, a.ID, 0)
	require.NoError(t, err)
	require.Len(t, hops, 1)
	assert.Equal(t, b.ID, hops[0].NodeID)

	hops, err = graph.GetTaskDependencies(ctx, tenantID, a.ID, 2)
	require.NoError(t, err)
	assert.Len(t, hops, 2)
}
