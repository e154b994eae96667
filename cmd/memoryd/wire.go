package main

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/agentmemory/memoryd/internal/app"
	"github.com/agentmemory/memoryd/internal/embedding"
	"github.com/agentmemory/memoryd/internal/engine"
	"github.com/agentmemory/memoryd/internal/notify"
	"github.com/agentmemory/memoryd/internal/tools"
	"github.com/agentmemory/memoryd/internal/vectorindex"
)

// services bundles every engine component a tool or background job needs,
// so serve and manifest can share one wiring path.
type services struct {
	policy        *engine.Policy
	recorder      *engine.Recorder
	resolver      *engine.Resolver
	surgery       *engine.Surgery
	capsules      *engine.Capsules
	retrieval     *engine.Retrieval
	mode          *engine.ModeDetector
	budget        *engine.BudgetAllocator
	assembler     *engine.Assembler
	graph         *engine.Graph
	tasks         *engine.Tasks
	consolidation *engine.Consolidation
}

// newEmbeddingProvider wires GenAIProvider when MEMORYD_EMBEDDING_API_KEY is
// set, falling back to NoopProvider (lexical-only retrieval) otherwise —
// hybrid retrieval is strictly additive (spec §9).
func newEmbeddingProvider(settings app.Settings) embedding.Provider {
	if settings.Embedding.APIKey == "" {
		return embedding.NoopProvider{}
	}
	provider, err := embedding.NewGenAIProvider(context.Background(), settings.Embedding.APIKey, settings.Embedding.Model, "", 0)
	if err != nil {
		slog.Warn("embedding provider unavailable, falling back to lexical-only retrieval", "error", err)
		return embedding.NoopProvider{}
	}
	return provider
}

func newServices(db *sql.DB, settings app.Settings, notifier *notify.Publisher) (*services, error) {
	embedder := newEmbeddingProvider(settings)
	dimension := embedder.Dimension()
	if dimension == 0 {
		dimension = 1
	}
	vecIndex, err := vectorindex.Open(context.Background(), db, dimension)
	if err != nil {
		return nil, err
	}

	policy := engine.NewPolicy(settings)
	mode := engine.NewModeDetector(db)
	budget := engine.NewBudgetAllocator()
	recorder := engine.NewRecorder(db, settings, policy, embedder, vecIndex, mode)
	resolver := engine.NewResolver(db, policy)
	surgery := engine.NewSurgery(db, notifier, resolver)
	capsules := engine.NewCapsules(db, notifier)
	retrieval := engine.NewRetrieval(db, settings, policy, embedder, vecIndex)
	assembler := engine.NewAssembler(db, settings, mode, budget, retrieval, capsules)
	graph := engine.NewGraph(db)
	tasks := engine.NewTasks(db)
	consolidation := engine.NewConsolidation(recorder, slog.Default())

	return &services{
		policy:        policy,
		recorder:      recorder,
		resolver:      resolver,
		surgery:       surgery,
		capsules:      capsules,
		retrieval:     retrieval,
		mode:          mode,
		budget:        budget,
		assembler:     assembler,
		graph:         graph,
		tasks:         tasks,
		consolidation: consolidation,
	}, nil
}

func newRegistry(db *sql.DB, svc *services) *tools.Registry {
	r := tools.NewRegistry()
	r.Register(tools.NewRecordEvent(svc.recorder))
	r.Register(tools.NewGetEvent(db))
	r.Register(tools.NewGetChunk(svc.resolver))
	r.Register(tools.NewBuildACB(svc.assembler))
	r.Register(tools.NewSearchChunks(svc.retrieval))
	r.Register(tools.NewGetChunkTimeline(db))
	r.Register(tools.NewQueryDecisions(db))
	r.Register(tools.NewCreateCapsule(svc.capsules))
	r.Register(tools.NewListCapsules(svc.capsules))
	r.Register(tools.NewGetCapsule(svc.capsules))
	r.Register(tools.NewRevokeCapsule(svc.capsules))
	r.Register(tools.NewCreateEdit(svc.surgery))
	r.Register(tools.NewApproveEdit(svc.surgery))
	r.Register(tools.NewRejectEdit(svc.surgery))
	r.Register(tools.NewGetEdit(svc.surgery))
	r.Register(tools.NewListEdits(svc.surgery))
	r.Register(tools.NewCreateEdge(svc.graph))
	r.Register(tools.NewGetEdges(svc.graph))
	r.Register(tools.NewTraverse(svc.graph))
	r.Register(tools.NewUpdateEdgeProperties(svc.graph))
	r.Register(tools.NewDeleteEdge(svc.graph))
	r.Register(tools.NewGetProjectTasks(svc.graph))
	r.Register(tools.NewGetProjectSummary(svc.graph))
	r.Register(tools.NewGetTaskDependencies(svc.graph))
	r.Register(tools.NewCreateTask(svc.tasks))
	r.Register(tools.NewGetTask(svc.tasks))
	r.Register(tools.NewListTasks(svc.tasks))
	r.Register(tools.NewUpdateTask(svc.tasks))
	r.Register(tools.NewDeleteTask(svc.tasks))
	return r
}
