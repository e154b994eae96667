package engine

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/agentmemory/memoryd/internal/app"
	"github.com/agentmemory/memoryd/internal/embedding"
	"github.com/agentmemory/memoryd/internal/models"
	"github.com/agentmemory/memoryd/internal/store"
	"github.com/agentmemory/memoryd/internal/vectorindex"
)

// rrfK is Reciprocal Rank Fusion's smoothing constant (spec §4.G "k=60"):
// it flattens the influence of very high single-ranker ranks so neither
// modality dominates fusion on rank 1 alone.
const rrfK = 60

// Retrieval runs spec §4.G: lexical candidate generation over
// effective_chunks, scored by similarity/recency/importance, optionally
// fused with vector nearest-neighbors via Reciprocal Rank Fusion when an
// embedding provider and a populated vector index are both available.
type Retrieval struct {
	db       *sql.DB
	settings app.Settings
	policy   *Policy
	embedder embedding.Provider
	vecIndex *vectorindex.Index
}

// NewRetrieval builds a Retrieval. embedder/vecIndex may be nil/noop, in
// which case Search runs lexical-only.
func NewRetrieval(db *sql.DB, settings app.Settings, policy *Policy, embedder embedding.Provider, vecIndex *vectorindex.Index) *Retrieval {
	return &Retrieval{db: db, settings: settings, policy: policy, embedder: embedder, vecIndex: vecIndex}
}

// SearchInput carries a retrieval query's inputs.
type SearchInput struct {
	TenantID      string
	QueryText     string
	CallerChannel models.Channel
	Scope         models.Scope
	SubjectType   string
	SubjectID     string
	ProjectID     string
	Limit         int
}

// Result is a single retrieved chunk with its fused rank and score.
type Result struct {
	Chunk      models.EffectiveChunk
	Score      float64
	FusedRank  int
	FromVector bool
	FromLexical bool
}

// Search runs lexical candidate generation (always) and vector candidate
// generation (when configured), fuses the two rank lists with RRF when
// both are present, and truncates to Limit (default
// retrieved_chunks_max, spec §4.G steps 1-3).
func (r *Retrieval) Search(ctx context.Context, in SearchInput) ([]Result, error) {
	if in.QueryText == "" {
		return nil, nil
	}
	limit := in.Limit
	if limit <= 0 {
		limit = r.settings.Retrieval.RetrievedChunksMax
		if limit <= 0 {
			limit = 200
		}
	}

	lexical, err := store.SearchChunksLexical(ctx, r.db, store.SearchParams{
		TenantID:             in.TenantID,
		QueryText:            in.QueryText,
		CallerChannel:        in.CallerChannel,
		AllowedSensitivities: r.policy.AllowedSensitivities(in.CallerChannel),
		Scope:                in.Scope,
		SubjectType:          in.SubjectType,
		SubjectID:            in.SubjectID,
		ProjectID:            in.ProjectID,
		CandidatePoolMax:     r.settings.Retrieval.CandidatePoolMax,
		Alpha:                r.settings.Retrieval.Alpha,
		Beta:                 r.settings.Retrieval.Beta,
		Gamma:                r.settings.Retrieval.Gamma,
		HalfLife:             72 * time.Hour,
		Now:                  time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	if r.embedder == nil || r.embedder.Dimension() == 0 || r.vecIndex == nil {
		out := make([]Result, 0, min(len(lexical), limit))
		for i, sc := range lexical {
			if i >= limit {
				break
			}
			out = append(out, Result{Chunk: sc.Chunk, Score: sc.Score, FusedRank: i + 1, FromLexical: true})
		}
		return out, nil
	}

	queryVec, err := r.embedder.Embed(ctx, in.QueryText)
	if err != nil {
		return nil, err
	}
	neighbors, err := r.vecIndex.Query(ctx, in.TenantID, queryVec, r.settings.Retrieval.CandidatePoolMax)
	if err != nil {
		return nil, err
	}

	lexicalIDs := make(map[string]bool, len(lexical))
	for _, sc := range lexical {
		lexicalIDs[sc.Chunk.ID] = true
	}
	var vectorOnlyIDs []string
	for _, n := range neighbors {
		if !lexicalIDs[n.ChunkID] {
			vectorOnlyIDs = append(vectorOnlyIDs, n.ChunkID)
		}
	}
	vectorOnlyChunks, err := store.GetEffectiveChunks(ctx, r.db, in.TenantID, vectorOnlyIDs)
	if err != nil {
		return nil, err
	}
	vectorOnlyByID := make(map[string]models.EffectiveChunk, len(vectorOnlyChunks))
	for _, ec := range vectorOnlyChunks {
		if r.policy.ChannelAllows(in.CallerChannel, ec.Sensitivity) && !ec.IsRetracted && !ec.IsQuarantined {
			vectorOnlyByID[ec.ID] = ec
		}
	}

	return fuseRRF(lexical, neighbors, vectorOnlyByID, limit), nil
}

// fuseRRF combines lexical and vector rank lists via Reciprocal Rank
// Fusion: fused_score(doc) = sum over rankers of 1/(k+rank). Chunks
// present in only one list still get a score from that list alone (spec
// §4.G "optional hybrid... RRF... deterministic for fixed tenant state").
func fuseRRF(lexical []store.ScoredChunk, vector []vectorindex.Neighbor, vectorOnly map[string]models.EffectiveChunk, limit int) []Result {
	type accum struct {
		chunk       models.EffectiveChunk
		score       float64
		fromLexical bool
		fromVector  bool
	}
	byID := make(map[string]*accum, len(lexical)+len(vector))
	order := make([]string, 0, len(lexical)+len(vector))

	for i, sc := range lexical {
		a := &accum{chunk: sc.Chunk, fromLexical: true}
		a.score += 1.0 / float64(rrfK+i+1)
		byID[sc.Chunk.ID] = a
		order = append(order, sc.Chunk.ID)
	}
	for i, n := range vector {
		if a, ok := byID[n.ChunkID]; ok {
			a.score += 1.0 / float64(rrfK+i+1)
			a.fromVector = true
			continue
		}
		// A vector-only neighbor: it wasn't in the lexical candidate
		// pool at all, so it has no ScoredChunk; resolve it separately
		// (policy-filtered, so it may be legitimately absent from
		// vectorOnly) so it can still outrank a weak lexical match.
		ec, ok := vectorOnly[n.ChunkID]
		if !ok {
			continue
		}
		a := &accum{chunk: ec, fromVector: true}
		a.score += 1.0 / float64(rrfK+i+1)
		byID[n.ChunkID] = a
		order = append(order, n.ChunkID)
	}

	sort.SliceStable(order, func(i, j int) bool {
		return byID[order[i]].score > byID[order[j]].score
	})

	out := make([]Result, 0, min(len(order), limit))
	for rank, id := range order {
		if rank >= limit {
			break
		}
		a := byID[id]
		out = append(out, Result{
			Chunk:       a.chunk,
			Score:       a.score,
			FusedRank:   rank + 1,
			FromLexical: a.fromLexical,
			FromVector:  a.fromVector,
		})
	}
	return out
}
