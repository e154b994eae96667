package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/agentmemory/memoryd/internal/models"
	"github.com/agentmemory/memoryd/internal/store"
)

// staleAfter is how long a chunk sits untouched before consolidation
// considers it for stratification (spec §4.L).
const staleAfter = 72 * time.Hour

// consolidationBatchSize bounds how many stale chunks one run inspects per
// tenant, so a tenant with a long history doesn't monopolize the ticker.
const consolidationBatchSize = 500

// reflectionChunkThreshold is how many stale chunks on the same subject
// trigger a reflection note instead of leaving them as individually
// retrievable evidence.
const reflectionChunkThreshold = 5

// Consolidation periodically strata a tenant's aging chunks into
// reflection summaries, written back through the Recorder as
// knowledge_note events (spec §4.L, §9 Design Notes: "must not alter the
// event log"). It never mutates or deletes the source events or chunks it
// reads — consolidation is purely additive.
type Consolidation struct {
	recorder *Recorder
	logger   *slog.Logger
}

// NewConsolidation builds a Consolidation job. recorder is reused so
// knowledge_note events go through the same validation, scope/subject
// resolution, and chunking path as any other event (spec §4.L "through
// the same Recorder path").
func NewConsolidation(recorder *Recorder, logger *slog.Logger) *Consolidation {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consolidation{recorder: recorder, logger: logger}
}

// Name satisfies the scheduler's Job interface (spec §9, cmd/memoryd serve
// loop).
func (c *Consolidation) Name() string { return "consolidation" }

// Run stratifies one tenant's stale chunks. It is safe to call on a
// ticker: a run that finds nothing to consolidate is a no-op.
func (c *Consolidation) Run(ctx context.Context, tenantID string) error {
	chunks, err := store.ListChunksForConsolidation(ctx, c.recorder.db, tenantID, time.Now().Add(-staleAfter), consolidationBatchSize)
	if err != nil {
		return fmt.Errorf("list chunks for consolidation: %w", err)
	}
	if len(chunks) == 0 {
		return nil
	}

	groups := groupBySubject(chunks)
	written := 0
	for subject, group := range groups {
		if len(group) < reflectionChunkThreshold {
			continue
		}
		note := reflectChunks(subject, group)
		content, err := json.Marshal(note)
		if err != nil {
			return fmt.Errorf("marshal reflection note: %w", err)
		}
		_, err = c.recorder.RecordEvent(ctx, RecordEventInput{
			TenantID:    tenantID,
			SessionID:   "consolidation",
			AgentID:     "consolidation",
			Channel:     models.ChannelAgent,
			Actor:       models.Actor{Type: models.ActorAgent, ID: "consolidation"},
			Kind:        models.EventKindKnowledgeNote,
			Content:     content,
			Tags:        []string{"consolidation", "reflection"},
			Scope:       group[0].Scope,
			SubjectType: group[0].SubjectType,
			SubjectID:   group[0].SubjectID,
			ProjectID:   group[0].ProjectID,
		})
		if err != nil {
			c.logger.Error("consolidation: failed to record reflection note", "tenant_id", tenantID, "subject", subject, "error", err)
			continue
		}
		written++
	}
	c.logger.Debug("consolidation run complete", "tenant_id", tenantID, "stale_chunks", len(chunks), "notes_written", written)
	return nil
}

// groupBySubject strata chunks by (subject_type, subject_id), falling
// back to scope when no subject is set — the simplest stratification
// axis that still separates unrelated memories (spec §4.L "stratified
// memory layers").
func groupBySubject(chunks []models.EffectiveChunk) map[string][]models.EffectiveChunk {
	groups := make(map[string][]models.EffectiveChunk)
	for _, c := range chunks {
		key := string(c.Scope)
		if c.SubjectType != "" || c.SubjectID != "" {
			key = c.SubjectType + ":" + c.SubjectID
		}
		groups[key] = append(groups[key], c)
	}
	return groups
}

// reflectChunks produces an extractive summary: the highest-importance
// chunks in the group, newest first, joined into a single note body. No
// generative summarization model is wired (spec Non-goals exclude
// "training of embedding/summarization models"); this is a deterministic
// reduction of what's already stored.
func reflectChunks(subject string, group []models.EffectiveChunk) models.KnowledgeNote {
	sort.SliceStable(group, func(i, j int) bool {
		if group[i].Importance != group[j].Importance {
			return group[i].Importance > group[j].Importance
		}
		return group[i].CreatedAt.After(group[j].CreatedAt)
	})
	const maxExcerpts = 8
	if len(group) > maxExcerpts {
		group = group[:maxExcerpts]
	}
	var b strings.Builder
	for i, c := range group {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- " + c.Text)
	}
	return models.KnowledgeNote{
		Title:     fmt.Sprintf("Reflection: %s", subject),
		Body:      b.String(),
		Tags:      []string{"reflection"},
		CreatedBy: "consolidation",
	}
}
