package engine

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agentmemory/memoryd/internal/app"
	"github.com/agentmemory/memoryd/internal/models"
	"github.com/agentmemory/memoryd/internal/store"
	"github.com/agentmemory/memoryd/pkg/acb"
)

// Assembler builds Active Context Bundles per spec §4.I's ten-step
// algorithm. Steps 2-7 (rules/identity, task state, decisions, retrieval,
// recent window, capsules) run concurrently via errgroup and are merged
// deterministically in fixed section order, never completion order (spec
// §5).
type Assembler struct {
	db        *sql.DB
	settings  app.Settings
	mode      *ModeDetector
	budget    *BudgetAllocator
	retrieval *Retrieval
	capsules  *Capsules
}

// NewAssembler builds an Assembler.
func NewAssembler(db *sql.DB, settings app.Settings, mode *ModeDetector, budget *BudgetAllocator, retrieval *Retrieval, capsules *Capsules) *Assembler {
	return &Assembler{db: db, settings: settings, mode: mode, budget: budget, retrieval: retrieval, capsules: capsules}
}

// BuildInput carries build_acb's inputs (spec §4.I).
type BuildInput struct {
	TenantID        string
	SessionID       string
	AgentID         string
	Channel         models.Channel
	Intent          string
	QueryText       string
	MaxTokens       int
	IncludeCapsules bool
	ProjectID       string
}

const recentWindowSize = 50

// Build runs the full ten-step ACB assembly algorithm. It is full-or-error:
// a context deadline during any fetch step fails the whole call rather
// than returning a partially-packed bundle (spec §4.I, §8 "No partial
// ACBs").
func (a *Assembler) Build(ctx context.Context, in BuildInput) (acb.ACB, error) {
	if in.TenantID == "" || in.SessionID == "" || in.AgentID == "" {
		return acb.ACB{}, models.NewInvalidInput("tenant_id, session_id, and agent_id are required")
	}
	maxTokens := in.MaxTokens
	if maxTokens <= 0 {
		maxTokens = a.settings.Budget.MaxTokens
		if maxTokens <= 0 {
			maxTokens = 65000
		}
	}

	// Step 1: detect mode, compute section budgets.
	detection := a.mode.Detect(in.Intent, in.QueryText)
	sectionBudgets := a.budget.Allocate(detection.Mode, maxTokens)

	// Steps 2-7: concurrent fetch.
	var (
		sticky    []models.SessionInvariant
		tasks     []models.Task
		decisions []models.Decision
		evidence  []Result
		recent    []models.Event
		caps      []models.Capsule
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sticky, err = a.mode.StickyInvariants(gctx, in.TenantID, in.SessionID)
		return err
	})
	g.Go(func() error {
		var err error
		tasks, err = store.ListTasks(gctx, a.db, in.TenantID, in.ProjectID, "")
		return err
	})
	g.Go(func() error {
		var err error
		decisions, err = store.QueryDecisions(gctx, a.db, in.TenantID, in.ProjectID, true, 0)
		return err
	})
	g.Go(func() error {
		var err error
		evidence, err = a.retrieval.Search(gctx, SearchInput{
			TenantID:      in.TenantID,
			QueryText:     in.QueryText,
			CallerChannel: in.Channel,
			ProjectID:     in.ProjectID,
		})
		return err
	})
	g.Go(func() error {
		var err error
		recent, err = store.ListRecentEventsBySession(gctx, a.db, in.TenantID, in.SessionID, recentWindowSize)
		return err
	})
	if in.IncludeCapsules {
		g.Go(func() error {
			var err error
			caps, err = a.capsules.ListCapsules(gctx, in.TenantID, in.AgentID)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return acb.ACB{}, err
	}

	sortDecisionsByScopePrecedence(decisions)
	sortTasksByPriority(tasks)

	var editsApplied int
	for _, r := range evidence {
		editsApplied += r.Chunk.EditsAppliedCount
	}

	out := acb.ACB{
		ID:             store.NewID(models.IDKindACB),
		TenantID:       in.TenantID,
		SessionID:      in.SessionID,
		AgentID:        in.AgentID,
		Channel:        string(in.Channel),
		Mode:           string(detection.Mode),
		ModeConfidence: detection.Confidence,
		BudgetTokens:   maxTokens,
		EditsApplied:   editsApplied,
		Provenance: acb.Provenance{
			Intent:            in.Intent,
			Mode:              string(detection.Mode),
			ModeConfidence:    detection.Confidence,
			QueryTerms:        splitSentences(in.QueryText),
			CandidatePoolSize: len(evidence),
			ScoringWeights: map[string]float64{
				"alpha": a.settings.Retrieval.Alpha,
				"beta":  a.settings.Retrieval.Beta,
				"gamma": a.settings.Retrieval.Gamma,
			},
			EditsAppliedCount: editsApplied,
		},
		GeneratedAt: time.Now().UTC(),
	}

	// Step 8: merge sticky invariants into rules first, pack remaining
	// sections in fixed priority, admitting items greedily by descending
	// score until the section budget is spent.
	stickyBudget, rulesBudget := a.budget.ReserveSticky(sectionBudgets[SectionRules], len(sticky))
	var omissions []acb.Omission

	rulesItems, rulesOverflow := packSticky(sticky, stickyBudget)
	omissions = append(omissions, rulesOverflow...)
	ordinaryRules, ordinaryOverflow := packItems(nil, rulesBudget)
	omissions = append(omissions, ordinaryOverflow...)
	out.Rules = append(rulesItems, ordinaryRules...)

	taskItems := tasksToItems(tasks)
	packed, overflow := packItems(taskItems, sectionBudgets[SectionTaskState])
	out.TaskState = packed
	omissions = append(omissions, overflow...)

	decisionItems := decisionsToItems(decisions)
	packed, overflow = packItems(decisionItems, sectionBudgets[SectionDecisions])
	out.RelevantDecisions = packed
	omissions = append(omissions, overflow...)

	evidenceItems := evidenceToItems(evidence)
	packed, overflow = packItems(evidenceItems, sectionBudgets[SectionEvidence])
	out.RetrievedEvidence = packed
	omissions = append(omissions, overflow...)

	recentItems := eventsToItems(recent)
	packed, overflow = packItems(recentItems, sectionBudgets[SectionRecent])
	out.RecentWindow = packed
	omissions = append(omissions, overflow...)

	if in.IncludeCapsules {
		capsuleItems := a.capsulesToItems(ctx, in.TenantID, caps)
		packed, overflow = packItems(capsuleItems, sectionBudgets[SectionCapsules])
		out.Capsules = packed
		omissions = append(omissions, overflow...)
		for _, c := range caps {
			out.Provenance.CapsuleIDsConsulted = append(out.Provenance.CapsuleIDsConsulted, c.ID)
		}
	}

	out.Sections = []acb.Section{
		{Name: string(SectionRules), Items: out.Rules, TokenEst: sumTokens(out.Rules)},
		{Name: string(SectionTaskState), Items: out.TaskState, TokenEst: sumTokens(out.TaskState)},
		{Name: string(SectionDecisions), Items: out.RelevantDecisions, TokenEst: sumTokens(out.RelevantDecisions)},
		{Name: string(SectionEvidence), Items: out.RetrievedEvidence, TokenEst: sumTokens(out.RetrievedEvidence)},
		{Name: string(SectionRecent), Items: out.RecentWindow, TokenEst: sumTokens(out.RecentWindow)},
		{Name: string(SectionCapsules), Items: out.Capsules, TokenEst: sumTokens(out.Capsules)},
	}
	for _, s := range out.Sections {
		out.TokenUsedEst += s.TokenEst
	}

	out.Omissions = omissions
	return out, nil
}

// packSticky admits every sticky invariant in order (oldest first) up to
// budget; sticky invariants are never scored/reordered, since they are
// hard constraints, not retrieval candidates.
func packSticky(invariants []models.SessionInvariant, budget int) ([]acb.Item, []acb.Omission) {
	var items []acb.Item
	var omissions []acb.Omission
	spent := 0
	for _, inv := range invariants {
		tokens := estimateTokens(inv.Text)
		if spent+tokens > budget {
			omissions = append(omissions, acb.Omission{ID: inv.ID, Kind: acb.ItemKindRule, Reason: acb.OmissionBudget})
			continue
		}
		items = append(items, acb.Item{ID: inv.ID, Kind: acb.ItemKindRule, Text: inv.Text, TokenEstimate: tokens, Sticky: true})
		spent += tokens
	}
	return items, omissions
}

// packItems admits pre-scored items in descending-score order up to
// budget; the first item that doesn't fit is recorded as an omission and
// packing continues past it (a later, smaller item may still fit), per
// spec §4.I step 9's "overflow items are recorded in omissions" framing.
func packItems(items []acb.Item, budget int) ([]acb.Item, []acb.Omission) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].Score > items[j].Score })
	var packed []acb.Item
	var omissions []acb.Omission
	spent := 0
	for _, it := range items {
		if spent+it.TokenEstimate > budget {
			omissions = append(omissions, acb.Omission{ID: it.ID, Kind: it.Kind, Reason: acb.OmissionBudget})
			continue
		}
		packed = append(packed, it)
		spent += it.TokenEstimate
	}
	return packed, omissions
}

func tasksToItems(tasks []models.Task) []acb.Item {
	out := make([]acb.Item, 0, len(tasks))
	for i, t := range tasks {
		text := t.Title
		if t.Details != "" {
			text += ": " + t.Details
		}
		out = append(out, acb.Item{
			ID: t.ID, Kind: acb.ItemKindTask, Text: text,
			Score: float64(len(tasks) - i), TokenEstimate: estimateTokens(text),
		})
	}
	return out
}

func decisionsToItems(decisions []models.Decision) []acb.Item {
	out := make([]acb.Item, 0, len(decisions))
	for _, d := range decisions {
		score := float64(d.Scope.Precedence())*1000 + float64(d.CreatedAt.Unix())/1e10
		out = append(out, acb.Item{
			ID: d.ID, Kind: acb.ItemKindDecision, Text: d.Text,
			Score: score, TokenEstimate: estimateTokens(d.Text),
		})
	}
	return out
}

func evidenceToItems(results []Result) []acb.Item {
	out := make([]acb.Item, 0, len(results))
	for _, r := range results {
		out = append(out, acb.Item{
			ID: r.Chunk.ID, Kind: acb.ItemKindChunk, Text: r.Chunk.Text,
			Score: r.Score, TokenEstimate: r.Chunk.TokenEstimate,
		})
	}
	return out
}

func eventsToItems(events []models.Event) []acb.Item {
	out := make([]acb.Item, 0, len(events))
	for i, e := range events {
		text, _ := primaryText(e.Kind, e.Content)
		out = append(out, acb.Item{
			ID: e.ID, Kind: acb.ItemKindEvent, Text: text,
			Score: float64(i), TokenEstimate: estimateTokens(text),
		})
	}
	return out
}

// capsulesToItems materializes each capsule's referenced chunks,
// decisions, and artifacts into its packed text (spec §4.I step 7
// "materialize their items' text"), rather than packing the capsule's
// own risk notes alone.
func (a *Assembler) capsulesToItems(ctx context.Context, tenantID string, capsules []models.Capsule) []acb.Item {
	out := make([]acb.Item, 0, len(capsules))
	for _, c := range capsules {
		text := a.materializeCapsuleText(ctx, tenantID, c)
		out = append(out, acb.Item{
			ID: c.ID, Kind: acb.ItemKindCapsule, Text: text,
			Score: float64(c.CreatedAt.Unix()), TokenEstimate: estimateTokens(text) + 20,
		})
	}
	return out
}

// materializeCapsuleText joins the text of every item a capsule
// references. Lookup failures are skipped rather than failing assembly —
// a capsule referencing an item that was since retracted still packs the
// text that remains available.
func (a *Assembler) materializeCapsuleText(ctx context.Context, tenantID string, c models.Capsule) string {
	var parts []string
	if len(c.Items.ChunkIDs) > 0 {
		chunks, err := store.GetEffectiveChunks(ctx, a.db, tenantID, c.Items.ChunkIDs)
		if err == nil {
			for _, ch := range chunks {
				parts = append(parts, ch.Text)
			}
		}
	}
	for _, id := range c.Items.DecisionIDs {
		d, err := store.GetDecision(ctx, a.db, tenantID, id)
		if err == nil {
			parts = append(parts, d.Text)
		}
	}
	for _, id := range c.Items.ArtifactIDs {
		art, err := store.GetArtifact(ctx, a.db, tenantID, id)
		if err == nil {
			parts = append(parts, string(art.Payload))
		}
	}
	parts = append(parts, c.Risks...)
	return strings.Join(parts, "\n")
}

func sumTokens(items []acb.Item) int {
	total := 0
	for _, it := range items {
		total += it.TokenEstimate
	}
	return total
}

func sortDecisionsByScopePrecedence(decisions []models.Decision) {
	sort.SliceStable(decisions, func(i, j int) bool {
		if decisions[i].Scope.Precedence() != decisions[j].Scope.Precedence() {
			return decisions[i].Scope.Precedence() > decisions[j].Scope.Precedence()
		}
		return decisions[i].CreatedAt.After(decisions[j].CreatedAt)
	})
}

func sortTasksByPriority(tasks []models.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Priority != tasks[j].Priority {
			return tasks[i].Priority > tasks[j].Priority
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
}
