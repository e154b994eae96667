package engine

// Section names the fixed-priority ACB sections packed by the Assembler
// (spec §4.I step 8 order): rules → task_state → relevant_decisions →
// retrieved_evidence → recent_window → capsules.
type Section string

const (
	SectionRules     Section = "rules"
	SectionTaskState Section = "task_state"
	SectionDecisions Section = "decisions"
	SectionEvidence  Section = "evidence"
	SectionRecent    Section = "recent"
	SectionCapsules  Section = "capsules"
)

// sectionOrder is the Assembler's fixed packing order (spec §4.I step 8).
var sectionOrder = []Section{
	SectionRules, SectionTaskState, SectionDecisions,
	SectionEvidence, SectionRecent, SectionCapsules,
}

// modeProfiles is the per-mode budget fraction table from spec §4.H,
// verbatim.
var modeProfiles = map[Mode]map[Section]float64{
	ModeTask: {
		SectionRules: 0.15, SectionTaskState: 0.10, SectionDecisions: 0.15,
		SectionEvidence: 0.35, SectionRecent: 0.20, SectionCapsules: 0.05,
	},
	ModeExploration: {
		SectionRules: 0.08, SectionTaskState: 0.05, SectionDecisions: 0.10,
		SectionEvidence: 0.30, SectionRecent: 0.40, SectionCapsules: 0.07,
	},
	ModeDebugging: {
		SectionRules: 0.08, SectionTaskState: 0.10, SectionDecisions: 0.10,
		SectionEvidence: 0.55, SectionRecent: 0.17, SectionCapsules: 0.00,
	},
	ModeLearning: {
		SectionRules: 0.12, SectionTaskState: 0.00, SectionDecisions: 0.10,
		SectionEvidence: 0.50, SectionRecent: 0.25, SectionCapsules: 0.03,
	},
	ModeGeneral: {
		SectionRules: 0.10, SectionTaskState: 0.08, SectionDecisions: 0.12,
		SectionEvidence: 0.35, SectionRecent: 0.30, SectionCapsules: 0.05,
	},
}

// BudgetAllocator converts a mode + total token budget into per-section
// token allotments (spec §4.H Budget Allocator).
type BudgetAllocator struct{}

// NewBudgetAllocator builds a BudgetAllocator.
func NewBudgetAllocator() *BudgetAllocator { return &BudgetAllocator{} }

// Allocate returns the token budget for each section, fractions of
// maxTokens drawn from the mode's profile (falling back to GENERAL for
// an unrecognized mode).
func (b *BudgetAllocator) Allocate(mode Mode, maxTokens int) map[Section]int {
	profile, ok := modeProfiles[mode]
	if !ok {
		profile = modeProfiles[ModeGeneral]
	}
	out := make(map[Section]int, len(profile))
	for _, s := range sectionOrder {
		out[s] = int(profile[s] * float64(maxTokens))
	}
	return out
}

// ReserveSticky carves a sub-budget out of the rules section for pinned
// sticky invariants, which must never be displaced by ordinary rules
// content (spec §4.H "non-displaceable sub-budget"). It returns the
// sticky allotment and the remaining rules budget for ordinary items.
func (b *BudgetAllocator) ReserveSticky(rulesBudget, stickyCount int) (sticky, remaining int) {
	if stickyCount == 0 {
		return 0, rulesBudget
	}
	// A sticky invariant is a short imperative sentence; reserve a small
	// fixed allotment per invariant rather than a fraction, so the
	// reservation scales with what's actually pinned instead of shrinking
	// every other rule whenever the profile's rules fraction is small.
	const perInvariantTokens = 40
	sticky = perInvariantTokens * stickyCount
	if sticky > rulesBudget {
		sticky = rulesBudget
	}
	return sticky, rulesBudget - sticky
}
