// Package acb defines the Active Context Bundle — the self-contained,
// budget-packed memory payload the ACB Assembler hands back to a caller
// (spec §4.I). It is a separate package from internal/engine so a future
// transport layer can depend on the result shape without pulling in the
// assembler's storage dependencies.
package acb

import "time"

// ItemKind names what a packed Item points back to, so a downstream
// caller can re-fetch it by id through the right service.
type ItemKind string

const (
	ItemKindChunk    ItemKind = "chunk"
	ItemKindDecision ItemKind = "decision"
	ItemKindTask     ItemKind = "task"
	ItemKindEvent    ItemKind = "event"
	ItemKindCapsule  ItemKind = "capsule"
	ItemKindRule     ItemKind = "rule"
)

// Item is one packed unit of context: self-contained enough to display,
// and carrying the id a caller needs to re-fetch the full record (spec
// §4.I "Output is self-contained").
type Item struct {
	ID            string   `json:"id"`
	Kind          ItemKind `json:"kind"`
	Text          string   `json:"text"`
	Score         float64  `json:"score"`
	TokenEstimate int      `json:"token_estimate"`
	Sticky        bool     `json:"sticky,omitempty"`
}

// OmissionReason enumerates why an otherwise-eligible item didn't make
// the cut (spec §4.I step 9).
type OmissionReason string

const (
	OmissionBudget              OmissionReason = "budget"
	OmissionPrivacy             OmissionReason = "privacy"
	OmissionPolicy              OmissionReason = "policy"
	OmissionChannelBlocked      OmissionReason = "channel_blocked"
	OmissionTruncatedToolOutput OmissionReason = "truncated_tool_output"
)

// Omission records one item that was considered but not packed.
type Omission struct {
	ID     string         `json:"id"`
	Kind   ItemKind       `json:"kind"`
	Reason OmissionReason `json:"reason"`
}

// Provenance is the audit trail spec §4.I step 10 requires on every ACB.
type Provenance struct {
	Intent              string             `json:"intent"`
	Mode                string             `json:"mode"`
	ModeConfidence      float64            `json:"mode_confidence"`
	QueryTerms          []string           `json:"query_terms,omitempty"`
	CandidatePoolSize   int                `json:"candidate_pool_size"`
	Filters             map[string]string  `json:"filters,omitempty"`
	ScoringWeights      map[string]float64 `json:"scoring_weights,omitempty"`
	CapsuleIDsConsulted []string           `json:"capsule_ids_consulted,omitempty"`
	EditsAppliedCount   int                `json:"edits_applied_count"`
}

// Section names one packed section of an ACB alongside its own token
// estimate, so the §8 budget-adherence invariant (Σ section.token_est =
// token_used_est) can be read straight off the wire shape.
type Section struct {
	Name     string `json:"name"`
	Items    []Item `json:"items"`
	TokenEst int    `json:"token_est"`
}

// ACB is the Active Context Bundle itself: the fixed, budget-packed
// sections in the order the Assembler fills them (spec §4.I step 8).
type ACB struct {
	ID                string     `json:"acb_id"`
	TenantID          string     `json:"tenant_id"`
	SessionID         string     `json:"session_id"`
	AgentID           string     `json:"agent_id"`
	Channel           string     `json:"channel"`
	Mode              string     `json:"mode"`
	ModeConfidence    float64    `json:"mode_confidence"`
	BudgetTokens      int        `json:"budget_tokens"`
	TokenUsedEst      int        `json:"token_used_est"`
	Rules             []Item     `json:"rules"`
	TaskState         []Item     `json:"task_state"`
	RelevantDecisions []Item     `json:"relevant_decisions"`
	RetrievedEvidence []Item     `json:"retrieved_evidence"`
	RecentWindow      []Item     `json:"recent_window"`
	Capsules          []Item     `json:"capsules"`
	Sections          []Section  `json:"sections"`
	Omissions         []Omission `json:"omissions,omitempty"`
	Provenance        Provenance `json:"provenance"`
	EditsApplied      int        `json:"edits_applied"`
	GeneratedAt       time.Time  `json:"generated_at"`
}
