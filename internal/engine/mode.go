package engine

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/agentmemory/memoryd/internal/models"
	"github.com/agentmemory/memoryd/internal/store"
)

// Mode is an interaction mode the Budget Allocator profiles for (spec
// §4.H).
type Mode string

const (
	ModeTask        Mode = "TASK"
	ModeExploration Mode = "EXPLORATION"
	ModeDebugging   Mode = "DEBUGGING"
	ModeLearning    Mode = "LEARNING"
	ModeGeneral     Mode = "GENERAL"
)

// intentDominanceThreshold is the confidence above which a caller-supplied
// intent string wins outright over query heuristics (spec §4.H).
const intentDominanceThreshold = 0.7

// ModeDetector classifies the interaction mode driving an ACB build and
// tracks the session's sticky invariants.
type ModeDetector struct {
	db *sql.DB
}

// NewModeDetector builds a ModeDetector.
func NewModeDetector(db *sql.DB) *ModeDetector {
	return &ModeDetector{db: db}
}

// Detection is the Mode Detector's output.
type Detection struct {
	Mode       Mode
	Confidence float64
}

// intentModes maps a caller-supplied intent string to a mode at full
// confidence; anything not listed falls through to query heuristics.
var intentModes = map[string]Mode{
	"task":        ModeTask,
	"implement":   ModeTask,
	"build":       ModeTask,
	"explore":     ModeExploration,
	"exploration": ModeExploration,
	"debug":       ModeDebugging,
	"fix":         ModeDebugging,
	"learn":       ModeLearning,
	"teach":       ModeLearning,
	"general":     ModeGeneral,
}

var errorVerbs = []string{"error", "fails", "failing", "crash", "panic", "exception", "broke", "broken", "bug"}
var imperativeVerbs = []string{"implement", "fix", "build", "add", "create", "refactor", "migrate"}
var exploratoryVerbs = []string{"thinking", "wondering", "explore", "what if", "could we", "curious"}
var teachingVerbs = []string{"explain", "teach", "how does", "why does", "walk me through"}

// Detect implements §4.H's mode classification: an intent string at
// confidence ≥ intentDominanceThreshold dominates; otherwise query
// heuristics decide; default is GENERAL.
func (m *ModeDetector) Detect(intent, queryText string) Detection {
	if mode, ok := intentModes[strings.ToLower(strings.TrimSpace(intent))]; ok {
		return Detection{Mode: mode, Confidence: 1.0}
	}

	lower := strings.ToLower(queryText)
	switch {
	case containsAny(lower, errorVerbs):
		return Detection{Mode: ModeDebugging, Confidence: 0.6}
	case containsAny(lower, teachingVerbs):
		return Detection{Mode: ModeLearning, Confidence: 0.6}
	case containsAny(lower, exploratoryVerbs):
		return Detection{Mode: ModeExploration, Confidence: 0.55}
	case containsAny(lower, imperativeVerbs):
		return Detection{Mode: ModeTask, Confidence: 0.55}
	default:
		return Detection{Mode: ModeGeneral, Confidence: 0.3}
	}
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}

// ObserveEventTx extracts sticky invariants from an event's text
// (imperative language) or from a blocking tool_result error, and
// persists them in the same transaction that records the event (spec
// §4.H "Sticky invariants"), so invariant extraction shares the event
// write's all-or-nothing guarantee (spec §4.C).
func (m *ModeDetector) ObserveEventTx(ctx context.Context, tx *sql.Tx, tenantID, sessionID, eventID string, kind models.EventKind, text string) error {
	if sessionID == "" || text == "" {
		return nil
	}
	var sentences []string
	switch kind {
	case models.EventKindMessage, models.EventKindDecision:
		sentences = extractSticky(text)
	case models.EventKindToolResult:
		if looksLikeBlockingError(text) {
			sentences = []string{strings.TrimSpace(firstLine(text))}
		}
	}
	now := time.Now().UTC()
	for _, s := range sentences {
		if s == "" {
			continue
		}
		if err := store.InsertSessionInvariantTx(ctx, tx, models.SessionInvariant{
			ID:        store.NewID("inv"),
			TenantID:  tenantID,
			SessionID: sessionID,
			Text:      s,
			Source:    eventID,
			CreatedAt: now,
		}); err != nil {
			return err
		}
	}
	return nil
}

func looksLikeBlockingError(text string) bool {
	lower := strings.ToLower(text)
	return containsAny(lower, []string{"fatal", "panic", "must not", "denied", "forbidden", "refused"})
}

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return text[:i]
	}
	return text
}

// StickyInvariants returns the session's currently-pinned invariants,
// oldest first.
func (m *ModeDetector) StickyInvariants(ctx context.Context, tenantID, sessionID string) ([]models.SessionInvariant, error) {
	return store.ListActiveSessionInvariants(ctx, m.db, tenantID, sessionID)
}
