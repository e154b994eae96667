package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllocateModeProfile(t *testing.T) {
	b := NewBudgetAllocator()

	out := b.Allocate(ModeTask, 1000)
	assert.Equal(t, 150, out[SectionRules])
	assert.Equal(t, 100, out[SectionTaskState])
	assert.Equal(t, 150, out[SectionDecisions])
	assert.Equal(t, 350, out[SectionEvidence])
	assert.Equal(t, 200, out[SectionRecent])
	assert.Equal(t, 50, out[SectionCapsules])
}

func TestAllocateUnknownModeFallsBackToGeneral(t *testing.T) {
	b := NewBudgetAllocator()

	out := b.Allocate(Mode("NOT_A_REAL_MODE"), 1000)
	general := b.Allocate(ModeGeneral, 1000)
	assert.Equal(t, general, out)
}

func TestAllocateCoversEverySectionForEveryMode(t *testing.T) {
	b := NewBudgetAllocator()

	for _, mode := range []Mode{ModeTask, ModeExploration, ModeDebugging, ModeLearning, ModeGeneral} {
		out := b.Allocate(mode, 800)
		for _, s := range sectionOrder {
			_, ok := out[s]
			assert.True(t, ok, "mode %s missing section %s", mode, s)
		}
	}
}

func TestReserveStickyNoInvariants(t *testing.T) {
	b := NewBudgetAllocator()

	sticky, remaining := b.ReserveSticky(500, 0)
	assert.Equal(t, 0, sticky)
	assert.Equal(t, 500, remaining)
}

func TestReserveStickyWithinBudget(t *testing.T) {
	b := NewBudgetAllocator()

	sticky, remaining := b.ReserveSticky(500, 3)
	assert.Equal(t, 120, sticky)
	assert.Equal(t, 380, remaining)
}

func TestReserveStickyCapsAtRulesBudget(t *testing.T) {
	b := NewBudgetAllocator()

	// 20 invariants * 40 tokens = 800, more than the 100-token rules budget.
	sticky, remaining := b.ReserveSticky(100, 20)
	assert.Equal(t, 100, sticky)
	assert.Equal(t, 0, remaining)
}
