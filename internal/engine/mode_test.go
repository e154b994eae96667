package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectIntentDominance(t *testing.T) {
	d := NewModeDetector(nil)

	got := d.Detect("debug", "let's talk about the weather")
	assert.Equal(t, ModeDebugging, got.Mode)
	assert.Equal(t, 1.0, got.Confidence)
}

func TestDetectIntentIsCaseAndWhitespaceInsensitive(t *testing.T) {
	d := NewModeDetector(nil)

	got := d.Detect("  Implement  ", "")
	assert.Equal(t, ModeTask, got.Mode)
}

func TestDetectFallsBackToQueryHeuristics(t *testing.T) {
	d := NewModeDetector(nil)

	cases := map[string]Mode{
		"the build is failing with a panic":              ModeDebugging,
		"can you explain how retrieval works":             ModeLearning,
		"just thinking out loud, what if we cached this":  ModeExploration,
		"please implement the new endpoint":               ModeTask,
		"nothing in particular":                           ModeGeneral,
	}
	for query, want := range cases {
		got := d.Detect("", query)
		assert.Equal(t, want, got.Mode, "query: %q", query)
	}
}

func TestDetectUnknownIntentFallsThroughToQueryHeuristics(t *testing.T) {
	d := NewModeDetector(nil)

	got := d.Detect("not-a-known-intent", "this crashed with a fatal panic")
	assert.Equal(t, ModeDebugging, got.Mode)
}

func TestContainsAny(t *testing.T) {
	assert.True(t, containsAny("the server crashed overnight", errorVerbs))
	assert.False(t, containsAny("everything is fine", errorVerbs))
}

func TestLooksLikeBlockingError(t *testing.T) {
	assert.True(t, looksLikeBlockingError("FATAL: permission denied"))
	assert.True(t, looksLikeBlockingError("access forbidden for this token"))
	assert.False(t, looksLikeBlockingError("completed successfully"))
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "first", firstLine("first\nsecond\nthird"))
	assert.Equal(t, "only", firstLine("only"))
}
