package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCapsuleIsVisibleToRequiresActiveStatus(t *testing.T) {
	now := time.Now()
	c := Capsule{
		Status:           CapsuleStatusRevoked,
		ExpiresAt:        now.Add(time.Hour),
		AudienceAgentIDs: []string{"agent-1"},
	}
	assert.False(t, c.IsVisibleTo("agent-1", now))
}

func TestCapsuleIsVisibleToRequiresUnexpired(t *testing.T) {
	now := time.Now()
	c := Capsule{
		Status:           CapsuleStatusActive,
		ExpiresAt:        now.Add(-time.Minute),
		AudienceAgentIDs: []string{"agent-1"},
	}
	assert.False(t, c.IsVisibleTo("agent-1", now))
}

func TestCapsuleIsVisibleToRequiresAudienceMembership(t *testing.T) {
	now := time.Now()
	c := Capsule{
		Status:           CapsuleStatusActive,
		ExpiresAt:        now.Add(time.Hour),
		AudienceAgentIDs: []string{"agent-1", "agent-2"},
	}
	assert.True(t, c.IsVisibleTo("agent-2", now))
	assert.False(t, c.IsVisibleTo("agent-3", now))
}

func TestValidatePatchAmend(t *testing.T) {
	text := "new text"
	importance := 0.5
	badImportance := 1.5
	delta := 0.1

	assert.NoError(t, ValidatePatch(EditOpAmend, EditPatch{Text: &text}))
	assert.NoError(t, ValidatePatch(EditOpAmend, EditPatch{Importance: &importance}))
	assert.Error(t, ValidatePatch(EditOpAmend, EditPatch{}))
	assert.Error(t, ValidatePatch(EditOpAmend, EditPatch{Importance: &badImportance}))
	assert.Error(t, ValidatePatch(EditOpAmend, EditPatch{Text: &text, ImportanceDelta: &delta}))
}

func TestValidatePatchAttenuate(t *testing.T) {
	importance := 0.5
	delta := -0.2
	text := "oops"

	assert.NoError(t, ValidatePatch(EditOpAttenuate, EditPatch{Importance: &importance}))
	assert.NoError(t, ValidatePatch(EditOpAttenuate, EditPatch{ImportanceDelta: &delta}))
	assert.Error(t, ValidatePatch(EditOpAttenuate, EditPatch{}))
	assert.Error(t, ValidatePatch(EditOpAttenuate, EditPatch{Text: &text}))
}

func TestValidatePatchBlock(t *testing.T) {
	assert.NoError(t, ValidatePatch(EditOpBlock, EditPatch{Channel: "public"}))
	assert.Error(t, ValidatePatch(EditOpBlock, EditPatch{}))
}

func TestValidatePatchRetractAndQuarantineRejectNonEmptyPatch(t *testing.T) {
	importance := 0.5
	assert.NoError(t, ValidatePatch(EditOpRetract, EditPatch{}))
	assert.NoError(t, ValidatePatch(EditOpQuarantine, EditPatch{}))
	assert.Error(t, ValidatePatch(EditOpRetract, EditPatch{Importance: &importance}))
}

func TestValidatePatchUnknownOp(t *testing.T) {
	assert.Error(t, ValidatePatch(EditOp("bogus"), EditPatch{}))
}

func TestClampImportance(t *testing.T) {
	assert.Equal(t, 0.0, ClampImportance(-1.5))
	assert.Equal(t, 1.0, ClampImportance(1.5))
	assert.Equal(t, 0.5, ClampImportance(0.5))
}
