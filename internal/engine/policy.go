// Package engine implements the request-facing components described in
// spec §4.C-§4.L: the Recorder, Effective-View Resolver, Memory Surgery,
// Capsule Service, Retrieval, Mode Detector & Budget Allocator, ACB
// Assembler, Graph, Policy & Redaction, and optional Consolidation. Each
// file wraps internal/store's DAOs with the validation, orchestration, and
// cross-cutting policy the spec assigns to the component boundary, rather
// than the storage layer.
package engine

import (
	"regexp"
	"strings"

	"github.com/agentmemory/memoryd/internal/app"
	"github.com/agentmemory/memoryd/internal/models"
)

// Policy evaluates the channel/sensitivity allow-list and secret-detection
// heuristics that gate what the Recorder is willing to persist (spec §4.K,
// §9 Open Question on sensitivity=secret).
type Policy struct {
	neverStoreSecrets bool
	channelAllow      map[models.Channel][]models.Sensitivity
}

// NewPolicy builds a Policy from loaded Settings. The channel allow-list is
// conservative by default: every channel allows none/low/high, and only
// NeverStoreSecrets=false tenants may persist sensitivity=secret content,
// and then only on the agent/private channels.
func NewPolicy(s app.Settings) *Policy {
	neverStore := true
	if s.Privacy.NeverStoreSecrets != nil {
		neverStore = *s.Privacy.NeverStoreSecrets
	}
	return &Policy{
		neverStoreSecrets: neverStore,
		channelAllow: map[models.Channel][]models.Sensitivity{
			models.ChannelPrivate: {models.SensitivityNone, models.SensitivityLow, models.SensitivityHigh, models.SensitivitySecret},
			models.ChannelAgent:   {models.SensitivityNone, models.SensitivityLow, models.SensitivityHigh, models.SensitivitySecret},
			models.ChannelTeam:    {models.SensitivityNone, models.SensitivityLow, models.SensitivityHigh},
			models.ChannelPublic:  {models.SensitivityNone, models.SensitivityLow},
		},
	}
}

// AllowedSensitivities returns the sensitivities a caller on channel may
// retrieve, used to build a Retrieval SearchParams filter.
func (p *Policy) AllowedSensitivities(channel models.Channel) []models.Sensitivity {
	if allowed, ok := p.channelAllow[channel]; ok {
		return allowed
	}
	return []models.Sensitivity{models.SensitivityNone}
}

// ChannelAllows reports whether sensitivity may be recorded/retrieved on
// channel at all.
func (p *Policy) ChannelAllows(channel models.Channel, sensitivity models.Sensitivity) bool {
	for _, s := range p.AllowedSensitivities(channel) {
		if s == sensitivity {
			return true
		}
	}
	return false
}

// secretPatterns recognizes common API-key/token shapes and PEM private
// key headers (spec §4.K "secret detection heuristics").
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)-----BEGIN [A-Z ]*PRIVATE KEY-----`),
	regexp.MustCompile(`\bsk-[A-Za-z0-9]{20,}\b`),
	regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
	regexp.MustCompile(`(?i)\b(api[_-]?key|token|secret)\s*[:=]\s*['"]?[A-Za-z0-9_\-/+=]{16,}`),
	regexp.MustCompile(`\bghp_[A-Za-z0-9]{36}\b`),
}

// LooksLikeSecret scans text for shapes that suggest credential material.
func LooksLikeSecret(text string) bool {
	for _, re := range secretPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// EnforceSecretPolicy raises an event's sensitivity to secret when its
// content text matches a secret pattern, and — per never_store_secrets —
// refuses the write outright rather than persist it (spec §4.C, §9).
func (p *Policy) EnforceSecretPolicy(sensitivity models.Sensitivity, text string) (models.Sensitivity, error) {
	if LooksLikeSecret(text) {
		sensitivity = models.SensitivitySecret
	}
	if sensitivity == models.SensitivitySecret && p.neverStoreSecrets {
		return sensitivity, models.NewInvalidInput(
			"content looks like a secret and never_store_secrets is enabled; store it out-of-band and reference it via a capsule or artifact id instead",
		)
	}
	return sensitivity, nil
}

// extractSticky finds imperative hard-constraint language ("must", "never",
// "required") in free text, returning the containing sentence trimmed of
// surrounding whitespace (spec §4.H "Sticky invariants").
var stickyVerbs = []string{"must", "never", "required", "always"}

func extractSticky(text string) []string {
	var out []string
	for _, sentence := range splitSentences(text) {
		lower := strings.ToLower(sentence)
		for _, v := range stickyVerbs {
			if strings.Contains(lower, v) {
				out = append(out, strings.TrimSpace(sentence))
				break
			}
		}
	}
	return out
}

func splitSentences(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '\n' || r == '!' || r == '?'
	})
}
