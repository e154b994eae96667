package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/agentmemory/memoryd/internal/app"
	"github.com/agentmemory/memoryd/internal/embedding"
	"github.com/agentmemory/memoryd/internal/models"
	"github.com/agentmemory/memoryd/internal/store"
	"github.com/agentmemory/memoryd/internal/vectorindex"
	"github.com/google/uuid"
)

// charsPerTokenEstimate is the fixed heuristic spec §4.C calls for ("no
// tokenizer dependency required"): roughly 4 characters per token for
// English prose, matching common tokenizer-free estimators.
const charsPerTokenEstimate = 4

// baselineImportance is the importance a chunk starts from before the
// kind/tag/signal bumps in spec §4.C are applied.
const baselineImportance = 0.5

// Recorder is the single write path for events (spec §4.C).
type Recorder struct {
	db           *sql.DB
	settings     app.Settings
	policy       *Policy
	embedder     embedding.Provider
	vecIndex     *vectorindex.Index
	modeDetector *ModeDetector
}

// NewRecorder builds a Recorder. vecIndex may be nil when no vector index
// is configured; embedder may be embedding.NoopProvider{} when no API key
// is configured, in which case chunks are stored without embeddings.
// modeDetector may be nil, in which case sticky-invariant extraction is
// skipped.
func NewRecorder(db *sql.DB, settings app.Settings, policy *Policy, embedder embedding.Provider, vecIndex *vectorindex.Index, modeDetector *ModeDetector) *Recorder {
	return &Recorder{db: db, settings: settings, policy: policy, embedder: embedder, vecIndex: vecIndex, modeDetector: modeDetector}
}

// RecordEventInput carries record_event's inputs per spec §4.C.
type RecordEventInput struct {
	TenantID    string
	SessionID   string
	AgentID     string
	Channel     models.Channel
	Actor       models.Actor
	Kind        models.EventKind
	Content     json.RawMessage
	Tags        []string
	Refs        []string
	Scope       models.Scope
	SubjectType string
	SubjectID   string
	ProjectID   string
	// RequestID, when set, makes this call idempotent: retries with the
	// same (TenantID, AgentID, RequestID) replay the first result instead
	// of recording a second event.
	RequestID string
}

// RecordEventResult is record_event's output per spec §6.
type RecordEventResult struct {
	EventID string `json:"event_id"`
}

// RecordEvent validates, redacts, persists an event, derives its chunks,
// and updates decisions/tasks, all in one transaction (spec §4.C).
func (r *Recorder) RecordEvent(ctx context.Context, in RecordEventInput) (RecordEventResult, error) {
	if in.TenantID == "" {
		return RecordEventResult{}, models.NewInvalidInput("tenant_id is required")
	}
	if in.AgentID == "" {
		return RecordEventResult{}, models.NewInvalidInput("agent_id is required")
	}
	if len(in.Content) == 0 || !json.Valid(in.Content) {
		return RecordEventResult{}, models.NewInvalidInput("content must be non-empty valid JSON")
	}
	if in.Actor.Type == "" || in.Actor.ID == "" {
		return RecordEventResult{}, models.NewInvalidInput("actor.type and actor.id are required")
	}
	if in.Channel == "" {
		return RecordEventResult{}, models.NewInvalidInput("channel is required")
	}

	requestID := in.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	return store.RunIdempotent(ctx, r.db, in.TenantID, in.AgentID, requestID, "record_event",
		func(tx *sql.Tx) (RecordEventResult, error) {
			return r.recordInTx(ctx, tx, in)
		})
}

func (r *Recorder) recordInTx(ctx context.Context, tx *sql.Tx, in RecordEventInput) (RecordEventResult, error) {
	text, err := primaryText(in.Kind, in.Content)
	if err != nil {
		return RecordEventResult{}, err
	}

	sensitivity := inferSensitivity(in.Tags)
	sensitivity, err = r.policy.EnforceSecretPolicy(sensitivity, text)
	if err != nil {
		return RecordEventResult{}, err
	}

	scope, projectID := r.resolveScope(in)
	subjectType, subjectID := r.resolveSubject(in)

	content := in.Content
	var artifactID string
	var fullExcerpt string
	if in.Kind == models.EventKindToolResult {
		content, artifactID, fullExcerpt, err = r.normalizeToolResult(content)
		if err != nil {
			return RecordEventResult{}, err
		}
		// Re-derive text from the (possibly truncated) normalized content;
		// the chunk is built from the truncated excerpt, the artifact (if
		// any) from fullExcerpt.
		text, err = primaryText(in.Kind, content)
		if err != nil {
			return RecordEventResult{}, err
		}
	}

	now := time.Now().UTC()
	event := models.Event{
		ID:          store.NewID(models.IDKindEvent),
		TenantID:    in.TenantID,
		SessionID:   in.SessionID,
		Channel:     in.Channel,
		Actor:       in.Actor,
		Kind:        in.Kind,
		Sensitivity: sensitivity,
		Tags:        in.Tags,
		Content:     content,
		Refs:        in.Refs,
		Scope:       scope,
		SubjectType: subjectType,
		SubjectID:   subjectID,
		ProjectID:   projectID,
		CreatedAt:   now,
	}

	if err := store.InsertEventTx(ctx, tx, event); err != nil {
		if store.IsUniqueConstraintErr(err) {
			event.ID = store.NewID(models.IDKindEvent)
			if err := store.InsertEventTx(ctx, tx, event); err != nil {
				if store.IsUniqueConstraintErr(err) {
					return RecordEventResult{}, models.NewConflict("event id collided twice; retry the call")
				}
				return RecordEventResult{}, err
			}
		} else {
			return RecordEventResult{}, err
		}
	}

	if artifactID != "" {
		if err := store.InsertArtifactTx(ctx, tx, models.Artifact{
			ID:          artifactID,
			TenantID:    in.TenantID,
			EventID:     event.ID,
			ContentType: "text/plain",
			Payload:     []byte(fullExcerpt),
			ByteSize:    len(fullExcerpt),
			CreatedAt:   now,
		}); err != nil {
			return RecordEventResult{}, err
		}
	}

	if chunkText, ok := deriveChunkText(in.Kind, content); ok {
		chunk := models.Chunk{
			ID:            store.NewID(models.IDKindChunk),
			TenantID:      in.TenantID,
			SourceEventID: event.ID,
			CreatedAt:     now,
			Kind:          in.Kind,
			Channel:       in.Channel,
			Sensitivity:   sensitivity,
			Tags:          in.Tags,
			TokenEstimate: estimateTokens(chunkText),
			Importance:    seedImportance(in.Kind, in.Tags, chunkText),
			Text:          chunkText,
			Scope:         scope,
			SubjectType:   subjectType,
			SubjectID:     subjectID,
			ProjectID:     projectID,
		}
		if r.embedder != nil && r.embedder.Dimension() > 0 {
			vec, err := r.embedder.Embed(ctx, chunkText)
			if err != nil {
				return RecordEventResult{}, fmt.Errorf("embed chunk text: %w", err)
			}
			chunk.Embedding = vec
		}
		if err := store.InsertChunkTx(ctx, tx, chunk); err != nil {
			return RecordEventResult{}, err
		}
		if r.vecIndex != nil && len(chunk.Embedding) > 0 {
			if err := r.vecIndex.Upsert(ctx, in.TenantID, chunk.ID, chunk.Embedding); err != nil {
				return RecordEventResult{}, fmt.Errorf("index chunk embedding: %w", err)
			}
		}
	}

	switch in.Kind {
	case models.EventKindDecision:
		var dc models.DecisionContent
		if err := json.Unmarshal(content, &dc); err != nil {
			return RecordEventResult{}, models.NewInvalidInput("decision content: %v", err)
		}
		if err := store.InsertDecisionTx(ctx, tx, models.Decision{
			ID:           store.NewID(models.IDKindDecision),
			TenantID:     in.TenantID,
			Status:       models.DecisionStatusActive,
			Scope:        scope,
			Text:         dc.Decision,
			Rationale:    dc.Rationale,
			Constraints:  dc.Constraints,
			Alternatives: dc.Alternatives,
			Consequences: dc.Consequences,
			Refs:         in.Refs,
			Supersedes:   dc.Supersedes,
			ProjectID:    projectID,
			CreatedAt:    now,
		}); err != nil {
			return RecordEventResult{}, err
		}
	case models.EventKindTaskUpdate:
		var tc models.TaskUpdateContent
		if err := json.Unmarshal(content, &tc); err != nil {
			return RecordEventResult{}, models.NewInvalidInput("task_update content: %v", err)
		}
		if err := store.UpsertTaskFromEventTx(ctx, tx, in.TenantID, tc, projectID, now); err != nil {
			return RecordEventResult{}, err
		}
	}

	if r.modeDetector != nil {
		if err := r.modeDetector.ObserveEventTx(ctx, tx, in.TenantID, in.SessionID, event.ID, in.Kind, text); err != nil {
			return RecordEventResult{}, err
		}
	}

	return RecordEventResult{EventID: event.ID}, nil
}

// primaryText extracts the text spec §4.C derives a chunk from, validating
// the kind's content schema as it goes.
func primaryText(kind models.EventKind, content json.RawMessage) (string, error) {
	switch kind {
	case models.EventKindMessage:
		var mc models.MessageContent
		if err := json.Unmarshal(content, &mc); err != nil || mc.Text == "" {
			return "", models.NewInvalidInput("message content requires non-empty text")
		}
		return mc.Text, nil
	case models.EventKindToolResult:
		var tc models.ToolResultContent
		if err := json.Unmarshal(content, &tc); err != nil || tc.ExcerptText == "" {
			return "", models.NewInvalidInput("tool_result content requires non-empty excerpt_text")
		}
		return tc.ExcerptText, nil
	case models.EventKindDecision:
		var dc models.DecisionContent
		if err := json.Unmarshal(content, &dc); err != nil || dc.Decision == "" {
			return "", models.NewInvalidInput("decision content requires non-empty decision")
		}
		return dc.Decision, nil
	case models.EventKindToolCall, models.EventKindTaskUpdate, models.EventKindArtifact,
		models.EventKindHandoff, models.EventKindKnowledgeNote:
		return "", nil
	default:
		return "", models.NewInvalidInput("unknown event kind %q", kind)
	}
}

// deriveChunkText implements §4.C's chunk-derivation default: one chunk
// per event for message/tool_result/decision kinds; zero chunks otherwise.
func deriveChunkText(kind models.EventKind, content json.RawMessage) (string, bool) {
	text, err := primaryText(kind, content)
	if err != nil || text == "" {
		return "", false
	}
	switch kind {
	case models.EventKindMessage, models.EventKindToolResult, models.EventKindDecision:
		return text, true
	default:
		return "", false
	}
}

func estimateTokens(text string) int {
	n := len(text) / charsPerTokenEstimate
	if n == 0 && text != "" {
		n = 1
	}
	return n
}

// seedImportance applies the rule set in spec §4.C.
func seedImportance(kind models.EventKind, tags []string, text string) float64 {
	importance := baselineImportance
	if kind == models.EventKindDecision {
		importance += 0.2
	}
	for _, t := range tags {
		if strings.EqualFold(t, "pinned") {
			importance += 0.1
		}
	}
	if kind == models.EventKindToolResult && looksLikeEntrypointSignal(text) {
		importance += 0.1
	}
	return models.ClampImportance(importance)
}

func looksLikeEntrypointSignal(text string) bool {
	lower := strings.ToLower(text)
	for _, signal := range []string{"readme", "func main(", "package main", "entrypoint"} {
		if strings.Contains(lower, signal) {
			return true
		}
	}
	return false
}

// inferSensitivity defaults to none unless a tag explicitly names a higher
// sensitivity; EnforceSecretPolicy may still raise this to secret based on
// content shape regardless of tags.
func inferSensitivity(tags []string) models.Sensitivity {
	for _, t := range tags {
		switch strings.ToLower(t) {
		case "sensitivity:secret":
			return models.SensitivitySecret
		case "sensitivity:high":
			return models.SensitivityHigh
		case "sensitivity:low":
			return models.SensitivityLow
		}
	}
	return models.SensitivityNone
}

// resolveScope implements §4.C's scope-extraction heuristic: explicit
// field wins; else a `project:<id>` tag sets project scope; else a
// private channel defaults to session scope; else the configured default.
func (r *Recorder) resolveScope(in RecordEventInput) (models.Scope, string) {
	projectID := in.ProjectID
	if projectID == "" {
		if id, ok := tagValue(in.Tags, "project"); ok {
			projectID = id
		}
	}

	if in.Scope != "" {
		return in.Scope, projectID
	}
	if projectID != "" {
		return models.ScopeProject, projectID
	}
	if in.Channel == models.ChannelPrivate {
		return models.ScopeSession, projectID
	}
	def := r.settings.Ingestion.DefaultScope
	if def == "" {
		def = string(models.ScopeGlobal)
	}
	return models.Scope(def), projectID
}

// resolveSubject implements §4.C's subject-extraction heuristic: explicit
// fields win; else a `subject:<type>:<id>` tag; else a `user:<id>` tag
// names a user subject.
func (r *Recorder) resolveSubject(in RecordEventInput) (string, string) {
	if in.SubjectType != "" && in.SubjectID != "" {
		return in.SubjectType, in.SubjectID
	}
	for _, t := range in.Tags {
		parts := strings.SplitN(t, ":", 3)
		if len(parts) == 3 && parts[0] == "subject" {
			return parts[1], parts[2]
		}
	}
	if id, ok := tagValue(in.Tags, "user"); ok {
		return "user", id
	}
	return "", ""
}

func tagValue(tags []string, prefix string) (string, bool) {
	for _, t := range tags {
		if v, ok := strings.CutPrefix(t, prefix+":"); ok {
			return v, true
		}
	}
	return "", false
}

// normalizeToolResult truncates an overlong excerpt to
// max_bytes_per_tool_result, spilling the untruncated text into an
// artifact row (spec §4.C "large tool outputs never inflate chunks", §8
// boundary: exactly at the cap is untruncated, +1 byte truncates).
func (r *Recorder) normalizeToolResult(content json.RawMessage) (json.RawMessage, string, string, error) {
	var tc models.ToolResultContent
	if err := json.Unmarshal(content, &tc); err != nil {
		return nil, "", "", models.NewInvalidInput("tool_result content: %v", err)
	}

	maxBytes := r.settings.Ingestion.MaxBytesPerToolResult
	if maxBytes <= 0 {
		maxBytes = 64 * 1024
	}
	if len(tc.ExcerptText) <= maxBytes {
		tc.Truncated = false
		tc.ArtifactID = ""
		out, err := json.Marshal(tc)
		return out, "", "", err
	}

	artifactID := store.NewID(models.IDKindArtifact)
	full := tc.ExcerptText
	tc.ExcerptText = tc.ExcerptText[:maxBytes]
	tc.Truncated = true
	tc.ArtifactID = artifactID

	out, err := json.Marshal(tc)
	if err != nil {
		return nil, "", "", err
	}
	return out, artifactID, full, nil
}
