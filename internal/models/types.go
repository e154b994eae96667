package models

import (
	"encoding/json"
	"time"
)

// Channel is the visibility axis an event/chunk was recorded under.
type Channel string

const (
	ChannelPrivate Channel = "private"
	ChannelPublic  Channel = "public"
	ChannelTeam    Channel = "team"
	ChannelAgent   Channel = "agent"
)

// Sensitivity is the data-handling classification of an event/chunk.
type Sensitivity string

const (
	SensitivityNone   Sensitivity = "none"
	SensitivityLow    Sensitivity = "low"
	SensitivityHigh   Sensitivity = "high"
	SensitivitySecret Sensitivity = "secret"
)

// Rank returns a comparable ordering so callers can test "allowed <= X".
func (s Sensitivity) Rank() int {
	switch s {
	case SensitivityNone:
		return 0
	case SensitivityLow:
		return 1
	case SensitivityHigh:
		return 2
	case SensitivitySecret:
		return 3
	default:
		return 0
	}
}

// Scope is the axis of validity for a memory item (spec §3).
type Scope string

const (
	ScopeSession Scope = "session"
	ScopeUser    Scope = "user"
	ScopeProject Scope = "project"
	ScopePolicy  Scope = "policy"
	ScopeGlobal  Scope = "global"
)

// scopePrecedence implements §4.I step 4: "policy > project > user > global".
var scopePrecedence = map[Scope]int{
	ScopePolicy:  3,
	ScopeProject: 2,
	ScopeUser:    1,
	ScopeGlobal:  0,
	ScopeSession: 0,
}

// Precedence returns the relative precedence of a scope; higher wins.
func (s Scope) Precedence() int { return scopePrecedence[s] }

// ActorType distinguishes who/what produced an event.
type ActorType string

const (
	ActorHuman ActorType = "human"
	ActorAgent ActorType = "agent"
	ActorTool  ActorType = "tool"
)

// Actor identifies the event's producer.
type Actor struct {
	Type ActorType `json:"type"`
	ID   string    `json:"id"`
}

// EventKind enumerates the append-only ground-truth record kinds (spec §3).
type EventKind string

const (
	EventKindMessage      EventKind = "message"
	EventKindToolCall     EventKind = "tool_call"
	EventKindToolResult   EventKind = "tool_result"
	EventKindDecision     EventKind = "decision"
	EventKindTaskUpdate   EventKind = "task_update"
	EventKindArtifact     EventKind = "artifact"
	EventKindHandoff      EventKind = "handoff"
	EventKindKnowledgeNote EventKind = "knowledge_note"
)

// Event is the append-only ground-truth record (spec §3 Event).
type Event struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenant_id"`
	SessionID   string          `json:"session_id"`
	Channel     Channel         `json:"channel"`
	Actor       Actor           `json:"actor"`
	Kind        EventKind       `json:"kind"`
	Sensitivity Sensitivity     `json:"sensitivity"`
	Tags        []string        `json:"tags,omitempty"`
	Content     json.RawMessage `json:"content"`
	Refs        []string        `json:"refs,omitempty"`
	Scope       Scope           `json:"scope"`
	SubjectType string          `json:"subject_type,omitempty"`
	SubjectID   string          `json:"subject_id,omitempty"`
	ProjectID   string          `json:"project_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Chunk is the atomic retrieval unit derived from an event (spec §3 Chunk).
type Chunk struct {
	ID            string      `json:"id"`
	TenantID      string      `json:"tenant_id"`
	SourceEventID string      `json:"source_event_id"`
	CreatedAt     time.Time   `json:"created_at"`
	Kind          EventKind   `json:"kind"`
	Channel       Channel     `json:"channel"`
	Sensitivity   Sensitivity `json:"sensitivity"`
	Tags          []string    `json:"tags,omitempty"`
	TokenEstimate int         `json:"token_estimate"`
	Importance    float64     `json:"importance"`
	Text          string      `json:"text"`
	Embedding     []float32   `json:"-"`
	Scope         Scope       `json:"scope"`
	SubjectType   string      `json:"subject_type,omitempty"`
	SubjectID     string      `json:"subject_id,omitempty"`
	ProjectID     string      `json:"project_id,omitempty"`
}

// EffectiveChunk is a Chunk composed through its approved MemoryEdits
// (spec §4.D, §3 "Effective chunk").
type EffectiveChunk struct {
	Chunk
	IsRetracted       bool     `json:"is_retracted"`
	IsQuarantined     bool     `json:"is_quarantined"`
	BlockedChannels   []string `json:"blocked_channels,omitempty"`
	EditsAppliedCount int      `json:"edits_applied_count"`
}

// EditOp enumerates memory surgery operations (spec §3 MemoryEdit).
type EditOp string

const (
	EditOpRetract    EditOp = "retract"
	EditOpAmend      EditOp = "amend"
	EditOpQuarantine EditOp = "quarantine"
	EditOpAttenuate  EditOp = "attenuate"
	EditOpBlock      EditOp = "block"
)

// EditTargetType enumerates what a MemoryEdit can modify.
type EditTargetType string

const (
	EditTargetChunk    EditTargetType = "chunk"
	EditTargetEvent    EditTargetType = "event"
	EditTargetDecision EditTargetType = "decision"
)

// ProposedBy enumerates who proposed a MemoryEdit.
type ProposedBy string

const (
	ProposedByHuman ProposedBy = "human"
	ProposedByAgent ProposedBy = "agent"
)

// EditStatus is the MemoryEdit state machine (spec §4 "State machines").
type EditStatus string

const (
	EditStatusPending  EditStatus = "pending"
	EditStatusApproved EditStatus = "approved"
	EditStatusRejected EditStatus = "rejected"
)

// EditPatch is the operation-specific patch body (spec §3 MemoryEdit).
// Only the fields relevant to Op are populated; validated by
// internal/models.ValidatePatch.
type EditPatch struct {
	Text            *string  `json:"text,omitempty"`
	Importance      *float64 `json:"importance,omitempty"`
	ImportanceDelta *float64 `json:"importance_delta,omitempty"`
	Channel         string   `json:"channel,omitempty"`
}

// MemoryEdit is a non-destructive modifier applied on read (spec §3).
type MemoryEdit struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenant_id"`
	TargetType  EditTargetType `json:"target_type"`
	TargetID    string         `json:"target_id"`
	Op          EditOp         `json:"op"`
	Reason      string         `json:"reason"`
	ProposedBy  ProposedBy     `json:"proposed_by"`
	Status      EditStatus     `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	AppliedAt   *time.Time     `json:"applied_at,omitempty"`
	ApprovedBy  string         `json:"approved_by,omitempty"`
	Patch       EditPatch      `json:"patch"`
}

// CapsuleStatus is the Capsule state machine.
type CapsuleStatus string

const (
	CapsuleStatusActive  CapsuleStatus = "active"
	CapsuleStatusRevoked CapsuleStatus = "revoked"
)

// CapsuleItems names the memory items curated into a Capsule.
type CapsuleItems struct {
	ChunkIDs    []string `json:"chunks,omitempty"`
	DecisionIDs []string `json:"decisions,omitempty"`
	ArtifactIDs []string `json:"artifacts,omitempty"`
}

// Capsule is a curated, audience-restricted, TTL-bound memory bundle
// (spec §3 Capsule).
type Capsule struct {
	ID              string        `json:"id"`
	TenantID        string        `json:"tenant_id"`
	Scope           Scope         `json:"scope"`
	SubjectType     string        `json:"subject_type,omitempty"`
	SubjectID       string        `json:"subject_id,omitempty"`
	AuthorAgentID   string        `json:"author_agent_id"`
	AudienceAgentIDs []string     `json:"audience_agent_ids"`
	Items           CapsuleItems  `json:"items"`
	Risks           []string      `json:"risks,omitempty"`
	TTLDays         int           `json:"ttl_days"`
	CreatedAt       time.Time     `json:"created_at"`
	ExpiresAt       time.Time     `json:"expires_at"`
	Status          CapsuleStatus `json:"status"`
	RevokedAt       *time.Time    `json:"revoked_at,omitempty"`
}

// IsVisibleTo reports whether agentID may see this capsule right now
// (spec §4.F list_capsules / get_capsule).
func (c *Capsule) IsVisibleTo(agentID string, now time.Time) bool {
	if c.Status != CapsuleStatusActive {
		return false
	}
	if !now.Before(c.ExpiresAt) {
		return false
	}
	for _, a := range c.AudienceAgentIDs {
		if a == agentID {
			return true
		}
	}
	return false
}

// DecisionStatus is the Decision state machine.
type DecisionStatus string

const (
	DecisionStatusActive     DecisionStatus = "active"
	DecisionStatusSuperseded DecisionStatus = "superseded"
)

// Decision is a recorded judgement call (spec §3 Decision).
type Decision struct {
	ID           string         `json:"id"`
	TenantID     string         `json:"tenant_id"`
	Status       DecisionStatus `json:"status"`
	Scope        Scope          `json:"scope"`
	Text         string         `json:"text"`
	Rationale    string         `json:"rationale,omitempty"`
	Constraints  []string       `json:"constraints,omitempty"`
	Alternatives []string       `json:"alternatives,omitempty"`
	Consequences []string       `json:"consequences,omitempty"`
	Refs         []string       `json:"refs,omitempty"`
	Supersedes   string         `json:"supersedes,omitempty"`
	ProjectID    string         `json:"project_id,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// TaskStatus is the Task Kanban state (spec §3 Task).
type TaskStatus string

const (
	TaskStatusBacklog TaskStatus = "backlog"
	TaskStatusOpen    TaskStatus = "open"
	TaskStatusDoing   TaskStatus = "doing"
	TaskStatusReview  TaskStatus = "review"
	TaskStatusBlocked TaskStatus = "blocked"
	TaskStatusDone    TaskStatus = "done"
)

// Task tracks coordinated agent work (spec §3 Task).
type Task struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenant_id"`
	Status     TaskStatus `json:"status"`
	Title      string     `json:"title"`
	Details    string     `json:"details,omitempty"`
	Refs       []string   `json:"refs,omitempty"`
	Priority   int        `json:"priority"`
	BlockedBy  []string   `json:"blocked_by,omitempty"`
	StartDate  *time.Time `json:"start_date,omitempty"`
	DueDate    *time.Time `json:"due_date,omitempty"`
	Estimate   string     `json:"estimate,omitempty"`
	Progress   float64    `json:"progress"`
	Assignee   string     `json:"assignee,omitempty"`
	ProjectID  string     `json:"project_id,omitempty"`
	Version    int        `json:"version"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// EdgeType enumerates typed graph relationships (spec §3 Edge).
type EdgeType string

const (
	EdgeParentOf   EdgeType = "parent_of"
	EdgeChildOf    EdgeType = "child_of"
	EdgeReferences EdgeType = "references"
	EdgeCreatedBy  EdgeType = "created_by"
	EdgeRelatedTo  EdgeType = "related_to"
	EdgeDependsOn  EdgeType = "depends_on"
)

// Edge is a typed relationship between two memory nodes (spec §3).
type Edge struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"tenant_id"`
	FromNode   string         `json:"from_node"`
	ToNode     string         `json:"to_node"`
	Type       EdgeType       `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Artifact is a large payload stored out-of-line from a chunk (spec §4.C
// "Large tool outputs never inflate chunks").
type Artifact struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	EventID   string    `json:"event_id"`
	ContentType string  `json:"content_type"`
	Payload   []byte    `json:"-"`
	ByteSize  int       `json:"byte_size"`
	CreatedAt time.Time `json:"created_at"`
}

// ToolResultContent is the normalized shape for tool_call results (spec §6
// "Content contract for tool results").
type ToolResultContent struct {
	Tool         string `json:"tool"`
	Path         string `json:"path,omitempty"`
	ExcerptText  string `json:"excerpt_text"`
	LineRangeLo  int    `json:"line_range_lo,omitempty"`
	LineRangeHi  int    `json:"line_range_hi,omitempty"`
	Truncated    bool   `json:"truncated"`
	ArtifactID   string `json:"artifact_id,omitempty"`
}

// MessageContent is the payload shape for kind=message events.
type MessageContent struct {
	Text string `json:"text"`
}

// DecisionContent is the payload shape for kind=decision events.
type DecisionContent struct {
	Decision     string   `json:"decision"`
	Rationale    string   `json:"rationale,omitempty"`
	Constraints  []string `json:"constraints,omitempty"`
	Alternatives []string `json:"alternatives,omitempty"`
	Consequences []string `json:"consequences,omitempty"`
	Supersedes   string   `json:"supersedes,omitempty"`
}

// KnowledgeNote is a durable, curated reference doc distinct from the raw
// event stream (spec §3 EventKind "knowledge_note").
type KnowledgeNote struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	ProjectID string    `json:"project_id,omitempty"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionHandoff is a persisted continuity record written when one agent
// hands a session to another (spec §3 EventKind "handoff").
type SessionHandoff struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	SessionID string    `json:"session_id"`
	AgentID   string    `json:"agent_id"`
	Summary   string    `json:"summary"`
	ACBJSON   string    `json:"acb_json,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionInvariant is a sticky hard constraint extracted from imperative
// language ("must", "never", "required") or a blocking error signature,
// pinned into every ACB's rules section for a session until released
// (spec §4.H "Sticky invariants").
type SessionInvariant struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TaskUpdateContent is the payload shape for kind=task_update events.
type TaskUpdateContent struct {
	TaskID   string     `json:"task_id,omitempty"`
	Title    string     `json:"title,omitempty"`
	Status   TaskStatus `json:"status,omitempty"`
	Details  string     `json:"details,omitempty"`
	Priority int        `json:"priority,omitempty"`
}
