package models

import "fmt"

// RecoverableError is implemented by enriched errors that carry structured
// context and remediation hints, so the transport/output layer can surface
// them uniformly without an import cycle back into internal/engine or
// internal/store. Mirrors the teacher's models.RecoverableError contract.
type RecoverableError interface {
	error
	ErrorCode() string
	Context() map[string]string
	SuggestedAction() string
}

// ErrorKind is one of the error kinds named in spec §7. It is not a
// sentinel error itself; it labels a KindError's category so callers that
// only care about the kind (not the structured context) can switch on it.
type ErrorKind string

const (
	KindInvalidInput       ErrorKind = "InvalidInput"
	KindNotFound           ErrorKind = "NotFound"
	KindConflict           ErrorKind = "Conflict"
	KindCircularDependency ErrorKind = "CircularDependency"
	KindForbidden          ErrorKind = "Forbidden"
	KindDeadlineExceeded   ErrorKind = "DeadlineExceeded"
	KindUnavailable        ErrorKind = "Unavailable"
	KindInternal           ErrorKind = "Internal"
)

// KindError is the uniform error-kind result type described in spec §9
// ("Exceptions in the source translate to an error-kind result type at
// component boundaries"). Every engine-layer failure that should be
// visible to a tool caller is wrapped as one of these.
type KindError struct {
	Kind    ErrorKind
	Message string
	Details map[string]string
	Action  string
}

func (e *KindError) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *KindError) ErrorCode() string         { return string(e.Kind) }
func (e *KindError) Context() map[string]string { return e.Details }
func (e *KindError) SuggestedAction() string     { return e.Action }

// Is lets errors.Is(err, sentinelKindError) style checks work against a
// *KindError by comparing kinds, matching the teacher's
// `func (e *X) Is(target error) bool` idiom on its own typed errors.
func (e *KindError) Is(target error) bool {
	other, ok := target.(*KindError)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// NewInvalidInput builds an InvalidInput KindError. Validation failures are
// local and never write (spec §7).
func NewInvalidInput(format string, args ...any) *KindError {
	return &KindError{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// NewNotFound builds a NotFound KindError. Per spec §7, missing entities and
// cross-tenant mismatches are reported identically to avoid leaking
// existence across tenant boundaries.
func NewNotFound(entity, id string) *KindError {
	return &KindError{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s not found: %s", entity, id),
		Details: map[string]string{"entity": entity, "id": id},
	}
}

// NewConflict builds a Conflict KindError.
func NewConflict(format string, args ...any) *KindError {
	return &KindError{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// NewCircularDependency builds a CircularDependency KindError for a
// rejected depends_on edge (spec §4.J, §8 invariant 6).
func NewCircularDependency(from, to string) *KindError {
	return &KindError{
		Kind:    KindCircularDependency,
		Message: fmt.Sprintf("adding %s -> %s would create a depends_on cycle", from, to),
		Details: map[string]string{"from": from, "to": to},
	}
}

// NewForbidden builds a Forbidden KindError for sensitivity/channel/audience
// violations that are safe to disclose as such (i.e., not existence-leaking
// — those use NewNotFound instead, per spec §7).
func NewForbidden(format string, args ...any) *KindError {
	return &KindError{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// NewDeadlineExceeded builds a DeadlineExceeded KindError (spec §5
// "Partial results are never returned").
func NewDeadlineExceeded() *KindError {
	return &KindError{Kind: KindDeadlineExceeded, Message: "deadline exceeded before the operation completed"}
}

// NewUnavailable builds an Unavailable KindError for a storage failure that
// persisted after retries (spec §7).
func NewUnavailable(cause error) *KindError {
	return &KindError{
		Kind:    KindUnavailable,
		Message: "storage unavailable after retries",
		Details: map[string]string{"cause": cause.Error()},
		Action:  "retry later",
	}
}

// NewInternal builds an Internal KindError for a genuinely unexpected
// condition.
func NewInternal(cause error) *KindError {
	return &KindError{Kind: KindInternal, Message: cause.Error()}
}
