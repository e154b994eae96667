package store

import (
	"fmt"
	"strconv"

	"github.com/agentmemory/memoryd/internal/models"
)

// RecoverableError is an alias for models.RecoverableError, retained so
// callers that reference store.RecoverableError keep working.
type RecoverableError = models.RecoverableError

// VersionConflictError carries structured context for an optimistic
// concurrency failure on tasks/decisions/agent state.
type VersionConflictError struct {
	Entity  string
	ID      string
	Version int
}

func (e *VersionConflictError) Error() string {
	return "version conflict: record was modified by another process"
}
func (e *VersionConflictError) ErrorCode() string { return "VERSION_CONFLICT" }
func (e *VersionConflictError) Context() map[string]string {
	return map[string]string{
		"entity":  e.Entity,
		"id":      e.ID,
		"version": strconv.Itoa(e.Version),
	}
}
func (e *VersionConflictError) SuggestedAction() string {
	return "retry the operation with a new request_id"
}
func (e *VersionConflictError) Is(target error) bool { return target == ErrVersionConflict }

// IdempotencyInProgressError signals a concurrent in-flight request with
// the same idempotency key.
type IdempotencyInProgressError struct {
	TenantID  string
	AgentID   string
	RequestID string
	Command   string
}

func (e *IdempotencyInProgressError) Error() string { return "idempotency in progress" }
func (e *IdempotencyInProgressError) ErrorCode() string { return "IDEMPOTENCY_IN_PROGRESS" }
func (e *IdempotencyInProgressError) Context() map[string]string {
	return map[string]string{
		"tenant_id":  e.TenantID,
		"agent_id":   e.AgentID,
		"request_id": e.RequestID,
		"command":    e.Command,
	}
}
func (e *IdempotencyInProgressError) SuggestedAction() string {
	return "wait and retry, or use a new request_id"
}
func (e *IdempotencyInProgressError) Is(target error) bool {
	return target == ErrIdempotencyInProgress
}

// NotFoundErr wraps models.NewNotFound for store-layer callers.
func NotFoundErr(entity, id string) error { return models.NewNotFound(entity, id) }

// ConflictErr wraps models.NewConflict for store-layer callers.
func ConflictErr(format string, args ...any) error {
	return models.NewConflict("%s", fmt.Sprintf(format, args...))
}
