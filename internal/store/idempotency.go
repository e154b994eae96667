package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sqlite "modernc.org/sqlite"
)

// ErrIdempotencyInProgress is returned when a request is still being
// processed by another caller holding the same idempotency key.
var ErrIdempotencyInProgress = errors.New("idempotency in progress")

// beginIdempotencyTx attempts to claim (tenant_id, agent_id, request_id).
// If it already exists, it returns the previously stored result_json for
// replay. Unexported: all callers must use RunIdempotent, which enforces
// the begin+side-effects+complete-in-one-tx invariant.
func beginIdempotencyTx(ctx context.Context, tx *sql.Tx, tenantID, agentID, requestID, command string) (existingResultJSON string, alreadyDone bool, err error) {
	if tenantID == "" {
		return "", false, errors.New("tenant id is required")
	}
	if agentID == "" {
		return "", false, errors.New("agent id is required")
	}
	if requestID == "" {
		return "", false, errors.New("request id is required")
	}
	if command == "" {
		return "", false, errors.New("idempotency command is required")
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO idempotency_keys (tenant_id, agent_id, request_id, command, result_json)
		VALUES (?, ?, ?, ?, '')
	`, tenantID, agentID, requestID, command)
	if err == nil {
		return "", false, nil
	}
	if !IsUniqueConstraintErr(err) {
		return "", false, fmt.Errorf("failed to insert idempotency row: %w", err)
	}

	var existingCommand, resultJSON string
	if err := tx.QueryRowContext(ctx, `
		SELECT command, result_json
		FROM idempotency_keys
		WHERE tenant_id = ? AND agent_id = ? AND request_id = ?
	`, tenantID, agentID, requestID).Scan(&existingCommand, &resultJSON); err != nil {
		return "", false, fmt.Errorf("failed to load idempotency row: %w", err)
	}
	if existingCommand != command {
		return "", false, fmt.Errorf("idempotency key collision: request_id %q already used for command %q (new: %q)", requestID, existingCommand, command)
	}
	if strings.TrimSpace(resultJSON) == "" {
		return "", false, &IdempotencyInProgressError{
			TenantID:  tenantID,
			AgentID:   agentID,
			RequestID: requestID,
			Command:   command,
		}
	}
	return resultJSON, true, nil
}

func completeIdempotencyTx(ctx context.Context, tx *sql.Tx, tenantID, agentID, requestID, resultJSON string) error {
	if resultJSON == "" {
		return errors.New("idempotency result json must be non-empty")
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE idempotency_keys
		SET result_json = ?
		WHERE tenant_id = ? AND agent_id = ? AND request_id = ?
	`, resultJSON, tenantID, agentID, requestID)
	if err != nil {
		return fmt.Errorf("failed to update idempotency row: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check idempotency rows affected: %w", err)
	}
	if ra != 1 {
		return fmt.Errorf("idempotency row not found for tenant=%q agent=%q request_id=%q", tenantID, agentID, requestID)
	}
	return nil
}

// RunIdempotent runs fn exactly once per (tenantID, agentID, requestID,
// command); on retries with the same request id, it decodes and returns
// the previously-computed result instead of re-running fn.
func RunIdempotent[T any](ctx context.Context, db *sql.DB, tenantID, agentID, requestID, command string, fn func(tx *sql.Tx) (T, error)) (T, error) {
	var result T
	err := Transact(ctx, db, func(tx *sql.Tx) error {
		existing, done, err := beginIdempotencyTx(ctx, tx, tenantID, agentID, requestID, command)
		if err != nil {
			return err
		}
		if done {
			return json.Unmarshal([]byte(existing), &result)
		}

		result, err = fn(tx)
		if err != nil {
			return err
		}

		resultJSON, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to marshal idempotent result: %w", err)
		}
		return completeIdempotencyTx(ctx, tx, tenantID, agentID, requestID, string(resultJSON))
	})
	return result, err
}

// IsUniqueConstraintErr checks for SQLite duplicate-key violations.
//
// Covers both UNIQUE constraints (2067) and PRIMARY KEY constraints (1555),
// since both signal the same semantic: a row with that key already exists.
// Uses typed sqlite.Error code matching first, falling back to string
// matching for wrapped errors that lose the concrete type.
func IsUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == 2067 || code == 1555
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY constraint failed")
}
