// Package orionerr defines the sentinel error taxonomy from the error
// handling design: callers branch with errors.Is rather than string
// matching, mirroring the wrapped-sentinel convention in the teacher's
// internal/safety/policy package.
package orionerr

import "errors"

var (
	// ErrContractViolation is returned synchronously by Bus.Publish when a
	// message fails schema validation. No side effect occurs.
	ErrContractViolation = errors.New("orion: contract violation")

	// ErrExpired marks an approval request or decision whose expires_at
	// has already passed. Always a silent drop plus an escalation log
	// entry, never an execution.
	ErrExpired = errors.New("orion: expired")

	// ErrIdentityMismatch marks an admin operation whose channel identity
	// does not match the configured admin for that channel.
	ErrIdentityMismatch = errors.New("orion: admin identity mismatch")

	// ErrExecutionFailed marks a Commander execution failure after rollback
	// has been attempted.
	ErrExecutionFailed = errors.New("orion: execution failed")

	// ErrCircuitOpen marks an action type whose circuit breaker is open.
	ErrCircuitOpen = errors.New("orion: circuit open")

	// ErrCooldownActive marks an action type still within its cooldown
	// window.
	ErrCooldownActive = errors.New("orion: cooldown active")

	// ErrUnknownAction marks an action type that is neither executable nor
	// recognized by the Commander's dispatch table.
	ErrUnknownAction = errors.New("orion: unknown action type")

	// ErrNotPending marks an admin operation referencing an
	// approval_request_id with no pending entry.
	ErrNotPending = errors.New("orion: no pending approval request")

	// ErrInvalidReason marks a missing or too-short justification on an
	// admin operation.
	ErrInvalidReason = errors.New("orion: invalid reason")
)
