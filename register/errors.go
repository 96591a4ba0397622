/*
errors.go - Centralized error types for the register engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers match with errors.Is / errors.As; the HTTP layer maps these
  onto status codes.

ERROR CATEGORIES:
  1. Validation errors - malformed input (empty name, sign mismatch)
  2. Permission errors - capability gate denial, names the missing capability
  3. Conflict errors - state-machine precondition violated
  4. Not-found errors - unknown register id
  5. Infrastructure errors - storage-level transient failures

SEE ALSO:
  - service.go: produces most of these
  - api/handlers.go: maps them to HTTP statuses
*/
package register

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrRegisterNotFound is returned when a register id is unknown.
	ErrRegisterNotFound = errors.New("register not found")

	// ErrDuplicateName is returned when creating a register whose name
	// is already taken.
	ErrDuplicateName = errors.New("register name already exists")

	// ErrDuplicateIdempotencyKey is returned when a post carries an
	// idempotency key that has already been committed. Expected on retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrConcurrentModification is returned when the optimistic version
	// check detects that another writer got there first.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrPermissionDenied is the sentinel underlying every PermissionError.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrConflict is the sentinel underlying every ConflictError.
	ErrConflict = errors.New("conflict")

	// ErrValidation is the sentinel underlying every ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrInfrastructure is the sentinel underlying every InfrastructureError.
	ErrInfrastructure = errors.New("infrastructure failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports malformed input before any state is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// PermissionError reports a gate denial and names the missing capability.
type PermissionError struct {
	Principal  PrincipalID
	Capability Capability
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("principal %s lacks capability %s", e.Principal, e.Capability)
}

func (e *PermissionError) Unwrap() error { return ErrPermissionDenied }

// ConflictError reports a state-machine precondition violation
// (already open, not open, has history on delete).
type ConflictError struct {
	RegisterID RegisterID
	Reason     string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("register %s: %s", e.RegisterID, e.Reason)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// NotFoundError reports an unknown register.
type NotFoundError struct {
	RegisterID RegisterID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("register %s not found", e.RegisterID)
}

func (e *NotFoundError) Unwrap() error { return ErrRegisterNotFound }

// InfrastructureError wraps a storage-level failure. Callers may retry
// with an idempotency key; the engine itself never retries a post.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error { return ErrInfrastructure }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrDuplicateIdempotencyKey) ||
		errors.Is(err, ErrDuplicateName)
}

// IsConflict returns true if a state-machine precondition was violated.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrConcurrentModification)
}

// IsNotFound returns true if the error indicates a missing register.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRegisterNotFound)
}

// IsRetryable returns true if the operation might succeed on retry.
// Posts must only be retried with an idempotency key.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrInfrastructure)
}
