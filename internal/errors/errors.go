// Package errors provides centralized error definitions and error handling
// utilities for the workstream CLI. It defines semantic error types
// (validation, not-found, approval-gate, lock-contention), sentinel errors,
// and classification helpers used by the command layer to format output.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Sentinel errors for the file store and ledgers.
var (
	// ErrLocked indicates the lock on a shared ledger file could not be
	// acquired within the retry budget.
	ErrLocked = New("file is locked by another process")
	// ErrStreamNotFound indicates the workstream is not in the index.
	ErrStreamNotFound = New("workstream not found")
	// ErrTaskNotFound indicates a task ID is not in the ledger.
	ErrTaskNotFound = New("task not found")
	// ErrThreadNotFound indicates a thread ID is not in the session ledger.
	ErrThreadNotFound = New("thread not found")
	// ErrSessionNotFound indicates a session ID is not recorded for a thread.
	ErrSessionNotFound = New("session not found")
	// ErrPlanNotFound indicates PLAN.md is missing for the workstream.
	ErrPlanNotFound = New("plan file not found")
	// ErrNotRepository indicates the working directory is not inside a
	// version-controlled repository.
	ErrNotRepository = New("not inside a git repository")
)

// ValidationError represents malformed input: a bad task/thread ID, an
// invalid status value, or a missing required field. Operations abort
// immediately with no partial state change.
type ValidationError struct {
	Field   string
	Value   any
	message string
	cause   error
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{message: message}
}

// WithField adds the offending field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the offending value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds an underlying cause.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}

	prefix := "validation error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("validation error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

func (e *ValidationError) Unwrap() error { return e.cause }

// Is reports a match against any *ValidationError target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	return e.cause != nil && errors.Is(e.cause, target)
}

// NotFoundError represents a missing resource, with an optional suggestion
// of the corrective command to run.
type NotFoundError struct {
	ResourceType string
	ResourceID   string
	Suggestion   string
	cause        error
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{ResourceType: resourceType, ResourceID: resourceID}
}

// WithSuggestion attaches a corrective-action hint shown to the user.
func (e *NotFoundError) WithSuggestion(s string) *NotFoundError {
	e.Suggestion = s
	return e
}

// WithCause adds an underlying cause.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
	if e.ResourceID == "" {
		msg = fmt.Sprintf("%s not found", e.ResourceType)
	}
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}
	if e.Suggestion != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Suggestion)
	}
	return msg
}

func (e *NotFoundError) Unwrap() error { return e.cause }

// Is reports a match against any *NotFoundError target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return e.cause != nil && errors.Is(e.cause, target)
}

// ApprovalError represents an approval-gate violation: a gated operation
// attempted in the wrong state. It names the specific blocking condition
// and whether --force can override it.
type ApprovalError struct {
	Operation string // the gated operation that was attempted
	Blocking  string // the specific condition blocking it
	Forcible  bool   // whether --force overrides the gate
}

// NewApprovalError creates a new ApprovalError.
func NewApprovalError(operation, blocking string) *ApprovalError {
	return &ApprovalError{Operation: operation, Blocking: blocking}
}

// WithForceHint marks the gate as overridable with --force.
func (e *ApprovalError) WithForceHint() *ApprovalError {
	e.Forcible = true
	return e
}

func (e *ApprovalError) Error() string {
	msg := fmt.Sprintf("cannot %s: %s", e.Operation, e.Blocking)
	if e.Forcible {
		msg += " (use --force to override)"
	}
	return msg
}

// Is reports a match against any *ApprovalError target.
func (e *ApprovalError) Is(target error) bool {
	_, ok := target.(*ApprovalError)
	return ok
}

// LockError wraps a lock acquisition failure with the contested path and
// holder details when known.
type LockError struct {
	Path   string
	Holder string // "pid 1234 on host" when the holder info was readable
	cause  error
}

// NewLockError creates a new LockError.
func NewLockError(path string, cause error) *LockError {
	return &LockError{Path: path, cause: cause}
}

// WithHolder records the current lock holder for the error message.
func (e *LockError) WithHolder(holder string) *LockError {
	e.Holder = holder
	return e
}

func (e *LockError) Error() string {
	msg := fmt.Sprintf("lock contention on %s", e.Path)
	if e.Holder != "" {
		msg = fmt.Sprintf("%s (held by %s)", msg, e.Holder)
	}
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

func (e *LockError) Unwrap() error { return e.cause }

// Is reports a match against *LockError or the ErrLocked sentinel.
func (e *LockError) Is(target error) bool {
	if _, ok := target.(*LockError); ok {
		return true
	}
	if errors.Is(target, ErrLocked) {
		return true
	}
	return e.cause != nil && errors.Is(e.cause, target)
}

// IsUserFacing reports whether the error message is safe to print directly.
// Semantic errors carry curated messages; anything else is formatted by the
// command layer with a generic prefix.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	var validation *ValidationError
	var notFound *NotFoundError
	var approvalErr *ApprovalError
	var lockErr *LockError
	return As(err, &validation) || As(err, &notFound) ||
		As(err, &approvalErr) || As(err, &lockErr)
}

// IsRetryable reports whether the operation may succeed on retry.
// Only lock contention is transient in this system.
func IsRetryable(err error) bool {
	return err != nil && Is(err, ErrLocked)
}

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
