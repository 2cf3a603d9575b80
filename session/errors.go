package session

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionActive means the user must finish or cancel the current wizard first.
	ErrSessionActive = errors.New("a post creation session is already active, finish or /cancel it first")
	// ErrNoSession means wizard input arrived with no session to receive it.
	ErrNoSession = errors.New("no active post creation session, use /new to start one")
	// ErrSessionExpired means the session timed out before the input arrived.
	ErrSessionExpired = errors.New("session expired due to inactivity, use /new to start again")
	// ErrValidationExhausted cancels a session after too many invalid inputs.
	ErrValidationExhausted = errors.New("too many invalid attempts, session cancelled")
	// ErrBanned rejects banned users before any session state is touched.
	ErrBanned = errors.New("you are banned from publishing")
)

// ValidationError is a user-correctable input problem. The wizard re-prompts
// and counts it against the field's retry budget.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ServiceError wraps an external collaborator failure that survived the retry
// budget. Collected session state is preserved; the user may try again.
type ServiceError struct {
	Service string
	Cause   error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s service failed: %v", e.Service, e.Cause)
}

func (e *ServiceError) Unwrap() error { return e.Cause }
