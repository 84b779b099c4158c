package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels usable with errors.Is. Each typed error below matches its sentinel.
var (
	ErrDuplicateState    = errors.New("duplicate state")
	ErrDanglingEdge      = errors.New("dangling edge")
	ErrNoTerminalState   = errors.New("terminal state not registered")
	ErrSchemaValidation  = errors.New("reply does not match schema")
	ErrUnknownTransition = errors.New("unknown transition")
	ErrHandler           = errors.New("handler failed")
	ErrClient            = errors.New("model client failed")
	ErrAlreadyCompleted  = errors.New("machine already completed")
	ErrTemplate          = errors.New("prompt template failed")
)

var (
	// ErrSessionNotFound is returned when a session ID cannot be found in the store.
	ErrSessionNotFound = errors.New("session not found")

	// ErrUnknownState is returned when an operation names an unregistered state id.
	ErrUnknownState = errors.New("unknown state")

	// ErrTurnInProgress is returned when RunTurn is called while another turn is running.
	ErrTurnInProgress = errors.New("turn already in progress")

	// ErrOutsideTurn is returned when context is written outside a running handler.
	ErrOutsideTurn = errors.New("context can only be set from within a turn")
)

// DuplicateStateError is returned when a state id is registered twice.
type DuplicateStateError struct {
	ID string
}

func (e *DuplicateStateError) Error() string {
	return fmt.Sprintf("state %q is already registered", e.ID)
}

func (e *DuplicateStateError) Is(target error) bool { return target == ErrDuplicateState }

// DanglingEdgeError is returned when an edge targets an unregistered state.
type DanglingEdgeError struct {
	From string
	To   string
}

func (e *DanglingEdgeError) Error() string {
	return fmt.Sprintf("state %q has an edge to unregistered state %q", e.From, e.To)
}

func (e *DanglingEdgeError) Is(target error) bool { return target == ErrDanglingEdge }

// NoTerminalStateError is returned when the configured terminal id was never registered.
type NoTerminalStateError struct {
	ID string
}

func (e *NoTerminalStateError) Error() string {
	if e.ID == "" {
		return "no terminal state configured"
	}
	return fmt.Sprintf("terminal state %q is not registered", e.ID)
}

func (e *NoTerminalStateError) Is(target error) bool { return target == ErrNoTerminalState }

// SchemaValidationError is returned when the model reply still fails the
// state schema after all retries.
type SchemaValidationError struct {
	StateID  string
	Raw      string
	Attempts int
	Err      error
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("state %q: reply failed schema after %d attempt(s): %v", e.StateID, e.Attempts, e.Err)
}

func (e *SchemaValidationError) Is(target error) bool { return target == ErrSchemaValidation }

func (e *SchemaValidationError) Unwrap() error { return e.Err }

// UnknownTransitionError is returned when the model picks an undeclared target
// and no fallback is configured.
type UnknownTransitionError struct {
	StateID  string
	Proposed string
	Allowed  []string
	Raw      string
}

func (e *UnknownTransitionError) Error() string {
	return fmt.Sprintf("state %q: model proposed %q, allowed: [%s]",
		e.StateID, e.Proposed, strings.Join(e.Allowed, ", "))
}

func (e *UnknownTransitionError) Is(target error) bool { return target == ErrUnknownTransition }

// HandlerError wraps a failure (or panic) raised by a state handler.
type HandlerError struct {
	StateID string
	Err     error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler for state %q: %v", e.StateID, e.Err)
}

func (e *HandlerError) Is(target error) bool { return target == ErrHandler }

func (e *HandlerError) Unwrap() error { return e.Err }

// ClientErrorKind categorizes model backend failures.
type ClientErrorKind string

const (
	ClientNetwork   ClientErrorKind = "network"
	ClientAuth      ClientErrorKind = "auth"
	ClientRateLimit ClientErrorKind = "rate_limit"
	ClientMalformed ClientErrorKind = "malformed"
	ClientTimeout   ClientErrorKind = "timeout"
	ClientCanceled  ClientErrorKind = "canceled"
	ClientUnknown   ClientErrorKind = "unknown"
)

// ClientError is a failure of the model backend. No turn state is changed.
type ClientError struct {
	Kind    ClientErrorKind
	StateID string
	Err     error
}

func (e *ClientError) Error() string {
	if e.StateID == "" {
		return fmt.Sprintf("model client (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("state %q: model client (%s): %v", e.StateID, e.Kind, e.Err)
}

func (e *ClientError) Is(target error) bool { return target == ErrClient }

func (e *ClientError) Unwrap() error { return e.Err }

// Temporary reports whether retrying the same turn may succeed.
func (e *ClientError) Temporary() bool {
	return e.Kind != ClientAuth
}

// AlreadyCompletedError is returned when a turn is requested after the terminal state.
type AlreadyCompletedError struct {
	StateID string
}

func (e *AlreadyCompletedError) Error() string {
	return fmt.Sprintf("machine already completed in state %q", e.StateID)
}

func (e *AlreadyCompletedError) Is(target error) bool { return target == ErrAlreadyCompleted }

// TemplateError is returned when a state prompt cannot be produced.
type TemplateError struct {
	StateID string
	Err     error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("prompt for state %q: %v", e.StateID, e.Err)
}

func (e *TemplateError) Is(target error) bool { return target == ErrTemplate }

func (e *TemplateError) Unwrap() error { return e.Err }
