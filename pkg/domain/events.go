package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventTurnStart  EventType = "turn_start"
	EventTurnCommit EventType = "turn_commit"
	EventTurnError  EventType = "turn_error"
	EventOverride   EventType = "override"
	EventRetry      EventType = "schema_retry"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	MachineID string    `json:"machine_id,omitempty"`
	StateID   string    `json:"state_id"`
}

// TurnEvent reports the start, commit or failure of a turn.
type TurnEvent struct {
	EventBase
	Input    string        `json:"input,omitempty"`
	Record   *TurnRecord   `json:"record,omitempty"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration,omitempty"`
}

// OverrideEvent reports a handler redirecting the turn.
type OverrideEvent struct {
	EventBase
	From         string `json:"from"`
	To           string `json:"to"`
	ReusePayload bool   `json:"reuse_payload,omitempty"`
}

// RetryEvent reports a corrective retry after an invalid reply.
type RetryEvent struct {
	EventBase
	Attempt int   `json:"attempt"`
	Err     error `json:"-"`
}

// LifecycleHooks defines callbacks for engine observability.
// Hooks run synchronously on the turn's goroutine and must not block.
type LifecycleHooks struct {
	OnTurnStart  func(context.Context, *TurnEvent)
	OnTurnCommit func(context.Context, *TurnEvent)
	OnTurnError  func(context.Context, *TurnEvent)
	OnOverride   func(context.Context, *OverrideEvent)
	OnRetry      func(context.Context, *RetryEvent)
}

// Merge combines hook sets so that each callback of every set runs in order.
func Merge(sets ...LifecycleHooks) LifecycleHooks {
	var out LifecycleHooks
	for _, h := range sets {
		out.OnTurnStart = chain(out.OnTurnStart, h.OnTurnStart)
		out.OnTurnCommit = chain(out.OnTurnCommit, h.OnTurnCommit)
		out.OnTurnError = chain(out.OnTurnError, h.OnTurnError)
		out.OnOverride = chain(out.OnOverride, h.OnOverride)
		out.OnRetry = chain(out.OnRetry, h.OnRetry)
	}
	return out
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
