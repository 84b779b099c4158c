package domain_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aretw0/llmfsm/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestErrors_MatchSentinels(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"duplicate", &domain.DuplicateStateError{ID: "A"}, domain.ErrDuplicateState},
		{"dangling", &domain.DanglingEdgeError{From: "A", To: "X"}, domain.ErrDanglingEdge},
		{"no terminal", &domain.NoTerminalStateError{ID: "END"}, domain.ErrNoTerminalState},
		{"schema", &domain.SchemaValidationError{StateID: "A", Attempts: 3, Err: cause}, domain.ErrSchemaValidation},
		{"unknown transition", &domain.UnknownTransitionError{StateID: "A", Proposed: "D"}, domain.ErrUnknownTransition},
		{"handler", &domain.HandlerError{StateID: "A", Err: cause}, domain.ErrHandler},
		{"client", &domain.ClientError{Kind: domain.ClientNetwork, Err: cause}, domain.ErrClient},
		{"completed", &domain.AlreadyCompletedError{StateID: "END"}, domain.ErrAlreadyCompleted},
		{"template", &domain.TemplateError{StateID: "A", Err: cause}, domain.ErrTemplate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("turn failed: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.sentinel)
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

func TestErrors_UnwrapCause(t *testing.T) {
	err := &domain.ClientError{Kind: domain.ClientTimeout, StateID: "A", Err: context.DeadlineExceeded}
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, err.Temporary())

	auth := &domain.ClientError{Kind: domain.ClientAuth, Err: errors.New("401")}
	assert.False(t, auth.Temporary())

	var he *domain.HandlerError
	assert.True(t, errors.As(fmt.Errorf("x: %w", &domain.HandlerError{StateID: "S", Err: errors.New("bad")}), &he))
	assert.Equal(t, "S", he.StateID)
}

func TestUnknownTransitionError_Message(t *testing.T) {
	err := &domain.UnknownTransitionError{StateID: "A", Proposed: "D", Allowed: []string{"B", "C"}}
	assert.Equal(t, `state "A": model proposed "D", allowed: [B, C]`, err.Error())
}

func TestMergeHooks(t *testing.T) {
	var calls []string
	a := domain.LifecycleHooks{OnTurnStart: func(context.Context, *domain.TurnEvent) { calls = append(calls, "a") }}
	b := domain.LifecycleHooks{
		OnTurnStart: func(context.Context, *domain.TurnEvent) { calls = append(calls, "b") },
		OnRetry:     func(context.Context, *domain.RetryEvent) { calls = append(calls, "retry") },
	}

	h := domain.Merge(a, b, domain.LifecycleHooks{})
	h.OnTurnStart(context.Background(), &domain.TurnEvent{})
	h.OnRetry(context.Background(), &domain.RetryEvent{})

	assert.Equal(t, []string{"a", "b", "retry"}, calls)
	assert.Nil(t, h.OnTurnCommit)
}
