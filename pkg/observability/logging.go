package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/llmfsm/pkg/domain"
)

// LoggingHooks logs every lifecycle event on logger.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTurnStart: func(ctx context.Context, e *domain.TurnEvent) {
			logger.DebugContext(ctx, "turn_start", "machine", e.MachineID, "state", e.StateID)
		},
		OnTurnCommit: func(ctx context.Context, e *domain.TurnEvent) {
			attrs := []any{"machine", e.MachineID, "state", e.StateID, "duration", e.Duration}
			if e.Record != nil {
				attrs = append(attrs, "next", e.Record.NextState, "attempts", e.Record.Attempts)
			}
			logger.InfoContext(ctx, "turn_commit", attrs...)
		},
		OnTurnError: func(ctx context.Context, e *domain.TurnEvent) {
			logger.WarnContext(ctx, "turn_error",
				"machine", e.MachineID,
				"state", e.StateID,
				"outcome", Outcome(e.Err),
				"err", e.Err,
			)
		},
		OnOverride: func(ctx context.Context, e *domain.OverrideEvent) {
			logger.InfoContext(ctx, "override",
				"machine", e.MachineID,
				"from", e.From,
				"to", e.To,
				"reuse_payload", e.ReusePayload,
			)
		},
		OnRetry: func(ctx context.Context, e *domain.RetryEvent) {
			logger.WarnContext(ctx, "schema_retry",
				"machine", e.MachineID,
				"state", e.StateID,
				"attempt", e.Attempt,
				"err", e.Err,
			)
		},
	}
}
