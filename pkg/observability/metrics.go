package observability

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/llmfsm/pkg/domain"
)

// Metrics holds the Prometheus collectors fed by the engine's lifecycle hooks.
type Metrics struct {
	Turns       *prometheus.CounterVec
	Transitions *prometheus.CounterVec
	Overrides   *prometheus.CounterVec
	Retries     *prometheus.CounterVec
	Duration    *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		Turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llmfsm_turns_total",
			Help: "Turns run, by starting state and outcome.",
		}, []string{"state", "outcome"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llmfsm_transitions_total",
			Help: "Committed turns, by prior and next state.",
		}, []string{"from", "to"}),
		Overrides: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llmfsm_overrides_total",
			Help: "Immediate overrides issued by handlers.",
		}, []string{"from", "to"}),
		Retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llmfsm_schema_retries_total",
			Help: "Corrective retries after a reply failed validation.",
		}, []string{"state"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llmfsm_turn_duration_seconds",
			Help:    "Wall time of a turn including model calls.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"state"}),
	}
	for _, c := range []prometheus.Collector{m.Turns, m.Transitions, m.Overrides, m.Retries, m.Duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTurnCommit: func(_ context.Context, e *domain.TurnEvent) {
			m.Turns.WithLabelValues(e.StateID, "committed").Inc()
			m.Duration.WithLabelValues(e.StateID).Observe(e.Duration.Seconds())
			if e.Record != nil {
				m.Transitions.WithLabelValues(e.Record.PriorState, e.Record.NextState).Inc()
			}
		},
		OnTurnError: func(_ context.Context, e *domain.TurnEvent) {
			m.Turns.WithLabelValues(e.StateID, Outcome(e.Err)).Inc()
			m.Duration.WithLabelValues(e.StateID).Observe(e.Duration.Seconds())
		},
		OnOverride: func(_ context.Context, e *domain.OverrideEvent) {
			m.Overrides.WithLabelValues(e.From, e.To).Inc()
		},
		OnRetry: func(_ context.Context, e *domain.RetryEvent) {
			m.Retries.WithLabelValues(e.StateID).Inc()
		},
	}
}

// Outcome names the error class of a failed turn for metric labels.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "committed"
	case errors.Is(err, domain.ErrSchemaValidation):
		return "schema_validation"
	case errors.Is(err, domain.ErrUnknownTransition):
		return "unknown_transition"
	case errors.Is(err, domain.ErrHandler):
		return "handler"
	case errors.Is(err, domain.ErrClient):
		return "client"
	case errors.Is(err, domain.ErrTemplate):
		return "template"
	case errors.Is(err, domain.ErrAlreadyCompleted):
		return "already_completed"
	default:
		return "other"
	}
}
