// Package resolver turns one model interaction into a validated payload and a
// decision about the next state.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/llmfsm/internal/logging"
	"github.com/aretw0/llmfsm/pkg/domain"
	"github.com/aretw0/llmfsm/pkg/llm"
	"github.com/aretw0/llmfsm/pkg/prompt"
	"github.com/aretw0/llmfsm/pkg/schema"
)

// DefaultMaxRetries is the number of corrective retries after the first attempt.
const DefaultMaxRetries = 2

// Resolution is the outcome of a successful resolve.
type Resolution struct {
	Payload schema.Payload
	// Proposed is the literal transition value in the reply.
	Proposed string
	// Next is the resolved state id.
	Next           string
	WillTransition bool
	// Fallback is set when Next came from the configured fallback.
	Fallback bool

	Raw          string
	Attempts     int
	Model        string
	PromptTokens int
}

// Resolver issues the structured model call and interprets the reply.
type Resolver struct {
	client        llm.Client
	maxRetries    int
	fallback      string
	unknownAsStay bool
	model         string
	logger        *slog.Logger
	onRetry       func(ctx context.Context, stateID string, attempt int, err error)

	validators sync.Map // schema JSON -> *schema.Validator
}

// Option configures the Resolver.
type Option func(*Resolver)

// WithMaxRetries sets how many corrective retries follow an invalid reply.
func WithMaxRetries(n int) Option {
	return func(r *Resolver) {
		r.maxRetries = max(n, 0)
	}
}

// WithFallback resolves undeclared transitions to id instead of failing.
func WithFallback(id string) Option {
	return func(r *Resolver) {
		r.fallback = id
	}
}

// WithUnknownAsStay resolves undeclared transitions to the current state
// when no fallback is configured.
func WithUnknownAsStay() Option {
	return func(r *Resolver) {
		r.unknownAsStay = true
	}
}

// WithModel sets the model name sent with every request.
func WithModel(model string) Option {
	return func(r *Resolver) {
		r.model = model
	}
}

// WithLogger configures a logger for the Resolver.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithRetryHook is called before every corrective retry.
func WithRetryHook(fn func(ctx context.Context, stateID string, attempt int, err error)) Option {
	return func(r *Resolver) {
		r.onRetry = fn
	}
}

// New creates a resolver backed by client.
func New(client llm.Client, opts ...Option) *Resolver {
	r := &Resolver{
		client:     client,
		maxRetries: DefaultMaxRetries,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Fallback returns the configured fallback id, if any.
func (r *Resolver) Fallback() string {
	return r.fallback
}

// Resolve sends p for def and interprets the reply.
func (r *Resolver) Resolve(ctx context.Context, def domain.StateDefinition, p prompt.Prompt) (Resolution, error) {
	desc := def.Schema
	if desc == nil {
		desc = schema.DefaultResponse()
	}
	requestDoc := desc.Document(p.Transitions)
	validator, err := r.validator(desc.ReplyDocument())
	if err != nil {
		return Resolution{}, &domain.SchemaValidationError{StateID: def.ID, Err: err}
	}

	name := desc.Name
	if name == "" {
		name = def.ID
	}
	messages := p.Messages()

	var (
		payload schema.Payload
		raw     string
		lastErr error
		comp    llm.Completion
	)
	attempts := 0
	for attempts < r.maxRetries+1 {
		attempts++
		comp, err = r.client.Complete(ctx, llm.Request{
			Messages:   messages,
			Schema:     requestDoc,
			SchemaName: name,
			Model:      r.model,
		})
		if err != nil {
			return Resolution{}, clientError(def.ID, err)
		}

		raw = comp.Text
		payload, lastErr = parseAndValidate(validator, comp)
		if lastErr == nil {
			break
		}

		r.logger.Warn("Model reply rejected",
			"state", def.ID,
			"attempt", attempts,
			"err", lastErr,
		)
		if attempts > r.maxRetries {
			break
		}
		if r.onRetry != nil {
			r.onRetry(ctx, def.ID, attempts, lastErr)
		}
		messages = append(messages,
			llm.Message{Role: llm.RoleAssistant, Content: raw},
			llm.Message{Role: llm.RoleUser, Content: corrective(lastErr, requestDoc)},
		)
	}
	if lastErr != nil {
		return Resolution{}, &domain.SchemaValidationError{
			StateID:  def.ID,
			Raw:      raw,
			Attempts: attempts,
			Err:      lastErr,
		}
	}

	res := Resolution{
		Payload:      payload,
		Proposed:     payload.Transition(),
		Raw:          raw,
		Attempts:     attempts,
		Model:        comp.Model,
		PromptTokens: comp.PromptTokens,
	}
	switch {
	case res.Proposed == domain.NoOp || res.Proposed == def.ID:
		res.Next = def.ID
	case def.HasEdge(res.Proposed):
		res.Next = res.Proposed
	case r.fallback != "":
		res.Next = r.fallback
		res.Fallback = true
	case r.unknownAsStay:
		res.Next = def.ID
	default:
		return Resolution{}, &domain.UnknownTransitionError{
			StateID:  def.ID,
			Proposed: res.Proposed,
			Allowed:  def.Targets(),
			Raw:      raw,
		}
	}
	res.WillTransition = res.Next != def.ID

	r.logger.Debug("Transition resolved",
		"state", def.ID,
		"proposed", res.Proposed,
		"next", res.Next,
		"attempts", attempts,
	)
	return res, nil
}

func (r *Resolver) validator(doc map[string]any) (*schema.Validator, error) {
	key, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	if v, ok := r.validators.Load(string(key)); ok {
		return v.(*schema.Validator), nil
	}
	v, err := schema.Compile(doc)
	if err != nil {
		return nil, err
	}
	r.validators.Store(string(key), v)
	return v, nil
}

func parseAndValidate(v *schema.Validator, comp llm.Completion) (schema.Payload, error) {
	var (
		p   schema.Payload
		obj []byte
		err error
	)
	if len(comp.Parsed) > 0 {
		p, obj, err = schema.Parse(string(comp.Parsed))
	} else {
		p, obj, err = schema.Parse(comp.Text)
	}
	if err != nil {
		return nil, err
	}
	if err := v.Validate(obj); err != nil {
		return nil, err
	}
	return p, nil
}

func corrective(err error, doc map[string]any) string {
	shape, _ := json.MarshalIndent(doc, "", "  ")
	return fmt.Sprintf(
		"Your previous reply could not be accepted: %v\n"+
			"Reply again with only a JSON object that matches this schema exactly:\n%s",
		err, shape)
}

func clientError(stateID string, err error) error {
	var ce *domain.ClientError
	if !errors.As(llm.Classify(err), &ce) {
		return err
	}
	out := *ce
	out.StateID = stateID
	return &out
}
