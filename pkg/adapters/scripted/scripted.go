// Package scripted provides a deterministic llm.Client that replays canned
// replies in order. It is meant for tests, demos and offline runs.
package scripted

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aretw0/llmfsm/pkg/llm"
)

// Step is one scripted reply. Exactly one of Text or Err is used.
type Step struct {
	Text string
	Err  error
}

// Reply builds a step whose text is v marshaled as JSON.
func Reply(v any) Step {
	raw, err := json.Marshal(v)
	if err != nil {
		return Step{Err: err}
	}
	return Step{Text: string(raw)}
}

// Text builds a step with raw reply text.
func Text(s string) Step {
	return Step{Text: s}
}

// Fail builds a step that returns err.
func Fail(err error) Step {
	return Step{Err: err}
}

// Client replays Steps. It is safe for concurrent use.
type Client struct {
	mu       sync.Mutex
	steps    []Step
	index    int
	requests []llm.Request
	loop     bool
}

// Option configures the Client.
type Option func(*Client)

// WithLoop restarts the script from the beginning when it runs out.
func WithLoop() Option {
	return func(c *Client) {
		c.loop = true
	}
}

// New creates a client that replays steps in order.
func New(steps []Step, opts ...Option) *Client {
	c := &Client{steps: append([]Step(nil), steps...)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Completion, error) {
	if err := ctx.Err(); err != nil {
		return llm.Completion{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests = append(c.requests, cloneRequest(req))
	if c.index >= len(c.steps) {
		if !c.loop || len(c.steps) == 0 {
			return llm.Completion{}, fmt.Errorf("scripted: script exhausted at step %d", c.index)
		}
		c.index = 0
	}
	step := c.steps[c.index]
	c.index++
	if step.Err != nil {
		return llm.Completion{}, step.Err
	}
	return llm.Completion{Text: step.Text, Model: "scripted"}, nil
}

// Push appends steps to the script.
func (c *Client) Push(steps ...Step) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps = append(c.steps, steps...)
}

// Requests returns a copy of every request received so far.
func (c *Client) Requests() []llm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]llm.Request(nil), c.requests...)
}

// Calls returns the number of requests received.
func (c *Client) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

// Remaining returns the number of unconsumed steps.
func (c *Client) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.steps) - c.index
}

func cloneRequest(req llm.Request) llm.Request {
	req.Messages = append([]llm.Message(nil), req.Messages...)
	return req
}
