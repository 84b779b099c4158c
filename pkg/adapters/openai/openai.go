// Package openai implements llm.Client on the OpenAI chat completions API
// using strict JSON Schema structured output.
package openai

import (
	"context"
	"errors"
	"fmt"
	"os"

	oa "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/aretw0/llmfsm/pkg/domain"
	"github.com/aretw0/llmfsm/pkg/llm"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

// Client is an llm.Client backed by the OpenAI SDK.
type Client struct {
	client oa.Client
	model  string
}

type config struct {
	apiKey       string
	model        string
	baseURL      string
	organization string
	extra        []option.RequestOption
}

// Option configures the Client.
type Option func(*config)

// WithAPIKey sets the API key. OPENAI_API_KEY is used otherwise.
func WithAPIKey(key string) Option {
	return func(c *config) {
		c.apiKey = key
	}
}

// WithModel sets the default model.
func WithModel(model string) Option {
	return func(c *config) {
		c.model = model
	}
}

// WithBaseURL points the client at a compatible endpoint.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithOrganization sets the organization header.
func WithOrganization(org string) Option {
	return func(c *config) {
		c.organization = org
	}
}

// WithRequestOptions passes raw SDK options through.
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(c *config) {
		c.extra = append(c.extra, opts...)
	}
}

// New creates a client.
func New(opts ...Option) (*Client, error) {
	cfg := config{
		apiKey: os.Getenv("OPENAI_API_KEY"),
		model:  DefaultModel,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.apiKey == "" {
		return nil, fmt.Errorf("openai: missing API key; set OPENAI_API_KEY or use WithAPIKey")
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}
	reqOpts = append(reqOpts, cfg.extra...)

	return &Client{client: oa.NewClient(reqOpts...), model: cfg.model}, nil
}

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Completion, error) {
	model := c.model
	if req.Model != "" {
		model = req.Model
	}

	params := oa.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: messages(req.Messages),
	}
	if req.Schema != nil {
		name := req.SchemaName
		if name == "" {
			name = "reply"
		}
		params.ResponseFormat = oa.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   name,
					Schema: req.Schema,
					Strict: oa.Bool(true),
				},
			},
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return llm.Completion{}, classify(err)
	}
	if len(resp.Choices) == 0 {
		return llm.Completion{}, llm.NewError(domain.ClientMalformed, errors.New("openai: response has no choices"))
	}
	msg := resp.Choices[0].Message
	if msg.Refusal != "" {
		return llm.Completion{}, llm.NewError(domain.ClientMalformed, fmt.Errorf("openai: model refused: %s", msg.Refusal))
	}

	return llm.Completion{
		Text:         msg.Content,
		Model:        resp.Model,
		PromptTokens: int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}, nil
}

func messages(in []llm.Message) []oa.ChatCompletionMessageParamUnion {
	out := make([]oa.ChatCompletionMessageParamUnion, 0, len(in))
	for _, m := range in {
		switch m.Role {
		case llm.RoleSystem:
			out = append(out, oa.SystemMessage(m.Content))
		case llm.RoleAssistant:
			out = append(out, oa.AssistantMessage(m.Content))
		default:
			out = append(out, oa.UserMessage(m.Content))
		}
	}
	return out
}

func classify(err error) error {
	var apiErr *oa.Error
	if errors.As(err, &apiErr) {
		return llm.NewError(llm.KindForStatus(apiErr.StatusCode), err)
	}
	return llm.Classify(err)
}
