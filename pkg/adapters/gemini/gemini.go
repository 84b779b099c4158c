// Package gemini implements llm.Client on the Gemini API with a response schema.
package gemini

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"google.golang.org/genai"

	"github.com/aretw0/llmfsm/pkg/domain"
	"github.com/aretw0/llmfsm/pkg/llm"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash-lite"

// Client is an llm.Client backed by the genai SDK.
type Client struct {
	client *genai.Client
	model  string
}

type config struct {
	apiKey  string
	model   string
	baseURL string
}

// Option configures the Client.
type Option func(*config)

// WithAPIKey sets the API key. GOOGLE_API_KEY is used otherwise.
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

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// New creates a client.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := config{
		apiKey: os.Getenv("GOOGLE_API_KEY"),
		model:  DefaultModel,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.apiKey == "" {
		return nil, fmt.Errorf("gemini: missing API key; set GOOGLE_API_KEY or use WithAPIKey")
	}

	cc := &genai.ClientConfig{APIKey: cfg.apiKey, Backend: genai.BackendGeminiAPI}
	if cfg.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return &Client{client: client, model: cfg.model}, nil
}

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Completion, error) {
	model := c.model
	if req.Model != "" {
		model = req.Model
	}

	gc := &genai.GenerateContentConfig{}
	var system []string
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem:
			system = append(system, m.Content)
		case llm.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(system) > 0 {
		gc.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	if req.Schema != nil {
		gc.ResponseMIMEType = "application/json"
		gc.ResponseSchema = Schema(req.Schema)
	}

	res, err := c.client.Models.GenerateContent(ctx, model, contents, gc)
	if err != nil {
		return llm.Completion{}, classify(err)
	}
	text := res.Text()
	if text == "" {
		return llm.Completion{}, llm.NewError(domain.ClientMalformed, errors.New("gemini: empty response"))
	}

	out := llm.Completion{Text: text, Model: model}
	if res.UsageMetadata != nil {
		out.PromptTokens = int(res.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(res.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}

// Schema converts a JSON Schema document into the OpenAPI subset Gemini accepts.
// Unsupported keywords such as additionalProperties are dropped.
func Schema(doc map[string]any) *genai.Schema {
	if doc == nil {
		return nil
	}
	s := &genai.Schema{}
	if d, ok := doc["description"].(string); ok {
		s.Description = d
	}

	switch t := doc["type"].(type) {
	case string:
		s.Type = typeOf(t)
	case []any:
		for _, v := range t {
			name, _ := v.(string)
			if name == "null" {
				s.Nullable = genai.Ptr(true)
				continue
			}
			s.Type = typeOf(name)
		}
	}

	if anyOf, ok := doc["anyOf"].([]any); ok {
		for _, v := range anyOf {
			sub, _ := v.(map[string]any)
			if sub["type"] == "null" {
				s.Nullable = genai.Ptr(true)
				continue
			}
			inner := Schema(sub)
			inner.Nullable = s.Nullable
			inner.Description = cmp.Or(s.Description, inner.Description)
			s = inner
		}
	}

	if enum, ok := doc["enum"].([]any); ok {
		for _, v := range enum {
			if str, ok := v.(string); ok {
				s.Enum = append(s.Enum, str)
			}
		}
	}
	if items, ok := doc["items"].(map[string]any); ok {
		s.Items = Schema(items)
	}
	if props, ok := doc["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, v := range props {
			sub, _ := v.(map[string]any)
			s.Properties[name] = Schema(sub)
		}
		s.Required = asStrings(doc["required"])
		s.PropertyOrdering = orderedKeys(s.Required, props)
	}
	return s
}

func typeOf(name string) genai.Type {
	switch name {
	case "string":
		return genai.TypeString
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}

func asStrings(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, x := range t {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// orderedKeys keeps the required order first, then any remaining properties sorted.
func orderedKeys(required []string, props map[string]any) []string {
	out := make([]string, 0, len(props))
	seen := make(map[string]bool, len(props))
	for _, r := range required {
		if _, ok := props[r]; ok && !seen[r] {
			out = append(out, r)
			seen[r] = true
		}
	}
	var rest []string
	for k := range props {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	slices.Sort(rest)
	return append(out, rest...)
}

func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return llm.NewError(llm.KindForStatus(apiErr.Code), err)
	}
	return llm.Classify(err)
}
