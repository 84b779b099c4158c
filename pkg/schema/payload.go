package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// ErrNoObject is returned when a reply contains no JSON object.
var ErrNoObject = errors.New("reply contains no JSON object")

// Payload is a parsed structured reply.
type Payload map[string]any

// Transition returns the reserved transition field, or "" when absent.
func (p Payload) Transition() string {
	s, _ := p[TransitionField].(string)
	return s
}

// Content returns the default response text, or "" when absent.
func (p Payload) Content() string {
	return p.String(ContentField)
}

// String returns a string field, or "" when absent or not a string.
func (p Payload) String(key string) string {
	s, _ := p[key].(string)
	return s
}

// Fields returns a copy without the transition field.
func (p Payload) Fields() Payload {
	out := maps.Clone(p)
	delete(out, TransitionField)
	return out
}

// Decode maps the payload onto a struct using its json tags.
func (p Payload) Decode(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(map[string]any(p.Fields())); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

// Extract isolates the JSON object in a model reply, tolerating
// surrounding prose and markdown code fences.
func Extract(raw string) ([]byte, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return nil, ErrNoObject
	}
	return []byte(s[start : end+1]), nil
}

// Parse extracts and decodes the JSON object in raw.
// It returns the payload together with the isolated object bytes.
func Parse(raw string) (Payload, []byte, error) {
	obj, err := Extract(raw)
	if err != nil {
		return nil, nil, err
	}
	var p Payload
	dec := json.NewDecoder(bytes.NewReader(obj))
	if err := dec.Decode(&p); err != nil {
		return nil, nil, fmt.Errorf("parse reply: %w", err)
	}
	return p, obj, nil
}
