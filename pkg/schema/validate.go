package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

const resourceURL = "mem://reply.json"

// Validator checks raw model replies against a compiled JSON Schema document.
type Validator struct {
	schema *jsonschema.Schema
	doc    []byte
}

// Compile prepares a validator for the given document.
func Compile(doc map[string]any) (*Validator, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	// Round-trip through the library decoder so numbers keep their exact form.
	parsed, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(resourceURL, parsed); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	sch, err := c.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: sch, doc: raw}, nil
}

// Document returns the compiled schema as JSON.
func (v *Validator) Document() []byte {
	return v.doc
}

// Validate checks a JSON-encoded instance.
// Failures are reported as an *AggregateError of *ValidationError.
func (v *Validator) Validate(instance []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(instance))
	if err != nil {
		return &ValidationError{Key: "$", Reason: "invalid JSON: " + err.Error()}
	}
	if err := v.schema.Validate(inst); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return &AggregateError{Errors: flatten(ve)}
		}
		return err
	}
	return nil
}

// flatten collects leaf causes, which carry the most specific reasons.
func flatten(ve *jsonschema.ValidationError) []error {
	if len(ve.Causes) == 0 {
		key := "/" + strings.Join(ve.InstanceLocation, "/")
		return []error{&ValidationError{Key: key, Reason: ve.Error()}}
	}
	var out []error
	for _, c := range ve.Causes {
		out = append(out, flatten(c)...)
	}
	return out
}
