package schema

import (
	"encoding/json"
	"fmt"
)

// TransitionField is the reserved reply field carrying the model's choice of next state.
const TransitionField = "transition"

// ContentField is the single field of the default response shape.
const ContentField = "content"

// Field is one named entry of a Descriptor.
type Field struct {
	Name        string
	Type        Type
	Description string
	Optional    bool
}

// Required declares a field the model must always fill.
func Required(name string, t Type, description string) Field {
	return Field{Name: name, Type: t, Description: description}
}

// Optional declares a field the model may leave null.
func Optional(name string, t Type, description string) Field {
	return Field{Name: name, Type: t, Description: description, Optional: true}
}

// Descriptor is the expected shape of a state's structured reply.
// Field order is preserved in the rendered document.
type Descriptor struct {
	Name        string
	Description string
	Fields      []Field
}

// New creates a descriptor with the given fields.
func New(name string, fields ...Field) *Descriptor {
	return &Descriptor{Name: name, Fields: append([]Field(nil), fields...)}
}

// DefaultResponse is the shape used by states that only need free text.
func DefaultResponse() *Descriptor {
	return New("DefaultResponse", Required(ContentField, String(), "The message to show the user."))
}

// Field looks up a field by name.
func (d *Descriptor) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Check reports structural problems: empty or duplicate names, nil types,
// or use of the reserved transition field.
func (d *Descriptor) Check() error {
	seen := make(map[string]bool, len(d.Fields))
	var errs []error
	for i, f := range d.Fields {
		switch {
		case f.Name == "":
			errs = append(errs, &ValidationError{Key: fmt.Sprintf("#%d", i), Reason: "empty field name"})
		case f.Name == TransitionField:
			errs = append(errs, &ValidationError{Key: f.Name, Reason: "reserved field name"})
		case seen[f.Name]:
			errs = append(errs, &ValidationError{Key: f.Name, Reason: "duplicate field"})
		case f.Type == nil:
			errs = append(errs, &ValidationError{Key: f.Name, Reason: "type is nil"})
		}
		seen[f.Name] = true
	}
	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}

// Document renders the descriptor as a strict JSON Schema object.
// When transitions is non-nil a required string field named TransitionField
// restricted to those values is added.
func (d *Descriptor) Document(transitions []string) map[string]any {
	doc := objectSchema(d.Fields)
	if d.Description != "" {
		doc["description"] = d.Description
	}
	if transitions == nil {
		return doc
	}

	enum := make([]any, len(transitions))
	for i, t := range transitions {
		enum[i] = t
	}
	props := doc["properties"].(map[string]any)
	props[TransitionField] = map[string]any{
		"type":        "string",
		"enum":        enum,
		"description": "The id of the next state, or the current state id / no-op to stay.",
	}
	doc["required"] = append(doc["required"].([]any), TransitionField)
	return doc
}

// ReplyDocument is Document with an unconstrained string transition field.
// Replies are validated against it so that an undeclared target can be told
// apart from a malformed reply.
func (d *Descriptor) ReplyDocument() map[string]any {
	doc := d.Document(nil)
	props := doc["properties"].(map[string]any)
	props[TransitionField] = map[string]any{"type": "string"}
	doc["required"] = append(doc["required"].([]any), TransitionField)
	return doc
}

// JSON renders Document as bytes.
func (d *Descriptor) JSON(transitions []string) ([]byte, error) {
	return json.Marshal(d.Document(transitions))
}

// Names returns the field names in order.
func (d *Descriptor) Names() []string {
	names := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		names[i] = f.Name
	}
	return names
}

// objectSchema builds a closed object where every property is listed as
// required and optional ones accept null. This is the shape strict
// structured-output backends expect.
func objectSchema(fields []Field) map[string]any {
	props := make(map[string]any, len(fields))
	required := make([]any, 0, len(fields))
	for _, f := range fields {
		frag := f.Type.JSONSchema()
		if f.Optional {
			frag = nullable(frag)
		}
		if f.Description != "" {
			frag["description"] = f.Description
		}
		props[f.Name] = frag
		required = append(required, f.Name)
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}
