package schema

import (
	"fmt"
	"maps"
)

// Type describes the shape of a single field in a structured model reply.
// Implementations render themselves as a JSON Schema fragment.
type Type interface {
	// Name returns the human-readable name of the type (e.g., "string", "[int]").
	Name() string
	// JSONSchema returns a fresh JSON Schema fragment for this type.
	JSONSchema() map[string]any
}

// --- Built-in Type Implementations ---

// StringType describes string values.
type StringType struct{}

func (t *StringType) Name() string { return "string" }

func (t *StringType) JSONSchema() map[string]any { return map[string]any{"type": "string"} }

// IntType describes integer values.
type IntType struct{}

func (t *IntType) Name() string { return "int" }

func (t *IntType) JSONSchema() map[string]any { return map[string]any{"type": "integer"} }

// FloatType describes floating-point values.
type FloatType struct{}

func (t *FloatType) Name() string { return "float" }

func (t *FloatType) JSONSchema() map[string]any { return map[string]any{"type": "number"} }

// BoolType describes boolean values.
type BoolType struct{}

func (t *BoolType) Name() string { return "bool" }

func (t *BoolType) JSONSchema() map[string]any { return map[string]any{"type": "boolean"} }

// SliceType describes arrays of a specific element type.
type SliceType struct {
	elemType Type
}

func (t *SliceType) Name() string {
	return fmt.Sprintf("[%s]", t.elemType.Name())
}

func (t *SliceType) JSONSchema() map[string]any {
	return map[string]any{"type": "array", "items": t.elemType.JSONSchema()}
}

// EnumType describes a string restricted to a closed set of values.
type EnumType struct {
	values []string
}

func (t *EnumType) Name() string { return fmt.Sprintf("enum%v", t.values) }

func (t *EnumType) JSONSchema() map[string]any {
	vals := make([]any, len(t.values))
	for i, v := range t.values {
		vals[i] = v
	}
	return map[string]any{"type": "string", "enum": vals}
}

// Values returns the allowed values in declaration order.
func (t *EnumType) Values() []string {
	return append([]string(nil), t.values...)
}

// ObjectType describes a nested object with its own fields.
type ObjectType struct {
	fields []Field
}

func (t *ObjectType) Name() string { return "object" }

func (t *ObjectType) JSONSchema() map[string]any { return objectSchema(t.fields) }

// RawType wraps a JSON Schema fragment produced elsewhere (e.g. inferred from a Go type).
type RawType struct {
	name string
	doc  map[string]any
}

func (t *RawType) Name() string { return t.name }

func (t *RawType) JSONSchema() map[string]any { return maps.Clone(t.doc) }

// --- Factory Functions ---

// String creates a string type.
func String() Type { return &StringType{} }

// Int creates an integer type.
func Int() Type { return &IntType{} }

// Float creates a float type.
func Float() Type { return &FloatType{} }

// Bool creates a boolean type.
func Bool() Type { return &BoolType{} }

// Slice creates an array type for elements of the given type.
func Slice(elemType Type) Type {
	return &SliceType{elemType: elemType}
}

// Enum creates a closed string set.
func Enum(values ...string) Type {
	return &EnumType{values: append([]string(nil), values...)}
}

// Object creates a nested object type.
func Object(fields ...Field) Type {
	return &ObjectType{fields: append([]Field(nil), fields...)}
}

// Raw wraps an existing JSON Schema fragment.
func Raw(name string, doc map[string]any) Type {
	return &RawType{name: name, doc: maps.Clone(doc)}
}

// nullable widens a fragment so that JSON null is accepted as well.
func nullable(doc map[string]any) map[string]any {
	out := maps.Clone(doc)
	switch t := out["type"].(type) {
	case string:
		out["type"] = []any{t, "null"}
	default:
		return map[string]any{"anyOf": []any{doc, map[string]any{"type": "null"}}}
	}
	if enum, ok := out["enum"].([]any); ok {
		out["enum"] = append(append([]any(nil), enum...), nil)
	}
	return out
}
