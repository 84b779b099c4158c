package schema

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/google/jsonschema-go/jsonschema"
)

// FromType derives a descriptor from a Go struct using its json tags.
// Fields tagged omitempty become optional.
func FromType[T any](name string) (*Descriptor, error) {
	inferred, err := jsonschema.For[T](nil)
	if err != nil {
		return nil, fmt.Errorf("infer schema for %s: %w", name, err)
	}
	raw, err := json.Marshal(inferred)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Description string                    `json:"description"`
		Properties  map[string]map[string]any `json:"properties"`
		Required    []string                  `json:"required"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(doc.Properties))
	for n := range doc.Properties {
		names = append(names, n)
	}
	slices.Sort(names)

	d := &Descriptor{Name: name, Description: doc.Description}
	for _, n := range names {
		prop := doc.Properties[n]
		typeName, _ := prop["type"].(string)
		if typeName == "" {
			typeName = "any"
		}
		d.Fields = append(d.Fields, Field{
			Name:     n,
			Type:     Raw(typeName, prop),
			Optional: !slices.Contains(doc.Required, n),
		})
	}
	return d, nil
}

// MustFromType is like FromType but panics on error. Intended for package-level state tables.
func MustFromType[T any](name string) *Descriptor {
	d, err := FromType[T](name)
	if err != nil {
		panic(err)
	}
	return d
}
