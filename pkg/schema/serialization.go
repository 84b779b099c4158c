package schema

import (
	"encoding/json"
	"fmt"
)

type fieldJSON struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Optional    bool   `json:"optional,omitempty"`
}

// MarshalJSON serializes the descriptor as a summary of field names and type names,
// which is what introspection surfaces (graph export, MCP, HTTP) display.
func (d *Descriptor) MarshalJSON() ([]byte, error) {
	if d == nil {
		return []byte("null"), nil
	}

	fields := make([]fieldJSON, 0, len(d.Fields))
	for _, f := range d.Fields {
		if f.Type == nil {
			return nil, fmt.Errorf("field %s: type is nil", f.Name)
		}
		fields = append(fields, fieldJSON{
			Name:        f.Name,
			Type:        f.Type.Name(),
			Description: f.Description,
			Optional:    f.Optional,
		})
	}

	return json.Marshal(struct {
		Name        string      `json:"name"`
		Description string      `json:"description,omitempty"`
		Fields      []fieldJSON `json:"fields"`
	}{d.Name, d.Description, fields})
}
