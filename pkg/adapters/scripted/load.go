package scripted

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Load reads a JSON array of replies. A string element is sent as raw text;
// any other element is marshaled as the reply object.
func Load(r io.Reader) ([]Step, error) {
	var raw []json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("scripted: decode script: %w", err)
	}
	steps := make([]Step, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			steps = append(steps, Text(s))
			continue
		}
		steps = append(steps, Step{Text: string(item)})
	}
	return steps, nil
}

// LoadFile reads a script from path.
func LoadFile(path string) ([]Step, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}
