package domain

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// ContextStore is the key/value memory of a conversation.
// Values are kept in their JSON form: objects become map[string]any, arrays
// []any and numbers float64, exactly as they read back after persistence.
// It is not safe for concurrent use; the engine serializes access per turn.
type ContextStore struct {
	values map[string]any
}

// NewContextStore creates a store seeded with a copy of initial.
// Values that cannot be encoded as JSON are kept as given; use
// LoadContextStore to reject them.
func NewContextStore(initial map[string]any) *ContextStore {
	s := &ContextStore{values: make(map[string]any, len(initial))}
	for k, v := range initial {
		n, err := normalize(v)
		if err != nil {
			n = deepCopy(v)
		}
		s.values[k] = n
	}
	return s
}

// LoadContextStore is NewContextStore that fails on values that cannot be
// encoded as JSON.
func LoadContextStore(initial map[string]any) (*ContextStore, error) {
	s := &ContextStore{values: make(map[string]any, len(initial))}
	for _, k := range slices.Sorted(maps.Keys(initial)) {
		if err := s.Set(k, initial[k]); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Get returns the value for key. Nested maps and slices are shared with the
// store; use GetCopy to hand a value outside the owning turn.
func (s *ContextStore) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

// GetCopy returns a deep copy of the value for key.
func (s *ContextStore) GetCopy(key string) (any, bool) {
	v, ok := s.values[key]
	return deepCopy(v), ok
}

// Set stores the JSON form of value under key, so later changes to value
// never reach the store. It fails if value cannot be encoded as JSON.
func (s *ContextStore) Set(key string, value any) error {
	if key == "" {
		return fmt.Errorf("context key cannot be empty")
	}
	n, err := normalize(value)
	if err != nil {
		return fmt.Errorf("context value for %q is not serializable: %w", key, err)
	}
	s.values[key] = n
	return nil
}

// Delete removes key.
func (s *ContextStore) Delete(key string) {
	delete(s.values, key)
}

// Keys returns the keys in sorted order.
func (s *ContextStore) Keys() []string {
	return slices.Sorted(maps.Keys(s.values))
}

// Len returns the number of entries.
func (s *ContextStore) Len() int {
	return len(s.values)
}

// Clone returns an independent copy, nested maps and slices included.
func (s *ContextStore) Clone() *ContextStore {
	out := &ContextStore{values: make(map[string]any, len(s.values))}
	for k, v := range s.values {
		out.values[k] = deepCopy(v)
	}
	return out
}

// Snapshot returns a copy of the values.
func (s *ContextStore) Snapshot() map[string]any {
	return s.Clone().values
}

// normalize converts v to what json.Unmarshal would produce for its encoding.
func normalize(v any) (any, error) {
	switch v.(type) {
	case nil, string, bool:
		return v, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = deepCopy(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = deepCopy(vv)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
