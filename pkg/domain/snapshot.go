package domain

import "time"

// Snapshot is the serializable state of a machine.
// Handlers and definitions are not part of it; a snapshot is restored
// against the same registry it was taken from.
type Snapshot struct {
	MachineID    string         `json:"machine_id"`
	Agent        string         `json:"agent,omitempty"`
	Initial      string         `json:"initial"`
	Terminal     string         `json:"terminal"`
	Current      string         `json:"current"`
	Completed    bool           `json:"completed"`
	Context      map[string]any `json:"context"`
	PendingInput string         `json:"pending_input,omitempty"`
	History      []TurnRecord   `json:"history"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	s.Context = NewContextStore(s.Context).Snapshot()
	hist := make([]TurnRecord, len(s.History))
	for i, r := range s.History {
		hist[i] = r.Clone()
	}
	s.History = hist
	return s
}
