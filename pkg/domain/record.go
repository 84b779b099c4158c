package domain

import "time"

// TurnRecord is the audit entry of one committed turn. It is never mutated after commit.
type TurnRecord struct {
	ID        string `json:"id"`
	MachineID string `json:"machine_id,omitempty"`
	Seq       int    `json:"seq"`

	Input string `json:"input"`
	// ForwardedInput is the override input carried in from the previous turn, if any.
	ForwardedInput string `json:"forwarded_input,omitempty"`

	PriorState string `json:"prior_state"`
	// Prompt is the composed text sent to the model.
	Prompt    string         `json:"prompt,omitempty"`
	RawOutput string         `json:"raw_output"`
	Payload   map[string]any `json:"payload"`
	Attempts  int            `json:"attempts"`

	// ProposedState is the model's literal transition value.
	ProposedState string `json:"proposed_state"`
	// NextState is the committed state after overrides and cascades.
	NextState string `json:"next_state"`
	Response  string `json:"response"`

	Overridden bool `json:"overridden,omitempty"`
	// Cascade lists the states whose handlers ran after an override reused the payload.
	Cascade []string `json:"cascade,omitempty"`
	// PendingInput is the override input forwarded to the next turn.
	PendingInput string `json:"pending_input,omitempty"`

	PromptTokens int           `json:"prompt_tokens,omitempty"`
	Duration     time.Duration `json:"duration"`
	Timestamp    time.Time     `json:"timestamp"`
}

// Transitioned reports whether the turn left its prior state.
func (r TurnRecord) Transitioned() bool {
	return r.NextState != r.PriorState
}

// Clone returns a copy that shares no maps or slices with r.
func (r TurnRecord) Clone() TurnRecord {
	if r.Payload != nil {
		r.Payload, _ = deepCopy(r.Payload).(map[string]any)
	}
	r.Cascade = append([]string(nil), r.Cascade...)
	return r
}
