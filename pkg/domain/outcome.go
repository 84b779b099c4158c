package domain

// Outcome is the result of a handler. It is either a Reply or an *ImmediateOverride.
type Outcome interface {
	isOutcome()
}

// Reply is the user-visible message. It does not affect the transition.
type Reply string

func (Reply) isOutcome() {}

// ImmediateOverride replaces the resolved transition with Target, even if
// Target is not a declared edge of the current state.
//
// Without ReusePayload the user sees Response, or the model's content when
// Response is empty, or Input when both are empty.
type ImmediateOverride struct {
	Target string
	// Input is forwarded as synthetic input for the following turn.
	Input string
	// Response is the text shown to the user for this turn.
	Response string
	// ReusePayload runs Target's handler in the same turn with the same payload.
	ReusePayload bool
}

func (*ImmediateOverride) isOutcome() {}

// Override is a shorthand for &ImmediateOverride{Target: target, Input: input}.
func Override(target, input string) *ImmediateOverride {
	return &ImmediateOverride{Target: target, Input: input}
}
