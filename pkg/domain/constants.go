package domain

const (
	// NoOp is the transition value meaning "stay in the current state".
	NoOp = "no-op"

	// DefaultMaxCascade bounds how many reuse-payload overrides may chain in one turn.
	DefaultMaxCascade = 1
)
