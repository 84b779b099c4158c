package prompt

import (
	tiktoken "github.com/pkoukk/tiktoken-go"
)

// NewTikTokenEstimator returns a TokenEstimator backed by tiktoken-go for the given model.
// The encoding data is fetched on first use, so callers that must stay offline
// should not enable it.
func NewTikTokenEstimator(model string) (TokenEstimator, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, err
	}
	return func(text string) int {
		return len(enc.Encode(text, nil, nil))
	}, nil
}

// ApproxEstimator is an offline estimate of about four characters per token.
func ApproxEstimator(text string) int {
	return (len(text) + 3) / 4
}
