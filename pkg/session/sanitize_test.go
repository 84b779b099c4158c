package session_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/llmfsm/pkg/session"
)

func TestSanitizeInput_SizeLimit(t *testing.T) {
	limit := session.DefaultMaxInputSize

	tests := []struct {
		name    string
		size    int
		limit   int
		wantErr bool
	}{
		{"Under Limit", limit - 1, limit, false},
		{"Exact Limit", limit, limit, false},
		{"Over Limit", limit + 1, limit, true},
		{"No Limit", limit * 4, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := session.SanitizeInput(strings.Repeat("a", tt.size), tt.limit)
			if tt.wantErr {
				assert.ErrorIs(t, err, session.ErrInputTooLarge)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSanitizeInput_ControlChars(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Normal Text", "Hello World", "Hello World"},
		{"Safe Controls", "Line1\nLine2\tTabbed\r", "Line1\nLine2\tTabbed\r"},
		{"ANSI Code", "\x1b[31mRed\x1b[0m", "[31mRed[0m"},
		{"Null Byte", "Null\x00Byte", "NullByte"},
		{"Bell", "Ding\x07", "Ding"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := session.SanitizeInput(tt.input, session.DefaultMaxInputSize)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestSanitizeInput_InvalidUTF8(t *testing.T) {
	_, err := session.SanitizeInput("bad \xff byte", session.DefaultMaxInputSize)
	assert.ErrorIs(t, err, session.ErrInvalidUTF8)
}
