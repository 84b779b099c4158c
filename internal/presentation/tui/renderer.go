package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// Renderer turns a model reply into terminal output.
type Renderer func(string) (string, error)

// Plain returns the text unchanged.
func Plain(text string) (string, error) {
	return text, nil
}

// NewRenderer returns a markdown renderer backed by glamour.
// A width of 0 keeps glamour's default word wrap.
// If glamour cannot be initialized, Plain is returned.
func NewRenderer(width int) Renderer {
	opts := []glamour.TermRendererOption{glamour.WithAutoStyle()}
	if width > 0 {
		opts = append(opts, glamour.WithWordWrap(width))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return Plain
	}
	return func(markdown string) (string, error) {
		out, err := r.Render(markdown)
		if err != nil {
			return "", err
		}
		return strings.TrimRight(out, "\n") + "\n", nil
	}
}
