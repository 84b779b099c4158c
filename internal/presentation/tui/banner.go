package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []struct {
	text  string
	color string
}{
	{` _ _           __`, "#818cf8"},
	{`| | |_ __ ___ / _|___ _ __ ___`, "#a78bfa"},
	{`| | | '_ ' _ \ |_/ __| '_ ' _ \`, "#c084fc"},
	{`| | | | | | | |  _\__ \ | | | | |`, "#e879f9"},
	{`|_|_|_| |_| |_|_| |___/_| |_| |_|`, "#f472b6"},
}

// PrintBanner writes the llmfsm banner to w using the color profile of the terminal.
func PrintBanner(w io.Writer) {
	out := termenv.NewOutput(w)
	p := out.ColorProfile()
	fmt.Fprintln(w)
	for _, l := range bannerLines {
		fmt.Fprintln(w, out.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
}

// Status formats a dim one-line status such as "[STATE] -> NEXT".
func Status(w io.Writer, text string) string {
	out := termenv.NewOutput(w)
	return out.String(text).Faint().String()
}
