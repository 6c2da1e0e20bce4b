package tui

import (
	"os"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

const defaultWidth = 100

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// NewRenderer returns a function that renders markdown using glamour,
// wrapped to the width of f when it is a terminal.
func NewRenderer(f *os.File) (func(string) (string, error), error) {
	width := defaultWidth
	if IsTerminal(f) {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 20 {
			width = w - 4
		}
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(), // Automatically detect light/dark background
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, err
	}

	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}, nil
}
