package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"
)

var bannerLines = []struct{ text, color string }{
	{"   ___ __   _____  | |_   _____ ", "#34d399"},
	{"  / _ \\\\ \\ / / _ \\ | \\ \\ / / _ \\", "#2dd4bf"},
	{" |  __/ \\ V / (_) || |\\ V /  __/", "#22d3ee"},
	{"  \\___|  \\_/ \\___/ |_| \\_/ \\___|", "#38bdf8"},
}

// PrintBanner writes the evolve banner and version to w.
// Colors follow the terminal's capabilities; pipes get plain text.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	fmt.Fprintln(w)
	for _, l := range bannerLines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w, out.String("  incident diagnosis & remediation  v"+strings.TrimSpace(version)).Faint())
	fmt.Fprintln(w)
}
