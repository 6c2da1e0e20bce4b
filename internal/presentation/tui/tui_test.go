package tui

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintBanner_PlainForPipes(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf, "1.2.3\n")

	out := buf.String()
	assert.Contains(t, out, "v1.2.3")
	assert.NotContains(t, out, "\x1b[")
}

func TestNewRenderer(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer f.Close()

	assert.False(t, IsTerminal(f))
	render, err := NewRenderer(f)
	require.NoError(t, err)

	out, err := render("# Incident report\n\nThe deployment was **scaled**.")
	require.NoError(t, err)
	for _, word := range []string{"Incident", "report", "scaled"} {
		assert.True(t, strings.Contains(out, word), "missing %q in %q", word, out)
	}
}
