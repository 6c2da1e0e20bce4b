// Package knowledge turns runbooks on disk into knowledge base documents.
package knowledge

import (
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
	"github.com/zeebo/blake3"
)

// DefaultMaxChars is the passage size used when none is given.
const DefaultMaxChars = 1200

// Loader reads Markdown, text and HTML files into passages.
type Loader struct {
	fsys     fs.FS
	maxChars int
}

// NewLoader creates a loader over fsys. maxChars <= 0 uses DefaultMaxChars.
func NewLoader(fsys fs.FS, maxChars int) *Loader {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Loader{fsys: fsys, maxChars: maxChars}
}

// Load expands the glob patterns (doublestar syntax, e.g. "runbooks/**/*.md")
// and splits every matched file into passages. Files are visited in sorted
// order; a file matched twice is loaded once.
func (l *Loader) Load(patterns ...string) ([]domain.Document, error) {
	var files []string
	for _, p := range patterns {
		matches, err := doublestar.Glob(l.fsys, p, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("knowledge: bad pattern %q: %w", p, err)
		}
		files = append(files, matches...)
	}
	slices.Sort(files)
	files = slices.Compact(files)
	if len(files) == 0 {
		return nil, domain.ErrNoDocuments
	}

	var docs []domain.Document
	for _, name := range files {
		text, err := l.read(name)
		if err != nil {
			return nil, err
		}
		for i, passage := range Split(text, l.maxChars) {
			docs = append(docs, domain.Document{
				ID:   ID(passage),
				Text: passage,
				Metadata: map[string]string{
					"source": name,
					"chunk":  strconv.Itoa(i),
				},
			})
		}
	}
	return docs, nil
}

func (l *Loader) read(name string) (string, error) {
	raw, err := fs.ReadFile(l.fsys, name)
	if err != nil {
		return "", fmt.Errorf("knowledge: %w", err)
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".html", ".htm":
		md, err := htmltomarkdown.ConvertString(string(raw))
		if err != nil {
			return "", fmt.Errorf("knowledge: convert %s: %w", name, err)
		}
		return md, nil
	}
	return string(raw), nil
}

// ID is the content address of a passage, so re-ingesting a runbook yields the same IDs.
func ID(text string) string {
	sum := blake3.Sum256([]byte(text))
	return hex.EncodeToString(sum[:16])
}

// Split breaks text into passages of at most maxChars, cutting at blank lines
// and before headings. A single paragraph longer than maxChars is kept whole.
func Split(text string, maxChars int) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var paragraphs []string
	var cur []string
	flushPara := func() {
		if p := strings.TrimSpace(strings.Join(cur, "\n")); p != "" {
			paragraphs = append(paragraphs, p)
		}
		cur = cur[:0]
	}
	for _, line := range strings.Split(text, "\n") {
		switch {
		case strings.TrimSpace(line) == "":
			flushPara()
		case strings.HasPrefix(line, "#"):
			flushPara()
			cur = append(cur, line)
		default:
			cur = append(cur, line)
		}
	}
	flushPara()

	var out []string
	var b strings.Builder
	for _, p := range paragraphs {
		heading := strings.HasPrefix(p, "#")
		if b.Len() > 0 && (heading || b.Len()+2+len(p) > maxChars) {
			out = append(out, b.String())
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(p)
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}
