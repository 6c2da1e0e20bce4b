package graph

import (
	"fmt"
	"strings"

	flow "github.com/nvrdftd/evolve-ai-infra/pkg/graph"
)

// GraphOverlay contains dynamic state data to visualize on the graph.
type GraphOverlay struct {
	VisitedNodes []string
	CurrentNode  string
}

const (
	startID = "__start__"
	endID   = "__end__"
)

// GenerateMermaid produces a Mermaid flowchart for a compiled graph.
// It applies semantic styling:
// - Start/End: ((Circle))
// - Terminal nodes: ([Stadium])
// - Default: [Rectangle]
// Conditional edges carry their label; loop-back edges are dotted.
// It also applies overlay styles (Visited/Current) if provided.
func GenerateMermaid(g *flow.Graph, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	fmt.Fprintf(&sb, "    %s((\"start\"))\n", startID)
	for _, name := range g.Nodes() {
		opener, closer := "[", "]"
		if g.IsTerminal(name) {
			opener, closer = "([", "])"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", sanitizeMermaidID(name), opener, name, closer)
	}
	fmt.Fprintf(&sb, "    %s((\"end\"))\n", endID)

	fmt.Fprintf(&sb, "    %s --> %s\n", startID, sanitizeMermaidID(g.Entry()))
	for _, e := range g.Edges() {
		from, to := sanitizeMermaidID(e.From), target(e.To)
		switch {
		case e.Label == "":
			fmt.Fprintf(&sb, "    %s --> %s\n", from, to)
		case e.Loop:
			fmt.Fprintf(&sb, "    %s -. \"%s\" .-> %s\n", from, escapeLabel(e.Label), to)
		default:
			fmt.Fprintf(&sb, "    %s -- \"%s\" --> %s\n", from, escapeLabel(e.Label), to)
		}
	}
	// Terminal nodes without an explicit edge finish the run.
	for _, name := range g.Nodes() {
		if !g.IsTerminal(name) {
			continue
		}
		if _, ok := g.Next(name); ok {
			continue
		}
		if _, ok := g.Conditional(name); ok {
			continue
		}
		fmt.Fprintf(&sb, "    %s --> %s\n", sanitizeMermaidID(name), endID)
	}

	// Apply Overlay Styles
	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visitedSet := make(map[string]bool)
		for _, id := range overlay.VisitedNodes {
			safeID := sanitizeMermaidID(id)
			if !visitedSet[safeID] && safeID != "" {
				visitedSet[safeID] = true
				sb.WriteString(fmt.Sprintf("    class %s visited;\n", safeID))
			}
		}

		if overlay.CurrentNode != "" {
			sb.WriteString(fmt.Sprintf("    class %s current;\n", sanitizeMermaidID(overlay.CurrentNode)))
		}
	}

	return sb.String()
}

func target(name string) string {
	if name == flow.END {
		return endID
	}
	return sanitizeMermaidID(name)
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
