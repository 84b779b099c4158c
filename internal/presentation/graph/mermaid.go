package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/llmfsm/pkg/domain"
)

// Overlay carries runtime data to highlight on the graph.
type Overlay struct {
	Visited []string
	Current string
}

// OverlayFromHistory marks every state a conversation passed through and its
// current state.
func OverlayFromHistory(current string, history []domain.TurnRecord) *Overlay {
	o := &Overlay{Current: current}
	for _, rec := range history {
		o.Visited = append(o.Visited, rec.PriorState)
		o.Visited = append(o.Visited, rec.Cascade...)
	}
	return o
}

// Mermaid renders the definitions as a Mermaid flowchart.
//   - initial: ((Circle))
//   - terminal: [(Stadium)]
//   - states with a handler: [[Subroutine]]
//   - everything else: [Rectangle]
//
// Edge conditions become labels. Overlay styles are applied when overlay is set.
func Mermaid(defs []domain.StateDefinition, initial, terminal string, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, def := range defs {
		id := sanitizeID(def.ID)

		opener, closer := "[", "]"
		switch {
		case def.ID == initial:
			opener, closer = "((", "))"
		case def.ID == terminal:
			opener, closer = "([", "])"
		case def.Handler != nil:
			opener, closer = "[[", "]]"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", id, opener, escape(def.ID), closer)

		for _, e := range def.Edges {
			arrow := "-->"
			if e.Condition != "" {
				arrow = fmt.Sprintf("-- \"%s\" -->", escape(e.Condition))
			}
			fmt.Fprintf(&sb, "    %s %s %s\n", id, arrow, sanitizeID(e.To))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, v := range overlay.Visited {
			id := sanitizeID(v)
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			fmt.Fprintf(&sb, "    class %s visited;\n", id)
		}
		if overlay.Current != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeID(overlay.Current))
		}
	}

	return sb.String()
}

var idReplacer = strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_")

func sanitizeID(id string) string {
	return idReplacer.Replace(id)
}

func escape(s string) string {
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.ReplaceAll(s, "\n", " ")
}
