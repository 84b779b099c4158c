// Package validator crawls a state graph and reports problems the registry
// itself does not reject.
package validator

import (
	"fmt"
	"strings"

	"github.com/aretw0/llmfsm/pkg/domain"
)

// Report is the outcome of ValidateGraph.
type Report struct {
	// Errors make the graph unusable.
	Errors []string
	// Warnings are states that may be intended, such as handler-only targets.
	Warnings []string
	// Reachable lists the states reachable from the initial state, in visit order.
	Reachable []string
}

// OK reports whether no errors were found.
func (r Report) OK() bool {
	return len(r.Errors) == 0
}

// Err joins the errors, or returns nil.
func (r Report) Err() error {
	if r.OK() {
		return nil
	}
	return fmt.Errorf("found %d errors:\n- %s", len(r.Errors), strings.Join(r.Errors, "\n- "))
}

// ValidateGraph checks for missing targets and unreachable states, starting
// from initial. Reachability follows declared edges only, so states entered
// through handler overrides are reported as warnings.
func ValidateGraph(defs []domain.StateDefinition, initial, terminal string) Report {
	var report Report

	byID := make(map[string]domain.StateDefinition, len(defs))
	for _, d := range defs {
		byID[d.ID] = d
	}
	if _, ok := byID[initial]; !ok {
		report.Errors = append(report.Errors, fmt.Sprintf("Missing initial state: '%s'", initial))
		return report
	}
	if _, ok := byID[terminal]; !ok {
		report.Errors = append(report.Errors, fmt.Sprintf("Missing terminal state: '%s'", terminal))
	}

	visited := map[string]bool{}
	queue := []string{initial}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		report.Reachable = append(report.Reachable, id)

		def := byID[id]
		if id != terminal && len(def.Edges) == 0 {
			report.Warnings = append(report.Warnings, fmt.Sprintf("State '%s' has no edges and can only stay put", id))
		}
		for _, e := range def.Edges {
			if _, ok := byID[e.To]; !ok {
				report.Errors = append(report.Errors, fmt.Sprintf("Missing state: '%s' (edge from '%s')", e.To, id))
				continue
			}
			if !visited[e.To] {
				queue = append(queue, e.To)
			}
		}
	}

	if _, ok := byID[terminal]; ok && !visited[terminal] {
		report.Errors = append(report.Errors, fmt.Sprintf("Terminal state '%s' is unreachable from '%s'", terminal, initial))
	}
	for _, d := range defs {
		if !visited[d.ID] {
			report.Warnings = append(report.Warnings, fmt.Sprintf("State '%s' is unreachable through edges", d.ID))
		}
	}
	return report
}
