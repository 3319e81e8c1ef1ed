// Package dependency implements the Dependency Checker (C5): reporting which
// upstream workers have completed and what artifacts exist for a given
// worker, rendered as text for consumption by the LLM.
package dependency

import (
	"strings"
	"text/template"

	"goa.design/conductor/runtime/agentset"
	"goa.design/conductor/runtime/ledger"
)

// Requirement describes an upstream dependency for a worker. Ordinarily the
// dependency is satisfied once the upstream worker reaches NodeCompleted;
// the refactor worker is the one exception in the default chains, whose
// dependency is specifically the test-runner having reached NodeFailed
// (spec §4.5).
type Requirement struct {
	Upstream      agentset.Ident
	RequiredState ledger.NodeState
}

// Table maps a worker to its upstream requirements (spec §4.5: "a fixed
// per-worker table").
type Table map[agentset.Ident][]Requirement

// Checker renders dependency reports for the instruction builder.
type Checker struct {
	table Table
	tmpl  *template.Template
}

type reportLine struct {
	Upstream  string
	Satisfied bool
	State     string
}

const reportTemplate = `{{if not .Lines}}{{.Worker}} has no declared dependencies.
{{else}}Dependency report for {{.Worker}}:
{{range .Lines}}- {{.Upstream}}: {{if .Satisfied}}satisfied{{else}}not satisfied{{end}} (state={{.State}})
{{end}}{{end}}`

// New builds a Checker from a fixed upstream table.
func New(table Table) *Checker {
	tmpl := template.Must(template.New("dependency-report").Parse(reportTemplate))
	return &Checker{table: table, tmpl: tmpl}
}

// Report renders a multi-line text report of dependency satisfaction for w,
// reading current state from pl. The consumer is the LLM, not structured
// code, so the return value is prose rather than a typed value (spec §4.5).
func (c *Checker) Report(w agentset.Ident, pl *ledger.ProgressLedger) string {
	reqs := c.table[w]
	lines := make([]reportLine, 0, len(reqs))
	for _, r := range reqs {
		state := pl.State(r.Upstream)
		lines = append(lines, reportLine{
			Upstream:  string(r.Upstream),
			Satisfied: state == r.RequiredState,
			State:     string(state),
		})
	}

	var sb strings.Builder
	data := struct {
		Worker string
		Lines  []reportLine
	}{Worker: string(w), Lines: lines}
	if err := c.tmpl.Execute(&sb, data); err != nil {
		return ""
	}
	return sb.String()
}

// Satisfied reports whether every upstream requirement for w currently
// holds.
func (c *Checker) Satisfied(w agentset.Ident, pl *ledger.ProgressLedger) bool {
	for _, r := range c.table[w] {
		if pl.State(r.Upstream) != r.RequiredState {
			return false
		}
	}
	return true
}
