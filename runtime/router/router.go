// Package router implements the Dynamic Router (C10): given a completed
// worker and its analysis, decides the next candidate set, encoding the
// refactor loop and the "skip reflection" rule (spec §4.10).
//
// Contract: rules are checked in the fixed order documented on Next; the
// first matching rule wins.
package router

import (
	"strings"

	"goa.design/conductor/runtime/agentset"
	"goa.design/conductor/runtime/analyzer"
	"goa.design/conductor/runtime/ledger"
)

// failureSubstrings are the case-insensitive indicators rule 1 scans for
// (spec §4.10 rule 1).
var failureSubstrings = []string{"failed", "error", "assertion", "traceback"}

// Chain names the fixed worker identities the router's rules reference.
// AlternativeNodes and the default linear sequence are keyed off these
// names rather than a generic lookup, mirroring spec §4.10's static tables.
type Chain struct {
	Planner     agentset.Ident
	Writer      agentset.Ident
	TestGen     agentset.Ident
	TestRunner  agentset.Ident
	Refactor    agentset.Ident
	CodeScanner agentset.Ident
	Structurer  agentset.Ident
}

// Router decides the next candidate set after a worker completes.
type Router struct {
	chain      Chain
	maxRetries int
}

// New builds a Router for the given chain and per-run retry ceiling.
func New(chain Chain, maxRetries int) *Router {
	return &Router{chain: chain, maxRetries: maxRetries}
}

// ChainOf returns the worker chain this Router was built with.
func (r *Router) ChainOf() Chain {
	return r.chain
}

// Next applies the seven ordered rules from spec §4.10 and returns the next
// candidate set. An empty result terminates the inner loop.
func (r *Router) Next(
	completed agentset.Ident,
	result analyzer.AnalysisResult,
	tl *ledger.TaskLedger,
	pl *ledger.ProgressLedger,
) []agentset.Ident {
	// Rule 1: test-runner failure with detected errors.
	if completed == r.chain.TestRunner && !result.Success && hasDetectedErrors(result) {
		tl.RecordError(completed, result.FailureReasons, result.MessageContent)
		return []agentset.Ident{r.chain.Refactor}
	}

	// Rule 2: test-runner failure, no clear error, retries remain.
	if completed == r.chain.TestRunner && !result.Success {
		if pl.RetryCountOf(completed) < r.maxRetries {
			return []agentset.Ident{completed}
		}
	}

	// Rule 3: refactor success resets the test runner to NotStarted. This
	// is the only place a Completed worker is reset (spec §4.10 rule 3).
	if completed == r.chain.Refactor && result.Success {
		pl.ResetRetry(r.chain.TestRunner)
		pl.UpdateNodeState(r.chain.TestRunner, ledger.NodeNotStarted, nil)
		return []agentset.Ident{r.chain.TestRunner}
	}

	// Rule 4: test-runner success skips any reflection worker. A chain
	// without a code scanner ends here.
	if completed == r.chain.TestRunner && result.Success {
		if r.chain.CodeScanner == "" {
			return nil
		}
		return []agentset.Ident{r.chain.CodeScanner}
	}

	// Rule 5: general failure with retries remaining.
	if !result.Success {
		if pl.RetryCountOf(completed) < r.maxRetries {
			return []agentset.Ident{completed}
		}
		// Rule 6: general failure with retries exhausted.
		return r.AlternativeNodes(completed)
	}

	// Rule 7: default linear successor.
	return r.successor(completed)
}

func hasDetectedErrors(result analyzer.AnalysisResult) bool {
	if len(result.FailureReasons) > 0 {
		return true
	}
	lower := strings.ToLower(result.MessageContent)
	for _, s := range failureSubstrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// AlternativeNodes is the per-worker static fallback table (spec §4.10
// rule 6, and reused directly by the driver's shouldReselect branch, spec
// §4.12): writer -> planner; test-gen -> writer; test-runner -> test-gen;
// empty otherwise.
func (r *Router) AlternativeNodes(w agentset.Ident) []agentset.Ident {
	switch w {
	case r.chain.Writer:
		return []agentset.Ident{r.chain.Planner}
	case r.chain.TestGen:
		return []agentset.Ident{r.chain.Writer}
	case r.chain.TestRunner:
		return []agentset.Ident{r.chain.TestGen}
	default:
		return nil
	}
}

// successor returns the next worker in the fixed linear sequence (spec
// §4.10 rule 7), or nil if w is absent or last.
func (r *Router) successor(w agentset.Ident) []agentset.Ident {
	sequence := []agentset.Ident{
		r.chain.Planner, r.chain.Writer, r.chain.TestGen,
		r.chain.TestRunner, r.chain.CodeScanner, r.chain.Structurer,
	}
	for i, name := range sequence {
		if name == w && i+1 < len(sequence) && sequence[i+1] != "" {
			return []agentset.Ident{sequence[i+1]}
		}
	}
	return nil
}
