// Package config defines the chain configuration surface: which workers
// participate in a run, their dependency map, and the stall/retry ceilings
// (spec §6.5).
package config

import (
	"fmt"

	"goa.design/conductor/runtime/agentset"
	"goa.design/conductor/runtime/router"
)

// Fixed worker identities referenced by every named chain.
const (
	Planner     agentset.Ident = "planner"
	Writer      agentset.Ident = "writer"
	TestGen     agentset.Ident = "test_gen"
	TestRunner  agentset.Ident = "test_runner"
	Refactor    agentset.Ident = "refactor"
	CodeScanner agentset.Ident = "code_scanner"
	Structurer  agentset.Ident = "structurer"
)

// Chain is a named, frozen run configuration (spec §6.5).
type Chain struct {
	Name         string
	Workers      []agentset.Ident
	RouterChain  router.Chain
	Dependencies map[agentset.Ident][]agentset.Ident
	MaxStalls    int
	MaxRetries   int
}

// Named chains, frozen per spec §6.5's table.
var (
	Standard = Chain{
		Name:    "standard",
		Workers: []agentset.Ident{Planner, Writer, TestGen, TestRunner, Refactor, CodeScanner, Structurer},
		RouterChain: router.Chain{
			Planner: Planner, Writer: Writer, TestGen: TestGen, TestRunner: TestRunner,
			Refactor: Refactor, CodeScanner: CodeScanner, Structurer: Structurer,
		},
		Dependencies: map[agentset.Ident][]agentset.Ident{
			Writer:      {Planner},
			TestGen:     {Writer},
			TestRunner:  {TestGen},
			Refactor:    {TestRunner},
			CodeScanner: {TestRunner},
			Structurer:  {CodeScanner},
		},
		MaxStalls:  3,
		MaxRetries: 2,
	}

	Minimal = Chain{
		Name:    "minimal",
		Workers: []agentset.Ident{Planner, Writer, TestGen, TestRunner},
		RouterChain: router.Chain{
			Planner: Planner, Writer: Writer, TestGen: TestGen, TestRunner: TestRunner,
		},
		Dependencies: map[agentset.Ident][]agentset.Ident{
			Writer:     {Planner},
			TestGen:    {Writer},
			TestRunner: {TestGen},
		},
		MaxStalls:  2,
		MaxRetries: 1,
	}

	Prototype = Chain{
		Name:         "prototype",
		Workers:      []agentset.Ident{Planner, Writer},
		RouterChain:  router.Chain{Planner: Planner, Writer: Writer},
		Dependencies: map[agentset.Ident][]agentset.Ident{Writer: {Planner}},
		MaxStalls:    1,
		MaxRetries:   1,
	}

	Quality = Chain{
		Name:    "quality",
		Workers: []agentset.Ident{Writer, TestRunner, CodeScanner},
		RouterChain: router.Chain{
			Writer: Writer, TestRunner: TestRunner, CodeScanner: CodeScanner,
		},
		Dependencies: map[agentset.Ident][]agentset.Ident{
			TestRunner:  {Writer},
			CodeScanner: {TestRunner},
		},
		MaxStalls:  2,
		MaxRetries: 1,
	}
)

// registry indexes the named chains for lookup by name.
var registry = map[string]Chain{
	Standard.Name:  Standard,
	Minimal.Name:   Minimal,
	Prototype.Name: Prototype,
	Quality.Name:   Quality,
}

// ErrUnknownChain is returned by Lookup for a name not among the frozen
// chains.
type ErrUnknownChain struct{ Name string }

func (e ErrUnknownChain) Error() string {
	return fmt.Sprintf("config: unknown chain %q", e.Name)
}

// Lookup returns the named chain, or ErrUnknownChain if name does not
// match one of the four frozen chains.
func Lookup(name string) (Chain, error) {
	c, ok := registry[name]
	if !ok {
		return Chain{}, ErrUnknownChain{Name: name}
	}
	return c, nil
}
