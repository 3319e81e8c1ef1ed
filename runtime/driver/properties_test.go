package driver_test

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"goa.design/conductor/runtime/agentset"
	"goa.design/conductor/runtime/analyzer"
	"goa.design/conductor/runtime/comm"
	"goa.design/conductor/runtime/dependency"
	"goa.design/conductor/runtime/driver"
	"goa.design/conductor/runtime/execlog/inmem"
	"goa.design/conductor/runtime/instruction"
	"goa.design/conductor/runtime/ledger"
	"goa.design/conductor/runtime/planner"
	"goa.design/conductor/runtime/router"
	"goa.design/conductor/runtime/selector"
	"goa.design/conductor/runtime/unittest"
)

// scriptedOutcomes hands out a fixed boolean per call, defaulting to success
// once exhausted, so randomized sequences always let the run terminate.
type scriptedOutcomes struct {
	outcomes []bool
	i        int
}

func (s *scriptedOutcomes) next() bool {
	if s.i >= len(s.outcomes) {
		return true
	}
	v := s.outcomes[s.i]
	s.i++
	return v
}

func buildPropertyDriver(t *testing.T, outcomes []bool, maxStalls, maxRetries int) *driver.Driver {
	t.Helper()
	script := &scriptedOutcomes{outcomes: outcomes}

	chain := standardChain()
	markers := map[agentset.Ident][]string{
		planner1: {"DONE"}, writer: {"DONE"}, testGen: {"DONE"},
		testRunner: {"DONE"}, refactor: {"DONE"}, codeScanner: {"DONE"},
	}
	invoke := func(ctx context.Context, prompt string) (agentset.Response, error) {
		if script.next() {
			return agentset.Response{PrimaryContent: "DONE ok"}, nil
		}
		return agentset.Response{PrimaryContent: "DONE failed: assertion error"}, nil
	}
	var descriptors []agentset.Descriptor
	for _, name := range []agentset.Ident{planner1, writer, testGen, testRunner, refactor, codeScanner} {
		descriptors = append(descriptors, agentset.Descriptor{Name: name, Capability: "worker", Invoke: invoke})
	}
	registry := agentset.NewRegistry(descriptors...)

	client := stubClient{content: `{"projectName":"p","mainFile":"p.py","testFile":"test_p.py","description":"d"}`}
	pl := planner.New(client, "test-model", "")
	checker := dependency.New(dependency.Table{
		refactor: {{Upstream: testRunner, RequiredState: ledger.NodeFailed}},
	})
	builder := instruction.New(client, "test-model", checker, refactor, nil, nil)
	sel, err := selector.New(client, "test-model", builder)
	if err != nil {
		t.Fatal(err)
	}
	rtr := router.New(chain, maxRetries)
	analyze := analyzer.New(markers, testRunner, func() string { return "" })

	d := driver.New(driver.Deps{
		Registry: registry, Planner: pl, Selector: sel, Router: rtr, Analyze: analyze,
		Comm: comm.New(nil, nil), Execlog: inmem.New(nil), Unittest: unittest.New(nil),
		TestRunner: testRunner, SourceNode: planner1, MaxStalls: maxStalls,
	})
	return d
}

func TestDriverInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	outcomeGen := gen.SliceOfN(10, gen.Bool())
	maxStallsGen := gen.IntRange(1, 4)
	maxRetriesGen := gen.IntRange(0, 3)

	properties.Property("stallCount never exceeds maxStalls at termination", prop.ForAll(
		func(outcomes []bool, maxStalls, maxRetries int) bool {
			d := buildPropertyDriver(t, outcomes, maxStalls, maxRetries)
			_, _, pl, err := d.Run(context.Background(), "run-prop", "build a calculator", nil)
			if err != nil {
				return true
			}
			return pl.StallCount() <= maxStalls
		},
		outcomeGen, maxStallsGen, maxRetriesGen,
	))

	properties.Property("retry counts never exceed maxRetries+1", prop.ForAll(
		func(outcomes []bool, maxStalls, maxRetries int) bool {
			d := buildPropertyDriver(t, outcomes, maxStalls, maxRetries)
			_, _, pl, err := d.Run(context.Background(), "run-prop", "build a calculator", nil)
			if err != nil {
				return true
			}
			for _, w := range []agentset.Ident{planner1, writer, testGen, testRunner, refactor, codeScanner} {
				if pl.RetryCountOf(w) > maxRetries+1 {
					return false
				}
			}
			return true
		},
		outcomeGen, maxStallsGen, maxRetriesGen,
	))

	properties.Property("execution history sequence numbers are monotone", prop.ForAll(
		func(outcomes []bool, maxStalls, maxRetries int) bool {
			d := buildPropertyDriver(t, outcomes, maxStalls, maxRetries)
			_, _, pl, err := d.Run(context.Background(), "run-prop", "build a calculator", nil)
			if err != nil {
				return true
			}
			history := pl.ExecutionHistory()
			for i := 1; i < len(history); i++ {
				if history[i].Sequence <= history[i-1].Sequence {
					return false
				}
			}
			return true
		},
		outcomeGen, maxStallsGen, maxRetriesGen,
	))

	properties.Property("Completed->NotStarted only ever happens for the test runner", prop.ForAll(
		func(outcomes []bool, maxStalls, maxRetries int) bool {
			d := buildPropertyDriver(t, outcomes, maxStalls, maxRetries)
			_, _, pl, err := d.Run(context.Background(), "run-prop", "build a calculator", nil)
			if err != nil {
				return true
			}
			history := pl.ExecutionHistory()
			lastState := make(map[agentset.Ident]ledger.NodeState)
			for _, entry := range history {
				prev, ok := lastState[entry.Node]
				if ok && prev == ledger.NodeCompleted && entry.State == ledger.NodeNotStarted && entry.Node != testRunner {
					return false
				}
				lastState[entry.Node] = entry.State
			}
			return true
		},
		outcomeGen, maxStallsGen, maxRetriesGen,
	))

	properties.TestingRun(t)
}
