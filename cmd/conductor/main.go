// Command conductor runs a single orchestrator task against a named chain
// configuration, invoking each worker as an opaque external subprocess
// (spec §1 "Out of scope — external collaborators", §6.2 "Worker
// invocation").
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"goa.design/conductor/config"
	"goa.design/conductor/providers/anthropic"
	"goa.design/conductor/providers/bedrock"
	"goa.design/conductor/providers/openai"
	"goa.design/conductor/runtime/agentset"
	"goa.design/conductor/runtime/analyzer"
	"goa.design/conductor/runtime/comm"
	"goa.design/conductor/runtime/dependency"
	"goa.design/conductor/runtime/driver"
	"goa.design/conductor/runtime/execlog/inmem"
	"goa.design/conductor/runtime/instruction"
	"goa.design/conductor/runtime/ledger"
	"goa.design/conductor/runtime/modelclient"
	"goa.design/conductor/runtime/planner"
	"goa.design/conductor/runtime/router"
	"goa.design/conductor/runtime/selector"
	"goa.design/conductor/runtime/telemetry"
	"goa.design/conductor/runtime/unittest"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	var (
		taskF      = flag.String("task", "", "Task description handed to the planner (required)")
		chainF     = flag.String("chain", "standard", "Chain configuration: standard, minimal, prototype, quality")
		providerF  = flag.String("provider", "anthropic", "LLM provider: anthropic, openai, bedrock")
		modelF     = flag.String("model", "", "Model identifier override (provider-specific default used when empty)")
		runIDF     = flag.String("run-id", "conductor-run", "Correlation id applied to telemetry and execution-log entries")
		workerCmdF workerCommands
	)
	flag.Var(&workerCmdF, "worker-cmd", "worker=command mapping; the prompt is piped to the command's stdin and its stdout is the worker's response (repeatable)")
	flag.Parse()

	if strings.TrimSpace(*taskF) == "" {
		return fmt.Errorf("conductor: -task is required")
	}

	chain, err := config.Lookup(*chainF)
	if err != nil {
		return err
	}

	client, err := buildProvider(*providerF, *modelF)
	if err != nil {
		return err
	}

	d, err := buildDriver(chain, client, *modelF, workerCmdF)
	if err != nil {
		return err
	}

	ctx := context.Background()
	events, tl, pl, err := d.Run(ctx, *runIDF, *taskF, capabilities(chain, workerCmdF))
	if err != nil {
		return fmt.Errorf("conductor: run failed: %w", err)
	}

	fmt.Printf("project: %s\n", tl.ProjectConfig().ProjectName)
	fmt.Printf("stall count: %d\n", pl.StallCount())
	for _, e := range events {
		fmt.Printf("[%s] %s success=%v (%s)\n", e.Timestamp.Format("15:04:05"), e.Worker, e.Analysis.Success, e.Duration)
	}
	return nil
}

func buildProvider(name, model string) (modelclient.Client, error) {
	switch name {
	case "anthropic":
		key := os.Getenv("ANTHROPIC_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("conductor: ANTHROPIC_API_KEY is required for provider %q", name)
		}
		defaultModel := model
		if defaultModel == "" {
			defaultModel = "claude-sonnet-4-5"
		}
		c, err := anthropic.NewFromAPIKey(key, defaultModel)
		if err != nil {
			return nil, err
		}
		return rateLimited(c), nil
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("conductor: OPENAI_API_KEY is required for provider %q", name)
		}
		defaultModel := model
		if defaultModel == "" {
			defaultModel = "gpt-4o"
		}
		c, err := openai.NewFromAPIKey(key, defaultModel)
		if err != nil {
			return nil, err
		}
		return rateLimited(c), nil
	case "bedrock":
		return nil, fmt.Errorf("conductor: provider %q requires a runtime client wired in-process; see providers/bedrock.New", name)
	default:
		return nil, fmt.Errorf("conductor: unknown provider %q", name)
	}
}

// rateLimited wraps any concrete client in the process-local adaptive
// limiter (spec §6.1, §9) so the CLI never hammers a provider past its
// tokens-per-minute budget.
func rateLimited(c modelclient.Client) modelclient.Client {
	return modelclient.RateLimited(c, 60000, 120000)
}

func buildDriver(chain config.Chain, client modelclient.Client, model string, workerCmds workerCommands) (*driver.Driver, error) {
	var descriptors []agentset.Descriptor
	markers := make(map[agentset.Ident][]string)
	for _, w := range chain.Workers {
		cmdLine, ok := workerCmds[w]
		if !ok {
			return nil, fmt.Errorf("conductor: no -worker-cmd given for worker %q", w)
		}
		descriptors = append(descriptors, agentset.Descriptor{
			Name:       w,
			Capability: fmt.Sprintf("runs %q against the supplied prompt", cmdLine),
			Invoke:     subprocessInvoker(cmdLine),
		})
		markers[w] = []string{"DONE"}
	}
	registry := agentset.NewRegistry(descriptors...)

	checker := dependency.New(dependencyTable(chain))
	builder := instruction.New(client, model, checker, config.Refactor, nil, nil)
	sel, err := selector.New(client, model, builder)
	if err != nil {
		return nil, fmt.Errorf("conductor: build selector: %w", err)
	}
	rtr := router.New(chain.RouterChain, chain.MaxRetries)
	analyze := analyzer.New(markers, config.TestRunner, func() string {
		return ledger.DefaultBaseDir + "/test_report.json"
	})

	return driver.New(driver.Deps{
		Registry:   registry,
		Planner:    planner.New(client, model, ""),
		Selector:   sel,
		Router:     rtr,
		Analyze:    analyze,
		Comm:       comm.New(chain.Dependencies, nil),
		Execlog:    inmem.New(telemetry.NewClueLogger()),
		Unittest:   unittest.New(nil),
		TestRunner: config.TestRunner,
		SourceNode: chain.Workers[0],
		MaxStalls:  chain.MaxStalls,
		Logger:     telemetry.NewClueLogger(),
	}), nil
}

// dependencyTable converts the dependency-checker's richer Requirement shape
// from the config package's plain upstream-name map, special-casing the
// refactor worker's "test-runner must have failed" requirement (spec §4.5).
func dependencyTable(chain config.Chain) dependency.Table {
	table := make(dependency.Table, len(chain.Dependencies))
	for w, ups := range chain.Dependencies {
		for _, up := range ups {
			state := ledger.NodeCompleted
			if w == config.Refactor && up == config.TestRunner {
				state = ledger.NodeFailed
			}
			table[w] = append(table[w], dependency.Requirement{Upstream: up, RequiredState: state})
		}
	}
	return table
}

func capabilities(chain config.Chain, workerCmds workerCommands) map[agentset.Ident]string {
	caps := make(map[agentset.Ident]string, len(chain.Workers))
	for _, w := range chain.Workers {
		caps[w] = fmt.Sprintf("runs %q", workerCmds[w])
	}
	return caps
}

// workerCommands implements flag.Value, accumulating repeated
// -worker-cmd=name=command flags into a map.
type workerCommands map[agentset.Ident]string

func (w *workerCommands) String() string {
	if *w == nil {
		return ""
	}
	var parts []string
	for name, cmd := range *w {
		parts = append(parts, string(name)+"="+cmd)
	}
	return strings.Join(parts, ",")
}

func (w *workerCommands) Set(value string) error {
	name, cmd, ok := strings.Cut(value, "=")
	if !ok {
		return fmt.Errorf("conductor: -worker-cmd must be name=command, got %q", value)
	}
	if *w == nil {
		*w = make(workerCommands)
	}
	(*w)[agentset.Ident(name)] = cmd
	return nil
}
