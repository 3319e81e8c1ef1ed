package main

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"goa.design/conductor/runtime/agentset"
)

// subprocessInvoker builds an agentset.Descriptor.Invoke function that runs
// cmdLine through the shell, piping prompt to stdin and treating stdout as
// the worker's primary content (spec §6.2 "invoke(worker, prompt) ->
// {primaryContent, innerMessages[]}"). Stderr is surfaced as the sole inner
// message, so the result analyzer sees it in the worker's combined output.
func subprocessInvoker(cmdLine string) func(ctx context.Context, prompt string) (agentset.Response, error) {
	return func(ctx context.Context, prompt string) (agentset.Response, error) {
		cmd := exec.CommandContext(ctx, "sh", "-c", cmdLine)
		cmd.Stdin = strings.NewReader(prompt)

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			return agentset.Response{}, fmt.Errorf("subprocess %q: %w", cmdLine, err)
		}

		resp := agentset.Response{PrimaryContent: stdout.String()}
		if stderr.Len() > 0 {
			resp.InnerMessages = []string{stderr.String()}
		}
		return resp, nil
	}
}
