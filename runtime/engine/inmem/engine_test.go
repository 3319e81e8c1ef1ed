package inmem

import (
	"context"
	"testing"
	"time"

	"goa.design/conductor/runtime/engine"
)

type planResult struct {
	FinalResponse string
}

type runInput struct{}

type runOutput struct{}

func TestActivityExecution(t *testing.T) {
	eng := New()
	ctx := context.Background()

	err := eng.RegisterActivity(ctx, engine.ActivityDefinition{
		Name: "test_plan",
		Handler: func(ctx context.Context, input any) (any, error) {
			return &planResult{FinalResponse: "ok"}, nil
		},
	})
	if err != nil {
		t.Fatalf("register activity: %v", err)
	}

	err = eng.RegisterWorkflow(ctx, engine.WorkflowDefinition{
		Name: "test_workflow",
		Handler: func(wfCtx engine.WorkflowContext, input any) (any, error) {
			var out planResult
			if err := wfCtx.ExecuteActivity(wfCtx.Context(), engine.ActivityRequest{
				Name: "test_plan",
			}, &out); err != nil {
				return nil, err
			}
			if out.FinalResponse != "ok" {
				t.Errorf("unexpected activity result: %+v", out)
			}
			return &runOutput{}, nil
		},
	})
	if err != nil {
		t.Fatalf("register workflow: %v", err)
	}

	handle, err := eng.StartWorkflow(ctx, engine.WorkflowStartRequest{
		ID:       "test-run-1",
		Workflow: "test_workflow",
		Input:    &runInput{},
	})
	if err != nil {
		t.Fatalf("start workflow: %v", err)
	}

	var result runOutput
	if err := handle.Wait(ctx, &result); err != nil {
		t.Fatalf("workflow failed: %v", err)
	}
}

func TestActivityAsyncFuture(t *testing.T) {
	eng := New()
	ctx := context.Background()

	err := eng.RegisterActivity(ctx, engine.ActivityDefinition{
		Name: "test_tool",
		Handler: func(ctx context.Context, input any) (any, error) {
			return "null", nil
		},
	})
	if err != nil {
		t.Fatalf("register activity: %v", err)
	}

	err = eng.RegisterWorkflow(ctx, engine.WorkflowDefinition{
		Name: "test_workflow",
		Handler: func(wfCtx engine.WorkflowContext, input any) (any, error) {
			fut, err2 := wfCtx.ExecuteActivityAsync(wfCtx.Context(), engine.ActivityRequest{
				Name: "test_tool",
			})
			if err2 != nil {
				return nil, err2
			}
			var payload string
			if err2 := fut.Get(wfCtx.Context(), &payload); err2 != nil {
				return nil, err2
			}
			if payload != "null" {
				t.Errorf("unexpected tool output: %q", payload)
			}
			return &runOutput{}, nil
		},
	})
	if err != nil {
		t.Fatalf("register workflow: %v", err)
	}

	handle, err := eng.StartWorkflow(ctx, engine.WorkflowStartRequest{
		ID:       "test-run-2",
		Workflow: "test_workflow",
		Input:    &runInput{},
	})
	if err != nil {
		t.Fatalf("start workflow: %v", err)
	}

	var result runOutput
	if err := handle.Wait(ctx, &result); err != nil {
		t.Fatalf("workflow failed: %v", err)
	}
}

type pauseRequest struct {
	RunID  string
	Reason string
}

func TestSignalDelivery(t *testing.T) {
	eng := New()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan pauseRequest, 1)

	err := eng.RegisterWorkflow(ctx, engine.WorkflowDefinition{
		Name: "test_workflow",
		Handler: func(wfCtx engine.WorkflowContext, input any) (any, error) {
			var req pauseRequest
			if err2 := wfCtx.SignalChannel("pause").Receive(wfCtx.Context(), &req); err2 != nil {
				return nil, err2
			}
			received <- req
			return &runOutput{}, nil
		},
	})
	if err != nil {
		t.Fatalf("register workflow: %v", err)
	}

	handle, err := eng.StartWorkflow(ctx, engine.WorkflowStartRequest{
		ID:       "test-run-3",
		Workflow: "test_workflow",
		Input:    &runInput{},
	})
	if err != nil {
		t.Fatalf("start workflow: %v", err)
	}

	err = handle.Signal(ctx, "pause", pauseRequest{
		RunID:  "test-run-3",
		Reason: "human",
	})
	if err != nil {
		t.Fatalf("signal workflow: %v", err)
	}

	var result runOutput
	if err := handle.Wait(ctx, &result); err != nil {
		t.Fatalf("workflow failed: %v", err)
	}

	select {
	case req := <-received:
		if req.RunID != "test-run-3" || req.Reason != "human" {
			t.Errorf("unexpected pause request: %+v", req)
		}
	default:
		t.Fatal("signal was not delivered to workflow")
	}
}
