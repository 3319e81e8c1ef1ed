package comm

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// RedisMirror publishes every context update and message to a per-run Redis
// channel so out-of-process observers can follow a run live, grounded on the
// teacher's result-stream publish pattern. It is an observability mirror
// only: nothing in Conductor subscribes back to it, and a publish failure
// never affects the run.
type RedisMirror struct {
	client *redis.Client
	runID  string
}

// NewRedisMirror builds a RedisMirror that publishes to
// "conductor:events:<runID>".
func NewRedisMirror(client *redis.Client, runID string) *RedisMirror {
	return &RedisMirror{client: client, runID: runID}
}

func (m *RedisMirror) channel() string {
	return "conductor:events:" + m.runID
}

type mirroredEvent struct {
	Kind    string `json:"kind"`
	Payload any    `json:"payload"`
}

// MirrorContext publishes a context-update event. Errors are swallowed: the
// mirror is best-effort and must never fail the run it is observing.
func (m *RedisMirror) MirrorContext(ctx context.Context, c AgentContext) {
	m.publish(ctx, mirroredEvent{Kind: "context", Payload: c})
}

// MirrorMessage publishes a message event.
func (m *RedisMirror) MirrorMessage(ctx context.Context, msg AgentMessage) {
	m.publish(ctx, mirroredEvent{Kind: "message", Payload: msg})
}

func (m *RedisMirror) publish(ctx context.Context, event mirroredEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	_ = m.client.Publish(ctx, m.channel(), data).Err()
}
