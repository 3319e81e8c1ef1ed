package modelclient

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimited wraps a Client with a process-local AIMD token-bucket limiter.
// Conductor is explicitly single-process (spec §5 non-goal on distributed
// orchestration), so unlike the teacher's cluster-aware AdaptiveRateLimiter
// (which coordinates budget across processes via goa.design/pulse/rmap),
// this limiter never leaves the process: golang.org/x/time/rate is
// sufficient and avoids carrying a Redis-backed coordination dependency that
// nothing in this module would exercise.
func RateLimited(next Client, initialTPM, maxTPM float64) Client {
	if next == nil {
		return nil
	}
	return &limitedClient{next: next, budget: newBudget(initialTPM, maxTPM)}
}

type (
	limitedClient struct {
		next   Client
		budget *budget
	}

	budget struct {
		mu           sync.Mutex
		limiter      *rate.Limiter
		currentTPM   float64
		minTPM       float64
		maxTPM       float64
		recoveryRate float64
	}
)

func newBudget(initialTPM, maxTPM float64) *budget {
	if initialTPM <= 0 {
		initialTPM = 60000
	}
	if maxTPM <= 0 || maxTPM < initialTPM {
		maxTPM = initialTPM
	}
	minTPM := initialTPM * 0.1
	if minTPM < 1 {
		minTPM = 1
	}
	recoveryRate := initialTPM * 0.05
	if recoveryRate < 1 {
		recoveryRate = 1
	}
	return &budget{
		limiter:      rate.NewLimiter(rate.Limit(initialTPM/60.0), int(initialTPM)),
		currentTPM:   initialTPM,
		minTPM:       minTPM,
		maxTPM:       maxTPM,
		recoveryRate: recoveryRate,
	}
}

// Complete enforces the limiter before delegating to the underlying client,
// then adjusts the budget based on whether the call was rate limited.
func (c *limitedClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	if err := c.budget.wait(ctx, req); err != nil {
		return nil, err
	}
	resp, err := c.next.Complete(ctx, req)
	c.budget.observe(err)
	return resp, err
}

func (b *budget) wait(ctx context.Context, req *Request) error {
	return b.limiter.WaitN(ctx, estimateTokens(req))
}

func (b *budget) observe(err error) {
	if err == nil {
		b.probe()
		return
	}
	if errors.Is(err, ErrRateLimited) {
		b.backoff()
	}
}

func (b *budget) backoff() {
	b.mu.Lock()
	defer b.mu.Unlock()
	next := b.currentTPM * 0.5
	if next < b.minTPM {
		next = b.minTPM
	}
	b.setLocked(next)
}

func (b *budget) probe() {
	b.mu.Lock()
	defer b.mu.Unlock()
	next := b.currentTPM + b.recoveryRate
	if next > b.maxTPM {
		next = b.maxTPM
	}
	b.setLocked(next)
}

func (b *budget) setLocked(next float64) {
	if next == b.currentTPM {
		return
	}
	b.currentTPM = next
	b.limiter.SetLimit(rate.Limit(next / 60.0))
	b.limiter.SetBurst(int(next))
}

// estimateTokens computes a cheap heuristic for the number of tokens in the
// request transcript: character count over a fixed ratio plus a fixed buffer
// for system prompts and provider framing.
func estimateTokens(req *Request) int {
	charCount := 0
	for _, m := range req.Messages {
		charCount += len(m.Content)
	}
	if charCount <= 0 {
		return 500
	}
	tokens := charCount / 3
	if tokens < 1 {
		tokens = 1
	}
	return tokens + 500
}
