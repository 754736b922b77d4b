// Package ratelimit bounds calls to the text-generation provider.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/sentinel-insights/internal/domain"
	"golang.org/x/time/rate"
)

// ErrQueueFull is wrapped in a throttled GenerationError when no wait slot is free
var ErrQueueFull = errors.New("generation queue full")

// Gate admits calls at a fixed rate. At most queueDepth callers wait for a token
// while one holds the call slot; further callers are rejected immediately.
type Gate struct {
	limiter *rate.Limiter
	slots   chan struct{}
}

// NewGate creates a gate allowing perMinute calls per minute
func NewGate(perMinute, queueDepth int) *Gate {
	if perMinute < 1 {
		perMinute = 1
	}
	if queueDepth < 0 {
		queueDepth = 0
	}
	return &Gate{
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
		slots:   make(chan struct{}, queueDepth+1),
	}
}

// Acquire waits for a token and returns a release function for the slot.
// A full queue, a wait that would overrun ctx's deadline or a cancelled ctx
// produce a throttled GenerationError.
func (g *Gate) Acquire(ctx context.Context) (func(), error) {
	select {
	case g.slots <- struct{}{}:
	default:
		return nil, domain.NewGenerationError(domain.GenerationThrottled, "ratelimit.acquire", ErrQueueFull)
	}

	release := func() { <-g.slots }

	if err := g.limiter.Wait(ctx); err != nil {
		release()
		return nil, domain.NewGenerationError(domain.GenerationThrottled, "ratelimit.acquire",
			fmt.Errorf("waiting for generation slot: %w", err))
	}
	return release, nil
}

// Waiting returns how many callers currently hold or wait for a slot
func (g *Gate) Waiting() int {
	return len(g.slots)
}

// Capacity returns the maximum number of concurrent holders and waiters
func (g *Gate) Capacity() int {
	return cap(g.slots)
}
