// Package leaf provides the source-of-real-work nodes: actions,
// conditions, waits, throttles, debug/event leaves and
// blackboard-mutating leaves.
package leaf

import (
	"context"
	"sync"
	"time"

	"github.com/canopy-bt/canopy/internal/blackboard"
	"github.com/canopy-bt/canopy/internal/bt"
)

// ActionFunc is a leaf body: it may return RUNNING to request
// re-invocation on the next external tick (the function itself is
// responsible for tracking its own partial progress across calls, e.g.
// WaitNode tracks an elapsed-time start).
type ActionFunc func(ctx context.Context, c *blackboard.Client) (bt.Status, error)

// ToBoolFunc adapts a function returning (bool, error) to an ActionFunc
// per the leaf contract: truthy -> SUCCESS, falsy -> FAILURE.
func ToBoolFunc(f func(ctx context.Context, c *blackboard.Client) (bool, error)) ActionFunc {
	return func(ctx context.Context, c *blackboard.Client) (bt.Status, error) {
		ok, err := f(ctx, c)
		if err != nil {
			return bt.Error, err
		}
		if ok {
			return bt.Success, nil
		}
		return bt.Failure, nil
	}
}

type actionConfig struct {
	timeout    time.Duration
	retryCount int
}

// ActionOption configures an ActionNode.
type ActionOption func(*actionConfig)

// WithTimeout bounds the cumulative wall-clock time an activation may
// spend RUNNING; once exceeded the node returns FAILURE and its context
// is cancelled.
func WithTimeout(d time.Duration) ActionOption {
	return func(c *actionConfig) { c.timeout = d }
}

// WithRetryCount re-invokes the function on FAILURE up to n additional
// times within the same external tick, with no pause between calls
// (compare with the Retry decorator, which re-ticks a whole child node
// and can pause between attempts).
func WithRetryCount(n int) ActionOption {
	return func(c *actionConfig) { c.retryCount = n }
}

type activationTimer struct {
	mu    sync.Mutex
	start time.Time
}

// NewAction constructs an ActionNode wrapping fn.
func NewAction(name string, fn ActionFunc, opts ...ActionOption) *bt.Node {
	var cfg actionConfig
	for _, o := range opts {
		o(&cfg)
	}
	timer := &activationTimer{}

	tick := func(ctx context.Context, n *bt.Node) (bt.Status, error) {
		prior := n.Status()
		timer.mu.Lock()
		if prior != bt.Running {
			timer.start = time.Now()
		}
		start := timer.start
		timer.mu.Unlock()

		if cfg.timeout > 0 && time.Since(start) > cfg.timeout {
			return bt.Failure, nil
		}

		calls := 0
		for {
			status, err := fn(ctx, n.Client())
			calls++
			if err != nil {
				return bt.Error, err
			}
			if status != bt.Failure {
				return status, nil
			}
			if calls > cfg.retryCount {
				return bt.Failure, nil
			}
		}
	}

	return bt.New(name, tick, nil)
}
