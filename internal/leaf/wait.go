package leaf

import (
	"context"
	"time"

	"github.com/canopy-bt/canopy/internal/bt"
)

// NewWait returns RUNNING until duration has elapsed since the
// activation's first tick, then SUCCESS. A later Cancel() (context
// cancellation on a RUNNING activation) is observed on the next tick,
// returning FAILURE rather than waiting out the remainder.
func NewWait(name string, duration time.Duration) *bt.Node {
	timer := &activationTimer{}

	tick := func(ctx context.Context, n *bt.Node) (bt.Status, error) {
		prior := n.Status()
		timer.mu.Lock()
		if prior != bt.Running {
			timer.start = time.Now()
		}
		start := timer.start
		timer.mu.Unlock()

		if ctx.Err() != nil {
			return bt.Failure, nil
		}
		if time.Since(start) >= duration {
			return bt.Success, nil
		}
		return bt.Running, nil
	}

	return bt.New(name, tick, nil)
}
