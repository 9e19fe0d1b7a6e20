package leaf

import (
	"context"
	"sync"
	"time"

	"github.com/canopy-bt/canopy/internal/bt"
)

type throttleState struct {
	mu       sync.Mutex
	lastRun  time.Time
	hasRun   bool
	lastSent bt.Status
}

// NewThrottle invokes fn at most once per interval. Ticks that arrive
// before the interval has elapsed since the last invocation don't call
// fn: if sticky is true they replay fn's last result, otherwise they
// return FAILURE.
func NewThrottle(name string, interval time.Duration, sticky bool, fn ActionFunc) *bt.Node {
	st := &throttleState{}

	tick := func(ctx context.Context, n *bt.Node) (bt.Status, error) {
		st.mu.Lock()
		elapsed := !st.hasRun || time.Since(st.lastRun) >= interval
		st.mu.Unlock()

		if !elapsed {
			if sticky {
				st.mu.Lock()
				last := st.lastSent
				st.mu.Unlock()
				return last, nil
			}
			return bt.Failure, nil
		}

		status, err := fn(ctx, n.Client())
		st.mu.Lock()
		st.hasRun = true
		st.lastRun = time.Now()
		st.lastSent = status
		st.mu.Unlock()
		return status, err
	}

	return bt.New(name, tick, nil)
}
