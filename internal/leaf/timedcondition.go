package leaf

import (
	"context"
	"time"

	"github.com/canopy-bt/canopy/internal/bt"
)

// NewTimedCondition polls fn on every external tick: SUCCESS as soon as
// fn reports true, RUNNING while the window has not elapsed, FAILURE once
// the window elapses without fn ever reporting true.
func NewTimedCondition(name string, fn ConditionFunc, window time.Duration) *bt.Node {
	timer := &activationTimer{}

	tick := func(_ context.Context, n *bt.Node) (bt.Status, error) {
		prior := n.Status()
		timer.mu.Lock()
		if prior != bt.Running {
			timer.start = time.Now()
		}
		start := timer.start
		timer.mu.Unlock()

		ok, err := fn(n.Client())
		if err != nil {
			return bt.Error, err
		}
		if ok {
			return bt.Success, nil
		}
		if time.Since(start) >= window {
			return bt.Failure, nil
		}
		return bt.Running, nil
	}

	return bt.New(name, tick, nil)
}
