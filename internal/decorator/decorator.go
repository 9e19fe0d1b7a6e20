// Package decorator provides single-child nodes that wrap a child's
// Tick and transform its result, without evaluating any blackboard
// state of their own.
package decorator

import (
	"context"
	"time"

	"github.com/canopy-bt/canopy/internal/bt"
)

// Inverter flips SUCCESS<->FAILURE; RUNNING and ERROR pass through
// unchanged.
func Inverter(name string, child *bt.Node) *bt.Node {
	tick := func(ctx context.Context, n *bt.Node) (bt.Status, error) {
		status, err := child.Tick(ctx)
		if err != nil {
			return status, err
		}
		switch status {
		case bt.Success:
			return bt.Failure, nil
		case bt.Failure:
			return bt.Success, nil
		default:
			return status, nil
		}
	}
	return bt.New(name, tick, []*bt.Node{child})
}

// ForceSuccess always reports SUCCESS once the child reaches a terminal
// status; RUNNING passes through.
func ForceSuccess(name string, child *bt.Node) *bt.Node {
	tick := func(ctx context.Context, n *bt.Node) (bt.Status, error) {
		status, _ := child.Tick(ctx)
		if status == bt.Running {
			return bt.Running, nil
		}
		return bt.Success, nil
	}
	return bt.New(name, tick, []*bt.Node{child})
}

// ForceFailure always reports FAILURE once the child reaches a terminal
// status; RUNNING passes through.
func ForceFailure(name string, child *bt.Node) *bt.Node {
	tick := func(ctx context.Context, n *bt.Node) (bt.Status, error) {
		status, _ := child.Tick(ctx)
		if status == bt.Running {
			return bt.Running, nil
		}
		return bt.Failure, nil
	}
	return bt.New(name, tick, []*bt.Node{child})
}

type repeatState struct {
	count int
}

// Repeat re-ticks the child, counting SUCCESS completions, until it has
// succeeded n times (reporting SUCCESS) or the child fails (reporting
// FAILURE, abandoning the count).
func Repeat(name string, n int, child *bt.Node) *bt.Node {
	st := &repeatState{}
	tick := func(ctx context.Context, node *bt.Node) (bt.Status, error) {
		status, err := child.Tick(ctx)
		if err != nil {
			return status, err
		}
		switch status {
		case bt.Success:
			st.count++
			if st.count >= n {
				st.count = 0
				return bt.Success, nil
			}
			child.Reset()
			return bt.Running, nil
		case bt.Failure:
			st.count = 0
			return bt.Failure, nil
		default:
			return status, nil
		}
	}
	return bt.New(name, tick, []*bt.Node{child})
}

// Retry re-ticks the child up to maxAttempts times within a single
// external tick, pausing delay between attempts, short-circuiting on the
// first SUCCESS. If the child reports RUNNING, Retry suspends and
// resumes it next external tick rather than counting an attempt.
func Retry(name string, maxAttempts int, delay time.Duration, child *bt.Node) *bt.Node {
	tick := func(ctx context.Context, node *bt.Node) (bt.Status, error) {
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			status, err := child.Tick(ctx)
			if err != nil {
				return status, err
			}
			if status == bt.Running {
				return bt.Running, nil
			}
			if status == bt.Success {
				return bt.Success, nil
			}
			if attempt == maxAttempts {
				return bt.Failure, nil
			}
			if delay > 0 {
				select {
				case <-ctx.Done():
					return bt.Failure, nil
				case <-time.After(delay):
				}
			}
			child.Reset()
		}
		return bt.Failure, nil
	}
	return bt.New(name, tick, []*bt.Node{child})
}

type timeoutState struct {
	start  time.Time
	active bool
}

// Timeout cancels the child and reports FAILURE if it's still RUNNING
// once limit has elapsed since its activation began.
func Timeout(name string, limit time.Duration, child *bt.Node) *bt.Node {
	st := &timeoutState{}
	tick := func(ctx context.Context, node *bt.Node) (bt.Status, error) {
		if !st.active {
			st.start = time.Now()
			st.active = true
		}
		status, err := child.Tick(ctx)
		if status != bt.Running {
			st.active = false
			return status, err
		}
		if time.Since(st.start) >= limit {
			child.Cancel()
			st.active = false
			return bt.Failure, nil
		}
		return bt.Running, nil
	}
	return bt.New(name, tick, []*bt.Node{child})
}

type cooldownState struct {
	lastTerminal time.Time
	hasRun       bool
}

// Cooldown suppresses re-entry into the child for window after it last
// reached a terminal status, reporting FAILURE on suppressed ticks.
func Cooldown(name string, window time.Duration, child *bt.Node) *bt.Node {
	st := &cooldownState{}
	tick := func(ctx context.Context, node *bt.Node) (bt.Status, error) {
		if st.hasRun && time.Since(st.lastTerminal) < window {
			return bt.Failure, nil
		}
		status, err := child.Tick(ctx)
		if status.Terminal() {
			st.hasRun = true
			st.lastTerminal = time.Now()
		}
		return status, err
	}
	return bt.New(name, tick, []*bt.Node{child})
}
