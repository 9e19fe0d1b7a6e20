package composite

import (
	"context"

	"github.com/canopy-bt/canopy/internal/bt"
)

// ParallelPolicy selects a Parallel node's default thresholds and
// synchronization behavior.
type ParallelPolicy int

const (
	// RequireAll succeeds once every child has succeeded; any single
	// failure decides FAILURE immediately and cancels the rest.
	RequireAll ParallelPolicy = iota
	// RequireOne succeeds on the first child success, cancelling the
	// rest; fails only once every child has failed.
	RequireOne
	// SequenceStar waits for every child to reach a terminal status
	// (no early cancellation on an individual failure) and succeeds iff
	// all of them succeeded.
	SequenceStar
	// SelectorStar waits for every child to reach a terminal status (no
	// early cancellation on an individual success) and succeeds iff at
	// least one of them succeeded.
	SelectorStar
)

type parallelConfig struct {
	successThreshold int
	failureThreshold int
	synchronized     bool
}

// ParallelOption overrides a Parallel node's policy defaults.
type ParallelOption func(*parallelConfig)

// WithSuccessThreshold overrides the number of child successes required
// to decide SUCCESS.
func WithSuccessThreshold(n int) ParallelOption {
	return func(c *parallelConfig) { c.successThreshold = n }
}

// WithFailureThreshold overrides the number of child failures required
// to decide FAILURE.
func WithFailureThreshold(n int) ParallelOption {
	return func(c *parallelConfig) { c.failureThreshold = n }
}

// WithSynchronized forces the composite to wait for every child to
// reach a terminal status within the same round before deciding, rather
// than deciding (and cancelling stragglers) the moment a threshold is
// met.
func WithSynchronized(b bool) ParallelOption {
	return func(c *parallelConfig) { c.synchronized = b }
}

func policyDefaults(policy ParallelPolicy, n int) parallelConfig {
	switch policy {
	case RequireOne:
		return parallelConfig{successThreshold: 1, failureThreshold: n}
	case SequenceStar:
		return parallelConfig{successThreshold: n, failureThreshold: 1, synchronized: true}
	case SelectorStar:
		return parallelConfig{successThreshold: 1, failureThreshold: n, synchronized: true}
	default: // RequireAll
		return parallelConfig{successThreshold: n, failureThreshold: 1}
	}
}

type parallelState struct {
	done   []bool
	status []bt.Status
}

// Parallel ticks every not-yet-terminal child on every external tick,
// folding each child's result (ERROR counts as FAILURE for threshold
// purposes, though the child still emits its own ERROR event) into
// running success/failure counts, and decides once a threshold is met
// (or, when synchronized, once every child has reached a terminal
// status). When both thresholds are satisfied in the same tick, SUCCESS
// wins. Deciding before every child is done cancels the children still
// RUNNING.
func Parallel(name string, policy ParallelPolicy, children []*bt.Node, opts ...ParallelOption) *bt.Node {
	cfg := policyDefaults(policy, len(children))
	for _, o := range opts {
		o(&cfg)
	}
	st := &parallelState{}

	tick := func(ctx context.Context, n *bt.Node) (bt.Status, error) {
		if n.Status() != bt.Running {
			st.done = make([]bool, len(children))
			st.status = make([]bt.Status, len(children))
		}

		for i, c := range children {
			if st.done[i] {
				continue
			}
			status, err := c.Tick(ctx)
			if err != nil {
				status = bt.Failure
			}
			if status == bt.Running {
				continue
			}
			st.done[i] = true
			st.status[i] = status
		}

		successCount, failureCount, doneCount := 0, 0, 0
		for i := range children {
			if st.done[i] {
				doneCount++
				if st.status[i] == bt.Success {
					successCount++
				} else {
					failureCount++
				}
			}
		}

		allDone := doneCount == len(children)
		if cfg.synchronized && !allDone {
			return bt.Running, nil
		}

		decideSuccess := successCount >= cfg.successThreshold
		decideFailure := failureCount >= cfg.failureThreshold

		switch {
		case decideSuccess:
			cancelRunning(children, st.done)
			return bt.Success, nil
		case decideFailure:
			cancelRunning(children, st.done)
			return bt.Failure, nil
		case allDone:
			return bt.Failure, nil
		default:
			return bt.Running, nil
		}
	}

	return bt.New(name, tick, children)
}

func cancelRunning(children []*bt.Node, done []bool) {
	for i, c := range children {
		if !done[i] {
			c.Cancel()
		}
	}
}
