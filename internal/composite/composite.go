// Package composite provides multi-child control-flow nodes: Sequence,
// Selector and their reactive and parallel variants, each honoring a
// configurable memory policy.
package composite

import (
	"context"

	"github.com/canopy-bt/canopy/internal/bt"
)

// MemoryPolicy controls whether a composite resumes from the child it
// was last RUNNING on (Persistent) or re-evaluates every child from the
// first on every external tick (Fresh).
type MemoryPolicy int

const (
	// Persistent resumes from the index of the last RUNNING child.
	Persistent MemoryPolicy = iota
	// Fresh restarts evaluation from the first child on every tick.
	Fresh
)

type memory struct {
	index int
}

func (m *memory) start(policy MemoryPolicy) int {
	if policy == Fresh {
		return 0
	}
	return m.index
}

// cancelAbandoned cancels any child at or beyond stopIndex still left
// RUNNING from a previous activation: a Fresh-policy composite that
// decides its outcome before reaching a child it previously suspended at
// must not leave that child running unobserved.
func cancelAbandoned(children []*bt.Node, stopIndex int) {
	for i := stopIndex; i < len(children); i++ {
		if children[i].Status() == bt.Running {
			children[i].Cancel()
			children[i].Reset()
		}
	}
}

// Sequence ticks children in order, stopping at the first non-SUCCESS
// result. Under Persistent it resumes at the child that was RUNNING;
// under Fresh it always restarts at the first child on every tick.
func Sequence(name string, policy MemoryPolicy, children ...*bt.Node) *bt.Node {
	mem := &memory{}
	tick := func(ctx context.Context, n *bt.Node) (bt.Status, error) {
		start := mem.start(policy)
		for i := start; i < len(children); i++ {
			status, err := children[i].Tick(ctx)
			if err != nil {
				mem.index = 0
				cancelAbandoned(children, i+1)
				return status, err
			}
			switch status {
			case bt.Running:
				mem.index = i
				return bt.Running, nil
			case bt.Failure:
				mem.index = 0
				cancelAbandoned(children, i+1)
				return bt.Failure, nil
			}
		}
		mem.index = 0
		return bt.Success, nil
	}
	return bt.New(name, tick, children)
}

// Selector ticks children in order, stopping at the first non-FAILURE
// result. Memory policy semantics mirror Sequence.
func Selector(name string, policy MemoryPolicy, children ...*bt.Node) *bt.Node {
	mem := &memory{}
	tick := func(ctx context.Context, n *bt.Node) (bt.Status, error) {
		start := mem.start(policy)
		for i := start; i < len(children); i++ {
			status, err := children[i].Tick(ctx)
			if err != nil {
				mem.index = 0
				cancelAbandoned(children, i+1)
				return status, err
			}
			switch status {
			case bt.Running:
				mem.index = i
				return bt.Running, nil
			case bt.Success:
				mem.index = 0
				cancelAbandoned(children, i+1)
				return bt.Success, nil
			}
		}
		mem.index = 0
		return bt.Failure, nil
	}
	return bt.New(name, tick, children)
}

// ReactiveSequence is a Sequence that always uses the Fresh policy: every
// external tick re-evaluates every child from the first, cancelling a
// previously-RUNNING later child if an earlier one no longer succeeds.
func ReactiveSequence(name string, children ...*bt.Node) *bt.Node {
	return Sequence(name, Fresh, children...)
}

// ReactiveSelector is a Selector that always uses the Fresh policy.
func ReactiveSelector(name string, children ...*bt.Node) *bt.Node {
	return Selector(name, Fresh, children...)
}
