package tree

import (
	"fmt"
	"time"

	"github.com/canopy-bt/canopy/internal/blackboard"
	"github.com/canopy-bt/canopy/internal/bt"
)

// NodeState captures a single node's status and stats at a snapshot
// boundary.
type NodeState struct {
	Status bt.Status
	Stats  bt.Stats
}

// Snapshot is a captured, restorable view of the blackboard and every
// node's state at a tick boundary.
type Snapshot struct {
	ID         string
	TakenAt    time.Time
	Blackboard *blackboard.Blackboard
	NodeStates map[string]NodeState
	Exec       ExecutionContext
}

// TakeSnapshot captures the current blackboard (deep-copied) and every
// node's (status, stats) reachable from the root, storing it in the
// manager's in-memory history and returning it.
func (m *Manager) TakeSnapshot() *Snapshot {
	m.mu.Lock()
	root := m.root
	execCopy := m.ctx
	execCopy.History = append([]TickRecord(nil), m.ctx.History...)
	m.mu.Unlock()

	states := make(map[string]NodeState)
	if root != nil {
		walk(root, func(n *bt.Node) {
			states[n.ID()] = NodeState{Status: n.Status(), Stats: n.Stats()}
		})
	}

	snap := &Snapshot{
		ID:         newID(),
		TakenAt:    time.Now(),
		Blackboard: m.bb.DeepCopy(),
		NodeStates: states,
		Exec:       execCopy,
	}

	m.snapshotsMu.Lock()
	m.snapshots[snap.ID] = snap
	m.lastSnapshotAt = snap.TakenAt
	m.snapshotsMu.Unlock()

	return snap
}

// Snapshot looks up a previously taken snapshot by ID.
func (m *Manager) Snapshot(id string) (*Snapshot, bool) {
	m.snapshotsMu.Lock()
	defer m.snapshotsMu.Unlock()
	s, ok := m.snapshots[id]
	return s, ok
}

// RestoreSnapshot replaces the manager's blackboard contents and every
// reachable node's (status, stats) with the values captured in snap.
// The manager must not be actively ticking (Stop/await Done first).
func (m *Manager) RestoreSnapshot(snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("tree: nil snapshot")
	}

	m.mu.Lock()
	root := m.root
	m.ctx = snap.Exec
	m.ctx.History = append([]TickRecord(nil), snap.Exec.History...)
	m.mu.Unlock()

	m.bb.ReplaceFrom(snap.Blackboard)

	if root != nil {
		walk(root, func(n *bt.Node) {
			if state, ok := snap.NodeStates[n.ID()]; ok {
				n.RestoreState(state.Status, state.Stats)
			}
		})
	}
	return nil
}

func walk(n *bt.Node, visit func(*bt.Node)) {
	visit(n)
	for _, c := range n.Children() {
		walk(c, visit)
	}
}
