package tree

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/canopy-bt/canopy/internal/blackboard"
	"github.com/canopy-bt/canopy/internal/bt"
	"github.com/canopy-bt/canopy/internal/composite"
	"github.com/canopy-bt/canopy/internal/leaf"
)

func batteryGateTree(bb *blackboard.Blackboard) *bt.Node {
	cond := leaf.NewCondition("battery-ok", func(c *blackboard.Client) (bool, error) {
		level := c.GetOr("robot", "battery", 0)
		return level.(int) >= 20, nil
	})
	action := leaf.NewAction("move", func(ctx context.Context, c *blackboard.Client) (bt.Status, error) {
		return bt.Success, nil
	})
	return composite.Sequence("root", composite.Persistent, cond, action)
}

func TestManager_TickOnceBatteryGateSucceeds(t *testing.T) {
	t.Parallel()

	bb := blackboard.New()
	require.NoError(t, bb.Set("robot", "battery", 85, "seed"))

	m := New(bb)
	require.NoError(t, m.SetRoot(context.Background(), batteryGateTree(bb)))

	status, err := m.TickOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, bt.Success, status)

	stats := m.Stats()
	require.Equal(t, uint64(1), stats.TickCount)
	require.Equal(t, uint64(1), stats.SuccessCount)
}

func TestManager_TickOnceDepletedBatteryFails(t *testing.T) {
	t.Parallel()

	bb := blackboard.New()
	require.NoError(t, bb.Set("robot", "battery", 10, "seed"))

	m := New(bb)
	require.NoError(t, m.SetRoot(context.Background(), batteryGateTree(bb)))

	status, err := m.TickOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, bt.Failure, status)
}

func TestManager_SnapshotRestoreRoundTrip(t *testing.T) {
	t.Parallel()

	bb := blackboard.New()
	require.NoError(t, bb.Set("robot", "battery", 85, "seed"))

	m := New(bb)
	require.NoError(t, m.SetRoot(context.Background(), batteryGateTree(bb)))

	for i := 0; i < 10; i++ {
		_, err := m.TickOnce(context.Background())
		require.NoError(t, err)
	}

	snap := m.TakeSnapshot()
	statsAtSnapshot := m.Stats()

	require.NoError(t, bb.Set("robot", "battery", 5, "diverge"))
	for i := 0; i < 5; i++ {
		_, err := m.TickOnce(context.Background())
		require.NoError(t, err)
	}

	require.NoError(t, m.RestoreSnapshot(snap))

	battery, err := bb.Get("robot", "battery")
	require.NoError(t, err)
	require.Equal(t, 85, battery)

	restoredStats := m.Stats()
	require.Equal(t, statsAtSnapshot.TickCount, restoredStats.TickCount)
	require.Equal(t, statsAtSnapshot.SuccessCount, restoredStats.SuccessCount)
}

func TestManager_RegisterAndInstantiateSubtree(t *testing.T) {
	t.Parallel()

	bb := blackboard.New()
	m := New(bb)
	m.RegisterSubtree("gate", func() *bt.Node { return batteryGateTree(bb) })

	a, err := m.InstantiateSubtree("gate")
	require.NoError(t, err)
	b, err := m.InstantiateSubtree("gate")
	require.NoError(t, err)

	require.NotSame(t, a, b)
}

func TestManager_InstantiateUnknownSubtreeErrors(t *testing.T) {
	t.Parallel()

	m := New(blackboard.New())
	_, err := m.InstantiateSubtree("nope")
	require.Error(t, err)
}

func TestManager_RunTicksUntilTerminalThenStops(t *testing.T) {
	t.Parallel()

	bb := blackboard.New()
	ticks := 0
	root := bt.New("root", func(ctx context.Context, n *bt.Node) (bt.Status, error) {
		ticks++
		if ticks < 3 {
			return bt.Running, nil
		}
		return bt.Success, nil
	}, nil)

	m := New(bb)
	require.NoError(t, m.SetRoot(context.Background(), root))

	m.Run(context.Background(), 1000)
	select {
	case <-m.Done():
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after terminal status")
	}
	require.NoError(t, m.Err())
	require.GreaterOrEqual(t, ticks, 3)
}

func TestManager_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	m := New(blackboard.New())
	root := bt.New("root", func(ctx context.Context, n *bt.Node) (bt.Status, error) {
		return bt.Running, nil
	}, nil)
	require.NoError(t, m.SetRoot(context.Background(), root))

	m.Run(context.Background(), 1000)
	m.Stop()
	m.Stop()

	select {
	case <-m.Done():
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
