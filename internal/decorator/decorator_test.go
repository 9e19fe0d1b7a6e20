package decorator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/canopy-bt/canopy/internal/blackboard"
	"github.com/canopy-bt/canopy/internal/bt"
	"github.com/canopy-bt/canopy/internal/leaf"
)

func setup(t *testing.T, n *bt.Node) {
	t.Helper()
	client := blackboard.NewClient(blackboard.New(), "test")
	require.NoError(t, n.Setup(context.Background(), client))
}

func constant(name string, status bt.Status) *bt.Node {
	return bt.New(name, func(ctx context.Context, n *bt.Node) (bt.Status, error) {
		return status, nil
	}, nil)
}

func sequenceOfStatuses(name string, statuses ...bt.Status) *bt.Node {
	i := 0
	return bt.New(name, func(ctx context.Context, n *bt.Node) (bt.Status, error) {
		s := statuses[i]
		if i < len(statuses)-1 {
			i++
		}
		return s, nil
	}, nil)
}

func TestInverter_FlipsSuccessAndFailure(t *testing.T) {
	t.Parallel()

	n := Inverter("inv", constant("child", bt.Success))
	setup(t, n)
	status, err := n.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, bt.Failure, status)
}

func TestForceSuccess_PassesThroughRunning(t *testing.T) {
	t.Parallel()

	n := ForceSuccess("force", constant("child", bt.Running))
	setup(t, n)
	status, err := n.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, bt.Running, status)
}

func TestForceFailure_TurnsSuccessIntoFailure(t *testing.T) {
	t.Parallel()

	n := ForceFailure("force", constant("child", bt.Success))
	setup(t, n)
	status, err := n.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, bt.Failure, status)
}

func erroring(name string) *bt.Node {
	return bt.New(name, func(ctx context.Context, n *bt.Node) (bt.Status, error) {
		return bt.Error, errors.New("boom")
	}, nil)
}

func TestForceSuccess_FoldsChildErrorIntoSuccess(t *testing.T) {
	t.Parallel()

	n := ForceSuccess("force", erroring("child"))
	setup(t, n)
	status, err := n.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, bt.Success, status)
}

func TestForceFailure_FoldsChildErrorIntoFailure(t *testing.T) {
	t.Parallel()

	n := ForceFailure("force", erroring("child"))
	setup(t, n)
	status, err := n.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, bt.Failure, status)
}

func TestRepeat_SucceedsAfterNSuccesses(t *testing.T) {
	t.Parallel()

	n := Repeat("repeat", 3, constant("child", bt.Success))
	setup(t, n)

	for i := 0; i < 2; i++ {
		status, err := n.Tick(context.Background())
		require.NoError(t, err)
		require.Equal(t, bt.Running, status)
	}
	status, err := n.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, bt.Success, status)
}

func TestRepeat_AbandonsOnChildFailure(t *testing.T) {
	t.Parallel()

	n := Repeat("repeat", 3, constant("child", bt.Failure))
	setup(t, n)
	status, err := n.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, bt.Failure, status)
}

func TestRetry_SucceedsPartwayWithinOneOuterTick(t *testing.T) {
	t.Parallel()

	child := sequenceOfStatuses("child", bt.Failure, bt.Failure, bt.Success)
	n := Retry("retry", 3, 0, child)
	setup(t, n)

	status, err := n.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, bt.Success, status)

	stats := child.Stats()
	require.Equal(t, uint64(3), stats.TotalTicks)
	require.Equal(t, uint64(1), stats.SuccessCount)
	require.Equal(t, uint64(2), stats.FailureCount)
}

func TestRetry_ExhaustsAttemptsAndFails(t *testing.T) {
	t.Parallel()

	n := Retry("retry", 2, 0, constant("child", bt.Failure))
	setup(t, n)
	status, err := n.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, bt.Failure, status)
}

func TestTimeout_FailsAfterLimitElapsed(t *testing.T) {
	t.Parallel()

	n := Timeout("timeout", 10*time.Millisecond, constant("child", bt.Running))
	setup(t, n)

	status, err := n.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, bt.Running, status)

	time.Sleep(20 * time.Millisecond)
	status, err = n.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, bt.Failure, status)
}

func TestTimeout_CutsOffLongerRunningWaitChild(t *testing.T) {
	t.Parallel()

	wait := leaf.NewWait("wait", 50*time.Millisecond)
	n := Timeout("timeout", 10*time.Millisecond, wait)
	setup(t, n)

	status, err := n.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, bt.Running, status)

	time.Sleep(20 * time.Millisecond)
	status, err = n.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, bt.Failure, status)

	// The wait leaf never reached its own 50ms deadline; the decorator
	// cut it off mid-activation once the 10ms limit elapsed, leaving it
	// parked at RUNNING rather than letting it reach SUCCESS.
	require.Equal(t, bt.Running, wait.Status())
}

func TestCooldown_SuppressesReentryWithinWindow(t *testing.T) {
	t.Parallel()

	calls := 0
	child := bt.New("child", func(ctx context.Context, n *bt.Node) (bt.Status, error) {
		calls++
		return bt.Success, nil
	}, nil)
	n := Cooldown("cooldown", 50*time.Millisecond, child)
	setup(t, n)

	status, err := n.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, bt.Success, status)

	status, err = n.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, bt.Failure, status)
	require.Equal(t, 1, calls)
}
