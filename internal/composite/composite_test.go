package composite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/canopy-bt/canopy/internal/blackboard"
	"github.com/canopy-bt/canopy/internal/bt"
)

func setup(t *testing.T, n *bt.Node) {
	t.Helper()
	client := blackboard.NewClient(blackboard.New(), "test")
	require.NoError(t, n.Setup(context.Background(), client))
}

func constant(name string, status bt.Status) (*bt.Node, *int) {
	calls := 0
	n := bt.New(name, func(ctx context.Context, n *bt.Node) (bt.Status, error) {
		calls++
		return status, nil
	}, nil)
	return n, &calls
}

func TestSequence_ShortCircuitsOnFailure(t *testing.T) {
	t.Parallel()

	a, aCalls := constant("a", bt.Failure)
	b, bCalls := constant("b", bt.Success)
	c, cCalls := constant("c", bt.Success)
	n := Sequence("seq", Persistent, a, b, c)
	setup(t, n)

	status, err := n.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, bt.Failure, status)
	require.Equal(t, 1, *aCalls)
	require.Equal(t, 0, *bCalls)
	require.Equal(t, 0, *cCalls)
}

func TestSequence_AllSuccessYieldsSuccess(t *testing.T) {
	t.Parallel()

	a, _ := constant("a", bt.Success)
	b, _ := constant("b", bt.Success)
	n := Sequence("seq", Persistent, a, b)
	setup(t, n)

	status, err := n.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, bt.Success, status)
}

func TestSequence_PersistentResumesAtRunningChild(t *testing.T) {
	t.Parallel()

	a, aCalls := constant("a", bt.Success)
	tries := 0
	b := bt.New("b", func(ctx context.Context, n *bt.Node) (bt.Status, error) {
		tries++
		if tries < 2 {
			return bt.Running, nil
		}
		return bt.Success, nil
	}, nil)
	n := Sequence("seq", Persistent, a, b)
	setup(t, n)

	status, err := n.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, bt.Running, status)
	require.Equal(t, 1, *aCalls)

	status, err = n.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, bt.Success, status)
	require.Equal(t, 1, *aCalls) // a not re-ticked on resumption
}

func TestSelector_ShortCircuitsOnSuccess(t *testing.T) {
	t.Parallel()

	a, _ := constant("a", bt.Success)
	b, bCalls := constant("b", bt.Success)
	n := Selector("sel", Persistent, a, b)
	setup(t, n)

	status, err := n.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, bt.Success, status)
	require.Equal(t, 0, *bCalls)
}

func TestSelector_AllFailureYieldsFailure(t *testing.T) {
	t.Parallel()

	a, _ := constant("a", bt.Failure)
	b, _ := constant("b", bt.Failure)
	n := Selector("sel", Persistent, a, b)
	setup(t, n)

	status, err := n.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, bt.Failure, status)
}

func TestReactiveSequence_ReEvaluatesFromFirstChildEveryTick(t *testing.T) {
	t.Parallel()

	aCalls := 0
	gate := true
	a := bt.New("a", func(ctx context.Context, n *bt.Node) (bt.Status, error) {
		aCalls++
		if gate {
			return bt.Success, nil
		}
		return bt.Failure, nil
	}, nil)
	b := bt.New("b", func(ctx context.Context, n *bt.Node) (bt.Status, error) {
		return bt.Running, nil
	}, nil)
	n := ReactiveSequence("rseq", a, b)
	setup(t, n)

	status, err := n.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, bt.Running, status)
	require.Equal(t, 1, aCalls)

	gate = false
	status, err = n.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, bt.Failure, status)
	require.Equal(t, 2, aCalls)
}

func TestRandomSelector_EventuallySucceedsOnSuccessfulChild(t *testing.T) {
	t.Parallel()

	a, _ := constant("a", bt.Failure)
	b, _ := constant("b", bt.Success)
	n := RandomSelector("rand", a, b)
	setup(t, n)

	status, err := n.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, bt.Success, status)
}

func TestParallel_RequireAllSucceedsWhenAllSucceed(t *testing.T) {
	t.Parallel()

	a, _ := constant("a", bt.Success)
	b, _ := constant("b", bt.Success)
	n := Parallel("par", RequireAll, []*bt.Node{a, b})
	setup(t, n)

	status, err := n.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, bt.Success, status)
}

func TestParallel_RequireAllFailsMonotonicallyOnFirstFailure(t *testing.T) {
	t.Parallel()

	a, _ := constant("a", bt.Failure)
	b := bt.New("b", func(ctx context.Context, n *bt.Node) (bt.Status, error) {
		return bt.Running, nil
	}, nil)
	n := Parallel("par", RequireAll, []*bt.Node{a, b})
	setup(t, n)

	status, err := n.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, bt.Failure, status)
}

func TestParallel_RequireOneSucceedsOnFirstSuccessAndCancelsRest(t *testing.T) {
	t.Parallel()

	tries := 0
	bCancelled := make(chan struct{}, 1)
	a := bt.New("a", func(ctx context.Context, n *bt.Node) (bt.Status, error) {
		tries++
		if tries < 2 {
			return bt.Running, nil
		}
		return bt.Success, nil
	}, nil)
	c := bt.New("c", func(ctx context.Context, n *bt.Node) (bt.Status, error) {
		select {
		case <-ctx.Done():
			select {
			case bCancelled <- struct{}{}:
			default:
			}
			return bt.Failure, nil
		default:
			return bt.Running, nil
		}
	}, nil)
	n := Parallel("par", RequireOne, []*bt.Node{a, c})
	setup(t, n)

	status, err := n.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, bt.Running, status)

	status, err = n.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, bt.Success, status)

	// c was still RUNNING when a succeeded, so Parallel cancelled its
	// activation context; c observes that on its next tick.
	status, err = c.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, bt.Failure, status)
	require.Len(t, bCancelled, 1)
}

func TestParallel_SequenceStarWaitsForAllBeforeDeciding(t *testing.T) {
	t.Parallel()

	tries := 0
	a := bt.New("a", func(ctx context.Context, n *bt.Node) (bt.Status, error) {
		tries++
		if tries < 2 {
			return bt.Running, nil
		}
		return bt.Failure, nil
	}, nil)
	b, _ := constant("b", bt.Success)
	n := Parallel("par", SequenceStar, []*bt.Node{a, b})
	setup(t, n)

	status, err := n.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, bt.Running, status)

	status, err = n.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, bt.Failure, status) // not all succeeded
}

func TestParallel_SelectorStarSucceedsIfAnySucceeded(t *testing.T) {
	t.Parallel()

	tries := 0
	a := bt.New("a", func(ctx context.Context, n *bt.Node) (bt.Status, error) {
		tries++
		if tries < 2 {
			return bt.Running, nil
		}
		return bt.Failure, nil
	}, nil)
	b, _ := constant("b", bt.Success)
	n := Parallel("par", SelectorStar, []*bt.Node{a, b})
	setup(t, n)

	status, err := n.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, bt.Running, status)

	status, err = n.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, bt.Success, status)
}

func TestParallel_ErrorCountsAsFailureForThreshold(t *testing.T) {
	t.Parallel()

	erroring := bt.New("err", func(ctx context.Context, n *bt.Node) (bt.Status, error) {
		return bt.Error, assertErr
	}, nil)
	other, _ := constant("other", bt.Success)
	n := Parallel("par", RequireAll, []*bt.Node{erroring, other})
	setup(t, n)

	status, err := n.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, bt.Failure, status)
}

var assertErr = errCanary{}

type errCanary struct{}

func (errCanary) Error() string { return "canary" }
