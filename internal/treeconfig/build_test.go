package treeconfig

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/canopy-bt/canopy/internal/blackboard"
	"github.com/canopy-bt/canopy/internal/bt"
	"github.com/canopy-bt/canopy/internal/leaf"
)

func setupTree(t *testing.T, n *bt.Node, bb *blackboard.Blackboard) {
	t.Helper()
	client := blackboard.NewClient(bb, "test")
	require.NoError(t, n.Setup(context.Background(), client))
}

func TestLoad_DecodesDescriptorTree(t *testing.T) {
	t.Parallel()

	r := strings.NewReader(`{
		"name": "root",
		"type": "Sequence",
		"properties": {"memory_policy": "PERSISTENT"},
		"children": [
			{"name": "gate", "type": "Condition", "properties": {"blackboard_key": "battery", "namespace": "robot", "operator": ">=", "expected_value": 20}}
		]
	}`)
	d, err := Load(r)
	require.NoError(t, err)
	require.Equal(t, "root", d.Name)
	require.Equal(t, "Sequence", d.Type)
	require.Len(t, d.Children, 1)
}

func TestBuild_DeclarativeConditionCompares(t *testing.T) {
	t.Parallel()

	d := &Descriptor{
		Name: "gate", Type: "Condition",
		Properties: map[string]any{
			"blackboard_key": "battery", "namespace": "robot",
			"operator": ">=", "expected_value": float64(20),
		},
	}
	n, err := Build(d, nil)
	require.NoError(t, err)

	bb := blackboard.New()
	require.NoError(t, bb.Set("robot", "battery", 85, "seed"))
	setupTree(t, n, bb)

	status, err := n.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, bt.Success, status)
}

func TestBuild_SequenceWiresChildrenInOrder(t *testing.T) {
	t.Parallel()

	d := &Descriptor{
		Name: "root", Type: "Sequence",
		Properties: map[string]any{"memory_policy": "PERSISTENT"},
		Children: []Descriptor{
			{Name: "gate", Type: "Condition", Properties: map[string]any{
				"blackboard_key": "battery", "namespace": "robot", "operator": ">=", "expected_value": float64(20),
			}},
			{Name: "move", Type: "Action", Properties: map[string]any{"func": "move"}},
		},
	}
	moved := false
	reg := &Registry{
		Actions: map[string]func([]any) leaf.ActionFunc{
			"move": func(args []any) leaf.ActionFunc {
				return func(ctx context.Context, c *blackboard.Client) (bt.Status, error) {
					moved = true
					return bt.Success, nil
				}
			},
		},
	}
	n, err := Build(d, reg)
	require.NoError(t, err)

	bb := blackboard.New()
	require.NoError(t, bb.Set("robot", "battery", 85, "seed"))
	setupTree(t, n, bb)

	status, err := n.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, bt.Success, status)
	require.True(t, moved)
}

func TestBuild_MissingActionFuncErrors(t *testing.T) {
	t.Parallel()

	d := &Descriptor{Name: "move", Type: "Action", Properties: map[string]any{}}
	_, err := Build(d, nil)
	require.Error(t, err)
}

func TestBuild_UnknownNodeTypeErrors(t *testing.T) {
	t.Parallel()

	d := &Descriptor{Name: "x", Type: "NoSuchType"}
	_, err := Build(d, nil)
	require.ErrorIs(t, err, ErrConfigInvalid)
}

func TestBuild_DuplicateNameRejected(t *testing.T) {
	t.Parallel()

	d := &Descriptor{
		Name: "dup", Type: "Sequence",
		Properties: map[string]any{"memory_policy": "PERSISTENT"},
		Children: []Descriptor{
			{Name: "dup", Type: "DebugLog", Properties: map[string]any{"message": "hi"}},
		},
	}
	_, err := Build(d, nil)
	require.ErrorIs(t, err, ErrConfigInvalid)
}

func TestBuild_ParallelRequireOnePolicyDefaults(t *testing.T) {
	t.Parallel()

	d := &Descriptor{
		Name: "par", Type: "Parallel",
		Properties: map[string]any{"policy": "REQUIRE_ONE"},
		Children: []Descriptor{
			{Name: "a", Type: "Action", Properties: map[string]any{"func": "keep-running"}},
			{Name: "b", Type: "Action", Properties: map[string]any{"func": "succeed"}},
		},
	}
	reg := &Registry{
		Actions: map[string]func([]any) leaf.ActionFunc{
			"keep-running": func(args []any) leaf.ActionFunc { return func(context.Context, *blackboard.Client) (bt.Status, error) { return bt.Running, nil } },
			"succeed":      func(args []any) leaf.ActionFunc { return func(context.Context, *blackboard.Client) (bt.Status, error) { return bt.Success, nil } },
		},
	}
	n, err := Build(d, reg)
	require.NoError(t, err)

	bb := blackboard.New()
	setupTree(t, n, bb)

	status, err := n.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, bt.Success, status)
}

func TestBuild_SubtreeInstantiatesTemplate(t *testing.T) {
	t.Parallel()

	leafDesc := &Descriptor{Name: "leaf", Type: "DebugLog", Properties: map[string]any{"message": "hi"}}
	root := &Descriptor{Name: "root", Type: "Subtree", Properties: map[string]any{"name": "leaf-template"}}

	reg := &Registry{Subtrees: map[string]*Descriptor{"leaf-template": leafDesc}}
	n, err := Build(root, reg)
	require.NoError(t, err)

	bb := blackboard.New()
	setupTree(t, n, bb)
	status, err := n.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, bt.Success, status)
}

func TestBuild_SubtreeCycleRejected(t *testing.T) {
	t.Parallel()

	a := &Descriptor{Name: "a", Type: "Subtree", Properties: map[string]any{"name": "b"}}
	b := &Descriptor{Name: "b", Type: "Subtree", Properties: map[string]any{"name": "a"}}

	reg := &Registry{Subtrees: map[string]*Descriptor{"a": a, "b": b}}
	root := &Descriptor{Name: "root", Type: "Subtree", Properties: map[string]any{"name": "a"}}
	_, err := Build(root, reg)
	require.ErrorIs(t, err, ErrSubtreeCycle)
}

func TestBuild_UnknownSubtreeErrors(t *testing.T) {
	t.Parallel()

	root := &Descriptor{Name: "root", Type: "Subtree", Properties: map[string]any{"name": "nope"}}
	_, err := Build(root, &Registry{})
	require.ErrorIs(t, err, ErrUnknownSubtree)
}

func TestBuild_ExpressionConditionEvaluatesAgainstBlackboard(t *testing.T) {
	t.Parallel()

	d := &Descriptor{
		Name: "gate", Type: "Condition",
		Properties: map[string]any{
			"namespace":  "robot",
			"expression": `Get(Namespace, "battery") >= 20`,
		},
	}
	n, err := Build(d, nil)
	require.NoError(t, err)

	bb := blackboard.New()
	require.NoError(t, bb.Set("robot", "battery", 5, "seed"))
	setupTree(t, n, bb)

	status, err := n.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, bt.Failure, status)
}

func TestBuild_RetryDecoratorWrapsChild(t *testing.T) {
	t.Parallel()

	calls := 0
	d := &Descriptor{
		Name: "retry", Type: "Retry",
		Properties: map[string]any{"max_attempts": 3, "delay": float64(0)},
		Children: []Descriptor{
			{Name: "flaky", Type: "Action", Properties: map[string]any{"func": "flaky"}},
		},
	}
	reg := &Registry{
		Actions: map[string]func([]any) leaf.ActionFunc{
			"flaky": func(args []any) leaf.ActionFunc {
				return func(context.Context, *blackboard.Client) (bt.Status, error) {
					calls++
					if calls < 3 {
						return bt.Failure, nil
					}
					return bt.Success, nil
				}
			},
		},
	}
	n, err := Build(d, reg)
	require.NoError(t, err)

	bb := blackboard.New()
	setupTree(t, n, bb)
	status, err := n.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, bt.Success, status)
	require.Equal(t, 3, calls)
}
