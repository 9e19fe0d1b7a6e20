package leaf

import (
	"context"
	"errors"

	"github.com/canopy-bt/canopy/internal/blackboard"
	"github.com/canopy-bt/canopy/internal/bt"
)

// NewBlackboardSet writes value to namespace/key as the node's client,
// returning SUCCESS on success and FAILURE if the client's read/write
// allow-list scoping denies the write.
func NewBlackboardSet(name, namespace, key string, value any) *bt.Node {
	tick := func(_ context.Context, n *bt.Node) (bt.Status, error) {
		if err := n.Client().Set(namespace, key, value); err != nil {
			if errors.Is(err, blackboard.ErrAccessDenied) {
				return bt.Failure, nil
			}
			return bt.Error, err
		}
		return bt.Success, nil
	}
	return bt.New(name, tick, nil)
}

// NewBlackboardDelete removes namespace/key as the node's client. A
// missing key is still SUCCESS (deletion is idempotent); an access
// denial is FAILURE.
func NewBlackboardDelete(name, namespace, key string) *bt.Node {
	tick := func(_ context.Context, n *bt.Node) (bt.Status, error) {
		if _, err := n.Client().Delete(namespace, key); err != nil {
			if errors.Is(err, blackboard.ErrAccessDenied) {
				return bt.Failure, nil
			}
			return bt.Error, err
		}
		return bt.Success, nil
	}
	return bt.New(name, tick, nil)
}
