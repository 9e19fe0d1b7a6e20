package leaf

import (
	"context"

	"github.com/canopy-bt/canopy/internal/bt"
)

// Publisher receives a user-defined event emitted by an EventEmitNode.
// A descriptor names one from treeconfig's Registry.Publishers, wired to
// whatever sink the application wants (a log, a channel, a metrics
// counter); it is deliberately
// separate from the Node lifecycle bus, which only ever carries its own
// fixed set of lifecycle Events.
type Publisher func(eventName string, payload any)

// NewEventEmit always returns SUCCESS after calling publish with
// eventName and payload.
func NewEventEmit(name, eventName string, payload any, publish Publisher) *bt.Node {
	tick := func(_ context.Context, _ *bt.Node) (bt.Status, error) {
		if publish != nil {
			publish(eventName, payload)
		}
		return bt.Success, nil
	}
	return bt.New(name, tick, nil)
}
