package composite

import (
	"context"
	"math/rand/v2"

	"github.com/canopy-bt/canopy/internal/bt"
)

type randomSelectorState struct {
	order []int
	pos   int
}

// RandomSelector behaves like Selector but shuffles the child evaluation
// order at the start of each new round (the previous round having ended
// in SUCCESS or FAILURE), resuming the same shuffled order across
// RUNNING ticks within a round per the Persistent memory policy.
func RandomSelector(name string, children ...*bt.Node) *bt.Node {
	st := &randomSelectorState{}
	tick := func(ctx context.Context, n *bt.Node) (bt.Status, error) {
		if st.order == nil {
			st.order = make([]int, len(children))
			for i := range st.order {
				st.order[i] = i
			}
			rand.Shuffle(len(st.order), func(i, j int) {
				st.order[i], st.order[j] = st.order[j], st.order[i]
			})
			st.pos = 0
		}
		for ; st.pos < len(st.order); st.pos++ {
			idx := st.order[st.pos]
			status, err := children[idx].Tick(ctx)
			if err != nil {
				st.order = nil
				return status, err
			}
			switch status {
			case bt.Running:
				return bt.Running, nil
			case bt.Success:
				st.order = nil
				return bt.Success, nil
			}
		}
		st.order = nil
		return bt.Failure, nil
	}
	return bt.New(name, tick, children)
}
