package script

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dop251/goja"

	"github.com/canopy-bt/canopy/internal/blackboard"
	"github.com/canopy-bt/canopy/internal/bt"
	"github.com/canopy-bt/canopy/internal/leaf"
)

type jsAsyncState int

const (
	jsIdle jsAsyncState = iota
	jsRunning
	jsCompleted
)

// jsLeaf bridges one compiled JS function to the leaf package's
// synchronous-per-tick contract: dispatch happens on the event loop
// goroutine, a generation counter discards callbacks from a cancelled or
// superseded activation, and Tick-shaped callers observe RUNNING until
// the callback lands.
type jsLeaf struct {
	rt *Runtime
	fn goja.Value

	mu         sync.Mutex
	state      jsAsyncState
	generation uint64
	status     bt.Status
	err        error
}

func compile(rt *Runtime, body string) (*jsLeaf, error) {
	jl := &jsLeaf{rt: rt}
	err := rt.RunOnLoopSync(func(vm *goja.Runtime) error {
		v, err := vm.RunString("(" + body + ")")
		if err != nil {
			return fmt.Errorf("script: compile leaf body: %w", err)
		}
		if _, ok := goja.AssertFunction(v); !ok {
			return errors.New("script: leaf body must evaluate to a function")
		}
		jl.fn = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return jl, nil
}

func (jl *jsLeaf) tick(ctx context.Context, view any) (bt.Status, error) {
	jl.mu.Lock()
	switch jl.state {
	case jsIdle:
		select {
		case <-ctx.Done():
			jl.mu.Unlock()
			return bt.Failure, ctx.Err()
		default:
		}
		jl.generation++
		gen := jl.generation
		jl.state = jsRunning
		jl.mu.Unlock()
		jl.dispatch(gen, view)
		return bt.Running, nil

	case jsRunning:
		select {
		case <-ctx.Done():
			jl.generation++
			jl.state = jsIdle
			jl.mu.Unlock()
			return bt.Failure, ctx.Err()
		default:
		}
		jl.mu.Unlock()
		return bt.Running, nil

	case jsCompleted:
		status, err := jl.status, jl.err
		jl.state = jsIdle
		jl.status, jl.err = 0, nil
		jl.mu.Unlock()
		return status, err

	default:
		jl.mu.Unlock()
		return bt.Error, errors.New("script: invalid leaf state")
	}
}

func (jl *jsLeaf) dispatch(gen uint64, view any) {
	ok := jl.rt.RunOnLoop(func(vm *goja.Runtime) {
		defer func() {
			if r := recover(); r != nil {
				jl.finalize(gen, bt.Error, fmt.Errorf("script: panic in leaf: %v", r))
			}
		}()

		invoke, ok := goja.AssertFunction(vm.Get("__canopy_invoke"))
		if !ok {
			jl.finalize(gen, bt.Error, errors.New("script: __canopy_invoke helper missing"))
			return
		}
		callback := vm.ToValue(func(call goja.FunctionCall) goja.Value {
			jl.finalize(gen, mapStatus(call.Argument(0).String()), callErr(call.Argument(1)))
			return goja.Undefined()
		})
		if _, err := invoke(goja.Undefined(), jl.fn, vm.ToValue(view), callback); err != nil {
			jl.finalize(gen, bt.Error, fmt.Errorf("script: invoking leaf: %w", err))
		}
	})
	if !ok {
		jl.finalize(gen, bt.Error, errors.New("script: event loop not running"))
	}
}

func (jl *jsLeaf) finalize(gen uint64, status bt.Status, err error) {
	jl.mu.Lock()
	defer jl.mu.Unlock()
	if gen != jl.generation {
		return
	}
	jl.status, jl.err = status, err
	jl.state = jsCompleted
}

func callErr(v goja.Value) error {
	if v == nil || goja.IsNull(v) || goja.IsUndefined(v) {
		return nil
	}
	return errors.New(v.String())
}

func mapStatus(s string) bt.Status {
	switch s {
	case "running":
		return bt.Running
	case "success":
		return bt.Success
	case "failure":
		return bt.Failure
	default:
		return bt.Error
	}
}

// clientView is the object exposed to a JS leaf body as its ctx argument:
// get/set/delete against the node's scoped blackboard client.
type clientView struct {
	Get    func(namespace, key string) any
	Set    func(namespace, key string, value any) error
	Delete func(namespace, key string) (bool, error)
}

func newClientView(c *blackboard.Client) clientView {
	return clientView{
		Get:    func(ns, key string) any { return c.GetOr(ns, key, nil) },
		Set:    c.Set,
		Delete: c.Delete,
	}
}

// CompileAction compiles body (a JS function expression of one argument,
// the blackboard client view) into an ActionFunc. The function may return
// "success"/"failure"/"running" synchronously, or a Promise of one of
// those strings for an async body.
func CompileAction(rt *Runtime, body string) (leaf.ActionFunc, error) {
	jl, err := compile(rt, body)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, c *blackboard.Client) (bt.Status, error) {
		return jl.tick(ctx, newClientView(c))
	}, nil
}

// CompileCondition compiles body the same way as CompileAction, but
// adapts the result to the leaf package's (bool, error) condition
// contract: only a synchronous "success"/"failure" result is meaningful,
// since conditions must stay fast and side-effect-free (use
// CompileAction + TimedConditionNode for anything that may need to poll
// across ticks).
func CompileCondition(rt *Runtime, body string) (leaf.ConditionFunc, error) {
	jl, err := compile(rt, body)
	if err != nil {
		return nil, err
	}
	return func(c *blackboard.Client) (bool, error) {
		status, err := jl.tick(context.Background(), newClientView(c))
		if err != nil {
			return false, err
		}
		if status == bt.Running {
			return false, errors.New("script: condition body returned running; conditions must be synchronous")
		}
		return status == bt.Success, nil
	}, nil
}
