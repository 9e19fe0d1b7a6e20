// Package script embeds a single goja JavaScript runtime behind an
// event loop goroutine, so that ActionNode/ConditionNode bodies can be
// supplied as JS functions: goja.Runtime is not goroutine-safe, so all
// access happens via RunOnLoop/RunOnLoopSync. The event-loop goroutine's
// ID is captured once at startup and onLoopGoroutine compares against
// it, but RunOnLoop and RunOnLoopSync do not consult it: a RunOnLoopSync
// made from the loop goroutine itself waits out DefaultSyncTimeout and
// returns a timeout error rather than running fn directly.
package script

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/require"
)

// DefaultSyncTimeout bounds RunOnLoopSync; 0 disables the bound.
const DefaultSyncTimeout = 5 * time.Second

// Runtime owns a single goja.Runtime served by an event-loop goroutine.
type Runtime struct {
	loop     *eventloop.EventLoop
	registry *require.Registry
	timeout  time.Duration

	loopGoroutineID atomic.Int64

	mu      sync.RWMutex
	started bool
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRuntime starts an event loop in a background goroutine and returns
// once its goroutine ID has been captured. The runtime stops itself when
// ctx is cancelled; callers should also call Close when done.
func NewRuntime(ctx context.Context) (*Runtime, error) {
	registry := require.NewRegistry()
	loop := eventloop.NewEventLoop(
		eventloop.WithRegistry(registry),
		eventloop.EnableConsole(true),
	)

	childCtx, cancel := context.WithCancel(context.Background())
	rt := &Runtime{
		loop:     loop,
		registry: registry,
		timeout:  DefaultSyncTimeout,
		ctx:      childCtx,
		cancel:   cancel,
	}

	loop.Start()
	rt.mu.Lock()
	rt.started = true
	rt.mu.Unlock()

	errCh := make(chan error, 1)
	ok := loop.RunOnLoop(func(vm *goja.Runtime) {
		rt.loopGoroutineID.Store(currentGoroutineID())
		if _, err := vm.RunString(jsHelpers); err != nil {
			errCh <- err
			return
		}
		errCh <- nil
	})
	if !ok {
		cancel()
		return nil, errors.New("script: event loop failed to start")
	}
	if err := <-errCh; err != nil {
		cancel()
		loop.Stop()
		return nil, fmt.Errorf("script: initializing runtime: %w", err)
	}

	if ctx.Done() != nil {
		context.AfterFunc(ctx, rt.Close)
	}
	return rt, nil
}

// jsHelpers mirrors the status vocabulary a compiled leaf body returns:
// a plain string, or a Promise of one for an async body.
const jsHelpers = `
globalThis.__canopy_invoke = function(fn, ctx, callback) {
	try {
		var result = fn(ctx);
		if (result && typeof result.then === 'function') {
			result.then(
				function(status) { callback(String(status), null); },
				function(err) { callback("error", err instanceof Error ? err.message : String(err)); }
			);
		} else {
			callback(String(result), null);
		}
	} catch (err) {
		callback("error", err instanceof Error ? err.message : String(err));
	}
};
`

// Registry returns the CommonJS require registry for native modules.
func (rt *Runtime) Registry() *require.Registry { return rt.registry }

// Done closes once the runtime has stopped.
func (rt *Runtime) Done() <-chan struct{} { return rt.ctx.Done() }

// IsRunning reports whether the event loop is still accepting work.
func (rt *Runtime) IsRunning() bool {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.started && !rt.stopped
}

// Close stops the event loop; safe to call more than once.
func (rt *Runtime) Close() {
	rt.mu.Lock()
	if rt.stopped {
		rt.mu.Unlock()
		return
	}
	rt.stopped = true
	rt.mu.Unlock()
	rt.cancel()
	rt.loop.Stop()
}

// RunOnLoop schedules fn on the event-loop goroutine, returning false if
// the loop has already stopped.
func (rt *Runtime) RunOnLoop(fn func(*goja.Runtime)) bool {
	rt.mu.RLock()
	if !rt.started || rt.stopped {
		rt.mu.RUnlock()
		return false
	}
	rt.mu.RUnlock()
	return rt.loop.RunOnLoop(fn)
}

// RunOnLoopSync schedules fn on the event loop and blocks for its result,
// bounded by DefaultSyncTimeout.
func (rt *Runtime) RunOnLoopSync(fn func(*goja.Runtime) error) error {
	rt.mu.RLock()
	timeout := rt.timeout
	rt.mu.RUnlock()

	errCh := make(chan error, 1)
	ok := rt.RunOnLoop(func(vm *goja.Runtime) { errCh <- fn(vm) })
	if !ok {
		return errors.New("script: event loop not running")
	}

	if timeout <= 0 {
		select {
		case err := <-errCh:
			return err
		case <-rt.Done():
			return errors.New("script: runtime stopped before completion")
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-errCh:
		return err
	case <-rt.Done():
		return errors.New("script: runtime stopped before completion")
	case <-timer.C:
		return fmt.Errorf("script: RunOnLoopSync timed out after %v", timeout)
	}
}

// onLoopGoroutine reports whether the calling goroutine is the runtime's
// event-loop goroutine.
func (rt *Runtime) onLoopGoroutine() bool {
	id := rt.loopGoroutineID.Load()
	return id != 0 && currentGoroutineID() == id
}
