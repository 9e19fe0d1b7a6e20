package bt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/canopy-bt/canopy/internal/blackboard"
)

// TickFunc is the node-specific logic a Node wraps. It receives the
// context for the current activation and the Node itself, so it can read
// n.Children(), n.Client(), n.Properties(), and so on.
type TickFunc func(ctx context.Context, n *Node) (Status, error)

// SetupFunc wires node-specific resources at setup time.
type SetupFunc func(ctx context.Context, n *Node) error

// ShutdownFunc releases node-specific resources. Called at most once.
type ShutdownFunc func(n *Node)

// PreCondition gates whether the node-specific tick runs at all.
type PreCondition func(n *Node) bool

// PostCondition runs after a SUCCESS result; returning false demotes the
// result to FAILURE.
type PostCondition func(n *Node, status Status) bool

// Stats holds the monotonically-updated counters and timing data for a
// Node.
type Stats struct {
	CreatedAt       time.Time
	LastTickAt      time.Time
	TotalTicks      uint64
	SuccessCount    uint64
	FailureCount    uint64
	ErrorCount      uint64
	AverageDuration time.Duration
	LastError       error

	completedTicks uint64
	totalDuration  time.Duration
}

// Node is the common base embedded by every leaf, decorator and composite.
// It owns its children, implements the lifecycle state machine, and
// emits Events at each well-defined transition.
//
// A Node is ticked only after Setup has completed; Shutdown is idempotent
// and recurses into children; stats counters are monotonically
// non-decreasing and are only ever mutated from within Tick (single
// goroutine per node, per the scheduler's no-overlap guarantee).
type Node struct {
	id   string
	name string

	tick     TickFunc
	setup    SetupFunc
	teardown ShutdownFunc
	pre      PreCondition
	post     PostCondition

	children []*Node
	parent   *Node

	properties map[string]any

	mu         sync.Mutex
	status     Status
	isSetup    bool
	isShutdown bool
	stats      Stats
	client     *blackboard.Client

	runCtx    context.Context
	runCancel context.CancelFunc

	bus bus
}

// Option configures a Node at construction time.
type Option func(*Node)

// WithPreCondition attaches a gate checked before the node-specific tick
// runs on every activation.
func WithPreCondition(p PreCondition) Option { return func(n *Node) { n.pre = p } }

// WithPostCondition attaches a gate checked after a SUCCESS result.
func WithPostCondition(p PostCondition) Option { return func(n *Node) { n.post = p } }

// WithSetup attaches a hook run once, before children are set up.
func WithSetup(s SetupFunc) Option { return func(n *Node) { n.setup = s } }

// WithShutdown attaches a hook run once, after SHUTDOWN is emitted and
// before children are torn down.
func WithShutdown(s ShutdownFunc) Option { return func(n *Node) { n.teardown = s } }

// WithProperty sets a single entry in the node's user-defined properties
// map, used by leaves/decorators to stash descriptor-supplied config.
func WithProperty(key string, value any) Option {
	return func(n *Node) {
		if n.properties == nil {
			n.properties = make(map[string]any)
		}
		n.properties[key] = value
	}
}

// New constructs a Node wrapping tick, with the given children already
// attached (ownership transfers: a child already parented elsewhere
// panics, preventing a node from being shared by two parents).
func New(name string, tick TickFunc, children []*Node, opts ...Option) *Node {
	n := &Node{
		id:       uuid.New().String(),
		name:     name,
		tick:     tick,
		children: children,
		status:   Invalid,
		stats:    Stats{CreatedAt: time.Now()},
	}
	for _, c := range children {
		if c.parent != nil {
			panic(fmt.Sprintf("bt: node %q already has a parent, cannot attach to %q", c.name, name))
		}
		c.parent = n
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

func (n *Node) ID() string           { return n.id }
func (n *Node) Name() string         { return n.name }
func (n *Node) Parent() *Node        { return n.parent }
func (n *Node) Children() []*Node    { return n.children }
func (n *Node) Client() *blackboard.Client { return n.client }

// Property returns a descriptor-supplied property by key.
func (n *Node) Property(key string) (any, bool) {
	v, ok := n.properties[key]
	return v, ok
}

// Status returns the node's last-ticked status.
func (n *Node) Status() Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.status
}

// Stats returns a copy of the node's current statistics.
func (n *Node) Stats() Stats {
	n.mu.Lock()
	defer n.mu.Unlock()
	s := n.stats
	if s.completedTicks > 0 {
		s.AverageDuration = s.totalDuration / time.Duration(s.completedTicks)
	}
	return s
}

// Subscribe registers an Observer for this node's Events.
func (n *Node) Subscribe(o Observer) { n.bus.Subscribe(o) }

func (n *Node) emit(kind Kind, payload any) {
	n.bus.Emit(Event{Kind: kind, NodeID: n.id, NodeName: n.name, Timestamp: time.Now(), Payload: payload})
}

// Setup wires the blackboard client, runs the node-specific setup hook,
// then recurses into children. Called at most once before the first
// tick; failure aborts the tree's initialization with ErrSetupFailed.
func (n *Node) Setup(ctx context.Context, client *blackboard.Client) error {
	n.mu.Lock()
	if n.isSetup {
		n.mu.Unlock()
		return nil
	}
	n.client = client
	n.mu.Unlock()

	if n.setup != nil {
		if err := n.setup(ctx, n); err != nil {
			return fmt.Errorf("%w: node %q: %v", ErrSetupFailed, n.name, err)
		}
	}
	for _, c := range n.children {
		if err := c.Setup(ctx, client); err != nil {
			return err
		}
	}

	n.mu.Lock()
	n.isSetup = true
	n.mu.Unlock()
	n.emit(Initialized, nil)
	n.emit(Setup, nil)
	return nil
}

// Tick runs one evaluation of this node through its full lifecycle:
// preconditions, ENTERING, node-specific logic, error recovery,
// postconditions, EXITING, STATUS_CHANGED, and stats update.
func (n *Node) Tick(ctx context.Context) (Status, error) {
	n.mu.Lock()
	if !n.isSetup {
		n.mu.Unlock()
		return Failure, fmt.Errorf("bt: node %q ticked before setup", n.name)
	}
	previous := n.status
	if n.pre != nil && !n.pre(n) {
		n.status = Failure
		changed := previous != Failure
		n.mu.Unlock()
		if changed {
			n.emit(StatusChanged, Failure)
		}
		n.recordTick(Failure, 0, nil)
		return Failure, nil
	}
	n.mu.Unlock()

	n.emit(Entering, nil)

	tickCtx := n.activationContext(ctx)

	start := time.Now()
	status, err := n.invoke(tickCtx)
	duration := time.Since(start)

	if err != nil {
		logger().Error("node tick error", "node", n.name, "error", err)
		status = Error
		n.emit(ErrorEvent, err)
	} else if status == Success && n.post != nil && !n.post(n, status) {
		status = Failure
	}

	n.emit(Exiting, status)

	n.mu.Lock()
	n.status = status
	changed := previous != status
	if status.Terminal() {
		n.finishActivation()
	}
	n.mu.Unlock()

	if changed {
		n.emit(StatusChanged, status)
	}
	n.recordTick(status, duration, err)

	return status, err
}

// invoke calls the node-specific tick, recovering any panic and folding
// it into an ERROR status rather than letting it escape the tree.
func (n *Node) invoke(ctx context.Context) (status Status, err error) {
	defer func() {
		if r := recover(); r != nil {
			status = Error
			err = fmt.Errorf("%w: node %q panicked: %v", ErrTickError, n.name, r)
		}
	}()
	return n.tick(ctx, n)
}

// activationContext returns the context to hand to this tick, creating a
// fresh cancellable one on first entry into a (possibly multi-tick)
// RUNNING activation, and reusing it across subsequent RUNNING ticks so
// that Cancel() reaches whichever context the in-flight leaf is holding.
func (n *Node) activationContext(parent context.Context) context.Context {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.runCtx == nil {
		n.runCtx, n.runCancel = context.WithCancel(parent)
	}
	return n.runCtx
}

// finishActivation releases the per-activation context. Must be called
// with n.mu held.
func (n *Node) finishActivation() {
	if n.runCancel != nil {
		n.runCancel()
	}
	n.runCtx, n.runCancel = nil, nil
}

func (n *Node) recordTick(status Status, duration time.Duration, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stats.TotalTicks++
	n.stats.LastTickAt = time.Now()
	if err != nil {
		n.stats.LastError = err
	}
	switch status {
	case Success:
		n.stats.SuccessCount++
		n.stats.completedTicks++
		n.stats.totalDuration += duration
	case Failure:
		n.stats.FailureCount++
		n.stats.completedTicks++
		n.stats.totalDuration += duration
	case Error:
		n.stats.ErrorCount++
		n.stats.completedTicks++
		n.stats.totalDuration += duration
	}
}

// RestoreState forcibly overwrites status and stats, bypassing the
// normal tick lifecycle. Intended for the tree manager's snapshot
// restore path only; callers must ensure the node isn't concurrently
// ticking.
func (n *Node) RestoreState(status Status, stats Stats) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.status = status
	n.stats = stats
	n.finishActivation()
}

// Cancel requests cooperative cancellation of an in-flight RUNNING
// activation. A well-behaved leaf tick observes ctx.Done() at its next
// suspension point and returns FAILURE promptly.
func (n *Node) Cancel() {
	n.mu.Lock()
	cancel := n.runCancel
	n.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Reset sets status to INVALID and recursively resets children. Stats
// are preserved.
func (n *Node) Reset() {
	n.mu.Lock()
	n.status = Invalid
	n.finishActivation()
	n.mu.Unlock()
	for _, c := range n.children {
		c.Reset()
	}
}

// Shutdown emits SHUTDOWN, releases node-specific resources, and
// recurses into children. Idempotent: a second call is a no-op.
func (n *Node) Shutdown() {
	n.mu.Lock()
	if n.isShutdown {
		n.mu.Unlock()
		return
	}
	n.isShutdown = true
	n.finishActivation()
	n.mu.Unlock()

	n.emit(Shutdown, nil)
	if n.teardown != nil {
		n.teardown(n)
	}
	for _, c := range n.children {
		c.Shutdown()
	}
}

var defaultLogger = slog.Default()

func logger() *slog.Logger { return defaultLogger }

// SetLogger overrides the package-level logger used for node diagnostics
// (observer panics, tick errors). Intended to be called once at process
// startup.
func SetLogger(l *slog.Logger) {
	if l != nil {
		defaultLogger = l
	}
}
