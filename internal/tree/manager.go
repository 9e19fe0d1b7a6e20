// Package tree provides the Manager: it owns the root node, the
// blackboard, execution statistics, snapshot history and the subtree
// registry, and runs the scheduler loop that ticks the root at a
// configured rate.
package tree

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/canopy-bt/canopy/internal/blackboard"
	"github.com/canopy-bt/canopy/internal/bt"
)

// ExecutionContext is the execution statistics returned by Stats(),
// updated on every tick_once.
type ExecutionContext struct {
	TickCount        uint64
	TotalDuration    time.Duration
	SuccessCount     uint64
	FailureCount     uint64
	ErrorCount       uint64
	LastTickStatus   bt.Status
	LastTickDuration time.Duration
	History          []TickRecord
}

// TickRecord is one entry of the bounded tick history deque.
type TickRecord struct {
	Tick      uint64
	Status    bt.Status
	Duration  time.Duration
	Timestamp time.Time
}

type managerConfig struct {
	actor            string
	fatalOnError     bool
	historyCap       int
	snapshotEveryN   uint64
	snapshotEveryDur time.Duration
}

// ManagerOption configures a Manager at construction.
type ManagerOption func(*managerConfig)

// WithActor sets the identity the manager's blackboard client attributes
// writes to (leaves attach their own client from descriptor properties;
// this is the manager's own client, used for snapshot/internal writes).
func WithActor(actor string) ManagerOption {
	return func(c *managerConfig) { c.actor = actor }
}

// WithFatalOnError makes the scheduler loop stop on the first root tick
// that returns an error and report that error through Err(). Without it
// the loop still stops once the root reaches any terminal status, ERROR
// included, but Err() does not report the tick's error.
func WithFatalOnError(fatal bool) ManagerOption {
	return func(c *managerConfig) { c.fatalOnError = fatal }
}

// WithHistoryCap bounds the in-memory tick history deque.
func WithHistoryCap(n int) ManagerOption {
	return func(c *managerConfig) { c.historyCap = n }
}

// WithSnapshotEveryNTicks takes an automatic snapshot every n ticks (0
// disables automatic snapshotting by tick count).
func WithSnapshotEveryNTicks(n uint64) ManagerOption {
	return func(c *managerConfig) { c.snapshotEveryN = n }
}

// WithSnapshotEveryDuration takes an automatic snapshot no more often
// than d (0 disables automatic snapshotting by wall-clock time).
func WithSnapshotEveryDuration(d time.Duration) ManagerOption {
	return func(c *managerConfig) { c.snapshotEveryDur = d }
}

// Manager owns a tree's root, its blackboard, execution statistics, a
// bounded in-memory snapshot history and a subtree registry.
type Manager struct {
	cfg managerConfig

	bb     *blackboard.Blackboard
	client *blackboard.Client

	mu   sync.Mutex
	root *bt.Node
	ctx  ExecutionContext

	subtreesMu sync.Mutex
	subtrees   map[string]func() *bt.Node

	snapshotsMu    sync.Mutex
	snapshots      map[string]*Snapshot
	lastSnapshotAt time.Time

	runMu     sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	stop      chan struct{}
	stopOnce  sync.Once
	runErr    error
	runErrMu  sync.Mutex
}

// New constructs a Manager over bb, not yet holding a root.
func New(bb *blackboard.Blackboard, opts ...ManagerOption) *Manager {
	cfg := managerConfig{actor: "tree-manager", historyCap: 200}
	for _, o := range opts {
		o(&cfg)
	}
	return &Manager{
		cfg:      cfg,
		bb:       bb,
		client:   blackboard.NewClient(bb, cfg.actor),
		subtrees: make(map[string]func() *bt.Node),
		snapshots: make(map[string]*Snapshot),
	}
}

// Blackboard returns the manager's blackboard.
func (m *Manager) Blackboard() *blackboard.Blackboard { return m.bb }

// Root returns the currently installed root, or nil.
func (m *Manager) Root() *bt.Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.root
}

// SetRoot installs root as the tree to run, tearing down and replacing
// any prior root. It runs Setup on root using the manager's blackboard
// client before returning.
func (m *Manager) SetRoot(ctx context.Context, root *bt.Node) error {
	m.mu.Lock()
	prior := m.root
	m.mu.Unlock()
	if prior != nil {
		prior.Shutdown()
	}
	if err := root.Setup(ctx, m.client); err != nil {
		return err
	}
	m.mu.Lock()
	m.root = root
	m.ctx = ExecutionContext{}
	m.mu.Unlock()
	return nil
}

// RegisterSubtree records factory under name; InstantiateSubtree later
// calls factory to produce a fresh, independently-owned node graph for
// each mount point.
func (m *Manager) RegisterSubtree(name string, factory func() *bt.Node) {
	m.subtreesMu.Lock()
	defer m.subtreesMu.Unlock()
	m.subtrees[name] = factory
}

// InstantiateSubtree returns a freshly built instance of the subtree
// registered under name.
func (m *Manager) InstantiateSubtree(name string) (*bt.Node, error) {
	m.subtreesMu.Lock()
	factory, ok := m.subtrees[name]
	m.subtreesMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("tree: subtree %q not registered", name)
	}
	return factory(), nil
}

// TickOnce ticks the root once and updates the execution context.
func (m *Manager) TickOnce(ctx context.Context) (bt.Status, error) {
	m.mu.Lock()
	root := m.root
	m.mu.Unlock()
	if root == nil {
		return bt.Invalid, fmt.Errorf("tree: no root installed")
	}

	start := time.Now()
	status, err := root.Tick(ctx)
	duration := time.Since(start)

	m.mu.Lock()
	m.ctx.TickCount++
	m.ctx.TotalDuration += duration
	m.ctx.LastTickStatus = status
	m.ctx.LastTickDuration = duration
	switch status {
	case bt.Success:
		m.ctx.SuccessCount++
	case bt.Failure:
		m.ctx.FailureCount++
	case bt.Error:
		m.ctx.ErrorCount++
	}
	m.ctx.History = append(m.ctx.History, TickRecord{
		Tick: m.ctx.TickCount, Status: status, Duration: duration, Timestamp: start,
	})
	if m.cfg.historyCap > 0 && len(m.ctx.History) > m.cfg.historyCap {
		m.ctx.History = m.ctx.History[len(m.ctx.History)-m.cfg.historyCap:]
	}
	tickCount := m.ctx.TickCount
	m.mu.Unlock()

	m.maybeAutoSnapshot(tickCount)

	return status, err
}

func (m *Manager) maybeAutoSnapshot(tickCount uint64) {
	due := false
	if m.cfg.snapshotEveryN > 0 && tickCount%m.cfg.snapshotEveryN == 0 {
		due = true
	}
	if m.cfg.snapshotEveryDur > 0 {
		m.snapshotsMu.Lock()
		if time.Since(m.lastSnapshotAt) >= m.cfg.snapshotEveryDur {
			due = true
		}
		m.snapshotsMu.Unlock()
	}
	if due {
		m.TakeSnapshot()
	}
}

// Stats returns a copy of the current execution context.
func (m *Manager) Stats() ExecutionContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := m.ctx
	cp.History = append([]TickRecord(nil), m.ctx.History...)
	return cp
}

// Run starts a scheduler loop ticking the root every 1/hz seconds, in a
// background goroutine, grounded on the tickerCore pattern (time.Ticker,
// ctx cancellation, a sync.Once-guarded stop channel, panic recovery).
// It returns immediately; use Done/Err/Stop to observe and control it.
func (m *Manager) Run(ctx context.Context, hz float64) {
	if hz <= 0 {
		panic("tree: Run hz must be > 0")
	}
	runCtx, cancel := context.WithCancel(ctx)

	m.runMu.Lock()
	m.cancel = cancel
	m.done = make(chan struct{})
	m.stop = make(chan struct{})
	m.stopOnce = sync.Once{}
	done := m.done
	stop := m.stop
	m.runMu.Unlock()

	go m.loop(runCtx, cancel, done, stop, time.Duration(float64(time.Second)/hz))
}

func (m *Manager) loop(ctx context.Context, cancel context.CancelFunc, done, stop chan struct{}, period time.Duration) {
	defer close(done)
	defer cancel()
	defer m.Stop()

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var runErr error
	defer func() {
		if r := recover(); r != nil {
			runErr = fmt.Errorf("tree: scheduler panic: %v", r)
		}
		m.runErrMu.Lock()
		m.runErr = runErr
		m.runErrMu.Unlock()
	}()

	for runErr == nil {
		select {
		case <-ctx.Done():
			runErr = ctx.Err()
			return
		case <-stop:
			return
		case <-ticker.C:
			status, err := m.TickOnce(ctx)
			if err != nil && m.cfg.fatalOnError {
				runErr = err
				return
			}
			if status.Terminal() {
				return
			}
		}
	}
}

// Done closes once the scheduler loop started by Run has fully stopped.
func (m *Manager) Done() <-chan struct{} {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	return m.done
}

// Err returns the error (if any) that stopped the scheduler loop.
func (m *Manager) Err() error {
	m.runErrMu.Lock()
	defer m.runErrMu.Unlock()
	return m.runErr
}

// Stop requests the scheduler loop to exit; safe to call multiple times
// and safe to call even if Run was never called.
func (m *Manager) Stop() {
	m.runMu.Lock()
	stop := m.stop
	once := &m.stopOnce
	m.runMu.Unlock()
	if stop == nil {
		return
	}
	once.Do(func() { close(stop) })
}

func newID() string { return uuid.New().String() }
