package treeconfig

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/canopy-bt/canopy/internal/blackboard"
	"github.com/canopy-bt/canopy/internal/bt"
	"github.com/canopy-bt/canopy/internal/composite"
	"github.com/canopy-bt/canopy/internal/decorator"
	"github.com/canopy-bt/canopy/internal/leaf"
)

// Registry supplies the native Go/JS bodies a descriptor can't carry
// inline: named action and condition functions, event publishers, and
// subtree templates for register_subtree/instantiate_subtree. A
// zero-value Registry is usable for descriptors that only exercise
// declarative ConditionNode comparisons and blackboard leaves.
type Registry struct {
	Actions    map[string]func(args []any) leaf.ActionFunc
	Conditions map[string]func(args []any) leaf.ConditionFunc
	Publishers map[string]leaf.Publisher
	Subtrees   map[string]*Descriptor

	// CompileJSAction/CompileJSCondition compile an inline JS "body"
	// property into a native leaf func, normally wired by cmd/canopy to
	// internal/script. Left nil, a descriptor carrying "body" fails
	// validation instead of silently falling back to a no-op.
	CompileJSAction    func(body string) (leaf.ActionFunc, error)
	CompileJSCondition func(body string) (leaf.ConditionFunc, error)
}

type buildState struct {
	reg         *Registry
	seenNames   map[string]struct{}
	subtreePath map[string]struct{}
}

// Build validates and constructs the *bt.Node graph rooted at d, using
// reg to resolve named functions, publishers and subtree templates.
// Duplicate node names and subtree reference cycles are rejected before
// any node is constructed for the offending subgraph.
func Build(d *Descriptor, reg *Registry) (*bt.Node, error) {
	if reg == nil {
		reg = &Registry{}
	}
	st := &buildState{
		reg:         reg,
		seenNames:   make(map[string]struct{}),
		subtreePath: make(map[string]struct{}),
	}
	return st.build(d)
}

func (st *buildState) build(d *Descriptor) (*bt.Node, error) {
	if d.Name == "" {
		return nil, fmt.Errorf("%w: node missing name", ErrConfigInvalid)
	}
	if _, dup := st.seenNames[d.Name]; dup {
		return nil, fmt.Errorf("%w: duplicate node name %q", ErrConfigInvalid, d.Name)
	}
	st.seenNames[d.Name] = struct{}{}

	switch d.Type {
	case "Sequence":
		return st.buildSequenceLike(d, composite.Sequence)
	case "Selector":
		return st.buildSequenceLike(d, composite.Selector)
	case "ReactiveSequence":
		return st.buildChildren(d, func(children []*bt.Node) *bt.Node { return composite.ReactiveSequence(d.Name, children...) })
	case "ReactiveSelector":
		return st.buildChildren(d, func(children []*bt.Node) *bt.Node { return composite.ReactiveSelector(d.Name, children...) })
	case "RandomSelector":
		return st.buildChildren(d, func(children []*bt.Node) *bt.Node { return composite.RandomSelector(d.Name, children...) })
	case "Parallel":
		return st.buildParallel(d)

	case "Inverter":
		return st.buildSingleChild(d, decorator.Inverter)
	case "ForceSuccess":
		return st.buildSingleChild(d, decorator.ForceSuccess)
	case "ForceFailure":
		return st.buildSingleChild(d, decorator.ForceFailure)
	case "Repeat":
		return st.buildRepeat(d)
	case "Retry":
		return st.buildRetry(d)
	case "Timeout":
		return st.buildTimeoutDecorator(d)
	case "Cooldown":
		return st.buildCooldown(d)

	case "Action":
		return st.buildAction(d)
	case "Condition":
		return st.buildCondition(d)
	case "TimedCondition":
		return st.buildTimedCondition(d)
	case "Wait":
		return st.buildWait(d)
	case "Throttle":
		return st.buildThrottle(d)
	case "DebugLog":
		return st.buildDebugLog(d)
	case "EventEmit":
		return st.buildEventEmit(d)
	case "BlackboardSet":
		return st.buildBlackboardSet(d)
	case "BlackboardDelete":
		return st.buildBlackboardDelete(d)

	case "Subtree":
		return st.buildSubtree(d)
	}
	return nil, fmt.Errorf("%w: unknown node type %q for %q", ErrConfigInvalid, d.Type, d.Name)
}

func (st *buildState) buildChildrenNodes(d *Descriptor) ([]*bt.Node, error) {
	children := make([]*bt.Node, 0, len(d.Children))
	for i := range d.Children {
		c, err := st.build(&d.Children[i])
		if err != nil {
			return nil, err
		}
		children = append(children, c)
	}
	return children, nil
}

func (st *buildState) buildChildren(d *Descriptor, ctor func([]*bt.Node) *bt.Node) (*bt.Node, error) {
	children, err := st.buildChildrenNodes(d)
	if err != nil {
		return nil, err
	}
	if len(children) == 0 {
		return nil, fmt.Errorf("%w: %q requires at least one child", ErrConfigInvalid, d.Name)
	}
	return ctor(children), nil
}

func (st *buildState) buildSequenceLike(d *Descriptor, ctor func(string, composite.MemoryPolicy, ...*bt.Node) *bt.Node) (*bt.Node, error) {
	policy, err := memoryPolicyProperty(*d)
	if err != nil {
		return nil, err
	}
	children, err := st.buildChildrenNodes(d)
	if err != nil {
		return nil, err
	}
	if len(children) == 0 {
		return nil, fmt.Errorf("%w: %q requires at least one child", ErrConfigInvalid, d.Name)
	}
	return ctor(d.Name, policy, children...), nil
}

func memoryPolicyProperty(d Descriptor) (composite.MemoryPolicy, error) {
	s, ok := d.stringProperty("memory_policy")
	if !ok {
		return composite.Persistent, nil
	}
	switch s {
	case "PERSISTENT":
		return composite.Persistent, nil
	case "FRESH":
		return composite.Fresh, nil
	}
	return 0, fmt.Errorf("%w: %q has unrecognized memory_policy %q", ErrConfigInvalid, d.Name, s)
}

func (st *buildState) buildParallel(d *Descriptor) (*bt.Node, error) {
	policyName, _ := d.stringProperty("policy")
	var policy composite.ParallelPolicy
	switch policyName {
	case "", "REQUIRE_ALL":
		policy = composite.RequireAll
	case "REQUIRE_ONE":
		policy = composite.RequireOne
	case "SEQUENCE_STAR":
		policy = composite.SequenceStar
	case "SELECTOR_STAR":
		policy = composite.SelectorStar
	default:
		return nil, fmt.Errorf("%w: %q has unrecognized parallel policy %q", ErrConfigInvalid, d.Name, policyName)
	}

	children, err := st.buildChildrenNodes(d)
	if err != nil {
		return nil, err
	}
	if len(children) == 0 {
		return nil, fmt.Errorf("%w: %q requires at least one child", ErrConfigInvalid, d.Name)
	}

	var opts []composite.ParallelOption
	if n, ok := d.intProperty("success_threshold"); ok {
		opts = append(opts, composite.WithSuccessThreshold(n))
	}
	if n, ok := d.intProperty("failure_threshold"); ok {
		opts = append(opts, composite.WithFailureThreshold(n))
	}
	if b, ok := d.boolProperty("synchronized"); ok {
		opts = append(opts, composite.WithSynchronized(b))
	}
	return composite.Parallel(d.Name, policy, children, opts...), nil
}

func (st *buildState) buildSingleChild(d *Descriptor, ctor func(string, *bt.Node) *bt.Node) (*bt.Node, error) {
	child, err := st.requireOneChild(d)
	if err != nil {
		return nil, err
	}
	return ctor(d.Name, child), nil
}

func (st *buildState) requireOneChild(d *Descriptor) (*bt.Node, error) {
	if len(d.Children) != 1 {
		return nil, fmt.Errorf("%w: %q requires exactly one child, got %d", ErrConfigInvalid, d.Name, len(d.Children))
	}
	return st.build(&d.Children[0])
}

func (st *buildState) buildRepeat(d *Descriptor) (*bt.Node, error) {
	count, ok := d.intProperty("count")
	if !ok {
		return nil, fmt.Errorf("%w: %q (Repeat) requires count", ErrConfigInvalid, d.Name)
	}
	child, err := st.requireOneChild(d)
	if err != nil {
		return nil, err
	}
	return decorator.Repeat(d.Name, count, child), nil
}

func (st *buildState) buildRetry(d *Descriptor) (*bt.Node, error) {
	maxAttempts, ok := d.intProperty("max_attempts")
	if !ok {
		return nil, fmt.Errorf("%w: %q (Retry) requires max_attempts", ErrConfigInvalid, d.Name)
	}
	delay, err := secondsProperty(*d, "delay", false)
	if err != nil {
		return nil, err
	}
	child, err := st.requireOneChild(d)
	if err != nil {
		return nil, err
	}
	return decorator.Retry(d.Name, maxAttempts, delay, child), nil
}

func (st *buildState) buildTimeoutDecorator(d *Descriptor) (*bt.Node, error) {
	limit, err := secondsProperty(*d, "timeout", true)
	if err != nil {
		return nil, err
	}
	child, err := st.requireOneChild(d)
	if err != nil {
		return nil, err
	}
	return decorator.Timeout(d.Name, limit, child), nil
}

func (st *buildState) buildCooldown(d *Descriptor) (*bt.Node, error) {
	window, err := secondsProperty(*d, "cooldown", true)
	if err != nil {
		return nil, err
	}
	child, err := st.requireOneChild(d)
	if err != nil {
		return nil, err
	}
	return decorator.Cooldown(d.Name, window, child), nil
}

func secondsProperty(d Descriptor, name string, required bool) (time.Duration, error) {
	f, ok := d.floatProperty(name)
	if !ok {
		if required {
			return 0, fmt.Errorf("%w: %q requires %s", ErrConfigInvalid, d.Name, name)
		}
		return 0, nil
	}
	return time.Duration(f * float64(time.Second)), nil
}

func (st *buildState) resolveArgs(d Descriptor) []any {
	v, ok := d.property("args")
	if !ok {
		return nil
	}
	args, _ := v.([]any)
	return args
}

func (st *buildState) buildAction(d *Descriptor) (*bt.Node, error) {
	fn, err := st.resolveActionFunc(*d)
	if err != nil {
		return nil, err
	}
	var opts []leaf.ActionOption
	if timeout, err := secondsProperty(*d, "timeout", false); err != nil {
		return nil, err
	} else if timeout > 0 {
		opts = append(opts, leaf.WithTimeout(timeout))
	}
	if n, ok := d.intProperty("retry_count"); ok {
		opts = append(opts, leaf.WithRetryCount(n))
	}
	return leaf.NewAction(d.Name, fn, opts...), nil
}

func (st *buildState) resolveActionFunc(d Descriptor) (leaf.ActionFunc, error) {
	if body, ok := d.stringProperty("body"); ok {
		if st.reg.CompileJSAction == nil {
			return nil, fmt.Errorf("%w: %q carries a JS body but no CompileJSAction is wired", ErrConfigInvalid, d.Name)
		}
		return st.reg.CompileJSAction(body)
	}
	key := d.Name
	if name, ok := d.stringProperty("func"); ok {
		key = name
	}
	maker, ok := st.reg.Actions[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q references unregistered action func %q", ErrConfigInvalid, d.Name, key)
	}
	return maker(st.resolveArgs(d)), nil
}

var comparisonOperators = map[string]struct{}{
	"==": {}, "!=": {}, "<": {}, "<=": {}, ">": {}, ">=": {},
}

func (st *buildState) buildCondition(d *Descriptor) (*bt.Node, error) {
	if body, ok := d.stringProperty("body"); ok {
		if st.reg.CompileJSCondition == nil {
			return nil, fmt.Errorf("%w: %q carries a JS body but no CompileJSCondition is wired", ErrConfigInvalid, d.Name)
		}
		fn, err := st.reg.CompileJSCondition(body)
		if err != nil {
			return nil, err
		}
		return leaf.NewCondition(d.Name, fn), nil
	}
	if expression, ok := d.stringProperty("expression"); ok {
		namespace, _ := d.stringProperty("namespace")
		return leaf.NewExprCondition(d.Name, namespace, expression), nil
	}
	if name, ok := d.stringProperty("func"); ok {
		maker, ok := st.reg.Conditions[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q references unregistered condition func %q", ErrConfigInvalid, d.Name, name)
		}
		return leaf.NewCondition(d.Name, maker(st.resolveArgs(*d))), nil
	}
	return st.buildDeclarativeCondition(d)
}

func (st *buildState) buildDeclarativeCondition(d *Descriptor) (*bt.Node, error) {
	key, ok := d.stringProperty("blackboard_key")
	if !ok {
		return nil, fmt.Errorf("%w: %q (Condition) requires blackboard_key, func, expression or body", ErrConfigInvalid, d.Name)
	}
	namespace, _ := d.stringProperty("namespace")
	operator, ok := d.stringProperty("operator")
	if !ok {
		return nil, fmt.Errorf("%w: %q requires operator", ErrConfigInvalid, d.Name)
	}
	if _, ok := comparisonOperators[operator]; !ok {
		return nil, fmt.Errorf("%w: %q has unrecognized operator %q", ErrConfigInvalid, d.Name, operator)
	}
	expected, _ := d.property("expected_value")

	fn := func(c *blackboard.Client) (bool, error) {
		actual, err := c.Get(namespace, key)
		if err != nil {
			return false, err
		}
		return compareValues(actual, expected, operator)
	}
	return leaf.NewCondition(d.Name, fn), nil
}

func compareValues(actual, expected any, operator string) (bool, error) {
	if operator == "==" || operator == "!=" {
		eq := actual == expected
		if af, aok := toFloat(actual); aok {
			if ef, eok := toFloat(expected); eok {
				eq = af == ef
			}
		}
		if operator == "==" {
			return eq, nil
		}
		return !eq, nil
	}

	af, aok := toFloat(actual)
	ef, eok := toFloat(expected)
	if !aok || !eok {
		return false, fmt.Errorf("%w: operator %q requires numeric operands, got %T and %T", ErrConfigInvalid, operator, actual, expected)
	}
	switch operator {
	case "<":
		return af < ef, nil
	case "<=":
		return af <= ef, nil
	case ">":
		return af > ef, nil
	case ">=":
		return af >= ef, nil
	}
	return false, fmt.Errorf("%w: unrecognized operator %q", ErrConfigInvalid, operator)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func (st *buildState) buildTimedCondition(d *Descriptor) (*bt.Node, error) {
	window, err := secondsProperty(*d, "window", true)
	if err != nil {
		return nil, err
	}
	fn, err := st.resolveConditionFunc(*d)
	if err != nil {
		return nil, err
	}
	return leaf.NewTimedCondition(d.Name, fn, window), nil
}

func (st *buildState) resolveConditionFunc(d Descriptor) (leaf.ConditionFunc, error) {
	if expression, ok := d.stringProperty("expression"); ok {
		namespace, _ := d.stringProperty("namespace")
		return leaf.ExprConditionFunc(namespace, expression), nil
	}
	if name, ok := d.stringProperty("func"); ok {
		maker, ok := st.reg.Conditions[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q references unregistered condition func %q", ErrConfigInvalid, d.Name, name)
		}
		return maker(st.resolveArgs(d)), nil
	}
	key, ok := d.stringProperty("blackboard_key")
	if !ok {
		return nil, fmt.Errorf("%w: %q (TimedCondition) requires blackboard_key or func or expression", ErrConfigInvalid, d.Name)
	}
	namespace, _ := d.stringProperty("namespace")
	operator, ok := d.stringProperty("operator")
	if !ok {
		return nil, fmt.Errorf("%w: %q requires operator", ErrConfigInvalid, d.Name)
	}
	expected, _ := d.property("expected_value")
	return func(c *blackboard.Client) (bool, error) {
		actual, err := c.Get(namespace, key)
		if err != nil {
			return false, err
		}
		return compareValues(actual, expected, operator)
	}, nil
}

func (st *buildState) buildWait(d *Descriptor) (*bt.Node, error) {
	duration, err := secondsProperty(*d, "duration", true)
	if err != nil {
		return nil, err
	}
	return leaf.NewWait(d.Name, duration), nil
}

func (st *buildState) buildThrottle(d *Descriptor) (*bt.Node, error) {
	interval, err := secondsProperty(*d, "interval", true)
	if err != nil {
		return nil, err
	}
	sticky, _ := d.boolProperty("sticky")
	fn, err := st.resolveActionFunc(*d)
	if err != nil {
		return nil, err
	}
	return leaf.NewThrottle(d.Name, interval, sticky, fn), nil
}

func (st *buildState) buildDebugLog(d *Descriptor) (*bt.Node, error) {
	message, _ := d.stringProperty("message")
	level := slog.LevelInfo
	if s, ok := d.stringProperty("level"); ok {
		switch s {
		case "DEBUG":
			level = slog.LevelDebug
		case "WARN":
			level = slog.LevelWarn
		case "ERROR":
			level = slog.LevelError
		}
	}
	return leaf.NewDebugLog(d.Name, level, message), nil
}

func (st *buildState) buildEventEmit(d *Descriptor) (*bt.Node, error) {
	eventName, ok := d.stringProperty("event_name")
	if !ok {
		return nil, fmt.Errorf("%w: %q (EventEmit) requires event_name", ErrConfigInvalid, d.Name)
	}
	payload, _ := d.property("payload")
	var publish leaf.Publisher
	if name, ok := d.stringProperty("publisher"); ok {
		publish, ok = st.reg.Publishers[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q references unregistered publisher %q", ErrConfigInvalid, d.Name, name)
		}
	}
	return leaf.NewEventEmit(d.Name, eventName, payload, publish), nil
}

func (st *buildState) buildBlackboardSet(d *Descriptor) (*bt.Node, error) {
	key, ok := d.stringProperty("key")
	if !ok {
		return nil, fmt.Errorf("%w: %q (BlackboardSet) requires key", ErrConfigInvalid, d.Name)
	}
	namespace, _ := d.stringProperty("namespace")
	value, _ := d.property("value")
	return leaf.NewBlackboardSet(d.Name, namespace, key, value), nil
}

func (st *buildState) buildBlackboardDelete(d *Descriptor) (*bt.Node, error) {
	key, ok := d.stringProperty("key")
	if !ok {
		return nil, fmt.Errorf("%w: %q (BlackboardDelete) requires key", ErrConfigInvalid, d.Name)
	}
	namespace, _ := d.stringProperty("namespace")
	return leaf.NewBlackboardDelete(d.Name, namespace, key), nil
}

func (st *buildState) buildSubtree(d *Descriptor) (*bt.Node, error) {
	name, ok := d.stringProperty("name")
	if !ok {
		return nil, fmt.Errorf("%w: %q (Subtree) requires a name property", ErrConfigInvalid, d.Name)
	}
	if _, cycling := st.subtreePath[name]; cycling {
		return nil, fmt.Errorf("%w: %q -> %q", ErrSubtreeCycle, d.Name, name)
	}
	tmpl, ok := st.reg.Subtrees[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSubtree, name)
	}
	st.subtreePath[name] = struct{}{}
	defer delete(st.subtreePath, name)
	return st.build(tmpl)
}
