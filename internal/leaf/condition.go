package leaf

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/canopy-bt/canopy/internal/blackboard"
	"github.com/canopy-bt/canopy/internal/bt"
)

// ConditionFunc evaluates a boolean predicate against the blackboard. It
// must not block; use an ActionNode for anything that may need to wait.
type ConditionFunc func(c *blackboard.Client) (bool, error)

// NewCondition wraps fn as a ConditionNode: SUCCESS when fn reports true,
// FAILURE otherwise, ERROR if fn returns an error.
func NewCondition(name string, fn ConditionFunc) *bt.Node {
	tick := func(_ context.Context, n *bt.Node) (bt.Status, error) {
		ok, err := fn(n.Client())
		if err != nil {
			return bt.Error, err
		}
		if ok {
			return bt.Success, nil
		}
		return bt.Failure, nil
	}
	return bt.New(name, tick, nil)
}

// defaultExprCacheSize bounds the number of compiled expr-lang programs
// kept in memory.
const defaultExprCacheSize = 1000

// exprLRUCache is a bounded LRU cache of compiled expr-lang programs
// (container/list + map, hit/miss counters, evict-from-back-on-overflow).
// A single process-wide instance, sharedExprCache, serves every
// expression condition; SetExprCacheSize resizes it.
type exprLRUCache struct {
	mu        sync.Mutex
	cache     map[string]*list.Element
	lru       *list.List
	maxSize   int
	hitCount  int64
	missCount int64
}

type exprCacheEntry struct {
	expression string
	program    *vm.Program
}

func newExprLRUCache(maxSize int) *exprLRUCache {
	if maxSize < 1 {
		maxSize = defaultExprCacheSize
	}
	return &exprLRUCache{
		cache:   make(map[string]*list.Element, maxSize),
		lru:     list.New(),
		maxSize: maxSize,
	}
}

func (c *exprLRUCache) get(expression string) (*vm.Program, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.cache[expression]
	if !ok {
		c.missCount++
		return nil, false
	}
	c.hitCount++
	if elem != c.lru.Front() {
		c.lru.MoveToFront(elem)
	}
	return elem.Value.(*exprCacheEntry).program, true
}

func (c *exprLRUCache) put(expression string, program *vm.Program) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.cache[expression]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*exprCacheEntry).program = program
		return
	}
	elem := c.lru.PushFront(&exprCacheEntry{expression: expression, program: program})
	c.cache[expression] = elem
	for c.lru.Len() > c.maxSize {
		back := c.lru.Back()
		if back == nil {
			break
		}
		delete(c.cache, back.Value.(*exprCacheEntry).expression)
		c.lru.Remove(back)
	}
}

// sharedExprCache is the process-wide cache used by NewExprCondition and
// ExprConditionFunc.
var sharedExprCache = newExprLRUCache(defaultExprCacheSize)

// exprEnv is the environment exposed to a condition expression: the
// condition's namespace name, plus a Get(namespace, key) accessor that
// reads through the node's client (nil when the key is absent or access
// is denied). Blackboard keys are not bound as variables by name.
type exprEnv struct {
	Namespace string
	Get       func(namespace, key string) any
}

// NewExprCondition builds a ConditionNode whose predicate is an
// expr-lang expression evaluated against a single blackboard namespace,
// compiled once and cached thereafter, against this module's own
// Blackboard/Client.
func NewExprCondition(name, namespace, expression string) *bt.Node {
	tick := func(_ context.Context, n *bt.Node) (bt.Status, error) {
		ok, err := evalExprCondition(namespace, expression, n.Client())
		if err != nil {
			return bt.Error, err
		}
		if ok {
			return bt.Success, nil
		}
		return bt.Failure, nil
	}
	return bt.New(name, tick, nil)
}

// ExprConditionFunc adapts an expr-lang expression to a bare
// ConditionFunc, for callers (such as treeconfig's TimedCondition
// builder) that need the predicate itself rather than a wrapping node.
func ExprConditionFunc(namespace, expression string) ConditionFunc {
	return func(c *blackboard.Client) (bool, error) {
		return evalExprCondition(namespace, expression, c)
	}
}

func evalExprCondition(namespace, expression string, client *blackboard.Client) (bool, error) {
	program, err := getOrCompileProgram(expression)
	if err != nil {
		return false, fmt.Errorf("bt: compile expression %q: %w", expression, err)
	}
	env := exprEnv{
		Namespace: namespace,
		Get: func(ns, key string) any {
			return client.GetOr(ns, key, nil)
		},
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("bt: evaluate expression %q: %w", expression, err)
	}
	ok, isBool := result.(bool)
	if !isBool {
		return false, fmt.Errorf("bt: expression %q did not evaluate to a bool, got %T", expression, result)
	}
	return ok, nil
}

func getOrCompileProgram(expression string) (*vm.Program, error) {
	if program, ok := sharedExprCache.get(expression); ok {
		return program, nil
	}
	program, err := expr.Compile(expression, expr.Env(exprEnv{}), expr.AsBool())
	if err != nil {
		return nil, err
	}
	sharedExprCache.put(expression, program)
	return program, nil
}

// SetExprCacheSize resizes the shared compiled-expression cache used by
// NewExprCondition.
func SetExprCacheSize(size int) {
	if size < 1 {
		size = 1
	}
	sharedExprCache.mu.Lock()
	sharedExprCache.maxSize = size
	for sharedExprCache.lru.Len() > size {
		back := sharedExprCache.lru.Back()
		if back == nil {
			break
		}
		delete(sharedExprCache.cache, back.Value.(*exprCacheEntry).expression)
		sharedExprCache.lru.Remove(back)
	}
	sharedExprCache.mu.Unlock()
}
