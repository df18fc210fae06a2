package recomp

import (
	"fmt"
	"strconv"
)

// RenderFunc describes a UI subtree from current state. It runs inside a
// dynamic current-scope slot: every Cell.Get during execution registers the
// scope as a reader. RenderFuncs should be pure apart from cell reads;
// cell writes from inside a render function are legal but bounded by the
// scheduler's per-flush ceiling.
type RenderFunc func(c *Ctx) *Node

// Scope is one live invocation site of a render function in the composition
// tree: the unit of re-execution. Exactly one scope exists per (parent,
// key) pair. The parent reference is the parent's id, never an ownership
// edge - the tree is owned top-down through the children table.
type Scope struct {
	id       string
	key      string
	depth    int
	parentID string

	root *Root
	fn   RenderFunc

	dirty    bool
	detached bool
	failed   bool

	// deps holds the cells read during the last execution, keyed by cell
	// key; unregistered and re-recorded on every run so dependencies stay
	// precise rather than stale.
	deps map[string]depCell

	cells map[string]cellSlot

	children map[string]*Scope

	// result caches the subtree from the last successful execution. Child
	// scope positions appear as placeholders resolved by snapshot assembly.
	result *Node
}

func newScope(root *Root, parent *Scope, key string, fn RenderFunc) *Scope {
	sc := &Scope{
		key:      key,
		root:     root,
		fn:       fn,
		dirty:    true,
		deps:     make(map[string]depCell),
		cells:    make(map[string]cellSlot),
		children: make(map[string]*Scope),
	}
	if parent == nil {
		sc.id = key
	} else {
		sc.id = parent.id + "/" + key
		sc.depth = parent.depth + 1
		sc.parentID = parent.id
	}
	return sc
}

// ID returns the scope's stable identity: its key path from the root.
func (s *Scope) ID() string { return s.id }

// Key returns the scope's key within its parent.
func (s *Scope) Key() string { return s.key }

// Failed reports whether the scope was permanently failed by a render
// panic or a scheduling overflow.
func (s *Scope) Failed() bool { return s.failed }

// execute re-runs the scope's render function in isolation: the previous
// dependency set is cleared, reads during the run attribute to this scope,
// and child scopes not re-declared by this pass are torn down. A panic in
// the render function fails this scope only; the cached result from the
// last good pass is kept.
func (s *Scope) execute() (err error) {
	for _, cell := range s.deps {
		cell.dropReader(s.id)
	}
	s.deps = make(map[string]depCell)
	s.dirty = false

	ctx := &Ctx{root: s.root, scope: s, seen: make(map[string]bool)}
	s.root.tracker.push(s)

	defer func() {
		s.root.tracker.pop()
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: scope %s: %v", ErrScopeFailed, s.id, r)
			s.failed = true
			s.root.metrics.ScopeFailures.WithLabelValues(s.root.name).Inc()
			s.root.observer.ScopeError(s.root.name, s.id, err)
		}
	}()

	node := s.fn(ctx)

	// Drop scopes whose slot was not produced by this pass.
	for key, child := range s.children {
		if !ctx.seen[key] {
			child.teardown()
			delete(s.children, key)
		}
	}
	s.result = node
	s.root.metrics.ScopeExecutions.WithLabelValues(s.root.name).Inc()
	s.root.observer.ScopeExecuted(s.root.name, s.id)
	return nil
}

// teardown permanently removes the scope and its subtree: persistent cells
// are written back to the store, readers are detached, and descendants are
// torn down recursively.
func (s *Scope) teardown() {
	if s.detached {
		return
	}
	s.detached = true
	for _, cell := range s.deps {
		cell.dropReader(s.id)
	}
	s.deps = nil
	for _, child := range s.children {
		child.teardown()
	}
	for name, cell := range s.cells {
		if err := cell.persistTo(s.root.ctx); err != nil {
			s.root.logger.Warn("cell persistence failed on teardown",
				"scope", s.id, "cell", name, "error", err)
		}
		cell.detach()
	}
	s.cells = nil
	s.result = nil
}

// snapshot assembles the scope's pure subtree: placeholders are replaced by
// child scope snapshots and declaration-order keys are assigned to unkeyed
// nodes. The returned tree shares no structure with cached results.
func (s *Scope) snapshot() *Node {
	return resolveNode(s.result)
}

func resolveNode(n *Node) *Node {
	if n == nil {
		return nil
	}
	if n.Type == scopeNodeType && n.scope != nil {
		child := n.scope.snapshot()
		if child == nil {
			return nil
		}
		// The slot key is the child's identity in the parent's tree.
		child.Key = n.Key
		return child
	}
	out := &Node{
		Type:     n.Type,
		Key:      n.Key,
		Handlers: n.Handlers,
	}
	if n.Props != nil {
		out.Props = make(Props, len(n.Props))
		for k, v := range n.Props {
			out.Props[k] = cloneValue(v)
		}
	}
	for i, c := range n.Children {
		rc := resolveNode(c)
		if rc == nil {
			continue
		}
		if rc.Key == "" {
			rc.Key = strconv.Itoa(i)
		}
		out.Children = append(out.Children, rc)
	}
	return out
}

// collectState gathers serialized values of persistent cells in the scope
// subtree, keyed by cell key. Used by hydration serialization.
func (s *Scope) collectState(into map[string][]byte) error {
	for _, cell := range s.cells {
		key, data, persistent, err := cell.stateEntry()
		if err != nil {
			return err
		}
		if persistent {
			into[key] = data
		}
	}
	for _, child := range s.children {
		if err := child.collectState(into); err != nil {
			return err
		}
	}
	return nil
}

// Ctx is passed to render functions: it binds the execution to its scope
// for state declaration and child scope composition.
type Ctx struct {
	root  *Root
	scope *Scope
	seen  map[string]bool
}

// Root returns the composition root this execution belongs to.
func (c *Ctx) Root() *Root { return c.root }

// Scope declares a child composition site. The first execution at a key
// creates the child scope; later executions reuse it, re-running it only
// when it is dirty. The returned node is a placeholder spliced with the
// child's live output during snapshot assembly, so a child re-render
// updates the tree without re-running this parent.
//
// Declaring the same key twice in one pass is a contract violation and
// panics, mirroring one-scope-per-(parent,key) ownership.
func (c *Ctx) Scope(key string, fn RenderFunc) *Node {
	if c.seen[key] {
		panic(fmt.Sprintf("recomp: duplicate scope key %q under %s", key, c.scope.id))
	}
	c.seen[key] = true

	child, ok := c.scope.children[key]
	if !ok {
		child = newScope(c.root, c.scope, key, fn)
		c.scope.children[key] = child
	}
	child.fn = fn

	if child.dirty {
		if err := child.execute(); err != nil {
			c.root.logger.Error("child scope failed", "scope", child.id, "error", err)
		}
	}
	return &Node{Type: scopeNodeType, Key: key, scope: child}
}
