package recomp

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
)

// Cell is a single observable mutable value: the unit of dependency
// tracking. Cells are created the first time a render function declares
// them at a composition slot, survive re-executions of the same scope, and
// are torn down with their owning scope.
//
// Cells are exclusively owned by their declaring scope and follow the
// root's single-threaded discipline: Get and Set must run on the root's
// logical thread (inside render functions, handlers, or Root.Do work).
type Cell[T any] struct {
	root    *Root
	scope   *Scope
	name    string
	value   T
	version uint64
	eq      func(a, b T) bool
	persist bool

	// readers is cleared on every invalidation; scopes re-register on
	// their next execution, keeping dependencies precise rather than stale.
	readers map[string]*Scope
}

// CellOption configures a cell at declaration time.
type CellOption[T any] func(*Cell[T])

// WithEquals overrides the cell's value-equality predicate. The default is
// reflect.DeepEqual; prefer a cheap comparison for large values.
func WithEquals[T any](eq func(a, b T) bool) CellOption[T] {
	return func(c *Cell[T]) { c.eq = eq }
}

// WithPersist marks the cell for the persistence registry: its value is
// written to the root's store on teardown and seeds the cell on recreation.
// Persistent cells are also the ones carried in a hydration context's
// state data. The value must be JSON-marshalable.
func WithPersist[T any]() CellOption[T] {
	return func(c *Cell[T]) { c.persist = true }
}

// State declares (or retrieves) the cell named name in the executing scope.
// On first declaration the initial value is seeded, in priority order, from
// the root's hydration state data, then the persistence store, then the
// given initial value. Subsequent declarations at the same slot return the
// surviving cell; declaring the same name with a different value type is a
// programming error and panics.
func State[T any](c *Ctx, name string, initial T, opts ...CellOption[T]) *Cell[T] {
	sc := c.scope
	if existing, ok := sc.cells[name]; ok {
		cell, ok := existing.(*Cell[T])
		if !ok {
			panic(fmt.Sprintf("recomp: cell %q in scope %s redeclared with a different type", name, sc.id))
		}
		return cell
	}

	cell := &Cell[T]{
		root:    c.root,
		scope:   sc,
		name:    name,
		value:   initial,
		eq:      func(a, b T) bool { return reflect.DeepEqual(a, b) },
		readers: make(map[string]*Scope),
	}
	for _, opt := range opts {
		opt(cell)
	}
	cell.seed()
	sc.cells[name] = cell
	return cell
}

// Key returns the cell's stable identity: scope id and cell name. State
// data and persistence entries are keyed by it.
func (c *Cell[T]) Key() string {
	return c.scope.id + "/" + c.name
}

// Get returns the current value. When a render scope is actively executing,
// that scope is registered as a reader; outside of execution it is a plain
// read with no side effect. A detached cell (its owning scope was torn
// down) also reads as a plain value: a retained handle can never
// re-invalidate anything.
func (c *Cell[T]) Get() T {
	if sc := c.root.tracker.current(); sc != nil && c.readers != nil {
		c.readers[sc.id] = sc
		sc.deps[c.Key()] = c
	}
	return c.value
}

// Peek returns the current value without registering a dependency, even
// inside an executing scope.
func (c *Cell[T]) Peek() T {
	return c.value
}

// Version returns the cell's write version. Equal-value writes do not bump
// it.
func (c *Cell[T]) Version() uint64 {
	return c.version
}

// Set writes a new value. A value equal to the current one (per the cell's
// equality predicate) is a no-op: no version bump, no invalidation.
// Otherwise every registered reader scope is enqueued for the next flush
// and the reader set is cleared. In BatchImmediate mode the write triggers
// a flush unless one is already running.
func (c *Cell[T]) Set(value T) {
	if c.root.closed {
		return
	}
	if c.eq(c.value, value) {
		c.root.metrics.CellWrites.WithLabelValues(c.root.name, "noop").Inc()
		return
	}
	c.value = value
	c.version++
	c.root.metrics.CellWrites.WithLabelValues(c.root.name, "applied").Inc()
	c.invalidateReaders()
	c.root.maybeFlush()
}

// Update applies fn to the current value and writes the result. Shorthand
// for Set(fn(Peek())).
func (c *Cell[T]) Update(fn func(T) T) {
	c.Set(fn(c.value))
}

func (c *Cell[T]) invalidateReaders() {
	if c.readers == nil {
		return
	}
	for _, sc := range c.readers {
		if sc.detached || sc.failed {
			continue
		}
		c.root.sched.enqueue(sc)
	}
	// Readers re-register on their next execution.
	c.readers = make(map[string]*Scope)
}

// seed consults the hydration state data, then the persistence store, for
// a previously serialized value for this cell's key.
func (c *Cell[T]) seed() {
	key := c.Key()
	if raw, ok := c.root.seed[key]; ok {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			c.value = v
			return
		}
		c.root.logger.Warn("discarding unreadable hydration seed", "cell", key)
	}
	if !c.persist || c.root.store == nil {
		return
	}
	data, err := c.root.store.Get(c.root.ctx, key)
	if err != nil {
		return
	}
	var v T
	if err := json.Unmarshal(data, &v); err == nil {
		c.value = v
	}
}

// cellSlot is the type-erased view of a Cell the scope table holds.
type cellSlot interface {
	stateEntry() (key string, data json.RawMessage, persistent bool, err error)
	persistTo(ctx context.Context) error
	detach()
}

// depCell lets a scope unregister itself from cells it read on a previous
// execution but not the latest one. Without this, a conditional read would
// leave a stale reader behind and a later write would re-invalidate a scope
// that no longer depends on the cell.
type depCell interface {
	dropReader(scopeID string)
}

func (c *Cell[T]) dropReader(scopeID string) {
	delete(c.readers, scopeID)
}

func (c *Cell[T]) stateEntry() (string, json.RawMessage, bool, error) {
	data, err := json.Marshal(c.value)
	return c.Key(), data, c.persist, err
}

func (c *Cell[T]) persistTo(ctx context.Context) error {
	if !c.persist || c.root.store == nil {
		return nil
	}
	data, err := json.Marshal(c.value)
	if err != nil {
		return fmt.Errorf("persist cell %s: %w", c.Key(), err)
	}
	return c.root.store.Set(ctx, c.Key(), data)
}

func (c *Cell[T]) detach() {
	c.readers = nil
}
