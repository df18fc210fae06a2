package recomp

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/calder-ui/recomp/persist"
)

// Root is one composition root: it owns the dependency tracker, the
// scheduler, the scope tree and the collaborator wiring for a single
// logical thread of control. Server-side rendering creates one Root per
// request; roots never share state cells.
//
// All methods except Do must run on the root's logical thread.
type Root struct {
	name string
	id   string
	ctx  context.Context

	logger   *slog.Logger
	observer Observer
	metrics  *Metrics
	store    persist.Store
	seed     map[string]json.RawMessage

	tracker tracker
	sched   *scheduler
	scope   *Scope

	wake func()

	inboxMu sync.Mutex
	inbox   []func()

	mounted bool
	closed  bool
}

// NewRoot creates a composition root named name whose tree is described by
// fn. The name labels metrics and log records and prefixes scope ids.
func NewRoot(name string, fn RenderFunc, opts ...Option) *Root {
	o := options{
		mode:     BatchImmediate,
		logger:   slog.Default(),
		observer: NopObserver{},
		ctx:      context.Background(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = NewMetrics()
	}

	r := &Root{
		name:     name,
		id:       uuid.NewString(),
		ctx:      o.ctx,
		logger:   o.logger.With("root", name),
		observer: o.observer,
		metrics:  o.metrics,
		store:    o.store,
		seed:     o.seed,
		wake:     o.wake,
	}
	r.sched = newScheduler(r, o.mode, o.maxPasses)
	r.scope = newScope(r, nil, name, fn)
	return r
}

// Name returns the root's name.
func (r *Root) Name() string { return r.name }

// ID returns the root's unique instance id.
func (r *Root) ID() string { return r.id }

// Mount runs the initial composition pass and returns the resulting
// snapshot. Mount is idempotent: a second call returns the current tree.
func (r *Root) Mount() (*Node, error) {
	if r.closed {
		return nil, ErrRootClosed
	}
	if r.mounted {
		return r.Tree(), nil
	}
	r.mounted = true
	r.sched.enqueue(r.scope)
	if err := r.Flush(); err != nil {
		return r.Tree(), err
	}
	return r.Tree(), nil
}

// Tree assembles the current component tree snapshot: a pure value tree
// with child scope output spliced in and declaration-order keys assigned.
// Returns nil before Mount.
func (r *Root) Tree() *Node {
	if r.scope == nil {
		return nil
	}
	return r.scope.snapshot()
}

// Flush drains posted work and executes all pending invalidated scopes as
// one recomposition pass. In BatchImmediate mode writes flush themselves;
// Flush is then only needed to drain Do work.
func (r *Root) Flush() error {
	if r.closed {
		return ErrRootClosed
	}
	r.drainInbox()
	return r.sched.flush()
}

// Do posts work onto the root's logical thread. It is the only method safe
// to call from other goroutines: an asynchronous value resolving elsewhere
// posts a closure that writes its cell, which then invalidates readers
// exactly like any state write. The work runs at the start of the next
// flush; a wake hook, if configured, is invoked to schedule one.
func (r *Root) Do(fn func()) {
	r.inboxMu.Lock()
	r.inbox = append(r.inbox, fn)
	wake := r.wake
	r.inboxMu.Unlock()
	if wake != nil {
		wake()
	}
}

func (r *Root) drainInbox() {
	r.inboxMu.Lock()
	fns := r.inbox
	r.inbox = nil
	r.inboxMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// maybeFlush runs a flush after a write in BatchImmediate mode. Writes made
// while a flush is running are folded into that flush's next round instead.
func (r *Root) maybeFlush() {
	if r.sched.mode != BatchImmediate || r.sched.flushing {
		return
	}
	r.drainInbox()
	if err := r.sched.flush(); err != nil {
		r.logger.Error("flush failed", "error", err)
	}
}

// Close tears down the scope tree, writing persistent cells back to the
// store. Further operations return ErrRootClosed.
func (r *Root) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.scope.teardown()
	return nil
}
