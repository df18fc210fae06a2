// Package recomp is a reactive composition runtime for server-rendered Go
// applications: render functions describe a UI tree from current state, the
// runtime tracks which state each render function read, and re-invokes only
// the affected functions when that state changes. A tree rendered on a
// server can later be adopted by a client composition pass through the
// hydration protocol instead of being discarded and rebuilt.
//
// # Core Concepts
//
// A composition starts at a Root, which owns everything for one logical
// thread of control (one UI loop, or one server request - roots are never
// shared across requests):
//
//	root := recomp.NewRoot("app", func(c *recomp.Ctx) *recomp.Node {
//	    count := recomp.State(c, "count", 0)
//	    return recomp.El("div", nil,
//	        recomp.Text(fmt.Sprintf("clicked %d times", count.Get())),
//	        recomp.El("button", recomp.Props{"id": "inc"}).
//	            WithHandler("click", func() { count.Set(count.Peek() + 1) }),
//	    )
//	})
//	tree, err := root.Mount()
//
// State cells are declared by name inside a render function. A cell survives
// re-executions of the same scope; reading it inside a render function
// registers the executing scope as a dependency, and writing a different
// value invalidates exactly the scopes that read it. Writing the value a
// cell already holds is a no-op.
//
// Nested scopes are declared with Ctx.Scope. Each (parent, key) pair owns
// exactly one scope; a child re-executes independently of its parent, and
// the parent's cached output splices the child's fresh subtree in through
// Root.Tree.
//
//	func list(c *recomp.Ctx) *recomp.Node {
//	    return recomp.El("ul", nil,
//	        c.Scope("row-1", rowFn),
//	        c.Scope("row-2", rowFn),
//	    )
//	}
//
// # Scheduling
//
// Writes enqueue invalidated scopes into the Root's scheduler, which
// deduplicates them and flushes in parent-before-child order (a parent's
// re-execution may discard a child before it would otherwise run). Writes
// that happen during a flush form the next round; rounds never interleave.
// A scope that keeps re-invalidating itself trips a bounded ceiling and
// fails with ErrSchedulingOverflow while the rest of the tree continues.
//
// Two batching modes exist: BatchImmediate (default) flushes after every
// write outside a flush; BatchDeferred accumulates until Root.Flush.
// Asynchronous work posts completions with Root.Do, which behave exactly
// like state writes at the next flush.
//
// # Hydration
//
// A server pass produces a HydrationContext - the component tree snapshot,
// serialized state for persistent cells, and one marker per interactive
// node - transferred to the client as JSON:
//
//	mgr := recomp.NewHydrationManager()
//	hc, err := mgr.Serialize(root)
//	data, err := hc.Encode()
//
// The client runs its own composition pass and matches the two trees:
//
//	plan, err := mgr.DeserializeAndMatch(data, clientRoot.Tree())
//	if err != nil {
//	    plan = recomp.FullClientPlan(clientRoot.Tree()) // classified, root-recoverable
//	}
//	err = plan.Apply(renderer)
//
// Matching never mutates either tree. Compatible nodes are adopted - their
// markers bound through Renderer.BindMarker without recreating presentation
// nodes - while mismatched subtrees fall back to a fresh client render
// without disturbing adopted siblings. The compatibility policy is
// configurable: PolicyDeep (default) requires recursive type, key and
// child-count agreement; PolicyShallow reproduces the permissive
// type-only check.
//
// # Collaborators
//
// The runtime never constructs DOM or other presentation primitives. It
// talks to a Renderer (CreateOrUpdate, BindMarker), an optional persist.Store
// that seeds cells across teardown/recreate boundaries, an Observer for
// failures and flush telemetry, and a prometheus Metrics set. The serve
// package mounts roots over HTTP and the render package emits HTML with
// hydration marker attributes.
//
// # Design Rationale
//
// The system favors explicitness over magic:
//   - Explicit roots (no process-wide registries; concurrent server
//     requests get isolated state)
//   - Explicit cell names (call-order slots break under conditional reads)
//   - Explicit batching (flushes are observable, ordered, bounded)
//   - Explicit fallback (hydration failures degrade locally, never leaving
//     half-adopted output)
package recomp
