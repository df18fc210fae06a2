package recomp

import (
	"strings"
	"sync"
)

// RecordingRenderer is a Renderer that records calls instead of producing
// output. Hydration tests assert on it directly: a successful adoption
// performs zero CreateOrUpdate calls and one BindMarker call per marker.
type RecordingRenderer struct {
	mu sync.Mutex

	Created []*Node
	Bound   []string
}

// NewRecordingRenderer creates an empty recorder.
func NewRecordingRenderer() *RecordingRenderer {
	return &RecordingRenderer{}
}

// CreateOrUpdate records the subtree handed to it.
func (r *RecordingRenderer) CreateOrUpdate(node *Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Created = append(r.Created, node)
	return nil
}

// BindMarker records the marker id.
func (r *RecordingRenderer) BindMarker(markerID string, _ map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Bound = append(r.Bound, markerID)
	return nil
}

// CreateCalls returns the number of presentation-node recreation calls.
func (r *RecordingRenderer) CreateCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Created)
}

// BindCalls returns the number of marker bindings.
func (r *RecordingRenderer) BindCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Bound)
}

// HasBound checks whether a marker id was bound.
func (r *RecordingRenderer) HasBound(markerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.Bound {
		if id == markerID {
			return true
		}
	}
	return false
}

// Reset clears recorded calls.
func (r *RecordingRenderer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Created = nil
	r.Bound = nil
}

// Harness drives a root in tests and counts scope executions through the
// Observer interface, so tests can assert minimal re-render properties
// ("writing A executes S1 exactly once and S2 zero times") without poking
// at runtime internals.
type Harness struct {
	Root     *Root
	Renderer *RecordingRenderer

	mu         sync.Mutex
	executions map[string]int
	errors     []error
	fallbacks  []string
}

// NewHarness creates a mounted-on-demand harness around a render function.
// Extra options are appended after the harness's own observer wiring.
func NewHarness(name string, fn RenderFunc, opts ...Option) *Harness {
	h := &Harness{
		Renderer:   NewRecordingRenderer(),
		executions: make(map[string]int),
	}
	all := append([]Option{WithObserver(h)}, opts...)
	h.Root = NewRoot(name, fn, all...)
	return h
}

// Mount mounts the root, panicking on error: harness tests treat a failed
// initial pass as a broken test setup.
func (h *Harness) Mount() *Node {
	tree, err := h.Root.Mount()
	if err != nil {
		panic("recomp: harness mount failed: " + err.Error())
	}
	return tree
}

// Flush flushes pending invalidations.
func (h *Harness) Flush() error {
	return h.Root.Flush()
}

// Executions returns how many times the scope with the given id executed.
// Ids are key paths ("app/list/row-1"); a bare key matches any scope whose
// last path segment equals it.
func (h *Harness) Executions(idOrKey string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n, ok := h.executions[idOrKey]; ok {
		return n
	}
	total := 0
	for id, n := range h.executions {
		if lastSegment(id) == idOrKey {
			total += n
		}
	}
	return total
}

// TotalExecutions returns the number of scope executions since the last
// ResetCounts.
func (h *Harness) TotalExecutions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	total := 0
	for _, n := range h.executions {
		total += n
	}
	return total
}

// Errors returns scope errors observed so far.
func (h *Harness) Errors() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.errors...)
}

// Fallbacks returns hydration fallback paths observed so far.
func (h *Harness) Fallbacks() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.fallbacks...)
}

// ResetCounts clears execution counts and recorded calls, typically after
// Mount so tests count only post-write executions.
func (h *Harness) ResetCounts() {
	h.mu.Lock()
	h.executions = make(map[string]int)
	h.errors = nil
	h.fallbacks = nil
	h.mu.Unlock()
	h.Renderer.Reset()
}

// Observer implementation.

func (h *Harness) ScopeExecuted(_, scopeID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.executions[scopeID]++
}

func (h *Harness) ScopeError(_, _ string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, err)
}

func (h *Harness) FlushCompleted(string, int, int) {}

func (h *Harness) HydrationFallback(_, path string, _ error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fallbacks = append(h.fallbacks, path)
}

func lastSegment(id string) string {
	if i := strings.LastIndexByte(id, '/'); i >= 0 {
		return id[i+1:]
	}
	return id
}
