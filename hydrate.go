package recomp

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DOMMarker is a serializable pointer from a server-rendered element to the
// client binding that will make it interactive. Marker ids are composition
// paths, so an independently computed client pass derives the same id for
// the same slot; ids must be unique within one context.
type DOMMarker struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// HydrationContext is the transferable result of one server render pass:
// the component tree snapshot, serialized state for persistent cells, and
// the markers requiring client-side binding. It is created exactly once per
// server pass, consumed exactly once by the client bootstrap, and discarded
// after matching - it is never retained as live state.
type HydrationContext struct {
	ContextID     string                     `json:"contextId,omitempty"`
	ComponentTree *Node                      `json:"componentTree"`
	StateData     map[string]json.RawMessage `json:"stateData,omitempty"`
	Markers       []DOMMarker                `json:"hydrationMarkers,omitempty"`
	Timestamp     int64                      `json:"timestamp"`
}

// Encode serializes the context to its JSON wire form.
func (hc *HydrationContext) Encode() ([]byte, error) {
	if hc.ComponentTree == nil {
		return nil, fmt.Errorf("%w: componentTree is required", ErrDeserialization)
	}
	return json.Marshal(hc)
}

// DecodeContext parses wire data into a HydrationContext. Malformed input,
// or input missing the required componentTree or timestamp fields, fails
// with ErrDeserialization; a partially populated context is never returned.
func DecodeContext(data []byte) (*HydrationContext, error) {
	var raw struct {
		ContextID     string                     `json:"contextId"`
		ComponentTree *Node                      `json:"componentTree"`
		StateData     map[string]json.RawMessage `json:"stateData"`
		Markers       []DOMMarker                `json:"hydrationMarkers"`
		Timestamp     *int64                     `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeserialization, err)
	}
	if raw.ComponentTree == nil {
		return nil, fmt.Errorf("%w: missing componentTree", ErrDeserialization)
	}
	if raw.Timestamp == nil {
		return nil, fmt.Errorf("%w: missing timestamp", ErrDeserialization)
	}
	seen := make(map[string]struct{}, len(raw.Markers))
	for _, m := range raw.Markers {
		if _, dup := seen[m.ID]; dup {
			return nil, fmt.Errorf("%w: marker %q in received context", ErrDuplicateMarker, m.ID)
		}
		seen[m.ID] = struct{}{}
	}
	return &HydrationContext{
		ContextID:     raw.ContextID,
		ComponentTree: raw.ComponentTree,
		StateData:     raw.StateData,
		Markers:       raw.Markers,
		Timestamp:     *raw.Timestamp,
	}, nil
}

// HydrationManager serializes composition roots into hydration contexts on
// the server and matches contexts against freshly computed client trees on
// the client. It borrows the trees it compares and never mutates either.
type HydrationManager struct {
	policy   CompatibilityPolicy
	logger   *slog.Logger
	observer Observer
	metrics  *Metrics
	now      func() time.Time

	state MatchState
}

// ManagerOption configures a HydrationManager.
type ManagerOption func(*HydrationManager)

// WithPolicy selects the compatibility policy. Default is PolicyDeep.
func WithPolicy(p CompatibilityPolicy) ManagerOption {
	return func(m *HydrationManager) { m.policy = p }
}

// WithManagerLogger sets the manager's logger.
func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *HydrationManager) { m.logger = l }
}

// WithManagerObserver sets the observability collaborator fallbacks are
// reported to.
func WithManagerObserver(obs Observer) ManagerOption {
	return func(m *HydrationManager) { m.observer = obs }
}

// WithManagerMetrics sets the prometheus collector set.
func WithManagerMetrics(mm *Metrics) ManagerOption {
	return func(m *HydrationManager) { m.metrics = mm }
}

// withClock overrides timestamping in tests.
func withClock(now func() time.Time) ManagerOption {
	return func(m *HydrationManager) { m.now = now }
}

// NewHydrationManager creates a manager with PolicyDeep.
func NewHydrationManager(opts ...ManagerOption) *HydrationManager {
	m := &HydrationManager{
		policy:   PolicyDeep,
		logger:   slog.Default(),
		observer: NopObserver{},
		now:      time.Now,
		state:    MatchIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.metrics == nil {
		m.metrics = NewMetrics()
	}
	return m
}

// Policy returns the manager's compatibility policy.
func (m *HydrationManager) Policy() CompatibilityPolicy { return m.policy }

// State returns the manager's current phase in the hydration state machine.
func (m *HydrationManager) State() MatchState { return m.state }

// Serialize builds a HydrationContext from a mounted root: the resolved
// tree snapshot, one marker per interactive node, and the serialized values
// of persistent cells. Two markers resolving to the same id (sibling nodes
// given the same explicit key) are a contract violation and fail
// serialization with ErrDuplicateMarker.
func (m *HydrationManager) Serialize(root *Root) (*HydrationContext, error) {
	tree := root.Tree()
	if tree == nil {
		return nil, fmt.Errorf("%w: root %q has no mounted tree", ErrTreeIncompatible, root.Name())
	}
	if err := tree.ValidateProps(); err != nil {
		m.metrics.HydrationErrors.WithLabelValues(Classify(err).String()).Inc()
		return nil, err
	}

	markers, err := collectMarkers(tree)
	if err != nil {
		m.metrics.HydrationErrors.WithLabelValues(Classify(err).String()).Inc()
		return nil, err
	}

	collected := make(map[string][]byte)
	if err := root.scope.collectState(collected); err != nil {
		return nil, fmt.Errorf("serialize state data: %w", err)
	}
	var state map[string]json.RawMessage
	if len(collected) > 0 {
		state = make(map[string]json.RawMessage, len(collected))
		for k, v := range collected {
			state[k] = json.RawMessage(v)
		}
	}

	return &HydrationContext{
		ContextID:     uuid.NewString(),
		ComponentTree: tree,
		StateData:     state,
		Markers:       markers,
		Timestamp:     m.now().UnixMilli(),
	}, nil
}

// collectMarkers emits one DOMMarker per interactive node, id'd by the
// node's composition path.
func collectMarkers(tree *Node) ([]DOMMarker, error) {
	var markers []DOMMarker
	seen := make(map[string]string)
	var dup error

	tree.Walk(func(path string, n *Node) bool {
		if dup != nil {
			return false
		}
		if !n.Interactive() {
			return true
		}
		if prev, ok := seen[path]; ok {
			dup = fmt.Errorf("%w: %q claimed by %s and %s nodes", ErrDuplicateMarker, path, prev, n.Type)
			return false
		}
		seen[path] = n.Type
		markers = append(markers, DOMMarker{
			ID:         path,
			Type:       n.Type,
			Attributes: markerAttributes(n),
		})
		return true
	})
	if dup != nil {
		return nil, dup
	}
	return markers, nil
}

// markerAttributes carries the string-valued props a client needs to locate
// the element before the full tree is compared (typically "id" and "class").
func markerAttributes(n *Node) map[string]string {
	var attrs map[string]string
	for k, v := range n.Props {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if attrs == nil {
			attrs = make(map[string]string)
		}
		attrs[k] = s
	}
	return attrs
}
