package recomp

import (
	"fmt"
)

// MatchState is the hydration manager's phase in the bootstrap state
// machine: Idle -> Deserializing -> Matching -> Adopted | AdoptedWithFallback
// | ClientRender.
type MatchState int

const (
	MatchIdle MatchState = iota
	MatchDeserializing
	MatchMatching
	// MatchAdopted: the full server tree was adopted.
	MatchAdopted
	// MatchAdoptedWithFallback: some subtrees mismatched and render fresh;
	// adopted siblings keep their server markup.
	MatchAdoptedWithFallback
	// MatchClientRender: the context was unusable and the whole root
	// renders client-side.
	MatchClientRender
)

// String returns the string representation of MatchState.
func (s MatchState) String() string {
	switch s {
	case MatchIdle:
		return "idle"
	case MatchDeserializing:
		return "deserializing"
	case MatchMatching:
		return "matching"
	case MatchAdopted:
		return "adopted"
	case MatchAdoptedWithFallback:
		return "adopted-with-fallback"
	case MatchClientRender:
		return "client-render"
	default:
		return "unknown"
	}
}

// Adoption binds one hydration marker to the live handlers of the matching
// client node.
type Adoption struct {
	MarkerID string
	Node     *Node
}

// Fallback is one subtree discarded from adoption: the client renders it
// fresh at its path.
type Fallback struct {
	Path string
	Node *Node
	Err  error
}

// AdoptionPlan is the outcome of matching a server context against a client
// tree: which markers to bind and which subtrees to render fresh. Plan
// nodes share live handlers with the client tree; neither input tree is
// mutated by matching.
type AdoptionPlan struct {
	ContextID string
	Adoptions []Adoption
	Fallbacks []Fallback
}

// FullyAdopted reports whether the whole tree was adopted with no fallback.
func (p *AdoptionPlan) FullyAdopted() bool {
	return len(p.Fallbacks) == 0
}

// Apply executes the plan against a renderer: adopted markers are bound
// without recreating presentation nodes; fallback subtrees are handed to
// CreateOrUpdate. Once started, a match/apply runs to completion - partial
// adoption is not a supported intermediate state - so Apply reports the
// first error but still visits every entry.
func (p *AdoptionPlan) Apply(r Renderer) error {
	var first error
	for _, a := range p.Adoptions {
		if err := r.BindMarker(a.MarkerID, a.Node.Handlers); err != nil && first == nil {
			first = fmt.Errorf("bind marker %s: %w", a.MarkerID, err)
		}
	}
	for _, f := range p.Fallbacks {
		if err := r.CreateOrUpdate(f.Node); err != nil && first == nil {
			first = fmt.Errorf("render fallback at %s: %w", f.Path, err)
		}
	}
	return first
}

// FullClientPlan is the recovery plan after a root-recoverable failure
// (ErrDeserialization): no adoption, one fresh render of the whole client
// tree.
func FullClientPlan(clientTree *Node) *AdoptionPlan {
	return &AdoptionPlan{
		Fallbacks: []Fallback{{Path: "root", Node: clientTree, Err: ErrDeserialization}},
	}
}

// ValidateTreeCompatibility reports whether the server snapshot can be
// adopted by the freshly computed client tree under the manager's policy:
// type equality at the root for PolicyShallow, recursive type, key and
// child-count equality for PolicyDeep. Neither tree is mutated.
func (m *HydrationManager) ValidateTreeCompatibility(server, client *Node) bool {
	if server == nil || client == nil {
		return false
	}
	switch m.policy {
	case PolicyShallow:
		return server.Type == client.Type
	default:
		return deepCompatible(withDerivedKeys(server), withDerivedKeys(client))
	}
}

func deepCompatible(server, client *Node) bool {
	if !nodeCompatible(server, client, PolicyDeep) {
		return false
	}
	for i := range server.Children {
		if !deepCompatible(server.Children[i], client.Children[i]) {
			return false
		}
	}
	return true
}

// nodeCompatible is the per-node check used during matching. PolicyShallow
// compares type tags only; PolicyDeep additionally requires key agreement
// and an unambiguous child pairing (equal counts).
func nodeCompatible(server, client *Node, policy CompatibilityPolicy) bool {
	if server.Type != client.Type {
		return false
	}
	if policy == PolicyShallow {
		return true
	}
	return server.Key == client.Key && len(server.Children) == len(client.Children)
}

// DeserializeAndMatch parses wire data and matches it against the client
// tree. Malformed or incomplete data fails with ErrDeserialization and
// moves the manager to MatchClientRender; the caller recovers with
// FullClientPlan.
func (m *HydrationManager) DeserializeAndMatch(data []byte, clientTree *Node) (*AdoptionPlan, error) {
	m.state = MatchDeserializing
	hc, err := DecodeContext(data)
	if err != nil {
		m.state = MatchClientRender
		m.metrics.HydrationErrors.WithLabelValues(Classify(err).String()).Inc()
		m.observer.HydrationFallback("", "", err)
		return nil, err
	}
	return m.Match(hc, clientTree), nil
}

// Match compares the server context against the client tree node by node,
// producing an adoption plan. A mismatched node discards its whole subtree
// to a fresh client render; siblings that still match remain adopted. Both
// trees are borrowed for the duration of the match and returned unchanged.
func (m *HydrationManager) Match(hc *HydrationContext, clientTree *Node) *AdoptionPlan {
	m.state = MatchMatching

	plan := &AdoptionPlan{ContextID: hc.ContextID}
	markers := make(map[string]DOMMarker, len(hc.Markers))
	for _, mk := range hc.Markers {
		markers[mk.ID] = mk
	}

	// Key derivation runs on clones so both trees stay untouched; live
	// handlers are shared by Clone, which is what adoption binds.
	server := withDerivedKeys(hc.ComponentTree)
	client := withDerivedKeys(clientTree)

	m.matchNode(plan, markers, server, client, pathKey(server, 0, ""))

	if plan.FullyAdopted() {
		m.state = MatchAdopted
	} else {
		m.state = MatchAdoptedWithFallback
		for _, f := range plan.Fallbacks {
			m.metrics.HydrationFallbacks.Inc()
			m.observer.HydrationFallback(hc.ContextID, f.Path, f.Err)
		}
	}
	m.metrics.HydrationAdoptions.Add(float64(len(plan.Adoptions)))
	return plan
}

func (m *HydrationManager) matchNode(plan *AdoptionPlan, markers map[string]DOMMarker, server, client *Node, path string) {
	if client == nil {
		return
	}
	if server == nil || !nodeCompatible(server, client, m.policy) {
		plan.Fallbacks = append(plan.Fallbacks, Fallback{
			Path: path,
			Node: client,
			Err:  fmt.Errorf("%w: at %s", ErrTreeIncompatible, path),
		})
		return
	}

	if mk, ok := markers[path]; ok {
		plan.Adoptions = append(plan.Adoptions, Adoption{MarkerID: mk.ID, Node: client})
	}

	n := len(client.Children)
	for i := 0; i < n; i++ {
		childPath := path + "/" + pathKey(client.Children[i], i, path)
		var serverChild *Node
		if i < len(server.Children) {
			serverChild = server.Children[i]
		}
		m.matchNode(plan, markers, serverChild, client.Children[i], childPath)
	}
}

// withDerivedKeys clones a tree, assigning declaration-order keys to
// unkeyed children so trees from different producers (a resolved snapshot
// vs. a hand-built one) compare under the same identity scheme.
func withDerivedKeys(n *Node) *Node {
	if n == nil {
		return nil
	}
	out := n.Clone()
	deriveKeys(out)
	return out
}

func deriveKeys(n *Node) {
	for i, c := range n.Children {
		if c.Key == "" {
			c.Key = fmt.Sprintf("%d", i)
		}
		deriveKeys(c)
	}
}
