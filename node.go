package recomp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// TextNodeType is the type tag used for text content nodes.
const TextNodeType = "#text"

// scopeNodeType tags placeholder nodes that splice a child scope's output
// into a parent's cached tree. Placeholders never appear in a resolved
// snapshot.
const scopeNodeType = "#scope"

// Props holds a node's properties. Values must be JSON-representable
// (nil, bool, string, numbers, []any, map[string]any) so that a snapshot
// survives a serialization round-trip; ValidateProps enforces this at
// serialization time.
type Props map[string]any

// Node is one element of a component tree snapshot: a structural,
// serializable description of rendered output. It is a pure value type with
// no back-references to live scopes; snapshots are immutable once produced
// and freely shared for comparison.
//
// Handlers carry live client bindings (event callbacks). They are never
// serialized and are ignored by structural equality; during hydration they
// are what BindMarker attaches to adopted markup.
type Node struct {
	Type     string  `json:"type"`
	Props    Props   `json:"props,omitempty"`
	Children []*Node `json:"children,omitempty"`
	Key      string  `json:"key,omitempty"`

	Handlers map[string]any `json:"-"`

	// Set only on scope placeholders produced by Ctx.Scope.
	scope *Scope
}

// El constructs an element node.
func El(typ string, props Props, children ...*Node) *Node {
	return &Node{Type: typ, Props: props, Children: children}
}

// Text constructs a text node.
func Text(value string) *Node {
	return &Node{Type: TextNodeType, Props: Props{"value": value}}
}

// WithKey sets the node's stable key and returns the node for chaining.
// Unkeyed nodes receive declaration-order keys when the snapshot is
// resolved.
func (n *Node) WithKey(key string) *Node {
	n.Key = key
	return n
}

// WithHandler attaches a live event handler, marking the node as
// interactive: serialization emits one hydration marker for it.
func (n *Node) WithHandler(event string, handler any) *Node {
	if n.Handlers == nil {
		n.Handlers = make(map[string]any)
	}
	n.Handlers[event] = handler
	return n
}

// Interactive reports whether the node carries live handlers and therefore
// requires a hydration marker.
func (n *Node) Interactive() bool {
	return len(n.Handlers) > 0
}

// Clone returns a deep copy of the node. Handlers are shared (they are
// live references, not data).
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{
		Type:     n.Type,
		Key:      n.Key,
		Handlers: n.Handlers,
		scope:    n.scope,
	}
	if n.Props != nil {
		out.Props = make(Props, len(n.Props))
		for k, v := range n.Props {
			out.Props[k] = cloneValue(v)
		}
	}
	if n.Children != nil {
		out.Children = make([]*Node, len(n.Children))
		for i, c := range n.Children {
			out.Children[i] = c.Clone()
		}
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Equal reports structural equality: same type tags, keys, child order and
// count, and equivalent props. Props are compared through their canonical
// JSON encoding so that values which round-trip to the same wire form
// (int 1 vs float64 1) compare equal. Handlers are ignored.
func (n *Node) Equal(o *Node) bool {
	if n == nil || o == nil {
		return n == o
	}
	if n.Type != o.Type || n.Key != o.Key || len(n.Children) != len(o.Children) {
		return false
	}
	if !propsEqual(n.Props, o.Props) {
		return false
	}
	for i := range n.Children {
		if !n.Children[i].Equal(o.Children[i]) {
			return false
		}
	}
	return true
}

func propsEqual(a, b Props) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	aj, errA := json.Marshal(a)
	bj, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(aj, bj)
}

// Walk visits the node and all descendants depth-first with their
// composition paths. The path of an unkeyed root is "root"; child paths
// append the child's key (or declaration index for unkeyed children)
// separated by '/'. Return false from fn to stop descending below a node.
//
// Paths are the identity scheme shared by hydration markers, the render
// package's marker attributes, and adoption plans: both the server and
// client passes derive the same path for the same composition slot.
func (n *Node) Walk(fn func(path string, n *Node) bool) {
	if n == nil {
		return
	}
	walkPaths(n, pathKey(n, 0, ""), fn)
}

func walkPaths(n *Node, path string, fn func(string, *Node) bool) {
	if !fn(path, n) {
		return
	}
	for i, c := range n.Children {
		walkPaths(c, path+"/"+pathKey(c, i, path), fn)
	}
}

// pathKey returns a node's path segment: its explicit key, the declaration
// index for unkeyed children, or "root" for an unkeyed tree root.
func pathKey(n *Node, index int, parentPath string) string {
	if n.Key != "" {
		return n.Key
	}
	if parentPath == "" {
		return "root"
	}
	return strconv.Itoa(index)
}

// Count returns the number of nodes in the subtree.
func (n *Node) Count() int {
	if n == nil {
		return 0
	}
	total := 1
	for _, c := range n.Children {
		total += c.Count()
	}
	return total
}

// ValidateProps checks that every prop value in the subtree is
// JSON-representable, returning ErrInvalidProps naming the offending path
// otherwise. Serialization calls this before emitting a context.
func (n *Node) ValidateProps() error {
	var bad error
	n.Walk(func(path string, node *Node) bool {
		for k, v := range node.Props {
			if !jsonRepresentable(v) {
				bad = fmt.Errorf("%w: prop %q at %s holds %T", ErrInvalidProps, k, path, v)
				return false
			}
		}
		return bad == nil
	})
	return bad
}

func jsonRepresentable(v any) bool {
	switch val := v.(type) {
	case nil, bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return true
	case []any:
		for _, e := range val {
			if !jsonRepresentable(e) {
				return false
			}
		}
		return true
	case map[string]any:
		for _, e := range val {
			if !jsonRepresentable(e) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
