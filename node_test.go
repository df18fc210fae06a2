package recomp

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNodeEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b *Node
		want bool
	}{
		{
			name: "identical trees",
			a:    El("div", Props{"class": "box"}, Text("hi")),
			b:    El("div", Props{"class": "box"}, Text("hi")),
			want: true,
		},
		{
			name: "type mismatch",
			a:    El("div", nil),
			b:    El("span", nil),
			want: false,
		},
		{
			name: "key mismatch",
			a:    El("li", nil).WithKey("a"),
			b:    El("li", nil).WithKey("b"),
			want: false,
		},
		{
			name: "child count mismatch",
			a:    El("ul", nil, El("li", nil)),
			b:    El("ul", nil, El("li", nil), El("li", nil)),
			want: false,
		},
		{
			name: "prop value mismatch",
			a:    El("input", Props{"value": "x"}),
			b:    El("input", Props{"value": "y"}),
			want: false,
		},
		{
			name: "int and float64 compare equal after round-trip",
			a:    El("div", Props{"count": 3}),
			b:    El("div", Props{"count": float64(3)}),
			want: true,
		},
		{
			name: "handlers are ignored",
			a:    El("button", nil).WithHandler("click", func() {}),
			b:    El("button", nil),
			want: true,
		},
		{
			name: "nil props equals empty props",
			a:    El("div", nil),
			b:    El("div", Props{}),
			want: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Errorf("Equal() = %v, want %v", got, tt.want)
			}
			if got := tt.b.Equal(tt.a); got != tt.want {
				t.Errorf("Equal() reversed = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNodeJSONRoundTrip(t *testing.T) {
	orig := El("div", Props{"class": "app", "count": 2},
		El("button", Props{"label": "inc"}).WithKey("inc").WithHandler("click", func() {}),
		Text("2"),
	)

	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Node
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if !orig.Equal(&back) {
		t.Errorf("round-tripped tree differs:\n got %s", data)
	}
	// Handlers never cross the wire.
	if back.Children[0].Interactive() {
		t.Error("handlers survived serialization")
	}
}

func TestNodeClone(t *testing.T) {
	orig := El("div", Props{"attrs": map[string]any{"a": 1}},
		El("span", Props{"t": "x"}),
	).WithHandler("click", func() {})

	cp := orig.Clone()
	if !orig.Equal(cp) {
		t.Fatal("clone not structurally equal")
	}

	// Mutating the clone does not touch the original.
	cp.Props["attrs"].(map[string]any)["a"] = 2
	cp.Children[0].Props["t"] = "y"
	if orig.Props["attrs"].(map[string]any)["a"] != 1 {
		t.Error("nested prop mutation leaked into original")
	}
	if orig.Children[0].Props["t"] != "x" {
		t.Error("child prop mutation leaked into original")
	}

	// Handlers are live references and stay shared.
	if len(cp.Handlers) != 1 {
		t.Error("handlers not carried by clone")
	}
}

func TestNodeWalkPaths(t *testing.T) {
	tree := El("div", nil,
		El("ul", nil,
			El("li", nil).WithKey("row-a"),
			El("li", nil),
		),
		Text("tail"),
	)

	paths := make(map[string]string)
	tree.Walk(func(path string, n *Node) bool {
		paths[path] = n.Type
		return true
	})

	want := map[string]string{
		"root":         "div",
		"root/0":       "ul",
		"root/0/row-a": "li",
		"root/0/1":     "li",
		"root/1":       TextNodeType,
	}
	for path, typ := range want {
		if got, ok := paths[path]; !ok || got != typ {
			t.Errorf("path %q = %q (present=%v), want %q", path, got, ok, typ)
		}
	}
	if len(paths) != len(want) {
		t.Errorf("walked %d paths, want %d: %v", len(paths), len(want), paths)
	}
}

func TestNodeWalkStopsDescending(t *testing.T) {
	tree := El("div", nil, El("section", nil, El("p", nil)))
	var visited []string
	tree.Walk(func(path string, n *Node) bool {
		visited = append(visited, path)
		return n.Type != "section"
	})
	for _, p := range visited {
		if p == "root/0/0" {
			t.Error("descended below a node whose visitor returned false")
		}
	}
}

func TestNodeCount(t *testing.T) {
	tree := El("div", nil, El("ul", nil, El("li", nil), El("li", nil)), Text("x"))
	if got := tree.Count(); got != 5 {
		t.Errorf("Count() = %d, want 5", got)
	}
	var nilNode *Node
	if got := nilNode.Count(); got != 0 {
		t.Errorf("nil Count() = %d, want 0", got)
	}
}

func TestValidateProps(t *testing.T) {
	ok := El("div", Props{
		"s":    "str",
		"n":    42,
		"f":    1.5,
		"b":    true,
		"nil":  nil,
		"list": []any{"a", 1},
		"map":  map[string]any{"k": "v"},
	})
	if err := ok.ValidateProps(); err != nil {
		t.Errorf("ValidateProps() = %v, want nil", err)
	}

	bad := El("div", nil, El("span", Props{"fn": func() {}}))
	err := bad.ValidateProps()
	if !errors.Is(err, ErrInvalidProps) {
		t.Errorf("ValidateProps() = %v, want ErrInvalidProps", err)
	}

	nested := El("div", Props{"list": []any{make(chan int)}})
	if err := nested.ValidateProps(); !errors.Is(err, ErrInvalidProps) {
		t.Errorf("nested ValidateProps() = %v, want ErrInvalidProps", err)
	}
}

func TestTreeSnapshotKeysAndSplicing(t *testing.T) {
	var label *Cell[string]
	h := NewHarness("app", func(c *Ctx) *Node {
		label = State(c, "label", "first")
		return El("div", nil,
			El("header", nil),
			c.Scope("body", func(c *Ctx) *Node {
				return El("p", nil, Text(label.Get()))
			}),
		)
	})
	h.Mount()

	tree := h.Root.Tree()
	if tree.Key != "" {
		t.Errorf("root key = %q, want unkeyed root", tree.Key)
	}
	if got := tree.Children[0].Key; got != "0" {
		t.Errorf("unkeyed child key = %q, want declaration index \"0\"", got)
	}
	body := tree.Children[1]
	if body.Key != "body" || body.Type != "p" {
		t.Errorf("spliced child = (%q, %q), want scope output under slot key", body.Type, body.Key)
	}

	// A child-only write re-splices without re-running the parent.
	h.ResetCounts()
	label.Set("second")
	if got := h.Executions("app"); got != 0 {
		t.Errorf("parent executed %d times, want 0", got)
	}
	fresh := h.Root.Tree()
	text := fresh.Children[1].Children[0]
	if text.Props["value"] != "second" {
		t.Errorf("spliced text = %v, want %q", text.Props["value"], "second")
	}
}
