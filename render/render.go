// Package render emits HTML markup from component tree snapshots. It is a
// server-side presentation collaborator: the runtime produces snapshots and
// markers, render stamps interactive nodes with marker attributes so a
// client bootstrap can locate and bind them without recreating the markup.
package render

import (
	"context"
	"fmt"
	"html"
	"io"
	"sort"
	"strings"

	"github.com/a-h/templ"

	"github.com/calder-ui/recomp"
)

// MarkerAttr is the attribute carrying a hydration marker id.
const MarkerAttr = "data-hydrate-id"

// Void elements per the HTML spec: no closing tag, no children.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"source": true, "track": true, "wbr": true,
}

// Tree returns a templ component that renders the snapshot, stamping every
// node with a marker in the given set with MarkerAttr. The snapshot should
// come from the same pass as the markers (HydrationManager.Serialize
// produces both).
func Tree(root *recomp.Node, markers []recomp.DOMMarker) templ.Component {
	if root == nil {
		return templ.ComponentFunc(func(context.Context, io.Writer) error { return nil })
	}
	ids := make(map[string]bool, len(markers))
	for _, m := range markers {
		ids[m.ID] = true
	}
	rootPath := root.Key
	if rootPath == "" {
		rootPath = "root"
	}
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return writeNode(w, root, rootPath, ids)
	})
}

func writeNode(w io.Writer, n *recomp.Node, path string, ids map[string]bool) error {
	if n == nil {
		return nil
	}
	if n.Type == recomp.TextNodeType {
		value, _ := n.Props["value"].(string)
		_, err := io.WriteString(w, html.EscapeString(value))
		return err
	}

	var sb strings.Builder
	sb.WriteByte('<')
	sb.WriteString(n.Type)
	writeAttributes(&sb, n, path, ids)

	if voidElements[n.Type] {
		sb.WriteString(">")
		_, err := io.WriteString(w, sb.String())
		return err
	}

	sb.WriteByte('>')
	if _, err := io.WriteString(w, sb.String()); err != nil {
		return err
	}
	for i, c := range n.Children {
		childPath := path + "/" + childKey(c, i)
		if err := writeNode(w, c, childPath, ids); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "</%s>", n.Type)
	return err
}

func childKey(n *recomp.Node, index int) string {
	if n.Key != "" {
		return n.Key
	}
	return fmt.Sprintf("%d", index)
}

func writeAttributes(sb *strings.Builder, n *recomp.Node, path string, ids map[string]bool) {
	keys := make([]string, 0, len(n.Props))
	for k := range n.Props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		switch v := n.Props[k].(type) {
		case bool:
			if v {
				fmt.Fprintf(sb, " %s", k)
			}
		case string:
			fmt.Fprintf(sb, ` %s="%s"`, k, html.EscapeString(v))
		case nil:
			// skip
		default:
			fmt.Fprintf(sb, ` %s="%s"`, k, html.EscapeString(fmt.Sprintf("%v", v)))
		}
	}
	if ids[path] {
		fmt.Fprintf(sb, ` %s="%s"`, MarkerAttr, html.EscapeString(path))
	}
}
