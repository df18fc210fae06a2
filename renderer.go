package recomp

// Renderer is the external presentation collaborator. The runtime never
// constructs DOM or UI primitives itself: fresh or changed subtrees are
// handed to CreateOrUpdate, and hydration binds interactivity onto adopted
// server markup through BindMarker instead of recreating it.
type Renderer interface {
	// CreateOrUpdate realizes a subtree at its position in the output.
	CreateOrUpdate(node *Node) error
	// BindMarker attaches live handlers to the presentation node identified
	// by a hydration marker id.
	BindMarker(markerID string, handlers map[string]any) error
}
