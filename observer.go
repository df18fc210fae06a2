package recomp

import "log/slog"

// Observer is the external observability collaborator. Failures degrade
// locally (subtree or whole-root fallback) and are reported here; they are
// never allowed to leave the tree half-adopted or a flush half-applied.
type Observer interface {
	// ScopeExecuted is called after every successful scope execution.
	ScopeExecuted(root, scopeID string)
	// ScopeError is called when a scope fails (render panic, scheduling
	// overflow). The rest of the tree continues.
	ScopeError(root, scopeID string, err error)
	// FlushCompleted reports one recomposition pass: how many scope
	// executions it performed across how many rounds.
	FlushCompleted(root string, executed, rounds int)
	// HydrationFallback is called for every subtree discarded from an
	// adoption plan, and with path "" when a whole context is discarded.
	HydrationFallback(contextID, path string, err error)
}

// NopObserver discards all events.
type NopObserver struct{}

func (NopObserver) ScopeExecuted(string, string)            {}
func (NopObserver) ScopeError(string, string, error)        {}
func (NopObserver) FlushCompleted(string, int, int)         {}
func (NopObserver) HydrationFallback(string, string, error) {}

// LogObserver reports events through a structured logger.
type LogObserver struct {
	l *slog.Logger
}

// NewLogObserver creates an Observer backed by the given logger.
func NewLogObserver(l *slog.Logger) *LogObserver {
	return &LogObserver{l: l}
}

func (o *LogObserver) ScopeExecuted(root, scopeID string) {
	o.l.Debug("scope executed", "root", root, "scope", scopeID)
}

func (o *LogObserver) ScopeError(root, scopeID string, err error) {
	o.l.Error("scope failed", "root", root, "scope", scopeID,
		"class", Classify(err).String(), "error", err)
}

func (o *LogObserver) FlushCompleted(root string, executed, rounds int) {
	o.l.Debug("flush completed", "root", root, "executed", executed, "rounds", rounds)
}

func (o *LogObserver) HydrationFallback(contextID, path string, err error) {
	o.l.Warn("hydration fallback", "context", contextID, "path", path,
		"class", Classify(err).String(), "error", err)
}
