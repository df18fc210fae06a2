package recomp

// tracker records which render scope is currently executing so that state
// cell reads attribute to it. Scopes nest (a parent's execution runs child
// executions inline), so the dynamic "current scope" slot is a stack.
//
// Execution is single-threaded per root; the tracker needs no locking.
type tracker struct {
	stack []*Scope
}

// current returns the actively executing scope, or nil outside execution.
func (t *tracker) current() *Scope {
	if len(t.stack) == 0 {
		return nil
	}
	return t.stack[len(t.stack)-1]
}

func (t *tracker) push(sc *Scope) {
	t.stack = append(t.stack, sc)
}

func (t *tracker) pop() {
	t.stack = t.stack[:len(t.stack)-1]
}
