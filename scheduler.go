package recomp

import (
	"errors"
	"fmt"
	"sort"
)

// DefaultMaxScopePasses bounds how many times one scope may execute within
// a single flush before it is failed with ErrSchedulingOverflow. A scope
// that unconditionally writes a cell it also reads would otherwise loop
// forever.
const DefaultMaxScopePasses = 25

// scheduler collects scopes invalidated by state writes during the current
// logical task and flushes them as one recomposition pass. The pending set
// is transient: it is owned by the scheduler and cleared each flush.
type scheduler struct {
	root      *Root
	mode      BatchMode
	maxPasses int

	pending  map[string]*Scope
	flushing bool
}

func newScheduler(root *Root, mode BatchMode, maxPasses int) *scheduler {
	if maxPasses <= 0 {
		maxPasses = DefaultMaxScopePasses
	}
	return &scheduler{
		root:      root,
		mode:      mode,
		maxPasses: maxPasses,
		pending:   make(map[string]*Scope),
	}
}

// enqueue adds an invalidated scope to the pending set. A scope invalidated
// twice still executes once per round.
func (s *scheduler) enqueue(sc *Scope) {
	if sc.detached || sc.failed {
		return
	}
	sc.dirty = true
	s.pending[sc.id] = sc
}

// flush executes the pending set to quiescence. Each round drains the
// scopes invalidated before it began, in parent-before-child order; writes
// made during a round land in the next round, so flushes never interleave.
// Scopes exceeding the per-flush execution ceiling are failed individually
// and reported; the flush itself continues.
func (s *scheduler) flush() error {
	if s.flushing {
		// Writes during a flush are picked up by the running round loop.
		return nil
	}
	s.flushing = true
	defer func() { s.flushing = false }()

	var errs []error
	passes := make(map[string]int)
	rounds := 0
	executed := 0

	for len(s.pending) > 0 {
		round := make([]*Scope, 0, len(s.pending))
		for _, sc := range s.pending {
			round = append(round, sc)
		}
		s.pending = make(map[string]*Scope)
		rounds++

		// Parents before children: a parent's re-execution may tear down a
		// pending child, which is then skipped via its detached flag.
		sort.Slice(round, func(i, j int) bool {
			if round[i].depth != round[j].depth {
				return round[i].depth < round[j].depth
			}
			return round[i].id < round[j].id
		})

		for _, sc := range round {
			if sc.detached || sc.failed || !sc.dirty {
				continue
			}
			passes[sc.id]++
			if passes[sc.id] > s.maxPasses {
				err := fmt.Errorf("%w: scope %s executed %d times in one flush",
					ErrSchedulingOverflow, sc.id, passes[sc.id]-1)
				sc.failed = true
				sc.dirty = false
				s.root.metrics.ScopeFailures.WithLabelValues(s.root.name).Inc()
				s.root.observer.ScopeError(s.root.name, sc.id, err)
				errs = append(errs, err)
				continue
			}
			executed++
			if err := sc.execute(); err != nil {
				errs = append(errs, err)
			}
		}
	}

	s.root.metrics.Flushes.WithLabelValues(s.root.name).Inc()
	s.root.observer.FlushCompleted(s.root.name, executed, rounds)
	return errors.Join(errs...)
}
