package recomp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/calder-ui/recomp/persist"
)

func TestNoOpWriteDoesNotInvalidate(t *testing.T) {
	var count *Cell[int]
	h := NewHarness("app", func(c *Ctx) *Node {
		count = State(c, "count", 7)
		return Text(fmt.Sprint(count.Get()))
	})
	h.Mount()
	h.ResetCounts()

	count.Set(7)

	if got := h.TotalExecutions(); got != 0 {
		t.Errorf("no-op write executed %d scopes, want 0", got)
	}
	if count.Version() != 0 {
		t.Errorf("no-op write bumped version to %d", count.Version())
	}
}

func TestMinimalReRender(t *testing.T) {
	var cellA, cellB *Cell[int]
	h := NewHarness("app", func(c *Ctx) *Node {
		cellA = State(c, "a", 0)
		cellB = State(c, "b", 0)
		return El("div", nil,
			c.Scope("s1", func(c *Ctx) *Node { return Text(fmt.Sprint(cellA.Get())) }),
			c.Scope("s2", func(c *Ctx) *Node { return Text(fmt.Sprint(cellB.Get())) }),
		)
	})
	h.Mount()
	h.ResetCounts()

	cellA.Set(1)

	if got := h.Executions("app/s1"); got != 1 {
		t.Errorf("S1 executed %d times, want 1", got)
	}
	if got := h.Executions("app/s2"); got != 0 {
		t.Errorf("S2 executed %d times, want 0", got)
	}
	if got := h.Executions("app"); got != 0 {
		t.Errorf("parent executed %d times, want 0", got)
	}
}

func TestDependencyReRegistration(t *testing.T) {
	var flag *Cell[bool]
	var data *Cell[int]
	h := NewHarness("app", func(c *Ctx) *Node {
		flag = State(c, "flag", true)
		data = State(c, "data", 0)
		return El("div", nil, c.Scope("s1", func(c *Ctx) *Node {
			if flag.Get() {
				return Text(fmt.Sprint(data.Get()))
			}
			return Text("off")
		}))
	})
	h.Mount()

	// S1 stops reading data on its next execution.
	flag.Set(false)
	h.ResetCounts()

	data.Set(42)

	if got := h.Executions("app/s1"); got != 0 {
		t.Errorf("S1 executed %d times after unread cell write, want 0", got)
	}
}

func TestUpdateAndPeek(t *testing.T) {
	var count *Cell[int]
	h := NewHarness("app", func(c *Ctx) *Node {
		count = State(c, "count", 10)
		return Text(fmt.Sprint(count.Get()))
	})
	h.Mount()

	count.Update(func(v int) int { return v + 5 })
	if got := count.Peek(); got != 15 {
		t.Errorf("Peek() = %d, want 15", got)
	}
	if count.Version() != 1 {
		t.Errorf("Version() = %d, want 1", count.Version())
	}
}

func TestPeekDoesNotRegisterDependency(t *testing.T) {
	var count *Cell[int]
	h := NewHarness("app", func(c *Ctx) *Node {
		count = State(c, "count", 0)
		return El("div", nil, c.Scope("peeker", func(c *Ctx) *Node {
			return Text(fmt.Sprint(count.Peek()))
		}))
	})
	h.Mount()
	h.ResetCounts()

	count.Set(1)

	if got := h.Executions("peeker"); got != 0 {
		t.Errorf("Peek registered a dependency: %d executions, want 0", got)
	}
}

func TestCellSurvivesReExecution(t *testing.T) {
	var count *Cell[int]
	firstDeclared := 0
	h := NewHarness("app", func(c *Ctx) *Node {
		count = State(c, "count", 0)
		firstDeclared++
		return Text(fmt.Sprint(count.Get()))
	})
	h.Mount()

	count.Set(3)
	count.Set(9)

	if got := count.Peek(); got != 9 {
		t.Errorf("cell value = %d, want 9", got)
	}
	if count.Version() != 2 {
		t.Errorf("version = %d, want 2", count.Version())
	}
	if firstDeclared != 3 {
		t.Errorf("render ran %d times, want 3 (mount + 2 writes)", firstDeclared)
	}
}

func TestCustomEquality(t *testing.T) {
	type point struct{ X, Y int }
	var p *Cell[point]
	h := NewHarness("app", func(c *Ctx) *Node {
		p = State(c, "p", point{1, 2}, WithEquals(func(a, b point) bool {
			return a.X == b.X // Y is ignored
		}))
		pt := p.Get()
		return Text(fmt.Sprintf("%d,%d", pt.X, pt.Y))
	})
	h.Mount()
	h.ResetCounts()

	p.Set(point{1, 99})
	if got := h.TotalExecutions(); got != 0 {
		t.Errorf("equal-per-predicate write executed %d scopes, want 0", got)
	}

	p.Set(point{2, 99})
	if got := h.TotalExecutions(); got != 1 {
		t.Errorf("unequal write executed %d scopes, want 1", got)
	}
}

func TestPersistSeedAndWriteBack(t *testing.T) {
	store := persist.NewMemStore()
	build := func() (*Root, **Cell[int]) {
		var cell *Cell[int]
		root := NewRoot("app", func(c *Ctx) *Node {
			cell = State(c, "count", 0, WithPersist[int]())
			return Text(fmt.Sprint(cell.Get()))
		}, WithStore(store))
		return root, &cell
	}

	root1, cell1 := build()
	if _, err := root1.Mount(); err != nil {
		t.Fatalf("mount: %v", err)
	}
	(*cell1).Set(41)
	if err := root1.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := store.Get(context.Background(), "app/count")
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	if string(data) != "41" {
		t.Errorf("persisted value = %s, want 41", data)
	}

	root2, cell2 := build()
	if _, err := root2.Mount(); err != nil {
		t.Fatalf("remount: %v", err)
	}
	if got := (*cell2).Peek(); got != 41 {
		t.Errorf("recreated cell seeded with %d, want 41", got)
	}
}

func TestHydrationStateSeedsCells(t *testing.T) {
	seed := map[string]json.RawMessage{
		"app/count": json.RawMessage("23"),
	}
	var cell *Cell[int]
	root := NewRoot("app", func(c *Ctx) *Node {
		cell = State(c, "count", 0)
		return Text(fmt.Sprint(cell.Get()))
	}, WithHydrationState(seed))
	if _, err := root.Mount(); err != nil {
		t.Fatalf("mount: %v", err)
	}
	if got := cell.Peek(); got != 23 {
		t.Errorf("cell seeded with %d, want 23", got)
	}
}

func TestDetachedCellReadsAsPlainValue(t *testing.T) {
	var show *Cell[bool]
	var tick *Cell[int]
	var leaked *Cell[int]
	h := NewHarness("app", func(c *Ctx) *Node {
		show = State(c, "show", true)
		tick = State(c, "tick", 0)
		if show.Get() {
			return El("div", nil, c.Scope("owner", func(c *Ctx) *Node {
				leaked = State(c, "n", 7)
				return Text(fmt.Sprint(leaked.Get()))
			}))
		}
		return El("div", nil, c.Scope("watcher", func(c *Ctx) *Node {
			// leaked's owning scope is gone; the retained handle still
			// reads, it just can't register this scope as a reader.
			return Text(fmt.Sprintf("%d %d", tick.Get(), leaked.Get()))
		}))
	})
	h.Mount()

	show.Set(false) // tears down owner, creates watcher
	h.ResetCounts()

	tick.Set(1) // re-runs watcher, which reads the detached cell

	if errs := h.Errors(); len(errs) != 0 {
		t.Fatalf("reading a detached cell failed a scope: %v", errs)
	}
	if got := h.Executions("watcher"); got != 1 {
		t.Errorf("watcher executed %d times, want 1", got)
	}
	if got := leaked.Peek(); got != 7 {
		t.Errorf("detached cell value = %d, want 7", got)
	}

	// Writing the detached cell invalidates nothing.
	h.ResetCounts()
	leaked.Set(8)
	if got := h.TotalExecutions(); got != 0 {
		t.Errorf("detached cell write executed %d scopes, want 0", got)
	}
}

func TestStateRedeclaredTypeFailsScope(t *testing.T) {
	// Declaring the same name twice with different types panics inside the
	// render function, which fails the scope rather than the process.
	root := NewRoot("app", func(c *Ctx) *Node {
		State(c, "x", 0)
		State(c, "x", "oops")
		return Text("")
	})
	_, err := root.Mount()
	if err == nil {
		t.Fatal("expected error on type mismatch")
	}
	if !errors.Is(err, ErrScopeFailed) {
		t.Errorf("error = %v, want ErrScopeFailed", err)
	}
}
