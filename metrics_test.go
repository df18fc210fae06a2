package recomp

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRegister(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.Register(reg); err == nil {
		t.Error("double registration accepted")
	}
}

func TestMetricsCountRuntimeActivity(t *testing.T) {
	m := NewMetrics()
	var count *Cell[int]
	root := NewRoot("app", func(c *Ctx) *Node {
		count = State(c, "count", 0)
		return Text(fmt.Sprint(count.Get()))
	}, WithMetrics(m))
	if _, err := root.Mount(); err != nil {
		t.Fatalf("mount: %v", err)
	}

	count.Set(1)
	count.Set(1) // no-op

	if got := testutil.ToFloat64(m.ScopeExecutions.WithLabelValues("app")); got != 2 {
		t.Errorf("scope executions = %v, want 2 (mount + one write)", got)
	}
	if got := testutil.ToFloat64(m.CellWrites.WithLabelValues("app", "applied")); got != 1 {
		t.Errorf("applied writes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.CellWrites.WithLabelValues("app", "noop")); got != 1 {
		t.Errorf("noop writes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Flushes.WithLabelValues("app")); got < 2 {
		t.Errorf("flushes = %v, want at least 2", got)
	}
}

func TestHydrationCountersStayBoundedAcrossContexts(t *testing.T) {
	m := NewMetrics()
	mgr := NewHydrationManager(WithManagerMetrics(m))
	server := El("div", nil, El("button", nil).WithHandler("click", func() {}))

	// A long-lived registered Metrics set sees a fresh context id per
	// server render; counters must not grow a series per context.
	for i := 0; i < 100; i++ {
		hc := &HydrationContext{
			ContextID:     fmt.Sprintf("ctx-%d", i),
			ComponentTree: server,
			Markers:       []DOMMarker{{ID: "root/0", Type: "button"}},
			Timestamp:     1,
		}
		mgr.Match(hc, El("div", nil, El("button", nil).WithHandler("click", func() {})))
		mgr.Match(hc, El("span", nil))
	}

	if got := testutil.CollectAndCount(m.HydrationAdoptions); got != 1 {
		t.Errorf("adoption series = %d, want 1", got)
	}
	if got := testutil.CollectAndCount(m.HydrationFallbacks); got != 1 {
		t.Errorf("fallback series = %d, want 1", got)
	}
	if got := testutil.ToFloat64(m.HydrationAdoptions); got != 100 {
		t.Errorf("adoptions = %v, want 100", got)
	}
	if got := testutil.ToFloat64(m.HydrationFallbacks); got != 100 {
		t.Errorf("fallbacks = %v, want 100", got)
	}
}

func TestLogObserver(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	obs := NewLogObserver(logger)

	obs.ScopeExecuted("app", "app/s1")
	obs.ScopeError("app", "app/s1", ErrSchedulingOverflow)
	obs.FlushCompleted("app", 3, 2)
	obs.HydrationFallback("ctx-1", "root/1", ErrTreeIncompatible)

	out := buf.String()
	for _, want := range []string{
		"scope executed",
		"scope failed",
		"class=scope-fatal",
		"flush completed",
		"hydration fallback",
		"class=subtree-recoverable",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}
