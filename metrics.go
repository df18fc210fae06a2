package recomp

import "github.com/prometheus/client_golang/prometheus"

// Metrics contains the runtime's prometheus collectors. A Metrics set can
// be shared across roots; the "root" label separates them. Collectors work
// unregistered, so test roots pay no registration cost.
type Metrics struct {
	ScopeExecutions *prometheus.CounterVec
	ScopeFailures   *prometheus.CounterVec
	CellWrites      *prometheus.CounterVec
	Flushes         *prometheus.CounterVec

	// Adoption and fallback counters are unlabeled: per-context labels
	// would mint a fresh series for every server render on a registered
	// set. Context ids go to the Observer instead.
	HydrationAdoptions prometheus.Counter
	HydrationFallbacks prometheus.Counter
	HydrationErrors    *prometheus.CounterVec
}

// NewMetrics creates an unregistered Metrics set.
func NewMetrics() *Metrics {
	return &Metrics{
		ScopeExecutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "recomp",
				Subsystem: "scopes",
				Name:      "executions_total",
				Help:      "Total render scope executions",
			},
			[]string{"root"},
		),
		ScopeFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "recomp",
				Subsystem: "scopes",
				Name:      "failures_total",
				Help:      "Total render scope failures (panics and scheduling overflows)",
			},
			[]string{"root"},
		),
		CellWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "recomp",
				Subsystem: "cells",
				Name:      "writes_total",
				Help:      "Total state cell writes by outcome (applied, noop)",
			},
			[]string{"root", "outcome"},
		),
		Flushes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "recomp",
				Subsystem: "scheduler",
				Name:      "flushes_total",
				Help:      "Total recomposition flushes",
			},
			[]string{"root"},
		),
		HydrationAdoptions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "recomp",
				Subsystem: "hydration",
				Name:      "adoptions_total",
				Help:      "Total nodes adopted from server-rendered markup",
			},
		),
		HydrationFallbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "recomp",
				Subsystem: "hydration",
				Name:      "fallbacks_total",
				Help:      "Total subtrees discarded from adoption plans",
			},
		),
		HydrationErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "recomp",
				Subsystem: "hydration",
				Name:      "errors_total",
				Help:      "Total hydration errors by class",
			},
			[]string{"class"},
		),
	}
}

// Register registers all collectors with the given registerer.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.ScopeExecutions,
		m.ScopeFailures,
		m.CellWrites,
		m.Flushes,
		m.HydrationAdoptions,
		m.HydrationFallbacks,
		m.HydrationErrors,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
