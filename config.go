package recomp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/calder-ui/recomp/persist"
)

// BatchMode selects when invalidations are flushed.
type BatchMode int

const (
	// BatchImmediate flushes after every write made outside a flush. This
	// matches a request-scoped server pass, where each logical task is one
	// write.
	BatchImmediate BatchMode = iota
	// BatchDeferred accumulates invalidations until Root.Flush is called.
	// Invalidations are never dropped: every write still lands its readers
	// in the pending set.
	BatchDeferred
)

// String returns the string representation of BatchMode.
func (m BatchMode) String() string {
	switch m {
	case BatchImmediate:
		return "immediate"
	case BatchDeferred:
		return "deferred"
	default:
		return "unknown"
	}
}

// CompatibilityPolicy selects how hydration decides that a server node can
// be adopted by a client node.
type CompatibilityPolicy int

const (
	// PolicyDeep requires recursive type, key and child-count agreement
	// before a subtree counts as adopted. Safe, costlier.
	PolicyDeep CompatibilityPolicy = iota
	// PolicyShallow compares only the type tag at each node. Fast and
	// permissive: structurally different descendants may be adopted
	// silently.
	PolicyShallow
)

// String returns the string representation of CompatibilityPolicy.
func (p CompatibilityPolicy) String() string {
	switch p {
	case PolicyDeep:
		return "deep"
	case PolicyShallow:
		return "shallow"
	default:
		return "unknown"
	}
}

type options struct {
	mode      BatchMode
	maxPasses int
	logger    *slog.Logger
	observer  Observer
	metrics   *Metrics
	store     persist.Store
	seed      map[string]json.RawMessage
	ctx       context.Context
	wake      func()
}

// Option configures a Root.
type Option func(*options)

// WithBatchMode sets the root's batching mode.
func WithBatchMode(mode BatchMode) Option {
	return func(o *options) { o.mode = mode }
}

// WithMaxScopePasses overrides the per-flush execution ceiling for a single
// scope. Zero keeps DefaultMaxScopePasses.
func WithMaxScopePasses(n int) Option {
	return func(o *options) { o.maxPasses = n }
}

// WithLogger sets the root's structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithObserver sets the observability collaborator failures and flush
// telemetry are reported to.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithMetrics sets the prometheus collector set. Roots without one get a
// private unregistered set.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithStore attaches a persistence registry: cells declared with
// WithPersist seed from it on creation and write back on teardown.
func WithStore(store persist.Store) Option {
	return func(o *options) { o.store = store }
}

// WithHydrationState seeds cells from a hydration context's state data.
// The client bootstrap passes HydrationContext.StateData here so the client
// pass computes the same tree the server serialized.
func WithHydrationState(seed map[string]json.RawMessage) Option {
	return func(o *options) { o.seed = seed }
}

// WithContext sets the context used for persistence store calls.
func WithContext(ctx context.Context) Option {
	return func(o *options) { o.ctx = ctx }
}

// WithWake installs a hook invoked when work posted via Root.Do needs a
// flush. Event-loop embedders use it to schedule Root.Flush on their loop;
// without it, posted work runs at the next flush.
func WithWake(wake func()) Option {
	return func(o *options) { o.wake = wake }
}

// FileConfig is the YAML-loadable subset of runtime configuration.
//
//	batch_mode: deferred
//	max_scope_passes: 25
//	compatibility_policy: deep
type FileConfig struct {
	BatchMode           string `yaml:"batch_mode"`
	MaxScopePasses      int    `yaml:"max_scope_passes"`
	CompatibilityPolicy string `yaml:"compatibility_policy"`
}

// LoadConfig reads a FileConfig from a YAML file.
func LoadConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &fc, nil
}

// RootOptions maps the file config onto Root options.
func (fc *FileConfig) RootOptions() ([]Option, error) {
	var opts []Option
	switch fc.BatchMode {
	case "", "immediate":
		opts = append(opts, WithBatchMode(BatchImmediate))
	case "deferred":
		opts = append(opts, WithBatchMode(BatchDeferred))
	default:
		return nil, fmt.Errorf("unknown batch_mode %q", fc.BatchMode)
	}
	if fc.MaxScopePasses > 0 {
		opts = append(opts, WithMaxScopePasses(fc.MaxScopePasses))
	}
	return opts, nil
}

// Policy returns the configured hydration compatibility policy.
func (fc *FileConfig) Policy() (CompatibilityPolicy, error) {
	switch fc.CompatibilityPolicy {
	case "", "deep":
		return PolicyDeep, nil
	case "shallow":
		return PolicyShallow, nil
	default:
		return PolicyDeep, fmt.Errorf("unknown compatibility_policy %q", fc.CompatibilityPolicy)
	}
}
