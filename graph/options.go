package graph

import (
	"time"

	"github.com/agents4j/agents4j-go/graph/emit"
	"github.com/agents4j/agents4j-go/graph/store"
)

// Default execution limits. Applied when the corresponding option is zero.
const (
	// DefaultMaxExecutionSteps bounds the interpreter step count.
	DefaultMaxExecutionSteps = 1000

	// DefaultMaxExecutionTime bounds total wall-clock execution time.
	DefaultMaxExecutionTime = 5 * time.Minute
)

// Options configures workflow execution behavior.
//
// Zero values are valid: the executor falls back to the limits above, a
// no-op emitter, no metrics, and no snapshot store. The boolean flags are
// taken as given, so a zero Options has cycle detection and fail-fast off;
// NewWorkflow starts from cycle detection on, cycles disallowed, and
// fail-fast forks.
type Options struct {
	// MaxExecutionSteps limits interpreter iterations to prevent runaway
	// executions. Exceeding it fails the run with MAX_STEPS_EXCEEDED.
	// Zero means DefaultMaxExecutionSteps.
	MaxExecutionSteps int

	// MaxExecutionTime limits total wall-clock time for one execution,
	// measured against a monotonic clock. Exceeding it fails the run with
	// EXECUTION_TIMEOUT. Zero means DefaultMaxExecutionTime.
	MaxExecutionTime time.Duration

	// DetectCycles enables the visited-node check. True by default under
	// NewWorkflow; WithCycleDetection(false) turns it off.
	DetectCycles bool

	// AllowCycles permits revisiting nodes when detection is on. With
	// detection on and AllowCycles false, a revisit fails the run with
	// CYCLE_DETECTED.
	AllowCycles bool

	// FailFast controls fork groups: when true (the NewWorkflow default) the first fatal
	// branch cancels its siblings; when false siblings run to completion
	// and errors are aggregated.
	FailFast bool

	// Emitter receives execution events. Nil means a no-op emitter.
	Emitter emit.Emitter

	// Metrics collects Prometheus metrics. Nil disables collection.
	Metrics *Metrics

	// Version is the workflow definition version ("major.minor" or
	// "major.minor.patch") stamped into snapshots and checked on resume.
	// Empty means "1.0".
	Version string

	// Registry restores typed context values from snapshots. Nil means a
	// fresh registry with the primitive types pre-loaded.
	Registry *KeyRegistry

	// Migrations transform snapshot payloads between minor versions.
	Migrations []Migration

	// SnapshotStore persists suspension snapshots. Nil means snapshots are
	// only returned to the caller, never persisted by the engine.
	SnapshotStore store.Store
}

// withDefaults fills in unset limits.
func (o Options) withDefaults() Options {
	if o.MaxExecutionSteps <= 0 {
		o.MaxExecutionSteps = DefaultMaxExecutionSteps
	}
	if o.MaxExecutionTime <= 0 {
		o.MaxExecutionTime = DefaultMaxExecutionTime
	}
	if o.Emitter == nil {
		o.Emitter = emit.NewNullEmitter()
	}
	if o.Version == "" {
		o.Version = "1.0"
	}
	if o.Registry == nil {
		o.Registry = NewKeyRegistry()
	}
	return o
}

// defaultOptions returns the baseline configuration functional options
// mutate: detection on, cycles disallowed, fail-fast forks.
func defaultOptions() Options {
	return Options{
		DetectCycles: true,
		AllowCycles:  false,
		FailFast:     true,
	}
}

// Option is a functional option for configuring a Workflow.
//
// Example:
//
//	wf, err := graph.NewWorkflow(topology,
//	    graph.WithMaxExecutionSteps(200),
//	    graph.WithEmitter(emit.NewLogEmitter(os.Stdout, false)),
//	)
type Option func(*Options)

// WithMaxExecutionSteps limits interpreter iterations.
//
// Workflows with loops should budget depth × max iterations; the default
// of 1000 suits most graphs.
func WithMaxExecutionSteps(n int) Option {
	return func(o *Options) { o.MaxExecutionSteps = n }
}

// WithMaxExecutionTime bounds total wall-clock execution time.
func WithMaxExecutionTime(d time.Duration) Option {
	return func(o *Options) { o.MaxExecutionTime = d }
}

// WithCycleDetection toggles the visited-node check. Detection is on by
// default; disable it only for graphs whose loops are bounded elsewhere.
func WithCycleDetection(enabled bool) Option {
	return func(o *Options) { o.DetectCycles = enabled }
}

// WithAllowCycles permits node revisits while keeping detection on.
func WithAllowCycles(allowed bool) Option {
	return func(o *Options) { o.AllowCycles = allowed }
}

// WithFailFast controls whether the first fatal fork branch cancels its
// siblings (default true).
func WithFailFast(enabled bool) Option {
	return func(o *Options) { o.FailFast = enabled }
}

// WithEmitter installs an observability emitter. The executor guards every
// call: emitter panics are swallowed and never affect execution outcome.
func WithEmitter(e emit.Emitter) Option {
	return func(o *Options) { o.Emitter = e }
}

// WithMetrics installs a Prometheus metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(o *Options) { o.Metrics = m }
}

// WithVersion sets the workflow definition version stamped into snapshots.
func WithVersion(v string) Option {
	return func(o *Options) { o.Version = v }
}

// WithKeyRegistry installs the registry used to restore typed context
// values from snapshots.
func WithKeyRegistry(r *KeyRegistry) Option {
	return func(o *Options) { o.Registry = r }
}

// WithMigrations registers snapshot migrations between minor versions.
func WithMigrations(ms ...Migration) Option {
	return func(o *Options) { o.Migrations = append(o.Migrations, ms...) }
}

// WithSnapshotStore persists suspension snapshots so another process can
// resume them.
func WithSnapshotStore(s store.Store) Option {
	return func(o *Options) { o.SnapshotStore = s }
}
