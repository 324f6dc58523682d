package emit

import "context"

// Emitter receives observability events from workflow execution.
//
// Emitters enable pluggable observability backends: logging, distributed
// tracing, metrics, analytics. Implementations should be non-blocking,
// thread-safe, and resilient: a failing backend must not crash or stall
// the workflow. The executor additionally guards every call, so a panicking
// emitter degrades to a dropped event, never a failed run.
type Emitter interface {
	// Emit delivers a single event. Must not block workflow execution;
	// buffer, drop, or hand off asynchronously when the backend is slow.
	Emit(event Event)

	// EmitBatch delivers multiple events in order. Implementations should
	// process the batch without blocking execution and handle partial
	// failures internally. The returned error is advisory.
	EmitBatch(ctx context.Context, events []Event) error

	// Flush drains any internal buffer, blocking until delivery completes,
	// the context is done, or the attempt fails. Safe to call repeatedly.
	Flush(ctx context.Context) error
}
