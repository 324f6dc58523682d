package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/agents4j/agents4j-go/graph/store"
)

// Workflow is the caller-facing facade over a validated topology: start an
// execution, start one asynchronously, resume a suspended snapshot, or
// re-validate the definition.
//
// A Workflow is immutable after construction and safe for concurrent use;
// each Start creates an independent execution with its own WorkflowID.
//
// Example:
//
//	topology, err := graph.NewTopologyBuilder[string]().
//	    AddNode(classify).
//	    AddNode(answer).
//	    Connect("classify", "answer").
//	    DefaultEntryPoint("classify").
//	    Build()
//	if err != nil { ... }
//
//	wf, err := graph.NewWorkflow(topology, graph.WithMaxExecutionSteps(50))
//	result := wf.Start(ctx, "my invoice is wrong")
type Workflow[S any] struct {
	topology   *Topology[S]
	opts       Options
	executor   *Executor[S]
	serializer *Serializer[S]
	mon        monitor
}

// NewWorkflow validates the topology and builds the facade.
func NewWorkflow[S any](topology *Topology[S], options ...Option) (*Workflow[S], error) {
	if topology == nil {
		return nil, NewValidationError(CodeInvalidTopology, "topology is nil")
	}
	if vr := topology.Validate(); !vr.Valid() {
		return nil, NewValidationError(CodeInvalidTopology, vr.Errors[0]).
			WithDetail("errors", vr.Errors)
	}

	opts := defaultOptions()
	for _, o := range options {
		o(&opts)
	}
	if opts.MaxExecutionSteps < 0 || opts.MaxExecutionTime < 0 {
		return nil, NewValidationError(CodeInvalidConfig, "execution limits must be positive")
	}
	opts = opts.withDefaults()

	return &Workflow[S]{
		topology:   topology,
		opts:       opts,
		executor:   NewExecutor(topology, opts),
		serializer: NewSerializer[S](opts.Registry, opts.Version, opts.Migrations...),
		mon:        monitor{emitter: opts.Emitter},
	}, nil
}

// Validate re-runs topology validation, returning errors and warnings.
func (w *Workflow[S]) Validate() ValidationResult {
	return w.topology.Validate()
}

// Start executes the workflow from the default entry point with a fresh
// workflow id.
func (w *Workflow[S]) Start(ctx context.Context, input S) Result[S] {
	return w.StartAt(ctx, input, w.entry())
}

// StartAt executes the workflow from a specific entry point.
func (w *Workflow[S]) StartAt(ctx context.Context, input S, entry NodeID) Result[S] {
	id := NewWorkflowID()

	if !w.isEntry(entry) {
		err := NewValidationError(CodeInvalidTopology,
			fmt.Sprintf("%s is not an entry point", entry))
		return failureResult[S](id, err, nil, NewContext())
	}

	state := NewState(id, input, entry)
	w.mon.workflowStarted(id, entry)

	res := w.executor.Execute(ctx, state)
	w.persistIfSuspended(ctx, res)
	return res
}

// StartAsync executes the workflow on its own goroutine and delivers the
// result on the returned channel (buffered, never blocks the execution).
func (w *Workflow[S]) StartAsync(ctx context.Context, input S) <-chan Result[S] {
	out := make(chan Result[S], 1)
	go func() {
		out <- w.Start(ctx, input)
		close(out)
	}()
	return out
}

// Resume continues a suspended workflow from its snapshot. The step
// counter restarts, so the step and time limits apply from the resume
// point onward.
//
// A snapshot suspended at a fork join point has no current node; resuming
// it completes immediately with the snapshot's data and context.
func (w *Workflow[S]) Resume(ctx context.Context, snap *Snapshot[S]) Result[S] {
	if snap == nil {
		err := NewSystemError(CodeInternal, SeverityError, "resume called with nil snapshot", nil)
		return failureResult[S]("", err, nil, NewContext())
	}

	state := snap.State
	w.mon.workflowResumed(state.WorkflowID, state.Current)

	if state.Current == "" {
		w.mon.workflowCompleted(state.WorkflowID, 0)
		res := successResult(state.WorkflowID, state.Data, state.Context)
		w.dropSnapshot(ctx, state.WorkflowID)
		return res
	}

	if _, ok := w.topology.Node(state.Current); !ok {
		err := NewExecutionError(CodeNodeNotFound, state.Current,
			fmt.Sprintf("snapshot references node not in topology: %s", state.Current), nil)
		return failureResult[S](state.WorkflowID, err, nil, state.Context)
	}

	res := w.executor.Execute(ctx, state)
	if res.IsSuspended() {
		w.persistIfSuspended(ctx, res)
	} else {
		w.dropSnapshot(ctx, state.WorkflowID)
	}
	return res
}

// ResumeFromStore loads the persisted snapshot for the workflow id from
// the configured store and resumes it. Restore warnings (dropped context
// entries) surface as monitor warnings.
func (w *Workflow[S]) ResumeFromStore(ctx context.Context, id WorkflowID) Result[S] {
	if w.opts.SnapshotStore == nil {
		err := NewSystemError(CodeResourceUnavailable, SeverityError, "no snapshot store configured", nil)
		return failureResult[S](id, err, nil, NewContext())
	}

	rec, err := w.opts.SnapshotStore.Load(ctx, string(id))
	if err != nil {
		werr := NewSystemError(CodeResourceUnavailable, SeverityError,
			fmt.Sprintf("cannot load snapshot for %s: %v", id, err), err)
		return failureResult[S](id, werr, nil, NewContext())
	}

	snap, warnings, uerr := w.serializer.Unmarshal(rec.Payload)
	if uerr != nil {
		return failureResult[S](id, asWorkflowError(uerr, ""), nil, NewContext())
	}
	for _, warning := range warnings {
		w.mon.warning(id, "", 0, warning)
	}

	return w.Resume(ctx, snap)
}

// Serialize renders a snapshot into the persisted JSON layout using the
// workflow's serializer.
func (w *Workflow[S]) Serialize(snap *Snapshot[S]) ([]byte, error) {
	return w.serializer.Marshal(snap)
}

// Deserialize restores a snapshot from its persisted form. Warnings list
// dropped context entries.
func (w *Workflow[S]) Deserialize(data []byte) (*Snapshot[S], []string, error) {
	return w.serializer.Unmarshal(data)
}

// entry resolves the starting node: the default entry point when set,
// otherwise the first declared entry point.
func (w *Workflow[S]) entry() NodeID {
	if d := w.topology.DefaultEntry(); d != "" {
		return d
	}
	entries := w.topology.EntryPoints()
	if len(entries) > 0 {
		return entries[0]
	}
	return ""
}

func (w *Workflow[S]) isEntry(id NodeID) bool {
	for _, e := range w.topology.EntryPoints() {
		if e == id {
			return true
		}
	}
	return false
}

// persistIfSuspended writes the suspension snapshot to the configured
// store. Persistence failures degrade to a monitor warning: the caller
// still holds the in-memory snapshot.
func (w *Workflow[S]) persistIfSuspended(ctx context.Context, res Result[S]) {
	if !res.IsSuspended() || w.opts.SnapshotStore == nil {
		return
	}
	payload, err := w.serializer.Marshal(res.Snapshot)
	if err != nil {
		w.mon.warning(res.WorkflowID, "", 0, fmt.Sprintf("snapshot not persisted: %v", err))
		return
	}
	rec := store.Record{
		WorkflowID: string(res.WorkflowID),
		Payload:    payload,
		Reason:     res.Reason,
		SavedAt:    time.Now().UTC(),
	}
	if err := w.opts.SnapshotStore.Save(ctx, rec); err != nil {
		w.mon.warning(res.WorkflowID, "", 0, fmt.Sprintf("snapshot not persisted: %v", err))
	}
}

// dropSnapshot removes the persisted snapshot after a resumed workflow
// reaches a terminal result.
func (w *Workflow[S]) dropSnapshot(ctx context.Context, id WorkflowID) {
	if w.opts.SnapshotStore == nil {
		return
	}
	if err := w.opts.SnapshotStore.Delete(ctx, string(id)); err != nil {
		w.mon.warning(id, "", 0, fmt.Sprintf("stale snapshot not deleted: %v", err))
	}
}
