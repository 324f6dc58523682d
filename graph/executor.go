package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// LastEdgeIDKey records the id of the edge taken by the most recent
// Traverse that identified one. Readable by nodes and callers alike.
var LastEdgeIDKey = NewKey[string]("last_edge_id")

// Executor is the command-driven interpreter: it repeatedly fetches the
// current node, invokes it, and applies the returned command until the
// workflow completes, suspends, or fails.
//
// An Executor is stateless between calls; the topology and options are
// read-only after construction, so one Executor may serve concurrent
// executions.
//
// Type parameter S is the workflow's user data type.
type Executor[S any] struct {
	topology *Topology[S]
	opts     Options
	mon      monitor
}

// NewExecutor creates an interpreter over the topology.
func NewExecutor[S any](topology *Topology[S], opts Options) *Executor[S] {
	opts = opts.withDefaults()
	return &Executor[S]{
		topology: topology,
		opts:     opts,
		mon:      monitor{emitter: opts.Emitter},
	}
}

// Execute runs the interpreter loop from the given state to a terminal
// result. The step counter starts fresh, so resuming a suspended workflow
// re-applies the step and time limits from the resume point.
//
// Cancellation of ctx is cooperative: it is observed between steps and
// passed to every node invocation.
func (ex *Executor[S]) Execute(ctx context.Context, state State[S]) Result[S] {
	res := ex.run(ctx, state)
	switch res.Status {
	case StatusSuccess:
		ex.mon.workflowCompleted(state.WorkflowID, 0)
	case StatusFailure:
		ex.opts.Metrics.recordError(res.Err.Code)
		ex.mon.workflowError(state.WorkflowID, 0, res.Err)
	case StatusSuspended:
		ex.opts.Metrics.recordSuspension(state.WorkflowID)
	}
	return res
}

// run is the step loop. Kept separate from Execute so terminal monitor
// events fire exactly once per execution, including nested fork branches
// which call run directly.
func (ex *Executor[S]) run(ctx context.Context, state State[S]) Result[S] {
	start := time.Now() // monotonic; duration comparisons only
	step := 0
	var visited map[NodeID]bool
	if ex.opts.DetectCycles {
		visited = make(map[NodeID]bool)
	}

	for {
		// Limit checks run before anything else each iteration.
		if step >= ex.opts.MaxExecutionSteps {
			err := NewExecutionError(CodeMaxStepsExceeded, state.Current,
				fmt.Sprintf("execution exceeded %d steps", ex.opts.MaxExecutionSteps), nil)
			return failureResult[S](state.WorkflowID, err, nil, state.Context)
		}
		if time.Since(start) > ex.opts.MaxExecutionTime {
			err := NewExecutionError(CodeExecutionTimeout, state.Current,
				fmt.Sprintf("execution exceeded %v", ex.opts.MaxExecutionTime), nil)
			return failureResult[S](state.WorkflowID, err, nil, state.Context)
		}
		if ctx.Err() != nil {
			err := NewExecutionError(CodeCancelled, state.Current, "execution cancelled", ctx.Err())
			return failureResult[S](state.WorkflowID, err, nil, state.Context)
		}
		step++

		// Fetch the current node. Traverse targets are checked before the
		// transition, so a missing node here comes from a start, resumed or
		// fork-branch state that names an unknown node.
		node, ok := ex.topology.Node(state.Current)
		if !ok {
			err := NewExecutionError(CodeNodeNotFound, state.Current,
				fmt.Sprintf("node not found during execution: %s", state.Current), nil)
			return failureResult[S](state.WorkflowID, err, nil, state.Context)
		}

		// Cycle check.
		if visited != nil {
			if visited[state.Current] && !ex.opts.AllowCycles {
				err := NewExecutionError(CodeCycleDetected, state.Current,
					fmt.Sprintf("node %s visited twice", state.Current), nil)
				return failureResult[S](state.WorkflowID, err, nil, state.Context)
			}
			visited[state.Current] = true
		}

		// Invoke the node. Panics and returned errors are both wrapped
		// as node execution errors attributed to the current node.
		ex.mon.nodeStarted(state.WorkflowID, state.Current, step)
		nodeStart := time.Now()
		cmd, nodeErr := ex.invoke(ctx, node, state)
		elapsed := time.Since(nodeStart)
		ex.opts.Metrics.recordStep(state.WorkflowID)
		ex.opts.Metrics.recordNodeDuration(state.Current, elapsed, nodeErr != nil)

		if nodeErr != nil {
			we := asWorkflowError(nodeErr, state.Current)
			ex.mon.nodeError(state.WorkflowID, state.Current, step, we)
			return failureResult[S](state.WorkflowID, we, nil, state.Context)
		}
		ex.mon.nodeCompleted(state.WorkflowID, state.Current, step, elapsed)

		// Apply the command.
		switch c := cmd.(type) {
		case Complete[S]:
			final := state.terminal(c.Updates)
			return successResult(state.WorkflowID, c.Result, final.Context)

		case Fail[S]:
			we := c.Err
			if we == nil {
				we = NewExecutionError(CodeNodeExecutionError, state.Current,
					"node returned Fail with nil error", nil)
			} else if we.NodeID == "" {
				we = asWorkflowError(we, state.Current)
			}
			ex.mon.nodeError(state.WorkflowID, state.Current, step, we)
			return failureResult[S](state.WorkflowID, we, nil, state.Context)

		case Suspend[S]:
			if !node.CanSuspend() {
				ex.mon.warning(state.WorkflowID, state.Current, step,
					fmt.Sprintf("node %s suspended but is not declared suspendable", state.Current))
			}
			snap := newSnapshot(state.MergeContext(c.Updates), c.Reason, c.Timeout)
			ex.mon.workflowSuspended(state.WorkflowID, state.Current, step, c.Reason)
			return suspendedResult(state.WorkflowID, snap, c.Reason)

		case Traverse[S]:
			next, err := ex.applyTraverse(state, c, step)
			if err != nil {
				ex.mon.nodeError(state.WorkflowID, state.Current, step, err)
				return failureResult[S](state.WorkflowID, err, nil, state.Context)
			}
			state = next

		case Fork[S]:
			return ex.executeFork(ctx, state, c)

		case Join[S]:
			// Outside a fork region a Join is a legitimate no-op step:
			// merge its updates and complete at the current state.
			final := state.terminal(c.Updates)
			return successResult(state.WorkflowID, final.Data, final.Context)

		case nil:
			err := NewExecutionError(CodeNodeExecutionError, state.Current,
				"node returned no command", nil)
			ex.mon.nodeError(state.WorkflowID, state.Current, step, err)
			return failureResult[S](state.WorkflowID, err, nil, state.Context)

		default:
			err := NewSystemError(CodeInternal, SeverityCritical,
				fmt.Sprintf("unknown command type %T", cmd), nil)
			return failureResult[S](state.WorkflowID, err, nil, state.Context)
		}
	}
}

// invoke runs a node with panic recovery. A panicking node degrades to a
// node execution error instead of crashing the whole process.
func (ex *Executor[S]) invoke(ctx context.Context, node Node[S], state State[S]) (cmd Command[S], err error) {
	defer func() {
		if r := recover(); r != nil {
			cmd = nil
			err = NewExecutionError(CodeNodeExecutionError, state.Current,
				fmt.Sprintf("node panicked: %v", r), nil)
		}
	}()
	return node.Process(ctx, state)
}

// applyTraverse resolves a Traverse command into the next state.
//
// Edge resolution: the first declared edge (current → target) wins. When
// one exists its id is recorded under LastEdgeIDKey and its condition, if
// any, is asserted against the originating state; a false condition is a
// CONDITION_FAILED error, not a re-route. When no edge exists the executor
// warns and transitions anyway.
func (ex *Executor[S]) applyTraverse(state State[S], c Traverse[S], step int) (State[S], *WorkflowError) {
	updates := c.Updates
	edge, found := ex.topology.findEdge(state.Current, c.Target)
	if found {
		if edge.Condition != nil && !edge.Condition(state) {
			return state, NewExecutionError(CodeConditionFailed, state.Current,
				fmt.Sprintf("condition on edge %s (%s -> %s) not satisfied", edge.ID, edge.From, edge.To), nil)
		}
		updates = With(updates, LastEdgeIDKey, string(edge.ID))
		ex.mon.nodeTransition(state.WorkflowID, edge.ID, state.Current, c.Target, step)
	} else {
		ex.mon.warning(state.WorkflowID, state.Current, step,
			fmt.Sprintf("no edge from %s to %s; transitioning anyway", state.Current, c.Target))
		ex.mon.nodeTransition(state.WorkflowID, "", state.Current, c.Target, step)
	}

	if _, ok := ex.topology.Node(c.Target); !ok {
		return state, NewExecutionError(CodeNodeNotFound, state.Current,
			fmt.Sprintf("traverse target not in topology: %s", c.Target), nil)
	}

	return state.advanceTo(c.Target, updates, c.NewData), nil
}

// deepCopyData clones user data through a JSON round-trip so fork branches
// cannot alias each other's pointers or slices. S must be JSON-serializable,
// the same requirement snapshots already impose.
func deepCopyData[S any](data S) (S, error) {
	var out S
	raw, err := json.Marshal(data)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}
