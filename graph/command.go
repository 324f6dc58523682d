package graph

import "time"

// Command is the result of a node's step, instructing the executor how to
// continue. The variant set is sealed: Traverse, Fork, Join, Suspend,
// Complete, and Fail. Nodes construct variants directly;
// the executor switches over them in its step loop.
//
// Type parameter S is the workflow's user data type.
type Command[S any] interface {
	// isCommand seals the variant set to this package.
	isCommand()
}

// Traverse moves execution to a named target node.
//
// The executor looks up an edge (current → Target): when one exists its id
// is recorded in context and its condition, if any, is asserted; a false
// condition fails the workflow with CONDITION_FAILED. When no edge exists
// the executor emits a warning and transitions anyway; traversal commands
// carry their target and are not re-routed.
type Traverse[S any] struct {
	// Target is the node to execute next.
	Target NodeID

	// Updates is merged into the state context (right-biased).
	Updates Context

	// NewData, when non-nil, replaces the user data for the next step.
	NewData *S
}

// Fork schedules independent parallel execution of each target.
//
// Each branch is seeded by BranchData applied to the parent state and the
// target id; branches observe an isolated copy of the context. Results are
// merged in declaration order of Targets.
type Fork[S any] struct {
	// Targets are the branch entry nodes, in declaration order.
	Targets []NodeID

	// Updates is merged into each branch's seed context.
	Updates Context

	// BranchData produces the user data seed for one branch. When nil,
	// every branch receives a deep copy of the parent data.
	BranchData func(parent State[S], target NodeID) S

	// Timeout bounds the whole fork group. Zero means no group timeout.
	Timeout time.Duration
}

// Join designates a convergence point inside a fork region and terminates
// the branch that emits it. Outside a fork region a Join is a no-op step:
// its updates are merged and the workflow completes at the current state.
type Join[S any] struct {
	// Updates is merged into the branch context before aggregation.
	Updates Context
}

// Suspend pauses the workflow so the caller can serialize a snapshot and
// resume later, typically across a process boundary.
type Suspend[S any] struct {
	// Reason describes why the workflow paused (shown to the caller).
	Reason string

	// Updates is merged into the snapshot context.
	Updates Context

	// Timeout optionally bounds how long the suspension remains resumable.
	// Informational: enforcement belongs to the suspension store.
	Timeout time.Duration
}

// Complete terminates the workflow successfully.
type Complete[S any] struct {
	// Result is the workflow's final value.
	Result S

	// Updates is merged into the final context.
	Updates Context
}

// Fail terminates the workflow with a structured error. The error passes
// through the executor unchanged.
type Fail[S any] struct {
	// Err is the failure surfaced to the caller.
	Err *WorkflowError
}

func (Traverse[S]) isCommand() {}
func (Fork[S]) isCommand()     {}
func (Join[S]) isCommand()     {}
func (Suspend[S]) isCommand()  {}
func (Complete[S]) isCommand() {}
func (Fail[S]) isCommand()     {}
