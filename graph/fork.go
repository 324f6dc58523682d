package graph

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// forkResultsKey addresses the declaration-ordered branch values a fork
// leaves in the parent context. Generic so the slice is typed to the
// workflow's data type.
func forkResultsKey[S any]() Key[[]S] {
	return NewKey[[]S]("fork_results")
}

// ForkResults retrieves the values completed fork branches produced, in
// declaration order of the fork's targets.
func ForkResults[S any](c Context) ([]S, bool) {
	return Get(c, forkResultsKey[S]())
}

// executeFork runs each fork target as an independent branch and joins the
// results.
//
// Guarantees:
//   - Isolation: every branch is seeded with a copy of the parent context
//     and deep-copied data; sibling updates are invisible until the join.
//   - Determinism: branch contexts merge into the parent in declaration
//     order of Targets, last write wins per key.
//   - Fail-fast: with Options.FailFast, the first failing branch cancels
//     its siblings; otherwise all branches run and errors aggregate.
//   - Group timeout: when the Fork carries one, unfinished branches are
//     cancelled on expiry and the group fails with EXECUTION_TIMEOUT.
//
// A branch terminates on Complete, Suspend, or Fail. When every branch
// completes, the parent completes with the merged context and the branch
// values recorded under the fork results key. When a branch suspends (and
// none failed), the whole group suspends at the join point: the snapshot
// has no current node and carries the merged context of completed branches.
func (ex *Executor[S]) executeFork(ctx context.Context, state State[S], c Fork[S]) Result[S] {
	// A fork of size zero is an immediate join.
	if len(c.Targets) == 0 {
		final := state.terminal(c.Updates)
		return successResult(state.WorkflowID, final.Data, final.Context)
	}

	groupCtx := ctx
	var cancelGroup context.CancelFunc
	if c.Timeout > 0 {
		groupCtx, cancelGroup = context.WithTimeout(ctx, c.Timeout)
	} else {
		groupCtx, cancelGroup = context.WithCancel(ctx)
	}
	defer cancelGroup()

	// Outcomes are indexed by declaration order, which is what makes the
	// join merge deterministic.
	outcomes := make([]Result[S], len(c.Targets))
	var wg sync.WaitGroup

	for i, target := range c.Targets {
		seed, err := ex.branchSeed(state, c, target)
		if err != nil {
			return failureResult[S](state.WorkflowID, err, nil, state.Context)
		}

		wg.Add(1)
		ex.opts.Metrics.branchStarted()
		go func(i int, seed State[S]) {
			defer wg.Done()
			defer ex.opts.Metrics.branchFinished()

			res := ex.run(groupCtx, seed)
			outcomes[i] = res

			if res.IsFailure() && ex.opts.FailFast {
				cancelGroup()
			}
		}(i, seed)
	}

	wg.Wait()

	// A group deadline that fired converts the whole fork into a timeout,
	// regardless of how individual branches observed the cancellation.
	if c.Timeout > 0 && groupCtx.Err() == context.DeadlineExceeded {
		err := NewExecutionError(CodeExecutionTimeout, state.Current,
			fmt.Sprintf("fork group exceeded %v", c.Timeout), nil)
		return failureResult[S](state.WorkflowID, err, nil, state.Context)
	}

	return ex.joinBranches(state, c, outcomes)
}

// branchSeed builds the isolated starting state for one branch.
func (ex *Executor[S]) branchSeed(state State[S], c Fork[S], target NodeID) (State[S], *WorkflowError) {
	var data S
	if c.BranchData != nil {
		data = c.BranchData(state, target)
	} else {
		copied, err := deepCopyData(state.Data)
		if err != nil {
			return state, NewSystemError(CodeSerializationError, SeverityError,
				fmt.Sprintf("cannot copy state data for branch %s: %v", target, err), err)
		}
		data = copied
	}
	return state.forkBranch(target, c.Updates, data), nil
}

// joinBranches aggregates terminated branches into the parent result.
func (ex *Executor[S]) joinBranches(state State[S], c Fork[S], outcomes []Result[S]) Result[S] {
	var failures []*WorkflowError
	var suspended *Result[S]

	merged := state.Context.Merge(c.Updates)
	values := make([]S, 0, len(outcomes))

	for i := range outcomes {
		out := outcomes[i]
		switch {
		case out.IsFailure():
			failures = append(failures, out.Err)
		case out.IsSuspended():
			if suspended == nil {
				suspended = &outcomes[i]
			}
		default:
			merged = merged.Merge(out.FinalContext)
			values = append(values, out.Value)
		}
	}

	if len(failures) > 0 {
		err := failures[0]
		if len(failures) > 1 {
			msgs := make([]string, len(failures))
			for i, f := range failures {
				msgs[i] = f.Error()
			}
			err = err.WithDetail("branch_errors", msgs)
		}
		return failureResult[S](state.WorkflowID, err, nil, merged)
	}

	if suspended != nil {
		// Suspended at the join point: no current node (the fork has no
		// single position), merged context of the completed branches.
		joinState := state
		joinState.Current = ""
		joinState.Context = merged
		joinState.Metadata = state.Metadata.bump(time.Now().UTC())
		snap := newSnapshot(joinState, suspended.Reason, 0)
		return suspendedResult(state.WorkflowID, snap, suspended.Reason)
	}

	merged = With(merged, forkResultsKey[S](), values)
	return successResult(state.WorkflowID, state.Data, merged)
}
