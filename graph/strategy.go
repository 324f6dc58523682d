package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Context keys strategies use to record intermediate results. Strategies
// are pure data-flow combinators: they never touch workflow state, only
// these context entries.
var (
	// ExecutedNodesKey lists the ids of nodes a strategy actually ran.
	ExecutedNodesKey = NewKey[[]string]("executed_nodes")

	// SkippedNodesKey lists the ids a conditional strategy skipped.
	SkippedNodesKey = NewKey[[]string]("skipped_nodes")

	// FailedStepKey names the node whose failure a sequential strategy
	// absorbed under ContinueOnError.
	FailedStepKey = NewKey[string]("failed_step")
)

// StepInputKey addresses the input recorded for step i of a strategy run.
func StepInputKey[S any](i int) Key[S] {
	return NewKey[S](fmt.Sprintf("step_%d_input", i))
}

// StepOutputKey addresses the output recorded for step i of a strategy run.
func StepOutputKey[S any](i int) Key[S] {
	return NewKey[S](fmt.Sprintf("step_%d_output", i))
}

// Strategy runs a list of nodes against one input within a context.
//
// Implementations: SequentialStrategy, ParallelStrategy,
// ConditionalStrategy, BatchStrategy. Strategies return the data output,
// the context with intermediate results recorded, and a structured error
// with code STRATEGY_EXECUTION_FAILED on failure.
type Strategy[S any] interface {
	Execute(ctx context.Context, nodes []Node[S], input S, wctx Context) (S, Context, *WorkflowError)
}

// runStrategyNode executes one node in data-flow position: the node
// receives a synthetic state around the input, and its command is
// interpreted as a value transformation. Complete yields its result;
// Traverse yields its NewData (or passes the input through); Fail fails.
// Suspension and forking are workflow concerns and are rejected here.
func runStrategyNode[S any](ctx context.Context, node Node[S], input S, wctx Context) (S, Context, *WorkflowError) {
	var zero S

	state := State[S]{
		WorkflowID: "strategy",
		Data:       input,
		Context:    wctx,
		Current:    node.ID(),
		Position:   startPosition(node.ID()),
		Metadata:   Metadata{Version: 1, CreatedAt: time.Now().UTC(), LastModified: time.Now().UTC()},
	}

	cmd, err := func() (cmd Command[S], err error) {
		defer func() {
			if r := recover(); r != nil {
				cmd = nil
				err = fmt.Errorf("node panicked: %v", r)
			}
		}()
		return node.Process(ctx, state)
	}()
	if err != nil {
		return zero, wctx, NewExecutionError(CodeStrategyFailed, node.ID(), err.Error(), err)
	}

	switch c := cmd.(type) {
	case Complete[S]:
		return c.Result, wctx.Merge(c.Updates), nil
	case Traverse[S]:
		out := input
		if c.NewData != nil {
			out = *c.NewData
		}
		return out, wctx.Merge(c.Updates), nil
	case Fail[S]:
		we := c.Err
		if we == nil {
			we = NewExecutionError(CodeStrategyFailed, node.ID(), "node returned Fail with nil error", nil)
		}
		return zero, wctx, we
	case Join[S]:
		return input, wctx.Merge(c.Updates), nil
	default:
		return zero, wctx, NewExecutionError(CodeStrategyFailed, node.ID(),
			fmt.Sprintf("command %T is not valid inside a strategy", cmd), nil)
	}
}

// SequentialStrategy feeds the output of node i into node i+1.
//
// A failing step stops the chain unless ContinueOnError is set, in which
// case the last successful output propagates and the failed step is tagged
// under FailedStepKey.
type SequentialStrategy[S any] struct {
	// ContinueOnError absorbs step failures instead of stopping the chain.
	ContinueOnError bool
}

// Execute implements Strategy.
func (st *SequentialStrategy[S]) Execute(ctx context.Context, nodes []Node[S], input S, wctx Context) (S, Context, *WorkflowError) {
	var zero S
	current := input
	var executed []string

	for i, node := range nodes {
		if ctx.Err() != nil {
			return zero, wctx, NewExecutionError(CodeCancelled, node.ID(), "strategy cancelled", ctx.Err())
		}
		wctx = With(wctx, StepInputKey[S](i), current)
		out, nextCtx, err := runStrategyNode(ctx, node, current, wctx)
		if err != nil {
			if !st.ContinueOnError {
				return zero, wctx, err
			}
			wctx = With(wctx, FailedStepKey, string(node.ID()))
			continue
		}
		wctx = With(nextCtx, StepOutputKey[S](i), out)
		executed = append(executed, string(node.ID()))
		current = out
	}

	wctx = With(wctx, ExecutedNodesKey, executed)
	return current, wctx, nil
}

// AggregationMode selects how ParallelStrategy combines branch outputs.
type AggregationMode string

const (
	// AggregateList keeps all outputs, in node declaration order.
	AggregateList AggregationMode = "list"

	// AggregateMap keys outputs by node id.
	AggregateMap AggregationMode = "map"

	// AggregateFirst keeps only the first declared node's output.
	AggregateFirst AggregationMode = "first"
)

// ParallelResultsKey addresses the declaration-ordered outputs a parallel
// strategy records under AggregateList.
func ParallelResultsKey[S any]() Key[[]S] {
	return NewKey[[]S]("parallel_results")
}

// ParallelResultsMapKey addresses the per-node outputs recorded under
// AggregateMap.
func ParallelResultsMapKey[S any]() Key[map[string]S] {
	return NewKey[map[string]S]("parallel_results_map")
}

// ParallelStrategy runs every node against the original input.
//
// Concurrency is bounded by MaxConcurrency (unbounded when zero). With
// FailFast, the first failure cancels outstanding nodes. A Timeout bounds
// the whole group; on expiry outstanding nodes are cancelled and the
// strategy fails.
type ParallelStrategy[S any] struct {
	MaxConcurrency int
	Timeout        time.Duration
	FailFast       bool
	Aggregation    AggregationMode
}

// Execute implements Strategy.
func (st *ParallelStrategy[S]) Execute(ctx context.Context, nodes []Node[S], input S, wctx Context) (S, Context, *WorkflowError) {
	var zero S
	if len(nodes) == 0 {
		return input, wctx, nil
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if st.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, st.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	type slot struct {
		out S
		err *WorkflowError
	}
	results := make([]slot, len(nodes))

	var sem chan struct{}
	if st.MaxConcurrency > 0 {
		sem = make(chan struct{}, st.MaxConcurrency)
	}

	var wg sync.WaitGroup
	for i, node := range nodes {
		wg.Add(1)
		go func(i int, node Node[S]) {
			defer wg.Done()
			if sem != nil {
				select {
				case sem <- struct{}{}:
					defer func() { <-sem }()
				case <-runCtx.Done():
					results[i].err = NewExecutionError(CodeCancelled, node.ID(), "parallel step cancelled", runCtx.Err())
					return
				}
			}
			if runCtx.Err() != nil {
				results[i].err = NewExecutionError(CodeCancelled, node.ID(), "parallel step cancelled", runCtx.Err())
				return
			}
			out, _, err := runStrategyNode(runCtx, node, input, wctx)
			if err != nil {
				// A node that observed the group cancellation reports a
				// context error; classify it as cancelled so it cannot
				// mask the failure that triggered the cancel.
				if errors.Is(err.Cause, context.Canceled) || errors.Is(err.Cause, context.DeadlineExceeded) {
					err = NewExecutionError(CodeCancelled, node.ID(), "parallel step cancelled", err.Cause)
				}
				results[i].err = err
				if err.Code != CodeCancelled && st.FailFast {
					cancel()
				}
				return
			}
			results[i].out = out
		}(i, node)
	}
	wg.Wait()

	if st.Timeout > 0 && runCtx.Err() == context.DeadlineExceeded {
		return zero, wctx, NewExecutionError(CodeStrategyFailed, "",
			fmt.Sprintf("parallel strategy exceeded %v", st.Timeout), context.DeadlineExceeded)
	}

	// Surface the real failure first: under fail-fast, sibling results
	// carry cancellation errors that must not mask the node that failed.
	var cancelled *WorkflowError
	for i, node := range nodes {
		if results[i].err == nil {
			continue
		}
		if results[i].err.Code == CodeCancelled {
			if cancelled == nil {
				cancelled = results[i].err
			}
			continue
		}
		err := NewExecutionError(CodeStrategyFailed, node.ID(),
			fmt.Sprintf("parallel step %s failed: %s", node.ID(), results[i].err.Message), results[i].err)
		return zero, wctx, err
	}
	if cancelled != nil && st.FailFast {
		return zero, wctx, cancelled
	}

	var executed []string
	outputs := make([]S, 0, len(nodes))
	byNode := make(map[string]S, len(nodes))
	for i, node := range nodes {
		if results[i].err != nil {
			continue
		}
		executed = append(executed, string(node.ID()))
		outputs = append(outputs, results[i].out)
		byNode[string(node.ID())] = results[i].out
	}
	wctx = With(wctx, ExecutedNodesKey, executed)

	switch st.Aggregation {
	case AggregateMap:
		wctx = With(wctx, ParallelResultsMapKey[S](), byNode)
		return input, wctx, nil
	case AggregateFirst:
		if len(outputs) == 0 {
			return input, wctx, nil
		}
		return outputs[0], wctx, nil
	default: // AggregateList
		wctx = With(wctx, ParallelResultsKey[S](), outputs)
		return input, wctx, nil
	}
}

// Condition gates one node of a conditional strategy.
type Condition[S any] func(input S, wctx Context) bool

// ConditionalStrategy runs only the nodes whose condition is satisfied.
//
// A condition that panics counts as non-matching and the failure is
// recorded in context. Options: ShortCircuit stops after the first match;
// RequireAtLeastOne fails the run when nothing matched; DefaultCondition
// applies to nodes with no condition entry; ResultSelector reduces the
// matched outputs (last output wins when nil).
type ConditionalStrategy[S any] struct {
	Conditions        map[NodeID]Condition[S]
	ShortCircuit      bool
	RequireAtLeastOne bool
	DefaultCondition  bool
	ResultSelector    func(outputs []S, input S) S
}

// Execute implements Strategy.
func (st *ConditionalStrategy[S]) Execute(ctx context.Context, nodes []Node[S], input S, wctx Context) (S, Context, *WorkflowError) {
	var zero S
	var executed, skipped []string
	var outputs []S

	for _, node := range nodes {
		if ctx.Err() != nil {
			return zero, wctx, NewExecutionError(CodeCancelled, node.ID(), "strategy cancelled", ctx.Err())
		}
		if !st.evaluate(node.ID(), input, &wctx) {
			skipped = append(skipped, string(node.ID()))
			continue
		}
		out, nextCtx, err := runStrategyNode(ctx, node, input, wctx)
		if err != nil {
			return zero, wctx, err
		}
		wctx = nextCtx
		executed = append(executed, string(node.ID()))
		outputs = append(outputs, out)
		if st.ShortCircuit {
			break
		}
	}

	wctx = With(wctx, ExecutedNodesKey, executed)
	wctx = With(wctx, SkippedNodesKey, skipped)

	if len(outputs) == 0 {
		if st.RequireAtLeastOne {
			return zero, wctx, NewExecutionError(CodeStrategyFailed, "",
				"no node satisfied its condition", nil)
		}
		return input, wctx, nil
	}

	if st.ResultSelector != nil {
		return st.ResultSelector(outputs, input), wctx, nil
	}
	return outputs[len(outputs)-1], wctx, nil
}

// evaluate runs one node's condition with panic containment. A panicking
// predicate reads as non-matching and is tagged under FailedStepKey.
func (st *ConditionalStrategy[S]) evaluate(id NodeID, input S, wctx *Context) (matched bool) {
	cond, ok := st.Conditions[id]
	if !ok {
		return st.DefaultCondition
	}
	defer func() {
		if r := recover(); r != nil {
			*wctx = With(*wctx, FailedStepKey, string(id))
			matched = false
		}
	}()
	return cond(input, *wctx)
}

// BatchStrategy partitions an input list into batches and executes every
// item through an inner strategy, batch by batch.
//
// Split turns the single input into items and Combine rebuilds the output
// from per-item results; both are required. Batches run sequentially;
// items within a batch run concurrently.
type BatchStrategy[S any] struct {
	// BatchSize is the maximum items per batch. Values below 1 mean 1.
	BatchSize int

	// Inner executes the node list for one item. Nil means Sequential.
	Inner Strategy[S]

	// Split partitions the input into items.
	Split func(input S) []S

	// Combine rebuilds the strategy output from per-item outputs,
	// in input order.
	Combine func(outputs []S) S
}

// Execute implements Strategy.
func (st *BatchStrategy[S]) Execute(ctx context.Context, nodes []Node[S], input S, wctx Context) (S, Context, *WorkflowError) {
	var zero S
	if st.Split == nil || st.Combine == nil {
		return zero, wctx, NewExecutionError(CodeStrategyFailed, "",
			"batch strategy requires Split and Combine", nil)
	}

	inner := st.Inner
	if inner == nil {
		inner = &SequentialStrategy[S]{}
	}
	size := st.BatchSize
	if size < 1 {
		size = 1
	}

	items := st.Split(input)
	outputs := make([]S, len(items))

	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}

		var wg sync.WaitGroup
		errs := make([]*WorkflowError, end-start)
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				out, _, err := inner.Execute(ctx, nodes, items[i], wctx)
				if err != nil {
					errs[i-start] = err
					return
				}
				outputs[i] = out
			}(i)
		}
		wg.Wait()

		for _, err := range errs {
			if err != nil {
				return zero, wctx, err
			}
		}
	}

	return st.Combine(outputs), wctx, nil
}
