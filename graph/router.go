package graph

import (
	"context"
	"fmt"
	"strconv"
)

// Context keys the routing layer records for observability and tests.
var (
	// RoutingConfidenceKey holds the confidence of the last routing decision.
	RoutingConfidenceKey = NewKey[float64]("routing_confidence")

	// RoutingReasoningKey holds the router's explanation for its decision.
	RoutingReasoningKey = NewKey[string]("routing_reasoning")

	// FallbackReasonKey explains why a routing workflow fell back.
	FallbackReasonKey = NewKey[string]("fallback_reason")

	// SelectedRouteKey holds the id of the route that actually executed.
	SelectedRouteKey = NewKey[string]("selected_route")
)

// RoutingDecision is the outcome of content analysis: the chosen target,
// how confident the router is in it, and the also-rans.
type RoutingDecision struct {
	// Target is the chosen candidate.
	Target NodeID

	// Confidence is the router's certainty, in [0, 1].
	Confidence float64

	// Reasoning explains the choice, for monitors and debugging.
	Reasoning string

	// Alternatives lists other viable candidates, best first.
	Alternatives []NodeID
}

// Router is a node that chooses its Traverse target by analyzing the
// current data against a candidate set. The interpreter treats routers
// like any other node; routing is a policy layered above it.
//
// The same Route operation also drives RoutingWorkflow, where the
// candidates are route ids rather than node ids.
type Router[S any] interface {
	Node[S]

	// Route picks a target from candidates for the given data and context.
	Route(ctx context.Context, data S, candidates []NodeID, wctx Context) (RoutingDecision, error)
}

// RouteFunc is the signature of a routing decision function.
type RouteFunc[S any] func(ctx context.Context, data S, candidates []NodeID, wctx Context) (RoutingDecision, error)

// RouterNode is the standard Router implementation: Process delegates to
// the routing function over the candidate set fixed at construction
// (typically the targets of the node's outgoing edges) and returns a
// Traverse to the winner, recording confidence and reasoning in context.
type RouterNode[S any] struct {
	BaseNode
	candidates []NodeID
	route      RouteFunc[S]
}

// NewRouterNode creates a router over a fixed candidate set.
func NewRouterNode[S any](id NodeID, name string, candidates []NodeID, route RouteFunc[S]) *RouterNode[S] {
	base := NewBaseNode(id, name, NodeTypeRouter)
	return &RouterNode[S]{BaseNode: base, candidates: candidates, route: route}
}

// Route implements Router.
func (r *RouterNode[S]) Route(ctx context.Context, data S, candidates []NodeID, wctx Context) (RoutingDecision, error) {
	return r.route(ctx, data, candidates, wctx)
}

// Process routes the current data and traverses to the winner.
func (r *RouterNode[S]) Process(ctx context.Context, state State[S]) (Command[S], error) {
	decision, err := r.route(ctx, state.Data, r.candidates, state.Context)
	if err != nil {
		return nil, err
	}
	updates := With(NewContext(), RoutingConfidenceKey, decision.Confidence)
	if decision.Reasoning != "" {
		updates = With(updates, RoutingReasoningKey, decision.Reasoning)
	}
	return Traverse[S]{Target: decision.Target, Updates: updates}, nil
}

// Validate checks the candidate set and routing function are present.
func (r *RouterNode[S]) Validate() error {
	if len(r.candidates) == 0 {
		return fmt.Errorf("router %s has no candidates", r.ID())
	}
	if r.route == nil {
		return fmt.Errorf("router %s has no routing function", r.ID())
	}
	return nil
}

// Route is a named bundle of nodes executed under a strategy when the
// router selects it.
type Route[S any] struct {
	// ID names the route; it is what the router sees as a candidate.
	ID string

	// Description is shown to humans and may be fed to LLM-backed routers.
	Description string

	// Nodes is the list executed when this route wins.
	Nodes []Node[S]

	// Strategy runs Nodes. Nil means Sequential with defaults.
	Strategy Strategy[S]

	// ConfidenceThreshold is the route-specific minimum confidence.
	// Zero means no route-specific minimum.
	ConfidenceThreshold float64

	// Priority ranks the route for callers; RoutingWorkflow does not read
	// it and presents routes to the router in declaration order.
	Priority int

	// Tags classify the route for monitors.
	Tags []string

	// FallbackID optionally names the route to use when this route's
	// threshold rejects the decision. Empty defers to the workflow-level
	// fallback.
	FallbackID string
}

// RoutingWorkflow combines a router with a set of routes and a fallback.
//
// Execution: the router is invoked with the route ids as candidates; when
// the decision's confidence clears both the route's and the workflow's
// thresholds the chosen route's nodes run under its strategy. Low
// confidence falls back to the fallback route when one exists, otherwise
// fails with LOW_CONFIDENCE.
type RoutingWorkflow[S any] struct {
	router     Router[S]
	routes     map[string]*Route[S]
	routeOrder []string
	fallback   *Route[S]
	threshold  float64
}

// NewRoutingWorkflow creates a routing workflow.
//
// threshold is the workflow-wide confidence minimum. fallback may be nil
// when every decision is expected to clear the thresholds.
func NewRoutingWorkflow[S any](router Router[S], routes []*Route[S], fallback *Route[S], threshold float64) (*RoutingWorkflow[S], error) {
	if router == nil {
		return nil, NewValidationError(CodeInvalidConfig, "routing workflow requires a router")
	}
	if len(routes) == 0 {
		return nil, NewValidationError(CodeInvalidConfig, "routing workflow requires at least one route")
	}
	rw := &RoutingWorkflow[S]{
		router:    router,
		routes:    make(map[string]*Route[S], len(routes)),
		fallback:  fallback,
		threshold: threshold,
	}
	for _, r := range routes {
		if r.ID == "" {
			return nil, NewValidationError(CodeInvalidConfig, "route with empty id")
		}
		if _, dup := rw.routes[r.ID]; dup {
			return nil, NewValidationError(CodeInvalidConfig, fmt.Sprintf("duplicate route id: %s", r.ID))
		}
		rw.routes[r.ID] = r
		rw.routeOrder = append(rw.routeOrder, r.ID)
	}
	return rw, nil
}

// Execute routes the input and runs the winning route's node list.
// Returns the route output, the context accumulated by the run, and any
// failure.
func (rw *RoutingWorkflow[S]) Execute(ctx context.Context, input S, wctx Context) (S, Context, *WorkflowError) {
	var zero S

	candidates := make([]NodeID, len(rw.routeOrder))
	for i, id := range rw.routeOrder {
		candidates[i] = NodeID(id)
	}

	decision, err := rw.router.Route(ctx, input, candidates, wctx)
	if err != nil {
		return zero, wctx, asWorkflowError(err, rw.router.ID())
	}
	wctx = With(wctx, RoutingConfidenceKey, decision.Confidence)
	if decision.Reasoning != "" {
		wctx = With(wctx, RoutingReasoningKey, decision.Reasoning)
	}

	chosen, ok := rw.routes[string(decision.Target)]
	if !ok {
		return zero, wctx, NewExecutionError(CodeNodeNotFound, rw.router.ID(),
			fmt.Sprintf("router chose unknown route: %s", decision.Target), nil)
	}

	threshold := rw.threshold
	if chosen.ConfidenceThreshold > threshold {
		threshold = chosen.ConfidenceThreshold
	}
	if decision.Confidence < threshold {
		reason := fmt.Sprintf("Confidence %s below threshold %s",
			formatConfidence(decision.Confidence), formatConfidence(threshold))
		fb := rw.fallbackFor(chosen)
		if fb == nil {
			return zero, wctx, NewExecutionError(CodeLowConfidence, rw.router.ID(), reason, nil)
		}
		wctx = With(wctx, FallbackReasonKey, reason)
		chosen = fb
	}

	wctx = With(wctx, SelectedRouteKey, chosen.ID)

	strategy := chosen.Strategy
	if strategy == nil {
		strategy = &SequentialStrategy[S]{}
	}
	out, outCtx, serr := strategy.Execute(ctx, chosen.Nodes, input, wctx)
	if serr != nil {
		return zero, outCtx, serr
	}
	return out, outCtx, nil
}

// fallbackFor resolves the route-specific fallback first, then the
// workflow-level one.
func (rw *RoutingWorkflow[S]) fallbackFor(r *Route[S]) *Route[S] {
	if r.FallbackID != "" {
		if fb, ok := rw.routes[r.FallbackID]; ok {
			return fb
		}
	}
	return rw.fallback
}

// formatConfidence renders thresholds the way they were configured:
// 0.4 stays "0.4", not "0.40".
func formatConfidence(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
