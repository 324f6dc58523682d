package graph

import "context"

// NodeType classifies a node for monitors and validators.
type NodeType string

const (
	// NodeTypeAgent marks nodes that perform model-backed computation.
	NodeTypeAgent NodeType = "AGENT"

	// NodeTypeRouter marks nodes that choose between outgoing edges by
	// analyzing content. See Router.
	NodeTypeRouter NodeType = "ROUTER"

	// NodeTypeJoin marks nodes that serve as fork convergence points.
	NodeTypeJoin NodeType = "JOIN"

	// NodeTypeOther marks nodes with no special classification.
	NodeTypeOther NodeType = "OTHER"
)

// Node is a processing unit in the workflow graph.
//
// A node receives the current state snapshot, performs its computation
// (an LLM call, a tool invocation, plain logic), and returns a Command
// instructing the executor how to continue.
//
// Nodes must treat the state as read-only: updates travel in the returned
// command and are applied by the executor. A node that blocks should honor
// ctx cancellation between its logical sub-operations; nodes that ignore it
// are still cut off at the next command boundary.
//
// Type parameter S is the user data type shared across the workflow.
type Node[S any] interface {
	// Process executes the node against the given state and returns the
	// command for the executor to apply. Returning a non-nil error is
	// equivalent to returning Fail with a node execution error.
	Process(ctx context.Context, state State[S]) (Command[S], error)

	// ID returns the node's unique identifier within the topology.
	ID() NodeID

	// Name returns the human-readable node name.
	Name() string

	// Type returns the node classification.
	Type() NodeType

	// CanBeEntryPoint reports whether the workflow may start at this node.
	CanBeEntryPoint() bool

	// CanSuspend reports whether this node may emit Suspend commands.
	CanSuspend() bool

	// Validate checks the node's own configuration. Called during topology
	// validation; a non-nil error fails construction.
	Validate() error
}

// NodeFunc adapts a plain function into a Node. The resulting node is typed
// OTHER, may be an entry point, may suspend, and always validates.
//
// Example:
//
//	upper := graph.NodeFunc[string]("upper", func(ctx context.Context, s graph.State[string]) (graph.Command[string], error) {
//	    return graph.Complete[string]{Result: strings.ToUpper(s.Data)}, nil
//	})
func NodeFunc[S any](id NodeID, fn func(ctx context.Context, state State[S]) (Command[S], error)) Node[S] {
	return &funcNode[S]{id: id, fn: fn}
}

type funcNode[S any] struct {
	id NodeID
	fn func(ctx context.Context, state State[S]) (Command[S], error)
}

func (n *funcNode[S]) Process(ctx context.Context, state State[S]) (Command[S], error) {
	return n.fn(ctx, state)
}

func (n *funcNode[S]) ID() NodeID            { return n.id }
func (n *funcNode[S]) Name() string          { return string(n.id) }
func (n *funcNode[S]) Type() NodeType        { return NodeTypeOther }
func (n *funcNode[S]) CanBeEntryPoint() bool { return true }
func (n *funcNode[S]) CanSuspend() bool      { return true }
func (n *funcNode[S]) Validate() error       { return nil }

// BaseNode carries the identity half of the node contract for custom node
// types. Embed it and implement Process:
//
//	type scoring struct {
//	    graph.BaseNode
//	}
//
//	func newScoring() *scoring {
//	    return &scoring{BaseNode: graph.NewBaseNode("score", "Scoring", graph.NodeTypeAgent)}
//	}
type BaseNode struct {
	id      NodeID
	name    string
	typ     NodeType
	entry   bool
	suspend bool
}

// NewBaseNode creates a BaseNode that may serve as an entry point and may
// suspend. Use WithoutEntry / WithoutSuspend for stricter nodes.
func NewBaseNode(id NodeID, name string, typ NodeType) BaseNode {
	return BaseNode{id: id, name: name, typ: typ, entry: true, suspend: true}
}

// WithoutEntry returns a copy that refuses to serve as an entry point.
func (b BaseNode) WithoutEntry() BaseNode {
	b.entry = false
	return b
}

// WithoutSuspend returns a copy that declares it never suspends.
func (b BaseNode) WithoutSuspend() BaseNode {
	b.suspend = false
	return b
}

func (b BaseNode) ID() NodeID            { return b.id }
func (b BaseNode) Name() string          { return b.name }
func (b BaseNode) Type() NodeType        { return b.typ }
func (b BaseNode) CanBeEntryPoint() bool { return b.entry }
func (b BaseNode) CanSuspend() bool      { return b.suspend }
func (b BaseNode) Validate() error       { return nil }
