package graph

import "fmt"

// EdgeCondition is a pure predicate over state and context deciding whether
// an edge may be traversed. Nil means unconditional.
//
// Conditions are enforced as assertions: a Traverse command that identifies
// an edge whose condition is false fails with CONDITION_FAILED rather than
// being re-routed.
type EdgeCondition[S any] func(state State[S]) bool

// Edge connects two nodes in the topology.
type Edge[S any] struct {
	// ID uniquely identifies the edge.
	ID EdgeID

	// From is the source node id.
	From NodeID

	// To is the destination node id.
	To NodeID

	// Condition guards the edge. Nil means always traversable.
	Condition EdgeCondition[S]
}

// Topology is the immutable nodes+edges+entry-points definition a workflow
// executes against. Build one with NewTopologyBuilder; it is read-only afterwards
// and safe to share between concurrent executions.
//
// Edges preserve declaration order: when multiple edges connect the same
// pair of nodes, the first declared wins.
type Topology[S any] struct {
	nodes        map[NodeID]Node[S]
	nodeOrder    []NodeID
	edges        []Edge[S]
	entryPoints  []NodeID
	defaultEntry NodeID
}

// TopologyBuilder accumulates nodes and edges before validation.
type TopologyBuilder[S any] struct {
	nodes        []Node[S]
	edges        []Edge[S]
	entryPoints  []NodeID
	defaultEntry NodeID
}

// NewTopologyBuilder creates an empty builder.
func NewTopologyBuilder[S any]() *TopologyBuilder[S] {
	return &TopologyBuilder[S]{}
}

// AddNode registers a node. Duplicate ids are rejected at Build time.
func (b *TopologyBuilder[S]) AddNode(n Node[S]) *TopologyBuilder[S] {
	b.nodes = append(b.nodes, n)
	return b
}

// AddEdge registers an edge. Declaration order is preserved.
func (b *TopologyBuilder[S]) AddEdge(id EdgeID, from, to NodeID, cond EdgeCondition[S]) *TopologyBuilder[S] {
	b.edges = append(b.edges, Edge[S]{ID: id, From: from, To: to, Condition: cond})
	return b
}

// Connect registers an unconditional edge with a generated id "from->to".
func (b *TopologyBuilder[S]) Connect(from, to NodeID) *TopologyBuilder[S] {
	return b.AddEdge(EdgeID(string(from)+"->"+string(to)), from, to, nil)
}

// AddEntryPoint marks a node as a legal starting point.
func (b *TopologyBuilder[S]) AddEntryPoint(id NodeID) *TopologyBuilder[S] {
	b.entryPoints = append(b.entryPoints, id)
	return b
}

// DefaultEntryPoint sets the entry used when the caller names none.
// The node is added to the entry set if not already present.
func (b *TopologyBuilder[S]) DefaultEntryPoint(id NodeID) *TopologyBuilder[S] {
	b.defaultEntry = id
	for _, e := range b.entryPoints {
		if e == id {
			return b
		}
	}
	b.entryPoints = append(b.entryPoints, id)
	return b
}

// Build validates the accumulated definition and returns the topology.
// Validation errors fail construction; warnings do not.
func (b *TopologyBuilder[S]) Build() (*Topology[S], error) {
	t := &Topology[S]{
		nodes:        make(map[NodeID]Node[S], len(b.nodes)),
		nodeOrder:    make([]NodeID, 0, len(b.nodes)),
		edges:        b.edges,
		entryPoints:  b.entryPoints,
		defaultEntry: b.defaultEntry,
	}
	for _, n := range b.nodes {
		if _, dup := t.nodes[n.ID()]; dup {
			return nil, NewValidationError(CodeInvalidTopology,
				fmt.Sprintf("duplicate node id: %s", n.ID()))
		}
		t.nodes[n.ID()] = n
		t.nodeOrder = append(t.nodeOrder, n.ID())
	}

	result := t.Validate()
	if !result.Valid() {
		return nil, NewValidationError(CodeInvalidTopology, result.Errors[0]).
			WithDetail("errors", result.Errors)
	}
	return t, nil
}

// Node returns the node with the given id.
func (t *Topology[S]) Node(id NodeID) (Node[S], bool) {
	n, ok := t.nodes[id]
	return n, ok
}

// Nodes returns node ids in registration order.
func (t *Topology[S]) Nodes() []NodeID {
	out := make([]NodeID, len(t.nodeOrder))
	copy(out, t.nodeOrder)
	return out
}

// Edges returns the edges in declaration order.
func (t *Topology[S]) Edges() []Edge[S] {
	out := make([]Edge[S], len(t.edges))
	copy(out, t.edges)
	return out
}

// EntryPoints returns the legal starting nodes.
func (t *Topology[S]) EntryPoints() []NodeID {
	out := make([]NodeID, len(t.entryPoints))
	copy(out, t.entryPoints)
	return out
}

// DefaultEntry returns the default starting node, empty when unset.
func (t *Topology[S]) DefaultEntry() NodeID { return t.defaultEntry }

// findEdge locates the first declared edge from→to.
func (t *Topology[S]) findEdge(from, to NodeID) (Edge[S], bool) {
	for _, e := range t.edges {
		if e.From == from && e.To == to {
			return e, true
		}
	}
	return Edge[S]{}, false
}

// outgoing returns the edges leaving from, in declaration order.
func (t *Topology[S]) outgoing(from NodeID) []Edge[S] {
	var out []Edge[S]
	for _, e := range t.edges {
		if e.From == from {
			out = append(out, e)
		}
	}
	return out
}

// ValidationResult collects topology validation findings. Errors prevent
// construction; warnings (unreachable nodes) are advisory.
type ValidationResult struct {
	Errors   []string
	Warnings []string
}

// Valid reports whether validation found no errors.
func (r ValidationResult) Valid() bool { return len(r.Errors) == 0 }

// Validate checks the topology as a pure function of its definition.
//
// Rejected: empty topology; edges referencing unknown nodes; duplicate edge
// ids; entry points naming unknown or non-entry nodes; default entry not in
// the entry set; empty entry set; nodes failing their own Validate.
// Warned: nodes unreachable from any entry point.
func (t *Topology[S]) Validate() ValidationResult {
	var r ValidationResult

	if len(t.nodes) == 0 {
		r.Errors = append(r.Errors, "topology has no nodes")
		return r
	}

	for _, id := range t.nodeOrder {
		if !id.Valid() {
			r.Errors = append(r.Errors, "node with empty id")
		}
		if err := t.nodes[id].Validate(); err != nil {
			r.Errors = append(r.Errors, fmt.Sprintf("node %s: %v", id, err))
		}
	}

	seenEdges := make(map[EdgeID]bool, len(t.edges))
	for _, e := range t.edges {
		if !e.ID.Valid() {
			r.Errors = append(r.Errors, fmt.Sprintf("edge %s->%s has empty id", e.From, e.To))
		}
		if seenEdges[e.ID] {
			r.Errors = append(r.Errors, fmt.Sprintf("duplicate edge id: %s", e.ID))
		}
		seenEdges[e.ID] = true
		if _, ok := t.nodes[e.From]; !ok {
			r.Errors = append(r.Errors, fmt.Sprintf("edge %s references unknown source node: %s", e.ID, e.From))
		}
		if _, ok := t.nodes[e.To]; !ok {
			r.Errors = append(r.Errors, fmt.Sprintf("edge %s references unknown target node: %s", e.ID, e.To))
		}
	}

	if len(t.entryPoints) == 0 {
		r.Errors = append(r.Errors, "topology has no entry points")
	}
	for _, id := range t.entryPoints {
		n, ok := t.nodes[id]
		if !ok {
			r.Errors = append(r.Errors, fmt.Sprintf("entry point references unknown node: %s", id))
			continue
		}
		if !n.CanBeEntryPoint() {
			r.Errors = append(r.Errors, fmt.Sprintf("node %s cannot serve as an entry point", id))
		}
	}
	if t.defaultEntry != "" {
		found := false
		for _, id := range t.entryPoints {
			if id == t.defaultEntry {
				found = true
				break
			}
		}
		if !found {
			r.Errors = append(r.Errors, fmt.Sprintf("default entry point %s is not among entry points", t.defaultEntry))
		}
	}

	if len(r.Errors) == 0 {
		for _, id := range t.unreachable() {
			r.Warnings = append(r.Warnings, fmt.Sprintf("node %s is unreachable from any entry point", id))
		}
	}

	return r
}

// unreachable returns nodes not reachable from any entry point by edges.
func (t *Topology[S]) unreachable() []NodeID {
	reached := make(map[NodeID]bool, len(t.nodes))
	var frontier []NodeID
	for _, id := range t.entryPoints {
		if !reached[id] {
			reached[id] = true
			frontier = append(frontier, id)
		}
	}
	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]
		for _, e := range t.edges {
			if e.From == cur && !reached[e.To] {
				reached[e.To] = true
				frontier = append(frontier, e.To)
			}
		}
	}

	var out []NodeID
	for _, id := range t.nodeOrder {
		if !reached[id] {
			out = append(out, id)
		}
	}
	return out
}
