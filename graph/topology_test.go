package graph

import (
	"context"
	"strings"
	"testing"
)

func passNode(id NodeID) Node[string] {
	return NodeFunc[string](id, func(_ context.Context, s State[string]) (Command[string], error) {
		return Complete[string]{Result: s.Data}, nil
	})
}

func TestTopologyBuilder_Build(t *testing.T) {
	t.Run("valid linear topology", func(t *testing.T) {
		topo, err := NewTopologyBuilder[string]().
			AddNode(passNode("A")).
			AddNode(passNode("B")).
			Connect("A", "B").
			DefaultEntryPoint("A").
			Build()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if topo.DefaultEntry() != "A" {
			t.Errorf("expected default entry A, got %s", topo.DefaultEntry())
		}
		if len(topo.Edges()) != 1 {
			t.Errorf("expected 1 edge, got %d", len(topo.Edges()))
		}
	})

	t.Run("duplicate node id rejected", func(t *testing.T) {
		_, err := NewTopologyBuilder[string]().
			AddNode(passNode("A")).
			AddNode(passNode("A")).
			DefaultEntryPoint("A").
			Build()
		if err == nil {
			t.Fatal("expected duplicate node id error")
		}
	})
}

func TestTopology_Validate(t *testing.T) {
	tests := []struct {
		name    string
		build   func() *TopologyBuilder[string]
		wantErr string
	}{
		{
			name:    "empty topology",
			build:   func() *TopologyBuilder[string] { return NewTopologyBuilder[string]() },
			wantErr: "no nodes",
		},
		{
			name: "empty entry set",
			build: func() *TopologyBuilder[string] {
				return NewTopologyBuilder[string]().AddNode(passNode("A"))
			},
			wantErr: "no entry points",
		},
		{
			name: "edge references unknown node",
			build: func() *TopologyBuilder[string] {
				return NewTopologyBuilder[string]().
					AddNode(passNode("A")).
					Connect("A", "ghost").
					DefaultEntryPoint("A")
			},
			wantErr: "unknown target node",
		},
		{
			name: "entry point references unknown node",
			build: func() *TopologyBuilder[string] {
				return NewTopologyBuilder[string]().
					AddNode(passNode("A")).
					AddEntryPoint("missing").
					AddEntryPoint("A")
			},
			wantErr: "unknown node",
		},
		{
			name: "duplicate edge id",
			build: func() *TopologyBuilder[string] {
				return NewTopologyBuilder[string]().
					AddNode(passNode("A")).
					AddNode(passNode("B")).
					AddEdge("e1", "A", "B", nil).
					AddEdge("e1", "B", "A", nil).
					DefaultEntryPoint("A")
			},
			wantErr: "duplicate edge id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build().Build()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestTopology_ValidateWarnsUnreachable(t *testing.T) {
	topo, err := NewTopologyBuilder[string]().
		AddNode(passNode("A")).
		AddNode(passNode("island")).
		DefaultEntryPoint("A").
		Build()
	if err != nil {
		t.Fatalf("warnings must not prevent construction: %v", err)
	}

	result := topo.Validate()
	if !result.Valid() {
		t.Fatalf("expected valid topology, errors: %v", result.Errors)
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "island") {
		t.Errorf("expected unreachable warning for island, got %v", result.Warnings)
	}
}

func TestTopology_DefaultEntryMustBeEntry(t *testing.T) {
	// DefaultEntryPoint registers the node in the entry set, so build the
	// invalid shape directly as a Topology literal.
	topo := &Topology[string]{
		nodes:        map[NodeID]Node[string]{"A": passNode("A"), "B": passNode("B")},
		nodeOrder:    []NodeID{"A", "B"},
		entryPoints:  []NodeID{"A"},
		defaultEntry: "B",
	}
	result := topo.Validate()
	if result.Valid() {
		t.Fatal("expected error for default entry outside entry set")
	}
}

func TestTopology_FindEdgePrefersDeclarationOrder(t *testing.T) {
	topo, err := NewTopologyBuilder[string]().
		AddNode(passNode("A")).
		AddNode(passNode("B")).
		AddEdge("first", "A", "B", nil).
		AddEdge("second", "A", "B", nil).
		DefaultEntryPoint("A").
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	edge, ok := topo.findEdge("A", "B")
	if !ok {
		t.Fatal("expected edge")
	}
	if edge.ID != "first" {
		t.Errorf("expected first declared edge to win, got %s", edge.ID)
	}
}

func TestTopology_NonEntryNodeRejectedAsEntry(t *testing.T) {
	noEntry := NewBaseNode("locked", "locked", NodeTypeOther).WithoutEntry()

	topo := &Topology[string]{
		nodes: map[NodeID]Node[string]{
			"locked": nonEntryNode{BaseNode: noEntry},
		},
		nodeOrder:   []NodeID{"locked"},
		entryPoints: []NodeID{"locked"},
	}
	result := topo.Validate()
	if result.Valid() {
		t.Fatal("expected error for non-entry node in entry set")
	}
}

// nonEntryNode is a minimal node that refuses to serve as an entry point.
type nonEntryNode struct {
	BaseNode
}

func (nonEntryNode) Process(_ context.Context, s State[string]) (Command[string], error) {
	return Complete[string]{Result: s.Data}, nil
}
