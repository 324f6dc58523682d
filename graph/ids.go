// Package graph provides the core graph workflow execution engine.
package graph

import "github.com/google/uuid"

// WorkflowID uniquely identifies a workflow execution.
//
// IDs are opaque strings compared by value. An empty WorkflowID is invalid;
// Valid reports it, and the executor does not check the id of the state it
// is given.
type WorkflowID string

// NodeID uniquely identifies a node within a workflow topology.
type NodeID string

// EdgeID uniquely identifies an edge within a workflow topology.
type EdgeID string

// NewWorkflowID generates a fresh random workflow identifier.
//
// Use this when the caller does not supply its own id. IDs are UUIDv4
// strings, unique across processes, suitable as store keys.
func NewWorkflowID() WorkflowID {
	return WorkflowID(uuid.New().String())
}

// Valid reports whether the workflow id is non-empty.
func (id WorkflowID) Valid() bool { return id != "" }

// Valid reports whether the node id is non-empty.
func (id NodeID) Valid() bool { return id != "" }

// Valid reports whether the edge id is non-empty.
func (id EdgeID) Valid() bool { return id != "" }

func (id WorkflowID) String() string { return string(id) }

func (id NodeID) String() string { return string(id) }

func (id EdgeID) String() string { return string(id) }
