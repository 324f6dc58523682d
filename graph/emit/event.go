// Package emit provides observability event emission for workflow execution.
package emit

import "time"

// EventType names a point in the workflow lifecycle at which the executor
// emits an event.
type EventType string

// Lifecycle events emitted by the executor. Monitors receive every one of
// these; none of them can affect execution outcome.
const (
	WorkflowStarted   EventType = "workflow_started"
	WorkflowResumed   EventType = "workflow_resumed"
	NodeStarted       EventType = "node_started"
	NodeCompleted     EventType = "node_completed"
	NodeError         EventType = "node_error"
	NodeTransition    EventType = "node_transition"
	WorkflowSuspended EventType = "workflow_suspended"
	WorkflowCompleted EventType = "workflow_completed"
	WorkflowError     EventType = "workflow_error"
	Warning           EventType = "warning"
)

// Event is one observability record from a workflow execution.
//
// Events flow to an Emitter, which can log them, turn them into spans,
// feed metrics, or drop them. Emitters are passive: the executor swallows
// any panic or error an emitter raises.
type Event struct {
	// Type names the lifecycle point that produced this event.
	Type EventType

	// WorkflowID identifies the execution that emitted this event.
	WorkflowID string

	// Step is the interpreter step number (1-indexed). Zero for
	// workflow-level events.
	Step int

	// NodeID identifies the node involved. Empty for workflow-level events.
	NodeID string

	// Msg is a human-readable description.
	Msg string

	// Timestamp records when the event was created (UTC).
	Timestamp time.Time

	// Meta carries additional structured data. Common keys:
	//   - "duration_ms": node processing duration for NodeCompleted
	//   - "edge_id", "from", "to": transition details for NodeTransition
	//   - "error", "code": failure details for NodeError / WorkflowError
	//   - "reason": suspension reason for WorkflowSuspended
	Meta map[string]any
}
