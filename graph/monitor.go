package graph

import (
	"time"

	"github.com/agents4j/agents4j-go/graph/emit"
)

// monitor wraps an emitter so that observer failures can never affect
// execution outcome: every call recovers panics and drops the event.
type monitor struct {
	emitter emit.Emitter
}

func (m monitor) emit(e emit.Event) {
	defer func() {
		_ = recover()
	}()
	e.Timestamp = time.Now().UTC()
	m.emitter.Emit(e)
}

func (m monitor) workflowStarted(id WorkflowID, entry NodeID) {
	m.emit(emit.Event{
		Type:       emit.WorkflowStarted,
		WorkflowID: string(id),
		NodeID:     string(entry),
	})
}

func (m monitor) workflowResumed(id WorkflowID, current NodeID) {
	m.emit(emit.Event{
		Type:       emit.WorkflowResumed,
		WorkflowID: string(id),
		NodeID:     string(current),
	})
}

func (m monitor) nodeStarted(id WorkflowID, node NodeID, step int) {
	m.emit(emit.Event{
		Type:       emit.NodeStarted,
		WorkflowID: string(id),
		NodeID:     string(node),
		Step:       step,
	})
}

func (m monitor) nodeCompleted(id WorkflowID, node NodeID, step int, d time.Duration) {
	m.emit(emit.Event{
		Type:       emit.NodeCompleted,
		WorkflowID: string(id),
		NodeID:     string(node),
		Step:       step,
		Meta:       map[string]any{"duration_ms": d.Milliseconds()},
	})
}

func (m monitor) nodeError(id WorkflowID, node NodeID, step int, err *WorkflowError) {
	m.emit(emit.Event{
		Type:       emit.NodeError,
		WorkflowID: string(id),
		NodeID:     string(node),
		Step:       step,
		Meta:       map[string]any{"error": err.Message, "code": string(err.Code)},
	})
}

func (m monitor) nodeTransition(id WorkflowID, edge EdgeID, from, to NodeID, step int) {
	m.emit(emit.Event{
		Type:       emit.NodeTransition,
		WorkflowID: string(id),
		NodeID:     string(from),
		Step:       step,
		Meta:       map[string]any{"edge_id": string(edge), "from": string(from), "to": string(to)},
	})
}

func (m monitor) workflowSuspended(id WorkflowID, node NodeID, step int, reason string) {
	m.emit(emit.Event{
		Type:       emit.WorkflowSuspended,
		WorkflowID: string(id),
		NodeID:     string(node),
		Step:       step,
		Meta:       map[string]any{"reason": reason},
	})
}

func (m monitor) workflowCompleted(id WorkflowID, step int) {
	m.emit(emit.Event{
		Type:       emit.WorkflowCompleted,
		WorkflowID: string(id),
		Step:       step,
	})
}

func (m monitor) workflowError(id WorkflowID, step int, err *WorkflowError) {
	m.emit(emit.Event{
		Type:       emit.WorkflowError,
		WorkflowID: string(id),
		Step:       step,
		Meta:       map[string]any{"error": err.Message, "code": string(err.Code)},
	})
}

func (m monitor) warning(id WorkflowID, node NodeID, step int, msg string) {
	m.emit(emit.Event{
		Type:       emit.Warning,
		WorkflowID: string(id),
		NodeID:     string(node),
		Step:       step,
		Msg:        msg,
	})
}
