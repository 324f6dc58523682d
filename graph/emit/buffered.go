package emit

import (
	"context"
	"sync"
)

// BufferedEmitter captures events in memory, organized per workflow id.
//
// Useful for tests, debugging, and post-execution analysis. Everything is
// held in memory: long-running production workflows should prefer a
// persistent backend or clear histories periodically.
//
// Example:
//
//	emitter := emit.NewBufferedEmitter()
//	// ... run a workflow with this emitter ...
//	history := emitter.History("wf-001")
//	errs := emitter.HistoryWithFilter("wf-001", emit.HistoryFilter{Type: emit.NodeError})
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event
}

// HistoryFilter selects a subset of a workflow's events. All fields are
// optional and combine with AND.
type HistoryFilter struct {
	// Type filters by event type (empty = any).
	Type EventType

	// NodeID filters by node (empty = any).
	NodeID string

	// MinStep / MaxStep bound the step number (nil = unbounded).
	MinStep *int
	MaxStep *int
}

// NewBufferedEmitter creates an empty in-memory event buffer.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{events: make(map[string][]Event)}
}

// Emit stores the event under its workflow id.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[event.WorkflowID] = append(b.events[event.WorkflowID], event)
}

// EmitBatch stores all events in order.
func (b *BufferedEmitter) EmitBatch(_ context.Context, events []Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range events {
		b.events[e.WorkflowID] = append(b.events[e.WorkflowID], e)
	}
	return nil
}

// Flush is a no-op: events are already resident.
func (*BufferedEmitter) Flush(context.Context) error { return nil }

// History returns a copy of all events for the workflow, in emission order.
func (b *BufferedEmitter) History(workflowID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	events := b.events[workflowID]
	out := make([]Event, len(events))
	copy(out, events)
	return out
}

// HistoryWithFilter returns the workflow's events matching the filter.
func (b *BufferedEmitter) HistoryWithFilter(workflowID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Event
	for _, e := range b.events[workflowID] {
		if matches(e, filter) {
			out = append(out, e)
		}
	}
	return out
}

// Clear drops all events for the workflow.
func (b *BufferedEmitter) Clear(workflowID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.events, workflowID)
}

func matches(e Event, f HistoryFilter) bool {
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.NodeID != "" && e.NodeID != f.NodeID {
		return false
	}
	if f.MinStep != nil && e.Step < *f.MinStep {
		return false
	}
	if f.MaxStep != nil && e.Step > *f.MaxStep {
		return false
	}
	return true
}
