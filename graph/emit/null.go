package emit

import "context"

// NullEmitter discards every event. It is the default monitor: workflows
// run silently unless the caller installs a real emitter.
type NullEmitter struct{}

// NewNullEmitter creates an emitter that drops everything.
func NewNullEmitter() *NullEmitter { return &NullEmitter{} }

// Emit discards the event.
func (*NullEmitter) Emit(Event) {}

// EmitBatch discards the events.
func (*NullEmitter) EmitBatch(context.Context, []Event) error { return nil }

// Flush is a no-op.
func (*NullEmitter) Flush(context.Context) error { return nil }
