package emit

import "context"

// MultiEmitter fans events out to several backends, e.g. a LogEmitter for
// development plus an OTelEmitter for traces.
type MultiEmitter struct {
	emitters []Emitter
}

// NewMultiEmitter creates an emitter delivering to each backend in order.
// Nil backends are skipped.
func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	out := make([]Emitter, 0, len(emitters))
	for _, e := range emitters {
		if e != nil {
			out = append(out, e)
		}
	}
	return &MultiEmitter{emitters: out}
}

// Emit delivers the event to every backend.
func (m *MultiEmitter) Emit(event Event) {
	for _, e := range m.emitters {
		e.Emit(event)
	}
}

// EmitBatch delivers the batch to every backend. The first error is
// returned after all backends have been attempted.
func (m *MultiEmitter) EmitBatch(ctx context.Context, events []Event) error {
	var first error
	for _, e := range m.emitters {
		if err := e.EmitBatch(ctx, events); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Flush flushes every backend. The first error is returned after all
// backends have been attempted.
func (m *MultiEmitter) Flush(ctx context.Context) error {
	var first error
	for _, e := range m.emitters {
		if err := e.Flush(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
