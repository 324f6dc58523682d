package emit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// LogEmitter writes structured event output to a writer.
//
// Two output modes:
//   - Text (default): human-readable key=value lines.
//   - JSON: one JSON object per line (JSONL), machine-readable.
//
// Example text output:
//
//	[node_started] workflow=wf-001 step=1 node=classify
//	[node_transition] workflow=wf-001 step=1 node=classify meta={"edge_id":"classify->answer"}
//
// Writes are serialized with a mutex so a LogEmitter is safe to share
// across fork branches.
type LogEmitter struct {
	mu       sync.Mutex
	writer   io.Writer
	jsonMode bool
}

// NewLogEmitter creates a LogEmitter writing to w (os.Stdout when nil).
// Set jsonMode for JSONL output.
func NewLogEmitter(w io.Writer, jsonMode bool) *LogEmitter {
	if w == nil {
		w = os.Stdout
	}
	return &LogEmitter{writer: w, jsonMode: jsonMode}
}

// Emit writes one event in the configured format.
func (l *LogEmitter) Emit(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.write(event)
}

// EmitBatch writes all events in order under a single lock acquisition.
func (l *LogEmitter) EmitBatch(_ context.Context, events []Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range events {
		l.write(e)
	}
	return nil
}

// Flush is a no-op: writes go straight to the underlying writer. Wrap the
// writer in a bufio.Writer and flush that when buffering is wanted.
func (*LogEmitter) Flush(context.Context) error { return nil }

func (l *LogEmitter) write(event Event) {
	if l.jsonMode {
		l.writeJSON(event)
		return
	}
	l.writeText(event)
}

func (l *LogEmitter) writeJSON(event Event) {
	data, err := json.Marshal(struct {
		Type       string         `json:"type"`
		WorkflowID string         `json:"workflowID"`
		Step       int            `json:"step"`
		NodeID     string         `json:"nodeID,omitempty"`
		Msg        string         `json:"msg,omitempty"`
		Meta       map[string]any `json:"meta,omitempty"`
	}{
		Type:       string(event.Type),
		WorkflowID: event.WorkflowID,
		Step:       event.Step,
		NodeID:     event.NodeID,
		Msg:        event.Msg,
		Meta:       event.Meta,
	})
	if err != nil {
		_, _ = fmt.Fprintf(l.writer, "{\"error\":\"failed to marshal event: %v\"}\n", err)
		return
	}
	_, _ = fmt.Fprintf(l.writer, "%s\n", data)
}

func (l *LogEmitter) writeText(event Event) {
	_, _ = fmt.Fprintf(l.writer, "[%s] workflow=%s step=%d", event.Type, event.WorkflowID, event.Step)
	if event.NodeID != "" {
		_, _ = fmt.Fprintf(l.writer, " node=%s", event.NodeID)
	}
	if event.Msg != "" {
		_, _ = fmt.Fprintf(l.writer, " msg=%q", event.Msg)
	}
	if len(event.Meta) > 0 {
		if metaJSON, err := json.Marshal(event.Meta); err == nil {
			_, _ = fmt.Fprintf(l.writer, " meta=%s", metaJSON)
		} else {
			_, _ = fmt.Fprintf(l.writer, " meta=%v", event.Meta)
		}
	}
	_, _ = fmt.Fprint(l.writer, "\n")
}
