package emit

import (
	"context"
	"sync"
	"testing"
)

func TestBufferedEmitter_History(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(Event{Type: WorkflowStarted, WorkflowID: "wf-1"})
	b.Emit(Event{Type: NodeStarted, WorkflowID: "wf-1", Step: 1, NodeID: "A"})
	b.Emit(Event{Type: NodeStarted, WorkflowID: "wf-2", Step: 1, NodeID: "X"})

	if got := len(b.History("wf-1")); got != 2 {
		t.Errorf("expected 2 events for wf-1, got %d", got)
	}
	if got := len(b.History("wf-2")); got != 1 {
		t.Errorf("expected 1 event for wf-2, got %d", got)
	}
	if got := len(b.History("missing")); got != 0 {
		t.Errorf("expected no events for unknown workflow, got %d", got)
	}
}

func TestBufferedEmitter_HistoryWithFilter(t *testing.T) {
	b := NewBufferedEmitter()
	for step := 1; step <= 5; step++ {
		b.Emit(Event{Type: NodeStarted, WorkflowID: "wf", Step: step, NodeID: "A"})
		b.Emit(Event{Type: NodeCompleted, WorkflowID: "wf", Step: step, NodeID: "A"})
	}
	b.Emit(Event{Type: NodeError, WorkflowID: "wf", Step: 6, NodeID: "B"})

	t.Run("by type", func(t *testing.T) {
		got := b.HistoryWithFilter("wf", HistoryFilter{Type: NodeError})
		if len(got) != 1 || got[0].NodeID != "B" {
			t.Errorf("unexpected filter result %v", got)
		}
	})

	t.Run("by node", func(t *testing.T) {
		got := b.HistoryWithFilter("wf", HistoryFilter{NodeID: "A"})
		if len(got) != 10 {
			t.Errorf("expected 10 events for A, got %d", len(got))
		}
	})

	t.Run("by step range", func(t *testing.T) {
		minStep, maxStep := 2, 3
		got := b.HistoryWithFilter("wf", HistoryFilter{MinStep: &minStep, MaxStep: &maxStep})
		if len(got) != 4 {
			t.Errorf("expected 4 events in steps 2-3, got %d", len(got))
		}
	})

	t.Run("combined filters use AND", func(t *testing.T) {
		got := b.HistoryWithFilter("wf", HistoryFilter{Type: NodeStarted, NodeID: "B"})
		if len(got) != 0 {
			t.Errorf("expected no matches, got %d", len(got))
		}
	})
}

func TestBufferedEmitter_Clear(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(Event{Type: WorkflowStarted, WorkflowID: "wf"})
	b.Clear("wf")

	if got := len(b.History("wf")); got != 0 {
		t.Errorf("expected history cleared, got %d events", got)
	}
}

func TestBufferedEmitter_ConcurrentEmit(t *testing.T) {
	b := NewBufferedEmitter()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Emit(Event{Type: NodeStarted, WorkflowID: "wf"})
			}
		}()
	}
	wg.Wait()

	if got := len(b.History("wf")); got != 1000 {
		t.Errorf("expected 1000 events, got %d", got)
	}
}

func TestBufferedEmitter_EmitBatch(t *testing.T) {
	b := NewBufferedEmitter()
	err := b.EmitBatch(context.Background(), []Event{
		{Type: NodeStarted, WorkflowID: "wf"},
		{Type: NodeCompleted, WorkflowID: "wf"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(b.History("wf")); got != 2 {
		t.Errorf("expected 2 events, got %d", got)
	}
}
