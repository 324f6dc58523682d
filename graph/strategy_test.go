package graph

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

// identityNode passes its input through unchanged.
func identityNode(id NodeID) Node[string] {
	return NodeFunc[string](id, func(_ context.Context, s State[string]) (Command[string], error) {
		return Complete[string]{Result: s.Data}, nil
	})
}

// suffixNode completes with the input plus a suffix.
func suffixNode(id NodeID, suffix string) Node[string] {
	return NodeFunc[string](id, func(_ context.Context, s State[string]) (Command[string], error) {
		return Complete[string]{Result: s.Data + suffix}, nil
	})
}

// errorNode always fails.
func errorNode(id NodeID) Node[string] {
	return NodeFunc[string](id, func(_ context.Context, _ State[string]) (Command[string], error) {
		return nil, errors.New("step failed")
	})
}

func TestSequentialStrategy(t *testing.T) {
	t.Run("output feeds the next node", func(t *testing.T) {
		st := &SequentialStrategy[string]{}
		out, ctx, err := st.Execute(context.Background(),
			[]Node[string]{suffixNode("n1", "a"), suffixNode("n2", "b")}, "x", NewContext())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out != "xab" {
			t.Errorf("expected xab, got %q", out)
		}
		executed, _ := Get(ctx, ExecutedNodesKey)
		if len(executed) != 2 || executed[0] != "n1" || executed[1] != "n2" {
			t.Errorf("expected executed [n1 n2], got %v", executed)
		}
		if got, _ := Get(ctx, StepInputKey[string](1)); got != "xa" {
			t.Errorf("expected step_1_input xa, got %q", got)
		}
		if got, _ := Get(ctx, StepOutputKey[string](1)); got != "xab" {
			t.Errorf("expected step_1_output xab, got %q", got)
		}
	})

	t.Run("identity chain is an identity", func(t *testing.T) {
		st := &SequentialStrategy[string]{}
		out, _, err := st.Execute(context.Background(),
			[]Node[string]{identityNode("i1"), identityNode("i2"), identityNode("i3")}, "unchanged", NewContext())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out != "unchanged" {
			t.Errorf("identity chain altered the input: %q", out)
		}
	})

	t.Run("failure stops the chain", func(t *testing.T) {
		st := &SequentialStrategy[string]{}
		_, _, err := st.Execute(context.Background(),
			[]Node[string]{suffixNode("n1", "a"), errorNode("bad"), suffixNode("n3", "c")}, "x", NewContext())
		if err == nil || err.Code != CodeStrategyFailed {
			t.Fatalf("expected STRATEGY_EXECUTION_FAILED, got %v", err)
		}
	})

	t.Run("continueOnError propagates the last good output", func(t *testing.T) {
		st := &SequentialStrategy[string]{ContinueOnError: true}
		out, ctx, err := st.Execute(context.Background(),
			[]Node[string]{suffixNode("n1", "a"), errorNode("bad"), suffixNode("n3", "c")}, "x", NewContext())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out != "xac" {
			t.Errorf("expected xac, got %q", out)
		}
		if got, _ := Get(ctx, FailedStepKey); got != "bad" {
			t.Errorf("expected failed step tagged, got %q", got)
		}
	})
}

func TestParallelStrategy(t *testing.T) {
	t.Run("all nodes receive the original input", func(t *testing.T) {
		st := &ParallelStrategy[string]{Aggregation: AggregateList}
		out, ctx, err := st.Execute(context.Background(),
			[]Node[string]{suffixNode("n1", "1"), suffixNode("n2", "2"), suffixNode("n3", "3")}, "in", NewContext())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out != "in" {
			t.Errorf("list aggregation passes the input through, got %q", out)
		}
		results, ok := Get(ctx, ParallelResultsKey[string]())
		if !ok {
			t.Fatal("expected parallel results in context")
		}
		want := []string{"in1", "in2", "in3"}
		for i, w := range want {
			if results[i] != w {
				t.Errorf("results[%d] = %q, want %q", i, results[i], w)
			}
		}
	})

	t.Run("same outputs regardless of maxConcurrency", func(t *testing.T) {
		nodes := []Node[string]{suffixNode("n1", "1"), suffixNode("n2", "2"), suffixNode("n3", "3"), suffixNode("n4", "4")}
		var baseline []string
		for _, conc := range []int{0, 1, 2, 8} {
			st := &ParallelStrategy[string]{MaxConcurrency: conc, Aggregation: AggregateList}
			_, ctx, err := st.Execute(context.Background(), nodes, "x", NewContext())
			if err != nil {
				t.Fatalf("concurrency %d: %v", conc, err)
			}
			results, _ := Get(ctx, ParallelResultsKey[string]())
			if baseline == nil {
				baseline = results
				continue
			}
			if fmt.Sprint(results) != fmt.Sprint(baseline) {
				t.Errorf("concurrency %d changed outputs: %v vs %v", conc, results, baseline)
			}
		}
	})

	t.Run("map aggregation keys by node id", func(t *testing.T) {
		st := &ParallelStrategy[string]{Aggregation: AggregateMap}
		_, ctx, err := st.Execute(context.Background(),
			[]Node[string]{suffixNode("n1", "1"), suffixNode("n2", "2")}, "x", NewContext())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		byNode, ok := Get(ctx, ParallelResultsMapKey[string]())
		if !ok {
			t.Fatal("expected results map")
		}
		if byNode["n1"] != "x1" || byNode["n2"] != "x2" {
			t.Errorf("unexpected map %v", byNode)
		}
	})

	t.Run("first aggregation returns the first declared output", func(t *testing.T) {
		st := &ParallelStrategy[string]{Aggregation: AggregateFirst}
		out, _, err := st.Execute(context.Background(),
			[]Node[string]{suffixNode("n1", "1"), suffixNode("n2", "2")}, "x", NewContext())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out != "x1" {
			t.Errorf("expected x1, got %q", out)
		}
	})

	t.Run("failFast cancels outstanding nodes", func(t *testing.T) {
		var slowFinished atomic.Bool
		slowOK := NodeFunc[string]("n1", func(ctx context.Context, _ State[string]) (Command[string], error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(500 * time.Millisecond):
				slowFinished.Store(true)
				return Complete[string]{Result: "ok"}, nil
			}
		})
		fastFail := NodeFunc[string]("n2", func(_ context.Context, _ State[string]) (Command[string], error) {
			time.Sleep(5 * time.Millisecond)
			return nil, errors.New("exploded")
		})

		st := &ParallelStrategy[string]{FailFast: true}
		start := time.Now()
		_, _, err := st.Execute(context.Background(), []Node[string]{slowOK, fastFail}, "x", NewContext())
		elapsed := time.Since(start)

		if err == nil || err.Code != CodeStrategyFailed {
			t.Fatalf("expected STRATEGY_EXECUTION_FAILED, got %v", err)
		}
		if err.NodeID != "n2" {
			t.Errorf("expected failure attributed to n2, got %s", err.NodeID)
		}
		if elapsed > 100*time.Millisecond {
			t.Errorf("fail-fast took too long: %v", elapsed)
		}
		if slowFinished.Load() {
			t.Error("outstanding node was not cancelled")
		}
	})

	t.Run("timeout cancels outstanding nodes", func(t *testing.T) {
		slow := NodeFunc[string]("slow", func(ctx context.Context, _ State[string]) (Command[string], error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Second):
				return Complete[string]{Result: "late"}, nil
			}
		})

		st := &ParallelStrategy[string]{Timeout: 20 * time.Millisecond}
		_, _, err := st.Execute(context.Background(), []Node[string]{slow}, "x", NewContext())
		if err == nil || err.Code != CodeStrategyFailed {
			t.Fatalf("expected timeout failure, got %v", err)
		}
	})
}

func TestConditionalStrategy(t *testing.T) {
	conditions := map[NodeID]Condition[string]{
		"short": func(in string, _ Context) bool { return len(in) < 5 },
		"long":  func(in string, _ Context) bool { return len(in) >= 5 },
	}

	t.Run("only satisfied nodes run", func(t *testing.T) {
		st := &ConditionalStrategy[string]{Conditions: conditions}
		out, ctx, err := st.Execute(context.Background(),
			[]Node[string]{suffixNode("short", "-s"), suffixNode("long", "-l")}, "hi", NewContext())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out != "hi-s" {
			t.Errorf("expected hi-s, got %q", out)
		}
		skipped, _ := Get(ctx, SkippedNodesKey)
		if len(skipped) != 1 || skipped[0] != "long" {
			t.Errorf("expected long skipped, got %v", skipped)
		}
	})

	t.Run("requireAtLeastOne fails on no match", func(t *testing.T) {
		st := &ConditionalStrategy[string]{
			Conditions:        map[NodeID]Condition[string]{"never": func(string, Context) bool { return false }},
			RequireAtLeastOne: true,
		}
		_, _, err := st.Execute(context.Background(), []Node[string]{suffixNode("never", "-n")}, "x", NewContext())
		if err == nil || err.Code != CodeStrategyFailed {
			t.Fatalf("expected failure, got %v", err)
		}
	})

	t.Run("shortCircuit stops after the first match", func(t *testing.T) {
		st := &ConditionalStrategy[string]{DefaultCondition: true, ShortCircuit: true}
		out, ctx, err := st.Execute(context.Background(),
			[]Node[string]{suffixNode("n1", "1"), suffixNode("n2", "2")}, "x", NewContext())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out != "x1" {
			t.Errorf("expected x1, got %q", out)
		}
		executed, _ := Get(ctx, ExecutedNodesKey)
		if len(executed) != 1 {
			t.Errorf("expected one executed node, got %v", executed)
		}
	})

	t.Run("panicking predicate reads as non-matching", func(t *testing.T) {
		st := &ConditionalStrategy[string]{
			Conditions: map[NodeID]Condition[string]{
				"explosive": func(string, Context) bool { panic("bad predicate") },
				"safe":      func(string, Context) bool { return true },
			},
		}
		out, ctx, err := st.Execute(context.Background(),
			[]Node[string]{suffixNode("explosive", "-e"), suffixNode("safe", "-s")}, "x", NewContext())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out != "x-s" {
			t.Errorf("expected x-s, got %q", out)
		}
		if got, _ := Get(ctx, FailedStepKey); got != "explosive" {
			t.Errorf("expected failed predicate recorded, got %q", got)
		}
	})

	t.Run("custom result selector", func(t *testing.T) {
		st := &ConditionalStrategy[string]{
			DefaultCondition: true,
			ResultSelector: func(outputs []string, _ string) string {
				return outputs[0]
			},
		}
		out, _, err := st.Execute(context.Background(),
			[]Node[string]{suffixNode("n1", "1"), suffixNode("n2", "2")}, "x", NewContext())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out != "x1" {
			t.Errorf("expected selector output x1, got %q", out)
		}
	})
}

func TestBatchStrategy(t *testing.T) {
	// The input is a comma-joined list; each item runs through the node
	// list and the outputs are re-joined.
	split := func(in string) []string {
		var items []string
		current := ""
		for _, r := range in {
			if r == ',' {
				items = append(items, current)
				current = ""
				continue
			}
			current += string(r)
		}
		if current != "" {
			items = append(items, current)
		}
		return items
	}
	combine := func(outputs []string) string {
		joined := ""
		for i, o := range outputs {
			if i > 0 {
				joined += ","
			}
			joined += o
		}
		return joined
	}

	t.Run("items processed in batches", func(t *testing.T) {
		st := &BatchStrategy[string]{
			BatchSize: 2,
			Split:     split,
			Combine:   combine,
		}
		out, _, err := st.Execute(context.Background(),
			[]Node[string]{suffixNode("up", "!")}, "a,b,c,d,e", NewContext())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out != "a!,b!,c!,d!,e!" {
			t.Errorf("unexpected output %q", out)
		}
	})

	t.Run("missing split fails", func(t *testing.T) {
		st := &BatchStrategy[string]{BatchSize: 2, Combine: combine}
		_, _, err := st.Execute(context.Background(), []Node[string]{suffixNode("n", "!")}, "a", NewContext())
		if err == nil || err.Code != CodeStrategyFailed {
			t.Fatalf("expected configuration failure, got %v", err)
		}
	})

	t.Run("item failure fails the batch", func(t *testing.T) {
		st := &BatchStrategy[string]{
			BatchSize: 2,
			Split:     split,
			Combine:   combine,
			Inner:     &SequentialStrategy[string]{},
		}
		failOnB := NodeFunc[string]("failb", func(_ context.Context, s State[string]) (Command[string], error) {
			if s.Data == "b" {
				return nil, errors.New("b is poison")
			}
			return Complete[string]{Result: s.Data}, nil
		})
		_, _, err := st.Execute(context.Background(), []Node[string]{failOnB}, "a,b,c", NewContext())
		if err == nil {
			t.Fatal("expected batch failure")
		}
	})
}
