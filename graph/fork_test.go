package graph

import (
	"context"
	"testing"
	"time"
)

// forkEntry forks to the given targets when processed.
func forkEntry(id NodeID, targets []NodeID, timeout time.Duration) Node[string] {
	return NodeFunc[string](id, func(_ context.Context, _ State[string]) (Command[string], error) {
		return Fork[string]{Targets: targets, Timeout: timeout}, nil
	})
}

func TestFork_JoinAggregation(t *testing.T) {
	// Fork to X and Y, each completing with its own value; the joined
	// result lists the values in declaration order.
	topo, err := NewTopologyBuilder[string]().
		AddNode(forkEntry("fork", []NodeID{"X", "Y"}, 0)).
		AddNode(completeNode("X", "x")).
		AddNode(completeNode("Y", "y")).
		Connect("fork", "X").
		Connect("fork", "Y").
		DefaultEntryPoint("fork").
		Build()
	if err != nil {
		t.Fatalf("topology: %v", err)
	}

	res := NewExecutor(topo, Options{FailFast: true}).
		Execute(context.Background(), NewState[string]("wf-s3", "", "fork"))

	if !res.IsSuccess() {
		t.Fatalf("expected success, got %v (%v)", res.Status, res.Err)
	}
	values, ok := ForkResults[string](res.FinalContext)
	if !ok {
		t.Fatal("expected fork results in context")
	}
	want := []string{"x", "y"}
	if len(values) != len(want) {
		t.Fatalf("expected %v, got %v", want, values)
	}
	for i, v := range want {
		if values[i] != v {
			t.Errorf("values[%d] = %q, want %q (declaration order)", i, values[i], v)
		}
	}
}

func TestFork_BranchIsolation(t *testing.T) {
	leftKey := NewKey[string]("left_saw")
	sharedKey := NewKey[string]("shared")

	// Each branch writes sharedKey; the left branch also records what it
	// observed. Neither branch may see the other's write.
	left := NodeFunc[string]("left", func(_ context.Context, s State[string]) (Command[string], error) {
		observed, _ := Get(s.Context, sharedKey)
		updates := With(NewContext(), sharedKey, "left")
		updates = With(updates, leftKey, observed)
		return Complete[string]{Result: "left", Updates: updates}, nil
	})
	right := NodeFunc[string]("right", func(_ context.Context, s State[string]) (Command[string], error) {
		return Complete[string]{Result: "right", Updates: With(NewContext(), sharedKey, "right")}, nil
	})

	topo, err := NewTopologyBuilder[string]().
		AddNode(forkEntry("fork", []NodeID{"left", "right"}, 0)).
		AddNode(left).
		AddNode(right).
		Connect("fork", "left").
		Connect("fork", "right").
		DefaultEntryPoint("fork").
		Build()
	if err != nil {
		t.Fatalf("topology: %v", err)
	}

	res := NewExecutor(topo, Options{FailFast: true}).
		Execute(context.Background(), NewState[string]("wf-iso", "", "fork"))

	if !res.IsSuccess() {
		t.Fatalf("expected success, got %v (%v)", res.Status, res.Err)
	}
	if saw, _ := Get(res.FinalContext, leftKey); saw != "" {
		t.Errorf("left branch observed sibling write %q before join", saw)
	}
	// Declaration-order merge: the right branch declared last wins.
	if got, _ := Get(res.FinalContext, sharedKey); got != "right" {
		t.Errorf("expected last declared branch to win merge, got %q", got)
	}
}

func TestFork_SizeZeroIsImmediateJoin(t *testing.T) {
	topo, err := NewTopologyBuilder[string]().
		AddNode(forkEntry("fork", nil, 0)).
		DefaultEntryPoint("fork").
		Build()
	if err != nil {
		t.Fatalf("topology: %v", err)
	}

	res := NewExecutor(topo, Options{}).
		Execute(context.Background(), NewState[string]("wf-b4", "seed", "fork"))

	if !res.IsSuccess() {
		t.Fatalf("expected success, got %v (%v)", res.Status, res.Err)
	}
	if res.Value != "seed" {
		t.Errorf("expected data passthrough, got %q", res.Value)
	}
}

func TestFork_FailFastCancelsSiblings(t *testing.T) {
	var siblingFinished bool

	failing := NodeFunc[string]("failing", func(_ context.Context, _ State[string]) (Command[string], error) {
		return Fail[string]{Err: NewExecutionError(CodeNodeExecutionError, "failing", "branch failed", nil)}, nil
	})
	slow := NodeFunc[string]("slow", func(ctx context.Context, s State[string]) (Command[string], error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
			siblingFinished = true
			return Complete[string]{Result: "slow"}, nil
		}
	})

	topo, err := NewTopologyBuilder[string]().
		AddNode(forkEntry("fork", []NodeID{"failing", "slow"}, 0)).
		AddNode(failing).
		AddNode(slow).
		Connect("fork", "failing").
		Connect("fork", "slow").
		DefaultEntryPoint("fork").
		Build()
	if err != nil {
		t.Fatalf("topology: %v", err)
	}

	start := time.Now()
	res := NewExecutor(topo, Options{FailFast: true}).
		Execute(context.Background(), NewState[string]("wf-ff", "", "fork"))

	if !res.IsFailure() {
		t.Fatalf("expected failure, got %v", res.Status)
	}
	if res.Err.NodeID != "failing" {
		t.Errorf("expected failure from failing branch, got %s", res.Err.NodeID)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("fail-fast did not cancel sibling promptly: %v", elapsed)
	}
	if siblingFinished {
		t.Error("sibling ran to completion despite fail-fast")
	}
}

func TestFork_ErrorsAggregateWithoutFailFast(t *testing.T) {
	fail1 := NodeFunc[string]("fail1", func(_ context.Context, _ State[string]) (Command[string], error) {
		return Fail[string]{Err: NewExecutionError(CodeNodeExecutionError, "fail1", "first", nil)}, nil
	})
	fail2 := NodeFunc[string]("fail2", func(_ context.Context, _ State[string]) (Command[string], error) {
		return Fail[string]{Err: NewExecutionError(CodeNodeExecutionError, "fail2", "second", nil)}, nil
	})

	topo, err := NewTopologyBuilder[string]().
		AddNode(forkEntry("fork", []NodeID{"fail1", "fail2"}, 0)).
		AddNode(fail1).
		AddNode(fail2).
		Connect("fork", "fail1").
		Connect("fork", "fail2").
		DefaultEntryPoint("fork").
		Build()
	if err != nil {
		t.Fatalf("topology: %v", err)
	}

	res := NewExecutor(topo, Options{FailFast: false}).
		Execute(context.Background(), NewState[string]("wf-agg", "", "fork"))

	if !res.IsFailure() {
		t.Fatalf("expected failure, got %v", res.Status)
	}
	if res.Err.NodeID != "fail1" {
		t.Errorf("expected first declared failure surfaced, got %s", res.Err.NodeID)
	}
	if msgs, ok := res.Err.Details["branch_errors"].([]string); !ok || len(msgs) != 2 {
		t.Errorf("expected both branch errors aggregated, got %v", res.Err.Details)
	}
}

func TestFork_GroupTimeout(t *testing.T) {
	slow := NodeFunc[string]("slow", func(ctx context.Context, _ State[string]) (Command[string], error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
			return Complete[string]{Result: "slow"}, nil
		}
	})

	topo, err := NewTopologyBuilder[string]().
		AddNode(forkEntry("fork", []NodeID{"slow"}, 20*time.Millisecond)).
		AddNode(slow).
		Connect("fork", "slow").
		DefaultEntryPoint("fork").
		Build()
	if err != nil {
		t.Fatalf("topology: %v", err)
	}

	res := NewExecutor(topo, Options{}).
		Execute(context.Background(), NewState[string]("wf-fktimeout", "", "fork"))

	if !res.IsFailure() || res.Err.Code != CodeExecutionTimeout {
		t.Fatalf("expected EXECUTION_TIMEOUT, got %v (%v)", res.Status, res.Err)
	}
}

func TestFork_BranchDataFactory(t *testing.T) {
	echo := func(id NodeID) Node[string] {
		return NodeFunc[string](id, func(_ context.Context, s State[string]) (Command[string], error) {
			return Complete[string]{Result: s.Data}, nil
		})
	}
	forker := NodeFunc[string]("fork", func(_ context.Context, _ State[string]) (Command[string], error) {
		return Fork[string]{
			Targets: []NodeID{"b1", "b2"},
			BranchData: func(parent State[string], target NodeID) string {
				return parent.Data + ":" + string(target)
			},
		}, nil
	})

	topo, err := NewTopologyBuilder[string]().
		AddNode(forker).
		AddNode(echo("b1")).
		AddNode(echo("b2")).
		Connect("fork", "b1").
		Connect("fork", "b2").
		DefaultEntryPoint("fork").
		Build()
	if err != nil {
		t.Fatalf("topology: %v", err)
	}

	res := NewExecutor(topo, Options{}).
		Execute(context.Background(), NewState[string]("wf-seed", "base", "fork"))

	if !res.IsSuccess() {
		t.Fatalf("expected success, got %v (%v)", res.Status, res.Err)
	}
	values, _ := ForkResults[string](res.FinalContext)
	want := []string{"base:b1", "base:b2"}
	if len(values) != 2 || values[0] != want[0] || values[1] != want[1] {
		t.Errorf("expected %v, got %v", want, values)
	}
}

func TestFork_BranchSuspensionSuspendsGroup(t *testing.T) {
	suspending := NodeFunc[string]("pause", func(_ context.Context, _ State[string]) (Command[string], error) {
		return Suspend[string]{Reason: "awaiting input"}, nil
	})

	topo, err := NewTopologyBuilder[string]().
		AddNode(forkEntry("fork", []NodeID{"pause", "done"}, 0)).
		AddNode(suspending).
		AddNode(completeNode("done", "d")).
		Connect("fork", "pause").
		Connect("fork", "done").
		DefaultEntryPoint("fork").
		Build()
	if err != nil {
		t.Fatalf("topology: %v", err)
	}

	res := NewExecutor(topo, Options{}).
		Execute(context.Background(), NewState[string]("wf-fksusp", "", "fork"))

	if !res.IsSuspended() {
		t.Fatalf("expected suspension at join, got %v (%v)", res.Status, res.Err)
	}
	if res.Snapshot.State.Current != "" {
		t.Errorf("join-point snapshot must have no current node, got %s", res.Snapshot.State.Current)
	}
	if res.Reason != "awaiting input" {
		t.Errorf("expected suspension reason preserved, got %q", res.Reason)
	}
}
