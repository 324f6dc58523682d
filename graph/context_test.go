package graph

import "testing"

var (
	testStrKey   = NewKey[string]("value")
	testIntKey   = NewKey[int]("value")
	testCountKey = NewKey[int]("count")
)

func TestContext_GetWith(t *testing.T) {
	t.Run("get returns stored value", func(t *testing.T) {
		c := With(NewContext(), testStrKey, "hello")

		got, ok := Get(c, testStrKey)
		if !ok {
			t.Fatal("expected value to be present")
		}
		if got != "hello" {
			t.Errorf("expected %q, got %q", "hello", got)
		}
	})

	t.Run("get on absent key", func(t *testing.T) {
		c := NewContext()

		got, ok := Get(c, testStrKey)
		if ok {
			t.Errorf("expected absent, got %q", got)
		}
	})

	t.Run("with replaces existing entry", func(t *testing.T) {
		c := With(NewContext(), testCountKey, 1)
		c = With(c, testCountKey, 2)

		if got, _ := Get(c, testCountKey); got != 2 {
			t.Errorf("expected 2, got %d", got)
		}
		if c.Len() != 1 {
			t.Errorf("expected 1 entry, got %d", c.Len())
		}
	})

	t.Run("with does not mutate the receiver", func(t *testing.T) {
		base := With(NewContext(), testCountKey, 1)
		_ = With(base, testCountKey, 99)

		if got, _ := Get(base, testCountKey); got != 1 {
			t.Errorf("original context mutated: got %d", got)
		}
	})

	t.Run("same name different types are distinct keys", func(t *testing.T) {
		c := With(NewContext(), testStrKey, "text")
		c = With(c, testIntKey, 7)

		if c.Len() != 2 {
			t.Fatalf("expected 2 entries, got %d", c.Len())
		}
		if got, _ := Get(c, testStrKey); got != "text" {
			t.Errorf("string entry corrupted: %q", got)
		}
		if got, _ := Get(c, testIntKey); got != 7 {
			t.Errorf("int entry corrupted: %d", got)
		}
	})
}

func TestContext_Without(t *testing.T) {
	c := With(NewContext(), testStrKey, "x")
	c = Without(c, testStrKey)

	if _, ok := Get(c, testStrKey); ok {
		t.Error("expected entry removed")
	}

	// Removing an absent key is a no-op.
	c = Without(c, testStrKey)
	if c.Len() != 0 {
		t.Errorf("expected empty context, got %d entries", c.Len())
	}
}

func TestContext_Merge(t *testing.T) {
	t.Run("right side wins on conflict", func(t *testing.T) {
		left := With(NewContext(), testCountKey, 1)
		right := With(NewContext(), testCountKey, 2)

		merged := left.Merge(right)
		if got, _ := Get(merged, testCountKey); got != 2 {
			t.Errorf("expected right-biased merge, got %d", got)
		}
	})

	t.Run("disjoint entries union", func(t *testing.T) {
		left := With(NewContext(), testStrKey, "a")
		right := With(NewContext(), testCountKey, 5)

		merged := left.Merge(right)
		if merged.Len() != 2 {
			t.Errorf("expected 2 entries, got %d", merged.Len())
		}
	})

	t.Run("merge leaves inputs unchanged", func(t *testing.T) {
		left := With(NewContext(), testCountKey, 1)
		right := With(NewContext(), testCountKey, 2)
		_ = left.Merge(right)

		if got, _ := Get(left, testCountKey); got != 1 {
			t.Errorf("left mutated: %d", got)
		}
		if got, _ := Get(right, testCountKey); got != 2 {
			t.Errorf("right mutated: %d", got)
		}
	})
}

func TestContext_Keys(t *testing.T) {
	c := With(NewContext(), NewKey[string]("b"), "1")
	c = With(c, NewKey[string]("a"), "2")
	c = With(c, NewKey[string]("c"), "3")

	keys := c.Keys()
	want := []string{"a", "b", "c"}
	if len(keys) != len(want) {
		t.Fatalf("expected %d keys, got %d", len(want), len(keys))
	}
	for i, k := range want {
		if keys[i] != k {
			t.Errorf("keys[%d] = %q, want %q", i, keys[i], k)
		}
	}
}

func TestGetOr(t *testing.T) {
	c := NewContext()
	if got := GetOr(c, testCountKey, 42); got != 42 {
		t.Errorf("expected default 42, got %d", got)
	}

	c = With(c, testCountKey, 7)
	if got := GetOr(c, testCountKey, 42); got != 7 {
		t.Errorf("expected stored 7, got %d", got)
	}
}
