package cache

import (
	"errors"
	"testing"
)

func TestMemoComputesOncePerKey(t *testing.T) {
	memo := New[int](0)
	calls := 0
	compute := func() (int, error) {
		calls++
		return 42, nil
	}

	for i := 0; i < 3; i++ {
		value, err := memo.Get("a", compute)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if value != 42 {
			t.Fatalf("expected 42, got %d", value)
		}
	}
	if calls != 1 {
		t.Fatalf("expected 1 computation, got %d", calls)
	}
}

func TestMemoDoesNotStoreErrors(t *testing.T) {
	memo := New[string](0)
	boom := errors.New("boom")
	if _, err := memo.Get("k", func() (string, error) { return "", boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if memo.Len() != 0 {
		t.Fatalf("failed computation should not be cached")
	}
}

func TestMemoEvictsOldest(t *testing.T) {
	memo := New[int](2)
	for i, key := range []string{"a", "b", "c"} {
		value := i
		memo.Get(key, func() (int, error) { return value, nil })
	}
	if memo.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", memo.Len())
	}
	recomputed := false
	memo.Get("a", func() (int, error) {
		recomputed = true
		return 0, nil
	})
	if !recomputed {
		t.Fatalf("expected oldest key to be evicted")
	}
}

func TestKeyDependsOnInputs(t *testing.T) {
	if Key("x", 1) != Key("x", 1) {
		t.Fatalf("key should be deterministic")
	}
	if Key("x", 1) == Key("x", 2) {
		t.Fatalf("key should change with inputs")
	}
	if Key("ab", "c") == Key("a", "bc") {
		t.Fatalf("key should separate parts")
	}
}
