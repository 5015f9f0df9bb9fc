package memory

import (
	"context"
	"errors"
	"testing"

	"budgetbuddy/internal/ports"
)

func TestSetGetDelete(t *testing.T) {
	ctx := context.Background()
	s := New()

	if _, err := s.Get(ctx, "a/b"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	rec := ports.Record{"id": "b", "n": 3}
	if err := s.Set(ctx, "/a/b/", rec); err != nil {
		t.Fatalf("set: %v", err)
	}
	rec["id"] = "mutated"

	got, err := s.Get(ctx, "a/b")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got["id"] != "b" {
		t.Fatalf("stored record aliased caller map: %v", got)
	}

	if err := s.Set(ctx, "a/b/c", ports.Record{"x": true}); err != nil {
		t.Fatalf("set child: %v", err)
	}
	if err := s.Delete(ctx, "a/b"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "a/b/c"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("expected subtree removed, got %v", err)
	}
}

func TestQueryOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.Set(ctx, "p/u1/x", ports.Record{"startDate": "2025-03-01"})
	_ = s.Set(ctx, "p/u1/y", ports.Record{"startDate": "2025-01-01"})
	_ = s.Set(ctx, "p/u1/z", ports.Record{"startDate": "2025-02-01"})
	_ = s.Set(ctx, "p/u1/w", ports.Record{})
	_ = s.Set(ctx, "p/u2/other", ports.Record{"startDate": "2030-01-01"})

	all, err := s.Query(ctx, "p/u1", ports.Query{OrderBy: "startDate"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	want := []string{"w", "y", "z", "x"}
	if len(all) != len(want) {
		t.Fatalf("got %d children, want %d", len(all), len(want))
	}
	for i, c := range all {
		if c.Key != want[i] {
			t.Fatalf("position %d: got %s, want %s", i, c.Key, want[i])
		}
	}

	last, err := s.Query(ctx, "p/u1", ports.Query{OrderBy: "startDate", LimitToLast: 1})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(last) != 1 || last[0].Key != "x" {
		t.Fatalf("LimitToLast returned %+v", last)
	}
}

func TestKeys(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.Set(ctx, "budgetPeriods/u2/p1", ports.Record{})
	_ = s.Set(ctx, "budgetPeriods/u1/p1", ports.Record{})
	_ = s.Set(ctx, "budgetPeriods/u1/p2", ports.Record{})
	_ = s.Set(ctx, "historicalPeriods/u3/p1", ports.Record{})

	keys, err := s.Keys(ctx, "budgetPeriods")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 2 || keys[0] != "u1" || keys[1] != "u2" {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func TestFailOn(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	s := New()
	s.FailOn = func(op, _ string) error {
		if op == "delete" {
			return boom
		}
		return nil
	}
	_ = s.Set(ctx, "a/b", ports.Record{})
	if err := s.Delete(ctx, "a/b"); !errors.Is(err, boom) {
		t.Fatalf("expected injected failure, got %v", err)
	}
	if _, err := s.Get(ctx, "a/b"); err != nil {
		t.Fatalf("record should survive failed delete: %v", err)
	}
}
