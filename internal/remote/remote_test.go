package remote

import (
	"encoding/json"
	"testing"

	"budgetbuddy/internal/ports"
)

func TestCleanPath(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"a/b", "a/b", true},
		{"/a/b/", "a/b", true},
		{"", "", false},
		{"a//b", "", false},
		{"a/ /b", "", false},
	}
	for _, tc := range cases {
		got, err := CleanPath(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("CleanPath(%q) = %q, %v", tc.in, got, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("CleanPath(%q) expected error", tc.in)
		}
	}
}

func TestApplyQueryMixedNumbers(t *testing.T) {
	children := []ports.Child{
		{Key: "a", Value: ports.Record{"archivedAt": json.Number("300")}},
		{Key: "b", Value: ports.Record{"archivedAt": float64(100)}},
		{Key: "c", Value: ports.Record{"archivedAt": int64(200)}},
		{Key: "d", Value: ports.Record{}},
	}
	got := ApplyQuery(children, ports.Query{OrderBy: "archivedAt"})
	want := "dbca"
	for i, c := range got {
		if c.Key != string(want[i]) {
			t.Fatalf("position %d: got %s, want %c", i, c.Key, want[i])
		}
	}
}

func TestApplyQueryTieBreaksOnKey(t *testing.T) {
	children := []ports.Child{
		{Key: "z", Value: ports.Record{"startDate": "2025-01-01"}},
		{Key: "m", Value: ports.Record{"startDate": "2025-01-01"}},
	}
	got := ApplyQuery(children, ports.Query{OrderBy: "startDate", LimitToLast: 1})
	if len(got) != 1 || got[0].Key != "z" {
		t.Fatalf("unexpected result %+v", got)
	}
}

func TestSplit(t *testing.T) {
	parent, key := Split("budgetPeriods/u1/p1")
	if parent != "budgetPeriods/u1" || key != "p1" {
		t.Fatalf("Split = %q, %q", parent, key)
	}
	parent, key = Split("root")
	if parent != "" || key != "root" {
		t.Fatalf("Split(root) = %q, %q", parent, key)
	}
}
