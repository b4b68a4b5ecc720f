package digidoc

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

type ent Handle

func (e ent) Handle() Handle { return Handle(e) }

func TestTracker_AddIsIdempotent(t *testing.T) {
	tr := NewTracker()
	tr.Add(ent(1))
	tr.Add(ent(1))
	tr.Add(ent(1), ent(1))
	if !tr.Has(ent(1)) {
		t.Fatalf("Has(1) = false")
	}
	if tr.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", tr.Len())
	}
	got := FilterUntracked(tr, []ent{1, 2, 1, 3, 2})
	if diff := cmp.Diff([]ent{2, 3}, got); diff != "" {
		t.Fatalf("FilterUntracked mismatch (-want +got):\n%s", diff)
	}
}

func TestTracker_IdentityNotValue(t *testing.T) {
	ct := newContainer("s")
	a, err := ct.AddFile("a.txt", "text/plain", []byte("same"))
	if err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	b, err := ct.AddFile("b.txt", "text/plain", []byte("same"))
	if err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	tr := NewTracker()
	tr.Add(a)
	if tr.Has(b) {
		t.Fatalf("equal content must not make b tracked")
	}
	if got := FilterUntracked(tr, ct.Files()); len(got) != 1 || got[0] != b {
		t.Fatalf("FilterUntracked = %v", got)
	}
}

func TestTracker_PreservesOrder(t *testing.T) {
	tr := NewTracker()
	tr.Add(ent(4), ent(2))
	got := FilterUntracked(tr, []ent{5, 4, 3, 2, 1})
	if diff := cmp.Diff([]ent{5, 3, 1}, got); diff != "" {
		t.Fatalf("FilterUntracked mismatch (-want +got):\n%s", diff)
	}
	if got := FilterUntracked(tr, []ent{4, 2}); len(got) != 0 {
		t.Fatalf("FilterUntracked(all tracked) = %v", got)
	}
}
