package realtime

import (
	"slices"
	"testing"
)

func TestGroups_Lifecycle(t *testing.T) {
	g := NewGroups()
	g.Set(1, []int64{3, 1, 2, 2, 0})

	if got := g.Members(1); !slices.Equal(got, []int64{1, 2, 3}) {
		t.Fatalf("unexpected members: %v", got)
	}
	if !g.IsMember(1, 2) || g.IsMember(1, 9) || g.IsMember(5, 1) {
		t.Fatalf("unexpected membership answers")
	}

	g.Add(1, 9)
	g.Remove(1, 2)
	g.Remove(1, 2)
	if got := g.Members(1); !slices.Equal(got, []int64{1, 3, 9}) {
		t.Fatalf("unexpected members after mutation: %v", got)
	}

	g.Add(7, 4)
	if g.Len() != 2 || !g.IsMember(7, 4) {
		t.Fatalf("expected add to create group 7")
	}

	g.Dismiss(1)
	if g.IsMember(1, 1) || len(g.Members(1)) != 0 {
		t.Fatalf("expected dismissed group to be empty")
	}
}

func TestGroups_MembersReturnsCopy(t *testing.T) {
	g := NewGroups()
	g.Set(1, []int64{1, 2})
	got := g.Members(1)
	got[0] = 99
	if g.IsMember(1, 99) {
		t.Fatalf("members slice must not alias internal state")
	}
}
