package breakreg

import (
	"reflect"
	"sort"
	"testing"
)

func TestSetBreakpointsDeleteThenInsertPerPath(t *testing.T) {
	r := New()
	r.SetSource("/tmp/main.c", []int{1, 2})
	r.SetSource("/tmp/other.c", []int{3})

	old := r.OwnedForSource("/tmp/main.c")
	if !reflect.DeepEqual(old, []int{1, 2}) {
		t.Fatalf("expected previously owned [1 2], got %v", old)
	}
	r.SetSource("/tmp/main.c", []int{4})

	all := r.AllSourceIDs()
	sort.Ints(all)
	if !reflect.DeepEqual(all, []int{3, 4}) {
		t.Fatalf("union invariant violated: %v", all)
	}
}

func TestOwnedForSourceEmptyWhenNeverSet(t *testing.T) {
	r := New()
	if got := r.OwnedForSource("/nope.c"); got != nil {
		t.Fatalf("want nil, got %v", got)
	}
}

func TestReplaceInstructionReturnsPrevious(t *testing.T) {
	r := New()
	if old := r.ReplaceInstruction([]int{10, 11}); old != nil {
		t.Fatalf("want nil previous set, got %v", old)
	}
	old := r.ReplaceInstruction([]int{12})
	if !reflect.DeepEqual(old, []int{10, 11}) {
		t.Fatalf("want [10 11], got %v", old)
	}
}

func TestReplaceWatchReturnsPrevious(t *testing.T) {
	r := New()
	r.ReplaceWatch([]int{1})
	old := r.ReplaceWatch([]int{2, 3})
	if !reflect.DeepEqual(old, []int{1}) {
		t.Fatalf("want [1], got %v", old)
	}
}
