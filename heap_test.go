package ooxcheck_test

import (
	"testing"

	"ooxcheck"
)

func TestHeapAllocAndGet(t *testing.T) {
	h := ooxcheck.NewHeap()
	h2, r1 := h.Alloc(ooxcheck.IntLit{Value: 1})
	h3, r2 := h2.Alloc(ooxcheck.IntLit{Value: 2})

	if r1 == r2 {
		t.Fatalf("two allocations returned the same reference %v", r1)
	}
	if _, ok := h.Get(r1); ok {
		t.Fatalf("original heap observed the allocation from its copy")
	}
	if v, ok := h3.Get(r1); !ok || v.(ooxcheck.IntLit).Value != 1 {
		t.Fatalf("Get(r1) = %v, %v, want IntLit{1}, true", v, ok)
	}
	if v, ok := h3.Get(r2); !ok || v.(ooxcheck.IntLit).Value != 2 {
		t.Fatalf("Get(r2) = %v, %v, want IntLit{2}, true", v, ok)
	}
}

func TestHeapSetIsCopyOnWrite(t *testing.T) {
	h := ooxcheck.NewHeap()
	h, r := h.Alloc(ooxcheck.IntLit{Value: 1})
	before := h

	after := h.Set(r, ooxcheck.IntLit{Value: 99})
	if v, _ := before.Get(r); v.(ooxcheck.IntLit).Value != 1 {
		t.Fatalf("Set mutated the receiver heap")
	}
	if v, _ := after.Get(r); v.(ooxcheck.IntLit).Value != 99 {
		t.Fatalf("Set did not apply to the returned heap")
	}
}

func TestAliasMapWithAliasDedups(t *testing.T) {
	m := ooxcheck.NewAliasMap()
	if _, ok := m.Aliases("o"); ok {
		t.Fatalf("empty AliasMap reports known aliases for o")
	}

	m = m.WithAlias("o", ooxcheck.Reference(1))
	m = m.WithAlias("o", ooxcheck.Reference(2))
	m = m.WithAlias("o", ooxcheck.Reference(1))

	got, ok := m.Aliases("o")
	if !ok {
		t.Fatalf("Aliases(o) not found after WithAlias")
	}
	if len(got) != 2 {
		t.Fatalf("Aliases(o) = %v, want 2 distinct entries", got)
	}
}

func TestLockSetLockReentrantAndHeldBy(t *testing.T) {
	l := ooxcheck.NewLockSet()
	r := ooxcheck.Reference(1)

	l = l.Lock(r, ooxcheck.ThreadId(0))
	same := l.Lock(r, ooxcheck.ThreadId(0))
	if same != l {
		t.Fatalf("re-entrant Lock returned a different LockSet")
	}

	holder, held := l.HolderOf(r)
	if !held || holder != ooxcheck.ThreadId(0) {
		t.Fatalf("HolderOf(r) = %v, %v, want 0, true", holder, held)
	}

	other := ooxcheck.Reference(2)
	l = l.Lock(other, ooxcheck.ThreadId(0))
	held1 := l.HeldBy(ooxcheck.ThreadId(0))
	if len(held1) != 2 || held1[0] != r || held1[1] != other {
		t.Fatalf("HeldBy(0) = %v, want [%v %v] sorted", held1, r, other)
	}

	l = l.Unlock(r)
	if _, held := l.HolderOf(r); held {
		t.Fatalf("r still reported held after Unlock")
	}
}
