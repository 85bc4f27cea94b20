package ooxcheck

import (
	"sort"

	"github.com/benbjohnson/immutable"
)

// referenceComparer orders References. Implements immutable.Comparer.
type referenceComparer struct{}

func (referenceComparer) Compare(a, b interface{}) int {
	x, y := a.(Reference), b.(Reference)
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

// threadIDComparer orders ThreadIds. Implements immutable.Comparer.
type threadIDComparer struct{}

func (threadIDComparer) Compare(a, b interface{}) int {
	x, y := a.(ThreadId), b.(ThreadId)
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

// Heap is an immutable, copy-on-write mapping from Reference to a heap
// cell (an ObjectVal or ArrayVal). Allocation returns a fresh Reference;
// nothing is ever deallocated, since exploration is depth-bounded.
type Heap struct {
	cells  *immutable.SortedMap
	nextID Reference
}

// NewHeap returns an empty Heap. Reference 1 is the first allocatable
// reference; 0 is reserved for NullRef.
func NewHeap() *Heap {
	return &Heap{
		cells:  immutable.NewSortedMap(referenceComparer{}),
		nextID: NullRef + 1,
	}
}

// Get returns the cell at r and whether it was present.
func (h *Heap) Get(r Reference) (Value, bool) {
	v, ok := h.cells.Get(r)
	if !ok {
		return nil, false
	}
	return v.(Value), true
}

// Alloc inserts cell under a freshly minted Reference and returns the new
// Heap together with that Reference.
func (h *Heap) Alloc(cell Value) (*Heap, Reference) {
	r := h.nextID
	cells := h.cells.Set(r, cell)
	return &Heap{cells: cells, nextID: r + 1}, r
}

// Set replaces the cell at r, which must already be allocated.
func (h *Heap) Set(r Reference, cell Value) *Heap {
	return &Heap{cells: h.cells.Set(r, cell), nextID: h.nextID}
}

// AliasMap is an immutable mapping from symbolic-reference name to the
// finite set of concrete References (including NullRef) it may denote,
// populated lazily during concretization.
type AliasMap struct {
	aliases *immutable.Map
}

// NewAliasMap returns an empty AliasMap.
func NewAliasMap() *AliasMap {
	return &AliasMap{aliases: immutable.NewMap(nil)}
}

// Aliases returns the known alias set for name, or (nil, false) if no
// aliases have been recorded yet — the "bottom" case POR treats as
// UnknownRef.
func (m *AliasMap) Aliases(name string) ([]Reference, bool) {
	v, ok := m.aliases.Get(name)
	if !ok {
		return nil, false
	}
	refs := v.([]Reference)
	out := make([]Reference, len(refs))
	copy(out, refs)
	return out, true
}

// WithAlias returns a new AliasMap extending name's alias set with ref,
// unless ref is already present.
func (m *AliasMap) WithAlias(name string, ref Reference) *AliasMap {
	existing, _ := m.Aliases(name)
	for _, r := range existing {
		if r == ref {
			return m
		}
	}
	updated := append(append([]Reference{}, existing...), ref)
	return &AliasMap{aliases: m.aliases.Set(name, updated)}
}

// LockSet is an immutable partial mapping from Reference to the ThreadId
// currently holding its monitor lock. A reference is mapped at most once.
type LockSet struct {
	locks *immutable.SortedMap
}

// NewLockSet returns an empty LockSet.
func NewLockSet() *LockSet {
	return &LockSet{locks: immutable.NewSortedMap(referenceComparer{})}
}

// HolderOf returns the thread holding r's lock, or (0, false) if unlocked.
func (l *LockSet) HolderOf(r Reference) (ThreadId, bool) {
	v, ok := l.locks.Get(r)
	if !ok {
		return 0, false
	}
	return v.(ThreadId), true
}

// Lock acquires r for tid. Re-entrant: locking a reference already held
// by tid is a no-op.
func (l *LockSet) Lock(r Reference, tid ThreadId) *LockSet {
	if holder, ok := l.HolderOf(r); ok && holder == tid {
		return l
	}
	return &LockSet{locks: l.locks.Set(r, tid)}
}

// Unlock releases r. Unlocking a reference not present is a no-op.
func (l *LockSet) Unlock(r Reference) *LockSet {
	if _, ok := l.HolderOf(r); !ok {
		return l
	}
	return &LockSet{locks: l.locks.Delete(r)}
}

// HeldBy returns, in ascending Reference order, every reference currently
// held by tid — used by the exception/despawn path to release a
// despawning thread's locks.
func (l *LockSet) HeldBy(tid ThreadId) []Reference {
	var out []Reference
	itr := l.locks.Iterator()
	for !itr.Done() {
		k, v := itr.Next()
		if v.(ThreadId) == tid {
			out = append(out, k.(Reference))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
