package ooxcheck

import (
	"fmt"
	"sort"

	"github.com/davecgh/go-spew/spew"
	"golang.org/x/exp/maps"
)

// ThreadId identifies a Thread within an ExecutionState.
type ThreadId int

// StackFrame is a single call frame: a return point, an
// optional assignment target for the call's result, the local
// environment (including the implicit this and retval slots), and the
// member whose body this frame is executing.
type StackFrame struct {
	ReturnPoint   NodeID
	Target        Lhs // nil if the call's result is discarded
	Declarations  map[string]Value
	CurrentMember MemberRef
}

// NewStackFrame returns a frame with an empty local environment.
func NewStackFrame(returnPoint NodeID, target Lhs, member MemberRef) *StackFrame {
	return &StackFrame{
		ReturnPoint:   returnPoint,
		Target:        target,
		Declarations:  make(map[string]Value),
		CurrentMember: member,
	}
}

// Clone returns a copy of f with its own Declarations map, so that
// mutating the clone never affects f.
func (f *StackFrame) Clone() *StackFrame {
	other := *f
	other.Declarations = maps.Clone(f.Declarations)
	return &other
}

// Bind sets name to val in f's local environment.
func (f *StackFrame) Bind(name string, val Value) {
	f.Declarations[name] = val
}

// Lookup returns the value bound to name, and whether it was found.
func (f *StackFrame) Lookup(name string) (Value, bool) {
	v, ok := f.Declarations[name]
	return v, ok
}

// HandlerEntry records one active try block on a thread's HandlerStack:
// the CFG node to jump to when an exception unwinds into it, and how
// many frames remain to be popped before that handler is reached.
type HandlerEntry struct {
	Handler     NodeID
	PopsPending int
}

// Thread is one symbolically-scheduled thread of the target program.
type Thread struct {
	Tid          ThreadId
	Parent       ThreadId
	Pc           CFGContext
	CallStack    []*StackFrame
	HandlerStack []HandlerEntry
}

// Clone returns a deep copy of t: every StackFrame is cloned so the copy
// never shares mutable Declarations with t.
func (t *Thread) Clone() *Thread {
	other := &Thread{
		Tid:          t.Tid,
		Parent:       t.Parent,
		Pc:           t.Pc,
		CallStack:    make([]*StackFrame, len(t.CallStack)),
		HandlerStack: append([]HandlerEntry{}, t.HandlerStack...),
	}
	for i, f := range t.CallStack {
		other.CallStack[i] = f.Clone()
	}
	return other
}

// TopFrame returns the innermost (currently executing) frame, or nil if
// the call stack is empty.
func (t *Thread) TopFrame() *StackFrame {
	if len(t.CallStack) == 0 {
		return nil
	}
	return t.CallStack[len(t.CallStack)-1]
}

// PushFrame pushes f onto t's call stack.
func (t *Thread) PushFrame(f *StackFrame) {
	t.CallStack = append(t.CallStack, f)
}

// PopFrame removes and returns the innermost frame.
func (t *Thread) PopFrame() *StackFrame {
	n := len(t.CallStack)
	f := t.CallStack[n-1]
	t.CallStack = t.CallStack[:n-1]
	return f
}

// TopHandler returns the innermost active handler entry, and whether the
// thread is currently inside any try block.
func (t *Thread) TopHandler() (HandlerEntry, bool) {
	if len(t.HandlerStack) == 0 {
		return HandlerEntry{}, false
	}
	return t.HandlerStack[len(t.HandlerStack)-1], true
}

// PushHandler pushes a new (handler, 0) entry, per TryEntry's semantics.
func (t *Thread) PushHandler(handler NodeID) {
	t.HandlerStack = append(t.HandlerStack, HandlerEntry{Handler: handler, PopsPending: 0})
}

// PopHandler removes the innermost handler entry, per TryExit/CatchEntry.
func (t *Thread) PopHandler() {
	t.HandlerStack = t.HandlerStack[:len(t.HandlerStack)-1]
}

// incrementLastHandlerPops increments the innermost handler's PopsPending,
// invoked when a call pushes a frame inside a try block.
func (t *Thread) incrementLastHandlerPops() {
	n := len(t.HandlerStack)
	if n == 0 {
		return
	}
	t.HandlerStack[n-1].PopsPending++
}

// TraceEntry is one (thread, CFG context) pair appended to an
// ExecutionState's ProgramTrace on every transition.
type TraceEntry struct {
	Tid ThreadId
	Ctx CFGContext
}

// InterleavingConstraint records whether two CFG contexts were observed
// independent or not-independent by POR.
type InterleavingConstraint struct {
	Independent bool
	A, B        CFGContext
}

func (c InterleavingConstraint) endpoints() (CFGContext, CFGContext) { return c.A, c.B }

// ExecutionState is the unit of exploration.
type ExecutionState struct {
	Threads         map[ThreadId]*Thread
	CurrentThreadId *ThreadId

	Heap     *Heap
	Aliases  *AliasMap
	Locks    *LockSet

	Constraints []Expr

	InterleavingConstraints []InterleavingConstraint

	RemainingK    int
	NumberOfForks int

	ProgramTrace []TraceEntry
}

// NewInitialState returns the ExecutionState the driver starts the search
// from: one thread (tid 0) with no frames yet pushed, an empty heap, and
// the configured depth budget.
func NewInitialState(maximumDepth int) *ExecutionState {
	return &ExecutionState{
		Threads: map[ThreadId]*Thread{
			0: {Tid: 0, Parent: 0},
		},
		Heap:       NewHeap(),
		Aliases:    NewAliasMap(),
		Locks:      NewLockSet(),
		RemainingK: maximumDepth,
	}
}

// CurrentThread returns the thread named by CurrentThreadId, or an error
// if it is unset or dangling.
func (s *ExecutionState) CurrentThread() (*Thread, error) {
	if s.CurrentThreadId == nil {
		return nil, ErrCannotGetCurrentThread
	}
	t, ok := s.Threads[*s.CurrentThreadId]
	if !ok {
		return nil, ErrCannotGetCurrentThread
	}
	return t, nil
}

// Clone returns a deep copy of s: every Thread is cloned, Constraints and
// InterleavingConstraints get their own backing arrays, and Heap/Aliases/
// Locks are shared by reference since they are themselves persistent.
func (s *ExecutionState) Clone() *ExecutionState {
	threads := make(map[ThreadId]*Thread, len(s.Threads))
	for tid, t := range s.Threads {
		threads[tid] = t.Clone()
	}

	other := &ExecutionState{
		Threads:                 threads,
		Heap:                    s.Heap,
		Aliases:                 s.Aliases,
		Locks:                   s.Locks,
		Constraints:             append([]Expr{}, s.Constraints...),
		InterleavingConstraints: append([]InterleavingConstraint{}, s.InterleavingConstraints...),
		RemainingK:              s.RemainingK,
		NumberOfForks:           s.NumberOfForks,
		ProgramTrace:            append([]TraceEntry{}, s.ProgramTrace...),
	}
	if s.CurrentThreadId != nil {
		tid := *s.CurrentThreadId
		other.CurrentThreadId = &tid
	}
	return other
}

// WithConstraint returns a clone of s with phi appended to Constraints,
// splitting top-level conjunctions so each conjunct is its own entry and
// the list stays flat and append-only.
func (s *ExecutionState) WithConstraint(phi Expr) *ExecutionState {
	next := s.Clone()
	next.Constraints = append(next.Constraints, splitConjuncts(phi)...)
	return next
}

// PathCondition returns the conjunction of all accumulated constraints.
func (s *ExecutionState) PathCondition() Expr {
	return Conjunction(s.Constraints)
}

// AppendTrace returns a clone of s with (tid, ctx) appended to
// ProgramTrace. ProgramTrace is append-only.
func (s *ExecutionState) AppendTrace(tid ThreadId, ctx CFGContext) *ExecutionState {
	next := s.Clone()
	next.ProgramTrace = append(next.ProgramTrace, TraceEntry{Tid: tid, Ctx: ctx})
	return next
}

// SortedThreadIds returns every live ThreadId in ascending order, used
// wherever iteration order must be deterministic.
func (s *ExecutionState) SortedThreadIds() []ThreadId {
	ids := make([]ThreadId, 0, len(s.Threads))
	for tid := range s.Threads {
		ids = append(ids, tid)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Despawn removes tid from Threads and releases every lock it still
// holds, invoked from MemberExit's last-frame-on-this-thread case and
// from unwind's unhandled-exception-at-root case. Without the release,
// a reference locked by a despawning thread would stay locked forever,
// deadlocking every other thread that ever waits on it.
func (s *ExecutionState) Despawn(tid ThreadId) {
	for _, r := range s.Locks.HeldBy(tid) {
		s.Locks = s.Locks.Unlock(r)
	}
	delete(s.Threads, tid)
}

// Dump renders the state's threads, locks and path constraints for
// debugging, using go-spew for the threads and locks. The heap is not
// included.
func (s *ExecutionState) Dump() string {
	return fmt.Sprintf("threads=%s\nlocks=%s\nconstraints=%s\n",
		spew.Sdump(s.Threads), spew.Sdump(s.Locks), exprString(s.Constraints, " && "))
}
