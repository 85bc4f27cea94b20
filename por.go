package ooxcheck

import "sort"

// This file implements Partial-Order Reduction: enabled filtering, the
// independence relation over read/write reference sets, the
// unique-interleaving filter, and the locality optimisation.

// isEnabled reports whether tid may legally fire next: a thread is
// disabled if its pc is a Lock on a reference held by another thread, or
// a Join on a non-empty child set. Symbolic references at a lock site
// enable the thread — concretization happens inside execLock.
func (e *Engine) isEnabled(state *ExecutionState, tid ThreadId) (bool, error) {
	t := state.Threads[tid]
	node := e.CFG.Node(t.Pc.NodeID)

	switch t.Pc.Kind {
	case StatNodeKind:
		lockStmt, ok := node.Stat.(LockStmt)
		if !ok {
			return true, nil
		}
		view := *state
		view.CurrentThreadId = &tid
		v, err := evaluate(&view, lockStmt.Expr)
		if err != nil {
			return false, err
		}
		ref, ok := concreteRefOf(v)
		if !ok || ref == NullRef {
			return true, nil
		}
		holder, held := state.Locks.HolderOf(ref)
		return !held || holder == tid, nil

	case JoinKind:
		for _, other := range state.Threads {
			if other.Tid != tid && other.Parent == tid {
				return false, nil
			}
		}
		return true, nil

	default:
		return true, nil
	}
}

// enabledThreads returns the sorted set of thread ids currently enabled.
func (e *Engine) enabledThreads(state *ExecutionState) ([]ThreadId, error) {
	var enabled []ThreadId
	for _, tid := range state.SortedThreadIds() {
		ok, err := e.isEnabled(state, tid)
		if err != nil {
			return nil, err
		}
		if ok {
			enabled = append(enabled, tid)
		}
	}
	return enabled, nil
}

// refsOfValue maps an evaluated Value to its read/write reference set: a
// singleton for a concrete reference, the bottom marker UnknownRef when
// a symbolic reference's aliases are not yet known, the (filtered) alias
// set otherwise, and none for null.
func refsOfValue(state *ExecutionState, v Value) []Reference {
	switch v := v.(type) {
	case RefVal:
		return []Reference{v.Ref}
	case NullLit:
		return nil
	}

	sym, ok := asSymbolicRef(v)
	if !ok {
		return nil
	}
	aliases, known := state.Aliases.Aliases(sym.Name)
	if !known {
		return []Reference{UnknownRef}
	}
	var out []Reference
	for _, r := range aliases {
		if r != NullRef {
			out = append(out, r)
		}
	}
	return out
}

// refsOfExpr walks e, collecting the reference set of every variable it
// reads (a variable holding a reference contributes that reference), which
// covers the targets of field/element access and quantifier domains.
// A quantifier's domain expression is treated as a read of that
// reference, the same as any other field/element access.
func refsOfExpr(state *ExecutionState, e Expr) []Reference {
	switch e := e.(type) {
	case *VarExpr:
		v, err := evaluate(state, e)
		if err != nil {
			return nil
		}
		return refsOfValue(state, v)
	case *FieldExpr:
		return refsOfExpr(state, e.Target)
	case *ElementExpr:
		return append(refsOfExpr(state, e.Target), refsOfExpr(state, e.Index)...)
	case *SizeOfExpr:
		return refsOfExpr(state, e.Target)
	case *BinaryExpr:
		return append(refsOfExpr(state, e.LHS), refsOfExpr(state, e.RHS)...)
	case *UnaryExpr:
		return refsOfExpr(state, e.Expr)
	case *ForallExpr:
		return refsOfExpr(state, e.Domain)
	case *ExistsExpr:
		return refsOfExpr(state, e.Domain)
	default:
		return nil
	}
}

func refsOfLhs(state *ExecutionState, lhs Lhs) []Reference {
	switch lhs := lhs.(type) {
	case FieldLhs:
		return refsOfExpr(state, lhs.Target)
	case ElementLhs:
		return append(refsOfExpr(state, lhs.Target), refsOfExpr(state, lhs.Index)...)
	default:
		return nil // VarLhs: a local, never a heap reference
	}
}

func refsOfRhs(state *ExecutionState, rhs Rhs) []Reference {
	switch rhs := rhs.(type) {
	case RhsExpr:
		return refsOfExpr(state, rhs.Expr)
	case RhsCall:
		if rhs.Invocation.Target != nil {
			return refsOfExpr(state, rhs.Invocation.Target)
		}
		return nil
	default:
		return nil // RhsNewObject/RhsNewArray allocate, they don't read existing refs
	}
}

// dependentOperationsOf returns (W, R) for the statement at pc.
func dependentOperationsOf(state *ExecutionState, e *Engine, pc CFGContext) ([]Reference, []Reference) {
	if pc.Kind != StatNodeKind {
		return nil, nil
	}
	node := e.CFG.Node(pc.NodeID)
	switch stmt := node.Stat.(type) {
	case AssignStmt:
		return refsOfLhs(state, stmt.Lhs), refsOfRhs(state, stmt.Rhs)
	case AssertStmt:
		return nil, refsOfExpr(state, stmt.Expr)
	case AssumeStmt:
		return nil, refsOfExpr(state, stmt.Expr)
	case LockStmt:
		r := refsOfExpr(state, stmt.Expr)
		return r, r
	case UnlockStmt:
		r := refsOfExpr(state, stmt.Expr)
		return r, r
	default:
		return nil, nil
	}
}

func refSetsOverlap(a, b []Reference) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func containsUnknownRef(refs []Reference) bool {
	for _, r := range refs {
		if r == UnknownRef {
			return true
		}
	}
	return false
}

// isIndependent implements the independence predicate between two
// enabled threads' next actions.
func (e *Engine) isIndependent(state *ExecutionState, x, y ThreadId) bool {
	xt, yt := state.Threads[x], state.Threads[y]
	Wx, Rx := dependentOperationsOf(state, e, xt.Pc)
	Wy, Ry := dependentOperationsOf(state, e, yt.Pc)

	if len(Wx)+len(Rx) == 0 || len(Wy)+len(Ry) == 0 {
		// Conservative: an action with no tracked references is still
		// declared dependent rather than trivially independent (see
		// DESIGN.md).
		return false
	}
	if containsUnknownRef(Wx) || containsUnknownRef(Rx) {
		return false
	}
	if containsUnknownRef(Wy) || containsUnknownRef(Ry) {
		return false
	}
	return !refSetsOverlap(Wx, Wy) && !refSetsOverlap(Rx, Wy) && !refSetsOverlap(Ry, Wx)
}

// filterUnique drops threads whose next action is not "unique" relative
// to the state's recorded InterleavingConstraints: t is non-unique if
// some Independent(prev, cur) constraint has t.pc == cur and prev
// already appears in the program trace.
func (e *Engine) filterUnique(state *ExecutionState, enabled []ThreadId) []ThreadId {
	if !e.Config.ApplyPOR {
		return enabled
	}
	var out []ThreadId
	for _, tid := range enabled {
		cur := state.Threads[tid].Pc
		unique := true
		for _, c := range state.InterleavingConstraints {
			if !c.Independent {
				continue
			}
			if ctxEq(c.B, cur) && traceContains(state.ProgramTrace, c.A) {
				unique = false
				break
			}
		}
		if unique {
			out = append(out, tid)
		}
	}
	return out
}

func ctxEq(a, b CFGContext) bool { return a.NodeID == b.NodeID }

func traceContains(trace []TraceEntry, ctx CFGContext) bool {
	for _, e := range trace {
		if ctxEq(e.Ctx, ctx) {
			return true
		}
	}
	return false
}

// nextActionIsLocal reports whether tid's next statement reads and
// writes only local variables, the precondition for the locality
// optimisation below.
func (e *Engine) nextActionIsLocal(state *ExecutionState, tid ThreadId) bool {
	W, R := dependentOperationsOf(state, e, state.Threads[tid].Pc)
	return len(W) == 0 && len(R) == 0
}

// por applies the Partial-Order Reduction pipeline to the
// enabled set and returns the successor state (with refreshed
// InterleavingConstraints) together with the threads selected to fire.
// An empty enabled set with live threads remaining is a deadlock.
func (e *Engine) por(state *ExecutionState, enabled []ThreadId) (*ExecutionState, []ThreadId, bool) {
	if len(enabled) == 0 {
		return state, nil, len(state.Threads) > 0
	}
	if !e.Config.ApplyPOR {
		return state, enabled, false
	}

	unique := e.filterUnique(state, enabled)
	if len(unique) == 0 {
		unique = enabled
	}

	var locals []ThreadId
	for _, tid := range unique {
		if e.nextActionIsLocal(state, tid) {
			locals = append(locals, tid)
		}
	}

	selected := unique
	if len(locals) > 0 {
		selected = []ThreadId{locals[0]}
	}

	next := state.Clone()
	next.InterleavingConstraints = e.nextInterleavingConstraints(state, selected)
	return next, selected, false
}

// nextInterleavingConstraints computes the new constraint set for every
// ordered pair of selected threads and merges it with the old set. See
// DESIGN.md for the merge-direction decision this resolves.
func (e *Engine) nextInterleavingConstraints(state *ExecutionState, selected []ThreadId) []InterleavingConstraint {
	sorted := append([]ThreadId{}, selected...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var fresh []InterleavingConstraint
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			x, y := sorted[i], sorted[j]
			indep := e.isIndependent(state, x, y)
			fresh = append(fresh, InterleavingConstraint{
				Independent: indep,
				A:           state.Threads[x].Pc,
				B:           state.Threads[y].Pc,
			})
		}
	}

	var kept []InterleavingConstraint
	for _, old := range state.InterleavingConstraints {
		if old.Independent {
			continue
		}
		keep := true
		for _, n := range fresh {
			if n.Independent && endpointsOverlap(old, n) {
				keep = false
				break
			}
		}
		if keep {
			kept = append(kept, old)
		}
	}
	return append(kept, fresh...)
}

func endpointsOverlap(a, b InterleavingConstraint) bool {
	return ctxEq(a.A, b.A) || ctxEq(a.A, b.B) || ctxEq(a.B, b.A) || ctxEq(a.B, b.B)
}
