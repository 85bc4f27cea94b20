package ooxcheck

import "testing"

// TestExecMemberEntryAssumesRootRequires pins down that the very first
// step of the whole search — the entry call's own precondition — is
// assumed rather than asserted, even when it is unsatisfiable: the
// precondition is the thing under verification, not a fact to check.
func TestExecMemberEntryAssumesRootRequires(t *testing.T) {
	cfg := newFakeCFG()
	cfg.add(&Node{ID: 1, Kind: StatNodeKind}, 2)
	member := MethodMember{Requires: &LitExpr{Value: BoolLit{Value: false}}}
	e := testEngine(cfg, nil, &fakeSolver{result: UNSAT}, nil)

	s := NewInitialState(10)
	s.CurrentThreadId = threadIdPtr(0)
	s.Threads[0].PushFrame(NewStackFrame(0, nil, member))
	s = s.AppendTrace(0, cfg.Context(1)) // execP's append for this, the first, step

	_, invalid, err := e.execMemberEntry(s, cfg.Node(1), cfg.Context(1))
	if err != nil {
		t.Fatalf("execMemberEntry returned error: %v", err)
	}
	if invalid != nil {
		t.Fatalf("execMemberEntry asserted the root call's own requires clause: %v", invalid)
	}
}

// TestExecMemberEntryAssertsNestedRequires pins down that a requires
// clause IS discharged as an assertion once the trace shows this is not
// the first step of the search (a nested or forked call).
func TestExecMemberEntryAssertsNestedRequires(t *testing.T) {
	cfg := newFakeCFG()
	cfg.add(&Node{ID: 1, Kind: StatNodeKind}, 2)
	member := MethodMember{Requires: &LitExpr{Value: BoolLit{Value: false}}}
	e := testEngine(cfg, nil, &fakeSolver{result: UNSAT}, nil)

	s := NewInitialState(10)
	s.CurrentThreadId = threadIdPtr(0)
	s.Threads[0].PushFrame(NewStackFrame(0, nil, member))
	s = s.AppendTrace(0, cfg.Context(1)) // some earlier step, already in the trace
	s = s.AppendTrace(0, cfg.Context(1)) // this call's own step

	_, invalid, err := e.execMemberEntry(s, cfg.Node(1), cfg.Context(1))
	if err != nil {
		t.Fatalf("execMemberEntry returned error: %v", err)
	}
	if invalid == nil {
		t.Fatalf("execMemberEntry did not assert a nested call's violated requires clause")
	}
}

// TestExecMemberExitDespawnsAndReleasesLocks pins down that returning
// from the last frame on a thread both despawns it and releases any
// lock it still holds, rather than leaving that reference permanently
// locked by a thread that no longer exists.
func TestExecMemberExitDespawnsAndReleasesLocks(t *testing.T) {
	cfg := newFakeCFG()
	cfg.add(&Node{ID: 1, Kind: StatNodeKind}, 2)
	e := testEngine(cfg, nil, &fakeSolver{result: UNSAT}, nil)

	s := NewInitialState(10)
	s.CurrentThreadId = threadIdPtr(0)
	s.Threads[0].PushFrame(NewStackFrame(0, nil, MethodMember{}))
	s.Locks = s.Locks.Lock(Reference(1), 0)

	states, invalid, err := e.execMemberExit(s, cfg.Node(1), cfg.Context(1))
	if err != nil {
		t.Fatalf("execMemberExit returned error: %v", err)
	}
	if invalid != nil {
		t.Fatalf("execMemberExit returned an unexpected invalidity: %v", invalid)
	}
	if len(states) != 1 {
		t.Fatalf("execMemberExit returned %d states, want 1", len(states))
	}
	if len(states[0].Threads) != 0 {
		t.Fatalf("execMemberExit on the last frame left %d threads live, want 0", len(states[0].Threads))
	}
	if _, held := states[0].Locks.HolderOf(Reference(1)); held {
		t.Fatalf("execMemberExit despawned the thread but left its lock held")
	}
}
