package ooxcheck

import "testing"

func rootState(member MethodMember) (*Engine, *ExecutionState) {
	cfg := newFakeCFG()
	cfg.add(&Node{ID: 99, Kind: StatNodeKind}, 100)
	e := testEngine(cfg, nil, &fakeSolver{result: UNSAT}, nil)

	s := NewInitialState(10)
	s.CurrentThreadId = threadIdPtr(0)
	s.Threads[0].PushFrame(NewStackFrame(0, nil, member))
	return e, s
}

func TestUnwindAtRootDespawns(t *testing.T) {
	e, s := rootState(MethodMember{})
	s.Locks = s.Locks.Lock(Reference(1), 0)

	states, invalid, err := e.unwind(s)
	if err != nil {
		t.Fatalf("unwind returned error: %v", err)
	}
	if invalid != nil {
		t.Fatalf("unwind returned an invalidity for a trivially-satisfied exceptional spec: %v", invalid)
	}
	if len(states) != 1 {
		t.Fatalf("unwind returned %d states, want 1", len(states))
	}
	if len(states[0].Threads) != 0 {
		t.Fatalf("unwind at root left %d threads live, want 0 (despawned)", len(states[0].Threads))
	}
	if _, held := states[0].Locks.HolderOf(Reference(1)); held {
		t.Fatalf("unwind at root despawned the thread but left its lock held")
	}
}

func TestUnwindJumpsToHandlerWithNoPendingPops(t *testing.T) {
	e, s := rootState(MethodMember{})
	s.Threads[0].PushHandler(NodeID(99))

	states, invalid, err := e.unwind(s)
	if err != nil {
		t.Fatalf("unwind returned error: %v", err)
	}
	if invalid != nil {
		t.Fatalf("unwind returned an unexpected invalidity: %v", invalid)
	}
	if len(states) != 1 {
		t.Fatalf("unwind returned %d states, want 1", len(states))
	}
	nt, err := states[0].CurrentThread()
	if err != nil {
		t.Fatalf("CurrentThread error: %v", err)
	}
	if nt.Pc.NodeID != NodeID(99) {
		t.Fatalf("unwind jumped to node %d, want the handler node 99", nt.Pc.NodeID)
	}
	if len(nt.CallStack) != 1 {
		t.Fatalf("unwind with PopsPending=0 popped a frame, it should not have")
	}
}

func TestUnwindDischargesViolatedExceptionalSpec(t *testing.T) {
	member := MethodMember{Exceptional: &LitExpr{Value: BoolLit{Value: false}}}
	e, s := rootState(member)

	_, invalid, err := e.unwind(s)
	if err != nil {
		t.Fatalf("unwind returned error: %v", err)
	}
	if invalid == nil {
		t.Fatalf("unwind did not flag the violated exceptional spec as invalid")
	}
}

func TestUnwindSkipsDischargeWhenVerifyExceptionalDisabled(t *testing.T) {
	member := MethodMember{Exceptional: &LitExpr{Value: BoolLit{Value: false}}}
	e, s := rootState(member)
	e.Config.VerifyExceptional = false

	_, invalid, err := e.unwind(s)
	if err != nil {
		t.Fatalf("unwind returned error: %v", err)
	}
	if invalid != nil {
		t.Fatalf("unwind flagged an invalidity despite VerifyExceptional=false: %v", invalid)
	}
}
