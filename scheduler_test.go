package ooxcheck

import "testing"

func TestExecPTerminalWhenNoThreads(t *testing.T) {
	cfg := newFakeCFG()
	e := testEngine(cfg, nil, nil, nil)

	s := NewInitialState(10)
	s.Threads = map[ThreadId]*Thread{}

	successors, deadlock, terminal, invalid, err := e.execP(s)
	if err != nil || invalid != nil || deadlock {
		t.Fatalf("execP(no threads) returned deadlock=%v invalid=%v err=%v", deadlock, invalid, err)
	}
	if !terminal || successors != nil {
		t.Fatalf("execP(no threads) = terminal=%v successors=%v, want terminal=true, nil", terminal, successors)
	}
}

// TestExecPDeadlockOnMutualLock builds two threads each waiting on a
// reference the other already holds, and checks execP reports a deadlock
// rather than selecting either of them.
func TestExecPDeadlockOnMutualLock(t *testing.T) {
	cfg := newFakeCFG()
	cfg.add(&Node{ID: 1, Kind: StatNodeKind, Stat: LockStmt{Expr: &LitExpr{Value: RefVal{Ref: 1}}}}, 2)
	cfg.add(&Node{ID: 3, Kind: StatNodeKind, Stat: LockStmt{Expr: &LitExpr{Value: RefVal{Ref: 2}}}}, 4)
	e := testEngine(cfg, nil, nil, nil)

	s := NewInitialState(10)
	s.Threads[0].Pc = cfg.Context(1) // thread 0 wants ref 1, held by thread 1
	s.Threads[1] = &Thread{Tid: 1, Parent: 0, Pc: cfg.Context(3)} // thread 1 wants ref 2, held by thread 0
	s.Locks = s.Locks.Lock(Reference(1), ThreadId(1))
	s.Locks = s.Locks.Lock(Reference(2), ThreadId(0))

	successors, deadlock, terminal, invalid, err := e.execP(s)
	if err != nil {
		t.Fatalf("execP returned error: %v", err)
	}
	if invalid != nil {
		t.Fatalf("execP returned an unexpected invalidity: %v", invalid)
	}
	if !deadlock {
		t.Fatalf("execP(mutual lock wait) deadlock=%v, want true", deadlock)
	}
	if terminal || successors != nil {
		t.Fatalf("execP deadlock result also reported terminal/successors: %v %v", terminal, successors)
	}
}

func TestExecPDropsSuccessorsPastDepthBudget(t *testing.T) {
	cfg := newFakeCFG()
	cfg.add(&Node{ID: 1, Kind: StatNodeKind, Stat: SkipStmt{}}, 2)
	e := testEngine(cfg, nil, nil, nil)

	s := NewInitialState(0) // RemainingK starts at 0
	s.Threads[0].Pc = cfg.Context(1)

	successors, deadlock, terminal, invalid, err := e.execP(s)
	if err != nil || invalid != nil || deadlock {
		t.Fatalf("execP returned deadlock=%v invalid=%v err=%v", deadlock, invalid, err)
	}
	if !terminal || len(successors) != 0 {
		t.Fatalf("execP with exhausted depth budget = terminal=%v successors=%v, want terminal=true, empty", terminal, successors)
	}
}

// TestExecPDepthBudgetExhaustedSkipsAssert pins down that a zero depth
// budget terminates the branch before the step is taken at all, rather
// than taking one "free" step and discarding its successors: a step
// containing a violated assert must not turn into a spurious Invalid.
func TestExecPDepthBudgetExhaustedSkipsAssert(t *testing.T) {
	cfg := newFakeCFG()
	cfg.add(&Node{ID: 1, Kind: StatNodeKind, Stat: AssertStmt{Expr: &LitExpr{Value: BoolLit{Value: false}}}}, 2)
	e := testEngine(cfg, nil, nil, nil)

	s := NewInitialState(0)
	s.Threads[0].Pc = cfg.Context(1)

	successors, deadlock, terminal, invalid, err := e.execP(s)
	if err != nil || deadlock {
		t.Fatalf("execP returned deadlock=%v err=%v", deadlock, err)
	}
	if invalid != nil {
		t.Fatalf("execP with exhausted depth budget executed a step and reported invalid=%v, want no step taken", invalid)
	}
	if !terminal || len(successors) != 0 {
		t.Fatalf("execP with exhausted depth budget = terminal=%v successors=%v, want terminal=true, empty", terminal, successors)
	}
}
