package ooxcheck

import "math/rand"

// Engine bundles the external collaborators the core depends on
// (CFG, SymbolTable, Solver) together with the run's Configuration. It
// has no mutable state of its own; every method takes the ExecutionState
// it operates on explicitly, so Engine values are safe to share across
// concurrently-explored branches.
type Engine struct {
	CFG    ControlFlowGraph
	Table  SymbolTable
	Solver Solver
	Config *Configuration
	Log    *Logger

	// Rand drives ApplyRandomInterleaving's shuffle; nil keeps exploration
	// order deterministic regardless of the flag.
	Rand *rand.Rand
}

// Invalidity is the counterexample payload carried by a VerificationResult
// of Invalid: the formula that was found satisfiable, the CFG location it
// was discharged at, and the (ThreadId, CFGContext) trace leading there.
type Invalidity struct {
	Formula  Expr
	Location CFGContext
	Trace    []TraceEntry
}

// execT dispatches state's current thread's pc on CFG node kind and
// returns the successor states (zero or more — zero means the branch
// was infeasible and should simply be dropped). A
// non-nil Invalidity short-circuits the whole search.
func (e *Engine) execT(state *ExecutionState) ([]*ExecutionState, *Invalidity, error) {
	t, err := state.CurrentThread()
	if err != nil {
		return nil, nil, err
	}
	pc := t.Pc

	if err := checkNeighbourCount(pc); err != nil {
		return nil, nil, err
	}
	node := e.CFG.Node(pc.NodeID)

	e.logf(2, "[exec] tid=%d %s", t.Tid, pc)

	switch pc.Kind {
	case StatNodeKind:
		return e.execStatNode(state, node, pc)
	case MemberEntryKind:
		return e.execMemberEntry(state, node, pc)
	case MemberExitKind:
		return e.execMemberExit(state, node, pc)
	case TryEntryKind:
		return e.execTryEntry(state, node, pc)
	case TryExitKind, CatchEntryKind:
		return e.execPopHandler(state, pc)
	case CatchExitKind, JoinKind:
		return e.advance(state, pc.Successors[0]), nil, nil
	case ExceptionalNodeKind:
		return e.execExceptional(state, node, pc)
	case CallKind:
		return e.execCall(state, node, pc)
	default:
		return nil, nil, neighbourCountError(pc.Kind, 1, 0)
	}
}

// checkNeighbourCount enforces the per-kind neighbour-count contract
// documented on NodeKind.expectedNeighbours: a mismatch between expected
// and actual successor count is a fatal engine error.
func checkNeighbourCount(pc CFGContext) error {
	expected := pc.Kind.expectedNeighbours()
	got := len(pc.Successors)
	if expected == -1 {
		if got < 1 {
			return neighbourCountError(pc.Kind, 1, got)
		}
		return nil
	}
	if got != expected {
		return neighbourCountError(pc.Kind, expected, got)
	}
	return nil
}

// advance returns a singleton successor with the current thread's pc
// moved to dst, without otherwise changing the state.
func (e *Engine) advance(state *ExecutionState, dst NodeID) []*ExecutionState {
	next := state.Clone()
	t, err := next.CurrentThread()
	if err != nil {
		return nil
	}
	t.Pc = e.CFG.Context(dst)
	return []*ExecutionState{next}
}

// branchTo is advance generalized to many destinations, used by control
// flow statements with more than one CFG successor (e.g. an if's two
// branches, or a concretization's many alias choices).
func (e *Engine) branchTo(state *ExecutionState, dsts []NodeID) []*ExecutionState {
	out := make([]*ExecutionState, 0, len(dsts))
	for _, d := range dsts {
		out = append(out, e.advance(state, d)...)
	}
	return out
}

func (e *Engine) logf(level int, format string, args ...interface{}) {
	if e.Log != nil {
		e.Log.logf(level, format, args...)
	}
}
