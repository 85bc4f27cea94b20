package ooxcheck

// This file implements the exception unwinding state machine: on a
// throw or an uncaught runtime condition, the thread's call stack is
// unwound towards the nearest matching handler, discharging each
// popped frame's exceptional spec along the way.

// unwind drives state's current thread through the exception state
// machine until it either reaches a handler or the thread despawns.
func (e *Engine) unwind(state *ExecutionState) ([]*ExecutionState, *Invalidity, error) {
	t, err := state.CurrentThread()
	if err != nil {
		return nil, nil, err
	}

	var exceptional Expr
	if e.Config.VerifyExceptional {
		exceptional = exceptionalSpecOf(t.TopFrame().CurrentMember)
	}

	if handler, inTry := t.TopHandler(); inTry {
		if handler.PopsPending == 0 {
			next := state.Clone()
			nt, _ := next.CurrentThread()
			nt.Pc = e.CFG.Context(handler.Handler)
			return []*ExecutionState{next}, nil, nil
		}

		invalid, err := e.dischargeSpec(state, exceptional)
		if err != nil || invalid != nil {
			return nil, invalid, err
		}

		next := state.Clone()
		nt, _ := next.CurrentThread()
		nt.PopFrame()
		n := len(nt.HandlerStack)
		nt.HandlerStack[n-1].PopsPending--
		return e.unwind(next)
	}

	invalid, err := e.dischargeSpec(state, exceptional)
	if err != nil || invalid != nil {
		return nil, invalid, err
	}

	if len(t.CallStack) == 1 {
		// Unhandled exception at the outermost frame: the exception
		// propagates out cleanly and the thread despawns rather than the
		// run being flagged invalid (see DESIGN.md for the decision).
		next := state.Clone()
		nt, _ := next.CurrentThread()
		next.Despawn(nt.Tid)
		e.logf(1, "[exec] tid=%d unhandled exception at root, despawning", nt.Tid)
		return []*ExecutionState{next}, nil, nil
	}

	next := state.Clone()
	nt, _ := next.CurrentThread()
	nt.PopFrame()
	return e.unwind(next)
}

// dischargeSpec asserts expr (a method's requires, ensures or exceptional
// spec) against the current path condition, returning a non-nil
// Invalidity if it is violated. A nil expr is trivially satisfied; the
// callers check the matching Verify* flag before passing a spec in.
func (e *Engine) dischargeSpec(state *ExecutionState, expr Expr) (*Invalidity, error) {
	if expr == nil {
		return nil, nil
	}
	concrete, symbolic, err := evaluateAsBool(state, expr)
	if err != nil {
		return nil, err
	}
	if concrete != nil {
		if !*concrete {
			return e.invalidity(state, expr, CFGContext{}), nil
		}
		return nil, nil
	}
	entailed, err := checkEntailment(e.Solver, state.Constraints, symbolic, e.Config.ApplyLocalSolver)
	if err != nil {
		return nil, err
	}
	if !entailed {
		return e.invalidity(state, symbolic, CFGContext{}), nil
	}
	return nil, nil
}

// exceptionalSpecOf extracts the Exceptional contract expression from a
// MemberRef by a type switch over the member kinds.
func exceptionalSpecOf(m MemberRef) Expr {
	switch m := m.(type) {
	case MethodMember:
		return m.Exceptional
	case ConstructorMember:
		return m.Exceptional
	default:
		return nil
	}
}

func requiresSpecOf(m MemberRef) Expr {
	switch m := m.(type) {
	case MethodMember:
		return m.Requires
	case ConstructorMember:
		return m.Requires
	default:
		return nil
	}
}

func ensuresSpecOf(m MemberRef) Expr {
	switch m := m.(type) {
	case MethodMember:
		return m.Ensures
	case ConstructorMember:
		return m.Ensures
	default:
		return nil
	}
}
