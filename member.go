package ooxcheck

// execMemberEntry discharges the method's requires clause as an assertion
// when this is not the root call of the search: the entry call's own
// precondition is the thing being verified, so it is assumed rather than
// asserted.
func (e *Engine) execMemberEntry(state *ExecutionState, node *Node, pc CFGContext) ([]*ExecutionState, *Invalidity, error) {
	t, err := state.CurrentThread()
	if err != nil {
		return nil, nil, err
	}

	// execP appends this step's own (tid, pc) to ProgramTrace before
	// calling execT, so a length of exactly 1 here means this entry is
	// the very first step of the whole search: the root call, whose
	// precondition is assumed rather than asserted. Anything beyond
	// that first step is a nested or forked call.
	if len(state.ProgramTrace) > 1 && e.Config.VerifyRequires {
		requires := requiresSpecOf(t.TopFrame().CurrentMember)
		if requires != nil {
			invalid, err := e.dischargeSpec(state, requires)
			if err != nil || invalid != nil {
				return nil, invalid, err
			}
		}
	}

	return e.advance(state, pc.Successors[0]), nil, nil
}

// execMemberExit discharges the method's ensures clause, then either
// despawns the thread (last frame) or pops the frame and performs the
// deferred lhs := retval copy-back for a call assignment.
func (e *Engine) execMemberExit(state *ExecutionState, node *Node, pc CFGContext) ([]*ExecutionState, *Invalidity, error) {
	t, err := state.CurrentThread()
	if err != nil {
		return nil, nil, err
	}

	if e.Config.VerifyEnsures {
		ensures := ensuresSpecOf(t.TopFrame().CurrentMember)
		if ensures != nil {
			invalid, err := e.dischargeSpec(state, ensures)
			if err != nil || invalid != nil {
				return nil, invalid, err
			}
		}
	}

	next := state.Clone()
	nt, err := next.CurrentThread()
	if err != nil {
		return nil, nil, err
	}

	if len(nt.CallStack) == 1 {
		next.Despawn(nt.Tid)
		return []*ExecutionState{next}, nil, nil
	}

	frame := nt.PopFrame()
	if frame.Target != nil {
		retval, _ := frame.Lookup("retval")
		if retval == nil {
			retval = NullLit{}
		}
		states, err := e.writeLhs(next, frame.Target, retval)
		if err != nil {
			return nil, nil, err
		}
		return states, nil, nil
	}

	return []*ExecutionState{next}, nil, nil
}
