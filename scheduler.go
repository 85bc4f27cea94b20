package ooxcheck

// execP is the process scheduler's main loop step. It
// computes the enabled set, applies POR, and branches execT over the
// selected threads, returning the next generation of states to continue
// exploring. A terminal=true result means this branch has nothing left
// to explore (all threads despawned, every sub-branch was pruned
// infeasible, or the depth budget ran out) — which, absent an explicit
// Invalid or Deadlock, contributes Valid to the aggregate verdict.
func (e *Engine) execP(state *ExecutionState) (successors []*ExecutionState, deadlock bool, terminal bool, invalid *Invalidity, err error) {
	if len(state.Threads) == 0 {
		return nil, false, true, nil, nil
	}

	enabled, err := e.enabledThreads(state)
	if err != nil {
		return nil, false, false, nil, err
	}

	reduced, selected, isDeadlock := e.por(state, enabled)
	if isDeadlock {
		e.logf(1, "[por] deadlock: no enabled thread, %d live threads", len(state.Threads))
		return nil, true, false, nil, nil
	}

	if e.Config.ApplyRandomInterleaving {
		e.shuffle(selected)
	}

	for _, tid := range selected {
		if state.RemainingK == 0 {
			continue // depth budget exhausted: terminate this branch before stepping
		}

		branch := reduced.Clone()
		branch.CurrentThreadId = &tid
		branch = branch.AppendTrace(tid, branch.Threads[tid].Pc)

		states, inv, err := e.execT(branch)
		if err != nil {
			return nil, false, false, nil, err
		}
		if inv != nil {
			return nil, false, false, inv, nil
		}

		for _, s := range states {
			s.RemainingK--
			successors = append(successors, s)
		}
	}

	if len(successors) == 0 {
		return nil, false, true, nil, nil
	}
	return successors, false, false, nil, nil
}

// shuffle permutes tids in place using the engine's configured source of
// randomness, applied when Configuration.ApplyRandomInterleaving is set.
// A nil Rand (the default) leaves the order untouched, which keeps runs
// deterministic unless the caller explicitly opts into shuffling.
func (e *Engine) shuffle(tids []ThreadId) {
	if e.Rand == nil {
		return
	}
	e.Rand.Shuffle(len(tids), func(i, j int) { tids[i], tids[j] = tids[j], tids[i] })
}
