package ooxcheck

// ConcretizationBranch is one outcome of concretesOfType: a state refined
// with one particular alias choice, and the concrete Value that choice
// resolves to.
type ConcretizationBranch struct {
	State *ExecutionState
	Value Value
}

// concretesOfType enumerates the concretization branches for v. If v
// already denotes a concrete reference (RefVal or NullLit), it is
// returned unchanged as the sole branch. If v is a
// SymbolicRefVal, each known alias becomes a branch (re-using the alias
// map), optionally extended with a null branch (symbolicNulls) and a
// fresh-allocation branch (symbolicAliases). Infeasible branches (UNSAT
// path condition) are dropped, so the list may legitimately be empty.
// It returns ErrNoAliases when v has no recorded alias, no null
// candidate is added and symbolicAliases is disabled.
func concretesOfType(state *ExecutionState, solver Solver, cfg *Configuration, v Value) ([]ConcretizationBranch, error) {
	sym, ok := asSymbolicRef(v)
	if !ok {
		return []ConcretizationBranch{{State: state, Value: v}}, nil
	}

	known, _ := state.Aliases.Aliases(sym.Name)
	candidates := append([]Reference{}, known...)

	if cfg.SymbolicNulls && !containsRef(candidates, NullRef) {
		candidates = append(candidates, NullRef)
	}

	if len(candidates) == 0 && !cfg.SymbolicAliases {
		// No recorded aliases and lazy alias expansion is disabled: this
		// symbolic reference has no candidate it could ever concretize to.
		return nil, ErrNoAliases
	}

	var freshAllocs []func(*ExecutionState) (*ExecutionState, Reference)
	if cfg.SymbolicAliases {
		if sym.IsArray {
			for size := 0; size <= cfg.SymbolicArraySize; size++ {
				size := size
				freshAllocs = append(freshAllocs, func(s *ExecutionState) (*ExecutionState, Reference) {
					elems := make([]Value, size)
					for i := range elems {
						elems[i] = defaultValueForType(sym.ElemType)
					}
					next := s.Clone()
					heap, ref := next.Heap.Alloc(ArrayVal{ElemType: sym.ElemType, Elems: elems})
					next.Heap = heap
					return next, ref
				})
			}
		} else {
			freshAllocs = append(freshAllocs, func(s *ExecutionState) (*ExecutionState, Reference) {
				next := s.Clone()
				heap, ref := next.Heap.Alloc(ObjectVal{Class: sym.ElemType, Fields: map[string]Value{}})
				next.Heap = heap
				return next, ref
			})
		}
	}

	var branches []ConcretizationBranch
	for _, ref := range candidates {
		branch, ok, err := concretizeTo(state, solver, cfg, sym.Name, ref)
		if err != nil {
			return nil, err
		}
		if ok {
			branches = append(branches, branch)
		}
	}
	for _, alloc := range freshAllocs {
		next, ref := alloc(state)
		branch, ok, err := concretizeTo(next, solver, cfg, sym.Name, ref)
		if err != nil {
			return nil, err
		}
		if ok {
			branches = append(branches, branch)
		}
	}
	return branches, nil
}

// concretizeTo fixes sym.Name to ref in a fresh branch off state: it
// records the alias, conjoins the equality, and checks feasibility under
// the resulting path condition.
func concretizeTo(state *ExecutionState, solver Solver, cfg *Configuration, name string, ref Reference) (ConcretizationBranch, bool, error) {
	eq := NewBinaryExpr(EQ, &VarExpr{Name: name}, &LitExpr{Value: refOrNull(ref)})
	next := state.WithConstraint(eq)
	next.Aliases = next.Aliases.WithAlias(name, ref)

	feasible, err := checkFeasible(solver, next.Constraints, cfg.ApplyLocalSolver)
	if err != nil {
		return ConcretizationBranch{}, false, err
	}
	if !feasible {
		return ConcretizationBranch{}, false, nil
	}
	return ConcretizationBranch{State: next, Value: refOrNull(ref)}, true, nil
}

// asSymbolicRef recognizes v as a symbolic reference that concretesOfType
// can branch over. SymbolicRefVal is the canonical shape; a bare
// SymbolicVal wrapping an unbound *VarExpr is equivalent to a
// SymbolicRefVal named after that variable, since a method parameter is
// seeded as the former (its type isn't known until it's used as a
// reference) but still needs to concretize like the latter the moment it
// is dereferenced, locked, or called on.
func asSymbolicRef(v Value) (SymbolicRefVal, bool) {
	switch v := v.(type) {
	case SymbolicRefVal:
		return v, true
	case SymbolicVal:
		if ve, ok := v.Expr.(*VarExpr); ok {
			return SymbolicRefVal{Name: ve.Name}, true
		}
	}
	return SymbolicRefVal{}, false
}

func refOrNull(ref Reference) Value {
	if ref == NullRef {
		return NullLit{}
	}
	return RefVal{Ref: ref}
}

func containsRef(refs []Reference, r Reference) bool {
	for _, x := range refs {
		if x == r {
			return true
		}
	}
	return false
}
