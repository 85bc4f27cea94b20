package ooxcheck

// evaluate reduces a symbolic expression under the current thread's top
// stack frame and the state's heap. It never branches and never touches
// the alias map directly: callers that need a concrete reference
// identity call concretesOfType first.
func evaluate(state *ExecutionState, e Expr) (Value, error) {
	switch e := e.(type) {
	case *LitExpr:
		return e.Value, nil

	case *VarExpr:
		t, err := state.CurrentThread()
		if err != nil {
			return nil, err
		}
		frame := t.TopFrame()
		if v, ok := frame.Lookup(e.Name); ok {
			return v, nil
		}
		return NullLit{}, nil

	case *FieldExpr:
		target, err := evaluate(state, e.Target)
		if err != nil {
			return nil, err
		}
		ref, ok := concreteRefOf(target)
		if !ok {
			// Symbolic target: the caller should have concretised it
			// first. Surface the symbolic read as a symbolic value.
			return SymbolicVal{Expr: &FieldExpr{Target: valueToExpr(target), Field: e.Field}}, nil
		}
		if ref == NullRef {
			return nil, ErrExpectedReference
		}
		cell, ok := state.Heap.Get(ref)
		if !ok {
			return nil, ErrExpectedReference
		}
		obj, ok := cell.(ObjectVal)
		if !ok {
			return nil, ErrExpectedReference
		}
		return obj.Fields[e.Field], nil

	case *ElementExpr:
		target, err := evaluate(state, e.Target)
		if err != nil {
			return nil, err
		}
		index, err := evaluate(state, e.Index)
		if err != nil {
			return nil, err
		}
		ref, ok := concreteRefOf(target)
		if !ok {
			return SymbolicVal{Expr: &ElementExpr{Target: valueToExpr(target), Index: valueToExpr(index)}}, nil
		}
		cell, ok := state.Heap.Get(ref)
		if !ok {
			return nil, ErrExpectedReference
		}
		arr, ok := cell.(ArrayVal)
		if !ok {
			return nil, ErrExpectedReference
		}
		idx, ok := index.(IntLit)
		if !ok {
			return SymbolicVal{Expr: &ElementExpr{Target: valueToExpr(target), Index: valueToExpr(index)}}, nil
		}
		if idx.Value < 0 || int(idx.Value) >= len(arr.Elems) {
			return nil, ErrExpectedReference
		}
		return arr.Elems[idx.Value], nil

	case *SizeOfExpr:
		target, err := evaluate(state, e.Target)
		if err != nil {
			return nil, err
		}
		ref, ok := concreteRefOf(target)
		if !ok {
			return SymbolicVal{Expr: &SizeOfExpr{Target: valueToExpr(target)}}, nil
		}
		cell, ok := state.Heap.Get(ref)
		if !ok {
			return nil, ErrExpectedReference
		}
		arr, ok := cell.(ArrayVal)
		if !ok {
			return nil, ErrExpectedReference
		}
		return IntLit{Value: int64(len(arr.Elems))}, nil

	case *UnaryExpr:
		v, err := evaluate(state, e.Expr)
		if err != nil {
			return nil, err
		}
		return evalUnary(e.Op, v), nil

	case *BinaryExpr:
		lhs, err := evaluate(state, e.LHS)
		if err != nil {
			return nil, err
		}
		rhs, err := evaluate(state, e.RHS)
		if err != nil {
			return nil, err
		}
		return evalBinary(e.Op, lhs, rhs), nil

	case *ForallExpr, *ExistsExpr:
		// Quantifiers over a (possibly symbolic) array domain are pushed
		// whole into the symbolic tree; the solver discharges them.
		return SymbolicVal{Expr: e}, nil

	default:
		return nil, ErrExpectedReference
	}
}

// evaluateBranching is evaluate's branching counterpart: anywhere a
// FieldExpr, ElementExpr or SizeOfExpr target resolves to a symbolic
// reference, it concretizes through concretesOfType instead of folding
// to an opaque residual SymbolicVal, fanning out one ConcretizationBranch
// per feasible alias. Callers that need a concrete field/array identity
// (assert, assume, return, lhs targets, call arguments) use this instead
// of evaluate; everything else (Declare defaults, array sizes, lock/call
// targets, which already concretize themselves) keeps using evaluate.
func (e *Engine) evaluateBranching(state *ExecutionState, expr Expr) ([]ConcretizationBranch, error) {
	switch expr := expr.(type) {
	case *FieldExpr:
		targets, err := e.evaluateBranching(state, expr.Target)
		if err != nil {
			return nil, err
		}
		var out []ConcretizationBranch
		for _, t := range targets {
			refs, err := concretesOfType(t.State, e.Solver, e.Config, t.Value)
			if err != nil {
				return nil, err
			}
			for _, r := range refs {
				ref, ok := concreteRefOf(r.Value)
				if !ok || ref == NullRef {
					continue // infeasible: null dereference, or still unresolved
				}
				cell, ok := r.State.Heap.Get(ref)
				if !ok {
					return nil, ErrExpectedReference
				}
				obj, ok := cell.(ObjectVal)
				if !ok {
					return nil, ErrExpectedReference
				}
				out = append(out, ConcretizationBranch{State: r.State, Value: obj.Fields[expr.Field]})
			}
		}
		return out, nil

	case *ElementExpr:
		targets, err := e.evaluateBranching(state, expr.Target)
		if err != nil {
			return nil, err
		}
		var out []ConcretizationBranch
		for _, t := range targets {
			refs, err := concretesOfType(t.State, e.Solver, e.Config, t.Value)
			if err != nil {
				return nil, err
			}
			for _, r := range refs {
				ref, ok := concreteRefOf(r.Value)
				if !ok || ref == NullRef {
					continue
				}
				index, err := evaluate(r.State, expr.Index)
				if err != nil {
					return nil, err
				}
				idx, ok := index.(IntLit)
				if !ok {
					out = append(out, ConcretizationBranch{State: r.State, Value: SymbolicVal{Expr: &ElementExpr{Target: valueToExpr(r.Value), Index: valueToExpr(index)}}})
					continue
				}
				cell, ok := r.State.Heap.Get(ref)
				if !ok {
					return nil, ErrExpectedReference
				}
				arr, ok := cell.(ArrayVal)
				if !ok || idx.Value < 0 || int(idx.Value) >= len(arr.Elems) {
					continue // infeasible: out of bounds
				}
				out = append(out, ConcretizationBranch{State: r.State, Value: arr.Elems[idx.Value]})
			}
		}
		return out, nil

	case *SizeOfExpr:
		targets, err := e.evaluateBranching(state, expr.Target)
		if err != nil {
			return nil, err
		}
		var out []ConcretizationBranch
		for _, t := range targets {
			refs, err := concretesOfType(t.State, e.Solver, e.Config, t.Value)
			if err != nil {
				return nil, err
			}
			for _, r := range refs {
				ref, ok := concreteRefOf(r.Value)
				if !ok || ref == NullRef {
					continue
				}
				cell, ok := r.State.Heap.Get(ref)
				if !ok {
					return nil, ErrExpectedReference
				}
				arr, ok := cell.(ArrayVal)
				if !ok {
					return nil, ErrExpectedReference
				}
				out = append(out, ConcretizationBranch{State: r.State, Value: IntLit{Value: int64(len(arr.Elems))}})
			}
		}
		return out, nil

	case *UnaryExpr:
		operands, err := e.evaluateBranching(state, expr.Expr)
		if err != nil {
			return nil, err
		}
		out := make([]ConcretizationBranch, len(operands))
		for i, o := range operands {
			out[i] = ConcretizationBranch{State: o.State, Value: evalUnary(expr.Op, o.Value)}
		}
		return out, nil

	case *BinaryExpr:
		lhss, err := e.evaluateBranching(state, expr.LHS)
		if err != nil {
			return nil, err
		}
		var out []ConcretizationBranch
		for _, l := range lhss {
			rhss, err := e.evaluateBranching(l.State, expr.RHS)
			if err != nil {
				return nil, err
			}
			for _, r := range rhss {
				out = append(out, ConcretizationBranch{State: r.State, Value: evalBinary(expr.Op, l.Value, r.Value)})
			}
		}
		return out, nil

	default:
		v, err := evaluate(state, expr)
		if err != nil {
			return nil, err
		}
		return []ConcretizationBranch{{State: state, Value: v}}, nil
	}
}

// concreteRefOf extracts a concrete Reference from v, if v denotes one.
func concreteRefOf(v Value) (Reference, bool) {
	switch v := v.(type) {
	case RefVal:
		return v.Ref, true
	case NullLit:
		return NullRef, true
	default:
		return 0, false
	}
}

// valueToExpr lifts a Value back into an Expr leaf, used when building a
// symbolic tree from a partially-evaluated expression.
func valueToExpr(v Value) Expr {
	if sv, ok := v.(SymbolicVal); ok {
		return sv.Expr
	}
	return &LitExpr{Value: v}
}

func evalUnary(op UnOp, v Value) Value {
	switch op {
	case NOT:
		if b, ok := v.(BoolLit); ok {
			return BoolLit{Value: !b.Value}
		}
	case NEG:
		if i, ok := v.(IntLit); ok {
			return IntLit{Value: -i.Value}
		}
	}
	return SymbolicVal{Expr: &UnaryExpr{Op: op, Expr: valueToExpr(v)}}
}

func evalBinary(op BinOp, lhs, rhs Value) Value {
	if folded, ok := foldBinary(op, litValueOf(lhs), litValueOf(rhs)); ok {
		return folded
	}
	return SymbolicVal{Expr: NewBinaryExpr(op, valueToExpr(lhs), valueToExpr(rhs))}
}

// litValueOf returns v unchanged if it is already a concrete literal, or
// nil otherwise, so foldBinary's type assertions fail closed on anything
// symbolic (SymbolicVal, RefVal, ObjectVal, ArrayVal).
func litValueOf(v Value) Value {
	switch v.(type) {
	case IntLit, BoolLit, NullLit:
		return v
	default:
		return nil
	}
}

// evaluateAsBool evaluates e and short-circuits to a concrete bool when
// possible; otherwise it returns the symbolic boolean
// expression for the caller (Assume/Assert) to fold into the path
// condition or discharge to the solver.
func evaluateAsBool(state *ExecutionState, e Expr) (concrete *bool, symbolic Expr, err error) {
	v, err := evaluate(state, e)
	if err != nil {
		return nil, nil, err
	}
	return classifyBool(v)
}

// classifyBool splits an already-evaluated Value into either a concrete
// bool or the symbolic expression standing in for it, the classification
// evaluateAsBool applies after calling evaluate. Factored out so callers
// that branch before classifying (evaluateBranching's callers) don't
// have to re-evaluate.
func classifyBool(v Value) (concrete *bool, symbolic Expr, err error) {
	switch v := v.(type) {
	case BoolLit:
		b := v.Value
		return &b, nil, nil
	case SymbolicVal:
		return nil, v.Expr, nil
	default:
		return nil, valueToExpr(v), nil
	}
}
