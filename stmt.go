package ooxcheck

// This file implements the per-opcode transition functions: each takes
// the current state and returns its successor states (often a
// singleton), one function per statement kind.

// execStatNode dispatches node.Stat.
func (e *Engine) execStatNode(state *ExecutionState, node *Node, pc CFGContext) ([]*ExecutionState, *Invalidity, error) {
	switch stmt := node.Stat.(type) {
	case DeclareStmt:
		return e.execDeclare(state, stmt, pc)
	case AssignStmt:
		return e.execAssign(state, stmt, pc)
	case AssumeStmt:
		return e.execAssume(state, stmt, pc)
	case AssertStmt:
		return e.execAssert(state, stmt, pc)
	case ReturnStmt:
		return e.execReturn(state, stmt, pc)
	case LockStmt:
		return e.execLock(state, stmt, pc)
	case UnlockStmt:
		return e.execUnlock(state, stmt, pc)
	case ForkStmt:
		return e.execFork(state, stmt, pc)
	case ThrowStmt:
		return e.execThrow(state, stmt, pc)
	case SkipStmt:
		return e.advance(state, pc.Successors[0]), nil, nil
	default:
		return nil, nil, ErrExpectedReference
	}
}

// execDeclare writes ty's default value into the top frame.
func (e *Engine) execDeclare(state *ExecutionState, stmt DeclareStmt, pc CFGContext) ([]*ExecutionState, *Invalidity, error) {
	next := state.Clone()
	t, err := next.CurrentThread()
	if err != nil {
		return nil, nil, err
	}
	t.TopFrame().Bind(stmt.Var, defaultValueForType(stmt.Type))
	t.Pc = e.CFG.Context(pc.Successors[0])
	return []*ExecutionState{next}, nil, nil
}

// execAssign evaluates rhs and writes it via lhs.
// RhsCall is a no-op here: the call pushed its own frame with
// target = Some(lhs) and the copy-back happens when that frame pops
// (see execMemberExit).
func (e *Engine) execAssign(state *ExecutionState, stmt AssignStmt, pc CFGContext) ([]*ExecutionState, *Invalidity, error) {
	if _, ok := stmt.Rhs.(RhsCall); ok {
		return e.advance(state, pc.Successors[0]), nil, nil
	}

	branches, err := e.evalRhs(state, stmt.Rhs)
	if err != nil {
		return nil, nil, err
	}

	var out []*ExecutionState
	for _, b := range branches {
		nexts, err := e.writeLhs(b.State, stmt.Lhs, b.Value)
		if err != nil {
			return nil, nil, err
		}
		for _, next := range nexts {
			t, err := next.CurrentThread()
			if err != nil {
				return nil, nil, err
			}
			t.Pc = e.CFG.Context(pc.Successors[0])
			out = append(out, next)
		}
	}
	return out, nil, nil
}

func (e *Engine) evalRhs(state *ExecutionState, rhs Rhs) ([]ConcretizationBranch, error) {
	next := state.Clone()
	switch rhs := rhs.(type) {
	case RhsExpr:
		return e.evaluateBranching(next, rhs.Expr)
	case RhsNewObject:
		fields := map[string]Value{}
		heap, ref := next.Heap.Alloc(ObjectVal{Class: rhs.Class, Fields: fields})
		next.Heap = heap
		return []ConcretizationBranch{{State: next, Value: RefVal{Ref: ref}}}, nil
	case RhsNewArray:
		sizeVal, err := evaluate(next, rhs.Size)
		if err != nil {
			return nil, err
		}
		size, ok := sizeVal.(IntLit)
		if !ok {
			return nil, ErrExpectedReference
		}
		elems := make([]Value, size.Value)
		for i := range elems {
			elems[i] = defaultValueForType(rhs.ElemType)
		}
		heap, ref := next.Heap.Alloc(ArrayVal{ElemType: rhs.ElemType, Elems: elems})
		next.Heap = heap
		return []ConcretizationBranch{{State: next, Value: RefVal{Ref: ref}}}, nil
	default:
		return nil, ErrExpectedReference
	}
}

// writeLhs writes val through lhs, branching over concretesOfType when
// lhs names a field or element on a still-symbolic target: each feasible
// alias becomes its own successor state with the write applied to that
// alias's object/array, rather than fatally erroring the whole search
// the first time a lock/call-free statement happens to target an
// unconcretized reference.
func (e *Engine) writeLhs(state *ExecutionState, lhs Lhs, val Value) ([]*ExecutionState, error) {
	switch lhs := lhs.(type) {
	case VarLhs:
		next := state.Clone()
		t, err := next.CurrentThread()
		if err != nil {
			return nil, err
		}
		t.TopFrame().Bind(lhs.Name, val)
		return []*ExecutionState{next}, nil

	case FieldLhs:
		targets, err := e.evaluateBranching(state, lhs.Target)
		if err != nil {
			return nil, err
		}
		var out []*ExecutionState
		for _, t := range targets {
			refs, err := concretesOfType(t.State, e.Solver, e.Config, t.Value)
			if err != nil {
				return nil, err
			}
			for _, r := range refs {
				ref, ok := concreteRefOf(r.Value)
				if !ok || ref == NullRef {
					continue // infeasible: writing through a null reference
				}
				cell, ok := r.State.Heap.Get(ref)
				if !ok {
					return nil, ErrExpectedReference
				}
				obj, ok := cell.(ObjectVal)
				if !ok {
					return nil, ErrExpectedReference
				}
				next := r.State.Clone()
				next.Heap = next.Heap.Set(ref, obj.WithField(lhs.Field, val))
				out = append(out, next)
			}
		}
		return out, nil

	case ElementLhs:
		targets, err := e.evaluateBranching(state, lhs.Target)
		if err != nil {
			return nil, err
		}
		var out []*ExecutionState
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
				idxVal, err := evaluate(r.State, lhs.Index)
				if err != nil {
					return nil, err
				}
				idx, ok := idxVal.(IntLit)
				if !ok {
					return nil, ErrExpectedConcreteReference
				}
				cell, ok := r.State.Heap.Get(ref)
				if !ok {
					return nil, ErrExpectedReference
				}
				arr, ok := cell.(ArrayVal)
				if !ok || idx.Value < 0 || int(idx.Value) >= len(arr.Elems) {
					continue // infeasible: out of bounds
				}
				next := r.State.Clone()
				next.Heap = next.Heap.Set(ref, arr.WithElem(int(idx.Value), val))
				out = append(out, next)
			}
		}
		return out, nil

	default:
		return nil, ErrExpectedReference
	}
}

// execAssume evaluates e; a concrete true continues unchanged, a
// concrete false prunes the branch as infeasible, a residual symbolic
// condition φ appends φ to the path condition.
func (e *Engine) execAssume(state *ExecutionState, stmt AssumeStmt, pc CFGContext) ([]*ExecutionState, *Invalidity, error) {
	branches, err := e.evaluateBranching(state, stmt.Expr)
	if err != nil {
		return nil, nil, err
	}
	e.logf(2, "[assume] %s", stmt.Expr)

	var out []*ExecutionState
	for _, b := range branches {
		concrete, symbolic, err := classifyBool(b.Value)
		if err != nil {
			return nil, nil, err
		}

		if concrete != nil {
			if !*concrete {
				continue // infeasible: pruned silently
			}
			out = append(out, e.advance(b.State, pc.Successors[0])...)
			continue
		}

		next := b.State.WithConstraint(symbolic)
		feasible, err := checkFeasible(e.Solver, next.Constraints, e.Config.ApplyLocalSolver)
		if err != nil {
			return nil, nil, err
		}
		if !feasible {
			continue
		}
		t, err := next.CurrentThread()
		if err != nil {
			return nil, nil, err
		}
		t.Pc = e.CFG.Context(pc.Successors[0])
		out = append(out, next)
	}
	return out, nil, nil
}

// execAssert discharges ¬(constraints ⇒ e) to the solver. UNSAT
// continues; SAT (or UNKNOWN, treated as SAT) reports Invalid and
// short-circuits the whole search.
func (e *Engine) execAssert(state *ExecutionState, stmt AssertStmt, pc CFGContext) ([]*ExecutionState, *Invalidity, error) {
	branches, err := e.evaluateBranching(state, stmt.Expr)
	if err != nil {
		return nil, nil, err
	}
	e.logf(2, "[assert] %s", stmt.Expr)

	var out []*ExecutionState
	for _, b := range branches {
		concrete, symbolic, err := classifyBool(b.Value)
		if err != nil {
			return nil, nil, err
		}

		if concrete != nil {
			if !*concrete {
				return nil, e.invalidity(b.State, stmt.Expr, pc), nil
			}
			out = append(out, e.advance(b.State, pc.Successors[0])...)
			continue
		}

		entailed, err := checkEntailment(e.Solver, b.State.Constraints, symbolic, e.Config.ApplyLocalSolver)
		if err != nil {
			return nil, nil, err
		}
		if !entailed {
			return nil, e.invalidity(b.State, symbolic, pc), nil
		}
		out = append(out, e.advance(b.State, pc.Successors[0])...)
	}
	return out, nil, nil
}

func (e *Engine) invalidity(state *ExecutionState, formula Expr, pc CFGContext) *Invalidity {
	return &Invalidity{Formula: formula, Location: pc, Trace: append([]TraceEntry{}, state.ProgramTrace...)}
}

// execReturn evaluates e (if any) into the reserved retval slot. The
// frame pop happens at the subsequent MemberExit node.
func (e *Engine) execReturn(state *ExecutionState, stmt ReturnStmt, pc CFGContext) ([]*ExecutionState, *Invalidity, error) {
	if stmt.Expr == nil {
		next := state.Clone()
		t, err := next.CurrentThread()
		if err != nil {
			return nil, nil, err
		}
		t.Pc = e.CFG.Context(pc.Successors[0])
		return []*ExecutionState{next}, nil, nil
	}

	branches, err := e.evaluateBranching(state, stmt.Expr)
	if err != nil {
		return nil, nil, err
	}

	out := make([]*ExecutionState, 0, len(branches))
	for _, b := range branches {
		next := b.State.Clone()
		t, err := next.CurrentThread()
		if err != nil {
			return nil, nil, err
		}
		t.TopFrame().Bind("retval", b.Value)
		t.Pc = e.CFG.Context(pc.Successors[0])
		out = append(out, next)
	}
	return out, nil, nil
}

// execLock reads v: null is infeasible, symbolic is concretised then
// retried, a concrete reference already held by another thread leaves
// the thread disabled (the scheduler, not execLock, is responsible for
// not selecting it — isEnabled checks this before execT is ever called).
func (e *Engine) execLock(state *ExecutionState, stmt LockStmt, pc CFGContext) ([]*ExecutionState, *Invalidity, error) {
	v, err := evaluate(state, stmt.Expr)
	if err != nil {
		return nil, nil, err
	}
	branches, err := concretesOfType(state, e.Solver, e.Config, v)
	if err != nil {
		return nil, nil, err
	}

	var out []*ExecutionState
	for _, b := range branches {
		ref, ok := concreteRefOf(b.Value)
		if !ok || ref == NullRef {
			continue // infeasible: locking null
		}
		t, err := b.State.CurrentThread()
		if err != nil {
			return nil, nil, err
		}
		if holder, held := b.State.Locks.HolderOf(ref); held && holder != t.Tid {
			continue // disabled: held by another thread
		}
		next := b.State.Clone()
		nt, _ := next.CurrentThread()
		next.Locks = next.Locks.Lock(ref, nt.Tid)
		nt.Pc = e.CFG.Context(pc.Successors[0])
		out = append(out, next)
	}
	return out, nil, nil
}

// execUnlock removes the mapping for v's reference. A non-reference
// value is a fatal engine error.
func (e *Engine) execUnlock(state *ExecutionState, stmt UnlockStmt, pc CFGContext) ([]*ExecutionState, *Invalidity, error) {
	v, err := evaluate(state, stmt.Expr)
	if err != nil {
		return nil, nil, err
	}
	ref, ok := concreteRefOf(v)
	if !ok {
		return nil, nil, ErrExpectedConcreteReference
	}
	next := state.Clone()
	if ref != NullRef {
		next.Locks = next.Locks.Unlock(ref)
	}
	t, err := next.CurrentThread()
	if err != nil {
		return nil, nil, err
	}
	t.Pc = e.CFG.Context(pc.Successors[0])
	return []*ExecutionState{next}, nil, nil
}

// execFork spawns a child thread running stmt.Method.
func (e *Engine) execFork(state *ExecutionState, stmt ForkStmt, pc CFGContext) ([]*ExecutionState, *Invalidity, error) {
	syms := e.Table.Lookup(stmt.Method)
	if len(syms) == 0 {
		return nil, nil, unresolvedError(stmt.Method)
	}
	member, ok := syms[0].Member.(MethodMember)
	if !ok {
		return nil, nil, expectedMethodMemberError(stmt.Method)
	}

	bindings, err := e.bindArgs(state, NewStackFrame(member.Entry, nil, member), member.Params, stmt.Args)
	if err != nil {
		return nil, nil, err
	}

	var out []*ExecutionState
	for _, bind := range bindings {
		next := bind.State.Clone()
		t, err := next.CurrentThread()
		if err != nil {
			return nil, nil, err
		}

		childTid := freshThreadId(next)
		child := &Thread{Tid: childTid, Parent: t.Tid, Pc: e.CFG.Context(member.Entry)}
		child.PushFrame(bind.Frame)
		next.Threads[childTid] = child
		next.NumberOfForks++

		e.logf(1, "[fork] tid=%d -> tid=%d %s", t.Tid, childTid, stmt.Method)

		t.Pc = e.CFG.Context(pc.Successors[0])
		out = append(out, next)
	}
	return out, nil, nil
}

func freshThreadId(state *ExecutionState) ThreadId {
	var max ThreadId
	for tid := range state.Threads {
		if tid > max {
			max = tid
		}
	}
	return max + 1
}

// ArgBinding pairs a branch's state with frame after every parameter has
// been bound into it along that branch.
type ArgBinding struct {
	State *ExecutionState
	Frame *StackFrame
}

// bindArgs evaluates args in order, branching via evaluateBranching
// whenever an argument expression reads through a still-symbolic
// reference (e.g. passing a field of a symbolic receiver as a call
// argument). Each parameter clones the frame before binding so that
// sibling branches never share a Declarations map.
func (e *Engine) bindArgs(state *ExecutionState, frame *StackFrame, params []string, args []Expr) ([]ArgBinding, error) {
	work := []ArgBinding{{State: state, Frame: frame}}
	for i, p := range params {
		if i >= len(args) {
			break
		}
		var next []ArgBinding
		for _, w := range work {
			argBranches, err := e.evaluateBranching(w.State, args[i])
			if err != nil {
				return nil, err
			}
			for _, ab := range argBranches {
				f := w.Frame.Clone()
				f.Bind(p, ab.Value)
				next = append(next, ArgBinding{State: ab.State, Frame: f})
			}
		}
		work = next
	}
	return work, nil
}

// execThrow enters the exception state machine on the current frame.
func (e *Engine) execThrow(state *ExecutionState, stmt ThrowStmt, pc CFGContext) ([]*ExecutionState, *Invalidity, error) {
	v, err := evaluate(state, stmt.Expr)
	if err != nil {
		return nil, nil, err
	}
	next := state.Clone()
	t, err := next.CurrentThread()
	if err != nil {
		return nil, nil, err
	}
	t.TopFrame().Bind("__exception__", v)
	return e.unwind(next)
}

// execTryEntry pushes (node.Handler, 0) onto the handler stack.
func (e *Engine) execTryEntry(state *ExecutionState, node *Node, pc CFGContext) ([]*ExecutionState, *Invalidity, error) {
	next := state.Clone()
	t, err := next.CurrentThread()
	if err != nil {
		return nil, nil, err
	}
	t.PushHandler(node.Handler)
	t.Pc = e.CFG.Context(pc.Successors[0])
	return []*ExecutionState{next}, nil, nil
}

// execPopHandler implements TryExit and CatchEntry, which both simply pop
// the top handler entry.
func (e *Engine) execPopHandler(state *ExecutionState, pc CFGContext) ([]*ExecutionState, *Invalidity, error) {
	next := state.Clone()
	t, err := next.CurrentThread()
	if err != nil {
		return nil, nil, err
	}
	t.PopHandler()
	t.Pc = e.CFG.Context(pc.Successors[0])
	return []*ExecutionState{next}, nil, nil
}

// execExceptional treats an ExceptionalNode as an implicit throw of a
// runtime-condition marker value, reusing the exception state machine.
func (e *Engine) execExceptional(state *ExecutionState, node *Node, pc CFGContext) ([]*ExecutionState, *Invalidity, error) {
	next := state.Clone()
	t, err := next.CurrentThread()
	if err != nil {
		return nil, nil, err
	}
	t.TopFrame().Bind("__exception__", BoolLit{Value: true})
	return e.unwind(next)
}

// execCall resolves node.Invocation, concretises its receiver/args, and
// pushes a callee frame whose returnPoint is the CFG successor after the
// call site.
func (e *Engine) execCall(state *ExecutionState, node *Node, pc CFGContext) ([]*ExecutionState, *Invalidity, error) {
	inv := node.Invocation

	if inv.IsConstructor || inv.IsStatic {
		return e.pushCallFrames(state, []*ExecutionState{state.Clone()}, node, pc, NullRef)
	}

	recv, err := evaluate(state, inv.Target)
	if err != nil {
		return nil, nil, err
	}
	branches, err := concretesOfType(state, e.Solver, e.Config, recv)
	if err != nil {
		return nil, nil, err
	}

	var out []*ExecutionState
	for _, b := range branches {
		ref, ok := concreteRefOf(b.Value)
		if !ok {
			continue
		}
		if ref == NullRef {
			continue // infeasible: null dereference on call
		}
		states, invalid, err := e.pushCallFrames(b.State, []*ExecutionState{b.State}, node, pc, ref)
		if err != nil || invalid != nil {
			return states, invalid, err
		}
		out = append(out, states...)
	}
	return out, nil, nil
}

func (e *Engine) pushCallFrames(ctx *ExecutionState, bases []*ExecutionState, node *Node, pc CFGContext, receiver Reference) ([]*ExecutionState, *Invalidity, error) {
	inv := node.Invocation

	var member MemberRef
	if inv.IsConstructor {
		syms := e.Table.Lookup(inv.ClassName + ".<init>")
		if len(syms) == 0 {
			return nil, nil, unresolvedError(inv.qualifiedName())
		}
		member = syms[0].Member
	} else {
		syms := e.Table.Lookup(inv.qualifiedName())
		if len(syms) == 0 {
			return nil, nil, unresolvedError(inv.qualifiedName())
		}
		member = syms[0].Member
	}

	var entry NodeID
	var params []string
	switch m := member.(type) {
	case MethodMember:
		entry, params = m.Entry, m.Params
	case ConstructorMember:
		entry, params = m.Entry, m.Params
	default:
		return nil, nil, expectedMethodMemberError(inv.qualifiedName())
	}

	var out []*ExecutionState
	for _, base := range bases {
		frame := NewStackFrame(pc.Successors[0], node.Target, member)
		baseState := base
		if inv.IsConstructor {
			next := base.Clone()
			heap, ref := next.Heap.Alloc(ObjectVal{Class: inv.ClassName, Fields: map[string]Value{}})
			next.Heap = heap
			frame.Bind("this", RefVal{Ref: ref})
			baseState = next
		} else if !inv.IsStatic {
			frame.Bind("this", RefVal{Ref: receiver})
		}

		bindings, err := e.bindArgs(baseState, frame, params, inv.Args)
		if err != nil {
			return nil, nil, err
		}

		for _, bind := range bindings {
			next := bind.State.Clone()
			t, err := next.CurrentThread()
			if err != nil {
				return nil, nil, err
			}
			if _, inTry := t.TopHandler(); inTry {
				t.incrementLastHandlerPops()
			}
			t.PushFrame(bind.Frame)
			t.Pc = e.CFG.Context(entry)

			out = append(out, next)
		}
	}
	return out, nil, nil
}
