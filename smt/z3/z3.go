// Package z3 binds an embedded Z3 solver as an ooxcheck.Solver,
// translating OOX's typed expression tree (ooxcheck.Expr) into Z3
// terms.
package z3

import (
	"fmt"
	"strings"
	"time"
	"unsafe"

	"ooxcheck"
)

/*
#cgo LDFLAGS: -lz3
#include <z3.h>
#include <stdlib.h>
*/
import "C"

// Ensure Solver implements the core's oracle interface.
var _ ooxcheck.Solver = (*Solver)(nil)

// Solver is an ooxcheck.Solver backed by an embedded Z3 context.
type Solver struct {
	ctx   *Context
	stats Stats
}

// NewSolver returns a new instance of Solver.
func NewSolver() *Solver {
	return &Solver{ctx: NewContext()}
}

// Close deletes the underlying Z3 context.
func (s *Solver) Close() error {
	return s.ctx.Close()
}

// Stats returns statistics for the solver.
func (s *Solver) Stats() Stats {
	return s.stats
}

// Check implements ooxcheck.Solver: it asserts constraints into a fresh
// Z3 solver instance and reports SAT/UNSAT/UNKNOWN.
func (s *Solver) Check(constraints []ooxcheck.Expr) (ooxcheck.SolverResult, error) {
	t := time.Now()
	defer func() {
		s.stats.CheckN++
		s.stats.CheckTime += time.Since(t)
	}()

	solver := C.Z3_mk_solver(s.ctx.raw)
	if err := s.ctx.err("Z3_mk_solver"); err != nil {
		return ooxcheck.UNKNOWN, err
	}
	C.Z3_solver_inc_ref(s.ctx.raw, solver)
	defer C.Z3_solver_dec_ref(s.ctx.raw, solver)

	for _, e := range constraints {
		ast, err := s.ctx.toAST(e)
		if err != nil {
			return ooxcheck.UNKNOWN, err
		}
		C.Z3_solver_assert(s.ctx.raw, solver, ast)
		if err := s.ctx.err("Z3_solver_assert"); err != nil {
			return ooxcheck.UNKNOWN, err
		}
	}

	ret := C.Z3_solver_check(s.ctx.raw, solver)
	if err := s.ctx.err("Z3_solver_check"); err != nil {
		return ooxcheck.UNKNOWN, err
	}
	switch ret {
	case C.Z3_L_FALSE:
		return ooxcheck.UNSAT, nil
	case C.Z3_L_TRUE:
		return ooxcheck.SAT, nil
	default:
		reason := C.GoString(C.Z3_solver_get_reason_unknown(s.ctx.raw, solver))
		switch {
		case strings.Contains(reason, "timeout"):
			return ooxcheck.UNKNOWN, ooxcheck.ErrSolverTimeout
		case strings.Contains(reason, "canceled"):
			return ooxcheck.UNKNOWN, ooxcheck.ErrSolverCanceled
		default:
			return ooxcheck.UNKNOWN, nil
		}
	}
}

// Context represents a Z3 context object used for constructing ASTs.
type Context struct {
	raw C.Z3_context

	// consts caches one Z3 constant per distinct symbolic leaf name, so
	// the same OOX variable maps to the same Z3 symbol across calls.
	consts map[string]C.Z3_ast
}

// NewContext returns a new instance of Context.
func NewContext() *Context {
	config := C.Z3_mk_config()
	defer C.Z3_del_config(config)

	raw := C.Z3_mk_context(config)
	C.Z3_set_error_handler(raw, nil)
	return &Context{raw: raw, consts: make(map[string]C.Z3_ast)}
}

// Close deletes the underlying Z3 context.
func (ctx *Context) Close() error {
	C.Z3_del_context(ctx.raw)
	return ctx.err("Z3_del_context")
}

func (ctx *Context) err(op string) error {
	if code := C.Z3_get_error_code(ctx.raw); code != C.Z3_OK {
		return &Error{Code: int(code), Op: op, Message: C.GoString(C.Z3_get_error_msg(ctx.raw, code))}
	}
	return nil
}

// toAST translates an ooxcheck.Expr into a Z3 AST. Reference-typed
// literals/variables are modelled as Z3 integers, since ooxcheck.Reference
// already is one; FieldExpr/ElementExpr/SizeOfExpr/quantifiers over the
// heap are approximated as opaque uninterpreted integer constants keyed
// by their String() form, since the heap itself is resolved by the
// engine's own concretization before reaching the solver (see DESIGN.md).
func (ctx *Context) toAST(e ooxcheck.Expr) (C.Z3_ast, error) {
	switch e := e.(type) {
	case *ooxcheck.LitExpr:
		return ctx.toLitAST(e)
	case *ooxcheck.VarExpr:
		return ctx.intConst(e.Name), nil
	case *ooxcheck.BinaryExpr:
		return ctx.toBinaryAST(e)
	case *ooxcheck.UnaryExpr:
		return ctx.toUnaryAST(e)
	default:
		return ctx.intConst(e.String()), nil
	}
}

func (ctx *Context) toLitAST(e *ooxcheck.LitExpr) (C.Z3_ast, error) {
	switch v := e.Value.(type) {
	case ooxcheck.BoolLit:
		if v.Value {
			return C.Z3_mk_true(ctx.raw), ctx.err("Z3_mk_true")
		}
		return C.Z3_mk_false(ctx.raw), ctx.err("Z3_mk_false")
	case ooxcheck.IntLit:
		return ctx.intSort(v.Value), nil
	case ooxcheck.NullLit:
		return ctx.intSort(0), nil
	case ooxcheck.RefVal:
		return ctx.intSort(int64(v.Ref)), nil
	default:
		return nil, fmt.Errorf("z3: unsupported literal type %T", v)
	}
}

func (ctx *Context) intSort(v int64) C.Z3_ast {
	sort := C.Z3_mk_int_sort(ctx.raw)
	return C.Z3_mk_int64(ctx.raw, C.int64_t(v), sort)
}

// intConst returns the cached Z3 int constant for name, creating it on
// first use.
func (ctx *Context) intConst(name string) C.Z3_ast {
	if v, ok := ctx.consts[name]; ok {
		return v
	}
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	sym := C.Z3_mk_string_symbol(ctx.raw, cname)
	v := C.Z3_mk_const(ctx.raw, sym, C.Z3_mk_int_sort(ctx.raw))
	ctx.consts[name] = v
	return v
}

func (ctx *Context) toUnaryAST(e *ooxcheck.UnaryExpr) (C.Z3_ast, error) {
	src, err := ctx.toAST(e.Expr)
	if err != nil {
		return nil, err
	}
	switch e.Op {
	case ooxcheck.NOT:
		return C.Z3_mk_not(ctx.raw, src), ctx.err("Z3_mk_not")
	case ooxcheck.NEG:
		return C.Z3_mk_unary_minus(ctx.raw, src), ctx.err("Z3_mk_unary_minus")
	default:
		return nil, fmt.Errorf("z3: unsupported unary operator %s", e.Op)
	}
}

func (ctx *Context) toBinaryAST(e *ooxcheck.BinaryExpr) (C.Z3_ast, error) {
	lhs, err := ctx.toAST(e.LHS)
	if err != nil {
		return nil, err
	}
	rhs, err := ctx.toAST(e.RHS)
	if err != nil {
		return nil, err
	}

	switch e.Op {
	case ooxcheck.ADD:
		args := []C.Z3_ast{lhs, rhs}
		return C.Z3_mk_add(ctx.raw, 2, &args[0]), ctx.err("Z3_mk_add")
	case ooxcheck.SUB:
		args := []C.Z3_ast{lhs, rhs}
		return C.Z3_mk_sub(ctx.raw, 2, &args[0]), ctx.err("Z3_mk_sub")
	case ooxcheck.MUL:
		args := []C.Z3_ast{lhs, rhs}
		return C.Z3_mk_mul(ctx.raw, 2, &args[0]), ctx.err("Z3_mk_mul")
	case ooxcheck.DIV:
		return C.Z3_mk_div(ctx.raw, lhs, rhs), ctx.err("Z3_mk_div")
	case ooxcheck.MOD:
		return C.Z3_mk_mod(ctx.raw, lhs, rhs), ctx.err("Z3_mk_mod")
	case ooxcheck.EQ:
		return C.Z3_mk_eq(ctx.raw, lhs, rhs), ctx.err("Z3_mk_eq")
	case ooxcheck.NEQ:
		eq := C.Z3_mk_eq(ctx.raw, lhs, rhs)
		return C.Z3_mk_not(ctx.raw, eq), ctx.err("Z3_mk_not")
	case ooxcheck.LT:
		return C.Z3_mk_lt(ctx.raw, lhs, rhs), ctx.err("Z3_mk_lt")
	case ooxcheck.LEQ:
		return C.Z3_mk_le(ctx.raw, lhs, rhs), ctx.err("Z3_mk_le")
	case ooxcheck.GT:
		return C.Z3_mk_gt(ctx.raw, lhs, rhs), ctx.err("Z3_mk_gt")
	case ooxcheck.GEQ:
		return C.Z3_mk_ge(ctx.raw, lhs, rhs), ctx.err("Z3_mk_ge")
	case ooxcheck.AND:
		args := []C.Z3_ast{lhs, rhs}
		return C.Z3_mk_and(ctx.raw, 2, &args[0]), ctx.err("Z3_mk_and")
	case ooxcheck.OR:
		args := []C.Z3_ast{lhs, rhs}
		return C.Z3_mk_or(ctx.raw, 2, &args[0]), ctx.err("Z3_mk_or")
	case ooxcheck.IMPLIES:
		return C.Z3_mk_implies(ctx.raw, lhs, rhs), ctx.err("Z3_mk_implies")
	default:
		return nil, fmt.Errorf("z3: unsupported binary operator %s", e.Op)
	}
}

// Error represents an error from the Z3 API.
type Error struct {
	Code    int
	Op      string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (%d)", e.Op, e.Message, e.Code)
}

// Stats tracks solver call counts and cumulative time, surfaced when
// Configuration.RunBenchmark is set.
type Stats struct {
	CheckN    int
	CheckTime time.Duration
}
