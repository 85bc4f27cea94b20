package ooxcheck

import "errors"

// SolverResult is the three-valued outcome of a check-sat query.
type SolverResult int

const (
	UNSAT SolverResult = iota
	SAT
	UNKNOWN
)

func (r SolverResult) String() string {
	switch r {
	case UNSAT:
		return "unsat"
	case SAT:
		return "sat"
	case UNKNOWN:
		return "unknown"
	default:
		return "invalid"
	}
}

var (
	ErrSolverTimeout  = errors.New("ooxcheck: solver timeout")
	ErrSolverCanceled = errors.New("ooxcheck: solver canceled")
)

// Solver is the external SMT oracle contract: a
// single check-sat query over a conjunction of Exprs. Concrete
// implementations (e.g. smt/z3.Solver) live outside the core so it never
// imports cgo.
type Solver interface {
	Check(constraints []Expr) (SolverResult, error)
}

// formulaCache memoises Solver.Check results keyed by the constraints'
// printed forms (their String() renderings joined in order). Constraints
// are not normalized, so equivalent formulas written or ordered
// differently get separate entries. Entries are never invalidated, since
// formulas are pure.
type formulaCache struct {
	solver  Solver
	results map[string]SolverResult
}

func newFormulaCache(solver Solver) *formulaCache {
	return &formulaCache{solver: solver, results: make(map[string]SolverResult)}
}

// Check looks up the cache before delegating to the underlying solver,
// and stores the result under that printed-form key on a miss.
func (c *formulaCache) Check(constraints []Expr) (SolverResult, error) {
	key := exprString(constraints, "\x00")
	if r, ok := c.results[key]; ok {
		return r, nil
	}
	r, err := c.solver.Check(constraints)
	if err != nil {
		return r, err
	}
	c.results[key] = r
	return r, nil
}

// checkEntailment asks whether constraints entail cond, i.e. whether
// ¬(constraints ⇒ cond) is UNSAT, matching Assert's discharge semantics.
// UNKNOWN is treated as SAT (the negation is "possibly satisfiable"),
// which makes checkEntailment return false — sound-for-invalidity.
// applyLocal enables a fast path that decides the trivial cases without
// a solver round-trip.
func checkEntailment(solver Solver, constraints []Expr, cond Expr, applyLocal bool) (bool, error) {
	if applyLocal {
		if feasible, ok := localCheck(constraints); ok && !feasible {
			return true, nil // constraints already infeasible: anything is vacuously entailed
		}
	}
	negated := append(append([]Expr{}, constraints...), &UnaryExpr{Op: NOT, Expr: cond})
	r, err := solver.Check(negated)
	if err != nil {
		return false, err
	}
	return r == UNSAT, nil
}

// checkFeasible asks whether constraints are jointly satisfiable.
// UNKNOWN is treated as satisfiable (conservative: never prune a
// branch we are not sure is infeasible). applyLocal enables a fast path
// that decides the trivial cases without a solver round-trip.
func checkFeasible(solver Solver, constraints []Expr, applyLocal bool) (bool, error) {
	if applyLocal {
		if feasible, ok := localCheck(constraints); ok {
			return feasible, nil
		}
	}
	r, err := solver.Check(constraints)
	if err != nil {
		return false, err
	}
	return r != UNSAT, nil
}

// localCheck decides feasibility of constraints purely from literal
// boolean leaves, without involving the external solver: an empty
// conjunction is trivially feasible, and a literal false anywhere makes
// the whole conjunction infeasible. ok is false when the conjunction
// contains anything else (a variable, a field read, a comparison), in
// which case the caller must fall through to the solver.
func localCheck(constraints []Expr) (feasible bool, ok bool) {
	if len(constraints) == 0 {
		return true, true
	}
	for _, c := range constraints {
		lit, isLit := c.(*LitExpr)
		if !isLit {
			return false, false
		}
		b, isBool := lit.Value.(BoolLit)
		if !isBool {
			return false, false
		}
		if !b.Value {
			return false, true
		}
	}
	return true, true
}
