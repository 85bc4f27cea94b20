package ooxcheck_test

import (
	"strings"
	"testing"

	"ooxcheck"
)

// testCFG is a minimal exported-API ControlFlowGraph double used to drive
// Driver.Verify end to end without a real OOX front end.
type testCFG struct {
	nodes map[ooxcheck.NodeID]*ooxcheck.Node
	ctxs  map[ooxcheck.NodeID]ooxcheck.CFGContext
}

func newTestCFG() *testCFG {
	return &testCFG{nodes: map[ooxcheck.NodeID]*ooxcheck.Node{}, ctxs: map[ooxcheck.NodeID]ooxcheck.CFGContext{}}
}

func (g *testCFG) add(n *ooxcheck.Node, successors ...ooxcheck.NodeID) {
	g.nodes[n.ID] = n
	g.ctxs[n.ID] = ooxcheck.CFGContext{NodeID: n.ID, Kind: n.Kind, Successors: successors}
}

func (g *testCFG) Node(id ooxcheck.NodeID) *ooxcheck.Node          { return g.nodes[id] }
func (g *testCFG) Context(id ooxcheck.NodeID) ooxcheck.CFGContext { return g.ctxs[id] }

type testSymbolTable map[string][]ooxcheck.Symbol

func (t testSymbolTable) Lookup(qualifiedName string) []ooxcheck.Symbol { return t[qualifiedName] }

// testSolver treats every path condition as satisfiable, so Assert is
// only ever driven by the concrete-boolean fast path in these tests.
type testSolver struct{}

func (testSolver) Check(constraints []ooxcheck.Expr) (ooxcheck.SolverResult, error) {
	return ooxcheck.SAT, nil
}

func buildSingleMethodProgram(assertExpr ooxcheck.Expr) (*testCFG, testSymbolTable, ooxcheck.MethodMember) {
	cfg := newTestCFG()
	cfg.add(&ooxcheck.Node{ID: 0, Kind: ooxcheck.MemberEntryKind}, 1)
	cfg.add(&ooxcheck.Node{ID: 1, Kind: ooxcheck.StatNodeKind, Stat: ooxcheck.AssertStmt{Expr: assertExpr}}, 2)
	cfg.add(&ooxcheck.Node{ID: 2, Kind: ooxcheck.MemberExitKind})

	member := ooxcheck.MethodMember{Class: "Main", Name: "run", Entry: 0}
	table := testSymbolTable{
		"Main.run": {{Name: "Main.run", Member: member}},
	}
	return cfg, table, member
}

func TestVerifySingleThreadValid(t *testing.T) {
	cfg, table, _ := buildSingleMethodProgram(&ooxcheck.LitExpr{Value: ooxcheck.BoolLit{Value: true}})

	config := ooxcheck.DefaultConfiguration()
	config.EntryPoint = "Main.run"
	driver, err := ooxcheck.NewDriver(config, cfg, table, testSolver{})
	if err != nil {
		t.Fatalf("NewDriver returned error: %v", err)
	}

	result, _, err := driver.Verify()
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if result.Verdict != ooxcheck.Valid {
		t.Fatalf("Verdict = %s, want Valid", result.Verdict)
	}
	if result.ExitCode() != 0 {
		t.Fatalf("ExitCode() = %d, want 0", result.ExitCode())
	}
}

func TestVerifySingleThreadInvalid(t *testing.T) {
	cfg, table, _ := buildSingleMethodProgram(&ooxcheck.LitExpr{Value: ooxcheck.BoolLit{Value: false}})

	config := ooxcheck.DefaultConfiguration()
	config.EntryPoint = "Main.run"
	driver, err := ooxcheck.NewDriver(config, cfg, table, testSolver{})
	if err != nil {
		t.Fatalf("NewDriver returned error: %v", err)
	}

	result, _, err := driver.Verify()
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if result.Verdict != ooxcheck.Invalid {
		t.Fatalf("Verdict = %s, want Invalid", result.Verdict)
	}
	if result.Counterexample == nil {
		t.Fatalf("Invalid result carries no counterexample")
	}
	if result.ExitCode() == 0 {
		t.Fatalf("ExitCode() = 0, want non-zero for Invalid")
	}
}

// recordingSolver records every formula it was asked to check (by its
// printed form) and always reports UNSAT, so Assert/Assume's checks
// pass; the test inspects what was actually asked rather than the
// verdict.
type recordingSolver struct {
	checked []string
}

func (s *recordingSolver) Check(constraints []ooxcheck.Expr) (ooxcheck.SolverResult, error) {
	for _, c := range constraints {
		s.checked = append(s.checked, c.String())
	}
	return ooxcheck.UNSAT, nil
}

func (s *recordingSolver) sawVariable(name string) bool {
	for _, c := range s.checked {
		if strings.Contains(c, name) {
			return true
		}
	}
	return false
}

// TestVerifySeedsEntryParameterAsFreeSymbolicValue proves the fix for
// Driver.Verify never binding method parameters: asserting over a
// parameter must discharge a formula that actually mentions that
// parameter's name, not a formula folded from a concrete null because
// the parameter was never bound at all.
func TestVerifySeedsEntryParameterAsFreeSymbolicValue(t *testing.T) {
	cfg := newTestCFG()
	cfg.add(&ooxcheck.Node{ID: 0, Kind: ooxcheck.MemberEntryKind}, 1)
	assertExpr := &ooxcheck.BinaryExpr{
		Op:  ooxcheck.GT,
		LHS: &ooxcheck.VarExpr{Name: "x"},
		RHS: &ooxcheck.LitExpr{Value: ooxcheck.IntLit{Value: 0}},
	}
	cfg.add(&ooxcheck.Node{ID: 1, Kind: ooxcheck.StatNodeKind, Stat: ooxcheck.AssertStmt{Expr: assertExpr}}, 2)
	cfg.add(&ooxcheck.Node{ID: 2, Kind: ooxcheck.MemberExitKind})

	member := ooxcheck.MethodMember{Class: "Main", Name: "run", IsStatic: true, Params: []string{"x"}, Entry: 0}
	table := testSymbolTable{"Main.run": {{Name: "Main.run", Member: member}}}

	config := ooxcheck.DefaultConfiguration()
	config.EntryPoint = "Main.run"
	solver := &recordingSolver{}
	driver, err := ooxcheck.NewDriver(config, cfg, table, solver)
	if err != nil {
		t.Fatalf("NewDriver returned error: %v", err)
	}

	if _, _, err := driver.Verify(); err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if !solver.sawVariable("x") {
		t.Fatalf("solver was never asked about x; entry parameter was not seeded as a free symbolic value")
	}
}

func TestVerifyUnknownEntryPoint(t *testing.T) {
	cfg := newTestCFG()
	table := testSymbolTable{}

	config := ooxcheck.DefaultConfiguration()
	config.EntryPoint = "Main.missing"
	driver, err := ooxcheck.NewDriver(config, cfg, table, testSolver{})
	if err != nil {
		t.Fatalf("NewDriver returned error: %v", err)
	}

	if _, _, err := driver.Verify(); err == nil {
		t.Fatalf("Verify with an unresolved entry point returned no error")
	}
}

func TestVerifyRejectsNegativeDepth(t *testing.T) {
	config := ooxcheck.DefaultConfiguration()
	config.MaximumDepth = -1
	if _, err := ooxcheck.NewDriver(config, newTestCFG(), testSymbolTable{}, testSolver{}); err == nil {
		t.Fatalf("NewDriver with a negative MaximumDepth returned no error")
	}
}
