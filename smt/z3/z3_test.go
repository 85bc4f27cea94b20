package z3_test

import (
	"testing"

	"ooxcheck"
	"ooxcheck/smt/z3"
)

func TestSolverCheck(t *testing.T) {
	t.Run("True", func(t *testing.T) {
		s := z3.NewSolver()
		defer s.Close()
		r, err := s.Check([]ooxcheck.Expr{&ooxcheck.LitExpr{Value: ooxcheck.BoolLit{Value: true}}})
		if err != nil {
			t.Fatal(err)
		}
		if r != ooxcheck.SAT {
			t.Fatalf("Check(true) = %s, want sat", r)
		}
	})

	t.Run("False", func(t *testing.T) {
		s := z3.NewSolver()
		defer s.Close()
		r, err := s.Check([]ooxcheck.Expr{&ooxcheck.LitExpr{Value: ooxcheck.BoolLit{Value: false}}})
		if err != nil {
			t.Fatal(err)
		}
		if r != ooxcheck.UNSAT {
			t.Fatalf("Check(false) = %s, want unsat", r)
		}
	})

	t.Run("IntEquality", func(t *testing.T) {
		s := z3.NewSolver()
		defer s.Close()

		x := &ooxcheck.VarExpr{Name: "x"}
		eq := &ooxcheck.BinaryExpr{Op: ooxcheck.EQ, LHS: x, RHS: &ooxcheck.LitExpr{Value: ooxcheck.IntLit{Value: 5}}}
		r, err := s.Check([]ooxcheck.Expr{eq})
		if err != nil {
			t.Fatal(err)
		}
		if r != ooxcheck.SAT {
			t.Fatalf("Check(x == 5) = %s, want sat", r)
		}
	})

	t.Run("UnsatConjunction", func(t *testing.T) {
		s := z3.NewSolver()
		defer s.Close()

		x := &ooxcheck.VarExpr{Name: "x"}
		five := &ooxcheck.LitExpr{Value: ooxcheck.IntLit{Value: 5}}
		six := &ooxcheck.LitExpr{Value: ooxcheck.IntLit{Value: 6}}
		r, err := s.Check([]ooxcheck.Expr{
			&ooxcheck.BinaryExpr{Op: ooxcheck.EQ, LHS: x, RHS: five},
			&ooxcheck.BinaryExpr{Op: ooxcheck.EQ, LHS: x, RHS: six},
		})
		if err != nil {
			t.Fatal(err)
		}
		if r != ooxcheck.UNSAT {
			t.Fatalf("Check(x==5 && x==6) = %s, want unsat", r)
		}
	})
}

func TestSolverStats(t *testing.T) {
	s := z3.NewSolver()
	defer s.Close()

	if _, err := s.Check([]ooxcheck.Expr{&ooxcheck.LitExpr{Value: ooxcheck.BoolLit{Value: true}}}); err != nil {
		t.Fatal(err)
	}
	if s.Stats().CheckN != 1 {
		t.Fatalf("Stats().CheckN = %d, want 1", s.Stats().CheckN)
	}
}
