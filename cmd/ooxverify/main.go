package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"ooxcheck"
	"ooxcheck/smt/z3"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err == flag.ErrHelp {
		os.Exit(1)
	} else if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	var cmd string
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "", "-h", "--help", "help":
		usage()
		return flag.ErrHelp
	case "check":
		return NewCheckCommand().Run(ctx, args)
	default:
		return fmt.Errorf(`ooxverify %s: unknown command`, cmd)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `
ooxverify is a bounded symbolic execution verifier for OOX programs.

Usage:

	ooxverify <command> [arguments]

The commands are:

	check    verify a method against its contracts
	help     this screen
`[1:])
}

// CheckCommand implements "ooxverify check <file> <Class.method>".
type CheckCommand struct {
	cfg ooxcheck.Configuration
}

// NewCheckCommand returns a CheckCommand seeded with DefaultConfiguration.
func NewCheckCommand() *CheckCommand {
	return &CheckCommand{cfg: ooxcheck.DefaultConfiguration()}
}

func (cmd *CheckCommand) Run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ooxverify check", flag.ContinueOnError)
	fs.IntVar(&cmd.cfg.MaximumDepth, "depth", cmd.cfg.MaximumDepth, "step budget per exploration branch")
	fs.BoolVar(&cmd.cfg.VerifyEnsures, "verify-ensures", cmd.cfg.VerifyEnsures, "discharge ensures clauses")
	fs.BoolVar(&cmd.cfg.VerifyRequires, "verify-requires", cmd.cfg.VerifyRequires, "discharge requires clauses on non-root calls")
	fs.BoolVar(&cmd.cfg.VerifyExceptional, "verify-exceptional", cmd.cfg.VerifyExceptional, "discharge exceptional clauses")
	fs.BoolVar(&cmd.cfg.SymbolicNulls, "symbolic-nulls", cmd.cfg.SymbolicNulls, "allow null in symbolic-reference alias sets")
	fs.BoolVar(&cmd.cfg.SymbolicAliases, "symbolic-aliases", cmd.cfg.SymbolicAliases, "enable lazy alias expansion")
	fs.IntVar(&cmd.cfg.SymbolicArraySize, "symbolic-array-size", cmd.cfg.SymbolicArraySize, "upper bound on symbolic array length")
	fs.BoolVar(&cmd.cfg.CacheFormulas, "cache-formulas", cmd.cfg.CacheFormulas, "memoise solver queries")
	fs.BoolVar(&cmd.cfg.ApplyPOR, "por", cmd.cfg.ApplyPOR, "enable partial-order reduction")
	fs.BoolVar(&cmd.cfg.ApplyLocalSolver, "local-solver", cmd.cfg.ApplyLocalSolver, "enable fast-path concrete evaluation")
	fs.BoolVar(&cmd.cfg.ApplyRandomInterleaving, "random-interleaving", cmd.cfg.ApplyRandomInterleaving, "shuffle the selected-thread list")
	fs.IntVar(&cmd.cfg.LogLevel, "log-level", cmd.cfg.LogLevel, "0 silent, higher is more verbose")
	fs.BoolVar(&cmd.cfg.RunBenchmark, "benchmark", cmd.cfg.RunBenchmark, "print statistics after the run")
	parallel := fs.Int("parallel", 1, "host-side worker pool size for parallel exploration")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() < 2 {
		return fmt.Errorf("ooxverify check: usage: ooxverify check <file> <Class.method>")
	}
	cmd.cfg.FileName = fs.Arg(0)
	cmd.cfg.EntryPoint = fs.Arg(1)

	cu, cfg, table, err := parseCompilationUnit(cmd.cfg.FileName)
	if err != nil {
		return err
	}
	_ = cu

	solver := z3.NewSolver()
	defer solver.Close()

	driver, err := ooxcheck.NewDriver(cmd.cfg, cfg, table, solver)
	if err != nil {
		return err
	}
	driver.Parallelism = *parallel

	result, stats, err := driver.Verify()
	if err != nil {
		return err
	}

	fmt.Printf("%s: %s\n", cmd.cfg.EntryPoint, result.Verdict)
	if result.Verdict == ooxcheck.Invalid && result.Counterexample != nil {
		fmt.Printf("  counterexample: %s\n", result.Counterexample.Formula)
	}
	if cmd.cfg.RunBenchmark {
		fmt.Printf("  states explored: %d\n  forks: %d\n  solver queries: %d\n",
			stats.StatesExplored, stats.Forks, stats.SolverQueries)
	}

	os.Exit(result.ExitCode())
	return nil
}

// parseCompilationUnit is a thin, explicitly-labelled stand-in for the
// out-of-scope parser/lexer/labeller/CFG-builder/symbol-table-builder
// collaborators: lexing, parsing, CFG construction and symbol-table
// construction for OOX source are not part of this repository (see
// DESIGN.md). A real front end would satisfy the same three return types.
func parseCompilationUnit(fileName string) (*ooxcheck.CompilationUnit, ooxcheck.ControlFlowGraph, ooxcheck.SymbolTable, error) {
	return nil, nil, nil, fmt.Errorf("ooxverify: no OOX front end is wired in; %s was not parsed (see DESIGN.md)", fileName)
}
