package ooxcheck

import (
	"fmt"
	"math/rand"
	"sync"
)

// Verdict is the three-way outcome of a verification run.
type Verdict int

const (
	Valid Verdict = iota
	Invalid
	Deadlock
)

func (v Verdict) String() string {
	switch v {
	case Valid:
		return "Valid"
	case Invalid:
		return "Invalid"
	case Deadlock:
		return "Deadlock"
	default:
		return "Unknown"
	}
}

// VerificationResult is the driver's output.
type VerificationResult struct {
	Verdict Verdict
	// Counterexample is populated when Verdict == Invalid.
	Counterexample *Invalidity
}

// ExitCode returns 0 for Valid, non-zero otherwise.
func (r VerificationResult) ExitCode() int {
	if r.Verdict == Valid {
		return 0
	}
	return 1
}

// Stats is the driver's statistics collection, emitted when
// Configuration.RunBenchmark is set. This is the minimal counter set
// the driver itself has on hand to hand off to an external collector.
type Stats struct {
	StatesExplored int
	Forks          int
	SolverQueries  int
}

// Driver is the verification driver: it manages the depth budget,
// resolves the entry point, and aggregates the outer verdict from the
// execP search tree.
type Driver struct {
	CFG    ControlFlowGraph
	Table  SymbolTable
	Solver Solver
	Config Configuration

	// Parallelism is the worker pool size used by the optional host-side
	// parallel exploration. 0 or 1 means sequential.
	Parallelism int
}

// NewDriver validates cfg and returns a Driver ready to Verify, doing
// its one validation up front before the run loop starts.
func NewDriver(cfg Configuration, cfgGraph ControlFlowGraph, table SymbolTable, solver Solver) (*Driver, error) {
	if cfg.MaximumDepth < 0 {
		return nil, fmt.Errorf("ooxcheck: negative maximum depth %d", cfg.MaximumDepth)
	}
	return &Driver{CFG: cfgGraph, Table: table, Solver: solver, Config: cfg}, nil
}

// Verify runs the bounded symbolic exploration from the configured entry
// point and returns the aggregated VerificationResult.
func (d *Driver) Verify() (VerificationResult, Stats, error) {
	syms := d.Table.Lookup(d.Config.EntryPoint)
	if len(syms) == 0 {
		return VerificationResult{}, Stats{}, fmt.Errorf("%w: %s", ErrUnknownEntryPoint, d.Config.EntryPoint)
	}
	member, ok := syms[0].Member.(MethodMember)
	if !ok {
		return VerificationResult{}, Stats{}, expectedMethodMemberError(d.Config.EntryPoint)
	}

	solver := d.Solver
	var cache *formulaCache
	if d.Config.CacheFormulas {
		cache = newFormulaCache(solver)
		solver = cache
	}

	logger := NewLogger(d.Config.LogLevel)

	var rng *rand.Rand
	if d.Config.ApplyRandomInterleaving {
		rng = rand.New(rand.NewSource(1))
	}

	engine := &Engine{CFG: d.CFG, Table: d.Table, Solver: solver, Config: &d.Config, Log: logger, Rand: rng}

	root := NewInitialState(d.Config.MaximumDepth)
	root.CurrentThreadId = threadIdPtr(0)
	frame := NewStackFrame(member.Entry, nil, member)
	bindSymbolicEntry(frame, member)
	root.Threads[0].Pc = engine.CFG.Context(member.Entry)
	root.Threads[0].PushFrame(frame)

	stats := Stats{}

	result, err := d.explore(engine, []*ExecutionState{root}, &stats)
	if err != nil {
		return VerificationResult{}, stats, err
	}
	return result, stats, nil
}

func threadIdPtr(tid ThreadId) *ThreadId { return &tid }

// bindSymbolicEntry seeds frame with a fresh symbolic value per entry
// parameter and, for a non-static method, a symbolic receiver for this.
// Without this the entry-point method body would run over a completely
// concrete (and arbitrary) environment, exploring exactly one path
// instead of every path a caller could actually reach it with.
func bindSymbolicEntry(frame *StackFrame, member MethodMember) {
	for _, p := range member.Params {
		frame.Bind(p, SymbolicVal{Expr: &VarExpr{Name: p}})
	}
	if !member.IsStatic {
		frame.Bind("this", SymbolicRefVal{Name: "this", ElemType: member.Class})
	}
}

// explore runs a depth-first search over the worklist of frontier states,
// short-circuiting on the first Invalid or Deadlock. When Parallelism > 1
// it dispatches sibling branches to a bounded worker pool instead;
// verdicts are identical either way because ExecutionState is immutable
// between transitions.
func (d *Driver) explore(e *Engine, worklist []*ExecutionState, stats *Stats) (VerificationResult, error) {
	if d.Parallelism > 1 {
		return d.exploreParallel(e, worklist, stats)
	}

	for len(worklist) > 0 {
		n := len(worklist) - 1
		state := worklist[n]
		worklist = worklist[:n]
		stats.StatesExplored++
		stats.Forks = state.NumberOfForks

		successors, deadlock, terminal, invalid, err := e.execP(state)
		if err != nil {
			return VerificationResult{}, err
		}
		if invalid != nil {
			return VerificationResult{Verdict: Invalid, Counterexample: invalid}, nil
		}
		if deadlock {
			return VerificationResult{Verdict: Deadlock}, nil
		}
		if terminal {
			continue
		}
		worklist = append(worklist, successors...)
	}
	return VerificationResult{Verdict: Valid}, nil
}

// exploreParallel is the worker-pool variant of explore: every state
// popped from the frontier is handed to a bounded set of goroutines;
// their successors fan back in over a channel. A sync.Once-guarded
// result and a cancel channel implement a halt-on-first-Invalid/Deadlock
// policy that abandons in-flight branches.
func (d *Driver) exploreParallel(e *Engine, initial []*ExecutionState, stats *Stats) (VerificationResult, error) {
	type outcome struct {
		successors []*ExecutionState
		deadlock   bool
		terminal   bool
		invalid    *Invalidity
		err        error
	}

	jobs := make(chan *ExecutionState, 4096)
	results := make(chan outcome, 4096)
	done := make(chan struct{})

	var wg sync.WaitGroup
	var once sync.Once
	var mu sync.Mutex

	worker := func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			case state, ok := <-jobs:
				if !ok {
					return
				}
				successors, deadlock, terminal, invalid, err := e.execP(state)
				select {
				case results <- outcome{successors, deadlock, terminal, invalid, err}:
				case <-done:
					return
				}
			}
		}
	}

	for i := 0; i < d.Parallelism; i++ {
		wg.Add(1)
		go worker()
	}

	pending := 0
	enqueue := func(s *ExecutionState) {
		mu.Lock()
		pending++
		mu.Unlock()
		jobs <- s
	}
	for _, s := range initial {
		enqueue(s)
	}

	var final VerificationResult
	var finalErr error
	stop := func(r VerificationResult, err error) {
		once.Do(func() {
			final, finalErr = r, err
			close(done)
		})
	}

	go func() {
		wg.Wait()
	}()

	for {
		mu.Lock()
		p := pending
		mu.Unlock()
		if p == 0 {
			stop(VerificationResult{Verdict: Valid}, nil)
			break
		}

		select {
		case <-done:
			goto drained
		case out := <-results:
			mu.Lock()
			pending--
			mu.Unlock()
			stats.StatesExplored++

			if out.err != nil {
				stop(VerificationResult{}, out.err)
				goto drained
			}
			if out.invalid != nil {
				stop(VerificationResult{Verdict: Invalid, Counterexample: out.invalid}, nil)
				goto drained
			}
			if out.deadlock {
				stop(VerificationResult{Verdict: Deadlock}, nil)
				goto drained
			}
			if !out.terminal {
				for _, s := range out.successors {
					enqueue(s)
				}
			}
		}
	}

drained:
	close(jobs)
	return final, finalErr
}
