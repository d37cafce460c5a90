package ddmin

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aalhour/deltamin/internal/logging"
)

// Probe records a single oracle call made during minimization.
type Probe struct {
	// Depth is the recursion depth; the initial input is probed at depth 0.
	Depth int `json:"depth"`

	// Split is the granularity the probed input continues with if it fails.
	Split int `json:"split"`

	// Size is the probed input length in bytes.
	Size int `json:"size"`

	// Fails reports whether the failure reproduced.
	Fails bool `json:"fails"`

	// DurationMs is the oracle call duration.
	DurationMs int64 `json:"duration_ms"`
}

// Config controls a Minimizer.
type Config struct {
	// Parallelism is the number of oracle calls allowed in flight at once.
	// Values <= 1 select the sequential search.
	Parallelism int

	// Logger receives per-probe debug lines and the final result.
	// Nil means logging.Discard.
	Logger logging.Logger

	// OnProbe, if set, is called after every oracle call.
	// It must be safe for concurrent use when Parallelism > 1.
	OnProbe func(Probe)
}

// Minimizer reduces failing inputs by delta debugging.
//
// A Minimizer holds no per-search state besides its counters, so one instance
// may run several searches; Stats accumulates across them.
type Minimizer struct {
	oracle Oracle
	config Config
	logger logging.Logger
	stats  counters
}

// NewMinimizer creates a minimizer that consults oracle.
func NewMinimizer(oracle Oracle, config Config) *Minimizer {
	logger := config.Logger
	if logging.IsNil(logger) {
		logger = logging.Discard
	}
	return &Minimizer{
		oracle: oracle,
		config: config,
		logger: logger,
	}
}

// Minimize is shorthand for a sequential, unlogged NewMinimizer(oracle, Config{}).Minimize.
func Minimize(ctx context.Context, oracle Oracle, target string, input []byte, split int) ([]byte, bool, error) {
	return NewMinimizer(oracle, Config{}).Minimize(ctx, target, input, split)
}

// Minimize shrinks input while the oracle keeps reporting a failure for target.
//
// found is false when input itself does not fail; there is nothing to minimize
// and the returned slice is nil. Otherwise the result is a failing input no
// longer than input. split is the starting granularity (DefaultSplit for the
// usual search); split <= 1 returns the input as soon as it is confirmed to fail.
//
// The context is checked between oracle calls only; an issued call always runs
// to completion. Oracle errors abort the search and are returned wrapped.
func (m *Minimizer) Minimize(ctx context.Context, target string, input []byte, split int) (result []byte, found bool, err error) {
	fails, err := m.probe(ctx, target, Candidate{Input: input, Split: split}, 0)
	if err != nil {
		return nil, false, err
	}
	if !fails {
		m.logger.Infof(logging.NSMinimize+"%s: input of %d bytes does not fail", target, len(input))
		return nil, false, nil
	}

	result, err = m.reduce(ctx, target, input, split, 0)
	if err != nil {
		return nil, false, err
	}

	m.logger.Infof(logging.NSMinimize+"%s: minimized %d -> %d bytes (%d oracle calls)",
		target, len(input), len(result), m.stats.calls.Load())
	return result, true, nil
}

// reduce minimizes an input already known to fail.
func (m *Minimizer) reduce(ctx context.Context, target string, input []byte, split, depth int) ([]byte, error) {
	for split > 1 {
		candidates := Candidates(input, split)

		idx, err := m.firstFailing(ctx, target, candidates, depth+1)
		if err != nil {
			return nil, err
		}
		if idx < 0 {
			return input, nil
		}

		input, split = candidates[idx].Input, candidates[idx].Split
		depth++
	}
	return input, nil
}

// firstFailing returns the index of the first candidate the oracle reports as
// failing, or -1 if none does.
//
// A candidate's own minimization yields a result exactly when its probe fails,
// so the first failing probe is the branch the recursive search commits to.
func (m *Minimizer) firstFailing(ctx context.Context, target string, candidates []Candidate, depth int) (int, error) {
	if m.config.Parallelism > 1 {
		return m.firstFailingParallel(ctx, target, candidates, depth)
	}

	for i, c := range candidates {
		fails, err := m.probe(ctx, target, c, depth)
		if err != nil {
			return -1, err
		}
		if fails {
			return i, nil
		}
	}
	return -1, nil
}

// firstFailingParallel probes candidates in windows of Parallelism concurrent
// oracle calls. A window is fully resolved before its verdicts are read in
// candidate order, so a later candidate never wins over an earlier one.
func (m *Minimizer) firstFailingParallel(ctx context.Context, target string, candidates []Candidate, depth int) (int, error) {
	width := m.config.Parallelism

	for start := 0; start < len(candidates); start += width {
		end := min(start+width, len(candidates))
		verdicts := make([]bool, end-start)
		errs := make([]error, end-start)

		var g errgroup.Group
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				verdicts[i-start], errs[i-start] = m.probe(ctx, target, candidates[i], depth)
				return nil
			})
		}
		_ = g.Wait()

		for i := range verdicts {
			if errs[i] != nil {
				return -1, errs[i]
			}
			if verdicts[i] {
				return start + i, nil
			}
		}
	}
	return -1, nil
}

// probe runs the oracle once on c.Input.
func (m *Minimizer) probe(ctx context.Context, target string, c Candidate, depth int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	start := time.Now()
	status, err := m.oracle.Run(ctx, target, c.Input)
	if err != nil {
		return false, fmt.Errorf("oracle on %d-byte input: %w", len(c.Input), err)
	}

	fails := Fails(status)
	m.stats.record(depth, fails)

	p := Probe{
		Depth:      depth,
		Split:      c.Split,
		Size:       len(c.Input),
		Fails:      fails,
		DurationMs: time.Since(start).Milliseconds(),
	}
	m.logger.Debugf(logging.NSMinimize+"probe depth=%d split=%d size=%d status=%d", depth, c.Split, p.Size, status)
	if m.config.OnProbe != nil {
		m.config.OnProbe(p)
	}
	return fails, nil
}

// Stats returns a snapshot of the minimizer's counters.
func (m *Minimizer) Stats() Stats {
	return m.stats.snapshot()
}
