package campaign

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aalhour/deltamin/internal/ddmin"
	"github.com/aalhour/deltamin/internal/logging"
)

// ErrNoFailure reports that a job's input does not reproduce the failure.
// Runner.Run does not return it; callers use it to report the outcome.
var ErrNoFailure = errors.New("input does not reproduce the failure")

// RunnerConfig configures the campaign runner.
type RunnerConfig struct {
	// RunRoot is the root directory for all run artifacts.
	RunRoot string

	// KnownFailures tracks reproducer fingerprints for deduplication.
	// May be nil.
	KnownFailures *KnownFailures

	// Logger receives progress messages. Nil means a WARN-level stderr logger.
	Logger logging.Logger

	// Oracle overrides the ProcessOracle built from each job.
	// Used by tests and by callers with in-process targets.
	Oracle ddmin.Oracle

	// FailFast stops RunJobs at the first job that errors.
	FailFast bool
}

// Runner executes minimization jobs.
type Runner struct {
	config RunnerConfig
	logger logging.Logger
}

// NewRunner creates a new runner.
func NewRunner(config RunnerConfig) *Runner {
	if config.RunRoot == "" {
		config.RunRoot = filepath.Join("ddmin-runs", time.Now().Format("20060102-150405"))
	}
	return &Runner{
		config: config,
		logger: logging.OrDefault(config.Logger),
	}
}

// RunRoot returns the directory receiving run artifacts.
func (r *Runner) RunRoot() string {
	return r.config.RunRoot
}

// RunJobs executes jobs in order and writes summary.json to the run root.
//
// Per-job failures are recorded in the summary and do not stop the batch,
// unless FailFast is set. A missing target or a cancelled context stops it
// immediately; the summary of the completed jobs is still written.
func (r *Runner) RunJobs(ctx context.Context, jobs []*Job) (*Summary, error) {
	startTime := time.Now()

	if err := EnsureDir(r.config.RunRoot); err != nil {
		return nil, fmt.Errorf("create run root: %w", err)
	}

	var (
		results []*RunResult
		stopErr error
	)
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			r.logger.Warnf(logging.NSCampaign + "cancelled")
			stopErr = err
			break
		}

		result, err := r.Run(ctx, job)
		if result != nil {
			results = append(results, result)
		}
		if err == nil {
			continue
		}
		if errors.Is(err, ErrTargetNotFound) {
			r.logger.Fatalf(logging.NSCampaign+"stopping: %v", err)
			stopErr = err
			break
		}
		if ctx.Err() != nil {
			stopErr = err
			break
		}
		if r.config.FailFast {
			r.logger.Warnf(logging.NSCampaign+"fail-fast: stopping after %s", job.Name)
			stopErr = err
			break
		}
	}

	summary := BuildSummary(startTime, time.Now(), results)
	if err := WriteSummary(r.config.RunRoot, summary); err != nil {
		r.logger.Warnf(logging.NSArtifact+"failed to write summary: %v", err)
	}
	return summary, stopErr
}

// Run minimizes a single job's input.
//
// The result is non-nil whenever the run directory could be created; its Err
// field mirrors the returned error. An input that does not fail is not an
// error: the result has Reproduced set to false.
func (r *Runner) Run(ctx context.Context, job *Job) (*RunResult, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}

	result := &RunResult{
		Job:       job,
		RunID:     uuid.NewString(),
		StartTime: time.Now(),
	}
	result.RunDir = job.RunDir(r.config.RunRoot, result.RunID)
	if err := EnsureDir(result.RunDir); err != nil {
		return nil, fmt.Errorf("create run dir: %w", err)
	}

	err := r.minimize(ctx, job, result)
	result.EndTime = time.Now()
	result.Err = err

	if werr := WriteRunArtifact(result); werr != nil {
		r.logger.Warnf(logging.NSArtifact+"failed to write run artifact: %v", werr)
	}

	switch {
	case err != nil:
		r.logger.Errorf(logging.NSCampaign+"%s: %v", job.Name, err)
	case !result.Reproduced:
		r.logger.Warnf(logging.NSCampaign+"%s: input does not reproduce the failure", job.Name)
	default:
		dup := ""
		if result.IsDuplicate {
			dup = " (duplicate)"
		}
		r.logger.Infof(logging.NSCampaign+"%s: %d -> %d bytes, %d oracle calls, fingerprint %s%s",
			job.Name, result.OriginalSize, len(result.Minimized), result.Stats.OracleCalls, result.Fingerprint, dup)
	}
	return result, err
}

func (r *Runner) minimize(ctx context.Context, job *Job, result *RunResult) error {
	input, err := os.ReadFile(job.InputPath)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	result.OriginalSize = len(input)

	oracle, err := r.oracle(job, result.RunDir)
	if err != nil {
		return err
	}

	var cache *ddmin.CachingOracle
	if job.Cache {
		cache = ddmin.NewCachingOracle(oracle, job.CacheSize)
		oracle = cache
	}

	steps := &stepRecorder{limit: MaxRecordedSteps}
	m := ddmin.NewMinimizer(oracle, ddmin.Config{
		Parallelism: job.Parallelism,
		Logger:      r.logger,
		OnProbe:     steps.record,
	})

	r.logger.Infof(logging.NSCampaign+"%s: minimizing %s (%d bytes) against %s",
		job.Name, job.InputPath, len(input), job.Target)

	minimized, found, err := m.Minimize(ctx, job.Target, input, job.split())
	result.Stats = m.Stats()
	result.Steps, result.StepsTruncated = steps.snapshot()
	if cache != nil {
		result.CacheHits = cache.Hits()
	}
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	result.Reproduced = true
	result.Minimized = minimized
	return r.store(job, result)
}

// oracle returns the configured override or a ProcessOracle for the job,
// after checking the target can be executed.
func (r *Runner) oracle(job *Job, runDir string) (ddmin.Oracle, error) {
	if r.config.Oracle != nil {
		return r.config.Oracle, nil
	}
	po := NewProcessOracle(job, runDir, r.logger)
	if err := po.Available(job.Target); err != nil {
		return nil, err
	}
	return po, nil
}

// store writes the reproducer, the optional raw output, and the fingerprint.
func (r *Runner) store(job *Job, result *RunResult) error {
	path, err := WriteReproducer(result.RunDir, result.Minimized, job.Compression)
	if err != nil {
		return err
	}
	result.ReproducerPath = path

	if job.OutputPath != "" {
		if err := os.WriteFile(job.OutputPath, result.Minimized, 0o644); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}

	result.Fingerprint = Fingerprint(job.Target, result.Minimized)
	if kf := r.config.KnownFailures; kf != nil {
		isNew, err := kf.Record(result.Fingerprint, result)
		if err != nil {
			r.logger.Warnf(logging.NSArtifact+"failed to save known failures: %v", err)
		}
		result.IsDuplicate = !isNew
	}
	return nil
}

// stepRecorder collects probes from concurrent oracle calls.
type stepRecorder struct {
	mu        sync.Mutex
	limit     int
	steps     []ddmin.Probe
	truncated bool
}

func (s *stepRecorder) record(p ddmin.Probe) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.steps) >= s.limit {
		s.truncated = true
		return
	}
	s.steps = append(s.steps, p)
}

func (s *stepRecorder) snapshot() ([]ddmin.Probe, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.steps, s.truncated
}
