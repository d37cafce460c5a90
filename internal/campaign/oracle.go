package campaign

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"time"

	"github.com/aalhour/deltamin/internal/logging"
)

// ErrTargetNotFound indicates the target executable cannot be run.
var ErrTargetNotFound = errors.New("target not found")

// ErrOracleTimeout indicates a target execution exceeded its timeout.
var ErrOracleTimeout = errors.New("target timed out")

// stderrTail is how much target stderr is kept for debug logging.
const stderrTail = 512

// ProcessOracle runs a target program on candidate inputs.
// It implements ddmin.Oracle; the target identifier is the executable path.
type ProcessOracle struct {
	// Args are the target's arguments, with "<INPUT>" placeholders.
	Args []string

	// Env are added to the current process environment.
	Env map[string]string

	// Mode selects stdin or temp-file delivery of the candidate.
	Mode InputMode

	// Timeout bounds each execution. Zero means no limit.
	Timeout time.Duration

	// Policy maps exit codes to statuses.
	Policy VerdictPolicy

	// WorkDir holds temporary input files. Empty means os.TempDir().
	WorkDir string

	// Logger receives one debug line per execution. Nil means discard.
	Logger logging.Logger
}

// NewProcessOracle creates an oracle configured from a job.
func NewProcessOracle(job *Job, workDir string, logger logging.Logger) *ProcessOracle {
	return &ProcessOracle{
		Args:    job.Args,
		Env:     job.Env,
		Mode:    job.InputMode,
		Timeout: job.Timeout,
		Policy:  job.Policy,
		WorkDir: workDir,
		Logger:  logger,
	}
}

// Available checks that target resolves to an executable.
func (o *ProcessOracle) Available(target string) error {
	if _, err := exec.LookPath(target); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTargetNotFound, target, err)
	}
	return nil
}

// Run executes target once with input and returns its status.
func (o *ProcessOracle) Run(ctx context.Context, target string, input []byte) (int, error) {
	callCtx := ctx
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	inputPath := ""
	if o.Mode == InputFile {
		path, cleanup, err := o.writeInput(input)
		if err != nil {
			return 0, err
		}
		defer cleanup()
		inputPath = path
	}

	cmd := exec.CommandContext(callCtx, target, resolveArgs(o.Args, o.Mode, inputPath)...)
	cmd.Env = o.env()
	// Grandchildren may hold stderr open after the target is killed.
	cmd.WaitDelay = time.Second
	if o.Mode != InputFile {
		cmd.Stdin = bytes.NewReader(input)
	}

	var stderr bytes.Buffer
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	status, err := o.classify(ctx, callCtx, target, err)
	if err != nil {
		return 0, err
	}

	logger := o.Logger
	if logging.IsNil(logger) {
		logger = logging.Discard
	}
	logger.Debugf(logging.NSOracle+"%s size=%d status=%d took=%s stderr=%q",
		target, len(input), status, elapsed.Round(time.Millisecond), tail(stderr.Bytes(), stderrTail))
	return status, nil
}

// classify turns the result of cmd.Run into a status or a fatal error.
func (o *ProcessOracle) classify(ctx, callCtx context.Context, target string, err error) (int, error) {
	if err == nil {
		return 0, nil
	}

	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		if o.Policy.TimeoutIsFailure {
			return StatusKilled, nil
		}
		return 0, fmt.Errorf("%w: %s after %s", ErrOracleTimeout, target, o.Timeout)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// ExitCode is -1 (StatusKilled) when a signal ended the target.
		return o.Policy.Status(exitErr.ExitCode()), nil
	}

	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return 0, fmt.Errorf("%w: %s: %v", ErrTargetNotFound, target, err)
	}
	return 0, fmt.Errorf("run %s: %w", target, err)
}

// writeInput stores input in a fresh temporary file.
func (o *ProcessOracle) writeInput(input []byte) (string, func(), error) {
	f, err := os.CreateTemp(o.WorkDir, "candidate-*")
	if err != nil {
		return "", nil, fmt.Errorf("create candidate file: %w", err)
	}
	path := f.Name()
	cleanup := func() { _ = os.Remove(path) }

	if _, err := f.Write(input); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, fmt.Errorf("write candidate file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("close candidate file: %w", err)
	}
	return path, cleanup, nil
}

func (o *ProcessOracle) env() []string {
	env := os.Environ()
	for k, v := range o.Env {
		env = append(env, k+"="+v)
	}
	return env
}

func tail(b []byte, n int) []byte {
	if len(b) > n {
		return b[len(b)-n:]
	}
	return b
}
