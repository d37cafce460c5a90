// Package campaign runs minimization jobs against real target programs.
//
// This package provides:
//   - Job definitions and argument placeholder resolution
//   - ProcessOracle, which executes a target and maps its exit status to a verdict
//   - The Runner, which drives ddmin for each job and writes run artifacts
//   - Reproducer fingerprinting and known-failure deduplication
package campaign

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/aalhour/deltamin/internal/compression"
	"github.com/aalhour/deltamin/internal/config"
	"github.com/aalhour/deltamin/internal/ddmin"
)

// InputPlaceholder is replaced in Job.Args by the path of the candidate input
// when the job uses InputFile.
const InputPlaceholder = "<INPUT>"

// InputMode selects how a candidate input reaches the target.
type InputMode string

const (
	// InputStdin pipes the candidate to the target's standard input.
	InputStdin InputMode = config.InputModeStdin

	// InputFile writes the candidate to a temporary file and passes its path.
	InputFile InputMode = config.InputModeFile
)

// Job is a single minimization request.
type Job struct {
	// Name identifies the job in run directories and summaries.
	Name string

	// Target is the executable to run. It is also the target identifier
	// handed to the oracle.
	Target string

	// Args are the target's command-line arguments.
	// Use "<INPUT>" as a placeholder for the candidate input path.
	Args []string

	// Env are additional environment variables for the target.
	Env map[string]string

	// InputPath is the failing input to minimize.
	InputPath string

	// OutputPath, if set, receives the minimized input as raw bytes.
	OutputPath string

	// Split is the initial granularity (ddmin.DefaultSplit if zero).
	Split int

	// Timeout bounds each target execution. Zero means no limit.
	Timeout time.Duration

	InputMode InputMode
	Policy    VerdictPolicy

	// Parallelism is the number of concurrent target executions.
	Parallelism int

	// Cache memoizes verdicts for repeated candidates.
	Cache bool

	// CacheSize bounds the verdict cache (ddmin.DefaultCacheSize if zero).
	CacheSize int

	// Compression is applied to the stored reproducer.
	Compression compression.Type
}

// JobFromConfig converts a validated job file entry.
func JobFromConfig(c config.Job) (*Job, error) {
	timeout, err := c.TimeoutDuration()
	if err != nil {
		return nil, err
	}
	comp, err := compression.ParseType(c.Compression)
	if err != nil {
		return nil, err
	}
	return &Job{
		Name:        c.Name,
		Target:      c.Target,
		Args:        slices.Clone(c.Args),
		Env:         c.Env,
		InputPath:   c.Input,
		OutputPath:  c.Output,
		Split:       c.Split,
		Timeout:     timeout,
		InputMode:   InputMode(c.InputMode),
		Parallelism: c.Parallelism,
		Cache:       c.Cache,
		CacheSize:   c.CacheSize,
		Compression: comp,
		Policy: VerdictPolicy{
			FailExitCodes:    slices.Clone(c.FailExitCodes),
			TimeoutIsFailure: c.TimeoutIsFailure,
		},
	}, nil
}

// RunDir returns the run directory path for a specific run ID.
func (j *Job) RunDir(runRoot, runID string) string {
	return filepath.Join(runRoot, j.Name, runID)
}

// ResolveArgs returns the arguments with the input placeholder replaced.
// In file mode, the input path is appended when no argument mentions the placeholder.
func (j *Job) ResolveArgs(inputPath string) []string {
	return resolveArgs(j.Args, j.InputMode, inputPath)
}

func resolveArgs(args []string, mode InputMode, inputPath string) []string {
	out := make([]string, 0, len(args)+1)
	replaced := false
	for _, arg := range args {
		if strings.Contains(arg, InputPlaceholder) {
			replaced = true
			arg = strings.ReplaceAll(arg, InputPlaceholder, inputPath)
		}
		out = append(out, arg)
	}
	if mode == InputFile && !replaced {
		out = append(out, inputPath)
	}
	return out
}

// split returns the initial granularity for the job.
func (j *Job) split() int {
	if j.Split == 0 {
		return ddmin.DefaultSplit
	}
	return j.Split
}

// Validate reports configuration errors that would make every run fail.
func (j *Job) Validate() error {
	switch {
	case j.Name == "":
		return fmt.Errorf("%w: job name is required", config.ErrInvalidConfig)
	case j.Target == "":
		return fmt.Errorf("%w: job %s: target is required", config.ErrInvalidConfig, j.Name)
	case j.InputPath == "":
		return fmt.Errorf("%w: job %s: input is required", config.ErrInvalidConfig, j.Name)
	case j.InputMode != InputStdin && j.InputMode != InputFile:
		return fmt.Errorf("%w: job %s: input mode %q", config.ErrInvalidConfig, j.Name, j.InputMode)
	}
	return nil
}
