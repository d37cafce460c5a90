package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/aalhour/deltamin/internal/campaign"
	"github.com/aalhour/deltamin/internal/compression"
	"github.com/aalhour/deltamin/internal/ddmin"
)

type minimizeOptions struct {
	name             string
	split            int
	out              string
	timeout          time.Duration
	stdin            bool
	file             bool
	failExitCodes    []int
	timeoutIsFailure bool
	jobs             int
	cache            bool
	cacheSize        int
	runRoot          string
	compression      string
	knownFailures    string
}

func newMinimizeCmd(global *globalOptions) *cobra.Command {
	opts := &minimizeOptions{}

	cmd := &cobra.Command{
		Use:   "minimize TARGET INPUT [-- ARGS...]",
		Short: "Minimize one failing input against a target program",
		Long: `Runs TARGET on ever smaller parts of INPUT and keeps the smallest part that
still fails. A run fails when the target exits non-zero (or with one of
--fail-exit-code) or dies from a signal.

Arguments after -- are passed to the target. With --file, the candidate is
written to a temporary file whose path replaces <INPUT> in those arguments,
or is appended when no argument contains <INPUT>.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) < 2 {
				return fmt.Errorf("requires TARGET and INPUT, got %d argument(s)", len(args))
			}
			if dash := cmd.ArgsLenAtDash(); len(args) > 2 && dash != 2 {
				return errors.New("target arguments must follow --")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMinimize(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), global, opts, args)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.name, "name", "", "Job name used for the run directory (default: input file name)")
	f.IntVar(&opts.split, "split", ddmin.DefaultSplit, "Initial number of chunks")
	f.StringVarP(&opts.out, "out", "o", "", "Write the minimized input to this file")
	f.DurationVar(&opts.timeout, "timeout", campaign.DefaultTimeout, "Per-execution timeout (0 = none)")
	f.BoolVar(&opts.stdin, "stdin", false, "Pipe the candidate to the target's stdin (default)")
	f.BoolVar(&opts.file, "file", false, "Pass the candidate as a temporary file path")
	f.IntSliceVar(&opts.failExitCodes, "fail-exit-code", nil, "Exit code that reproduces the failure (repeatable; default any non-zero)")
	f.BoolVar(&opts.timeoutIsFailure, "timeout-is-failure", false, "Treat a timed-out execution as reproducing the failure")
	f.IntVarP(&opts.jobs, "jobs", "j", 1, "Concurrent target executions")
	f.BoolVar(&opts.cache, "cache", false, "Skip executions for candidates already tested")
	f.IntVar(&opts.cacheSize, "cache-size", ddmin.DefaultCacheSize, "Maximum number of cached verdicts")
	f.StringVar(&opts.runRoot, "run-root", "ddmin-runs", "Directory for run artifacts")
	f.StringVar(&opts.compression, "compression", "none", "Reproducer compression: none, snappy, lz4, zstd")
	f.StringVar(&opts.knownFailures, "known-failures", "", "JSON file of known reproducer fingerprints")
	cmd.MarkFlagsMutuallyExclusive("stdin", "file")

	return cmd
}

// job builds the campaign job described by the flags and positional arguments.
func (o *minimizeOptions) job(args []string) (*campaign.Job, error) {
	if o.split < 1 {
		return nil, fmt.Errorf("--split must be >= 1, got %d", o.split)
	}
	if o.jobs < 1 {
		return nil, fmt.Errorf("--jobs must be >= 1, got %d", o.jobs)
	}
	if o.cacheSize < 1 {
		return nil, fmt.Errorf("--cache-size must be >= 1, got %d", o.cacheSize)
	}
	if o.timeout < 0 {
		return nil, fmt.Errorf("--timeout must not be negative")
	}
	comp, err := compression.ParseType(o.compression)
	if err != nil {
		return nil, err
	}

	mode := campaign.InputStdin
	if o.file {
		mode = campaign.InputFile
	}
	name := o.name
	if name == "" {
		base := filepath.Base(args[1])
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	return &campaign.Job{
		Name:        name,
		Target:      args[0],
		Args:        args[2:],
		InputPath:   args[1],
		OutputPath:  o.out,
		Split:       o.split,
		Timeout:     o.timeout,
		InputMode:   mode,
		Parallelism: o.jobs,
		Cache:       o.cache,
		CacheSize:   o.cacheSize,
		Compression: comp,
		Policy: campaign.VerdictPolicy{
			FailExitCodes:    o.failExitCodes,
			TimeoutIsFailure: o.timeoutIsFailure,
		},
	}, nil
}

func runMinimize(ctx context.Context, stdout, stderr io.Writer, global *globalOptions, opts *minimizeOptions, args []string) error {
	job, err := opts.job(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	logger, flush, err := global.newLogger(stderr, cancel)
	if err != nil {
		return err
	}
	defer flush()

	var kf *campaign.KnownFailures
	if opts.knownFailures != "" {
		if kf, err = campaign.NewKnownFailures(opts.knownFailures); err != nil {
			return err
		}
	}

	runner := campaign.NewRunner(campaign.RunnerConfig{
		RunRoot:       opts.runRoot,
		KnownFailures: kf,
		Logger:        logger,
	})

	result, err := runner.Run(ctx, job)
	if err != nil {
		return err
	}
	if !result.Reproduced {
		return fmt.Errorf("%s: %w", job.InputPath, campaign.ErrNoFailure)
	}

	printResult(stdout, result)
	return nil
}

// printResult writes the human-readable outcome of a reproduced run.
func printResult(w io.Writer, r *campaign.RunResult) {
	fmt.Fprintf(w, "minimized %s -> %s (%.1f%% smaller) in %d oracle calls, %s\n",
		humanize.Bytes(uint64(r.OriginalSize)),
		humanize.Bytes(uint64(len(r.Minimized))),
		100*r.Reduction(),
		r.Stats.OracleCalls,
		r.Duration().Round(time.Millisecond))
	if r.CacheHits > 0 {
		fmt.Fprintf(w, "cache hits:  %s\n", humanize.Comma(r.CacheHits))
	}
	dup := ""
	if r.IsDuplicate {
		dup = " (known)"
	}
	fmt.Fprintf(w, "fingerprint: %s%s\n", r.Fingerprint, dup)
	fmt.Fprintf(w, "reproducer:  %s\n", r.ReproducerPath)
	if r.Job.OutputPath != "" {
		fmt.Fprintf(w, "output:      %s\n", r.Job.OutputPath)
	}
	fmt.Fprintf(w, "run:         %s\n", r.RunDir)
}
