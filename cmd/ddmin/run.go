package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/aalhour/deltamin/internal/campaign"
	"github.com/aalhour/deltamin/internal/config"
)

type runOptions struct {
	runRoot  string
	failFast bool
}

func newRunCmd(global *globalOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run CONFIG.yaml...",
		Short: "Run the minimization jobs listed in job files",
		Long: `Loads each YAML job file and minimizes every job in it. Job files set
run_root, known_failures and log settings; --run-root and the global log
flags override them when given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides := *global
			if !cmd.Flags().Changed("log-level") {
				overrides.logLevel = ""
			}
			if !cmd.Flags().Changed("log-format") {
				overrides.logFormat = ""
			}

			var firstErr error
			for _, path := range args {
				err := runConfig(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), &overrides, opts, path)
				if err != nil && firstErr == nil {
					firstErr = err
				}
				if err != nil && (opts.failFast || cmd.Context().Err() != nil) {
					break
				}
			}
			return firstErr
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.runRoot, "run-root", "", "Directory for run artifacts (overrides run_root)")
	f.BoolVar(&opts.failFast, "fail-fast", false, "Stop at the first job that errors")

	return cmd
}

func runConfig(ctx context.Context, stdout, stderr io.Writer, overrides *globalOptions, opts *runOptions, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	logOpts := globalOptions{logLevel: cfg.LogLevel, logFormat: cfg.LogFormat}
	if overrides.logLevel != "" {
		logOpts.logLevel = overrides.logLevel
	}
	if overrides.logFormat != "" {
		logOpts.logFormat = overrides.logFormat
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	logger, flush, err := logOpts.newLogger(stderr, cancel)
	if err != nil {
		return err
	}
	defer flush()

	jobs := make([]*campaign.Job, 0, len(cfg.Jobs))
	for _, c := range cfg.Jobs {
		job, err := campaign.JobFromConfig(c)
		if err != nil {
			return fmt.Errorf("job %s: %w", c.Name, err)
		}
		jobs = append(jobs, job)
	}

	var kf *campaign.KnownFailures
	if cfg.KnownFailures != "" {
		if kf, err = campaign.NewKnownFailures(cfg.KnownFailures); err != nil {
			return err
		}
	}

	runRoot := cfg.RunRoot
	if opts.runRoot != "" {
		runRoot = opts.runRoot
	}
	runner := campaign.NewRunner(campaign.RunnerConfig{
		RunRoot:       runRoot,
		KnownFailures: kf,
		Logger:        logger,
		FailFast:      opts.failFast,
	})

	summary, runErr := runner.RunJobs(ctx, jobs)
	if summary != nil {
		printSummary(stdout, path, runRoot, summary)
	}
	if runErr != nil {
		return runErr
	}

	switch {
	case summary.Errored > 0:
		return fmt.Errorf("%s: %d of %d jobs failed", path, summary.Errored, summary.TotalJobs)
	case summary.NotReproduced > 0:
		return fmt.Errorf("%s: %d of %d jobs: %w", path, summary.NotReproduced, summary.TotalJobs, campaign.ErrNoFailure)
	}
	return nil
}

func printSummary(w io.Writer, path, runRoot string, s *campaign.Summary) {
	fmt.Fprintf(w, "=== %s ===\n", path)
	fmt.Fprintf(w, "Duration:        %s\n", time.Duration(s.DurationMs)*time.Millisecond)
	fmt.Fprintf(w, "Jobs:            %d\n", s.TotalJobs)
	fmt.Fprintf(w, "Reproduced:      %d\n", s.Reproduced)
	fmt.Fprintf(w, "Not reproduced:  %d\n", s.NotReproduced)
	fmt.Fprintf(w, "Errored:         %d\n", s.Errored)
	fmt.Fprintf(w, "Unique failures: %d\n", s.UniqueFailures)
	fmt.Fprintf(w, "Bytes:           %s -> %s\n",
		humanize.Bytes(uint64(s.BytesBefore)), humanize.Bytes(uint64(s.BytesAfter)))
	fmt.Fprintf(w, "Artifacts:       %s\n", runRoot)

	for _, run := range s.Runs {
		switch {
		case run.Error != "":
			fmt.Fprintf(w, "  - %s: error: %s\n", run.Job, run.Error)
		case !run.Reproduced:
			fmt.Fprintf(w, "  - %s: does not reproduce\n", run.Job)
		default:
			dup := ""
			if run.Duplicate {
				dup = " (known)"
			}
			fmt.Fprintf(w, "  - %s: %s -> %s, fingerprint %s%s\n", run.Job,
				humanize.Bytes(uint64(run.OriginalSize)), humanize.Bytes(uint64(run.MinimizedSize)),
				run.Fingerprint, dup)
		}
	}
}
