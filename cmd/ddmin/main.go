// Package main implements the ddmin CLI.
//
// ddmin shrinks an input that makes a program fail to a smaller input that
// still makes it fail, using delta debugging.
//
// Usage:
//
//	ddmin minimize ./bin/parse crash.json
//	ddmin minimize --file --fail-exit-code=139 ./bin/parse crash.json -- --strict <INPUT>
//	ddmin run jobs.yaml
//	ddmin plan crash.json --split 4
//	ddmin show ddmin-runs/parse/<run-id>
//
// Exit codes: 0 on success, 2 when an input does not reproduce the failure,
// 1 on any other error.
//
// Environment:
//
//	DDMIN_RUN_ROOT: overrides run_root in job files
//	DDMIN_LOG_LEVEL: overrides log_level in job files
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aalhour/deltamin/internal/campaign"
	"github.com/aalhour/deltamin/internal/logging"
)

// Process exit codes.
const (
	exitOK            = 0
	exitError         = 1
	exitNotReproduced = 2
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "\nreceived signal %v, cancelling...\n", sig)
		cancel()
	}()

	err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	cancel()
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, campaign.ErrNoFailure):
		return exitNotReproduced
	default:
		return exitError
	}
}

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	logLevel  string
	logFormat string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "ddmin",
		Short: "Minimize failure-inducing inputs by delta debugging",
		Long: `ddmin repeatedly runs a target program on smaller pieces of a failing
input and keeps the smallest piece that still fails.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&opts.logLevel, "log-level", "info", "Log level: error, warn, info, debug")
	pf.StringVar(&opts.logFormat, "log-format", "text", "Log format: text or json")

	root.AddCommand(
		newMinimizeCmd(opts),
		newRunCmd(opts),
		newPlanCmd(),
		newShowCmd(),
	)
	return root
}

// newLogger builds the logger selected by the global flags. A Fatalf on the
// returned logger calls onFatal. The returned function flushes buffered entries.
func (o *globalOptions) newLogger(w io.Writer, onFatal func()) (logging.Logger, func(), error) {
	level, err := logging.ParseLevel(o.logLevel)
	if err != nil {
		return nil, nil, err
	}
	handler := func(string) { onFatal() }

	switch o.logFormat {
	case "", "text":
		l := logging.NewLogger(w, level)
		l.SetFatalHandler(handler)
		return l, func() {}, nil
	case "json":
		l := logging.NewJSONLogger(w, level)
		l.SetFatalHandler(handler)
		return l, func() { _ = l.Sync() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown log format %q (want text or json)", o.logFormat)
	}
}
