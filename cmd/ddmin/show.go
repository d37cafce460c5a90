package main

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/aalhour/deltamin/internal/campaign"
)

func newShowCmd() *cobra.Command {
	var (
		raw   bool
		steps bool
	)

	cmd := &cobra.Command{
		Use:   "show RUN_DIR",
		Short: "Print a run artifact and its reproducer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runDir := args[0]
			artifact, err := campaign.ReadRunArtifact(runDir)
			if err != nil {
				return err
			}

			var repro []byte
			if artifact.Reproducer != "" {
				repro, err = campaign.ReadReproducer(filepath.Join(runDir, artifact.Reproducer))
				if err != nil {
					return err
				}
			}

			w := cmd.OutOrStdout()
			if raw {
				_, err := w.Write(repro)
				return err
			}
			printArtifact(w, artifact, repro, steps)
			return nil
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Write only the decoded reproducer bytes")
	cmd.Flags().BoolVar(&steps, "steps", false, "List every recorded oracle call")
	return cmd
}

func printArtifact(w io.Writer, a *campaign.RunArtifact, repro []byte, steps bool) {
	fmt.Fprintf(w, "run:         %s\n", a.RunID)
	fmt.Fprintf(w, "job:         %s\n", a.Job)
	fmt.Fprintf(w, "target:      %s %q\n", a.Target, a.Args)
	fmt.Fprintf(w, "input:       %s (%s, %s)\n", a.InputPath, a.InputMode, humanize.Bytes(uint64(a.OriginalSize)))
	fmt.Fprintf(w, "started:     %s (%s)\n", a.StartTime.Format(time.RFC3339), time.Duration(a.DurationMs)*time.Millisecond)
	fmt.Fprintf(w, "split:       %d, parallelism %d\n", a.Split, a.Parallelism)
	fmt.Fprintf(w, "oracle:      %d calls (%d failing, %d passing), max depth %d",
		a.Stats.OracleCalls, a.Stats.Failing, a.Stats.Passing, a.Stats.MaxDepth)
	if a.CacheHits > 0 {
		fmt.Fprintf(w, ", %d cache hits", a.CacheHits)
	}
	fmt.Fprintln(w)

	switch {
	case a.Error != "":
		fmt.Fprintf(w, "error:       %s\n", a.Error)
	case !a.Reproduced:
		fmt.Fprintln(w, "result:      input does not reproduce the failure")
	default:
		dup := ""
		if a.Duplicate {
			dup = " (known)"
		}
		fmt.Fprintf(w, "result:      %s -> %s\n", humanize.Bytes(uint64(a.OriginalSize)), humanize.Bytes(uint64(a.MinimizedSize)))
		fmt.Fprintf(w, "fingerprint: %s%s\n", a.Fingerprint, dup)
		fmt.Fprintf(w, "reproducer:  %s (%s)\n", a.Reproducer, a.Compression)
		fmt.Fprintf(w, "%q\n", repro)
	}

	if !steps {
		return
	}
	fmt.Fprintln(w, "steps:")
	for i, s := range a.Steps {
		verdict := "pass"
		if s.Fails {
			verdict = "FAIL"
		}
		fmt.Fprintf(w, "%6d  depth=%-3d split=%-5d size=%-8d %s %dms\n", i, s.Depth, s.Split, s.Size, verdict, s.DurationMs)
	}
	if a.StepsTruncated {
		fmt.Fprintln(w, "  (truncated)")
	}
}
