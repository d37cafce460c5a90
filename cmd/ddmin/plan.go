package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/aalhour/deltamin/internal/ddmin"
)

// previewLen caps the bytes shown per candidate.
const previewLen = 40

func newPlanCmd() *cobra.Command {
	var (
		split     int
		partition bool
	)

	cmd := &cobra.Command{
		Use:   "plan INPUT",
		Short: "Print the candidates tested at one reduction level",
		Long: `Prints, in test order, the candidates ddmin tries when INPUT fails at
granularity --split: the empty input, then the chunks and complements at
--split, 2x--split, ... chunks. With --partition only the chunks and
complements at exactly --split chunks are shown.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if split < 1 {
				return fmt.Errorf("--split must be >= 1, got %d", split)
			}

			var candidates []ddmin.Candidate
			if partition {
				candidates = ddmin.Partition(input, split)
			} else {
				candidates = ddmin.Candidates(input, split)
			}
			printPlan(cmd.OutOrStdout(), len(input), candidates)
			return nil
		},
	}

	cmd.Flags().IntVar(&split, "split", ddmin.DefaultSplit, "Granularity of the level")
	cmd.Flags().BoolVar(&partition, "partition", false, "Show a single partition instead of the whole level")
	return cmd
}

func printPlan(w io.Writer, size int, candidates []ddmin.Candidate) {
	fmt.Fprintf(w, "input: %d bytes, %d candidates\n", size, len(candidates))
	for i, c := range candidates {
		preview := c.Input
		suffix := ""
		if len(preview) > previewLen {
			preview, suffix = preview[:previewLen], "..."
		}
		fmt.Fprintf(w, "%4d  size=%-6d split=%-4d %q%s\n", i, len(c.Input), c.Split, preview, suffix)
	}
}
