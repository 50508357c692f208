package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lucasnoah/testbridge/internal/framework"
	"github.com/lucasnoah/testbridge/internal/junit"
	"github.com/lucasnoah/testbridge/internal/result"
)

// maxParallelParse bounds how many result files are read at once.
const maxParallelParse = 8

var parseCmd = &cobra.Command{
	Use:   "parse <result-file>...",
	Short: "Parse existing JUnit XML result files",
	Long: `Parse one or more result files written by a previous pytest or nose run and
print their results in argument order.

The dialect is chosen with --dialect (single for pytest, multi for nose) or
derived from --framework. It defaults to single.`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		dialect, err := parseDialect(cmd)
		if err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		if format != "text" && format != "json" {
			return fmt.Errorf("unknown format %q (want text or json)", format)
		}
		verbose, _ := cmd.Flags().GetBool("verbose")

		parsed := make([][]result.Record, len(args))
		var g errgroup.Group
		g.SetLimit(maxParallelParse)
		for i, path := range args {
			g.Go(func() error {
				if _, err := os.Stat(path); err != nil {
					return fmt.Errorf("read result file: %w", err)
				}
				records, err := junit.ParseFile(path, dialect)
				if err != nil {
					return err
				}
				parsed[i] = records
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if format == "json" {
			type fileResults struct {
				File    string          `json:"file"`
				Summary result.Summary  `json:"summary"`
				Results []result.Record `json:"results"`
			}
			files := make([]fileResults, len(args))
			for i, path := range args {
				records := parsed[i]
				if records == nil {
					records = []result.Record{}
				}
				files[i] = fileResults{File: path, Summary: result.Summarize(records), Results: records}
			}
			return writeJSON(out, files)
		}

		for i, path := range args {
			if i > 0 {
				fmt.Fprintln(out)
			}
			bold.Fprintf(out, "== %s ==\n", path)
			printResults(out, parsed[i], verbose)
			printSummary(out, result.Summarize(parsed[i]))
		}
		return nil
	},
}

func parseDialect(cmd *cobra.Command) (junit.Dialect, error) {
	flags := cmd.Flags()
	if flags.Changed("dialect") && flags.Changed("framework") {
		return 0, fmt.Errorf("--dialect and --framework are mutually exclusive")
	}
	if flags.Changed("framework") {
		name, _ := flags.GetString("framework")
		adapter, err := framework.Lookup(name)
		if err != nil {
			return 0, err
		}
		return adapter.Dialect, nil
	}
	name, _ := flags.GetString("dialect")
	return junit.ParseDialect(name)
}

func init() {
	parseCmd.Flags().String("dialect", "single", "result dialect: single (pytest) or multi (nose)")
	parseCmd.Flags().String("framework", "", "derive the dialect from a runner name")
	parseCmd.Flags().String("format", "text", "output format: text or json")
	parseCmd.Flags().BoolP("verbose", "v", false, "show details of skipped tests")
}
