package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/lucasnoah/testbridge/internal/artifacts"
	"github.com/lucasnoah/testbridge/internal/db"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past runs",
	Long: `List past runs, newest first. Runs come from the history database when one
is configured, otherwise from the run artifacts on disk.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		flaky, _ := cmd.Flags().GetBool("flaky")
		out := cmd.OutOrStdout()

		if cfg.History.DatabaseURL == "" {
			if flaky {
				return fmt.Errorf("--flaky needs a history database")
			}
			runs, err := artifacts.NewStore(cfg.Artifacts.Dir).List()
			if err != nil {
				return err
			}
			if limit > 0 && len(runs) > limit {
				runs = runs[:limit]
			}
			rows := make([]db.RunRecord, len(runs))
			for i, r := range runs {
				rows[i] = db.RunRecord{
					ID: r.ID, Framework: r.Framework, Success: r.Success, Error: r.Error,
					StartedAt: r.StartedAt, Duration: r.Duration(), Summary: r.Summary,
				}
			}
			printHistory(out, rows)
			return nil
		}

		d, err := openDB(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer d.Close()

		if flaky {
			fw, _ := cmd.Flags().GetString("framework")
			if fw == "" {
				fw = cfg.Project.Framework
			}
			tests, err := d.FlakyTests(cmd.Context(), fw, limit)
			if err != nil {
				return err
			}
			printFlaky(out, tests)
			return nil
		}

		runs, err := d.ListRuns(cmd.Context(), limit)
		if err != nil {
			return err
		}
		printHistory(out, runs)
		return nil
	},
}

func printHistory(w io.Writer, runs []db.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Run", "Started", "Framework", "Result", "Passed", "Failed", "Skipped", "Duration"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	for _, r := range runs {
		table.Append([]string{
			r.ID,
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.Framework,
			runVerdict(r),
			strconv.Itoa(r.Summary.Passed),
			strconv.Itoa(r.Summary.Failed),
			strconv.Itoa(r.Summary.Skipped),
			r.Duration.Round(time.Millisecond).String(),
		})
	}
	table.Render()
}

func runVerdict(r db.RunRecord) string {
	switch {
	case r.Error != "":
		return failColor.Sprint("ERROR")
	case !r.Success || r.Summary.Failed > 0:
		return failColor.Sprint("FAIL")
	}
	return passColor.Sprint("PASS")
}

func printFlaky(w io.Writer, tests []db.FlakyTest) {
	if len(tests) == 0 {
		fmt.Fprintln(w, "No flaky tests found.")
		return
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Test", "Runs", "Failures"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	for _, t := range tests {
		table.Append([]string{t.Name, strconv.Itoa(t.Runs), strconv.Itoa(t.Failures)})
	}
	table.Render()
}

func init() {
	historyCmd.Flags().Int("limit", 20, "number of runs to show (0 for all)")
	historyCmd.Flags().Bool("flaky", false, "list tests that both passed and failed within the last --limit runs")
	historyCmd.Flags().String("framework", "", "framework for --flaky (default: configured framework)")
}
