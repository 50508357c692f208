package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/lucasnoah/testbridge/internal/artifacts"
	"github.com/lucasnoah/testbridge/internal/result"
)

var (
	passColor = color.New(color.FgGreen, color.Bold)
	failColor = color.New(color.FgRed, color.Bold)
	skipColor = color.New(color.FgYellow)
	bold      = color.New(color.Bold)
)

func categoryLabel(c result.Category) string {
	switch c {
	case result.OK:
		return passColor.Sprint("PASS")
	case result.Fail:
		return failColor.Sprint("FAIL")
	case result.Skip:
		return skipColor.Sprint("SKIP")
	}
	return c.String()
}

// printResults renders records as a table followed by the detail of every
// failed test. With verbose set, skipped tests' details are shown too.
func printResults(w io.Writer, records []result.Record, verbose bool) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No test results.")
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Status", "Test", "Time", "Message"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetAutoWrapText(false)
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_LEFT})
	for _, r := range records {
		table.Append([]string{categoryLabel(r.Category), r.Name, fmt.Sprintf("%.3fs", r.Time), firstLine(r.Message)})
	}
	table.Render()

	for _, r := range records {
		if r.ExtraText == "" || (r.Category != result.Fail && !verbose) {
			continue
		}
		fmt.Fprintln(w)
		bold.Fprintf(w, "%s %s\n", categoryLabel(r.Category), r.Name)
		if r.Message != "" {
			fmt.Fprintln(w, r.Message)
		}
		fmt.Fprintln(w, indent(r.ExtraText, "    "))
	}
}

func printSummary(w io.Writer, s result.Summary) {
	c := passColor
	switch {
	case s.Failed > 0:
		c = failColor
	case s.Total == 0:
		c = skipColor
	}
	c.Fprintln(w, s.String())
}

// printRun renders a stored run: header, results, and summary. The runner
// output is included when withOutput is set.
func printRun(w io.Writer, run *artifacts.Run, verbose, withOutput bool) {
	bold.Fprintf(w, "Run %s (%s) in %s\n", run.ID, run.Framework, run.WorkDir)
	fmt.Fprintf(w, "Started %s, took %s, exit code %d\n\n",
		run.StartedAt.Local().Format("2006-01-02 15:04:05"), run.Duration(), run.ExitCode)

	if withOutput && run.Output != "" {
		bold.Fprintln(w, "Runner output:")
		fmt.Fprintln(w, strings.TrimRight(run.Output, "\n"))
		fmt.Fprintln(w)
	}

	printResults(w, run.Results, verbose)
	fmt.Fprintln(w)

	if run.TimedOut {
		failColor.Fprintln(w, "Runner timed out.")
	}
	if run.Error != "" {
		failColor.Fprintf(w, "Error: %s\n", run.Error)
	} else if !run.Success {
		failColor.Fprintf(w, "Runner reported failure (exit code %d).\n", run.ExitCode)
	}
	printSummary(w, run.Summary)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}
