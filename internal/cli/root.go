package cli

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var (
	configFile string
	noColor    bool
)

var rootCmd = &cobra.Command{
	Use:   "testbridge",
	Short: "testbridge: run Python test suites and collect their results",
	Long: `testbridge launches pytest or nose in a project directory, captures the
runner's output, and reads the JUnit XML result file it writes into one
list of test results.

Runs are kept under ~/.testbridge/runs (JSON per run) and, when a database
URL is configured, recorded in Postgres for history and flaky-test queries.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to testbridge config file")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable coloured output")
	cobra.OnInitialize(func() {
		if noColor {
			color.NoColor = true
		}
	})

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
}
