package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/testbridge/internal/artifacts"
)

var showCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Show a stored run (default: the latest)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		withOutput, _ := cmd.Flags().GetBool("output")
		verbose, _ := cmd.Flags().GetBool("verbose")

		store := artifacts.NewStore(cfg.Artifacts.Dir)
		var run *artifacts.Run
		if len(args) == 1 {
			run, err = store.Load(args[0])
		} else {
			run, err = store.Latest()
		}
		if err != nil {
			return err
		}

		switch format {
		case "json":
			return writeJSON(cmd.OutOrStdout(), jsonRun{Run: run, Output: run.Output})
		case "text":
			printRun(cmd.OutOrStdout(), run, verbose, withOutput)
			return nil
		}
		return fmt.Errorf("unknown format %q (want text or json)", format)
	},
}

func init() {
	showCmd.Flags().String("format", "text", "output format: text or json")
	showCmd.Flags().Bool("output", false, "include the runner's captured output")
	showCmd.Flags().BoolP("verbose", "v", false, "show details of skipped tests")
}
