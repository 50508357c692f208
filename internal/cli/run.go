package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/testbridge/internal/artifacts"
	"github.com/lucasnoah/testbridge/internal/config"
	"github.com/lucasnoah/testbridge/internal/metrics"
	"github.com/lucasnoah/testbridge/internal/process"
	"github.com/lucasnoah/testbridge/internal/result"
	"github.com/lucasnoah/testbridge/internal/testrun"
)

var runCmd = &cobra.Command{
	Use:   "run [workdir] [-- runner-args...]",
	Short: "Run the project's tests and report the results",
	Long: `Run pytest or nose in workdir (default: the configured project workdir),
print the parsed results, and keep them as a run artifact.

Arguments after -- are passed to the runner unchanged. Ctrl-C kills the
runner; a cancelled run produces no results.

The command exits non-zero when any test failed, when the runner reported a
broken session, or when its result file could not be parsed.`,
	SilenceUsage: true,
	RunE:         runTests,
}

type jsonRun struct {
	*artifacts.Run
	Output string `json:"output,omitempty"`
}

func runTests(cmd *cobra.Command, args []string) error {
	var extra []string
	if dash := cmd.ArgsLenAtDash(); dash >= 0 {
		extra = args[dash:]
		args = args[:dash]
	}
	if len(args) > 1 {
		return fmt.Errorf("accepts at most one workdir, got %d", len(args))
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rc, launchTimeout, err := buildRunConfig(cmd, cfg, args, extra)
	if err != nil {
		return err
	}

	format, _ := cmd.Flags().GetString("format")
	if format != "text" && format != "json" {
		return fmt.Errorf("unknown format %q (want text or json)", format)
	}
	verbose, _ := cmd.Flags().GetBool("verbose")
	stream, _ := cmd.Flags().GetBool("stream")
	textfile, _ := cmd.Flags().GetString("metrics-textfile")

	stderr := cmd.ErrOrStderr()
	if stream {
		rc.Stream = stderr
	}

	sup := process.NewSupervisor()
	sup.LaunchTimeout = launchTimeout
	collector := metrics.New()
	finished := make(chan testrun.Finished, 1)
	coord := testrun.NewCoordinator(
		testrun.SupervisorLauncher(sup),
		testrun.ListenerFunc(func(ev testrun.Finished) { finished <- ev }),
		testrun.WithMetrics(collector),
	)
	if verbose {
		sup.SetProgress(stderr)
		coord.SetProgress(stderr)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	id, err := coord.Start(ctx, rc)
	if err != nil {
		writeMetrics(collector, textfile, stderr)
		return err
	}

	settled := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			coord.KillIfRunning()
		case <-settled:
		}
	}()
	err = coord.Wait(context.Background())
	close(settled)
	if err != nil {
		return err
	}

	if coord.State() == testrun.StateCancelled {
		writeMetrics(collector, textfile, stderr)
		return fmt.Errorf("run %s cancelled", id)
	}
	ev := <-finished
	writeMetrics(collector, textfile, stderr)

	store := artifacts.NewStore(cfg.Artifacts.Dir)
	run, err := store.Save(ev)
	if err != nil {
		fmt.Fprintf(stderr, "warning: could not save run artifacts: %v\n", err)
		run = artifacts.FromFinished(ev)
	}
	if cfg.History.DatabaseURL != "" {
		if err := recordHistory(context.Background(), cfg, run); err != nil {
			fmt.Fprintf(stderr, "warning: could not record run history: %v\n", err)
		}
	}

	out := cmd.OutOrStdout()
	if format == "json" {
		if err := writeJSON(out, jsonRun{Run: run, Output: run.Output}); err != nil {
			return err
		}
	} else {
		printRun(out, run, verbose, !stream)
	}

	return runError(ev)
}

// buildRunConfig merges the config file's project section with command-line
// flags, which take precedence.
func buildRunConfig(cmd *cobra.Command, cfg *config.Config, args, extra []string) (testrun.RunConfig, time.Duration, error) {
	p := cfg.Project
	flags := cmd.Flags()

	if len(args) == 1 {
		p.WorkDir = args[0]
	}
	if flags.Changed("framework") {
		p.Framework, _ = flags.GetString("framework")
	}
	if flags.Changed("interpreter") {
		p.Interpreter, _ = flags.GetString("interpreter")
	}
	if flags.Changed("search-path") {
		p.SearchPaths, _ = flags.GetStringArray("search-path")
	}
	if flags.Changed("result-file") {
		p.ResultFile, _ = flags.GetString("result-file")
	}
	if flags.Changed("timeout") {
		p.Timeout, _ = flags.GetString("timeout")
	}

	timeout, err := p.TimeoutDuration()
	if err != nil {
		return testrun.RunConfig{}, 0, fmt.Errorf("timeout: %w", err)
	}
	launchTimeout, err := p.LaunchTimeoutDuration()
	if err != nil {
		return testrun.RunConfig{}, 0, fmt.Errorf("launch timeout: %w", err)
	}
	if launchTimeout == 0 {
		launchTimeout = process.DefaultLaunchTimeout
	}

	return testrun.RunConfig{
		WorkDir:     p.WorkDir,
		Framework:   p.Framework,
		Interpreter: p.Interpreter,
		SearchPaths: p.SearchPaths,
		ExtraArgs:   append(append([]string{}, p.ExtraArgs...), extra...),
		ResultFile:  p.ResultFile,
		Timeout:     timeout,
	}, launchTimeout, nil
}

// runError turns a finished run into the command's exit status.
func runError(ev testrun.Finished) error {
	if ev.Err != nil {
		return fmt.Errorf("run %s: %w", ev.RunID, ev.Err)
	}
	if ev.TimedOut {
		return fmt.Errorf("run %s timed out after %s", ev.RunID, ev.Duration)
	}
	if !ev.Success {
		return fmt.Errorf("run %s: runner reported failure (exit code %d)", ev.RunID, ev.ExitCode)
	}
	if n := result.Summarize(ev.Results).Failed; n > 0 {
		return fmt.Errorf("run %s: %d test(s) failed", ev.RunID, n)
	}
	return nil
}

func writeMetrics(c *metrics.Collector, path string, stderr io.Writer) {
	if path == "" {
		return
	}
	if err := c.WriteTextfile(path); err != nil {
		fmt.Fprintf(stderr, "warning: %v\n", err)
	}
}

func init() {
	f := runCmd.Flags()
	f.String("framework", "", "test runner: pytest, py.test, nose or nosetests")
	f.String("interpreter", "", "python interpreter for running nose as a module")
	f.StringArray("search-path", nil, "directory to prepend to PYTHONPATH (repeatable)")
	f.String("result-file", "", "where the runner writes its XML results (default <tmp>/unittest.results)")
	f.String("timeout", "", "kill the runner after this long, e.g. 10m")
	f.Bool("stream", false, "stream runner output to stderr while it runs")
	f.String("format", "text", "output format: text or json")
	f.String("metrics-textfile", "", "write Prometheus metrics for this run to a textfile")
	f.BoolP("verbose", "v", false, "log progress and show details of skipped tests")
}
