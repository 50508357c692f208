// Package testrun orchestrates a single test run: it picks the runner
// adapter, launches the runner through a supervisor, parses the result file
// once the runner exits, and notifies a listener.
package testrun

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lucasnoah/testbridge/internal/framework"
	"github.com/lucasnoah/testbridge/internal/junit"
	"github.com/lucasnoah/testbridge/internal/metrics"
	"github.com/lucasnoah/testbridge/internal/process"
	"github.com/lucasnoah/testbridge/internal/result"
)

// ErrAlreadyRunning is returned by Start while a previous run has not
// settled.
var ErrAlreadyRunning = errors.New("a test run is already in progress")

// DefaultResultFileName is the result file created in the temp directory
// when RunConfig.ResultFile is empty.
const DefaultResultFileName = "unittest.results"

// DefaultResultFile returns the result file path used when none is
// configured.
func DefaultResultFile() string {
	return filepath.Join(os.TempDir(), DefaultResultFileName)
}

// State is the coordinator's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateFinished
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateFinished:
		return "finished"
	case StateCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// RunConfig selects what to run and where.
type RunConfig struct {
	WorkDir   string
	Framework string
	// Interpreter switches nose to module form (python -m nose).
	Interpreter string
	// SearchPaths are prepended to PYTHONPATH for the child only.
	SearchPaths []string
	ExtraArgs   []string
	ResultFile  string
	Timeout     time.Duration
	// Stream receives the runner's merged output live.
	Stream io.Writer
}

// Finished is the notification sent to the listener when a run that was not
// cancelled has ended.
type Finished struct {
	RunID     string
	Framework framework.Kind
	WorkDir   string
	Results   []result.Record
	// Output is the runner's merged stdout and stderr.
	Output string
	// Success is the process-level verdict. Runners whose result file is
	// authoritative always report true unless parsing failed.
	Success bool
	// Err carries a malformed result file or a failure waiting on the
	// runner. Output is still populated.
	Err       error
	ExitCode  int
	TimedOut  bool
	StartedAt time.Time
	Duration  time.Duration
}

// Listener receives finished notifications.
type Listener interface {
	RunFinished(Finished)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Finished)

func (f ListenerFunc) RunFinished(ev Finished) { f(ev) }

// Handle is a launched runner process.
type Handle interface {
	Done() <-chan struct{}
	Completion() process.Completion
	Cancel()
}

// Launcher starts runner processes.
type Launcher interface {
	Launch(ctx context.Context, spec process.Spec) (Handle, error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context, spec process.Spec) (Handle, error)

func (f LauncherFunc) Launch(ctx context.Context, spec process.Spec) (Handle, error) {
	return f(ctx, spec)
}

// SupervisorLauncher launches runners through a process.Supervisor.
func SupervisorLauncher(s *process.Supervisor) Launcher {
	return LauncherFunc(func(ctx context.Context, spec process.Spec) (Handle, error) {
		p, err := s.Start(ctx, spec)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
}

// Metrics receives run observations.
type Metrics interface {
	ObserveRun(framework, outcome string, duration time.Duration)
	ObserveResults(framework string, records []result.Record)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithDispatcher makes the coordinator hand listener calls to dispatch, so a
// host event loop can run them on its own goroutine. By default the listener
// runs on the goroutine that observed the runner exit.
func WithDispatcher(dispatch func(func())) Option {
	return func(c *Coordinator) { c.dispatch = dispatch }
}

// WithMetrics records every settled run in m.
func WithMetrics(m Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithBaseEnv sets the environment the child environment is derived from.
// It defaults to os.Environ.
func WithBaseEnv(env func() []string) Option {
	return func(c *Coordinator) { c.baseEnv = env }
}

// Coordinator runs at most one test run at a time.
type Coordinator struct {
	launcher Launcher
	listener Listener
	dispatch func(func())
	metrics  Metrics
	baseEnv  func() []string
	progress io.Writer

	mu        sync.Mutex
	state     State
	launching bool
	current   *run
	last      *run
}

type run struct {
	id         string
	adapter    framework.Adapter
	workDir    string
	resultFile string
	handle     Handle
	startedAt  time.Time
	cancelled  bool
	completing bool
	settled    chan struct{}
}

// NewCoordinator creates a Coordinator that launches runners with launcher
// and reports finished runs to listener.
func NewCoordinator(launcher Launcher, listener Listener, opts ...Option) *Coordinator {
	c := &Coordinator{
		launcher: launcher,
		listener: listener,
		dispatch: func(f func()) { f() },
		baseEnv:  os.Environ,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetProgress sets the writer for progress logging.
func (c *Coordinator) SetProgress(w io.Writer) {
	c.progress = w
}

func (c *Coordinator) logf(format string, args ...interface{}) {
	if c.progress != nil {
		fmt.Fprintf(c.progress, format+"\n", args...)
	}
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start launches a run and returns its ID once the runner is confirmed
// running. Configuration and launch errors are returned here and leave the
// coordinator idle. The lock is not held while the runner launches, so State
// and KillIfRunning stay responsive.
func (c *Coordinator) Start(ctx context.Context, cfg RunConfig) (string, error) {
	c.mu.Lock()
	if c.current != nil || c.launching {
		c.mu.Unlock()
		return "", ErrAlreadyRunning
	}

	adapter, err := framework.Lookup(cfg.Framework)
	if err != nil {
		c.mu.Unlock()
		return "", err
	}

	resultFile := cfg.ResultFile
	if resultFile == "" {
		resultFile = DefaultResultFile()
	}

	cmd := adapter.Command(framework.Invocation{
		Interpreter: cfg.Interpreter,
		ExtraArgs:   cfg.ExtraArgs,
	}, resultFile)

	spec := process.Spec{
		Executable: cmd.Executable,
		Args:       cmd.Args,
		Dir:        cfg.WorkDir,
		Env:        process.BuildEnv(c.baseEnv(), process.SearchPathVariable, cfg.SearchPaths),
		ResultFile: resultFile,
		Timeout:    cfg.Timeout,
		Stream:     cfg.Stream,
	}
	c.launching = true
	c.mu.Unlock()

	handle, err := c.launcher.Launch(ctx, spec)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.launching = false
	if err != nil {
		c.state = StateIdle
		c.observeRun(adapter.Kind, metrics.OutcomeLaunchError, 0)
		return "", err
	}

	r := &run{
		id:         uuid.New().String(),
		adapter:    adapter,
		workDir:    cfg.WorkDir,
		resultFile: resultFile,
		handle:     handle,
		startedAt:  time.Now(),
		settled:    make(chan struct{}),
	}
	c.current = r
	c.last = r
	c.state = StateRunning
	c.logf("run %s: started %s %v in %s", r.id, cmd.Executable, cmd.Args, cfg.WorkDir)

	go c.await(r)
	return r.id, nil
}

// KillIfRunning cancels the current run. The runner is killed and no
// finished notification is sent for it. It does nothing unless a run is in
// progress.
func (c *Coordinator) KillIfRunning() {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.current
	if c.state != StateRunning || r == nil || r.completing {
		return
	}
	r.cancelled = true
	c.state = StateCancelled
	r.handle.Cancel()
	c.logf("run %s: cancelled", r.id)
}

// Wait blocks until the most recent run has settled: its runner has exited
// and, unless it was cancelled, the listener has been handed the result.
func (c *Coordinator) Wait(ctx context.Context) error {
	c.mu.Lock()
	r := c.last
	c.mu.Unlock()
	if r == nil {
		return nil
	}

	select {
	case <-r.settled:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) await(r *run) {
	<-r.handle.Done()
	comp := r.handle.Completion()

	c.mu.Lock()
	cancelled := r.cancelled
	if !cancelled {
		r.completing = true
	}
	c.mu.Unlock()

	if cancelled {
		c.observeRun(r.adapter.Kind, metrics.OutcomeCancelled, comp.Duration)
		c.logf("run %s: runner exited after cancel", r.id)
		c.settle(r, StateCancelled)
		close(r.settled)
		return
	}

	ev := c.collect(r, comp)
	c.observeFinished(ev)
	c.settle(r, StateFinished)
	c.logf("run %s: finished with %d results (success=%v)", r.id, len(ev.Results), ev.Success)

	c.dispatch(func() {
		if c.listener != nil {
			c.listener.RunFinished(ev)
		}
	})
	close(r.settled)
}

// collect reads the result file of a run whose runner has exited.
func (c *Coordinator) collect(r *run, comp process.Completion) Finished {
	ev := Finished{
		RunID:     r.id,
		Framework: r.adapter.Kind,
		WorkDir:   r.workDir,
		Output:    comp.Output,
		ExitCode:  comp.ExitCode,
		TimedOut:  comp.TimedOut,
		StartedAt: r.startedAt,
		Duration:  comp.Duration,
		Success:   r.adapter.Success(comp.ExitCode) && !comp.TimedOut,
	}

	records, err := junit.ParseFile(r.resultFile, r.adapter.Dialect)
	switch {
	case err != nil:
		ev.Err = err
		ev.Success = false
	case comp.Err != nil:
		ev.Err = fmt.Errorf("runner process: %w", comp.Err)
		ev.Success = false
	}
	ev.Results = records
	return ev
}

func (c *Coordinator) settle(r *run, state State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == r {
		c.current = nil
		c.state = state
	}
}

func (c *Coordinator) observeRun(kind framework.Kind, outcome string, d time.Duration) {
	if c.metrics != nil {
		c.metrics.ObserveRun(string(kind), outcome, d)
	}
}

func (c *Coordinator) observeFinished(ev Finished) {
	if c.metrics == nil {
		return
	}
	c.metrics.ObserveResults(string(ev.Framework), ev.Results)
	c.observeRun(ev.Framework, Outcome(ev), ev.Duration)
}

// Outcome classifies a finished run for reporting: passed, failed or error.
func Outcome(ev Finished) string {
	if ev.Err != nil {
		return metrics.OutcomeError
	}
	if !ev.Success || result.Summarize(ev.Results).Failed > 0 {
		return metrics.OutcomeFailed
	}
	return metrics.OutcomePassed
}
