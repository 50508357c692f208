// Package process owns the lifecycle of an external test-runner process:
// launch, merged output capture, cancellation and exit notification.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"sync"
	"time"
)

// DefaultLaunchTimeout bounds how long Start waits for the child to be
// confirmed running.
const DefaultLaunchTimeout = 30 * time.Second

// pipeDrainDelay caps how long output is drained after the child exits, in
// case a grandchild keeps the pipe open.
const pipeDrainDelay = 5 * time.Second

// Spec describes one child process.
type Spec struct {
	Executable string
	Args       []string
	// Dir is the working directory. It must exist.
	Dir string
	// Env is the complete child environment. Nil inherits the host's.
	Env []string
	// ResultFile is removed before launch so a stale file from a previous
	// run cannot be mistaken for this run's output.
	ResultFile string
	// Timeout kills the child when it elapses. Zero disables it.
	Timeout time.Duration
	// Stream, when set, receives the merged output as it is produced.
	Stream io.Writer
}

// LaunchError reports a child that could not be confirmed running.
type LaunchError struct {
	Executable string
	Err        error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s: %v", e.Executable, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// Completion is delivered once per process, after it exits.
type Completion struct {
	// Output is the merged stdout and stderr text.
	Output string
	// ExitCode is -1 when the process was terminated by a signal.
	ExitCode int
	// Err is set when waiting failed for a reason other than a non-zero
	// exit status.
	Err      error
	Killed   bool
	TimedOut bool
	Duration time.Duration
}

// Supervisor starts child processes.
type Supervisor struct {
	LaunchTimeout time.Duration
	progress      io.Writer
}

// NewSupervisor creates a Supervisor with the default launch timeout.
func NewSupervisor() *Supervisor {
	return &Supervisor{LaunchTimeout: DefaultLaunchTimeout}
}

// SetProgress sets the writer for progress logging.
func (s *Supervisor) SetProgress(w io.Writer) {
	s.progress = w
}

func (s *Supervisor) logf(format string, args ...interface{}) {
	if s.progress != nil {
		fmt.Fprintf(s.progress, format+"\n", args...)
	}
}

// Start launches the child described by spec and returns once it is
// confirmed running. Waiting for the launch is bounded by LaunchTimeout and
// by ctx; after that Start never blocks. Exit is reported through
// Process.Done.
func (s *Supervisor) Start(ctx context.Context, spec Spec) (*Process, error) {
	if spec.Dir != "" {
		info, err := os.Stat(spec.Dir)
		if err != nil {
			return nil, &LaunchError{Executable: spec.Executable, Err: fmt.Errorf("working directory: %w", err)}
		}
		if !info.IsDir() {
			return nil, &LaunchError{Executable: spec.Executable, Err: fmt.Errorf("working directory %s is not a directory", spec.Dir)}
		}
	}

	if spec.ResultFile != "" {
		if err := os.Remove(spec.ResultFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logf("could not remove stale result file %s: %v", spec.ResultFile, err)
		}
	}

	cmd := exec.Command(spec.Executable, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	cmd.WaitDelay = pipeDrainDelay

	out := &outputBuffer{}
	var w io.Writer = out
	if spec.Stream != nil {
		w = io.MultiWriter(out, spec.Stream)
	}
	cmd.Stdout = w
	cmd.Stderr = w

	if err := s.launch(ctx, cmd); err != nil {
		return nil, &LaunchError{Executable: spec.Executable, Err: err}
	}
	s.logf("started %s (pid %d) in %s", spec.Executable, cmd.Process.Pid, spec.Dir)

	p := &Process{
		cmd:     cmd,
		output:  out,
		started: time.Now(),
		done:    make(chan struct{}),
	}
	if spec.Timeout > 0 {
		p.timer = time.AfterFunc(spec.Timeout, p.expire)
	}
	go p.wait()
	return p, nil
}

// launch starts cmd and waits at most LaunchTimeout for the OS to confirm
// it. A child that starts after the deadline is killed and reaped.
func (s *Supervisor) launch(ctx context.Context, cmd *exec.Cmd) error {
	timeout := s.LaunchTimeout
	if timeout <= 0 {
		timeout = DefaultLaunchTimeout
	}

	started := make(chan error, 1)
	go func() { started <- cmd.Start() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	abandon := func() {
		go func() {
			if err := <-started; err == nil {
				_ = cmd.Process.Kill()
				_ = cmd.Wait()
			}
		}()
	}

	select {
	case err := <-started:
		return err
	case <-timer.C:
		abandon()
		return fmt.Errorf("not running after %s", timeout)
	case <-ctx.Done():
		abandon()
		return ctx.Err()
	}
}

// Process is a running (or exited) child.
type Process struct {
	cmd     *exec.Cmd
	output  *outputBuffer
	started time.Time
	timer   *time.Timer

	mu         sync.Mutex
	exited     bool
	killed     bool
	timedOut   bool
	completion Completion
	done       chan struct{}
}

// PID returns the operating-system process ID.
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// Running reports whether the child has not exited yet.
func (p *Process) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.exited
}

// Done is closed when the child has exited and its Completion is ready.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Completion returns the exit report. It is only meaningful after Done is
// closed.
func (p *Process) Completion() Completion {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.completion
}

// Output returns the merged output captured so far.
func (p *Process) Output() string {
	return p.output.String()
}

// Cancel kills the child if it is still running. Calling it again, or after
// the child exited, does nothing. The child may still be exiting when
// Cancel returns; Done reports when it is gone.
func (p *Process) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exited || p.killed {
		return
	}
	p.killed = true
	p.kill()
}

func (p *Process) expire() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exited || p.killed {
		return
	}
	p.timedOut = true
	p.kill()
}

// kill must be called with p.mu held.
func (p *Process) kill() {
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.completion.Err = fmt.Errorf("kill: %w", err)
	}
}

func (p *Process) wait() {
	err := p.cmd.Wait()
	duration := time.Since(p.started)
	if p.timer != nil {
		p.timer.Stop()
	}

	exitCode := -1
	if p.cmd.ProcessState != nil {
		exitCode = p.cmd.ProcessState.ExitCode()
	}

	p.mu.Lock()
	p.exited = true
	c := Completion{
		Output:   p.output.String(),
		ExitCode: exitCode,
		Err:      p.completion.Err,
		Killed:   p.killed,
		TimedOut: p.timedOut,
		Duration: duration,
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		c.Err = fmt.Errorf("wait: %w", err)
	}
	p.completion = c
	p.mu.Unlock()

	close(p.done)
}
