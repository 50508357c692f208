// Package framework knows how to invoke each supported Python test runner
// and which result dialect it writes.
package framework

import (
	"fmt"
	"runtime"

	"github.com/lucasnoah/testbridge/internal/junit"
)

// Kind is the closed set of supported runners.
type Kind string

const (
	KindPytest Kind = "pytest"
	KindNose   Kind = "nose"
)

// ConfigurationError is returned for a framework name no adapter handles.
type ConfigurationError struct {
	Framework string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("unknown test framework %q (want pytest or nose)", e.Framework)
}

// Adapter binds a runner to its command line and result dialect.
type Adapter struct {
	Kind    Kind
	Dialect junit.Dialect
	// ReportsExitStatus is true when the runner's exit code says whether the
	// run itself succeeded. When false the result file alone is
	// authoritative.
	ReportsExitStatus bool
}

// Invocation carries the caller's choices about how the runner is started.
type Invocation struct {
	// Interpreter, when set, runs nose in module form (python -m nose).
	// Without it nose is started through its standalone executable.
	Interpreter string
	ExtraArgs   []string
}

// Command is an executable plus its ordered arguments.
type Command struct {
	Executable string
	Args       []string
}

var aliases = map[string]Kind{
	"pytest":    KindPytest,
	"py.test":   KindPytest,
	"nose":      KindNose,
	"nosetests": KindNose,
}

// Lookup returns the adapter for a framework name.
func Lookup(name string) (Adapter, error) {
	kind, ok := aliases[name]
	if !ok {
		return Adapter{}, &ConfigurationError{Framework: name}
	}
	return ForKind(kind)
}

// ForKind returns the adapter for a Kind.
func ForKind(kind Kind) (Adapter, error) {
	switch kind {
	case KindPytest:
		return Adapter{Kind: KindPytest, Dialect: junit.DialectSingle, ReportsExitStatus: true}, nil
	case KindNose:
		return Adapter{Kind: KindNose, Dialect: junit.DialectMulti}, nil
	}
	return Adapter{}, &ConfigurationError{Framework: string(kind)}
}

// Command builds the runner command line that writes JUnit XML to
// resultFile.
func (a Adapter) Command(inv Invocation, resultFile string) Command {
	var cmd Command
	switch a.Kind {
	case KindPytest:
		cmd = Command{
			Executable: executableName("py.test", runtime.GOOS),
			Args:       []string{"--junit-xml", resultFile},
		}
	case KindNose:
		xunit := []string{"--with-xunit", "--xunit-file=" + resultFile}
		if inv.Interpreter != "" {
			cmd = Command{
				Executable: inv.Interpreter,
				Args:       append([]string{"-m", "nose"}, xunit...),
			}
		} else {
			cmd = Command{
				Executable: executableName("nosetests", runtime.GOOS),
				Args:       xunit,
			}
		}
	}
	cmd.Args = append(cmd.Args, inv.ExtraArgs...)
	return cmd
}

// Success reports whether a finished runner process counts as a successful
// run. exitCode is -1 when the process was killed.
func (a Adapter) Success(exitCode int) bool {
	if !a.ReportsExitStatus {
		return true
	}
	// pytest: 0 all passed, 1 some tests failed. Anything else means the
	// session itself broke (interrupted, internal error, usage error, or
	// nothing collected).
	return exitCode == 0 || exitCode == 1
}

func executableName(base, goos string) string {
	if goos == "windows" {
		return base + ".exe"
	}
	return base
}
