// Package artifacts keeps the output and parsed results of every finished
// run on disk, one directory per run ID.
package artifacts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/lucasnoah/testbridge/internal/result"
	"github.com/lucasnoah/testbridge/internal/testrun"
)

const (
	runFile    = "run.json"
	outputFile = "output.txt"
)

// ErrNoRuns is returned by Latest when the store is empty.
var ErrNoRuns = errors.New("no runs recorded")

// Run is the persisted form of a finished run.
type Run struct {
	ID         string          `json:"id"`
	Framework  string          `json:"framework"`
	WorkDir    string          `json:"workdir"`
	Success    bool            `json:"success"`
	ExitCode   int             `json:"exit_code"`
	TimedOut   bool            `json:"timed_out,omitempty"`
	Error      string          `json:"error,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	DurationMS int64           `json:"duration_ms"`
	Summary    result.Summary  `json:"summary"`
	Results    []result.Record `json:"results"`

	// Output is stored beside run.json and only filled by Load.
	Output string `json:"-"`
}

// Duration returns the runner's wall-clock time.
func (r *Run) Duration() time.Duration {
	return time.Duration(r.DurationMS) * time.Millisecond
}

// FromFinished converts a finished notification to its persisted form.
func FromFinished(ev testrun.Finished) *Run {
	run := &Run{
		ID:         ev.RunID,
		Framework:  string(ev.Framework),
		WorkDir:    ev.WorkDir,
		Success:    ev.Success,
		ExitCode:   ev.ExitCode,
		TimedOut:   ev.TimedOut,
		StartedAt:  ev.StartedAt.UTC(),
		DurationMS: ev.Duration.Milliseconds(),
		Summary:    result.Summarize(ev.Results),
		Results:    ev.Results,
		Output:     ev.Output,
	}
	if run.Results == nil {
		run.Results = []result.Record{}
	}
	if ev.Err != nil {
		run.Error = ev.Err.Error()
	}
	return run
}

// Store manages run artifacts on disk.
type Store struct {
	baseDir string
}

// NewStore creates a Store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// BaseDir returns the store's root directory.
func (s *Store) BaseDir() string {
	return s.baseDir
}

func (s *Store) runDir(id string) string {
	return filepath.Join(s.baseDir, id)
}

// Save writes a finished run's output and results.
func (s *Store) Save(ev testrun.Finished) (*Run, error) {
	if ev.RunID == "" {
		return nil, fmt.Errorf("save run: missing run ID")
	}
	run := FromFinished(ev)
	dir := s.runDir(run.ID)
	if err := writeAtomic(filepath.Join(dir, outputFile), []byte(run.Output)); err != nil {
		return nil, fmt.Errorf("write %s: %w", outputFile, err)
	}
	if err := writeJSON(filepath.Join(dir, runFile), run); err != nil {
		return nil, fmt.Errorf("write %s: %w", runFile, err)
	}
	return run, nil
}

// Load reads a run and its output.
func (s *Store) Load(id string) (*Run, error) {
	run, err := s.readRun(id)
	if err != nil {
		return nil, err
	}
	out, err := os.ReadFile(filepath.Join(s.runDir(id), outputFile))
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", outputFile, err)
	}
	run.Output = string(out)
	return run, nil
}

func (s *Store) readRun(id string) (*Run, error) {
	var run Run
	if err := readJSON(filepath.Join(s.runDir(id), runFile), &run); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("run %s not found", id)
		}
		return nil, err
	}
	return &run, nil
}

// List returns all stored runs, newest first, without their output.
func (s *Store) List() ([]Run, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir %s: %w", s.baseDir, err)
	}

	var runs []Run
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		run, err := s.readRun(entry.Name())
		if err != nil {
			continue // skip broken entries
		}
		runs = append(runs, *run)
	}

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return runs, nil
}

// Latest returns the most recently started run with its output.
func (s *Store) Latest() (*Run, error) {
	runs, err := s.List()
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrNoRuns
	}
	return s.Load(runs[0].ID)
}
