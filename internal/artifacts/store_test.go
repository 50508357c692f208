package artifacts

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lucasnoah/testbridge/internal/framework"
	"github.com/lucasnoah/testbridge/internal/result"
	"github.com/lucasnoah/testbridge/internal/testrun"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir())
}

func finished(id string, started time.Time) testrun.Finished {
	return testrun.Finished{
		RunID:     id,
		Framework: framework.KindPytest,
		WorkDir:   "/proj",
		Results: []result.Record{
			{Category: result.OK, Status: "ok", Name: "t.test_a", Time: 0.5},
			{Category: result.Fail, Status: "failure", Name: "t.test_b", Message: "AssertionError", ExtraText: "trace"},
		},
		Output:    "collected 2 items\n",
		Success:   true,
		ExitCode:  1,
		StartedAt: started,
		Duration:  1500 * time.Millisecond,
	}
}

func TestSaveAndLoad(t *testing.T) {
	s := newTestStore(t)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	saved, err := s.Save(finished("run-1", start))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.Summary.Total != 2 || saved.Summary.Failed != 1 {
		t.Errorf("Summary = %+v, want 2 total, 1 failed", saved.Summary)
	}

	got, err := s.Load("run-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Framework != "pytest" {
		t.Errorf("Framework = %q, want pytest", got.Framework)
	}
	if got.Output != "collected 2 items\n" {
		t.Errorf("Output = %q", got.Output)
	}
	if got.Duration() != 1500*time.Millisecond {
		t.Errorf("Duration = %v, want 1.5s", got.Duration())
	}
	if !got.StartedAt.Equal(start) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, start)
	}
	if len(got.Results) != 2 {
		t.Fatalf("len(Results) = %d, want 2", len(got.Results))
	}
	if got.Results[1] != saved.Results[1] {
		t.Errorf("Results[1] = %+v, want %+v", got.Results[1], saved.Results[1])
	}

	if _, err := os.Stat(filepath.Join(s.BaseDir(), "run-1", "output.txt")); err != nil {
		t.Errorf("output.txt missing: %v", err)
	}
}

func TestSaveRecordsError(t *testing.T) {
	s := newTestStore(t)
	ev := finished("run-err", time.Now())
	ev.Results = nil
	ev.Success = false
	ev.Err = errors.New("malformed result file")

	if _, err := s.Save(ev); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load("run-err")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Error != "malformed result file" {
		t.Errorf("Error = %q", got.Error)
	}
	if got.Results == nil || len(got.Results) != 0 {
		t.Errorf("Results = %v, want empty slice", got.Results)
	}
}

func TestSaveRequiresRunID(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Save(testrun.Finished{}); err == nil {
		t.Fatal("expected error for missing run ID")
	}
}

func TestLoadMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Load("nope")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("Load error = %v, want not found", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"b", "c", "a"} {
		if _, err := s.Save(finished(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
	}
	// Broken entries are skipped.
	if err := os.MkdirAll(filepath.Join(s.BaseDir(), "broken"), 0o755); err != nil {
		t.Fatal(err)
	}

	runs, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var ids []string
	for _, r := range runs {
		ids = append(ids, r.ID)
		if r.Output != "" {
			t.Errorf("List should not load output, got %q for %s", r.Output, r.ID)
		}
	}
	if strings.Join(ids, ",") != "a,c,b" {
		t.Errorf("List order = %v, want [a c b]", ids)
	}

	latest, err := s.Latest()
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.ID != "a" || latest.Output == "" {
		t.Errorf("Latest = %s (output %q), want a with output", latest.ID, latest.Output)
	}
}

func TestListMissingDir(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "none"))
	runs, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("List = %v, want empty", runs)
	}
	if _, err := s.Latest(); !errors.Is(err, ErrNoRuns) {
		t.Errorf("Latest error = %v, want ErrNoRuns", err)
	}
}

func TestWriteAtomicLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "run.json")
	if err := writeJSON(path, map[string]int{"n": 1}); err != nil {
		t.Fatalf("writeJSON: %v", err)
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "run.json" {
		t.Errorf("dir entries = %v, want only run.json", entries)
	}

	var got map[string]int
	if err := readJSON(path, &got); err != nil || got["n"] != 1 {
		t.Errorf("readJSON = %v, %v", got, err)
	}
}
