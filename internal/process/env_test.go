package process

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sep() string { return string(os.PathListSeparator) }

func TestBuildEnv_PrependsToExistingValue(t *testing.T) {
	base := []string{"HOME=/home/u", "PYTHONPATH=/site", "LANG=C"}
	got := BuildEnv(base, "PYTHONPATH", []string{"/a", "/b"})

	assert.Equal(t, []string{"HOME=/home/u", "LANG=C", "PYTHONPATH=/a" + sep() + "/b" + sep() + "/site"}, got)
	assert.Equal(t, []string{"HOME=/home/u", "PYTHONPATH=/site", "LANG=C"}, base, "base must not be modified")
}

func TestBuildEnv_SetsMissingVariable(t *testing.T) {
	got := BuildEnv([]string{"HOME=/home/u"}, "PYTHONPATH", []string{"/a"})
	assert.Equal(t, []string{"HOME=/home/u", "PYTHONPATH=/a"}, got)
}

func TestBuildEnv_EmptyExistingValue(t *testing.T) {
	got := BuildEnv([]string{"PYTHONPATH="}, "PYTHONPATH", []string{"/a"})
	assert.Equal(t, []string{"PYTHONPATH=/a"}, got)
}

func TestBuildEnv_NoExtraKeepsValue(t *testing.T) {
	got := BuildEnv([]string{"PYTHONPATH=/site", "X=1"}, "PYTHONPATH", nil)
	assert.Equal(t, []string{"X=1", "PYTHONPATH=/site"}, got)

	got = BuildEnv([]string{"X=1"}, "PYTHONPATH", nil)
	assert.Equal(t, []string{"X=1"}, got)
}

func TestBuildEnv_DuplicateEntriesCollapse(t *testing.T) {
	got := BuildEnv([]string{"PYTHONPATH=/old", "PYTHONPATH=/new"}, "PYTHONPATH", []string{"/a"})
	assert.Equal(t, []string{"PYTHONPATH=/a" + sep() + "/new"}, got)
}

func TestBuildEnv_DoesNotTouchHostEnvironment(t *testing.T) {
	t.Setenv("PYTHONPATH", "/host")
	_ = BuildEnv(os.Environ(), "PYTHONPATH", []string{"/a"})
	assert.Equal(t, "/host", os.Getenv("PYTHONPATH"))
}

func TestMergeEnv(t *testing.T) {
	got := MergeEnv([]string{"A=1", "B=2", "C=3"}, map[string]string{"C": "x", "B": "y", "D": "z"})
	assert.Equal(t, []string{"A=1", "B=y", "C=x", "D=z"}, got)
}

func TestBuildEnv_EmptyValueWithoutExtraIsDropped(t *testing.T) {
	got := BuildEnv([]string{"PYTHONPATH=", "X=1"}, "PYTHONPATH", nil)
	assert.Equal(t, []string{"X=1"}, got)
}
