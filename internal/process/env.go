package process

import (
	"os"
	"sort"
	"strings"
)

// SearchPathVariable is the environment variable Python consults for
// additional import locations.
const SearchPathVariable = "PYTHONPATH"

// BuildEnv returns a copy of base in which variable holds the extra entries
// followed by its previous value, joined with the OS path-list separator.
// base itself and the calling process environment are left untouched.
func BuildEnv(base []string, variable string, extra []string) []string {
	var old string
	for _, kv := range base {
		if key, value, ok := strings.Cut(kv, "="); ok && key == variable {
			old = value
		}
	}

	entries := append([]string(nil), extra...)
	if old != "" {
		entries = append(entries, old)
	}
	if len(entries) == 0 {
		return unsetEnv(base, variable)
	}
	return MergeEnv(base, map[string]string{
		variable: strings.Join(entries, string(os.PathListSeparator)),
	})
}

func unsetEnv(base []string, variable string) []string {
	out := make([]string, 0, len(base))
	for _, kv := range base {
		if key, _, _ := strings.Cut(kv, "="); key == variable {
			continue
		}
		out = append(out, kv)
	}
	return out
}

// MergeEnv returns a copy of base with overrides applied. Overridden keys are
// appended in sorted order so the result is deterministic.
func MergeEnv(base []string, overrides map[string]string) []string {
	out := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := overrides[key]; ok {
			continue
		}
		out = append(out, kv)
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+overrides[k])
	}
	return out
}
