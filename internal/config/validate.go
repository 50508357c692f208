package config

import (
	"fmt"
	"strings"

	"github.com/lucasnoah/testbridge/internal/framework"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks a Config for semantic errors.
// It returns a slice of all validation errors found (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError
	p := cfg.Project

	if p.Framework == "" {
		errs = append(errs, ValidationError{Field: "project.framework", Message: "is required"})
	} else if _, err := framework.Lookup(p.Framework); err != nil {
		errs = append(errs, ValidationError{
			Field:   "project.framework",
			Message: fmt.Sprintf("unrecognized framework %q", p.Framework),
		})
	}

	if p.Interpreter != "" {
		if adapter, err := framework.Lookup(p.Framework); err == nil && adapter.Kind != framework.KindNose {
			errs = append(errs, ValidationError{
				Field:   "project.interpreter",
				Message: "only used by nose",
			})
		}
	}

	for i, sp := range p.SearchPaths {
		if strings.TrimSpace(sp) == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("project.search_paths[%d]", i),
				Message: "is empty",
			})
		}
	}

	for _, d := range []struct {
		field string
		value string
	}{
		{"project.timeout", p.Timeout},
		{"project.launch_timeout", p.LaunchTimeout},
	} {
		v, err := parseDuration(d.value)
		switch {
		case err != nil:
			errs = append(errs, ValidationError{Field: d.field, Message: fmt.Sprintf("invalid duration %q", d.value)})
		case v < 0:
			errs = append(errs, ValidationError{Field: d.field, Message: "must not be negative"})
		}
	}

	if url := cfg.History.DatabaseURL; url != "" &&
		!strings.HasPrefix(url, "postgres://") && !strings.HasPrefix(url, "postgresql://") {
		errs = append(errs, ValidationError{
			Field:   "history.database_url",
			Message: "must be a postgres:// URL",
		})
	}

	return errs
}
