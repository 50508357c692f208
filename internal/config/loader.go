package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DatabaseURLEnv overrides history.database_url when set.
const DatabaseURLEnv = "TESTBRIDGE_DATABASE_URL"

const (
	defaultFramework     = "pytest"
	defaultLaunchTimeout = "30s"
)

// Load reads and parses a configuration from the given YAML file path.
// Relative workdir and search paths are resolved against the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	resolvePaths(&cfg, filepath.Dir(path))
	applyDefaults(&cfg)
	return &cfg, nil
}

// DefaultPath returns the first config file found in the standard
// locations: ./testbridge.yaml, then ~/.testbridge/config.yaml. It returns ""
// when neither exists.
func DefaultPath() string {
	candidates := []string{"testbridge.yaml"}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".testbridge", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// LoadDefault loads the file DefaultPath finds. When none exists the
// built-in defaults are returned.
func LoadDefault() (*Config, error) {
	if path := DefaultPath(); path != "" {
		return Load(path)
	}

	cfg := &Config{}
	applyDefaults(cfg)
	return cfg, nil
}

// DefaultArtifactsDir returns ~/.testbridge/runs, or a directory under the
// temp dir when the home directory is unknown.
func DefaultArtifactsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "testbridge", "runs")
	}
	return filepath.Join(home, ".testbridge", "runs")
}

// applyDefaults fills unset fields and applies environment overrides.
func applyDefaults(cfg *Config) {
	p := &cfg.Project

	if p.Framework == "" {
		p.Framework = defaultFramework
	}
	if p.WorkDir == "" {
		p.WorkDir = "."
	}
	if p.LaunchTimeout == "" {
		p.LaunchTimeout = defaultLaunchTimeout
	}

	if url := os.Getenv(DatabaseURLEnv); url != "" {
		cfg.History.DatabaseURL = url
	}

	if cfg.Artifacts.Dir == "" {
		cfg.Artifacts.Dir = DefaultArtifactsDir()
	}
}

func resolvePaths(cfg *Config, base string) {
	p := &cfg.Project
	if p.WorkDir != "" && !filepath.IsAbs(p.WorkDir) {
		p.WorkDir = filepath.Join(base, p.WorkDir)
	}
	for i, sp := range p.SearchPaths {
		if !filepath.IsAbs(sp) {
			p.SearchPaths[i] = filepath.Join(p.WorkDir, sp)
		}
	}
}

// TimeoutDuration parses project.timeout. Empty means no timeout.
func (p Project) TimeoutDuration() (time.Duration, error) {
	return parseDuration(p.Timeout)
}

// LaunchTimeoutDuration parses project.launch_timeout.
func (p Project) LaunchTimeoutDuration() (time.Duration, error) {
	return parseDuration(p.LaunchTimeout)
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parsing duration %q: %w", s, err)
	}
	return d, nil
}
