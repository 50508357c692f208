package config

// Config is the top-level configuration structure parsed from testbridge YAML.
type Config struct {
	Project   Project   `yaml:"project"`
	History   History   `yaml:"history"`
	Artifacts Artifacts `yaml:"artifacts"`
}

// Project describes how the project's tests are run.
type Project struct {
	Name        string   `yaml:"name"`
	WorkDir     string   `yaml:"workdir"`
	Framework   string   `yaml:"framework"`
	Interpreter string   `yaml:"interpreter"`
	SearchPaths []string `yaml:"search_paths"`
	ExtraArgs   []string `yaml:"extra_args"`
	ResultFile  string   `yaml:"result_file"`
	// Timeout and LaunchTimeout are Go durations ("10m", "30s"). An empty
	// Timeout means runs are never killed for running long.
	Timeout       string `yaml:"timeout"`
	LaunchTimeout string `yaml:"launch_timeout"`
}

// History configures the Postgres run history. It is disabled when
// DatabaseURL is empty.
type History struct {
	DatabaseURL string `yaml:"database_url"`
}

// Artifacts configures where run output and results are stored on disk.
type Artifacts struct {
	Dir string `yaml:"dir"`
}
