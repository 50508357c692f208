package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lucasnoah/testbridge/internal/config"
	"github.com/lucasnoah/testbridge/internal/framework"
	"github.com/lucasnoah/testbridge/internal/testrun"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Check and print the project configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration and print the runner command it produces",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if errs := config.Validate(cfg); len(errs) > 0 {
			cmd.Printf("%s has %d problem(s):\n", configSource(), len(errs))
			for _, e := range errs {
				cmd.Printf("  %s\n", e)
			}
			return fmt.Errorf("invalid configuration in %s", configSource())
		}

		// Validate has already accepted the framework name.
		adapter, _ := framework.Lookup(cfg.Project.Framework)
		resultFile := cfg.Project.ResultFile
		if resultFile == "" {
			resultFile = testrun.DefaultResultFile()
		}
		runner := adapter.Command(framework.Invocation{
			Interpreter: cfg.Project.Interpreter,
			ExtraArgs:   cfg.Project.ExtraArgs,
		}, resultFile)

		cmd.Println("Configuration is valid.")
		cmd.Printf("  source:  %s\n", configSource())
		cmd.Printf("  workdir: %s\n", cfg.Project.WorkDir)
		cmd.Printf("  runner:  %s %s\n", runner.Executable, strings.Join(runner.Args, " "))
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the configuration after defaults and overrides are applied",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("encode config: %w", err)
		}
		cmd.Printf("# %s\n%s", configSource(), data)
		return nil
	},
}

// configSource names where the active configuration came from.
func configSource() string {
	if configFile != "" {
		return configFile
	}
	if path := config.DefaultPath(); path != "" {
		return path
	}
	return "built-in defaults"
}

func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.Load(configFile)
	}
	return config.LoadDefault()
}

func init() {
	configCmd.AddCommand(configValidateCmd, configShowCmd)
}
