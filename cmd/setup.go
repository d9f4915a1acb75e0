package cmd

import (
	"fmt"
	"os"
	"strconv"

	"clipmux/infrastructure/config"
	"clipmux/infrastructure/system"

	"github.com/AlecAivazis/survey/v2"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// Prompter interface for interactive prompts (allows mocking in tests)
type Prompter interface {
	Input(message string, defaultValue string) (string, error)
	Confirm(message string, defaultValue bool) (bool, error)
}

// SurveyPrompter implements Prompter using the survey library
type SurveyPrompter struct{}

func (p *SurveyPrompter) Input(message string, defaultValue string) (string, error) {
	result := ""
	prompt := &survey.Input{
		Message: message,
		Default: defaultValue,
	}
	if err := survey.AskOne(prompt, &result); err != nil {
		return "", err
	}
	return result, nil
}

func (p *SurveyPrompter) Confirm(message string, defaultValue bool) (bool, error) {
	result := defaultValue
	prompt := &survey.Confirm{
		Message: message,
		Default: defaultValue,
	}
	if err := survey.AskOne(prompt, &result); err != nil {
		return false, err
	}
	return result, nil
}

// DefaultPrompter is the prompter used in production
var DefaultPrompter Prompter = &SurveyPrompter{}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create configuration file interactively",
	Long: `Prompts for configuration values and creates the config file.

Files ending in .toml are written as TOML, anything else as YAML.`,
	RunE: runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if path == "" {
		path = config.DefaultPath
	}
	return RunSetupWithPrompter(DefaultPrompter, path, os.Stdout)
}

// RunSetupWithPrompter runs the setup with a given prompter (for testing)
func RunSetupWithPrompter(prompter Prompter, configPath string, out OutputWriter) error {
	// Check if config already exists
	if _, err := os.Stat(configPath); err == nil {
		overwrite, err := prompter.Confirm(fmt.Sprintf("%s already exists. Overwrite?", configPath), false)
		if err != nil {
			return fmt.Errorf("prompt cancelled")
		}
		if !overwrite {
			fmt.Fprintln(out, "Setup cancelled.")
			return nil
		}
	}

	fmt.Fprintln(out, "Welcome to clipmux setup!")
	fmt.Fprintln(out)

	cfg := config.Default()

	if err := promptPaths(prompter, &cfg); err != nil {
		return err
	}

	if err := promptEngine(prompter, &cfg); err != nil {
		return err
	}

	if err := promptLog(prompter, &cfg); err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := config.Save(&cfg, configPath); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Configuration saved to %s\n", configPath)
	return nil
}

func promptPaths(prompter Prompter, cfg *config.Config) error {
	output, err := prompter.Input("Where should trimmed files go? (empty: next to the source)", "")
	if err != nil {
		return fmt.Errorf("prompt cancelled")
	}
	cfg.Paths.OutputDirectory = output

	db, err := prompter.Input("History database file? (empty disables history)", cfg.Paths.HistoryDatabase)
	if err != nil {
		return fmt.Errorf("prompt cancelled")
	}
	cfg.Paths.HistoryDatabase = db

	return nil
}

func promptEngine(prompter Prompter, cfg *config.Config) error {
	workers, err := prompter.Input(
		fmt.Sprintf("How many trims may run at once? (0: one per CPU, %d here)", system.ProcessingUnits()), "0")
	if err != nil {
		return fmt.Errorf("prompt cancelled")
	}
	if workers == "" {
		workers = "0"
	}
	n, err := strconv.Atoi(workers)
	if err != nil || n < 0 {
		return fmt.Errorf("workers must be a non-negative number")
	}
	cfg.Engine.Workers = n

	buffer, err := prompter.Input("Sample buffer size?", humanize.IBytes(uint64(cfg.Engine.BufferSize)))
	if err != nil {
		return fmt.Errorf("prompt cancelled")
	}
	if buffer != "" {
		size, err := humanize.ParseBytes(buffer)
		if err != nil || size == 0 {
			return fmt.Errorf("invalid buffer size %q", buffer)
		}
		cfg.Engine.BufferSize = int(size)
	}

	eager, err := prompter.Confirm("Report progress for the sample that closes the window?", false)
	if err != nil {
		return fmt.Errorf("prompt cancelled")
	}
	cfg.Engine.EagerProgress = eager

	return nil
}

func promptLog(prompter Prompter, cfg *config.Config) error {
	level, err := prompter.Input("Log level (debug, info, warn, error)?", "info")
	if err != nil {
		return fmt.Errorf("prompt cancelled")
	}
	if level != "" {
		cfg.Log.Level = level
	}

	jsonLogs, err := prompter.Confirm("Write logs as JSON?", false)
	if err != nil {
		return fmt.Errorf("prompt cancelled")
	}
	if jsonLogs {
		cfg.Log.Format = "json"
	}

	return nil
}
