//go:build integration

package steps

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"clipmux/cmd"
	"clipmux/infrastructure/config"

	"github.com/cucumber/godog"
)

type setupContext struct {
	tempDir         string
	configPath      string
	originalContent string
	output          *bytes.Buffer
	err             error
}

var SharedSetupContext = &setupContext{}

// MockPrompter implements cmd.Prompter for testing
type MockPrompter struct {
	inputResponses   []string
	confirmResponses []bool
	inputIndex       int
	confirmIndex     int
}

func NewMockPrompter(inputs []string, confirms []bool) *MockPrompter {
	return &MockPrompter{
		inputResponses:   inputs,
		confirmResponses: confirms,
	}
}

func (m *MockPrompter) Input(message string, defaultValue string) (string, error) {
	if m.inputIndex >= len(m.inputResponses) {
		return defaultValue, nil
	}
	response := m.inputResponses[m.inputIndex]
	m.inputIndex++
	return response, nil
}

func (m *MockPrompter) Confirm(message string, defaultValue bool) (bool, error) {
	if m.confirmIndex >= len(m.confirmResponses) {
		return defaultValue, nil
	}
	response := m.confirmResponses[m.confirmIndex]
	m.confirmIndex++
	return response, nil
}

func InitializeSetupScenario(ctx *godog.ScenarioContext) {
	ctx.Before(func(c context.Context, sc *godog.Scenario) (context.Context, error) {
		tempDir, err := os.MkdirTemp("", "setup-test-*")
		if err != nil {
			return c, err
		}
		SharedSetupContext = &setupContext{
			tempDir:    tempDir,
			configPath: filepath.Join(tempDir, "config", "config.yaml"),
			output:     &bytes.Buffer{},
		}
		return c, nil
	})

	ctx.After(func(c context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		if SharedSetupContext.tempDir != "" {
			os.RemoveAll(SharedSetupContext.tempDir)
		}
		SharedSetupContext = &setupContext{}
		return c, nil
	})

	ctx.Step(`^no config file exists for setup$`, noConfigFileExistsForSetup)
	ctx.Step(`^a config file already exists for setup$`, aConfigFileAlreadyExistsForSetup)
	ctx.Step(`^I run the setup command with inputs:$`, iRunTheSetupCommandWithInputs)
	ctx.Step(`^I run the setup command with confirmation "([^"]*)"$`, iRunTheSetupCommandWithConfirmation)
	ctx.Step(`^the setup should fail with "([^"]*)"$`, theSetupShouldFailWith)
	ctx.Step(`^a config file should exist$`, aConfigFileShouldExist)
	ctx.Step(`^the saved config should have output directory "([^"]*)"$`, theSavedConfigShouldHaveOutputDirectory)
	ctx.Step(`^the saved config should have (\d+) workers$`, theSavedConfigShouldHaveWorkers)
	ctx.Step(`^the saved config should have buffer size (\d+)$`, theSavedConfigShouldHaveBufferSize)
	ctx.Step(`^the saved config should use "([^"]*)" logs at level "([^"]*)"$`, theSavedConfigShouldUseLogs)
	ctx.Step(`^the setup should be cancelled$`, theSetupShouldBeCancelled)
	ctx.Step(`^the existing config should be unchanged$`, theExistingConfigShouldBeUnchanged)
}

func noConfigFileExistsForSetup() error {
	return os.MkdirAll(filepath.Dir(SharedSetupContext.configPath), 0755)
}

func aConfigFileAlreadyExistsForSetup() error {
	s := SharedSetupContext
	if err := os.MkdirAll(filepath.Dir(s.configPath), 0755); err != nil {
		return err
	}

	s.originalContent = `paths:
  output_directory: "/original/clips"
engine:
  workers: 2
`
	return os.WriteFile(s.configPath, []byte(s.originalContent), 0644)
}

func iRunTheSetupCommandWithInputs(table *godog.Table) error {
	s := SharedSetupContext
	inputs, confirms := parseInputTable(table)
	s.err = cmd.RunSetupWithPrompter(NewMockPrompter(inputs, confirms), s.configPath, s.output)
	return nil
}

func iRunTheSetupCommandWithConfirmation(confirmation string) error {
	s := SharedSetupContext
	confirm := strings.EqualFold(confirmation, "y")
	s.err = cmd.RunSetupWithPrompter(NewMockPrompter(nil, []bool{confirm}), s.configPath, s.output)
	return nil
}

// parseInputTable splits rows into text answers and yes/no answers; a
// prompt ending in "?" with a y/n value is a confirmation
func parseInputTable(table *godog.Table) ([]string, []bool) {
	var inputs []string
	var confirms []bool

	for i, row := range table.Rows {
		if i == 0 {
			continue // Skip header row
		}
		kind := strings.ToLower(row.Cells[0].Value)
		value := row.Cells[1].Value

		if kind == "confirm" {
			confirms = append(confirms, strings.EqualFold(value, "y"))
		} else {
			inputs = append(inputs, value)
		}
	}

	return inputs, confirms
}

func theSetupShouldFailWith(message string) error {
	s := SharedSetupContext
	if s.err == nil {
		return fmt.Errorf("expected an error but got none")
	}
	if !strings.Contains(s.err.Error(), message) {
		return fmt.Errorf("expected error containing %q, got: %v", message, s.err)
	}
	return nil
}

func aConfigFileShouldExist() error {
	s := SharedSetupContext
	if s.err != nil {
		return fmt.Errorf("setup command failed: %w", s.err)
	}
	if _, err := os.Stat(s.configPath); os.IsNotExist(err) {
		return fmt.Errorf("config file does not exist at %s", s.configPath)
	}
	return nil
}

func loadSavedConfig() (*config.Config, error) {
	cfg, err := config.Load(SharedSetupContext.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func theSavedConfigShouldHaveOutputDirectory(expected string) error {
	cfg, err := loadSavedConfig()
	if err != nil {
		return err
	}
	if cfg.Paths.OutputDirectory != expected {
		return fmt.Errorf("expected output_directory %q, got %q", expected, cfg.Paths.OutputDirectory)
	}
	return nil
}

func theSavedConfigShouldHaveWorkers(expected int) error {
	cfg, err := loadSavedConfig()
	if err != nil {
		return err
	}
	if cfg.Engine.Workers != expected {
		return fmt.Errorf("expected %d workers, got %d", expected, cfg.Engine.Workers)
	}
	return nil
}

func theSavedConfigShouldHaveBufferSize(expected int) error {
	cfg, err := loadSavedConfig()
	if err != nil {
		return err
	}
	if cfg.Engine.BufferSize != expected {
		return fmt.Errorf("expected buffer size %d, got %d", expected, cfg.Engine.BufferSize)
	}
	return nil
}

func theSavedConfigShouldUseLogs(format, level string) error {
	cfg, err := loadSavedConfig()
	if err != nil {
		return err
	}
	if cfg.Log.Format != format || cfg.Log.Level != level {
		return fmt.Errorf("expected %s logs at %s, got %s logs at %s", format, level, cfg.Log.Format, cfg.Log.Level)
	}
	return nil
}

func theSetupShouldBeCancelled() error {
	s := SharedSetupContext
	if s.err != nil {
		return fmt.Errorf("expected no error, got: %v", s.err)
	}
	if !strings.Contains(s.output.String(), "Setup cancelled.") {
		return fmt.Errorf("expected cancellation message, got: %s", s.output.String())
	}
	return nil
}

func theExistingConfigShouldBeUnchanged() error {
	s := SharedSetupContext
	content, err := os.ReadFile(s.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if string(content) != s.originalContent {
		return fmt.Errorf("config was modified")
	}
	return nil
}
