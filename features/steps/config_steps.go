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

type configContext struct {
	dir        string
	configPath string
	cfg        *config.Config
	output     *bytes.Buffer
	err        error
}

// SharedConfigContext is reset before each scenario via Before hook
var SharedConfigContext = &configContext{}

func InitializeConfigScenario(ctx *godog.ScenarioContext) {
	ctx.Before(func(c context.Context, sc *godog.Scenario) (context.Context, error) {
		dir, err := os.MkdirTemp("", "clipmux-config-*")
		if err != nil {
			return c, err
		}
		SharedConfigContext = &configContext{
			dir:    dir,
			output: &bytes.Buffer{},
		}
		return c, nil
	})

	ctx.After(func(c context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		if SharedConfigContext.dir != "" {
			os.RemoveAll(SharedConfigContext.dir)
		}
		SharedConfigContext = &configContext{}
		return c, nil
	})

	ctx.Step(`^a config file "([^"]*)" containing:$`, aConfigFileContaining)
	ctx.Step(`^I load the configuration$`, iLoadTheConfiguration)
	ctx.Step(`^I attempt to load the configuration$`, iAttemptToLoadTheConfiguration)
	ctx.Step(`^the output directory should be "([^"]*)"$`, theOutputDirectoryShouldBe)
	ctx.Step(`^the worker count should be (\d+)$`, theWorkerCountShouldBe)
	ctx.Step(`^the buffer size should be (\d+)$`, theBufferSizeShouldBe)
	ctx.Step(`^I should receive a configuration error about "([^"]*)"$`, iShouldReceiveAConfigurationErrorAbout)
	ctx.Step(`^I set config "([^"]*)" to "([^"]*)"$`, iSetConfigTo)
	ctx.Step(`^I show the configuration$`, iShowTheConfiguration)
	ctx.Step(`^the config output should contain "([^"]*)"$`, theConfigOutputShouldContain)
}

func aConfigFileContaining(name string, body *godog.DocString) error {
	c := SharedConfigContext
	c.configPath = filepath.Join(c.dir, name)
	return os.WriteFile(c.configPath, []byte(body.Content), 0644)
}

func iLoadTheConfiguration() error {
	c := SharedConfigContext
	c.cfg, c.err = config.Load(c.configPath)
	if c.err != nil {
		return fmt.Errorf("failed to load config: %w", c.err)
	}
	return nil
}

func iAttemptToLoadTheConfiguration() error {
	c := SharedConfigContext
	c.cfg, c.err = config.Load(c.configPath)
	return nil
}

func theOutputDirectoryShouldBe(expected string) error {
	if got := SharedConfigContext.cfg.Paths.OutputDirectory; got != expected {
		return fmt.Errorf("expected output directory %q, got %q", expected, got)
	}
	return nil
}

func theWorkerCountShouldBe(expected int) error {
	if got := SharedConfigContext.cfg.Engine.Workers; got != expected {
		return fmt.Errorf("expected %d workers, got %d", expected, got)
	}
	return nil
}

func theBufferSizeShouldBe(expected int) error {
	if got := SharedConfigContext.cfg.Engine.BufferSize; got != expected {
		return fmt.Errorf("expected buffer size %d, got %d", expected, got)
	}
	return nil
}

func iShouldReceiveAConfigurationErrorAbout(message string) error {
	c := SharedConfigContext
	if c.err == nil {
		return fmt.Errorf("expected an error but got none")
	}
	if !strings.Contains(c.err.Error(), message) {
		return fmt.Errorf("expected error containing %q, got: %v", message, c.err)
	}
	return nil
}

func iSetConfigTo(key, value string) error {
	c := SharedConfigContext
	c.err = cmd.RunConfigSetWithDependencies(c.cfg, c.configPath, key, value, c.output)
	return nil
}

func iShowTheConfiguration() error {
	c := SharedConfigContext
	return cmd.RunConfigShowWithDependencies(c.cfg, c.configPath, c.output)
}

func theConfigOutputShouldContain(expected string) error {
	if out := SharedConfigContext.output.String(); !strings.Contains(out, expected) {
		return fmt.Errorf("expected output to contain %q, got:\n%s", expected, out)
	}
	return nil
}
