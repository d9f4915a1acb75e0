//go:build integration

package steps

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"clipmux/cmd"
	"clipmux/infrastructure/config"
	"clipmux/infrastructure/filesystem"
	"clipmux/infrastructure/mp4"

	"github.com/cucumber/godog"
	"github.com/rs/zerolog"
)

type batchContext struct {
	dir      string
	manifest *cmd.Manifest
	output   *bytes.Buffer
	err      error
}

// SharedBatchContext is reset before each scenario via Before hook
var SharedBatchContext *batchContext

func InitializeBatchScenario(ctx *godog.ScenarioContext) {
	ctx.Before(func(c context.Context, sc *godog.Scenario) (context.Context, error) {
		dir, err := os.MkdirTemp("", "clipmux-batch-*")
		if err != nil {
			return c, err
		}
		SharedBatchContext = &batchContext{
			dir:      dir,
			manifest: &cmd.Manifest{},
			output:   &bytes.Buffer{},
		}
		return c, nil
	})

	ctx.After(func(c context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		if b := SharedBatchContext; b != nil {
			os.RemoveAll(b.dir)
		}
		SharedBatchContext = nil
		return c, nil
	})

	ctx.Step(`^a manifest with the jobs:$`, aManifestWithTheJobs)
	ctx.Step(`^I run the batch on (\d+) workers?$`, iRunTheBatchOnWorkers)
	ctx.Step(`^the batch should succeed$`, theBatchShouldSucceed)
	ctx.Step(`^the batch should fail with "([^"]*)"$`, theBatchShouldFailWith)
	ctx.Step(`^the batch output "([^"]*)" should have (\d+) video samples$`, theBatchOutputShouldHaveVideoSamples)
}

// aManifestWithTheJobs reads rows of source seconds, output, start, end.
// Sources are written on demand; a source of 0 seconds is left missing.
func aManifestWithTheJobs(table *godog.Table) error {
	b := SharedBatchContext
	for i, row := range table.Rows {
		if i == 0 {
			continue // Skip header row
		}
		seconds, err := strconv.Atoi(row.Cells[0].Value)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}

		source := filepath.Join(b.dir, fmt.Sprintf("source-%d.mp4", i))
		if seconds > 0 {
			if err := writeClip(source, seconds, true); err != nil {
				return err
			}
		}

		b.manifest.Jobs = append(b.manifest.Jobs, cmd.ManifestJob{
			Source: source,
			Output: filepath.Join(b.dir, row.Cells[1].Value),
			Start:  row.Cells[2].Value,
			End:    row.Cells[3].Value,
		})
	}
	return nil
}

func iRunTheBatchOnWorkers(workers int) error {
	b := SharedBatchContext
	cfg := config.Default()

	deps := cmd.TrimDependencies{
		Opener:      mp4.NewOpener(),
		FileChecker: filesystem.NewChecker(),
		Locker:      filesystem.NewDestinationLocker(),
		Output:      b.output,
		Logger:      zerolog.Nop(),
	}

	b.err = cmd.RunBatchWithDependencies(context.Background(), &cfg, b.manifest, false, false, workers, deps)
	return nil
}

func theBatchShouldSucceed() error {
	b := SharedBatchContext
	if b.err != nil {
		return fmt.Errorf("expected batch to succeed, got: %v\n%s", b.err, b.output.String())
	}
	return nil
}

func theBatchShouldFailWith(message string) error {
	b := SharedBatchContext
	if b.err == nil {
		return fmt.Errorf("expected an error but got none")
	}
	if !strings.Contains(b.err.Error(), message) {
		return fmt.Errorf("expected error containing %q, got: %v", message, b.err)
	}
	return nil
}

func theBatchOutputShouldHaveVideoSamples(name string, samples int) error {
	info, err := mp4.Probe(filepath.Join(SharedBatchContext.dir, name))
	if err != nil {
		return fmt.Errorf("failed to probe %s: %w", name, err)
	}
	if len(info.Tracks) == 0 {
		return fmt.Errorf("%s has no tracks", name)
	}
	if got := info.Tracks[0].Format.SampleCount; got != samples {
		return fmt.Errorf("expected %d video samples in %s, got %d", samples, name, got)
	}
	return nil
}
