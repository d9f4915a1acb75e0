//go:build integration

package steps

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"clipmux/cmd"
	"clipmux/infrastructure/config"
	"clipmux/infrastructure/filesystem"
	"clipmux/infrastructure/history"
	"clipmux/infrastructure/mp4"

	"github.com/cucumber/godog"
	"github.com/rs/zerolog"
)

// trimContext holds test state for trim scenarios
type trimContext struct {
	dir         string
	cfg         config.Config
	sourcePath  string
	destination string
	prompter    *MockPrompter
	interactive bool
	store       *history.Store
	output      *bytes.Buffer
	err         error
}

// SharedTrimContext is reset before each scenario via Before hook
var SharedTrimContext *trimContext

func getTrimContext() *trimContext {
	return SharedTrimContext
}

func InitializeTrimScenario(ctx *godog.ScenarioContext) {
	ctx.Before(func(c context.Context, sc *godog.Scenario) (context.Context, error) {
		dir, err := os.MkdirTemp("", "clipmux-trim-*")
		if err != nil {
			return c, err
		}
		store, err := history.Open(filepath.Join(dir, "history.db"))
		if err != nil {
			return c, err
		}
		SharedTrimContext = &trimContext{
			dir:         dir,
			cfg:         config.Default(),
			sourcePath:  filepath.Join(dir, "source.mp4"),
			destination: filepath.Join(dir, "out.mp4"),
			store:       store,
			output:      &bytes.Buffer{},
		}
		return c, nil
	})

	ctx.After(func(c context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		if t := SharedTrimContext; t != nil {
			t.store.Close()
			os.RemoveAll(t.dir)
		}
		SharedTrimContext = nil
		return c, nil
	})

	ctx.Step(`^a (\d+) second source clip$`, aSourceClip)
	ctx.Step(`^a (\d+) second source clip with audio$`, aSourceClipWithAudio)
	ctx.Step(`^no source clip exists$`, noSourceClipExists)
	ctx.Step(`^the destination already exists$`, theDestinationAlreadyExists)
	ctx.Step(`^I answer "([^"]*)" to the overwrite prompt$`, iAnswerToTheOverwritePrompt)
	ctx.Step(`^I trim from "([^"]*)" to "([^"]*)"$`, iTrimFromTo)
	ctx.Step(`^I trim from "([^"]*)" to "([^"]*)" keeping audio$`, iTrimFromToKeepingAudio)
	ctx.Step(`^I trim from "([^"]*)" to "([^"]*)" with force$`, iTrimFromToWithForce)
	ctx.Step(`^I trim from "([^"]*)" to "([^"]*)" with events$`, iTrimFromToWithEvents)
	ctx.Step(`^I trim from "([^"]*)" to "([^"]*)" and interrupt it$`, iTrimFromToAndInterruptIt)
	ctx.Step(`^the trim should succeed$`, theTrimShouldSucceed)
	ctx.Step(`^the trim should fail with "([^"]*)"$`, theTrimShouldFailWith)
	ctx.Step(`^the trim should be cancelled$`, theTrimShouldBeCancelled)
	ctx.Step(`^the output should have (\d+) tracks?$`, theOutputShouldHaveTracks)
	ctx.Step(`^output track (\d+) should have (\d+) samples$`, outputTrackShouldHaveSamples)
	ctx.Step(`^the destination should be unchanged$`, theDestinationShouldBeUnchanged)
	ctx.Step(`^no destination should exist$`, noDestinationShouldExist)
	ctx.Step(`^the last event should be terminal with progress (\d+)$`, theLastEventShouldBeTerminalWithProgress)
	ctx.Step(`^the history should hold (\d+) "([^"]*)" trims?$`, theHistoryShouldHoldTrims)
}

func aSourceClip(seconds int) error {
	return writeClip(getTrimContext().sourcePath, seconds, false)
}

func aSourceClipWithAudio(seconds int) error {
	return writeClip(getTrimContext().sourcePath, seconds, true)
}

func noSourceClipExists() error {
	t := getTrimContext()
	t.sourcePath = filepath.Join(t.dir, "missing.mp4")
	return nil
}

func theDestinationAlreadyExists() error {
	return os.WriteFile(getTrimContext().destination, []byte("previous"), 0644)
}

func iAnswerToTheOverwritePrompt(answer string) error {
	t := getTrimContext()
	t.interactive = true
	t.prompter = NewMockPrompter(nil, []bool{strings.EqualFold(answer, "y")})
	return nil
}

func (t *trimContext) run(ctx context.Context, opts cmd.TrimOptions) {
	opts.Source = t.sourcePath
	opts.Destination = t.destination

	deps := cmd.TrimDependencies{
		Opener:      mp4.NewOpener(),
		FileChecker: filesystem.NewChecker(),
		Locker:      filesystem.NewDestinationLocker(),
		Recorder:    t.store,
		Interactive: t.interactive,
		Output:      t.output,
		Logger:      zerolog.Nop(),
	}
	if t.prompter != nil {
		deps.Prompter = t.prompter
	}

	t.err = cmd.RunTrimWithDependencies(ctx, &t.cfg, opts, deps)
}

func iTrimFromTo(start, end string) error {
	getTrimContext().run(context.Background(), cmd.TrimOptions{Start: start, End: end})
	return nil
}

func iTrimFromToKeepingAudio(start, end string) error {
	getTrimContext().run(context.Background(), cmd.TrimOptions{Start: start, End: end, KeepAudio: true})
	return nil
}

func iTrimFromToWithForce(start, end string) error {
	getTrimContext().run(context.Background(), cmd.TrimOptions{Start: start, End: end, Force: true})
	return nil
}

func iTrimFromToWithEvents(start, end string) error {
	getTrimContext().run(context.Background(), cmd.TrimOptions{Start: start, End: end, Events: true})
	return nil
}

func iTrimFromToAndInterruptIt(start, end string) error {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	getTrimContext().run(ctx, cmd.TrimOptions{Start: start, End: end})
	return nil
}

func theTrimShouldSucceed() error {
	t := getTrimContext()
	if t.err != nil {
		return fmt.Errorf("expected trim to succeed, got: %v", t.err)
	}
	if !strings.Contains(t.output.String(), "Successfully created: "+t.destination) {
		return fmt.Errorf("expected success message, got: %s", t.output.String())
	}
	return nil
}

func theTrimShouldFailWith(message string) error {
	t := getTrimContext()
	if t.err == nil {
		return fmt.Errorf("expected an error but got none")
	}
	if !strings.Contains(t.err.Error(), message) {
		return fmt.Errorf("expected error containing %q, got: %v", message, t.err)
	}
	return nil
}

func theTrimShouldBeCancelled() error {
	t := getTrimContext()
	if !errors.Is(t.err, cmd.ErrTrimCancelled) {
		return fmt.Errorf("expected ErrTrimCancelled, got: %v", t.err)
	}
	return nil
}

func theOutputShouldHaveTracks(n int) error {
	info, err := mp4.Probe(getTrimContext().destination)
	if err != nil {
		return fmt.Errorf("failed to probe output: %w", err)
	}
	if len(info.Tracks) != n {
		return fmt.Errorf("expected %d tracks, got %d", n, len(info.Tracks))
	}
	return nil
}

func outputTrackShouldHaveSamples(index, samples int) error {
	info, err := mp4.Probe(getTrimContext().destination)
	if err != nil {
		return fmt.Errorf("failed to probe output: %w", err)
	}
	if index >= len(info.Tracks) {
		return fmt.Errorf("output has no track %d", index)
	}
	if got := info.Tracks[index].Format.SampleCount; got != samples {
		return fmt.Errorf("expected %d samples on track %d, got %d", samples, index, got)
	}
	return nil
}

func theDestinationShouldBeUnchanged() error {
	data, err := os.ReadFile(getTrimContext().destination)
	if err != nil {
		return err
	}
	if string(data) != "previous" {
		return fmt.Errorf("destination was overwritten")
	}
	return nil
}

func noDestinationShouldExist() error {
	if _, err := os.Stat(getTrimContext().destination); !os.IsNotExist(err) {
		return fmt.Errorf("expected no destination file, stat error: %v", err)
	}
	return nil
}

func theLastEventShouldBeTerminalWithProgress(progress int) error {
	t := getTrimContext()
	lines := strings.Split(strings.TrimSpace(t.output.String()), "\n")
	if len(lines) < 2 {
		return fmt.Errorf("expected progress and terminal events, got: %q", t.output.String())
	}

	var last map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &last); err != nil {
		return fmt.Errorf("last line is not JSON: %w", err)
	}
	if last["progress"] != float64(progress) {
		return fmt.Errorf("expected progress %d, got %v", progress, last["progress"])
	}
	if _, failed := last["errorIndex"]; failed {
		return fmt.Errorf("expected success event, got %v", last)
	}
	return nil
}

func theHistoryShouldHoldTrims(n int, status string) error {
	entries, err := getTrimContext().store.Recent(context.Background(), 10)
	if err != nil {
		return err
	}
	count := 0
	for _, e := range entries {
		if e.Status == status {
			count++
		}
	}
	if count != n {
		return fmt.Errorf("expected %d %q trims in history, got %d of %d", n, status, count, len(entries))
	}
	return nil
}
