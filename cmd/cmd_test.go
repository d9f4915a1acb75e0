package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"clipmux/domain/video"
	"clipmux/infrastructure/config"
	"clipmux/infrastructure/history"
	"clipmux/infrastructure/mp4"

	"github.com/rs/zerolog"
)

// --- Mock implementations for testing ---

type mockFileChecker struct {
	existing map[string]bool
}

func (m *mockFileChecker) Exists(path string) bool {
	return m.existing[path]
}

type mockPrompter struct {
	confirm    bool
	confirmErr error
	asked      []string
}

func (m *mockPrompter) Input(message string, defaultValue string) (string, error) {
	return defaultValue, nil
}

func (m *mockPrompter) Confirm(message string, defaultValue bool) (bool, error) {
	m.asked = append(m.asked, message)
	return m.confirm, m.confirmErr
}

type mockLister struct {
	entries []history.Entry
	err     error
	limit   int
}

func (m *mockLister) Recent(ctx context.Context, limit int) ([]history.Entry, error) {
	m.limit = limit
	return m.entries, m.err
}

func TestBuildRequest(t *testing.T) {
	tests := []struct {
		name      string
		outputDir string
		opts      TrimOptions
		wantDest  string
		wantStart int64
		wantEnd   int64
		wantErr   string
	}{
		{
			name:      "derived destination next to source",
			opts:      TrimOptions{Source: filepath.Join("in", "talk.mp4"), Start: "00:00:01", End: "3000"},
			wantDest:  filepath.Join("in", "talk_trimmed.mp4"),
			wantStart: 1000,
			wantEnd:   3000,
		},
		{
			name:      "derived destination in output directory",
			outputDir: "clips",
			opts:      TrimOptions{Source: filepath.Join("in", "talk.mov"), Start: "00:00:01.5", End: "00:00:02"},
			wantDest:  filepath.Join("clips", "talk_trimmed.mov"),
			wantStart: 1500,
			wantEnd:   2000,
		},
		{
			name:      "bare output name goes to output directory",
			outputDir: "clips",
			opts:      TrimOptions{Source: "talk.mp4", Destination: "intro.mp4", Start: "0", End: "1000"},
			wantDest:  filepath.Join("clips", "intro.mp4"),
			wantEnd:   1000,
		},
		{
			name:    "bad start",
			opts:    TrimOptions{Source: "talk.mp4", Start: "soon", End: "1000"},
			wantErr: "start",
		},
		{
			name:    "bad end",
			opts:    TrimOptions{Source: "talk.mp4", Start: "0", End: "later"},
			wantErr: "end",
		},
		{
			name:    "empty window",
			opts:    TrimOptions{Source: "talk.mp4", Start: "1000", End: "1000"},
			wantErr: "must be after start time",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Paths.OutputDirectory = tt.outputDir

			req, err := buildRequest(&cfg, tt.opts)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("buildRequest() error = %v, want containing %q", err, tt.wantErr)
				}
				if !errors.Is(err, video.ErrInvalidRequest) {
					t.Errorf("error %v does not wrap ErrInvalidRequest", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("buildRequest() unexpected error: %v", err)
			}
			if req.DestinationPath != tt.wantDest {
				t.Errorf("DestinationPath = %q, want %q", req.DestinationPath, tt.wantDest)
			}
			if req.StartMs != tt.wantStart || req.EndMs != tt.wantEnd {
				t.Errorf("window = [%d, %d], want [%d, %d]", req.StartMs, req.EndMs, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestConfirmOverwrite(t *testing.T) {
	checker := &mockFileChecker{existing: map[string]bool{"taken.mp4": true}}

	tests := []struct {
		name        string
		dest        string
		force       bool
		interactive bool
		prompter    *mockPrompter
		want        bool
		wantErr     bool
	}{
		{name: "free destination", dest: "free.mp4", want: true},
		{name: "forced", dest: "taken.mp4", force: true, want: true},
		{name: "non-interactive", dest: "taken.mp4", wantErr: true},
		{name: "accepted", dest: "taken.mp4", interactive: true, prompter: &mockPrompter{confirm: true}, want: true},
		{name: "declined", dest: "taken.mp4", interactive: true, prompter: &mockPrompter{}},
		{name: "prompt aborted", dest: "taken.mp4", interactive: true, prompter: &mockPrompter{confirmErr: errors.New("interrupt")}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			deps := TrimDependencies{FileChecker: checker, Interactive: tt.interactive, Output: &out}
			if tt.prompter != nil {
				deps.Prompter = tt.prompter
			}

			got, err := confirmOverwrite(deps, tt.dest, tt.force)
			if (err != nil) != tt.wantErr {
				t.Fatalf("confirmOverwrite() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("confirmOverwrite() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSetConfigValue(t *testing.T) {
	cfg := config.Default()

	if err := setConfigValue(&cfg, "engine.buffer_size", "2 MiB"); err != nil {
		t.Fatal(err)
	}
	if cfg.Engine.BufferSize != 2*1024*1024 {
		t.Errorf("BufferSize = %d", cfg.Engine.BufferSize)
	}

	if err := setConfigValue(&cfg, "engine.eager_progress", "true"); err != nil || !cfg.Engine.EagerProgress {
		t.Errorf("eager_progress not set, err = %v", err)
	}

	if err := setConfigValue(&cfg, "engine.workers", "many"); err == nil {
		t.Error("expected error for non-numeric workers")
	}

	if err := setConfigValue(&cfg, "nope", "1"); err == nil || !strings.Contains(err.Error(), "unknown config key") {
		t.Errorf("unexpected error for unknown key: %v", err)
	}

	for _, key := range configKeys {
		if _, err := configValue(&cfg, key); err != nil {
			t.Errorf("configValue(%q) error = %v", key, err)
		}
	}
}

func TestRunConfigSet_SavesAndRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := config.Default()
	var out bytes.Buffer

	if err := RunConfigSetWithDependencies(&cfg, path, "engine.workers", "3", &out); err != nil {
		t.Fatalf("RunConfigSetWithDependencies() error = %v", err)
	}
	loaded, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Engine.Workers != 3 {
		t.Errorf("saved workers = %d, want 3", loaded.Engine.Workers)
	}

	if err := RunConfigSetWithDependencies(&cfg, path, "log.level", "loud", &out); err == nil {
		t.Error("expected validation error")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("rejected value leaked into config: %q", cfg.Log.Level)
	}
}

func TestRunProbe(t *testing.T) {
	probe := func(path string) (mp4.Info, error) {
		return mp4.Info{
			DurationUs: 4_000_000,
			Tracks: []video.TrackDescriptor{
				{SourceIndex: 0, MimeType: "video/avc", Format: video.Format{Codec: "avc1", Timescale: 90000, SampleCount: 100}},
				{SourceIndex: 1, MimeType: "audio/mp4a-latm", Format: video.Format{Codec: "mp4a", Timescale: 48000, Language: "eng"}},
			},
		}, nil
	}

	var out bytes.Buffer
	if err := RunProbeWithDependencies(probe, "talk.mp4", &out); err != nil {
		t.Fatalf("RunProbeWithDependencies() error = %v", err)
	}

	got := out.String()
	for _, want := range []string{"talk.mp4: 2 tracks, 00:00:04", "video/avc", "audio/mp4a-latm", "90000", "eng"} {
		if !strings.Contains(got, want) {
			t.Errorf("probe output missing %q:\n%s", want, got)
		}
	}
}

func TestRunProbe_Error(t *testing.T) {
	probe := func(path string) (mp4.Info, error) {
		return mp4.Info{}, errors.New("not an mp4")
	}
	err := RunProbeWithDependencies(probe, "notes.txt", &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "not an mp4") {
		t.Errorf("RunProbeWithDependencies() error = %v", err)
	}
}

func TestRunHistory(t *testing.T) {
	finished := time.Now().Add(-time.Minute)
	lister := &mockLister{entries: []history.Entry{
		{
			Source: "talk.mp4", Destination: "clip.mp4", Status: "failed",
			StartMs: 1000, EndMs: 3000, Error: "write sample: disk full",
			CleanupError: "stop muxer: closed", SkippedTracks: []int{2},
			StartedAt: finished.Add(-time.Second), FinishedAt: finished,
		},
	}}

	var out bytes.Buffer
	if err := RunHistoryWithDependencies(context.Background(), lister, 5, &out); err != nil {
		t.Fatalf("RunHistoryWithDependencies() error = %v", err)
	}
	if lister.limit != 5 {
		t.Errorf("limit = %d, want 5", lister.limit)
	}

	got := out.String()
	for _, want := range []string{"failed", "00:00:01-00:00:03", "disk full", "cleanup: stop muxer: closed", "skipped tracks [2]"} {
		if !strings.Contains(got, want) {
			t.Errorf("history output missing %q:\n%s", want, got)
		}
	}
}

func TestRunHistory_Empty(t *testing.T) {
	var out bytes.Buffer
	if err := RunHistoryWithDependencies(context.Background(), &mockLister{}, 5, &out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "No trims recorded.") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRenderTable(t *testing.T) {
	got := renderTable([]string{"A", "B"}, [][]string{{"1"}, {"2", "3"}}, []columnAlignment{alignRight})
	for _, want := range []string{"A", "B", "1", "3"} {
		if !strings.Contains(got, want) {
			t.Errorf("table missing %q:\n%s", want, got)
		}
	}
	if renderTable(nil, nil, nil) != "" {
		t.Error("expected empty table for no headers")
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.yaml")
	writeFile(t, path, `jobs:
  - source: a.mp4
    output: a_clip.mp4
    start: "00:00:01"
    end: "00:00:02"
    keep_audio: true
`)

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest() error = %v", err)
	}
	if len(m.Jobs) != 1 || !m.Jobs[0].KeepAudio || m.Jobs[0].Output != "a_clip.mp4" {
		t.Errorf("manifest = %+v", m)
	}

	empty := filepath.Join(dir, "empty.yaml")
	writeFile(t, empty, "jobs: []\n")
	if _, err := LoadManifest(empty); err == nil {
		t.Error("expected error for a manifest without jobs")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestTrimReporter(t *testing.T) {
	ev := video.ProgressEvent{DestinationPath: "out.mp4", Progress: 1, Terminal: true}

	tests := []struct {
		name       string
		events     bool
		progress   bool
		wantNil    bool
		wantEvents bool
		wantLog    bool
	}{
		{name: "events and progress", events: true, progress: true, wantEvents: true, wantLog: true},
		{name: "events only", events: true, wantEvents: true},
		{name: "progress only", progress: true, wantLog: true},
		{name: "neither", wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out, logs, progress bytes.Buffer
			deps := TrimDependencies{Output: &out, Logger: zerolog.New(&logs)}
			if tt.progress {
				deps.Progress = &progress
			}

			r := trimReporter(deps, tt.events, "clip")
			if tt.wantNil {
				if r != nil {
					t.Errorf("trimReporter() = %T, want nil", r)
				}
				return
			}
			r.Report(ev)

			if got := strings.Contains(out.String(), `"progress":1`); got != tt.wantEvents {
				t.Errorf("event line written = %v, want %v (%q)", got, tt.wantEvents, out.String())
			}
			if got := strings.Contains(logs.String(), "trim finished"); got != tt.wantLog {
				t.Errorf("log line written = %v, want %v (%q)", got, tt.wantLog, logs.String())
			}
		})
	}
}
