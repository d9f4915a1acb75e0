package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"clipmux/domain/video"
	"clipmux/infrastructure/config"
	"clipmux/infrastructure/console"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// Manifest lists the trims of one batch run
type Manifest struct {
	Jobs []ManifestJob `yaml:"jobs"`
}

// ManifestJob is one trim of a batch manifest
type ManifestJob struct {
	Source    string `yaml:"source"`
	Output    string `yaml:"output"`
	Start     string `yaml:"start"`
	End       string `yaml:"end"`
	KeepAudio bool   `yaml:"keep_audio"`
}

// LoadManifest reads a YAML batch manifest
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if len(m.Jobs) == 0 {
		return nil, fmt.Errorf("manifest %s lists no jobs", path)
	}
	return &m, nil
}

var (
	batchManifest string
	batchForce    bool
	batchEvents   bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run the trims listed in a manifest concurrently",
	Long: `Run every trim of a YAML manifest on the worker pool.

Manifest format:
  jobs:
    - source: service.mp4
      output: sermon.mp4
      start: "00:05:30"
      end: "00:45:00"
      keep_audio: true

Each trim has its own progress and cancellation; one failure does not stop
the others. The pool size is engine.workers, or one worker per CPU.

Example:
  clipmux batch --manifest jobs.yaml`,
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)
	batchCmd.Flags().StringVarP(&batchManifest, "manifest", "m", "", "Path to the YAML manifest (required)")
	batchCmd.Flags().BoolVarP(&batchForce, "force", "f", false, "Overwrite existing destinations")
	batchCmd.Flags().BoolVar(&batchEvents, "events", false, "Print progress events as JSON lines")
	batchCmd.MarkFlagRequired("manifest")
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	manifest, err := LoadManifest(batchManifest)
	if err != nil {
		return err
	}

	deps, closeDeps := productionDependencies(cfg, os.Stdout, os.Stderr)
	defer closeDeps()
	// concurrent bars would overwrite each other
	deps.Interactive = false

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return RunBatchWithDependencies(ctx, cfg, manifest, batchForce, batchEvents, poolSize(cfg), deps)
}

// BatchResult is the outcome of one manifest entry
type BatchResult struct {
	Job         ManifestJob
	Destination string
	Outcome     video.Outcome
	Err         error
}

// RunBatchWithDependencies runs a manifest with injected dependencies (for testing)
func RunBatchWithDependencies(
	ctx context.Context,
	cfg *config.Config,
	manifest *Manifest,
	force bool,
	events bool,
	workers int,
	deps TrimDependencies,
) error {
	requests := make([]*video.TrimRequest, len(manifest.Jobs))
	for i, job := range manifest.Jobs {
		req, err := buildRequest(cfg, TrimOptions{
			Source:      job.Source,
			Destination: job.Output,
			Start:       job.Start,
			End:         job.End,
			KeepAudio:   job.KeepAudio,
		})
		if err != nil {
			return fmt.Errorf("job %d: %w", i+1, err)
		}
		if !force && deps.FileChecker != nil && deps.FileChecker.Exists(req.DestinationPath) {
			return fmt.Errorf("job %d: destination %s already exists; use --force to overwrite", i+1, req.DestinationPath)
		}
		if err := ensureDir(req.DestinationPath); err != nil {
			return fmt.Errorf("job %d: %w", i+1, err)
		}
		requests[i] = req
	}

	svc := newService(cfg, deps, workers)
	defer svc.Shutdown(context.Background())

	var shared video.ProgressReporter
	if events {
		shared = console.NewEventWriter(deps.Output)
	} else {
		fmt.Fprintf(deps.Output, "Running %d trims on %d workers...\n", len(requests), svc.Workers())
	}

	results := make([]BatchResult, len(requests))

	var g errgroup.Group
	g.SetLimit(svc.Workers())
	for i, req := range requests {
		results[i].Job = manifest.Jobs[i]
		results[i].Destination = req.DestinationPath
		g.Go(func() error {
			reporter := shared
			if reporter == nil {
				reporter = console.NewLogReporter(deps.Logger.With().Int("job", i+1).Logger(), 0.25)
			}

			job, err := svc.Trim(ctx, *req, reporter)
			if err != nil {
				results[i].Err = err
				return nil
			}

			release := context.AfterFunc(ctx, job.Cancel)
			defer release()

			results[i].Outcome, results[i].Err = job.Wait(context.WithoutCancel(ctx))
			return nil
		})
	}
	_ = g.Wait()

	if !events {
		fmt.Fprintln(deps.Output, renderBatchResults(results))
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil || r.Outcome.Status != video.StatusDone {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d trims did not complete", failed, len(results))
	}
	return nil
}

func renderBatchResults(results []BatchResult) string {
	headers := []string{"#", "Source", "Output", "Status", "Samples", "Elapsed", "Error"}
	aligns := []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft}

	rows := make([][]string, 0, len(results))
	for i, r := range results {
		status := r.Outcome.Status.String()
		errText := ""
		elapsed := ""
		switch {
		case r.Err != nil:
			status = "rejected"
			errText = r.Err.Error()
		case r.Outcome.Err != nil:
			errText = r.Outcome.Err.Error()
		}
		if r.Err == nil {
			elapsed = r.Outcome.Duration().Round(time.Millisecond).String()
		}

		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			r.Job.Source,
			r.Destination,
			status,
			strconv.Itoa(r.Outcome.SamplesWritten),
			elapsed,
			errText,
		})
	}

	return renderTable(headers, rows, aligns)
}
