package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"clipmux/domain/video"
	"clipmux/infrastructure/config"
	"clipmux/infrastructure/console"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// ErrTrimCancelled is returned when a trim ends with the CANCELLED code
var ErrTrimCancelled = errors.New("trim cancelled")

// TrimOptions are the user inputs of one trim
type TrimOptions struct {
	Source      string
	Destination string
	Start       string
	End         string
	KeepAudio   bool
	Force       bool
	Events      bool
}

var trimOpts TrimOptions

var trimCmd = &cobra.Command{
	Use:   "trim",
	Short: "Copy a time window of an MP4 into a new file",
	Long: `Copy the samples between the start and end timestamps into a new MP4.

The cut starts on the closest sync point at or before --start, so the output
may begin slightly earlier than requested. Timestamps are HH:MM:SS,
HH:MM:SS.mmm or a number of milliseconds.

Without --output the file is written next to the source (or into
paths.output_directory) as <name>_trimmed.mp4.

Example:
  clipmux trim --source "service.mp4" --start 00:05:30 --end 01:45:00 --keep-audio`,
	RunE: runTrim,
}

func init() {
	rootCmd.AddCommand(trimCmd)
	trimCmd.Flags().StringVar(&trimOpts.Source, "source", "", "Path to source MP4 file (required)")
	trimCmd.Flags().StringVarP(&trimOpts.Destination, "output", "o", "", "Destination file")
	trimCmd.Flags().StringVar(&trimOpts.Start, "start", "", "Start timestamp (required)")
	trimCmd.Flags().StringVar(&trimOpts.End, "end", "", "End timestamp (required)")
	trimCmd.Flags().BoolVar(&trimOpts.KeepAudio, "keep-audio", false, "Copy audio tracks as well as video")
	trimCmd.Flags().BoolVarP(&trimOpts.Force, "force", "f", false, "Overwrite an existing destination without asking")
	trimCmd.Flags().BoolVar(&trimOpts.Events, "events", false, "Print progress events as JSON lines")
	trimCmd.MarkFlagRequired("source")
	trimCmd.MarkFlagRequired("start")
	trimCmd.MarkFlagRequired("end")
}

func runTrim(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	deps, closeDeps := productionDependencies(cfg, os.Stdout, os.Stderr)
	defer closeDeps()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return RunTrimWithDependencies(ctx, cfg, trimOpts, deps)
}

// RunTrimWithDependencies runs the trim command with injected dependencies (for testing)
func RunTrimWithDependencies(ctx context.Context, cfg *config.Config, opts TrimOptions, deps TrimDependencies) error {
	req, err := buildRequest(cfg, opts)
	if err != nil {
		return err
	}

	proceed, err := confirmOverwrite(deps, req.DestinationPath, opts.Force)
	if err != nil || !proceed {
		return err
	}

	if err := ensureDir(req.DestinationPath); err != nil {
		return err
	}

	svc := newService(cfg, deps, 1)
	defer svc.Shutdown(context.Background())

	reporter := trimReporter(deps, opts.Events, filepath.Base(req.DestinationPath))

	if !opts.Events {
		fmt.Fprintf(deps.Output, "Trimming %s from %s to %s...\n",
			req.SourcePath, video.TimestampFromMillis(req.StartMs), video.TimestampFromMillis(req.EndMs))
	}

	job, err := svc.Trim(ctx, *req, reporter)
	if err != nil {
		return err
	}

	// interrupting the command cancels only this invocation
	release := context.AfterFunc(ctx, job.Cancel)
	defer release()

	out, err := job.Wait(context.WithoutCancel(ctx))
	if err != nil {
		return err
	}

	return reportOutcome(deps, out, opts.Events)
}

// buildRequest parses the timestamps and resolves the destination
func buildRequest(cfg *config.Config, opts TrimOptions) (*video.TrimRequest, error) {
	start, err := video.ParseTimestamp(opts.Start)
	if err != nil {
		return nil, fmt.Errorf("%w: start: %v", video.ErrInvalidRequest, err)
	}

	end, err := video.ParseTimestamp(opts.End)
	if err != nil {
		return nil, fmt.Errorf("%w: end: %v", video.ErrInvalidRequest, err)
	}

	destination := opts.Destination
	if destination == "" {
		destination = defaultDestination(cfg, opts.Source)
	} else {
		destination = cfg.ResolveOutput(destination)
	}

	return video.NewTrimRequestFromTimestamps(opts.Source, destination, opts.KeepAudio, start, end)
}

// defaultDestination names the output after the source
func defaultDestination(cfg *config.Config, source string) string {
	base := filepath.Base(source)
	ext := filepath.Ext(base)
	if ext == "" {
		ext = ".mp4"
	}
	name := strings.TrimSuffix(base, filepath.Ext(base)) + "_trimmed" + ext

	if cfg.Paths.OutputDirectory != "" {
		return filepath.Join(cfg.Paths.OutputDirectory, name)
	}
	return filepath.Join(filepath.Dir(source), name)
}

// ensureDir creates the directory that will hold path
func ensureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return nil
}

// confirmOverwrite reports whether the trim may write to destination
func confirmOverwrite(deps TrimDependencies, destination string, force bool) (bool, error) {
	if force || deps.FileChecker == nil || !deps.FileChecker.Exists(destination) {
		return true, nil
	}

	if !deps.Interactive || deps.Prompter == nil {
		return false, fmt.Errorf("destination %s already exists; use --force to overwrite", destination)
	}

	overwrite, err := deps.Prompter.Confirm(fmt.Sprintf("%s already exists. Overwrite?", destination), false)
	if err != nil {
		return false, fmt.Errorf("prompt cancelled")
	}
	if !overwrite {
		fmt.Fprintln(deps.Output, "Trim cancelled.")
	}
	return overwrite, nil
}

// trimReporter sends JSON events to the output and the bar or log lines to
// the progress writer. Either side may be absent.
func trimReporter(deps TrimDependencies, events bool, description string) video.ProgressReporter {
	var human video.ProgressReporter
	if deps.Progress != nil {
		human = console.NewReporter(deps.Progress, deps.Logger, description)
	}
	if !events {
		return human
	}
	return console.Tee{console.NewEventWriter(deps.Output), human}
}

// reportOutcome prints the result and maps failed or cancelled runs to errors
func reportOutcome(deps TrimDependencies, out video.Outcome, quiet bool) error {
	switch out.Status {
	case video.StatusCancelled:
		return ErrTrimCancelled
	case video.StatusFailed:
		return fmt.Errorf("trim failed: %w", out.Err)
	}

	if quiet {
		return nil
	}

	size := ""
	if sizer, ok := deps.FileChecker.(interface{ Size(string) int64 }); ok {
		if n := sizer.Size(out.Request.DestinationPath); n > 0 {
			size = fmt.Sprintf(" (%s)", humanize.Bytes(uint64(n)))
		}
	}

	fmt.Fprintf(deps.Output, "Successfully created: %s%s\n", out.Request.DestinationPath, size)
	if len(out.SkippedTracks) > 0 {
		fmt.Fprintf(deps.Output, "Skipped source tracks: %v\n", out.SkippedTracks)
	}
	return nil
}
