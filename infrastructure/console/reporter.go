package console

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"clipmux/domain/video"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
)

// barScale is the number of bar steps for a progress of 1.0
const barScale = 1000

// IsTerminal reports whether w is an interactive terminal
func IsTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// NewReporter returns a progress bar when w is a terminal and sampled log
// lines otherwise
func NewReporter(w io.Writer, logger zerolog.Logger, description string) video.ProgressReporter {
	if IsTerminal(w) {
		return NewBarReporter(w, description)
	}
	return NewLogReporter(logger, 0.1)
}

// BarReporter renders one invocation as a progress bar
type BarReporter struct {
	bar *progressbar.ProgressBar
}

// NewBarReporter creates a bar writing to w
func NewBarReporter(w io.Writer, description string) *BarReporter {
	bar := progressbar.NewOptions(barScale,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(w)
		}),
	)
	return &BarReporter{bar: bar}
}

// Report implements video.ProgressReporter
func (r *BarReporter) Report(ev video.ProgressEvent) {
	if !ev.Terminal {
		_ = r.bar.Set(int(math.Round(ev.Progress * barScale)))
		return
	}
	if ev.Done() {
		_ = r.bar.Finish()
		return
	}
	_ = r.bar.Exit()
}

// LogReporter logs progress each time it crosses a multiple of step
type LogReporter struct {
	logger zerolog.Logger
	step   float64
	next   float64
}

// NewLogReporter creates a LogReporter; step is a fraction such as 0.1
func NewLogReporter(logger zerolog.Logger, step float64) *LogReporter {
	if step <= 0 || step > 1 {
		step = 0.1
	}
	return &LogReporter{logger: logger, step: step, next: step}
}

// Report implements video.ProgressReporter
func (r *LogReporter) Report(ev video.ProgressEvent) {
	if ev.Terminal {
		entry := r.logger.Info()
		if !ev.Done() {
			entry = r.logger.Warn().Str("code", ev.Code.String())
		}
		if len(ev.SkippedTracks) > 0 {
			entry = entry.Ints("skipped_tracks", ev.SkippedTracks)
		}
		entry.Str("output", ev.DestinationPath).Msg("trim finished")
		return
	}

	if ev.Progress+1e-9 < r.next {
		return
	}
	r.logger.Info().
		Str("output", ev.DestinationPath).
		Str("progress", fmt.Sprintf("%.0f%%", ev.Progress*100)).
		Msg("trimming")
	r.next = (math.Floor(ev.Progress/r.step+1e-9) + 1) * r.step
}

// EventWriter prints each event's flat record as one JSON line
type EventWriter struct {
	enc *json.Encoder
}

// NewEventWriter creates an EventWriter on w
func NewEventWriter(w io.Writer) *EventWriter {
	return &EventWriter{enc: json.NewEncoder(w)}
}

// Report implements video.ProgressReporter
func (w *EventWriter) Report(ev video.ProgressEvent) {
	_ = w.enc.Encode(ev.Record())
}

// Tee forwards every event to each reporter in order
type Tee []video.ProgressReporter

// Report implements video.ProgressReporter
func (t Tee) Report(ev video.ProgressEvent) {
	for _, r := range t {
		if r != nil {
			r.Report(ev)
		}
	}
}

var (
	_ video.ProgressReporter = (*BarReporter)(nil)
	_ video.ProgressReporter = (*LogReporter)(nil)
	_ video.ProgressReporter = (*EventWriter)(nil)
	_ video.ProgressReporter = Tee(nil)
)
