package cmd

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"clipmux/domain/video"
	"clipmux/infrastructure/mp4"

	"github.com/spf13/cobra"
)

// ProbeFunc indexes a source file
type ProbeFunc func(path string) (mp4.Info, error)

var probeCmd = &cobra.Command{
	Use:   "probe <source>",
	Short: "List the tracks of an MP4 file",
	Long: `List the tracks of an MP4 file and which of them a trim would copy.

Example:
  clipmux probe service.mp4`,
	Args: cobra.ExactArgs(1),
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	return RunProbeWithDependencies(mp4.Probe, args[0], os.Stdout)
}

// RunProbeWithDependencies runs the probe command with injected dependencies (for testing)
func RunProbeWithDependencies(probe ProbeFunc, path string, out OutputWriter) error {
	info, err := probe(path)
	if err != nil {
		return fmt.Errorf("failed to probe %s: %w", path, err)
	}

	fmt.Fprintf(out, "%s: %d tracks, %s\n", path, len(info.Tracks), formatMicros(info.DurationUs))
	if len(info.Tracks) == 0 {
		return nil
	}

	headers := []string{"Index", "Type", "Codec", "Timescale", "Duration", "Samples", "Language", "Video only", "With audio"}
	aligns := []columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft, alignLeft, alignLeft}

	rows := make([][]string, 0, len(info.Tracks))
	for _, t := range info.Tracks {
		rows = append(rows, []string{
			strconv.Itoa(t.SourceIndex),
			t.MimeType,
			t.Format.Codec,
			strconv.FormatUint(uint64(t.Format.Timescale), 10),
			formatMicros(t.Format.DurationUs),
			strconv.Itoa(t.Format.SampleCount),
			t.Format.Language,
			yesNo(t.Selected(false)),
			yesNo(t.Selected(true)),
		})
	}

	fmt.Fprintln(out, renderTable(headers, rows, aligns))
	return nil
}

// formatMicros renders a microsecond duration as a clock timestamp
func formatMicros(us int64) string {
	return video.TimestampFromMillis((time.Duration(us) * time.Microsecond).Milliseconds()).String()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
