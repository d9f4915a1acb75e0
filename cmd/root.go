package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"clipmux/infrastructure/config"
	"clipmux/infrastructure/logging"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "clipmux",
	Short: "Cut a time window out of an MP4 without re-encoding",
	Long: `clipmux copies the samples of an MP4 file that fall inside a time window
into a new MP4 file. Nothing is decoded or re-encoded: the cut starts on the
closest sync point at or before the requested start.

  - Trim one file, optionally keeping its audio
  - Run a manifest of trims concurrently
  - Inspect the tracks of a file
  - Review previous runs

Example:
  clipmux trim --source recording.mp4 --start 00:05:30 --end 00:15:00 --keep-audio`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config/config.yaml)")
}

func initConfig() {
	if cfgFile == "" {
		cfgFile = config.DefaultPath
	}

	loaded, err := config.Load(cfgFile)
	if err != nil {
		// every command can run on defaults
		def := config.Default()
		loaded = &def
	}
	cfg = loaded

	logging.Init(cfg.Log.Level, cfg.Log.Format)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Str("path", cfgFile).Msg("ignoring config file, using defaults")
	}
}

// GetConfig returns the loaded configuration
func GetConfig() *config.Config {
	if cfg == nil {
		def := config.Default()
		return &def
	}
	return cfg
}
