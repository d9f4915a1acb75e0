package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"clipmux/infrastructure/config"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// DefaultOutput is the default output writer for config commands
var DefaultOutput OutputWriter = os.Stdout

// configKeys lists the settable keys in display order
var configKeys = []string{
	"paths.output_directory",
	"paths.history_database",
	"engine.buffer_size",
	"engine.workers",
	"engine.eager_progress",
	"log.level",
	"log.format",
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change configuration values",
	Long: `Show or change the values of the configuration file.

Examples:
  clipmux config show
  clipmux config set engine.workers 4
  clipmux config set paths.output_directory /srv/clips`,
}

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

// --- SHOW command ---

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunConfigShowWithDependencies(GetConfig(), cfgFile, DefaultOutput)
	},
}

// RunConfigShowWithDependencies runs the show command with injected dependencies
func RunConfigShowWithDependencies(cfg *config.Config, configPath string, out OutputWriter) error {
	fmt.Fprintf(out, "Config file: %s\n", configPath)

	rows := make([][]string, 0, len(configKeys))
	for _, key := range configKeys {
		value, err := configValue(cfg, key)
		if err != nil {
			return err
		}
		if key == "engine.buffer_size" {
			value = fmt.Sprintf("%s (%s)", value, humanize.IBytes(uint64(cfg.Engine.BufferSize)))
		}
		rows = append(rows, []string{key, value})
	}

	fmt.Fprintln(out, renderTable([]string{"Key", "Value"}, rows, nil))
	return nil
}

// --- SET command ---

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one configuration value and save the file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunConfigSetWithDependencies(GetConfig(), cfgFile, args[0], args[1], DefaultOutput)
	},
}

// RunConfigSetWithDependencies runs the set command with injected dependencies
func RunConfigSetWithDependencies(cfg *config.Config, configPath, key, value string, out OutputWriter) error {
	updated := *cfg
	if err := setConfigValue(&updated, key, value); err != nil {
		return err
	}
	if err := updated.Validate(); err != nil {
		return err
	}

	if err := config.Save(&updated, configPath); err != nil {
		return err
	}
	*cfg = updated

	fmt.Fprintf(out, "Set %s = %s\n", key, value)
	return nil
}

func configValue(cfg *config.Config, key string) (string, error) {
	switch key {
	case "paths.output_directory":
		return cfg.Paths.OutputDirectory, nil
	case "paths.history_database":
		return cfg.Paths.HistoryDatabase, nil
	case "engine.buffer_size":
		return strconv.Itoa(cfg.Engine.BufferSize), nil
	case "engine.workers":
		return strconv.Itoa(cfg.Engine.Workers), nil
	case "engine.eager_progress":
		return strconv.FormatBool(cfg.Engine.EagerProgress), nil
	case "log.level":
		return cfg.Log.Level, nil
	case "log.format":
		return cfg.Log.Format, nil
	}
	return "", unknownKey(key)
}

func setConfigValue(cfg *config.Config, key, value string) error {
	var err error
	switch key {
	case "paths.output_directory":
		cfg.Paths.OutputDirectory = value
	case "paths.history_database":
		cfg.Paths.HistoryDatabase = value
	case "engine.buffer_size":
		var n uint64
		if n, err = humanize.ParseBytes(value); err == nil {
			cfg.Engine.BufferSize = int(n)
		}
	case "engine.workers":
		cfg.Engine.Workers, err = strconv.Atoi(value)
	case "engine.eager_progress":
		cfg.Engine.EagerProgress, err = strconv.ParseBool(value)
	case "log.level":
		cfg.Log.Level = strings.ToLower(value)
	case "log.format":
		cfg.Log.Format = strings.ToLower(value)
	default:
		return unknownKey(key)
	}

	if err != nil {
		return fmt.Errorf("invalid value %q for %s: %w", value, key, err)
	}
	return nil
}

func unknownKey(key string) error {
	return fmt.Errorf("unknown config key %q. Use one of: %s", key, strings.Join(configKeys, ", "))
}
