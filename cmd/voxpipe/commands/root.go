package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/haivivi/voxpipe/pkg/cli"
	"github.com/haivivi/voxpipe/pkg/config"
)

var (
	// Global flags
	cfgFile  string
	logLevel string
	output   string
)

var rootCmd = &cobra.Command{
	Use:   "voxpipe",
	Short: "Voice assistant audio pipeline",
	Long: `voxpipe runs the audio front half of a voice assistant: microphone
capture and decimation, the echo reference, the acoustic front end and the
loudspeaker amplifier. The hardware is simulated; the microphones hear a
tone, silence or a looped WAV file and the amplifier plays into the
speaker, a WAV file or nowhere.

Configuration is read from ~/.voxpipe/config.yaml. Use 'voxpipe config init'
to write the defaults.

Examples:
  # Run with the defaults and watch the counters
  voxpipe run
  voxpipe status

  # Mute the microphones of the running instance
  voxpipe control mute

  # Render the boot tone
  voxpipe tone render boot -f boot.wav`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.voxpipe/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "", "output format: yaml, json or table")
}

// loadConfig reads the configuration named by --config.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("config not available: %w", err)
	}
	return cfg, nil
}

// newLogger returns the logger selected by --log-level.
func newLogger() (*slog.Logger, error) {
	return cli.NewLogger(os.Stderr, logLevel)
}

func outputFormat() (cli.OutputFormat, error) {
	return cli.ParseFormat(output)
}
