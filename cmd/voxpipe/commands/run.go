package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haivivi/voxpipe/pkg/config"
	"github.com/haivivi/voxpipe/pkg/pipeline"
)

var (
	// Command-line overrides
	flagSource     string
	flagSink       string
	flagLoopback   string
	flagWebAddr    string
	flagArchiveDir string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the audio pipeline",
	Long: `Run the audio pipeline on the simulated board until interrupted.

The recognizer blocks are served as a websocket stream on /api/stream,
the counters on /api/stats and /metrics, and the controls on /api/control.

Examples:
  voxpipe run --source speech.wav --sink speaker
  voxpipe run --loopback direct --archive-dir ./recordings`,
	RunE: runDevice,
}

func init() {
	runCmd.Flags().StringVar(&flagSource, "source", "", `what the microphones hear: "silence", "tone" or a WAV file`)
	runCmd.Flags().StringVar(&flagSink, "sink", "", `where the amplifier plays: "none", "speaker" or a WAV file`)
	runCmd.Flags().StringVar(&flagLoopback, "loopback", "", "echo reference mode: none, ring or direct")
	runCmd.Flags().StringVar(&flagWebAddr, "web", "", "web listen address, empty keeps the configured one")
	runCmd.Flags().StringVar(&flagArchiveDir, "archive-dir", "", "record recognizer audio into this directory")

	rootCmd.AddCommand(runCmd)
}

// applyOverrides applies the run flags to cfg and validates the result.
func applyOverrides(cfg *config.Config) error {
	if flagSource != "" {
		cfg.Board.Source = flagSource
	}
	if flagSink != "" {
		cfg.Board.Sink = flagSink
	}
	if flagLoopback != "" {
		cfg.Pipeline.Loopback = pipeline.LoopbackMode(flagLoopback)
	}
	if flagWebAddr != "" {
		cfg.Web.Addr = flagWebAddr
	}
	if flagArchiveDir != "" {
		cfg.Archive.Kind = config.ArchiveLocal
		cfg.Archive.Dir = flagArchiveDir
	}
	return cfg.Validate()
}

func runDevice(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyOverrides(cfg); err != nil {
		return err
	}

	dev, err := newDevice(cfg, log)
	if err != nil {
		return err
	}
	defer dev.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Web.Addr != "" {
		web := newWebServer(dev)
		go func() {
			if err := web.Serve(ctx, cfg.Web.Addr); err != nil {
				log.Error("web server", "error", err)
			}
		}()
		fmt.Fprintf(cmd.OutOrStdout(), "Control API: http://%s/api/stats\n", cfg.Web.Addr)
	}
	if dev.recorder != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Recording session %s\n", dev.recorder.Session())
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl+C to exit")

	if err := dev.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
