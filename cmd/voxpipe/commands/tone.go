package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/voxpipe/pkg/amp"
	"github.com/haivivi/voxpipe/pkg/audio/tones"
	"github.com/haivivi/voxpipe/pkg/board"
	"github.com/haivivi/voxpipe/pkg/cli"
)

var (
	toneFile   string
	toneVolume float64
)

var toneCmd = &cobra.Command{
	Use:   "tone",
	Short: "List and render the built-in tones",
}

var toneListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List the built-in tones",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := outputFormat()
		if err != nil {
			return err
		}
		if output == "" {
			f = cli.FormatTable
		}
		if f != cli.FormatTable {
			type tone struct {
				ID       string `json:"id" yaml:"id"`
				Name     string `json:"name" yaml:"name"`
				Duration int    `json:"duration_ms" yaml:"duration_ms"`
			}
			list := make([]tone, 0, len(tones.All))
			for _, t := range tones.All {
				list = append(list, tone{t.ID, t.Name, t.Duration()})
			}
			return cli.Output(cmd.OutOrStdout(), list, f)
		}
		tbl := cli.Table{Header: []string{"ID", "NAME", "DURATION"}}
		for _, t := range tones.All {
			d := time.Duration(t.Duration()) * time.Millisecond
			tbl.Rows = append(tbl.Rows, []string{t.ID, t.Name, cli.FormatDuration(d)})
		}
		return cli.Output(cmd.OutOrStdout(), tbl, f)
	},
}

var toneRenderCmd = &cobra.Command{
	Use:   "render <id>",
	Short: "Render a tone to a WAV file",
	Long: `Render a built-in tone as 48 kHz stereo into a WAV file.

Example:
  voxpipe tone render boot -f boot.wav --volume 0.8`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t := tones.ByID(args[0])
		if t == nil {
			return fmt.Errorf("unknown tone %q, have %v", args[0], tones.IDs())
		}
		if toneFile == "" {
			toneFile = t.ID + ".wav"
		}
		if toneVolume <= 0 || toneVolume > 1 {
			return fmt.Errorf("volume %v not in (0,1]", toneVolume)
		}

		data := t.Render(amp.Format, toneVolume)
		w, err := board.CreateWAV(toneFile, amp.Format)
		if err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			w.Close()
			return err
		}
		if err := w.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s (%s, %s)\n", toneFile,
			cli.FormatDuration(amp.Format.Duration(int64(len(data)))), cli.FormatBytes(int64(len(data))))
		return nil
	},
}

func init() {
	toneRenderCmd.Flags().StringVarP(&toneFile, "file", "f", "", "output WAV file (default <id>.wav)")
	toneRenderCmd.Flags().Float64Var(&toneVolume, "volume", 1, "volume, 0 to 1")

	toneCmd.AddCommand(toneListCmd)
	toneCmd.AddCommand(toneRenderCmd)
	rootCmd.AddCommand(toneCmd)
}
