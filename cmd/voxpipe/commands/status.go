package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/voxpipe/pkg/cli"
)

var httpClient = &http.Client{Timeout: 5 * time.Second}

// apiURL returns the URL of path on the configured web address.
func apiURL(path string) (string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	if flagWebAddr != "" {
		cfg.Web.Addr = flagWebAddr
	}
	if cfg.Web.Addr == "" {
		return "", fmt.Errorf("web server disabled in %s", cfg.Path())
	}
	return "http://" + cfg.Web.Addr + path, nil
}

func checkResponse(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s: %s", resp.Status, bytes.TrimSpace(body))
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the counters of a running instance",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := outputFormat()
		if err != nil {
			return err
		}
		if output == "" {
			f = cli.FormatTable
		}
		url, err := apiURL("/api/stats")
		if err != nil {
			return err
		}
		resp, err := httpClient.Get(url)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if err := checkResponse(resp); err != nil {
			return err
		}
		var st statusResponse
		if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
			return fmt.Errorf("decode status: %w", err)
		}
		if f == cli.FormatTable {
			return cli.Output(cmd.OutOrStdout(), statusTable(st), f)
		}
		return cli.Output(cmd.OutOrStdout(), st, f)
	},
}

func statusTable(st statusResponse) cli.Table {
	p := st.Pipeline
	u := func(v uint64) string { return strconv.FormatUint(v, 10) }
	rows := [][]string{
		{"uptime", cli.FormatDuration(time.Duration(st.Uptime * float64(time.Second)))},
		{"muted", strconv.FormatBool(p.Settings.Muted)},
		{"volume", strconv.Itoa(p.Settings.Volume)},
		{"loopback", strconv.FormatBool(p.Orchestrator.Loopback)},
		{"input level", cli.FormatLevel(st.InputLevel)},
		{"stream clients", strconv.Itoa(st.StreamClients)},
		{"capture halves", u(p.Orchestrator.Halves)},
		{"capture restarts", u(p.Orchestrator.Restarts)},
		{"capture late", u(p.Orchestrator.CaptureLate)},
		{"blocks", u(p.Processor.Blocks)},
		{"blocks dropped", u(p.Processor.Dropped)},
		{"queue", fmt.Sprintf("%d (high water %d)", p.Processor.Queued, p.Processor.HighWater)},
		{"amplifier", fmt.Sprintf("%s, %d transfers", p.Amplifier.State, p.Amplifier.Sent)},
	}
	if r := p.Ring; r != nil {
		rows = append(rows,
			[]string{"ring", r.State.String()},
			[]string{"ring buffered", cli.FormatBytes(int64(r.Buffered))},
			[]string{"ring syncs", u(r.Syncs)},
		)
	}
	if d := p.Direct; d != nil {
		rows = append(rows,
			[]string{"direct", fmt.Sprintf("running=%v", d.Running)},
			[]string{"direct faults", u(d.Faults)},
		)
	}
	if a := st.Archive; a != nil {
		rows = append(rows,
			[]string{"archive session", a.Session},
			[]string{"archive segments", strconv.Itoa(a.Segments)},
		)
	}
	return cli.Table{Header: []string{"KEY", "VALUE"}, Rows: rows}
}

var controlCmd = &cobra.Command{
	Use:   "control <action> [value]",
	Short: "Control a running instance",
	Long: `Send a control action to a running instance.

Actions:
  mute, unmute           stop or start the microphones
  volume <0-100>         set the playback volume
  loopback <on|off>      enable or disable the echo reference
  play <tone>            play a built-in tone
  stop                   stop the playback`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := parseControl(args)
		if err != nil {
			return err
		}
		url, err := apiURL("/api/control")
		if err != nil {
			return err
		}
		body, _ := json.Marshal(req)
		resp, err := httpClient.Post(url, "application/json", bytes.NewReader(body))
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if err := checkResponse(resp); err != nil {
			return err
		}
		var out struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %s\n", out.Message)
		return nil
	},
}

func parseControl(args []string) (controlRequest, error) {
	action := args[0]
	arg := ""
	if len(args) > 1 {
		arg = args[1]
	}
	switch action {
	case "mute", "unmute", "stop":
		return controlRequest{Action: action}, nil
	case "volume":
		v, err := strconv.Atoi(arg)
		if err != nil || v < 0 || v > 100 {
			return controlRequest{}, fmt.Errorf("volume must be 0 to 100, got %q", arg)
		}
		return controlRequest{Action: action, Volume: v}, nil
	case "loopback":
		switch arg {
		case "on":
			return controlRequest{Action: "loopback_on"}, nil
		case "off":
			return controlRequest{Action: "loopback_off"}, nil
		}
		return controlRequest{}, fmt.Errorf("loopback must be on or off, got %q", arg)
	case "play":
		if arg == "" {
			return controlRequest{}, fmt.Errorf("play needs a tone")
		}
		return controlRequest{Action: action, Tone: arg}, nil
	}
	return controlRequest{}, fmt.Errorf("unknown action %q", action)
}

func init() {
	statusCmd.Flags().StringVar(&flagWebAddr, "web", "", "address of the running instance")
	controlCmd.Flags().StringVar(&flagWebAddr, "web", "", "address of the running instance")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(controlCmd)
}
