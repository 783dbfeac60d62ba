package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/haivivi/voxpipe/pkg/config"
	"github.com/haivivi/voxpipe/pkg/pipeline"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLevel(t *testing.T) {
	full := make([]int16, 160)
	half := make([]int16, 160)
	for i := range full {
		if i%2 == 0 {
			full[i], half[i] = 32767, 16384
		} else {
			full[i], half[i] = -32768, -16384
		}
	}
	scratch := make([]float64, 160)
	tests := []struct {
		name  string
		block []int16
		want  float64
	}{
		{"silence", make([]int16, 160), silenceFloor},
		{"empty", nil, silenceFloor},
		{"full scale", full, 0},
		{"half scale", half, -6.02},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := level(tt.block, scratch); math.Abs(got-tt.want) > 0.01 {
				t.Errorf("got=%.3f want=%.3f", got, tt.want)
			}
		})
	}
}

func TestHub(t *testing.T) {
	h := newHub(prometheus.NewGauge(prometheus.GaugeOpts{Name: "clients"}))
	a := h.subscribe()
	b := h.subscribe()
	if h.len() != 2 {
		t.Fatalf("len: got=%d", h.len())
	}

	h.publish([]int16{1, -1})
	msg := <-a.ch
	if !bytes.Equal(msg, []byte{1, 0, 0xff, 0xff}) {
		t.Errorf("got=%v", msg)
	}

	for range subscriberDepth + 3 {
		h.publish([]int16{0})
	}
	if dropped := h.unsubscribe(b); dropped != 4 {
		t.Errorf("dropped: got=%d want=4", dropped)
	}
	if _, ok := <-b.ch; !ok {
		t.Error("buffered blocks lost on unsubscribe")
	}

	h.close()
	for range a.ch {
	}
	if h.subscribe() != nil {
		t.Error("subscribe after close")
	}
	h.publish([]int16{1})
}

func TestParseControl(t *testing.T) {
	tests := []struct {
		args    []string
		want    controlRequest
		wantErr bool
	}{
		{[]string{"mute"}, controlRequest{Action: "mute"}, false},
		{[]string{"volume", "35"}, controlRequest{Action: "volume", Volume: 35}, false},
		{[]string{"volume", "101"}, controlRequest{}, true},
		{[]string{"volume"}, controlRequest{}, true},
		{[]string{"loopback", "on"}, controlRequest{Action: "loopback_on"}, false},
		{[]string{"loopback", "maybe"}, controlRequest{}, true},
		{[]string{"play", "boot"}, controlRequest{Action: "play", Tone: "boot"}, false},
		{[]string{"play"}, controlRequest{}, true},
		{[]string{"reboot"}, controlRequest{}, true},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			got, err := parseControl(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got=%+v want=%+v", got, tt.want)
			}
		})
	}
}

func TestApplyOverrides(t *testing.T) {
	defer func() { flagSource, flagLoopback, flagArchiveDir = "", "", "" }()

	cfg := config.Default()
	flagSource = "silence"
	flagLoopback = "direct"
	flagArchiveDir = "rec"
	if err := applyOverrides(cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Board.Source != "silence" || cfg.Pipeline.Loopback != pipeline.LoopbackDirect {
		t.Errorf("got source=%s loopback=%s", cfg.Board.Source, cfg.Pipeline.Loopback)
	}
	if cfg.Archive.Kind != config.ArchiveLocal || cfg.Archive.Dir != "rec" {
		t.Errorf("archive: got=%+v", cfg.Archive)
	}

	flagLoopback = "mirror"
	if err := applyOverrides(config.Default()); err == nil {
		t.Error("expected error for an unknown loopback mode")
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewDeviceErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"missing source", func(c *config.Config) { c.Board.Source = filepath.Join(t.TempDir(), "none.wav") }},
		{"missing boot tone", func(c *config.Config) { c.Board.BootTone = "fanfare" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			if _, err := newDevice(cfg, testLogger()); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func postControl(t *testing.T, url string, req controlRequest) *http.Response {
	t.Helper()
	body, _ := json.Marshal(req)
	resp, err := http.Post(url+"/api/control", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	return resp
}

func TestDeviceWeb(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Archive = config.Archive{Kind: config.ArchiveLocal, Dir: dir, Segment: time.Second}
	dev, err := newDevice(cfg, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- dev.Run(ctx) }()

	srv := httptest.NewServer(newWebServer(dev).handler())
	defer srv.Close()

	// Stream
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/stream", nil)
	if err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	mt, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if mt != websocket.BinaryMessage || len(data) != 2*dev.pipe.BlockLen() {
		t.Errorf("stream message: type=%d len=%d", mt, len(data))
	}

	// Stats
	resp, err := http.Get(srv.URL + "/api/stats")
	if err != nil {
		t.Fatal(err)
	}
	var st statusResponse
	err = json.NewDecoder(resp.Body).Decode(&st)
	resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	if st.Pipeline.Processor.Blocks == 0 || st.StreamClients != 1 {
		t.Errorf("stats: blocks=%d clients=%d", st.Pipeline.Processor.Blocks, st.StreamClients)
	}
	if st.InputLevel <= silenceFloor {
		t.Errorf("input level: got=%v", st.InputLevel)
	}
	if st.Archive == nil || st.Pipeline.Ring == nil {
		t.Errorf("missing sections: archive=%v ring=%v", st.Archive, st.Pipeline.Ring)
	}

	// Control
	controls := []struct {
		req  controlRequest
		code int
	}{
		{controlRequest{Action: "volume", Volume: 30}, http.StatusOK},
		{controlRequest{Action: "mute"}, http.StatusOK},
		{controlRequest{Action: "play", Tone: "nope"}, http.StatusBadRequest},
		{controlRequest{Action: "reboot"}, http.StatusBadRequest},
	}
	for _, c := range controls {
		if resp := postControl(t, srv.URL, c.req); resp.StatusCode != c.code {
			t.Errorf("%s: got=%d want=%d", c.req.Action, resp.StatusCode, c.code)
		}
	}
	if s := dev.pipe.Settings(); !s.Muted || s.Volume != 30 {
		t.Errorf("settings: got=%+v", s)
	}
	if resp, err := http.Get(srv.URL + "/api/control"); err != nil || resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET control: %v %v", resp, err)
	}

	// Metrics
	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	for _, name := range []string{"voxpipe_blocks_total", "voxpipe_muted 1", "voxpipe_stream_clients 1", "voxpipe_http_requests_total"} {
		if !bytes.Contains(body, []byte(name)) {
			t.Errorf("metrics lack %q", name)
		}
	}

	// Shutdown closes the stream and flushes the recording.
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	conn.Close()

	if dev.recorder.Stored() == 0 {
		t.Fatal("no recording stored")
	}
	name := filepath.Join(dir, filepath.FromSlash(dev.recorder.Segments()[0]))
	if _, err := os.Stat(name); err != nil {
		t.Error(err)
	}
}
