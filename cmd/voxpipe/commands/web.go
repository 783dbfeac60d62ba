package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haivivi/voxpipe/pkg/amp"
	"github.com/haivivi/voxpipe/pkg/audio/tones"
	"github.com/haivivi/voxpipe/pkg/pipeline"
)

const streamWriteTimeout = 2 * time.Second

// webServer serves the control API, the metrics and the audio stream.
type webServer struct {
	dev      *device
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func newWebServer(d *device) *webServer {
	return &webServer{
		dev: d,
		log: d.log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (ws *webServer) handler() http.Handler {
	mux := http.NewServeMux()
	route := func(path string, h http.HandlerFunc) {
		counter := ws.dev.metrics.HTTPRequests.MustCurryWith(prometheus.Labels{"path": path})
		mux.Handle(path, promhttp.InstrumentHandlerCounter(counter, h))
	}
	route("/api/stats", ws.handleStats)
	route("/api/control", ws.handleControl)
	mux.Handle("/api/stream", http.HandlerFunc(ws.handleStream))
	mux.Handle("/metrics", promhttp.HandlerFor(ws.dev.registry, promhttp.HandlerOpts{}))
	return mux
}

// Serve serves on addr until ctx is done.
func (ws *webServer) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: ws.handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()
	ws.log.Info("web server listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// statusResponse is the body of GET /api/stats.
type statusResponse struct {
	Uptime        float64        `json:"uptime_seconds"`
	InputLevel    float64        `json:"input_level_dbfs"`
	StreamClients int            `json:"stream_clients"`
	Archive       *archiveStatus `json:"archive,omitempty"`
	Pipeline      pipeline.Stats `json:"pipeline"`
}

type archiveStatus struct {
	Session  string  `json:"session"`
	Segments int     `json:"segments"`
	Recorded float64 `json:"recorded_seconds"`
}

func (ws *webServer) status() statusResponse {
	d := ws.dev
	resp := statusResponse{
		Uptime:        d.Uptime().Seconds(),
		InputLevel:    d.InputLevel(),
		StreamClients: d.hub.len(),
		Pipeline:      d.pipe.Stats(),
	}
	if d.recorder != nil {
		resp.Archive = &archiveStatus{
			Session:  d.recorder.Session(),
			Segments: d.recorder.Stored(),
			Recorded: d.recorder.Duration().Seconds(),
		}
	}
	return resp
}

func (ws *webServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, ws.status())
}

// controlRequest is the body of POST /api/control.
type controlRequest struct {
	// Action is mute, unmute, volume, loopback_on, loopback_off, play or
	// stop.
	Action string `json:"action"`
	// Volume is the volume for the volume action.
	Volume int `json:"volume,omitempty"`
	// Tone is the tone ID for the play action.
	Tone string `json:"tone,omitempty"`
}

func (ws *webServer) handleControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	p := ws.dev.pipe
	ctx := r.Context()
	var err error
	var msg string
	switch req.Action {
	case "mute":
		err = p.Mute(ctx)
		msg = "Microphones muted"
	case "unmute":
		err = p.Unmute(ctx)
		msg = "Microphones unmuted"
	case "volume":
		err = p.SetVolume(ctx, req.Volume)
		msg = fmt.Sprintf("Volume set to %d", p.Settings().Volume)
	case "loopback_on":
		err = p.EnableLoopback(ctx)
		msg = "Loopback enabled"
	case "loopback_off":
		err = p.DisableLoopback(ctx)
		msg = "Loopback disabled"
	case "play":
		t := tones.ByID(req.Tone)
		if t == nil {
			http.Error(w, fmt.Sprintf("Unknown tone %q", req.Tone), http.StatusBadRequest)
			return
		}
		err = p.PlayClip(ctx, t.Render(amp.Format, 0.8))
		msg = "Played " + t.Name
	case "stop":
		p.StopPlayback()
		msg = "Playback stopped"
	default:
		http.Error(w, "Unknown action: "+req.Action, http.StatusBadRequest)
		return
	}

	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, amp.ErrBusy) || errors.Is(err, amp.ErrAborted) {
			code = http.StatusConflict
		}
		ws.log.Warn("control action failed", "action", req.Action, "error", err)
		http.Error(w, err.Error(), code)
		return
	}
	ws.log.Info("control action", "action", req.Action, "result", msg)
	writeJSON(w, http.StatusOK, map[string]any{
		"message":  msg,
		"settings": p.Settings(),
	})
}

// handleStream sends every recognizer block as a binary message of 16 kHz
// mono little-endian PCM.
func (ws *webServer) handleStream(w http.ResponseWriter, r *http.Request) {
	sub := ws.dev.hub.subscribe()
	if sub == nil {
		http.Error(w, "Shutting down", http.StatusServiceUnavailable)
		return
	}
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.dev.hub.unsubscribe(sub)
		return
	}
	defer conn.Close()

	// The read loop only notices the peer going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ws.log.Debug("stream subscriber connected", "remote", r.RemoteAddr)
	defer func() {
		dropped := ws.dev.hub.unsubscribe(sub)
		ws.log.Debug("stream subscriber gone", "remote", r.RemoteAddr, "dropped", dropped)
	}()
	for {
		select {
		case <-gone:
			return
		case msg, ok := <-sub.ch:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(time.Second))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
