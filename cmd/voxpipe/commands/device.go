package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gonum.org/v1/gonum/floats"

	"github.com/haivivi/voxpipe/pkg/amp"
	"github.com/haivivi/voxpipe/pkg/archive"
	"github.com/haivivi/voxpipe/pkg/audio/pcm"
	"github.com/haivivi/voxpipe/pkg/audio/tones"
	"github.com/haivivi/voxpipe/pkg/board"
	"github.com/haivivi/voxpipe/pkg/config"
	"github.com/haivivi/voxpipe/pkg/metrics"
	"github.com/haivivi/voxpipe/pkg/pipeline"
	"github.com/haivivi/voxpipe/pkg/settings"
)

// silenceFloor is the level reported for digital silence.
const silenceFloor = -96.0

// device is the pipeline running on the simulated board together with its
// recorder, metrics and stream subscribers.
type device struct {
	cfg *config.Config
	log *slog.Logger

	board    *board.Board
	pipe     *pipeline.Pipeline
	store    settings.Store
	recorder *archive.Recorder
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	hub      *hub
	closers  []io.Closer

	mu      sync.Mutex
	level   float64
	started time.Time
}

func newDevice(cfg *config.Config, log *slog.Logger) (d *device, err error) {
	d = &device{cfg: cfg, log: log, level: silenceFloor}
	defer func() {
		if err != nil {
			d.Close()
		}
	}()

	src, err := newSource(cfg.Board)
	if err != nil {
		return nil, err
	}
	sink, err := d.newSink(cfg.Board.Sink)
	if err != nil {
		return nil, err
	}
	d.board = board.New(board.Options{Source: src, Sink: sink, Logger: log})

	if cfg.Settings.Dir != "" {
		st, err := settings.NewBadger(settings.BadgerOptions{Dir: cfg.Settings.Dir, Logger: log})
		if err != nil {
			return nil, err
		}
		d.store = st
	} else {
		d.store = settings.NewMemory()
	}
	d.closers = append(d.closers, d.store)

	d.pipe, err = pipeline.New(cfg.Pipeline, d.board.Hardware(),
		pipeline.WithLogger(log),
		pipeline.WithSettings(d.store),
	)
	if err != nil {
		return nil, err
	}

	if cfg.Board.BootTone != "" {
		clip, err := loadClip(cfg.Board.BootTone)
		if err != nil {
			return nil, fmt.Errorf("boot tone: %w", err)
		}
		d.pipe.SetDefaultAudio(clip)
	}

	if store, err := newArchive(cfg.Archive); err != nil {
		return nil, err
	} else if store != nil {
		d.recorder = archive.NewRecorder(store, archive.RecorderConfig{
			Segment: cfg.Archive.Segment,
			Logger:  log,
		})
	}

	d.registry = prometheus.NewRegistry()
	d.metrics = metrics.New(d.registry, d.pipe.Stats)
	d.hub = newHub(d.metrics.StreamClients)
	return d, nil
}

func newSource(b config.Board) (board.Source, error) {
	switch b.Source {
	case "silence":
		return board.Silence{}, nil
	case "tone":
		return board.NewTone(b.ToneHz), nil
	}
	data, err := board.LoadWAV(b.Source, pcm.L16Mono16K)
	if err != nil {
		return nil, err
	}
	samples := make([]int16, len(data)/2)
	pcm.Int16s(samples, data)
	return board.NewLoop(samples), nil
}

func (d *device) newSink(name string) (io.Writer, error) {
	switch name {
	case "", "none":
		return nil, nil
	case "speaker":
		s, err := board.NewSpeaker(amp.Format)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, s)
		return s, nil
	}
	w, err := board.CreateWAV(name, amp.Format)
	if err != nil {
		return nil, err
	}
	d.closers = append(d.closers, w)
	return w, nil
}

// loadClip renders a built-in tone or loads a WAV file as amplifier audio.
func loadClip(name string) ([]byte, error) {
	if t := tones.ByID(name); t != nil {
		return t.Render(amp.Format, 0.8), nil
	}
	if _, err := os.Stat(name); err != nil {
		return nil, fmt.Errorf("%q is neither a tone %v nor a readable file: %w", name, tones.IDs(), err)
	}
	return board.LoadWAV(name, amp.Format)
}

func newArchive(a config.Archive) (archive.Store, error) {
	switch a.Kind {
	case config.ArchiveLocal:
		return archive.NewLocal(a.Dir)
	case config.ArchiveS3:
		client := archive.NewS3Client(archive.S3Options{Region: a.Region, Endpoint: a.Endpoint})
		return archive.NewS3(client, a.Bucket, a.Prefix), nil
	}
	return nil, nil
}

// Run runs the board, the pipeline and the block consumer until ctx is
// done. The boot tone is played once the pipeline is up.
func (d *device) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.mu.Lock()
	d.started = time.Now()
	d.mu.Unlock()

	var wg sync.WaitGroup
	errc := make(chan error, 3)
	goRun := func(fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errc <- err
				cancel()
			}
		}()
	}
	goRun(d.board.Run)
	goRun(d.pipe.Run)
	goRun(d.consume)

	if d.cfg.Board.BootTone != "" {
		if err := d.pipe.PlayDefault(); err != nil {
			d.log.Warn("boot tone", "error", err)
		}
	}

	<-ctx.Done()
	wg.Wait()
	d.hub.close()
	if d.recorder != nil {
		if err := d.recorder.Flush(context.Background()); err != nil {
			d.log.Error("flush recording", "error", err)
			d.metrics.ArchiveErrors.Inc()
		}
	}
	select {
	case err := <-errc:
		return err
	default:
		return nil
	}
}

// consume reads every recognizer block and hands it to the level meter,
// the stream subscribers and the recorder.
func (d *device) consume(ctx context.Context) error {
	block := make([]int16, d.pipe.BlockLen())
	scratch := make([]float64, len(block))
	for {
		if err := d.pipe.ReadBlock(ctx, block); err != nil {
			return err
		}
		lvl := level(block, scratch)
		d.mu.Lock()
		d.level = lvl
		d.mu.Unlock()
		d.metrics.InputLevel.Set(lvl)

		d.hub.publish(block)

		if d.recorder == nil {
			continue
		}
		before := d.recorder.Stored()
		if err := d.recorder.Write(ctx, block); err != nil {
			d.log.Error("record", "error", err)
			d.metrics.ArchiveErrors.Inc()
		}
		d.metrics.SegmentsStored.Add(float64(d.recorder.Stored() - before))
	}
}

// level returns the RMS level of block in dBFS. scratch must be as long as
// block.
func level(block []int16, scratch []float64) float64 {
	if len(block) == 0 {
		return silenceFloor
	}
	x := scratch[:len(block)]
	for i, s := range block {
		x[i] = float64(s)
	}
	floats.Scale(1.0/32768, x)
	rms := math.Sqrt(floats.Dot(x, x) / float64(len(x)))
	if rms == 0 {
		return silenceFloor
	}
	return max(silenceFloor, 20*math.Log10(rms))
}

// InputLevel returns the level of the latest recognizer block.
func (d *device) InputLevel() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.level
}

// Uptime returns how long Run has been running.
func (d *device) Uptime() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started.IsZero() {
		return 0
	}
	return time.Since(d.started)
}

// Close releases the settings store and the audio sinks.
func (d *device) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}
