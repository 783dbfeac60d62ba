package archive

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haivivi/voxpipe/pkg/audio/pcm"
)

// Format is the format of every recording.
const Format = pcm.L16Mono16K

// DefaultSegment is the default recording length.
const DefaultSegment = 30 * time.Second

// RecorderConfig configures a Recorder.
type RecorderConfig struct {
	// Segment is the length of one object. Defaults to DefaultSegment.
	Segment time.Duration

	// Session groups the objects of one run. Defaults to a random UUID.
	Session string

	Logger *slog.Logger
}

// Recorder cuts recognizer audio into WAV segments named
// <session>/<sequence>.wav.
type Recorder struct {
	store   Store
	session string
	limit   int
	log     *slog.Logger

	mu       sync.Mutex
	buf      []int16
	seq      int
	segments []string
	samples  uint64
}

// NewRecorder returns a Recorder writing to store.
func NewRecorder(store Store, cfg RecorderConfig) *Recorder {
	if cfg.Segment <= 0 {
		cfg.Segment = DefaultSegment
	}
	if cfg.Session == "" {
		cfg.Session = uuid.NewString()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	limit := int(Format.SamplesInDuration(cfg.Segment))
	return &Recorder{
		store:   store,
		session: cfg.Session,
		limit:   limit,
		log:     cfg.Logger,
		buf:     make([]int16, 0, limit),
	}
}

// Session returns the session name.
func (r *Recorder) Session() string {
	return r.session
}

// Write appends a block of 16 kHz mono samples and stores every segment
// that becomes full.
func (r *Recorder) Write(ctx context.Context, block []int16) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples += uint64(len(block))
	for len(block) > 0 {
		n := min(len(block), r.limit-len(r.buf))
		r.buf = append(r.buf, block[:n]...)
		block = block[n:]
		if len(r.buf) == r.limit {
			if err := r.flushLocked(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// Flush stores the partial segment, if any.
func (r *Recorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushLocked(ctx)
}

func (r *Recorder) flushLocked(ctx context.Context) error {
	if len(r.buf) == 0 {
		return nil
	}
	name := fmt.Sprintf("%s/%06d.wav", r.session, r.seq)
	data, err := EncodeWAV(Format, r.buf)
	if err != nil {
		return err
	}
	// Failed segments are dropped.
	r.buf = r.buf[:0]
	r.seq++

	w, err := r.store.Write(ctx, name)
	if err != nil {
		return fmt.Errorf("archive: open %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("archive: write %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("archive: close %s: %w", name, err)
	}
	r.segments = append(r.segments, name)
	r.log.Debug("archive: segment stored", "name", name, "bytes", len(data))
	return nil
}

// Segments returns the names of the stored segments in order.
func (r *Recorder) Segments() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.segments...)
}

// Stored returns the number of stored segments.
func (r *Recorder) Stored() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.segments)
}

// Duration returns the length of the audio written so far.
func (r *Recorder) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Duration(r.samples) * time.Second / time.Duration(Format.SampleRate())
}
