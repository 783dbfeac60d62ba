package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/haivivi/voxpipe/pkg/audio/pcm"
	"github.com/haivivi/voxpipe/pkg/pipeline"
)

func TestDefaultValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope", DefaultConfigFile)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Path() != path {
		t.Errorf("path got=%q", cfg.Path())
	}
	if cfg.Pipeline != pipeline.DefaultConfig() {
		t.Errorf("pipeline got=%+v", cfg.Pipeline)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Error("Load created the file")
	}
}

func TestLoadPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultConfigFile)
	data := `pipeline:
  channels: 2
  layout: interleaved
  timeout: 500ms
  loopback: direct
board:
  source: silence
archive:
  kind: local
  dir: /tmp/rec
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	p := cfg.Pipeline
	if p.Channels != 2 || p.Layout != pcm.Interleaved || p.Timeout != 500*time.Millisecond || p.Loopback != pipeline.LoopbackDirect {
		t.Errorf("pipeline got=%+v", p)
	}
	if p.Accumulate != 3 || p.QueueDepth != 5 {
		t.Errorf("defaults lost: %+v", p)
	}
	if cfg.Board.Source != "silence" || cfg.Board.Sink != "none" {
		t.Errorf("board got=%+v", cfg.Board)
	}
	if cfg.Archive.Segment != 30*time.Second {
		t.Errorf("archive segment got=%v", cfg.Archive.Segment)
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", DefaultConfigFile)
	cfg := Default()
	cfg.SetPath(path)
	cfg.Pipeline.Channels = 4
	cfg.Board.Sink = "out.wav"
	cfg.Settings.Dir = "/var/lib/voxpipe"
	if err := cfg.Save(); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Pipeline != cfg.Pipeline || got.Board != cfg.Board || got.Settings != cfg.Settings || got.Web != cfg.Web {
		t.Errorf("round trip got=%+v want=%+v", got, cfg)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"channels", func(c *Config) { c.Pipeline.Channels = 0 }},
		{"source", func(c *Config) { c.Board.Source = "" }},
		{"tone", func(c *Config) { c.Board.ToneHz = 9000 }},
		{"local dir", func(c *Config) { c.Archive.Kind = ArchiveLocal }},
		{"bucket", func(c *Config) { c.Archive.Kind = ArchiveS3 }},
		{"kind", func(c *Config) { c.Archive.Kind = "ftp" }},
		{"segment", func(c *Config) {
			c.Archive = Archive{Kind: ArchiveLocal, Dir: "x", Segment: time.Millisecond}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("got=%v", err)
			}
		})
	}
}

func TestLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultConfigFile)
	os.WriteFile(path, []byte("pipeline:\n  channels: 9\n"), 0600)
	if _, err := Load(path); !errors.Is(err, pipeline.ErrInvalidConfig) {
		t.Errorf("got=%v", err)
	}
}
