// Package config loads and saves the voxpipe configuration file.
//
// The file lives in ~/.voxpipe/config.yaml by default and holds the
// pipeline configuration, the simulated board, the settings database, the
// recording archive and the web endpoints. Missing fields keep their
// defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/haivivi/voxpipe/pkg/pipeline"
)

const (
	// DefaultBaseDir is the configuration directory under the home
	// directory.
	DefaultBaseDir = ".voxpipe"
	// DefaultConfigFile is the configuration file name.
	DefaultConfigFile = "config.yaml"
)

// ErrInvalid is wrapped by every validation error. It is the same error as
// pipeline.ErrInvalidConfig.
var ErrInvalid = pipeline.ErrInvalidConfig

// Config is the content of the configuration file.
type Config struct {
	Pipeline pipeline.Config `yaml:"pipeline"`
	Board    Board           `yaml:"board"`
	Settings Settings        `yaml:"settings"`
	Archive  Archive         `yaml:"archive"`
	Web      Web             `yaml:"web"`

	path string
}

// Board configures the simulated hardware.
type Board struct {
	// Source is what the microphones hear: "silence", "tone" or the path of
	// a WAV file, which is looped.
	Source string `yaml:"source"`

	// ToneHz is the frequency of the "tone" source.
	ToneHz float64 `yaml:"tone_hz,omitempty"`

	// Sink is where the amplifier plays: "none", "speaker" or the path of
	// a WAV file to record into.
	Sink string `yaml:"sink"`

	// BootTone names a built-in tone, or a WAV file, played after start.
	// Empty disables it.
	BootTone string `yaml:"boot_tone,omitempty"`
}

// Settings configures the device settings store.
type Settings struct {
	// Dir is the badger directory. Empty keeps settings in memory.
	Dir string `yaml:"dir,omitempty"`
}

// ArchiveKind selects where recordings go.
type ArchiveKind string

const (
	ArchiveNone  ArchiveKind = ""
	ArchiveLocal ArchiveKind = "local"
	ArchiveS3    ArchiveKind = "s3"
)

// Archive configures recording of recognizer audio.
type Archive struct {
	Kind ArchiveKind `yaml:"kind,omitempty"`

	// Dir is the output directory of the local archive.
	Dir string `yaml:"dir,omitempty"`

	Bucket   string `yaml:"bucket,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
	Region   string `yaml:"region,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"`

	// Segment is the length of one recording.
	Segment time.Duration `yaml:"segment,omitempty"`
}

// Web configures the HTTP endpoints.
type Web struct {
	// Addr is the listen address of the control API, metrics and stream.
	// Empty disables the server.
	Addr string `yaml:"addr,omitempty"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Pipeline: pipeline.DefaultConfig(),
		Board: Board{
			Source:   "tone",
			ToneHz:   440,
			Sink:     "none",
			BootTone: "boot",
		},
		Archive: Archive{
			Segment: 30 * time.Second,
		},
		Web: Web{
			Addr: "127.0.0.1:8720",
		},
	}
}

// DefaultPath returns ~/.voxpipe/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: home directory: %w", err)
	}
	return filepath.Join(home, DefaultBaseDir, DefaultConfigFile), nil
}

// Load reads the configuration at path, or at DefaultPath if path is empty.
// A missing file yields the defaults; the file is not created.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	cfg.path = path

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.path = path
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to its path, creating the directory.
func (c *Config) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.MkdirAll(c.Dir(), 0755); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0600); err != nil {
		return fmt.Errorf("config: write: %w", err)
	}
	return nil
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}

// SetPath changes where Save writes.
func (c *Config) SetPath(path string) {
	c.path = path
}

// Dir returns the directory of the config file.
func (c *Config) Dir() string {
	return filepath.Dir(c.path)
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	if err := c.Pipeline.Validate(); err != nil {
		return err
	}
	if c.Board.Source == "" {
		return fmt.Errorf("%w: board source is empty", ErrInvalid)
	}
	if c.Board.Source == "tone" && (c.Board.ToneHz <= 0 || c.Board.ToneHz >= 8000) {
		return fmt.Errorf("%w: tone %v Hz not in (0,8000)", ErrInvalid, c.Board.ToneHz)
	}
	switch c.Archive.Kind {
	case ArchiveNone:
	case ArchiveLocal:
		if c.Archive.Dir == "" {
			return fmt.Errorf("%w: local archive needs a dir", ErrInvalid)
		}
	case ArchiveS3:
		if c.Archive.Bucket == "" {
			return fmt.Errorf("%w: s3 archive needs a bucket", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: archive kind %q", ErrInvalid, c.Archive.Kind)
	}
	if c.Archive.Kind != ArchiveNone && c.Archive.Segment < time.Second {
		return fmt.Errorf("%w: archive segment %v shorter than 1s", ErrInvalid, c.Archive.Segment)
	}
	return nil
}
