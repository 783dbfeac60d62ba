// Package settings persists the user-facing device settings: volume, mute
// and echo reference. Values are msgpack encoded so that fields can be added
// without breaking stored records.
package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrNotFound is returned by Load when nothing has been saved yet.
var ErrNotFound = errors.New("settings: not found")

// Settings are the persisted device settings.
type Settings struct {
	Volume   int  `msgpack:"volume" json:"volume"`
	Muted    bool `msgpack:"muted" json:"muted"`
	Loopback bool `msgpack:"loopback" json:"loopback"`
}

// Default returns the settings of a fresh device.
func Default() Settings {
	return Settings{
		Volume:   60,
		Loopback: true,
	}
}

// Store loads and saves Settings.
type Store interface {
	// Load returns the saved settings or ErrNotFound.
	Load(ctx context.Context) (Settings, error)

	// Save replaces the saved settings.
	Save(ctx context.Context, s Settings) error

	Close() error
}

// LoadOrDefault returns the saved settings, or Default() if none exist.
func LoadOrDefault(ctx context.Context, st Store) (Settings, error) {
	s, err := st.Load(ctx)
	if errors.Is(err, ErrNotFound) {
		return Default(), nil
	}
	return s, err
}

func encode(s Settings) ([]byte, error) {
	b, err := msgpack.Marshal(&s)
	if err != nil {
		return nil, fmt.Errorf("settings: encode: %w", err)
	}
	return b, nil
}

func decode(b []byte) (Settings, error) {
	var s Settings
	if err := msgpack.Unmarshal(b, &s); err != nil {
		return Settings{}, fmt.Errorf("settings: decode: %w", err)
	}
	return s, nil
}
