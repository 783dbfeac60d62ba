package settings

import (
	"context"
	"sync"
)

// Memory is an in-process Store. It still round-trips through the msgpack
// encoding so that it behaves like the persistent store.
type Memory struct {
	mu  sync.Mutex
	val []byte
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// Load implements Store.
func (m *Memory) Load(_ context.Context) (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.val == nil {
		return Settings{}, ErrNotFound
	}
	return decode(m.val)
}

// Save implements Store.
func (m *Memory) Save(_ context.Context, s Settings) error {
	val, err := encode(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.val = val
	return nil
}

// Close implements Store.
func (m *Memory) Close() error {
	return nil
}
