package decoder

import (
	"fmt"
	"log/slog"
	"sync"
)

// OpenFunc builds the decode backend configuration for a media path. The
// Manager calls it once per path and the resulting Decoder owns whatever
// it opened.
type OpenFunc func(path string) (Config, error)

// Manager tracks one Decoder per media path so an interactive frontend can
// scrub several clips without reopening backends. Safe for concurrent use.
type Manager struct {
	log  *slog.Logger
	open OpenFunc

	mu       sync.RWMutex
	decoders map[string]*Decoder
}

// NewManager creates a Manager that opens backends through open. If log is
// nil, slog.Default() is used.
func NewManager(open OpenFunc, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		log:      log.With("component", "decoder-manager"),
		open:     open,
		decoders: make(map[string]*Decoder),
	}
}

// Acquire returns the Decoder for path, opening it on first use. If the
// path already has a decoder, the existing one is returned. Opening
// happens under the lock, so concurrent Acquire calls for the same path
// share a single Decoder.
func (m *Manager) Acquire(path string) (*Decoder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d, ok := m.decoders[path]; ok {
		return d, nil
	}
	config, err := m.open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	d, err := New(config)
	if err != nil {
		return nil, fmt.Errorf("decoder for %s: %w", path, err)
	}
	m.decoders[path] = d
	m.log.Info("decoder opened", "path", path)
	return d, nil
}

// Get returns the Decoder for path if one is open.
func (m *Manager) Get(path string) (*Decoder, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.decoders[path]
	return d, ok
}

// Remove closes the decoder for path and forgets it. Removing a path that
// is not open is a no-op.
func (m *Manager) Remove(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.decoders[path]
	if !ok {
		return
	}
	delete(m.decoders, path)
	d.Close()
	m.log.Info("decoder removed", "path", path)
}

// List returns the paths with open decoders.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	paths := make([]string, 0, len(m.decoders))
	for p := range m.decoders {
		paths = append(paths, p)
	}
	return paths
}

// Shutdown closes every open decoder.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for p, d := range m.decoders {
		d.Close()
		delete(m.decoders, p)
	}
	m.log.Info("all decoders closed")
}
