package pushclient

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Manager hands out one shared push client per endpoint. Multiple local
// producers targeting the same hub reuse a single connection instead of
// opening one each. The composition root owns the manager and injects it
// into producers; its lifetime is tied to the process.
type Manager struct {
	logger  zerolog.Logger
	mx      sync.Mutex
	clients map[string]*Client
}

func NewManager(logger *zerolog.Logger) *Manager {
	return &Manager{
		logger:  logger.With().Str("component", "push-manager").Logger(),
		clients: make(map[string]*Client),
	}
}

// Acquire returns the client for cfg.URL, creating and starting it on first
// use. Acquisition is idempotent: later calls for the same URL return the
// existing client and ignore the rest of cfg.
func (m *Manager) Acquire(ctx context.Context, cfg Config) *Client {
	m.mx.Lock()
	defer m.mx.Unlock()

	if c, ok := m.clients[cfg.URL]; ok {
		return c
	}
	if cfg.Logger == nil {
		cfg.Logger = &m.logger
	}
	c := New(cfg)
	c.Start(ctx)
	m.clients[cfg.URL] = c
	m.logger.Debug().Str("url", cfg.URL).Msg("push client created")
	return c
}

// Close stops every managed client.
func (m *Manager) Close() {
	m.mx.Lock()
	defer m.mx.Unlock()
	for _, c := range m.clients {
		c.Close()
	}
	m.clients = make(map[string]*Client)
}
