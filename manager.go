package sqliter

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DatabaseManager hands out connections to one database. The first
// connection applies the page size and journal mode and migrates the
// schema; later ones only apply per-connection settings.
type DatabaseManager struct {
	cfg   Config
	mu    sync.Mutex
	conns map[*Connection]struct{}
	setup bool
}

// NewManager creates a manager for the database at path. No connection is
// opened until CreateConnection.
func NewManager(path string, opts ...Option) *DatabaseManager {
	return &DatabaseManager{
		cfg:   newConfig(path, opts),
		conns: make(map[*Connection]struct{}),
	}
}

// CreateConnection opens a new connection to the managed database.
func (m *DatabaseManager) CreateConnection(ctx context.Context) (*Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg := m.cfg
	c, err := openConnection(ctx, &cfg, !m.setup)
	if err != nil {
		return nil, err
	}
	m.setup = true
	m.conns[c] = struct{}{}
	cfg.Logger.Debug("created connection", "label", cfg.Label, "id", c.ID(), "count", len(m.conns))
	return c, nil
}

// Count returns the number of open connections handed out.
func (m *DatabaseManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// Release closes c and stops tracking it.
func (m *DatabaseManager) Release(c *Connection) error {
	m.mu.Lock()
	_, ok := m.conns[c]
	delete(m.conns, c)
	m.mu.Unlock()
	if !ok {
		return NewError(ErrGeneric, fmt.Sprintf("connection %d does not belong to this manager", c.ID()))
	}
	return c.Close()
}

// CloseAll closes every tracked connection concurrently and returns the
// first error.
func (m *DatabaseManager) CloseAll() error {
	m.mu.Lock()
	conns := make([]*Connection, 0, len(m.conns))
	for c := range m.conns {
		conns = append(conns, c)
	}
	clear(m.conns)
	m.mu.Unlock()

	var g errgroup.Group
	for _, c := range conns {
		g.Go(c.Close)
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("closing connections: %w", err)
	}
	return nil
}
