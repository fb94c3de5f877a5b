package rawtcp

import (
	"context"
	"sync"
)

// Manager owns at most one live Conn to a fixed target. Connect replaces
// the current connection; Release may be called from any goroutine.
type Manager struct {
	opts Options

	mu      sync.Mutex
	current *Conn
}

// NewManager creates a manager for the target in opts.
func NewManager(opts Options) *Manager {
	return &Manager{opts: opts.withDefaults()}
}

// Target returns the "host:port" the manager dials.
func (m *Manager) Target() string {
	return m.opts.Target()
}

// Options returns the effective options, defaults applied.
func (m *Manager) Options() Options {
	return m.opts
}

// Connect releases the current connection, if any, and dials a new one.
func (m *Manager) Connect(ctx context.Context) (*Conn, error) {
	m.Release()

	conn, err := Dial(ctx, m.opts)
	if err != nil {
		return nil, err
	}

	// A shutdown that raced the dial wins.
	if err := ctx.Err(); err != nil {
		conn.Release()
		return nil, NewConnectError(conn.Target(), err)
	}

	m.mu.Lock()
	m.current = conn
	m.mu.Unlock()
	return conn, nil
}

// Current returns the live connection, or nil.
func (m *Manager) Current() *Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Release closes the current connection. Safe to call concurrently and
// repeatedly.
func (m *Manager) Release() {
	m.mu.Lock()
	conn := m.current
	m.current = nil
	m.mu.Unlock()

	if conn != nil {
		conn.Release()
	}
}
