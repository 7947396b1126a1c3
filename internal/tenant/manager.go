// Package tenant manages one isolated SQLite store per conversation.
//
// Stores are created lazily on first open, keyed by a sanitized tenant id,
// and cached for reuse. A tenant's store is never visible to another
// tenant and is never deleted by this package.
package tenant

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"go.uber.org/zap"

	_ "modernc.org/sqlite" // pure-Go sqlite driver
)

// DefaultID is used when sanitization leaves nothing of a tenant id.
const DefaultID = "default"

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// Sanitize strips every character outside [a-zA-Z0-9_-] so the on-disk
// name is always filesystem-safe. An empty result falls back to DefaultID.
func Sanitize(id string) string {
	clean := unsafeChars.ReplaceAllString(id, "")
	if clean == "" {
		return DefaultID
	}
	return clean
}

// Store is an open handle to one tenant's database.
type Store struct {
	ID string
	DB *sql.DB
}

// Manager owns the handle cache. Open is safe for concurrent use; handle
// creation for a given tenant happens at most once while the handle lives.
type Manager struct {
	dir    string
	logger *zap.Logger

	mu     sync.Mutex
	stores map[string]*Store
}

// NewManager creates a Manager that keeps tenant databases under dir.
func NewManager(dir string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		dir:    dir,
		logger: logger,
		stores: make(map[string]*Store),
	}
}

// Open returns the cached store for tenantID, creating and migrating the
// backing database on first access. On schema failure nothing is cached,
// so a later retry gets a fresh attempt.
func (m *Manager) Open(tenantID string) (*Store, error) {
	id := Sanitize(tenantID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if store, ok := m.stores[id]; ok {
		return store, nil
	}

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	path := filepath.Join(m.dir, id+".db")
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open tenant db %s: %w", id, err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init tenant schema %s: %w", id, err)
	}

	store := &Store{ID: id, DB: db}
	m.stores[id] = store
	m.logger.Debug("tenant store opened", zap.String("tenant", id), zap.String("path", path))
	return store, nil
}

// Close closes every cached handle. The manager is unusable afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for id, store := range m.stores {
		if err := store.DB.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close tenant db %s: %w", id, err)
		}
		delete(m.stores, id)
	}
	return firstErr
}
