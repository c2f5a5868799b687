// Package storage holds the backends that keep encoded session records.
// Every backend is keyed by session id and stores opaque bytes.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/log"
)

var (
	// ErrNotFound is returned when no record exists for an id.
	ErrNotFound = errors.New("session record not found")
	// ErrUnknownBackend is returned by Open for an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown storage backend")
	// ErrLocked is returned instead of waiting when another process holds
	// the backend.
	ErrLocked = errors.New("session storage is locked by another process")
)

// Backend names accepted in configuration.
const (
	BackendFile   = "file"
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
)

// Backends lists the supported backend names.
var Backends = []string{BackendFile, BackendBadger, BackendSQLite}

// Backend stores session records.
type Backend interface {
	Read(ctx context.Context, id string) ([]byte, error)
	Write(ctx context.Context, id string, data []byte) error
	Delete(ctx context.Context, id string) error
	// List returns the ids of all stored records, sorted.
	List(ctx context.Context) ([]string, error)
	Close() error
}

// Config selects and locates a backend.
type Config struct {
	Backend string
	// Path is the sessions directory for the file backend, the database
	// directory for badger, and the database file for sqlite.
	Path   string
	Logger *log.Logger
}

// Open returns the backend named by cfg.Backend. An empty name selects the
// file backend.
func Open(cfg Config) (Backend, error) {
	switch cfg.Backend {
	case "", BackendFile:
		return NewFileStore(cfg.Path)
	case BackendBadger:
		return OpenBadger(BadgerConfig{Path: cfg.Path, SyncWrites: true, Logger: cfg.Logger})
	case BackendSQLite:
		return OpenSQLite(cfg.Path)
	default:
		return nil, fmt.Errorf("%w: %q (want one of %v)", ErrUnknownBackend, cfg.Backend, Backends)
	}
}

// DefaultPath returns where a backend keeps its data under the sessions
// directory dir.
func DefaultPath(backend, dir string) string {
	switch backend {
	case BackendBadger:
		return filepath.Join(dir, "badger")
	case BackendSQLite:
		return filepath.Join(dir, "sessions.db")
	default:
		return dir
	}
}
