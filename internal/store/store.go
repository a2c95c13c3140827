// Package store persists small extension-scoped settings, such as whether
// run-on-save is enabled.
package store

import (
	"context"
	"fmt"
	apperrors "runonsave/pkg/errors"
	"strconv"
	"strings"
)

const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store is a string key-value store
type Store interface {
	// Get reports ok=false when key has never been set
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Close() error
}

// Config selects and configures a Store
type Config struct {
	Driver string
	// Path is the file for the file and sqlite drivers
	Path string
	// DSN is the postgres connection string
	DSN string
}

// Open creates the store selected by cfg.Driver
func Open(cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case DriverMemory:
		return NewMemoryStore(), nil
	case "", DriverFile:
		return OpenFileStore(cfg.Path)
	case DriverSQLite:
		return OpenSQLiteStore(cfg.Path)
	case DriverPostgres:
		return OpenPostgresStore(cfg.DSN)
	default:
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownStoreDriver, cfg.Driver)
	}
}

// GetBool reads key as a boolean, returning def when it was never set
func GetBool(ctx context.Context, s Store, key string, def bool) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil {
		return def, err
	}
	if !ok {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def, fmt.Errorf("invalid boolean for %s: %w", key, err)
	}
	return v, nil
}

// SetBool stores v under key
func SetBool(ctx context.Context, s Store, key string, v bool) error {
	return s.Set(ctx, key, strconv.FormatBool(v))
}
