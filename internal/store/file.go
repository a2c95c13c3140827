package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	apperrors "runonsave/pkg/errors"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileStore keeps values in a YAML document on disk. The file is read on
// every call, so changes made by another process are seen. Every Set
// rewrites the file atomically.
type FileStore struct {
	path   string
	mu     sync.Mutex
	closed bool
}

// OpenFileStore checks that path, which may not exist yet, holds a valid
// document
func OpenFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, apperrors.NewConfigError("store.path", path, "file store requires a path")
	}

	fs := &FileStore{path: path}
	if _, err := fs.load(); err != nil {
		return nil, apperrors.NewStoreError(DriverFile, "", err)
	}
	return fs, nil
}

func (f *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return "", false, apperrors.NewStoreError(DriverFile, key, apperrors.ErrStoreClosed)
	}
	values, err := f.load()
	if err != nil {
		return "", false, apperrors.NewStoreError(DriverFile, key, err)
	}
	v, ok := values[key]
	return v, ok, nil
}

func (f *FileStore) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return apperrors.NewStoreError(DriverFile, key, apperrors.ErrStoreClosed)
	}

	values, err := f.load()
	if err != nil {
		return apperrors.NewStoreError(DriverFile, key, err)
	}
	values[key] = value
	if err := f.flush(values); err != nil {
		return apperrors.NewStoreError(DriverFile, key, err)
	}
	return nil
}

func (f *FileStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// load reads the document; a missing file is an empty one
func (f *FileStore) load() (map[string]string, error) {
	values := make(map[string]string)
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", f.path, err)
	}
	if values == nil {
		values = make(map[string]string)
	}
	return values, nil
}

func (f *FileStore) flush(values map[string]string) error {
	data, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}
