package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fadedpez/royalcharge/pkg/storage"
)

// Storage implements media storage on the local filesystem. It backs uploads
// when no bucket is configured; the API serves Path under BaseURL.
type Storage struct {
	mu      sync.Mutex
	options *storage.Options
}

// New creates a new file storage instance
func New(options *storage.Options) (*Storage, error) {
	if options == nil {
		options = storage.NewOptions()
	}

	if err := os.MkdirAll(options.Path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}

	return &Storage{options: options}, nil
}

// Dir returns the directory objects are written to
func (s *Storage) Dir() string {
	return s.options.Path
}

// Put writes the object to disk through a temp file so readers never see a
// partial upload
func (s *Storage) Put(ctx context.Context, obj *storage.Object) (string, error) {
	key, err := storage.CleanKey(obj.Key)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	target := filepath.Join(s.options.Path, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", fmt.Errorf("failed to create object directory: %w", err)
	}

	tempFile := target + ".tmp"
	if err := os.WriteFile(tempFile, obj.Data, 0644); err != nil {
		return "", fmt.Errorf("failed to write object: %w", err)
	}
	if err := os.Rename(tempFile, target); err != nil {
		os.Remove(tempFile)
		return "", fmt.Errorf("failed to save object: %w", err)
	}

	return s.URL(key), nil
}

// Delete removes the object stored under key
func (s *Storage) Delete(ctx context.Context, key string) error {
	key, err := storage.CleanKey(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = os.Remove(filepath.Join(s.options.Path, filepath.FromSlash(key)))
	if errors.Is(err, os.ErrNotExist) {
		return storage.ErrObjectNotFound
	}
	return err
}

// URL returns the path the object is served from
func (s *Storage) URL(key string) string {
	return storage.JoinURL(s.options.BaseURL, key)
}
