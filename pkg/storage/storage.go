package storage

import (
	"context"
	"errors"
	"path"
	"strings"
)

// Common storage errors
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrInvalidKey     = errors.New("invalid object key")
)

// Object is an uploaded blob ready to be written
type Object struct {
	Key         string
	ContentType string
	Data        []byte
}

// Storage defines the interface for uploaded media such as payment
// screenshots and profile pictures
type Storage interface {
	// Put writes the object and returns the URL it is served from
	Put(ctx context.Context, obj *Object) (string, error)

	// Delete removes the object stored under key
	Delete(ctx context.Context, key string) error

	// URL returns the public URL for key without touching the backend
	URL(key string) string
}

// Options represents storage configuration options
type Options struct {
	// Path is the directory for the local backend
	Path string
	// BaseURL prefixes object keys in returned URLs
	BaseURL string
}

// NewOptions creates a new Options with default values
func NewOptions() *Options {
	return &Options{
		Path:    "media",
		BaseURL: "/media",
	}
}

// CleanKey rejects keys that are empty or escape their root
func CleanKey(key string) (string, error) {
	key = strings.TrimPrefix(path.Clean("/"+key), "/")
	if key == "" || key == "." {
		return "", ErrInvalidKey
	}
	return key, nil
}

// JoinURL joins a base URL and an object key with a single slash
func JoinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
