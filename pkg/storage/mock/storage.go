package mock

import (
	"context"

	"github.com/fadedpez/royalcharge/pkg/storage"
	"github.com/stretchr/testify/mock"
)

// Storage is a mock implementation of storage.Storage
type Storage struct {
	mock.Mock
}

func New() *Storage {
	return &Storage{}
}

func (s *Storage) Put(ctx context.Context, obj *storage.Object) (string, error) {
	args := s.Called(ctx, obj)
	return args.String(0), args.Error(1)
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	args := s.Called(ctx, key)
	return args.Error(0)
}

func (s *Storage) URL(key string) string {
	args := s.Called(key)
	return args.String(0)
}
