package catalog

import (
	"context"
	"errors"

	"github.com/fadedpez/royalcharge/pkg/entities"
)

var (
	ErrProductNotFound  = errors.New("product not found")
	ErrCategoryNotFound = errors.New("category not found")
	ErrMethodNotFound   = errors.New("recharge method not found")
)

// Repository stores the read-mostly reference data that transactions consume
type Repository interface {
	ListProducts(ctx context.Context) ([]*entities.Product, error)
	GetProduct(ctx context.Context, id string) (*entities.Product, error)
	SaveProduct(ctx context.Context, product *entities.Product) error
	DeleteProduct(ctx context.Context, id string) error

	ListCategories(ctx context.Context) ([]*entities.Category, error)
	SaveCategory(ctx context.Context, category *entities.Category) error
	// DeleteCategory removes a category and leaves its products uncategorized
	DeleteCategory(ctx context.Context, id string) error

	ListMethods(ctx context.Context) ([]*entities.RechargeMethod, error)
	GetMethod(ctx context.Context, id string) (*entities.RechargeMethod, error)
	SaveMethod(ctx context.Context, method *entities.RechargeMethod) error
	DeleteMethod(ctx context.Context, id string) error

	// GetConfig returns the stored configuration, or the defaults if none was saved
	GetConfig(ctx context.Context) (*entities.AppConfig, error)
	SaveConfig(ctx context.Context, cfg *entities.AppConfig) error

	Close() error
}
