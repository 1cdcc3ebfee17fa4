package catalog

import (
	"context"
	"sort"
	"sync"

	"github.com/fadedpez/royalcharge/pkg/entities"
)

// MemoryRepository implements Repository using in-memory storage
type MemoryRepository struct {
	products   map[string]entities.Product
	categories map[string]entities.Category
	methods    map[string]entities.RechargeMethod
	config     *entities.AppConfig
	mu         sync.RWMutex
}

// NewMemoryRepository creates a new in-memory catalog repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		products:   make(map[string]entities.Product),
		categories: make(map[string]entities.Category),
		methods:    make(map[string]entities.RechargeMethod),
	}
}

func (r *MemoryRepository) ListProducts(ctx context.Context) ([]*entities.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*entities.Product, 0, len(r.products))
	for _, p := range r.products {
		p := p
		result = append(result, &p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *MemoryRepository) GetProduct(ctx context.Context, id string) (*entities.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.products[id]
	if !exists {
		return nil, ErrProductNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) SaveProduct(ctx context.Context, product *entities.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.products[product.ID] = *product
	return nil
}

func (r *MemoryRepository) DeleteProduct(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.products[id]; !exists {
		return ErrProductNotFound
	}
	delete(r.products, id)
	return nil
}

func (r *MemoryRepository) ListCategories(ctx context.Context) ([]*entities.Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*entities.Category, 0, len(r.categories))
	for _, c := range r.categories {
		c := c
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *MemoryRepository) SaveCategory(ctx context.Context, category *entities.Category) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.categories[category.ID] = *category
	return nil
}

func (r *MemoryRepository) DeleteCategory(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.categories[id]; !exists {
		return ErrCategoryNotFound
	}
	delete(r.categories, id)
	for pid, p := range r.products {
		if p.CategoryID == id {
			p.CategoryID = ""
			r.products[pid] = p
		}
	}
	return nil
}

func (r *MemoryRepository) ListMethods(ctx context.Context) ([]*entities.RechargeMethod, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*entities.RechargeMethod, 0, len(r.methods))
	for _, m := range r.methods {
		m := m
		result = append(result, &m)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *MemoryRepository) GetMethod(ctx context.Context, id string) (*entities.RechargeMethod, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, exists := r.methods[id]
	if !exists {
		return nil, ErrMethodNotFound
	}
	return &m, nil
}

func (r *MemoryRepository) SaveMethod(ctx context.Context, method *entities.RechargeMethod) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.methods[method.ID] = *method
	return nil
}

func (r *MemoryRepository) DeleteMethod(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.methods[id]; !exists {
		return ErrMethodNotFound
	}
	delete(r.methods, id)
	return nil
}

func (r *MemoryRepository) GetConfig(ctx context.Context) (*entities.AppConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.config == nil {
		return entities.DefaultAppConfig(), nil
	}
	return r.config.Clone(), nil
}

func (r *MemoryRepository) SaveConfig(ctx context.Context, cfg *entities.AppConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.config = cfg.Clone()
	return nil
}

// Close implements Repository
func (r *MemoryRepository) Close() error {
	return nil
}
