package archive

import (
	"context"
	"sort"
	"sync"

	"github.com/fadedpez/royalcharge/pkg/entities"
)

// MemoryRepository keeps the audit index in process. Used when no
// Elasticsearch cluster is configured, and by tests.
type MemoryRepository struct {
	docs map[string]*OrderDocument
	mu   sync.RWMutex
}

// NewMemoryRepository creates an empty in-memory index
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{docs: make(map[string]*OrderDocument)}
}

func (r *MemoryRepository) IndexOrder(ctx context.Context, order *entities.Order, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.docs[order.ID] = NewOrderDocument(order, event)
	return nil
}

func (r *MemoryRepository) Reindex(ctx context.Context, orders []*entities.Order) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, order := range orders {
		r.docs[order.ID] = NewOrderDocument(order, EventReindexed)
	}
	return len(orders), nil
}

func (r *MemoryRepository) Search(ctx context.Context, q Query) ([]*OrderDocument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*OrderDocument, 0)
	for _, doc := range r.docs {
		if q.UserID != "" && doc.UserID != q.UserID {
			continue
		}
		if q.Status != "" && doc.Status != string(q.Status) {
			continue
		}
		if q.Type != "" && doc.Type != string(q.Type) {
			continue
		}
		d := *doc
		result = append(result, &d)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.After(result[j].Date)
		}
		return result[i].OrderID > result[j].OrderID
	})
	if q.Size > 0 && len(result) > q.Size {
		result = result[:q.Size]
	}
	return result, nil
}

func (r *MemoryRepository) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.docs = make(map[string]*OrderDocument)
	return nil
}

// Close implements Repository
func (r *MemoryRepository) Close() error {
	return nil
}
