package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fadedpez/royalcharge/pkg/entities"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryRepository implements Repository using in-memory storage. A single
// lock covers accounts and orders so multi-record writes are atomic.
type MemoryRepository struct {
	accounts map[string]*entities.Account
	orders   map[string]*entities.Order
	mu       sync.RWMutex
}

// NewMemoryRepository creates a new in-memory ledger repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		accounts: make(map[string]*entities.Account),
		orders:   make(map[string]*entities.Order),
	}
}

// GetAccount retrieves an account by email
func (r *MemoryRepository) GetAccount(ctx context.Context, email string) (*entities.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, exists := r.accounts[email]
	if !exists {
		return nil, ErrAccountNotFound
	}
	return account.Clone(), nil
}

// ListAccounts returns every account ordered by email
func (r *MemoryRepository) ListAccounts(ctx context.Context) ([]*entities.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*entities.Account, 0, len(r.accounts))
	for _, account := range r.accounts {
		result = append(result, account.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Email < result[j].Email })
	return result, nil
}

// CreateAccount inserts a new account
func (r *MemoryRepository) CreateAccount(ctx context.Context, account *entities.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.accounts[account.Email]; exists {
		return ErrAccountExists
	}

	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now
	account.BalanceUSD = entities.RoundUSD(account.BalanceUSD)

	r.accounts[account.Email] = account.Clone()
	return nil
}

// UpdateAccount merges a patch into an account
func (r *MemoryRepository) UpdateAccount(ctx context.Context, email string, patch entities.AccountPatch) (*entities.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, exists := r.accounts[email]
	if !exists {
		return nil, ErrAccountNotFound
	}

	patch.Apply(account)
	account.UpdatedAt = time.Now().UTC()
	return account.Clone(), nil
}

// AdjustBalance atomically applies balance += delta
func (r *MemoryRepository) AdjustBalance(ctx context.Context, email string, delta decimal.Decimal) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.applyDeltaLocked(email, delta); err != nil {
		return decimal.Zero, err
	}
	return r.accounts[email].BalanceUSD, nil
}

// DeleteAccount removes an account
func (r *MemoryRepository) DeleteAccount(ctx context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.accounts[email]; !exists {
		return ErrAccountNotFound
	}
	delete(r.accounts, email)
	return nil
}

// GetOrder retrieves an order by id
func (r *MemoryRepository) GetOrder(ctx context.Context, id string) (*entities.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, exists := r.orders[id]
	if !exists {
		return nil, ErrOrderNotFound
	}
	return order.Clone(), nil
}

// ListOrders returns the orders visible in scope, newest first
func (r *MemoryRepository) ListOrders(ctx context.Context, scope entities.OrderScope) ([]*entities.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*entities.Order, 0)
	for _, order := range r.orders {
		if scope.Allows(order) {
			result = append(result, order.Clone())
		}
	}
	sortOrders(result)
	return result, nil
}

// CreateOrder inserts a pending order and applies its creation delta
func (r *MemoryRepository) CreateOrder(ctx context.Context, order *entities.Order) (*Receipt, error) {
	kind, err := order.Kind()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if order.IdempotencyKey != "" {
		for _, existing := range r.orders {
			if existing.UserID == order.UserID && existing.IdempotencyKey == order.IdempotencyKey {
				return &Receipt{
					Order:        existing.Clone(),
					Delta:        decimal.Zero,
					BalanceAfter: r.balanceLocked(order.UserID),
					Replayed:     true,
				}, nil
			}
		}
	}

	prepareOrder(order)
	delta := entities.RoundUSD(kind.CreationDelta(order))
	if err := r.applyDeltaLocked(order.UserID, delta); err != nil {
		return nil, err
	}
	r.orders[order.ID] = order.Clone()

	return &Receipt{
		Order:        order.Clone(),
		Delta:        delta,
		BalanceAfter: r.accounts[order.UserID].BalanceUSD,
	}, nil
}

// FinalizeOrder moves a pending order to a terminal status and applies its finalization delta
func (r *MemoryRepository) FinalizeOrder(ctx context.Context, id string, f entities.Finalization) (*Receipt, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	order, exists := r.orders[id]
	if !exists {
		return nil, ErrOrderNotFound
	}
	if order.Status != entities.OrderStatusPending {
		return nil, ErrAlreadyFinalized
	}

	kind, err := order.Kind()
	if err != nil {
		return nil, err
	}

	delta := entities.RoundUSD(kind.FinalizationDelta(order, f.Status))
	if !delta.IsZero() {
		if err := r.applyDeltaLocked(order.UserID, delta); err != nil {
			return nil, err
		}
	}
	f.Apply(order)

	return &Receipt{
		Order:        order.Clone(),
		Delta:        delta,
		BalanceAfter: r.balanceLocked(order.UserID),
	}, nil
}

// DeleteAllOrders clears the ledger
func (r *MemoryRepository) DeleteAllOrders(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := int64(len(r.orders))
	r.orders = make(map[string]*entities.Order)
	return count, nil
}

// Close implements Repository
func (r *MemoryRepository) Close() error {
	return nil
}

// applyDeltaLocked must be called with the write lock held
func (r *MemoryRepository) applyDeltaLocked(email string, delta decimal.Decimal) error {
	account, exists := r.accounts[email]
	if !exists {
		return ErrAccountNotFound
	}

	next := account.BalanceUSD.Add(entities.RoundUSD(delta))
	if next.IsNegative() {
		return ErrInsufficientFunds
	}

	account.BalanceUSD = next
	account.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryRepository) balanceLocked(email string) decimal.Decimal {
	if account, exists := r.accounts[email]; exists {
		return account.BalanceUSD
	}
	return decimal.Zero
}

// prepareOrder fills the fields every stored order must carry
func prepareOrder(order *entities.Order) {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	if order.Date.IsZero() {
		order.Date = time.Now()
	}
	order.Date = order.Date.UTC()
	order.Status = entities.OrderStatusPending
	order.PriceUSD = entities.RoundUSD(order.PriceUSD)
	order.AdminReply = ""
	order.FinalizedBy = ""
	order.FinalizedAt = nil
}

// sortOrders orders by date descending, id breaking ties
func sortOrders(orders []*entities.Order) {
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].Date.Equal(orders[j].Date) {
			return orders[i].Date.After(orders[j].Date)
		}
		return orders[i].ID > orders[j].ID
	})
}
