package ledger

import (
	"context"
	"errors"

	"github.com/fadedpez/royalcharge/pkg/entities"
	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=$GOFILE -destination=mock/mock.go -package=mock_ledger

var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrAccountExists     = errors.New("account already exists")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrOrderNotFound     = errors.New("order not found")
	ErrAlreadyFinalized  = errors.New("order already finalized")
	ErrStoreBusy         = errors.New("store busy")
)

// Receipt describes the outcome of an atomic ledger write
type Receipt struct {
	Order        *entities.Order
	Delta        decimal.Decimal // Balance change applied to the order owner
	BalanceAfter decimal.Decimal // Owner balance once the write committed
	Replayed     bool            // Idempotency key matched an earlier order; nothing was written
}

// Repository holds accounts and the order ledger. Every method that moves
// money does so in a single atomic write; there is no way to set a balance.
type Repository interface {
	// GetAccount retrieves an account by normalized email
	GetAccount(ctx context.Context, email string) (*entities.Account, error)

	// ListAccounts returns every account ordered by email
	ListAccounts(ctx context.Context) ([]*entities.Account, error)

	// CreateAccount inserts a new account, failing with ErrAccountExists
	CreateAccount(ctx context.Context, account *entities.Account) error

	// UpdateAccount merges a patch into an account and returns the result
	UpdateAccount(ctx context.Context, email string, patch entities.AccountPatch) (*entities.Account, error)

	// AdjustBalance atomically applies balance += delta, failing with
	// ErrInsufficientFunds when the result would be negative
	AdjustBalance(ctx context.Context, email string, delta decimal.Decimal) (decimal.Decimal, error)

	// DeleteAccount removes an account entirely
	DeleteAccount(ctx context.Context, email string) error

	// GetOrder retrieves an order by id
	GetOrder(ctx context.Context, id string) (*entities.Order, error)

	// ListOrders returns the orders visible in scope, newest first
	ListOrders(ctx context.Context, scope entities.OrderScope) ([]*entities.Order, error)

	// CreateOrder inserts a pending order and applies its creation delta to the
	// owner's balance in the same write
	CreateOrder(ctx context.Context, order *entities.Order) (*Receipt, error)

	// FinalizeOrder moves a pending order to a terminal status and applies its
	// finalization delta in the same write. Only one caller can win.
	FinalizeOrder(ctx context.Context, id string, f entities.Finalization) (*Receipt, error)

	// DeleteAllOrders clears the ledger without touching balances
	DeleteAllOrders(ctx context.Context) (int64, error)

	// Close closes any resources used by the repository
	Close() error
}
