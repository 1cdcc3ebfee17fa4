package bot

import (
	"context"

	"github.com/fadedpez/royalcharge/pkg/entities"
	"github.com/fadedpez/royalcharge/pkg/services/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockOrderService implements OrderService for testing
type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) PendingOrders(ctx context.Context) ([]*entities.Order, error) {
	args := m.Called(ctx)
	orders, _ := args.Get(0).([]*entities.Order)
	return orders, args.Error(1)
}

func (m *MockOrderService) UpdateOrderStatus(ctx context.Context, actor, orderID string, status entities.OrderStatus, reply string) (*store.Result, error) {
	args := m.Called(ctx, actor, orderID, status, reply)
	result, _ := args.Get(0).(*store.Result)
	return result, args.Error(1)
}

// MockAccountService implements AccountService for testing
type MockAccountService struct {
	mock.Mock
}

func (m *MockAccountService) GetAccount(ctx context.Context, email string) (*entities.Account, error) {
	args := m.Called(ctx, email)
	account, _ := args.Get(0).(*entities.Account)
	return account, args.Error(1)
}

func (m *MockAccountService) AdjustBalance(ctx context.Context, email string, delta decimal.Decimal) (decimal.Decimal, error) {
	args := m.Called(ctx, email, delta)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}
