package store

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/fadedpez/royalcharge/internal/types"
	"github.com/fadedpez/royalcharge/pkg/entities"
	"github.com/fadedpez/royalcharge/pkg/metrics"
	"github.com/fadedpez/royalcharge/pkg/repositories/archive"
	"github.com/fadedpez/royalcharge/pkg/repositories/catalog"
	"github.com/fadedpez/royalcharge/pkg/repositories/ledger"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type ServiceTestSuite struct {
	suite.Suite
	ctx     context.Context
	ledger  *ledger.MemoryRepository
	catalog *catalog.MemoryRepository
	archive *archive.MemoryRepository
	metrics *metrics.Metrics
	service *Service

	clockMu sync.Mutex
	clock   time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceTestSuite))
}

func (s *ServiceTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.ledger = ledger.NewMemoryRepository()
	s.catalog = catalog.NewMemoryRepository()
	s.archive = archive.NewMemoryRepository()
	s.metrics = metrics.New()
	s.clock = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	s.service = NewService(s.ledger, s.catalog, &Config{
		Archive: s.archive,
		Metrics: s.metrics,
		Now:     s.tick,
	})

	s.Require().NoError(s.catalog.SaveProduct(s.ctx, &entities.Product{
		ID: "uc-500", Name: "500 UC", PriceUSD: decimal.NewFromInt(20), Amount: 500,
	}))
	s.Require().NoError(s.catalog.SaveProduct(s.ctx, &entities.Product{
		ID: "gems-15", Name: "Gems", PriceUSD: decimal.NewFromInt(15), Amount: 100,
	}))
	s.Require().NoError(s.catalog.SaveProduct(s.ctx, &entities.Product{
		ID: "custom", Name: "Diamonds", PriceUSD: decimal.NewFromInt(5),
		IsCustomAmount: true, USDToCoinRate: decimal.NewFromInt(100),
	}))
	s.Require().NoError(s.catalog.SaveMethod(s.ctx, &entities.RechargeMethod{
		ID: "vodafone", Label: "Vodafone Cash", AccountID: "0100",
	}))
}

// tick returns strictly increasing timestamps so list order is deterministic
func (s *ServiceTestSuite) tick() time.Time {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *ServiceTestSuite) newAccount(email string, balance int64) *entities.Account {
	account := &entities.Account{Email: email, BalanceUSD: decimal.NewFromInt(balance), VIP: 1}
	s.Require().NoError(s.ledger.CreateAccount(s.ctx, account))
	return account
}

func (s *ServiceTestSuite) balance(email string) decimal.Decimal {
	account, err := s.ledger.GetAccount(s.ctx, email)
	s.Require().NoError(err)
	return account.BalanceUSD
}

func (s *ServiceTestSuite) orders(email string) []*entities.Order {
	orders, err := s.ledger.ListOrders(s.ctx, entities.OwnOrders(email))
	s.Require().NoError(err)
	return orders
}

func (s *ServiceTestSuite) requestRecharge(email string, amount int64) *entities.Order {
	result, err := s.service.RequestRecharge(s.ctx, email, &RechargeRequest{
		MethodID:  "vodafone",
		AmountUSD: decimal.NewFromInt(amount),
		SenderID:  "01001234567",
	})
	s.Require().NoError(err)
	return result.Order
}

func price(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func (s *ServiceTestSuite) TestInsufficientFundsLeavesNoTrace() {
	// Setup
	s.newAccount("a@x.com", 10)

	// Execute
	_, err := s.service.Purchase(s.ctx, "a@x.com", &PurchaseRequest{ProductID: "gems-15", PlayerID: "p1"})

	// Assert
	s.True(types.IsStoreError(err, types.ErrInsufficientFunds), "got %v", err)
	s.True(s.balance("a@x.com").Equal(decimal.NewFromInt(10)))
	s.Empty(s.orders("a@x.com"))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.TransactionCounter.WithLabelValues("purchase", string(types.ErrInsufficientFunds))))
}

func (s *ServiceTestSuite) TestPurchaseDebitsAndRecords() {
	// Setup
	s.newAccount("a@x.com", 50)

	// Execute
	result, err := s.service.Purchase(s.ctx, " A@x.com", &PurchaseRequest{ProductID: "uc-500", PlayerID: "5123456"})

	// Assert
	s.Require().NoError(err)
	s.True(result.BalanceAfter.Equal(decimal.NewFromInt(30)))
	s.True(s.balance("a@x.com").Equal(decimal.NewFromInt(30)))

	orders := s.orders("a@x.com")
	s.Require().Len(orders, 1)
	order := orders[0]
	s.Equal(entities.OrderTypeProduct, order.Type)
	s.Equal(entities.OrderStatusPending, order.Status)
	s.Equal(int64(500), order.CoinsAmount)
	s.Equal("500 UC", order.ProductName)
	s.Equal("5123456", order.PlayerID)
	s.True(order.PriceUSD.Equal(decimal.NewFromInt(20)))
	s.True(order.PriceEGP.Equal(decimal.NewFromInt(1000)))

	docs, err := s.archive.Search(s.ctx, archive.Query{UserID: "a@x.com"})
	s.Require().NoError(err)
	s.Require().Len(docs, 1)
	s.Equal(archive.EventCreated, docs[0].Event)
}

func (s *ServiceTestSuite) TestRechargeRequestMovesNoMoney() {
	// Setup
	s.newAccount("a@x.com", 0)

	// Execute
	order := s.requestRecharge("a@x.com", 25)

	// Assert
	s.Equal(entities.OrderTypeRecharge, order.Type)
	s.Equal(entities.OrderStatusPending, order.Status)
	s.Equal("Deposit via Vodafone Cash", order.ProductName)
	s.Equal("01001234567", order.PlayerID)
	s.True(order.PriceUSD.Equal(decimal.NewFromInt(25)))
	s.True(s.balance("a@x.com").IsZero())
}

func (s *ServiceTestSuite) TestApprovalCreditsExactlyOnce() {
	// Setup
	s.newAccount("a@x.com", 0)
	order := s.requestRecharge("a@x.com", 25)

	// Execute
	result, err := s.service.UpdateOrderStatus(s.ctx, "admin@royal.com", order.ID, entities.OrderStatusCompleted, "Received")
	_, again := s.service.UpdateOrderStatus(s.ctx, "admin@royal.com", order.ID, entities.OrderStatusCompleted, "")

	// Assert
	s.Require().NoError(err)
	s.Equal(entities.OrderStatusCompleted, result.Order.Status)
	s.Equal("Received", result.Order.AdminReply)
	s.Equal("admin@royal.com", result.Order.FinalizedBy)
	s.NotNil(result.Order.FinalizedAt)
	s.True(result.BalanceAfter.Equal(decimal.NewFromInt(25)))

	s.True(types.IsStoreError(again, types.ErrAlreadyFinalized), "got %v", again)
	s.True(s.balance("a@x.com").Equal(decimal.NewFromInt(25)))

	docs, err := s.archive.Search(s.ctx, archive.Query{Status: entities.OrderStatusCompleted})
	s.Require().NoError(err)
	s.Require().Len(docs, 1)
	s.Equal("admin@royal.com", docs[0].FinalizedBy)
}

func (s *ServiceTestSuite) TestRejectionMovesNoMoney() {
	// Setup
	s.newAccount("a@x.com", 3)
	order := s.requestRecharge("a@x.com", 25)

	// Execute
	result, err := s.service.UpdateOrderStatus(s.ctx, "admin@royal.com", order.ID, entities.OrderStatusRejected, "No transfer found")

	// Assert
	s.Require().NoError(err)
	s.Equal(entities.OrderStatusRejected, result.Order.Status)
	s.True(s.balance("a@x.com").Equal(decimal.NewFromInt(3)))
}

func (s *ServiceTestSuite) TestCustomAmount() {
	// Setup
	s.newAccount("a@x.com", 10)

	// Execute
	atFloor, err := s.service.Purchase(s.ctx, "a@x.com", &PurchaseRequest{
		ProductID: "custom", PlayerID: "p1", CustomPriceUSD: price("5"),
	})
	s.Require().NoError(err)
	_, below := s.service.Purchase(s.ctx, "a@x.com", &PurchaseRequest{
		ProductID: "custom", PlayerID: "p1", CustomPriceUSD: price("2"),
	})

	// Assert
	s.Equal(int64(500), atFloor.Order.CoinsAmount)
	s.True(types.IsStoreError(below, types.ErrBelowMinimum), "got %v", below)
	s.True(s.balance("a@x.com").Equal(decimal.NewFromInt(5)))
	s.Len(s.orders("a@x.com"), 1)
}

func (s *ServiceTestSuite) TestQuote() {
	cfg := entities.DefaultAppConfig()
	noRate := &entities.Product{PriceUSD: decimal.NewFromInt(1), IsCustomAmount: true}

	testCases := []struct {
		name    string
		product *entities.Product
		custom  *decimal.Decimal
		price   string
		coins   int64
		code    types.ErrorCode
	}{
		{"fixed ignores custom price", &entities.Product{PriceUSD: decimal.NewFromInt(20), Amount: 500}, price("1"), "20", 500, ""},
		{"custom floors coins", &entities.Product{PriceUSD: decimal.NewFromInt(1), IsCustomAmount: true, USDToCoinRate: decimal.RequireFromString("33.3")}, price("2.5"), "2.5", 83, ""},
		{"custom falls back to global rate", noRate, price("3"), "3", 300, ""},
		{"custom rounds to cents", noRate, price("1.005"), "1.01", 101, ""},
		{"custom price required", noRate, nil, "", 0, types.ErrValidation},
		{"custom below floor", noRate, price("0.99"), "", 0, types.ErrBelowMinimum},
		{"sub-cent below floor", noRate, price("0.995"), "", 0, types.ErrBelowMinimum},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			p, coins, err := Quote(tc.product, cfg, tc.custom)
			if tc.code != "" {
				s.True(types.IsStoreError(err, tc.code), "got %v", err)
				return
			}
			s.Require().NoError(err)
			s.True(p.Equal(decimal.RequireFromString(tc.price)), "price %s", p)
			s.Equal(tc.coins, coins)
		})
	}
}

func (s *ServiceTestSuite) TestPurchaseIdempotencyKeyPreventsDoubleDebit() {
	// Setup
	s.newAccount("a@x.com", 50)
	req := &PurchaseRequest{ProductID: "uc-500", PlayerID: "p1", IdempotencyKey: "tap-1"}

	// Execute
	first, err := s.service.Purchase(s.ctx, "a@x.com", req)
	s.Require().NoError(err)
	second, err := s.service.Purchase(s.ctx, "a@x.com", req)
	s.Require().NoError(err)

	// Assert
	s.False(first.Replayed)
	s.True(second.Replayed)
	s.Equal(first.Order.ID, second.Order.ID)
	s.True(s.balance("a@x.com").Equal(decimal.NewFromInt(30)))
	s.Len(s.orders("a@x.com"), 1)
}

func (s *ServiceTestSuite) TestPurchaseValidationRunsBeforeDebit() {
	// Setup
	s.newAccount("a@x.com", 50)
	s.newAccount("blocked@x.com", 50)
	blocked := true
	_, err := s.ledger.UpdateAccount(s.ctx, "blocked@x.com", entities.AccountPatch{IsBlocked: &blocked})
	s.Require().NoError(err)

	testCases := []struct {
		name  string
		email string
		req   *PurchaseRequest
		code  types.ErrorCode
	}{
		{"missing player id", "a@x.com", &PurchaseRequest{ProductID: "uc-500"}, types.ErrValidation},
		{"unknown product", "a@x.com", &PurchaseRequest{ProductID: "ghost", PlayerID: "p1"}, types.ErrNotFound},
		{"custom without price", "a@x.com", &PurchaseRequest{ProductID: "custom", PlayerID: "p1"}, types.ErrValidation},
		{"unknown account", "ghost@x.com", &PurchaseRequest{ProductID: "uc-500", PlayerID: "p1"}, types.ErrAccountNotFound},
		{"blocked account", "blocked@x.com", &PurchaseRequest{ProductID: "uc-500", PlayerID: "p1"}, types.ErrAccountBlocked},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			_, err := s.service.Purchase(s.ctx, tc.email, tc.req)
			s.True(types.IsStoreError(err, tc.code), "got %v", err)
		})
	}

	s.True(s.balance("a@x.com").Equal(decimal.NewFromInt(50)))
	s.True(s.balance("blocked@x.com").Equal(decimal.NewFromInt(50)))
	orders, err := s.ledger.ListOrders(s.ctx, entities.AllOrders())
	s.Require().NoError(err)
	s.Empty(orders)
}

func (s *ServiceTestSuite) TestProductFinalizationMovesNoMoney() {
	// Setup
	s.newAccount("a@x.com", 50)
	purchase, err := s.service.Purchase(s.ctx, "a@x.com", &PurchaseRequest{ProductID: "uc-500", PlayerID: "p1"})
	s.Require().NoError(err)

	// Execute
	_, err = s.service.UpdateOrderStatus(s.ctx, "admin@royal.com", purchase.Order.ID, entities.OrderStatusRejected, "Wrong player id")

	// Assert
	s.Require().NoError(err)
	s.True(s.balance("a@x.com").Equal(decimal.NewFromInt(30)), "rejection does not refund")
}

func (s *ServiceTestSuite) TestUpdateOrderStatusValidation() {
	_, pending := s.service.UpdateOrderStatus(s.ctx, "admin@royal.com", "o1", entities.OrderStatusPending, "")
	_, missingID := s.service.UpdateOrderStatus(s.ctx, "admin@royal.com", "", entities.OrderStatusCompleted, "")
	_, missingOrder := s.service.UpdateOrderStatus(s.ctx, "admin@royal.com", "ghost", entities.OrderStatusCompleted, "")

	s.True(types.IsStoreError(pending, types.ErrValidation))
	s.True(types.IsStoreError(missingID, types.ErrValidation))
	s.True(types.IsStoreError(missingOrder, types.ErrOrderNotFound))
}

// No sequence of purchases and adjustments drives a balance negative
func (s *ServiceTestSuite) TestBalanceNeverNegative() {
	// Setup
	s.newAccount("a@x.com", 40)
	rng := rand.New(rand.NewSource(42))
	expected := decimal.NewFromInt(40)
	products := map[string]decimal.Decimal{"uc-500": decimal.NewFromInt(20), "gems-15": decimal.NewFromInt(15)}

	// Execute
	for i := 0; i < 200; i++ {
		switch rng.Intn(3) {
		case 0, 1:
			id := "uc-500"
			if rng.Intn(2) == 0 {
				id = "gems-15"
			}
			_, err := s.service.Purchase(s.ctx, "a@x.com", &PurchaseRequest{ProductID: id, PlayerID: "p1"})
			if expected.LessThan(products[id]) {
				s.True(types.IsStoreError(err, types.ErrInsufficientFunds), "got %v", err)
			} else {
				s.Require().NoError(err)
				expected = expected.Sub(products[id])
			}
		case 2:
			delta := decimal.NewFromInt(int64(rng.Intn(41) - 20))
			_, err := s.ledger.AdjustBalance(s.ctx, "a@x.com", delta)
			if expected.Add(delta).IsNegative() {
				s.ErrorIs(err, ledger.ErrInsufficientFunds)
			} else {
				s.Require().NoError(err)
				expected = expected.Add(delta)
			}
		}

		// Assert
		balance := s.balance("a@x.com")
		s.False(balance.IsNegative())
		s.True(balance.Equal(expected), "step %d: balance %s, expected %s", i, balance, expected)
	}
}

// Concurrent approvals of one recharge credit it once
func (s *ServiceTestSuite) TestConcurrentApprovalsCreditOnce() {
	// Setup
	s.newAccount("a@x.com", 0)
	order := s.requestRecharge("a@x.com", 25)

	// Execute
	const admins = 10
	var wg sync.WaitGroup
	errs := make(chan error, admins)
	for i := 0; i < admins; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.UpdateOrderStatus(s.ctx, "admin@royal.com", order.ID, entities.OrderStatusCompleted, "")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	// Assert
	wins := 0
	for err := range errs {
		if err == nil {
			wins++
			continue
		}
		s.True(types.IsStoreError(err, types.ErrAlreadyFinalized), "got %v", err)
	}
	s.Equal(1, wins)
	s.True(s.balance("a@x.com").Equal(decimal.NewFromInt(25)))
}

// A terminal status never changes again
func (s *ServiceTestSuite) TestStatusMonotonic() {
	// Setup
	s.newAccount("a@x.com", 0)
	order := s.requestRecharge("a@x.com", 10)
	_, err := s.service.UpdateOrderStatus(s.ctx, "admin@royal.com", order.ID, entities.OrderStatusRejected, "")
	s.Require().NoError(err)

	// Execute
	_, err = s.service.UpdateOrderStatus(s.ctx, "admin@royal.com", order.ID, entities.OrderStatusCompleted, "")

	// Assert
	s.True(types.IsStoreError(err, types.ErrAlreadyFinalized))
	stored, err := s.ledger.GetOrder(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(entities.OrderStatusRejected, stored.Status)
	s.True(s.balance("a@x.com").IsZero())
}

// A regular account only ever sees its own orders
func (s *ServiceTestSuite) TestScopedVisibility() {
	// Setup
	alice := s.newAccount("alice@x.com", 100)
	bob := s.newAccount("bob@x.com", 100)
	admin := &entities.Account{Email: "admin@royal.com", IsAdmin: true}
	s.requestRecharge(alice.Email, 5)
	bobOrder := s.requestRecharge(bob.Email, 7)

	// Execute
	aliceOrders, err := s.service.ListOrders(s.ctx, alice)
	s.Require().NoError(err)
	adminOrders, err := s.service.ListOrders(s.ctx, admin)
	s.Require().NoError(err)
	_, peek := s.service.GetOrder(s.ctx, alice, bobOrder.ID)
	own, err := s.service.GetOrder(s.ctx, bob, bobOrder.ID)
	s.Require().NoError(err)

	// Assert
	s.Require().Len(aliceOrders, 1)
	s.Equal("alice@x.com", aliceOrders[0].UserID)
	s.Require().Len(adminOrders, 2)
	s.Equal(bobOrder.ID, adminOrders[0].ID, "newest first")
	s.True(types.IsStoreError(peek, types.ErrOrderNotFound))
	s.Equal(bobOrder.ID, own.ID)
}

// A custom price below the floor never creates an order
func (s *ServiceTestSuite) TestCustomFloorProperty() {
	// Setup
	s.newAccount("a@x.com", 1000)
	rng := rand.New(rand.NewSource(7))

	// Execute
	for i := 0; i < 50; i++ {
		cents := rng.Int63n(500)
		custom := decimal.New(cents, -2)
		_, err := s.service.Purchase(s.ctx, "a@x.com", &PurchaseRequest{
			ProductID: "custom", PlayerID: "p1", CustomPriceUSD: &custom,
		})

		// Assert
		s.True(types.IsStoreError(err, types.ErrBelowMinimum), "price %s: got %v", custom, err)
	}
	for _, raw := range []string{"4.995", "4.999", "4.9999999"} {
		custom := decimal.RequireFromString(raw)
		_, err := s.service.Purchase(s.ctx, "a@x.com", &PurchaseRequest{
			ProductID: "custom", PlayerID: "p1", CustomPriceUSD: &custom,
		})
		s.Error(err, "price %s", raw)
	}
	s.Empty(s.orders("a@x.com"))
	s.True(s.balance("a@x.com").Equal(decimal.NewFromInt(1000)))
}

func (s *ServiceTestSuite) TestSubCentCustomPriceRejected() {
	// Setup
	s.newAccount("a@x.com", 1000)
	custom := decimal.RequireFromString("5.001")

	// Execute
	_, err := s.service.Purchase(s.ctx, "a@x.com", &PurchaseRequest{
		ProductID: "custom", PlayerID: "p1", CustomPriceUSD: &custom,
	})

	// Assert
	s.True(types.IsStoreError(err, types.ErrValidation), "got %v", err)
	s.Empty(s.orders("a@x.com"))
}

func (s *ServiceTestSuite) TestPendingOrdersOldestFirst() {
	// Setup
	s.newAccount("a@x.com", 0)
	first := s.requestRecharge("a@x.com", 1)
	done := s.requestRecharge("a@x.com", 2)
	last := s.requestRecharge("a@x.com", 3)
	_, err := s.service.UpdateOrderStatus(s.ctx, "admin@royal.com", done.ID, entities.OrderStatusRejected, "")
	s.Require().NoError(err)

	// Execute
	pending, err := s.service.PendingOrders(s.ctx)

	// Assert
	s.Require().NoError(err)
	s.Require().Len(pending, 2)
	s.Equal(first.ID, pending[0].ID)
	s.Equal(last.ID, pending[1].ID)
}

func (s *ServiceTestSuite) TestDeleteAllOrders() {
	// Setup
	s.newAccount("a@x.com", 50)
	_, err := s.service.Purchase(s.ctx, "a@x.com", &PurchaseRequest{ProductID: "uc-500", PlayerID: "p1"})
	s.Require().NoError(err)
	s.requestRecharge("a@x.com", 10)

	// Execute
	_, unconfirmed := s.service.DeleteAllOrders(s.ctx, "admin@royal.com", Confirmation{First: true})
	deleted, err := s.service.DeleteAllOrders(s.ctx, "admin@royal.com", Confirmation{First: true, Second: true})

	// Assert
	s.True(types.IsStoreError(unconfirmed, types.ErrConfirmationRequired))
	s.Require().NoError(err)
	s.Equal(int64(2), deleted)
	s.Empty(s.orders("a@x.com"))
	s.True(s.balance("a@x.com").Equal(decimal.NewFromInt(30)))

	docs, err := s.archive.Search(s.ctx, archive.Query{})
	s.Require().NoError(err)
	s.Empty(docs)
}

func (s *ServiceTestSuite) TestReindexArchive() {
	// Setup
	s.newAccount("a@x.com", 0)
	s.requestRecharge("a@x.com", 1)
	s.requestRecharge("a@x.com", 2)
	s.Require().NoError(s.archive.Clear(s.ctx))

	// Execute
	written, err := s.service.ReindexArchive(s.ctx)

	// Assert
	s.Require().NoError(err)
	s.Equal(2, written)
	docs, err := s.service.SearchArchive(s.ctx, archive.Query{UserID: "a@x.com"})
	s.Require().NoError(err)
	s.Len(docs, 2)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.ArchiveRuns.WithLabelValues("ok")))
}
