package store

import (
	"context"
	"time"

	"github.com/fadedpez/royalcharge/internal/logging"
	"github.com/fadedpez/royalcharge/internal/types"
	"github.com/fadedpez/royalcharge/internal/validation"
	"github.com/fadedpez/royalcharge/pkg/entities"
	"github.com/fadedpez/royalcharge/pkg/livesync"
	"github.com/fadedpez/royalcharge/pkg/metrics"
	"github.com/fadedpez/royalcharge/pkg/repositories/archive"
	"github.com/fadedpez/royalcharge/pkg/repositories/catalog"
	"github.com/fadedpez/royalcharge/pkg/repositories/ledger"
	"github.com/fadedpez/royalcharge/pkg/services/media"
	"github.com/fadedpez/royalcharge/pkg/services/txn"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ImageResolver turns an inline payment screenshot into a stored URL
type ImageResolver interface {
	Resolve(ctx context.Context, kind media.Kind, ref string) (string, error)
}

// PurchaseRequest buys one catalog product with wallet balance
type PurchaseRequest struct {
	ProductID      string           `json:"productId" validate:"required"`
	PlayerID       string           `json:"playerId" validate:"required,max=128"`
	CustomPriceUSD *decimal.Decimal `json:"customPriceUSD,omitempty" validate:"omitempty,usd"`
	IdempotencyKey string           `json:"idempotencyKey,omitempty" validate:"max=128"`
}

// RechargeRequest claims a deposit made through a recharge method
type RechargeRequest struct {
	MethodID       string          `json:"methodId" validate:"required"`
	AmountUSD      decimal.Decimal `json:"amountUSD" validate:"gt=0,usd"`
	SenderID       string          `json:"senderId" validate:"required,max=128"`
	Screenshot     string          `json:"screenshot,omitempty"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty" validate:"max=128"`
}

// Confirmation carries the two acknowledgements a bulk wipe needs
type Confirmation struct {
	First  bool `json:"confirm"`
	Second bool `json:"confirmAgain"`
}

// Result is the outcome of an order write
type Result struct {
	Order        *entities.Order `json:"order"`
	BalanceAfter decimal.Decimal `json:"balanceUSD"`
	Replayed     bool            `json:"replayed,omitempty"`
}

// Config holds the collaborators of the store service
type Config struct {
	Archive  archive.Repository // Optional audit index
	Images   ImageResolver
	Notifier livesync.Notifier
	Metrics  *metrics.Metrics
	Retrier  txn.Retrier
	Log      *logging.Logger
	Now      func() time.Time
}

// Service runs the order lifecycle: purchases, recharge requests, admin
// decisions and the bulk ledger wipe
type Service struct {
	ledger   ledger.Repository
	catalog  catalog.Repository
	archive  archive.Repository
	images   ImageResolver
	notifier livesync.Notifier
	metrics  *metrics.Metrics
	retry    txn.Retrier
	log      *logging.Logger
	now      func() time.Time
}

// NewService creates a new store service
func NewService(ledgerRepo ledger.Repository, catalogRepo catalog.Repository, cfg *Config) *Service {
	s := &Service{
		ledger:   ledgerRepo,
		catalog:  catalogRepo,
		archive:  cfg.Archive,
		images:   cfg.Images,
		notifier: cfg.Notifier,
		metrics:  cfg.Metrics,
		retry:    cfg.Retrier,
		log:      cfg.Log,
		now:      cfg.Now,
	}
	if s.notifier == nil {
		s.notifier = livesync.NopNotifier{}
	}
	if s.log == nil {
		s.log = logging.Discard
	}
	s.log = s.log.Component("store")
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Purchase debits the buyer and records a pending product order in one atomic
// write. Every check runs before the write, so a rejected purchase leaves no
// trace. Retries reuse the idempotency key and can never debit twice.
func (s *Service) Purchase(ctx context.Context, email string, req *PurchaseRequest) (result *Result, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveTransaction("purchase", start, err) }()

	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	email = entities.NormalizeEmail(email)

	product, cfg, err := s.productAndConfig(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	price, coins, err := Quote(product, cfg, req.CustomPriceUSD)
	if err != nil {
		return nil, err
	}

	account, err := s.activeAccount(ctx, email)
	if err != nil {
		return nil, err
	}
	if account.BalanceUSD.LessThan(price) {
		return nil, types.NewStoreError(types.ErrInsufficientFunds, "Insufficient balance")
	}

	order := &entities.Order{
		ID:             uuid.NewString(),
		UserID:         email,
		Type:           entities.OrderTypeProduct,
		ProductName:    product.Name,
		PriceUSD:       price,
		PriceEGP:       price.Mul(cfg.USDToEGPRate).Round(2),
		CoinsAmount:    coins,
		Date:           s.now(),
		PlayerID:       req.PlayerID,
		IdempotencyKey: keyOrNew(req.IdempotencyKey),
	}

	receipt, err := s.createOrder(ctx, "purchase", order)
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"email":    email,
		"order_id": receipt.Order.ID,
		"product":  product.ID,
		"price":    price.StringFixed(2),
		"coins":    coins,
		"replayed": receipt.Replayed,
	}).Info("purchase recorded")

	return &Result{Order: receipt.Order, BalanceAfter: receipt.BalanceAfter, Replayed: receipt.Replayed}, nil
}

// Quote resolves the price and coin amount of a purchase. For a custom-amount
// product the buyer's price must reach the product's floor price.
func Quote(product *entities.Product, cfg *entities.AppConfig, customPrice *decimal.Decimal) (decimal.Decimal, int64, error) {
	if !product.IsCustomAmount {
		return entities.RoundUSD(product.PriceUSD), product.Amount, nil
	}

	if customPrice == nil {
		return decimal.Zero, 0, types.NewStoreError(types.ErrValidation, "customPriceUSD is required for this product")
	}
	// The floor applies to the amount as given, before rounding to cents
	if customPrice.LessThan(product.PriceUSD) {
		return decimal.Zero, 0, types.NewStoreError(types.ErrBelowMinimum,
			"The minimum amount for this product is $"+product.PriceUSD.StringFixed(2))
	}
	price := entities.RoundUSD(*customPrice)

	coins := price.Mul(product.CoinRate(cfg)).Floor().IntPart()
	return price, coins, nil
}

// RequestRecharge records a pending deposit claim. No money moves until an
// admin completes it.
func (s *Service) RequestRecharge(ctx context.Context, email string, req *RechargeRequest) (result *Result, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveTransaction("recharge_request", start, err) }()

	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	email = entities.NormalizeEmail(email)

	var method *entities.RechargeMethod
	var cfg *entities.AppConfig
	err = s.retry.Do(ctx, "load_method", func() error {
		var err error
		if method, err = s.catalog.GetMethod(ctx, req.MethodID); err != nil {
			return err
		}
		cfg, err = s.catalog.GetConfig(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.activeAccount(ctx, email); err != nil {
		return nil, err
	}

	screenshot := req.Screenshot
	if s.images != nil && screenshot != "" {
		if screenshot, err = s.images.Resolve(ctx, media.KindScreenshot, screenshot); err != nil {
			return nil, err
		}
	}

	amount := entities.RoundUSD(req.AmountUSD)
	order := &entities.Order{
		ID:             uuid.NewString(),
		UserID:         email,
		Type:           entities.OrderTypeRecharge,
		ProductName:    "Deposit via " + method.Label,
		PriceUSD:       amount,
		PriceEGP:       amount.Mul(cfg.USDToEGPRate).Round(2),
		Date:           s.now(),
		PlayerID:       req.SenderID,
		Screenshot:     screenshot,
		IdempotencyKey: keyOrNew(req.IdempotencyKey),
	}

	receipt, err := s.createOrder(ctx, "recharge_request", order)
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"email":    email,
		"order_id": receipt.Order.ID,
		"method":   method.ID,
		"amount":   amount.StringFixed(2),
	}).Info("recharge requested")

	return &Result{Order: receipt.Order, BalanceAfter: receipt.BalanceAfter, Replayed: receipt.Replayed}, nil
}

// UpdateOrderStatus finalizes a pending order. Completing a recharge credits
// its owner in the same atomic write; a second decision on the same order
// fails with ALREADY_FINALIZED and moves no money.
func (s *Service) UpdateOrderStatus(ctx context.Context, actor, orderID string, status entities.OrderStatus, reply string) (result *Result, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveTransaction("finalize_order", start, err) }()

	if orderID == "" {
		return nil, types.NewStoreError(types.ErrValidation, "order id is required")
	}
	if !status.IsTerminal() {
		return nil, types.NewStoreError(types.ErrValidation, "status must be completed or rejected")
	}

	f := entities.Finalization{
		Status: status,
		Reply:  reply,
		Actor:  entities.NormalizeEmail(actor),
		At:     s.now().UTC(),
	}

	var receipt *ledger.Receipt
	err = s.retry.Do(ctx, "finalize_order", func() error {
		var err error
		receipt, err = s.ledger.FinalizeOrder(ctx, orderID, f)
		return err
	})
	if err != nil {
		s.log.WithFields(logrus.Fields{"order_id": orderID, "status": status}).WithError(err).Info("order not finalized")
		return nil, err
	}

	order := receipt.Order
	s.metrics.ObserveBalanceDelta(receipt.Delta)
	s.log.WithFields(logrus.Fields{
		"order_id": order.ID,
		"email":    order.UserID,
		"type":     order.Type,
		"status":   order.Status,
		"actor":    f.Actor,
		"credit":   receipt.Delta.StringFixed(2),
	}).Info("order finalized")

	s.notifier.OrdersChanged(order.UserID)
	if !receipt.Delta.IsZero() {
		s.notifier.AccountChanged(order.UserID)
	}
	s.index(ctx, order, archive.EventFinalized)

	return &Result{Order: order, BalanceAfter: receipt.BalanceAfter}, nil
}

// GetOrder returns an order visible to the viewer. An order outside the
// viewer's scope is reported as missing.
func (s *Service) GetOrder(ctx context.Context, viewer *entities.Account, id string) (*entities.Order, error) {
	var order *entities.Order
	err := s.retry.Do(ctx, "get_order", func() error {
		var err error
		order, err = s.ledger.GetOrder(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !entities.ScopeFor(viewer).Allows(order) {
		return nil, types.NewStoreError(types.ErrOrderNotFound, "Order not found")
	}
	return order, nil
}

// ListOrders returns the viewer's orders, or every order for an admin, newest first
func (s *Service) ListOrders(ctx context.Context, viewer *entities.Account) ([]*entities.Order, error) {
	return s.ListScoped(ctx, entities.ScopeFor(viewer))
}

// ListScoped returns the orders inside scope, newest first
func (s *Service) ListScoped(ctx context.Context, scope entities.OrderScope) ([]*entities.Order, error) {
	var orders []*entities.Order
	err := s.retry.Do(ctx, "list_orders", func() error {
		var err error
		orders, err = s.ledger.ListOrders(ctx, scope)
		return err
	})
	return orders, err
}

// PendingOrders returns every pending order, oldest first, for the admin queue
func (s *Service) PendingOrders(ctx context.Context) ([]*entities.Order, error) {
	orders, err := s.ListScoped(ctx, entities.AllOrders())
	if err != nil {
		return nil, err
	}

	pending := make([]*entities.Order, 0, len(orders))
	for i := len(orders) - 1; i >= 0; i-- {
		if orders[i].Status == entities.OrderStatusPending {
			pending = append(pending, orders[i])
		}
	}
	return pending, nil
}

// DeleteAllOrders irreversibly clears the ledger for every account. Balances
// are untouched. Both acknowledgements must be given.
func (s *Service) DeleteAllOrders(ctx context.Context, actor string, confirm Confirmation) (int64, error) {
	if !confirm.First || !confirm.Second {
		return 0, types.NewStoreError(types.ErrConfirmationRequired, "Deleting every order needs two confirmations")
	}

	var deleted int64
	err := s.retry.Do(ctx, "delete_all_orders", func() error {
		var err error
		deleted, err = s.ledger.DeleteAllOrders(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.log.WithFields(logrus.Fields{"actor": actor, "deleted": deleted}).Warn("order ledger wiped")
	s.notifier.OrdersChanged("")

	if s.archive != nil {
		if err := s.archive.Clear(ctx); err != nil {
			s.log.WithError(err).Error("failed to clear order archive")
		}
	}
	return deleted, nil
}

// SearchArchive queries the audit index
func (s *Service) SearchArchive(ctx context.Context, q archive.Query) ([]*archive.OrderDocument, error) {
	if s.archive == nil {
		return nil, types.NewStoreError(types.ErrStoreUnavailable, "Order archive is not configured")
	}
	docs, err := s.archive.Search(ctx, q)
	if err != nil {
		return nil, types.WrapError(types.ErrStoreUnavailable, "Order archive search failed", err)
	}
	return docs, nil
}

// ReindexArchive rewrites the audit index from the ledger
func (s *Service) ReindexArchive(ctx context.Context) (written int, err error) {
	if s.archive == nil {
		return 0, nil
	}
	defer func() { s.metrics.ObserveArchiveRun(err) }()

	orders, err := s.ListScoped(ctx, entities.AllOrders())
	if err != nil {
		return 0, err
	}

	written, err = s.archive.Reindex(ctx, orders)
	if err != nil {
		return written, types.WrapError(types.ErrStoreUnavailable, "Order archive reindex failed", err)
	}

	s.log.WithFields(logrus.Fields{"orders": written}).Info("order archive reindexed")
	return written, nil
}

func (s *Service) createOrder(ctx context.Context, op string, order *entities.Order) (*ledger.Receipt, error) {
	var receipt *ledger.Receipt
	err := s.retry.Do(ctx, op, func() error {
		var err error
		// The repository normalizes its argument; retries start from the original
		receipt, err = s.ledger.CreateOrder(ctx, order.Clone())
		return err
	})
	if err != nil {
		return nil, err
	}

	// A replay may follow a commit whose acknowledgement was lost, so
	// observers are refreshed either way
	s.notifier.OrdersChanged(order.UserID)
	s.notifier.AccountChanged(order.UserID)
	if receipt.Replayed {
		return receipt, nil
	}

	s.metrics.ObserveBalanceDelta(receipt.Delta)
	s.index(ctx, receipt.Order, archive.EventCreated)
	return receipt, nil
}

func (s *Service) productAndConfig(ctx context.Context, productID string) (*entities.Product, *entities.AppConfig, error) {
	var product *entities.Product
	var cfg *entities.AppConfig
	err := s.retry.Do(ctx, "load_product", func() error {
		var err error
		if product, err = s.catalog.GetProduct(ctx, productID); err != nil {
			return err
		}
		cfg, err = s.catalog.GetConfig(ctx)
		return err
	})
	return product, cfg, err
}

func (s *Service) activeAccount(ctx context.Context, email string) (*entities.Account, error) {
	var account *entities.Account
	err := s.retry.Do(ctx, "load_account", func() error {
		var err error
		account, err = s.ledger.GetAccount(ctx, email)
		return err
	})
	if err != nil {
		return nil, err
	}
	if account.IsBlocked {
		return nil, types.NewStoreError(types.ErrAccountBlocked, "This account has been blocked")
	}
	return account, nil
}

// index writes to the audit index. The ledger is the source of truth, so a
// failure here is logged and repaired by the next reindex.
func (s *Service) index(ctx context.Context, order *entities.Order, event archive.Event) {
	if s.archive == nil {
		return
	}
	if err := s.archive.IndexOrder(ctx, order, event); err != nil {
		s.log.WithFields(logrus.Fields{"order_id": order.ID, "event": event}).WithError(err).Warn("failed to index order")
	}
}

func keyOrNew(key string) string {
	if key == "" {
		return uuid.NewString()
	}
	return key
}
