package livesync

import (
	"context"
	"errors"
	"sync"

	"github.com/fadedpez/royalcharge/internal/logging"
	"github.com/fadedpez/royalcharge/internal/types"
	"github.com/fadedpez/royalcharge/pkg/entities"
	"github.com/fadedpez/royalcharge/pkg/metrics"
	"github.com/fadedpez/royalcharge/pkg/repositories/catalog"
	"github.com/fadedpez/royalcharge/pkg/repositories/ledger"
	"github.com/sirupsen/logrus"
)

// Topic names a collection an observer can follow
type Topic string

const (
	TopicAccount Topic = "account"
	TopicOrders  Topic = "orders"
	TopicCatalog Topic = "catalog"
	TopicConfig  Topic = "config"
)

// Valid reports whether t is a known topic
func (t Topic) Valid() bool {
	switch t {
	case TopicAccount, TopicOrders, TopicCatalog, TopicConfig:
		return true
	}
	return false
}

// CatalogSnapshot is the catalog as one value
type CatalogSnapshot struct {
	Products   []*entities.Product        `json:"products"`
	Categories []*entities.Category       `json:"categories"`
	Methods    []*entities.RechargeMethod `json:"methods"`
}

// Update is one delivery to an observer: a full snapshot of the followed data.
// Terminated is set on the last update of an account stream whose session
// may no longer continue; the channel is closed right after it.
type Update struct {
	Topic      Topic  `json:"topic"`
	Data       any    `json:"data,omitempty"`
	Error      string `json:"error,omitempty"`
	Code       string `json:"code,omitempty"`
	Terminated bool   `json:"terminated,omitempty"`
}

// Subscription is an open stream of updates
type Subscription struct {
	C <-chan Update

	topic Topic
	stop  context.CancelFunc
	done  chan struct{}
}

// Topic returns the followed topic
func (s *Subscription) Topic() Topic {
	return s.topic
}

// Unsubscribe stops the stream and waits for its goroutine to exit
func (s *Subscription) Unsubscribe() {
	s.stop()
	<-s.done
}

type subscriber struct {
	topic  Topic
	email  string              // account topic
	scope  entities.OrderScope // orders topic
	signal chan struct{}
}

// Hub delivers an initial snapshot to each observer and a fresh snapshot after
// every change notification. Each observer has its own goroutine; pending
// notifications coalesce so a slow observer only ever sees the latest state.
type Hub struct {
	ledger  ledger.Repository
	catalog catalog.Repository
	log     *logging.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHub creates a hub reading snapshots from the given repositories
func NewHub(ledgerRepo ledger.Repository, catalogRepo catalog.Repository, log *logging.Logger, m *metrics.Metrics) *Hub {
	if log == nil {
		log = logging.Discard
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		ledger:  ledgerRepo,
		catalog: catalogRepo,
		log:     log.Component("livesync"),
		metrics: m,
		subs:    make(map[*subscriber]struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// SubscribeAccount follows one account. The stream terminates when the
// account is blocked or deleted.
func (h *Hub) SubscribeAccount(ctx context.Context, email string) *Subscription {
	return h.subscribe(ctx, &subscriber{topic: TopicAccount, email: entities.NormalizeEmail(email)})
}

// SubscribeOrders follows the orders visible in scope, newest first. The scope
// is applied by the repository query, so no out-of-scope order is ever loaded.
func (h *Hub) SubscribeOrders(ctx context.Context, scope entities.OrderScope) *Subscription {
	return h.subscribe(ctx, &subscriber{topic: TopicOrders, scope: scope})
}

// SubscribeCatalog follows products, categories and recharge methods
func (h *Hub) SubscribeCatalog(ctx context.Context) *Subscription {
	return h.subscribe(ctx, &subscriber{topic: TopicCatalog})
}

// SubscribeConfig follows the site configuration
func (h *Hub) SubscribeConfig(ctx context.Context) *Subscription {
	return h.subscribe(ctx, &subscriber{topic: TopicConfig})
}

func (h *Hub) subscribe(ctx context.Context, sub *subscriber) *Subscription {
	sub.signal = make(chan struct{}, 1)
	out := make(chan Update, 1)
	done := make(chan struct{})

	subCtx, stop := context.WithCancel(ctx)
	go func() {
		// Hub shutdown stops every stream
		select {
		case <-h.ctx.Done():
			stop()
		case <-subCtx.Done():
		}
	}()

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	h.metrics.SubscriberAdded(string(sub.topic))

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer close(done)
		defer stop()
		defer close(out)
		defer h.remove(sub)
		h.run(subCtx, sub, out)
	}()

	return &Subscription{C: out, topic: sub.topic, stop: stop, done: done}
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
	h.metrics.SubscriberRemoved(string(sub.topic))
}

// run delivers the initial snapshot, then one snapshot per coalesced signal
func (h *Hub) run(ctx context.Context, sub *subscriber, out chan<- Update) {
	for {
		update, terminal := h.snapshot(ctx, sub)
		if ctx.Err() != nil {
			return
		}

		select {
		case out <- update:
		case <-ctx.Done():
			return
		}
		if terminal {
			return
		}

		select {
		case <-sub.signal:
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) snapshot(ctx context.Context, sub *subscriber) (Update, bool) {
	update := Update{Topic: sub.topic}

	var data any
	var err error
	switch sub.topic {
	case TopicAccount:
		var account *entities.Account
		account, err = h.ledger.GetAccount(ctx, sub.email)
		if errors.Is(err, ledger.ErrAccountNotFound) {
			update.Terminated = true
			update.Code = string(types.ErrAccountNotFound)
			update.Error = "Account no longer exists"
			return update, true
		}
		if err == nil && account.IsBlocked {
			update.Terminated = true
			update.Code = string(types.ErrAccountBlocked)
			update.Error = "Account is blocked"
			return update, true
		}
		data = account
	case TopicOrders:
		data, err = h.ledger.ListOrders(ctx, sub.scope)
	case TopicCatalog:
		data, err = h.catalogSnapshot(ctx)
	case TopicConfig:
		data, err = h.catalog.GetConfig(ctx)
	}

	if err != nil {
		h.log.WithFields(logrus.Fields{"topic": sub.topic}).WithError(err).Warn("failed to load snapshot")
		update.Code = string(types.ErrStoreUnavailable)
		update.Error = "Failed to load data"
		return update, false
	}

	update.Data = data
	return update, false
}

func (h *Hub) catalogSnapshot(ctx context.Context) (*CatalogSnapshot, error) {
	products, err := h.catalog.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	categories, err := h.catalog.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	methods, err := h.catalog.ListMethods(ctx)
	if err != nil {
		return nil, err
	}
	return &CatalogSnapshot{Products: products, Categories: categories, Methods: methods}, nil
}

// notify signals every subscriber matching the predicate without blocking
func (h *Hub) notify(match func(*subscriber) bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs {
		if !match(sub) {
			continue
		}
		select {
		case sub.signal <- struct{}{}:
		default:
			// A refresh is already pending
		}
	}
}

// AccountChanged implements Notifier
func (h *Hub) AccountChanged(email string) {
	email = entities.NormalizeEmail(email)
	h.notify(func(s *subscriber) bool {
		return s.topic == TopicAccount && s.email == email
	})
}

// OrdersChanged implements Notifier
func (h *Hub) OrdersChanged(email string) {
	email = entities.NormalizeEmail(email)
	h.notify(func(s *subscriber) bool {
		if s.topic != TopicOrders {
			return false
		}
		return email == "" || s.scope.All || s.scope.UserID == email
	})
}

// CatalogChanged implements Notifier
func (h *Hub) CatalogChanged() {
	h.notify(func(s *subscriber) bool { return s.topic == TopicCatalog })
}

// ConfigChanged implements Notifier
func (h *Hub) ConfigChanged() {
	h.notify(func(s *subscriber) bool { return s.topic == TopicConfig })
}

// Subscribers returns the number of open subscriptions
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every subscription and waits for their goroutines
func (h *Hub) Close() {
	h.cancel()
	h.wg.Wait()
}
