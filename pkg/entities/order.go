package entities

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderType tags which variant an order is
type OrderType string

const (
	OrderTypeProduct  OrderType = "product"
	OrderTypeRecharge OrderType = "recharge"
)

// OrderStatus is the lifecycle state of an order
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusRejected  OrderStatus = "rejected"
)

// IsTerminal reports whether no further transition is allowed from s
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusRejected
}

// Valid reports whether s is a known status
func (s OrderStatus) Valid() bool {
	return s == OrderStatusPending || s.IsTerminal()
}

// Order is a ledger record: a product purchase or a recharge request
type Order struct {
	ID             string          `json:"id"`
	UserID         string          `json:"userId"` // Owning account email
	Type           OrderType       `json:"type"`
	ProductName    string          `json:"productName"`
	PriceUSD       decimal.Decimal `json:"priceUSD"`
	PriceEGP       decimal.Decimal `json:"priceEGP"` // Informational
	CoinsAmount    int64           `json:"coinsAmount"`
	Date           time.Time       `json:"date"`
	Status         OrderStatus     `json:"status"`
	PlayerID       string          `json:"playerId"`
	Screenshot     string          `json:"screenshot,omitempty"`
	AdminReply     string          `json:"adminReply,omitempty"`
	FinalizedBy    string          `json:"finalizedBy,omitempty"`
	FinalizedAt    *time.Time      `json:"finalizedAt,omitempty"`
	IdempotencyKey string          `json:"-"`
}

// Clone returns a deep copy of the order
func (o *Order) Clone() *Order {
	c := *o
	if o.FinalizedAt != nil {
		t := *o.FinalizedAt
		c.FinalizedAt = &t
	}
	return &c
}

// OrderKind carries the money movement attached to each order variant.
// The ledger applies these deltas in the same atomic write as the order
// insert or status transition, so it never branches on the type string itself.
type OrderKind interface {
	Type() OrderType
	// CreationDelta is the balance change applied together with the order insert
	CreationDelta(o *Order) decimal.Decimal
	// FinalizationDelta is the balance change applied together with the transition to status
	FinalizationDelta(o *Order, to OrderStatus) decimal.Decimal
}

// ProductOrder debits at creation; finalizing it is informational only
type ProductOrder struct{}

func (ProductOrder) Type() OrderType { return OrderTypeProduct }

func (ProductOrder) CreationDelta(o *Order) decimal.Decimal { return o.PriceUSD.Neg() }

func (ProductOrder) FinalizationDelta(*Order, OrderStatus) decimal.Decimal { return decimal.Zero }

// RechargeOrder credits once, on the transition to completed
type RechargeOrder struct{}

func (RechargeOrder) Type() OrderType { return OrderTypeRecharge }

func (RechargeOrder) CreationDelta(*Order) decimal.Decimal { return decimal.Zero }

func (RechargeOrder) FinalizationDelta(o *Order, to OrderStatus) decimal.Decimal {
	if to == OrderStatusCompleted {
		return o.PriceUSD
	}
	return decimal.Zero
}

// Kind resolves the variant behaviour for the order's type
func (o *Order) Kind() (OrderKind, error) {
	switch o.Type {
	case OrderTypeProduct:
		return ProductOrder{}, nil
	case OrderTypeRecharge:
		return RechargeOrder{}, nil
	default:
		return nil, fmt.Errorf("unknown order type %q", o.Type)
	}
}

// Finalization is an admin decision on a pending order
type Finalization struct {
	Status OrderStatus
	Reply  string
	Actor  string    // Email of the approving admin
	At     time.Time // When the decision was taken
}

// Validate checks that the finalization targets a terminal status
func (f Finalization) Validate() error {
	if !f.Status.IsTerminal() {
		return fmt.Errorf("status %q is not a terminal status", f.Status)
	}
	return nil
}

// Apply writes the decision onto the order
func (f Finalization) Apply(o *Order) {
	at := f.At
	o.Status = f.Status
	o.AdminReply = f.Reply
	o.FinalizedBy = f.Actor
	o.FinalizedAt = &at
}

// OrderScope restricts which orders a reader may see
type OrderScope struct {
	UserID string // Owner email; ignored when All is set
	All    bool
}

// AllOrders is the admin scope
func AllOrders() OrderScope {
	return OrderScope{All: true}
}

// OwnOrders is the scope of a regular account
func OwnOrders(email string) OrderScope {
	return OrderScope{UserID: NormalizeEmail(email)}
}

// ScopeFor returns the scope an account is entitled to
func ScopeFor(a *Account) OrderScope {
	if a.IsAdmin {
		return AllOrders()
	}
	return OwnOrders(a.Email)
}

// Allows reports whether an order falls inside the scope
func (s OrderScope) Allows(o *Order) bool {
	return s.All || o.UserID == s.UserID
}
