package archive

import (
	"context"
	"time"

	"github.com/fadedpez/royalcharge/pkg/entities"
)

// Event names the ledger write that produced a document
type Event string

const (
	EventCreated   Event = "created"
	EventFinalized Event = "finalized"
	EventReindexed Event = "reindexed"
)

// OrderDocument is the searchable audit copy of an order
type OrderDocument struct {
	OrderID     string     `json:"order_id"`
	UserID      string     `json:"user_id"`
	Type        string     `json:"type"`
	ProductName string     `json:"product_name"`
	PriceUSD    float64    `json:"price_usd"`
	PriceEGP    float64    `json:"price_egp"`
	CoinsAmount int64      `json:"coins_amount"`
	PlayerID    string     `json:"player_id"`
	Status      string     `json:"status"`
	AdminReply  string     `json:"admin_reply,omitempty"`
	FinalizedBy string     `json:"finalized_by,omitempty"`
	FinalizedAt *time.Time `json:"finalized_at,omitempty"`
	Date        time.Time  `json:"date"`
	Event       Event      `json:"event"`
	IndexedAt   time.Time  `json:"indexed_at"`
}

// NewOrderDocument flattens an order for indexing
func NewOrderDocument(o *entities.Order, event Event) *OrderDocument {
	price, _ := o.PriceUSD.Float64()
	egp, _ := o.PriceEGP.Float64()
	return &OrderDocument{
		OrderID:     o.ID,
		UserID:      o.UserID,
		Type:        string(o.Type),
		ProductName: o.ProductName,
		PriceUSD:    price,
		PriceEGP:    egp,
		CoinsAmount: o.CoinsAmount,
		PlayerID:    o.PlayerID,
		Status:      string(o.Status),
		AdminReply:  o.AdminReply,
		FinalizedBy: o.FinalizedBy,
		FinalizedAt: o.FinalizedAt,
		Date:        o.Date,
		Event:       event,
		IndexedAt:   time.Now().UTC(),
	}
}

// Query filters an audit search. Empty fields match everything.
type Query struct {
	UserID string
	Status entities.OrderStatus
	Type   entities.OrderType
	Size   int
}

// Repository is the order audit index. It is a secondary copy: the ledger
// stays authoritative and a failed index write never fails a transaction.
type Repository interface {
	// IndexOrder upserts the document for one order
	IndexOrder(ctx context.Context, order *entities.Order, event Event) error

	// Reindex upserts every given order in batches and returns how many were written
	Reindex(ctx context.Context, orders []*entities.Order) (int, error)

	// Search returns matching documents, newest first
	Search(ctx context.Context, q Query) ([]*OrderDocument, error)

	// Clear drops every document, used after a bulk ledger wipe
	Clear(ctx context.Context) error

	Close() error
}
