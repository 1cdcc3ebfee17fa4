package entities

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderKindDeltas(t *testing.T) {
	price := decimal.NewFromInt(25)

	testCases := []struct {
		name         string
		orderType    OrderType
		to           OrderStatus
		creation     decimal.Decimal
		finalization decimal.Decimal
	}{
		{"product completed", OrderTypeProduct, OrderStatusCompleted, price.Neg(), decimal.Zero},
		{"product rejected", OrderTypeProduct, OrderStatusRejected, price.Neg(), decimal.Zero},
		{"recharge completed", OrderTypeRecharge, OrderStatusCompleted, decimal.Zero, price},
		{"recharge rejected", OrderTypeRecharge, OrderStatusRejected, decimal.Zero, decimal.Zero},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			order := &Order{Type: tc.orderType, PriceUSD: price}

			kind, err := order.Kind()
			require.NoError(t, err)

			assert.Equal(t, tc.orderType, kind.Type())
			assert.True(t, tc.creation.Equal(kind.CreationDelta(order)))
			assert.True(t, tc.finalization.Equal(kind.FinalizationDelta(order, tc.to)))
		})
	}
}

func TestOrderKindUnknownType(t *testing.T) {
	_, err := (&Order{Type: "gift"}).Kind()
	assert.Error(t, err)
}

func TestOrderStatus(t *testing.T) {
	assert.False(t, OrderStatusPending.IsTerminal())
	assert.True(t, OrderStatusCompleted.IsTerminal())
	assert.True(t, OrderStatusRejected.IsTerminal())
	assert.True(t, OrderStatusPending.Valid())
	assert.False(t, OrderStatus("cancelled").Valid())
}

func TestFinalization(t *testing.T) {
	// Setup
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	order := &Order{Status: OrderStatusPending}
	f := Finalization{Status: OrderStatusCompleted, Reply: "done", Actor: "admin@royal.com", At: at}

	// Execute
	require.NoError(t, f.Validate())
	f.Apply(order)

	// Assert
	assert.Equal(t, OrderStatusCompleted, order.Status)
	assert.Equal(t, "done", order.AdminReply)
	assert.Equal(t, "admin@royal.com", order.FinalizedBy)
	require.NotNil(t, order.FinalizedAt)
	assert.Equal(t, at, *order.FinalizedAt)

	assert.Error(t, Finalization{Status: OrderStatusPending}.Validate())
}

func TestOrderScope(t *testing.T) {
	mine := &Order{UserID: "a@x.com"}
	theirs := &Order{UserID: "b@x.com"}

	own := OwnOrders("  A@X.com ")
	assert.True(t, own.Allows(mine))
	assert.False(t, own.Allows(theirs))

	assert.True(t, AllOrders().Allows(theirs))
	assert.Equal(t, AllOrders(), ScopeFor(&Account{Email: "root@x.com", IsAdmin: true}))
	assert.Equal(t, OwnOrders("a@x.com"), ScopeFor(&Account{Email: "a@x.com"}))
}

func TestMoneyConversions(t *testing.T) {
	assert.Equal(t, int64(1999), ToCents(decimal.RequireFromString("19.99")))
	assert.Equal(t, int64(556), ToCents(decimal.RequireFromString("5.555")))
	assert.True(t, decimal.RequireFromString("12.34").Equal(FromCents(1234)))
	assert.True(t, decimal.RequireFromString("0.01").Equal(RoundUSD(decimal.RequireFromString("0.0149"))))
}

func TestAccountPatch(t *testing.T) {
	// Setup
	name := "Sara"
	admin := true
	account := &Account{Name: "old", IsAdmin: false}
	patch := AccountPatch{Name: &name, IsAdmin: &admin}

	// Execute
	patch.ProfileOnly().Apply(account)

	// Assert
	assert.Equal(t, "Sara", account.Name)
	assert.False(t, account.IsAdmin, "profile path must not grant admin")

	patch.Apply(account)
	assert.True(t, account.IsAdmin)
	assert.True(t, AccountPatch{}.IsEmpty())
	assert.False(t, patch.IsEmpty())
}

func TestProductCoinRate(t *testing.T) {
	cfg := DefaultAppConfig()

	withRate := &Product{USDToCoinRate: decimal.NewFromInt(80)}
	assert.True(t, decimal.NewFromInt(80).Equal(withRate.CoinRate(cfg)))

	withoutRate := &Product{}
	assert.True(t, cfg.GlobalUSDToCoinRate.Equal(withoutRate.CoinRate(cfg)))
	assert.True(t, decimal.NewFromInt(100).Equal(withoutRate.CoinRate(nil)))
}
