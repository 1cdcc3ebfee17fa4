package bot

import (
	"context"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	discordmock "github.com/fadedpez/royalcharge/internal/discord/mock"
	"github.com/fadedpez/royalcharge/pkg/entities"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestFeedAnnouncesEachNewOrderOnce(t *testing.T) {
	// Setup
	ctx := context.Background()
	session := &discordmock.SessionHandler{}
	session.Test(t)
	orders := &MockOrderService{}
	session.On("AddHandler", mock.Anything).Return(func() {})
	b := New(session, &Config{OrdersChannel: "orders"}, orders, &MockAccountService{}, nil)

	old := &entities.Order{ID: "o1", Type: entities.OrderTypeProduct, UserID: "a@x.com", PriceUSD: decimal.NewFromInt(20)}
	fresh := &entities.Order{
		ID: "o2", Type: entities.OrderTypeRecharge, UserID: "b@x.com", ProductName: "Deposit via Vodafone Cash",
		PriceUSD: decimal.NewFromInt(25), PriceEGP: decimal.NewFromInt(1250), PlayerID: "0101", Screenshot: "https://cdn/s.png",
	}

	orders.On("PendingOrders", mock.Anything).Return([]*entities.Order{old}, nil).Once()
	orders.On("PendingOrders", mock.Anything).Return([]*entities.Order{old, fresh}, nil)
	session.On("ChannelMessageSendComplex", "orders", mock.MatchedBy(func(m *discordgo.MessageSend) bool {
		return strings.Contains(m.Content, "`o2`") && strings.Contains(m.Content, "1250.00 EGP")
	})).Return(&discordgo.Message{}, nil).Once()

	// Execute
	require.NoError(t, b.seed(ctx))
	b.announce(ctx)
	b.announce(ctx)

	// Assert
	session.AssertExpectations(t)
	assert.Len(t, b.seen, 2)
}

func TestFeedForgetsFinalizedOrders(t *testing.T) {
	ctx := context.Background()
	session := &discordmock.SessionHandler{}
	orders := &MockOrderService{}
	session.On("AddHandler", mock.Anything).Return(func() {})
	b := New(session, &Config{OrdersChannel: "orders"}, orders, &MockAccountService{}, nil)
	b.seen["gone"] = true

	orders.On("PendingOrders", mock.Anything).Return([]*entities.Order{}, nil)

	b.announce(ctx)

	assert.Empty(t, b.seen)
}

func TestOrdersChangedNeverBlocks(t *testing.T) {
	session := &discordmock.SessionHandler{}
	session.On("AddHandler", mock.Anything).Return(func() {})
	b := New(session, &Config{}, &MockOrderService{}, &MockAccountService{}, nil)

	for i := 0; i < 5; i++ {
		b.OrdersChanged("a@x.com")
	}

	assert.Len(t, b.signal, 1)
}

func TestOrderMessageButtons(t *testing.T) {
	msg := orderMessage(&entities.Order{ID: "o9", Type: entities.OrderTypeProduct, CoinsAmount: 500})

	row := msg.Components[0].(discordgo.ActionsRow)
	require.Len(t, row.Components, 2)
	assert.Equal(t, approvePrefix+"o9", row.Components[0].(discordgo.Button).CustomID)
	assert.Equal(t, rejectPrefix+"o9", row.Components[1].(discordgo.Button).CustomID)
	assert.Contains(t, msg.Content, "for 500 coins")
}
