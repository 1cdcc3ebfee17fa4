package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/fadedpez/royalcharge/pkg/entities"
	"github.com/sirupsen/logrus"
)

// OrdersChanged wakes the order feed. It never blocks.
func (b *Bot) OrdersChanged(string) {
	select {
	case b.signal <- struct{}{}:
	default:
	}
}

// The console only follows orders
func (b *Bot) AccountChanged(string) {}
func (b *Bot) CatalogChanged()       {}
func (b *Bot) ConfigChanged()        {}

// seed marks the orders already pending at startup so they are not re-announced
func (b *Bot) seed(ctx context.Context) error {
	pending, err := b.orders.PendingOrders(ctx)
	if err != nil {
		return err
	}

	b.seenMu.Lock()
	defer b.seenMu.Unlock()
	for _, order := range pending {
		b.seen[order.ID] = true
	}
	return nil
}

func (b *Bot) runFeed(ctx context.Context) {
	for {
		select {
		case <-b.signal:
			b.announce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// announce posts every pending order not posted before
func (b *Bot) announce(ctx context.Context) {
	pending, err := b.orders.PendingOrders(ctx)
	if err != nil {
		b.log.WithError(err).Warn("failed to load pending orders")
		return
	}

	b.seenMu.Lock()
	defer b.seenMu.Unlock()

	still := make(map[string]bool, len(pending))
	for _, order := range pending {
		still[order.ID] = true
		if b.seen[order.ID] {
			continue
		}

		_, err := b.session.ChannelMessageSendComplex(b.config.OrdersChannel, orderMessage(order))
		if err != nil {
			b.log.WithFields(logrus.Fields{"order_id": order.ID}).WithError(err).Warn("failed to announce order")
			continue
		}
		b.seen[order.ID] = true
	}

	// Finalized orders never return to pending
	for id := range b.seen {
		if !still[id] {
			delete(b.seen, id)
		}
	}
}

func orderMessage(order *entities.Order) *discordgo.MessageSend {
	var sb strings.Builder
	if order.Type == entities.OrderTypeRecharge {
		fmt.Fprintf(&sb, "💳 **Recharge request** `%s`\n", order.ID)
		fmt.Fprintf(&sb, "User: %s\n", order.UserID)
		fmt.Fprintf(&sb, "%s\n", order.ProductName)
		fmt.Fprintf(&sb, "Amount: $%s (%s EGP)\n", order.PriceUSD.StringFixed(2), order.PriceEGP.StringFixed(2))
		fmt.Fprintf(&sb, "Sender: %s", order.PlayerID)
		if order.Screenshot != "" {
			fmt.Fprintf(&sb, "\nScreenshot: %s", order.Screenshot)
		}
	} else {
		fmt.Fprintf(&sb, "🛒 **New order** `%s`\n", order.ID)
		fmt.Fprintf(&sb, "User: %s\n", order.UserID)
		fmt.Fprintf(&sb, "Product: %s\n", order.ProductName)
		fmt.Fprintf(&sb, "Player ID: %s\n", order.PlayerID)
		fmt.Fprintf(&sb, "Paid: $%s", order.PriceUSD.StringFixed(2))
		if order.CoinsAmount > 0 {
			fmt.Fprintf(&sb, " for %d coins", order.CoinsAmount)
		}
	}

	return &discordgo.MessageSend{
		Content: sb.String(),
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{
						Label:    "Approve",
						Style:    discordgo.SuccessButton,
						CustomID: approvePrefix + order.ID,
					},
					discordgo.Button{
						Label:    "Reject",
						Style:    discordgo.DangerButton,
						CustomID: rejectPrefix + order.ID,
					},
				},
			},
		},
	}
}

func summaryLine(order *entities.Order) string {
	return fmt.Sprintf("`%s` %s · %s · $%s · %s",
		order.ID, order.Type, order.UserID, order.PriceUSD.StringFixed(2), order.Date.UTC().Format("Jan 2 15:04"))
}

func decisionLine(order *entities.Order, by string) string {
	emoji, verb := "✅", "Completed"
	if order.Status == entities.OrderStatusRejected {
		emoji, verb = "🚫", "Rejected"
	}
	return fmt.Sprintf("%s %s `%s` for %s by <@%s>", emoji, verb, order.ID, order.UserID, by)
}
