package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/fadedpez/royalcharge/internal/discord"
	"github.com/fadedpez/royalcharge/internal/types"
	"github.com/fadedpez/royalcharge/pkg/entities"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	approvePrefix = "order_approve:"
	rejectPrefix  = "order_reject:"

	requestTimeout = 10 * time.Second
	pendingLimit   = 10
)

var errNotAdmin = types.NewStoreError(types.ErrPermissionDenied, "Only store admins can do that")

// handleSlashCommand handles all slash commands
func (b *Bot) handleSlashCommand(i *discordgo.InteractionCreate) {
	if !b.isAdmin(i) {
		b.respondError(i, errNotAdmin)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	data := i.ApplicationCommandData()
	options := optionMap(data.Options)

	switch data.Name {
	case "pending":
		b.handlePending(ctx, i)
	case "approve":
		b.handleDecision(ctx, i, stringOption(options, "order"), entities.OrderStatusCompleted, stringOption(options, "reply"))
	case "reject":
		b.handleDecision(ctx, i, stringOption(options, "order"), entities.OrderStatusRejected, stringOption(options, "reply"))
	case "balance":
		b.handleBalance(ctx, i, stringOption(options, "email"), floatOption(options, "amount"))
	case "account":
		b.handleAccount(ctx, i, stringOption(options, "email"))
	default:
		b.log.WithFields(logrus.Fields{"command": data.Name}).Warn("unknown command")
	}
}

// handleMessageComponent handles the approve and reject buttons of the order feed
func (b *Bot) handleMessageComponent(i *discordgo.InteractionCreate) {
	if !b.isAdmin(i) {
		b.respondError(i, errNotAdmin)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	customID := i.MessageComponentData().CustomID
	var status entities.OrderStatus
	var orderID string
	switch {
	case strings.HasPrefix(customID, approvePrefix):
		status, orderID = entities.OrderStatusCompleted, strings.TrimPrefix(customID, approvePrefix)
	case strings.HasPrefix(customID, rejectPrefix):
		status, orderID = entities.OrderStatusRejected, strings.TrimPrefix(customID, rejectPrefix)
	default:
		b.log.WithFields(logrus.Fields{"custom_id": customID}).Warn("unknown component interaction")
		return
	}

	result, err := b.orders.UpdateOrderStatus(ctx, actor(i), orderID, status, "")
	if err != nil {
		b.respondError(i, err)
		return
	}

	content := decisionLine(result.Order, userID(i))
	if i.Message != nil && i.Message.Content != "" {
		content = i.Message.Content + "\n" + content
	}
	if err := discord.UpdateResponse(b.session, i, discord.NewResponse(content, nil)); err != nil {
		b.log.WithError(err).Warn("failed to update order message")
	}
}

func (b *Bot) handlePending(ctx context.Context, i *discordgo.InteractionCreate) {
	pending, err := b.orders.PendingOrders(ctx)
	if err != nil {
		b.respondError(i, err)
		return
	}
	if len(pending) == 0 {
		b.respond(i, discord.NewEphemeralResponse("🎉 No pending orders", nil))
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "⏳ **%d pending**\n", len(pending))
	for n, order := range pending {
		if n == pendingLimit {
			fmt.Fprintf(&sb, "…and %d more", len(pending)-pendingLimit)
			break
		}
		sb.WriteString(summaryLine(order))
		sb.WriteString("\n")
	}
	b.respond(i, discord.NewEphemeralResponse(sb.String(), nil))
}

func (b *Bot) handleDecision(ctx context.Context, i *discordgo.InteractionCreate, orderID string, status entities.OrderStatus, reply string) {
	result, err := b.orders.UpdateOrderStatus(ctx, actor(i), orderID, status, reply)
	if err != nil {
		b.respondError(i, err)
		return
	}
	b.respond(i, discord.NewResponse(decisionLine(result.Order, userID(i)), nil))
}

func (b *Bot) handleBalance(ctx context.Context, i *discordgo.InteractionCreate, email string, amount float64) {
	delta := decimal.NewFromFloat(amount)
	balance, err := b.accounts.AdjustBalance(ctx, email, delta)
	if err != nil {
		b.respondError(i, err)
		return
	}

	content := fmt.Sprintf("💰 %s %s$%s → balance $%s",
		entities.NormalizeEmail(email), sign(delta), delta.Abs().StringFixed(2), balance.StringFixed(2))
	b.respond(i, discord.NewEphemeralResponse(content, nil))
}

func (b *Bot) handleAccount(ctx context.Context, i *discordgo.InteractionCreate, email string) {
	account, err := b.accounts.GetAccount(ctx, email)
	if err != nil {
		b.respondError(i, err)
		return
	}

	flags := make([]string, 0, 3)
	if account.IsAdmin {
		flags = append(flags, "admin")
	}
	if account.IsBlocked {
		flags = append(flags, "blocked")
	}
	if account.IsFrozen {
		flags = append(flags, "frozen")
	}

	content := fmt.Sprintf("👤 **%s** (%s) #%s\nBalance: $%s\nVIP %d %s",
		account.Name, account.Email, account.ID, account.BalanceUSD.StringFixed(2), account.VIP, strings.Join(flags, ", "))
	b.respond(i, discord.NewEphemeralResponse(strings.TrimSpace(content), nil))
}

func (b *Bot) respond(i *discordgo.InteractionCreate, r *discord.Response) {
	if err := discord.SendResponse(b.session, i, r); err != nil {
		b.log.WithError(err).Warn("failed to respond to interaction")
	}
}

func (b *Bot) respondError(i *discordgo.InteractionCreate, err error) {
	b.log.WithFields(logrus.Fields{"user": userID(i), "code": types.CodeOf(err)}).Info("admin command failed")
	if err := discord.SendErrorResponse(b.session, i, err); err != nil {
		b.log.WithError(err).Warn("failed to send error response")
	}
}

func (b *Bot) isAdmin(i *discordgo.InteractionCreate) bool {
	return b.admins[userID(i)]
}

// userID returns the invoking user for guild and direct interactions
func userID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

// actor is recorded on finalized orders
func actor(i *discordgo.InteractionCreate) string {
	return "discord:" + userID(i)
}

func optionMap(options []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	out := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, opt := range options {
		out[opt.Name] = opt
	}
	return out
}

func stringOption(options map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	if opt, ok := options[name]; ok {
		return opt.StringValue()
	}
	return ""
}

func floatOption(options map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) float64 {
	if opt, ok := options[name]; ok {
		return opt.FloatValue()
	}
	return 0
}

func sign(d decimal.Decimal) string {
	if d.IsNegative() {
		return "-"
	}
	return "+"
}
