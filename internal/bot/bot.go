package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/fadedpez/royalcharge/internal/discord"
	"github.com/fadedpez/royalcharge/internal/logging"
	"github.com/fadedpez/royalcharge/pkg/entities"
	"github.com/fadedpez/royalcharge/pkg/services/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// OrderService is the order surface the admin console drives
type OrderService interface {
	PendingOrders(ctx context.Context) ([]*entities.Order, error)
	UpdateOrderStatus(ctx context.Context, actor, orderID string, status entities.OrderStatus, reply string) (*store.Result, error)
}

// AccountService is the account surface the admin console drives
type AccountService interface {
	GetAccount(ctx context.Context, email string) (*entities.Account, error)
	AdjustBalance(ctx context.Context, email string, delta decimal.Decimal) (decimal.Decimal, error)
}

// Config holds the Discord side of the admin console
type Config struct {
	AppID         string
	GuildID       string
	OrdersChannel string   // New orders are announced here when set
	AdminIDs      []string // Discord user IDs allowed to act
	Development   bool     // Commands are removed on shutdown
}

// Bot is the Discord admin console: it announces new pending orders and lets
// admins approve, reject and adjust balances from Discord
type Bot struct {
	config   *Config
	session  discord.SessionHandler
	commands []*discordgo.ApplicationCommand
	orders   OrderService
	accounts AccountService
	admins   map[string]bool
	log      *logging.Logger

	// Order feed
	signal chan struct{}
	seenMu sync.Mutex
	seen   map[string]bool
	stop   context.CancelFunc

	// Interaction tracking to prevent duplicates
	interactionMu sync.Mutex
	processed     map[string]time.Time

	shutdownWg sync.WaitGroup
}

// New creates a new instance of Bot
func New(session discord.SessionHandler, cfg *Config, orders OrderService, accounts AccountService, log *logging.Logger) *Bot {
	if log == nil {
		log = logging.Discard
	}

	bot := &Bot{
		config:    cfg,
		session:   session,
		commands:  make([]*discordgo.ApplicationCommand, 0),
		orders:    orders,
		accounts:  accounts,
		admins:    make(map[string]bool),
		log:       log.Component("bot"),
		signal:    make(chan struct{}, 1),
		seen:      make(map[string]bool),
		stop:      func() {},
		processed: make(map[string]time.Time),
	}
	for _, id := range cfg.AdminIDs {
		bot.admins[id] = true
	}

	bot.registerHandlers()
	return bot
}

func (b *Bot) registerHandlers() {
	b.session.AddHandler(func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
		b.handleInteractionCreate(i)
	})
}

// Start connects to Discord, registers commands and starts the order feed
func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	if err := b.registerCommands(); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}

	if b.config.OrdersChannel != "" {
		ctx, cancel := context.WithCancel(context.Background())
		b.stop = cancel
		if err := b.seed(ctx); err != nil {
			b.log.WithError(err).Warn("failed to load pending orders")
		}

		b.shutdownWg.Add(1)
		go func() {
			defer b.shutdownWg.Done()
			b.runFeed(ctx)
		}()
	}

	b.log.WithFields(logrus.Fields{"commands": len(b.commands)}).Info("discord admin console started")
	return nil
}

// Shutdown gracefully shuts down the bot
func (b *Bot) Shutdown() {
	b.stop()

	// Cleanup commands if in development
	if b.config.Development {
		if err := b.cleanupCommands(); err != nil {
			b.log.WithError(err).Warn("failed to clean up commands")
		}
	}

	if err := b.session.Close(); err != nil {
		b.log.WithError(err).Warn("error closing Discord session")
	}

	// Wait for any ongoing operations to complete
	b.shutdownWg.Wait()
}

func (b *Bot) registerCommands() error {
	for _, cmd := range Commands {
		created, err := b.session.ApplicationCommandCreate(b.config.AppID, b.config.GuildID, cmd)
		if err != nil {
			return fmt.Errorf("command %s: %w", cmd.Name, err)
		}
		b.commands = append(b.commands, created)
	}
	return nil
}

func (b *Bot) cleanupCommands() error {
	existing, err := b.session.ApplicationCommands(b.config.AppID, b.config.GuildID)
	if err != nil {
		return fmt.Errorf("failed to list commands: %w", err)
	}

	for _, cmd := range existing {
		if err := b.session.ApplicationCommandDelete(b.config.AppID, b.config.GuildID, cmd.ID); err != nil {
			return fmt.Errorf("failed to delete command %s: %w", cmd.Name, err)
		}
	}
	b.commands = b.commands[:0]
	return nil
}

// handleInteractionCreate handles Discord interaction events
func (b *Bot) handleInteractionCreate(i *discordgo.InteractionCreate) {
	if !b.firstDelivery(i.ID) {
		return
	}

	b.shutdownWg.Add(1)
	defer b.shutdownWg.Done()

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		b.handleSlashCommand(i)
	case discordgo.InteractionMessageComponent:
		b.handleMessageComponent(i)
	}
}

// firstDelivery reports whether an interaction is seen for the first time
func (b *Bot) firstDelivery(id string) bool {
	b.interactionMu.Lock()
	defer b.interactionMu.Unlock()

	if _, ok := b.processed[id]; ok {
		b.log.WithFields(logrus.Fields{"interaction": id}).Debug("skipping duplicate interaction")
		return false
	}

	now := time.Now()
	if len(b.processed) > 100 {
		for seenID, at := range b.processed {
			if now.Sub(at) > 10*time.Minute {
				delete(b.processed, seenID)
			}
		}
	}
	b.processed[id] = now
	return true
}
