package bot

import (
	"github.com/bwmarrin/discordgo"
)

var minDelta = -1000000.0

// Commands defines all slash commands for the bot
var Commands = []*discordgo.ApplicationCommand{
	{
		Name:        "pending",
		Description: "List pending orders, oldest first",
	},
	{
		Name:        "approve",
		Description: "Complete a pending order",
		Options: []*discordgo.ApplicationCommandOption{
			orderOption(),
			replyOption(),
		},
	},
	{
		Name:        "reject",
		Description: "Reject a pending order",
		Options: []*discordgo.ApplicationCommandOption{
			orderOption(),
			replyOption(),
		},
	},
	{
		Name:        "balance",
		Description: "Credit or debit a wallet",
		Options: []*discordgo.ApplicationCommandOption{
			emailOption(),
			{
				Type:        discordgo.ApplicationCommandOptionNumber,
				Name:        "amount",
				Description: "USD to add, negative to remove",
				Required:    true,
				MinValue:    &minDelta,
			},
		},
	},
	{
		Name:        "account",
		Description: "Show a customer's wallet",
		Options: []*discordgo.ApplicationCommandOption{
			emailOption(),
		},
	},
}

func orderOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "order",
		Description: "Order ID",
		Required:    true,
	}
}

func replyOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "reply",
		Description: "Message shown to the customer",
	}
}

func emailOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "email",
		Description: "Account email",
		Required:    true,
	}
}
