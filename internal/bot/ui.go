package bot

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/spec-kit/ticket-bot/internal/domain"
)

// Component custom ids.
const (
	TicketMenuID  = "ticketMenu"
	ClaimButtonID = "claimTicket"
	CloseButtonID = "closeTicket"
)

const (
	colorSetup   = 0x0099ff
	colorPanel   = 0xFFD700
	colorCreated = 0x00FF00
	colorClaimed = 0xFFD700
	colorClosed  = 0xFF0000

	footerSystem = "Support Ticket System"
)

// User-facing texts.
const (
	msgUnknownCategory = "Unknown ticket type."
	msgCloseReason     = "Please provide a reason for closing the ticket:"
	msgCloseCanceled   = "No reason was provided. Ticket closing canceled."
	msgClosePending    = "A close request is already waiting for a reason."
	msgTicketPending   = "Your ticket is already being created."
	msgOpenFailed      = "Your ticket could not be created. Please try again later."
)

func setupEmbed() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Support Ticket System Setup",
		Description: "The ticket system setup is complete! The ticket panel will now be posted.",
		Color:       colorSetup,
	}
}

func panelMessage(categories []domain.Category) *discordgo.MessageSend {
	options := make([]discordgo.SelectMenuOption, 0, len(categories))
	for _, c := range categories {
		options = append(options, discordgo.SelectMenuOption{
			Label:       c.MenuLabel(),
			Description: c.Description,
			Value:       c.Value,
		})
	}
	return &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       "🎟️ Open a Support Ticket",
			Description: "Please select a ticket type from the dropdown menu below to get started!",
			Color:       colorPanel,
			Footer:      &discordgo.MessageEmbedFooter{Text: footerSystem},
		}},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.SelectMenu{
					MenuType:    discordgo.StringSelectMenu,
					CustomID:    TicketMenuID,
					Placeholder: "Select a ticket type...",
					Options:     options,
				},
			}},
		},
	}
}

func ticketWelcome(supportRoleID string, category domain.Category) *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Content: fmt.Sprintf("<@&%s>", supportRoleID),
		Embeds: []*discordgo.MessageEmbed{{
			Title:       "Support Ticket Created",
			Description: fmt.Sprintf("Thank you for creating a ticket for **%s**.", category.Label),
			Color:       colorCreated,
			Footer:      &discordgo.MessageEmbedFooter{Text: "Our support team will assist you shortly."},
		}},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{Label: "Claim Ticket", Style: discordgo.PrimaryButton, CustomID: ClaimButtonID},
				discordgo.Button{Label: "Close with Reason", Style: discordgo.DangerButton, CustomID: CloseButtonID},
			}},
		},
		AllowedMentions: &discordgo.MessageAllowedMentions{Roles: []string{supportRoleID}},
	}
}

func claimedEmbed(userID string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Ticket Claimed",
		Description: fmt.Sprintf("This ticket has been claimed by <@%s>.", userID),
		Color:       colorClaimed,
		Footer:      &discordgo.MessageEmbedFooter{Text: footerSystem},
	}
}

func closedEmbed(reason string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Ticket Closed",
		Description: fmt.Sprintf("This ticket has been closed.\n**Reason:** %s", reason),
		Color:       colorClosed,
		Footer:      &discordgo.MessageEmbedFooter{Text: footerSystem},
	}
}

func existingTicketText(channelID string) string {
	return fmt.Sprintf("You already have an open ticket: <#%s>", channelID)
}

func createdTicketText(channelID string) string {
	return fmt.Sprintf("Your ticket has been created: <#%s>", channelID)
}
