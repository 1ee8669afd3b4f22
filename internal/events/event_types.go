package events

import (
	"time"

	"github.com/spec-kit/ticket-bot/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketOpened         EventType = "ticket_opened"
	EventTicketClaimed        EventType = "ticket_claimed"
	EventTicketCloseRequested EventType = "ticket_close_requested"
	EventTicketCloseCanceled  EventType = "ticket_close_canceled"
	EventTicketClosed         EventType = "ticket_closed"
	EventTicketDeleted        EventType = "ticket_deleted"
)

// Actor is the Discord user behind an event.
type Actor struct {
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TicketID  string    `json:"ticket_id"`
	GuildID   string    `json:"guild_id"`
	ChannelID string    `json:"channel_id"`
	Actor     Actor     `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// TicketOpenedPayload payload.
type TicketOpenedPayload struct {
	Key         string `json:"key"`
	Category    string `json:"category"`
	ChannelName string `json:"channel_name"`
}

// TicketClaimedPayload payload.
type TicketClaimedPayload struct {
	PreviousClaimer *string `json:"previous_claimer,omitempty"`
	ClaimedBy       string  `json:"claimed_by"`
}

// TicketClosedPayload payload.
type TicketClosedPayload struct {
	Reason    string              `json:"reason"`
	OldStatus domain.TicketStatus `json:"old_status"`
}

// TicketCloseCanceledPayload payload.
type TicketCloseCanceledPayload struct {
	RestoredStatus domain.TicketStatus `json:"restored_status"`
}
