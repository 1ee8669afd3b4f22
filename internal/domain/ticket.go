package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen         TicketStatus = "OPEN"
	TicketStatusClaimed      TicketStatus = "CLAIMED"
	TicketStatusClosePending TicketStatus = "CLOSE_PENDING"
	TicketStatusClosed       TicketStatus = "CLOSED"
)

// Active reports whether the ticket channel is still expected to exist.
func (s TicketStatus) Active() bool {
	return s != TicketStatusClosed
}

// ChannelPrefix prefixes every ticket channel name.
const ChannelPrefix = "ticket-"

// ChannelName derives the ticket channel name for a username.
func ChannelName(username string) string {
	return ChannelPrefix + username
}

// Ticket is the record of one support request. The Discord channel is the
// user-facing ticket; this is its audit copy.
type Ticket struct {
	ID          string
	Key         string
	GuildID     string
	ChannelID   string
	OwnerID     string
	OwnerName   string
	Category    string
	Status      TicketStatus
	ClaimedBy   *string
	CloseReason *string
	ClosedBy    *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ClaimedAt   *time.Time
	ClosedAt    *time.Time
}
