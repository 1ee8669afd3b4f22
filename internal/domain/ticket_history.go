package domain

import "time"

// TicketChangeType captures what changed in a history entry.
type TicketChangeType string

const (
	ChangeTypeOpened         TicketChangeType = "OPENED"
	ChangeTypeClaimed        TicketChangeType = "CLAIMED"
	ChangeTypeCloseRequested TicketChangeType = "CLOSE_REQUESTED"
	ChangeTypeCloseCanceled  TicketChangeType = "CLOSE_CANCELED"
	ChangeTypeClosed         TicketChangeType = "CLOSED"
	ChangeTypeDeleted        TicketChangeType = "DELETED"
)

// TicketHistory is an immutable audit trail entry.
type TicketHistory struct {
	ID         string
	TicketID   string
	ActorID    *string
	ChangeType TicketChangeType
	OldValue   map[string]any
	NewValue   map[string]any
	CreatedAt  time.Time
}
