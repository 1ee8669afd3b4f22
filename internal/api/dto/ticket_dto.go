package dto

import (
	"time"

	"github.com/spec-kit/ticket-bot/internal/domain"
)

// TicketSummary response.
type TicketSummary struct {
	ID        string              `json:"id"`
	Key       string              `json:"key"`
	ChannelID string              `json:"channel_id"`
	OwnerID   string              `json:"owner_id"`
	OwnerName string              `json:"owner_name"`
	Category  string              `json:"category"`
	Status    domain.TicketStatus `json:"status"`
	ClaimedBy *string             `json:"claimed_by"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketSummary
	GuildID     string                  `json:"guild_id"`
	CloseReason *string                 `json:"close_reason"`
	ClosedBy    *string                 `json:"closed_by"`
	ClaimedAt   *time.Time              `json:"claimed_at"`
	ClosedAt    *time.Time              `json:"closed_at"`
	History     []TicketHistoryResponse `json:"history"`
}

// TicketHistoryResponse is one audit entry.
type TicketHistoryResponse struct {
	ID         string                  `json:"id"`
	ChangeType domain.TicketChangeType `json:"change_type"`
	ActorID    *string                 `json:"actor_id"`
	OldValue   map[string]any          `json:"old_value,omitempty"`
	NewValue   map[string]any          `json:"new_value,omitempty"`
	CreatedAt  time.Time               `json:"created_at"`
}
