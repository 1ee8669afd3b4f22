package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-bot/internal/domain"
)

func TestMemoryTicketRepositoryCRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTicketRepository()

	ticket := &domain.Ticket{
		Key:       "TCK-1",
		GuildID:   "g",
		ChannelID: "chan-1",
		OwnerID:   "alice-id",
		OwnerName: "alice",
		Category:  "bot_issues",
		Status:    domain.TicketStatusOpen,
	}
	if err := repo.Create(ctx, ticket); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ticket.ID == "" || ticket.CreatedAt.IsZero() {
		t.Fatal("Create should assign id and timestamps")
	}

	got, err := repo.GetByChannel(ctx, "chan-1")
	if err != nil {
		t.Fatalf("GetByChannel: %v", err)
	}
	claimer := "bob-id"
	got.ClaimedBy = &claimer
	got.Status = domain.TicketStatusClaimed
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("Update: %v", err)
	}

	// Mutating the caller's copy must not leak into the store.
	claimer = "mallory"
	stored, _ := repo.GetByID(ctx, ticket.ID)
	if stored.ClaimedBy == nil || *stored.ClaimedBy != "bob-id" {
		t.Fatalf("ClaimedBy = %v", stored.ClaimedBy)
	}

	if _, err := repo.GetByChannel(ctx, "missing"); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("missing channel err = %v", err)
	}
	if err := repo.Update(ctx, &domain.Ticket{ID: "missing"}); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("update missing err = %v", err)
	}
}

func TestMemoryTicketRepositoryFilter(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTicketRepository()
	for i, status := range []domain.TicketStatus{domain.TicketStatusOpen, domain.TicketStatusClosed, domain.TicketStatusClaimed} {
		owner := "alice-id"
		if i == 2 {
			owner = "bob-id"
		}
		_ = repo.Create(ctx, &domain.Ticket{GuildID: "g", ChannelID: string(rune('a' + i)), OwnerID: owner, Status: status})
	}

	active, _ := repo.ListWithFilter(ctx, TicketFilter{Statuses: []domain.TicketStatus{domain.TicketStatusOpen, domain.TicketStatusClaimed}})
	if len(active) != 2 {
		t.Fatalf("active tickets = %d, want 2", len(active))
	}
	owner := "alice-id"
	mine, _ := repo.ListWithFilter(ctx, TicketFilter{OwnerID: &owner})
	if len(mine) != 2 {
		t.Fatalf("alice tickets = %d, want 2", len(mine))
	}
	page, _ := repo.ListWithFilter(ctx, TicketFilter{Limit: 1, Offset: 5})
	if len(page) != 0 {
		t.Fatalf("offset past end returned %d", len(page))
	}
}

func TestMemoryHistoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTicketHistoryRepository()
	_ = repo.Create(ctx, &domain.TicketHistory{TicketID: "t1", ChangeType: domain.ChangeTypeOpened})
	_ = repo.Create(ctx, &domain.TicketHistory{TicketID: "t1", ChangeType: domain.ChangeTypeClaimed})
	_ = repo.Create(ctx, &domain.TicketHistory{TicketID: "t2", ChangeType: domain.ChangeTypeOpened})

	got, err := repo.ListByTicket(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[1].ChangeType != domain.ChangeTypeClaimed {
		t.Fatalf("history = %+v", got)
	}
}
