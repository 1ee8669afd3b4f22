package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/spec-kit/ticket-bot/internal/clock"
	"github.com/spec-kit/ticket-bot/internal/domain"
	"github.com/spec-kit/ticket-bot/internal/events"
	"github.com/spec-kit/ticket-bot/internal/platform/platformtest"
	"github.com/spec-kit/ticket-bot/internal/repository"
)

const (
	testGuild = "guild-1"
	testRole  = "role-support"
)

var (
	alice = Actor{UserID: "u-alice", Username: "alice"}
	bob   = Actor{UserID: "u-bob", Username: "bob"}
	carol = Actor{UserID: "u-carol", Username: "carol"}
)

type serviceFixture struct {
	svc      *TicketService
	platform *platformtest.Fake
	clock    *clock.FakeClock
	tickets  *repository.MemoryTicketRepository
	history  *repository.MemoryTicketHistoryRepository
	index    *repository.MemoryOwnerIndex

	mu     sync.Mutex
	events []events.Event
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	clk := clock.Fake(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	fake := platformtest.New()
	fake.Now = clk.Now

	f := &serviceFixture{
		platform: fake,
		clock:    clk,
		tickets:  repository.NewMemoryTicketRepository(),
		history:  repository.NewMemoryTicketHistoryRepository(),
		index:    repository.NewMemoryOwnerIndex(),
	}
	dispatcher := events.NewInMemoryDispatcher(nil)
	dispatcher.SubscribeAll(func(_ context.Context, e events.Event) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.events = append(f.events, e)
		return nil
	})
	f.svc = NewTicketService(TicketDependencies{
		TicketRepo:    f.tickets,
		HistoryRepo:   f.history,
		OwnerIndex:    f.index,
		Channels:      fake,
		Dispatcher:    dispatcher,
		Clock:         clk,
		SupportRoleID: testRole,
		DeleteDelay:   5 * time.Second,
	})
	return f
}

func (f *serviceFixture) eventTypes() []events.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]events.EventType, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}

func (f *serviceFixture) open(t *testing.T, owner Actor) (*domain.Ticket, *discordgo.Channel) {
	t.Helper()
	ticket, ch, err := f.svc.OpenTicket(context.Background(), OpenInput{
		GuildID:  testGuild,
		Owner:    owner,
		Category: domain.DefaultCategories()[1],
	})
	if err != nil {
		t.Fatalf("OpenTicket: %v", err)
	}
	return ticket, ch
}

func TestOpenTicketCreatesPrivateChannel(t *testing.T) {
	f := newServiceFixture(t)
	ticket, ch := f.open(t, alice)

	if ch.Name != "ticket-alice" || ch.Topic != alice.UserID {
		t.Fatalf("unexpected channel %q topic %q", ch.Name, ch.Topic)
	}
	if ticket.Status != domain.TicketStatusOpen || ticket.Category != "bot_issues" {
		t.Fatalf("unexpected ticket %+v", ticket)
	}

	created := f.platform.CreatedChannels()
	if len(created) != 1 {
		t.Fatalf("expected one channel, got %d", len(created))
	}
	overwrites := created[0].PermissionOverwrites
	if len(overwrites) != 3 {
		t.Fatalf("expected 3 overwrites, got %d", len(overwrites))
	}
	everyone, member, support := overwrites[0], overwrites[1], overwrites[2]
	if everyone.ID != testGuild || everyone.Deny&discordgo.PermissionViewChannel == 0 {
		t.Fatalf("everyone overwrite should deny view: %+v", everyone)
	}
	want := int64(discordgo.PermissionViewChannel | discordgo.PermissionSendMessages | discordgo.PermissionReadMessageHistory)
	if member.ID != alice.UserID || member.Type != discordgo.PermissionOverwriteTypeMember || member.Allow != want {
		t.Fatalf("unexpected member overwrite: %+v", member)
	}
	if support.ID != testRole || support.Type != discordgo.PermissionOverwriteTypeRole || support.Allow != want {
		t.Fatalf("unexpected support overwrite: %+v", support)
	}

	bound, ok, _ := f.index.Lookup(context.Background(), testGuild, alice.UserID)
	if !ok || bound != ch.ID {
		t.Fatalf("owner index not bound: %q %v", bound, ok)
	}
	if got := f.eventTypes(); len(got) != 1 || got[0] != events.EventTicketOpened {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestOpenTicketRejectsDuplicate(t *testing.T) {
	f := newServiceFixture(t)
	_, ch := f.open(t, alice)

	_, _, err := f.svc.OpenTicket(context.Background(), OpenInput{GuildID: testGuild, Owner: alice, Category: domain.DefaultCategories()[0]})
	existing, ok := IsExistingTicket(err)
	if !ok {
		t.Fatalf("expected ExistingTicketError, got %v", err)
	}
	if existing.ChannelID != ch.ID {
		t.Fatalf("expected existing channel %s, got %s", ch.ID, existing.ChannelID)
	}
	if n := len(f.platform.CreatedChannels()); n != 1 {
		t.Fatalf("expected no second channel, got %d", n)
	}
}

func TestOpenTicketAdoptsUnindexedChannel(t *testing.T) {
	f := newServiceFixture(t)
	f.platform.AddChannel(&discordgo.Channel{ID: "legacy", GuildID: testGuild, Name: "ticket-alice", Topic: alice.UserID})

	_, _, err := f.svc.OpenTicket(context.Background(), OpenInput{GuildID: testGuild, Owner: alice, Category: domain.DefaultCategories()[0]})
	existing, ok := IsExistingTicket(err)
	if !ok || existing.ChannelID != "legacy" {
		t.Fatalf("expected existing legacy channel, got %v", err)
	}
	bound, _, _ := f.index.Lookup(context.Background(), testGuild, alice.UserID)
	if bound != "legacy" {
		t.Fatalf("expected index to adopt legacy channel, got %q", bound)
	}
}

func TestOpenTicketIgnoresChannelOwnedBySomeoneElse(t *testing.T) {
	f := newServiceFixture(t)
	f.platform.AddChannel(&discordgo.Channel{ID: "other", GuildID: testGuild, Name: "ticket-alice", Topic: bob.UserID})

	_, ch := f.open(t, alice)
	if ch.ID == "other" {
		t.Fatal("channel with another owner's topic must not count as a duplicate")
	}
}

func TestOpenTicketClearsStaleIndexEntry(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	if _, reserved, _ := f.index.Reserve(ctx, testGuild, alice.UserID); !reserved {
		t.Fatal("reserve failed")
	}
	_ = f.index.Bind(ctx, testGuild, alice.UserID, "deleted-out-of-band")

	_, ch := f.open(t, alice)
	bound, _, _ := f.index.Lookup(ctx, testGuild, alice.UserID)
	if bound != ch.ID {
		t.Fatalf("expected index to point at %s, got %s", ch.ID, bound)
	}
}

func TestOpenTicketCreateFailureReleasesSlot(t *testing.T) {
	f := newServiceFixture(t)
	f.platform.CreateErr = errors.New("missing permissions")

	_, _, err := f.svc.OpenTicket(context.Background(), OpenInput{GuildID: testGuild, Owner: alice, Category: domain.DefaultCategories()[0]})
	if err == nil {
		t.Fatal("expected create error")
	}
	if _, ok := IsExistingTicket(err); ok {
		t.Fatal("create failure must not look like a duplicate")
	}
	if _, ok, _ := f.index.Lookup(context.Background(), testGuild, alice.UserID); ok {
		t.Fatal("slot should be released after a failed create")
	}

	f.platform.CreateErr = nil
	f.open(t, alice)
}

func TestOpenTicketConcurrentRequestsCreateOneChannel(t *testing.T) {
	f := newServiceFixture(t)

	const attempts = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	opened, rejected := 0, 0
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := f.svc.OpenTicket(context.Background(), OpenInput{GuildID: testGuild, Owner: alice, Category: domain.DefaultCategories()[0]})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				opened++
			} else if _, ok := IsExistingTicket(err); ok {
				rejected++
			}
		}()
	}
	wg.Wait()

	if opened != 1 || rejected != attempts-1 {
		t.Fatalf("expected 1 open and %d rejections, got %d and %d", attempts-1, opened, rejected)
	}
	if n := len(f.platform.CreatedChannels()); n != 1 {
		t.Fatalf("expected exactly one channel, got %d", n)
	}
}

func TestClaimTicketReplacesClaimer(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	ticket, ch := f.open(t, alice)

	if _, err := f.svc.ClaimTicket(ctx, ch.ID, bob); err != nil {
		t.Fatalf("claim: %v", err)
	}
	claimed, err := f.svc.ClaimTicket(ctx, ch.ID, carol)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if claimed.Status != domain.TicketStatusClaimed || claimed.ClaimedBy == nil || *claimed.ClaimedBy != carol.UserID {
		t.Fatalf("expected carol to hold the claim, got %+v", claimed)
	}

	history, _ := f.history.ListByTicket(ctx, ticket.ID)
	claims := 0
	for _, h := range history {
		if h.ChangeType == domain.ChangeTypeClaimed {
			claims++
		}
	}
	if claims != 2 {
		t.Fatalf("expected 2 claim entries, got %d", claims)
	}
}

func TestClaimTicketUnknownChannel(t *testing.T) {
	f := newServiceFixture(t)
	ticket, err := f.svc.ClaimTicket(context.Background(), "no-record", bob)
	if err != nil || ticket != nil {
		t.Fatalf("expected nil ticket without error, got %v %v", ticket, err)
	}
}

func TestBeginCloseRejectsSecondPendingClose(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	_, ch := f.open(t, alice)

	if err := f.svc.BeginClose(ctx, ch.ID, bob); err != nil {
		t.Fatalf("begin close: %v", err)
	}
	if err := f.svc.BeginClose(ctx, ch.ID, carol); !errors.Is(err, ErrClosePending) {
		t.Fatalf("expected ErrClosePending, got %v", err)
	}
	stored, _ := f.tickets.GetByChannel(ctx, ch.ID)
	if stored.Status != domain.TicketStatusClosePending {
		t.Fatalf("expected CLOSE_PENDING, got %s", stored.Status)
	}
}

func TestCancelCloseRestoresPriorStatus(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	_, ch := f.open(t, alice)
	_, _ = f.svc.ClaimTicket(ctx, ch.ID, bob)

	if err := f.svc.BeginClose(ctx, ch.ID, bob); err != nil {
		t.Fatalf("begin close: %v", err)
	}
	if err := f.svc.CancelClose(ctx, ch.ID, bob); err != nil {
		t.Fatalf("cancel close: %v", err)
	}
	stored, _ := f.tickets.GetByChannel(ctx, ch.ID)
	if stored.Status != domain.TicketStatusClaimed {
		t.Fatalf("expected CLAIMED after cancel, got %s", stored.Status)
	}
	if err := f.svc.BeginClose(ctx, ch.ID, bob); err != nil {
		t.Fatalf("close should be possible again after cancel: %v", err)
	}
	if len(f.platform.Deletions()) != 0 {
		t.Fatal("cancel must not delete the channel")
	}
}

func TestClaimDuringPendingCloseSurvivesCancel(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	_, ch := f.open(t, alice)

	_ = f.svc.BeginClose(ctx, ch.ID, bob)
	_, _ = f.svc.ClaimTicket(ctx, ch.ID, carol)
	_ = f.svc.CancelClose(ctx, ch.ID, bob)

	stored, _ := f.tickets.GetByChannel(ctx, ch.ID)
	if stored.Status != domain.TicketStatusClaimed || *stored.ClaimedBy != carol.UserID {
		t.Fatalf("expected claim by carol to survive, got %+v", stored)
	}
}

func TestCloseTicketDeletesChannelAfterDelay(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	ticket, ch := f.open(t, alice)
	start := f.clock.Now()

	_ = f.svc.BeginClose(ctx, ch.ID, bob)
	closed, err := f.svc.CloseTicket(ctx, ch.ID, bob, "Issue resolved")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Status != domain.TicketStatusClosed || *closed.CloseReason != "Issue resolved" || *closed.ClosedBy != bob.UserID {
		t.Fatalf("unexpected closed ticket %+v", closed)
	}

	f.clock.Advance(5*time.Second - time.Millisecond)
	if n := len(f.platform.Deletions()); n != 0 {
		t.Fatalf("channel deleted before the delay elapsed")
	}
	f.clock.Advance(time.Millisecond)
	deletions := f.platform.Deletions()
	if len(deletions) != 1 || deletions[0].ChannelID != ch.ID {
		t.Fatalf("expected deletion of %s, got %+v", ch.ID, deletions)
	}
	if got := deletions[0].At.Sub(start); got != 5*time.Second {
		t.Fatalf("expected deletion 5s after close, got %s", got)
	}

	if _, ok, _ := f.index.Lookup(ctx, testGuild, alice.UserID); ok {
		t.Fatal("owner slot should be free after deletion")
	}
	history, _ := f.history.ListByTicket(ctx, ticket.ID)
	if last := history[len(history)-1]; last.ChangeType != domain.ChangeTypeDeleted {
		t.Fatalf("expected DELETED as last history entry, got %s", last.ChangeType)
	}

	// The owner can open a fresh ticket once the old channel is gone.
	f.open(t, alice)
}

func TestCloseTicketDeletionFailureKeepsSlot(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	_, ch := f.open(t, alice)
	f.platform.DeleteErr = errors.New("missing access")

	if _, err := f.svc.CloseTicket(ctx, ch.ID, bob, "done"); err != nil {
		t.Fatalf("close: %v", err)
	}
	f.clock.Advance(5 * time.Second)

	if len(f.platform.Deletions()) != 1 {
		t.Fatal("expected a deletion attempt")
	}
	if bound, ok, _ := f.index.Lookup(ctx, testGuild, alice.UserID); !ok || bound != ch.ID {
		t.Fatalf("slot should still point at the surviving channel, got %q", bound)
	}
}

func TestCloseTicketWithoutRecordStillDeletes(t *testing.T) {
	f := newServiceFixture(t)
	f.platform.AddChannel(&discordgo.Channel{ID: "orphan", GuildID: testGuild, Name: "ticket-alice", Topic: alice.UserID})

	ticket, err := f.svc.CloseTicket(context.Background(), "orphan", bob, "cleanup")
	if err != nil || ticket != nil {
		t.Fatalf("expected nil ticket without error, got %v %v", ticket, err)
	}
	f.clock.Advance(5 * time.Second)
	if d := f.platform.Deletions(); len(d) != 1 || d[0].ChannelID != "orphan" {
		t.Fatalf("expected orphan deletion, got %+v", d)
	}
}

func TestReconcileAdoptsExistingTicketChannels(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.platform.AddChannel(&discordgo.Channel{ID: "c1", GuildID: testGuild, Type: discordgo.ChannelTypeGuildText, Name: "ticket-alice", Topic: alice.UserID})
	f.platform.AddChannel(&discordgo.Channel{ID: "c2", GuildID: testGuild, Type: discordgo.ChannelTypeGuildText, Name: "ticket-bob", Topic: bob.UserID})
	f.platform.AddChannel(&discordgo.Channel{ID: "c3", GuildID: testGuild, Type: discordgo.ChannelTypeGuildText, Name: "general"})
	f.platform.AddChannel(&discordgo.Channel{ID: "c4", GuildID: testGuild, Type: discordgo.ChannelTypeGuildText, Name: "ticket-notes"})

	adopted, err := f.svc.Reconcile(ctx, testGuild)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if adopted != 2 {
		t.Fatalf("expected 2 adopted channels, got %d", adopted)
	}
	if bound, _, _ := f.index.Lookup(ctx, testGuild, bob.UserID); bound != "c2" {
		t.Fatalf("expected bob bound to c2, got %q", bound)
	}
	stored, err := f.tickets.GetByChannel(ctx, "c1")
	if err != nil || stored.OwnerName != "alice" {
		t.Fatalf("expected adopted record for alice, got %+v %v", stored, err)
	}

	again, err := f.svc.Reconcile(ctx, testGuild)
	if err != nil || again != 2 {
		t.Fatalf("reconcile should be idempotent, got %d %v", again, err)
	}
	all, _ := f.tickets.ListWithFilter(ctx, repository.TicketFilter{})
	if len(all) != 2 {
		t.Fatalf("expected 2 ticket records, got %d", len(all))
	}
}

func TestOpenTicketDoesNotWaitForEventHandlers(t *testing.T) {
	dispatcher := events.NewAsyncDispatcher(nil, 16)
	dispatcher.Start()
	release := make(chan struct{})
	delivered := make(chan events.EventType, 1)
	dispatcher.Subscribe(events.EventTicketOpened, func(_ context.Context, e events.Event) error {
		// Stands in for a broker that does not answer.
		<-release
		delivered <- e.Type
		return nil
	})

	svc := NewTicketService(TicketDependencies{
		TicketRepo:    repository.NewMemoryTicketRepository(),
		HistoryRepo:   repository.NewMemoryTicketHistoryRepository(),
		OwnerIndex:    repository.NewMemoryOwnerIndex(),
		Channels:      platformtest.New(),
		Dispatcher:    dispatcher,
		SupportRoleID: testRole,
	})

	opened := make(chan error, 1)
	go func() {
		_, _, err := svc.OpenTicket(context.Background(), OpenInput{GuildID: testGuild, Owner: alice, Category: domain.DefaultCategories()[0]})
		opened <- err
	}()
	select {
	case err := <-opened:
		if err != nil {
			t.Fatalf("OpenTicket: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("OpenTicket blocked on an event handler")
	}

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := dispatcher.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := <-delivered; got != events.EventTicketOpened {
		t.Fatalf("delivered %s", got)
	}
}
