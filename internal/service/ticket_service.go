package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/clock"
	"github.com/spec-kit/ticket-bot/internal/domain"
	"github.com/spec-kit/ticket-bot/internal/events"
	"github.com/spec-kit/ticket-bot/internal/platform"
	"github.com/spec-kit/ticket-bot/internal/repository"
	apperrors "github.com/spec-kit/ticket-bot/pkg/util/errorutil"
)

// ErrClosePending is returned when a close is already waiting for a reason
// in the same channel.
var ErrClosePending = apperrors.NewConflict("close already pending", nil)

// ExistingTicketError reports that the user already owns an open ticket.
// ChannelID is empty while the other ticket's channel is still being
// created.
type ExistingTicketError struct {
	ChannelID string
}

func (e *ExistingTicketError) Error() string {
	if e.ChannelID == "" {
		return "ticket creation already in progress"
	}
	return fmt.Sprintf("ticket already open in channel %s", e.ChannelID)
}

// TicketService owns the ticket channel lifecycle: creation with the
// duplicate guard, claim bookkeeping, the close state machine and the
// delayed deletion.
type TicketService struct {
	tickets       repository.TicketRepository
	history       repository.TicketHistoryRepository
	index         repository.OwnerIndex
	channels      platform.ChannelPort
	dispatcher    events.Dispatcher
	clock         clock.Clock
	logger        *zap.Logger
	supportRoleID string
	deleteDelay   time.Duration

	mu      sync.Mutex
	pending map[string]domain.TicketStatus
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo    repository.TicketRepository
	HistoryRepo   repository.TicketHistoryRepository
	OwnerIndex    repository.OwnerIndex
	Channels      platform.ChannelPort
	Dispatcher    events.Dispatcher
	Clock         clock.Clock
	Logger        *zap.Logger
	SupportRoleID string
	DeleteDelay   time.Duration
}

// Actor identifies the Discord user driving an operation.
type Actor struct {
	UserID   string
	Username string
}

// OpenInput describes a ticket request from the panel menu.
type OpenInput struct {
	GuildID  string
	Owner    Actor
	Category domain.Category
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	return &TicketService{
		tickets:       deps.TicketRepo,
		history:       deps.HistoryRepo,
		index:         deps.OwnerIndex,
		channels:      deps.Channels,
		dispatcher:    deps.Dispatcher,
		clock:         clk,
		logger:        logger,
		supportRoleID: deps.SupportRoleID,
		deleteDelay:   deps.DeleteDelay,
		pending:       make(map[string]domain.TicketStatus),
	}
}

// OpenTicket creates the owner's private ticket channel. When the owner
// already has one it returns *ExistingTicketError instead.
func (s *TicketService) OpenTicket(ctx context.Context, input OpenInput) (*domain.Ticket, *discordgo.Channel, error) {
	name := domain.ChannelName(input.Owner.Username)

	if err := s.reserve(ctx, input.GuildID, input.Owner.UserID, name); err != nil {
		return nil, nil, err
	}

	channel, err := s.channels.CreateChannel(ctx, input.GuildID, discordgo.GuildChannelCreateData{
		Name:                 name,
		Type:                 discordgo.ChannelTypeGuildText,
		Topic:                input.Owner.UserID,
		PermissionOverwrites: ticketOverwrites(input.GuildID, input.Owner.UserID, s.supportRoleID),
	})
	if err != nil {
		s.releaseSlot(ctx, input.GuildID, input.Owner.UserID, repository.PendingChannel)
		return nil, nil, fmt.Errorf("create ticket channel: %w", err)
	}

	if err := s.index.Bind(ctx, input.GuildID, input.Owner.UserID, channel.ID); err != nil {
		s.logger.Error("bind owner index", zap.String("channel_id", channel.ID), zap.Error(err))
	}

	ticket := &domain.Ticket{
		Key:       generateTicketKey(),
		GuildID:   input.GuildID,
		ChannelID: channel.ID,
		OwnerID:   input.Owner.UserID,
		OwnerName: input.Owner.Username,
		Category:  input.Category.Value,
		Status:    domain.TicketStatusOpen,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		// The channel exists and is the ticket; only the audit copy is lost.
		s.logger.Error("persist ticket", zap.String("channel_id", channel.ID), zap.Error(err))
	} else {
		s.recordHistory(ctx, ticket.ID, input.Owner.UserID, domain.ChangeTypeOpened, nil,
			map[string]any{"category": ticket.Category, "channel_id": channel.ID})
	}

	s.publishEvent(ctx, events.Event{
		Type:      events.EventTicketOpened,
		TicketID:  ticket.ID,
		GuildID:   input.GuildID,
		ChannelID: channel.ID,
		Actor:     eventActor(input.Owner),
		Payload: events.TicketOpenedPayload{
			Key:         ticket.Key,
			Category:    ticket.Category,
			ChannelName: name,
		},
	})

	s.logger.Info("ticket opened",
		zap.String("ticket_id", ticket.ID),
		zap.String("channel_id", channel.ID),
		zap.String("user_id", input.Owner.UserID),
		zap.String("category", ticket.Category))
	return ticket, channel, nil
}

// reserve claims the owner's index slot, clearing stale entries whose
// channel no longer looks like this owner's ticket.
func (s *TicketService) reserve(ctx context.Context, guildID, ownerID, name string) error {
	for attempt := 0; attempt < 2; attempt++ {
		current, reserved, err := s.index.Reserve(ctx, guildID, ownerID)
		if err != nil {
			return fmt.Errorf("reserve ticket slot: %w", err)
		}

		if reserved {
			// The index can miss channels created before it existed or while
			// it was unavailable; the channel scan is the fallback.
			existing, err := s.findTicketChannel(ctx, guildID, ownerID, name)
			if err != nil {
				s.releaseSlot(ctx, guildID, ownerID, repository.PendingChannel)
				return err
			}
			if existing != nil {
				if err := s.index.Bind(ctx, guildID, ownerID, existing.ID); err != nil {
					s.logger.Warn("adopt ticket channel", zap.String("channel_id", existing.ID), zap.Error(err))
				}
				return &ExistingTicketError{ChannelID: existing.ID}
			}
			return nil
		}

		if current == repository.PendingChannel {
			return &ExistingTicketError{}
		}

		ch, err := s.channels.Channel(ctx, current)
		if err == nil && isTicketChannel(ch, ownerID, name) {
			return &ExistingTicketError{ChannelID: ch.ID}
		}
		s.logger.Info("clearing stale ticket index entry",
			zap.String("user_id", ownerID),
			zap.String("channel_id", current),
			zap.NamedError("lookup_error", err))
		s.releaseSlot(ctx, guildID, ownerID, current)
	}
	return &ExistingTicketError{}
}

func (s *TicketService) findTicketChannel(ctx context.Context, guildID, ownerID, name string) (*discordgo.Channel, error) {
	channels, err := s.channels.ListChannels(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("list guild channels: %w", err)
	}
	for _, ch := range channels {
		if isTicketChannel(ch, ownerID, name) {
			return ch, nil
		}
	}
	return nil, nil
}

// isTicketChannel applies the ownership check: the derived name and the
// owner id stored in the topic must both match.
func isTicketChannel(ch *discordgo.Channel, ownerID, name string) bool {
	return ch != nil && ch.Name == name && ch.Topic == ownerID
}

func ticketOverwrites(guildID, ownerID, supportRoleID string) []*discordgo.PermissionOverwrite {
	const participant = discordgo.PermissionViewChannel | discordgo.PermissionSendMessages | discordgo.PermissionReadMessageHistory
	return []*discordgo.PermissionOverwrite{
		// The @everyone role shares the guild's id.
		{ID: guildID, Type: discordgo.PermissionOverwriteTypeRole, Deny: discordgo.PermissionViewChannel},
		{ID: ownerID, Type: discordgo.PermissionOverwriteTypeMember, Allow: participant},
		{ID: supportRoleID, Type: discordgo.PermissionOverwriteTypeRole, Allow: participant},
	}
}

// ClaimTicket records actor as the ticket's claimer. Claims are not
// exclusive: the latest one replaces the previous claimer. An unknown
// channel yields a nil ticket and no error.
func (s *TicketService) ClaimTicket(ctx context.Context, channelID string, actor Actor) (*domain.Ticket, error) {
	ticket, err := s.ticketForChannel(ctx, channelID)
	if err != nil || ticket == nil {
		return nil, err
	}

	previous := ticket.ClaimedBy
	now := s.clock.Now()
	ticket.ClaimedBy = &actor.UserID
	ticket.ClaimedAt = &now

	s.mu.Lock()
	if _, waiting := s.pending[channelID]; waiting {
		// A cancel restores the claimed state.
		s.pending[channelID] = domain.TicketStatusClaimed
	} else {
		ticket.Status = domain.TicketStatusClaimed
	}
	s.mu.Unlock()

	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, fmt.Errorf("update claimed ticket: %w", err)
	}

	old := map[string]any{}
	if previous != nil {
		old["claimed_by"] = *previous
	}
	s.recordHistory(ctx, ticket.ID, actor.UserID, domain.ChangeTypeClaimed, old, map[string]any{"claimed_by": actor.UserID})
	s.publishEvent(ctx, events.Event{
		Type:      events.EventTicketClaimed,
		TicketID:  ticket.ID,
		GuildID:   ticket.GuildID,
		ChannelID: channelID,
		Actor:     eventActor(actor),
		Payload:   events.TicketClaimedPayload{PreviousClaimer: previous, ClaimedBy: actor.UserID},
	})
	return ticket, nil
}

// BeginClose moves the channel's ticket to ClosePending. Only one close may
// wait for a reason per channel; a second attempt gets ErrClosePending.
func (s *TicketService) BeginClose(ctx context.Context, channelID string, actor Actor) error {
	ticket, err := s.ticketForChannel(ctx, channelID)
	if err != nil {
		return err
	}

	prior := domain.TicketStatusOpen
	if ticket != nil {
		prior = ticket.Status
	}

	s.mu.Lock()
	if _, waiting := s.pending[channelID]; waiting {
		s.mu.Unlock()
		return ErrClosePending
	}
	s.pending[channelID] = prior
	s.mu.Unlock()

	if ticket == nil {
		return nil
	}

	ticket.Status = domain.TicketStatusClosePending
	if err := s.tickets.Update(ctx, ticket); err != nil {
		s.logger.Warn("persist close pending", zap.String("ticket_id", ticket.ID), zap.Error(err))
	}
	s.recordHistory(ctx, ticket.ID, actor.UserID, domain.ChangeTypeCloseRequested,
		map[string]any{"status": prior}, map[string]any{"status": domain.TicketStatusClosePending})
	s.publishEvent(ctx, events.Event{
		Type:      events.EventTicketCloseRequested,
		TicketID:  ticket.ID,
		GuildID:   ticket.GuildID,
		ChannelID: channelID,
		Actor:     eventActor(actor),
	})
	return nil
}

// CancelClose aborts a pending close that will not complete and restores
// the status the ticket had before.
func (s *TicketService) CancelClose(ctx context.Context, channelID string, actor Actor) error {
	restored := s.takePending(channelID)

	ticket, err := s.ticketForChannel(ctx, channelID)
	if err != nil || ticket == nil {
		return err
	}

	ticket.Status = restored
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return fmt.Errorf("restore ticket status: %w", err)
	}
	s.recordHistory(ctx, ticket.ID, actor.UserID, domain.ChangeTypeCloseCanceled,
		map[string]any{"status": domain.TicketStatusClosePending}, map[string]any{"status": restored})
	s.publishEvent(ctx, events.Event{
		Type:      events.EventTicketCloseCanceled,
		TicketID:  ticket.ID,
		GuildID:   ticket.GuildID,
		ChannelID: channelID,
		Actor:     eventActor(actor),
		Payload:   events.TicketCloseCanceledPayload{RestoredStatus: restored},
	})
	return nil
}

// CloseTicket marks the ticket closed with reason and schedules the channel
// deletion after the configured delay. The deletion cannot be canceled;
// its failure is only logged.
func (s *TicketService) CloseTicket(ctx context.Context, channelID string, actor Actor, reason string) (*domain.Ticket, error) {
	prior := s.takePending(channelID)

	ticket, err := s.ticketForChannel(ctx, channelID)
	if err != nil {
		s.scheduleDeletion(channelID, nil)
		return nil, err
	}

	if ticket != nil {
		now := s.clock.Now()
		ticket.Status = domain.TicketStatusClosed
		ticket.CloseReason = &reason
		ticket.ClosedBy = &actor.UserID
		ticket.ClosedAt = &now
		if err := s.tickets.Update(ctx, ticket); err != nil {
			s.logger.Error("persist closed ticket", zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
		s.recordHistory(ctx, ticket.ID, actor.UserID, domain.ChangeTypeClosed,
			map[string]any{"status": prior}, map[string]any{"status": domain.TicketStatusClosed, "reason": reason})
		s.publishEvent(ctx, events.Event{
			Type:      events.EventTicketClosed,
			TicketID:  ticket.ID,
			GuildID:   ticket.GuildID,
			ChannelID: channelID,
			Actor:     eventActor(actor),
			Payload:   events.TicketClosedPayload{Reason: reason, OldStatus: prior},
		})
	}

	s.scheduleDeletion(channelID, ticket)
	return ticket, nil
}

func (s *TicketService) scheduleDeletion(channelID string, ticket *domain.Ticket) {
	s.clock.AfterFunc(s.deleteDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		s.deleteChannel(ctx, channelID, ticket)
	})
}

func (s *TicketService) deleteChannel(ctx context.Context, channelID string, ticket *domain.Ticket) {
	guildID, ownerID := "", ""
	if ticket != nil {
		guildID, ownerID = ticket.GuildID, ticket.OwnerID
	} else if ch, err := s.channels.Channel(ctx, channelID); err == nil {
		guildID, ownerID = ch.GuildID, ch.Topic
	}

	if err := s.channels.DeleteChannel(ctx, channelID); err != nil {
		s.logger.Error("delete ticket channel", zap.String("channel_id", channelID), zap.Error(err))
		return
	}
	if ownerID != "" {
		s.releaseSlot(ctx, guildID, ownerID, channelID)
	}
	if ticket == nil {
		return
	}

	s.recordHistory(ctx, ticket.ID, "", domain.ChangeTypeDeleted, nil, map[string]any{"channel_id": channelID})
	s.publishEvent(ctx, events.Event{
		Type:      events.EventTicketDeleted,
		TicketID:  ticket.ID,
		GuildID:   guildID,
		ChannelID: channelID,
	})
	s.logger.Info("ticket channel deleted", zap.String("ticket_id", ticket.ID), zap.String("channel_id", channelID))
}

// Reconcile rebuilds the owner index and ticket records from the guild's
// existing ticket channels. It returns the number of channels adopted.
func (s *TicketService) Reconcile(ctx context.Context, guildID string) (int, error) {
	channels, err := s.channels.ListChannels(ctx, guildID)
	if err != nil {
		return 0, fmt.Errorf("list guild channels: %w", err)
	}

	adopted := 0
	for _, ch := range channels {
		if ch.Type != discordgo.ChannelTypeGuildText || ch.Topic == "" || !strings.HasPrefix(ch.Name, domain.ChannelPrefix) {
			continue
		}
		ownerID := ch.Topic

		current, reserved, err := s.index.Reserve(ctx, guildID, ownerID)
		if err != nil {
			return adopted, fmt.Errorf("reserve ticket slot: %w", err)
		}
		if !reserved && current != ch.ID {
			continue
		}
		if reserved {
			if err := s.index.Bind(ctx, guildID, ownerID, ch.ID); err != nil {
				return adopted, fmt.Errorf("bind ticket slot: %w", err)
			}
		}

		if _, err := s.tickets.GetByChannel(ctx, ch.ID); err == nil {
			adopted++
			continue
		} else if !apperrors.IsNotFound(err) {
			return adopted, fmt.Errorf("lookup ticket: %w", err)
		}

		ticket := &domain.Ticket{
			Key:       generateTicketKey(),
			GuildID:   guildID,
			ChannelID: ch.ID,
			OwnerID:   ownerID,
			OwnerName: strings.TrimPrefix(ch.Name, domain.ChannelPrefix),
			Status:    domain.TicketStatusOpen,
		}
		if err := s.tickets.Create(ctx, ticket); err != nil {
			return adopted, fmt.Errorf("persist adopted ticket: %w", err)
		}
		adopted++
	}
	return adopted, nil
}

// GetTicket returns a ticket with its audit trail.
func (s *TicketService) GetTicket(ctx context.Context, id string) (*domain.Ticket, []domain.TicketHistory, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
	}
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
		}
		return nil, nil, apperrors.MapError(err)
	}
	history, err := s.history.ListByTicket(ctx, id)
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	return ticket, history, nil
}

// ListTickets lists tickets for the ops API.
func (s *TicketService) ListTickets(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	tickets, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// ticketForChannel returns nil without error when the channel has no
// ticket record, e.g. records lost with an in-memory store.
func (s *TicketService) ticketForChannel(ctx context.Context, channelID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByChannel(ctx, channelID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			s.logger.Debug("no ticket record for channel", zap.String("channel_id", channelID))
			return nil, nil
		}
		return nil, fmt.Errorf("lookup ticket: %w", err)
	}
	return ticket, nil
}

func (s *TicketService) takePending(channelID string) domain.TicketStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	prior, ok := s.pending[channelID]
	delete(s.pending, channelID)
	if !ok {
		return domain.TicketStatusOpen
	}
	return prior
}

func (s *TicketService) releaseSlot(ctx context.Context, guildID, ownerID, value string) {
	if err := s.index.Release(ctx, guildID, ownerID, value); err != nil {
		s.logger.Warn("release owner index", zap.String("user_id", ownerID), zap.Error(err))
	}
}

func (s *TicketService) recordHistory(ctx context.Context, ticketID, actorID string, change domain.TicketChangeType, oldValue, newValue map[string]any) {
	if s.history == nil || ticketID == "" {
		return
	}
	entry := &domain.TicketHistory{
		TicketID:   ticketID,
		ChangeType: change,
		OldValue:   oldValue,
		NewValue:   newValue,
	}
	if actorID != "" {
		entry.ActorID = &actorID
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Warn("record ticket history", zap.String("ticket_id", ticketID), zap.String("change", string(change)), zap.Error(err))
	}
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.clock.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func generateTicketKey() string {
	return "TCK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func eventActor(a Actor) events.Actor {
	return events.Actor{UserID: a.UserID, Username: a.Username}
}

// IsExistingTicket unwraps an *ExistingTicketError.
func IsExistingTicket(err error) (*ExistingTicketError, bool) {
	var existing *ExistingTicketError
	if errors.As(err, &existing) {
		return existing, true
	}
	return nil, false
}
