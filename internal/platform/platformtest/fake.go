// Package platformtest provides an in-memory platform.Platform that records
// every call for assertions.
package platformtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/spec-kit/ticket-bot/internal/platform"
)

// ErrUnknownChannel is returned for channels the fake does not hold.
var ErrUnknownChannel = errors.New("unknown channel")

// Response is a recorded Respond or FollowUp call.
type Response struct {
	InteractionID string
	FollowUp      bool
	Reply         platform.Reply
}

// SentMessage is a recorded SendMessage call.
type SentMessage struct {
	ChannelID string
	Message   *discordgo.MessageSend
	At        time.Time
}

// Deletion is a recorded DeleteChannel call.
type Deletion struct {
	ChannelID string
	At        time.Time
}

// Registration is a recorded RegisterCommands call.
type Registration struct {
	AppID    string
	GuildID  string
	Commands []*discordgo.ApplicationCommand
}

// Fake is a thread-safe recording platform. Set the *Err fields to make the
// corresponding call fail.
type Fake struct {
	Now func() time.Time

	RegisterErr error
	CreateErr   error
	DeleteErr   error
	SendErr     error

	mu            sync.Mutex
	nextID        int
	channels      map[string]*discordgo.Channel
	order         []string
	Registrations []Registration
	Responses     []Response
	Sent          []SentMessage
	Created       []discordgo.GuildChannelCreateData
	Deleted       []Deletion
}

// New builds an empty fake.
func New() *Fake {
	return &Fake{
		Now:      time.Now,
		channels: make(map[string]*discordgo.Channel),
	}
}

// AddChannel makes a channel visible to the bot.
func (f *Fake) AddChannel(ch *discordgo.Channel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.channels[ch.ID]; !ok {
		f.order = append(f.order, ch.ID)
	}
	f.channels[ch.ID] = ch
}

// RemoveChannel drops a channel as if it was deleted out of band.
func (f *Fake) RemoveChannel(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.channels, id)
}

func (f *Fake) RegisterCommands(_ context.Context, appID, guildID string, commands []*discordgo.ApplicationCommand) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RegisterErr != nil {
		return f.RegisterErr
	}
	f.Registrations = append(f.Registrations, Registration{AppID: appID, GuildID: guildID, Commands: commands})
	return nil
}

func (f *Fake) Respond(_ context.Context, interaction *discordgo.Interaction, reply platform.Reply) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Responses = append(f.Responses, Response{InteractionID: interaction.ID, Reply: reply})
	return nil
}

func (f *Fake) FollowUp(_ context.Context, interaction *discordgo.Interaction, reply platform.Reply) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Responses = append(f.Responses, Response{InteractionID: interaction.ID, FollowUp: true, Reply: reply})
	return nil
}

func (f *Fake) SendMessage(_ context.Context, channelID string, msg *discordgo.MessageSend) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return nil, f.SendErr
	}
	if _, ok := f.channels[channelID]; !ok {
		return nil, fmt.Errorf("send to %s: %w", channelID, ErrUnknownChannel)
	}
	f.Sent = append(f.Sent, SentMessage{ChannelID: channelID, Message: msg, At: f.Now()})
	f.nextID++
	return &discordgo.Message{ID: fmt.Sprintf("msg-%d", f.nextID), ChannelID: channelID, Content: msg.Content}, nil
}

func (f *Fake) CreateChannel(_ context.Context, guildID string, data discordgo.GuildChannelCreateData) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	f.nextID++
	ch := &discordgo.Channel{
		ID:                   fmt.Sprintf("chan-%d", f.nextID),
		GuildID:              guildID,
		Name:                 data.Name,
		Topic:                data.Topic,
		Type:                 data.Type,
		PermissionOverwrites: data.PermissionOverwrites,
	}
	f.Created = append(f.Created, data)
	f.channels[ch.ID] = ch
	f.order = append(f.order, ch.ID)
	return ch, nil
}

func (f *Fake) DeleteChannel(_ context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Deleted = append(f.Deleted, Deletion{ChannelID: channelID, At: f.Now()})
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	if _, ok := f.channels[channelID]; !ok {
		return fmt.Errorf("delete %s: %w", channelID, ErrUnknownChannel)
	}
	delete(f.channels, channelID)
	return nil
}

func (f *Fake) ListChannels(_ context.Context, guildID string) ([]*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*discordgo.Channel
	for _, id := range f.order {
		if ch, ok := f.channels[id]; ok && (ch.GuildID == "" || ch.GuildID == guildID) {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (f *Fake) Channel(_ context.Context, channelID string) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[channelID]
	if !ok {
		return nil, fmt.Errorf("channel %s: %w", channelID, ErrUnknownChannel)
	}
	return ch, nil
}

// ResponsesSnapshot returns a copy of the recorded responses.
func (f *Fake) ResponsesSnapshot() []Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Response(nil), f.Responses...)
}

// SentTo returns the messages sent to one channel.
func (f *Fake) SentTo(channelID string) []SentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []SentMessage
	for _, s := range f.Sent {
		if s.ChannelID == channelID {
			out = append(out, s)
		}
	}
	return out
}

// Deletions returns a copy of the recorded deletions.
func (f *Fake) Deletions() []Deletion {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Deletion(nil), f.Deleted...)
}

// CreatedChannels returns a copy of the recorded channel creations.
func (f *Fake) CreatedChannels() []discordgo.GuildChannelCreateData {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]discordgo.GuildChannelCreateData(nil), f.Created...)
}

var _ platform.Platform = (*Fake)(nil)
