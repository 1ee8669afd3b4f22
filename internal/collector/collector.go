// Package collector waits for follow-up messages in a channel. The gateway
// message handler feeds every MessageCreate into a Hub; callers block in
// Collect until a message from the expected author arrives or the window
// closes.
package collector

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/spec-kit/ticket-bot/internal/clock"
)

// Hub fans incoming messages out to registered one-shot waiters.
type Hub struct {
	clock clock.Clock

	mu      sync.Mutex
	waiters map[string][]*waiter
}

type waiter struct {
	authorID string
	ch       chan *discordgo.Message
}

// NewHub builds an empty hub.
func NewHub(clk clock.Clock) *Hub {
	return &Hub{
		clock:   clk,
		waiters: make(map[string][]*waiter),
	}
}

// Collect waits for the next message authorID sends in channelID. It yields
// at most one message and returns false when the timeout elapses or ctx is
// done first. A waiter is not reusable; call Collect again to wait again.
func (h *Hub) Collect(ctx context.Context, channelID, authorID string, timeout time.Duration) (*discordgo.Message, bool) {
	w := &waiter{authorID: authorID, ch: make(chan *discordgo.Message, 1)}

	h.mu.Lock()
	h.waiters[channelID] = append(h.waiters[channelID], w)
	h.mu.Unlock()

	select {
	case msg := <-w.ch:
		return msg, true
	case <-h.clock.After(timeout):
	case <-ctx.Done():
	}

	h.remove(channelID, w)
	// Dispatch sends under the lock, so after remove the channel holds
	// whatever was delivered before the window closed.
	select {
	case msg := <-w.ch:
		return msg, true
	default:
		return nil, false
	}
}

// Dispatch hands msg to every waiter registered for its channel and author
// and returns how many waiters it satisfied.
func (h *Hub) Dispatch(msg *discordgo.Message) int {
	if msg == nil || msg.Author == nil {
		return 0
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	waiters := h.waiters[msg.ChannelID]
	if len(waiters) == 0 {
		return 0
	}

	matched := 0
	kept := waiters[:0]
	for _, w := range waiters {
		if w.authorID == msg.Author.ID {
			w.ch <- msg
			matched++
			continue
		}
		kept = append(kept, w)
	}
	h.store(msg.ChannelID, kept)
	return matched
}

// Waiting returns the number of open waiters on a channel.
func (h *Hub) Waiting(channelID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.waiters[channelID])
}

func (h *Hub) remove(channelID string, target *waiter) {
	h.mu.Lock()
	defer h.mu.Unlock()

	waiters := h.waiters[channelID]
	kept := waiters[:0]
	for _, w := range waiters {
		if w != target {
			kept = append(kept, w)
		}
	}
	h.store(channelID, kept)
}

func (h *Hub) store(channelID string, waiters []*waiter) {
	if len(waiters) == 0 {
		delete(h.waiters, channelID)
		return
	}
	h.waiters[channelID] = waiters
}
