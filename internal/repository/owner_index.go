package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// PendingChannel is the index value while a ticket channel is being created.
const PendingChannel = "pending"

// OwnerIndex maps (guild, owner) to the owner's open ticket channel. Reserve
// is an atomic check-and-create so two concurrent selections by one user
// cannot both create a channel.
type OwnerIndex interface {
	// Reserve claims the slot for a new ticket. When the slot is already
	// held it returns the current value (a channel id or PendingChannel)
	// and reserved=false.
	Reserve(ctx context.Context, guildID, ownerID string) (current string, reserved bool, err error)
	// Bind points a reserved slot at the created channel.
	Bind(ctx context.Context, guildID, ownerID, channelID string) error
	// Release clears the slot only if it still holds value.
	Release(ctx context.Context, guildID, ownerID, value string) error
	// Lookup returns the current value of the slot.
	Lookup(ctx context.Context, guildID, ownerID string) (string, bool, error)
}

// reservationTTL bounds how long a crashed creation can hold a slot.
const reservationTTL = 2 * time.Minute

type redisOwnerIndex struct {
	client *redis.Client
	prefix string
}

// NewRedisOwnerIndex stores the index in Redis under prefix.
func NewRedisOwnerIndex(client *redis.Client, prefix string) OwnerIndex {
	if prefix == "" {
		prefix = "tickets:owner"
	}
	return &redisOwnerIndex{client: client, prefix: prefix}
}

func (i *redisOwnerIndex) key(guildID, ownerID string) string {
	return fmt.Sprintf("%s:%s:%s", i.prefix, guildID, ownerID)
}

func (i *redisOwnerIndex) Reserve(ctx context.Context, guildID, ownerID string) (string, bool, error) {
	key := i.key(guildID, ownerID)
	// One retry covers a reservation that expires between SETNX and GET.
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := i.client.SetNX(ctx, key, PendingChannel, reservationTTL).Result()
		if err != nil {
			return "", false, fmt.Errorf("reserve owner slot: %w", err)
		}
		if ok {
			return "", true, nil
		}
		current, err := i.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("read owner slot: %w", err)
		}
		return current, false, nil
	}
	return PendingChannel, false, nil
}

func (i *redisOwnerIndex) Bind(ctx context.Context, guildID, ownerID, channelID string) error {
	if err := i.client.Set(ctx, i.key(guildID, ownerID), channelID, 0).Err(); err != nil {
		return fmt.Errorf("bind owner slot: %w", err)
	}
	return nil
}

var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0`)

func (i *redisOwnerIndex) Release(ctx context.Context, guildID, ownerID, value string) error {
	if err := compareAndDelete.Run(ctx, i.client, []string{i.key(guildID, ownerID)}, value).Err(); err != nil {
		return fmt.Errorf("release owner slot: %w", err)
	}
	return nil
}

func (i *redisOwnerIndex) Lookup(ctx context.Context, guildID, ownerID string) (string, bool, error) {
	current, err := i.client.Get(ctx, i.key(guildID, ownerID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup owner slot: %w", err)
	}
	return current, true, nil
}

// MemoryOwnerIndex is the single-process OwnerIndex; a mutex makes
// Reserve atomic.
type MemoryOwnerIndex struct {
	mu    sync.Mutex
	slots map[string]string
}

// NewMemoryOwnerIndex builds an empty index.
func NewMemoryOwnerIndex() *MemoryOwnerIndex {
	return &MemoryOwnerIndex{slots: make(map[string]string)}
}

func memoryKey(guildID, ownerID string) string {
	return guildID + "/" + ownerID
}

func (i *MemoryOwnerIndex) Reserve(_ context.Context, guildID, ownerID string) (string, bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	key := memoryKey(guildID, ownerID)
	if current, ok := i.slots[key]; ok {
		return current, false, nil
	}
	i.slots[key] = PendingChannel
	return "", true, nil
}

func (i *MemoryOwnerIndex) Bind(_ context.Context, guildID, ownerID, channelID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.slots[memoryKey(guildID, ownerID)] = channelID
	return nil
}

func (i *MemoryOwnerIndex) Release(_ context.Context, guildID, ownerID, value string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	key := memoryKey(guildID, ownerID)
	if i.slots[key] == value {
		delete(i.slots, key)
	}
	return nil
}

func (i *MemoryOwnerIndex) Lookup(_ context.Context, guildID, ownerID string) (string, bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	current, ok := i.slots[memoryKey(guildID, ownerID)]
	return current, ok, nil
}
