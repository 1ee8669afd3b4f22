package repository

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisOwnerIndex(t *testing.T) (OwnerIndex, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisOwnerIndex(client, ""), mr
}

func ownerIndexLifecycle(t *testing.T, idx OwnerIndex) {
	t.Helper()
	ctx := context.Background()

	if _, reserved, err := idx.Reserve(ctx, "g", "alice"); err != nil || !reserved {
		t.Fatalf("first reserve = (%v, %v), want reserved", reserved, err)
	}
	current, reserved, _ := idx.Reserve(ctx, "g", "alice")
	if reserved || current != PendingChannel {
		t.Fatalf("second reserve = (%q, %v), want pending", current, reserved)
	}

	if err := idx.Bind(ctx, "g", "alice", "chan-1"); err != nil {
		t.Fatal(err)
	}
	if current, _, _ := idx.Reserve(ctx, "g", "alice"); current != "chan-1" {
		t.Fatalf("reserve after bind returned %q", current)
	}

	// A stale release must not clear a newer binding.
	if err := idx.Release(ctx, "g", "alice", PendingChannel); err != nil {
		t.Fatal(err)
	}
	if got, ok, _ := idx.Lookup(ctx, "g", "alice"); !ok || got != "chan-1" {
		t.Fatalf("lookup = (%q, %v)", got, ok)
	}

	if err := idx.Release(ctx, "g", "alice", "chan-1"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := idx.Lookup(ctx, "g", "alice"); ok {
		t.Fatal("slot should be empty after release")
	}
	if _, reserved, _ := idx.Reserve(ctx, "other-guild", "alice"); !reserved {
		t.Fatal("slots are scoped per guild")
	}
}

func ownerIndexConcurrentReserve(t *testing.T, idx OwnerIndex) {
	t.Helper()
	ctx := context.Background()

	const workers = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for n := 0; n < workers; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, reserved, _ := idx.Reserve(ctx, "g", "alice"); reserved {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("%d reservations succeeded, want exactly 1", winners)
	}
}

func TestMemoryOwnerIndexLifecycle(t *testing.T) {
	ownerIndexLifecycle(t, NewMemoryOwnerIndex())
}

func TestMemoryOwnerIndexConcurrentReserve(t *testing.T) {
	ownerIndexConcurrentReserve(t, NewMemoryOwnerIndex())
}

func TestRedisOwnerIndexLifecycle(t *testing.T) {
	idx, _ := newRedisOwnerIndex(t)
	ownerIndexLifecycle(t, idx)
}

func TestRedisOwnerIndexConcurrentReserve(t *testing.T) {
	idx, _ := newRedisOwnerIndex(t)
	ownerIndexConcurrentReserve(t, idx)
}

func TestRedisOwnerIndexReservationExpires(t *testing.T) {
	ctx := context.Background()
	idx, mr := newRedisOwnerIndex(t)

	if _, reserved, _ := idx.Reserve(ctx, "g", "alice"); !reserved {
		t.Fatal("first reserve should succeed")
	}
	if ttl := mr.TTL("tickets:owner:g:alice"); ttl != reservationTTL {
		t.Fatalf("reservation ttl = %s, want %s", ttl, reservationTTL)
	}

	// A crashed creation frees the slot once the reservation lapses.
	mr.FastForward(reservationTTL)
	if _, reserved, _ := idx.Reserve(ctx, "g", "alice"); !reserved {
		t.Fatal("reserve after expiry should succeed")
	}

	if err := idx.Bind(ctx, "g", "alice", "chan-1"); err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL("tickets:owner:g:alice"); ttl != 0 {
		t.Fatalf("bound slot should not expire, ttl = %s", ttl)
	}
}

func TestRedisOwnerIndexSurfacesErrors(t *testing.T) {
	ctx := context.Background()
	idx, mr := newRedisOwnerIndex(t)
	mr.Close()

	if _, _, err := idx.Reserve(ctx, "g", "alice"); err == nil {
		t.Fatal("reserve should fail without redis")
	}
	if err := idx.Release(ctx, "g", "alice", "chan-1"); err == nil {
		t.Fatal("release should fail without redis")
	}
}

func TestRedisOwnerIndexKey(t *testing.T) {
	idx := NewRedisOwnerIndex(nil, "").(*redisOwnerIndex)
	if got := idx.key("g1", "u1"); got != "tickets:owner:g1:u1" {
		t.Fatalf("key = %q", got)
	}
}
