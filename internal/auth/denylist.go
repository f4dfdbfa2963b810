// AngelaMos | 2026
// denylist.go

package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Denylist records revoked access-token IDs until their natural expiry.
// Entries only need to outlive the token, so TTL equals remaining life.
type Denylist interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

const denylistPrefix = "blacklist:"

type RedisDenylist struct {
	client *redis.Client
}

func NewRedisDenylist(client *redis.Client) *RedisDenylist {
	return &RedisDenylist{client: client}
}

func (d *RedisDenylist) Revoke(
	ctx context.Context,
	tokenID string,
	ttl time.Duration,
) error {
	if ttl <= 0 {
		return nil
	}

	err := d.client.Set(ctx, denylistPrefix+tokenID, "1", ttl).Err()
	if err != nil {
		return fmt.Errorf("denylist revoke: %w", err)
	}

	return nil
}

func (d *RedisDenylist) IsRevoked(
	ctx context.Context,
	tokenID string,
) (bool, error) {
	n, err := d.client.Exists(ctx, denylistPrefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("denylist lookup: %w", err)
	}

	return n > 0, nil
}

// MemoryDenylist is a process-local implementation for tests and
// single-node development runs.
type MemoryDenylist struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

func NewMemoryDenylist() *MemoryDenylist {
	return &MemoryDenylist{entries: make(map[string]time.Time)}
}

func (d *MemoryDenylist) Revoke(
	_ context.Context,
	tokenID string,
	ttl time.Duration,
) error {
	if ttl <= 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[tokenID] = time.Now().Add(ttl)

	return nil
}

func (d *MemoryDenylist) IsRevoked(
	_ context.Context,
	tokenID string,
) (bool, error) {
	d.mu.RLock()
	expiry, ok := d.entries[tokenID]
	d.mu.RUnlock()

	if !ok {
		return false, nil
	}

	if time.Now().After(expiry) {
		d.mu.Lock()
		delete(d.entries, tokenID)
		d.mu.Unlock()
		return false, nil
	}

	return true, nil
}
