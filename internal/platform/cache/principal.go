package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RoleSnapshot is the cached view of one active role grant.
type RoleSnapshot struct {
	Name  string `json:"name"`
	Level int    `json:"level"`
	OrgID *int64 `json:"org_id,omitempty"`
}

// PrincipalSnapshot is the cached, already-resolved permission graph of a
// principal.
type PrincipalSnapshot struct {
	ID           int64          `json:"id"`
	OrgID        *int64         `json:"org_id,omitempty"`
	Email        string         `json:"email"`
	Permissions  []string       `json:"permissions"`
	Roles        []RoleSnapshot `json:"roles"`
	HighestLevel int            `json:"highest_level"`
}

// PrincipalCache stores resolved principal graphs in Redis.
type PrincipalCache struct {
	client *redis.Client
}

// NewPrincipalCache constructs a PrincipalCache.
func NewPrincipalCache(client *redis.Client) *PrincipalCache {
	return &PrincipalCache{client: client}
}

func principalKey(id int64) string {
	return fmt.Sprintf("brokerdesk:principal:%d", id)
}

// Get returns the cached snapshot if present and decodable.
func (c *PrincipalCache) Get(ctx context.Context, id int64) (PrincipalSnapshot, bool) {
	if c == nil || c.client == nil {
		return PrincipalSnapshot{}, false
	}
	raw, err := c.client.Get(ctx, principalKey(id)).Bytes()
	if err != nil {
		return PrincipalSnapshot{}, false
	}
	var snap PrincipalSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return PrincipalSnapshot{}, false
	}
	return snap, true
}

// Put stores the snapshot with the given TTL.
func (c *PrincipalCache) Put(ctx context.Context, id int64, snap PrincipalSnapshot, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("platform/cache: encode principal: %w", err)
	}
	return c.client.Set(ctx, principalKey(id), raw, ttl).Err()
}

// Drop removes the snapshot, forcing the next resolve to hit storage.
func (c *PrincipalCache) Drop(ctx context.Context, id int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, principalKey(id)).Err()
}
