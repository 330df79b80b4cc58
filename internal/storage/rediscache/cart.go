// Package rediscache caches cart snapshots in Redis. A miss is not an
// error condition for callers holding the authoritative cart elsewhere;
// they get ErrCacheMiss and rebuild.
package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vendimo/marketplace/internal/domain/cart"
)

// ErrCacheMiss is returned when no cart is cached for the buyer.
var ErrCacheMiss = errors.New("cache miss")

var _ cart.Store = (*CartCache)(nil)

// CartCache implements cart.Store on Redis. TTLs are jittered so a burst
// of carts written together does not expire together.
type CartCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

// NewCartCache returns a CartCache with a 15 minute base TTL.
func NewCartCache(client *redis.Client) *CartCache {
	return &CartCache{
		client:  client,
		baseTTL: 15 * time.Minute,
	}
}

// Get returns the buyer's cached cart, or ErrCacheMiss.
func (c *CartCache) Get(ctx context.Context, buyerID uuid.UUID) (*cart.Cart, error) {
	data, err := c.client.Get(ctx, cacheKey(buyerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var snapshot cart.Cart
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return &snapshot, nil
}

// Set stores the cart snapshot under the buyer's key.
func (c *CartCache) Set(ctx context.Context, snapshot *cart.Cart) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	jitter := time.Duration(rand.Intn(5)) * time.Minute
	if err := c.client.Set(ctx, cacheKey(snapshot.BuyerID), data, c.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete evicts the buyer's cart, typically after a successful checkout.
func (c *CartCache) Delete(ctx context.Context, buyerID uuid.UUID) error {
	if err := c.client.Del(ctx, cacheKey(buyerID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cacheKey(buyerID uuid.UUID) string {
	return fmt.Sprintf("cart:%s", buyerID)
}
