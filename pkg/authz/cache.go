package authz

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedAuthorizer fronts an Authorizer with a short-lived Redis cache so a
// burst of media events from one user costs a single database lookup. Cache
// reads fail open to the underlying authorizer.
type CachedAuthorizer struct {
	next      Authorizer
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewCachedAuthorizer wraps next with a Redis cache at addr.
func NewCachedAuthorizer(next Authorizer, addr, password string, ttl time.Duration) (*CachedAuthorizer, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("authz cache redis addr required")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedAuthorizer{
		next:      next,
		client:    redis.NewClient(&redis.Options{Addr: addr, Password: password}),
		keyPrefix: "mediavault:authz:",
		ttl:       ttl,
	}, nil
}

// IsAuthorized consults the cache first. Only positive and negative answers
// from the underlying authorizer are cached; its errors are not.
func (c *CachedAuthorizer) IsAuthorized(ctx context.Context, userID string, now time.Time) (bool, error) {
	key := c.keyPrefix + userID
	if cached, err := c.client.Get(ctx, key).Result(); err == nil {
		return cached == "1", nil
	}
	ok, err := c.next.IsAuthorized(ctx, userID, now)
	if err != nil {
		return false, err
	}
	val := "0"
	if ok {
		val = "1"
	}
	_ = c.client.Set(ctx, key, val, c.ttl).Err()
	return ok, nil
}

// Invalidate drops a user's cached answer. Admin grant/revoke paths call it
// so permission changes apply without waiting out the TTL.
func (c *CachedAuthorizer) Invalidate(ctx context.Context, userID string) {
	_ = c.client.Del(ctx, c.keyPrefix+userID).Err()
}
