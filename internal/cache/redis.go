package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when the key is absent.
var ErrMiss = errors.New("cache miss")

type Cache struct {
	client *redis.Client
	prefix string
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client, prefix: "toolate:"}
}

func (c *Cache) key(k string) string {
	return c.prefix + k
}

func (c *Cache) Get(ctx context.Context, key string, dest any) error {
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return fmt.Errorf("cache get %s: %w", key, err)
	}
	return json.Unmarshal(val, dest)
}

func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}
	return c.client.Set(ctx, c.key(key), data, ttl).Err()
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	return c.client.Del(ctx, full...).Err()
}

// InviteLocker serializes concurrent invitations of the same address into
// the same organization. It only narrows the race window; the partial unique
// index on invitations is what guarantees a single pending row.
type InviteLocker struct {
	cache *Cache
	ttl   time.Duration
}

func NewInviteLocker(c *Cache, ttl time.Duration) *InviteLocker {
	return &InviteLocker{cache: c, ttl: ttl}
}

func InviteLockKey(orgID, email string) string {
	return "invite-lock:" + orgID + ":" + email
}

// Acquire returns false when another request holds the lock. The returned
// release func is safe to call when acquired is false.
func (l *InviteLocker) Acquire(ctx context.Context, orgID, email string) (release func(), acquired bool, err error) {
	key := l.cache.key(InviteLockKey(orgID, email))
	ok, err := l.cache.client.SetNX(ctx, key, time.Now().Unix(), l.ttl).Result()
	if err != nil {
		return func() {}, false, fmt.Errorf("acquire invite lock: %w", err)
	}
	if !ok {
		return func() {}, false, nil
	}
	return func() {
		// A detached context so a cancelled request still releases.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		l.cache.client.Del(ctx, key)
	}, true, nil
}
