// Package lastseen keeps the latest accepted fix of every device in redis.
package lastseen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/02loveslollipop/localizador-sniffer/services/sniffer/internal/telemetry"
)

const keyPrefix = "sniffer:last:"

// DefaultTTL is how long an entry survives without a new fix.
const DefaultTTL = 24 * time.Hour

// ErrNotFound is returned when a device has no cached fix.
var ErrNotFound = errors.New("no fix cached for device")

// kv is the subset of *redis.Client the cache uses.
type kv interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Close() error
}

// Entry is the cached form of a fix.
type Entry struct {
	telemetry.Fix
	ReceivedAt time.Time `json:"received_at"`
}

// Cache reads and writes last-seen entries.
type Cache struct {
	client kv
	ttl    time.Duration
}

// Dial connects to redis and checks the server answers.
func Dial(ctx context.Context, addr string, db int, ttl time.Duration) (*Cache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return newCache(rdb, ttl), nil
}

func newCache(client kv, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{client: client, ttl: ttl}
}

func key(deviceID int) string {
	return keyPrefix + strconv.Itoa(deviceID)
}

// Record overwrites the device entry with fix.
func (c *Cache) Record(ctx context.Context, fix telemetry.Fix, receivedAt time.Time) error {
	raw, err := json.Marshal(Entry{Fix: fix, ReceivedAt: receivedAt.UTC()})
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key(fix.DeviceID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis SET %s: %w", key(fix.DeviceID), err)
	}
	return nil
}

// Get returns the cached entry of a device or ErrNotFound.
func (c *Cache) Get(ctx context.Context, deviceID int) (Entry, error) {
	raw, err := c.client.Get(ctx, key(deviceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("redis GET %s: %w", key(deviceID), err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, fmt.Errorf("decode cached fix: %w", err)
	}
	return e, nil
}

func (c *Cache) Close() error {
	return c.client.Close()
}
