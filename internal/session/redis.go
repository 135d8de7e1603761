package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "bubblescope:selection:"

// Redis stores selections as JSON strings with a Redis-side TTL, so several
// bot replicas can share them.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to url (redis://[:password@]host:port/db) and pings it.
func NewRedis(ctx context.Context, url string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("session: parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("session: connect to redis: %w", err)
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl}, nil
}

// Put stores sel for userID under the store TTL, replacing any earlier
// selection.
func (r *Redis) Put(ctx context.Context, userID int64, sel Selection) error {
	if sel.CreatedAt.IsZero() {
		sel.CreatedAt = time.Now()
	}
	b, err := json.Marshal(sel)
	if err != nil {
		return fmt.Errorf("session: encode selection: %w", err)
	}
	if err := r.client.Set(ctx, key(userID), b, r.ttl).Err(); err != nil {
		return fmt.Errorf("session: store selection: %w", err)
	}
	return nil
}

// Take atomically reads and deletes the selection for userID. A missing or
// expired key yields ErrExpired.
func (r *Redis) Take(ctx context.Context, userID int64) (*Selection, error) {
	b, err := r.client.GetDel(ctx, key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrExpired
	}
	if err != nil {
		return nil, fmt.Errorf("session: load selection: %w", err)
	}

	var sel Selection
	if err := json.Unmarshal(b, &sel); err != nil {
		return nil, fmt.Errorf("session: decode selection: %w", err)
	}
	return &sel, nil
}

// Close releases the Redis connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

func key(userID int64) string {
	return keyPrefix + strconv.FormatInt(userID, 10)
}
