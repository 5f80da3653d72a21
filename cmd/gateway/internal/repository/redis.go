package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shubham-shewale/price-broadcast/pkg/models"
)

const keyPrefix = "stock:"

// Compile-time checks
var (
	_ SnapshotStore  = (*RedisStore)(nil)
	_ SymbolRegistry = (*RedisRegistry)(nil)
)

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore stores snapshots as JSON under stock:<SYMBOL>. A zero ttl
// keeps keys forever.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// SaveSnapshots writes the whole batch in one pipeline
func (r *RedisStore) SaveSnapshots(ctx context.Context, snapshots []models.PriceSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	for _, s := range snapshots {
		payload, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("marshal snapshot %s: %w", s.Symbol, err)
		}
		pipe.Set(ctx, keyPrefix+s.Symbol, payload, r.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save snapshots: %w", err)
	}
	return nil
}

// GetSnapshots fetches the latest price for a list of symbols (MGET)
func (r *RedisStore) GetSnapshots(ctx context.Context, symbols []string) ([]models.PriceSnapshot, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	keys := make([]string, len(symbols))
	for i, sym := range symbols {
		keys[i] = keyPrefix + sym
	}

	results, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("get snapshots: %w", err)
	}

	snapshots := make([]models.PriceSnapshot, 0, len(results))
	for i, val := range results {
		payload, ok := val.(string)
		if !ok || payload == "" {
			continue
		}
		var s models.PriceSnapshot
		if err := json.Unmarshal([]byte(payload), &s); err != nil {
			return nil, fmt.Errorf("decode snapshot %s: %w", symbols[i], err)
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

// RedisRegistry reads the tracked symbol set from a Redis SET, so another
// service can add or drop symbols between ticks.
type RedisRegistry struct {
	client *redis.Client
	key    string
}

func NewRedisRegistry(client *redis.Client, key string) *RedisRegistry {
	return &RedisRegistry{client: client, key: key}
}

func (r *RedisRegistry) Symbols(ctx context.Context) ([]string, error) {
	members, err := r.client.SMembers(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("read symbol set %s: %w", r.key, err)
	}
	sort.Strings(members)
	return members, nil
}
