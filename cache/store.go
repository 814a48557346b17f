package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/icodeforyou/meterit-go/types/maybe"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Entry is a computed current price. A None price is a valid entry,
// it means the store had no price for the slot.
type Entry struct {
	Price      maybe.Maybe[decimal.Decimal]
	ComputedAt time.Time
}

// Store keeps a single entry. Load reports false when there is none.
type Store interface {
	Load(ctx context.Context) (Entry, bool, error)
	Save(ctx context.Context, e Entry, ttl time.Duration) error
	Delete(ctx context.Context) error
}

type MemoryStore struct {
	mu    sync.Mutex
	entry Entry
	ok    bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(_ context.Context) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entry, s.ok, nil
}

// Save ignores ttl, expiry is decided by the cache from ComputedAt.
func (s *MemoryStore) Save(_ context.Context, e Entry, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry, s.ok = e, true
	return nil
}

func (s *MemoryStore) Delete(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry, s.ok = Entry{}, false
	return nil
}

// RedisStore shares the entry between every process using the same redis
// and key prefix.
type RedisStore struct {
	client *redis.Client
	key    string
}

type redisEntry struct {
	Price      *decimal.Decimal `json:"price"`
	ComputedAt time.Time        `json:"computed_at"`
}

func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	return &RedisStore{client: client, key: keyPrefix + ":current_price"}
}

func (s *RedisStore) Load(ctx context.Context) (Entry, bool, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis get %s: %w", s.key, err)
	}

	var re redisEntry
	if err := json.Unmarshal(data, &re); err != nil {
		return Entry{}, false, fmt.Errorf("decoding cached price: %w", err)
	}
	return Entry{Price: maybe.FromPtr(re.Price), ComputedAt: re.ComputedAt}, true, nil
}

func (s *RedisStore) Save(ctx context.Context, e Entry, ttl time.Duration) error {
	data, err := json.Marshal(redisEntry{Price: e.Price.Ptr(), ComputedAt: e.ComputedAt})
	if err != nil {
		return fmt.Errorf("encoding cached price: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", s.key, err)
	}
	return nil
}
