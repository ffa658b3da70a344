// Package ledgercache keeps recently used task ledgers in Redis in front of
// the durable ledger store.
package ledgercache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"nercollab/internal/annotation"
)

// RedisStore implements annotation.LedgerStore as a read-through cache over
// a backing store.
type RedisStore struct {
	client  *redis.Client
	backing annotation.LedgerStore
	prefix  string
	ttl     time.Duration
}

// NewRedisStore connects to Redis and wraps backing.
func NewRedisStore(redisURL string, backing annotation.LedgerStore, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, backing, ttl), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client
func NewRedisStoreWithClient(client *redis.Client, backing annotation.LedgerStore, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisStore{
		client:  client,
		backing: backing,
		prefix:  "ledger:",
		ttl:     ttl,
	}
}

func (s *RedisStore) key(taskID string) string {
	return s.prefix + taskID
}

// Client exposes the underlying connection so the event bus can share it.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// GetLedger serves from Redis when possible and fills the cache on a miss.
// Cache failures degrade to the backing store.
func (s *RedisStore) GetLedger(ctx context.Context, taskID string) (*annotation.Ledger, error) {
	raw, err := s.client.Get(ctx, s.key(taskID)).Bytes()
	switch {
	case err == nil:
		ledger := annotation.NewLedger()
		if decodeErr := json.Unmarshal(raw, ledger); decodeErr == nil {
			return ledger, nil
		}
		log.Printf("ledgercache: discarding corrupt entry for task %s", taskID)
		_ = s.client.Del(ctx, s.key(taskID)).Err()
	case !errors.Is(err, redis.Nil):
		log.Printf("ledgercache: get task %s: %v", taskID, err)
	}

	ledger, err := s.backing.GetLedger(ctx, taskID)
	if err != nil {
		return nil, err
	}
	s.put(ctx, taskID, ledger)
	return ledger, nil
}

// SaveLedger writes through to the backing store, then refreshes the cache.
func (s *RedisStore) SaveLedger(ctx context.Context, taskID string, ledger *annotation.Ledger) error {
	if err := s.backing.SaveLedger(ctx, taskID, ledger); err != nil {
		_ = s.Invalidate(ctx, taskID)
		return err
	}
	s.put(ctx, taskID, ledger)
	return nil
}

// SubmitSpans applies the submission atomically in the backing store and
// drops the cached copy. Writing the result back could race with another
// replica's newer write, so the next read refills the cache instead.
func (s *RedisStore) SubmitSpans(ctx context.Context, taskID, annotator string, spans []annotation.Span) (*annotation.Ledger, error) {
	ledger, err := s.backing.SubmitSpans(ctx, taskID, annotator, spans)
	if invErr := s.Invalidate(ctx, taskID); invErr != nil {
		log.Printf("ledgercache: %v", invErr)
	}
	if err != nil {
		return nil, err
	}
	return ledger, nil
}

// Invalidate drops a cached ledger.
func (s *RedisStore) Invalidate(ctx context.Context, taskID string) error {
	if err := s.client.Del(ctx, s.key(taskID)).Err(); err != nil {
		return fmt.Errorf("invalidate ledger: %w", err)
	}
	return nil
}

func (s *RedisStore) put(ctx context.Context, taskID string, ledger *annotation.Ledger) {
	payload, err := json.Marshal(ledger)
	if err != nil {
		log.Printf("ledgercache: encode task %s: %v", taskID, err)
		return
	}
	if err := s.client.Set(ctx, s.key(taskID), payload, s.ttl).Err(); err != nil {
		log.Printf("ledgercache: set task %s: %v", taskID, err)
	}
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
