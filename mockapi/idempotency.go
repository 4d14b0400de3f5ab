package mockapi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper remembers which task a create request's Idempotency-Key produced.
type Deduper interface {
	// Claim records taskID for key unless the key was seen before, in which
	// case it returns the task id recorded first and claimed is false.
	Claim(ctx context.Context, userID, key, taskID string) (existing string, claimed bool, err error)
	// Release forgets key so a failed create may be retried.
	Release(ctx context.Context, userID, key string) error
}

// RedisDeduper stores idempotency keys in Redis so several mock instances
// agree on replays.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper using the provided Redis client and TTL.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (r *RedisDeduper) key(userID, key string) string {
	return fmt.Sprintf("idem:%s:%s", userID, key)
}

func (r *RedisDeduper) Claim(ctx context.Context, userID, key, taskID string) (string, bool, error) {
	ok, err := r.client.SetNX(ctx, r.key(userID, key), taskID, r.ttl).Result()
	if err != nil || ok {
		return taskID, ok, err
	}
	existing, err := r.client.Get(ctx, r.key(userID, key)).Result()
	if err == redis.Nil {
		// Expired between the two calls.
		return r.Claim(ctx, userID, key, taskID)
	}
	if err != nil {
		return "", false, err
	}
	return existing, false, nil
}

func (r *RedisDeduper) Release(ctx context.Context, userID, key string) error {
	return r.client.Del(ctx, r.key(userID, key)).Err()
}

// MemoryDeduper is the in-process Deduper.
type MemoryDeduper struct {
	ttl time.Duration
	now func() time.Time

	mu   sync.Mutex
	keys map[string]memoryClaim
}

type memoryClaim struct {
	taskID    string
	expiresAt time.Time
}

// NewMemoryDeduper creates a deduper whose keys expire after ttl.
func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	return &MemoryDeduper{ttl: ttl, now: time.Now, keys: map[string]memoryClaim{}}
}

func (m *MemoryDeduper) Claim(_ context.Context, userID, key, taskID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := userID + ":" + key
	now := m.now()
	if c, ok := m.keys[k]; ok && now.Before(c.expiresAt) {
		return c.taskID, false, nil
	}
	m.keys[k] = memoryClaim{taskID: taskID, expiresAt: now.Add(m.ttl)}
	return taskID, true, nil
}

func (m *MemoryDeduper) Release(_ context.Context, userID, key string) error {
	m.mu.Lock()
	delete(m.keys, userID+":"+key)
	m.mu.Unlock()
	return nil
}
