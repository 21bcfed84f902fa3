package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrTokenRevoked = errors.New("token revoked")

// TokenStore tracks issued token ids until they expire or are revoked.
type TokenStore interface {
	Save(ctx context.Context, id string, expiresAt time.Time) error
	// Active returns ErrTokenRevoked for ids that are unknown, expired or revoked.
	Active(ctx context.Context, id string) error
	Revoke(ctx context.Context, id string) error
}

// MemoryStore keeps tokens in process memory; a restart logs everyone out.
type MemoryStore struct {
	mu     sync.Mutex
	tokens map[string]time.Time
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]time.Time), now: time.Now}
}

func (s *MemoryStore) Save(_ context.Context, id string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	s.tokens[id] = expiresAt
	return nil
}

func (s *MemoryStore) Active(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.tokens[id]
	if !ok {
		return ErrTokenRevoked
	}
	if !s.now().Before(exp) {
		delete(s.tokens, id)
		return ErrTokenRevoked
	}
	return nil
}

func (s *MemoryStore) Revoke(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.tokens, id)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

func (s *MemoryStore) sweepLocked() {
	now := s.now()
	for id, exp := range s.tokens {
		if !now.Before(exp) {
			delete(s.tokens, id)
		}
	}
}

// RedisStore keeps one key per token, expiring with it, so sessions survive
// restarts and are shared between instances.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "configurateur:token:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) Save(ctx context.Context, id string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := s.rdb.Set(ctx, s.prefix+id, "1", ttl).Err(); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

func (s *RedisStore) Active(ctx context.Context, id string) error {
	n, err := s.rdb.Exists(ctx, s.prefix+id).Result()
	if err != nil {
		return fmt.Errorf("check token: %w", err)
	}
	if n == 0 {
		return ErrTokenRevoked
	}
	return nil
}

func (s *RedisStore) Revoke(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, s.prefix+id).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}
