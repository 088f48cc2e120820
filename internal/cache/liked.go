// Package cache keeps the current user's liked-question set across sessions.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// LikedStore persists the liked-set per user. It is a local hint, the
// server's like response stays authoritative.
type LikedStore interface {
	Load(ctx context.Context, userID int64) ([]string, error)
	Add(ctx context.Context, userID int64, questionID string) error
	Remove(ctx context.Context, userID int64, questionID string) error
	Forget(ctx context.Context, userID int64, questionIDs ...string) error
}

// RedisLikedStore 每个用户一个 SET：liked:<userID>，每次写入刷新 TTL
type RedisLikedStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisLikedStore(rdb *redis.Client, ttl time.Duration) *RedisLikedStore {
	return &RedisLikedStore{rdb: rdb, ttl: ttl}
}

func likedKey(userID int64) string { return fmt.Sprintf("liked:%d", userID) }

func (s *RedisLikedStore) Load(ctx context.Context, userID int64) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, likedKey(userID)).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("load liked set: %w", err)
	}
	return ids, nil
}

func (s *RedisLikedStore) Add(ctx context.Context, userID int64, questionID string) error {
	key := likedKey(userID)
	pipe := s.rdb.TxPipeline()
	pipe.SAdd(ctx, key, questionID)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add liked %s: %w", questionID, err)
	}
	return nil
}

func (s *RedisLikedStore) Remove(ctx context.Context, userID int64, questionID string) error {
	if err := s.rdb.SRem(ctx, likedKey(userID), questionID).Err(); err != nil {
		return fmt.Errorf("remove liked %s: %w", questionID, err)
	}
	return nil
}

// Forget drops ids that no longer exist (deleted questions).
func (s *RedisLikedStore) Forget(ctx context.Context, userID int64, questionIDs ...string) error {
	if len(questionIDs) == 0 {
		return nil
	}
	members := make([]any, len(questionIDs))
	for i, id := range questionIDs {
		members[i] = id
	}
	if err := s.rdb.SRem(ctx, likedKey(userID), members...).Err(); err != nil {
		return fmt.Errorf("forget liked: %w", err)
	}
	return nil
}

// MemoryLikedStore is the store used when no redis is configured; it lives
// only as long as the process.
type MemoryLikedStore struct {
	mu   sync.Mutex
	sets map[int64]map[string]struct{}
}

func NewMemoryLikedStore() *MemoryLikedStore {
	return &MemoryLikedStore{sets: make(map[int64]map[string]struct{})}
}

func (s *MemoryLikedStore) Load(_ context.Context, userID int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sets[userID]))
	for id := range s.sets[userID] {
		out = append(out, id)
	}
	return out, nil
}

func (s *MemoryLikedStore) Add(_ context.Context, userID int64, questionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[userID]
	if !ok {
		set = make(map[string]struct{})
		s.sets[userID] = set
	}
	set[questionID] = struct{}{}
	return nil
}

func (s *MemoryLikedStore) Remove(_ context.Context, userID int64, questionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sets[userID], questionID)
	return nil
}

func (s *MemoryLikedStore) Forget(ctx context.Context, userID int64, questionIDs ...string) error {
	for _, id := range questionIDs {
		_ = s.Remove(ctx, userID, id)
	}
	return nil
}
