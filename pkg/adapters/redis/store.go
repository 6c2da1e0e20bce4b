package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Store implements ports.RunStore using Redis.
// Records are JSON strings; a sorted set indexes them by finish time.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration for run records.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for run records.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "evolve:run:",
		ttl:    0, // No expiration by default
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

func (s *Store) key(runID string) string {
	return s.prefix + runID
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// Save persists the record to Redis.
func (s *Store) Save(ctx context.Context, record domain.RunRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal run record: %w", err)
	}

	pipe := s.client.Pipeline()

	// 1. Save JSON with TTL (0 means no expiration)
	pipe.Set(ctx, s.key(record.ID), data, s.ttl)

	// 2. Index by finish time for newest-first listing
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{
		Score:  float64(record.FinishedAt.UnixMilli()),
		Member: record.ID,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Load retrieves the record from Redis.
func (s *Store) Load(ctx context.Context, runID string) (domain.RunRecord, error) {
	val, err := s.client.Get(ctx, s.key(runID)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return domain.RunRecord{}, domain.ErrRunNotFound
		}
		return domain.RunRecord{}, fmt.Errorf("failed to get from redis: %w", err)
	}

	var record domain.RunRecord
	if err := json.Unmarshal([]byte(val), &record); err != nil {
		return domain.RunRecord{}, fmt.Errorf("failed to unmarshal run record: %w", err)
	}
	return record, nil
}

// Delete removes the record.
func (s *Store) Delete(ctx context.Context, runID string) error {
	pipe := s.client.Pipeline()

	pipe.Del(ctx, s.key(runID))
	pipe.ZRem(ctx, s.indexKey(), runID)

	_, err := pipe.Exec(ctx)
	return err
}

// List returns the most recent run IDs, newest first.
// Index entries older than the TTL are pruned lazily.
func (s *Store) List(ctx context.Context, limit int) ([]string, error) {
	if s.ttl > 0 {
		cutoff := time.Now().Add(-s.ttl).UnixMilli()
		err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("(%d", cutoff)).Err()
		if err != nil {
			return nil, fmt.Errorf("failed to prune expired runs: %w", err)
		}
	}

	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return ids, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
