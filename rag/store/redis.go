package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smallnest/educhat/rag"
)

// RedisPersister stores document indexes as JSON values in Redis.
type RedisPersister struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ Persister = (*RedisPersister)(nil)

// RedisOptions configuration for Redis connection
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // Key prefix, default "educhat:"
	TTL      time.Duration // Expiration for indexes, default 0 (no expiration)
}

// NewRedisPersister connects to Redis with opts.
func NewRedisPersister(opts RedisOptions) *RedisPersister {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewRedisPersisterWithClient(client, opts.Prefix, opts.TTL)
}

// NewRedisPersisterWithClient uses an existing client.
func NewRedisPersisterWithClient(client *redis.Client, prefix string, ttl time.Duration) *RedisPersister {
	if prefix == "" {
		prefix = "educhat:"
	}
	return &RedisPersister{client: client, prefix: prefix, ttl: ttl}
}

func (p *RedisPersister) indexKey(documentID string) string {
	return fmt.Sprintf("%sindex:%s", p.prefix, documentID)
}

// Save stores the index. A single SET replaces the value atomically.
func (p *RedisPersister) Save(ctx context.Context, idx *rag.DocumentIndex) error {
	data, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}

	key := p.indexKey(idx.DocumentID)
	if err := p.client.Set(ctx, key, data, p.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save index to redis: %w", err)
	}

	idx.PersistedPath = key
	return nil
}

// Load retrieves the index
func (p *RedisPersister) Load(ctx context.Context, documentID string) (*rag.DocumentIndex, error) {
	key := p.indexKey(documentID)
	data, err := p.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, rag.ErrIndexNotFound
		}
		return nil, fmt.Errorf("failed to load index from redis: %w", err)
	}

	var idx rag.DocumentIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("failed to unmarshal index: %w", err)
	}
	if err := idx.Validate(); err != nil {
		return nil, err
	}

	idx.PersistedPath = key
	return &idx, nil
}

// Delete removes the index
func (p *RedisPersister) Delete(ctx context.Context, documentID string) error {
	if err := p.client.Del(ctx, p.indexKey(documentID)).Err(); err != nil {
		return fmt.Errorf("failed to delete index from redis: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (p *RedisPersister) Close() error {
	return p.client.Close()
}
