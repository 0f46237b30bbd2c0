package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smallnest/educhat/store"
)

// SessionStore implements store.SessionStore using Redis. Session metadata
// is a JSON string; messages are a list of JSON entries appended with RPUSH.
type SessionStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ store.SessionStore = (*SessionStore)(nil)

// RedisOptions configuration for Redis connection
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // Key prefix, default "educhat:"
	TTL      time.Duration // Expiration for sessions, refreshed on every append. Default 0 (no expiration)
}

// NewSessionStore creates a new Redis session store
func NewSessionStore(opts RedisOptions) *SessionStore {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	prefix := opts.Prefix
	if prefix == "" {
		prefix = "educhat:"
	}

	return &SessionStore{
		client: client,
		prefix: prefix,
		ttl:    opts.TTL,
	}
}

func (s *SessionStore) sessionKey(id string) string {
	return fmt.Sprintf("%ssession:%s", s.prefix, id)
}

func (s *SessionStore) messagesKey(id string) string {
	return fmt.Sprintf("%ssession:%s:messages", s.prefix, id)
}

func (s *SessionStore) indexKey() string {
	return s.prefix + "sessions"
}

// CreateSession stores the session metadata and indexes its ID.
func (s *SessionStore) CreateSession(ctx context.Context, session *store.Session) error {
	meta := *session
	meta.Messages = nil
	data, err := json.Marshal(&meta)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	created, err := s.client.SetNX(ctx, s.sessionKey(session.ID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to save session to redis: %w", err)
	}
	if !created {
		return fmt.Errorf("session %s already exists", session.ID)
	}

	if err := s.client.SAdd(ctx, s.indexKey(), session.ID).Err(); err != nil {
		return fmt.Errorf("failed to index session: %w", err)
	}
	return nil
}

// GetSession loads metadata and the full message list.
func (s *SessionStore) GetSession(ctx context.Context, id string) (*store.Session, error) {
	data, err := s.client.Get(ctx, s.sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", store.ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("failed to load session from redis: %w", err)
	}

	var session store.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	raw, err := s.client.LRange(ctx, s.messagesKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load messages from redis: %w", err)
	}
	session.Messages = make([]store.Message, 0, len(raw))
	for _, r := range raw {
		var m store.Message
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message: %w", err)
		}
		session.Messages = append(session.Messages, m)
	}
	return &session, nil
}

// AppendMessages pushes messages in a MULTI/EXEC block.
func (s *SessionStore) AppendMessages(ctx context.Context, id string, messages ...store.Message) error {
	session, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}

	entries := make([]any, 0, len(messages))
	for _, m := range messages {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		entries = append(entries, data)
	}

	session.Messages = nil
	session.UpdatedAt = time.Now()
	meta, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(entries) > 0 {
			pipe.RPush(ctx, s.messagesKey(id), entries...)
		}
		pipe.Set(ctx, s.sessionKey(id), meta, s.ttl)
		if s.ttl > 0 {
			pipe.Expire(ctx, s.messagesKey(id), s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append messages: %w", err)
	}
	return nil
}

// DeleteSession removes the session keys and its index entry.
func (s *SessionStore) DeleteSession(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, s.sessionKey(id))
	pipe.Del(ctx, s.messagesKey(id))
	pipe.SRem(ctx, s.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("%w: %s", store.ErrSessionNotFound, id)
	}
	return nil
}

// ListSessions loads every indexed session. IDs whose keys have expired are
// dropped from the index.
func (s *SessionStore) ListSessions(ctx context.Context) ([]*store.Session, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sessions := make([]*store.Session, 0, len(ids))
	for _, id := range ids {
		session, err := s.GetSession(ctx, id)
		if errors.Is(err, store.ErrSessionNotFound) {
			s.client.SRem(ctx, s.indexKey(), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	slices.SortFunc(sessions, func(a, b *store.Session) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return sessions, nil
}

// Close closes the Redis client
func (s *SessionStore) Close() error {
	return s.client.Close()
}
