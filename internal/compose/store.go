package compose

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"instasend/mailer/internal/cache"
)

// Store keeps one composition per user between requests. It also owns the
// single-slot guard allowing one in-flight send per user.
type Store interface {
	Load(ctx context.Context, userID string) (*Session, error)
	Save(ctx context.Context, userID string, s *Session) error
	Delete(ctx context.Context, userID string) error

	AcquireSend(ctx context.Context, userID string, ttl time.Duration) (bool, error)
	ReleaseSend(ctx context.Context, userID string) error
	SendHeld(ctx context.Context, userID string) (bool, error)
}

func sessionKey(userID string) string {
	return fmt.Sprintf("compose:%s", userID)
}

func sendingKey(userID string) string {
	return fmt.Sprintf("compose:%s:sending", userID)
}

// RedisStore implements Store on Redis. Sessions expire after ttl without
// activity.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a RedisStore.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Load returns the user's session, or a new one when none is stored.
func (r *RedisStore) Load(ctx context.Context, userID string) (*Session, error) {
	data, err := r.client.Get(ctx, sessionKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return NewSession(), nil
		}
		return nil, fmt.Errorf("failed to load composition: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode composition: %w", err)
	}
	if s.Placeholders == nil {
		s.Placeholders = NewSession().Placeholders
	}
	return &s, nil
}

func (r *RedisStore) Save(ctx context.Context, userID string, s *Session) error {
	s.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode composition: %w", err)
	}
	if err := r.client.Set(ctx, sessionKey(userID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store composition: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, sessionKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete composition: %w", err)
	}
	return nil
}

func (r *RedisStore) AcquireSend(ctx context.Context, userID string, ttl time.Duration) (bool, error) {
	return cache.NewLock(r.client, sendingKey(userID), ttl).Acquire(ctx)
}

func (r *RedisStore) ReleaseSend(ctx context.Context, userID string) error {
	return cache.NewLock(r.client, sendingKey(userID), 0).Release(ctx)
}

func (r *RedisStore) SendHeld(ctx context.Context, userID string) (bool, error) {
	return cache.NewLock(r.client, sendingKey(userID), 0).Held(ctx)
}

// MemoryStore is a Store kept in process memory. Sessions are copied on the
// way in and out so callers never share state. Send slots do not expire.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string][]byte
	sending  map[string]bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string][]byte{}, sending: map[string]bool{}}
}

func (m *MemoryStore) Load(_ context.Context, userID string) (*Session, error) {
	m.mu.Lock()
	data, ok := m.sessions[userID]
	m.mu.Unlock()
	if !ok {
		return NewSession(), nil
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (m *MemoryStore) Save(_ context.Context, userID string, s *Session) error {
	s.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[userID] = data
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	return nil
}

func (m *MemoryStore) AcquireSend(_ context.Context, userID string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sending[userID] {
		return false, nil
	}
	m.sending[userID] = true
	return true, nil
}

func (m *MemoryStore) ReleaseSend(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sending, userID)
	return nil
}

func (m *MemoryStore) SendHeld(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sending[userID], nil
}
