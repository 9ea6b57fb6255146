package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// CookieName is the admin session cookie
	CookieName = "admin_session"
	// SessionTTL is how long an admin stays signed in
	SessionTTL = 7 * 24 * time.Hour
)

// ErrSessionNotFound is returned for unknown or expired sessions
var ErrSessionNotFound = errors.New("session not found")

// SessionStore maps a cookie value to an admin user id
type SessionStore interface {
	Create(ctx context.Context, userID string) (string, error)
	Lookup(ctx context.Context, sessionID string) (string, error)
	Delete(ctx context.Context, sessionID string) error
}

// CookieSessionStore keeps no server-side state: the cookie value is the
// admin user id itself
type CookieSessionStore struct{}

// NewCookieSessionStore creates a stateless session store
func NewCookieSessionStore() *CookieSessionStore {
	return &CookieSessionStore{}
}

func (CookieSessionStore) Create(_ context.Context, userID string) (string, error) {
	return userID, nil
}

func (CookieSessionStore) Lookup(_ context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		return "", ErrSessionNotFound
	}
	return sessionID, nil
}

func (CookieSessionStore) Delete(context.Context, string) error {
	return nil
}

// RedisSessionStore keeps random session ids in Redis with a TTL
type RedisSessionStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisSessionStore creates a Redis-backed session store
func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	if ttl <= 0 {
		ttl = SessionTTL
	}
	return &RedisSessionStore{
		client: client,
		prefix: "checklist-engine:session:",
		ttl:    ttl,
	}
}

func (s *RedisSessionStore) key(sessionID string) string {
	return s.prefix + sessionID
}

// Create stores a new session for userID and returns its id
func (s *RedisSessionStore) Create(ctx context.Context, userID string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	id := hex.EncodeToString(buf)

	if err := s.client.Set(ctx, s.key(id), userID, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}
	return id, nil
}

// Lookup returns the user id for a session
func (s *RedisSessionStore) Lookup(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		return "", ErrSessionNotFound
	}
	userID, err := s.client.Get(ctx, s.key(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrSessionNotFound
		}
		return "", fmt.Errorf("failed to read session: %w", err)
	}
	return userID, nil
}

// Delete ends a session
func (s *RedisSessionStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
