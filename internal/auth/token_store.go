package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"

	"instasend/mailer/internal/apperr"
)

const (
	providerTokenTTL = 30 * 24 * time.Hour
	oauthStateTTL    = 10 * time.Minute
)

// ITokenStore keeps the mail provider tokens obtained at sign-in.
type ITokenStore interface {
	SaveToken(ctx context.Context, userID string, tok *oauth2.Token) error
	LoadToken(ctx context.Context, userID string) (*oauth2.Token, error)
	SaveState(ctx context.Context, state string) error
	ConsumeState(ctx context.Context, state string) (bool, error)
}

// RedisTokenStore implements ITokenStore on Redis.
type RedisTokenStore struct {
	client *redis.Client
}

// NewRedisTokenStore creates a RedisTokenStore.
func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{client: client}
}

func tokenKey(userID string) string {
	return fmt.Sprintf("oauth:google:token:%s", userID)
}

func stateKey(state string) string {
	return fmt.Sprintf("oauth:google:state:%s", state)
}

// SaveToken stores tok for userID. A token without a refresh token keeps the
// refresh token stored earlier, since Google only returns it on consent.
func (s *RedisTokenStore) SaveToken(ctx context.Context, userID string, tok *oauth2.Token) error {
	if tok.RefreshToken == "" {
		if prev, err := s.LoadToken(ctx, userID); err == nil {
			tok.RefreshToken = prev.RefreshToken
		}
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := s.client.Set(ctx, tokenKey(userID), data, providerTokenTTL).Err(); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	return nil
}

// LoadToken returns the stored token. A missing token is an auth error: the
// user has to sign in again before mail can be sent on their behalf.
func (s *RedisTokenStore) LoadToken(ctx context.Context, userID string) (*oauth2.Token, error) {
	data, err := s.client.Get(ctx, tokenKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperr.Auth("Mail provider access token missing, please sign in again")
		}
		return nil, fmt.Errorf("failed to load token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	return &tok, nil
}

// SaveState records an OAuth state value for the callback to verify.
func (s *RedisTokenStore) SaveState(ctx context.Context, state string) error {
	if err := s.client.Set(ctx, stateKey(state), "1", oauthStateTTL).Err(); err != nil {
		return fmt.Errorf("failed to store oauth state: %w", err)
	}
	return nil
}

// ConsumeState reports whether state was issued and deletes it.
func (s *RedisTokenStore) ConsumeState(ctx context.Context, state string) (bool, error) {
	n, err := s.client.Del(ctx, stateKey(state)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to consume oauth state: %w", err)
	}
	return n == 1, nil
}
