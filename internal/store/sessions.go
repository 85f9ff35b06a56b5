package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/snakebase/snakebase/internal/domain"
	"github.com/snakebase/snakebase/internal/kvstore"
)

// Sessions maps opaque bearer tokens to user ids.
type Sessions struct {
	kv  kvstore.Store
	ttl time.Duration
}

// NewSessions creates the session store. Tokens expire after ttl.
func NewSessions(kv kvstore.Store, ttl time.Duration) *Sessions {
	return &Sessions{kv: kv, ttl: ttl}
}

func sessionKey(token string) string {
	return "session:" + token
}

// Create mints a new session token for userID.
func (s *Sessions) Create(ctx context.Context, userID string) (string, error) {
	token := uuid.New().String()
	if err := s.kv.SetTTL(ctx, sessionKey(token), userID, s.ttl); err != nil {
		return "", fmt.Errorf("storing session: %w", err)
	}
	return token, nil
}

// Resolve returns the user id bound to token, or ErrUserNotFound when
// the token is unknown or expired.
func (s *Sessions) Resolve(ctx context.Context, token string) (string, error) {
	userID, ok, err := s.kv.Get(ctx, sessionKey(token))
	if err != nil {
		return "", fmt.Errorf("reading session: %w", err)
	}
	if !ok {
		return "", domain.ErrUserNotFound
	}
	return userID, nil
}

// Revoke deletes a session token.
func (s *Sessions) Revoke(ctx context.Context, token string) error {
	return s.kv.Delete(ctx, sessionKey(token))
}
