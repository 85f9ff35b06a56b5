package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/snakebase/snakebase/internal/auth"
	"github.com/snakebase/snakebase/internal/domain"
	"github.com/snakebase/snakebase/internal/kvstore"
)

// Nonces issues and redeems the one-time login challenges. At most one
// challenge is live per wallet; reissuing replaces it.
type Nonces struct {
	kv     kvstore.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewNonces creates the nonce store.
func NewNonces(kv kvstore.Store, logger *slog.Logger) *Nonces {
	return &Nonces{
		kv:     kv,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock replaces the time source. Used by tests.
func (s *Nonces) SetClock(now func() time.Time) {
	s.now = now
}

func nonceKey(wallet string) string {
	return "nonce:" + strings.ToLower(wallet)
}

// Issue creates a fresh challenge for walletAddress and returns it
// together with the exact message the wallet must sign. Any prior
// unconsumed challenge for the wallet is replaced.
func (s *Nonces) Issue(ctx context.Context, walletAddress string) (*domain.NonceChallenge, string, error) {
	challenge := &domain.NonceChallenge{
		Nonce:    uuid.New().String(),
		IssuedAt: s.now().UnixMilli(),
	}
	data, err := json.Marshal(challenge)
	if err != nil {
		return nil, "", fmt.Errorf("encoding challenge: %w", err)
	}
	if err := s.kv.SetTTL(ctx, nonceKey(walletAddress), string(data), domain.NonceTTL); err != nil {
		return nil, "", fmt.Errorf("storing challenge: %w", err)
	}
	return challenge, auth.LoginMessage(challenge.Nonce, challenge.IssuedAt), nil
}

// Peek returns the live challenge for walletAddress without consuming
// it. A failed signature check should leave the challenge in place so
// the client can retry until the TTL runs out.
func (s *Nonces) Peek(ctx context.Context, walletAddress string) (*domain.NonceChallenge, error) {
	raw, ok, err := s.kv.Get(ctx, nonceKey(walletAddress))
	if err != nil {
		return nil, fmt.Errorf("reading challenge: %w", err)
	}
	if !ok {
		return nil, domain.ErrNonceNotFound
	}

	var challenge domain.NonceChallenge
	if err := json.Unmarshal([]byte(raw), &challenge); err != nil {
		return nil, fmt.Errorf("decoding challenge: %w", err)
	}
	// The store TTL normally enforces this; the explicit check covers
	// backends without expiry support.
	if challenge.Expired(s.now()) {
		return nil, domain.ErrNonceExpired
	}
	return &challenge, nil
}

// Consume removes the wallet's challenge after a successful
// verification so it cannot be replayed.
func (s *Nonces) Consume(ctx context.Context, walletAddress string) error {
	return s.kv.Delete(ctx, nonceKey(walletAddress))
}
