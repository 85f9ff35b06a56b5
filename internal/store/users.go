// Package store implements the persisted state of the game over the
// key-value store capability: user identities, score aggregation,
// nonce challenges, and session tokens.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/snakebase/snakebase/internal/cache"
	"github.com/snakebase/snakebase/internal/domain"
	"github.com/snakebase/snakebase/internal/kvstore"
)

const (
	// Username constraints
	usernameMinLen = 3
	usernameMaxLen = 20

	// Bound on collision-suffix probing during user creation.
	maxUsernameProbes = 1000

	userCacheTTL = time.Minute
)

var errIndexTaken = errors.New("index entry already claimed")

// Users maps wallet addresses and session identities to user records.
// Every user is indexed three ways: by id, by username
// (case-insensitive), and by wallet address.
type Users struct {
	kv     kvstore.Store
	logger *slog.Logger

	byID     *cache.TTL[*domain.User]
	byWallet *cache.TTL[*domain.User]

	now func() time.Time
}

// NewUsers creates the user store.
func NewUsers(kv kvstore.Store, logger *slog.Logger) *Users {
	return &Users{
		kv:       kv,
		logger:   logger,
		byID:     cache.NewTTL[*domain.User](userCacheTTL),
		byWallet: cache.NewTTL[*domain.User](userCacheTTL),
		now:      time.Now,
	}
}

func userIDKey(id string) string {
	return "user:id:" + id
}

func usernameKey(name string) string {
	return "user:name:" + strings.ToLower(name)
}

func walletKey(addr string) string {
	return "user:wallet:" + strings.ToLower(addr)
}

// DeriveUsername returns the default display name for a wallet with no
// suggestion: "snake_" plus the first six hex chars after the 0x
// prefix.
func DeriveUsername(walletAddress string) string {
	addr := strings.TrimPrefix(strings.ToLower(walletAddress), "0x")
	if len(addr) > 6 {
		addr = addr[:6]
	}
	return "snake_" + addr
}

// ValidUsername reports whether name satisfies the length constraint.
func ValidUsername(name string) bool {
	return len(name) >= usernameMinLen && len(name) <= usernameMaxLen
}

// GetOrCreateByWallet returns the user bound to walletAddress,
// creating one on first contact. Creation synthesizes a username from
// the suggestion or the wallet, disambiguating collisions with a
// numeric suffix. Idempotent: a second call for the same wallet
// returns the existing user unchanged.
func (s *Users) GetOrCreateByWallet(ctx context.Context, walletAddress, suggestedUsername string) (*domain.User, error) {
	wallet := strings.ToLower(walletAddress)
	if wallet == "" {
		return nil, domain.ErrInvalidRequest
	}

	if user, err := s.GetByWallet(ctx, wallet); err == nil {
		return user, nil
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	id := uuid.New().String()

	// Claim the wallet index first so two concurrent first contacts
	// converge on a single user.
	var existingID string
	err := s.kv.Update(ctx, walletKey(wallet), func(old string, ok bool) (string, error) {
		if ok {
			existingID = old
			return "", kvstore.ErrSkipWrite
		}
		return id, nil
	})
	if err != nil {
		return nil, fmt.Errorf("claiming wallet index: %w", err)
	}
	if existingID != "" {
		return s.GetByID(ctx, existingID)
	}

	base := suggestedUsername
	if !ValidUsername(base) {
		base = DeriveUsername(wallet)
	}
	username, err := s.claimUsername(ctx, base, id)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		ID:            id,
		Username:      username,
		WalletAddress: wallet,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.putUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("created user", "user_id", id, "wallet", wallet, "username", username)
	return user, nil
}

// claimUsername atomically reserves the first free name in the
// sequence base, base_1, base_2, ... for owner id.
func (s *Users) claimUsername(ctx context.Context, base, id string) (string, error) {
	for i := 0; i < maxUsernameProbes; i++ {
		candidate := base
		if i > 0 {
			candidate = fmt.Sprintf("%s_%d", base, i)
		}
		if len(candidate) > usernameMaxLen {
			// Leave room for the suffix.
			trim := usernameMaxLen - len(candidate) + len(base)
			if trim < usernameMinLen {
				return "", domain.ErrInvalidRequest
			}
			candidate = fmt.Sprintf("%s_%d", base[:trim], i)
		}

		err := s.kv.Update(ctx, usernameKey(candidate), func(_ string, ok bool) (string, error) {
			if ok {
				return "", errIndexTaken
			}
			return id, nil
		})
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, errIndexTaken) {
			return "", fmt.Errorf("claiming username: %w", err)
		}
	}
	return "", fmt.Errorf("no free username variant for %q", base)
}

// GetByID returns the user with the given id.
func (s *Users) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if user, ok := s.byID.Get(id); ok {
		return user, nil
	}

	raw, ok, err := s.kv.Get(ctx, userIDKey(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrUserNotFound
	}

	var user domain.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return nil, fmt.Errorf("decoding user %s: %w", id, err)
	}

	s.byID.Put(id, &user)
	return &user, nil
}

// GetByWallet returns the user bound to walletAddress.
func (s *Users) GetByWallet(ctx context.Context, walletAddress string) (*domain.User, error) {
	wallet := strings.ToLower(walletAddress)
	if user, ok := s.byWallet.Get(wallet); ok {
		return user, nil
	}

	id, ok, err := s.kv.Get(ctx, walletKey(wallet))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrUserNotFound
	}

	user, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.byWallet.Put(wallet, user)
	return user, nil
}

// GetByUsername returns the user with the given name, case-insensitive.
func (s *Users) GetByUsername(ctx context.Context, name string) (*domain.User, error) {
	id, ok, err := s.kv.Get(ctx, usernameKey(name))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return s.GetByID(ctx, id)
}

// UpdateUsername renames a user. Returns false with no state change
// when newUsername collides with a different user.
func (s *Users) UpdateUsername(ctx context.Context, userID, newUsername string) (bool, error) {
	if !ValidUsername(newUsername) {
		return false, domain.ErrInvalidRequest
	}

	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	if user.Username == newUsername {
		return true, nil
	}

	// Claim the new name before touching anything else.
	err = s.kv.Update(ctx, usernameKey(newUsername), func(old string, ok bool) (string, error) {
		if ok && old != userID {
			return "", errIndexTaken
		}
		return userID, nil
	})
	if errors.Is(err, errIndexTaken) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claiming username: %w", err)
	}

	oldName := user.Username
	updated := *user
	updated.Username = newUsername
	if err := s.putUser(ctx, &updated); err != nil {
		return false, err
	}

	if !strings.EqualFold(oldName, newUsername) {
		if err := s.kv.Delete(ctx, usernameKey(oldName)); err != nil {
			s.logger.Warn("failed to remove old username index", "username", oldName, "error", err)
		}
	}
	return true, nil
}

// UpdateAvatar sets the user's avatar URL.
func (s *Users) UpdateAvatar(ctx context.Context, userID, avatarURL string) error {
	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	updated := *user
	updated.AvatarURL = avatarURL
	return s.putUser(ctx, &updated)
}

// putUser writes the user record and invalidates read caches.
func (s *Users) putUser(ctx context.Context, user *domain.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encoding user: %w", err)
	}
	if err := s.kv.Set(ctx, userIDKey(user.ID), string(data)); err != nil {
		return fmt.Errorf("writing user: %w", err)
	}
	s.byID.Invalidate(user.ID)
	s.byWallet.Invalidate(user.WalletAddress)
	return nil
}
