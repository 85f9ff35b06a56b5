// Package service wires the validation, identity, and score layers
// into the operations the transports expose.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/snakebase/snakebase/internal/auth"
	"github.com/snakebase/snakebase/internal/config"
	"github.com/snakebase/snakebase/internal/domain"
	"github.com/snakebase/snakebase/internal/store"
)

// Auditor archives accepted score events. Failures are logged, never
// surfaced to the submitter.
type Auditor interface {
	RecordEvent(ctx context.Context, event domain.ScoreEvent) error
}

// ChainSubmitter mirrors new high scores on-chain, best-effort.
type ChainSubmitter interface {
	SubmitHighScore(ctx context.Context, walletAddress string, score int64) (string, error)
}

// Broadcaster pushes live updates to connected clients.
type Broadcaster interface {
	BroadcastLeaderboard(entries []domain.LeaderboardEntry)
	BroadcastPlayer(walletAddress string, stats domain.PlayerStats)
}

// GameService provides the score submission, leaderboard, and wallet
// login operations.
type GameService struct {
	validator *auth.Validator
	users     *store.Users
	scores    *store.Scores
	nonces    *store.Nonces
	sessions  *store.Sessions

	auditor     Auditor
	chain       ChainSubmitter
	broadcaster Broadcaster

	config *config.LeaderboardConfig
	logger *slog.Logger
}

// NewGameService creates the game service. auditor, chain, and
// broadcaster may be nil when the corresponding subsystem is disabled.
func NewGameService(
	validator *auth.Validator,
	users *store.Users,
	scores *store.Scores,
	nonces *store.Nonces,
	sessions *store.Sessions,
	auditor Auditor,
	chain ChainSubmitter,
	broadcaster Broadcaster,
	cfg *config.LeaderboardConfig,
	logger *slog.Logger,
) *GameService {
	return &GameService{
		validator:   validator,
		users:       users,
		scores:      scores,
		nonces:      nonces,
		sessions:    sessions,
		auditor:     auditor,
		chain:       chain,
		broadcaster: broadcaster,
		config:      cfg,
		logger:      logger,
	}
}

// RequestNonce issues a login challenge for walletAddress and returns
// it with the message the wallet must sign.
func (s *GameService) RequestNonce(ctx context.Context, walletAddress string) (*domain.NonceChallenge, string, error) {
	if !common.IsHexAddress(walletAddress) {
		return nil, "", fmt.Errorf("%w: malformed wallet address", domain.ErrInvalidRequest)
	}
	return s.nonces.Issue(ctx, walletAddress)
}

// VerifyLogin completes the nonce handshake. On success the challenge
// is consumed, the user is resolved (created on first contact), and a
// session token is returned. A failed signature leaves the challenge
// in place so the client can retry until it expires.
func (s *GameService) VerifyLogin(ctx context.Context, walletAddress, signature, suggestedUsername string) (*domain.User, string, error) {
	if !common.IsHexAddress(walletAddress) {
		return nil, "", fmt.Errorf("%w: malformed wallet address", domain.ErrInvalidRequest)
	}

	challenge, err := s.nonces.Peek(ctx, walletAddress)
	if err != nil {
		return nil, "", err
	}

	msg := auth.LoginMessage(challenge.Nonce, challenge.IssuedAt)
	if !auth.VerifySigner(walletAddress, msg, signature) {
		return nil, "", domain.ErrInvalidSignature
	}

	if err := s.nonces.Consume(ctx, walletAddress); err != nil {
		s.logger.Warn("failed to consume nonce", "wallet", walletAddress, "error", err)
	}

	user, err := s.users.GetOrCreateByWallet(ctx, walletAddress, suggestedUsername)
	if err != nil {
		return nil, "", err
	}

	token, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}

	s.logger.Info("wallet login", "user_id", user.ID, "wallet", user.WalletAddress)
	return user, token, nil
}

// ResolveSession returns the user behind a bearer token.
func (s *GameService) ResolveSession(ctx context.Context, token string) (*domain.User, error) {
	userID, err := s.sessions.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.users.GetByID(ctx, userID)
}

// SubmitScore validates and records a score for the session user and
// returns the updated stats. Audit, on-chain mirroring, and live
// broadcasts are best-effort side effects of an accepted score.
func (s *GameService) SubmitScore(ctx context.Context, user *domain.User, sub *domain.ScoreSubmission) (domain.PlayerStats, error) {
	score, err := s.validator.Validate(user, sub)
	if err != nil {
		return domain.PlayerStats{}, err
	}

	stats, newHigh, err := s.scores.SubmitScore(ctx, user, score)
	if err != nil {
		return domain.PlayerStats{}, err
	}

	s.recordSideEffects(ctx, user, score, stats, newHigh)
	return stats, nil
}

// IngestEvent records a score event arriving off the HTTP path, for
// example from the Kafka pipeline. The wallet's user is created on
// first contact; signature checks do not apply since the event was
// accepted upstream.
func (s *GameService) IngestEvent(ctx context.Context, event domain.ScoreEvent) error {
	if event.Score < 0 {
		return domain.ErrInvalidScore
	}
	user, err := s.users.GetOrCreateByWallet(ctx, event.WalletAddress, "")
	if err != nil {
		return err
	}
	stats, newHigh, err := s.scores.SubmitScore(ctx, user, event.Score)
	if err != nil {
		return err
	}
	s.recordSideEffects(ctx, user, event.Score, stats, newHigh)
	return nil
}

func (s *GameService) recordSideEffects(ctx context.Context, user *domain.User, score int64, stats domain.PlayerStats, newHigh bool) {
	if s.auditor != nil {
		event := domain.ScoreEvent{
			WalletAddress: user.WalletAddress,
			Score:         score,
			Timestamp:     time.Now().UnixMilli(),
			Source:        "submit",
		}
		if err := s.auditor.RecordEvent(ctx, event); err != nil {
			s.logger.Warn("failed to archive score event", "wallet", user.WalletAddress, "error", err)
		}
	}

	// Mirror only when the stored high score was actually raised, so a
	// replayed or tied score never re-submits a duplicate transaction.
	if s.chain != nil && newHigh {
		if txHash, err := s.chain.SubmitHighScore(ctx, user.WalletAddress, stats.HighScore); err != nil {
			s.logger.Warn("failed to mirror high score on-chain", "wallet", user.WalletAddress, "error", err)
		} else if txHash != "" {
			s.logger.Info("mirrored high score on-chain", "wallet", user.WalletAddress, "tx", txHash)
		}
	}

	if s.broadcaster != nil {
		s.broadcaster.BroadcastPlayer(user.WalletAddress, stats)
		if entries, err := s.scores.GetTopScores(ctx, s.config.DefaultLimit); err == nil {
			s.broadcaster.BroadcastLeaderboard(entries)
		}
	}
}

// GetLeaderboard returns the top entries, clamping limit to the
// configured bounds.
func (s *GameService) GetLeaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = s.config.DefaultLimit
	}
	if limit > s.config.MaxLimit {
		limit = s.config.MaxLimit
	}
	return s.scores.GetTopScores(ctx, limit)
}

// PlayerStats returns the stats view for the user's wallet.
func (s *GameService) PlayerStats(ctx context.Context, user *domain.User) (domain.PlayerStats, error) {
	if !user.HasWallet() {
		return domain.PlayerStats{}, domain.ErrWalletRequired
	}
	return s.scores.PlayerStats(ctx, user.WalletAddress)
}

// PlayerHistory returns the user's retained score history.
func (s *GameService) PlayerHistory(ctx context.Context, user *domain.User) ([]domain.ScoreHistoryEntry, error) {
	if !user.HasWallet() {
		return nil, domain.ErrWalletRequired
	}
	return s.scores.History(ctx, user.WalletAddress)
}

// UpdateUsername renames the session user. Returns ErrUsernameTaken on
// collision with another user.
func (s *GameService) UpdateUsername(ctx context.Context, user *domain.User, newUsername string) (*domain.User, error) {
	ok, err := s.users.UpdateUsername(ctx, user.ID, newUsername)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrUsernameTaken
	}
	return s.users.GetByID(ctx, user.ID)
}

// UpdateAvatar sets the session user's avatar URL.
func (s *GameService) UpdateAvatar(ctx context.Context, user *domain.User, avatarURL string) (*domain.User, error) {
	if err := s.users.UpdateAvatar(ctx, user.ID, avatarURL); err != nil {
		return nil, err
	}
	return s.users.GetByID(ctx, user.ID)
}
