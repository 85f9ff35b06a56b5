package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/snakebase/snakebase/internal/cache"
	"github.com/snakebase/snakebase/internal/domain"
	"github.com/snakebase/snakebase/internal/kvstore"
)

const topCacheKey = "leaderboard:top"

// Scores records validated scores and maintains the queryable
// leaderboard. High scores are monotonic: a submission strictly lower
// than the stored high score never overwrites it.
type Scores struct {
	kv     kvstore.Store
	users  *Users
	logger *slog.Logger

	top *cache.TTL[[]domain.LeaderboardEntry]
	now func() time.Time
}

// NewScores creates the score store. cacheTTL bounds the staleness of
// the top-N view between submissions.
func NewScores(kv kvstore.Store, users *Users, cacheTTL time.Duration, logger *slog.Logger) *Scores {
	return &Scores{
		kv:     kv,
		users:  users,
		logger: logger,
		top:    cache.NewTTL[[]domain.LeaderboardEntry](cacheTTL),
		now:    time.Now,
	}
}

// SetClock replaces the time source. Used by tests.
func (s *Scores) SetClock(now func() time.Time) {
	s.now = now
}

func highScoreKey(wallet string) string {
	return "score:high:" + wallet
}

func historyKey(wallet string) string {
	return "score:history:" + wallet
}

func displayNameKey(wallet string) string {
	return "score:name:" + wallet
}

const walletRegistryKey = "score:wallets"

// SubmitScore durably records a validated score for user and returns
// the updated stats plus whether the stored high score was raised. A
// nil or wallet-less user is a no-op returning zeroed stats; the
// validator already rejected those, this is defense-in-depth.
func (s *Scores) SubmitScore(ctx context.Context, user *domain.User, score int64) (domain.PlayerStats, bool, error) {
	if !user.HasWallet() {
		return domain.PlayerStats{}, false, nil
	}
	wallet := strings.ToLower(user.WalletAddress)

	// High score: per-key CAS so concurrent submissions can never
	// regress the stored maximum. Skips the write when unchanged, and
	// equaling the stored maximum is not an improvement.
	var newHigh int64
	var improved bool
	err := s.kv.Update(ctx, highScoreKey(wallet), func(old string, ok bool) (string, error) {
		var current int64
		if ok {
			current, _ = strconv.ParseInt(old, 10, 64)
		}
		if score > current {
			newHigh, improved = score, true
			return strconv.FormatInt(score, 10), nil
		}
		newHigh, improved = current, false
		return "", kvstore.ErrSkipWrite
	})
	if err != nil {
		return domain.PlayerStats{}, false, fmt.Errorf("updating high score: %w", err)
	}

	// History: append and trim to the most recent entries. The closure
	// may retry under contention, so the final value of entries is the
	// one that was committed.
	var entries []domain.ScoreHistoryEntry
	err = s.kv.Update(ctx, historyKey(wallet), func(old string, ok bool) (string, error) {
		entries = nil
		if ok {
			if err := json.Unmarshal([]byte(old), &entries); err != nil {
				s.logger.Warn("discarding unreadable history", "wallet", wallet, "error", err)
				entries = nil
			}
		}
		entries = append(entries, domain.ScoreHistoryEntry{Ts: s.now().UnixMilli(), Score: score})
		if len(entries) > domain.MaxHistoryEntries {
			entries = entries[len(entries)-domain.MaxHistoryEntries:]
		}
		data, err := json.Marshal(entries)
		if err != nil {
			return "", err
		}
		return string(data), nil
	})
	if err != nil {
		return domain.PlayerStats{}, false, fmt.Errorf("appending history: %w", err)
	}

	if err := s.registerWallet(ctx, wallet); err != nil {
		return domain.PlayerStats{}, false, fmt.Errorf("registering wallet: %w", err)
	}

	// Display-name snapshot is best-effort; the top-N scan falls back
	// to a live lookup when it is missing or stale.
	if err := s.kv.Set(ctx, displayNameKey(wallet), user.Username); err != nil {
		s.logger.Warn("failed to snapshot display name", "wallet", wallet, "error", err)
	}

	s.top.Invalidate(topCacheKey)

	stats := domain.PlayerStats{
		TotalGames: int64(len(entries)),
		HighScore:  newHigh,
	}
	for _, e := range entries {
		stats.TotalScore += e.Score
	}
	return stats, improved, nil
}

// registerWallet adds wallet to the global registry if absent.
func (s *Scores) registerWallet(ctx context.Context, wallet string) error {
	return s.kv.Update(ctx, walletRegistryKey, func(old string, ok bool) (string, error) {
		var wallets []string
		if ok {
			if err := json.Unmarshal([]byte(old), &wallets); err != nil {
				s.logger.Warn("discarding unreadable wallet registry", "error", err)
				wallets = nil
			}
		}
		for _, w := range wallets {
			if w == wallet {
				return "", kvstore.ErrSkipWrite
			}
		}
		wallets = append(wallets, wallet)
		data, err := json.Marshal(wallets)
		if err != nil {
			return "", err
		}
		return string(data), nil
	})
}

// GetTopScores returns up to limit leaderboard entries, best first.
// Wallets with no positive score are excluded. Individual read
// failures during the scan skip that wallet rather than failing the
// query. The full scan is cached for the configured TTL.
func (s *Scores) GetTopScores(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	all, err := s.top.GetOrLoad(topCacheKey, func() ([]domain.LeaderboardEntry, error) {
		return s.scanAll(ctx)
	})
	if err != nil {
		return nil, err
	}
	if limit > len(all) {
		limit = len(all)
	}
	return all[:limit:limit], nil
}

// scanAll walks the wallet registry and builds the full ranking.
func (s *Scores) scanAll(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	raw, ok, err := s.kv.Get(ctx, walletRegistryKey)
	if err != nil {
		return nil, fmt.Errorf("reading wallet registry: %w", err)
	}
	if !ok {
		return []domain.LeaderboardEntry{}, nil
	}

	var wallets []string
	if err := json.Unmarshal([]byte(raw), &wallets); err != nil {
		return nil, fmt.Errorf("decoding wallet registry: %w", err)
	}

	entries := make([]domain.LeaderboardEntry, 0, len(wallets))
	for _, wallet := range wallets {
		val, ok, err := s.kv.Get(ctx, highScoreKey(wallet))
		if err != nil {
			s.logger.Warn("skipping wallet in leaderboard scan", "wallet", wallet, "error", err)
			continue
		}
		if !ok {
			continue
		}
		score, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			s.logger.Warn("skipping wallet with unparseable score", "wallet", wallet, "error", err)
			continue
		}
		if score <= 0 {
			continue
		}
		entries = append(entries, domain.LeaderboardEntry{
			WalletAddress: wallet,
			Username:      s.displayName(ctx, wallet),
			Score:         score,
		})
	}

	// Descending by score; ties broken by wallet for a stable order.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].WalletAddress < entries[j].WalletAddress
	})
	for i := range entries {
		entries[i].Rank = int64(i + 1)
	}
	return entries, nil
}

// displayName resolves a wallet's display name: cached snapshot, then
// live user lookup, then a truncated address.
func (s *Scores) displayName(ctx context.Context, wallet string) string {
	if name, ok, err := s.kv.Get(ctx, displayNameKey(wallet)); err == nil && ok && name != "" {
		return name
	}
	if user, err := s.users.GetByWallet(ctx, wallet); err == nil {
		return user.Username
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		s.logger.Warn("failed to resolve display name", "wallet", wallet, "error", err)
	}
	return truncateAddress(wallet)
}

// truncateAddress shortens a wallet address for display: 0x1234…abcd.
func truncateAddress(wallet string) string {
	if len(wallet) <= 10 {
		return wallet
	}
	return wallet[:6] + "…" + wallet[len(wallet)-4:]
}

// PlayerStats computes the stats view for a wallet from its retained
// history and exact high score.
func (s *Scores) PlayerStats(ctx context.Context, walletAddress string) (domain.PlayerStats, error) {
	wallet := strings.ToLower(walletAddress)

	var stats domain.PlayerStats
	if val, ok, err := s.kv.Get(ctx, highScoreKey(wallet)); err != nil {
		return stats, fmt.Errorf("reading high score: %w", err)
	} else if ok {
		stats.HighScore, _ = strconv.ParseInt(val, 10, 64)
	}

	raw, ok, err := s.kv.Get(ctx, historyKey(wallet))
	if err != nil {
		return stats, fmt.Errorf("reading history: %w", err)
	}
	if ok {
		var entries []domain.ScoreHistoryEntry
		if err := json.Unmarshal([]byte(raw), &entries); err != nil {
			return stats, fmt.Errorf("decoding history: %w", err)
		}
		stats.TotalGames = int64(len(entries))
		for _, e := range entries {
			stats.TotalScore += e.Score
		}
	}
	return stats, nil
}

// History returns the retained score history for a wallet, oldest
// first.
func (s *Scores) History(ctx context.Context, walletAddress string) ([]domain.ScoreHistoryEntry, error) {
	wallet := strings.ToLower(walletAddress)
	raw, ok, err := s.kv.Get(ctx, historyKey(wallet))
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	if !ok {
		return []domain.ScoreHistoryEntry{}, nil
	}
	var entries []domain.ScoreHistoryEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("decoding history: %w", err)
	}
	return entries, nil
}

// AllHighScores returns every wallet's current high score. Used by the
// archive worker; scan failures skip the wallet.
func (s *Scores) AllHighScores(ctx context.Context) (map[string]int64, error) {
	raw, ok, err := s.kv.Get(ctx, walletRegistryKey)
	if err != nil {
		return nil, fmt.Errorf("reading wallet registry: %w", err)
	}
	scores := make(map[string]int64)
	if !ok {
		return scores, nil
	}
	var wallets []string
	if err := json.Unmarshal([]byte(raw), &wallets); err != nil {
		return nil, fmt.Errorf("decoding wallet registry: %w", err)
	}
	for _, wallet := range wallets {
		val, ok, err := s.kv.Get(ctx, highScoreKey(wallet))
		if err != nil || !ok {
			continue
		}
		score, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			continue
		}
		scores[wallet] = score
	}
	return scores, nil
}

// RestoreHighScore reloads an archived high score into the store,
// keeping the maximum of the archived and any live value. Used at
// startup recovery.
func (s *Scores) RestoreHighScore(ctx context.Context, walletAddress string, score int64) error {
	wallet := strings.ToLower(walletAddress)
	err := s.kv.Update(ctx, highScoreKey(wallet), func(old string, ok bool) (string, error) {
		var current int64
		if ok {
			current, _ = strconv.ParseInt(old, 10, 64)
		}
		if score <= current {
			return "", kvstore.ErrSkipWrite
		}
		return strconv.FormatInt(score, 10), nil
	})
	if err != nil {
		return fmt.Errorf("restoring high score: %w", err)
	}
	return s.registerWallet(ctx, wallet)
}
