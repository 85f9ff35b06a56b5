// Package postgres is the durable audit archive behind the key-value
// store: every accepted score event is appended, and high scores are
// upserted so the hot store can be rebuilt after data loss.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/snakebase/snakebase/internal/config"
	"github.com/snakebase/snakebase/internal/domain"
)

// Archive provides PostgreSQL-based audit storage
type Archive struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewArchive creates a new PostgreSQL archive
func NewArchive(cfg *config.PostgresConfig, logger *slog.Logger) (*Archive, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Archive{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (a *Archive) Close() {
	a.pool.Close()
}

// RunMigrations executes database migrations
func (a *Archive) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS score_events (
			id BIGSERIAL PRIMARY KEY,
			wallet_address VARCHAR(42) NOT NULL,
			score BIGINT NOT NULL,
			source VARCHAR(20) NOT NULL,
			submitted_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS high_scores (
			wallet_address VARCHAR(42) PRIMARY KEY,
			score BIGINT NOT NULL,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_score_events_wallet ON score_events(wallet_address, submitted_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_high_scores_score ON high_scores(score DESC)`,
	}

	for _, migration := range migrations {
		_, err := a.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	a.logger.Info("database migrations completed")
	return nil
}

// RecordEvent appends an accepted score event to the audit log.
func (a *Archive) RecordEvent(ctx context.Context, event domain.ScoreEvent) error {
	query := `
		INSERT INTO score_events (wallet_address, score, source, submitted_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := a.pool.Exec(ctx, query,
		strings.ToLower(event.WalletAddress),
		event.Score,
		event.Source,
		time.UnixMilli(event.Timestamp).UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording score event: %w", err)
	}
	return nil
}

// UpsertHighScore writes a wallet's high score, keeping the maximum of
// the stored and incoming values.
func (a *Archive) UpsertHighScore(ctx context.Context, walletAddress string, score int64) error {
	query := `
		INSERT INTO high_scores (wallet_address, score, updated_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (wallet_address) DO UPDATE
		SET score = GREATEST(high_scores.score, EXCLUDED.score),
		    updated_at = CURRENT_TIMESTAMP
	`
	_, err := a.pool.Exec(ctx, query, strings.ToLower(walletAddress), score)
	if err != nil {
		return fmt.Errorf("upserting high score: %w", err)
	}
	return nil
}

// UpsertHighScores writes a batch of high scores in one round trip.
func (a *Archive) UpsertHighScores(ctx context.Context, scores map[string]int64) error {
	if len(scores) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	query := `
		INSERT INTO high_scores (wallet_address, score, updated_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (wallet_address) DO UPDATE
		SET score = GREATEST(high_scores.score, EXCLUDED.score),
		    updated_at = CURRENT_TIMESTAMP
	`
	for wallet, score := range scores {
		batch.Queue(query, strings.ToLower(wallet), score)
	}
	results := a.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range scores {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upserting high score batch: %w", err)
		}
	}
	return nil
}

// LoadHighScores returns all archived high scores, used to rebuild the
// hot store at startup.
func (a *Archive) LoadHighScores(ctx context.Context) (map[string]int64, error) {
	rows, err := a.pool.Query(ctx, `SELECT wallet_address, score FROM high_scores`)
	if err != nil {
		return nil, fmt.Errorf("loading high scores: %w", err)
	}
	defer rows.Close()

	scores := make(map[string]int64)
	for rows.Next() {
		var wallet string
		var score int64
		if err := rows.Scan(&wallet, &score); err != nil {
			return nil, fmt.Errorf("scanning high score row: %w", err)
		}
		scores[wallet] = score
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating high score rows: %w", err)
	}
	return scores, nil
}

// EventCount returns the number of archived events for a wallet.
func (a *Archive) EventCount(ctx context.Context, walletAddress string) (int64, error) {
	var count int64
	err := a.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM score_events WHERE wallet_address = $1`,
		strings.ToLower(walletAddress),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting score events: %w", err)
	}
	return count, nil
}
