// Package worker runs the background archive loop that keeps the
// PostgreSQL high-score archive in step with the hot key-value store.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/snakebase/snakebase/internal/config"
	"github.com/snakebase/snakebase/internal/postgres"
	"github.com/snakebase/snakebase/internal/store"
)

// ArchiveWorker periodically copies high scores from the hot store to
// the archive, and restores them in the other direction at startup.
type ArchiveWorker struct {
	scores  *store.Scores
	archive *postgres.Archive
	config  *config.ArchiveConfig
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewArchiveWorker creates a new archive worker
func NewArchiveWorker(
	scores *store.Scores,
	archive *postgres.Archive,
	cfg *config.ArchiveConfig,
	logger *slog.Logger,
) *ArchiveWorker {
	return &ArchiveWorker{
		scores:  scores,
		archive: archive,
		config:  cfg,
		logger:  logger,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start begins the background archive process
func (w *ArchiveWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("archive worker started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background archive process
func (w *ArchiveWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("archive worker stopped")
	return nil
}

// run is the main worker loop
func (w *ArchiveWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.archiveCycle(ctx)
		}
	}
}

// archiveCycle copies every current high score into the archive in
// batches.
func (w *ArchiveWorker) archiveCycle(ctx context.Context) {
	startTime := time.Now()

	scores, err := w.scores.AllHighScores(ctx)
	if err != nil {
		w.logger.Error("failed to read high scores for archiving", "error", err)
		return
	}
	if len(scores) == 0 {
		return
	}

	batchSize := w.config.BatchSize
	if batchSize == 0 {
		batchSize = 500
	}

	batch := make(map[string]int64, batchSize)
	archived := 0
	for wallet, score := range scores {
		batch[wallet] = score
		if len(batch) >= batchSize {
			if err := w.archive.UpsertHighScores(ctx, batch); err != nil {
				w.logger.Error("failed to archive high score batch", "error", err)
				return
			}
			archived += len(batch)
			batch = make(map[string]int64, batchSize)
		}
	}
	if len(batch) > 0 {
		if err := w.archive.UpsertHighScores(ctx, batch); err != nil {
			w.logger.Error("failed to archive high score batch", "error", err)
			return
		}
		archived += len(batch)
	}

	w.logger.Info("archive cycle completed",
		"duration", time.Since(startTime),
		"wallets", archived,
	)
}

// RestoreFromArchive reloads archived high scores into the hot store.
// Live values that are already higher are kept. Intended for startup
// after a cold or flushed store.
func (w *ArchiveWorker) RestoreFromArchive(ctx context.Context) error {
	scores, err := w.archive.LoadHighScores(ctx)
	if err != nil {
		return err
	}

	restored := 0
	for wallet, score := range scores {
		if err := w.scores.RestoreHighScore(ctx, wallet, score); err != nil {
			w.logger.Error("failed to restore high score", "wallet", wallet, "error", err)
			continue
		}
		restored++
	}

	w.logger.Info("restored high scores from archive", "wallets", restored)
	return nil
}

// IsRunning returns whether the worker is currently running
func (w *ArchiveWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// RunOnce runs a single archive cycle (useful for manual triggers)
func (w *ArchiveWorker) RunOnce(ctx context.Context) {
	w.archiveCycle(ctx)
}
