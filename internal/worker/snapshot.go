package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/suji-games/leaderboard-service/internal/config"
	"github.com/suji-games/leaderboard-service/internal/domain"
	"github.com/suji-games/leaderboard-service/internal/postgres"
	"github.com/suji-games/leaderboard-service/internal/redis"
)

// SnapshotWorker periodically copies each open leaderboard's live ranked set
// into PostgreSQL, and restores a lost set from the latest backup at startup.
// The backup is a safety net for ranking-backend restarts, not a second
// source of truth; the ranked set stays authoritative while it exists.
type SnapshotWorker struct {
	ranked  *redis.RankedSet
	repo    *postgres.Repository
	config  *config.SnapshotConfig
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewSnapshotWorker creates a new snapshot worker
func NewSnapshotWorker(
	ranked *redis.RankedSet,
	repo *postgres.Repository,
	cfg *config.SnapshotConfig,
	logger *slog.Logger,
) *SnapshotWorker {
	return &SnapshotWorker{
		ranked: ranked,
		repo:   repo,
		config: cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins the background snapshot process
func (w *SnapshotWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("snapshot worker started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background snapshot process
func (w *SnapshotWorker) Stop() error {
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

	w.logger.Info("snapshot worker stopped")
	return nil
}

// run is the main worker loop
func (w *SnapshotWorker) run(ctx context.Context) {
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
			w.snapshotAll(ctx)
		}
	}
}

// snapshotAll backs up the live ranked set of every open leaderboard
func (w *SnapshotWorker) snapshotAll(ctx context.Context) {
	startTime := time.Now()

	boards, err := w.repo.ListOpen(ctx)
	if err != nil {
		w.logger.Error("failed to list leaderboards for snapshot", "error", err)
		return
	}

	savedCount := 0
	errorCount := 0

	for i := range boards {
		if err := w.SnapshotOne(ctx, &boards[i]); err != nil {
			w.logger.Error("failed to snapshot leaderboard",
				"leaderboard_id", boards[i].ID,
				"error", err,
			)
			errorCount++
		} else {
			savedCount++
		}
	}

	w.logger.Info("snapshot cycle completed",
		"duration", time.Since(startTime),
		"saved", savedCount,
		"errors", errorCount,
	)
}

// SnapshotOne backs up a single leaderboard's live ranked set
func (w *SnapshotWorker) SnapshotOne(ctx context.Context, lb *domain.Leaderboard) error {
	entries, err := w.ranked.AllMembersDesc(ctx, lb.Key())
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		w.logger.Debug("no scores to snapshot", "leaderboard_id", lb.ID)
		return nil
	}

	if err := w.repo.BackupScores(ctx, lb.ID, entries); err != nil {
		return err
	}

	w.logger.Debug("snapshot saved",
		"leaderboard_id", lb.ID,
		"player_count", len(entries),
	)
	return nil
}

// RestoreMissing rebuilds the live ranked set of any open leaderboard whose
// set is gone, from the latest backup. Members already present keep their
// live score.
func (w *SnapshotWorker) RestoreMissing(ctx context.Context) error {
	boards, err := w.repo.ListOpen(ctx)
	if err != nil {
		return err
	}

	restored := 0
	for i := range boards {
		lb := &boards[i]

		count, err := w.ranked.Count(ctx, lb.Key())
		if err != nil {
			w.logger.Error("failed to check ranked set", "leaderboard_id", lb.ID, "error", err)
			continue
		}
		if count > 0 {
			continue
		}

		scores, err := w.repo.GetBackupScores(ctx, lb.ID)
		if err != nil {
			w.logger.Error("failed to load backup scores", "leaderboard_id", lb.ID, "error", err)
			continue
		}
		if len(scores) == 0 {
			continue
		}

		players := 0
		for playerID, score := range scores {
			if _, err := w.ranked.UpsertIfAbsent(ctx, lb.Key(), playerID, score); err != nil {
				w.logger.Error("failed to restore score",
					"leaderboard_id", lb.ID,
					"player_id", playerID,
					"error", err,
				)
				continue
			}
			players++
		}

		w.logger.Info("restored ranked set from backup",
			"leaderboard_id", lb.ID,
			"player_count", players,
		)
		restored++
	}

	if restored > 0 {
		w.logger.Info("startup restore completed", "restored", restored)
	}
	return nil
}

// IsRunning returns whether the worker is currently running
func (w *SnapshotWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// RunOnce runs a single snapshot cycle (useful for manual triggers)
func (w *SnapshotWorker) RunOnce(ctx context.Context) {
	w.snapshotAll(ctx)
}
