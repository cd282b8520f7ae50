package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"

	"github.com/suji-games/leaderboard-service/internal/config"
)

// Service schedules one-shot close jobs on a durable queue. Jobs survive
// restarts, fire at-least-once and are unique per (leaderboard, cycle).
type Service struct {
	client *river.Client[pgx.Tx]
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates the close-trigger scheduler on an existing pgx pool.
// The queue schema is migrated in place, matching how the repository manages
// its own tables.
func NewService(ctx context.Context, pool *pgxpool.Pool, closer CycleCloser, cfg *config.QueueConfig, logger *slog.Logger) (*Service, error) {
	driver := riverpgxv5.New(pool)

	migrator, err := rivermigrate.New(driver, nil)
	if err != nil {
		return nil, fmt.Errorf("creating queue migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return nil, fmt.Errorf("migrating queue schema: %w", err)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, newCloseWorker(closer, logger))

	client, err := river.NewClient(driver, &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.MaxWorkers},
		},
		Workers: workers,
	})
	if err != nil {
		return nil, fmt.Errorf("creating queue client: %w", err)
	}

	return &Service{
		client: client,
		pool:   pool,
		logger: logger,
	}, nil
}

// Start begins processing scheduled jobs
func (s *Service) Start(ctx context.Context) error {
	if err := s.client.Start(ctx); err != nil {
		return fmt.Errorf("starting queue client: %w", err)
	}
	s.logger.Info("close scheduler started")
	return nil
}

// Stop drains and stops the queue client
func (s *Service) Stop(ctx context.Context) error {
	if err := s.client.Stop(ctx); err != nil {
		return fmt.Errorf("stopping queue client: %w", err)
	}
	s.logger.Info("close scheduler stopped")
	return nil
}

// ScheduleClose arms the close trigger for one cycle at the given time.
// Uniqueness by args means re-arming the same cycle is a no-op rather than a
// second firing.
func (s *Service) ScheduleClose(ctx context.Context, leaderboardID string, cycle int64, at time.Time) error {
	job := CloseCycleJob{
		LeaderboardID: leaderboardID,
		Cycle:         cycle,
	}

	result, err := s.client.Insert(ctx, job, &river.InsertOpts{
		ScheduledAt: at,
		UniqueOpts: river.UniqueOpts{
			ByArgs: true,
		},
	})
	if err != nil {
		return fmt.Errorf("scheduling close job: %w", err)
	}

	s.logger.Info("close job scheduled",
		"leaderboard_id", leaderboardID,
		"cycle", cycle,
		"scheduled_at", at,
		"job_id", result.Job.ID,
	)
	return nil
}

// CancelPending cancels every not-yet-run close job for a leaderboard.
// Re-creating a leaderboard calls this first so a stale schedule from the
// previous definition cannot fire against the new one.
func (s *Service) CancelPending(ctx context.Context, leaderboardID string) error {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM river_job
		WHERE kind = $1
		  AND state IN ('available', 'scheduled', 'retryable')
		  AND args->>'leaderboard_id' = $2
	`, CloseCycleJob{}.Kind(), leaderboardID)
	if err != nil {
		return fmt.Errorf("querying pending close jobs: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scanning job id: %w", err)
		}
		ids = append(ids, id)
	}
	if rows.Err() != nil {
		return fmt.Errorf("querying pending close jobs: %w", rows.Err())
	}

	for _, id := range ids {
		if _, err := s.client.JobCancel(ctx, id); err != nil {
			s.logger.Warn("failed to cancel close job", "job_id", id, "error", err)
			continue
		}
		s.logger.Info("cancelled pending close job", "leaderboard_id", leaderboardID, "job_id", id)
	}
	return nil
}
