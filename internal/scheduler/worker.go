package scheduler

import (
	"context"
	"log/slog"

	"github.com/riverqueue/river"
)

// CycleCloser runs the close sequence for a leaderboard cycle. Implemented by
// the leaderboard service; the close must be idempotent because the queue
// retries failed jobs and may fire more than once.
type CycleCloser interface {
	CloseCycle(ctx context.Context, leaderboardID string, cycle int64) error
}

// CloserFunc adapts a plain function to the CycleCloser interface
type CloserFunc func(ctx context.Context, leaderboardID string, cycle int64) error

// CloseCycle calls f
func (f CloserFunc) CloseCycle(ctx context.Context, leaderboardID string, cycle int64) error {
	return f(ctx, leaderboardID, cycle)
}

type closeWorker struct {
	river.WorkerDefaults[CloseCycleJob]
	closer CycleCloser
	logger *slog.Logger
}

func newCloseWorker(closer CycleCloser, logger *slog.Logger) *closeWorker {
	return &closeWorker{
		closer: closer,
		logger: logger,
	}
}

// Work invokes the close sequence. Returning an error hands the job back to
// the queue's retry policy; CloseCycle resumes safely from wherever the
// previous attempt stopped.
func (w *closeWorker) Work(ctx context.Context, job *river.Job[CloseCycleJob]) error {
	w.logger.Info("close trigger fired",
		"leaderboard_id", job.Args.LeaderboardID,
		"cycle", job.Args.Cycle,
		"attempt", job.Attempt,
	)
	return w.closer.CloseCycle(ctx, job.Args.LeaderboardID, job.Args.Cycle)
}
