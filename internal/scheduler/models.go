package scheduler

// CloseCycleJob is the one-shot job that closes a leaderboard cycle at its
// scheduled end time. Cycle pins the job to the cycle it was armed for, so a
// stale firing after the board re-arms is recognized and ignored.
type CloseCycleJob struct {
	LeaderboardID string `json:"leaderboard_id"`
	Cycle         int64  `json:"cycle"`
}

// Kind returns the job type identifier for River
func (CloseCycleJob) Kind() string { return "leaderboard_close" }
