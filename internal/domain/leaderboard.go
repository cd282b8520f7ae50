package domain

import (
	"fmt"
	"strings"
	"time"
)

// MaxTopK is the largest number of entries a top-K query may request.
const MaxTopK = 1000

// CycleState represents where a leaderboard is in its open-to-archived lifecycle
type CycleState string

const (
	CycleStateOpen     CycleState = "open"
	CycleStateClosing  CycleState = "closing"
	CycleStateArchived CycleState = "archived"
)

// RewardTier maps a rank range to a reward package. Tiers may overlap: a
// member whose rank falls in several tiers receives every matching reward.
type RewardTier struct {
	FromRank int64  `json:"from_rank"`
	ToRank   int64  `json:"to_rank"`
	RewardID string `json:"reward_id"`
}

// Validate checks the rank-range invariant
func (t RewardTier) Validate() error {
	if t.FromRank < 1 || t.FromRank > t.ToRank {
		return ErrInvalidRewardTier
	}
	return nil
}

// Leaderboard is a named leaderboard definition. One definition owns a
// succession of cycles; each cycle has its own ranked set under Key().
type Leaderboard struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	State     CycleState     `json:"state"`
	Cycle     int64          `json:"cycle"`
	StartTime time.Time      `json:"start_time"`
	Duration  *time.Duration `json:"duration,omitempty"`
	Tiers     []RewardTier   `json:"tiers,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Key returns the ranked-set key for the live cycle, derived from the name
// the same way for every cycle: LEADERBOARD:<NAME_UPPER_UNDERSCORED>.
func (l *Leaderboard) Key() string {
	return fmt.Sprintf("LEADERBOARD:%s", strings.ToUpper(strings.ReplaceAll(l.Name, " ", "_")))
}

// ClosingKey returns the frozen-set key used while a cycle is being closed
func (l *Leaderboard) ClosingKey(cycle int64) string {
	return fmt.Sprintf("%s:CLOSING:%d", l.Key(), cycle)
}

// CloseTime returns the scheduled close time for the current cycle, or false
// when the leaderboard is infinite and never auto-closes.
func (l *Leaderboard) CloseTime() (time.Time, bool) {
	if l.Duration == nil {
		return time.Time{}, false
	}
	return l.StartTime.Add(*l.Duration), true
}

// TimeRemaining reports how long until the current cycle closes, or false for
// infinite leaderboards.
func (l *Leaderboard) TimeRemaining(now time.Time) (time.Duration, bool) {
	closeAt, ok := l.CloseTime()
	if !ok {
		return 0, false
	}
	return closeAt.Sub(now), true
}

// Accepting reports whether the leaderboard takes score increments right now
func (l *Leaderboard) Accepting(now time.Time) bool {
	return l.State == CycleStateOpen && !l.StartTime.After(now)
}

// Entry is a single ranked row. Rank is 1-based.
type Entry struct {
	Rank     int64  `json:"rank"`
	PlayerID string `json:"player_id"`
	Score    int64  `json:"score"`
}

// RankedRow is an archive/view row enriched with the player's cached profile
type RankedRow struct {
	Rank    int64          `json:"rank"`
	Score   int64          `json:"score"`
	Profile *PlayerProfile `json:"profile,omitempty"`

	PlayerID string `json:"player_id"`
}

// RankResult is a player's position in a leaderboard. Found distinguishes a
// genuinely absent member from one ranked at any position.
type RankResult struct {
	Rank  int64 `json:"rank"`
	Score int64 `json:"score"`
	Found bool  `json:"found"`
}

// ArchiveRecord is a write-once snapshot of a closed cycle's final standings
type ArchiveRecord struct {
	LeaderboardID string      `json:"leaderboard_id"`
	Cycle         int64       `json:"cycle"`
	Name          string      `json:"name"`
	Key           string      `json:"key"`
	ArchiveTime   time.Time   `json:"archive_time"`
	Standings     []RankedRow `json:"standings"`
}

// View is the composite read served to clients for a single leaderboard
type View struct {
	Leaderboard   *Leaderboard `json:"leaderboard"`
	TopPlayers    []RankedRow  `json:"top_players"`
	Surrounding   []RankedRow  `json:"surrounding_players"`
	PlayerRank    RankResult   `json:"player_rank"`
	TimeRemaining *int64       `json:"time_remaining_seconds,omitempty"`
}

// CreateLeaderboardRequest is the admin request to create or re-create a
// leaderboard definition.
type CreateLeaderboardRequest struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Duration *time.Duration `json:"duration,omitempty"`
	Tiers    []RewardTier   `json:"tiers,omitempty"`
}

// Validate checks the request fields and every tier's rank range
func (r *CreateLeaderboardRequest) Validate() error {
	if r.ID == "" || r.Name == "" {
		return ErrInvalidLeaderboard
	}
	for _, tier := range r.Tiers {
		if err := tier.Validate(); err != nil {
			return err
		}
	}
	return nil
}
