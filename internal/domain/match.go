package domain

import "fmt"

// Outcome is a player's result in a finished match
type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLose Outcome = "lose"
)

// Valid reports whether the outcome is a known variant
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeWin, OutcomeLose:
		return true
	}
	return false
}

// Match event types delivered by the match producer
const (
	EventTypeMatchStarted  = "match_started"
	EventTypeMatchFinished = "match_finished"
)

// MatchPlayer is one participant's result within a match event
type MatchPlayer struct {
	PlayerID string  `json:"player_id"`
	Outcome  Outcome `json:"outcome,omitempty"`
}

// MatchEvent is the at-least-once event envelope from the match producer.
// EventID drives the dedup filter ahead of any business handling.
type MatchEvent struct {
	EventID string        `json:"event_id"`
	Type    string        `json:"type"`
	MatchID string        `json:"match_id"`
	Players []MatchPlayer `json:"players"`
}

// Validate checks the envelope before it reaches the dedup filter
func (e *MatchEvent) Validate() error {
	if e.EventID == "" {
		return fmt.Errorf("%w: missing event_id", ErrInvalidRequest)
	}
	if e.Type != EventTypeMatchStarted && e.Type != EventTypeMatchFinished {
		return fmt.Errorf("%w: unknown event type %q", ErrInvalidRequest, e.Type)
	}
	return nil
}

// MatchSettings are the per-outcome grant amounts applied at match checkout
type MatchSettings struct {
	WinnerXP     int64  `yaml:"winner_xp" json:"winner_xp"`
	WinnerCup    int64  `yaml:"winner_cup" json:"winner_cup"`
	WinnerScore  int64  `yaml:"winner_score" json:"winner_score"`
	WinnerReward string `yaml:"winner_reward" json:"winner_reward,omitempty"`
	LoserXP      int64  `yaml:"loser_xp" json:"loser_xp"`
	LoserCup     int64  `yaml:"loser_cup" json:"loser_cup"`
	LoserScore   int64  `yaml:"loser_score" json:"loser_score"`
	LoserReward  string `yaml:"loser_reward" json:"loser_reward,omitempty"`
}

// CheckoutResult records what a single player was granted at match checkout
type CheckoutResult struct {
	PlayerID string  `json:"player_id"`
	Outcome  Outcome `json:"outcome"`
	XP       int64   `json:"xp"`
	Cup      int64   `json:"cup"`
	Score    int64   `json:"score"`
	RewardID string  `json:"reward_id,omitempty"`
}
