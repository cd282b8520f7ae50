package domain

// PlayerProfile is the small cached projection used to enrich ranking rows
// without per-row relational lookups.
type PlayerProfile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
	Avatar      int    `json:"avatar,omitempty"`
	Username    string `json:"username"`
}

// AllTimeScore is a player's cumulative score row. It outlives any single
// leaderboard cycle and is incremented on every score event regardless of
// which leaderboards are open.
type AllTimeScore struct {
	PlayerID string `json:"player_id"`
	Score    int64  `json:"score"`
}
