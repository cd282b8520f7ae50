package domain

import "errors"

// Domain errors
var (
	ErrInvalidLimit        = errors.New("limit out of allowed range")
	ErrBackendUnavailable  = errors.New("ranking backend unavailable")
	ErrPlayerNotFound      = errors.New("player not found in leaderboard")
	ErrLeaderboardNotFound = errors.New("leaderboard not found")
	ErrLeaderboardExists   = errors.New("leaderboard already exists")
	ErrInvalidLeaderboard  = errors.New("invalid leaderboard configuration")
	ErrInvalidRewardTier   = errors.New("reward tier from_rank must be between 1 and to_rank")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrInternalError       = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrPlayerNotFound) || errors.Is(err, ErrLeaderboardNotFound)
}
