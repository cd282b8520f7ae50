package service

import (
	"sync"

	"github.com/suji-games/leaderboard-service/internal/domain"
)

// MatchConfig holds the live match-settings snapshot. Checkout reads the
// snapshot once per player, so a Refresh mid-match never mixes old and new
// amounts within a single grant.
type MatchConfig struct {
	mu       sync.RWMutex
	settings domain.MatchSettings
}

// NewMatchConfig creates a match config with initial settings
func NewMatchConfig(settings domain.MatchSettings) *MatchConfig {
	return &MatchConfig{settings: settings}
}

// Snapshot returns the current settings by value
func (c *MatchConfig) Snapshot() domain.MatchSettings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

// Refresh swaps in new settings
func (c *MatchConfig) Refresh(settings domain.MatchSettings) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings = settings
}
