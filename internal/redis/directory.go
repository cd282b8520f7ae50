package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/suji-games/leaderboard-service/internal/domain"
)

// directoryKey is the hash holding player ID -> JSON profile projections
const directoryKey = "players:directory"

// Directory is the player profile lookup used to enrich raw ranking rows
// without per-row relational queries. The player aggregate populates it on
// save; this service reads it in batches.
type Directory struct {
	client *redis.Client
	logger *slog.Logger
}

// NewDirectory creates a player directory adapter on an existing client
func NewDirectory(client *redis.Client, logger *slog.Logger) *Directory {
	return &Directory{
		client: client,
		logger: logger,
	}
}

// Put stores a player's profile projection
func (d *Directory) Put(ctx context.Context, profile domain.PlayerProfile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("marshaling profile: %w", err)
	}
	if err := d.client.HSet(ctx, directoryKey, profile.ID, data).Err(); err != nil {
		return backendErr("storing profile", err)
	}
	return nil
}

// Get returns a single profile, or ErrPlayerNotFound when absent
func (d *Directory) Get(ctx context.Context, playerID string) (*domain.PlayerProfile, error) {
	data, err := d.client.HGet(ctx, directoryKey, playerID).Result()
	if err == redis.Nil {
		return nil, domain.ErrPlayerNotFound
	}
	if err != nil {
		return nil, backendErr("getting profile", err)
	}

	var profile domain.PlayerProfile
	if err := json.Unmarshal([]byte(data), &profile); err != nil {
		return nil, fmt.Errorf("unmarshaling profile: %w", err)
	}
	return &profile, nil
}

// GetBatch resolves profiles for the given player IDs in one round trip.
// Missing or unparseable profiles map to nil entries; the caller decides
// whether to skip or keep the bare ID.
func (d *Directory) GetBatch(ctx context.Context, playerIDs []string) (map[string]*domain.PlayerProfile, error) {
	profiles := make(map[string]*domain.PlayerProfile, len(playerIDs))
	if len(playerIDs) == 0 {
		return profiles, nil
	}

	values, err := d.client.HMGet(ctx, directoryKey, playerIDs...).Result()
	if err != nil {
		return nil, backendErr("getting profiles", err)
	}

	for i, value := range values {
		id := playerIDs[i]
		raw, ok := value.(string)
		if !ok {
			profiles[id] = nil
			continue
		}
		var profile domain.PlayerProfile
		if err := json.Unmarshal([]byte(raw), &profile); err != nil {
			d.logger.Warn("skipping unparseable profile", "player_id", id, "error", err)
			profiles[id] = nil
			continue
		}
		profiles[id] = &profile
	}
	return profiles, nil
}
