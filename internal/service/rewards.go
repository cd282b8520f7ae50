package service

import (
	"context"
	"log/slog"

	"github.com/suji-games/leaderboard-service/internal/domain"
	"github.com/suji-games/leaderboard-service/internal/metrics"
)

// RewardDistributor pays out reward tiers against a frozen ranked set.
// Tiers are independent: overlapping ranges each grant their own reward, and
// one player's failed grant never blocks the rest of the payout.
type RewardDistributor struct {
	ranked  RankedSetStore
	wallet  WalletClient
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewRewardDistributor creates a reward distributor
func NewRewardDistributor(ranked RankedSetStore, wallet WalletClient, m *metrics.Metrics, logger *slog.Logger) *RewardDistributor {
	return &RewardDistributor{
		ranked:  ranked,
		wallet:  wallet,
		metrics: m,
		logger:  logger,
	}
}

// Distribute grants every tier's reward to the members ranked inside it.
// Tiers past the end of the standings pay out to whoever exists in range;
// grant failures are logged and counted, not propagated, so a close retry
// never depends on the wallet being healthy.
func (d *RewardDistributor) Distribute(ctx context.Context, leaderboardID, closingKey string, tiers []domain.RewardTier) {
	for _, tier := range tiers {
		entries, err := d.ranked.RangeByRank(ctx, closingKey, tier.FromRank, tier.ToRank)
		if err != nil {
			d.logger.Error("failed to read tier range",
				"leaderboard_id", leaderboardID,
				"from_rank", tier.FromRank,
				"to_rank", tier.ToRank,
				"error", err,
			)
			continue
		}

		for _, entry := range entries {
			if err := d.wallet.GrantReward(ctx, entry.PlayerID, tier.RewardID); err != nil {
				d.metrics.PayoutsSkipped.Inc()
				d.logger.Warn("reward grant failed",
					"leaderboard_id", leaderboardID,
					"player_id", entry.PlayerID,
					"reward_id", tier.RewardID,
					"rank", entry.Rank,
					"error", err,
				)
				continue
			}
			d.metrics.PayoutsGranted.Inc()
		}
	}
}
