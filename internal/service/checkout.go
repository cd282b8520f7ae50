package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/suji-games/leaderboard-service/internal/domain"
)

// checkoutMatch settles a finished match: every participant is granted the
// XP, cups, score and optional reward configured for their outcome. Players
// settle independently; all failures are joined into the returned error.
func (s *LeaderboardService) checkoutMatch(ctx context.Context, event domain.MatchEvent) error {
	var errs []error
	for _, player := range event.Players {
		result, err := s.checkoutPlayer(ctx, player)
		if err != nil {
			errs = append(errs, fmt.Errorf("player %s: %w", player.PlayerID, err))
			continue
		}
		s.logger.Info("match checkout applied",
			"match_id", event.MatchID,
			"player_id", result.PlayerID,
			"outcome", result.Outcome,
			"score", result.Score,
		)
	}
	return errors.Join(errs...)
}

// checkoutPlayer applies one participant's outcome grants
func (s *LeaderboardService) checkoutPlayer(ctx context.Context, player domain.MatchPlayer) (domain.CheckoutResult, error) {
	if player.PlayerID == "" {
		return domain.CheckoutResult{}, fmt.Errorf("%w: missing player_id", domain.ErrInvalidRequest)
	}

	settings := s.match.Snapshot()

	result := domain.CheckoutResult{
		PlayerID: player.PlayerID,
		Outcome:  player.Outcome,
	}
	switch player.Outcome {
	case domain.OutcomeWin:
		result.XP = settings.WinnerXP
		result.Cup = settings.WinnerCup
		result.Score = settings.WinnerScore
		result.RewardID = settings.WinnerReward
	case domain.OutcomeLose:
		result.XP = settings.LoserXP
		result.Cup = settings.LoserCup
		result.Score = settings.LoserScore
		result.RewardID = settings.LoserReward
	default:
		return domain.CheckoutResult{}, fmt.Errorf("%w: unknown outcome %q", domain.ErrInvalidRequest, player.Outcome)
	}

	var errs []error
	if result.XP != 0 {
		if err := s.wallet.AddXP(ctx, player.PlayerID, result.XP); err != nil {
			errs = append(errs, fmt.Errorf("granting xp: %w", err))
		}
	}
	if result.Cup != 0 {
		if err := s.wallet.AddCups(ctx, player.PlayerID, result.Cup); err != nil {
			errs = append(errs, fmt.Errorf("granting cups: %w", err))
		}
	}
	if result.RewardID != "" {
		if err := s.wallet.GrantReward(ctx, player.PlayerID, result.RewardID); err != nil {
			errs = append(errs, fmt.Errorf("granting reward: %w", err))
		}
	}
	if result.Score != 0 {
		if err := s.AddScore(ctx, player.PlayerID, result.Score); err != nil {
			errs = append(errs, fmt.Errorf("applying score: %w", err))
		}
	}

	return result, errors.Join(errs...)
}
