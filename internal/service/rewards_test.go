package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suji-games/leaderboard-service/internal/domain"
	"github.com/suji-games/leaderboard-service/internal/metrics"
)

func newTestDistributor(t *testing.T) (*RewardDistributor, *fakeRankedSet, *fakeWallet) {
	t.Helper()
	ranked := newFakeRankedSet()
	wallet := newFakeWallet()
	d := NewRewardDistributor(ranked, wallet, metrics.NewNop(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	return d, ranked, wallet
}

func seedFrozen(t *testing.T, ranked *fakeRankedSet, key string, count int64) {
	t.Helper()
	for i := int64(1); i <= count; i++ {
		// p1 ends up at rank 1
		_, err := ranked.Increment(context.Background(), key, memberID(i), 1000-i)
		require.NoError(t, err)
	}
}

func memberID(i int64) string {
	return string(rune('a'+i-1)) + "-player"
}

func TestDistributeTiers(t *testing.T) {
	d, ranked, wallet := newTestDistributor(t)
	key := "LEADERBOARD:CUP:CLOSING:1"
	seedFrozen(t, ranked, key, 5)

	d.Distribute(context.Background(), "cup", key, []domain.RewardTier{
		{FromRank: 1, ToRank: 1, RewardID: "champion"},
		{FromRank: 2, ToRank: 4, RewardID: "silver"},
	})

	assert.ElementsMatch(t, []grant{
		{memberID(1), "champion"},
		{memberID(2), "silver"},
		{memberID(3), "silver"},
		{memberID(4), "silver"},
	}, wallet.rewards)
}

func TestDistributeOverlappingTiers(t *testing.T) {
	d, ranked, wallet := newTestDistributor(t)
	key := "LEADERBOARD:CUP:CLOSING:1"
	seedFrozen(t, ranked, key, 3)

	// A member in two ranges receives both rewards
	d.Distribute(context.Background(), "cup", key, []domain.RewardTier{
		{FromRank: 1, ToRank: 3, RewardID: "top3"},
		{FromRank: 1, ToRank: 1, RewardID: "champion"},
	})

	assert.ElementsMatch(t, []grant{
		{memberID(1), "top3"},
		{memberID(2), "top3"},
		{memberID(3), "top3"},
		{memberID(1), "champion"},
	}, wallet.rewards)
}

func TestDistributeTierPastEnd(t *testing.T) {
	d, ranked, wallet := newTestDistributor(t)
	key := "LEADERBOARD:CUP:CLOSING:1"
	seedFrozen(t, ranked, key, 2)

	// Only the members that exist in range get paid
	d.Distribute(context.Background(), "cup", key, []domain.RewardTier{
		{FromRank: 1, ToRank: 10, RewardID: "gold"},
	})

	assert.Len(t, wallet.rewards, 2)
}

func TestDistributeGrantFailureIsolated(t *testing.T) {
	d, ranked, wallet := newTestDistributor(t)
	key := "LEADERBOARD:CUP:CLOSING:1"
	seedFrozen(t, ranked, key, 3)

	wallet.failFor[memberID(2)] = errors.New("wallet down")

	d.Distribute(context.Background(), "cup", key, []domain.RewardTier{
		{FromRank: 1, ToRank: 3, RewardID: "gold"},
	})

	// The failed grant was skipped; everyone else got theirs
	assert.ElementsMatch(t, []grant{
		{memberID(1), "gold"},
		{memberID(3), "gold"},
	}, wallet.rewards)
}

func TestDistributeRangeFailureSkipsTier(t *testing.T) {
	d, ranked, wallet := newTestDistributor(t)
	key := "LEADERBOARD:CUP:CLOSING:1"
	seedFrozen(t, ranked, key, 3)

	ranked.failOn["range"] = errors.New("backend down")

	d.Distribute(context.Background(), "cup", key, []domain.RewardTier{
		{FromRank: 1, ToRank: 3, RewardID: "gold"},
	})

	assert.Empty(t, wallet.rewards)
}
