package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/suji-games/leaderboard-service/internal/domain"
)

// RankedSet provides the sorted-set ranking operations backing a leaderboard
// cycle. Rank is 1-based and descends by score; members with equal scores
// order by member ID, descending lexicographic, which is Redis's native
// reverse-range order. All mutations rely on the store's per-key atomic
// commands, never on in-process locking.
type RankedSet struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRankedSet creates a ranked-set adapter on an existing client
func NewRankedSet(client *redis.Client, logger *slog.Logger) *RankedSet {
	return &RankedSet{
		client: client,
		logger: logger,
	}
}

func backendErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, domain.ErrBackendUnavailable, err)
}

// UpsertIfAbsent inserts member at initialScore only when not already present.
// Returns true if the member was inserted.
func (s *RankedSet) UpsertIfAbsent(ctx context.Context, key, member string, initialScore int64) (bool, error) {
	added, err := s.client.ZAddNX(ctx, key, redis.Z{
		Score:  float64(initialScore),
		Member: member,
	}).Result()
	if err != nil {
		return false, backendErr("adding member", err)
	}
	return added > 0, nil
}

// Increment adds delta to member's score, creating the member at delta if
// absent. ZINCRBY is atomic per key: concurrent increments from independent
// workers are never lost.
func (s *RankedSet) Increment(ctx context.Context, key, member string, delta int64) (int64, error) {
	newScore, err := s.client.ZIncrBy(ctx, key, float64(delta), member).Result()
	if err != nil {
		return 0, backendErr("incrementing score", err)
	}
	return int64(newScore), nil
}

// TopK returns the k highest-scoring members in descending order.
// k must be within [1, domain.MaxTopK].
func (s *RankedSet) TopK(ctx context.Context, key string, k int) ([]domain.Entry, error) {
	if k < 1 || k > domain.MaxTopK {
		return nil, fmt.Errorf("%w: top-k must be between 1 and %d", domain.ErrInvalidLimit, domain.MaxTopK)
	}

	results, err := s.client.ZRevRangeWithScores(ctx, key, 0, int64(k-1)).Result()
	if err != nil {
		return nil, backendErr("getting top players", err)
	}
	return entriesFromZ(results, 1), nil
}

// RankAndScore returns the member's 1-based rank and score. An absent member
// yields Found=false rather than an error: rank 0 is never a valid rank.
func (s *RankedSet) RankAndScore(ctx context.Context, key, member string) (domain.RankResult, error) {
	pipe := s.client.Pipeline()
	rankCmd := pipe.ZRevRank(ctx, key, member)
	scoreCmd := pipe.ZScore(ctx, key, member)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return domain.RankResult{}, backendErr("getting rank", err)
	}

	rank, err := rankCmd.Result()
	if err == redis.Nil {
		return domain.RankResult{}, nil
	}
	if err != nil {
		return domain.RankResult{}, backendErr("getting rank", err)
	}
	score, err := scoreCmd.Result()
	if err != nil && err != redis.Nil {
		return domain.RankResult{}, backendErr("getting score", err)
	}

	return domain.RankResult{
		Rank:  rank + 1,
		Score: int64(score),
		Found: true,
	}, nil
}

// WindowAround returns the contiguous rank slice of up to 2*radius+1 members
// centered on member, clipped at the set boundaries. An absent member yields
// an empty slice, never an error.
func (s *RankedSet) WindowAround(ctx context.Context, key, member string, radius int) ([]domain.Entry, error) {
	if radius < 0 || 2*radius+1 > domain.MaxTopK {
		return nil, fmt.Errorf("%w: window radius out of range", domain.ErrInvalidLimit)
	}

	res, err := s.RankAndScore(ctx, key, member)
	if err != nil {
		return nil, err
	}
	if !res.Found {
		return []domain.Entry{}, nil
	}

	// Rank is 1-based, range offsets are 0-based.
	start := res.Rank - int64(radius) - 1
	if start < 0 {
		start = 0
	}
	end := res.Rank + int64(radius) - 1

	results, err := s.client.ZRevRangeWithScores(ctx, key, start, end).Result()
	if err != nil {
		return nil, backendErr("getting window", err)
	}
	return entriesFromZ(results, start+1), nil
}

// RangeByRank returns members whose rank falls within [fromRank, toRank],
// both 1-based and inclusive.
func (s *RankedSet) RangeByRank(ctx context.Context, key string, fromRank, toRank int64) ([]domain.Entry, error) {
	if fromRank < 1 || toRank < fromRank {
		return nil, fmt.Errorf("%w: rank range [%d, %d]", domain.ErrInvalidLimit, fromRank, toRank)
	}

	results, err := s.client.ZRevRangeWithScores(ctx, key, fromRank-1, toRank-1).Result()
	if err != nil {
		return nil, backendErr("getting rank range", err)
	}
	return entriesFromZ(results, fromRank), nil
}

// AllMembersDesc returns the full ranked sequence, used at archive time
func (s *RankedSet) AllMembersDesc(ctx context.Context, key string) ([]domain.Entry, error) {
	results, err := s.client.ZRevRangeWithScores(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, backendErr("getting all members", err)
	}
	return entriesFromZ(results, 1), nil
}

// Count returns the number of members in the set
func (s *RankedSet) Count(ctx context.Context, key string) (int64, error) {
	count, err := s.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, backendErr("counting members", err)
	}
	return count, nil
}

// Freeze atomically renames the live set to closingKey so payout and archive
// read a point-in-time-consistent snapshot while new increments accrue into
// a fresh live set. A missing live key means either an empty cycle or a
// retried close whose rename already happened; both are fine.
func (s *RankedSet) Freeze(ctx context.Context, liveKey, closingKey string) error {
	err := s.client.Rename(ctx, liveKey, closingKey).Err()
	if err == nil {
		return nil
	}
	if isNoSuchKey(err) {
		return nil
	}
	return backendErr("freezing set", err)
}

// Clear removes the entire set
func (s *RankedSet) Clear(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return backendErr("clearing set", err)
	}
	return nil
}

// isNoSuchKey detects the RENAME reply for a missing source key. Matched by
// substring because servers and proxies differ in how they prefix the error.
func isNoSuchKey(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such key")
}

func entriesFromZ(results []redis.Z, firstRank int64) []domain.Entry {
	entries := make([]domain.Entry, len(results))
	for i, result := range results {
		entries[i] = domain.Entry{
			Rank:     firstRank + int64(i),
			PlayerID: result.Member.(string),
			Score:    int64(result.Score),
		}
	}
	return entries
}
