package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/suji-games/leaderboard-service/internal/config"
	"github.com/suji-games/leaderboard-service/internal/domain"
	"github.com/suji-games/leaderboard-service/internal/metrics"
)

// RankedSetStore is the ranked-set backend used for live and frozen cycles
type RankedSetStore interface {
	UpsertIfAbsent(ctx context.Context, key, member string, initialScore int64) (bool, error)
	Increment(ctx context.Context, key, member string, delta int64) (int64, error)
	TopK(ctx context.Context, key string, k int) ([]domain.Entry, error)
	RankAndScore(ctx context.Context, key, member string) (domain.RankResult, error)
	WindowAround(ctx context.Context, key, member string, radius int) ([]domain.Entry, error)
	RangeByRank(ctx context.Context, key string, fromRank, toRank int64) ([]domain.Entry, error)
	AllMembersDesc(ctx context.Context, key string) ([]domain.Entry, error)
	Count(ctx context.Context, key string) (int64, error)
	Freeze(ctx context.Context, liveKey, closingKey string) error
	Clear(ctx context.Context, key string) error
}

// ProfileDirectory resolves cached player profiles for row enrichment
type ProfileDirectory interface {
	Put(ctx context.Context, profile domain.PlayerProfile) error
	Get(ctx context.Context, playerID string) (*domain.PlayerProfile, error)
	GetBatch(ctx context.Context, playerIDs []string) (map[string]*domain.PlayerProfile, error)
}

// Repository is the durable store for definitions, archives and totals
type Repository interface {
	CreateLeaderboard(ctx context.Context, lb domain.Leaderboard) error
	GetLeaderboard(ctx context.Context, leaderboardID string) (*domain.Leaderboard, error)
	ListLeaderboards(ctx context.Context) ([]domain.Leaderboard, error)
	ListOpen(ctx context.Context) ([]domain.Leaderboard, error)
	DeleteLeaderboard(ctx context.Context, leaderboardID string) error
	BeginClose(ctx context.Context, leaderboardID string, cycle int64) (bool, error)
	MarkArchived(ctx context.Context, leaderboardID string, cycle int64) error
	Reopen(ctx context.Context, leaderboardID string) (*domain.Leaderboard, error)
	WriteArchive(ctx context.Context, record domain.ArchiveRecord) (bool, error)
	GetArchive(ctx context.Context, leaderboardID string, cycle int64) (*domain.ArchiveRecord, error)
	AddAllTimeScore(ctx context.Context, playerID string, delta int64) (int64, error)
	GetAllTimeScore(ctx context.Context, playerID string) (*domain.AllTimeScore, error)
	ClearBackup(ctx context.Context, leaderboardID string) error
}

// CloseScheduler arms and disarms the durable close trigger for a cycle
type CloseScheduler interface {
	ScheduleClose(ctx context.Context, leaderboardID string, cycle int64, at time.Time) error
	CancelPending(ctx context.Context, leaderboardID string) error
}

// WalletClient grants rewards and stat changes to players
type WalletClient interface {
	GrantReward(ctx context.Context, playerID, rewardID string) error
	AddXP(ctx context.Context, playerID string, amount int64) error
	AddCups(ctx context.Context, playerID string, amount int64) error
}

// EventDeduper filters already-seen match events
type EventDeduper interface {
	SeenAndRecord(ctx context.Context, eventID string) (bool, error)
	Unrecord(ctx context.Context, eventID string)
}

// Broadcaster pushes live updates to subscribed clients
type Broadcaster interface {
	BroadcastLeaderboardUpdate(leaderboardID string, entries []domain.Entry, totalPlayers int64)
	BroadcastPlayerUpdate(leaderboardID string, entry domain.Entry)
	BroadcastCycleClosed(leaderboardID string, cycle int64)
}

// LeaderboardService provides business logic for leaderboard operations
type LeaderboardService struct {
	ranked    RankedSetStore
	directory ProfileDirectory
	repo      Repository
	scheduler CloseScheduler
	wallet    WalletClient
	dedup     EventDeduper
	rewards   *RewardDistributor
	match     *MatchConfig
	hub       Broadcaster
	config    *config.LeaderboardConfig
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewLeaderboardService creates a new leaderboard service
func NewLeaderboardService(
	ranked RankedSetStore,
	directory ProfileDirectory,
	repo Repository,
	scheduler CloseScheduler,
	wallet WalletClient,
	dedup EventDeduper,
	match *MatchConfig,
	cfg *config.LeaderboardConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) *LeaderboardService {
	return &LeaderboardService{
		ranked:    ranked,
		directory: directory,
		repo:      repo,
		scheduler: scheduler,
		wallet:    wallet,
		dedup:     dedup,
		rewards:   NewRewardDistributor(ranked, wallet, m, logger),
		match:     match,
		config:    cfg,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// SetHub attaches the broadcast hub. Updates are dropped until one is set.
func (s *LeaderboardService) SetHub(hub Broadcaster) {
	s.hub = hub
}

// CreateLeaderboard creates a new leaderboard definition and, for finite
// durations, arms the close trigger for its first cycle.
func (s *LeaderboardService) CreateLeaderboard(ctx context.Context, req domain.CreateLeaderboardRequest) (*domain.Leaderboard, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// A board deleted and re-created under the same ID restarts at cycle 1,
	// so a close job left over from the previous definition would pass the
	// cycle check. Clear any pending trigger before the new one is armed.
	if err := s.scheduler.CancelPending(ctx, req.ID); err != nil {
		return nil, fmt.Errorf("cancelling stale close trigger for %s: %w", req.ID, err)
	}

	now := s.now()
	lb := domain.Leaderboard{
		ID:        req.ID,
		Name:      req.Name,
		State:     domain.CycleStateOpen,
		Cycle:     1,
		StartTime: now,
		Duration:  req.Duration,
		Tiers:     req.Tiers,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.CreateLeaderboard(ctx, lb); err != nil {
		return nil, fmt.Errorf("creating leaderboard in postgres: %w", err)
	}

	if closeAt, ok := lb.CloseTime(); ok {
		if err := s.scheduler.ScheduleClose(ctx, lb.ID, lb.Cycle, closeAt); err != nil {
			return nil, fmt.Errorf("scheduling close for %s: %w", lb.ID, err)
		}
	}

	s.logger.Info("leaderboard created",
		"leaderboard_id", lb.ID,
		"name", lb.Name,
		"finite", lb.Duration != nil,
	)
	return &lb, nil
}

// GetLeaderboard returns a leaderboard definition by ID
func (s *LeaderboardService) GetLeaderboard(ctx context.Context, leaderboardID string) (*domain.Leaderboard, error) {
	return s.repo.GetLeaderboard(ctx, leaderboardID)
}

// ListLeaderboards returns all leaderboard definitions
func (s *LeaderboardService) ListLeaderboards(ctx context.Context) ([]domain.Leaderboard, error) {
	return s.repo.ListLeaderboards(ctx)
}

// ListOpen returns the leaderboards currently in the open state
func (s *LeaderboardService) ListOpen(ctx context.Context) ([]domain.Leaderboard, error) {
	return s.repo.ListOpen(ctx)
}

// DeleteLeaderboard removes a definition, its live ranked set and any
// pending close trigger.
func (s *LeaderboardService) DeleteLeaderboard(ctx context.Context, leaderboardID string) error {
	lb, err := s.repo.GetLeaderboard(ctx, leaderboardID)
	if err != nil {
		return err
	}

	if err := s.scheduler.CancelPending(ctx, leaderboardID); err != nil {
		s.logger.Warn("failed to cancel pending close jobs", "leaderboard_id", leaderboardID, "error", err)
	}

	if err := s.ranked.Clear(ctx, lb.Key()); err != nil {
		s.logger.Warn("failed to clear ranked set", "key", lb.Key(), "error", err)
	}

	if err := s.repo.DeleteLeaderboard(ctx, leaderboardID); err != nil {
		return fmt.Errorf("deleting leaderboard from postgres: %w", err)
	}
	return nil
}

// UpsertProfile stores a player's cached profile in the directory
func (s *LeaderboardService) UpsertProfile(ctx context.Context, profile domain.PlayerProfile) error {
	if profile.ID == "" || profile.Username == "" {
		return fmt.Errorf("%w: profile requires id and username", domain.ErrInvalidRequest)
	}
	return s.directory.Put(ctx, profile)
}

// AddScore credits the player's all-time total and fans the delta out to
// every leaderboard currently accepting scores. Failures on one board do not
// block the others; all failures are joined into the returned error.
func (s *LeaderboardService) AddScore(ctx context.Context, playerID string, delta int64) error {
	if playerID == "" {
		return fmt.Errorf("%w: missing player_id", domain.ErrInvalidRequest)
	}

	var errs []error
	if _, err := s.repo.AddAllTimeScore(ctx, playerID, delta); err != nil {
		errs = append(errs, fmt.Errorf("updating all-time score: %w", err))
	}

	boards, err := s.repo.ListOpen(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("listing open leaderboards: %w", err))
		return errors.Join(errs...)
	}

	now := s.now()
	for i := range boards {
		lb := &boards[i]
		if !lb.Accepting(now) {
			continue
		}

		score, err := s.ranked.Increment(ctx, lb.Key(), playerID, delta)
		if err != nil {
			s.metrics.ScoreFailures.Inc()
			errs = append(errs, fmt.Errorf("incrementing score on %s: %w", lb.ID, err))
			continue
		}
		s.metrics.ScoresApplied.Inc()

		s.broadcastScore(ctx, lb, playerID, score)
	}

	return errors.Join(errs...)
}

// broadcastScore pushes the player's new position to hub subscribers
func (s *LeaderboardService) broadcastScore(ctx context.Context, lb *domain.Leaderboard, playerID string, score int64) {
	if s.hub == nil {
		return
	}

	result, err := s.ranked.RankAndScore(ctx, lb.Key(), playerID)
	if err != nil || !result.Found {
		return
	}
	s.hub.BroadcastPlayerUpdate(lb.ID, domain.Entry{
		Rank:     result.Rank,
		PlayerID: playerID,
		Score:    score,
	})
}

// GetView assembles the composite read for one leaderboard: the top block,
// the window around the requesting player and the player's own rank. Only
// open leaderboards are visible; anything else reads as not found.
func (s *LeaderboardService) GetView(ctx context.Context, leaderboardID, playerID string) (*domain.View, error) {
	start := s.now()
	defer func() {
		s.metrics.ViewLatency.Observe(time.Since(start).Seconds())
	}()

	lb, err := s.repo.GetLeaderboard(ctx, leaderboardID)
	if err != nil {
		return nil, err
	}
	if lb.State != domain.CycleStateOpen {
		return nil, domain.ErrLeaderboardNotFound
	}

	key := lb.Key()
	top, err := s.ranked.TopK(ctx, key, s.config.TopLimit)
	if err != nil {
		return nil, fmt.Errorf("reading top players: %w", err)
	}

	view := &domain.View{Leaderboard: lb}
	if remaining, ok := lb.TimeRemaining(start); ok {
		secs := int64(remaining.Seconds())
		if secs < 0 {
			secs = 0
		}
		view.TimeRemaining = &secs
	}

	var window []domain.Entry
	if playerID != "" {
		rank, err := s.ranked.RankAndScore(ctx, key, playerID)
		if err != nil {
			return nil, fmt.Errorf("reading player rank: %w", err)
		}
		view.PlayerRank = rank

		if rank.Found {
			window, err = s.ranked.WindowAround(ctx, key, playerID, s.config.WindowRadius)
			if err != nil {
				return nil, fmt.Errorf("reading surrounding players: %w", err)
			}
		}
	}

	rows, err := s.enrich(ctx, append(append([]domain.Entry{}, top...), window...))
	if err != nil {
		return nil, err
	}
	view.TopPlayers = rows[:len(top)]
	view.Surrounding = rows[len(top):]

	return view, nil
}

// GetArchive returns the archived standings of a past cycle
func (s *LeaderboardService) GetArchive(ctx context.Context, leaderboardID string, cycle int64) (*domain.ArchiveRecord, error) {
	return s.repo.GetArchive(ctx, leaderboardID, cycle)
}

// GetAllTimeScore returns a player's cumulative score across all cycles
func (s *LeaderboardService) GetAllTimeScore(ctx context.Context, playerID string) (*domain.AllTimeScore, error) {
	return s.repo.GetAllTimeScore(ctx, playerID)
}

// enrich attaches directory profiles to ranked entries in one batch read.
// Players with no cached profile keep a nil Profile rather than failing the
// whole read.
func (s *LeaderboardService) enrich(ctx context.Context, entries []domain.Entry) ([]domain.RankedRow, error) {
	rows := make([]domain.RankedRow, len(entries))
	if len(entries) == 0 {
		return rows, nil
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.PlayerID
	}

	profiles, err := s.directory.GetBatch(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolving player profiles: %w", err)
	}

	for i, e := range entries {
		rows[i] = domain.RankedRow{
			Rank:     e.Rank,
			Score:    e.Score,
			PlayerID: e.PlayerID,
			Profile:  profiles[e.PlayerID],
		}
	}
	return rows, nil
}

// CloseCycle runs the close sequence for one cycle: freeze the live set,
// pay out reward tiers, archive the final standings, clear the frozen set
// and re-open the next cycle. The cycle number pins the trigger to the
// cycle it was armed for, so a late or duplicate trigger is a no-op.
func (s *LeaderboardService) CloseCycle(ctx context.Context, leaderboardID string, cycle int64) error {
	lb, err := s.repo.GetLeaderboard(ctx, leaderboardID)
	if err != nil {
		if errors.Is(err, domain.ErrLeaderboardNotFound) {
			s.logger.Warn("close trigger for deleted leaderboard", "leaderboard_id", leaderboardID)
			return nil
		}
		return fmt.Errorf("getting leaderboard: %w", err)
	}

	ok, err := s.repo.BeginClose(ctx, leaderboardID, cycle)
	if err != nil {
		return fmt.Errorf("transitioning to closing: %w", err)
	}
	if !ok {
		s.logger.Info("stale close trigger ignored",
			"leaderboard_id", leaderboardID,
			"trigger_cycle", cycle,
			"current_cycle", lb.Cycle,
		)
		return nil
	}

	closingKey := lb.ClosingKey(cycle)
	if err := s.ranked.Freeze(ctx, lb.Key(), closingKey); err != nil {
		return fmt.Errorf("freezing ranked set: %w", err)
	}

	entries, err := s.ranked.AllMembersDesc(ctx, closingKey)
	if err != nil {
		return fmt.Errorf("reading final standings: %w", err)
	}

	standings, err := s.enrich(ctx, entries)
	if err != nil {
		return err
	}

	s.rewards.Distribute(ctx, leaderboardID, closingKey, lb.Tiers)

	record := domain.ArchiveRecord{
		LeaderboardID: leaderboardID,
		Cycle:         cycle,
		Name:          lb.Name,
		Key:           lb.Key(),
		ArchiveTime:   s.now(),
		Standings:     standings,
	}
	inserted, err := s.repo.WriteArchive(ctx, record)
	if err != nil {
		// Leave the cycle in closing so a retry can finish the sequence.
		return fmt.Errorf("writing archive: %w", err)
	}
	if !inserted {
		s.logger.Info("archive already written, resuming close",
			"leaderboard_id", leaderboardID,
			"cycle", cycle,
		)
	}

	if err := s.repo.MarkArchived(ctx, leaderboardID, cycle); err != nil {
		return fmt.Errorf("marking cycle archived: %w", err)
	}

	if err := s.ranked.Clear(ctx, closingKey); err != nil {
		s.logger.Warn("failed to clear frozen set", "key", closingKey, "error", err)
	}
	if err := s.repo.ClearBackup(ctx, leaderboardID); err != nil {
		s.logger.Warn("failed to clear score backup", "leaderboard_id", leaderboardID, "error", err)
	}

	reopened, err := s.repo.Reopen(ctx, leaderboardID)
	if err != nil {
		return fmt.Errorf("reopening next cycle: %w", err)
	}
	if closeAt, ok := reopened.CloseTime(); ok {
		if err := s.scheduler.ScheduleClose(ctx, leaderboardID, reopened.Cycle, closeAt); err != nil {
			return fmt.Errorf("scheduling next close: %w", err)
		}
	}

	s.metrics.CyclesClosed.Inc()
	if s.hub != nil {
		s.hub.BroadcastCycleClosed(leaderboardID, cycle)
	}

	s.logger.Info("cycle closed",
		"leaderboard_id", leaderboardID,
		"cycle", cycle,
		"players", len(standings),
		"next_cycle", reopened.Cycle,
	)
	return nil
}

// HandleMatchEvent processes one match event from the intake stream. The
// dedup filter runs before any business handling; a duplicate event_id is a
// logged no-op. If processing fails after the marker was placed, the marker
// is removed so redelivery gets a fresh attempt.
func (s *LeaderboardService) HandleMatchEvent(ctx context.Context, event domain.MatchEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}

	duplicate, err := s.dedup.SeenAndRecord(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("checking event dedup marker: %w", err)
	}
	if duplicate {
		s.metrics.DuplicateEvents.Inc()
		s.logger.Info("duplicate event discarded", "event_id", event.EventID, "type", event.Type)
		return nil
	}

	switch event.Type {
	case domain.EventTypeMatchStarted:
		s.logger.Info("match started", "event_id", event.EventID, "match_id", event.MatchID)

	case domain.EventTypeMatchFinished:
		if err := s.checkoutMatch(ctx, event); err != nil {
			s.dedup.Unrecord(ctx, event.EventID)
			return fmt.Errorf("checking out match %s: %w", event.MatchID, err)
		}
	}

	s.metrics.EventsProcessed.Inc()
	return nil
}
