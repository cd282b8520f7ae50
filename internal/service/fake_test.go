package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/suji-games/leaderboard-service/internal/domain"
)

// fakeRankedSet is an in-memory ranked set with the backend's ordering:
// score descending, then member descending lexicographic.
type fakeRankedSet struct {
	mu     sync.Mutex
	sets   map[string]map[string]int64
	failOn map[string]error
}

func newFakeRankedSet() *fakeRankedSet {
	return &fakeRankedSet{
		sets:   make(map[string]map[string]int64),
		failOn: make(map[string]error),
	}
}

func (f *fakeRankedSet) set(key string) map[string]int64 {
	if f.sets[key] == nil {
		f.sets[key] = make(map[string]int64)
	}
	return f.sets[key]
}

func (f *fakeRankedSet) sorted(key string) []domain.Entry {
	members := f.sets[key]
	entries := make([]domain.Entry, 0, len(members))
	for member, score := range members {
		entries = append(entries, domain.Entry{PlayerID: member, Score: score})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].PlayerID > entries[j].PlayerID
	})
	for i := range entries {
		entries[i].Rank = int64(i + 1)
	}
	return entries
}

func (f *fakeRankedSet) UpsertIfAbsent(_ context.Context, key, member string, initialScore int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["upsert"]; err != nil {
		return false, err
	}
	if _, ok := f.set(key)[member]; ok {
		return false, nil
	}
	f.set(key)[member] = initialScore
	return true, nil
}

func (f *fakeRankedSet) Increment(_ context.Context, key, member string, delta int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["increment:"+key]; err != nil {
		return 0, err
	}
	if err := f.failOn["increment"]; err != nil {
		return 0, err
	}
	f.set(key)[member] += delta
	return f.set(key)[member], nil
}

func (f *fakeRankedSet) TopK(_ context.Context, key string, k int) ([]domain.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["topk"]; err != nil {
		return nil, err
	}
	entries := f.sorted(key)
	if len(entries) > k {
		entries = entries[:k]
	}
	return entries, nil
}

func (f *fakeRankedSet) RankAndScore(_ context.Context, key, member string) (domain.RankResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["rank"]; err != nil {
		return domain.RankResult{}, err
	}
	for _, e := range f.sorted(key) {
		if e.PlayerID == member {
			return domain.RankResult{Rank: e.Rank, Score: e.Score, Found: true}, nil
		}
	}
	return domain.RankResult{}, nil
}

func (f *fakeRankedSet) WindowAround(_ context.Context, key, member string, radius int) ([]domain.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries := f.sorted(key)
	center := -1
	for i, e := range entries {
		if e.PlayerID == member {
			center = i
			break
		}
	}
	if center < 0 {
		return []domain.Entry{}, nil
	}
	start := center - radius
	if start < 0 {
		start = 0
	}
	end := center + radius + 1
	if end > len(entries) {
		end = len(entries)
	}
	return entries[start:end], nil
}

func (f *fakeRankedSet) RangeByRank(_ context.Context, key string, fromRank, toRank int64) ([]domain.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["range"]; err != nil {
		return nil, err
	}
	entries := f.sorted(key)
	var out []domain.Entry
	for _, e := range entries {
		if e.Rank >= fromRank && e.Rank <= toRank {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeRankedSet) AllMembersDesc(_ context.Context, key string) ([]domain.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["all"]; err != nil {
		return nil, err
	}
	return f.sorted(key), nil
}

func (f *fakeRankedSet) Count(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.sets[key])), nil
}

func (f *fakeRankedSet) Freeze(_ context.Context, liveKey, closingKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["freeze"]; err != nil {
		return err
	}
	if members, ok := f.sets[liveKey]; ok {
		f.sets[closingKey] = members
		delete(f.sets, liveKey)
	}
	return nil
}

func (f *fakeRankedSet) Clear(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sets, key)
	return nil
}

// fakeDirectory stores profiles in a map
type fakeDirectory struct {
	mu       sync.Mutex
	profiles map[string]domain.PlayerProfile
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{profiles: make(map[string]domain.PlayerProfile)}
}

func (f *fakeDirectory) Put(_ context.Context, profile domain.PlayerProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[profile.ID] = profile
	return nil
}

func (f *fakeDirectory) Get(_ context.Context, playerID string) (*domain.PlayerProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	profile, ok := f.profiles[playerID]
	if !ok {
		return nil, domain.ErrPlayerNotFound
	}
	return &profile, nil
}

func (f *fakeDirectory) GetBatch(_ context.Context, playerIDs []string) (map[string]*domain.PlayerProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]*domain.PlayerProfile, len(playerIDs))
	for _, id := range playerIDs {
		if profile, ok := f.profiles[id]; ok {
			p := profile
			out[id] = &p
		} else {
			out[id] = nil
		}
	}
	return out, nil
}

// fakeRepository keeps definitions, archives and totals in memory
type fakeRepository struct {
	mu        sync.Mutex
	boards    map[string]*domain.Leaderboard
	archives  map[string]domain.ArchiveRecord
	totals    map[string]int64
	backups   map[string]map[string]int64
	failOn    map[string]error
	archiveCh []domain.ArchiveRecord
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		boards:   make(map[string]*domain.Leaderboard),
		archives: make(map[string]domain.ArchiveRecord),
		totals:   make(map[string]int64),
		backups:  make(map[string]map[string]int64),
		failOn:   make(map[string]error),
	}
}

func archiveKey(leaderboardID string, cycle int64) string {
	return fmt.Sprintf("%s:%d", leaderboardID, cycle)
}

func (f *fakeRepository) CreateLeaderboard(_ context.Context, lb domain.Leaderboard) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["create"]; err != nil {
		return err
	}
	if _, ok := f.boards[lb.ID]; ok {
		return domain.ErrLeaderboardExists
	}
	copied := lb
	f.boards[lb.ID] = &copied
	return nil
}

func (f *fakeRepository) GetLeaderboard(_ context.Context, leaderboardID string) (*domain.Leaderboard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lb, ok := f.boards[leaderboardID]
	if !ok {
		return nil, domain.ErrLeaderboardNotFound
	}
	copied := *lb
	return &copied, nil
}

func (f *fakeRepository) ListLeaderboards(_ context.Context) ([]domain.Leaderboard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Leaderboard
	for _, lb := range f.boards {
		out = append(out, *lb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRepository) ListOpen(_ context.Context) ([]domain.Leaderboard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["listopen"]; err != nil {
		return nil, err
	}
	var out []domain.Leaderboard
	for _, lb := range f.boards {
		if lb.State == domain.CycleStateOpen {
			out = append(out, *lb)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRepository) DeleteLeaderboard(_ context.Context, leaderboardID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.boards[leaderboardID]; !ok {
		return domain.ErrLeaderboardNotFound
	}
	delete(f.boards, leaderboardID)
	return nil
}

func (f *fakeRepository) BeginClose(_ context.Context, leaderboardID string, cycle int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lb, ok := f.boards[leaderboardID]
	if !ok {
		return false, nil
	}
	if lb.Cycle != cycle {
		return false, nil
	}
	if lb.State != domain.CycleStateOpen && lb.State != domain.CycleStateClosing {
		return false, nil
	}
	lb.State = domain.CycleStateClosing
	return true, nil
}

func (f *fakeRepository) MarkArchived(_ context.Context, leaderboardID string, cycle int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	lb, ok := f.boards[leaderboardID]
	if !ok {
		return domain.ErrLeaderboardNotFound
	}
	lb.State = domain.CycleStateArchived
	return nil
}

func (f *fakeRepository) Reopen(_ context.Context, leaderboardID string) (*domain.Leaderboard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lb, ok := f.boards[leaderboardID]
	if !ok {
		return nil, domain.ErrLeaderboardNotFound
	}
	lb.State = domain.CycleStateOpen
	lb.Cycle++
	lb.StartTime = time.Now()
	copied := *lb
	return &copied, nil
}

func (f *fakeRepository) WriteArchive(_ context.Context, record domain.ArchiveRecord) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["archive"]; err != nil {
		return false, err
	}
	key := archiveKey(record.LeaderboardID, record.Cycle)
	if _, ok := f.archives[key]; ok {
		return false, nil
	}
	f.archives[key] = record
	f.archiveCh = append(f.archiveCh, record)
	return true, nil
}

func (f *fakeRepository) GetArchive(_ context.Context, leaderboardID string, cycle int64) (*domain.ArchiveRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.archives[archiveKey(leaderboardID, cycle)]
	if !ok {
		return nil, domain.ErrLeaderboardNotFound
	}
	return &record, nil
}

func (f *fakeRepository) AddAllTimeScore(_ context.Context, playerID string, delta int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn["alltime"]; err != nil {
		return 0, err
	}
	f.totals[playerID] += delta
	return f.totals[playerID], nil
}

func (f *fakeRepository) GetAllTimeScore(_ context.Context, playerID string) (*domain.AllTimeScore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	score, ok := f.totals[playerID]
	if !ok {
		return nil, domain.ErrPlayerNotFound
	}
	return &domain.AllTimeScore{PlayerID: playerID, Score: score}, nil
}

func (f *fakeRepository) ClearBackup(_ context.Context, leaderboardID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.backups, leaderboardID)
	return nil
}

// fakeScheduler records scheduled and cancelled close triggers
type fakeScheduler struct {
	mu         sync.Mutex
	scheduled  []scheduledClose
	cancelled  []string
	failOn     error
	failCancel error
}

type scheduledClose struct {
	leaderboardID string
	cycle         int64
	at            time.Time
}

func (f *fakeScheduler) ScheduleClose(_ context.Context, leaderboardID string, cycle int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != nil {
		return f.failOn
	}
	f.scheduled = append(f.scheduled, scheduledClose{leaderboardID, cycle, at})
	return nil
}

func (f *fakeScheduler) CancelPending(_ context.Context, leaderboardID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCancel != nil {
		return f.failCancel
	}
	f.cancelled = append(f.cancelled, leaderboardID)
	return nil
}

// fakeWallet records grants and can fail per player
type fakeWallet struct {
	mu      sync.Mutex
	rewards []grant
	xp      map[string]int64
	cups    map[string]int64
	failFor map[string]error
}

type grant struct {
	playerID string
	rewardID string
}

func newFakeWallet() *fakeWallet {
	return &fakeWallet{
		xp:      make(map[string]int64),
		cups:    make(map[string]int64),
		failFor: make(map[string]error),
	}
}

func (f *fakeWallet) GrantReward(_ context.Context, playerID, rewardID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[playerID]; err != nil {
		return err
	}
	f.rewards = append(f.rewards, grant{playerID, rewardID})
	return nil
}

func (f *fakeWallet) AddXP(_ context.Context, playerID string, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[playerID]; err != nil {
		return err
	}
	f.xp[playerID] += amount
	return nil
}

func (f *fakeWallet) AddCups(_ context.Context, playerID string, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[playerID]; err != nil {
		return err
	}
	f.cups[playerID] += amount
	return nil
}

// fakeDeduper is an in-memory marker store
type fakeDeduper struct {
	mu         sync.Mutex
	seen       map[string]bool
	unrecorded []string
	failOn     error
}

func newFakeDeduper() *fakeDeduper {
	return &fakeDeduper{seen: make(map[string]bool)}
}

func (f *fakeDeduper) SeenAndRecord(_ context.Context, eventID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != nil {
		return false, f.failOn
	}
	if f.seen[eventID] {
		return true, nil
	}
	f.seen[eventID] = true
	return false, nil
}

func (f *fakeDeduper) Unrecord(_ context.Context, eventID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.seen, eventID)
	f.unrecorded = append(f.unrecorded, eventID)
}

// fakeHub records broadcasts
type fakeHub struct {
	mu            sync.Mutex
	playerUpdates []string
	cycleClosed   []string
}

func (f *fakeHub) BroadcastLeaderboardUpdate(leaderboardID string, _ []domain.Entry, _ int64) {}

func (f *fakeHub) BroadcastPlayerUpdate(leaderboardID string, _ domain.Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playerUpdates = append(f.playerUpdates, leaderboardID)
}

func (f *fakeHub) BroadcastCycleClosed(leaderboardID string, cycle int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cycleClosed = append(f.cycleClosed, archiveKey(leaderboardID, cycle))
}
