package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/suji-games/leaderboard-service/internal/config"
	"github.com/suji-games/leaderboard-service/internal/domain"
)

// Repository provides PostgreSQL-based data access: leaderboard definitions
// and reward tiers, the append-only archive store, all-time player rows and
// ranked-set backups.
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(ctx context.Context, cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Pool returns the underlying connection pool
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS leaderboards (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(100) NOT NULL UNIQUE,
			state VARCHAR(16) NOT NULL DEFAULT 'open',
			cycle BIGINT NOT NULL DEFAULT 1,
			start_time TIMESTAMPTZ NOT NULL,
			duration_seconds BIGINT,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS leaderboard_reward_tiers (
			id BIGSERIAL PRIMARY KEY,
			leaderboard_id VARCHAR(64) NOT NULL REFERENCES leaderboards(id) ON DELETE CASCADE,
			from_rank BIGINT NOT NULL,
			to_rank BIGINT NOT NULL,
			reward_id VARCHAR(64) NOT NULL,
			CHECK (from_rank >= 1 AND from_rank <= to_rank)
		)`,
		`CREATE TABLE IF NOT EXISTS leaderboard_archives (
			id BIGSERIAL PRIMARY KEY,
			leaderboard_id VARCHAR(64) NOT NULL,
			cycle BIGINT NOT NULL,
			name VARCHAR(100) NOT NULL,
			key VARCHAR(100) NOT NULL,
			archive_time TIMESTAMPTZ NOT NULL,
			standings JSONB NOT NULL,
			UNIQUE(leaderboard_id, cycle)
		)`,
		`CREATE TABLE IF NOT EXISTS player_total_scores (
			player_id VARCHAR(64) PRIMARY KEY,
			score BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS ranked_backups (
			leaderboard_id VARCHAR(64) NOT NULL,
			player_id VARCHAR(64) NOT NULL,
			score BIGINT NOT NULL,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY(leaderboard_id, player_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tiers_leaderboard ON leaderboard_reward_tiers(leaderboard_id)`,
		`CREATE INDEX IF NOT EXISTS idx_archives_leaderboard ON leaderboard_archives(leaderboard_id, cycle DESC)`,
	}

	for _, migration := range migrations {
		if _, err := r.pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// CreateLeaderboard inserts a leaderboard definition and its reward tiers
func (r *Repository) CreateLeaderboard(ctx context.Context, lb domain.Leaderboard) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO leaderboards (id, name, state, cycle, start_time, duration_seconds, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`
	now := time.Now()
	_, err = tx.Exec(ctx, query,
		lb.ID,
		lb.Name,
		string(lb.State),
		lb.Cycle,
		lb.StartTime,
		durationSeconds(lb.Duration),
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrLeaderboardExists
		}
		return fmt.Errorf("creating leaderboard: %w", err)
	}

	for _, tier := range lb.Tiers {
		_, err = tx.Exec(ctx,
			`INSERT INTO leaderboard_reward_tiers (leaderboard_id, from_rank, to_rank, reward_id) VALUES ($1, $2, $3, $4)`,
			lb.ID, tier.FromRank, tier.ToRank, tier.RewardID,
		)
		if err != nil {
			return fmt.Errorf("creating reward tier: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing leaderboard: %w", err)
	}
	return nil
}

// GetLeaderboard retrieves a leaderboard definition with its reward tiers
func (r *Repository) GetLeaderboard(ctx context.Context, leaderboardID string) (*domain.Leaderboard, error) {
	query := `
		SELECT id, name, state, cycle, start_time, duration_seconds, created_at, updated_at
		FROM leaderboards
		WHERE id = $1
	`
	lb, err := r.scanLeaderboard(r.pool.QueryRow(ctx, query, leaderboardID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrLeaderboardNotFound
		}
		return nil, fmt.Errorf("getting leaderboard: %w", err)
	}

	if err := r.loadTiers(ctx, lb); err != nil {
		return nil, err
	}
	return lb, nil
}

// ListLeaderboards retrieves all leaderboard definitions with tiers
func (r *Repository) ListLeaderboards(ctx context.Context) ([]domain.Leaderboard, error) {
	query := `
		SELECT id, name, state, cycle, start_time, duration_seconds, created_at, updated_at
		FROM leaderboards
		ORDER BY created_at
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing leaderboards: %w", err)
	}
	defer rows.Close()

	var boards []domain.Leaderboard
	for rows.Next() {
		lb, err := r.scanLeaderboard(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning leaderboard: %w", err)
		}
		boards = append(boards, *lb)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("listing leaderboards: %w", rows.Err())
	}

	for i := range boards {
		if err := r.loadTiers(ctx, &boards[i]); err != nil {
			return nil, err
		}
	}
	return boards, nil
}

// ListOpen retrieves all leaderboards currently in the open state
func (r *Repository) ListOpen(ctx context.Context) ([]domain.Leaderboard, error) {
	boards, err := r.ListLeaderboards(ctx)
	if err != nil {
		return nil, err
	}
	open := boards[:0]
	for _, lb := range boards {
		if lb.State == domain.CycleStateOpen {
			open = append(open, lb)
		}
	}
	return open, nil
}

// DeleteLeaderboard removes a leaderboard definition and its tiers
func (r *Repository) DeleteLeaderboard(ctx context.Context, leaderboardID string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM leaderboards WHERE id = $1`, leaderboardID)
	if err != nil {
		return fmt.Errorf("deleting leaderboard: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrLeaderboardNotFound
	}
	return nil
}

// BeginClose flips the given cycle into the closing state. It matches both a
// first attempt (open) and a retry resuming an interrupted close (closing),
// but never a cycle that already completed and re-armed: stale trigger
// firings find the cycle counter advanced and report false.
func (r *Repository) BeginClose(ctx context.Context, leaderboardID string, cycle int64) (bool, error) {
	query := `
		UPDATE leaderboards
		SET state = 'closing', updated_at = $3
		WHERE id = $1 AND cycle = $2 AND state IN ('open', 'closing')
	`
	result, err := r.pool.Exec(ctx, query, leaderboardID, cycle, time.Now())
	if err != nil {
		return false, fmt.Errorf("beginning close: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// MarkArchived records that the cycle's standings are durably archived
func (r *Repository) MarkArchived(ctx context.Context, leaderboardID string, cycle int64) error {
	query := `
		UPDATE leaderboards
		SET state = 'archived', updated_at = $3
		WHERE id = $1 AND cycle = $2 AND state = 'closing'
	`
	if _, err := r.pool.Exec(ctx, query, leaderboardID, cycle, time.Now()); err != nil {
		return fmt.Errorf("marking archived: %w", err)
	}
	return nil
}

// Reopen re-arms a fresh cycle: state open, cycle advanced, start time now.
// Returns the updated definition so the caller can schedule the next close.
func (r *Repository) Reopen(ctx context.Context, leaderboardID string) (*domain.Leaderboard, error) {
	query := `
		UPDATE leaderboards
		SET state = 'open', cycle = cycle + 1, start_time = $2, updated_at = $2
		WHERE id = $1
		RETURNING id, name, state, cycle, start_time, duration_seconds, created_at, updated_at
	`
	lb, err := r.scanLeaderboard(r.pool.QueryRow(ctx, query, leaderboardID, time.Now()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrLeaderboardNotFound
		}
		return nil, fmt.Errorf("reopening leaderboard: %w", err)
	}
	if err := r.loadTiers(ctx, lb); err != nil {
		return nil, err
	}
	return lb, nil
}

// WriteArchive durably appends a closed cycle's final standings. The write
// is idempotent per (leaderboard, cycle): a retried close never duplicates a
// record. Returns false when the record already existed.
func (r *Repository) WriteArchive(ctx context.Context, record domain.ArchiveRecord) (bool, error) {
	standings, err := json.Marshal(record.Standings)
	if err != nil {
		return false, fmt.Errorf("marshaling standings: %w", err)
	}

	query := `
		INSERT INTO leaderboard_archives (leaderboard_id, cycle, name, key, archive_time, standings)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (leaderboard_id, cycle) DO NOTHING
	`
	result, err := r.pool.Exec(ctx, query,
		record.LeaderboardID,
		record.Cycle,
		record.Name,
		record.Key,
		record.ArchiveTime,
		standings,
	)
	if err != nil {
		return false, fmt.Errorf("writing archive: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// GetArchive retrieves one archived cycle's record
func (r *Repository) GetArchive(ctx context.Context, leaderboardID string, cycle int64) (*domain.ArchiveRecord, error) {
	query := `
		SELECT leaderboard_id, cycle, name, key, archive_time, standings
		FROM leaderboard_archives
		WHERE leaderboard_id = $1 AND cycle = $2
	`
	var record domain.ArchiveRecord
	var standings []byte
	err := r.pool.QueryRow(ctx, query, leaderboardID, cycle).Scan(
		&record.LeaderboardID,
		&record.Cycle,
		&record.Name,
		&record.Key,
		&record.ArchiveTime,
		&standings,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrLeaderboardNotFound
		}
		return nil, fmt.Errorf("getting archive: %w", err)
	}
	if err := json.Unmarshal(standings, &record.Standings); err != nil {
		return nil, fmt.Errorf("unmarshaling standings: %w", err)
	}
	return &record, nil
}

// AddAllTimeScore increments a player's cumulative all-time score row,
// creating it on first sight. Atomic at the row level.
func (r *Repository) AddAllTimeScore(ctx context.Context, playerID string, delta int64) (int64, error) {
	query := `
		INSERT INTO player_total_scores (player_id, score, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (player_id)
		DO UPDATE SET score = player_total_scores.score + $2, updated_at = $3
		RETURNING score
	`
	var score int64
	if err := r.pool.QueryRow(ctx, query, playerID, delta, time.Now()).Scan(&score); err != nil {
		return 0, fmt.Errorf("adding all-time score: %w", err)
	}
	return score, nil
}

// GetAllTimeScore returns a player's cumulative score row
func (r *Repository) GetAllTimeScore(ctx context.Context, playerID string) (*domain.AllTimeScore, error) {
	var row domain.AllTimeScore
	err := r.pool.QueryRow(ctx,
		`SELECT player_id, score FROM player_total_scores WHERE player_id = $1`, playerID,
	).Scan(&row.PlayerID, &row.Score)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPlayerNotFound
		}
		return nil, fmt.Errorf("getting all-time score: %w", err)
	}
	return &row, nil
}

// BackupScores upserts a live ranked set's entries for crash recovery
func (r *Repository) BackupScores(ctx context.Context, leaderboardID string, entries []domain.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO ranked_backups (leaderboard_id, player_id, score, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (leaderboard_id, player_id)
		DO UPDATE SET score = $3, updated_at = $4
	`
	now := time.Now()
	for _, entry := range entries {
		batch.Queue(query, leaderboardID, entry.PlayerID, entry.Score, now)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range entries {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("backing up scores: %w", err)
		}
	}
	return nil
}

// GetBackupScores returns the backed-up scores for a leaderboard
func (r *Repository) GetBackupScores(ctx context.Context, leaderboardID string) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT player_id, score FROM ranked_backups WHERE leaderboard_id = $1`, leaderboardID,
	)
	if err != nil {
		return nil, fmt.Errorf("getting backup scores: %w", err)
	}
	defer rows.Close()

	scores := make(map[string]int64)
	for rows.Next() {
		var playerID string
		var score int64
		if err := rows.Scan(&playerID, &score); err != nil {
			return nil, fmt.Errorf("scanning backup score: %w", err)
		}
		scores[playerID] = score
	}
	return scores, rows.Err()
}

// ClearBackup drops backup rows after the cycle they belong to is archived
func (r *Repository) ClearBackup(ctx context.Context, leaderboardID string) error {
	if _, err := r.pool.Exec(ctx,
		`DELETE FROM ranked_backups WHERE leaderboard_id = $1`, leaderboardID,
	); err != nil {
		return fmt.Errorf("clearing backup: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *Repository) scanLeaderboard(row rowScanner) (*domain.Leaderboard, error) {
	var lb domain.Leaderboard
	var state string
	var seconds *int64
	err := row.Scan(
		&lb.ID,
		&lb.Name,
		&state,
		&lb.Cycle,
		&lb.StartTime,
		&seconds,
		&lb.CreatedAt,
		&lb.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	lb.State = domain.CycleState(state)
	if seconds != nil {
		d := time.Duration(*seconds) * time.Second
		lb.Duration = &d
	}
	return &lb, nil
}

func (r *Repository) loadTiers(ctx context.Context, lb *domain.Leaderboard) error {
	rows, err := r.pool.Query(ctx,
		`SELECT from_rank, to_rank, reward_id FROM leaderboard_reward_tiers WHERE leaderboard_id = $1 ORDER BY from_rank, to_rank`,
		lb.ID,
	)
	if err != nil {
		return fmt.Errorf("loading reward tiers: %w", err)
	}
	defer rows.Close()

	lb.Tiers = nil
	for rows.Next() {
		var tier domain.RewardTier
		if err := rows.Scan(&tier.FromRank, &tier.ToRank, &tier.RewardID); err != nil {
			return fmt.Errorf("scanning reward tier: %w", err)
		}
		lb.Tiers = append(lb.Tiers, tier)
	}
	return rows.Err()
}

func durationSeconds(d *time.Duration) *int64 {
	if d == nil {
		return nil
	}
	seconds := int64(d.Seconds())
	return &seconds
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
