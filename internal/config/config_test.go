package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "localhost", cfg.Postgres.Host)
	assert.Equal(t, "match-events", cfg.Kafka.Topic)
	assert.Equal(t, 24*time.Hour, cfg.Kafka.DedupTTL)
	assert.Equal(t, 10, cfg.Queue.MaxWorkers)
	assert.Equal(t, 100, cfg.Leaderboard.TopLimit)
	assert.Equal(t, 5, cfg.Leaderboard.WindowRadius)
	assert.Equal(t, int64(25), cfg.Match.WinnerScore)
	assert.Equal(t, 15*time.Minute, cfg.Snapshot.Interval)
	assert.True(t, cfg.Snapshot.Enabled)
	assert.Equal(t, int64(4096), cfg.Websocket.MaxMessageBytes)
	assert.Equal(t, 60*time.Second, cfg.Websocket.PongTimeout)
	assert.Equal(t, 256, cfg.Websocket.SendBuffer)
	assert.Empty(t, cfg.Websocket.AllowedOrigins)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	data := `
server:
  port: 9000
redis:
  addr: redis.internal:6379
kafka:
  enabled: true
  topic: custom-events
match:
  winner_score: 100
  loser_score: 20
leaderboard:
  top_limit: 50
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, "custom-events", cfg.Kafka.Topic)
	assert.Equal(t, 24*time.Hour, cfg.Kafka.DedupTTL)
	assert.Equal(t, int64(100), cfg.Match.WinnerScore)
	assert.Equal(t, int64(20), cfg.Match.LoserScore)
	assert.Equal(t, 50, cfg.Leaderboard.TopLimit)

	// Untouched sections still get defaults
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 5, cfg.Leaderboard.WindowRadius)
}

func TestLoadExpandsEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	t.Setenv("TEST_REDIS_ADDR", "redis.prod:6379")
	t.Setenv("TEST_PG_PASSWORD", "s3cret")

	data := `
redis:
  addr: ${TEST_REDIS_ADDR}
postgres:
  password: ${TEST_PG_PASSWORD}
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "redis.prod:6379", cfg.Redis.Addr)
	assert.Equal(t, "s3cret", cfg.Postgres.Password)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestPostgresConnectionString(t *testing.T) {
	cfg := PostgresConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "leaderboard",
		Password: "pw",
		Database: "ranking",
	}
	assert.Equal(t,
		"postgres://leaderboard:pw@db.internal:5433/ranking?sslmode=disable",
		cfg.ConnectionString(),
	)
}
