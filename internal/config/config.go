package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/suji-games/leaderboard-service/internal/domain"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig         `yaml:"server"`
	Redis       RedisConfig          `yaml:"redis"`
	Postgres    PostgresConfig       `yaml:"postgres"`
	Kafka       KafkaConfig          `yaml:"kafka"`
	Queue       QueueConfig          `yaml:"queue"`
	Wallet      WalletConfig         `yaml:"wallet"`
	Leaderboard LeaderboardConfig    `yaml:"leaderboard"`
	Match       domain.MatchSettings `yaml:"match"`
	Snapshot    SnapshotConfig       `yaml:"snapshot"`
	Websocket   WebsocketConfig      `yaml:"websocket"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxConnections  int           `yaml:"max_connections"`
	MinConnections  int           `yaml:"min_connections"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
}

// ConnectionString returns the PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslMode,
	)
}

// KafkaConfig holds Kafka connection configuration
type KafkaConfig struct {
	Brokers  []string      `yaml:"brokers"`
	Topic    string        `yaml:"topic"`
	GroupID  string        `yaml:"group_id"`
	Enabled  bool          `yaml:"enabled"`
	DedupTTL time.Duration `yaml:"dedup_ttl"`
}

// QueueConfig holds scheduled-job queue configuration
type QueueConfig struct {
	MaxWorkers int `yaml:"max_workers"`
}

// WalletConfig holds the wallet/stat collaborator configuration
type WalletConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// LeaderboardConfig holds leaderboard view configuration
type LeaderboardConfig struct {
	TopLimit     int `yaml:"top_limit"`
	WindowRadius int `yaml:"window_radius"`
}

// WebsocketConfig holds live-update connection policy. An empty
// AllowedOrigins list accepts any origin.
type WebsocketConfig struct {
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	MaxMessageBytes int64         `yaml:"max_message_bytes"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	PongTimeout     time.Duration `yaml:"pong_timeout"`
	SendBuffer      int           `yaml:"send_buffer"`
}

// SnapshotConfig holds ranked-set backup worker configuration
type SnapshotConfig struct {
	Interval time.Duration `yaml:"interval"`
	Enabled  bool          `yaml:"enabled"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply defaults
	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}

	// Redis defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 100
	}
	if c.Redis.MinIdleConns == 0 {
		c.Redis.MinIdleConns = 10
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}

	// PostgreSQL defaults
	if c.Postgres.Host == "" {
		c.Postgres.Host = "localhost"
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.MaxConnections == 0 {
		c.Postgres.MaxConnections = 50
	}
	if c.Postgres.MinConnections == 0 {
		c.Postgres.MinConnections = 5
	}
	if c.Postgres.MaxConnLifetime == 0 {
		c.Postgres.MaxConnLifetime = 1 * time.Hour
	}
	if c.Postgres.MaxConnIdleTime == 0 {
		c.Postgres.MaxConnIdleTime = 30 * time.Minute
	}

	// Kafka defaults
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "match-events"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "leaderboard-consumer"
	}
	if c.Kafka.DedupTTL == 0 {
		c.Kafka.DedupTTL = 24 * time.Hour
	}

	// Queue defaults
	if c.Queue.MaxWorkers == 0 {
		c.Queue.MaxWorkers = 10
	}

	// Wallet defaults
	if c.Wallet.BaseURL == "" {
		c.Wallet.BaseURL = "http://localhost:8090"
	}
	if c.Wallet.Timeout == 0 {
		c.Wallet.Timeout = 5 * time.Second
	}

	// Leaderboard defaults
	if c.Leaderboard.TopLimit == 0 {
		c.Leaderboard.TopLimit = 100
	}
	if c.Leaderboard.WindowRadius == 0 {
		c.Leaderboard.WindowRadius = 5
	}

	// Match defaults
	if c.Match.WinnerXP == 0 {
		c.Match.WinnerXP = 50
	}
	if c.Match.WinnerCup == 0 {
		c.Match.WinnerCup = 10
	}
	if c.Match.WinnerScore == 0 {
		c.Match.WinnerScore = 25
	}
	if c.Match.LoserXP == 0 {
		c.Match.LoserXP = 10
	}

	// Snapshot defaults
	if c.Snapshot.Interval == 0 {
		c.Snapshot.Interval = 15 * time.Minute
	}

	// Websocket defaults
	if c.Websocket.MaxMessageBytes == 0 {
		c.Websocket.MaxMessageBytes = 4096
	}
	if c.Websocket.WriteTimeout == 0 {
		c.Websocket.WriteTimeout = 10 * time.Second
	}
	if c.Websocket.PongTimeout == 0 {
		c.Websocket.PongTimeout = 60 * time.Second
	}
	if c.Websocket.SendBuffer == 0 {
		c.Websocket.SendBuffer = 256
	}
}

// DefaultConfig returns a configuration with all defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Snapshot.Enabled = true
	return cfg
}
