package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8080"`
	DatabaseURL string `env:"DATABASE_URL" default:"file:polling.db"`
	RedisURL    string `env:"REDIS_URL"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`

	MaxWebSocketConnections int     `env:"MAX_WEBSOCKET_CONNECTIONS" default:"10000"`
	MaxConnectionsPerIP     int     `env:"MAX_CONNECTIONS_PER_IP" default:"100"`
	ConnectionsPerSecond    float64 `env:"CONNECTIONS_PER_SECOND" default:"10"`
	ConnectionBurst         int     `env:"CONNECTION_BURST" default:"20"`
	VotesPerSecond          float64 `env:"VOTES_PER_SECOND" default:"5"`
	VoteBurst               int     `env:"VOTE_BURST" default:"10"`

	SessionQueueSize int           `env:"SESSION_QUEUE_SIZE" default:"16"`
	WriteTimeout     time.Duration `env:"WRITE_TIMEOUT" default:"5s"`

	SnapshotCacheSize int           `env:"SNAPSHOT_CACHE_SIZE" default:"1024"`
	SnapshotCacheTTL  time.Duration `env:"SNAPSHOT_CACHE_TTL" default:"1s"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// UsesPostgres reports whether DatabaseURL selects the Postgres store rather than SQLite.
func (c *Config) UsesPostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") || strings.HasPrefix(c.DatabaseURL, "postgresql://")
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}

	port, err := strconv.Atoi(cfg.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a number between 1 and 65535, got %q", cfg.Port)
	}

	positiveInts := []struct {
		name  string
		value int
	}{
		{"MAX_WEBSOCKET_CONNECTIONS", cfg.MaxWebSocketConnections},
		{"MAX_CONNECTIONS_PER_IP", cfg.MaxConnectionsPerIP},
		{"CONNECTION_BURST", cfg.ConnectionBurst},
		{"VOTE_BURST", cfg.VoteBurst},
		{"SESSION_QUEUE_SIZE", cfg.SessionQueueSize},
		{"SNAPSHOT_CACHE_SIZE", cfg.SnapshotCacheSize},
	}
	for _, v := range positiveInts {
		if v.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", v.name, v.value)
		}
	}

	if cfg.ConnectionsPerSecond <= 0 {
		return fmt.Errorf("CONNECTIONS_PER_SECOND must be positive, got %v", cfg.ConnectionsPerSecond)
	}
	if cfg.VotesPerSecond <= 0 {
		return fmt.Errorf("VOTES_PER_SECOND must be positive, got %v", cfg.VotesPerSecond)
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"WRITE_TIMEOUT", cfg.WriteTimeout},
		{"SNAPSHOT_CACHE_TTL", cfg.SnapshotCacheTTL},
		{"SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.value)
		}
	}

	switch cfg.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}

	return nil
}
