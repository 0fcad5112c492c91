package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	JWTSecret   string `env:"JWT_SECRET"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`

	// Fanout core tuning. A full outbound queue evicts its oldest entry, so
	// raising the size only delays loss for slow clients.
	OutboundQueueSize    int           `env:"OUTBOUND_QUEUE_SIZE" default:"256"`
	FrameBurstCapacity   float64       `env:"FRAME_BURST_CAPACITY" default:"10"`
	FrameRefillPerSecond float64       `env:"FRAME_REFILL_PER_SECOND" default:"5"`
	PresenceTTL          time.Duration `env:"PRESENCE_TTL" default:"30s"`
	HeartbeatInterval    time.Duration `env:"HEARTBEAT_INTERVAL" default:"10s"`

	// REST producer throttling (per client IP).
	APIRatePerSecond float64 `env:"API_RATE_PER_SECOND" default:"20"`
	APIBurst         int     `env:"API_BURST" default:"40"`
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
	required := map[string]string{
		"DATABASE_URL": cfg.DatabaseURL,
		"REDIS_URL":    cfg.RedisURL,
		"JWT_SECRET":   cfg.JWTSecret,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	if cfg.OutboundQueueSize < 1 {
		return fmt.Errorf("OUTBOUND_QUEUE_SIZE must be positive, got %d", cfg.OutboundQueueSize)
	}
	if cfg.HeartbeatInterval >= cfg.PresenceTTL {
		return fmt.Errorf("HEARTBEAT_INTERVAL (%s) must be shorter than PRESENCE_TTL (%s)",
			cfg.HeartbeatInterval, cfg.PresenceTTL)
	}

	return nil
}
