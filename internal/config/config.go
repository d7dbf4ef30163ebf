package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	HTTPAddr string     `env:"HTTP_ADDR" envDefault:":8080"`
	DBPath   string     `env:"DB_PATH" envDefault:"data/treasurehunt.db"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	SPADir   string     `env:"SPA_DIR" envDefault:"../web/dist"`

	// Empty disables the submission guard.
	RedisURL string `env:"REDIS_URL"`

	JWTSecret      string        `env:"JWT_SECRET" envDefault:"dev-secret-change-me"`
	PlayerTokenTTL time.Duration `env:"PLAYER_TOKEN_TTL" envDefault:"720h"`

	// Bootstrap admin, created on startup when both are set.
	AdminEmail    string `env:"ADMIN_EMAIL"`
	AdminPassword string `env:"ADMIN_PASSWORD"`

	// Empty endpoint keeps photos in memory.
	MinIOEndpoint  string `env:"MINIO_ENDPOINT"`
	MinIOAccessKey string `env:"MINIO_ACCESS_KEY"`
	MinIOSecretKey string `env:"MINIO_SECRET_KEY"`
	MinIOBucket    string `env:"MINIO_BUCKET" envDefault:"hunt-photos"`
	MinIOUseSSL    bool   `env:"MINIO_USE_SSL" envDefault:"false"`

	PhotoMaxBytes  int64 `env:"PHOTO_MAX_BYTES" envDefault:"5242880"`
	PhotoFraudGate bool  `env:"PHOTO_FRAUD_GATE" envDefault:"false"`

	QuizCooldown   time.Duration `env:"QUIZ_COOLDOWN" envDefault:"3h"`
	SubmitGuardTTL time.Duration `env:"SUBMIT_GUARD_TTL" envDefault:"5s"`

	OTELEndpoint string `env:"OTEL_ENDPOINT"`
	SeedDemo     bool   `env:"SEED_DEMO" envDefault:"false"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if cfg.QuizCooldown <= 0 {
		return nil, fmt.Errorf("QUIZ_COOLDOWN must be positive, got %s", cfg.QuizCooldown)
	}
	return &cfg, nil
}
