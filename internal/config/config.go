// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds everything the binaries need at startup.
type Config struct {
	ListenAddr     string        `env:"KASSENWERK_LISTEN_ADDR" envDefault:":8080"`
	GRPCListenAddr string        `env:"KASSENWERK_GRPC_LISTEN_ADDR" envDefault:":9090"`
	PostgresDSN    string        `env:"KASSENWERK_PG_DSN"`
	AuthSecret     string        `env:"KASSENWERK_AUTH_SECRET"`
	TokenTTL       time.Duration `env:"KASSENWERK_TOKEN_TTL" envDefault:"12h"`
	TrialDays      int           `env:"KASSENWERK_TRIAL_DAYS" envDefault:"30"`
	WebhookSecret  string        `env:"KASSENWERK_BILLING_WEBHOOK_SECRET"`
	CheckoutURL    string        `env:"KASSENWERK_BILLING_CHECKOUT_URL" envDefault:"https://billing.kassenwerk.org/checkout"`
	RateLimitRPS   int           `env:"KASSENWERK_RATE_LIMIT_RPS" envDefault:"25"`
	RateLimitBurst int           `env:"KASSENWERK_RATE_LIMIT_BURST" envDefault:"50"`
	MaxBodyBytes   int64         `env:"KASSENWERK_MAX_BODY_BYTES" envDefault:"1048576"`
	MigrationsDir  string        `env:"KASSENWERK_MIGRATIONS_DIR" envDefault:"migrations"`
	SeedsDir       string        `env:"KASSENWERK_SEEDS_DIR" envDefault:"seeds"`
}

// Load reads a .env file when present, then parses the environment.
func Load() (Config, error) {
	// Missing .env is the normal production case.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
