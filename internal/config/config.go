// Package config loads application configuration from the environment.
package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Addr                 string        `env:"EZDUKA_ADDR" envDefault:":8080"`
	PostgresDSN          string        `env:"EZDUKA_PG_DSN"`
	RedisAddr            string        `env:"EZDUKA_REDIS_ADDR"`
	SessionTTL           time.Duration `env:"EZDUKA_SESSION_TTL" envDefault:"24h"`
	RateWindow           time.Duration `env:"EZDUKA_RATE_WINDOW" envDefault:"15s"`
	RateLimit            int           `env:"EZDUKA_RATE_LIMIT" envDefault:"50"`
	CsrfBypassPaths      []string      `env:"EZDUKA_CSRF_BYPASS" envDefault:"/api/payments/webhook" envSeparator:","`
	IdempotencyRetention time.Duration `env:"EZDUKA_IDEMPOTENCY_RETENTION" envDefault:"48h"`
	ReadHeaderTimeout    time.Duration `env:"EZDUKA_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ShutdownTimeout      time.Duration `env:"EZDUKA_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
