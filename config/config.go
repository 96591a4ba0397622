// Package config loads server configuration from environment variables.
package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port      int    `env:"PORT,       default=8080"`
	DBPath    string `env:"DB_PATH,    default=registers.db"`
	LogLevel  string `env:"LOG_LEVEL,  default=info"`
	LogPretty bool   `env:"LOG_PRETTY, default=false"`

	// CORSOrigins is a comma-separated list of allowed origins for the
	// point-of-sale frontend.
	CORSOrigins []string `env:"CORS_ORIGINS, default=http://localhost:5173,http://localhost:8080"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to load configuration: %w", err)
	}
	return &cfg, nil
}
