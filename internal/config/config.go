package config

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	HTTPAddr    string     `env:"HTTP_ADDR" envDefault:":8080"`
	DBPath      string     `env:"DB_PATH" envDefault:"data/promptparty.db"`
	LogLevel    slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	StaticDir   string     `env:"STATIC_DIR" envDefault:"web/dist"`
	PicturesDir string     `env:"PICTURES_DIR" envDefault:"data/pictures"`
	PublicURL   string     `env:"PUBLIC_URL"`

	// ImageProvider is replicate, stablediffusion or none. Empty picks one
	// from the credentials that are set.
	ImageProvider      string `env:"IMAGE_PROVIDER"`
	ReplicateToken     string `env:"REPLICATE_API_TOKEN"`
	ReplicateModel     string `env:"REPLICATE_MODEL" envDefault:"black-forest-labs/flux-schnell"`
	ReplicateBaseURL   string `env:"REPLICATE_BASE_URL" envDefault:"https://api.replicate.com"`
	StableDiffusionURL string `env:"STABLE_DIFFUSION_URL"`

	DefaultTournament string `env:"DEFAULT_TOURNAMENT" envDefault:"Default Tournament"`

	WSMessagesPerSecond float64 `env:"WS_MESSAGES_PER_SECOND" envDefault:"20"`
	WSMessageBurst      int     `env:"WS_MESSAGE_BURST" envDefault:"40"`

	RedisURL     string `env:"REDIS_URL"`
	RedisChannel string `env:"REDIS_CHANNEL" envDefault:"promptparty:events"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if cfg.WSMessagesPerSecond <= 0 {
		return nil, fmt.Errorf("WS_MESSAGES_PER_SECOND must be positive, got %v", cfg.WSMessagesPerSecond)
	}
	if cfg.WSMessageBurst < 1 {
		return nil, fmt.Errorf("WS_MESSAGE_BURST must be at least 1, got %d", cfg.WSMessageBurst)
	}
	return &cfg, nil
}
