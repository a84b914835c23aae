// Package imagegen holds the image providers answers are rendered with.
package imagegen

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Generator turns a prompt into encoded image bytes.
type Generator interface {
	Generate(ctx context.Context, model, prompt string) ([]byte, error)
}

const (
	ProviderAuto            = "auto"
	ProviderReplicate       = "replicate"
	ProviderStableDiffusion = "stablediffusion"
	ProviderNone            = "none"
)

const requestTimeout = 2 * time.Minute

type Options struct {
	Provider           string
	ReplicateToken     string
	ReplicateModel     string
	ReplicateBaseURL   string
	StableDiffusionURL string
	Breaker            BreakerConfig
	Client             *http.Client
}

// New picks a provider and returns it with the model used when a round
// names none. The Generator is nil when generation is disabled. With "auto"
// Replicate wins when a token is set, then Stable Diffusion when its URL is
// set.
func New(opts Options, logger *slog.Logger) (Generator, string, error) {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}

	provider := opts.Provider
	if provider == "" || provider == ProviderAuto {
		switch {
		case opts.ReplicateToken != "":
			provider = ProviderReplicate
		case opts.StableDiffusionURL != "":
			provider = ProviderStableDiffusion
		default:
			provider = ProviderNone
		}
	}

	var (
		gen   Generator
		model string
	)
	switch provider {
	case ProviderNone:
		logger.Warn("image generation disabled")
		return nil, "", nil
	case ProviderReplicate:
		if opts.ReplicateToken == "" {
			return nil, "", fmt.Errorf("image provider %q needs REPLICATE_API_TOKEN", provider)
		}
		gen = NewReplicate(opts.ReplicateBaseURL, opts.ReplicateToken, client)
		model = opts.ReplicateModel
		if model == "" {
			model = DefaultReplicateModel
		}
	case ProviderStableDiffusion:
		if opts.StableDiffusionURL == "" {
			return nil, "", fmt.Errorf("image provider %q needs STABLE_DIFFUSION_URL", provider)
		}
		gen = NewStableDiffusion(opts.StableDiffusionURL, client)
	default:
		return nil, "", fmt.Errorf("unknown image provider %q", provider)
	}

	logger.Info("image generation enabled", "provider", provider, "default_model", model)
	return NewBreaker(gen, opts.Breaker), model, nil
}
