package imagegen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/playperu/promptparty/internal/metrics"
)

const breakerComponent = "image_provider"

// ErrProviderUnavailable is returned while the breaker is open.
var ErrProviderUnavailable = errors.New("image provider unavailable")

type BreakerConfig struct {
	// ConsecutiveFailures opens the breaker.
	ConsecutiveFailures uint32
	// Cooldown is how long the breaker stays open before probing.
	Cooldown time.Duration
}

// Breaker stops calling a provider that keeps failing so that answers fail
// fast instead of each waiting on a dead endpoint.
type Breaker struct {
	next Generator
	cb   *gobreaker.CircuitBreaker
}

func NewBreaker(next Generator, cfg BreakerConfig) *Breaker {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = 30 * time.Second
	}
	metrics.CircuitBreakerState.WithLabelValues(breakerComponent).Set(stateToFloat(gobreaker.StateClosed))

	failures := cfg.ConsecutiveFailures
	return &Breaker{
		next: next,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        breakerComponent,
			MaxRequests: 1,
			Timeout:     cfg.Cooldown,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= failures
			},
			IsSuccessful: func(err error) bool {
				// A caller giving up is not the provider's fault.
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(_ string, _, to gobreaker.State) {
				metrics.CircuitBreakerState.WithLabelValues(breakerComponent).Set(stateToFloat(to))
				metrics.CircuitBreakerStateChanges.WithLabelValues(breakerComponent, to.String()).Inc()
			},
		}),
	}
}

func (b *Breaker) Generate(ctx context.Context, model, prompt string) ([]byte, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Generate(ctx, model, prompt)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	if err != nil {
		return nil, err
	}
	img, _ := out.([]byte)
	return img, nil
}

// State is the breaker's current state name.
func (b *Breaker) State() string { return b.cb.State().String() }

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
