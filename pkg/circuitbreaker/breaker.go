// Package circuitbreaker guards calls to upstream services so an outage
// fails fast instead of stacking up timeouts behind it.
package circuitbreaker

import (
	"errors"
	"fmt"
	"time"

	"github.com/schooldesk/portal/pkg/logger"
	"github.com/schooldesk/portal/pkg/metrics"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Config describes when a breaker opens and how it recovers.
type Config struct {
	Name string
	// Probes is the number of calls let through while half-open.
	Probes uint32
	// Window is how often failure counts reset while closed.
	Window time.Duration
	// Cooldown is how long the breaker stays open.
	Cooldown time.Duration
	// MinRequests and FailureRatio decide when a closed breaker trips.
	MinRequests  uint32
	FailureRatio float64
	// IsSuccessful classifies errors that must not count as failures, such
	// as a backend answering 401 to a wrong password.
	IsSuccessful func(err error) bool
	Log          *zap.Logger
}

// DefaultConfig trips after 60% of at least three calls fail and retries
// after 30 seconds.
func DefaultConfig(name string, log *zap.Logger) Config {
	return Config{
		Name:         name,
		Probes:       3,
		Window:       time.Minute,
		Cooldown:     30 * time.Second,
		MinRequests:  3,
		FailureRatio: 0.6,
		Log:          log,
	}
}

// NewCircuitBreaker builds a breaker from cfg. State changes are logged and
// exported as the portal_circuit_breaker_state gauge.
func NewCircuitBreaker(cfg Config) *gobreaker.CircuitBreaker {
	log := logger.OrNop(cfg.Log)
	state := metrics.CircuitBreakerState.WithLabelValues(cfg.Name)
	state.Set(stateValue(gobreaker.StateClosed))

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.Probes,
		Interval:    cfg.Window,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		IsSuccessful: cfg.IsSuccessful,
		OnStateChange: func(name string, from, to gobreaker.State) {
			state.Set(stateValue(to))

			fields := []zap.Field{
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			}
			if to == gobreaker.StateOpen {
				log.Warn("Upstream circuit opened", fields...)
				return
			}
			log.Info("Upstream circuit state changed", fields...)
		},
	})
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Execute runs fn through cb and returns its typed result.
func Execute[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	var out T
	_, err := cb.Execute(func() (interface{}, error) {
		v, err := fn()
		out = v
		return nil, err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// IsCircuitOpen reports whether cb is currently failing fast.
func IsCircuitOpen(cb *gobreaker.CircuitBreaker) bool {
	return cb.State() == gobreaker.StateOpen
}

// IsRejected reports whether err came from the breaker itself rather than
// from the wrapped call.
func IsRejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// FormatError names the upstream in breaker rejections. Other errors pass
// through unchanged.
func FormatError(upstream string, err error) error {
	if IsRejected(err) {
		return fmt.Errorf("%s unavailable: %w", upstream, err)
	}
	return err
}
