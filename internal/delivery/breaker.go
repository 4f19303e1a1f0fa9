// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

package delivery

import (
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/dumpvault/internal/logging"
	"github.com/tomtom215/dumpvault/internal/metrics"
)

// BreakerSettings tunes the circuit breaker in front of a remote endpoint.
type BreakerSettings struct {
	// ConsecutiveFailures opens the circuit.
	ConsecutiveFailures uint32

	// OpenTimeout is how long the circuit stays open before a probe request.
	OpenTimeout time.Duration
}

// DefaultBreakerSettings returns the settings used by the webhook and S3 channels.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		ConsecutiveFailures: 5,
		OpenTimeout:         time.Minute,
	}
}

// errTransient marks a send the breaker should count as a failure. Permanent
// failures (bad recipient, auth) say nothing about endpoint health.
var errTransient = errors.New("transient delivery failure")

func newBreaker(name string, s BreakerSettings) *gobreaker.CircuitBreaker[*Result] {
	if s.ConsecutiveFailures == 0 {
		s = DefaultBreakerSettings()
	}
	metrics.SetCircuitState(name, 0)

	return gobreaker.NewCircuitBreaker[*Result](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("channel", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Delivery circuit breaker state transition")
			metrics.SetCircuitState(name, stateToInt(to))
		},
	})
}

// guarded runs send through cb. A rejected call becomes a transient
// CIRCUIT_OPEN result.
func guarded(cb *gobreaker.CircuitBreaker[*Result], channel, recipient string, send func() *Result) *Result {
	res, err := cb.Execute(func() (*Result, error) {
		r := send()
		if !r.Success && r.IsTransient {
			return r, errTransient
		}
		return r, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return newResult(channel, recipient).fail(ErrorCodeCircuitOpen, "circuit breaker is open for "+channel)
	}
	return res
}

func stateToInt(state gobreaker.State) int {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
