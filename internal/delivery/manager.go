// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

package delivery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tomtom215/dumpvault/internal/config"
	"github.com/tomtom215/dumpvault/internal/logging"
	"github.com/tomtom215/dumpvault/internal/metrics"
	"github.com/tomtom215/dumpvault/internal/store"
)

// Status is the overall outcome of a Deliver call.
type Status string

const (
	StatusDelivered Status = "delivered"
	StatusPartial   Status = "partial"
	StatusFailed    Status = "failed"
)

// Manager routes recipients to channels and delivers with retries.
type Manager struct {
	channels    []Channel
	limiters    map[string]*rate.Limiter
	logger      zerolog.Logger
	maxRetries  int
	baseDelay   time.Duration
	maxDelay    time.Duration
	parallelism int
}

// ManagerConfig contains configuration for the delivery manager.
type ManagerConfig struct {
	// MaxRetries is the number of retry attempts for transient errors.
	MaxRetries int

	// BaseDelay is the initial delay between retries.
	BaseDelay time.Duration

	// MaxDelay is the maximum delay between retries.
	MaxDelay time.Duration

	// Parallelism is the maximum number of concurrent sends.
	Parallelism int

	// RatePerSecond limits sends per channel. Zero disables limiting.
	RatePerSecond float64
}

// DefaultManagerConfig returns a default manager configuration.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		MaxRetries:    3,
		BaseDelay:     1 * time.Second,
		MaxDelay:      30 * time.Second,
		Parallelism:   4,
		RatePerSecond: 2,
	}
}

// NewManager creates a manager over channels. Routing tries channels in the
// given order. A negative MaxRetries means no retries.
func NewManager(cfg ManagerConfig, channels ...Channel) *Manager {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 1 * time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}

	m := &Manager{
		channels:    channels,
		limiters:    make(map[string]*rate.Limiter, len(channels)),
		logger:      logging.WithComponent("delivery"),
		maxRetries:  cfg.MaxRetries,
		baseDelay:   cfg.BaseDelay,
		maxDelay:    cfg.MaxDelay,
		parallelism: cfg.Parallelism,
	}
	for _, ch := range channels {
		limit := rate.Inf
		if cfg.RatePerSecond > 0 {
			limit = rate.Limit(cfg.RatePerSecond)
		}
		m.limiters[ch.Name()] = rate.NewLimiter(limit, 1)
	}
	return m
}

// NewManagerFromConfig builds the email, webhook and S3 channels from cfg.
//
//nolint:gocritic // config is copied once at construction
func NewManagerFromConfig(ctx context.Context, cfg config.DeliveryConfig) (*Manager, error) {
	breaker := DefaultBreakerSettings()

	s3ch, err := NewS3Channel(ctx, cfg.S3, breaker)
	if err != nil {
		return nil, fmt.Errorf("s3 channel: %w", err)
	}

	channels := []Channel{s3ch}
	if cfg.Webhook.Enabled {
		channels = append(channels, NewWebhookChannel(cfg.Webhook, breaker))
	}
	channels = append(channels, NewEmailChannel(cfg.Email))

	return NewManager(ManagerConfig{
		MaxRetries:    cfg.MaxRetries,
		BaseDelay:     cfg.BaseDelay,
		MaxDelay:      cfg.MaxDelay,
		Parallelism:   cfg.Parallelism,
		RatePerSecond: cfg.RatePerSecond,
	}, channels...), nil
}

// Report contains the aggregated results of one Deliver call.
type Report struct {
	DeliveryID  string    `json:"deliveryId"`
	Status      Status    `json:"status"`
	Total       int       `json:"total"`
	Successful  int       `json:"successful"`
	Failed      int       `json:"failed"`
	Results     []Result  `json:"results"`
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`
	DurationMS  int64     `json:"durationMs"`
}

// FailedRecipients lists recipients whose delivery failed.
func (r *Report) FailedRecipients() []string {
	var out []string
	for i := range r.Results {
		if !r.Results[i].Success {
			out = append(out, r.Results[i].Recipient)
		}
	}
	return out
}

// Route returns the first channel accepting recipient.
func (m *Manager) Route(recipient string) (Channel, bool) {
	for _, ch := range m.channels {
		if ch.Accepts(recipient) {
			return ch, true
		}
	}
	return nil, false
}

// Deliver sends artifact to every recipient. Duplicate and blank recipients
// are dropped; results keep the order of first appearance. The artifact is
// only read.
func (m *Manager) Deliver(ctx context.Context, artifact *store.Artifact, recipients []string, trigger string) *Report {
	targets := NormalizeRecipients(recipients)
	report := &Report{
		DeliveryID: uuid.NewString(),
		Total:      len(targets),
		Results:    make([]Result, len(targets)),
		StartedAt:  time.Now(),
	}
	if len(targets) == 0 {
		report.Status = StatusFailed
		report.CompletedAt = report.StartedAt
		m.logger.Warn().
			Str("delivery_id", report.DeliveryID).
			Str("filename", artifact.Filename).
			Msg("No usable recipients, nothing delivered")
		return report
	}

	m.logger.Info().
		Str("delivery_id", report.DeliveryID).
		Str("filename", artifact.Filename).
		Int("recipients", len(targets)).
		Msg("Starting artifact delivery")

	jobs := make(chan int)
	var wg sync.WaitGroup

	workers := min(m.parallelism, len(targets))
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				params := &SendParams{
					Recipient:  targets[i],
					Artifact:   artifact,
					DeliveryID: report.DeliveryID,
					Trigger:    trigger,
				}
				report.Results[i] = m.deliverOne(ctx, params)
			}
		}()
	}
	for i := range targets {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for i := range report.Results {
		if report.Results[i].Success {
			report.Successful++
		} else {
			report.Failed++
		}
	}

	report.CompletedAt = time.Now()
	report.DurationMS = report.CompletedAt.Sub(report.StartedAt).Milliseconds()

	switch {
	case report.Failed == 0:
		report.Status = StatusDelivered
	case report.Successful == 0:
		report.Status = StatusFailed
	default:
		report.Status = StatusPartial
	}

	m.logger.Info().
		Str("delivery_id", report.DeliveryID).
		Str("status", string(report.Status)).
		Int("successful", report.Successful).
		Int("failed", report.Failed).
		Int64("duration_ms", report.DurationMS).
		Msg("Artifact delivery completed")

	return report
}

// deliverOne handles delivery to a single recipient.
func (m *Manager) deliverOne(ctx context.Context, params *SendParams) Result {
	channel, ok := m.Route(params.Recipient)
	if !ok {
		res := newResult("", params.Recipient).fail(ErrorCodeInvalidRecipient,
			fmt.Sprintf("no delivery channel accepts %q", params.Recipient))
		return *res
	}
	limiter := m.limiters[channel.Name()]

	var last *Result
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		if attempt > 0 {
			delay := m.calculateBackoff(attempt, last)
			m.logger.Debug().
				Str("delivery_id", params.DeliveryID).
				Str("recipient", params.Recipient).
				Str("channel", channel.Name()).
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("Retrying delivery after delay")

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return *canceled(channel.Name(), params.Recipient, attempt-1)
			case <-timer.C:
			}
		}

		if err := limiter.Wait(ctx); err != nil {
			return *canceled(channel.Name(), params.Recipient, attempt)
		}

		result, err := channel.Send(ctx, params)
		if err != nil {
			m.logger.Error().
				Err(err).
				Str("delivery_id", params.DeliveryID).
				Str("recipient", params.Recipient).
				Str("channel", channel.Name()).
				Msg("Channel send error")
			result = newResult(channel.Name(), params.Recipient).fail(ErrorCodeUnknown, err.Error())
		}
		result.RetryCount = attempt
		last = result
		metrics.RecordDeliveryAttempt(channel.Name(), result.Success)

		if result.Success {
			return *result
		}
		if !result.IsTransient {
			m.logger.Warn().
				Str("delivery_id", params.DeliveryID).
				Str("recipient", params.Recipient).
				Str("channel", channel.Name()).
				Str("error", result.ErrorMessage).
				Str("error_code", result.ErrorCode).
				Msg("Permanent delivery error, not retrying")
			return *result
		}
	}

	m.logger.Warn().
		Str("delivery_id", params.DeliveryID).
		Str("recipient", params.Recipient).
		Str("channel", channel.Name()).
		Str("error", last.ErrorMessage).
		Int("retries", m.maxRetries).
		Msg("Delivery failed after retries")
	return *last
}

// calculateBackoff returns the delay before retry attempt (1-based).
func (m *Manager) calculateBackoff(attempt int, last *Result) time.Duration {
	if last != nil && last.RetryAfter != nil {
		if *last.RetryAfter > m.maxDelay {
			return m.maxDelay
		}
		return *last.RetryAfter
	}

	delay := m.baseDelay * (1 << uint(attempt-1)) //nolint:gosec // attempt is bounded by maxRetries
	if delay > m.maxDelay || delay <= 0 {
		delay = m.maxDelay
	}
	return delay
}

func canceled(channel, recipient string, retries int) *Result {
	res := newResult(channel, recipient).fail(ErrorCodeTimeout, "delivery canceled")
	res.IsTransient = false
	res.RetryCount = retries
	return res
}

// NormalizeRecipients trims recipients and drops blanks and duplicates,
// keeping the order of first appearance.
func NormalizeRecipients(recipients []string) []string {
	seen := make(map[string]struct{}, len(recipients))
	out := make([]string, 0, len(recipients))
	for _, r := range recipients {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}
