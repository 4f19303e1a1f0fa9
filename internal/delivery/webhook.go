// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/dumpvault/internal/config"
)

// WebhookChannel posts a JSON notification describing the artifact. The
// artifact bytes are not sent.
type WebhookChannel struct {
	client        *http.Client
	authorization string
	enabled       bool
	breaker       *gobreaker.CircuitBreaker[*Result]
}

// NewWebhookChannel creates a new webhook delivery channel.
func NewWebhookChannel(cfg config.WebhookConfig, breaker BreakerSettings) *WebhookChannel {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WebhookChannel{
		client:        &http.Client{Timeout: timeout},
		authorization: cfg.Authorization,
		enabled:       cfg.Enabled,
		breaker:       newBreaker("webhook", breaker),
	}
}

// Name returns the channel identifier.
func (c *WebhookChannel) Name() string {
	return "webhook"
}

// Accepts reports whether recipient is an http(s) URL.
func (c *WebhookChannel) Accepts(recipient string) bool {
	return strings.HasPrefix(recipient, "http://") || strings.HasPrefix(recipient, "https://")
}

// WebhookPayload is the JSON body posted to webhook recipients.
type WebhookPayload struct {
	Event      string          `json:"event"`
	Timestamp  time.Time       `json:"timestamp"`
	DeliveryID string          `json:"delivery_id,omitempty"`
	Trigger    string          `json:"trigger,omitempty"`
	Artifact   WebhookArtifact `json:"artifact"`
}

// WebhookArtifact describes the delivered artifact.
type WebhookArtifact struct {
	Filename   string    `json:"filename"`
	SizeBytes  int64     `json:"size_bytes"`
	CreatedAt  time.Time `json:"created_at"`
	Compressed bool      `json:"compressed"`
	Verified   string    `json:"verified"`
}

// Send posts the notification.
func (c *WebhookChannel) Send(ctx context.Context, params *SendParams) (*Result, error) {
	if err := ValidateWebhookURL(params.Recipient); err != nil {
		return newResult(c.Name(), params.Recipient).fail(ErrorCodeInvalidRecipient, err.Error()), nil //nolint:nilerr // Error is captured in result struct, not returned
	}
	if !c.enabled {
		return newResult(c.Name(), params.Recipient).fail(ErrorCodeInvalidConfig, "webhook delivery is disabled"), nil
	}

	return guarded(c.breaker, c.Name(), params.Recipient, func() *Result {
		return c.post(ctx, params)
	}), nil
}

func (c *WebhookChannel) post(ctx context.Context, params *SendParams) *Result {
	result := newResult(c.Name(), params.Recipient)
	a := params.Artifact

	payload := WebhookPayload{
		Event:      "backup.delivered",
		Timestamp:  time.Now().UTC(),
		DeliveryID: params.DeliveryID,
		Trigger:    params.Trigger,
		Artifact: WebhookArtifact{
			Filename:   a.Filename,
			SizeBytes:  a.SizeBytes,
			CreatedAt:  a.CreatedAt.UTC(),
			Compressed: a.Compressed,
			Verified:   string(a.Verified),
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return result.fail(ErrorCodeUnknown, fmt.Sprintf("failed to marshal payload: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, params.Recipient, bytes.NewReader(body))
	if err != nil {
		return result.fail(ErrorCodeInvalidRecipient, fmt.Sprintf("failed to create request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Dumpvault/1.0")
	if c.authorization != "" {
		req.Header.Set("Authorization", c.authorization)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return result.fail(classifyHTTPError(err), fmt.Sprintf("failed to send webhook: %v", err))
	}
	defer resp.Body.Close()

	result.ResponseCode = resp.StatusCode

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		respBody = []byte("(failed to read response)")
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var respData map[string]any
		if err := json.Unmarshal(respBody, &respData); err == nil {
			if id, ok := respData["id"].(string); ok {
				result.ExternalID = id
			}
		}
		return result.succeed()
	}

	result.fail(classifyHTTPStatusCode(resp.StatusCode),
		fmt.Sprintf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))))

	if resp.StatusCode == http.StatusTooManyRequests {
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			d := time.Duration(secs) * time.Second
			result.RetryAfter = &d
		}
	}
	return result
}
