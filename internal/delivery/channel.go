// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

// Package delivery ships finished backup artifacts to their recipients.
//
// A recipient is a plain string and its shape picks the channel:
//   - s3://bucket/prefix uploads the artifact to object storage
//   - http(s)://... posts a JSON notification to a webhook
//   - anything containing @ is mailed the artifact as an attachment
//
// Each channel implements the Channel interface. The Manager routes
// recipients, runs sends on a bounded worker pool, rate limits each channel
// and retries transient failures with exponential backoff.
//
// Security:
//   - Credentials are never logged
//   - TLS is enforced for SMTP when enabled
//   - Delivery never modifies or deletes the artifact
package delivery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/tomtom215/dumpvault/internal/store"
)

// Channel delivers an artifact to one recipient.
type Channel interface {
	// Name returns the channel identifier (email, webhook, s3).
	Name() string

	// Accepts reports whether the channel handles recipient.
	Accepts(recipient string) bool

	// Send delivers the artifact. Delivery failures are reported in the
	// Result; the error return is reserved for programming errors.
	Send(ctx context.Context, params *SendParams) (*Result, error)
}

// SendParams contains everything a channel needs for one delivery.
type SendParams struct {
	// Recipient is the target address, URL or bucket.
	Recipient string

	// Artifact is the backup being delivered. Channels read Artifact.Path.
	Artifact *store.Artifact

	// DeliveryID correlates all sends of one Deliver call.
	DeliveryID string

	// Trigger names what produced the artifact (schedule name, api, cli).
	Trigger string
}

// Result is the outcome of delivering to one recipient.
type Result struct {
	Success   bool   `json:"success"`
	Channel   string `json:"channel"`
	Recipient string `json:"recipient"`

	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`

	ErrorMessage string `json:"error,omitempty"`
	ErrorCode    string `json:"code,omitempty"`

	// IsTransient indicates the failure can be retried.
	IsTransient bool `json:"-"`

	// RetryAfter is a server-suggested delay before the next attempt.
	RetryAfter *time.Duration `json:"-"`

	// ExternalID is the remote identifier (message ID, object ETag).
	ExternalID string `json:"externalId,omitempty"`

	// ResponseCode is the HTTP status for webhook and S3 sends.
	ResponseCode int `json:"responseCode,omitempty"`

	RetryCount int `json:"retryCount,omitempty"`
}

// Error codes for delivery failures.
const (
	ErrorCodeInvalidConfig     = "INVALID_CONFIG"
	ErrorCodeInvalidRecipient  = "INVALID_RECIPIENT"
	ErrorCodeConnectionFailed  = "CONNECTION_FAILED"
	ErrorCodeAuthFailed        = "AUTH_FAILED"
	ErrorCodeRateLimited       = "RATE_LIMITED"
	ErrorCodeContentTooLarge   = "CONTENT_TOO_LARGE"
	ErrorCodeRecipientNotFound = "RECIPIENT_NOT_FOUND"
	ErrorCodeServerError       = "SERVER_ERROR"
	ErrorCodeCircuitOpen       = "CIRCUIT_OPEN"
	ErrorCodeArtifactMissing   = "ARTIFACT_MISSING"
	ErrorCodeTimeout           = "TIMEOUT"
	ErrorCodeUnknown           = "UNKNOWN"
)

func newResult(channel, recipient string) *Result {
	return &Result{Channel: channel, Recipient: recipient}
}

func (r *Result) fail(code, message string) *Result {
	r.Success = false
	r.ErrorCode = code
	r.ErrorMessage = message
	r.IsTransient = isTransientCode(code)
	return r
}

func (r *Result) succeed() *Result {
	now := time.Now()
	r.Success = true
	r.DeliveredAt = &now
	r.ErrorCode = ""
	r.ErrorMessage = ""
	r.IsTransient = false
	return r
}

// ValidateEmail accepts a bare addr-spec with a dotted domain. Display names
// and header injection attempts are rejected.
func ValidateEmail(email string) error {
	if email == "" {
		return errors.New("email address is required")
	}
	if strings.ContainsAny(email, " \r\n<>") || strings.Count(email, "@") != 1 {
		return fmt.Errorf("invalid email address format: %s", email)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("invalid email address format: %s", email)
	}
	_, domain, _ := strings.Cut(email, "@")
	if !strings.Contains(domain, ".") {
		return fmt.Errorf("email domain %q is not fully qualified", domain)
	}
	return nil
}

// ValidateWebhookURL requires an absolute http or https URL with a host.
func ValidateWebhookURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	switch {
	case rawURL == "":
		return errors.New("webhook URL is required")
	case err != nil:
		return fmt.Errorf("invalid webhook URL: %w", err)
	case u.Scheme != "http" && u.Scheme != "https":
		return fmt.Errorf("webhook scheme %q is not http or https", u.Scheme)
	case u.Host == "":
		return errors.New("webhook URL has no host")
	}
	return nil
}

// ParseS3URL splits s3://bucket/prefix into bucket and prefix. The prefix
// has no leading or trailing slash.
func ParseS3URL(raw string) (bucket, prefix string, err error) {
	const scheme = "s3://"
	if !strings.HasPrefix(raw, scheme) {
		return "", "", fmt.Errorf("S3 URL must start with %s", scheme)
	}
	rest := strings.TrimPrefix(raw, scheme)
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("S3 URL has no bucket: %s", raw)
	}
	return bucket, strings.Trim(prefix, "/"), nil
}

// classifyHTTPError maps a transport-level failure to an error code.
func classifyHTTPError(err error) string {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return ErrorCodeTimeout
	}
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return ErrorCodeConnectionFailed
	}

	// Wrapped errors from SDKs sometimes only keep the message.
	msg := strings.ToLower(err.Error())
	for _, m := range []struct{ needle, code string }{
		{"deadline", ErrorCodeTimeout},
		{"timeout", ErrorCodeTimeout},
		{"refused", ErrorCodeConnectionFailed},
		{"no such host", ErrorCodeConnectionFailed},
		{"connection", ErrorCodeConnectionFailed},
	} {
		if strings.Contains(msg, m.needle) {
			return m.code
		}
	}
	return ErrorCodeUnknown
}

// classifyHTTPStatusCode maps a non-2xx response status to an error code.
func classifyHTTPStatusCode(code int) string {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrorCodeAuthFailed
	case http.StatusNotFound:
		return ErrorCodeRecipientNotFound
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return ErrorCodeTimeout
	case http.StatusRequestEntityTooLarge:
		return ErrorCodeContentTooLarge
	case http.StatusTooManyRequests:
		return ErrorCodeRateLimited
	}
	if code >= 500 {
		return ErrorCodeServerError
	}
	return ErrorCodeUnknown
}

// isTransientCode returns true if a failure with code can be retried.
func isTransientCode(code string) bool {
	switch code {
	case ErrorCodeConnectionFailed, ErrorCodeTimeout, ErrorCodeRateLimited,
		ErrorCodeServerError, ErrorCodeCircuitOpen:
		return true
	default:
		return false
	}
}
