// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

package delivery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/tomtom215/dumpvault/internal/config"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		email   string
		wantErr bool
	}{
		{"ops@example.com", false},
		{"first.last+tag@sub.example.org", false},
		{"", true},
		{"no-at-sign", true},
		{"@example.com", true},
		{"ops@", true},
		{"ops@localhost", true},
		{"a@b@example.com", true},
		{"ops@example.com\r\nBcc: x@y.z", true},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEmail(%q) error = %v, wantErr %v", tt.email, err, tt.wantErr)
			}
		})
	}
}

func TestValidateWebhookURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://hooks.example.com/backup", false},
		{"http://10.0.0.1:8080/hook", false},
		{"", true},
		{"ftp://example.com", true},
		{"https://", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := ValidateWebhookURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateWebhookURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestParseS3URL(t *testing.T) {
	tests := []struct {
		raw        string
		wantBucket string
		wantPrefix string
		wantErr    bool
	}{
		{"s3://backups", "backups", "", false},
		{"s3://backups/", "backups", "", false},
		{"s3://backups/nightly/pg/", "backups", "nightly/pg", false},
		{"s3:///nightly", "", "", true},
		{"https://backups/nightly", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			bucket, prefix, err := ParseS3URL(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseS3URL(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if bucket != tt.wantBucket || prefix != tt.wantPrefix {
				t.Errorf("ParseS3URL(%q) = (%q, %q), want (%q, %q)", tt.raw, bucket, prefix, tt.wantBucket, tt.wantPrefix)
			}
		})
	}
}

func TestClassifyHTTPStatusCode(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{401, ErrorCodeAuthFailed},
		{403, ErrorCodeAuthFailed},
		{404, ErrorCodeRecipientNotFound},
		{408, ErrorCodeTimeout},
		{413, ErrorCodeContentTooLarge},
		{429, ErrorCodeRateLimited},
		{500, ErrorCodeServerError},
		{503, ErrorCodeServerError},
		{418, ErrorCodeUnknown},
	}

	for _, tt := range tests {
		if got := classifyHTTPStatusCode(tt.code); got != tt.want {
			t.Errorf("classifyHTTPStatusCode(%d) = %s, want %s", tt.code, got, tt.want)
		}
	}
}

func TestClassifyHTTPError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{errors.New("context deadline exceeded"), ErrorCodeTimeout},
		{errors.New("dial tcp: connection refused"), ErrorCodeConnectionFailed},
		{errors.New("lookup nowhere: no such host"), ErrorCodeConnectionFailed},
		{errors.New("something odd"), ErrorCodeUnknown},
		{fmt.Errorf("post: %w", context.DeadlineExceeded), ErrorCodeTimeout},
		{&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("reset")}, ErrorCodeConnectionFailed},
		{fmt.Errorf("send: %w", &net.DNSError{Err: "server misbehaving", Name: "hooks.example.com"}), ErrorCodeConnectionFailed},
	}

	for _, tt := range tests {
		if got := classifyHTTPError(tt.err); got != tt.want {
			t.Errorf("classifyHTTPError(%q) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestIsTransientCode(t *testing.T) {
	transient := []string{ErrorCodeConnectionFailed, ErrorCodeTimeout, ErrorCodeRateLimited, ErrorCodeServerError, ErrorCodeCircuitOpen}
	permanent := []string{ErrorCodeInvalidConfig, ErrorCodeInvalidRecipient, ErrorCodeAuthFailed, ErrorCodeContentTooLarge, ErrorCodeRecipientNotFound, ErrorCodeArtifactMissing, ErrorCodeUnknown}

	for _, code := range transient {
		if !isTransientCode(code) {
			t.Errorf("expected %s to be transient", code)
		}
	}
	for _, code := range permanent {
		if isTransientCode(code) {
			t.Errorf("expected %s to be permanent", code)
		}
	}
}

func TestChannelAccepts(t *testing.T) {
	email := NewEmailChannel(config.EmailConfig{})
	webhook := NewWebhookChannel(config.WebhookConfig{Enabled: true}, DefaultBreakerSettings())
	s3ch := &S3Channel{}

	tests := []struct {
		recipient string
		want      string
	}{
		{"ops@example.com", "email"},
		{"https://hooks.example.com/x", "webhook"},
		{"http://user@hooks.example.com/x", "webhook"},
		{"s3://bucket/prefix", "s3"},
		{"ftp://example.com", ""},
		{"just-a-name", ""},
	}

	for _, tt := range tests {
		t.Run(tt.recipient, func(t *testing.T) {
			var got []string
			for _, ch := range []Channel{s3ch, webhook, email} {
				if ch.Accepts(tt.recipient) {
					got = append(got, ch.Name())
				}
			}
			switch {
			case tt.want == "" && len(got) != 0:
				t.Errorf("expected no channel, got %v", got)
			case tt.want != "" && (len(got) != 1 || got[0] != tt.want):
				t.Errorf("expected only %s, got %v", tt.want, got)
			}
		})
	}
}
