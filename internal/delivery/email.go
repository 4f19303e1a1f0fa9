// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

package delivery

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/dumpvault/internal/config"
)

// EmailChannel mails the artifact as a MIME attachment over SMTP.
type EmailChannel struct {
	cfg            config.EmailConfig
	defaultTimeout time.Duration
}

// NewEmailChannel creates a new email delivery channel.
//
//nolint:gocritic // config is copied once at construction
func NewEmailChannel(cfg config.EmailConfig) *EmailChannel {
	return &EmailChannel{
		cfg:            cfg,
		defaultTimeout: 30 * time.Second,
	}
}

// Name returns the channel identifier.
func (c *EmailChannel) Name() string {
	return "email"
}

// Accepts reports whether recipient looks like an email address.
func (c *EmailChannel) Accepts(recipient string) bool {
	return strings.Contains(recipient, "@") && !strings.Contains(recipient, "://")
}

// maxAttachmentBytes is the largest artifact the channel will attach.
func (c *EmailChannel) maxAttachmentBytes() int64 {
	return int64(c.cfg.MaxAttachmentMB) * 1024 * 1024
}

// Send delivers the artifact via email.
func (c *EmailChannel) Send(ctx context.Context, params *SendParams) (*Result, error) {
	result := newResult(c.Name(), params.Recipient)

	if err := ValidateEmail(params.Recipient); err != nil {
		return result.fail(ErrorCodeInvalidRecipient, err.Error()), nil //nolint:nilerr // Error is captured in result struct, not returned
	}
	if !c.cfg.Enabled || c.cfg.Host == "" || c.cfg.From == "" {
		return result.fail(ErrorCodeInvalidConfig, "SMTP delivery is not configured"), nil
	}
	if limit := c.maxAttachmentBytes(); limit > 0 && params.Artifact.SizeBytes > limit {
		return result.fail(ErrorCodeContentTooLarge, fmt.Sprintf(
			"artifact is %d bytes, attachment limit is %d MB", params.Artifact.SizeBytes, c.cfg.MaxAttachmentMB)), nil
	}

	f, err := os.Open(params.Artifact.Path)
	if err != nil {
		return result.fail(ErrorCodeArtifactMissing, fmt.Sprintf("open artifact: %v", err)), nil //nolint:nilerr // Error is captured in result struct, not returned
	}
	defer f.Close()

	if err := c.sendSMTP(ctx, params, f); err != nil {
		return result.fail(classifyEmailError(err), err.Error()), nil
	}
	return result.succeed(), nil
}

// writeMessage writes headers, a short text body and the base64 attachment.
func (c *EmailChannel) writeMessage(w io.Writer, params *SendParams, attachment io.Reader) error {
	a := params.Artifact
	mw := multipart.NewWriter(w)

	fromName := c.cfg.FromName
	if fromName == "" {
		fromName = "Dumpvault"
	}
	subject := strings.TrimSpace(fmt.Sprintf("%s Database backup %s", c.cfg.SubjectPrefix, a.Filename))

	var hdr strings.Builder
	fmt.Fprintf(&hdr, "From: %s <%s>\r\n", mime.QEncoding.Encode("utf-8", fromName), c.cfg.From)
	fmt.Fprintf(&hdr, "To: %s\r\n", params.Recipient)
	fmt.Fprintf(&hdr, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&hdr, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	if params.DeliveryID != "" {
		fmt.Fprintf(&hdr, "X-Dumpvault-Delivery: %s\r\n", params.DeliveryID)
	}
	hdr.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&hdr, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mw.Boundary())
	if _, err := io.WriteString(w, hdr.String()); err != nil {
		return err
	}

	text, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/plain; charset=UTF-8"},
	})
	if err != nil {
		return err
	}
	body := fmt.Sprintf("Database backup %s\r\nCreated: %s\r\nSize: %d bytes\r\nCompressed: %t\r\nVerified: %s\r\n",
		a.Filename, a.CreatedAt.UTC().Format(time.RFC3339), a.SizeBytes, a.Compressed, a.Verified)
	if params.Trigger != "" {
		body += "Trigger: " + params.Trigger + "\r\n"
	}
	if _, err := io.WriteString(text, body); err != nil {
		return err
	}

	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"application/octet-stream"},
		"Content-Transfer-Encoding": {"base64"},
		"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": a.Filename})},
	})
	if err != nil {
		return err
	}
	enc := base64.NewEncoder(base64.StdEncoding, &lineBreaker{w: part})
	if _, err := io.Copy(enc, attachment); err != nil {
		return fmt.Errorf("failed to write attachment: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return mw.Close()
}

// sendSMTP sends the message via SMTP.
func (c *EmailChannel) sendSMTP(ctx context.Context, params *SendParams, attachment io.Reader) error {
	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))

	dialer := &net.Dialer{Timeout: c.defaultTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer func() { _ = conn.Close() }() //nolint:errcheck // Best effort cleanup

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, c.cfg.Host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer func() { _ = client.Close() }() //nolint:errcheck // Best effort cleanup

	if c.cfg.UseTLS {
		tlsConfig := &tls.Config{
			ServerName: c.cfg.Host,
			MinVersion: tls.VersionTLS12,
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	}

	if c.cfg.Username != "" && c.cfg.Password != "" {
		auth := smtp.PlainAuth("", c.cfg.Username, c.cfg.Password, c.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(c.cfg.From); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := client.Rcpt(params.Recipient); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start message: %w", err)
	}
	if err := c.writeMessage(writer, params, attachment); err != nil {
		_ = writer.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close message: %w", err)
	}

	// The message is accepted once DATA is closed; a failed QUIT is harmless.
	_ = client.Quit()
	return nil
}

// classifyEmailError maps SMTP reply codes to error codes and falls back to
// transport classification for everything else.
func classifyEmailError(err error) string {
	var reply *textproto.Error
	if errors.As(err, &reply) {
		switch reply.Code {
		case 530, 534, 535:
			return ErrorCodeAuthFailed
		case 552:
			return ErrorCodeContentTooLarge
		case 550, 551, 553:
			return ErrorCodeRecipientNotFound
		case 421:
			return ErrorCodeConnectionFailed
		case 450, 451, 452:
			return ErrorCodeServerError
		}
		if reply.Code >= 500 {
			return ErrorCodeUnknown
		}
	}
	if strings.Contains(strings.ToLower(err.Error()), "auth") {
		return ErrorCodeAuthFailed
	}
	return classifyHTTPError(err)
}

// lineBreaker inserts CRLF every 76 characters as RFC 2045 requires for
// base64 bodies.
type lineBreaker struct {
	w    io.Writer
	used int
}

const base64LineLen = 76

func (l *lineBreaker) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		room := base64LineLen - l.used
		chunk := p
		if len(chunk) > room {
			chunk = p[:room]
		}
		n, err := l.w.Write(chunk)
		written += n
		if err != nil {
			return written, err
		}
		l.used += n
		p = p[n:]
		if l.used == base64LineLen {
			if _, err := io.WriteString(l.w, "\r\n"); err != nil {
				return written, err
			}
			l.used = 0
		}
	}
	return written, nil
}
