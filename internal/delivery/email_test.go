// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

package delivery

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/mail"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/tomtom215/dumpvault/internal/config"
)

// fakeSMTPServer speaks just enough SMTP for net/smtp without TLS or AUTH.
type fakeSMTPServer struct {
	ln         net.Listener
	rejectRcpt bool

	mu       sync.Mutex
	messages [][]byte
	rcpts    []string
}

func startFakeSMTP(t *testing.T) *fakeSMTPServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &fakeSMTPServer{ln: ln}
	go s.serve()
	t.Cleanup(func() { _ = ln.Close() })
	return s
}

func (s *fakeSMTPServer) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *fakeSMTPServer) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *fakeSMTPServer) handle(conn net.Conn) {
	defer conn.Close()
	tp := textproto.NewConn(conn)
	_ = tp.PrintfLine("220 localhost ESMTP fake")

	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		verb := strings.ToUpper(strings.SplitN(line, " ", 2)[0])
		switch verb {
		case "EHLO", "HELO":
			_ = tp.PrintfLine("250-localhost")
			_ = tp.PrintfLine("250 8BITMIME")
		case "MAIL":
			_ = tp.PrintfLine("250 OK")
		case "RCPT":
			if s.rejectRcpt {
				_ = tp.PrintfLine("550 mailbox unavailable")
				continue
			}
			s.mu.Lock()
			s.rcpts = append(s.rcpts, line)
			s.mu.Unlock()
			_ = tp.PrintfLine("250 OK")
		case "DATA":
			_ = tp.PrintfLine("354 go ahead")
			data, err := tp.ReadDotBytes()
			if err != nil {
				return
			}
			s.mu.Lock()
			s.messages = append(s.messages, data)
			s.mu.Unlock()
			_ = tp.PrintfLine("250 queued")
		case "RSET", "NOOP":
			_ = tp.PrintfLine("250 OK")
		case "QUIT":
			_ = tp.PrintfLine("221 bye")
			return
		default:
			_ = tp.PrintfLine("502 not implemented")
		}
	}
}

func (s *fakeSMTPServer) received() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.messages...)
}

func emailConfigFor(s *fakeSMTPServer) config.EmailConfig {
	return config.EmailConfig{
		Enabled:         true,
		Host:            "127.0.0.1",
		Port:            s.port(),
		From:            "backups@example.com",
		FromName:        "Dumpvault",
		MaxAttachmentMB: 1,
		SubjectPrefix:   "[dumpvault]",
	}
}

func TestEmailChannel_SendAttachment(t *testing.T) {
	srv := startFakeSMTP(t)
	ch := NewEmailChannel(emailConfigFor(srv))

	content := bytes.Repeat([]byte("PGDMP dump bytes "), 500)
	a := newTestArtifact(t, content)

	res, err := ch.Send(context.Background(), &SendParams{Recipient: "dba@example.com", Artifact: a, DeliveryID: "d-1", Trigger: "nightly"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %s: %s", res.ErrorCode, res.ErrorMessage)
	}
	if res.DeliveredAt == nil {
		t.Error("expected DeliveredAt to be set")
	}

	msgs := srv.received()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}

	msg, err := mail.ReadMessage(bytes.NewReader(msgs[0]))
	if err != nil {
		t.Fatalf("parse message: %v", err)
	}
	if got := msg.Header.Get("To"); got != "dba@example.com" {
		t.Errorf("To = %q", got)
	}
	if got := msg.Header.Get("X-Dumpvault-Delivery"); got != "d-1" {
		t.Errorf("X-Dumpvault-Delivery = %q", got)
	}
	subject, _ := new(mime.WordDecoder).DecodeHeader(msg.Header.Get("Subject"))
	if !strings.Contains(subject, a.Filename) {
		t.Errorf("subject %q should name the artifact", subject)
	}

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/mixed" {
		t.Fatalf("unexpected content type %q: %v", msg.Header.Get("Content-Type"), err)
	}

	mr := multipart.NewReader(msg.Body, params["boundary"])
	var attachment []byte
	var bodyText string
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("next part: %v", err)
		}
		if part.FileName() != "" {
			if part.FileName() != a.Filename {
				t.Errorf("attachment filename = %q, want %q", part.FileName(), a.Filename)
			}
			raw, _ := io.ReadAll(part)
			for _, line := range strings.Split(string(raw), "\n") {
				if len(strings.TrimSuffix(line, "\r")) > 76 {
					t.Errorf("base64 line exceeds 76 characters: %d", len(line))
					break
				}
			}
			attachment, err = io.ReadAll(base64.NewDecoder(base64.StdEncoding, bytes.NewReader(raw)))
			if err != nil {
				t.Fatalf("decode attachment: %v", err)
			}
			continue
		}
		raw, _ := io.ReadAll(part)
		bodyText = string(raw)
	}

	if !bytes.Equal(attachment, content) {
		t.Errorf("attachment does not match artifact (%d vs %d bytes)", len(attachment), len(content))
	}
	if !strings.Contains(bodyText, "Trigger: nightly") {
		t.Errorf("body should name the trigger, got %q", bodyText)
	}
}

func TestEmailChannel_Failures(t *testing.T) {
	srv := startFakeSMTP(t)
	small := []byte("PGDMP")

	tests := []struct {
		name      string
		cfg       func() config.EmailConfig
		recipient string
		artifact  func(t *testing.T) *SendParams
		wantCode  string
	}{
		{
			name:      "invalid recipient",
			cfg:       func() config.EmailConfig { return emailConfigFor(srv) },
			recipient: "not-an-address",
			wantCode:  ErrorCodeInvalidRecipient,
		},
		{
			name:      "disabled",
			cfg:       func() config.EmailConfig { c := emailConfigFor(srv); c.Enabled = false; return c },
			recipient: "dba@example.com",
			wantCode:  ErrorCodeInvalidConfig,
		},
		{
			name: "attachment too large",
			cfg:  func() config.EmailConfig { return emailConfigFor(srv) },
			artifact: func(t *testing.T) *SendParams {
				a := newTestArtifact(t, small)
				a.SizeBytes = 2 * 1024 * 1024
				return &SendParams{Recipient: "dba@example.com", Artifact: a}
			},
			wantCode: ErrorCodeContentTooLarge,
		},
		{
			name: "artifact missing",
			cfg:  func() config.EmailConfig { return emailConfigFor(srv) },
			artifact: func(t *testing.T) *SendParams {
				a := newTestArtifact(t, small)
				a.Path += ".gone"
				return &SendParams{Recipient: "dba@example.com", Artifact: a}
			},
			wantCode: ErrorCodeArtifactMissing,
		},
		{
			name: "connection refused",
			cfg: func() config.EmailConfig {
				c := emailConfigFor(srv)
				ln, _ := net.Listen("tcp", "127.0.0.1:0")
				c.Port = ln.Addr().(*net.TCPAddr).Port
				_ = ln.Close()
				return c
			},
			recipient: "dba@example.com",
			wantCode:  ErrorCodeConnectionFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := NewEmailChannel(tt.cfg())
			params := &SendParams{Recipient: tt.recipient, Artifact: newTestArtifact(t, small)}
			if tt.artifact != nil {
				params = tt.artifact(t)
			}
			res, err := ch.Send(context.Background(), params)
			if err != nil {
				t.Fatalf("Send() error = %v", err)
			}
			if res.Success {
				t.Fatal("expected failure")
			}
			if res.ErrorCode != tt.wantCode {
				t.Errorf("ErrorCode = %s, want %s (%s)", res.ErrorCode, tt.wantCode, res.ErrorMessage)
			}
		})
	}
}

func TestEmailChannel_RecipientRejected(t *testing.T) {
	srv := startFakeSMTP(t)
	srv.rejectRcpt = true
	ch := NewEmailChannel(emailConfigFor(srv))

	res, err := ch.Send(context.Background(), &SendParams{Recipient: "gone@example.com", Artifact: newTestArtifact(t, []byte("PGDMP"))})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.ErrorCode != ErrorCodeRecipientNotFound {
		t.Errorf("ErrorCode = %s, want %s (%s)", res.ErrorCode, ErrorCodeRecipientNotFound, res.ErrorMessage)
	}
	if res.IsTransient {
		t.Error("a rejected mailbox should not be retried")
	}
}

func TestClassifyEmailError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&textproto.Error{Code: 535, Msg: "bad credentials"}, ErrorCodeAuthFailed},
		{fmt.Errorf("data: %w", &textproto.Error{Code: 552, Msg: "message too big"}), ErrorCodeContentTooLarge},
		{&textproto.Error{Code: 550, Msg: "no such user"}, ErrorCodeRecipientNotFound},
		{&textproto.Error{Code: 451, Msg: "try later"}, ErrorCodeServerError},
		{&textproto.Error{Code: 421, Msg: "closing"}, ErrorCodeConnectionFailed},
		{errors.New("smtp: server doesn't support AUTH"), ErrorCodeAuthFailed},
		{fmt.Errorf("dial: %w", context.DeadlineExceeded), ErrorCodeTimeout},
		{errors.New("odd"), ErrorCodeUnknown},
	}

	for _, tt := range tests {
		if got := classifyEmailError(tt.err); got != tt.want {
			t.Errorf("classifyEmailError(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestLineBreaker(t *testing.T) {
	var buf bytes.Buffer
	lb := &lineBreaker{w: &buf}

	input := strings.Repeat("A", 200)
	for i := 0; i < len(input); i += 7 {
		end := min(i+7, len(input))
		if _, err := lb.Write([]byte(input[i:end])); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	sc := bufio.NewScanner(&buf)
	var lengths []string
	for sc.Scan() {
		lengths = append(lengths, strconv.Itoa(len(strings.TrimSuffix(sc.Text(), "\r"))))
	}
	if got := strings.Join(lengths, ","); got != "76,76,48" {
		t.Errorf("line lengths = %s, want 76,76,48", got)
	}
}
