// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/dumpvault/internal/backup"
	"github.com/tomtom215/dumpvault/internal/config"
	"github.com/tomtom215/dumpvault/internal/delivery"
	"github.com/tomtom215/dumpvault/internal/process"
	"github.com/tomtom215/dumpvault/internal/process/processtest"
	"github.com/tomtom215/dumpvault/internal/store"
)

var dumpContent = []byte("PGDMP\x01\x0e\x00 custom archive " + strings.Repeat("payload ", 100))

const tocListing = ";\n; Archive created at 2026-01-01\n;\n3; 2615 2200 SCHEMA - public postgres\n"

// testServer wires a real orchestrator over a temp store to the router.
type testServer struct {
	t         *testing.T
	store     *store.Store
	runner    *processtest.Runner
	deliverer *fakeDeliverer
	orch      *backup.Orchestrator
	handler   http.Handler
	now       time.Time

	mu       sync.Mutex
	restored []byte
}

type serverOption func(*Options, *ChiMiddlewareConfig)

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()

	st, err := store.New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	ts := &testServer{
		t:         t,
		store:     st,
		runner:    processtest.New(),
		deliverer: &fakeDeliverer{},
		now:       time.Now(),
	}
	ts.runner.Handle("pg_dump", fakePgDump)
	ts.runner.Handle("pg_restore", ts.fakePgRestore)

	orch, err := backup.New(backup.Options{
		Store:     st,
		Runner:    ts.runner,
		Deliverer: ts.deliverer,
		Database: config.DatabaseConfig{
			Host:           "db",
			Port:           5432,
			User:           "app",
			Password:       "s3cret",
			Name:           "tickets",
			DumpCommand:    "pg_dump",
			RestoreCommand: "pg_restore",
		},
		Retention: config.RetentionConfig{MaxAgeDays: 7},
		Now:       func() time.Time { return ts.now },
	})
	if err != nil {
		t.Fatalf("failed to create orchestrator: %v", err)
	}
	ts.orch = orch

	hopts := Options{
		Backups:           orch,
		CompressByDefault: true,
		Version:           "test",
	}
	mwCfg := DefaultChiMiddlewareConfig()
	mwCfg.RateLimitDisabled = true
	for _, o := range opts {
		o(&hopts, mwCfg)
	}

	h, err := NewHandler(hopts)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	ts.handler = NewRouter(h, NewChiMiddleware(mwCfg)).Setup()
	return ts
}

// do sends a request through the router. body may be nil.
func (ts *testServer) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	ts.t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			ts.t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

// seed writes an artifact created age before ts.now.
func (ts *testServer) seed(age time.Duration, content []byte) *store.Artifact {
	ts.t.Helper()
	created := ts.now.Add(-age)
	name := store.NewFilename(store.KindDatabase, created)
	path := ts.store.Path(name)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		ts.t.Fatalf("failed to seed artifact: %v", err)
	}
	if err := os.Chtimes(path, created, created); err != nil {
		ts.t.Fatalf("failed to set mtime: %v", err)
	}
	a, err := ts.store.Get(context.Background(), name)
	if err != nil {
		ts.t.Fatalf("failed to stat seeded artifact: %v", err)
	}
	return a
}

func (ts *testServer) restoredInput() []byte {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.restored
}

func fakePgDump(_ context.Context, cmd process.Command) (*process.Result, error) {
	for _, a := range cmd.Args {
		if path, ok := strings.CutPrefix(a, "--file="); ok {
			if err := os.WriteFile(path, dumpContent, 0o600); err != nil {
				return nil, err
			}
			return &process.Result{}, nil
		}
	}
	return nil, errors.New("pg_dump called without --file")
}

func (ts *testServer) fakePgRestore(_ context.Context, cmd process.Command) (*process.Result, error) {
	var data []byte
	if cmd.Stdin != nil {
		data, _ = io.ReadAll(cmd.Stdin)
	} else {
		data, _ = os.ReadFile(cmd.Args[len(cmd.Args)-1])
	}
	if !bytes.HasPrefix(data, []byte("PGDMP")) {
		stderr := "pg_restore: error: input file does not appear to be a valid archive\n"
		return &process.Result{ExitCode: 1, StderrTail: []byte(stderr)},
			&process.ProcessExecutionError{Command: cmd.Name, ExitCode: 1, StderrTail: stderr}
	}
	for _, a := range cmd.Args {
		if a == "--list" {
			_, _ = io.WriteString(cmd.Stdout, tocListing)
			return &process.Result{}, nil
		}
	}
	ts.mu.Lock()
	ts.restored = data
	ts.mu.Unlock()
	return &process.Result{}, nil
}

// fakeDeliverer fails the recipients in fail and records the rest.
type fakeDeliverer struct {
	mu   sync.Mutex
	fail map[string]bool
	got  []string
}

func (d *fakeDeliverer) Deliver(_ context.Context, _ *store.Artifact, recipients []string, _ string) *delivery.Report {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.got = append(d.got, recipients...)

	report := &delivery.Report{DeliveryID: "test", Total: len(recipients), Status: delivery.StatusDelivered}
	for _, r := range recipients {
		res := delivery.Result{Recipient: r, Channel: "fake", Success: !d.fail[r]}
		if res.Success {
			report.Successful++
		} else {
			res.ErrorCode = delivery.ErrorCodeServerError
			res.ErrorMessage = "scripted failure"
			report.Failed++
			report.Status = delivery.StatusPartial
		}
		report.Results = append(report.Results, res)
	}
	return report
}

func (d *fakeDeliverer) recipients() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.got...)
}

// decode unmarshals a response body into v.
func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
}

// assertError checks status and error code of an error response.
func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) ErrorResponse {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, status, rec.Body.String())
	}
	var body ErrorResponse
	decode(t, rec, &body)
	if body.Code != code {
		t.Errorf("code = %q, want %q", body.Code, code)
	}
	if body.Error == "" {
		t.Error("error message should not be empty")
	}
	return body
}
