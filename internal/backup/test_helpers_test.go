// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

package backup

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/dumpvault/internal/config"
	"github.com/tomtom215/dumpvault/internal/delivery"
	"github.com/tomtom215/dumpvault/internal/events"
	"github.com/tomtom215/dumpvault/internal/process"
	"github.com/tomtom215/dumpvault/internal/process/processtest"
	"github.com/tomtom215/dumpvault/internal/store"
)

// dumpContent is what the fake pg_dump writes.
var dumpContent = []byte("PGDMP\x01\x0e\x00 custom archive body " + strings.Repeat("row data ", 200))

const tocListing = ";\n; Archive created at 2026-01-01\n;\n3; 2615 2200 SCHEMA - public postgres\n215; 1259 16385 TABLE public tickets app\n"

// testEnv holds the common test environment setup
type testEnv struct {
	dir       string
	store     *store.Store
	runner    *processtest.Runner
	publisher *recordingPublisher
	deliverer *fakeDeliverer
	orch      *Orchestrator
	now       time.Time

	restoreMu    sync.Mutex
	restoreInput []byte
}

// newTestEnv creates an orchestrator over a temp store with fake pg_dump and
// pg_restore handlers.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	st, err := store.New(dir, nil)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	env := &testEnv{
		dir:       dir,
		store:     st,
		runner:    processtest.New(),
		publisher: &recordingPublisher{},
		deliverer: &fakeDeliverer{},
		now:       time.Now(),
	}
	env.runner.Handle("pg_dump", fakePgDump(dumpContent))
	env.runner.Handle("pg_restore", env.fakePgRestore)

	env.orch = env.newOrchestrator(t, nil)
	return env
}

func (e *testEnv) newOrchestrator(t *testing.T, mutate func(*Options)) *Orchestrator {
	t.Helper()
	opts := Options{
		Store:     e.store,
		Runner:    e.runner,
		Deliverer: e.deliverer,
		Publisher: e.publisher,
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
		Now:       func() time.Time { return e.now },
	}
	if mutate != nil {
		mutate(&opts)
	}
	o, err := New(opts)
	if err != nil {
		t.Fatalf("failed to create orchestrator: %v", err)
	}
	return o
}

// seed writes an artifact whose modification time is age before e.now.
func (e *testEnv) seed(t *testing.T, age time.Duration, content []byte) *store.Artifact {
	t.Helper()
	created := e.now.Add(-age)
	name := store.NewFilename(store.KindDatabase, created)
	path := e.store.Path(name)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("failed to seed artifact: %v", err)
	}
	if err := os.Chtimes(path, created, created); err != nil {
		t.Fatalf("failed to set mtime: %v", err)
	}
	a, err := e.store.Get(context.Background(), name)
	if err != nil {
		t.Fatalf("failed to stat seeded artifact: %v", err)
	}
	return a
}

// dirEntries lists every name in the store directory, hidden files included.
func (e *testEnv) dirEntries(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(e.dir)
	if err != nil {
		t.Fatalf("failed to read store dir: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func (e *testEnv) lastRestoreInput() []byte {
	e.restoreMu.Lock()
	defer e.restoreMu.Unlock()
	return e.restoreInput
}

// fakePgDump writes content to the --file argument.
func fakePgDump(content []byte) processtest.Handler {
	return func(_ context.Context, cmd process.Command) (*process.Result, error) {
		path := argValue(cmd.Args, "--file=")
		if path == "" {
			return nil, errors.New("pg_dump called without --file")
		}
		if err := os.WriteFile(path, content, 0o600); err != nil {
			return nil, err
		}
		return &process.Result{}, nil
	}
}

// fakePgRestore lists archives starting with PGDMP and records restore input.
func (e *testEnv) fakePgRestore(_ context.Context, cmd process.Command) (*process.Result, error) {
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

	if hasArg(cmd.Args, "--list") {
		_, _ = io.WriteString(cmd.Stdout, tocListing)
		return &process.Result{}, nil
	}

	e.restoreMu.Lock()
	e.restoreInput = data
	e.restoreMu.Unlock()
	return &process.Result{}, nil
}

func argValue(args []string, prefix string) string {
	for _, a := range args {
		if strings.HasPrefix(a, prefix) {
			return strings.TrimPrefix(a, prefix)
		}
	}
	return ""
}

func hasArg(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []*events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e *events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func (p *recordingPublisher) has(t events.Type) bool {
	for _, got := range p.types() {
		if got == t {
			return true
		}
	}
	return false
}

// fakeDeliverer fails the recipients listed in fail and succeeds the rest.
type fakeDeliverer struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls int
	seen  []*store.Artifact
}

func (d *fakeDeliverer) Deliver(_ context.Context, a *store.Artifact, recipients []string, _ string) *delivery.Report {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	d.seen = append(d.seen, a)

	report := &delivery.Report{DeliveryID: "test", Total: len(recipients)}
	for _, r := range recipients {
		res := delivery.Result{Recipient: r, Channel: "fake", Success: !d.fail[r]}
		if !res.Success {
			res.ErrorCode = delivery.ErrorCodeServerError
			res.ErrorMessage = "scripted failure"
			report.Failed++
		} else {
			report.Successful++
		}
		report.Results = append(report.Results, res)
	}
	switch {
	case report.Failed == 0:
		report.Status = delivery.StatusDelivered
	case report.Successful == 0:
		report.Status = delivery.StatusFailed
	default:
		report.Status = delivery.StatusPartial
	}
	return report
}

// failingCompressor writes some bytes to dst and then fails.
type failingCompressor struct{}

func (failingCompressor) Method() string { return "failing" }

func (failingCompressor) Compress(_ context.Context, _, dst string) error {
	if err := os.WriteFile(dst, []byte("partial"), 0o600); err != nil {
		return err
	}
	return errors.New("disk full")
}

// stubProbe returns err from Ping.
type stubProbe struct{ err error }

func (p stubProbe) Ping(context.Context) error { return p.err }

// blockingDeliverer holds Deliver open until proceed is closed.
type blockingDeliverer struct {
	entered chan struct{}
	proceed chan struct{}
}

func (d *blockingDeliverer) Deliver(ctx context.Context, a *store.Artifact, recipients []string, trigger string) *delivery.Report {
	close(d.entered)
	<-d.proceed
	return (&fakeDeliverer{}).Deliver(ctx, a, recipients, trigger)
}
