//go:build integration

package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rhema-dev/rhema/internal/loader"
	"github.com/rhema-dev/rhema/internal/store"
)

// End-to-end integration tests exercising the real repoReloader against an
// on-disk scope repository, rather than a mock: SIGHUP should pick up a
// file written to the repository root after the server started.

func writeScopeFixture(t *testing.T, root, content string) {
	t.Helper()
	scopeDir := filepath.Join(root, "service", "core")
	if err := os.MkdirAll(scopeDir, 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(scopeDir, "scope.yaml"), []byte("name: core\n"), 0644); err != nil {
		t.Fatalf("write scope definition failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(scopeDir, "knowledge.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write knowledge failed: %v", err)
	}
}

func TestIntegrationFullReloadFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	root := t.TempDir()
	writeScopeFixture(t, root, "- id: k1\n  title: initial\n")

	l, err := loader.New(root)
	if err != nil {
		t.Fatalf("loader.New failed: %v", err)
	}
	st := store.New()
	initial, err := l.Load()
	if err != nil {
		t.Fatalf("initial load failed: %v", err)
	}
	st.Replace(initial)

	reloader := NewRepoReloader(l, st)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	handler := NewSignalHandler(reloader, logger, NewSignalPrometheusMetrics(prometheus.NewRegistry()))

	if err := handler.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer handler.Stop()

	writeScopeFixture(t, root, "- id: k1\n  title: updated\n- id: k2\n  title: second\n")

	handler.sigChan <- syscall.SIGHUP
	time.Sleep(500 * time.Millisecond)

	recs, ok := st.GetKnowledge("service/core")
	if !ok || len(recs) != 2 {
		t.Fatalf("expected the reload to pick up the updated fixture, got %#v", recs)
	}
}

func TestIntegrationSIGHUPDebouncing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	root := t.TempDir()
	writeScopeFixture(t, root, "- id: k1\n  title: initial\n")

	l, err := loader.New(root)
	if err != nil {
		t.Fatalf("loader.New failed: %v", err)
	}
	st := store.New()

	reloader := NewRepoReloader(l, st)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	handler := NewSignalHandler(reloader, logger, NewSignalPrometheusMetrics(prometheus.NewRegistry()))
	handler.debounceWindow = 200 * time.Millisecond

	if err := handler.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer handler.Stop()

	handler.sigChan <- syscall.SIGHUP
	time.Sleep(50 * time.Millisecond)
	handler.sigChan <- syscall.SIGHUP
	time.Sleep(50 * time.Millisecond)
	handler.sigChan <- syscall.SIGHUP

	time.Sleep(400 * time.Millisecond)

	if handler.getLastReloadTime().IsZero() {
		t.Fatal("expected at least one reload to have completed")
	}
}

func TestIntegrationGracefulShutdownDuringReload(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	root := t.TempDir()
	writeScopeFixture(t, root, "- id: k1\n  title: initial\n")

	l, err := loader.New(root)
	if err != nil {
		t.Fatalf("loader.New failed: %v", err)
	}
	st := store.New()

	reloader := NewRepoReloader(l, st)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	handler := NewSignalHandler(reloader, logger, NewSignalPrometheusMetrics(prometheus.NewRegistry()))

	if err := handler.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	handler.sigChan <- syscall.SIGHUP
	time.Sleep(100 * time.Millisecond)
	handler.Stop()

	select {
	case <-handler.ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not stop within timeout")
	}
}

func TestIntegrationConcurrentSignals(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	root := t.TempDir()
	writeScopeFixture(t, root, "- id: k1\n  title: initial\n")

	l, err := loader.New(root)
	if err != nil {
		t.Fatalf("loader.New failed: %v", err)
	}
	st := store.New()

	reloader := NewRepoReloader(l, st)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	handler := NewSignalHandler(reloader, logger, NewSignalPrometheusMetrics(prometheus.NewRegistry()))
	handler.debounceWindow = 50 * time.Millisecond

	if err := handler.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer handler.Stop()

	done := make(chan bool)
	go func() {
		for i := 0; i < 5; i++ {
			handler.sigChan <- syscall.SIGHUP
			time.Sleep(20 * time.Millisecond)
		}
		done <- true
	}()
	<-done

	time.Sleep(500 * time.Millisecond)

	if handler.GetMetrics() == nil {
		t.Fatal("expected metrics to remain accessible after concurrent signals")
	}
}
