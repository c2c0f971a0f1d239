package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rhema-dev/rhema/internal/loader"
	"github.com/rhema-dev/rhema/internal/store"
)

// Signal handler for repository hot reload via SIGHUP.
//
// A long-running server holds the on-disk scope repository entirely in
// memory (internal/store.Store), populated once at startup by
// internal/loader. SIGHUP re-runs the loader against the same repository
// root and atomically swaps the Store's contents in, the same operational
// pattern the teacher used for its own SIGHUP-triggered config reload,
// generalized here to reloading scope data instead of a config file.

// Reloader re-runs discovery and load against the on-disk repository and
// reports the outcome. The production implementation (repoReloader) swaps
// the loaded result into the Store as-is; it does not run the validator
// first. internal/watcher already reloads
// per-changed-file during normal operation; SIGHUP exists for an operator
// to force a full reload without restarting the process, or to pick up a
// change the file watcher's patterns don't cover.
type Reloader interface {
	Reload(ctx context.Context) (*ReloadResult, error)
}

// ReloadResult summarizes one reload pass.
type ReloadResult struct {
	ScopeCount int
	Degraded   bool
	Errors     []string
}

// repoReloader is the concrete Reloader backing production use: re-run the
// Loader against its configured root and replace the Store's snapshot.
type repoReloader struct {
	loader *loader.Loader
	store  *store.Store
}

// NewRepoReloader builds a Reloader that refreshes store from loader on
// every Reload call.
func NewRepoReloader(l *loader.Loader, s *store.Store) Reloader {
	return &repoReloader{loader: l, store: s}
}

func (r *repoReloader) Reload(_ context.Context) (*ReloadResult, error) {
	result, err := r.loader.Load()
	if err != nil {
		return nil, err
	}
	r.store.Replace(result)

	errs := make([]string, 0, len(result.Errors))
	for _, e := range result.Errors {
		errs = append(errs, e.Error())
	}
	return &ReloadResult{
		ScopeCount: len(result.Scopes),
		Degraded:   len(result.Degraded) > 0,
		Errors:     errs,
	}, nil
}

// SignalMetricsInterface defines the interface for signal handler metrics.
type SignalMetricsInterface interface {
	RecordReloadAttempt(source, status string)
	RecordReloadDuration(source string, duration float64)
	RecordSuccessTimestamp(source string, timestamp float64)
	RecordFailureTimestamp(source string, timestamp float64)
}

// SignalHandler manages Unix signal handling for hot reload.
type SignalHandler struct {
	reloader Reloader
	logger   *slog.Logger
	metrics  SignalMetricsInterface

	lastReloadTime atomic.Value // time.Time
	debounceWindow time.Duration

	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	sigChan    chan os.Signal
	reloadChan chan struct{}
}

// NewSignalHandler creates a new SignalHandler.
func NewSignalHandler(reloader Reloader, logger *slog.Logger, metrics SignalMetricsInterface) *SignalHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewSignalPrometheusMetrics(nil)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &SignalHandler{
		reloader:       reloader,
		logger:         logger,
		metrics:        metrics,
		debounceWindow: 1 * time.Second,
		ctx:            ctx,
		cancel:         cancel,
		sigChan:        make(chan os.Signal, 1),
		reloadChan:     make(chan struct{}, 10),
	}
}

// Start begins listening for signals.
func (h *SignalHandler) Start() error {
	h.logger.Info("starting signal handler for repository hot reload")

	signal.Notify(h.sigChan, syscall.SIGHUP)

	h.wg.Add(1)
	go h.signalListener()

	h.wg.Add(1)
	go h.reloadWorker()

	h.logger.Info("signal handler started successfully",
		"signals", []string{"SIGHUP"},
		"debounce_window", h.debounceWindow,
	)

	return nil
}

// Stop stops signal handling.
func (h *SignalHandler) Stop() {
	h.logger.Info("stopping signal handler")

	signal.Stop(h.sigChan)
	close(h.sigChan)

	h.cancel()
	h.wg.Wait()

	h.logger.Info("signal handler stopped successfully")
}

func (h *SignalHandler) signalListener() {
	defer h.wg.Done()

	for {
		select {
		case sig, ok := <-h.sigChan:
			if !ok {
				return
			}

			h.logger.Info("received signal", "signal", sig.String())

			switch sig {
			case syscall.SIGHUP:
				select {
				case h.reloadChan <- struct{}{}:
					h.logger.Debug("reload request queued")
				default:
					h.logger.Warn("reload queue full, skipping request")
				}
			}

		case <-h.ctx.Done():
			return
		}
	}
}

func (h *SignalHandler) reloadWorker() {
	defer h.wg.Done()

	for {
		select {
		case <-h.reloadChan:
			if h.shouldDebounce() {
				h.logger.Debug("reload debounced (too soon after previous reload)")
				continue
			}

			h.updateLastReloadTime()
			h.executeReload()

		case <-h.ctx.Done():
			return
		}
	}
}

func (h *SignalHandler) shouldDebounce() bool {
	lastReload := h.getLastReloadTime()
	if lastReload.IsZero() {
		return false
	}

	return time.Since(lastReload) < h.debounceWindow
}

func (h *SignalHandler) updateLastReloadTime() {
	h.lastReloadTime.Store(time.Now())
}

func (h *SignalHandler) getLastReloadTime() time.Time {
	val := h.lastReloadTime.Load()
	if val == nil {
		return time.Time{}
	}
	return val.(time.Time)
}

func (h *SignalHandler) executeReload() {
	startTime := time.Now()
	source := "sighup"

	h.logger.Info("executing repository reload via SIGHUP")

	reloadCtx, cancel := context.WithTimeout(h.ctx, 30*time.Second)
	defer cancel()

	result, err := h.reloader.Reload(reloadCtx)
	if err != nil {
		h.handleReloadError("repository reload failed", err, startTime, source)
		return
	}

	duration := time.Since(startTime)
	h.metrics.RecordReloadAttempt(source, "success")
	h.metrics.RecordReloadDuration(source, duration.Seconds())
	h.metrics.RecordSuccessTimestamp(source, float64(time.Now().Unix()))

	h.logger.Info("repository reload completed via SIGHUP",
		"scope_count", result.ScopeCount,
		"degraded", result.Degraded,
		"error_count", len(result.Errors),
		"duration_ms", duration.Milliseconds(),
	)

	for i, e := range result.Errors {
		if i >= 5 {
			h.logger.Warn("... and more reload errors", "total", len(result.Errors))
			break
		}
		h.logger.Warn("reload error", "detail", e)
	}
}

func (h *SignalHandler) handleReloadError(message string, err error, startTime time.Time, source string) {
	duration := time.Since(startTime)
	h.metrics.RecordReloadAttempt(source, "failure")
	h.metrics.RecordReloadDuration(source, duration.Seconds())
	h.metrics.RecordFailureTimestamp(source, float64(time.Now().Unix()))

	h.logger.Error(message,
		"error", err,
		"duration_ms", duration.Milliseconds(),
		"source", source,
	)
}

// GetMetrics returns signal metrics (for testing/inspection).
func (h *SignalHandler) GetMetrics() SignalMetricsInterface {
	return h.metrics
}
