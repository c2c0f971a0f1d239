// Package watcher implements the Watcher & Invalidator (component F): a
// debounced filesystem observer that coalesces a burst of changes into one
// invalidation pass, and never leaves the Context Store or caches in a
// torn state if that pass fails. Each pass reloads and revalidates the
// whole repository; only the scopes the pass touched are swapped into the
// Context Store.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/rhema-dev/rhema/internal/cache"
	"github.com/rhema-dev/rhema/internal/loader"
	"github.com/rhema-dev/rhema/internal/realtime"
	"github.com/rhema-dev/rhema/internal/rhema"
	"github.com/rhema-dev/rhema/internal/store"
	"github.com/rhema-dev/rhema/internal/validator"
)

// Watcher observes a repository tree and keeps the Context Store and Cache
// Manager in sync with it.
type Watcher struct {
	cfg    Config
	ld     *loader.Loader
	st     *store.Store
	cache  *cache.Manager
	pub    *realtime.EventPublisher
	logger *slog.Logger

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Watcher. cache and pub may be nil (caches disabled / no
// real-time subscribers configured); every call site nil-checks them.
func New(cfg Config, ld *loader.Loader, st *store.Store, mgr *cache.Manager, pub *realtime.EventPublisher, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		cfg:     cfg,
		ld:      ld,
		st:      st,
		cache:   mgr,
		pub:     pub,
		logger:  logger.With("component", "watcher"),
		pending: make(map[string]struct{}),
	}
}

// Start begins watching cfg.Roots (recursively, unless disabled) and
// returns once the initial directory tree is registered. The invalidation
// loop runs in a background goroutine until ctx is cancelled or Stop is
// called.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watcher: %w", err)
	}
	w.fsw = fsw
	w.stopCh = make(chan struct{})

	for _, root := range w.cfg.Roots {
		if err := w.addTree(root); err != nil {
			return fmt.Errorf("watcher: add root %q: %w", root, err)
		}
	}

	w.wg.Add(1)
	go w.loop(ctx)
	w.logger.Info("watcher started", "roots", w.cfg.Roots, "debounce", w.cfg.Debounce)
	return nil
}

// Stop halts the filesystem watch and waits for the invalidation loop to
// drain.
func (w *Watcher) Stop() error {
	if w.fsw == nil {
		return nil
	}
	close(w.stopCh)
	err := w.fsw.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) addTree(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return w.fsw.Add(filepath.Dir(root))
	}
	if !w.cfg.Recursive {
		return w.fsw.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		base := filepath.Base(path)
		if base != "." && strings.HasPrefix(base, ".") && !w.cfg.IncludeHidden {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") && !w.cfg.IncludeHidden {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() && w.cfg.Recursive {
			_ = w.addTree(event.Name)
		}
	}

	isResource := w.cfg.matchesPattern(base)
	isScopeDef := loader.IsScopeDefinitionFile(base)
	if !isResource && !isScopeDef {
		return
	}

	w.mu.Lock()
	w.pending[event.Name] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.cfg.Debounce, func() {
		w.runInvalidation(context.Background())
	})
	w.mu.Unlock()
}

// resolveScope walks up from path looking for the nearest ancestor
// directory containing scope.yaml, returning its repository-relative,
// slash-separated path.
func (w *Watcher) resolveScope(path string) (string, bool) {
	dir := filepath.Dir(path)
	if strings.EqualFold(filepath.Base(path), "scope.yaml") {
		dir = filepath.Dir(path)
	}
	root := w.ld.Root()
	for {
		if _, err := os.Stat(filepath.Join(dir, "scope.yaml")); err == nil {
			rel, err := filepath.Rel(root, dir)
			if err != nil {
				return "", false
			}
			return filepath.ToSlash(rel), true
		}
		if dir == root || dir == filepath.Dir(dir) {
			return "", false
		}
		dir = filepath.Dir(dir)
	}
}

// touched describes one scope an invalidation pass needs to reconsider.
type touched struct {
	kinds map[rhema.ResourceKind]bool
}

func (w *Watcher) runInvalidation(ctx context.Context) {
	w.mu.Lock()
	paths := w.pending
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	scopes := map[string]*touched{}
	touch := func(scopePath string) *touched {
		t, ok := scopes[scopePath]
		if !ok {
			t = &touched{kinds: map[rhema.ResourceKind]bool{}}
			scopes[scopePath] = t
		}
		return t
	}
	for path := range paths {
		// A deleted scope directory can no longer resolve via its
		// scope.yaml (resolveScope needs the directory to still exist),
		// so an unresolved path isn't dropped outright: it still forces
		// the reparse-and-diff below, which is what actually detects a
		// scope's removal.
		if scopePath, ok := w.resolveScope(path); ok {
			t := touch(scopePath)
			if kind, ok := loader.ResourceKindForFile(filepath.Base(path)); ok {
				t.kinds[kind] = true
			}
		}
	}

	result, err := w.ld.Load()
	if err != nil {
		w.logger.Error("watcher reparse failed, store left untouched", "error", err)
		for scopePath := range scopes {
			w.publishDegraded(scopePath, err.Error())
		}
		return
	}
	for _, prevScope := range w.st.ListScopes() {
		if _, stillExists := result.Scopes[prevScope.Path]; !stillExists {
			touch(prevScope.Path)
		}
	}
	vr := validator.Validate(result)

	for scopePath, t := range scopes {
		data, stillExists := result.Scopes[scopePath]
		if !stillExists {
			w.invalidateScope(ctx, scopePath)
			w.st.RemoveScope(scopePath)
			w.publishChanged(scopePath, t.kinds)
			continue
		}

		if per, ok := vr.PerScopeResults[scopePath]; ok && !per.IsValid {
			reason := "validation failed"
			if len(per.Errors) > 0 {
				reason = per.Errors[0].Message
			}
			w.logger.Warn("scope failed revalidation, keeping last known-good record",
				"scope", scopePath, "reason", reason)
			w.publishDegraded(scopePath, reason)
			continue
		}

		w.invalidateScope(ctx, scopePath)
		w.st.ReplaceScope(scopePath, data)
		w.publishChanged(scopePath, t.kinds)
	}

	if w.pub != nil {
		_ = w.pub.PublishNotificationsChanged(len(scopes))
	}
}

// invalidateScope drops every response-cache entry prefixed by scopePath
// and, since CQL's wildcard/relative scope targeting means a single
// scope's change can invalidate a query cached under "*", purges the
// entire query-result namespace rather than attempting a scope-prefixed
// match that would miss those entries (see DESIGN.md).
func (w *Watcher) invalidateScope(ctx context.Context, scopePath string) {
	if w.cache == nil {
		return
	}
	w.cache.InvalidatePrefix(ctx, cache.NamespaceResponse, scopePath)
	w.cache.InvalidatePrefix(ctx, cache.NamespaceQueryResult, "")
}

func (w *Watcher) publishChanged(scopePath string, kinds map[rhema.ResourceKind]bool) {
	if w.pub == nil {
		return
	}
	names := make([]string, 0, len(kinds))
	for k := range kinds {
		names = append(names, string(k))
	}
	_ = w.pub.PublishScopeChanged(scopePath, names)
	for k := range kinds {
		_ = w.pub.PublishResourceChanged(scopePath, string(k))
	}
}

func (w *Watcher) publishDegraded(scopePath, reason string) {
	if w.pub == nil {
		return
	}
	_ = w.pub.PublishScopeDegraded(scopePath, reason)
}
