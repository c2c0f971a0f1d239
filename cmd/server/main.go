// Package main is the entry point for the Rhema Context Service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apimw "github.com/rhema-dev/rhema/internal/api/middleware"
	"github.com/rhema-dev/rhema/internal/cache"
	"github.com/rhema-dev/rhema/internal/config"
	"github.com/rhema-dev/rhema/internal/loader"
	"github.com/rhema-dev/rhema/internal/pattern"
	"github.com/rhema-dev/rhema/internal/pipeline"
	"github.com/rhema-dev/rhema/internal/query"
	"github.com/rhema-dev/rhema/internal/realtime"
	"github.com/rhema-dev/rhema/internal/session"
	"github.com/rhema-dev/rhema/internal/store"
	httptransport "github.com/rhema-dev/rhema/internal/transport/http"
	"github.com/rhema-dev/rhema/internal/transport/local"
	"github.com/rhema-dev/rhema/internal/transport/mcp"
	"github.com/rhema-dev/rhema/internal/transport/ws"
	"github.com/rhema-dev/rhema/internal/validator"
	"github.com/rhema-dev/rhema/internal/watcher"
	pkglogger "github.com/rhema-dev/rhema/pkg/logger"
)

const (
	serviceName    = "rhema-context-service"
	serviceVersion = "1.0.0"
)

func main() {
	var showVersion = flag.Bool("version", false, "Show version information")
	var showHelp = flag.Bool("help", false, "Show help information")
	var configPath = flag.String("config", "", "Path to a YAML configuration file")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s version %s\n", serviceName, serviceVersion)
		os.Exit(0)
	}

	if *showHelp {
		fmt.Printf("Rhema Context Service - Repository Context Store and Query Engine\n\n")
		fmt.Printf("Usage: %s [options]\n\n", os.Args[0])
		fmt.Printf("Options:\n")
		fmt.Printf("  -config     Path to a YAML configuration file\n")
		fmt.Printf("  -version    Show version information\n")
		fmt.Printf("  -help       Show this help message\n\n")
		fmt.Printf("Environment variables override any key in the config file, e.g.\n")
		fmt.Printf("HOST, PORT, REPOSITORY_ROOT, AUTH_API_KEY, CACHE_REDIS_ADDR.\n")
		os.Exit(0)
	}

	bootLogger := pkglogger.NewLogger(pkglogger.Config{Level: "info", Output: "stdout"})

	cfg, err := loadConfig(*configPath)
	if err != nil {
		bootLogger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := pkglogger.NewLogger(pkglogger.Config{
		Level:      cfg.Log.Level,
		Format:     logFormat(cfg.Log.Structured),
		Output:     logOutput(cfg.Log.File),
		Filename:   cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})
	slog.SetDefault(logger)

	logger.Info("starting rhema context service",
		"service", serviceName,
		"version", serviceVersion,
	)

	reg := prometheus.NewRegistry()

	components, err := buildComponents(cfg, reg, logger)
	if err != nil {
		logger.Error("failed to build core components", "error", err)
		os.Exit(1)
	}

	if err := components.watcher.Start(context.Background()); err != nil {
		logger.Error("failed to start repository watcher", "error", err)
		os.Exit(1)
	}
	defer components.watcher.Stop()

	if err := components.signalHandler.Start(); err != nil {
		logger.Error("failed to start signal handler", "error", err)
		os.Exit(1)
	}
	defer components.signalHandler.Stop()

	servers := startTransports(cfg, components, reg, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GracefulShutdownTimeout)
	defer cancel()

	servers.shutdown(shutdownCtx, logger)
	logger.Info("server exited")
}

func logFormat(structured bool) string {
	if structured {
		return "json"
	}
	return "text"
}

func logOutput(file string) string {
	if file != "" {
		return "file"
	}
	return "stdout"
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadConfig(path)
	}
	return config.LoadConfigFromEnv()
}

// coreComponents bundles every long-lived piece main.go assembles once at
// startup and hands to each transport's Deps.
type coreComponents struct {
	loader        *loader.Loader
	store         *store.Store
	executor      *query.Executor
	cacheManager  *cache.Manager
	bus           *realtime.DefaultEventBus
	publisher     *realtime.EventPublisher
	watcher       *watcher.Watcher
	pipeline      *pipeline.Pipeline
	runtime       *pattern.Runtime
	sessions      *session.Manager
	signalHandler *SignalHandler
}

func buildComponents(cfg *config.Config, reg prometheus.Registerer, logger *slog.Logger) (*coreComponents, error) {
	ld, err := loader.New(cfg.RepositoryRoot)
	if err != nil {
		return nil, fmt.Errorf("building repository loader: %w", err)
	}

	st := store.New()
	result, err := ld.Load()
	if err != nil {
		return nil, fmt.Errorf("initial repository load: %w", err)
	}
	st.Replace(result)

	validation := validator.Validate(result)
	if !validation.Valid {
		logger.Warn("repository failed validation at startup",
			"errors", len(validation.Errors),
			"warnings", len(validation.Warnings),
		)
	}

	cacheCfg := buildCacheConfig(cfg)
	cacheMgr, err := cache.NewManager(cacheCfg, reg)
	if err != nil {
		return nil, fmt.Errorf("building cache manager: %w", err)
	}

	resultCache := cache.NewQueryResultCache(cacheMgr)
	executor := query.NewExecutor(st, resultCache)

	metrics := realtime.NewRealtimeMetrics("rhema")
	bus := realtime.NewEventBus(logger, metrics)
	publisher := realtime.NewEventPublisher(bus, logger, metrics)

	watchCfg := watcher.DefaultConfig(cfg.Watcher.WatchDirs...)
	if len(cfg.Watcher.WatchDirs) == 0 {
		watchCfg = watcher.DefaultConfig(cfg.RepositoryRoot)
	}
	watchCfg.Recursive = cfg.Watcher.Recursive
	watchCfg.IncludeHidden = !cfg.Watcher.IgnoreHidden
	if len(cfg.Watcher.FilePatterns) > 0 {
		watchCfg.Patterns = cfg.Watcher.FilePatterns
	}
	if cfg.Watcher.DebounceMS > 0 {
		watchCfg.Debounce = time.Duration(cfg.Watcher.DebounceMS) * time.Millisecond
	}
	w := watcher.New(watchCfg, ld, st, cacheMgr, publisher, logger)

	runtime := pattern.New(publisher, reg, logger, 30*time.Second)

	var audit session.AuditLogger = session.NoopAuditLogger{}
	if cfg.Auth.AuditLogging.Enabled && cfg.Auth.AuditLogging.LogFile != "" {
		sqliteAudit, auditErr := session.NewSQLiteAuditLogger(cfg.Auth.AuditLogging.LogFile)
		if auditErr != nil {
			return nil, fmt.Errorf("building audit logger: %w", auditErr)
		}
		audit = sqliteAudit
	}

	sessions := session.NewManager(session.Config{
		JWTSecret:                   cfg.Auth.JWTSecret,
		MaxFailedAttempts:           cfg.Auth.Security.MaxFailedAttempts,
		LockoutDuration:             cfg.Auth.Security.LockoutDuration,
		InvalidateSessionOnIPChange: cfg.Auth.Security.InvalidateSessionOnIPChange,
	}, audit, logger)

	if cfg.Auth.APIKey != "" {
		sessions.RegisterStaticAPIKey(cfg.Auth.APIKey, []string{"*"})
	}

	pipe := pipeline.New(pipeline.Config{
		MaxConnections: cfg.MaxConnections,
		RateLimit: pipeline.RateLimitConfig{
			HTTPRPM:  cfg.Auth.RateLimiting.HTTPRPM,
			WSRPM:    cfg.Auth.RateLimiting.WSMPM,
			LocalRPM: cfg.Auth.RateLimiting.LocalMPM,
		},
	}, sessions, reg, logger)

	reloader := NewRepoReloader(ld, st)
	signalHandler := NewSignalHandler(reloader, logger, NewSignalPrometheusMetrics(reg))

	return &coreComponents{
		loader:        ld,
		store:         st,
		executor:      executor,
		cacheManager:  cacheMgr,
		bus:           bus,
		publisher:     publisher,
		watcher:       w,
		pipeline:      pipe,
		runtime:       runtime,
		sessions:      sessions,
		signalHandler: signalHandler,
	}, nil
}

func buildCacheConfig(cfg *config.Config) *cache.Config {
	c := cache.DefaultConfig()
	c.L1Enabled = cfg.Cache.MemoryEnabled
	c.L1MaxEntries = cfg.Cache.MaxEntries
	c.L1MaxSizeBytes = cfg.Cache.MaxSizeBytes
	c.Eviction = cache.EvictionPolicy(strings.ToLower(string(cfg.Cache.EvictionPolicy)))
	c.L2Enabled = cfg.UsesRedis()
	c.L2Compression = cfg.Cache.CompressionEnabled
	c.RedisAddr = cfg.Cache.RedisAddr
	c.RedisPassword = cfg.Cache.RedisPassword
	c.RedisDB = cfg.Cache.RedisDB
	if cfg.Cache.TTLSeconds > 0 {
		ttl := time.Duration(cfg.Cache.TTLSeconds) * time.Second
		c.ResponseTTLDefault = ttl
		c.QueryResultTTL = ttl
	}
	return c
}

// runningServers holds everything startTransports launched, so main can
// shut each one down in turn.
type runningServers struct {
	http  *http.Server
	local net.Listener
}

func startTransports(cfg *config.Config, c *coreComponents, reg prometheus.Registerer, logger *slog.Logger) *runningServers {
	wsServer := ws.NewServer(ws.Deps{
		Store:          c.store,
		Executor:       c.executor,
		Cache:          c.cacheManager,
		Runtime:        c.runtime,
		Loader:         c.loader,
		Pipeline:       c.pipeline,
		Bus:            c.bus,
		Logger:         logger,
		AllowedOrigins: cfg.Auth.AllowedOrigins,
	})

	// mcpServer has no listener of its own (spec.md §6.4's Non-goal
	// excludes the wire-format adapter); it is built here so an
	// in-process stdio/SSE adapter can be wired to it later without
	// reshuffling this function again.
	_ = mcp.NewServer(mcp.Deps{
		Store:    c.store,
		Executor: c.executor,
		Cache:    c.cacheManager,
		Runtime:  c.runtime,
		Loader:   c.loader,
		Pipeline: c.pipeline,
		Bus:      c.bus,
		Logger:   logger,
	})

	router := httptransport.NewRouter(httptransport.Deps{
		Store:     c.store,
		Executor:  c.executor,
		Cache:     c.cacheManager,
		Runtime:   c.runtime,
		Loader:    c.loader,
		Pipeline:  c.pipeline,
		Logger:    logger,
		CORS:      corsConfigFrom(cfg),
		WSHandler: wsServer.HandleUpgrade,
	})
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info("http transport listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http transport failed", "error", err)
		}
	}()

	servers := &runningServers{http: httpServer}

	if cfg.UsesLocalSocket() {
		localServer := local.NewServer(local.Deps{
			Store:    c.store,
			Executor: c.executor,
			Cache:    c.cacheManager,
			Runtime:  c.runtime,
			Loader:   c.loader,
			Pipeline: c.pipeline,
			Bus:      c.bus,
			Logger:   logger,
		})
		ln, err := local.Listen(cfg.UnixSocket)
		if err != nil {
			logger.Error("failed to bind local socket transport", "error", err, "path", cfg.UnixSocket)
		} else {
			servers.local = ln
			go func() {
				logger.Info("local socket transport listening", "path", cfg.UnixSocket)
				if err := localServer.Serve(ln); err != nil {
					logger.Info("local socket transport stopped", "error", err)
				}
			}()
		}
	}

	return servers
}

func corsConfigFrom(cfg *config.Config) apimw.CORSConfig {
	c := apimw.DefaultCORSConfig()
	if len(cfg.Auth.AllowedOrigins) > 0 {
		c.AllowedOrigins = cfg.Auth.AllowedOrigins
	}
	return c
}

func (s *runningServers) shutdown(ctx context.Context, logger *slog.Logger) {
	if s.local != nil {
		if err := s.local.Close(); err != nil {
			logger.Warn("error closing local socket listener", "error", err)
		}
	}
	if err := s.http.Shutdown(ctx); err != nil {
		logger.Error("http transport forced to shutdown", "error", err)
	}
}
