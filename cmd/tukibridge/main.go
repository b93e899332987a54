package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/tukibridge/api"
	"github.com/use-agent/tukibridge/api/handler"
	"github.com/use-agent/tukibridge/browser"
	"github.com/use-agent/tukibridge/cache"
	"github.com/use-agent/tukibridge/config"
	"github.com/use-agent/tukibridge/metrics"
	"github.com/use-agent/tukibridge/probe"
	"github.com/use-agent/tukibridge/session"
	"github.com/use-agent/tukibridge/store"
	"github.com/use-agent/tukibridge/webhook"
)

func main() {
	// ── 1. Load and validate configuration ──────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("tukibridge starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"site", cfg.Site.URL,
		"headless", cfg.Browser.Headless,
	)

	// ── 3. Open the customer store ──────────────────────────────────
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		slog.Error("failed to open store", "path", cfg.Store.Path, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	// ── 4. Observers: metrics + optional webhook ────────────────────
	recorder := metrics.NewRecorder()
	observers := session.Observers{recorder}
	if n := webhook.NewNotifier(cfg.Webhook.URL, cfg.Webhook.Secret); n != nil {
		observers = append(observers, n)
		slog.Info("webhook notifications enabled")
	}

	// ── 5. Build the session (browser starts lazily or on warm-up) ──
	launch := func(ctx context.Context) (browser.Driver, error) {
		return browser.Launch(ctx, cfg.Browser, cfg.Waits.PageLoad)
	}
	opts := session.OptionsFromConfig(cfg)
	opts.Observer = observers

	sess, err := session.New(launch, opts)
	if err != nil {
		slog.Error("failed to create session", "error", err)
		os.Exit(1)
	}
	defer sess.Close()
	fetcher := session.NewFetcher(sess)

	if cfg.Session.WarmUp {
		go func() {
			if err := sess.Start(context.Background()); err != nil {
				slog.Warn("session warm-up failed, will retry on first fetch", "error", err)
				return
			}
			slog.Info("session warmed up")
		}()
	}

	// ── 6. Cache + upstream probe ───────────────────────────────────
	cc := cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL)
	defer cc.Close()

	var prober handler.UpstreamProber
	if cfg.Probe.Enabled {
		prober = probe.New(cfg.Site.URL, cfg.Probe.TTL)
	}

	// ── 7. Setup router ─────────────────────────────────────────────
	startTime := time.Now()
	router := api.NewRouter(cfg, api.Deps{
		Fetcher:   fetcher,
		Restarter: fetcher,
		Session:   sess,
		Store:     st,
		Cache:     cc,
		Metrics:   recorder,
		Prober:    prober,
	}, startTime)

	// ── 8. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 9. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// A fetch in flight can hold the session for the full result wait.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Waits.Result+5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// Deferred: session Close kills Chrome, then the cache and store close.
	slog.Info("tukibridge stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if cfg.Format == "text" {
		h = slog.NewTextHandler(os.Stdout, opts)
	} else {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(h))
}
