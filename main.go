package main

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"birthdaysite/config"
	"birthdaysite/internal/app"
	contentHandler "birthdaysite/internal/content"
	"birthdaysite/internal/proxy"
	"birthdaysite/pkg/logger"
	"birthdaysite/router"
	"birthdaysite/socket"
)

func main() {
	// 1. Load configuration from .env and the environment, then start logging.
	cfg, err := config.Load()
	if err != nil {
		logger.Init("info")
		logger.Sugar.Fatalf("Invalid configuration: %v", err)
	}
	logger.Init(cfg.LogLevel)
	defer logger.Log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Open the local cache and the remote store, then resolve the document.
	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Sugar.Fatalf("Failed to start: %v", err)
	}
	defer a.Close()

	_, source := a.Session.Load(ctx)
	logger.Sugar.Infof("Content loaded from %s", source)

	// 3. The offline proxy fronts the static site and replays queued writes.
	site, err := origin(cfg)
	if err != nil {
		logger.Sugar.Fatalf("Invalid origin: %v", err)
	}
	p := proxy.New(site, proxy.NewCacheStorage(), proxy.Config{Version: cfg.CacheVersion})
	defer p.Close()
	p.SetOfflineQueue(a.Queue, a.Replayer())
	a.Session.SetOfflineSyncer(p)

	if err := p.Install(ctx); err != nil {
		logger.Sugar.Warnf("Offline cache not installed, serving straight from origin: %v", err)
	} else if err := p.Activate(); err != nil {
		logger.Sugar.Warnf("Offline cache not activated: %v", err)
	}

	// 4. The hub pushes content changes to open pages and tracks visibility,
	// which gates the periodic refresh.
	hub := socket.NewHub(a.Session)
	go hub.Run(ctx)
	go a.Session.Run(ctx)

	h := contentHandler.NewContentHandler(a.Session, p)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router.Setup(h, hub, p, cfg.AdminSecret),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Sugar.Infof("Birthday site listening on :%s", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Sugar.Fatalf("Server failed: %v", err)
	}
}

// origin serves the site from ORIGIN_URL when set, otherwise from STATIC_DIR.
func origin(cfg *config.Config) (proxy.Fetcher, error) {
	if cfg.OriginURL != "" {
		u, err := url.Parse(cfg.OriginURL)
		if err != nil {
			return nil, err
		}
		return &proxy.HTTPFetcher{Origin: u, Client: &http.Client{Timeout: 30 * time.Second}}, nil
	}
	return proxy.DirFetcher(cfg.StaticDir), nil
}
