// Package server sets up the HTTP server, router, and all route definitions.
//
// This is the composition root: every dependency is built and wired here,
// in New, and torn down in Start once the server stops.
//
//	config → KV store (sqlite | redis) → SnapshotCache
//	       → github.Client ─┐
//	                        ├→ PortfolioService + StatusBoard → Supervisor
//	                        └→ PortfolioHandler → routes
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/brewfolio/internal/auth"
	"github.com/sakif/brewfolio/internal/cache"
	"github.com/sakif/brewfolio/internal/config"
	"github.com/sakif/brewfolio/internal/github"
	"github.com/sakif/brewfolio/internal/handler"
	"github.com/sakif/brewfolio/internal/markdown"
	"github.com/sakif/brewfolio/internal/middleware"
	"github.com/sakif/brewfolio/internal/repository"
	redisRepo "github.com/sakif/brewfolio/internal/repository/redis"
	sqliteRepo "github.com/sakif/brewfolio/internal/repository/sqlite"
	"github.com/sakif/brewfolio/internal/service"
	"github.com/sakif/brewfolio/internal/view"
	"github.com/sakif/brewfolio/web"
)

// githubHTMLURL is where README-relative links point.
const githubHTMLURL = "https://github.com"

// Server represents the HTTP server and all its dependencies.
//
// The Server owns the KV store and the background supervisor; both are
// released during shutdown.
type Server struct {
	router     *chi.Mux
	config     *config.Config
	logger     *slog.Logger
	store      repository.KVStore
	supervisor *service.Supervisor
	// base parents the supervisor and every request; cancel ends both.
	base   context.Context
	cancel context.CancelFunc
}

// New builds the whole dependency graph from cfg.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())

	store, err := openStore(ctx, cfg.Cache)
	if err != nil {
		cancel()
		return nil, err
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		store:  store,
		base:   ctx,
		cancel: cancel,
	}

	if err := s.setupRoutes(ctx); err != nil {
		cancel()
		store.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// openStore picks the KV backend for the snapshot cache.
func openStore(ctx context.Context, cfg config.CacheConfig) (repository.KVStore, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		store, err := redisRepo.New(ctx, redisRepo.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, fmt.Errorf("opening redis: %w", err)
		}
		return store, nil
	default:
		db, err := sqliteRepo.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		return db, nil
	}
}

// setupRoutes wires the service graph and registers routes.
//
// ROUTE STRUCTURE:
// GET  /                               → home (hero, pinned, stats summary)
// GET  /repos, /repos/{name}           → repository grid, README modal
// GET  /followers, /stats              → follower grid, stats page
// POST /ui                             → apply a view action (form)
// POST /refresh                        → manual refresh (throttled)
// POST /stale                          → continue with cached data
// GET  /events                         → status/tick/cue event stream (SSE)
// GET  /api/snapshot                   → portfolio JSON
// POST /api/refresh                    → manual refresh JSON (throttled)
// GET  /api/countdown?reset=           → countdown label
// GET  /api/repos/{name}/readme        → rendered README
// GET  /api/repos/{name}/participation → weekly commits (202 while computing)
// GET  /health, /static/*
func (s *Server) setupRoutes(ctx context.Context) error {
	cfg := s.config

	codec, err := auth.NewSessionCodec(cfg.Session.Secret)
	if err != nil {
		return fmt.Errorf("creating session codec: %w", err)
	}
	if cfg.Session.Secret == "" {
		s.logger.Warn("SESSION_SECRET not set; view state resets on restart")
	}
	verifier, err := auth.NewKeyVerifier(cfg.Session.RefreshKeyHash)
	if err != nil {
		return fmt.Errorf("creating refresh key verifier: %w", err)
	}

	client := github.New(github.Options{
		APIURL:     cfg.GitHub.APIURL,
		GraphQLURL: cfg.GitHub.GraphQLURL,
		RawURL:     cfg.GitHub.RawURL,
		Token:      cfg.GitHub.Token,
		Timeout:    cfg.GitHub.Timeout,
	}, s.logger)
	if !client.Authenticated() {
		s.logger.Warn("GITHUB_TOKEN not set; using the anonymous rate limit and REST pinned fallback")
	}

	snapshots := cache.New(s.store, cfg.Cache.Key, cfg.Cache.TTL, s.logger)
	board := service.NewStatusBoard()
	portfolio := service.NewPortfolioService(client, snapshots, cfg.GitHub.Username, board, s.logger)
	s.supervisor = service.NewSupervisor(ctx, portfolio, service.RecoveryOptions{
		Interval:      cfg.Recovery.Interval,
		ImpactDelay:   cfg.Recovery.ImpactDelay,
		Cycle:         cfg.Recovery.Cycle,
		CountdownTick: cfg.Recovery.CountdownTick,
	}, s.logger)

	timing := view.DefaultTiming
	timing.Drop = cfg.Recovery.ImpactDelay

	h, err := handler.NewPortfolioHandler(portfolio, handler.Options{
		Templates: web.Templates(),
		Codec:     codec,
		Verifier:  verifier,
		Markdown:  markdown.New(cfg.GitHub.RawURL, githubHTMLURL),
		Timing:    timing,
		Logger:    s.logger,
	})
	if err != nil {
		return fmt.Errorf("creating portfolio handler: %w", err)
	}

	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	throttle := middleware.Throttle(cfg.Session.RefreshPerMin, s.logger)

	s.router.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(web.Static())))
	s.router.Get("/health", h.HandleHealth)

	// === Pages ===
	s.router.Group(func(r chi.Router) {
		r.Use(auth.LoadState(codec))

		r.Get("/", h.HandleHome)
		r.Get("/repos", h.HandleRepos)
		r.Get("/repos/{name}", h.HandleRepo)
		r.Get("/followers", h.HandleFollowers)
		r.Get("/stats", h.HandleStats)
		r.Get("/events", h.HandleEvents)

		r.Post("/ui", h.HandleAction)
		r.Post("/stale", h.HandleUseStale)
		r.With(throttle).Post("/refresh", h.HandleRefresh)
	})

	// === API ===
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/snapshot", h.HandleSnapshot)
		r.With(throttle).Post("/refresh", h.HandleAPIRefresh)
		r.Get("/countdown", h.HandleCountdown)
		r.Get("/repos/{name}/readme", h.HandleReadme)
		r.Get("/repos/{name}/participation", h.HandleParticipation)
	})

	return nil
}

// Handler exposes the router, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close stops background work and releases the store. Start calls it on
// shutdown; callers that never Start (tests) call it directly.
func (s *Server) Close() error {
	s.cancel()
	s.supervisor.Stop()
	return s.store.Close()
}

// Start serves until SIGINT/SIGTERM, then shuts down gracefully:
//  1. stop accepting connections and drain in-flight requests (30s)
//  2. stop the recovery loop and countdown
//  3. close the KV store
func (s *Server) Start() error {
	defer func() {
		if err := s.Close(); err != nil {
			s.logger.Error("closing store", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second, // /events clears its own deadline
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return s.base },
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Server.Port)),
			slog.String("login", s.config.GitHub.Username),
			slog.String("cache_backend", s.config.Cache.Backend),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		// Event streams only end when their request context does, and every
		// request context derives from base.
		srv.RegisterOnShutdown(s.cancel)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
