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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/makerlab/cdp-engine/internal/feed"
	"github.com/makerlab/cdp-engine/internal/fix"
	"github.com/makerlab/cdp-engine/internal/metrics"
	"github.com/makerlab/cdp-engine/internal/params"
	"github.com/makerlab/cdp-engine/internal/server"
	"github.com/makerlab/cdp-engine/internal/spot"
	"github.com/makerlab/cdp-engine/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Price feeds ---
	// Each run gets its own oracle so the feed offset can differ per run.
	feedsDir := os.Getenv("FEEDS_DIR")
	var oracles server.OracleFactory
	if feedsDir != "" {
		oracles = func(p *params.Params) (spot.Oracle, error) {
			o := feed.NewFileOracle(p.InitTimestep)
			if err := o.LoadDir(feedsDir); err != nil {
				return nil, err
			}
			return o, nil
		}
		slog.Info("price feeds loaded from disk", "dir", feedsDir)
	} else {
		slog.Warn("FEEDS_DIR not set, using flat synthetic prices")
		oracles = func(p *params.Params) (spot.Oracle, error) {
			return feed.Static{
				p.EthPip: fix.WadFromInt(150),
				p.DaiPip: fix.WadFromInt(1),
				p.GasPip: fix.WadFromFloat(20e9),
			}, nil
		}
	}

	// --- WebSocket hub ---
	wsHub := server.NewWSHub()
	go wsHub.Run()

	// --- Run service ---
	runSvc := server.NewService(st, oracles, wsHub, logger)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"cdp-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time run progress.
		r.Get("/ws", wsHub.HandleWS)

		// Run management.
		r.Get("/runs", runSvc.ListRuns)
		r.Post("/runs", runSvc.CreateRun)
		r.Get("/runs/{runID}", runSvc.GetRun)
		r.Get("/runs/{runID}/history", runSvc.GetRunHistory)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("cdp-engine listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down cdp-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("cdp-engine stopped")
}
