package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kyb/internal/documents"
	"kyb/internal/enrichment/handler"
	enrichmentmetrics "kyb/internal/enrichment/metrics"
	"kyb/internal/enrichment/service"
	"kyb/internal/enrichment/worker"
	"kyb/internal/identity/store/attempt"
	"kyb/internal/identity/store/entity"
	"kyb/internal/identity/store/identifier"
	"kyb/internal/identity/store/snapshot"
	jwttoken "kyb/internal/jwt_token"
	"kyb/internal/platform/config"
	"kyb/internal/platform/httpserver"
	"kyb/internal/platform/logger"
	httpmetrics "kyb/internal/platform/metrics"
	"kyb/internal/platform/postgres"
	"kyb/internal/platform/redis"
	authmw "kyb/pkg/platform/middleware/auth"
	"kyb/pkg/platform/middleware/request"
	"kyb/pkg/platform/middleware/requesttime"
)

// main wires dependencies, exposes the HTTP router and owns the process
// lifecycle. Business logic lives in internal service packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Server.Environment, cfg.Server.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		log.Info("registry cache enabled", "ttl", cfg.Registry.CacheTTL)
	}

	stores := buildStores(db)
	if err := seedEntities(ctx, cfg, stores, log); err != nil {
		return err
	}

	registries, deriver := buildRegistries(cfg, redisClient, log)

	extractor, err := buildExtractor(cfg, log)
	if err != nil {
		return err
	}

	docs, err := buildDocuments(cfg)
	if err != nil {
		return err
	}

	auditor, closeAudit, err := buildAudit(ctx, cfg, db, log)
	if err != nil {
		return err
	}
	defer closeAudit()

	episodeMetrics := enrichmentmetrics.New()
	svc := service.New(stores, registries, deriver,
		service.WithExtractor(extractor),
		service.WithDocuments(docs),
		service.WithAuditor(auditor),
		service.WithLogger(log),
		service.WithMetrics(episodeMetrics),
	)

	recovered, err := svc.RecoverAbandoned(ctx, cfg.Episode.StaleThreshold)
	if err != nil {
		return fmt.Errorf("recover abandoned attempts: %w", err)
	}
	if recovered > 0 {
		log.Warn("marked abandoned verification attempts", "count", recovered)
	}

	runner := worker.New(svc,
		worker.WithEpisodeTimeout(cfg.Episode.Timeout),
		worker.WithLogger(log),
		worker.WithMetrics(episodeMetrics),
	)

	router := newRouter(cfg, log, httpmetrics.New(), handler.New(svc, runner, log), healthCheck(db, redisClient))
	srv := httpserver.New(cfg.Server.Addr, router)

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting kyb", "addr", cfg.Server.Addr, "environment", cfg.Server.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "error", err)
	}
	// Episodes still running past the deadline are cancelled and stay
	// PENDING until the next start marks them abandoned.
	if err := runner.Shutdown(shutdownCtx); err != nil {
		log.Warn("verification episodes cancelled at shutdown", "error", err)
	}
	return nil
}

func openDatabase(ctx context.Context, cfg config.Config, log *slog.Logger) (*sql.DB, error) {
	if cfg.Database.URL == "" {
		if cfg.Server.IsProduction() {
			return nil, errors.New("DATABASE_URL is required in production")
		}
		log.Warn("DATABASE_URL not set, using in-memory stores")
		return nil, nil
	}
	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("database ready")
	return db, nil
}

func buildStores(db *sql.DB) service.Stores {
	if db == nil {
		return service.Stores{
			Identifiers: identifier.NewInMemoryStore(),
			Attempts:    attempt.NewInMemoryStore(),
			Entities:    entity.NewInMemoryStore(),
			Snapshots:   snapshot.NewInMemoryStore(),
		}
	}
	return service.Stores{
		Identifiers: identifier.NewPostgres(db),
		Attempts:    attempt.NewPostgres(db),
		Entities:    entity.NewPostgres(db),
		Snapshots:   snapshot.NewPostgres(db),
	}
}

func seedEntities(ctx context.Context, cfg config.Config, stores service.Stores, log *slog.Logger) error {
	if cfg.Server.SeedFile == "" {
		return nil
	}
	creator, ok := stores.Entities.(entity.Creator)
	if !ok {
		return errors.New("entity store does not support seeding")
	}
	f, err := os.Open(cfg.Server.SeedFile)
	if err != nil {
		return fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	created, err := entity.Seed(ctx, creator, f, time.Now().UTC())
	if err != nil {
		return err
	}
	log.Info("seeded legal entities", "created", created, "file", cfg.Server.SeedFile)
	return nil
}

func buildDocuments(cfg config.Config) (documents.Store, error) {
	if cfg.Documents.Dir == "" {
		return documents.NewInMemoryStore(), nil
	}
	return documents.NewFSStore(cfg.Documents.Dir)
}

func newRouter(cfg config.Config, log *slog.Logger, m *httpmetrics.Metrics, h *handler.Handler, health http.HandlerFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(request.Recovery(log))
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(request.Logger(log))
	r.Use(m.Middleware)

	r.Get("/healthz", health)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(request.Timeout(cfg.Server.RequestTimeout))
		if cfg.Server.AuthDisabled {
			log.Warn("authentication disabled, requests run as anonymous")
			r.Use(authmw.Anonymous("anonymous"))
		} else {
			jwtService := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience)
			r.Use(authmw.RequireAuth(jwttoken.NewValidator(jwtService), log))
		}
		h.Register(r)
	})
	return r
}

func healthCheck(db *sql.DB, redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		if redisClient != nil {
			if err := redisClient.Health(ctx); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
