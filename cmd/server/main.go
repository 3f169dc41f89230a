package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	app "github.com/storydesk/curation/internal/app"
	"github.com/storydesk/curation/internal/app/httpapi"
	"github.com/storydesk/curation/internal/app/metrics"
	"github.com/storydesk/curation/internal/app/services/auth"
	"github.com/storydesk/curation/internal/app/storage"
	"github.com/storydesk/curation/internal/app/storage/postgres"
	"github.com/storydesk/curation/internal/config"
	"github.com/storydesk/curation/internal/middleware"
	"github.com/storydesk/curation/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	// A local .env is optional.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging).WithField("component", "server")

	var store storage.Store
	if cfg.Database.DSN != "" {
		db, err := openDatabase(cfg.Database)
		if err != nil {
			log.WithError(err).Error("Failed to connect to database")
			os.Exit(1)
		}
		defer db.Close()

		pgStore := postgres.NewStore(db)
		if err := pgStore.Migrate(context.Background()); err != nil {
			log.WithError(err).Error("Failed to run migrations")
			os.Exit(1)
		}
		store = pgStore
		log.Info("Using postgres storage")
	} else {
		log.Warn("DATABASE_DSN not set, using in-memory storage")
	}

	application, err := app.New(app.Config{
		Store: store,
		Auth: auth.Config{
			Secret:     cfg.Auth.Secret,
			AccessTTL:  cfg.Auth.AccessTTL.Std(),
			RefreshTTL: cfg.Auth.RefreshTTL.Std(),
		},
		Log: log,
	})
	if err != nil {
		log.WithError(err).Error("Failed to build application")
		os.Exit(1)
	}

	var handler http.Handler = httpapi.NewHandler(application)
	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log)
		limiter.StartCleanup(10 * time.Minute)
		handler = limiter.Handler(handler)
	}
	handler = middleware.NewCORSMiddleware(cfg.CORS.AllowedOrigins).Handler(handler)
	handler = middleware.RequestLogger(log)(handler)
	handler = metrics.InstrumentHandler(handler)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", handler)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
	}

	go func() {
		log.WithField("addr", server.Addr).Info("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Server failed")
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Shutdown error")
	}
}

func openDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime.Std())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}
