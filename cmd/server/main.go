/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the energy cost engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags and load configuration
  2. Configure zerolog
  3. Open the store (SQLite or Postgres)
  4. Wrap it in the tariff cache and apply the tariff file
  5. Create the engine, quote service and API handler
  6. Configure HTTP router
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Optional YAML config file (see config/config.go for the keys)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the tariff reload scheduler
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ENGINE_DB_DSN=./data/energy.db ./server

  # Run with in-memory database and admin routes
  ENGINE_DB_DSN=":memory:" ENGINE_AUTH_JWT_SECRET=dev ./server

  # Run against Postgres
  ENGINE_DB_DRIVER=postgres ENGINE_DB_DSN=postgres://engine@localhost/energy ./server

SEE ALSO:
  - config/config.go: Settings and environment variables
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
*/
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/warp/energy-engine/api"
	"github.com/warp/energy-engine/calculator"
	"github.com/warp/energy-engine/config"
	"github.com/warp/energy-engine/energy"
	"github.com/warp/energy-engine/metrics"
	"github.com/warp/energy-engine/quote"
	"github.com/warp/energy-engine/store/postgres"
	"github.com/warp/energy-engine/store/sqlite"
	"github.com/warp/energy-engine/tariffcache"
)

// store is what both database backends provide.
type store interface {
	energy.TariffStore
	energy.QuoteStore
	Ping(ctx context.Context) error
	Close() error
}

func main() {
	// Flags
	configPath := flag.String("config", "", "YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := newLogger(cfg)

	// Initialize store
	db, err := openStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("failed to initialize database")
	}
	defer db.Close()

	rec := metrics.New(prometheus.DefaultRegisterer)
	tariffs := tariffcache.New(db,
		tariffcache.WithTTL(cfg.CacheTTL),
		tariffcache.WithObserver(rec),
	)

	// Apply the tariff file before serving
	reloader := api.NewTariffReloader(db, tariffs, cfg.SeedFile, logger.With().Str("component", "tariffs").Logger())
	reloader.Observer = rec
	if _, err := reloader.Reload(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("failed to load tariffs")
	}
	reloader.Start(cfg.ReloadInterval)
	defer reloader.Stop()

	engine := calculator.NewEngine(tariffs,
		calculator.WithEstimates(cfg.Estimates),
		calculator.WithObserver(rec),
	)
	quotes := quote.NewService(engine, db,
		quote.WithObserver(rec),
		quote.WithLogger(logger.With().Str("component", "quotes").Logger()),
	)

	// Initialize handler
	handler := api.NewHandler(api.Deps{
		Engine:   engine,
		Tariffs:  tariffs,
		Quotes:   quotes,
		Cache:    tariffs,
		Reloader: reloader,
		Exports:  rec,
		Pinger:   db,
		Logger:   logger,
	})

	// Create router
	router := api.NewRouter(handler, api.RouterConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		JWTSecret:      cfg.JWTSecret,
		Metrics:        promhttp.Handler(),
		Logger:         logger,
	})
	if cfg.JWTSecret == "" {
		logger.Warn().Msg("auth.jwt_secret not set, admin routes disabled")
	}

	// Create server
	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Str("driver", cfg.DBDriver).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	logger.Info().Msg("server stopped")
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339

	var logger zerolog.Logger
	if cfg.LogFormat == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Str("service", "energy-engine").Logger()
}

func openStore(cfg config.Config) (store, error) {
	if cfg.DBDriver == "postgres" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return postgres.Connect(ctx, cfg.DBDSN)
	}
	return sqlite.New(cfg.DBDSN)
}
