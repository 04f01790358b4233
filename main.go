package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"retail-bank/config"
	"retail-bank/database"
	"retail-bank/handlers"
	"retail-bank/ledger"
	"retail-bank/store"
)

func main() {
	cfg := config.Load()
	logger := newLogger(cfg)
	log.Logger = logger

	gw, err := openStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.DB.Driver).Msg("could not open store")
	}
	defer gw.Close()

	l := ledger.New(gw, ledger.Options{
		Retries: cfg.ConflictRetries,
		Logger:  logger.With().Str("component", "ledger").Logger(),
	})
	h := handlers.New(l, []byte(cfg.JWTSecret), cfg.TokenTTL, logger.With().Str("component", "http").Logger())

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Str("driver", cfg.DB.Driver).Msg("server is running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http serve error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop
	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.LogFormat == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

// openStore picks the persistence gateway named by STORE_DRIVER.
func openStore(cfg *config.Config) (store.Gateway, error) {
	if cfg.DB.Driver == "json" {
		return store.NewDocumentStore(cfg.DataPath), nil
	}
	db, dialect, err := database.Connect(cfg.DB)
	if err != nil {
		return nil, err
	}
	if err := database.RunMigrations(db, dialect); err != nil {
		db.Close()
		return nil, err
	}
	return store.NewSQLStore(db, dialect), nil
}
