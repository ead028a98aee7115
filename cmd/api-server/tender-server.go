package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"tendly/db"
	"tendly/db/migrations"
	"tendly/internal/config"
	"tendly/internal/handlers"
	"tendly/internal/logger"
	"tendly/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("Cannot load config: %v", err)
	}
	if err := cfg.RequireDatabase(); err != nil {
		log.Fatal(err)
	}

	lg, err := logger.New(logger.Config{Level: cfg.Log.Level})
	if err != nil {
		log.Fatalf("Cannot init logger: %v", err)
	}
	defer lg.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbConn, err := db.Connect(ctx, cfg.Database.URL)
	if err != nil {
		lg.Error("cannot connect to db", logger.Error(err))
		os.Exit(1)
	}
	defer dbConn.Close()

	if err := migrations.Run(dbConn.DB); err != nil {
		lg.Error("migrations failed", logger.Error(err))
		os.Exit(1)
	}

	store := db.NewStorage(dbConn)
	h := handlers.NewHandler(store, lg, cfg.Export.MaxRows)
	m := metrics.New()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(handlers.RequestLogger(lg))
	r.Use(middleware.Recoverer)
	r.Use(m.Middleware)

	r.Route("/api", h.Routes)
	r.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		lg.Info("starting server", logger.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("server failed", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("graceful shutdown failed", logger.Error(err))
	}
}
