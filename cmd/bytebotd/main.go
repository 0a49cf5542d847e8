// Command bytebotd runs on the desktop container and executes
// computer-use actions against the local X display.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	bbhttp "github.com/bytebot-ai/bytebot/internal/adapter/http"
	"github.com/bytebot-ai/bytebot/internal/adapter/xdotool"
	"github.com/bytebot-ai/bytebot/internal/config"
	"github.com/bytebot-ai/bytebot/internal/logger"
	"github.com/bytebot-ai/bytebot/internal/middleware"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logCfg := cfg.Logging
	logCfg.Service = "bytebotd"
	log, logCloser := logger.New(logCfg)
	defer logCloser.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.DaemonServer.Port,
		"display", cfg.DaemonServer.Display,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handlers := &bbhttp.DaemonHandlers{
		Driver:    xdotool.New(cfg.DaemonServer.Display),
		StartedAt: time.Now(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(bbhttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	bbhttp.MountDaemonRoutes(r, handlers)

	srv := &http.Server{
		Addr:              ":" + cfg.DaemonServer.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		// Actions can legitimately take a while: waits, long pastes,
		// full-screen captures.
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
