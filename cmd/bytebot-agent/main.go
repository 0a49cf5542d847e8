// Command bytebot-agent runs the task API and the agentic processing
// loop that drives the virtual desktop.
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
	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/errgroup"

	"github.com/bytebot-ai/bytebot/internal/adapter/anthropic"
	"github.com/bytebot-ai/bytebot/internal/adapter/computeruse"
	bbhttp "github.com/bytebot-ai/bytebot/internal/adapter/http"
	bbnats "github.com/bytebot-ai/bytebot/internal/adapter/nats"
	"github.com/bytebot-ai/bytebot/internal/adapter/natskv"
	"github.com/bytebot-ai/bytebot/internal/adapter/openai"
	bbotel "github.com/bytebot-ai/bytebot/internal/adapter/otel"
	"github.com/bytebot-ai/bytebot/internal/adapter/postgres"
	"github.com/bytebot-ai/bytebot/internal/adapter/ristretto"
	"github.com/bytebot-ai/bytebot/internal/adapter/tiered"
	"github.com/bytebot-ai/bytebot/internal/adapter/ws"
	"github.com/bytebot-ai/bytebot/internal/config"
	"github.com/bytebot-ai/bytebot/internal/domain/agent"
	"github.com/bytebot-ai/bytebot/internal/logger"
	"github.com/bytebot-ai/bytebot/internal/middleware"
	"github.com/bytebot-ai/bytebot/internal/port/cache"
	"github.com/bytebot-ai/bytebot/internal/port/llm"
	"github.com/bytebot-ai/bytebot/internal/resilience"
	"github.com/bytebot-ai/bytebot/internal/service"
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

	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"daemon_url", cfg.Daemon.URL,
		"log_level", cfg.Logging.Level,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := bbotel.Setup(ctx, cfg.Logging.Service, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Error("telemetry shutdown", "error", err)
		}
	}()

	// Postgres
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("postgres ready")

	// NATS JetStream
	queue, err := bbnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	// Frame cache: ristretto in front of a JetStream KV bucket.
	frames, err := buildFrameCache(ctx, queue, cfg.Cache)
	if err != nil {
		return fmt.Errorf("frame cache: %w", err)
	}

	// LLM providers
	providers := buildProviders(cfg)
	if len(providers) == 0 {
		return errors.New("no LLM provider configured, set ANTHROPIC_API_KEY or OPENAI_API_KEY")
	}

	// Desktop daemon client
	driver := computeruse.NewClient(cfg.Daemon)
	driver.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	metrics, err := bbotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// Services
	hub := ws.NewHub()
	store := postgres.NewStore(pool)
	tasks := service.NewTaskService(store, queue, hub)
	summarizer := service.NewSummarizer(store, providers, cfg.Summarizer)
	display := agent.Display{Width: cfg.Daemon.DisplayWidth, Height: cfg.Daemon.DisplayHeight}
	processor := service.NewProcessor(tasks, store, providers, driver, summarizer,
		frames, cfg.Cache.TTL, cfg.Agent, display, metrics)
	defer processor.Shutdown()
	scheduler := service.NewScheduler(tasks, processor, cfg.Scheduler)

	// HTTP
	handlers := &bbhttp.Handlers{
		Tasks:     tasks,
		Processor: processor,
		Providers: providers,
		Frames:    frames,
		Queue:     queue,
		StartedAt: time.Now(),
	}

	limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)

	r := chi.NewRouter()
	r.Use(bbhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(middleware.RequestID)
	r.Use(bbhttp.Logger)
	r.Use(bbhttp.SecurityHeaders)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(limiter.Handler)
	if cfg.Telemetry.Enabled {
		r.Use(bbotel.HTTPMiddleware(cfg.Logging.Service))
	}

	// The WS endpoint is long-lived, so the request timeout applies
	// only to the REST surface.
	r.Get("/ws", hub.HandleWS)
	r.Group(func(api chi.Router) {
		api.Use(chimw.Timeout(60 * time.Second))
		bbhttp.MountRoutes(api, handlers)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
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
		if err := scheduler.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("scheduler: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		if err := queue.Drain(); err != nil {
			slog.Error("nats drain", "error", err)
		}
		return nil
	})

	return g.Wait()
}

// buildProviders creates a client per configured LLM provider.
func buildProviders(cfg *config.Config) map[string]llm.Provider {
	providers := map[string]llm.Provider{}
	breaker := func() *resilience.Breaker {
		return resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	}
	if cfg.Anthropic.APIKey != "" {
		c := anthropic.NewClient(cfg.Anthropic, cfg.Agent)
		c.SetBreaker(breaker())
		providers[c.Name()] = c
	}
	if cfg.OpenAI.APIKey != "" {
		c := openai.NewClient(cfg.OpenAI, cfg.Agent)
		c.SetBreaker(breaker())
		providers[c.Name()] = c
	}
	return providers
}

// buildFrameCache composes the L1 ristretto cache with a JetStream KV
// bucket so restarts and peers see the latest frames.
func buildFrameCache(ctx context.Context, queue *bbnats.Queue, cfg config.Cache) (cache.Cache, error) {
	l1, err := ristretto.New(cfg.L1MaxSizeMB << 20)
	if err != nil {
		return nil, fmt.Errorf("ristretto: %w", err)
	}

	kv, err := queue.JetStream().CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: cfg.L2Bucket,
		TTL:    cfg.TTL,
	})
	if err != nil {
		return nil, fmt.Errorf("kv bucket %q: %w", cfg.L2Bucket, err)
	}

	return tiered.New(l1, natskv.New(kv), cfg.TTL), nil
}
