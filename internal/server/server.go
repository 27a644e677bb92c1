// Package server provides the relay's lifecycle runner: signal handling,
// config loading, observability init, the whole wiring of stores, policy
// engines and transport, and graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aelexs/chat-relay/internal/auth"
	"github.com/aelexs/chat-relay/internal/config"
	"github.com/aelexs/chat-relay/internal/domain"
	"github.com/aelexs/chat-relay/internal/errmap"
	"github.com/aelexs/chat-relay/internal/observability"
	"github.com/aelexs/chat-relay/internal/relay/adapter"
	"github.com/aelexs/chat-relay/internal/relay/app"
	"github.com/aelexs/chat-relay/internal/relay/port"
)

const serviceName = "chat-relay"

// Run executes the full relay lifecycle. If ln is non-nil, it is used
// instead of creating a new listener from config (enables port-0 testing).
func Run(ctx context.Context, ln net.Listener) error {
	// Signal-based cancellation: ctx.Done() closes on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(observability.LogConfig{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		ServiceName: serviceName,
		Environment: cfg.Environment,
	})

	// --- Startup order: tracer -> metrics -> stores -> engines -> HTTP ---

	tracerProvider, err := observability.InitTracer(ctx, observability.TracerConfig{
		ServiceName:    serviceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTEL.Endpoint,
	})
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}

	metricsProvider, err := observability.InitMetrics(ctx, observability.MetricsConfig{
		ServiceName:    serviceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTEL.Endpoint,
	})
	if err != nil {
		return fmt.Errorf("initialize metrics: %w", err)
	}

	db, err := adapter.OpenDB(cfg.Relay.DBPath)
	if err != nil {
		return fmt.Errorf("open relay database: %w", err)
	}
	defer func() { _ = db.Close() }()

	messages, err := adapter.NewMessageStore(db, cfg.Relay.UploadDir, logger)
	if err != nil {
		return fmt.Errorf("create message store: %w", err)
	}
	stateStore, err := adapter.NewStateStore(db)
	if err != nil {
		return fmt.Errorf("create state store: %w", err)
	}

	clock := domain.RealClock{}

	moderation, err := app.NewModeration(ctx, app.ModerationConfig{
		Store:  stateStore,
		Clock:  clock,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("create moderation engine: %w", err)
	}

	filter := app.NewContentFilter()
	if err := filter.LoadFile(cfg.Relay.WordsFile); err != nil {
		return fmt.Errorf("load word list: %w", err)
	}

	verifier := auth.NewVerifier(auth.VerifierConfig{
		Secret: cfg.Auth.JWTSecret,
		Issuer: cfg.Auth.Issuer,
		Clock:  clock,
	})
	if !verifier.Enabled() {
		logger.Warn("auth verifier disabled, all connections resolve to guest")
	}

	registry := port.NewRegistry(logger)

	service := app.NewService(app.ServiceConfig{
		Messages:     messages,
		Moderation:   moderation,
		Limiter:      app.NewRateLimiter(clock),
		Filter:       filter,
		Presence:     app.NewPresence(),
		Broadcaster:  registry,
		Clock:        clock,
		Logger:       logger,
		HistoryLimit: cfg.Relay.HistoryLimit,
		InstanceID:   domain.GenerateConnectionID().String(),
	})

	handler := port.NewHandler(port.HandlerConfig{
		Service:  service,
		Registry: registry,
		Resolver: port.NewIdentityResolver(verifier, logger),
		Logger:   logger,
	})

	// Health check shutdown coordination via atomic flag.
	var shuttingDown atomic.Bool

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if shuttingDown.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, `{"status":"shutting_down","service":%q}`, serviceName)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy","service":%q,"connections":%d}`, serviceName, registry.Len())
	})
	mux.Handle("/ws", handler)

	if ln == nil {
		ln, err = (&net.ListenConfig{}).Listen(ctx, "tcp", fmt.Sprintf(":%d", cfg.Relay.HTTPPort))
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}

	httpServer := &http.Server{
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		// No WriteTimeout: WebSocket connections outlive any sane value.
		IdleTimeout: 60 * time.Second,
	}

	// --- Structured concurrency via errgroup ---
	g, ctx := errgroup.WithContext(ctx)

	// Goroutine 1: Serve HTTP + WebSocket
	g.Go(func() error {
		logger.Info("starting relay server",
			slog.String("addr", ln.Addr().String()),
			slog.String("environment", cfg.Environment),
		)
		if serveErr := httpServer.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return serveErr
		}
		return nil
	})

	// Goroutine 2: Periodic sweep of stale limiter/moderation entries.
	g.Go(func() error {
		ticker := time.NewTicker(domain.StateSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				service.Sweep()
			case <-ctx.Done():
				return nil
			}
		}
	})

	// Goroutine 3: Shutdown trigger - waits for context cancellation, then
	// drains in explicit reverse of startup: connections -> HTTP -> OTEL.
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("received shutdown signal, starting graceful shutdown")

		// 1. Mark shutting down - health checks return 503
		shuttingDown.Store(true)

		// 2. Drain delay - let load balancer propagate endpoint removal
		time.Sleep(domain.ShutdownDrainDelay)

		// 3. Close live sockets so the HTTP drain below is not held open
		registry.CloseAll(errmap.CloseServerShutdown)

		httpCtx, httpCancel := context.WithTimeout(context.Background(), domain.ShutdownHTTPTimeout)
		defer httpCancel()
		if shutdownErr := httpServer.Shutdown(httpCtx); shutdownErr != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", shutdownErr.Error()))
		}

		// 4. Flush OTEL (reverse: metrics first, then tracer)
		otelCtx, otelCancel := context.WithTimeout(context.Background(), domain.ShutdownOTELTimeout)
		defer otelCancel()
		if shutdownErr := metricsProvider.Shutdown(otelCtx); shutdownErr != nil {
			logger.Error("failed to shutdown metrics", slog.String("error", shutdownErr.Error()))
		}
		if shutdownErr := tracerProvider.Shutdown(otelCtx); shutdownErr != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", shutdownErr.Error()))
		}

		logger.Info("shutdown complete")
		return nil
	})

	return g.Wait()
}
