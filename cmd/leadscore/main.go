package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"finitefield.org/leadscore/internal/config"
	"finitefield.org/leadscore/internal/form"
	"finitefield.org/leadscore/internal/httpserver"
	"finitefield.org/leadscore/internal/i18n"
	"finitefield.org/leadscore/internal/observability"
	"finitefield.org/leadscore/internal/scoring"
	"finitefield.org/leadscore/internal/session"
)

func main() {
	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("leadscore")

	cfg, err := config.Load()
	if err != nil {
		var vErr *config.ValidationError
		if errors.As(err, &vErr) {
			logger.Fatal("invalid configuration", zap.Strings("fields", vErr.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	tracerProvider := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer provider shutdown error", zap.Error(err))
		}
	}()

	metrics := observability.NewMetrics()

	scoringClient, err := scoring.NewClient(cfg.Scoring.BaseURL, scoring.WithTimeout(cfg.Scoring.Timeout))
	if err != nil {
		logger.Fatal("failed to initialise scoring client", zap.Error(err))
	}

	tokens, err := newTokenManager(cfg.Security, logger)
	if err != nil {
		logger.Fatal("failed to initialise form tokens", zap.Error(err))
	}

	catalog, err := i18n.Load(cfg.I18n.DefaultLocale, "en", "ja")
	if err != nil {
		logger.Fatal("failed to load message catalogs", zap.Error(err))
	}

	registry := form.NewRegistry(
		form.WithIdleTimeout(cfg.Forms.IdleTimeout),
		form.WithObserver(metrics),
		form.WithLogger(logger.Named("forms")),
	)

	srv, err := httpserver.New(httpserver.Config{
		Address:          cfg.Server.Addr,
		ReadTimeout:      cfg.Server.ReadTimeout,
		WriteTimeout:     cfg.Server.WriteTimeout,
		IdleTimeout:      cfg.Server.IdleTimeout,
		RequestTimeout:   cfg.Server.WriteTimeout,
		Logger:           logger,
		Forms:            registry,
		Tokens:           tokens,
		Scorer:           metrics.Instrument(scoringClient),
		Catalog:          catalog,
		Metrics:          metrics,
		CSRFCookieSecure: cfg.Security.CSRFCookieSecure || cfg.IsProduction(),
	})
	if err != nil {
		logger.Fatal("failed to build http server", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sweeper sync.WaitGroup
	sweeper.Add(1)
	go func() {
		defer sweeper.Done()
		registry.Run(ctx, cfg.Forms.SweepInterval)
	}()

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	logger.Info("leadscore listening",
		zap.String("addr", cfg.Server.Addr),
		zap.String("environment", cfg.Environment),
		zap.String("scoring_endpoint", scoringClient.Endpoint()),
	)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	sweeper.Wait()
}

func newTokenManager(cfg config.SecurityConfig, logger *zap.Logger) (*session.Manager, error) {
	hashKey := []byte(cfg.TokenHashKey)
	if len(hashKey) == 0 {
		generated, err := session.GenerateKey()
		if err != nil {
			return nil, err
		}
		hashKey = generated
		logger.Warn("LEADSCORE_TOKEN_HASH_KEY not set; form tokens will not survive a restart")
	}
	return session.NewManager(session.Config{
		HashKey:  hashKey,
		Lifetime: cfg.TokenLifetime,
	})
}
