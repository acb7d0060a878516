// Package main is the entry point for the mcp-gateway service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/chuangyeshuo/mcprapi/api"
	"github.com/chuangyeshuo/mcprapi/internal/audit"
	"github.com/chuangyeshuo/mcprapi/internal/auth"
	"github.com/chuangyeshuo/mcprapi/internal/config"
	"github.com/chuangyeshuo/mcprapi/internal/dispatch"
	"github.com/chuangyeshuo/mcprapi/internal/policy"
	"github.com/chuangyeshuo/mcprapi/internal/server"
	"github.com/chuangyeshuo/mcprapi/internal/telemetry"
	"github.com/chuangyeshuo/mcprapi/internal/tools"
	"github.com/chuangyeshuo/mcprapi/internal/upstream"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

const serviceName = "mcp-gateway"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	// stdout carries the protocol in stdio mode; logs always go to stderr.
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Str("service", serviceName).Str("version", version).Logger()

	logger := log.With().Str("component", "main").Logger()
	logger.Info().Str("transport", cfg.Transport).Str("mode", cfg.Mode).Msg("starting mcp-gateway")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log.Logger); err != nil {
		logger.Error().Err(err).Msg("mcp-gateway stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("mcp-gateway stopped")
}

func run(ctx context.Context, cfg config.Config, baseLogger zerolog.Logger) error {
	logger := baseLogger.With().Str("component", "main").Logger()

	shutdownTracing, err := telemetry.InitTracing(ctx, telemetry.TracingConfig{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Enabled:        cfg.TracesEnabled,
		Writer:         os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := shutdownTracing(shutdownCtx); shutdownErr != nil {
			logger.Error().Err(shutdownErr).Msg("failed to shut down tracing")
		}
	}()

	var metrics *telemetry.Metrics
	if cfg.MetricsEnabled {
		metrics = telemetry.NewMetrics()
	}

	httpClient := upstream.NewHTTPClient(upstream.Options{
		Timeout:   cfg.UpstreamTimeout,
		UserAgent: cfg.UserAgent,
	})

	authCfg := auth.ClientConfig{
		BaseURL:        cfg.AuthURL,
		Namespace:      cfg.AuthNamespace,
		FailClosed:     !cfg.FailOpen(),
		AllowAnonymous: cfg.AllowAnonymous,
		HTTPClient:     httpClient,
	}
	if metrics != nil {
		authCfg.Recorder = metrics
	}
	authorizer, err := auth.NewClient(authCfg, baseLogger)
	if err != nil {
		return fmt.Errorf("creating authorization client: %w", err)
	}

	runner, err := tools.NewRunner(
		upstream.NewWeatherClient(cfg.WeatherURL, httpClient),
		upstream.NewBusinessClient(cfg.BusinessURL, httpClient),
	)
	if err != nil {
		return fmt.Errorf("creating tool runner: %w", err)
	}

	registry, err := dispatch.NewToolRegistry(api.ToolsContract)
	if err != nil {
		return fmt.Errorf("parsing MCP tool contract: %w", err)
	}
	guard, err := policy.NewGuard(cfg.Mode)
	if err != nil {
		return fmt.Errorf("invalid mode configuration: %w", err)
	}

	dispatchCfg := dispatch.Config{
		Registry:    registry,
		Extractor:   auth.NewExtractor(baseLogger),
		Authorizer:  authorizer,
		Runner:      runner,
		Implemented: tools.Names(),
		Guard:       guard,
		Audit:       audit.NewLogger(baseLogger),
	}
	if metrics != nil {
		dispatchCfg.Recorder = metrics
	}
	dispatcher, err := dispatch.New(dispatchCfg, baseLogger)
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}

	logger.Info().
		Str("mode", guard.Mode()).
		Bool("fail_open", cfg.FailOpen()).
		Bool("allow_anonymous", cfg.AllowAnonymous).
		Str("auth_url", cfg.AuthURL).
		Int("tools", len(registry.List())).
		Msg("dispatcher initialized")

	handler := server.NewHandler(dispatcher, version, baseLogger)

	switch cfg.Transport {
	case config.TransportStdio:
		return runStdio(ctx, cfg, handler, logger)
	case config.TransportHTTP:
		return runHTTP(ctx, cfg, handler, metrics, logger)
	default:
		return fmt.Errorf("unsupported transport %q", cfg.Transport)
	}
}

func runStdio(ctx context.Context, cfg config.Config, handler *server.Handler, logger zerolog.Logger) error {
	resolved, err := auth.ResolveToken(auth.TokenSourceOptions{
		AllowCLIConfigToken: cfg.AllowCLIConfigToken,
		CLIConfigPath:       cfg.CLIConfigPath,
	})
	if err != nil {
		return fmt.Errorf("resolving session token: %w", err)
	}
	if resolved.Token == "" {
		logger.Warn().Msg("no session token from MCP_GATEWAY_TOKEN or CLI config; stdio calls carry no credential")
	} else {
		logger.Info().Str("token_source", string(resolved.Source)).Msg("resolved session token")
	}

	if err := handler.RunStdio(ctx, os.Stdin, os.Stdout, resolved.Headers()); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stdio runtime: %w", err)
	}
	return nil
}

func runHTTP(ctx context.Context, cfg config.Config, handler *server.Handler, metrics *telemetry.Metrics, logger zerolog.Logger) error {
	httpServer := server.NewHTTPServer(handler, server.HTTPOptions{
		Build: server.BuildInfo{
			Version:   version,
			Commit:    commit,
			BuildDate: buildDate,
		},
		Contract:       api.ToolsContract,
		Metrics:        metrics,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	}, log.Logger)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httpServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      0, // SSE streams stay open indefinitely.
		IdleTimeout:       120 * time.Second,
	}
	// SSE streams never go idle; end them once Shutdown starts.
	srv.RegisterOnShutdown(httpServer.CloseStreams)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}
		httpServer.Wait()
		return nil
	})

	return g.Wait()
}
