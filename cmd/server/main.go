package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/OFFIS-RIT/lineage/internal/explorer"
	"github.com/OFFIS-RIT/lineage/internal/metrics"
	"github.com/OFFIS-RIT/lineage/internal/server"
	"github.com/OFFIS-RIT/lineage/internal/telemetry"
	"github.com/OFFIS-RIT/lineage/internal/util"
	"github.com/OFFIS-RIT/lineage/pkg/logger"
	"github.com/OFFIS-RIT/lineage/pkg/logger/console"
	"github.com/OFFIS-RIT/lineage/pkg/resolver"
)

var version = "dev"

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  debug,
		Format: util.GetEnvString("LOG_FORMAT", "text"),
	})
	logger.Init(consoleLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "lineage",
		ServiceVersion: version,
		Stdout:         util.GetEnvBool("OTEL_STDOUT", false),
	})
	if err != nil {
		logger.Fatal("Failed to initialize tracing", "err", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error("Failed to flush traces", "err", err)
		}
	}()

	m := metrics.New(prometheus.DefaultRegisterer)

	client := resolver.NewClient(resolver.NewClientParams{
		BaseURL: util.GetEnvString("RESOLVER_URL", "http://localhost:8000/api"),
		Timeout: util.GetEnvDuration("RESOLVER_TIMEOUT", 30*time.Second),
	})

	registry := explorer.NewRegistry(explorer.NewRegistryParams{
		Deps: explorer.Deps{
			Service:       client,
			Observer:      m,
			Tracer:        m,
			LayoutTimeout: util.GetEnvDuration("LAYOUT_TIMEOUT", 5*time.Second),
		},
		TTL:      util.GetEnvDuration("SESSION_IDLE_TTL", explorer.DefaultIdleTTL),
		OnChange: m.SetSessions,
	})

	e, err := server.New(server.Config{
		Registry: registry,
		Gatherer: prometheus.DefaultGatherer,
		AuthURL:  util.GetEnv("AUTH_URL"),
		APIKey:   util.GetEnv("API_KEY"),
	})
	if err != nil {
		logger.Fatal("Failed to load jwks keys", "err", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return registry.Run(gctx)
	})
	g.Go(func() error {
		return server.Run(gctx, e, util.GetEnvString("PORT", "8080"))
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", "err", err)
		os.Exit(1)
	}
	logger.Info("Server stopped")
}
