package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/2029ijones-sudo/os-lab/internal/api"
	"github.com/2029ijones-sudo/os-lab/internal/identity"
	"github.com/2029ijones-sudo/os-lab/internal/observability"
	"github.com/2029ijones-sudo/os-lab/internal/publish"
	"github.com/2029ijones-sudo/os-lab/internal/registry"
	"github.com/2029ijones-sudo/os-lab/internal/sandbox"
	"github.com/2029ijones-sudo/os-lab/internal/session"
	"github.com/2029ijones-sudo/os-lab/internal/store"
)

func main() {
	var cfg api.Config
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, _ := observability.NewLogger(cfg.LogLevel)
	defer log.Sync()

	// Replace global logger
	zap.ReplaceGlobals(log)

	reg := prometheus.DefaultRegisterer
	observability.RegisterAll(reg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, cleanup, err := newStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("store init failed", zap.Error(err))
	}
	defer cleanup()

	provider, err := newProvider(cfg, log)
	if err != nil {
		log.Fatal("sandbox provider init failed", zap.Error(err))
	}

	sessions := registry.New(st, provider, registry.Config{
		IdleTimeout: cfg.SessionIdleTimeout,
		BootTimeout: cfg.BootTimeout,
		Session: session.Config{
			InstallCommand: cfg.InstallCommand,
			WriteQueueMax:  cfg.WriteQueueMax,
		},
	}, log)
	go sessions.Run(ctx)

	publisher := publish.New(st, cfg.PreviewTTL, cfg.PreviewBaseURL, log)
	verifier := identity.NewStatic(identity.ParseTokens(cfg.AuthTokens))

	// Main API server
	apiHandler := api.NewAPI(st, sessions, publisher, verifier, log)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           apiHandler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Metrics server
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: mux,
	}

	go func() {
		log.Info("metrics server starting", zap.String("addr", cfg.MetricsAddr))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("metrics server failed", zap.Error(err))
		}
	}()

	go func() {
		log.Info("API server starting", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("API server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down API server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	sessions.CloseAll(shutdownCtx)
	_ = srv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)

	log.Info("API server stopped")
}

// newStore picks Postgres when a DSN is configured, otherwise the
// in-process store.
func newStore(ctx context.Context, cfg api.Config, log *zap.Logger) (store.Store, func(), error) {
	if cfg.DBDSN == "" {
		log.Warn("no OSLAB_DB_DSN set, using in-memory store")
		return store.NewMemory(), func() {}, nil
	}
	pool, err := store.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		return nil, nil, err
	}
	if err := store.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store.NewPostgres(pool), pool.Close, nil
}

func newProvider(cfg api.Config, log *zap.Logger) (sandbox.Provider, error) {
	switch cfg.SandboxProvider {
	case "docker":
		return sandbox.NewDocker(sandbox.DockerConfig{
			Image:       cfg.SandboxImage,
			WorkDir:     cfg.SandboxWorkDir,
			PreviewPort: cfg.PreviewPort,
		}, log)
	case "fake":
		log.Warn("using fake sandbox provider, sessions run without isolation")
		return sandbox.NewFake(), nil
	default:
		return nil, fmt.Errorf("unknown sandbox provider: %q", cfg.SandboxProvider)
	}
}
