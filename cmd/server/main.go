// Package main is the entry point for the embedgate embedding server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/embedworks/embedgate/internal/api"
	"github.com/embedworks/embedgate/internal/cache"
	"github.com/embedworks/embedgate/internal/config"
	"github.com/embedworks/embedgate/internal/model"
	"github.com/embedworks/embedgate/internal/observability"
	"github.com/embedworks/embedgate/internal/runtime"
	"github.com/embedworks/embedgate/internal/service"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	flag.Parse()

	bootLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfgManager, err := config.NewManager(*configPath, bootLogger)
	if err != nil {
		bootLogger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg := cfgManager.Get()

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)
	logger.Info("starting embedgate",
		"version", cfg.App.Version,
		"default_model", cfg.Model.DefaultName,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := cfgManager.Watch(ctx); err != nil {
		logger.Warn("config hot-reload disabled", "error", err)
	}

	tracerProvider, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Version:     cfg.App.Version,
		SampleRate:  cfg.Tracing.SampleRate,
		Insecure:    cfg.Tracing.Insecure,
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	svc, err := buildService(ctx, cfgManager, tracerProvider, logger)
	if err != nil {
		logger.Error("failed to build embedding service", "error", err)
		os.Exit(1)
	}

	handler := api.NewHandler(svc, logger)
	mux, err := buildMux(cfg, handler)
	if err != nil {
		logger.Error("failed to build routes", "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      buildMiddlewareStack(cfg, mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := svc.Close(); err != nil {
		logger.Error("service shutdown error", "error", err)
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", "error", err)
	}
	_ = cfgManager.Close()
	logger.Info("shutdown complete")
}

// buildService wires registry, loader, cache, and core from config.
func buildService(ctx context.Context, cfgManager *config.Manager, tp *observability.TracerProvider, logger *slog.Logger) (*service.Service, error) {
	cfg := cfgManager.Get()

	factory := runtime.NewOllamaFactory(runtime.OllamaConfig{
		BaseURL: cfg.Model.Runtime.BaseURL,
		Timeout: cfg.Model.Runtime.Timeout,
	}, logger)

	var artifacts *model.ArtifactStore
	if cfg.Model.Artifacts.Enabled() {
		var err error
		artifacts, err = model.NewArtifactStore(ctx, cfg.Model.Artifacts, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("model artifact staging enabled",
			"bucket", cfg.Model.Artifacts.BucketName,
		)
	}

	registry, err := model.NewRegistry(factory, artifacts, cfg.Model.CacheDir, logger)
	if err != nil {
		return nil, err
	}
	loader := model.NewLoader(registry, logger)

	embCache, err := buildCache(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	return service.New(cfgManager, loader, embCache, tp.Tracer(), logger), nil
}

func buildCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) (cache.Cache, error) {
	switch cfg.Cache.Backend {
	case "", "none":
		return nil, nil
	case "memory":
		return cache.NewMemoryCache(cache.MemoryCacheConfig{
			MaxEntries: cfg.Cache.MaxEntries,
			TTL:        cfg.Cache.TTL,
		}), nil
	case "redis":
		redisCfg := cfg.Cache.Redis
		if redisCfg.TTL <= 0 {
			redisCfg.TTL = cfg.Cache.TTL
		}
		c, err := cache.NewRedisCache(ctx, redisCfg)
		if err != nil {
			return nil, err
		}
		logger.Info("redis embedding cache enabled", "addr", redisCfg.Addr)
		return c, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
