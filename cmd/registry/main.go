package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/cratehub/crate/pkg/api"
	"github.com/cratehub/crate/pkg/auth"
	"github.com/cratehub/crate/pkg/config"
	"github.com/cratehub/crate/pkg/observability"
	"github.com/cratehub/crate/pkg/registry"
	"github.com/cratehub/crate/pkg/storage"
	"github.com/cratehub/crate/pkg/webhooks"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel(), os.Stdout)

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(nil)
	}

	backend, err := storage.NewBackend(context.Background(), cfg.Storage)
	if err != nil {
		logger.WithError(err).Error("failed to initialize storage backend")
		os.Exit(1)
	}
	backend = storage.NewInstrumentedBackend(backend, metrics)
	logger.WithField("type", cfg.Storage.Type).Info("storage backend initialized")

	provider, err := buildProvider(cfg)
	if err != nil {
		logger.WithError(err).Error("failed to initialize auth provider")
		os.Exit(1)
	}

	var notifier registry.Notifier
	if cfg.Webhook.URL != "" {
		notifier = webhooks.NewNotifier(cfg.Webhook.URL)
		logger.WithField("url", cfg.Webhook.URL).Info("upload notifications enabled")
	}

	coordinator := registry.NewCoordinator(backend, notifier, logger, cfg.Storage.OperationTimeout)
	resolver := registry.NewResolver(backend, cfg.Storage.OperationTimeout)

	opts := api.Options{
		PublicBaseURL: cfg.PublicBaseURL,
		MaxUploadSize: cfg.Server.MaxUploadBytes,
	}
	if cfg.Storage.Type == "local" {
		opts.LocalRoot = cfg.Storage.LocalRoot
	}
	server := api.NewServer(backend, coordinator, resolver, provider, logger, metrics, opts)

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)

	go func() {
		logger.WithField("addr", addr).Info("package registry listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("server failed")
			os.Exit(1)
		}
	}()

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("shutdown failed")
		os.Exit(1)
	}
}

func buildProvider(cfg *config.Config) (auth.Provider, error) {
	switch cfg.Auth.Provider {
	case "static":
		return auth.ParseStaticUsers(cfg.Auth.StaticUsers)
	case "auth0":
		return auth.NewAuth0Provider(cfg.Auth.Auth0Domain, cfg.Auth.Auth0ClientID), nil
	default:
		return nil, fmt.Errorf("unknown auth provider %q", cfg.Auth.Provider)
	}
}
