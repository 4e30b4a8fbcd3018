package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/FairForge/metavault/internal/config"
	"github.com/FairForge/metavault/internal/tagging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func serveTagsCommand(a *app) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve-tags",
		Short: "Serve the image tagging HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port > 0 {
				a.cfg.Server.Port = port
			}
			primary, imagga := serverProviders(a.cfg.Tagging, a.logger)
			if primary != nil {
				primary = tagging.Instrumented(primary, primaryName(a.cfg.Tagging), a.metrics)
			}
			if imagga != nil {
				imagga = tagging.Instrumented(imagga, config.ProviderImagga, a.metrics)
			}

			srv := tagging.NewServer(tagging.ServerConfig{
				Port:         a.cfg.Server.Port,
				MaxBodyBytes: a.cfg.Server.MaxBodyBytes,
			}, primary, imagga, a.metrics, a.logger)

			return serveUntilDone(cmd.Context(), srv, a.logger)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port, overrides config")
	return cmd
}

// serverProviders builds the default and the imagga backend. The default
// is Google Vision unless the dummy provider is configured. A backend
// without credentials is nil and its requests fail with 500.
func serverProviders(cfg config.TaggingConfig, logger *zap.Logger) (tagging.Service, tagging.Service) {
	var primary, imagga tagging.Service

	if p, err := newProvider(primaryName(cfg), cfg); err == nil {
		primary = p
	} else {
		logger.Warn("default tag provider unavailable", zap.Error(err))
	}
	if p, err := newProvider(config.ProviderImagga, cfg); err == nil {
		imagga = p
	} else {
		logger.Info("imagga provider unavailable", zap.Error(err))
	}
	return primary, imagga
}

func primaryName(cfg config.TaggingConfig) string {
	if cfg.Provider == config.ProviderDummy {
		return config.ProviderDummy
	}
	return config.ProviderGoogle
}

// serveUntilDone runs srv until ctx is cancelled, then shuts it down
func serveUntilDone(ctx context.Context, srv *tagging.Server, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down tag server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
