// HuggingSpace server: the web front-end for browsing, uploading, and
// editing model files over the hosted platform.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/NaveDanan/HuggingSpace/internal/api"
	"github.com/NaveDanan/HuggingSpace/internal/auth"
	"github.com/NaveDanan/HuggingSpace/internal/commits"
	"github.com/NaveDanan/HuggingSpace/internal/config"
	"github.com/NaveDanan/HuggingSpace/internal/logging"
	"github.com/NaveDanan/HuggingSpace/internal/metrics"
	"github.com/NaveDanan/HuggingSpace/internal/modelfiles"
	"github.com/NaveDanan/HuggingSpace/internal/storage"
	"github.com/NaveDanan/HuggingSpace/pkg/platform"
)

func main() {
	root := &cobra.Command{
		Use:          "huggingspace-server",
		Short:        "Serve the HuggingSpace model-file web API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logging.Sync()

	clientCfg := platform.Config{URL: cfg.PlatformURL, AnonKey: cfg.AnonKey}
	if cfg.StorageDriver == "s3" {
		store, err := platform.NewS3Store(ctx, platform.S3Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
		})
		if err != nil {
			return err
		}
		clientCfg.Store = store
	}

	client, err := platform.New(clientCfg)
	if err != nil {
		return err
	}

	// Best effort: the gate re-probes lazily on the first storage call if
	// the backend is still unreachable here.
	if client.Gate().WaitForConnection(ctx, 10*time.Second) {
		logging.Info("backend reachable", zap.String("url", cfg.PlatformURL))
	} else {
		logging.Warn("backend not reachable yet, continuing", zap.String("url", cfg.PlatformURL))
	}

	var commitStore *commits.Store
	if cfg.DatabaseURL != "" {
		commitStore, err = commits.New(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer commitStore.Close()
	} else {
		logging.Info("DATABASE_URL unset, commit history disabled")
	}

	linker, err := auth.NewLinker(ctx, auth.LinkerConfig{
		IssuerURL:    cfg.OAuthIssuerURL,
		ClientID:     cfg.OAuthClientID,
		ClientSecret: cfg.OAuthClientSecret,
		RedirectURL:  cfg.OAuthRedirectURL,
	})
	if err != nil {
		return err
	}

	store := storage.NewService(client)
	files := modelfiles.NewService(client, store)
	server := api.NewServer(client, files, store, commitStore, linker)

	go func() {
		logging.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil && err != http.ErrServerClosed {
			logging.Error("metrics server failed", zap.Error(err))
		}
	}()

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("server listening", zap.String("addr", cfg.ListenAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logging.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}
