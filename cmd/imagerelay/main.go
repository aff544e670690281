// Command imagerelay serves the describe and generate relay over HTTP.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mhpenta/imagerelay"
	"github.com/mhpenta/imagerelay/comfy"
	"github.com/mhpenta/imagerelay/config"
	"github.com/mhpenta/imagerelay/internal/server"
	"github.com/mhpenta/imagerelay/provider"
	"github.com/mhpenta/imagerelay/storage/filesystem"
)

func main() {
	if err := run(); err != nil {
		slog.Error("imagerelay stopped", "error", err.Error())
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	httpClient := &http.Client{Timeout: 2 * time.Minute}
	registry := provider.NewRegistry(cfg.Providers, httpClient, imagerelay.WithLogger(logger))

	comfyOpts := []comfy.Option{
		comfy.WithHTTPClient(httpClient),
		comfy.WithPromptDecoration(cfg.Comfy.PromptSuffix, cfg.Comfy.NegativePrompt),
		comfy.WithLogger(logger),
	}
	if cfg.Comfy.WorkflowPath != "" {
		wf, err := comfy.LoadWorkflow(cfg.Comfy.WorkflowPath)
		if err != nil {
			return err
		}
		comfyOpts = append(comfyOpts, comfy.WithWorkflow(wf))
	}
	if cfg.Comfy.ClientID != "" {
		comfyOpts = append(comfyOpts, comfy.WithClientID(cfg.Comfy.ClientID))
	}
	coordinator := comfy.New(cfg.Comfy.Endpoint, comfyOpts...)

	store, err := filesystem.NewFileStore(cfg.Server.OutputDir, cfg.Server.PublicBaseURL)
	if err != nil {
		return err
	}

	handler := server.New(server.Config{
		Providers:   registry,
		Generator:   coordinator,
		Storage:     store,
		OutputDir:   store.BasePath(),
		CORSOrigins: cfg.Server.CORSOrigins,
		Logger:      logger,
	}).Handler()
	srv := server.NewHTTPServer(cfg.Server.ListenAddr, handler)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			"addr", cfg.Server.ListenAddr,
			"providers", registry.Identifiers(),
			"comfy", cfg.Comfy.Endpoint,
			"client_id", coordinator.ClientID(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
