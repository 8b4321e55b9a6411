// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/tenantdesk/internal/api"
	"github.com/starford/tenantdesk/internal/logos"
	"github.com/starford/tenantdesk/internal/pdfclient"
	"github.com/starford/tenantdesk/internal/sse"
)

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.newLogger()

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("store_driver", cfg.Store.Driver),
		slog.Bool("catalog_cache", cfg.Redis.Enabled()),
		slog.String("pdf_service_url", cfg.PDFService.URL),
		slog.String("logos_path", cfg.Logos.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	c, err := app.build(ctx, logger, broker)
	if err != nil {
		return err
	}
	defer c.close()

	pdfOpts := []pdfclient.Option{pdfclient.WithLogger(logger)}
	if c.logos != nil {
		pdfOpts = append(pdfOpts, pdfclient.WithLogoSource(c.logos))
	}
	pdf := pdfclient.New(cfg.PDFService.URL, cfg.PDFService.Token, cfg.PDFService.Timeout, pdfOpts...)

	apiRouter := api.NewRouter(
		api.NewHandler(c.svc),
		api.NewDocumentHandler(pdf, c.logos, cfg.Import.MaxBytes),
		api.Auth{Enabled: cfg.Auth.AuthEnabled(), Token: cfg.Auth.Token, Tenants: cfg.Auth.Credentials()},
		broker,
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(api.SecurityHeaders)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", c.ready)

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Keep the logo library in sync with its directory.
	if c.logos != nil {
		g.Go(func() error {
			err := logos.Watch(gCtx, c.logos, logger, func(kind, name string) {
				broker.Publish(sse.Event{
					Type: sse.TypeLogosChanged,
					Data: map[string]string{"kind": kind, "name": name},
				})
			})
			if err != nil {
				logger.Warn("logo watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// Drop SSE streams first so Shutdown does not wait on them.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
