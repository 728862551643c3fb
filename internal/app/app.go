// Package app assembles the control-plane server: configuration, logging,
// warehouse connection, services, router and HTTP server lifecycle.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"banketl/internal/config"
	"banketl/internal/db"
	"banketl/internal/infrastructure"
	customMiddleware "banketl/internal/middleware"
	"banketl/internal/services"
	handlers "banketl/internal/transport/http"
)

// Application is the control-plane server container.
type Application struct {
	Config   *config.Config
	Router   *chi.Mux
	Server   *http.Server
	DB       *db.DB
	Pipeline *services.PipelineService
	Logger   *slog.Logger
}

// New creates the application: loads configuration, initializes logging,
// connects to the warehouse and wires the router.
func New(ctx context.Context, configFile string) (*Application, error) {
	cfg, err := config.LoadFrom(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.InfoContext(ctx, "application starting",
		slog.String("pipeline", config.PipelineName),
		slog.Int("port", cfg.Server.Port))

	database, err := db.Connect(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to warehouse: %w", err)
	}

	if err := database.InitSchema(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize warehouse schema: %w", err)
	}

	app := &Application{
		Config:   cfg,
		DB:       database,
		Pipeline: services.NewPipelineService(database, cfg, logger),
		Logger:   logger,
	}

	app.setupRouter()
	app.createServer()
	return app, nil
}

// setupRouter configures the middleware chain and routes.
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)
	r.Use(customMiddleware.StructuredLogger(a.Logger))
	r.Use(customMiddleware.Recoverer(a.Logger))
	r.Use(customMiddleware.StripSlashes)

	if a.Config.Server.RateLimit.Enabled {
		r.Use(customMiddleware.NewRateLimiter(
			a.Config.Server.RateLimit.RPS,
			a.Config.Server.RateLimit.Burst,
			a.Logger,
		).Handler)
	}

	healthHandler := handlers.NewHealthHandler(a.Pipeline, a.Logger)
	r.Mount("/", healthHandler.Routes())

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		pipelineHandler := handlers.NewPipelineHandler(a.Pipeline, a.Logger)
		r.Mount("/", pipelineHandler.Routes())
	})

	a.Router = r
}

// createServer builds the HTTP server. WriteTimeout covers the longest
// synchronous pipeline run, so it derives from the stage timeout rather than
// the ordinary request timeout.
func (a *Application) createServer() {
	writeTimeout := a.Config.Server.WriteTimeout
	if a.Config.Server.StageTimeout > writeTimeout {
		writeTimeout = a.Config.Server.StageTimeout + time.Minute
	}

	a.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Run serves HTTP until the context is cancelled, then shuts down
// gracefully.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening", slog.String("addr", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.Logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return <-errCh
}

// Close releases the application's resources.
func (a *Application) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
	infrastructure.CloseLogFile()
}
