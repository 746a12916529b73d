//	@title			dropshare API
//	@version		1.0
//	@description	Share files with a short random link: upload with curl, preview metadata, download.
//
//	@host		localhost:8080
//	@BasePath	/

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/dropshare/service/internal/config"
	"github.com/dropshare/service/internal/logging"
	appMiddleware "github.com/dropshare/service/internal/middleware"
	"github.com/dropshare/service/internal/share"
	"github.com/dropshare/service/internal/upload"

	_ "github.com/dropshare/service/docs/swagger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := logging.New(cfg.LogLevel, cfg.IsProduction())

	// Cancelled on SIGINT/SIGTERM. Upload requests are cancelled with it so
	// open multipart sessions get aborted; downloads drain during Shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, closeBackend, err := newBackend(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("storage", string(cfg.StorageKind)).Msg("storage init failed")
	}
	defer closeBackend()

	namer, err := upload.NewNamer(cfg.RandomSegmentLength)
	if err != nil {
		logger.Fatal().Err(err).Msg("namer init failed")
	}

	// Wire dependencies: backend → upload service → handler
	uploadSvc := upload.NewService(backend, namer, logging.Component(logger, "upload"))
	shareHandler := share.NewHandler(uploadSvc, cfg.MaxUploadSize, cfg.PublicBaseURL, logging.Component(logger, "http"))

	// Router
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(appMiddleware.Logger(logging.Component(logger, "access")))
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Content-Length", "X-Request-ID"},
		MaxAge:         300,
	}))

	// Swagger UI at http://localhost:8080/swagger/
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	shareHandler.Routes(r, appMiddleware.CancelOn(ctx))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.AppEnv).
			Str("storage", string(backend.Kind())).
			Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
		os.Exit(1)
	}

	logger.Info().Msg("server stopped")
}
