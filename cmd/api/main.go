package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"leopacolor/internal/catalog"
	"leopacolor/internal/colorize"
	"leopacolor/internal/domain"
	"leopacolor/internal/http/handlers"
	"leopacolor/internal/http/httpapi"
	"leopacolor/internal/infra"
	"leopacolor/internal/providers/replicate"
	"leopacolor/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	fileStore, err := storage.NewFileStore(cfg.DataDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare data directory")
	}

	refStore := storage.NewRecordStore[domain.ReferenceImage](cfg.DataDir, "references")
	jobStore := storage.NewRecordStore[domain.ColorizeJob](cfg.DataDir, "jobs")
	cat := catalog.New(refStore, fileStore)

	provider := replicate.NewClient(replicate.Options{
		BaseURL:  cfg.ReplicateBaseURL,
		APIToken: cfg.ReplicateAPIToken,
	})
	if !provider.HasCredentials() {
		logger.Warn().Msg("REPLICATE_API_TOKEN not set, colorization jobs will fail until configured")
	}

	jobs := colorize.NewCoordinator(jobStore, cat, provider, logger, colorize.Options{
		PollInterval:    cfg.PollInterval,
		MaxPollAttempts: cfg.PollMaxAttempts,
	})

	app := handlers.NewApp(logger, cat, jobs)
	router := httpapi.NewRouter(app, logger, cfg)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	// Let in-flight job drivers finish persisting their terminal state.
	if err := jobs.Registry().Wait(shutdownCtx); err != nil {
		logger.Warn().Int("in_flight", jobs.Registry().Len()).Msg("shutdown with colorization jobs still running")
	}
	logger.Info().Msg("server stopped")
}
