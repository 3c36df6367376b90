package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aiotts_gateway/internal/api"
	"aiotts_gateway/internal/app"
	"aiotts_gateway/internal/sku"

	"github.com/rs/zerolog/log"
)

func main() {
	app.SetupEnvironment()
	log.Debug().Msg("Starting application")

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clients, err := app.InitializeClients(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize clients")
	}
	defer clients.Close()

	deps := api.Deps{
		Mode:      cfg.Mode,
		APIKey:    cfg.APIKey,
		Designs:   sku.NewService(clients.Sheets, clients.Notifications),
		Updater:   clients.Updater,
		FlashShip: clients.FlashShip,
		Pingers:   map[string]api.Pinger{},
	}
	if clients.Directory != nil {
		deps.Directory = clients.Directory
		deps.Pingers["postgres"] = clients.Directory
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewServer(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("mode", cfg.Mode).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("Shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown error")
	}
	log.Info().Msg("Shutdown complete")
}
