package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"media-pipeline/internal/config"
	"media-pipeline/internal/server"
)

func main() {
	// Initialize zerolog logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	// Load configuration
	configManager := config.NewManager()
	cfg, err := configManager.Load("")
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading configuration")
	}

	// Wire the pipeline and API server
	app, err := server.NewApp(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error wiring pipeline")
	}
	defer app.Close()

	if err := app.Server.Start(); err != nil {
		log.Fatal().Err(err).Msg("Error starting server")
	}
	stopCollector := app.Metrics.StartSystemCollector(15 * time.Second)
	defer stopCollector()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	if err := app.Server.Stop(); err != nil {
		log.Error().Err(err).Msg("Error stopping server")
	}
}
