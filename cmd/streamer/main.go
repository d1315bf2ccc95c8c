// Package main is the entry point for the tidal-streamer backend.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nbonamy/tidal-streamer/internal/config"
	"github.com/nbonamy/tidal-streamer/internal/connect"
	"github.com/nbonamy/tidal-streamer/internal/discovery"
	"github.com/nbonamy/tidal-streamer/internal/httpapi"
	"github.com/nbonamy/tidal-streamer/internal/infra/cache"
	"github.com/nbonamy/tidal-streamer/internal/streamer"
	"github.com/nbonamy/tidal-streamer/internal/tidal"
	"github.com/nbonamy/tidal-streamer/internal/version"
)

func main() {
	// Command line flags
	configPath := flag.String("config", config.DefaultPath, "Configuration file path")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	versionInfo := version.GetInfo()
	log.Info().Msgf("%s", versionInfo.String())

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if cfg.Auth.AccessToken == "" {
		log.Warn().Msg("No access token configured, catalog requests will be rejected")
	}

	log.Info().
		Int("port", cfg.Port).
		Str("country", cfg.CountryCode).
		Str("device", cfg.Device).
		Bool("token_set", cfg.Auth.AccessToken != "").
		Msg("Configuration")

	// Track metadata cache
	trackCache := cache.NewDB(cfg.Cache.Path)
	if err := trackCache.Open(); err != nil {
		log.Fatal().Err(err).Msg("Failed to open track cache")
	}
	defer trackCache.Close()

	// Tidal clients
	api := tidal.NewClient(
		cfg.Auth.AccessToken,
		cfg.Auth.RefreshToken,
		tidal.WithCountryCode(cfg.CountryCode),
	)
	resolver := cache.NewResolver(trackCache, api)
	queues := tidal.NewQueueService(api, tidal.WithResolver(resolver))

	// Device registry
	registry := connect.NewRegistry(func(device *connect.Device) *connect.Session {
		return connect.NewSession(device, api,
			connect.WithReconnectBudget(cfg.Reconnect.MaxAttempts))
	}, connect.WithPreferredDevice(cfg.Device))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Device discovery
	browser := discovery.NewBrowser()
	events, err := browser.Browse(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start discovery")
	}
	go registry.Run(ctx, events)

	// Services
	service := streamer.NewService(registry, api, queues, resolver)
	apiServer := httpapi.NewServer(service, api)

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      apiServer.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Info().Msg("Shutting down...")
		cancel()
		registry.Close()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
	}()

	log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("HTTP server error")
	}

	log.Info().Msg("Server stopped")
}
