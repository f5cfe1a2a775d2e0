package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/erbarraud/ha-uber-ride-tracker/internal/api"
	"github.com/erbarraud/ha-uber-ride-tracker/internal/clock"
	"github.com/erbarraud/ha-uber-ride-tracker/internal/config"
	"github.com/erbarraud/ha-uber-ride-tracker/internal/coordinator"
	"github.com/erbarraud/ha-uber-ride-tracker/internal/dashboard"
	"github.com/erbarraud/ha-uber-ride-tracker/internal/entities"
	"github.com/erbarraud/ha-uber-ride-tracker/internal/ha"
	"github.com/erbarraud/ha-uber-ride-tracker/internal/tokenstore"
	"github.com/erbarraud/ha-uber-ride-tracker/internal/uber"
)

const defaultTokenPath = "uber_token.json"

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Warn("No .env file found, using environment variables")
	}

	env, err := config.LoadEnv()
	if err != nil {
		logger.Fatal("Invalid environment", zap.Error(err))
	}

	cfg, err := config.Load(os.Getenv("UBER_CONFIG_FILE"), logger)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger.Info("Starting Uber Ride Tracker",
		zap.Int("api_port", cfg.APIPort),
		zap.Bool("read_only", env.ReadOnly))

	clk := clock.NewRealClock()

	// Token persistence
	tokenPath := os.Getenv("UBER_TOKEN_FILE")
	if tokenPath == "" {
		tokenPath = defaultTokenPath
	}
	store := tokenstore.NewStore(tokenPath, logger)
	initial, err := store.Load()
	if err != nil {
		logger.Fatal("Failed to load stored token", zap.Error(err))
	}

	redirectURI := env.RedirectURI
	if redirectURI == "" {
		redirectURI = cfg.RedirectURI
	}

	tokens := uber.NewTokenManager(uber.OAuthConfig{
		ClientID:     env.ClientID,
		ClientSecret: env.ClientSecret,
		RedirectURI:  redirectURI,
	}, initial, clk, logger)
	tokens.OnChange(func(t uber.Token) {
		if err := store.Save(t); err != nil {
			logger.Error("Failed to persist token", zap.Error(err))
		}
	})

	if !tokens.HasToken() {
		logger.Warn("No OAuth token yet; authorize via GET /api/authorize/url then POST /api/authorize")
	}

	// Uber API client and polling coordinator
	client := uber.NewClient(uber.DefaultBaseURL, tokens, clk, logger)
	coord := coordinator.NewCoordinator(client, clk, logger)

	// Optional hub connection: entities are published only when HA_URL is
	// set; the command API works either way.
	var hub ha.HubClient
	var publisher *entities.Publisher
	if env.HAURL != "" && env.HAToken != "" {
		haClient := ha.NewClient(env.HAURL, env.HAToken, logger)
		if err := haClient.Connect(); err != nil {
			logger.Fatal("Failed to connect to Home Assistant", zap.Error(err))
		}
		defer haClient.Disconnect()
		hub = haClient
		logger.Info("Connected to Home Assistant", zap.String("url", env.HAURL))

		publisher = entities.NewPublisher(hub, coord, cfg.Entities, cfg.HistoryLimit, logger, env.ReadOnly)
		if err := publisher.Start(); err != nil {
			logger.Fatal("Failed to start entity publisher", zap.Error(err))
		}
		defer publisher.Stop()
	} else {
		logger.Info("HA_URL not set, running without hub connection")
	}

	// Dashboard assets
	if err := dashboard.Install(cfg.WWWDir, logger); err != nil {
		logger.Warn("Dashboard install failed", zap.Error(err))
	}

	// Start polling
	if err := coord.Start(); err != nil {
		logger.Fatal("Failed to start coordinator", zap.Error(err))
	}
	defer coord.Stop()

	// Command API
	server := api.NewServer(coord, tokens, client, cfg.HistoryLimit, redirectURI, logger, cfg.APIPort)
	if err := server.Start(); err != nil {
		logger.Fatal("Failed to start API server", zap.Error(err))
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Application running. Press Ctrl+C to exit.")
	<-sigChan

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("API server shutdown failed", zap.Error(err))
	}
}
