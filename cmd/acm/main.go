package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/elys-network/acm/internal/config"
	"github.com/elys-network/acm/internal/executor"
	"github.com/elys-network/acm/internal/ingest"
	"github.com/elys-network/acm/internal/ledger"
	"github.com/elys-network/acm/internal/logger"
	"github.com/elys-network/acm/internal/scheduler"
	"github.com/elys-network/acm/internal/state"
	"github.com/elys-network/acm/internal/strategy"
	"github.com/elys-network/acm/internal/venue"
	"github.com/elys-network/acm/internal/web"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const DEFAULT_PARAMS_CONFIG_NAME = "default_acm_policy"

// main is the entry point for the ACM system.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("ACM Core Logic Starting...")

	// Initialize Database Connection
	dbCfg := state.DBConfig{
		Host: os.Getenv("DB_HOST"), Port: mustAtoi(os.Getenv("DB_PORT"), 5432),
		User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
		DBName: os.Getenv("DB_NAME"), SSLMode: os.Getenv("DB_SSLMODE"),
	}
	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	// Load Compound Parameters (seeds defaults on first run)
	params, err := state.LoadActiveCompoundParameters(DEFAULT_PARAMS_CONFIG_NAME, config.DefaultCompoundParameters)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load compound parameters")
	}
	log.Info().Msg("Compound parameters loaded successfully.")

	// --- 2. Safety Switch ---
	acmMode := os.Getenv("ACM_MODE")
	if acmMode != "live" {
		log.Fatal().Msg("ACM_MODE is not set to 'live'. Halting to prevent accidental execution. Set ACM_MODE=live to run.")
	}
	log.Warn().Msg("Initializing ACM in LIVE mode. Real deposits will be submitted to the venue.")

	// --- 3. Component Wiring ---
	persist := state.Persistence{}

	strategies := strategy.NewStore(&params, persist)
	feeLedger := ledger.NewLedger(&params, strategies, persist)

	participantStrategies, err := state.LoadParticipantStrategies()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load participant strategies")
	}
	poolStrategies, err := state.LoadPoolStrategies()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load pool strategies")
	}
	strategies.Load(participantStrategies, poolStrategies)

	feeAccounts, err := state.LoadFeeAccounts()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load fee accounts")
	}
	feeLedger.Load(feeAccounts)

	log.Info().
		Int("participant_strategies", len(participantStrategies)).
		Int("pool_strategies", len(poolStrategies)).
		Int("fee_accounts", len(feeAccounts)).
		Msg("State restored from database")

	venueClient := venue.NewClient(config.VenueAPI)
	defer venueClient.Close()

	exec := executor.New(&params, strategies, feeLedger, venueClient, persist)
	sched := scheduler.New(&params, strategies, feeLedger, venueClient, exec)
	ingestor := ingest.New(strategies, feeLedger, sched)

	// --- 4. Start Web Server ---
	webPort := os.Getenv("WEB_PORT")
	if webPort == "" {
		webPort = "8080"
	}

	webServer := web.NewWebServer(webPort, strategies, feeLedger, sched, exec, params)
	go func() {
		log.Info().Str("port", webPort).Str("url", "http://localhost:"+webPort).Msg("Starting ACM web API")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 5. Start Event Pipeline and Sweeper ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ingestor.Start(ctx)

	stream := venue.NewEventStream(config.VenueWS, ingestor.Dispatch)
	stream.Start(ctx)

	sweeper := scheduler.NewSweeper(sched)
	if err := sweeper.Start(config.SweepCron); err != nil {
		log.Fatal().Err(err).Str("spec", config.SweepCron).Msg("Failed to start queue sweeper")
	}

	log.Info().Uint64("venue_id", config.VenueID).Msg("ACM running")

	// --- 6. Graceful Shutdown ---
	<-ctx.Done()
	log.Info().Msg("Shutdown signal received, stopping components...")

	sweeper.Stop()
	stream.Stop()
	ingestor.Stop()

	log.Info().Msg("ACM stopped.")
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}
