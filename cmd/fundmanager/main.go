package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/fundmanager/internal/bot"
	"github.com/elys-network/fundmanager/internal/config"
	"github.com/elys-network/fundmanager/internal/fund"
	"github.com/elys-network/fundmanager/internal/logger"
	"github.com/elys-network/fundmanager/internal/metrics"
	"github.com/elys-network/fundmanager/internal/pricefeed"
	"github.com/elys-network/fundmanager/internal/state"
	"github.com/elys-network/fundmanager/internal/web"
)

const (
	HEALTH_REFRESH_INTERVAL = 15 * time.Second
	SHUTDOWN_TIMEOUT        = 10 * time.Second
)

// main is the entry point of the fund manager daemon.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	closeLog, err := logger.Setup(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FILE"))
	if err != nil {
		log.Error().Err(err).Str("file", os.Getenv("LOG_FILE")).Msg("Failed to open log file, logging to the console only")
	}
	defer closeLog()

	// The safety switch lives in LoadConfig: anything but FUND_MODE=paper is rejected.
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration. Set FUND_MODE=paper to run against simulated collaborators.")
	}
	log.Info().Str("mode", config.Mode).Msg("Fund manager starting...")

	layout, err := config.LoadLayout(config.LayoutFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", config.LayoutFile).Msg("Failed to load fund layout")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- 2. Journal (optional) ---
	var (
		sinks    []fund.EventSink
		store    web.Store
		recorder bot.Recorder
	)
	if config.DatabaseEnabled() {
		if err := state.InitDB(config.DB); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		defer state.CloseDB()
		if err := state.EnsureSchema(); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure database schema")
		}
		sinks = append(sinks, state.Journal{})
		store = web.PostgresStore{}
		recorder = bot.PostgresRecorder{}
	} else {
		log.Warn().Msg("DB_HOST is not set. Events and snapshots will not be persisted.")
	}

	collector := metrics.NewCollector()

	// --- 3. Paper world and fund ---
	world, err := newPaperWorld(layout, time.Now)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build the paper world")
	}
	var proofs bot.ProofSource
	if config.PriceFeedURL != "" {
		proofs = pricefeed.NewFeed(config.PriceFeedURL, config.PriceFeedAPIKey, nil)
		log.Info().Str("url", config.PriceFeedURL).Msg("Signed price proofs enabled")
	}

	pf, err := bootstrapFund(ctx, world, layout, proofs, sinks, collector)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to bootstrap the fund")
	}

	// --- 4. Web API and gRPC health ---
	webServer := web.NewWebServer(config.WebPort, pf.fm, store, collector)
	go func() {
		log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting fund API")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed")
		}
	}()

	healthServer := web.NewHealthServer(pf.fm)
	go func() {
		if err := healthServer.ListenAndServe(ctx, config.GRPCPort, HEALTH_REFRESH_INTERVAL); err != nil {
			log.Error().Err(err).Msg("gRPC health server failed")
		}
	}()

	// --- 5. Bot ---
	operator, err := bot.New(bot.Config{
		Fund:              pf.fm,
		Credential:        pf.bot,
		Stakers:           world.stakers,
		Proofs:            proofs,
		Recorder:          recorder,
		Observer:          collector,
		UnlockAmount:      config.UnlockAmount,
		DistributionChunk: config.DistributionChunk,
		ValuationCron:     config.ValuationCron,
		CycleCron:         config.CycleCron,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}
	if err := operator.Register(); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule bot jobs")
	}
	if err := operator.AddJob("paper_epoch", layout.Validator.EpochCron, world.epoch); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule paper epochs")
	}
	operator.Start()

	<-ctx.Done()
	log.Info().Msg("Shutdown requested")

	operator.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), SHUTDOWN_TIMEOUT)
	defer cancel()
	if err := webServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Web server shutdown failed")
	}
	log.Info().Msg("Fund manager stopped")
}
