package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/fundmanager/internal/config"
	"github.com/elys-network/fundmanager/internal/logger"
	"github.com/elys-network/fundmanager/internal/state"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found or error loading .env file. Relying on OS environment variables.")
	}

	closeLog, err := logger.Setup(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FILE"))
	if err != nil {
		log.Error().Err(err).Str("file", os.Getenv("LOG_FILE")).Msg("Failed to open log file, logging to the console only")
	}
	defer closeLog()
	log.Info().Msg("Starting database reset script...")

	// Same configuration path as the daemon, DB_* included.
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if !config.DatabaseEnabled() {
		log.Fatal().Msg("DB_HOST environment variable not set.")
	}

	log.Info().
		Str("host", config.DB.Host).
		Int("port", config.DB.Port).
		Str("user", config.DB.User).
		Str("dbname", config.DB.DBName).
		Msg("Connecting to database")

	if err := state.InitDB(config.DB); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database connection")
	}
	defer state.CloseDB()

	log.Info().Msg("Connected to database. Dropping the fund journal tables...")
	if err := state.DropSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to drop tables")
	}

	log.Info().Msg("Recreating database schema...")
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to recreate database schema")
	}
	log.Info().Msg("Database reset complete!")
}
