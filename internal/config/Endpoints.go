package config

import (
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/elys-network/fundmanager/internal/state"
)

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// WebPort is the port of the read-only HTTP API.
	WebPort string
	// GRPCPort is the port of the gRPC health service.
	GRPCPort string

	// PriceFeedURL is the HTTP source of signed price proofs. Proofs are not attached when unset.
	PriceFeedURL string
	// PriceFeedAPIKey is sent as a bearer token to the price feed.
	PriceFeedAPIKey string

	// DB is the Postgres journal configuration. The journal is disabled when DB_HOST is unset.
	DB state.DBConfig
)

// DatabaseEnabled reports whether a journal database is configured.
func DatabaseEnabled() bool {
	return DB.Host != ""
}

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	WebPort = getEnvOrDefault("WEB_PORT", DefaultWebPort)
	GRPCPort = getEnvOrDefault("GRPC_PORT", DefaultGRPCPort)

	PriceFeedURL = getEnvOrDefault("PRICE_FEED_URL", "")
	PriceFeedAPIKey = getEnvOrDefault("PRICE_FEED_API_KEY", "")

	port, err := getEnvAsInt("DB_PORT", 5432)
	if err != nil {
		return err
	}
	DB = state.DBConfig{
		Host:     getEnvOrDefault("DB_HOST", ""),
		Port:     port,
		User:     getEnvOrDefault("DB_USER", ""),
		Password: getEnvOrDefault("DB_PASSWORD", ""),
		DBName:   getEnvOrDefault("DB_NAME", ""),
		SSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
	}

	log.Debug().
		Str("WebPort", WebPort).
		Str("GRPCPort", GRPCPort).
		Bool("PriceFeed", PriceFeedURL != "").
		Str("DBHost", DB.Host).
		Str("DBPort", strconv.Itoa(DB.Port)).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}
