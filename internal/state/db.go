// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

var ErrDBNotInitialized = errors.New("database not initialized")

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// DSN renders the lib/pq connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	var err error
	DB, err = sql.Open("postgres", cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	if err := DB.Ping(); err != nil {
		DB.Close()
		DB = nil
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Str("host", cfg.Host).Str("db", cfg.DBName).Msg("Connected to the PostgreSQL fund journal")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// schemaSQL creates the journal tables. Safe to run on every start.
const schemaSQL = `
	CREATE TABLE IF NOT EXISTS fund_events (
		event_id UUID PRIMARY KEY,
		kind VARCHAR(64) NOT NULL,
		operation VARCHAR(64) NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL,
		payload JSONB NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_fund_events_occurred ON fund_events(occurred_at DESC);
	CREATE INDEX IF NOT EXISTS idx_fund_events_kind ON fund_events(kind);

	CREATE TABLE IF NOT EXISTS fund_snapshots (
		snapshot_id SERIAL PRIMARY KEY,
		cycle_number INTEGER NOT NULL,
		taken_at TIMESTAMPTZ NOT NULL,
		total_value_usd DECIMAL(38, 18) NOT NULL,
		unit_supply DECIMAL(38, 18) NOT NULL,
		gross_unit_value DECIMAL(38, 18) NOT NULL,
		position_names TEXT[],
		snapshot JSONB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_fund_snapshots_taken ON fund_snapshots(taken_at DESC);
	CREATE INDEX IF NOT EXISTS idx_fund_snapshots_cycle ON fund_snapshots(cycle_number DESC);

	CREATE TABLE IF NOT EXISTS cycle_counter (
		id INTEGER PRIMARY KEY DEFAULT 1,
		current_cycle INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT single_row_check CHECK (id = 1)
	);
	INSERT INTO cycle_counter (id, current_cycle)
	VALUES (1, 0)
	ON CONFLICT (id) DO NOTHING;
`

// dropSQL removes every journal table. Used by scripts/reset_db.go.
const dropSQL = `
	DROP TABLE IF EXISTS fund_events CASCADE;
	DROP TABLE IF EXISTS fund_snapshots CASCADE;
	DROP TABLE IF EXISTS cycle_counter CASCADE;
`

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return ErrDBNotInitialized
	}
	if _, err := DB.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured (fund_events, fund_snapshots, cycle_counter).")
	return nil
}

// DropSchema drops the journal tables. All recorded history is lost.
func DropSchema() error {
	if DB == nil {
		return ErrDBNotInitialized
	}
	if _, err := DB.Exec(dropSQL); err != nil {
		return fmt.Errorf("failed to drop journal tables: %w", err)
	}
	log.Warn().Msg("Dropped fund journal tables")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return ErrDBNotInitialized
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}
