// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var err error
	DB, err = sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
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

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	schemaSQL := `
		CREATE TABLE IF NOT EXISTS participant_strategies (
			participant TEXT PRIMARY KEY,
			pool_id BIGINT NOT NULL,
			is_active BOOLEAN NOT NULL,
			total_deposited NUMERIC(40, 0) NOT NULL,
			total_compounded NUMERIC(40, 0) NOT NULL,
			last_compound TIMESTAMPTZ NOT NULL,
			overhead_price_ceiling DECIMAL(30, 18) NOT NULL,
			risk_level INTEGER NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_participant_strategies_active ON participant_strategies(is_active);
		CREATE INDEX IF NOT EXISTS idx_participant_strategies_pool ON participant_strategies(pool_id);

		CREATE TABLE IF NOT EXISTS pool_strategies (
			pool_id BIGINT PRIMARY KEY,
			fee_rate BIGINT NOT NULL,
			total_participants INTEGER NOT NULL,
			total_value_locked NUMERIC(40, 0) NOT NULL,
			last_compound TIMESTAMPTZ NOT NULL,
			is_active BOOLEAN NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS fee_accounts (
			participant TEXT NOT NULL,
			pool_id BIGINT NOT NULL,
			total_fees_earned NUMERIC(40, 0) NOT NULL,
			pending_compound NUMERIC(40, 0) NOT NULL,
			last_collection TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (participant, pool_id),
			CONSTRAINT chk_pending_le_total CHECK (pending_compound <= total_fees_earned)
		);
		CREATE INDEX IF NOT EXISTS idx_fee_accounts_pool ON fee_accounts(pool_id);

		CREATE TABLE IF NOT EXISTS batch_receipts (
			receipt_id SERIAL PRIMARY KEY,
			batch_id UUID NOT NULL,
			batch_number INTEGER NOT NULL,
			pool_id BIGINT NOT NULL,
			batch_timestamp TIMESTAMPTZ NOT NULL,
			trigger_condition VARCHAR(32) NOT NULL,
			participant_count INTEGER NOT NULL,
			total_amount NUMERIC(40, 0) NOT NULL,
			gas_used BIGINT NOT NULL,
			overhead_price DECIMAL(30, 18) NOT NULL,
			overhead_cost NUMERIC(40, 0) NOT NULL,
			participants TEXT[], -- PostgreSQL array for indexable membership queries
			entries JSONB
		);
		CREATE INDEX IF NOT EXISTS idx_batch_receipts_timestamp ON batch_receipts(batch_timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_batch_receipts_pool_id ON batch_receipts(pool_id);
		CREATE INDEX IF NOT EXISTS idx_batch_receipts_trigger ON batch_receipts(trigger_condition);

		CREATE TABLE IF NOT EXISTS overhead_ledger (
			participant TEXT PRIMARY KEY,
			actual_overhead NUMERIC(40, 0) NOT NULL DEFAULT 0,
			assumed_overhead NUMERIC(40, 0) NOT NULL DEFAULT 0,
			compound_count INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS compound_parameters (
			params_id SERIAL PRIMARY KEY,
			version INTEGER NOT NULL DEFAULT 1,
			config_name VARCHAR(255) NOT NULL DEFAULT 'default',
			is_active BOOLEAN NOT NULL DEFAULT FALSE,
			activated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			min_compound_amount NUMERIC(40, 0) NOT NULL,
			max_overhead_price DECIMAL(30, 18) NOT NULL,
			min_action_interval_seconds BIGINT NOT NULL,
			min_batch_size INTEGER NOT NULL,
			max_batch_size INTEGER NOT NULL,
			max_batch_wait_seconds BIGINT NOT NULL,
			fee_denominator BIGINT NOT NULL,
			solo_overhead_gas BIGINT NOT NULL,
			batch_overhead_gas_base BIGINT NOT NULL,
			batch_overhead_gas_per_entry BIGINT NOT NULL,
			CONSTRAINT uq_compound_parameters_config_version UNIQUE (config_name, version)
		);
		CREATE INDEX IF NOT EXISTS idx_compound_parameters_config_active ON compound_parameters(config_name, is_active, activated_at DESC);

		-- Batch counter table for persistent global batch tracking
		CREATE TABLE IF NOT EXISTS batch_counter (
			id INTEGER PRIMARY KEY DEFAULT 1,
			current_batch INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT single_row_check CHECK (id = 1)
		);

		-- Insert initial row if it doesn't exist
		INSERT INTO batch_counter (id, current_batch)
		VALUES (1, 0)
		ON CONFLICT (id) DO NOTHING;
	`
	_, err := DB.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
