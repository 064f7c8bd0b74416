package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	_ "github.com/tursodatabase/go-libsql"
)

// LibSQLEmbeddedConfig holds configuration for embedded libsql connections
type LibSQLEmbeddedConfig struct {
	DatabasePath string // Path to .db file
}

// ConnectToDB opens (creating if needed) the embedded session database at path.
func ConnectToDB(path string) (*sql.DB, error) {
	cfg := &LibSQLEmbeddedConfig{DatabasePath: path}
	return ConnectToDBWithConfig(cfg)
}

func ConnectToDBWithConfig(config *LibSQLEmbeddedConfig) (*sql.DB, error) {
	// Ensure database directory exists for embedded mode
	dir := filepath.Dir(config.DatabasePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create database directory %s: %v", dir, err)
	}

	// Ensure database file exists for embedded mode
	if _, err := os.Stat(config.DatabasePath); os.IsNotExist(err) {
		log.Info().Str("path", config.DatabasePath).Msg("session database not found, creating a new one")
		file, err := os.Create(config.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("could not create db at path %s: %v", config.DatabasePath, err)
		}
		file.Close()
	}

	// Embedded mode with enhanced pragmas
	dsn := fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL&_synchronous=NORMAL&_cache_size=-64000&_temp_store=memory",
		config.DatabasePath)

	log.Info().Str("dsn", dsn).Msg("connecting to embedded libsql")

	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open libsql connection: %w", err)
	}

	if err := verifyEmbeddedLibSQL(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// verifyEmbeddedLibSQL checks connectivity and the JSON1 functions session
// histories depend on.
func verifyEmbeddedLibSQL(db *sql.DB) error {
	ctx := context.Background()

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("basic connectivity test failed: %w", err)
	}
	if result != 1 {
		return fmt.Errorf("basic connectivity test failed: unexpected result %d", result)
	}

	// Histories are stored as JSON text, so json_extract must work.
	var jsonResult string
	if err := db.QueryRowContext(ctx, "SELECT json_extract('{\"test\":\"value\"}', '$.test')").Scan(&jsonResult); err != nil {
		return fmt.Errorf("JSON1 support missing: %w", err)
	}
	if jsonResult != "value" {
		return fmt.Errorf("JSON1 test returned unexpected result %q", jsonResult)
	}

	return nil
}
