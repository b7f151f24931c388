package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	_ "github.com/tursodatabase/go-libsql"
)

//go:embed migrations/*.sql
var migrations embed.FS

// LibSQLEmbeddedConfig holds configuration for embedded libsql connections
type LibSQLEmbeddedConfig struct {
	DatabasePath string // Path to .db file
	Logger       zerolog.Logger
}

// Open connects to the embedded database and brings the schema up to date.
func Open(ctx context.Context, path string, logger zerolog.Logger) (*sql.DB, error) {
	db, err := ConnectToDBWithConfig(&LibSQLEmbeddedConfig{DatabasePath: path, Logger: logger})
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func ConnectToDBWithConfig(config *LibSQLEmbeddedConfig) (*sql.DB, error) {
	log := config.Logger.With().Str("component", "db").Logger()

	dir := filepath.Dir(config.DatabasePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create database directory %s: %w", dir, err)
	}

	if _, err := os.Stat(config.DatabasePath); os.IsNotExist(err) {
		log.Info().Str("path", config.DatabasePath).Msg("Database not found, creating a new one")
		file, err := os.Create(config.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("could not create db at path %s: %w", config.DatabasePath, err)
		}
		file.Close()
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL&_synchronous=NORMAL", config.DatabasePath)
	log.Info().Str("dsn", dsn).Msg("Connecting to embedded libsql")

	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open libsql connection: %w", err)
	}

	if err := verifyEmbeddedLibSQL(db, log); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// Migrate applies the embedded goose migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("failed to run goose migrations: %w", err)
	}
	return nil
}

// verifyEmbeddedLibSQL checks connectivity and the FTS5 module the rulebook index needs.
func verifyEmbeddedLibSQL(db *sql.DB, log zerolog.Logger) error {
	ctx := context.Background()

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("basic connectivity test failed: %w", err)
	}
	if result != 1 {
		return fmt.Errorf("basic connectivity test failed: unexpected result %d", result)
	}

	if _, err := db.ExecContext(ctx, "CREATE VIRTUAL TABLE IF NOT EXISTS temp._fts5_test USING fts5(content)"); err != nil {
		return fmt.Errorf("fts5 unavailable: %w", err)
	}
	_, _ = db.ExecContext(ctx, "DROP TABLE IF EXISTS temp._fts5_test")
	log.Debug().Msg("FTS5 extension verified")

	return nil
}
