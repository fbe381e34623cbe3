package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/specsift/specsift/internal/common"
)

// Open connects to the configured database: PostgreSQL via pgx when a DSN is
// set, otherwise embedded SQLite (":memory:" when no path is configured).
func Open(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*sql.DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	driver, source := "sqlite", cfg.Path
	if source == "" {
		source = ":memory:"
	}
	if cfg.DSN != "" {
		driver, source = "pgx", cfg.DSN
	}
	logger.Info("db.connecting", "driver", driver)

	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == "sqlite" && source == ":memory:" {
		// Every pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	pingCtx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("db.connected", "driver", driver)
	return db, nil
}

// Close closes the database connection gracefully.
func Close(db *sql.DB, logger *slog.Logger) {
	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		logger.Error("db.close_error", "error", err)
		return
	}
	logger.Info("db.closed")
}

// Both SQLite and PostgreSQL accept this dialect: TEXT keys, $N placeholders,
// JSON stored as TEXT.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id                 TEXT PRIMARY KEY,
		document_id        TEXT NOT NULL,
		document_path      TEXT NOT NULL,
		status             TEXT NOT NULL,
		materials_total    INTEGER NOT NULL DEFAULT 0,
		materials_degraded INTEGER NOT NULL DEFAULT 0,
		started_at         TIMESTAMP NOT NULL,
		finished_at        TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS records (
		id              TEXT PRIMARY KEY,
		run_id          TEXT NOT NULL,
		document_id     TEXT NOT NULL,
		material        TEXT NOT NULL,
		attributes      TEXT NOT NULL,
		summary         TEXT NOT NULL DEFAULT '',
		source_passages TEXT NOT NULL,
		provider        TEXT NOT NULL DEFAULT '',
		confidence      REAL NOT NULL DEFAULT 0,
		degraded        BOOLEAN NOT NULL DEFAULT FALSE,
		state           TEXT NOT NULL,
		created_at      TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_records_run ON records (run_id)`,
	`CREATE INDEX IF NOT EXISTS idx_records_document ON records (document_id, material)`,
}

// Migrate creates the schema if missing. Statements are idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func now() time.Time { return time.Now().UTC() }
