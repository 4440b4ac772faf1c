package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"birthdaysite/pkg/logger"

	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS site_nodes (
	path       TEXT PRIMARY KEY,
	value      JSONB NOT NULL,
	version    BIGINT NOT NULL DEFAULT 1,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

var (
	pingAttempts = 5
	pingBackoff  = 2 * time.Second
)

// Connect opens the Postgres remote store and retries the first ping a few
// times in case of temporary DNS or network blips.
func Connect(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := ping(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func ping(db *sql.DB) error {
	var err error
	for i := 0; i < pingAttempts; i++ {
		if err = db.Ping(); err == nil {
			logger.Sugar.Info("Successfully connected to the database")
			return nil
		}
		logger.Sugar.Infof("Database connection failed, retrying in %s... (%v)", pingBackoff, err)
		time.Sleep(pingBackoff)
	}
	return fmt.Errorf("could not connect to database after %d attempts: %w", pingAttempts, err)
}

// Migrate creates the site_nodes table if it does not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate site_nodes: %w", err)
	}
	return nil
}
