package db

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

func Init(driver, connection string) (*sqlx.DB, error) {
	// SQLite: create data directory if needed
	if driver == "sqlite" {
		path, _, _ := strings.Cut(connection, "?")
		path = strings.TrimPrefix(path, "file:")
		if path != "" && path != ":memory:" {
			err := os.MkdirAll(filepath.Dir(path), 0o755)
			if err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
	}

	db, err := sqlx.Connect(driver, connection)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	if driver == "sqlite" {
		// Single writer; busy_timeout in the DSN covers the rest.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	slog.Info("database connected", "driver", driver)

	return db, nil
}

// Healthcheck returns a ping func for the health endpoint.
func Healthcheck(db *sqlx.DB) func(context.Context) error {
	return func(ctx context.Context) error {
		err := db.PingContext(ctx)
		if err != nil {
			return fmt.Errorf("database ping failed: %w", err)
		}
		return nil
	}
}

func Close(db *sqlx.DB) error {
	if db != nil {
		return db.Close()
	}
	return nil
}
