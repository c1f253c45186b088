package db

import (
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
	if driver == "sqlite" && !isMemory(connection) {
		path, _, _ := strings.Cut(strings.TrimPrefix(connection, "file:"), "?")
		dir := filepath.Dir(path)
		err := os.MkdirAll(dir, 0755)
		if err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sqlx.Connect(driver, connection)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	if driver == "sqlite" {
		// One writer; an in-memory database lives and dies with its connection.
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)

		_, err = db.Exec("PRAGMA foreign_keys = ON")
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	} else {
		// Connection pool configuration
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	slog.Info("database connected", "driver", driver)

	err = db.Ping()
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Open connects and migrates in one step.
func Open(driver, connection string) (*sqlx.DB, error) {
	database, err := Init(driver, connection)
	if err != nil {
		return nil, err
	}

	err = RunMigrations(database.DB, driver)
	if err != nil {
		database.Close()
		return nil, err
	}

	return database, nil
}

func Close(db *sqlx.DB) error {
	if db != nil {
		return db.Close()
	}
	return nil
}

func isMemory(connection string) bool {
	return strings.HasPrefix(connection, ":memory:") || strings.Contains(connection, "mode=memory")
}
