// Package sqlite provides a SQLite-backed durable driver using ent's SQL layer.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	_ "github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/strata/pkg/durable/entdriver"
)

// Driver implements durable.Driver using SQLite via the ent driver.
type Driver struct {
	*entdriver.EntDriver
}

// NewDriver creates a new SQLite-backed durable driver.
// The dbPath can be a file path or ":memory:" for an in-memory database.
func NewDriver(ctx context.Context, dbPath string) (*Driver, error) {
	// Open the database using the github.com/mattn/go-sqlite3 driver (registered as "sqlite3")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: a single writer avoids SQLITE_BUSY and keeps ":memory:"
	// databases from splitting across connections.
	db.SetMaxOpenConns(1)

	// ent's migrator refuses SQLite connections without foreign keys.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	// Wrap the database connection with ent's SQL driver
	drv, err := entdriver.New(ctx, entsql.OpenDB(dialect.SQLite, db))
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Driver{EntDriver: drv}, nil
}
