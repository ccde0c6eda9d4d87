//go:build libsql

// Package libsql provides a libSQL-backed durable driver. It accepts local
// "file:" URLs as well as remote libsql:// / https:// database URLs.
//
// go-libsql bundles its own SQLite symbols which clash with mattn/go-sqlite3
// at link time, so the driver is only built with the "libsql" tag.
package libsql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	_ "github.com/tursodatabase/go-libsql" // register the libSQL driver as "libsql"

	"github.com/papercomputeco/strata/pkg/durable/entdriver"
)

// Driver implements durable.Driver using libSQL.
type Driver struct {
	*entdriver.EntDriver
}

// NewDriver creates a new libSQL-backed durable driver. A bare path is
// treated as a local database file.
func NewDriver(ctx context.Context, target string) (*Driver, error) {
	if target == "" {
		return nil, fmt.Errorf("libsql target is required")
	}
	if !strings.Contains(target, ":") {
		target = "file:" + target
	}

	db, err := sql.Open("libsql", target)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	drv, err := entdriver.New(ctx, entsql.OpenDB(dialect.SQLite, db))
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Driver{EntDriver: drv}, nil
}
