// Package sqlitevec provides a SQLite-backed vector driver using sqlite-vec.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/strata/pkg/vector"
)

// Driver implements vector.Driver using SQLite with sqlite-vec.
type Driver struct {
	db         *sql.DB
	dimensions uint
	logger     *slog.Logger
}

// Config holds configuration for the SQLite vec driver.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string

	// Dimensions is the number of dimensions for the embedding vectors.
	Dimensions uint
}

// NewDriver creates a new SQLite vector driver backed by sqlite-vec.
func NewDriver(c Config, logger *slog.Logger) (*Driver, error) {
	// enable connection to have sqlite-vec extension
	sqlite_vec.Auto()

	if c.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("sqlite-vec embedding dimensions cannot be 0, must be configured")
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}

	// vec0 virtual tables use integer rowids, so memory keys are mapped to
	// rowids through vec_items.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS vec_items (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			item_key TEXT NOT NULL UNIQUE,
			namespace TEXT NOT NULL,
			version INTEGER NOT NULL,
			checksum TEXT NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating items table: %w", err)
	}

	createVec := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS vec_embeddings USING vec0(embedding float[%d])`,
		c.Dimensions,
	)
	if _, err := db.Exec(createVec); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating vec0 table: %w", err)
	}

	logger.Info("sqlite-vec vector driver initialized",
		"db_path", c.DBPath,
		"dimensions", c.Dimensions,
		"vec_version", vecVersion,
	)

	return &Driver{
		db:         db,
		dimensions: c.Dimensions,
		logger:     logger,
	}, nil
}

// serializeFloat32 converts a float32 slice to the little-endian blob
// sqlite-vec expects.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// Add stores documents with their embeddings, replacing older entries for the
// same key. An entry is never replaced by a lower version.
func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, doc := range docs {
		if uint(len(doc.Embedding)) != d.dimensions {
			return fmt.Errorf("%w: %s has %d, want %d", vector.ErrDimensions, doc.ID, len(doc.Embedding), d.dimensions)
		}
		blob := serializeFloat32(doc.Embedding)

		var (
			rowID   int64
			version int64
		)
		err = tx.QueryRowContext(ctx,
			`SELECT rowid, version FROM vec_items WHERE item_key = ?`, doc.ID,
		).Scan(&rowID, &version)

		switch {
		case err == nil:
			if uint64(version) > doc.Version {
				d.logger.Debug("skipping older vector document", "key", doc.ID, "version", doc.Version)
				continue
			}

			if _, err := tx.ExecContext(ctx,
				`UPDATE vec_items SET namespace = ?, version = ?, checksum = ? WHERE rowid = ?`,
				doc.Namespace, int64(doc.Version), doc.Checksum, rowID,
			); err != nil {
				return fmt.Errorf("updating item %s: %w", doc.ID, err)
			}

			// vec0 does not support UPDATE
			if _, err := tx.ExecContext(ctx, `DELETE FROM vec_embeddings WHERE rowid = ?`, rowID); err != nil {
				return fmt.Errorf("deleting old embedding for %s: %w", doc.ID, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO vec_embeddings(rowid, embedding) VALUES (?, ?)`, rowID, blob,
			); err != nil {
				return fmt.Errorf("re-inserting embedding for %s: %w", doc.ID, err)
			}
		case errors.Is(err, sql.ErrNoRows):
			result, err := tx.ExecContext(ctx,
				`INSERT INTO vec_items(item_key, namespace, version, checksum) VALUES (?, ?, ?, ?)`,
				doc.ID, doc.Namespace, int64(doc.Version), doc.Checksum,
			)
			if err != nil {
				return fmt.Errorf("inserting item %s: %w", doc.ID, err)
			}

			rowID, err := result.LastInsertId()
			if err != nil {
				return fmt.Errorf("getting rowid for %s: %w", doc.ID, err)
			}

			if _, err := tx.ExecContext(ctx,
				`INSERT INTO vec_embeddings(rowid, embedding) VALUES (?, ?)`, rowID, blob,
			); err != nil {
				return fmt.Errorf("inserting embedding for %s: %w", doc.ID, err)
			}
		default:
			return fmt.Errorf("checking for existing item %s: %w", doc.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	d.logger.Debug("added documents to sqlite-vec", "count", len(docs))
	return nil
}

// Query finds the topK most similar documents to the given embedding.
func (d *Driver) Query(ctx context.Context, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = 10
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT i.item_key, i.namespace, i.version, i.checksum, ve.distance
		FROM vec_embeddings ve
		INNER JOIN vec_items i ON i.rowid = ve.rowid
		WHERE ve.embedding MATCH ?
			AND ve.k = ?
		ORDER BY ve.distance
	`, serializeFloat32(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	var results []vector.QueryResult
	for rows.Next() {
		var (
			doc      vector.Document
			version  int64
			distance float64
		)
		if err := rows.Scan(&doc.ID, &doc.Namespace, &version, &doc.Checksum, &distance); err != nil {
			return nil, fmt.Errorf("scanning query result: %w", err)
		}
		doc.Version = uint64(version)

		results = append(results, vector.QueryResult{
			Document: doc,
			// lower distance = higher similarity
			Score: float32(1.0 / (1.0 + distance)),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating query results: %w", err)
	}

	return results, nil
}

// Delete removes documents by their IDs.
func (d *Driver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	inClause := strings.Join(placeholders, ",")

	rows, err := tx.QueryContext(ctx, fmt.Sprintf(
		`SELECT rowid FROM vec_items WHERE item_key IN (%s)`, inClause,
	), args...)
	if err != nil {
		return fmt.Errorf("querying rowids for deletion: %w", err)
	}

	var rowIDs []int64
	for rows.Next() {
		var rowID int64
		if err := rows.Scan(&rowID); err != nil {
			rows.Close()
			return fmt.Errorf("scanning rowid: %w", err)
		}
		rowIDs = append(rowIDs, rowID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating rowids: %w", err)
	}

	for _, rowID := range rowIDs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM vec_embeddings WHERE rowid = ?`, rowID); err != nil {
			return fmt.Errorf("deleting embedding rowid %d: %w", rowID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM vec_items WHERE item_key IN (%s)`, inClause,
	), args...); err != nil {
		return fmt.Errorf("deleting items: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	d.logger.Debug("deleted documents from sqlite-vec", "count", len(ids))
	return nil
}

// Close releases resources held by the driver.
func (d *Driver) Close() error {
	return d.db.Close()
}

var _ vector.Driver = (*Driver)(nil)
