// Package entdriver implements durable.Driver on ent's SQL dialect layer.
// It is database-agnostic and is embedded by the sqlite, postgres and libsql
// drivers.
package entdriver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"

	"github.com/papercomputeco/strata/pkg/durable"
	"github.com/papercomputeco/strata/pkg/memory"
)

const tableName = "memory_records"

var (
	recordColumns = []*schema.Column{
		{Name: "record_key", Type: field.TypeString, Unique: true},
		{Name: "namespace", Type: field.TypeString},
		{Name: "payload", Type: field.TypeBytes},
		{Name: "version", Type: field.TypeInt64},
		{Name: "checksum", Type: field.TypeString},
		{Name: "updated_at_ns", Type: field.TypeInt64},
	}

	recordsTable = &schema.Table{
		Name:       tableName,
		Columns:    recordColumns,
		PrimaryKey: []*schema.Column{recordColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "memoryrecord_namespace",
				Columns: []*schema.Column{recordColumns[1]},
			},
		},
	}

	selectColumns = []string{"record_key", "namespace", "payload", "version", "checksum", "updated_at_ns"}
)

// EntDriver provides durable record operations over an ent SQL driver.
type EntDriver struct {
	drv *entsql.Driver
}

// New runs the schema migration and returns an EntDriver. The EntDriver owns
// drv.
func New(ctx context.Context, drv *entsql.Driver) (*EntDriver, error) {
	migrate, err := schema.NewMigrate(drv)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration: %w", err)
	}

	// Append-only: creates the table and index, adds missing columns.
	if err := migrate.Create(ctx, recordsTable); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &EntDriver{drv: drv}, nil
}

// ReadRecord retrieves the record stored under key.
func (ed *EntDriver) ReadRecord(ctx context.Context, key string) (*durable.Record, error) {
	b := entsql.Dialect(ed.drv.Dialect())
	query, args := b.Select(selectColumns...).
		From(b.Table(tableName)).
		Where(entsql.EQ("record_key", key)).
		Query()

	var rows entsql.Rows
	if err := ed.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, ed.unavailable("read", key, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, ed.unavailable("read", key, err)
		}
		return nil, memory.NotFoundError{Key: key}
	}

	var (
		rec       durable.Record
		version   int64
		updatedNs int64
	)
	if err := rows.Scan(&rec.Key, &rec.Namespace, &rec.Payload, &version, &rec.Checksum, &updatedNs); err != nil {
		return nil, ed.unavailable("scan", key, err)
	}

	rec.Version = uint64(version)
	rec.UpdatedAt = time.Unix(0, updatedNs)

	return &rec, nil
}

// WriteRecord upserts rec only over an older version of the same key.
func (ed *EntDriver) WriteRecord(ctx context.Context, rec *durable.Record) error {
	if rec == nil {
		return errors.New("cannot write nil record")
	}

	query, args := entsql.Dialect(ed.drv.Dialect()).
		Insert(tableName).
		Columns(selectColumns...).
		Values(rec.Key, rec.Namespace, rec.Payload, int64(rec.Version), rec.Checksum, rec.UpdatedAt.UnixNano()).
		OnConflict(
			entsql.ConflictColumns("record_key"),
			entsql.ResolveWithNewValues(),
			entsql.UpdateWhere(entsql.ExprP(tableName+".version < excluded.version")),
		).
		Query()

	var res sql.Result
	if err := ed.drv.Exec(ctx, query, args, &res); err != nil {
		return ed.unavailable("write", rec.Key, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return ed.unavailable("rows affected for", rec.Key, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s already holds a version >= %d", memory.ErrVersionConflict, rec.Key, rec.Version)
	}

	return nil
}

// Close closes the underlying database.
func (ed *EntDriver) Close() error {
	return ed.drv.Close()
}

func (ed *EntDriver) unavailable(op, key string, err error) error {
	return fmt.Errorf("%w: %s %s %s: %v", memory.ErrDurableUnavailable, ed.drv.Dialect(), op, key, err)
}

var _ durable.Driver = (*EntDriver)(nil)
