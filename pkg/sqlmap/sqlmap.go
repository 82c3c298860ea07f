// Package sqlmap executes statements and stored procedures with parameters
// and results mapped through a mapping.Mapper.
package sqlmap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/block/dbserde/pkg/dbconn"
	"github.com/block/dbserde/pkg/mapping"
	"github.com/block/dbserde/pkg/utils"
)

// DB wraps a connection pool.
type DB struct {
	db     *sql.DB
	mapper *mapping.Mapper
	config *dbconn.DBConfig
	logger *slog.Logger
}

type Option func(*DB)

// WithMapper sets the mapper used for parameters and results.
func WithMapper(m *mapping.Mapper) Option {
	return func(d *DB) { d.mapper = m }
}

// WithConfig sets the retry configuration used for writes.
func WithConfig(c *dbconn.DBConfig) Option {
	return func(d *DB) { d.config = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *DB) { d.logger = l }
}

// New returns a DB using db. Without options the mapper uses the default
// registry.
func New(db *sql.DB, opts ...Option) *DB {
	d := &DB{
		db:     db,
		config: dbconn.NewDBConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.mapper == nil {
		d.mapper = &mapping.Mapper{Logger: d.logger}
	}
	return d
}

// Mapper returns the mapper used by d.
func (d *DB) Mapper() *mapping.Mapper {
	return d.mapper
}

// Insert writes record into table, one column per mapped field. It returns
// the rows affected.
func (d *DB) Insert(ctx context.Context, table string, record any) (int64, error) {
	params, err := d.mapper.Params(record)
	if err != nil {
		return 0, err
	}
	cols := make([]string, len(params))
	args := make([]any, len(params))
	for i, p := range params {
		cols[i] = p.Name
		args[i] = p.Value
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		utils.QuoteIdentifier(table), utils.QuoteColumns(cols), utils.Placeholders(len(args)))
	d.logger.DebugContext(ctx, "insert", "table", table, "columns", len(cols))
	count, err := dbconn.RetryableExec(ctx, d.db, d.config, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", table, err)
	}
	return count, nil
}

// Query runs query and reads every row into dest, a pointer to a slice of
// structs.
func (d *DB) Query(ctx context.Context, dest any, query string, args ...any) error {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer utils.CloseAndLog(rows)
	return d.mapper.ScanAll(mapping.SQLRows(rows), dest)
}

// QueryOne runs query and reads the first row into dest, a pointer to a
// struct. It returns sql.ErrNoRows when there are no rows.
func (d *DB) QueryOne(ctx context.Context, dest any, query string, args ...any) error {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer utils.CloseAndLog(rows)
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return sql.ErrNoRows
	}
	return d.mapper.ScanRow(mapping.SQLRows(rows), dest)
}

func (d *DB) callStatement(proc string, record any) (string, []any, error) {
	var args []any
	if record != nil {
		var err error
		if args, err = d.mapper.Args(record); err != nil {
			return "", nil, err
		}
	}
	return fmt.Sprintf("CALL %s(%s)", utils.QuoteIdentifier(proc), utils.Placeholders(len(args))), args, nil
}

// Call executes stored procedure proc with one parameter per mapped field
// of record, in field order. record may be nil for a procedure without
// parameters.
func (d *DB) Call(ctx context.Context, proc string, record any) error {
	stmt, args, err := d.callStatement(proc, record)
	if err != nil {
		return err
	}
	d.logger.DebugContext(ctx, "call", "procedure", proc, "params", len(args))
	if _, err := dbconn.RetryableExec(ctx, d.db, d.config, stmt, args...); err != nil {
		return fmt.Errorf("call %s: %w", proc, err)
	}
	return nil
}

// CallQuery executes stored procedure proc like Call and reads the rows of
// its first result set into dest, a pointer to a slice of structs.
func (d *DB) CallQuery(ctx context.Context, dest any, proc string, record any) error {
	stmt, args, err := d.callStatement(proc, record)
	if err != nil {
		return err
	}
	d.logger.DebugContext(ctx, "call", "procedure", proc, "params", len(args))
	if err := d.Query(ctx, dest, stmt, args...); err != nil {
		return fmt.Errorf("call %s: %w", proc, err)
	}
	return nil
}
