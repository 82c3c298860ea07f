package mapping

import (
	"database/sql"
	"fmt"
	"reflect"

	"github.com/block/dbserde/pkg/serde"
	"github.com/pingcap/errors"
)

// Rows is the subset of *sql.Rows the mapper reads from.
type Rows interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// DbTyper is implemented by rows that know the database type of their
// columns. Columns without a known type report serde.Unknown.
type DbTyper interface {
	DbTypes() ([]serde.DbType, error)
}

type sqlRows struct {
	*sql.Rows
}

// SQLRows adapts *sql.Rows so that the column types reported by the
// driver are used when resolving converters.
func SQLRows(rows *sql.Rows) Rows {
	return sqlRows{rows}
}

func (r sqlRows) DbTypes() ([]serde.DbType, error) {
	types, err := r.ColumnTypes()
	if err != nil {
		return nil, err
	}
	out := make([]serde.DbType, len(types))
	for i, ct := range types {
		// the driver reports TINYINT without its display width, so
		// TINYINT(1) columns arrive as Int16 rather than Boolean
		out[i] = serde.FromMySQLType(ct.DatabaseTypeName())
	}
	return out, nil
}

type scanState struct {
	columns []string
	dbTypes []serde.DbType
	raw     []any
	ptrs    []any
}

func newScanState(rows Rows) (*scanState, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	s := &scanState{
		columns: columns,
		dbTypes: make([]serde.DbType, len(columns)),
		raw:     make([]any, len(columns)),
		ptrs:    make([]any, len(columns)),
	}
	if typer, ok := rows.(DbTyper); ok {
		types, err := typer.DbTypes()
		if err != nil {
			return nil, err
		}
		copy(s.dbTypes, types)
	}
	for i := range s.raw {
		s.ptrs[i] = &s.raw[i]
	}
	return s, nil
}

// ScanRow reads the current row of rows into dest, a pointer to a struct.
// The caller must have called rows.Next.
func (m *Mapper) ScanRow(rows Rows, dest any) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer || dv.IsNil() {
		return fmt.Errorf("%w: %T", ErrNotPointer, dest)
	}
	rec, err := Describe(dv.Type().Elem())
	if err != nil {
		return err
	}
	state, err := newScanState(rows)
	if err != nil {
		return err
	}
	return m.scanInto(rows, state, rec, dv.Elem())
}

// ScanAll reads every remaining row into dest, a pointer to a slice of
// structs or struct pointers.
func (m *Mapper) ScanAll(rows Rows, dest any) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer || dv.IsNil() {
		return fmt.Errorf("%w: %T", ErrNotPointer, dest)
	}
	slice := dv.Elem()
	if slice.Kind() != reflect.Slice {
		return fmt.Errorf("%w: %T", ErrNotSlice, dest)
	}
	elemType := slice.Type().Elem()
	rec, err := Describe(elemType)
	if err != nil {
		return err
	}
	state, err := newScanState(rows)
	if err != nil {
		return err
	}
	for rows.Next() {
		elem := reflect.New(rec.Type)
		if err := m.scanInto(rows, state, rec, elem.Elem()); err != nil {
			return err
		}
		if elemType.Kind() == reflect.Pointer {
			slice.Set(reflect.Append(slice, elem))
		} else {
			slice.Set(reflect.Append(slice, elem.Elem()))
		}
	}
	return rows.Err()
}

func (m *Mapper) scanInto(rows Rows, state *scanState, rec *Record, dst reflect.Value) error {
	if err := rows.Scan(state.ptrs...); err != nil {
		return err
	}
	for i, name := range state.columns {
		c := rec.Column(name)
		if c == nil {
			continue
		}
		f := m.field(rec, c)
		if _, declared := m.declared(c.Name); !declared && state.dbTypes[i] != serde.Unknown {
			f.DbType = state.dbTypes[i]
		}
		fv, _ := fieldOf(dst, c, true)
		if err := m.read(f, fv, state.raw[i]); err != nil {
			return err
		}
	}
	return nil
}

// read stores the database value v into dst, through the converter
// resolved for f or the default conversion.
func (m *Mapper) read(f serde.Field, dst reflect.Value, v any) error {
	value, converted, err := m.registry().Deserialize(f, v)
	if err != nil {
		return errors.Annotatef(err, "deserialize %s", f)
	}
	if converted {
		m.logger().Debug("custom deserialization", "field", f.String(), "dbType", f.DbType.String())
		return errors.Annotatef(setConverted(dst, value), "assign %s", f)
	}
	if serde.InferDbType(f.Type) == serde.Structured && dst.Kind() == reflect.Slice {
		switch data := v.(type) {
		case []byte:
			return errors.Annotatef(m.element().readTable(data, dst), "read table %s", f)
		case string:
			return errors.Annotatef(m.element().readTable([]byte(data), dst), "read table %s", f)
		}
	}
	return errors.Annotatef(assign(dst, v), "assign %s", f)
}
