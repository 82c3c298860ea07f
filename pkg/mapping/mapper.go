package mapping

import (
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/block/dbserde/pkg/serde"
	"github.com/pingcap/errors"
)

var (
	ErrNotStruct  = errors.New("not a struct")
	ErrNotPointer = errors.New("destination must be a non-nil pointer")
	ErrNotSlice   = errors.New("not a slice of structs")
)

// Param is a single value bound to a statement or stored procedure.
type Param struct {
	Name   string
	DbType serde.DbType
	Value  any
}

// Mapper converts between structs and database values. The zero value
// uses the default registry and logger.
type Mapper struct {
	// Registry holds the custom converters; nil means serde.Default().
	Registry *serde.Registry
	// Columns optionally declares column types by column name, for
	// example from schema.Table.DbTypes(). Declared types take precedence
	// over db tags and inferred types.
	Columns map[string]serde.DbType
	Logger  *slog.Logger
}

// New returns a mapper using registry, or the default registry when nil.
func New(registry *serde.Registry) *Mapper {
	return &Mapper{Registry: registry}
}

func (m *Mapper) registry() *serde.Registry {
	if m.Registry == nil {
		return serde.Default()
	}
	return m.Registry
}

func (m *Mapper) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}

// field returns the dispatch key for c, with the declared column type
// when one is known.
func (m *Mapper) field(rec *Record, c *Column) serde.Field {
	f := serde.Field{
		Record: rec.Type,
		Name:   c.Field,
		Type:   c.Type,
		DbType: c.DbType,
	}
	if tp, ok := m.declared(c.Name); ok {
		f.DbType = tp
	}
	return f
}

// element returns the mapper used for the rows of a nested table. Declared
// column types belong to the outer table and are not carried over.
func (m *Mapper) element() *Mapper {
	return &Mapper{Registry: m.Registry, Logger: m.Logger}
}

func (m *Mapper) declared(column string) (serde.DbType, bool) {
	if tp, ok := m.Columns[column]; ok {
		return tp, true
	}
	for name, tp := range m.Columns {
		if strings.EqualFold(name, column) {
			return tp, true
		}
	}
	return serde.Unknown, false
}

// Params returns one parameter per mapped field of record, in field order.
// Slices of structs become table-valued parameters.
func (m *Mapper) Params(record any) ([]Param, error) {
	rv := reflect.ValueOf(record)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, fmt.Errorf("%w: nil %T", ErrNotStruct, record)
		}
		rv = rv.Elem()
	}
	rec, err := Describe(rv.Type())
	if err != nil {
		return nil, err
	}
	params := make([]Param, 0, len(rec.Columns))
	for _, c := range rec.Columns {
		p, err := m.param(rec, c, rv)
		if err != nil {
			return nil, err
		}
		params = append(params, p)
	}
	return params, nil
}

func (m *Mapper) param(rec *Record, c *Column, rv reflect.Value) (Param, error) {
	var value any
	if fv, ok := fieldOf(rv, c, false); ok {
		value = fv.Interface()
	}
	f := m.field(rec, c)
	dbValue, dbType, converted, err := m.registry().Serialize(f, value)
	if err != nil {
		return Param{}, errors.Annotatef(err, "serialize %s", f)
	}
	if converted {
		m.logger().Debug("custom serialization", "field", f.String(), "dbType", dbType.String())
		return Param{Name: c.Name, DbType: dbType, Value: dbValue}, nil
	}
	// the Go type decides, the column may be declared as JSON
	if serde.InferDbType(c.Type) == serde.Structured {
		table, err := m.element().Table(value)
		if err != nil {
			return Param{}, errors.Annotatef(err, "table-valued parameter %s", f)
		}
		return Param{Name: c.Name, DbType: serde.Structured, Value: table}, nil
	}
	dbValue, err = toDriverValue(value)
	if err != nil {
		return Param{}, errors.Annotatef(err, "parameter %s", f)
	}
	return Param{Name: c.Name, DbType: f.DbType, Value: dbValue}, nil
}

// Args returns the parameter values of record ordered by columns, or in
// field order when no columns are given. It is meant for building
// positional arguments of a statement.
func (m *Mapper) Args(record any, columns ...string) ([]any, error) {
	params, err := m.Params(record)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		args := make([]any, len(params))
		for i, p := range params {
			args[i] = p.Value
		}
		return args, nil
	}
	args := make([]any, 0, len(columns))
	for _, name := range columns {
		p, ok := lookupParam(params, name)
		if !ok {
			return nil, fmt.Errorf("no field maps to column %q", name)
		}
		args = append(args, p.Value)
	}
	return args, nil
}

func lookupParam(params []Param, name string) (Param, bool) {
	for _, p := range params {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Param{}, false
}
