// Package mapping maps Go structs to query parameters and result rows,
// dispatching each field through a serde.Registry.
package mapping

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/block/dbserde/pkg/serde"
)

const tagName = "db"

// Column is a mapped struct field.
type Column struct {
	Name   string // column name
	Field  string // Go field name
	Index  []int
	Type   reflect.Type
	DbType serde.DbType // from the tag, or inferred from Type
}

// Record describes how a struct type maps to columns.
type Record struct {
	Type    reflect.Type
	Columns []*Column
	byName  map[string]*Column
}

// Column returns the column with name (case-insensitive), or nil.
func (r *Record) Column(name string) *Column {
	return r.byName[strings.ToLower(name)]
}

// ColumnNames returns the column names in field order.
func (r *Record) ColumnNames() []string {
	names := make([]string, 0, len(r.Columns))
	for _, c := range r.Columns {
		names = append(names, c.Name)
	}
	return names
}

var records sync.Map // reflect.Type -> *Record

// Describe returns the mapping of struct type t, which may also be a
// pointer to a struct. Results are cached.
//
// Fields are mapped by their `db` tag, `db:"-"` skips a field and a
// declared type can follow the name: `db:"code,type=Int32"`. Exported
// untagged fields map to their Go name, and fields of embedded structs
// are promoted.
func Describe(t reflect.Type) (*Record, error) {
	t = serde.Indirect(t)
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %v", ErrNotStruct, t)
	}
	if r, ok := records.Load(t); ok {
		return r.(*Record), nil
	}
	r := &Record{
		Type:   t,
		byName: make(map[string]*Column),
	}
	for _, sf := range reflect.VisibleFields(t) {
		if !sf.IsExported() {
			continue
		}
		if sf.Anonymous && serde.Indirect(sf.Type).Kind() == reflect.Struct {
			continue // its fields are visited on their own
		}
		col, err := newColumn(sf)
		if err != nil {
			return nil, fmt.Errorf("%v.%s: %w", t, sf.Name, err)
		}
		if col == nil {
			continue
		}
		key := strings.ToLower(col.Name)
		if _, dup := r.byName[key]; dup {
			return nil, fmt.Errorf("%v: duplicate column %q", t, col.Name)
		}
		r.byName[key] = col
		r.Columns = append(r.Columns, col)
	}
	actual, _ := records.LoadOrStore(t, r)
	return actual.(*Record), nil
}

func newColumn(sf reflect.StructField) (*Column, error) {
	col := &Column{
		Name:  sf.Name,
		Field: sf.Name,
		Index: sf.Index,
		Type:  sf.Type,
	}
	tag, ok := sf.Tag.Lookup(tagName)
	if ok {
		parts := strings.Split(tag, ",")
		if parts[0] == "-" {
			return nil, nil
		}
		if parts[0] != "" {
			col.Name = parts[0]
		}
		for _, opt := range parts[1:] {
			key, value, _ := strings.Cut(strings.TrimSpace(opt), "=")
			switch key {
			case "type":
				tp, ok := serde.ParseDbType(value)
				if !ok {
					return nil, fmt.Errorf("unknown db type %q", value)
				}
				col.DbType = tp
			default:
				return nil, fmt.Errorf("unknown tag option %q", key)
			}
		}
	}
	if col.DbType == serde.Unknown {
		col.DbType = serde.InferDbType(sf.Type)
	}
	return col, nil
}

// fieldOf returns the field of struct value v for c. When an embedded
// pointer on the path is nil, ok is false unless alloc is set, in which
// case the pointer is allocated.
func fieldOf(v reflect.Value, c *Column, alloc bool) (reflect.Value, bool) {
	for i, x := range c.Index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				if !alloc {
					return reflect.Value{}, false
				}
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v, true
}
