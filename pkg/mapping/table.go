package mapping

import (
	"bytes"
	"database/sql/driver"
	"encoding/base64"
	"fmt"
	"reflect"
	"strconv"

	"github.com/block/dbserde/pkg/serde"
	"github.com/goccy/go-json"
	"github.com/pingcap/errors"
)

// Table is a table-valued parameter: rows of a struct type with every
// column already converted to its database representation.
//
// MySQL has no table-valued parameters, so a Table is sent as a JSON array
// of objects which a stored procedure can expand with JSON_TABLE:
//
//	SELECT * FROM JSON_TABLE(p_rows, '$[*]' COLUMNS (
//		id INT PATH '$.id',
//		style INT PATH '$.style'
//	)) AS t;
type Table struct {
	Columns []string
	DbTypes []serde.DbType
	Rows    [][]any // a nil row encodes a nil element
}

var _ driver.Valuer = (*Table)(nil)

// Value encodes the table as JSON text.
func (t *Table) Value() (driver.Value, error) {
	b, err := t.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// MarshalJSON writes the rows as objects keyed by column name, keeping
// column order.
func (t *Table) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, row := range t.Rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		if row == nil {
			buf.WriteString("null")
			continue
		}
		buf.WriteByte('{')
		for j, v := range row {
			if j > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(t.Columns[j])
			if err != nil {
				return nil, err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if b, ok := v.([]byte); ok && t.DbTypes[j] != serde.Binary {
				// text that the driver handed over as bytes
				v = string(b)
			}
			val, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", t.Columns[j], err)
			}
			buf.Write(val)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// Table converts rows, a slice of structs or struct pointers, into a
// table-valued parameter. Every column of every row is resolved through
// the registry independently, with the element type as record type.
func (m *Mapper) Table(rows any) (*Table, error) {
	rv := reflect.ValueOf(rows)
	for rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("%w: %T", ErrNotSlice, rows)
	}
	rec, err := Describe(rv.Type().Elem())
	if err != nil {
		return nil, err
	}
	t := &Table{
		Columns: rec.ColumnNames(),
		DbTypes: make([]serde.DbType, len(rec.Columns)),
		Rows:    make([][]any, 0, rv.Len()),
	}
	for i, c := range rec.Columns {
		t.DbTypes[i] = m.field(rec, c).DbType
	}
	for i := range rv.Len() {
		elem := rv.Index(i)
		if elem.Kind() == reflect.Pointer {
			if elem.IsNil() {
				t.Rows = append(t.Rows, nil)
				continue
			}
			elem = elem.Elem()
		}
		row := make([]any, len(rec.Columns))
		for j, c := range rec.Columns {
			p, err := m.param(rec, c, elem)
			if err != nil {
				return nil, errors.Annotatef(err, "row %d", i)
			}
			row[j] = p.Value
			if i == 0 {
				t.DbTypes[j] = p.DbType
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// ReadTable decodes a JSON encoded table, as produced by Table, into dest,
// which must be a pointer to a slice of structs or struct pointers. Every
// column is resolved through the registry.
func (m *Mapper) ReadTable(data []byte, dest any) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer || dv.IsNil() {
		return fmt.Errorf("%w: %T", ErrNotPointer, dest)
	}
	slice := dv.Elem()
	if slice.Kind() != reflect.Slice {
		return fmt.Errorf("%w: %T", ErrNotSlice, dest)
	}
	return m.readTable(data, slice)
}

func (m *Mapper) readTable(data []byte, slice reflect.Value) error {
	elemType := slice.Type().Elem()
	rec, err := Describe(elemType)
	if err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var objects []map[string]any
	if err := dec.Decode(&objects); err != nil {
		return errors.Annotate(err, "decode table")
	}

	out := reflect.MakeSlice(slice.Type(), 0, len(objects))
	for i, obj := range objects {
		if obj == nil {
			// a null row, nil for pointer elements
			out = reflect.Append(out, reflect.Zero(elemType))
			continue
		}
		elem := reflect.New(rec.Type).Elem()
		for key, raw := range obj {
			c := rec.Column(key)
			if c == nil {
				continue
			}
			v, err := fromJSON(raw)
			if err != nil {
				return errors.Annotatef(err, "row %d column %q", i, key)
			}
			fv, _ := fieldOf(elem, c, true)
			f := m.field(rec, c)
			if s, ok := v.(string); ok && f.DbType == serde.Binary {
				// binary columns are base64 in JSON
				if v, err = base64.StdEncoding.DecodeString(s); err != nil {
					return errors.Annotatef(err, "row %d column %q", i, key)
				}
			}
			if err := m.read(f, fv, v); err != nil {
				return errors.Annotatef(err, "row %d", i)
			}
		}
		if elemType.Kind() == reflect.Pointer {
			elem = elem.Addr()
		}
		out = reflect.Append(out, elem)
	}
	slice.Set(out)
	return nil
}

// fromJSON turns a decoded JSON value into what a driver would have
// returned: integers as int64, other numbers as float64, nested
// documents as their JSON text.
func fromJSON(v any) (any, error) {
	switch v := v.(type) {
	case json.Number:
		if i, err := strconv.ParseInt(v.String(), 10, 64); err == nil {
			return i, nil
		}
		return v.Float64()
	case map[string]any, []any:
		return json.Marshal(v)
	}
	return v, nil
}
