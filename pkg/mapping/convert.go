package mapping

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/block/dbserde/pkg/serde"
)

var (
	timeType    = reflect.TypeFor[time.Time]()
	scannerType = reflect.TypeFor[sql.Scanner]()
)

// timeLayouts are the text forms MySQL uses for temporal columns when
// parseTime is not enabled on the connection.
var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02",
}

// toDriverValue is the default write conversion used when no converter
// applies to a field.
func toDriverValue(v any) (driver.Value, error) {
	if serde.IsNull(v) {
		return nil, nil
	}
	if valuer, ok := v.(driver.Valuer); ok {
		return valuer.Value()
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
		if valuer, ok := rv.Interface().(driver.Valuer); ok {
			return valuer.Value()
		}
	}
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint(), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return rv.Bytes(), nil
		}
	case reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(b), rv)
			return b, nil
		}
	case reflect.Struct:
		if rv.Type() == timeType {
			return rv.Interface(), nil
		}
	}
	return nil, fmt.Errorf("unsupported parameter type %T", v)
}

// assign is the default read conversion used when no converter applies.
// dst must be settable. A nil src sets dst to its zero value.
func assign(dst reflect.Value, src any) error {
	if src == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	if dst.CanAddr() && dst.Addr().Type().Implements(scannerType) {
		return dst.Addr().Interface().(sql.Scanner).Scan(src)
	}
	if dst.Kind() == reflect.Pointer {
		elem := reflect.New(dst.Type().Elem())
		if err := assign(elem.Elem(), src); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	}
	sv := reflect.ValueOf(src)
	if sv.Type().AssignableTo(dst.Type()) {
		if b, ok := src.([]byte); ok {
			// the driver may reuse the buffer after the next Scan
			src = append([]byte(nil), b...)
			sv = reflect.ValueOf(src)
		}
		dst.Set(sv)
		return nil
	}

	switch dst.Kind() {
	case reflect.String:
		switch v := src.(type) {
		case []byte:
			dst.SetString(string(v))
		case string:
			dst.SetString(v)
		case time.Time:
			dst.SetString(v.Format(timeLayouts[0]))
		case int64, uint64, float64, bool:
			dst.SetString(fmt.Sprint(v))
		default:
			return cannotAssign(dst, src)
		}
		return nil
	case reflect.Bool:
		switch v := src.(type) {
		case bool:
			dst.SetBool(v)
		case int64:
			dst.SetBool(v != 0)
		case []byte, string:
			b, err := strconv.ParseBool(asString(v))
			if err != nil {
				return cannotAssign(dst, src)
			}
			dst.SetBool(b)
		default:
			return cannotAssign(dst, src)
		}
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		var i int64
		switch v := src.(type) {
		case int64:
			i = v
		case uint64:
			i = int64(v)
		case float64:
			i = int64(v)
		case bool:
			if v {
				i = 1
			}
		case []byte, string:
			var err error
			if i, err = strconv.ParseInt(asString(v), 10, 64); err != nil {
				return cannotAssign(dst, src)
			}
		default:
			return cannotAssign(dst, src)
		}
		if dst.OverflowInt(i) {
			return fmt.Errorf("value %d overflows %v", i, dst.Type())
		}
		dst.SetInt(i)
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		var u uint64
		switch v := src.(type) {
		case uint64:
			u = v
		case int64:
			if v < 0 {
				return fmt.Errorf("value %d overflows %v", v, dst.Type())
			}
			u = uint64(v)
		case []byte, string:
			var err error
			if u, err = strconv.ParseUint(asString(v), 10, 64); err != nil {
				return cannotAssign(dst, src)
			}
		default:
			return cannotAssign(dst, src)
		}
		if dst.OverflowUint(u) {
			return fmt.Errorf("value %d overflows %v", u, dst.Type())
		}
		dst.SetUint(u)
		return nil
	case reflect.Float32, reflect.Float64:
		var f float64
		switch v := src.(type) {
		case float64:
			f = v
		case float32:
			f = float64(v)
		case int64:
			f = float64(v)
		case []byte, string:
			var err error
			if f, err = strconv.ParseFloat(asString(v), 64); err != nil {
				return cannotAssign(dst, src)
			}
		default:
			return cannotAssign(dst, src)
		}
		dst.SetFloat(f)
		return nil
	case reflect.Slice:
		if dst.Type().Elem().Kind() == reflect.Uint8 {
			switch v := src.(type) {
			case []byte:
				dst.SetBytes(append([]byte(nil), v...))
			case string:
				dst.SetBytes([]byte(v))
			default:
				return cannotAssign(dst, src)
			}
			return nil
		}
	case reflect.Array:
		if b, ok := src.([]byte); ok && dst.Type().Elem().Kind() == reflect.Uint8 && len(b) == dst.Len() {
			reflect.Copy(dst, reflect.ValueOf(b))
			return nil
		}
	case reflect.Struct:
		if dst.Type() == timeType {
			t, err := parseTime(src)
			if err != nil {
				return err
			}
			dst.Set(reflect.ValueOf(t))
			return nil
		}
	}
	if sv.Type().ConvertibleTo(dst.Type()) && sv.Kind() == dst.Kind() {
		dst.Set(sv.Convert(dst.Type()))
		return nil
	}
	return cannotAssign(dst, src)
}

// setConverted stores the result of a converter into dst, falling back to
// the default conversion when the types do not line up exactly.
func setConverted(dst reflect.Value, v any) error {
	if serde.IsNull(v) {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	sv := reflect.ValueOf(v)
	if sv.Type().AssignableTo(dst.Type()) {
		dst.Set(sv)
		return nil
	}
	if dst.Kind() == reflect.Pointer && sv.Type().AssignableTo(dst.Type().Elem()) {
		p := reflect.New(dst.Type().Elem())
		p.Elem().Set(sv)
		dst.Set(p)
		return nil
	}
	return assign(dst, v)
}

func parseTime(src any) (time.Time, error) {
	switch v := src.(type) {
	case time.Time:
		return v, nil
	case []byte, string:
		s := asString(v)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("cannot parse %q as time", s)
	}
	return time.Time{}, fmt.Errorf("cannot convert %T to time.Time", src)
}

func asString(v any) string {
	switch s := v.(type) {
	case []byte:
		return string(s)
	case string:
		return s
	}
	return fmt.Sprint(v)
}

func cannotAssign(dst reflect.Value, src any) error {
	return fmt.Errorf("cannot assign %T to %v", src, dst.Type())
}
