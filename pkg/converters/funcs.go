package converters

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/block/dbserde/pkg/serde"
)

// Funcs builds a converter from a pair of functions. It applies only to
// fields of type A bound to one of DbTypes (any db type when empty).
// ToDB and FromDB are not called for NULL values; D is the database side
// representation the functions work with.
type Funcs[A any, D any] struct {
	DbTypes []serde.DbType
	ToDB    func(A) (D, error)
	FromDB  func(D) (A, error)
	// Target, when set, overrides the db type of the written parameter.
	Target serde.DbType
}

var _ serde.DbTypeOverrider = Funcs[string, int64]{}

func (f Funcs[A, D]) accepts(appType reflect.Type, dbType serde.DbType) bool {
	if appType != reflect.TypeFor[A]() {
		return false
	}
	return len(f.DbTypes) == 0 || slices.Contains(f.DbTypes, dbType)
}

func (f Funcs[A, D]) CanSerialize(appType reflect.Type, dbType serde.DbType) bool {
	return f.ToDB != nil && f.accepts(appType, dbType)
}

func (f Funcs[A, D]) CanDeserialize(dbType serde.DbType, appType reflect.Type) bool {
	return f.FromDB != nil && f.accepts(appType, dbType)
}

func (f Funcs[A, D]) SerializeObject(_ reflect.Type, value any) (any, error) {
	if serde.IsNull(value) {
		return nil, nil
	}
	a, ok := value.(A)
	if !ok {
		return nil, fmt.Errorf("converters: expected %v, got %T", reflect.TypeFor[A](), value)
	}
	return f.ToDB(a)
}

func (f Funcs[A, D]) DeserializeObject(_ reflect.Type, dbValue any) (any, error) {
	if dbValue == nil {
		return nil, nil
	}
	d, ok := dbValue.(D)
	if !ok {
		// drivers hand text back as []byte
		converted, err := convertDriverValue[D](dbValue)
		if err != nil {
			return nil, err
		}
		d = converted
	}
	return f.FromDB(d)
}

func (f Funcs[A, D]) SerializedDbType(_ reflect.Type, declared serde.DbType) serde.DbType {
	if f.Target != serde.Unknown {
		return f.Target
	}
	return declared
}

func convertDriverValue[D any](v any) (D, error) {
	var zero D
	target := reflect.TypeFor[D]()
	switch target.Kind() {
	case reflect.String:
		if b, ok := v.([]byte); ok {
			return reflect.ValueOf(string(b)).Convert(target).Interface().(D), nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := int64Of(v)
		if err != nil {
			return zero, err
		}
		return reflect.ValueOf(i).Convert(target).Interface().(D), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type().ConvertibleTo(target) {
		return rv.Convert(target).Interface().(D), nil
	}
	return zero, fmt.Errorf("converters: cannot convert %T to %v", v, target)
}
