// Package converters contains ready-made serde.Converter implementations.
package converters

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/block/dbserde/pkg/serde"
)

// Enum stores string values as integer codes, e.g. "Two" as 2.
// Names or codes without a mapping are read and written as NULL.
type Enum struct {
	codes map[string]int64
	names map[int64]string
}

var _ serde.DbTypeOverrider = (*Enum)(nil)

// NewEnum returns an Enum for the given name to code mapping.
func NewEnum(codes map[string]int64) *Enum {
	e := &Enum{
		codes: make(map[string]int64, len(codes)),
		names: make(map[int64]string, len(codes)),
	}
	for name, code := range codes {
		e.codes[name] = code
		e.names[code] = name
	}
	return e
}

func isStringType(t reflect.Type) bool {
	t = serde.Indirect(t)
	return t != nil && t.Kind() == reflect.String
}

func (e *Enum) CanSerialize(appType reflect.Type, dbType serde.DbType) bool {
	return isStringType(appType) && (dbType.IsText() || dbType.IsInteger())
}

func (e *Enum) CanDeserialize(dbType serde.DbType, appType reflect.Type) bool {
	return e.CanSerialize(appType, dbType)
}

func (e *Enum) SerializeObject(_ reflect.Type, value any) (any, error) {
	if serde.IsNull(value) {
		return nil, nil
	}
	name, err := stringOf(value)
	if err != nil {
		return nil, err
	}
	code, ok := e.codes[name]
	if !ok {
		return nil, nil
	}
	return code, nil
}

func (e *Enum) DeserializeObject(appType reflect.Type, dbValue any) (any, error) {
	if dbValue == nil {
		return nil, nil
	}
	code, err := int64Of(dbValue)
	if err != nil {
		return nil, err
	}
	name, ok := e.names[code]
	if !ok {
		return nil, nil
	}
	return stringValue(appType, name), nil
}

// SerializedDbType always writes codes into an integer parameter.
func (e *Enum) SerializedDbType(reflect.Type, serde.DbType) serde.DbType {
	return serde.Int32
}

// stringValue returns s as appType, which is a string kind or a pointer
// to one.
func stringValue(appType reflect.Type, s string) any {
	base := serde.Indirect(appType)
	v := reflect.ValueOf(s).Convert(base)
	if appType.Kind() == reflect.Pointer {
		p := reflect.New(base)
		p.Elem().Set(v)
		return p.Interface()
	}
	return v.Interface()
}

func stringOf(value any) (string, error) {
	rv := reflect.Indirect(reflect.ValueOf(value))
	if rv.Kind() != reflect.String {
		return "", fmt.Errorf("converters: expected a string, got %T", value)
	}
	return rv.String(), nil
}

func int64Of(value any) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case []byte:
		return strconv.ParseInt(string(v), 10, 64)
	case string:
		return strconv.ParseInt(v, 10, 64)
	}
	return 0, fmt.Errorf("converters: expected an integer, got %T", value)
}
