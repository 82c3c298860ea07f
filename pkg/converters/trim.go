package converters

import (
	"reflect"
	"strings"
	"unicode"

	"github.com/block/dbserde/pkg/serde"
)

// TrimRight removes trailing whitespace from text columns as they are read,
// which is useful for fixed width CHAR columns. Writes are left to the
// default conversion.
type TrimRight struct{}

var _ serde.Converter = TrimRight{}

func (TrimRight) CanSerialize(reflect.Type, serde.DbType) bool {
	return false
}

func (TrimRight) CanDeserialize(dbType serde.DbType, appType reflect.Type) bool {
	return isStringType(appType) && (dbType.IsText() || dbType == serde.Unknown)
}

func (TrimRight) SerializeObject(_ reflect.Type, value any) (any, error) {
	return value, nil
}

func (TrimRight) DeserializeObject(appType reflect.Type, dbValue any) (any, error) {
	var s string
	switch v := dbValue.(type) {
	case nil:
		return nil, nil
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return dbValue, nil
	}
	return stringValue(appType, strings.TrimRightFunc(s, unicode.IsSpace)), nil
}
