package converters

import (
	"fmt"
	"reflect"

	"github.com/block/dbserde/pkg/serde"
	"github.com/goccy/go-json"
)

// JSON stores structs, maps and slices as JSON documents in JSON or text
// columns.
type JSON struct{}

var _ serde.DbTypeOverrider = JSON{}

func isDocumentType(t reflect.Type) bool {
	t = serde.Indirect(t)
	if t == nil {
		return false
	}
	switch t.Kind() {
	case reflect.Struct, reflect.Map, reflect.Slice, reflect.Array:
		return t != reflect.TypeFor[[]byte]()
	}
	return false
}

func (JSON) CanSerialize(appType reflect.Type, dbType serde.DbType) bool {
	return isDocumentType(appType) && (dbType == serde.JSON || dbType.IsText() || dbType == serde.Object)
}

func (c JSON) CanDeserialize(dbType serde.DbType, appType reflect.Type) bool {
	return c.CanSerialize(appType, dbType)
}

func (JSON) SerializeObject(_ reflect.Type, value any) (any, error) {
	if serde.IsNull(value) {
		return nil, nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (JSON) DeserializeObject(appType reflect.Type, dbValue any) (any, error) {
	var data []byte
	switch v := dbValue.(type) {
	case nil:
		return nil, nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return nil, fmt.Errorf("converters: cannot decode JSON from %T", dbValue)
	}
	ptr := reflect.New(appType)
	if err := json.Unmarshal(data, ptr.Interface()); err != nil {
		return nil, err
	}
	return ptr.Elem().Interface(), nil
}

// SerializedDbType writes documents as text so that the value can be
// bound to both JSON and character columns.
func (JSON) SerializedDbType(reflect.Type, serde.DbType) serde.DbType {
	return serde.String
}
