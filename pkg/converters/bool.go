package converters

import (
	"fmt"
	"reflect"

	"github.com/block/dbserde/pkg/serde"
)

// NullableBool maps *bool fields to TINYINT(1) or BIT(1) columns, with a
// nil pointer stored as NULL.
type NullableBool struct{}

var _ serde.DbTypeOverrider = NullableBool{}

var boolPtrType = reflect.TypeFor[*bool]()

func (NullableBool) CanSerialize(appType reflect.Type, dbType serde.DbType) bool {
	return appType == boolPtrType && (dbType == serde.Boolean || dbType.IsInteger())
}

func (c NullableBool) CanDeserialize(dbType serde.DbType, appType reflect.Type) bool {
	return c.CanSerialize(appType, dbType)
}

func (NullableBool) SerializeObject(_ reflect.Type, value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case *bool:
		if v == nil {
			return nil, nil
		}
		if *v {
			return int64(1), nil
		}
		return int64(0), nil
	case bool:
		if v {
			return int64(1), nil
		}
		return int64(0), nil
	}
	return nil, fmt.Errorf("converters: expected *bool, got %T", value)
}

func (NullableBool) DeserializeObject(_ reflect.Type, dbValue any) (any, error) {
	var b bool
	switch v := dbValue.(type) {
	case nil:
		return (*bool)(nil), nil
	case bool:
		b = v
	case []byte:
		// BIT(1) arrives as a single raw byte, TINYINT(1) as text
		switch {
		case len(v) == 1 && (v[0] == 0 || v[0] == 1):
			b = v[0] == 1
		default:
			i, err := int64Of(v)
			if err != nil {
				return nil, err
			}
			b = i != 0
		}
	default:
		i, err := int64Of(v)
		if err != nil {
			return nil, err
		}
		b = i != 0
	}
	return &b, nil
}

func (NullableBool) SerializedDbType(reflect.Type, serde.DbType) serde.DbType {
	return serde.Boolean
}
