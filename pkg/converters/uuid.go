package converters

import (
	"fmt"
	"reflect"

	"github.com/block/dbserde/pkg/serde"
	"github.com/google/uuid"
)

// UUID stores uuid.UUID fields as their 36 character text form, or as
// BINARY(16) when Binary is set.
type UUID struct {
	Binary bool
}

var _ serde.DbTypeOverrider = UUID{}

var uuidType = reflect.TypeFor[uuid.UUID]()

func (c UUID) CanSerialize(appType reflect.Type, dbType serde.DbType) bool {
	if serde.Indirect(appType) != uuidType {
		return false
	}
	if c.Binary {
		return dbType == serde.Binary || dbType == serde.GUID
	}
	return dbType.IsText() || dbType == serde.GUID
}

func (c UUID) CanDeserialize(dbType serde.DbType, appType reflect.Type) bool {
	return c.CanSerialize(appType, dbType)
}

func (c UUID) SerializeObject(_ reflect.Type, value any) (any, error) {
	var id uuid.UUID
	switch v := value.(type) {
	case nil:
		return nil, nil
	case uuid.UUID:
		id = v
	case *uuid.UUID:
		if v == nil {
			return nil, nil
		}
		id = *v
	default:
		return nil, fmt.Errorf("converters: expected uuid.UUID, got %T", value)
	}
	if c.Binary {
		return id[:], nil
	}
	return id.String(), nil
}

func (UUID) DeserializeObject(appType reflect.Type, dbValue any) (any, error) {
	var (
		id  uuid.UUID
		err error
	)
	switch v := dbValue.(type) {
	case nil:
		return nil, nil
	case []byte:
		if len(v) == 16 {
			id, err = uuid.FromBytes(v)
		} else {
			id, err = uuid.ParseBytes(v)
		}
	case string:
		id, err = uuid.Parse(v)
	default:
		return nil, fmt.Errorf("converters: cannot decode UUID from %T", dbValue)
	}
	if err != nil {
		return nil, err
	}
	if appType.Kind() == reflect.Pointer {
		return &id, nil
	}
	return id, nil
}

func (c UUID) SerializedDbType(reflect.Type, serde.DbType) serde.DbType {
	if c.Binary {
		return serde.Binary
	}
	return serde.String
}
