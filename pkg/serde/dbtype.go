package serde

import (
	"reflect"
	"strconv"
	"strings"
	"time"
)

// DbType is the primitive database type used for a parameter or column.
type DbType int

const (
	Unknown DbType = iota
	String
	AnsiString
	Boolean
	Int16
	Int32
	Int64
	UInt64
	Decimal
	Single
	Double
	Binary
	Date
	Time
	DateTime
	JSON
	GUID
	Structured // a table-valued parameter
	Object
)

var dbTypeNames = [...]string{
	Unknown:    "Unknown",
	String:     "String",
	AnsiString: "AnsiString",
	Boolean:    "Boolean",
	Int16:      "Int16",
	Int32:      "Int32",
	Int64:      "Int64",
	UInt64:     "UInt64",
	Decimal:    "Decimal",
	Single:     "Single",
	Double:     "Double",
	Binary:     "Binary",
	Date:       "Date",
	Time:       "Time",
	DateTime:   "DateTime",
	JSON:       "JSON",
	GUID:       "GUID",
	Structured: "Structured",
	Object:     "Object",
}

func (t DbType) String() string {
	if t < 0 || int(t) >= len(dbTypeNames) {
		return "DbType(" + strconv.Itoa(int(t)) + ")"
	}
	return dbTypeNames[t]
}

// IsInteger reports whether t is one of the integer types.
func (t DbType) IsInteger() bool {
	switch t {
	case Int16, Int32, Int64, UInt64:
		return true
	}
	return false
}

// IsText reports whether t is a character type.
func (t DbType) IsText() bool {
	return t == String || t == AnsiString
}

// ParseDbType returns the DbType with the given name (case-insensitive).
func ParseDbType(name string) (DbType, bool) {
	for i, n := range dbTypeNames {
		if strings.EqualFold(n, name) {
			return DbType(i), true
		}
	}
	return Unknown, false
}

// FromMySQLType maps a MySQL column type such as "TINYINT(1)",
// "INT UNSIGNED" or "varchar(255)" to a DbType.
func FromMySQLType(columnType string) DbType {
	upperType := strings.ToUpper(strings.TrimSpace(columnType))
	unsigned := strings.Contains(upperType, "UNSIGNED")
	// database/sql reports unsigned columns as "UNSIGNED INT"
	upperType = strings.TrimPrefix(upperType, "UNSIGNED ")

	// The base type is the first word, without length or precision:
	// "int(10) unsigned" and "text character set utf8mb4" both reduce.
	baseType := upperType
	if idx := strings.IndexAny(upperType, "( "); idx != -1 {
		baseType = upperType[:idx]
	}

	switch baseType {
	case "BOOL", "BOOLEAN":
		return Boolean
	case "TINYINT":
		// TINYINT(1) is how MySQL spells boolean
		if strings.HasPrefix(upperType, "TINYINT(1)") {
			return Boolean
		}
		return Int16
	case "SMALLINT", "YEAR":
		if unsigned {
			return Int32
		}
		return Int16
	case "MEDIUMINT":
		return Int32
	case "INT", "INTEGER":
		if unsigned {
			return Int64
		}
		return Int32
	case "BIGINT":
		if unsigned {
			return UInt64
		}
		return Int64
	case "BIT":
		if strings.HasPrefix(upperType, "BIT(1)") || upperType == "BIT" {
			return Boolean
		}
		return Binary
	case "FLOAT":
		return Single
	case "DOUBLE", "REAL":
		return Double
	case "DECIMAL", "NUMERIC", "DEC", "FIXED":
		return Decimal
	case "CHAR", "VARCHAR", "TINYTEXT", "TEXT", "MEDIUMTEXT", "LONGTEXT", "ENUM", "SET":
		return String
	case "BINARY", "VARBINARY", "TINYBLOB", "BLOB", "MEDIUMBLOB", "LONGBLOB":
		return Binary
	case "DATE":
		return Date
	case "TIME":
		return Time
	case "DATETIME", "TIMESTAMP":
		return DateTime
	case "JSON":
		return JSON
	}
	return Object
}

var (
	timeType  = reflect.TypeFor[time.Time]()
	bytesType = reflect.TypeFor[[]byte]()
)

// InferDbType returns the db type used for a Go type when nothing declares
// one. Pointers are looked through; slices of structs are Structured.
func InferDbType(t reflect.Type) DbType {
	if t == nil {
		return Unknown
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t {
	case timeType:
		return DateTime
	case bytesType:
		return Binary
	}
	switch t.Kind() {
	case reflect.String:
		return String
	case reflect.Bool:
		return Boolean
	case reflect.Int8, reflect.Int16, reflect.Uint8:
		return Int16
	case reflect.Int32, reflect.Uint16:
		return Int32
	case reflect.Int, reflect.Int64, reflect.Uint32:
		return Int64
	case reflect.Uint, reflect.Uint64:
		return UInt64
	case reflect.Float32:
		return Single
	case reflect.Float64:
		return Double
	case reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			return Binary
		}
	case reflect.Slice:
		elem := t.Elem()
		for elem.Kind() == reflect.Pointer {
			elem = elem.Elem()
		}
		if elem.Kind() == reflect.Struct && elem != timeType {
			return Structured
		}
	}
	return Object
}
