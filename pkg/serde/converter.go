// Package serde dispatches field values to pluggable converters when
// records are written to or read from the database.
package serde

import (
	"reflect"
)

// Converter transforms values between their Go representation and their
// database representation. A converter that cannot handle a type pair
// must say so from CanSerialize/CanDeserialize rather than fail, so that
// the dispatcher can fall through to the default conversion.
type Converter interface {
	// CanSerialize reports whether the converter writes values of appType
	// into a parameter declared as dbType.
	CanSerialize(appType reflect.Type, dbType DbType) bool

	// CanDeserialize reports whether the converter reads a column of
	// dbType into a field of appType.
	CanDeserialize(dbType DbType, appType reflect.Type) bool

	// SerializeObject converts an application value into a database value.
	// A null application value must produce nil (SQL NULL).
	SerializeObject(appType reflect.Type, value any) (any, error)

	// DeserializeObject converts a database value into an application value.
	// A nil database value must produce a null application value.
	DeserializeObject(appType reflect.Type, dbValue any) (any, error)
}

// DbTypeOverrider is an optional interface for converters that change the
// primitive database type of the parameter they produce, for example
// writing a string field into an integer column.
type DbTypeOverrider interface {
	Converter

	SerializedDbType(appType reflect.Type, declared DbType) DbType
}

// SerializedDbType returns the db type c produces for appType, which is the
// declared type unless c implements DbTypeOverrider.
func SerializedDbType(c Converter, appType reflect.Type, declared DbType) DbType {
	if o, ok := c.(DbTypeOverrider); ok {
		return o.SerializedDbType(appType, declared)
	}
	return declared
}

// IsNull reports whether v is SQL NULL or a null application value:
// a nil interface, or a nil pointer, map, slice or interface.
func IsNull(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// Indirect returns the type pointed to by t, following all pointers.
func Indirect(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// TypeOf returns the reflect.Type of T. It is a shorthand for naming record
// types at registration.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeFor[T]()
}
