package serde

import "reflect"

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry used by the package-level
// functions and by mappers that are not given a registry of their own.
func Default() *Registry {
	return defaultRegistry
}

// Register adds a rule to the default registry.
// This should be called during program initialization, before any
// records are mapped.
func Register(record reflect.Type, c Converter, field string) error {
	return defaultRegistry.Register(record, c, field)
}

// ResolveForWrite resolves f against the default registry.
func ResolveForWrite(f Field) Converter {
	return defaultRegistry.ResolveForWrite(f)
}

// ResolveForRead resolves f against the default registry.
func ResolveForRead(f Field) Converter {
	return defaultRegistry.ResolveForRead(f)
}

// ClearAll removes all rules from the default registry.
// This is primarily useful for testing.
func ClearAll() {
	defaultRegistry.ClearAll()
}
