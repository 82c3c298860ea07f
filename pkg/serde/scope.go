package serde

import "reflect"

// Scope is a set of registrations that can be rolled back. It snapshots
// the registry when created; Close restores that snapshot, dropping
// everything registered since, including rules registered directly on
// the registry.
type Scope struct {
	registry *Registry
	saved    []Rule
	closed   bool
}

// Scope snapshots the current rules of r.
//
//	scope := registry.Scope()
//	defer scope.Close()
//	scope.Register(serde.TypeOf[Beer](), converters.TrimRight{}, "Name")
func (r *Registry) Scope() *Scope {
	return &Scope{
		registry: r,
		saved:    r.Rules(),
	}
}

// Register adds a rule to the underlying registry.
func (s *Scope) Register(record reflect.Type, c Converter, field string) error {
	return s.registry.Register(record, c, field)
}

// Close restores the rules that were registered when the scope was
// created. It is safe to call more than once.
func (s *Scope) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.registry.restore(s.saved)
}
