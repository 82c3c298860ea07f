package serde

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

var (
	ErrNilConverter = errors.New("serde: converter must not be nil")
)

// Field identifies a single field being written to or read from the
// database.
type Field struct {
	Record reflect.Type // the struct the field belongs to
	Name   string       // the Go field name
	Type   reflect.Type // the Go type of the field
	DbType DbType       // declared or inferred database type
}

func (f Field) String() string {
	if f.Record == nil {
		return f.Name
	}
	return f.Record.String() + "." + f.Name
}

// Rule associates a converter with a record type (nil for every record)
// and optionally a single field of that record.
type Rule struct {
	Record    reflect.Type
	Field     string
	Converter Converter
}

func (r Rule) String() string {
	record := "*"
	if r.Record != nil {
		record = r.Record.String()
	}
	field := "*"
	if r.Field != "" {
		field = r.Field
	}
	return fmt.Sprintf("%s.%s => %T", record, field, r.Converter)
}

// specificity ranks a rule against f. A negative value means the rule
// does not apply to f at all.
func (r Rule) specificity(f Field) int {
	score := 0
	if r.Record != nil {
		if r.Record != f.Record {
			return -1
		}
		score++
	}
	if r.Field != "" {
		if !strings.EqualFold(r.Field, f.Name) {
			return -1
		}
		score += 2
	}
	return score
}

// Registry is an ordered collection of rules. Lookups are safe for
// concurrent use. Register and ClearAll are expected to be called
// before the registry is used for mapping, but are also lock protected.
type Registry struct {
	mu    sync.RWMutex
	rules []Rule
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a rule for record (nil applies to every record) and the
// optional field name. The converter must not be nil.
func (r *Registry) Register(record reflect.Type, c Converter, field string) error {
	if c == nil {
		return fmt.Errorf("%w: record=%v field=%q", ErrNilConverter, record, field)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rules = append(r.rules, Rule{
		Record:    record,
		Field:     field,
		Converter: c,
	})
	return nil
}

// ResolveForWrite returns the converter used to write f, or nil when the
// default conversion applies.
func (r *Registry) ResolveForWrite(f Field) Converter {
	return r.resolve(f, func(c Converter) bool {
		return c.CanSerialize(f.Type, f.DbType)
	})
}

// ResolveForRead returns the converter used to read f, or nil when the
// default conversion applies.
func (r *Registry) ResolveForRead(f Field) Converter {
	return r.resolve(f, func(c Converter) bool {
		return c.CanDeserialize(f.DbType, f.Type)
	})
}

// resolve picks the most specific applicable rule. A field-scoped rule
// beats a record-scoped one, which beats a global one. Ties go to the
// most recent registration.
func (r *Registry) resolve(f Field, applies func(Converter) bool) Converter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		best      Converter
		bestScore = -1
	)
	for i := len(r.rules) - 1; i >= 0; i-- {
		rule := r.rules[i]
		score := rule.specificity(f)
		if score <= bestScore {
			continue
		}
		if !applies(rule.Converter) {
			continue
		}
		best, bestScore = rule.Converter, score
	}
	return best
}

// Serialize converts value for f through the resolved converter. ok is
// false when no converter applies, in which case value and f.DbType are
// returned unchanged.
func (r *Registry) Serialize(f Field, value any) (dbValue any, dbType DbType, ok bool, err error) {
	c := r.ResolveForWrite(f)
	if c == nil {
		return value, f.DbType, false, nil
	}
	dbValue, err = c.SerializeObject(f.Type, value)
	if err != nil {
		return nil, f.DbType, true, err
	}
	return dbValue, SerializedDbType(c, f.Type, f.DbType), true, nil
}

// Deserialize converts dbValue for f through the resolved converter. ok is
// false when no converter applies.
func (r *Registry) Deserialize(f Field, dbValue any) (value any, ok bool, err error) {
	c := r.ResolveForRead(f)
	if c == nil {
		return dbValue, false, nil
	}
	value, err = c.DeserializeObject(f.Type, dbValue)
	return value, true, err
}

// ClearAll removes every rule, restoring the default conversions.
func (r *Registry) ClearAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rules = nil
}

// Rules returns a copy of the registered rules in registration order.
func (r *Registry) Rules() []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]Rule(nil), r.rules...)
}

// Len returns the number of registered rules.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rules)
}

func (r *Registry) restore(rules []Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rules = rules
}

// RegisterFor registers c for fields of record type T. An empty field
// applies to every field of T.
func RegisterFor[T any](r *Registry, c Converter, field string) error {
	return r.Register(TypeOf[T](), c, field)
}
