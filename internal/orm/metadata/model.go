package metadata

import (
	"fmt"
	"reflect"

	"github.com/conduit-lang/entitycore/internal/orm/expr"
)

// EntityModel is the metadata for one entity type. A model is only mutable
// while its Builder runs; once published by the Registry it is read-only.
type EntityModel struct {
	Type reflect.Type

	primaryKey    []string
	indexes       []*IndexModel
	properties    map[string]*EntityProperty
	order         []string
	relationships []*EntityRelationship
	partition     string
	transient     map[string]bool
}

// IndexModel describes an index over one or more fields
type IndexModel struct {
	Fields []string
	Unique bool
}

func newEntityModel(t reflect.Type) *EntityModel {
	m := &EntityModel{
		Type:       t,
		properties: make(map[string]*EntityProperty),
		transient:  make(map[string]bool),
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		m.properties[f.Name] = &EntityProperty{Name: f.Name, Field: f}
		m.order = append(m.order, f.Name)
	}
	return m
}

// Name returns the entity type name
func (m *EntityModel) Name() string {
	return m.Type.Name()
}

// HasPrimaryKey returns true if a primary key was declared
func (m *EntityModel) HasPrimaryKey() bool {
	return len(m.primaryKey) > 0
}

// PrimaryKey returns the primary key fields in declaration order
func (m *EntityModel) PrimaryKey() []string {
	return append([]string(nil), m.primaryKey...)
}

func (m *EntityModel) setPrimaryKey(fields []string) error {
	if len(m.primaryKey) > 0 {
		return fmt.Errorf("%s: %w", m.Name(), ErrPrimaryKeyAlreadySet)
	}
	if len(fields) == 0 {
		return fmt.Errorf("%s: %w", m.Name(), ErrEmptyPrimaryKey)
	}
	for _, f := range fields {
		if _, ok := m.properties[f]; !ok {
			return fmt.Errorf("%s primary key field %s: %w", m.Name(), f, ErrUnknownField)
		}
	}
	m.primaryKey = append([]string(nil), fields...)
	return nil
}

// Indexes returns the declared indexes
func (m *EntityModel) Indexes() []*IndexModel {
	return append([]*IndexModel(nil), m.indexes...)
}

// Properties returns the properties in field order
func (m *EntityModel) Properties() []*EntityProperty {
	props := make([]*EntityProperty, 0, len(m.order))
	for _, name := range m.order {
		props = append(props, m.properties[name])
	}
	return props
}

// Property returns the named property
func (m *EntityModel) Property(name string) (*EntityProperty, bool) {
	p, ok := m.properties[name]
	return p, ok
}

// CalculatedProperties returns the properties with a calculation attached
func (m *EntityModel) CalculatedProperties() []*EntityProperty {
	var props []*EntityProperty
	for _, name := range m.order {
		if p := m.properties[name]; p.IsCalculated() {
			props = append(props, p)
		}
	}
	return props
}

// Relationships returns the relationships declared on this model
func (m *EntityModel) Relationships() []*EntityRelationship {
	return append([]*EntityRelationship(nil), m.relationships...)
}

// Relationship returns the named relationship
func (m *EntityModel) Relationship(name string) (*EntityRelationship, bool) {
	for _, r := range m.relationships {
		if r.Name == name {
			return r, true
		}
	}
	return nil, false
}

// PartitionField returns the partition field name, or "" if the entity is
// not partitioned
func (m *EntityModel) PartitionField() string {
	return m.partition
}

// IsPersisted returns true if the field is stored with the entity. Calculated
// and orm:"-" fields are not.
func (m *EntityModel) IsPersisted(name string) bool {
	p, ok := m.properties[name]
	return ok && !m.transient[name] && !p.IsCalculated()
}

// PersistedFields returns the persisted fields holding plain values: scalars,
// strings, arrays and structs. References, slices and maps are excluded.
func (m *EntityModel) PersistedFields() []string {
	var fields []string
	for _, name := range m.order {
		if !m.IsPersisted(name) {
			continue
		}
		switch m.properties[name].Field.Type.Kind() {
		case reflect.Ptr, reflect.Slice, reflect.Map, reflect.Interface, reflect.Func, reflect.Chan, reflect.UnsafePointer:
			continue
		}
		fields = append(fields, name)
	}
	return fields
}

// KeyValues reads the primary key values of entity
func (m *EntityModel) KeyValues(entity interface{}) ([]interface{}, error) {
	if !m.HasPrimaryKey() {
		return nil, fmt.Errorf("%s: %w", m.Name(), ErrNoPrimaryKey)
	}
	values := make([]interface{}, len(m.primaryKey))
	for i, f := range m.primaryKey {
		v, err := expr.Eval(expr.Field(expr.Const(entity), f), nil)
		if err != nil {
			return nil, fmt.Errorf("%s key %s: %w", m.Name(), f, err)
		}
		values[i] = v
	}
	return values, nil
}

func structType(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

func typeName(t reflect.Type) string {
	t = structType(t)
	if t == nil {
		return "<nil>"
	}
	return t.Name()
}
