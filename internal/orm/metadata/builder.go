package metadata

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/conduit-lang/entitycore/internal/orm/expr"
)

// Builder configures an EntityModel. Builder calls chain; mistakes are
// collected and reported together when the registry finishes the build.
type Builder struct {
	model  *EntityModel
	errors []error
}

func newBuilder(t reflect.Type) *Builder {
	return &Builder{model: newEntityModel(t)}
}

// Type returns the entity type being configured
func (b *Builder) Type() reflect.Type {
	return b.model.Type
}

// Err returns the collected configuration errors, or nil
func (b *Builder) Err() error {
	return errors.Join(b.errors...)
}

func (b *Builder) fail(err error) {
	b.errors = append(b.errors, err)
}

func (b *Builder) hasField(t reflect.Type, name string) bool {
	f, ok := structType(t).FieldByName(name)
	return ok && f.IsExported()
}

func (b *Builder) checkFields(t reflect.Type, what string, fields []string) bool {
	ok := true
	for _, f := range fields {
		if !b.hasField(t, f) {
			b.fail(fmt.Errorf("%s %s field %s: %w", typeName(t), what, f, ErrUnknownField))
			ok = false
		}
	}
	return ok
}

// SetPrimaryKey declares the primary key. It may be set only once.
func (b *Builder) SetPrimaryKey(fields ...string) *Builder {
	if err := b.model.setPrimaryKey(fields); err != nil {
		b.fail(err)
	}
	return b
}

// AddIndex declares a non-unique index
func (b *Builder) AddIndex(fields ...string) *Builder {
	return b.addIndex(fields, false)
}

// AddUniqueIndex declares a unique index
func (b *Builder) AddUniqueIndex(fields ...string) *Builder {
	return b.addIndex(fields, true)
}

func (b *Builder) addIndex(fields []string, unique bool) *Builder {
	if len(fields) == 0 {
		b.fail(fmt.Errorf("%s index: %w", b.model.Name(), ErrUnknownField))
		return b
	}
	if b.checkFields(b.model.Type, "index", fields) {
		b.model.indexes = append(b.model.indexes, &IndexModel{
			Fields: append([]string(nil), fields...),
			Unique: unique,
		})
	}
	return b
}

// SetPartition declares the field that scopes rows to a data area
func (b *Builder) SetPartition(field string) *Builder {
	if b.model.partition != "" {
		b.fail(fmt.Errorf("%s partition %s: %w", b.model.Name(), field, ErrPartitionAlreadySet))
		return b
	}
	if b.checkFields(b.model.Type, "partition", []string{field}) {
		b.model.partition = field
	}
	return b
}

// Exclude marks fields as not persisted
func (b *Builder) Exclude(fields ...string) *Builder {
	if b.checkFields(b.model.Type, "excluded", fields) {
		for _, f := range fields {
			b.model.transient[f] = true
		}
	}
	return b
}

// AddOneToMany declares a relationship to many target entities. navigation
// names the collection field on this entity and may be empty.
func (b *Builder) AddOneToMany(target reflect.Type, navigation, name string) *RelationshipBuilder {
	return b.addRelationship(OneToMany, target, navigation, name)
}

// AddOneToOne declares a relationship to a single dependent target entity
func (b *Builder) AddOneToOne(target reflect.Type, navigation, name string) *RelationshipBuilder {
	return b.addRelationship(OneToOne, target, navigation, name)
}

// AddManyToOne declares a relationship to a principal target entity.
// navigation names the reference field on this entity and may be empty.
func (b *Builder) AddManyToOne(target reflect.Type, navigation, name string) *RelationshipBuilder {
	return b.addRelationship(ManyToOne, target, navigation, name)
}

// HasMany declares a one-to-many relationship to D
func HasMany[D any](b *Builder, navigation, name string) *RelationshipBuilder {
	return b.AddOneToMany(reflect.TypeFor[D](), navigation, name)
}

// HasOne declares a one-to-one relationship to D
func HasOne[D any](b *Builder, navigation, name string) *RelationshipBuilder {
	return b.AddOneToOne(reflect.TypeFor[D](), navigation, name)
}

// BelongsTo declares a many-to-one relationship to P
func BelongsTo[P any](b *Builder, navigation, name string) *RelationshipBuilder {
	return b.AddManyToOne(reflect.TypeFor[P](), navigation, name)
}

func (b *Builder) addRelationship(kind RelationshipKind, target reflect.Type, navigation, name string) *RelationshipBuilder {
	rb := &RelationshipBuilder{builder: b}

	st := structType(target)
	if st == nil || st.Kind() != reflect.Struct {
		b.fail(fmt.Errorf("%s relationship target %v: %w", b.model.Name(), target, ErrNotEntityType))
		return rb
	}
	if navigation != "" && !b.checkFields(b.model.Type, "navigation", []string{navigation}) {
		return rb
	}

	if name == "" {
		name = navigation
	}
	if name == "" {
		name = st.Name()
	}
	if _, exists := b.model.Relationship(name); exists {
		b.fail(fmt.Errorf("%s relationship %s: %w", b.model.Name(), name, ErrDuplicateRelationship))
		return rb
	}

	rel := &EntityRelationship{
		Name:   name,
		Kind:   kind,
		Owner:  b.model.Type,
		Target: st,
	}
	if kind == ManyToOne {
		rel.ForeignNavigation = navigation
	} else {
		rel.PrincipalNavigation = navigation
	}
	b.model.relationships = append(b.model.relationships, rel)
	rb.rel = rel
	return rb
}

// RelationshipBuilder configures a relationship. Calls on a relationship
// that failed to be declared are ignored.
type RelationshipBuilder struct {
	builder *Builder
	rel     *EntityRelationship
}

// ForeignKey sets the dependent fields referencing the principal key
func (rb *RelationshipBuilder) ForeignKey(fields ...string) *RelationshipBuilder {
	if rb.rel == nil {
		return rb
	}
	if rb.builder.checkFields(rb.rel.Dependent(), "foreign key", fields) {
		rb.rel.ForeignKey = append([]string(nil), fields...)
	}
	return rb
}

// PrincipalKey sets the principal fields referenced by the foreign key.
// Defaults to the principal's primary key.
func (rb *RelationshipBuilder) PrincipalKey(fields ...string) *RelationshipBuilder {
	if rb.rel == nil {
		return rb
	}
	if rb.builder.checkFields(rb.rel.Principal(), "principal key", fields) {
		rb.rel.principalKey = append([]string(nil), fields...)
	}
	return rb
}

// Inverse names the navigation field on the target pointing back
func (rb *RelationshipBuilder) Inverse(navigation string) *RelationshipBuilder {
	if rb.rel == nil {
		return rb
	}
	if rb.builder.checkFields(rb.rel.Target, "navigation", []string{navigation}) {
		if rb.rel.Kind == ManyToOne {
			rb.rel.PrincipalNavigation = navigation
		} else {
			rb.rel.ForeignNavigation = navigation
		}
	}
	return rb
}

// OnDelete sets the delete behavior
func (rb *RelationshipBuilder) OnDelete(behavior DeleteBehavior) *RelationshipBuilder {
	if rb.rel != nil {
		rb.rel.OnDelete = behavior
	}
	return rb
}

// Property returns a builder for the named field
func (b *Builder) Property(name string) *PropertyBuilder {
	p, ok := b.model.properties[name]
	if !ok {
		b.fail(fmt.Errorf("%s property %s: %w", b.model.Name(), name, ErrUnknownField))
	}
	return &PropertyBuilder{builder: b, prop: p}
}

// PropertyBuilder attaches calculations, lookups and drill-downs to a property
type PropertyBuilder struct {
	builder *Builder
	prop    *EntityProperty
}

func (pb *PropertyBuilder) duplicate(what string) {
	pb.builder.fail(fmt.Errorf("%s.%s %s: %w", pb.builder.model.Name(), pb.prop.Name, what, ErrDuplicateDefinition))
}

// Calculate attaches a fixed calculation expression
func (pb *PropertyBuilder) Calculate(l *expr.Lambda) *PropertyBuilder {
	if l == nil {
		if pb.prop != nil {
			pb.builder.fail(fmt.Errorf("%s.%s: %w", pb.builder.model.Name(), pb.prop.Name, ErrInvalidCalculation))
		}
		return pb
	}
	return pb.calculate(func(FilterValues) (*expr.Lambda, error) { return l, nil }, false)
}

// CalculateWith attaches a calculation built from filter values
func (pb *PropertyBuilder) CalculateWith(fn CalculationFunc) *PropertyBuilder {
	return pb.calculate(fn, true)
}

func (pb *PropertyBuilder) calculate(fn CalculationFunc, parameterized bool) *PropertyBuilder {
	if pb.prop == nil {
		return pb
	}
	if pb.prop.calculation != nil {
		pb.duplicate("calculation")
		return pb
	}
	pb.prop.calculation = &Calculation{
		owner:         pb.builder.model.Type,
		property:      pb.prop.Name,
		build:         fn,
		parameterized: parameterized,
	}
	return pb
}

// Lookup attaches a lookup. valueSelector projects a target row to a value
// that must fit the property's type.
func (pb *PropertyBuilder) Lookup(target reflect.Type, filter LookupFilter, valueSelector *expr.Lambda, dependsOnEntity bool) *PropertyBuilder {
	if pb.prop == nil {
		return pb
	}
	if pb.prop.lookup != nil {
		pb.duplicate("lookup")
		return pb
	}
	st := structType(target)
	name := pb.builder.model.Name() + "." + pb.prop.Name
	if valueSelector == nil || valueSelector.Param == nil || structType(valueSelector.Param.Type) != st {
		pb.builder.fail(fmt.Errorf("%s lookup selector must take %v: %w", name, target, ErrLookupTypeMismatch))
		return pb
	}
	if vt := expr.StaticType(valueSelector.Body); vt != nil && !fits(vt, pb.prop.Type()) {
		pb.builder.fail(fmt.Errorf("%s lookup yields %v, property is %v: %w", name, vt, pb.prop.Type(), ErrLookupTypeMismatch))
		return pb
	}
	pb.prop.lookup = &Lookup{
		Target:          st,
		Filter:          filter,
		ValueSelector:   valueSelector,
		DependsOnEntity: dependsOnEntity,
	}
	return pb
}

// DrillDown attaches a drill-down into target rows
func (pb *PropertyBuilder) DrillDown(target reflect.Type, populate DrillDownFunc) *PropertyBuilder {
	if pb.prop == nil {
		return pb
	}
	if pb.prop.drillDown != nil {
		pb.duplicate("drill-down")
		return pb
	}
	pb.prop.drillDown = &DrillDown{Target: structType(target), Populate: populate}
	return pb
}

// fits reports whether a value of type v can be stored in a field of type f
func fits(v, f reflect.Type) bool {
	if v.AssignableTo(f) {
		return true
	}
	if f.Kind() == reflect.Ptr && v.AssignableTo(f.Elem()) {
		return true
	}
	return isNumeric(v.Kind()) && isNumeric(f.Kind()) ||
		v.Kind() == reflect.String && f.Kind() == reflect.String
}

func isNumeric(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Float64
}
