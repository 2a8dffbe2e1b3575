package metadata

import (
	"fmt"
	"reflect"

	"github.com/conduit-lang/entitycore/internal/orm/expr"
)

// RelationshipKind represents the cardinality of a relationship, seen from
// the model that declares it
type RelationshipKind int

const (
	OneToOne RelationshipKind = iota
	OneToMany
	ManyToOne
)

// String returns the string representation of RelationshipKind
func (k RelationshipKind) String() string {
	switch k {
	case OneToOne:
		return "one_to_one"
	case OneToMany:
		return "one_to_many"
	case ManyToOne:
		return "many_to_one"
	default:
		return "unknown"
	}
}

// DeleteBehavior represents what happens to dependents when the principal is deleted
type DeleteBehavior int

const (
	DeleteRestrict DeleteBehavior = iota
	DeleteCascade
	DeleteSetNull
	DeleteNoAction
)

// String returns the string representation of DeleteBehavior
func (d DeleteBehavior) String() string {
	switch d {
	case DeleteRestrict:
		return "restrict"
	case DeleteCascade:
		return "cascade"
	case DeleteSetNull:
		return "set_null"
	case DeleteNoAction:
		return "no_action"
	default:
		return "unknown"
	}
}

// EntityRelationship describes a navigable association between two entity types
type EntityRelationship struct {
	Name     string
	Kind     RelationshipKind
	Owner    reflect.Type
	Target   reflect.Type
	OnDelete DeleteBehavior

	// PrincipalNavigation is the field on the principal pointing at the dependent(s)
	PrincipalNavigation string
	// ForeignNavigation is the field on the dependent pointing at the principal
	ForeignNavigation string
	// ForeignKey lists the dependent's fields referencing the principal key
	ForeignKey []string

	principalKey []string
	registry     *Registry
}

// Principal returns the type on the "one" side
func (r *EntityRelationship) Principal() reflect.Type {
	if r.Kind == ManyToOne {
		return r.Target
	}
	return r.Owner
}

// Dependent returns the type carrying the foreign key
func (r *EntityRelationship) Dependent() reflect.Type {
	if r.Kind == ManyToOne {
		return r.Owner
	}
	return r.Target
}

// PrincipalKey returns the explicit principal key or, when none was
// configured, the primary key of the principal's model.
func (r *EntityRelationship) PrincipalKey() ([]string, error) {
	if len(r.principalKey) > 0 {
		return append([]string(nil), r.principalKey...), nil
	}
	if r.registry == nil {
		return nil, fmt.Errorf("relationship %s: %w", r.Name, ErrNoPrimaryKey)
	}
	model, err := r.registry.Model(r.Principal())
	if err != nil {
		return nil, fmt.Errorf("relationship %s: %w", r.Name, err)
	}
	if !model.HasPrimaryKey() {
		return nil, fmt.Errorf("relationship %s: principal %s: %w", r.Name, model.Name(), ErrNoPrimaryKey)
	}
	return model.PrimaryKey(), nil
}

// Correlate builds a predicate over Target that matches the rows related to
// owner. owner is any expression yielding a value of the Owner type, usually
// a lambda parameter of an enclosing calculation.
func (r *EntityRelationship) Correlate(owner expr.Node) (*expr.Lambda, error) {
	principalKey, err := r.PrincipalKey()
	if err != nil {
		return nil, err
	}
	foreignKey := r.ForeignKey
	if len(foreignKey) == 0 {
		foreignKey = principalKey
	}
	if len(foreignKey) != len(principalKey) {
		return nil, fmt.Errorf("relationship %s: %d foreign key fields for %d principal key fields: %w",
			r.Name, len(foreignKey), len(principalKey), ErrKeyMismatch)
	}

	target := expr.Param("t", r.Target)
	conds := make([]expr.Node, len(principalKey))
	for i := range principalKey {
		if r.Kind == ManyToOne {
			conds[i] = expr.Eq(expr.Field(target, principalKey[i]), expr.Field(owner, foreignKey[i]))
		} else {
			conds[i] = expr.Eq(expr.Field(target, foreignKey[i]), expr.Field(owner, principalKey[i]))
		}
	}
	return expr.NewLambda(target, expr.And(conds...)), nil
}

// MatchPredicate returns a predicate over Target selecting the entities
// related to the given owner instance.
func (r *EntityRelationship) MatchPredicate(owner interface{}) (*expr.Lambda, error) {
	if owner == nil {
		return nil, fmt.Errorf("relationship %s: %w", r.Name, expr.ErrNilOperand)
	}
	if t := structType(reflect.TypeOf(owner)); t != r.Owner {
		return nil, fmt.Errorf("relationship %s: owner is %v, expected %v: %w", r.Name, t, r.Owner, ErrNotEntityType)
	}

	lambda, err := r.Correlate(expr.Const(owner))
	if err != nil {
		return nil, err
	}

	// Fold the owner's key values so the predicate carries plain constants.
	body := expr.Transform(lambda.Body, func(n expr.Node) expr.Node {
		m, ok := n.(*expr.Member)
		if !ok || expr.References(m, lambda.Param) {
			return n
		}
		v, err := expr.Eval(m, nil)
		if err != nil {
			return n
		}
		return expr.Const(v)
	})
	return expr.NewLambda(lambda.Param, body), nil
}

func (r *EntityRelationship) String() string {
	return fmt.Sprintf("%s %s %s -> %s", r.Name, r.Kind, typeName(r.Owner), typeName(r.Target))
}
