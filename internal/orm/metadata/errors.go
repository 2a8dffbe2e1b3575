package metadata

import "errors"

// Configuration errors. All of them are raised when a model is built and are
// never recoverable; a failed build leaves no model behind.
var (
	// ErrNotEntityType is returned for types that are not structs or pointers to structs
	ErrNotEntityType = errors.New("not an entity type")

	// ErrDuplicateRegistration is returned when a type is registered twice
	ErrDuplicateRegistration = errors.New("entity model already registered")

	// ErrPrimaryKeyAlreadySet is returned when a primary key is set twice
	ErrPrimaryKeyAlreadySet = errors.New("primary key already set")

	// ErrEmptyPrimaryKey is returned when a primary key has no fields
	ErrEmptyPrimaryKey = errors.New("primary key must have at least one field")

	// ErrUnknownField is returned when a builder call names a field the type does not have
	ErrUnknownField = errors.New("unknown field")

	// ErrDuplicateRelationship is returned when a relationship name is reused within a model
	ErrDuplicateRelationship = errors.New("relationship already defined")

	// ErrDuplicateDefinition is returned when a calculation, lookup or drill-down is attached twice
	ErrDuplicateDefinition = errors.New("definition already attached")

	// ErrInvalidCalculation is returned for calculation definitions of the wrong shape
	ErrInvalidCalculation = errors.New("invalid calculation")

	// ErrLookupTypeMismatch is returned when a lookup value selector does not fit the property
	ErrLookupTypeMismatch = errors.New("lookup value type mismatch")

	// ErrPartitionAlreadySet is returned when a partition field is declared twice
	ErrPartitionAlreadySet = errors.New("partition field already set")

	// ErrNoPrimaryKey is returned when key values are requested from a model without a key
	ErrNoPrimaryKey = errors.New("entity model has no primary key")

	// ErrKeyMismatch is returned when foreign and principal key lists differ in length
	ErrKeyMismatch = errors.New("foreign key does not match principal key")
)

var configurationErrors = []error{
	ErrNotEntityType,
	ErrDuplicateRegistration,
	ErrPrimaryKeyAlreadySet,
	ErrEmptyPrimaryKey,
	ErrUnknownField,
	ErrDuplicateRelationship,
	ErrDuplicateDefinition,
	ErrInvalidCalculation,
	ErrLookupTypeMismatch,
	ErrPartitionAlreadySet,
	ErrKeyMismatch,
}

// IsConfigurationError returns true if err stems from a model definition mistake
func IsConfigurationError(err error) bool {
	for _, target := range configurationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
