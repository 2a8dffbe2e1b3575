package expr

import "errors"

var (
	// ErrUnboundParameter is returned when a parameter has no value in the environment
	ErrUnboundParameter = errors.New("unbound parameter")

	// ErrUnknownField is returned when a member access names a field the operand does not have
	ErrUnknownField = errors.New("unknown field")

	// ErrNilOperand is returned when a member access dereferences nil
	ErrNilOperand = errors.New("nil operand")

	// ErrInvalidConversion is returned when a value cannot be converted or assigned
	ErrInvalidConversion = errors.New("invalid conversion")

	// ErrNotBoolean is returned when a condition does not evaluate to a bool
	ErrNotBoolean = errors.New("condition is not boolean")

	// ErrIncomparable is returned when two values cannot be ordered
	ErrIncomparable = errors.New("values are not comparable")

	// ErrNoResolver is returned when an aggregate is evaluated without a row resolver
	ErrNoResolver = errors.New("no row resolver for aggregate")

	// ErrUnsupported is returned for nodes or operators the evaluator cannot handle
	ErrUnsupported = errors.New("unsupported expression")
)
