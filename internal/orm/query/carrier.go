package query

// Carrier pairs an entity with the computed values produced for it in the
// same row evaluation. Values are in the order the properties were requested.
type Carrier[T any] struct {
	Entity T
	Values []interface{}
}
