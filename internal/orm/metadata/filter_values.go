package metadata

import "sort"

// FilterValues is a read-only string-keyed dictionary handed to parameterized
// calculations. The zero value is an empty dictionary.
type FilterValues struct {
	values map[string]interface{}
}

// NewFilterValues copies m into a FilterValues
func NewFilterValues(m map[string]interface{}) FilterValues {
	values := make(map[string]interface{}, len(m))
	for k, v := range m {
		values[k] = v
	}
	return FilterValues{values: values}
}

// Get returns the value stored under key
func (f FilterValues) Get(key string) (interface{}, bool) {
	v, ok := f.values[key]
	return v, ok
}

// Lookup returns the value stored under key or fallback
func (f FilterValues) Lookup(key string, fallback interface{}) interface{} {
	if v, ok := f.values[key]; ok {
		return v
	}
	return fallback
}

// Keys returns the keys in sorted order
func (f FilterValues) Keys() []string {
	keys := make([]string, 0, len(f.values))
	for k := range f.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of entries
func (f FilterValues) Len() int {
	return len(f.values)
}
