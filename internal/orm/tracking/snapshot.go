package tracking

import (
	"reflect"
)

var notifierType = reflect.TypeFor[Notifier]()

// cloneEntity returns a shallow field-for-field copy of the struct entity
// points to
func cloneEntity(entity interface{}) interface{} {
	v := reflect.ValueOf(entity)
	clone := reflect.New(v.Elem().Type())
	clone.Elem().Set(v.Elem())
	return clone.Interface()
}

// snapshotFields captures the exported fields of the struct entity points to.
// Slices and maps are copied so later in-place edits show up as changes.
func snapshotFields(entity interface{}) map[string]interface{} {
	v := reflect.ValueOf(entity).Elem()
	t := v.Type()

	fields := make(map[string]interface{}, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() || f.Type == notifierType {
			continue
		}
		fields[f.Name] = deepCopyValue(v.Field(i).Interface())
	}
	return fields
}

// deepCopyValue creates a deep copy of a value, keeping its type
func deepCopyValue(v interface{}) interface{} {
	if v == nil {
		return nil
	}

	val := reflect.ValueOf(v)
	switch val.Kind() {
	case reflect.Slice:
		if val.IsNil() {
			return v
		}
		slice := reflect.MakeSlice(val.Type(), val.Len(), val.Len())
		for i := 0; i < val.Len(); i++ {
			slice.Index(i).Set(copyInto(val.Index(i)))
		}
		return slice.Interface()
	case reflect.Map:
		if val.IsNil() {
			return v
		}
		m := reflect.MakeMapWithSize(val.Type(), val.Len())
		iter := val.MapRange()
		for iter.Next() {
			m.SetMapIndex(iter.Key(), copyInto(iter.Value()))
		}
		return m.Interface()
	default:
		// Scalars, structs and pointers are kept as-is
		return v
	}
}

func copyInto(v reflect.Value) reflect.Value {
	if !v.CanInterface() {
		return v
	}
	copied := deepCopyValue(v.Interface())
	if copied == nil {
		return reflect.Zero(v.Type())
	}
	return reflect.ValueOf(copied)
}

// deepEqual compares two values for equality, handling nil and different types
func deepEqual(a, b interface{}) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return reflect.DeepEqual(a, b)
}
