package session

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/conduit-lang/entitycore/internal/orm/metadata"
)

// encodeKey renders primary key values as a document key. Single-field keys
// use their plain text form; composite keys are encoded as a JSON array.
func encodeKey(values []interface{}) (string, error) {
	if len(values) == 1 {
		if s := fmt.Sprint(values[0]); s != "" {
			return s, nil
		}
		return "", fmt.Errorf("empty key value: %w", ErrInvalidKey)
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encode key: %w", err)
	}
	return string(data), nil
}

// encodeEntity writes the persisted value fields of entity as a JSON object
// keyed by field name
func encodeEntity(model *metadata.EntityModel, entity interface{}) ([]byte, error) {
	v := reflect.Indirect(reflect.ValueOf(entity))
	doc := make(map[string]interface{})
	for _, name := range model.PersistedFields() {
		prop, _ := model.Property(name)
		doc[name] = v.FieldByIndex(prop.Field.Index).Interface()
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", model.Name(), err)
	}
	return data, nil
}

// decodeEntity creates a new entity from a document body. Fields missing
// from the body keep their zero value.
func decodeEntity(model *metadata.EntityModel, body []byte) (interface{}, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", model.Name(), err)
	}

	ptr := reflect.New(model.Type)
	v := ptr.Elem()
	for _, name := range model.PersistedFields() {
		raw, ok := doc[name]
		if !ok {
			continue
		}
		prop, _ := model.Property(name)
		field := v.FieldByIndex(prop.Field.Index)
		if err := json.Unmarshal(raw, field.Addr().Interface()); err != nil {
			return nil, fmt.Errorf("decode %s.%s: %w", model.Name(), name, err)
		}
	}
	return ptr.Interface(), nil
}
