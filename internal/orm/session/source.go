package session

import (
	"context"
	"iter"
	"reflect"
)

// source reads entities of one type from the session's store. Rows whose
// key belongs to a tracked entity yield that instance. Rows of another
// partition are skipped, so aggregates inside calculations only see the
// session's partition too.
type source struct {
	session *Session
}

// Rows implements query.Source
func (src *source) Rows(ctx context.Context, t reflect.Type) iter.Seq2[interface{}, error] {
	return func(yield func(interface{}, error) bool) {
		s := src.session
		model, err := s.registry.Model(t)
		if err != nil {
			yield(nil, err)
			return
		}

		docs, err := s.store.Scan(ctx, model.Name())
		if err != nil {
			yield(nil, err)
			return
		}

		for _, doc := range docs {
			entity, ok := s.lookupIdentity(model.Name(), doc.Key)
			if !ok {
				if entity, err = decodeEntity(model, doc.Body); err != nil {
					yield(nil, err)
					return
				}
			}

			mine, err := s.inPartition(model, entity)
			if err != nil {
				yield(nil, err)
				return
			}
			if !mine {
				continue
			}
			if !yield(entity, nil) {
				return
			}
		}
	}
}
