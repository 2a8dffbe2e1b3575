package metadata

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/conduit-lang/entitycore/internal/orm/expr"
)

// Struct tag options recognised under the "orm" key:
//
//	key        part of the primary key, in field order
//	partition  the partition field
//	index      single-field index
//	unique     single-field unique index
//	autocalc   computed by the <Field>Calculation method
//	-          not persisted
const tagName = "orm"

const calculationSuffix = "Calculation"

var (
	lambdaType       = reflect.TypeFor[*expr.Lambda]()
	filterValuesType = reflect.TypeFor[FilterValues]()
)

func tagOptions(f reflect.StructField) map[string]bool {
	tag, ok := f.Tag.Lookup(tagName)
	if !ok {
		return nil
	}
	opts := make(map[string]bool)
	for _, opt := range strings.Split(tag, ",") {
		if opt = strings.TrimSpace(opt); opt != "" {
			opts[opt] = true
		}
	}
	return opts
}

// discover applies the struct tag conventions
func (b *Builder) discover() {
	t := b.model.Type
	var keys []string

	for _, name := range b.model.order {
		prop := b.model.properties[name]
		opts := tagOptions(prop.Field)
		if opts == nil {
			continue
		}
		if opts["-"] {
			b.model.transient[name] = true
		}
		if opts["key"] {
			keys = append(keys, name)
		}
		if opts["partition"] {
			b.SetPartition(name)
		}
		if opts["unique"] {
			b.AddUniqueIndex(name)
		} else if opts["index"] {
			b.AddIndex(name)
		}
		if opts["autocalc"] {
			b.discoverCalculation(t, prop)
		}
	}

	if len(keys) > 0 {
		b.SetPrimaryKey(keys...)
	}
}

// discoverCalculation binds an autocalc field to its companion method. The
// method is either func() *expr.Lambda or func(FilterValues) *expr.Lambda and
// may have a value or pointer receiver.
func (b *Builder) discoverCalculation(t reflect.Type, prop *EntityProperty) {
	methodName := prop.Name + calculationSuffix
	ptr := reflect.PointerTo(t)

	method, ok := ptr.MethodByName(methodName)
	if !ok {
		b.fail(fmt.Errorf("%s.%s is autocalc but %s has no %s method: %w",
			t.Name(), prop.Name, t.Name(), methodName, ErrInvalidCalculation))
		return
	}

	mt := method.Type
	parameterized := mt.NumIn() == 2 && mt.In(1) == filterValuesType
	if mt.NumOut() != 1 || mt.Out(0) != lambdaType || (mt.NumIn() != 1 && !parameterized) {
		b.fail(fmt.Errorf("%s.%s must be func() *expr.Lambda or func(metadata.FilterValues) *expr.Lambda, got %v: %w",
			t.Name(), methodName, mt, ErrInvalidCalculation))
		return
	}

	build := func(values FilterValues) (*expr.Lambda, error) {
		recv := reflect.New(t)
		args := []reflect.Value{recv}
		if parameterized {
			args = append(args, reflect.ValueOf(values))
		}
		out := method.Func.Call(args)
		l, _ := out[0].Interface().(*expr.Lambda)
		return l, nil
	}

	if parameterized {
		b.Property(prop.Name).CalculateWith(build)
	} else {
		b.Property(prop.Name).calculate(build, false)
	}
}
