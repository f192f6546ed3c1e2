package muesli

import (
	"context"
	"reflect"

	"github.com/cockroachdb/errors"
	"github.com/zoobzio/muesli/event"
)

// Cloner allows types to provide deep copy logic.
//
// The Clone method must return a deep copy where modifications to the clone
// do not affect the original value. For types containing pointers, slices, or maps,
// ensure these are also copied to achieve true isolation.
//
// For simple value types with no pointers, slices, or maps, Clone can simply return
// the receiver value:
//
//	func (u User) Clone() User { return u }
type Cloner[T any] interface {
	Clone() T
}

// Clone returns a deep copy of v. Types implementing Cloner copy themselves;
// anything else is written and read back through s, so only serialized
// members survive. Shared references stay shared when s emits aliases.
func Clone[T any](ctx context.Context, s *Serializer, v T) (T, error) {
	if c, ok := any(v).(Cloner[T]); ok {
		return c.Clone(), nil
	}

	prescan[T]()
	var zero T
	t := reflect.TypeFor[T]()
	sc := s.newContext(ctx)
	buf := &event.Buffer{}
	sc.writer = buf
	if err := sc.WriteValue(reflect.ValueOf(v), t, event.StyleAny); err != nil {
		return zero, errors.Wrapf(err, "clone %s", t)
	}

	rc := s.newContext(ctx)
	rc.reader = buf.Reader()
	out, err := rc.Read(&ObjectContext{Expected: t})
	if err != nil {
		return zero, errors.Wrapf(err, "clone %s", t)
	}
	if !out.IsValid() {
		return zero, nil
	}
	if out, err = coerce(out, t); err != nil {
		return zero, err
	}
	res, _ := out.Interface().(T)
	return res, nil
}
