package muesli

import (
	"reflect"

	"github.com/cockroachdb/errors"
	"github.com/zoobzio/muesli/event"
)

// primitiveSerializer reads and writes scalars: primitives and nullable
// pointers to them.
type primitiveSerializer struct{}

func (primitiveSerializer) ReadYaml(oc *ObjectContext) (reflect.Value, error) {
	ev, err := oc.reader.Expect(event.Scalar)
	if err != nil {
		got, _ := oc.reader.Current()
		return reflect.Value{}, structuralError("scalar", got)
	}

	d := oc.Descriptor
	t := d.typ
	if d.category == CategoryNullable {
		t = d.underlying
	}

	v, remapped, err := parseScalar(ev.Value, t, d.enum)
	if err != nil {
		return reflect.Value{}, err
	}
	if remapped {
		oc.MarkRemapped()
	}

	if d.category == CategoryNullable {
		ptr := reflect.New(t)
		ptr.Elem().Set(v)
		return ptr, nil
	}
	return v, nil
}

func (primitiveSerializer) WriteYaml(oc *ObjectContext) error {
	d := oc.Descriptor
	v := oc.Instance
	if d.category == CategoryNullable {
		v = v.Elem()
	}

	text, quote, err := formatScalar(v, d.enum)
	if err != nil {
		return err
	}

	tag := oc.Tag
	if v.Kind() == reflect.Slice && tag == "" {
		tag = TagBinary
	}

	style := event.ScalarAny
	if quote || (oc.settings.EmitJSONCompatible && jsonString(v, d)) {
		style = event.ScalarDoubleQuoted
	}
	return oc.writer.Emit(event.NewScalar(text, tag, oc.Anchor, style))
}

// jsonString reports whether v is rendered as a JSON string rather than a
// number or boolean.
func jsonString(v reflect.Value, d *TypeDescriptor) bool {
	if d.enum != nil {
		_, named := d.enum.Name(integerOf(v))
		return named
	}
	switch v.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return v.Type() == typeDuration || d.textual
	}
	return true
}

// keyStyle is the scalar style of a member name.
func keyStyle(oc *ObjectContext, name string) event.ScalarStyle {
	if oc.settings.EmitJSONCompatible || needsQuotes(name) {
		return event.ScalarDoubleQuoted
	}
	return event.ScalarAny
}

// instantiate returns the value to read into: the existing instance when it
// has the described type, otherwise a new one. The result is addressable
// (or a pointer) so it can be filled in place.
func instantiate(oc *ObjectContext) (reflect.Value, error) {
	d := oc.Descriptor
	if d.base.Kind() == reflect.Interface {
		return reflect.Value{}, errors.Wrapf(ErrUnresolvedType, "cannot instantiate interface %s", d.base)
	}

	cur := oc.Instance
	if cur.IsValid() && cur.Kind() == reflect.Interface {
		cur = cur.Elem()
	}
	if cur.IsValid() && cur.Type() == d.typ && !(isNilable(cur.Kind()) && cur.IsNil()) {
		if !cur.CanAddr() && !d.indirect {
			cp := reflect.New(d.typ).Elem()
			cp.Set(cur)
			cur = cp
		}
		return cur, nil
	}
	return d.New(), nil
}

// base returns the addressable value behind inst.
func base(d *TypeDescriptor, inst reflect.Value) reflect.Value {
	if d.indirect {
		return inst.Elem()
	}
	return inst
}
