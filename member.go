package muesli

import (
	"reflect"

	"github.com/cockroachdb/errors"
	"github.com/zoobzio/muesli/event"
)

// MemberDescriptor describes one member of an object type: a struct field
// (possibly promoted from an embedded struct) or a registered virtual member.
// It is immutable once its owner's descriptor is initialized.
type MemberDescriptor struct {
	name         string
	originalName string
	aliases      []string
	typ          reflect.Type
	mode         MemberMode
	order        int
	hasOrder     bool
	mask         uint
	style        event.Style
	omitEmpty    bool
	attrs        []Attribute

	defaultValue reflect.Value
	hasDefault   bool

	index   []int          // field path; nil for virtual members
	virtual *VirtualMember // accessor-backed member

	predicate string // ShouldSerialize<Name> method, when present
	predPtr   bool   // predicate has a pointer receiver
}

// Name returns the serialized name.
func (m *MemberDescriptor) Name() string { return m.name }

// OriginalName returns the Go name of the member.
func (m *MemberDescriptor) OriginalName() string { return m.originalName }

// AlternativeNames returns the aliases accepted on read.
func (m *MemberDescriptor) AlternativeNames() []string { return m.aliases }

// DeclaredType returns the static type of the member.
func (m *MemberDescriptor) DeclaredType() reflect.Type { return m.typ }

// Mode returns the resolved serialization mode.
func (m *MemberDescriptor) Mode() MemberMode { return m.mode }

// Order returns the explicit order and whether one was declared.
func (m *MemberDescriptor) Order() (int, bool) { return m.order, m.hasOrder }

// Mask returns the member mask bits.
func (m *MemberDescriptor) Mask() uint { return m.mask }

// Style returns the presentation hint of the member's value.
func (m *MemberDescriptor) Style() event.Style { return m.style }

// Attributes returns the attributes the member was built from.
func (m *MemberDescriptor) Attributes() []Attribute { return m.attrs }

// DefaultValue returns the declared default value.
func (m *MemberDescriptor) DefaultValue() (reflect.Value, bool) {
	return m.defaultValue, m.hasDefault
}

// SetName overrides the serialized name. Only valid inside a MemberPolicy.
func (m *MemberDescriptor) SetName(name string) { m.name = name }

// SetMode overrides the mode. Only valid inside a MemberPolicy.
func (m *MemberDescriptor) SetMode(mode MemberMode) { m.mode = mode }

// SetOrder sets an explicit order. Only valid inside a MemberPolicy.
func (m *MemberDescriptor) SetOrder(order int) { m.order, m.hasOrder = order, true }

// CanSet reports whether the member can be assigned.
func (m *MemberDescriptor) CanSet() bool {
	if m.virtual != nil {
		return m.virtual.Set != nil
	}
	return true
}

// Get returns the member value of parent, a struct value.
func (m *MemberDescriptor) Get(parent reflect.Value) reflect.Value {
	if m.virtual != nil {
		return m.virtual.Get(parent)
	}
	return parent.FieldByIndex(m.index)
}

// Set assigns v to the member of parent, an addressable struct value.
func (m *MemberDescriptor) Set(parent, v reflect.Value) error {
	if m.virtual != nil {
		if m.virtual.Set == nil {
			return errors.Wrapf(ErrReadOnlyTarget, "member %s has no setter", m.name)
		}
		m.virtual.Set(parent, v)
		return nil
	}
	field := parent.FieldByIndex(m.index)
	if !field.CanSet() {
		return errors.Wrapf(ErrReadOnlyTarget, "member %s is not addressable", m.name)
	}
	if !v.IsValid() {
		field.SetZero()
		return nil
	}
	field.Set(v)
	return nil
}

// ShouldSerialize reports whether the member of parent is written. A
// ShouldSerialize<Name>() method on the parent always has the last word
// against serialization; otherwise, unless emitDefaults is set, values equal
// to the default (the parent's MemberDefaults override first, then the
// declared default) are skipped, as are empty omitempty members and nil
// references. nil is the implicit default of a reference member, so it is
// written as null only when emitDefaults is set.
func (m *MemberDescriptor) ShouldSerialize(parent reflect.Value, emitDefaults bool) bool {
	if m.predicate != "" {
		recv := parent
		if m.predPtr {
			if !parent.CanAddr() {
				cp := reflect.New(parent.Type()).Elem()
				cp.Set(parent)
				recv = cp
			}
			recv = recv.Addr()
		}
		if !recv.MethodByName(m.predicate).Call(nil)[0].Bool() {
			return false
		}
	}
	if emitDefaults {
		return true
	}

	value := m.Get(parent)
	if def, ok := parentDefault(parent, m.originalName); ok {
		return !valuesEqual(value, def)
	}
	if m.hasDefault {
		return !valuesEqual(value, m.defaultValue)
	}
	if m.omitEmpty && value.IsZero() {
		return false
	}
	if isNilable(value.Kind()) && value.IsNil() {
		return false
	}
	return true
}

// parentDefault asks a MemberDefaults parent for its override default.
func parentDefault(parent reflect.Value, member string) (reflect.Value, bool) {
	md, ok := asInterface[MemberDefaults](parent)
	if !ok {
		return reflect.Value{}, false
	}
	v, ok := md.YAMLDefault(member)
	if !ok {
		return reflect.Value{}, false
	}
	return reflect.ValueOf(v), true
}

func valuesEqual(a, b reflect.Value) bool {
	if !a.IsValid() || !b.IsValid() {
		return a.IsValid() == b.IsValid()
	}
	if a.Kind() == reflect.Interface && !a.IsNil() {
		a = a.Elem()
	}
	if b.Type() != a.Type() && b.Type().ConvertibleTo(a.Type()) && isScalarKind(a.Type()) {
		b = b.Convert(a.Type())
	}
	return reflect.DeepEqual(a.Interface(), b.Interface())
}

func isNilable(k reflect.Kind) bool {
	switch k {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return true
	}
	return false
}

// asInterface returns v (or its address) as an I when either implements it.
func asInterface[I any](v reflect.Value) (I, bool) {
	var zero I
	if !v.IsValid() {
		return zero, false
	}
	if v.CanInterface() {
		if i, ok := v.Interface().(I); ok {
			return i, true
		}
	}
	if v.Kind() != reflect.Pointer && v.CanAddr() && v.Addr().CanInterface() {
		if i, ok := v.Addr().Interface().(I); ok {
			return i, true
		}
	}
	return zero, false
}
