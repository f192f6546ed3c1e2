package muesli

import (
	"reflect"
	"slices"
	"strings"

	"github.com/samber/lo"
	"github.com/zoobzio/muesli/event"
	"github.com/zoobzio/muesli/msgpack"
)

// MemberPolicy adjusts a member after its attributes were applied. It may
// rename the member, change its mode or order, or exclude it by returning
// false. Returning an error fails the descriptor build.
type MemberPolicy func(owner *TypeDescriptor, m *MemberDescriptor) (bool, error)

// prepareMembers collects the serializable members of a struct descriptor in
// serialization order.
func (f *DescriptorFactory) prepareMembers(d *TypeDescriptor) ([]*MemberDescriptor, error) {
	_, contract := AttributeOf[DataContract](d.attrs)

	var members []*MemberDescriptor
	if err := f.collectFields(d, d.base, nil, contract, &members); err != nil {
		return nil, err
	}

	for _, vm := range f.attrs.Virtuals(d.base) {
		m, err := f.virtualMember(d, vm)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}

	kept := members[:0]
	for _, m := range members {
		if f.policy != nil {
			keep, err := f.policy(d, m)
			if err != nil {
				return nil, newConfigError(ErrConfiguration, d.typ, m.originalName, err.Error())
			}
			if !keep {
				continue
			}
		}
		if m.mode == ModeNever {
			continue
		}
		if m.mode == ModeBinary && !msgpack.Fixed(m.typ) {
			return nil, newConfigError(ErrConfiguration, d.typ, m.originalName,
				"binary mode requires a slice or array of fixed-size values, got "+m.typ.String())
		}
		kept = append(kept, m)
	}

	slices.SortStableFunc(kept, func(a, b *MemberDescriptor) int {
		switch {
		case a.hasOrder && b.hasOrder:
			return a.order - b.order
		case a.hasOrder:
			return -1
		case b.hasOrder:
			return 1
		}
		return 0
	})
	return kept, nil
}

// collectFields appends the members of the struct rt found at index,
// flattening untagged embedded structs.
func (f *DescriptorFactory) collectFields(d *TypeDescriptor, rt reflect.Type, index []int, contract bool, out *[]*MemberDescriptor) error {
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		path := append(slices.Clone(index), i)

		attrs, err := f.attrs.MemberAttributes(rt, sf.Name)
		if err != nil {
			return err
		}
		attr, annotated := mergedMemberAttr(attrs)
		if attr.Ignore {
			continue
		}

		embedded := sf.Anonymous && sf.Type.Kind() == reflect.Struct && attr.Name == ""
		if embedded {
			if err := f.collectFields(d, sf.Type, path, contract, out); err != nil {
				return err
			}
			continue
		}

		// reflect cannot set unexported fields, so an annotation on one is
		// reported instead of silently dropping the member.
		if !sf.IsExported() {
			if annotated {
				return newConfigError(ErrConfiguration, d.typ, sf.Name,
					"unexported field carries a yaml annotation; export it or drop the tag")
			}
			continue
		}
		if k := sf.Type.Kind(); k == reflect.Func || k == reflect.Chan {
			continue
		}
		if contract && !annotated {
			continue
		}

		m := &MemberDescriptor{
			originalName: sf.Name,
			typ:          sf.Type,
			index:        path,
			attrs:        attrs,
		}
		if err := f.prepareMember(d, m, attr, true); err != nil {
			return err
		}
		*out = append(*out, m)
	}
	return nil
}

func (f *DescriptorFactory) virtualMember(d *TypeDescriptor, vm VirtualMember) (*MemberDescriptor, error) {
	if vm.Name == "" || vm.Type == nil || vm.Get == nil {
		return nil, newConfigError(ErrConfiguration, d.typ, vm.Name, "virtual member needs a name, a type and a getter")
	}
	attr, _ := mergedMemberAttr(vm.Attributes)
	m := &MemberDescriptor{
		originalName: vm.Name,
		typ:          vm.Type,
		virtual:      &vm,
		attrs:        vm.Attributes,
	}
	if err := f.prepareMember(d, m, attr, vm.Set != nil); err != nil {
		return nil, err
	}
	return m, nil
}

// prepareMember applies attributes: name, aliases, mode, order, mask, style,
// default value and the should-serialize predicate.
func (f *DescriptorFactory) prepareMember(d *TypeDescriptor, m *MemberDescriptor, attr MemberAttr, settable bool) error {
	m.name = attr.Name
	if m.name == "" {
		m.name = f.naming.Convert(m.originalName)
	}
	m.aliases = lo.Uniq(attr.Aliases)
	m.order, m.hasOrder = attr.Order, attr.HasOrder
	m.omitEmpty = attr.OmitEmpty

	m.mask = attr.Mask
	if m.mask == 0 {
		m.mask = 1
	}

	m.style = attr.Style
	if s, ok := AttributeOf[StyleAttr](m.attrs); ok && m.style == event.StyleAny {
		m.style = s.Style
	}

	m.mode = attr.Mode
	if m.mode == ModeDefault {
		m.mode = defaultMode(m.typ, settable)
	}

	if dv, ok := AttributeOf[DefaultValue](m.attrs); ok {
		v, err := coerce(reflect.ValueOf(dv.Value), m.typ)
		if err != nil {
			return newConfigError(ErrConfiguration, d.typ, m.originalName, "default value: "+err.Error())
		}
		m.defaultValue, m.hasDefault = v, true
	} else if attr.HasDefault {
		v, err := f.parseDefault(attr.Default, m.typ)
		if err != nil {
			return newConfigError(ErrConfiguration, d.typ, m.originalName, "default value: "+err.Error())
		}
		m.defaultValue, m.hasDefault = v, true
	}

	predicate := "ShouldSerialize" + m.originalName
	boolType := reflect.TypeFor[bool]()
	if method, ok := d.base.MethodByName(predicate); ok && method.Type.NumIn() == 1 && returns(method, boolType) {
		m.predicate = predicate
	} else if method, ok := reflect.PointerTo(d.base).MethodByName(predicate); ok && method.Type.NumIn() == 1 && returns(method, boolType) {
		m.predicate, m.predPtr = predicate, true
	}
	return nil
}

// parseDefault reads the text of a default annotation as a value of t.
func (f *DescriptorFactory) parseDefault(text string, t reflect.Type) (reflect.Value, error) {
	target := t
	if t.Kind() == reflect.Pointer {
		target = t.Elem()
	}
	enum, _ := AttributeOf[*EnumAttr](f.attrs.Attributes(target))
	if !isPrimitive(target, enum) {
		return reflect.Value{}, newConfigError(ErrConfiguration, t, "", "text defaults need a primitive type")
	}
	v, _, err := parseScalar(strings.TrimSpace(text), target, enum)
	if err != nil {
		return reflect.Value{}, err
	}
	if target != t {
		ptr := reflect.New(target)
		ptr.Elem().Set(v)
		return ptr, nil
	}
	return v, nil
}

// mergedMemberAttr folds every MemberAttr in attrs, in order. annotated is
// set when at least one was found.
func mergedMemberAttr(attrs []Attribute) (MemberAttr, bool) {
	var (
		merged    MemberAttr
		annotated bool
	)
	for _, a := range attrs {
		if ma, ok := a.(MemberAttr); ok {
			merged = merged.merge(ma)
			annotated = true
		}
	}
	return merged, annotated
}

// defaultMode resolves ModeDefault: settable members are assigned; read-only
// members of reference-like kinds are read in place; anything else is skipped.
func defaultMode(t reflect.Type, settable bool) MemberMode {
	if settable {
		return ModeAssign
	}
	switch t.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Struct:
		return ModeContent
	}
	return ModeNever
}
