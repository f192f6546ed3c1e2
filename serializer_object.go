package muesli

import (
	"reflect"

	"github.com/cockroachdb/errors"
	"github.com/zoobzio/muesli/event"
	"go.uber.org/zap"
)

// objectSerializer reads and writes structs as mappings of their members.
type objectSerializer struct{}

// keyHandler reads the value of a mapping key that is not a member. It
// reports false when it does not handle the key.
type keyHandler func(key event.Event) (bool, error)

func (objectSerializer) ReadYaml(oc *ObjectContext) (reflect.Value, error) {
	d := oc.Descriptor
	if d.category == CategoryUnsupported {
		oc.logger.Debug("reading type flagged unsupported", zap.Stringer("type", d.typ))
	}

	inst, err := instantiate(oc)
	if err != nil {
		return reflect.Value{}, err
	}

	// A builder swaps in a staging value of another type, read in place of
	// the instance and finalized into it.
	if b, ok := asInterface[Builder](inst); ok {
		staging := reflect.ValueOf(b.YAMLBuilder())
		if staging.IsValid() && staging.Type() != d.typ {
			sd, err := oc.Describe(staging.Type())
			if err != nil {
				return reflect.Value{}, err
			}
			sub := *oc
			sub.Instance, sub.Descriptor, sub.Expected = staging, sd, staging.Type()
			v, err := oc.serializer.routing.Read(&sub, nil)
			if err != nil {
				return reflect.Value{}, err
			}
			return coerce(v, d.typ)
		}
	}

	oc.Instantiated(inst)
	if err := readMembers(oc, d, base(d, inst), nil); err != nil {
		return reflect.Value{}, err
	}
	return finalize(inst)
}

// finalize applies the Finalizer of inst, if any.
func finalize(inst reflect.Value) (reflect.Value, error) {
	f, ok := asInterface[Finalizer](inst)
	if !ok {
		return inst, nil
	}
	out, err := f.YAMLFinalize()
	if err != nil {
		return reflect.Value{}, errors.Wrapf(err, "finalize %s", inst.Type())
	}
	return reflect.ValueOf(out), nil
}

// readMembers reads a mapping into the members of target. Keys that are not
// members go to extra; keys nobody handles are unknown members.
func readMembers(oc *ObjectContext, d *TypeDescriptor, target reflect.Value, extra keyHandler) error {
	if _, err := oc.reader.Expect(event.MappingStart); err != nil {
		got, _ := oc.reader.Current()
		return structuralError("mapping", got)
	}
	depth := oc.reader.Depth()

	for !oc.reader.Accept(event.MappingEnd) {
		if oc.reader.Done() {
			return errors.Wrap(ErrStructural, "unexpected end of mapping")
		}
		if err := readMember(oc, d, target, depth, extra); err != nil {
			return err
		}
	}
	_, err := oc.reader.Expect(event.MappingEnd)
	return err
}

func readMember(oc *ObjectContext, d *TypeDescriptor, target reflect.Value, depth int, extra keyHandler) error {
	keyEv, _ := oc.reader.Current()
	keyPos := oc.reader.Pos()
	if _, err := oc.reader.Expect(event.Scalar); err != nil {
		if err := oc.recover(structuralError("member name", keyEv), keyEv, depth, keyPos, d.typ, ""); err != nil {
			return err
		}
		oc.reader.Skip(depth, true)
		return nil
	}

	valueEv, _ := oc.reader.Current()
	valuePos := oc.reader.Pos()

	m, remapped, ok := d.TryGetMember(keyEv.Value)
	if !ok {
		if extra != nil {
			handled, err := extra(keyEv)
			if err != nil {
				return oc.recover(err, valueEv, depth, valuePos, d.typ, keyEv.Value)
			}
			if handled {
				return nil
			}
		}
		err := errors.Wrapf(ErrUnknownMember, "%s has no member %q", d.typ, keyEv.Value)
		return oc.recover(err, keyEv, depth, valuePos, d.typ, keyEv.Value)
	}
	if remapped {
		oc.MarkRemapped()
	}

	if err := readMemberValue(oc, m, target); err != nil {
		return oc.recover(err, valueEv, depth, valuePos, d.typ, m.name)
	}
	return nil
}

// readMemberValue reads the node under the cursor into member m of target.
func readMemberValue(oc *ObjectContext, m *MemberDescriptor, target reflect.Value) error {
	if m.mode == ModeBinary {
		v, err := readBinary(oc, m.typ)
		if err != nil {
			return err
		}
		return m.Set(target, v)
	}

	sub := &ObjectContext{Expected: m.typ, Style: m.style, ParentMember: m, Parent: target}

	if m.mode == ModeContent {
		cur := m.Get(target)
		sub.Instance = cur
		if !m.CanSet() {
			// Read into the current value: its runtime type is what the
			// document describes.
			cur = existingOf(cur, nil)
			if !cur.IsValid() {
				return errors.Wrapf(ErrReadOnlyTarget, "member %s is nil and has no setter", m.name)
			}
			if cur.Kind() != reflect.Pointer && cur.Kind() != reflect.Map && !cur.CanAddr() {
				return errors.Wrapf(ErrReadOnlyTarget, "member %s is a value without a setter", m.name)
			}
			sub.Expected, sub.Instance = cur.Type(), cur
			v, err := oc.Read(sub)
			if err != nil {
				return err
			}
			if cur.CanAddr() && cur.Kind() != reflect.Pointer && cur.Kind() != reflect.Map && v.IsValid() && v.Type() == cur.Type() {
				cur.Set(v)
			}
			return nil
		}
	}

	v, err := oc.Read(sub)
	if err != nil {
		return err
	}
	v, err = coerce(v, m.typ)
	if err != nil {
		return err
	}
	return m.Set(target, v)
}

func (objectSerializer) WriteYaml(oc *ObjectContext) error {
	d := oc.Descriptor
	if d.category == CategoryUnsupported {
		oc.logger.Debug("writing type flagged unsupported", zap.Stringer("type", d.typ))
	}
	if d.base.Kind() == reflect.Interface {
		return errors.Wrapf(ErrUnresolvedType, "no concrete type behind %s", d.typ)
	}

	if err := oc.writer.Emit(event.NewMappingStart(oc.Tag, oc.Anchor, containerStyle(oc, d))); err != nil {
		return err
	}
	if err := writeMembers(oc, d, base(d, oc.Instance)); err != nil {
		return err
	}
	return oc.writer.Emit(event.Event{Kind: event.MappingEnd})
}

// writeMembers writes the name and value of every member of target selected
// by the member mask and its should-serialize policy.
func writeMembers(oc *ObjectContext, d *TypeDescriptor, target reflect.Value) error {
	for _, m := range d.Members() {
		if m.mask&oc.settings.MemberMask == 0 {
			continue
		}
		if !m.ShouldSerialize(target, oc.settings.EmitDefaultValues) {
			continue
		}
		if err := writeKey(oc, m.name); err != nil {
			return err
		}

		value := m.Get(target)
		if m.mode == ModeBinary {
			if err := writeBinary(oc, value); err != nil {
				return errors.Wrapf(err, "member %s", m.name)
			}
			continue
		}
		if err := oc.WriteValue(value, m.typ, m.style); err != nil {
			return err
		}
	}
	return nil
}

func writeKey(oc *ObjectContext, name string) error {
	return oc.writer.Emit(event.NewScalar(name, "", "", keyStyle(oc, name)))
}

// containerStyle picks the style of a mapping or sequence: the slot's hint
// first, then the type's.
func containerStyle(oc *ObjectContext, d *TypeDescriptor) event.Style {
	if oc.Style != event.StyleAny {
		return oc.Style
	}
	return d.style
}
