package muesli

import (
	"reflect"
	"slices"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/zoobzio/muesli/event"
)

// collectionSerializer reads and writes lists, collections and sets. Pure
// collections are sequences; collections with members of their own are
// mappings holding the members and the items under SpecialCollectionMember.
type collectionSerializer struct{}

func (collectionSerializer) ReadYaml(oc *ObjectContext) (reflect.Value, error) {
	d := oc.Descriptor
	inst, err := instantiate(oc)
	if err != nil {
		return reflect.Value{}, err
	}
	if d.ops.add == nil {
		return reflect.Value{}, errors.Wrapf(ErrNoAddMethod, "%s", d.typ)
	}
	if d.IsReadOnly(inst) {
		return reflect.Value{}, errors.Wrapf(ErrReadOnlyTarget, "%s", d.typ)
	}
	if d.ops.clear != nil && d.Count(inst) > 0 {
		if err := d.Clear(inst); err != nil {
			return reflect.Value{}, err
		}
	}
	oc.Instantiated(inst)

	if d.IsPureCollection() {
		if err := readItems(oc, d, inst); err != nil {
			return reflect.Value{}, err
		}
		return inst, nil
	}

	special := oc.settings.SpecialCollectionMember
	err = readMembers(oc, d, base(d, inst), func(key event.Event) (bool, error) {
		if key.Value != special {
			return false, nil
		}
		return true, readItems(oc, d, inst)
	})
	if err != nil {
		return reflect.Value{}, err
	}
	return finalize(inst)
}

// readItems reads a sequence, adding every item to inst.
func readItems(oc *ObjectContext, d *TypeDescriptor, inst reflect.Value) error {
	if _, err := oc.reader.Expect(event.SequenceStart); err != nil {
		got, _ := oc.reader.Current()
		return structuralError("sequence", got)
	}
	depth := oc.reader.Depth()

	for i := 0; !oc.reader.Accept(event.SequenceEnd); i++ {
		if oc.reader.Done() {
			return errors.Wrap(ErrStructural, "unexpected end of sequence")
		}
		ev, _ := oc.reader.Current()
		pos := oc.reader.Pos()

		item, err := oc.ReadValue(d.elem, reflect.Value{})
		if err == nil {
			err = d.Add(inst, item)
		}
		if err != nil {
			if err := oc.recover(err, ev, depth, pos, d.typ, "["+strconv.Itoa(i)+"]"); err != nil {
				return err
			}
		}
	}
	_, err := oc.reader.Expect(event.SequenceEnd)
	return err
}

func (collectionSerializer) WriteYaml(oc *ObjectContext) error {
	d := oc.Descriptor
	items, err := d.Items(oc.Instance)
	if err != nil {
		return err
	}
	if d.category == CategorySet && oc.settings.SortKeyForMapping {
		sortValues(items, oc.settings.ComparerForKeySorting)
	}

	if d.IsPureCollection() {
		return writeItems(oc, d, items, oc.Tag, oc.Anchor, sequenceStyle(oc, d, len(items)))
	}

	if err := oc.writer.Emit(event.NewMappingStart(oc.Tag, oc.Anchor, containerStyle(oc, d))); err != nil {
		return err
	}
	if err := writeMembers(oc, d, base(d, oc.Instance)); err != nil {
		return err
	}
	if err := writeKey(oc, oc.settings.SpecialCollectionMember); err != nil {
		return err
	}
	if err := writeItems(oc, d, items, "", "", sequenceStyle(oc, d, len(items))); err != nil {
		return err
	}
	return oc.writer.Emit(event.Event{Kind: event.MappingEnd})
}

func writeItems(oc *ObjectContext, d *TypeDescriptor, items []reflect.Value, tag, anchor string, style event.Style) error {
	if err := oc.writer.Emit(event.NewSequenceStart(tag, anchor, style)); err != nil {
		return err
	}
	for _, item := range items {
		if err := oc.WriteValue(item, d.elem, event.StyleAny); err != nil {
			return err
		}
	}
	return oc.writer.Emit(event.Event{Kind: event.SequenceEnd})
}

// sequenceStyle renders short sequences of primitives in flow style.
func sequenceStyle(oc *ObjectContext, d *TypeDescriptor, count int) event.Style {
	if style := containerStyle(oc, d); style != event.StyleAny {
		return style
	}
	if count > oc.settings.LimitPrimitiveFlowSequence {
		return event.StyleAny
	}
	if ed, err := oc.Describe(d.elem); err == nil && (ed.category == CategoryPrimitive || ed.category == CategoryNullable) {
		return event.StyleFlow
	}
	return event.StyleAny
}

func sortValues(values []reflect.Value, cmp func(a, b any) int) {
	if cmp == nil {
		cmp = DefaultKeyComparer
	}
	slices.SortStableFunc(values, func(a, b reflect.Value) int {
		return cmp(a.Interface(), b.Interface())
	})
}
