package muesli

import (
	"cmp"
	"fmt"
	"reflect"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/zoobzio/muesli/event"
)

// dictionarySerializer reads and writes maps and user dictionaries as
// mappings. Dictionaries with members of their own either hold the entries
// under SpecialCollectionMember or, with SerializeDictionaryItemsAsMembers
// and string keys, mix entries with members.
type dictionarySerializer struct{}

func (dictionarySerializer) ReadYaml(oc *ObjectContext) (reflect.Value, error) {
	d := oc.Descriptor
	inst, err := instantiate(oc)
	if err != nil {
		return reflect.Value{}, err
	}
	if d.ops.addEntry == nil {
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

	if d.IsPureDictionary() {
		if err := readEntries(oc, d, inst); err != nil {
			return reflect.Value{}, err
		}
		return inst, nil
	}

	var extra keyHandler
	if oc.settings.SerializeDictionaryItemsAsMembers && d.key.Kind() == reflect.String {
		extra = func(key event.Event) (bool, error) {
			value, err := oc.ReadValue(d.value, reflect.Value{})
			if err != nil {
				return true, err
			}
			k := reflect.New(d.key).Elem()
			k.SetString(key.Value)
			return true, d.AddEntry(inst, k, value)
		}
	} else {
		special := oc.settings.SpecialCollectionMember
		extra = func(key event.Event) (bool, error) {
			if key.Value != special {
				return false, nil
			}
			return true, readEntries(oc, d, inst)
		}
	}
	if err := readMembers(oc, d, base(d, inst), extra); err != nil {
		return reflect.Value{}, err
	}
	return finalize(inst)
}

// readEntries reads a mapping, adding every entry to inst. Duplicate keys
// fail in the add operation.
func readEntries(oc *ObjectContext, d *TypeDescriptor, inst reflect.Value) error {
	if _, err := oc.reader.Expect(event.MappingStart); err != nil {
		got, _ := oc.reader.Current()
		return structuralError("mapping", got)
	}
	depth := oc.reader.Depth()

	for !oc.reader.Accept(event.MappingEnd) {
		if oc.reader.Done() {
			return errors.Wrap(ErrStructural, "unexpected end of mapping")
		}

		keyEv, _ := oc.reader.Current()
		keyPos := oc.reader.Pos()
		key, err := oc.ReadValue(d.key, reflect.Value{})
		if err != nil {
			if err := oc.recover(err, keyEv, depth, keyPos, d.typ, "key"); err != nil {
				return err
			}
			oc.reader.Skip(depth, true)
			continue
		}

		valueEv, _ := oc.reader.Current()
		valuePos := oc.reader.Pos()
		value, err := oc.ReadValue(d.value, reflect.Value{})
		if err == nil {
			err = d.AddEntry(inst, key, value)
		}
		if err != nil {
			name := ""
			if key.IsValid() {
				name = fmt.Sprint(key.Interface())
			}
			if err := oc.recover(err, valueEv, depth, valuePos, d.typ, name); err != nil {
				return err
			}
		}
	}
	_, err := oc.reader.Expect(event.MappingEnd)
	return err
}

func (dictionarySerializer) WriteYaml(oc *ObjectContext) error {
	d := oc.Descriptor
	entries, err := d.Entries(oc.Instance)
	if err != nil {
		return err
	}
	if oc.settings.SortKeyForMapping {
		sortEntries(entries, oc.settings.ComparerForKeySorting)
	}

	if d.IsPureDictionary() {
		return writeEntries(oc, d, entries, oc.Tag, oc.Anchor, containerStyle(oc, d))
	}

	if err := oc.writer.Emit(event.NewMappingStart(oc.Tag, oc.Anchor, containerStyle(oc, d))); err != nil {
		return err
	}
	if err := writeMembers(oc, d, base(d, oc.Instance)); err != nil {
		return err
	}
	if oc.settings.SerializeDictionaryItemsAsMembers && d.key.Kind() == reflect.String {
		for _, e := range entries {
			if err := writeKey(oc, e.Key.String()); err != nil {
				return err
			}
			if err := oc.WriteValue(e.Value, d.value, event.StyleAny); err != nil {
				return err
			}
		}
	} else {
		if err := writeKey(oc, oc.settings.SpecialCollectionMember); err != nil {
			return err
		}
		if err := writeEntries(oc, d, entries, "", "", event.StyleAny); err != nil {
			return err
		}
	}
	return oc.writer.Emit(event.Event{Kind: event.MappingEnd})
}

func writeEntries(oc *ObjectContext, d *TypeDescriptor, entries []Entry, tag, anchor string, style event.Style) error {
	if err := oc.writer.Emit(event.NewMappingStart(tag, anchor, style)); err != nil {
		return err
	}
	for _, e := range entries {
		if err := oc.WriteValue(e.Key, d.key, event.StyleAny); err != nil {
			return err
		}
		if err := oc.WriteValue(e.Value, d.value, event.StyleAny); err != nil {
			return err
		}
	}
	return oc.writer.Emit(event.Event{Kind: event.MappingEnd})
}

func sortEntries(entries []Entry, compare func(a, b any) int) {
	if compare == nil {
		compare = DefaultKeyComparer
	}
	slices.SortStableFunc(entries, func(a, b Entry) int {
		return compare(a.Key.Interface(), b.Key.Interface())
	})
}

// DefaultKeyComparer orders numbers numerically before strings, strings
// lexically, and anything else by its printed form.
func DefaultKeyComparer(a, b any) int {
	fa, aNum := number(a)
	fb, bNum := number(b)
	switch {
	case aNum && bNum:
		return cmp.Compare(fa, fb)
	case aNum:
		return -1
	case bNum:
		return 1
	}
	sa, aStr := a.(string)
	sb, bStr := b.(string)
	if aStr && bStr {
		return cmp.Compare(sa, sb)
	}
	return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func number(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}
