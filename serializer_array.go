package muesli

import (
	"reflect"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/zoobzio/muesli/event"
)

// arraySerializer reads and writes fixed-size arrays as sequences. Items are
// stored positionally; a sequence longer than the array is an error.
type arraySerializer struct{}

func (arraySerializer) ReadYaml(oc *ObjectContext) (reflect.Value, error) {
	d := oc.Descriptor
	inst, err := instantiate(oc)
	if err != nil {
		return reflect.Value{}, err
	}

	start, err := oc.reader.Expect(event.SequenceStart)
	if err != nil {
		got, _ := oc.reader.Current()
		return reflect.Value{}, structuralError("sequence", got)
	}
	depth := oc.reader.Depth()
	size := d.Count(inst)

	for i := 0; !oc.reader.Accept(event.SequenceEnd); i++ {
		if oc.reader.Done() {
			return reflect.Value{}, errors.Wrap(ErrStructural, "unexpected end of sequence")
		}
		ev, _ := oc.reader.Current()
		if i >= size {
			return reflect.Value{}, newPositionError(
				errors.Wrapf(ErrArrayOverflow, "%s holds %d items", d.typ, size), start, d.typ, "")
		}
		pos := oc.reader.Pos()

		item, err := oc.ReadValue(d.elem, reflect.Value{})
		if err == nil {
			err = d.SetIndex(inst, i, item)
		}
		if err != nil {
			if err := oc.recover(err, ev, depth, pos, d.typ, "["+strconv.Itoa(i)+"]"); err != nil {
				return reflect.Value{}, err
			}
		}
	}
	if _, err := oc.reader.Expect(event.SequenceEnd); err != nil {
		return reflect.Value{}, err
	}
	return inst, nil
}

func (arraySerializer) WriteYaml(oc *ObjectContext) error {
	d := oc.Descriptor
	items, err := d.Items(oc.Instance)
	if err != nil {
		return err
	}
	return writeItems(oc, d, items, oc.Tag, oc.Anchor, sequenceStyle(oc, d, len(items)))
}
