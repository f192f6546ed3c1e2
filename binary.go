package muesli

import (
	"reflect"

	"github.com/cockroachdb/errors"
	"github.com/zoobzio/muesli/event"
	"github.com/zoobzio/muesli/msgpack"
)

var binaryCodec = msgpack.New()

// readBinary reads a Binary member: a scalar holding the base64 MessagePack
// form of a fixed-layout array.
func readBinary(oc *ObjectContext, t reflect.Type) (reflect.Value, error) {
	ev, err := oc.reader.Expect(event.Scalar)
	if err != nil {
		got, _ := oc.reader.Current()
		return reflect.Value{}, structuralError("binary scalar", got)
	}
	v, err := binaryCodec.DecodeText(ev.Value, t)
	if err != nil {
		return reflect.Value{}, conversionError(ev.Value, t, err)
	}
	return v, nil
}

// writeBinary writes v as a single binary scalar.
func writeBinary(oc *ObjectContext, v reflect.Value) error {
	text, err := binaryCodec.EncodeText(v.Interface())
	if err != nil {
		return errors.Wrap(err, "encode binary block")
	}
	style := event.ScalarAny
	if oc.settings.EmitJSONCompatible {
		style = event.ScalarDoubleQuoted
	}
	return oc.writer.Emit(event.NewScalar(text, TagBinary, "", style))
}
