// Package msgpack packs fixed-layout value arrays (slices and arrays of
// numbers or booleans) into MessagePack, optionally wrapped in base64 text so
// the block can travel as a single document scalar.
package msgpack

import (
	"encoding/base64"
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

// ContentType is the MIME type of raw MessagePack data.
const ContentType = "application/msgpack"

// Codec encodes fixed-layout value arrays as MessagePack.
type Codec struct{}

// New returns a MessagePack codec.
func New() *Codec {
	return &Codec{}
}

// ContentType returns the MIME type for MessagePack.
func (c *Codec) ContentType() string {
	return ContentType
}

// Marshal encodes v as MessagePack.
func (c *Codec) Marshal(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

// Unmarshal decodes MessagePack data into v.
func (c *Codec) Unmarshal(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}

// EncodeText encodes v as base64 text holding its MessagePack form.
func (c *Codec) EncodeText(v any) (string, error) {
	data, err := c.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeText decodes text produced by EncodeText into a new value of type t.
func (c *Codec) DecodeText(text string, t reflect.Type) (reflect.Value, error) {
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("msgpack: invalid base64 block: %w", err)
	}
	ptr := reflect.New(t)
	if err := c.Unmarshal(data, ptr.Interface()); err != nil {
		return reflect.Value{}, err
	}
	return ptr.Elem(), nil
}

// Fixed reports whether t is a slice or array whose elements have a fixed
// size (booleans, sized integers, floats).
func Fixed(t reflect.Type) bool {
	if t.Kind() != reflect.Slice && t.Kind() != reflect.Array {
		return false
	}
	switch t.Elem().Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
