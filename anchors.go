package muesli

import (
	"reflect"
	"strconv"

	"github.com/cockroachdb/errors"
)

// identity is the reference identity of a pointer or map.
type identity struct {
	typ reflect.Type
	ptr uintptr
}

// anchorTable tracks anchors for one pass. Reads map anchor names to the
// values they labeled; writes map reference identities to generated names.
type anchorTable struct {
	aliasToObject map[string]reflect.Value
	objectToAlias map[identity]string
	next          int
}

func newAnchorTable() *anchorTable {
	return &anchorTable{
		aliasToObject: make(map[string]reflect.Value),
		objectToAlias: make(map[identity]string),
	}
}

// register labels v with name. A later registration of the same name wins,
// as a document may redefine an anchor.
func (a *anchorTable) register(name string, v reflect.Value) {
	if name == "" || !v.IsValid() {
		return
	}
	a.aliasToObject[name] = v
}

// resolve returns the value labeled name.
func (a *anchorTable) resolve(name string) (reflect.Value, error) {
	v, ok := a.aliasToObject[name]
	if !ok {
		return reflect.Value{}, errors.Wrapf(ErrAnchorNotFound, "*%s", name)
	}
	return v, nil
}

// anchorable reports whether v has reference identity: a non-nil map, or a
// non-nil pointer to anything but a primitive.
func anchorable(v reflect.Value, d *TypeDescriptor) bool {
	switch v.Kind() {
	case reflect.Map:
		return !v.IsNil()
	case reflect.Pointer:
		return !v.IsNil() && d.category != CategoryNullable
	}
	return false
}

// lookup returns the name assigned to v, if it was written before.
func (a *anchorTable) lookup(v reflect.Value) (string, bool) {
	name, ok := a.objectToAlias[identity{typ: v.Type(), ptr: v.Pointer()}]
	return name, ok
}

// assign gives v the next name in encounter order: o0, o1, ...
func (a *anchorTable) assign(v reflect.Value) string {
	name := "o" + strconv.Itoa(a.next)
	a.next++
	a.objectToAlias[identity{typ: v.Type(), ptr: v.Pointer()}] = name
	return name
}
