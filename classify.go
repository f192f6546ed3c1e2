package muesli

import (
	"reflect"

	"github.com/cockroachdb/errors"
)

var errorType = reflect.TypeFor[error]()

// build classifies t and resolves its collection capabilities. Members are
// prepared later, by Initialize.
//
// Precedence: Nullable, Primitive, Array, Dictionary, Set, List, Collection,
// then Object (or Unsupported when flagged).
func (f *DescriptorFactory) build(t reflect.Type) (*TypeDescriptor, error) {
	d := &TypeDescriptor{factory: f, typ: t, base: t, attrs: f.attrs.Attributes(t)}
	if s, ok := AttributeOf[StyleAttr](d.attrs); ok {
		d.style = s.Style
	}
	d.enum, _ = AttributeOf[*EnumAttr](d.attrs)

	switch t.Kind() {
	case reflect.Invalid, reflect.Chan, reflect.Func, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return nil, newConfigError(ErrUnsupportedShape, t, "", "kind "+t.Kind().String()+" cannot be serialized")
	case reflect.Pointer:
		return f.buildPointer(d)
	}

	switch {
	case isPrimitive(t, d.enum):
		d.category = CategoryPrimitive
		d.textual = isTextual(t)
	case t.Kind() == reflect.Array:
		d.category, d.elem, d.ops = CategoryArray, t.Elem(), arrayOps()
	case t.Kind() == reflect.Map && isEmptyStruct(t.Elem()):
		d.category, d.elem, d.ops = CategorySet, t.Key(), setOps()
	case t.Kind() == reflect.Map:
		d.category, d.key, d.value, d.ops = CategoryDictionary, t.Key(), t.Elem(), mapOps()
	case t.Kind() == reflect.Slice:
		d.category, d.elem, d.ops = CategoryList, t.Elem(), sliceOps()
	case t.Kind() == reflect.Struct && probeMethods(d):
	case t.Kind() == reflect.Struct || t.Kind() == reflect.Interface:
		d.category = CategoryObject
		if _, flagged := AttributeOf[Unsupported](d.attrs); flagged {
			d.category = CategoryUnsupported
		}
	default:
		return nil, newConfigError(ErrUnsupportedShape, t, "", "no category for kind "+t.Kind().String())
	}
	return d, nil
}

// buildPointer describes *T. Pointers to primitives are Nullable; other
// pointers share the description of T.
func (f *DescriptorFactory) buildPointer(d *TypeDescriptor) (*TypeDescriptor, error) {
	elem := d.typ.Elem()
	if elem.Kind() == reflect.Pointer {
		return nil, newConfigError(ErrUnsupportedShape, d.typ, "", "pointer to pointer")
	}

	enum, _ := AttributeOf[*EnumAttr](f.attrs.Attributes(elem))
	if isPrimitive(elem, enum) {
		d.category, d.underlying, d.enum = CategoryNullable, elem, enum
		return d, nil
	}

	inner, _, err := f.find(elem)
	if err != nil {
		return nil, err
	}
	d.base, d.indirect, d.inner = elem, true, inner
	d.category, d.attrs, d.style, d.enum = inner.category, inner.attrs, inner.style, inner.enum
	d.elem, d.key, d.value, d.underlying = inner.elem, inner.key, inner.value, inner.underlying
	d.textual, d.ops = inner.textual, inner.ops
	return d, nil
}

func isPrimitive(t reflect.Type, enum *EnumAttr) bool {
	if enum != nil || t == typeTime || t == typeDuration || isTextual(t) {
		return true
	}
	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	case reflect.Slice:
		return t.Elem().Kind() == reflect.Uint8
	}
	return false
}

func isEmptyStruct(t reflect.Type) bool {
	return t.Kind() == reflect.Struct && t.NumField() == 0
}

// coerce converts v for storage in a slot of type t.
func coerce(v reflect.Value, t reflect.Type) (reflect.Value, error) {
	if t == nil {
		return v, nil
	}
	if !v.IsValid() {
		return reflect.Zero(t), nil
	}
	if v.Type().AssignableTo(t) {
		return v, nil
	}
	if v.Kind() == reflect.Pointer && !v.IsNil() && v.Elem().Type().AssignableTo(t) {
		return v.Elem(), nil
	}
	if t.Kind() == reflect.Pointer && v.Type().AssignableTo(t.Elem()) {
		ptr := reflect.New(t.Elem())
		ptr.Elem().Set(v)
		return ptr, nil
	}
	if isScalarKind(v.Type()) && isScalarKind(t) && v.Type().ConvertibleTo(t) {
		return v.Convert(t), nil
	}
	return reflect.Value{}, errors.Wrapf(ErrConversion, "cannot store %s as %s", v.Type(), t)
}

// Native capabilities.

func arrayOps() collectionOps {
	return collectionOps{
		get:   func(c reflect.Value, i int) reflect.Value { return c.Index(i) },
		set:   func(c reflect.Value, i int, item reflect.Value) error { c.Index(i).Set(item); return nil },
		count: func(c reflect.Value) int { return c.Len() },
		items: indexedItems,
	}
}

func sliceOps() collectionOps {
	return collectionOps{
		add: func(c, item reflect.Value) error {
			c.Set(reflect.Append(c, item))
			return nil
		},
		insert: func(c reflect.Value, i int, item reflect.Value) error {
			if i < 0 || i > c.Len() {
				return errors.Wrapf(ErrUnsupportedOperation, "index %d out of range", i)
			}
			out := reflect.MakeSlice(c.Type(), 0, c.Len()+1)
			out = reflect.AppendSlice(out, c.Slice(0, i))
			out = reflect.Append(out, item)
			c.Set(reflect.AppendSlice(out, c.Slice(i, c.Len())))
			return nil
		},
		removeAt: func(c reflect.Value, i int) error {
			if i < 0 || i >= c.Len() {
				return errors.Wrapf(ErrUnsupportedOperation, "index %d out of range", i)
			}
			out := reflect.MakeSlice(c.Type(), 0, c.Len()-1)
			out = reflect.AppendSlice(out, c.Slice(0, i))
			c.Set(reflect.AppendSlice(out, c.Slice(i+1, c.Len())))
			return nil
		},
		remove: func(c, item reflect.Value) (bool, error) {
			for i := 0; i < c.Len(); i++ {
				if valuesEqual(c.Index(i), item) {
					out := reflect.MakeSlice(c.Type(), 0, c.Len()-1)
					out = reflect.AppendSlice(out, c.Slice(0, i))
					c.Set(reflect.AppendSlice(out, c.Slice(i+1, c.Len())))
					return true, nil
				}
			}
			return false, nil
		},
		clear: func(c reflect.Value) error {
			c.Set(reflect.MakeSlice(c.Type(), 0, 0))
			return nil
		},
		get:   func(c reflect.Value, i int) reflect.Value { return c.Index(i) },
		set:   func(c reflect.Value, i int, item reflect.Value) error { c.Index(i).Set(item); return nil },
		count: func(c reflect.Value) int { return c.Len() },
		items: indexedItems,
	}
}

func indexedItems(c reflect.Value) []reflect.Value {
	items := make([]reflect.Value, c.Len())
	for i := range items {
		items[i] = c.Index(i)
	}
	return items
}

func ensureMap(c reflect.Value) {
	if c.IsNil() {
		c.Set(reflect.MakeMap(c.Type()))
	}
}

func mapOps() collectionOps {
	return collectionOps{
		addEntry: func(c, key, value reflect.Value) error {
			if !key.Comparable() {
				return errors.Wrapf(ErrConversion, "unhashable key of type %s", key.Type())
			}
			ensureMap(c)
			if c.MapIndex(key).IsValid() {
				return errors.Wrapf(ErrDuplicateKey, "%v", key.Interface())
			}
			c.SetMapIndex(key, value)
			return nil
		},
		remove: func(c, key reflect.Value) (bool, error) {
			if c.IsNil() || !c.MapIndex(key).IsValid() {
				return false, nil
			}
			c.SetMapIndex(key, reflect.Value{})
			return true, nil
		},
		clear: func(c reflect.Value) error {
			if !c.IsNil() {
				c.Clear()
			}
			return nil
		},
		count: func(c reflect.Value) int { return c.Len() },
		entries: func(c reflect.Value) []Entry {
			entries := make([]Entry, 0, c.Len())
			iter := c.MapRange()
			for iter.Next() {
				entries = append(entries, Entry{Key: iter.Key(), Value: iter.Value()})
			}
			return entries
		},
	}
}

func setOps() collectionOps {
	return collectionOps{
		add: func(c, item reflect.Value) error {
			if !item.Comparable() {
				return errors.Wrapf(ErrConversion, "unhashable item of type %s", item.Type())
			}
			ensureMap(c)
			c.SetMapIndex(item, reflect.New(c.Type().Elem()).Elem())
			return nil
		},
		remove: func(c, item reflect.Value) (bool, error) {
			if c.IsNil() || !c.MapIndex(item).IsValid() {
				return false, nil
			}
			c.SetMapIndex(item, reflect.Value{})
			return true, nil
		},
		clear: func(c reflect.Value) error {
			if !c.IsNil() {
				c.Clear()
			}
			return nil
		},
		count: func(c reflect.Value) int { return c.Len() },
		items: func(c reflect.Value) []reflect.Value { return c.MapKeys() },
	}
}

// Method-probed capabilities of user types. Methods are looked up on *T so
// both receiver kinds are found; ops call them on the address of the value.

type methods struct {
	ptr reflect.Type
}

// lookup finds a method taking the given parameters (receiver excluded).
func (m methods) lookup(name string, in ...reflect.Type) (reflect.Method, bool) {
	method, ok := m.ptr.MethodByName(name)
	if !ok || method.Type.NumIn() != len(in)+1 {
		return reflect.Method{}, false
	}
	for i, t := range in {
		if t != nil && method.Type.In(i+1) != t {
			return reflect.Method{}, false
		}
	}
	return method, true
}

// returns reports whether method yields exactly one result of type out.
func returns(method reflect.Method, out reflect.Type) bool {
	return method.Type.NumOut() == 1 && method.Type.Out(0) == out
}

// sequence returns the yielded types of an All() iter.Seq or iter.Seq2 method.
func (m methods) sequence(arity int) ([]reflect.Type, reflect.Method, bool) {
	method, ok := m.lookup("All")
	if !ok || method.Type.NumOut() != 1 {
		return nil, method, false
	}
	seq := method.Type.Out(0)
	if seq.Kind() != reflect.Func || seq.NumIn() != 1 || seq.NumOut() != 0 {
		return nil, method, false
	}
	yield := seq.In(0)
	if yield.Kind() != reflect.Func || yield.NumIn() != arity || yield.NumOut() != 1 || yield.Out(0).Kind() != reflect.Bool {
		return nil, method, false
	}
	types := make([]reflect.Type, arity)
	for i := range types {
		types[i] = yield.In(i)
	}
	return types, method, true
}

func call(c reflect.Value, method reflect.Method, args ...reflect.Value) []reflect.Value {
	if !c.CanAddr() {
		cp := reflect.New(c.Type()).Elem()
		cp.Set(c)
		c = cp
	}
	return c.Addr().Method(method.Index).Call(args)
}

// callErr calls method and returns its trailing error result, if any.
func callErr(c reflect.Value, method reflect.Method, args ...reflect.Value) error {
	out := call(c, method, args...)
	if n := len(out); n > 0 && out[n-1].Type() == errorType && !out[n-1].IsNil() {
		return out[n-1].Interface().(error)
	}
	return nil
}

// adder accepts Add methods returning nothing, an error, or a bool.
func adder(method reflect.Method) bool {
	switch method.Type.NumOut() {
	case 0:
		return true
	case 1:
		out := method.Type.Out(0)
		return out == errorType || out.Kind() == reflect.Bool
	}
	return false
}

// probeMethods classifies a struct by the methods of its pointer type.
func probeMethods(d *TypeDescriptor) bool {
	m := methods{ptr: reflect.PointerTo(d.typ)}

	if kv, all, ok := m.sequence(2); ok {
		if add, ok := m.lookup("Add", kv[0], kv[1]); ok && adder(add) {
			d.category, d.key, d.value = CategoryDictionary, kv[0], kv[1]
			d.ops.addEntry = func(c, key, value reflect.Value) error { return callErr(c, add, key, value) }
			d.ops.entries = func(c reflect.Value) []Entry {
				var entries []Entry
				for k, v := range call(c, all)[0].Seq2() {
					entries = append(entries, Entry{Key: k, Value: v})
				}
				return entries
			}
			probeCommon(m, d, kv[0])
			return true
		}
	}

	elems, all, hasAll := m.sequence(1)
	var elem reflect.Type
	if hasAll {
		elem = elems[0]
	}
	items := func(c reflect.Value) []reflect.Value {
		var items []reflect.Value
		for v := range call(c, all)[0].Seq() {
			items = append(items, v)
		}
		return items
	}

	if contains, ok := m.lookup("Contains", elem); hasAll && ok && returns(contains, reflect.TypeFor[bool]()) {
		if add, ok := m.lookup("Add", elem); ok && adder(add) {
			d.category, d.elem, d.ops.items = CategorySet, elem, items
			d.ops.add = func(c, item reflect.Value) error { return callErr(c, add, item) }
			probeCommon(m, d, elem)
			return true
		}
	}

	intType := reflect.TypeFor[int]()
	if at, ok := m.lookup("At", intType); ok && at.Type.NumOut() == 1 {
		e := at.Type.Out(0)
		set, hasSet := m.lookup("Set", intType, e)
		length, hasLen := m.lookup("Len")
		if hasSet && hasLen && returns(length, intType) {
			d.category, d.elem = CategoryList, e
			d.ops.get = func(c reflect.Value, i int) reflect.Value { return call(c, at, reflect.ValueOf(i))[0] }
			d.ops.set = func(c reflect.Value, i int, item reflect.Value) error {
				return callErr(c, set, reflect.ValueOf(i), item)
			}
			d.ops.items = func(c reflect.Value) []reflect.Value {
				n := int(call(c, length)[0].Int())
				items := make([]reflect.Value, n)
				for i := range items {
					items[i] = call(c, at, reflect.ValueOf(i))[0]
				}
				return items
			}
			if add, ok := m.lookup("Add", e); ok && adder(add) {
				d.ops.add = func(c, item reflect.Value) error { return callErr(c, add, item) }
			}
			if insert, ok := m.lookup("Insert", intType, e); ok {
				d.ops.insert = func(c reflect.Value, i int, item reflect.Value) error {
					return callErr(c, insert, reflect.ValueOf(i), item)
				}
			}
			if removeAt, ok := m.lookup("RemoveAt", intType); ok {
				d.ops.removeAt = func(c reflect.Value, i int) error { return callErr(c, removeAt, reflect.ValueOf(i)) }
			}
			probeCommon(m, d, e)
			return true
		}
	}

	if hasAll {
		if add, ok := m.lookup("Add", elem); ok && adder(add) {
			d.category, d.elem, d.ops.items = CategoryCollection, elem, items
			d.ops.add = func(c, item reflect.Value) error { return callErr(c, add, item) }
			probeCommon(m, d, elem)
			return true
		}
	}
	return false
}

// probeCommon resolves the optional Len, Remove, Clear and IsReadOnly methods.
func probeCommon(m methods, d *TypeDescriptor, item reflect.Type) {
	if length, ok := m.lookup("Len"); ok && returns(length, reflect.TypeFor[int]()) {
		d.ops.count = func(c reflect.Value) int { return int(call(c, length)[0].Int()) }
	}
	if remove, ok := m.lookup("Remove", item); ok {
		d.ops.remove = func(c, v reflect.Value) (bool, error) {
			out := call(c, remove, v)
			removed := true
			for _, r := range out {
				switch {
				case r.Kind() == reflect.Bool:
					removed = r.Bool()
				case r.Type() == errorType && !r.IsNil():
					return false, r.Interface().(error)
				}
			}
			return removed, nil
		}
	}
	if clearAll, ok := m.lookup("Clear"); ok {
		d.ops.clear = func(c reflect.Value) error { return callErr(c, clearAll) }
	}
	if readOnly, ok := m.lookup("IsReadOnly"); ok && returns(readOnly, reflect.TypeFor[bool]()) {
		d.ops.readOnly = func(c reflect.Value) bool { return call(c, readOnly)[0].Bool() }
	}
}
