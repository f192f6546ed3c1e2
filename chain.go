package muesli

import (
	"reflect"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/zoobzio/muesli/event"
)

// ReadFunc continues a read down the chain.
type ReadFunc func(oc *ObjectContext) (reflect.Value, error)

// WriteFunc continues a write down the chain.
type WriteFunc func(oc *ObjectContext) error

// Stage is one step of the serializer chain. A stage either handles the value
// itself or calls next.
type Stage interface {
	Read(oc *ObjectContext, next ReadFunc) (reflect.Value, error)
	Write(oc *ObjectContext, next WriteFunc) error
}

// ValueSerializer reads and writes the values of one category.
type ValueSerializer interface {
	ReadYaml(oc *ObjectContext) (reflect.Value, error)
	WriteYaml(oc *ObjectContext) error
}

// SerializerFactory offers a ValueSerializer for the types it handles.
type SerializerFactory interface {
	TryCreate(d *TypeDescriptor) (ValueSerializer, bool)
}

// FactoryFunc adapts a function to the SerializerFactory interface.
type FactoryFunc func(d *TypeDescriptor) (ValueSerializer, bool)

// TryCreate calls f(d).
func (f FactoryFunc) TryCreate(d *TypeDescriptor) (ValueSerializer, bool) {
	return f(d)
}

// chain is the immutable stage pipeline of a Serializer: anchor, tag, user
// stages, then routing.
type chain struct {
	reads  []ReadFunc
	writes []WriteFunc
}

func newChain(stages []Stage) *chain {
	c := &chain{
		reads:  make([]ReadFunc, len(stages)+1),
		writes: make([]WriteFunc, len(stages)+1),
	}
	c.reads[len(stages)] = func(*ObjectContext) (reflect.Value, error) {
		return reflect.Value{}, errors.Wrap(ErrUnsupportedOperation, "end of serializer chain")
	}
	c.writes[len(stages)] = func(*ObjectContext) error {
		return errors.Wrap(ErrUnsupportedOperation, "end of serializer chain")
	}
	for i := len(stages) - 1; i >= 0; i-- {
		stage, nextRead, nextWrite := stages[i], c.reads[i+1], c.writes[i+1]
		c.reads[i] = func(oc *ObjectContext) (reflect.Value, error) { return stage.Read(oc, nextRead) }
		c.writes[i] = func(oc *ObjectContext) error { return stage.Write(oc, nextWrite) }
	}
	return c
}

func (c *chain) read(oc *ObjectContext) (reflect.Value, error) { return c.reads[0](oc) }

func (c *chain) write(oc *ObjectContext) error { return c.writes[0](oc) }

// anchorStage resolves aliases and labels shared references.
type anchorStage struct{}

func (anchorStage) Read(oc *ObjectContext, next ReadFunc) (reflect.Value, error) {
	if ev, ok := oc.reader.Allow(event.Alias); ok {
		return oc.anchors.resolve(ev.Value)
	}

	ev, _ := oc.reader.Current()
	oc.Anchor = ev.Anchor
	v, err := next(oc)
	if err != nil {
		return v, err
	}
	oc.anchors.register(ev.Anchor, v)
	return v, nil
}

func (anchorStage) Write(oc *ObjectContext, next WriteFunc) error {
	if !oc.settings.EmitAlias || !anchorable(oc.Instance, oc.Descriptor) {
		return next(oc)
	}
	if name, ok := oc.anchors.lookup(oc.Instance); ok {
		return oc.writer.Emit(event.NewAlias(name))
	}
	oc.Anchor = oc.anchors.assign(oc.Instance)
	return next(oc)
}

// tagStage maps document tags to Go types and back.
type tagStage struct{}

func (tagStage) Read(oc *ObjectContext, next ReadFunc) (reflect.Value, error) {
	ev, _ := oc.reader.Current()
	generic := oc.Expected == nil || oc.Expected.Kind() == reflect.Interface

	if ev.Tag != "" && (generic || !strings.HasPrefix(ev.Tag, "!!")) {
		t, remapped, ok := oc.Tags().TypeFor(ev.Tag)
		if !ok {
			return reflect.Value{}, errors.Wrapf(ErrUnresolvedType, "unknown tag %s", ev.Tag)
		}
		resolved, ok := resolveTagged(t, oc.Expected)
		if !ok {
			return reflect.Value{}, errors.Wrapf(ErrUnresolvedType, "tag %s (%s) does not fit %s", ev.Tag, t, oc.Expected)
		}
		if remapped {
			oc.MarkRemapped()
		}
		if oc.Descriptor == nil || oc.Descriptor.typ != resolved {
			d, err := oc.Describe(resolved)
			if err != nil {
				return reflect.Value{}, err
			}
			oc.Descriptor = d
			oc.Instance = existingOf(oc.Instance, resolved)
		}
		oc.Tag = ev.Tag
		return next(oc)
	}

	if !generic {
		return next(oc)
	}

	// Untagged node under a generic type: keep the runtime type of an
	// existing value, else fall back on the node shape.
	if cur := existingOf(oc.Instance, nil); cur.IsValid() {
		d, err := oc.Describe(cur.Type())
		if err != nil {
			return reflect.Value{}, err
		}
		oc.Descriptor, oc.Instance = d, cur
		return next(oc)
	}

	var fallback reflect.Type
	switch ev.Kind {
	case event.SequenceStart:
		fallback = typeAnySlice
	case event.MappingStart:
		fallback = typeAnyMap
	case event.Scalar:
		oc.reader.Next()
		v := sniffEvent(ev)
		if v.IsValid() && oc.Expected != nil && !v.Type().AssignableTo(oc.Expected) {
			return reflect.Value{}, errors.Wrapf(ErrUnresolvedType, "%s does not implement %s", v.Type(), oc.Expected)
		}
		return v, nil
	}
	if fallback == nil || (oc.Expected != nil && !fallback.AssignableTo(oc.Expected)) {
		return reflect.Value{}, errors.Wrapf(ErrUnresolvedType, "no type for untagged %s under %s", ev.Kind, oc.Expected)
	}
	d, err := oc.Describe(fallback)
	if err != nil {
		return reflect.Value{}, err
	}
	oc.Descriptor = d
	return next(oc)
}

// existingOf unwraps an existing value held in an interface slot. With t set,
// the value is kept only when it has that type.
func existingOf(v reflect.Value, t reflect.Type) reflect.Value {
	if v.IsValid() && v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	if !v.IsValid() || (isNilable(v.Kind()) && v.IsNil()) {
		return reflect.Value{}
	}
	if t != nil && v.Type() != t {
		return reflect.Value{}
	}
	return v
}

func (tagStage) Write(oc *ObjectContext, next WriteFunc) error {
	runtime := oc.Instance.Type()
	oc.Tags().registerAttributes(oc.Descriptor.base, oc.Descriptor.attrs)

	if oc.settings.EmitTags && needsTag(runtime, oc.Expected) {
		oc.Tag = oc.Tags().TagFor(runtime)
		if byReference(runtime, oc.Expected) {
			oc.Tag = pointerTag(oc.Tag)
		}
	}
	return next(oc)
}

// needsTag reports whether a value of type runtime written into a slot of
// type static must name its type.
func needsTag(runtime, static reflect.Type) bool {
	if static == nil || runtime == static || static.Kind() != reflect.Interface {
		return false
	}
	switch runtime {
	case typeAnySlice, typeAnyMap:
		return false
	}
	switch runtime.Kind() {
	case reflect.String, reflect.Bool, reflect.Int, reflect.Float64:
		return runtime.PkgPath() != ""
	}
	return true
}

// routingStage hands the value to the serializer of its category.
type routingStage struct {
	factories []SerializerFactory
	cache     sync.Map // *TypeDescriptor -> ValueSerializer
}

func (r *routingStage) serializerFor(d *TypeDescriptor) (ValueSerializer, error) {
	if s, ok := r.cache.Load(d); ok {
		return s.(ValueSerializer), nil
	}
	for _, f := range r.factories {
		if s, ok := f.TryCreate(d); ok {
			actual, _ := r.cache.LoadOrStore(d, s)
			return actual.(ValueSerializer), nil
		}
	}
	return nil, errors.Wrapf(ErrUnsupportedOperation, "no serializer for %s (%s)", d.typ, d.category)
}

func (r *routingStage) Read(oc *ObjectContext, _ ReadFunc) (reflect.Value, error) {
	if oc.Descriptor == nil {
		return reflect.Value{}, errors.Wrap(ErrUnresolvedType, "no type for node")
	}
	s, err := r.serializerFor(oc.Descriptor)
	if err != nil {
		return reflect.Value{}, err
	}
	return s.ReadYaml(oc)
}

func (r *routingStage) Write(oc *ObjectContext, _ WriteFunc) error {
	s, err := r.serializerFor(oc.Descriptor)
	if err != nil {
		return err
	}
	return s.WriteYaml(oc)
}

// builtinFactories route each category to its serializer.
func builtinFactories() []SerializerFactory {
	return []SerializerFactory{
		FactoryFunc(func(d *TypeDescriptor) (ValueSerializer, bool) {
			return primitiveSerializer{}, d.category == CategoryPrimitive || d.category == CategoryNullable
		}),
		FactoryFunc(func(d *TypeDescriptor) (ValueSerializer, bool) {
			return arraySerializer{}, d.category == CategoryArray
		}),
		FactoryFunc(func(d *TypeDescriptor) (ValueSerializer, bool) {
			return dictionarySerializer{}, d.category == CategoryDictionary
		}),
		FactoryFunc(func(d *TypeDescriptor) (ValueSerializer, bool) {
			switch d.category {
			case CategoryCollection, CategoryList, CategorySet:
				return collectionSerializer{}, true
			}
			return nil, false
		}),
		FactoryFunc(func(d *TypeDescriptor) (ValueSerializer, bool) {
			return objectSerializer{}, d.category == CategoryObject || d.category == CategoryUnsupported
		}),
	}
}
