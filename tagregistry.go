package muesli

import (
	"reflect"
	"strings"
	"sync"
	"time"
)

// Core tags of the YAML schema, plus the local tags naming sized Go numbers.
const (
	TagNull      = "!!null"
	TagBool      = "!!bool"
	TagInt       = "!!int"
	TagFloat     = "!!float"
	TagString    = "!!str"
	TagTimestamp = "!!timestamp"
	TagBinary    = "!!binary"
	TagSequence  = "!!seq"
	TagMapping   = "!!map"
)

var (
	typeAnySlice = reflect.TypeFor[[]any]()
	typeAnyMap   = reflect.TypeFor[map[any]any]()
	typeTime     = reflect.TypeFor[time.Time]()
	typeDuration = reflect.TypeFor[time.Duration]()
	typeBytes    = reflect.TypeFor[[]byte]()
)

type tagEntry struct {
	typ   reflect.Type
	alias bool
}

// TagRegistry maps document tags to Go types and back. Tags of alias
// registrations resolve on read and mark the pass as remapped, but are never
// written.
//
// TagRegistry is safe for concurrent use.
type TagRegistry struct {
	mu         sync.RWMutex
	byTag      map[string]tagEntry
	byType     map[reflect.Type]string
	shortNames bool
}

// NewTagRegistry returns a registry holding the core and Go number tags.
// With shortNames, tags generated for named types omit the package path.
func NewTagRegistry(shortNames bool) *TagRegistry {
	r := &TagRegistry{
		byTag:      make(map[string]tagEntry),
		byType:     make(map[reflect.Type]string),
		shortNames: shortNames,
	}
	for tag, t := range map[string]reflect.Type{
		TagBool:      reflect.TypeFor[bool](),
		TagInt:       reflect.TypeFor[int](),
		TagFloat:     reflect.TypeFor[float64](),
		TagString:    reflect.TypeFor[string](),
		TagTimestamp: typeTime,
		TagBinary:    typeBytes,
		TagSequence:  typeAnySlice,
		TagMapping:   typeAnyMap,
		"!int8":      reflect.TypeFor[int8](),
		"!int16":     reflect.TypeFor[int16](),
		"!int32":     reflect.TypeFor[int32](),
		"!int64":     reflect.TypeFor[int64](),
		"!uint":      reflect.TypeFor[uint](),
		"!uint8":     reflect.TypeFor[uint8](),
		"!uint16":    reflect.TypeFor[uint16](),
		"!uint32":    reflect.TypeFor[uint32](),
		"!uint64":    reflect.TypeFor[uint64](),
		"!float32":   reflect.TypeFor[float32](),
		"!duration":  typeDuration,
	} {
		r.Register(tag, t)
	}
	return r
}

var (
	defaultTags      = NewTagRegistry(false)
	defaultShortTags = NewTagRegistry(true)
)

// DefaultTags returns the process-wide registry used when none is configured.
// Tags generated while writing land there, so documents written by one
// Serializer read back through another.
func DefaultTags(shortNames bool) *TagRegistry {
	if shortNames {
		return defaultShortTags
	}
	return defaultTags
}

// Register maps tag to t. The tag becomes the one written for t.
func (r *TagRegistry) Register(tag string, t reflect.Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byTag[tag] = tagEntry{typ: t}
	r.byType[t] = tag
}

// RegisterAlias maps an additional tag to t. Reading it flags a remap.
func (r *TagRegistry) RegisterAlias(tag string, t reflect.Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byTag[tag] = tagEntry{typ: t, alias: true}
}

// RegisterType maps tag to T. An empty tag registers the generated name.
func RegisterType[T any](r *TagRegistry, tag string) {
	prescan[T]()
	t := reflect.TypeFor[T]()
	if tag == "" {
		tag = r.generate(t)
	}
	r.Register(tag, t)
}

// TypeFor resolves a tag. remapped is set for alias tags. A tag carrying the
// reference mark resolves to a pointer to the type of its unmarked form.
func (r *TagRegistry) TypeFor(tag string) (t reflect.Type, remapped, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if entry, ok := r.byTag[tag]; ok {
		return entry.typ, entry.alias, true
	}
	base, ref := splitPointerTag(tag)
	if !ref {
		return nil, false, false
	}
	entry, ok := r.byTag[base]
	if !ok {
		return nil, false, false
	}
	return reflect.PointerTo(entry.typ), entry.alias, true
}

// TagFor returns the tag written for t, generating and registering one for
// named types seen for the first time. Pointers share the tag of their
// element. Unnamed composite types have no tag.
func (r *TagRegistry) TagFor(t reflect.Type) string {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	r.mu.RLock()
	tag, ok := r.byType[t]
	r.mu.RUnlock()
	if ok {
		return tag
	}

	if t.Name() == "" {
		return ""
	}
	tag = r.generate(t)

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byType[t]; ok {
		return existing
	}
	if _, taken := r.byTag[tag]; !taken {
		r.byTag[tag] = tagEntry{typ: t}
	}
	r.byType[t] = tag
	return tag
}

func (r *TagRegistry) generate(t reflect.Type) string {
	if r.shortNames || t.PkgPath() == "" {
		return "!" + t.Name()
	}
	return "!" + t.PkgPath() + "." + t.Name()
}

// registerAttributes applies TagAttr metadata of t, once per type.
func (r *TagRegistry) registerAttributes(t reflect.Type, attrs []Attribute) {
	attr, ok := AttributeOf[TagAttr](attrs)
	if !ok {
		return
	}
	r.mu.RLock()
	current := r.byType[t]
	r.mu.RUnlock()
	if current == attr.Tag {
		return
	}
	r.Register(attr.Tag, t)
	for _, alias := range attr.Aliases {
		r.RegisterAlias(alias, t)
	}
}

// pointerMark replaces the leading "!" of a local tag written for a pointer
// whose element type would also fit the slot.
const pointerMark = "!*"

// pointerTag marks a local tag as naming a pointer to its type. Core and
// global tags are returned unchanged.
func pointerTag(tag string) string {
	if !strings.HasPrefix(tag, "!") || strings.HasPrefix(tag, "!!") || strings.HasPrefix(tag, pointerMark) {
		return tag
	}
	return pointerMark + tag[1:]
}

// splitPointerTag undoes pointerTag.
func splitPointerTag(tag string) (string, bool) {
	rest, ok := strings.CutPrefix(tag, pointerMark)
	if !ok || rest == "" {
		return tag, false
	}
	return "!" + rest, true
}

// byReference reports whether a pointer written into an interface slot must
// say so, because its element type implements the interface as well.
func byReference(runtime, static reflect.Type) bool {
	return runtime.Kind() == reflect.Pointer && static != nil &&
		static.Kind() == reflect.Interface && runtime.Elem().Implements(static)
}

// resolveTagged picks the concrete type read for a tag naming t when the
// expected type is expected. Interfaces take t when it implements them and
// *t otherwise; concrete expectations accept t itself, a pointer to t, the
// element of a pointer t, or any primitive when both sides are primitive.
func resolveTagged(t, expected reflect.Type) (reflect.Type, bool) {
	if expected == nil || expected == t {
		return t, true
	}
	if expected.Kind() == reflect.Interface {
		if t.Implements(expected) {
			return t, true
		}
		if ptr := reflect.PointerTo(t); ptr.Implements(expected) {
			return ptr, true
		}
		return nil, false
	}
	if expected.Kind() == reflect.Pointer && expected.Elem() == t {
		return expected, true
	}
	if t.Kind() == reflect.Pointer && t.Elem() == expected {
		return expected, true
	}
	if isScalarKind(t) && isScalarKind(expected) {
		return expected, true
	}
	return nil, false
}

func isScalarKind(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	}
	return t == typeTime
}
