package muesli

import (
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/samber/lo"
	"github.com/zoobzio/muesli/event"
	"github.com/zoobzio/sentinel"
)

func init() {
	sentinel.Tag(tagKey)
}

// tagKey is the struct tag read for member metadata: `yaml:"name,options"`.
const tagKey = "yaml"

// Attribute is a piece of metadata attached to a type or a member.
// Use AttributeOf to find an attribute of a given type in a list.
type Attribute any

// MemberAttr describes how a member is serialized. It is parsed from the
// yaml struct tag or registered programmatically with RegisterMember.
type MemberAttr struct {
	Name       string   // Serialized name; empty keeps the naming convention's choice
	Aliases    []string // Alternative names accepted on read
	Mode       MemberMode
	Order      int
	HasOrder   bool
	Mask       uint   // Zero means the default mask (1)
	Default    string // Default value as document text
	HasDefault bool
	Style      event.Style
	OmitEmpty  bool
	Ignore     bool
}

// merge overlays the set fields of o onto a copy of m.
func (m MemberAttr) merge(o MemberAttr) MemberAttr {
	if o.Name != "" {
		m.Name = o.Name
	}
	if len(o.Aliases) > 0 {
		m.Aliases = append(append([]string{}, m.Aliases...), o.Aliases...)
	}
	if o.Mode != ModeDefault {
		m.Mode = o.Mode
	}
	if o.HasOrder {
		m.Order, m.HasOrder = o.Order, true
	}
	if o.Mask != 0 {
		m.Mask = o.Mask
	}
	if o.HasDefault {
		m.Default, m.HasDefault = o.Default, true
	}
	if o.Style != event.StyleAny {
		m.Style = o.Style
	}
	m.OmitEmpty = m.OmitEmpty || o.OmitEmpty
	m.Ignore = m.Ignore || o.Ignore
	return m
}

// DefaultValue declares the default value of a member as a Go value.
type DefaultValue struct {
	Value any
}

// StyleAttr sets the preferred presentation of a type or member.
type StyleAttr struct {
	Style event.Style
}

// DataContract marks a type whose members are opt-in: only members carrying
// an explicit annotation are serialized.
type DataContract struct{}

// Unsupported flags a type for diagnostics. It is serialized like an object.
type Unsupported struct {
	Reason string
}

// TagAttr names the tag written for a type. Aliases are accepted on read and
// mark the pass as remapped.
type TagAttr struct {
	Tag     string
	Aliases []string
}

// VirtualMember is a member backed by accessor functions instead of a field.
type VirtualMember struct {
	Name       string
	Type       reflect.Type
	Get        func(parent reflect.Value) reflect.Value
	Set        func(parent, value reflect.Value) // nil for read-only members
	Attributes []Attribute
}

// AttributeOf returns the first attribute of type A in attrs.
func AttributeOf[A any](attrs []Attribute) (A, bool) {
	for _, attr := range attrs {
		if a, ok := attr.(A); ok {
			return a, true
		}
	}
	var zero A
	return zero, false
}

type memberKey struct {
	typ  reflect.Type
	name string
}

// AttributeRegistry supplies per-type and per-member metadata. Struct tags
// are read through sentinel; programmatic registrations and shadow types
// take precedence over them.
//
// AttributeRegistry is safe for concurrent use. Register metadata before the
// first descriptor of the affected type is built: descriptors are cached.
type AttributeRegistry struct {
	mu       sync.RWMutex
	types    map[reflect.Type][]Attribute
	members  map[memberKey][]Attribute
	shadows  map[reflect.Type]reflect.Type
	virtuals map[reflect.Type][]VirtualMember
	fields   map[reflect.Type]sentinel.Metadata
}

// NewAttributeRegistry returns an empty registry.
func NewAttributeRegistry() *AttributeRegistry {
	return &AttributeRegistry{
		types:    make(map[reflect.Type][]Attribute),
		members:  make(map[memberKey][]Attribute),
		shadows:  make(map[reflect.Type]reflect.Type),
		virtuals: make(map[reflect.Type][]VirtualMember),
		fields:   make(map[reflect.Type]sentinel.Metadata),
	}
}

var defaultAttributes = NewAttributeRegistry()

// DefaultAttributes returns the process-wide registry used when none is configured.
func DefaultAttributes() *AttributeRegistry {
	return defaultAttributes
}

// Register attaches type-level attributes to t.
func (r *AttributeRegistry) Register(t reflect.Type, attrs ...Attribute) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[t] = append(r.types[t], attrs...)
}

// RegisterMember attaches attributes to the member of t with the given Go name.
func (r *AttributeRegistry) RegisterMember(t reflect.Type, member string, attrs ...Attribute) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := memberKey{typ: t, name: member}
	r.members[key] = append(r.members[key], attrs...)
}

// RegisterShadow uses the struct tags of shadow's fields for the same-named
// fields of t. It lets callers annotate types they cannot edit.
func (r *AttributeRegistry) RegisterShadow(t, shadow reflect.Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shadows[t] = shadow
}

// RegisterVirtual adds an accessor-backed member to t.
func (r *AttributeRegistry) RegisterVirtual(t reflect.Type, vm VirtualMember) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.virtuals[t] = append(r.virtuals[t], vm)
}

// tagged returns the types carrying a TagAttr, with their attributes.
func (r *AttributeRegistry) tagged() map[reflect.Type][]Attribute {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.PickBy(r.types, func(_ reflect.Type, attrs []Attribute) bool {
		_, ok := AttributeOf[TagAttr](attrs)
		return ok
	})
}

// Attributes returns the type-level attributes of t.
func (r *AttributeRegistry) Attributes(t reflect.Type) []Attribute {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Attribute(nil), r.types[t]...)
}

// MemberAttributes returns the attributes of the member of t with the given
// Go name: the parsed struct tag (from the shadow type when one is
// registered) followed by programmatic registrations.
func (r *AttributeRegistry) MemberAttributes(t reflect.Type, member string) ([]Attribute, error) {
	var attrs []Attribute

	if raw, ok := r.memberTag(t, member); ok {
		attr, err := parseMemberTag(raw)
		if err != nil {
			return nil, newConfigError(ErrConfiguration, t, member, err.Error())
		}
		attrs = append(attrs, attr)
	}

	r.mu.RLock()
	attrs = append(attrs, r.members[memberKey{typ: t, name: member}]...)
	r.mu.RUnlock()

	return attrs, nil
}

// Virtuals returns the accessor-backed members registered for t.
func (r *AttributeRegistry) Virtuals(t reflect.Type) []VirtualMember {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]VirtualMember(nil), r.virtuals[t]...)
}

// memberTag returns the raw yaml tag of a field, preferring the shadow type.
func (r *AttributeRegistry) memberTag(t reflect.Type, member string) (string, bool) {
	r.mu.RLock()
	shadow, hasShadow := r.shadows[t]
	r.mu.RUnlock()

	if hasShadow {
		for _, f := range r.scan(shadow).Fields {
			if f.Name == member {
				tag, ok := f.Tags[tagKey]
				return tag, ok
			}
		}
	}
	if t.Kind() != reflect.Struct {
		return "", false
	}
	for _, f := range r.scan(t).Fields {
		if f.Name == member {
			tag, ok := f.Tags[tagKey]
			return tag, ok
		}
	}
	return "", false
}

// scan returns the field metadata of a struct type, caching the result.
// Exported fields come from the sentinel cache when a generic entry point
// already scanned t; unexported fields are read here so misplaced
// annotations can be reported.
func (r *AttributeRegistry) scan(t reflect.Type) sentinel.Metadata {
	r.mu.RLock()
	meta, ok := r.fields[t]
	r.mu.RUnlock()
	if ok {
		return meta
	}

	if t.Kind() != reflect.Struct {
		return sentinel.Metadata{TypeName: t.Name(), PackageName: t.PkgPath()}
	}
	meta, ok = lookupScanned(t)
	if !ok {
		meta = sentinel.Metadata{
			TypeName:    t.Name(),
			PackageName: t.PkgPath(),
			Fields:      tagFields(t, reflect.StructField.IsExported),
		}
	}
	unexported := tagFields(t, func(sf reflect.StructField) bool { return !sf.IsExported() })
	meta.Fields = append(slices.Clip(meta.Fields), unexported...)

	r.mu.Lock()
	r.fields[t] = meta
	r.mu.Unlock()
	return meta
}

var prescanned sync.Map // reflect.Type -> struct{}

// prescan hands T to sentinel once, which caches the metadata of T and of
// the struct types it references within the same module.
func prescan[T any]() {
	if _, done := prescanned.LoadOrStore(reflect.TypeFor[T](), struct{}{}); done {
		return
	}
	_, _ = sentinel.TryScan[T]()
}

// lookupScanned returns the sentinel metadata of t. Sentinel keys its cache by
// bare type name, so an entry is used only when it describes t's own fields.
func lookupScanned(t reflect.Type) (sentinel.Metadata, bool) {
	if t.Name() == "" {
		return sentinel.Metadata{}, false
	}
	meta, ok := sentinel.Lookup(t.Name())
	if !ok || meta.PackageName != t.PkgPath() {
		return sentinel.Metadata{}, false
	}

	i := 0
	for j := 0; j < t.NumField(); j++ {
		sf := t.Field(j)
		if !sf.IsExported() {
			continue
		}
		if i == len(meta.Fields) {
			return sentinel.Metadata{}, false
		}
		f := meta.Fields[i]
		if f.Name != sf.Name || f.ReflectType != sf.Type || f.Tags[tagKey] != sf.Tag.Get(tagKey) {
			return sentinel.Metadata{}, false
		}
		i++
	}
	return meta, i == len(meta.Fields)
}

// tagFields reads the yaml tag of the fields of rt accepted by keep.
func tagFields(rt reflect.Type, keep func(reflect.StructField) bool) []sentinel.FieldMetadata {
	var fields []sentinel.FieldMetadata
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if !keep(sf) {
			continue
		}
		fm := sentinel.FieldMetadata{
			Name:        sf.Name,
			Type:        sf.Type.String(),
			ReflectType: sf.Type,
			Index:       sf.Index,
			Tags:        make(map[string]string),
		}
		if tag, ok := sf.Tag.Lookup(tagKey); ok {
			fm.Tags[tagKey] = tag
		}
		fields = append(fields, fm)
	}
	return fields
}

// enumInteger is the set of kinds an enum may be declared with.
type enumInteger interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 | ~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// EnumAttr maps the values of an integer enum type to names and aliases.
type EnumAttr struct {
	names  map[int64]string
	lookup map[string]enumEntry
}

type enumEntry struct {
	value int64
	alias bool
}

// Name returns the canonical name of the enum value v.
func (e *EnumAttr) Name(v int64) (string, bool) {
	name, ok := e.names[v]
	return name, ok
}

// Parse resolves text (case-insensitively) to an enum value. remapped is set
// when text matched an alias rather than a canonical name.
func (e *EnumAttr) Parse(text string) (value int64, remapped, ok bool) {
	entry, ok := e.lookup[strings.ToLower(text)]
	return entry.value, entry.alias, ok
}

// RegisterEnum registers the names of the values of E, plus optional aliases
// accepted on read.
func RegisterEnum[E enumInteger](r *AttributeRegistry, names map[E]string, aliases map[string]E) {
	attr := &EnumAttr{
		names:  make(map[int64]string, len(names)),
		lookup: make(map[string]enumEntry, len(names)+len(aliases)),
	}
	for v, name := range names {
		attr.names[int64(v)] = name
		attr.lookup[strings.ToLower(name)] = enumEntry{value: int64(v)}
	}
	for alias, v := range aliases {
		key := strings.ToLower(alias)
		if _, taken := attr.lookup[key]; taken {
			continue
		}
		attr.lookup[key] = enumEntry{value: int64(v), alias: true}
	}
	r.Register(reflect.TypeFor[E](), attr)
}
