package muesli

import (
	"reflect"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/zoobzio/muesli/event"
)

// Entry is one key/value pair of a dictionary.
type Entry struct {
	Key   reflect.Value
	Value reflect.Value
}

// collectionOps holds the capabilities found while classifying a type.
// Every function receives the addressable base value (pointers already
// dereferenced). A nil function is a missing capability.
type collectionOps struct {
	add      func(c, item reflect.Value) error
	insert   func(c reflect.Value, i int, item reflect.Value) error
	removeAt func(c reflect.Value, i int) error
	remove   func(c, item reflect.Value) (bool, error)
	clear    func(c reflect.Value) error
	get      func(c reflect.Value, i int) reflect.Value
	set      func(c reflect.Value, i int, item reflect.Value) error
	count    func(c reflect.Value) int
	items    func(c reflect.Value) []reflect.Value
	entries  func(c reflect.Value) []Entry
	addEntry func(c, key, value reflect.Value) error
	readOnly func(c reflect.Value) bool
}

// TypeDescriptor is the cached description of one Go type: its category,
// members and collection capabilities. Descriptors are built by a
// DescriptorFactory and shared by every value of the type.
type TypeDescriptor struct {
	factory  *DescriptorFactory
	typ      reflect.Type
	base     reflect.Type // typ with one pointer removed for indirect descriptors
	indirect bool
	inner    *TypeDescriptor // descriptor of base when indirect

	category   Category
	attrs      []Attribute
	style      event.Style
	enum       *EnumAttr
	textual    bool
	elem       reflect.Type
	key        reflect.Type
	value      reflect.Type
	underlying reflect.Type
	ops        collectionOps

	once    sync.Once
	initErr error
	members []*MemberDescriptor
	byName  map[string]*MemberDescriptor
	aliases map[string]*MemberDescriptor
}

// Type returns the described type.
func (d *TypeDescriptor) Type() reflect.Type { return d.typ }

// Category returns the structural classification of the type.
func (d *TypeDescriptor) Category() Category { return d.category }

// Attributes returns the type-level attributes.
func (d *TypeDescriptor) Attributes() []Attribute { return d.attrs }

// Style returns the preferred presentation of the type.
func (d *TypeDescriptor) Style() event.Style { return d.style }

// Indirect reports whether the type is a pointer sharing its element's
// description.
func (d *TypeDescriptor) Indirect() bool { return d.indirect }

// ElementType returns the item type of arrays, lists, collections and sets.
func (d *TypeDescriptor) ElementType() reflect.Type { return d.elem }

// KeyType returns the key type of dictionaries.
func (d *TypeDescriptor) KeyType() reflect.Type { return d.key }

// ValueType returns the value type of dictionaries.
func (d *TypeDescriptor) ValueType() reflect.Type { return d.value }

// UnderlyingType returns the pointed-to primitive of nullable types.
func (d *TypeDescriptor) UnderlyingType() reflect.Type { return d.underlying }

// Enum returns the registered enum names of the type, if any.
func (d *TypeDescriptor) Enum() *EnumAttr { return d.enum }

// HasAdd reports whether items (or entries) can be added.
func (d *TypeDescriptor) HasAdd() bool { return d.ops.add != nil || d.ops.addEntry != nil }

// HasInsert reports whether items can be inserted at an index.
func (d *TypeDescriptor) HasInsert() bool { return d.ops.insert != nil }

// HasRemoveAt reports whether items can be removed by index.
func (d *TypeDescriptor) HasRemoveAt() bool { return d.ops.removeAt != nil }

// HasIndexerAccessors reports whether items can be read and written by index.
func (d *TypeDescriptor) HasIndexerAccessors() bool { return d.ops.get != nil && d.ops.set != nil }

// Initialize builds the member list. It runs once; later calls return the
// result of the first.
func (d *TypeDescriptor) Initialize() error {
	if d.inner != nil {
		return d.inner.Initialize()
	}
	d.once.Do(func() {
		d.initErr = d.initialize()
	})
	return d.initErr
}

func (d *TypeDescriptor) initialize() error {
	if d.base.Kind() != reflect.Struct {
		return nil
	}
	members, err := d.factory.prepareMembers(d)
	if err != nil {
		return err
	}

	byName := make(map[string]*MemberDescriptor, len(members))
	aliases := make(map[string]*MemberDescriptor)
	for _, m := range members {
		if _, dup := byName[m.name]; dup {
			return newConfigError(ErrConfiguration, d.typ, m.originalName, "duplicate member name "+m.name)
		}
		byName[m.name] = m
	}
	for _, m := range members {
		for _, alias := range m.aliases {
			if _, dup := byName[alias]; dup {
				return newConfigError(ErrConfiguration, d.typ, m.originalName, "alias "+alias+" collides with a member name")
			}
			if _, dup := aliases[alias]; dup {
				return newConfigError(ErrConfiguration, d.typ, m.originalName, "duplicate alias "+alias)
			}
			aliases[alias] = m
		}
	}

	d.members, d.byName, d.aliases = members, byName, aliases
	return nil
}

// Members returns the serializable members in serialization order.
func (d *TypeDescriptor) Members() []*MemberDescriptor {
	if d.inner != nil {
		return d.inner.Members()
	}
	return d.members
}

// TryGetMember finds a member by serialized name or alias. remapped is set
// when name matched an alias.
func (d *TypeDescriptor) TryGetMember(name string) (m *MemberDescriptor, remapped, ok bool) {
	if d.inner != nil {
		return d.inner.TryGetMember(name)
	}
	if m, ok := d.byName[name]; ok {
		return m, false, true
	}
	if m, ok := d.aliases[name]; ok {
		return m, true, true
	}
	return nil, false, false
}

// IsPureCollection reports whether a collection-like type has no members
// besides its items.
func (d *TypeDescriptor) IsPureCollection() bool {
	return d.category.IsCollectionLike() && len(d.Members()) == 0
}

// IsPureDictionary reports whether a dictionary type has no members besides
// its entries.
func (d *TypeDescriptor) IsPureDictionary() bool {
	return d.category == CategoryDictionary && len(d.Members()) == 0
}

// New returns a new, addressable instance of the described type. Indirect
// descriptors return a pointer to a new element.
func (d *TypeDescriptor) New() reflect.Value {
	if d.indirect {
		return reflect.New(d.base)
	}
	v := reflect.New(d.typ).Elem()
	if d.typ.Kind() == reflect.Map {
		v.Set(reflect.MakeMap(d.typ))
	}
	return v
}

// target dereferences v for indirect descriptors.
func (d *TypeDescriptor) target(v reflect.Value) (reflect.Value, error) {
	if v.Kind() == reflect.Interface && !v.IsNil() {
		v = v.Elem()
	}
	if d.indirect || v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}, errors.Wrapf(ErrUnsupportedOperation, "nil %s", d.typ)
		}
		v = v.Elem()
	}
	return v, nil
}

func (d *TypeDescriptor) missing(op string) error {
	return errors.Wrapf(ErrUnsupportedOperation, "%s has no %s capability", d.typ, op)
}

// IsReadOnly reports whether items cannot be added to v.
func (d *TypeDescriptor) IsReadOnly(v reflect.Value) bool {
	c, err := d.target(v)
	if err != nil {
		return true
	}
	if d.ops.readOnly == nil {
		return false
	}
	return d.ops.readOnly(c)
}

// Add appends item to the collection v.
func (d *TypeDescriptor) Add(v, item reflect.Value) error {
	if d.ops.add == nil {
		return errors.Wrapf(ErrNoAddMethod, "%s", d.typ)
	}
	c, err := d.target(v)
	if err != nil {
		return err
	}
	if d.IsReadOnly(v) {
		return errors.Wrapf(ErrReadOnlyTarget, "%s", d.typ)
	}
	if item, err = coerce(item, d.elem); err != nil {
		return err
	}
	return d.ops.add(c, item)
}

// Insert inserts item at index i.
func (d *TypeDescriptor) Insert(v reflect.Value, i int, item reflect.Value) error {
	if d.ops.insert == nil {
		return d.missing("insert")
	}
	c, err := d.target(v)
	if err != nil {
		return err
	}
	if item, err = coerce(item, d.elem); err != nil {
		return err
	}
	return d.ops.insert(c, i, item)
}

// RemoveAt removes the item at index i.
func (d *TypeDescriptor) RemoveAt(v reflect.Value, i int) error {
	if d.ops.removeAt == nil {
		return d.missing("remove-at")
	}
	c, err := d.target(v)
	if err != nil {
		return err
	}
	return d.ops.removeAt(c, i)
}

// Remove removes item (or, for dictionaries, the entry with key item).
func (d *TypeDescriptor) Remove(v, item reflect.Value) (bool, error) {
	if d.ops.remove == nil {
		return false, d.missing("remove")
	}
	c, err := d.target(v)
	if err != nil {
		return false, err
	}
	return d.ops.remove(c, item)
}

// Clear removes every item.
func (d *TypeDescriptor) Clear(v reflect.Value) error {
	if d.ops.clear == nil {
		return d.missing("clear")
	}
	c, err := d.target(v)
	if err != nil {
		return err
	}
	return d.ops.clear(c)
}

// GetIndex returns the item at index i.
func (d *TypeDescriptor) GetIndex(v reflect.Value, i int) (reflect.Value, error) {
	if d.ops.get == nil {
		return reflect.Value{}, d.missing("indexer")
	}
	c, err := d.target(v)
	if err != nil {
		return reflect.Value{}, err
	}
	if i < 0 || i >= d.Count(v) {
		return reflect.Value{}, errors.Wrapf(ErrUnsupportedOperation, "index %d out of range", i)
	}
	return d.ops.get(c, i), nil
}

// SetIndex replaces the item at index i.
func (d *TypeDescriptor) SetIndex(v reflect.Value, i int, item reflect.Value) error {
	if d.ops.set == nil {
		return d.missing("indexer")
	}
	c, err := d.target(v)
	if err != nil {
		return err
	}
	if i < 0 || i >= d.Count(v) {
		return errors.Wrapf(ErrUnsupportedOperation, "index %d out of range", i)
	}
	if item, err = coerce(item, d.elem); err != nil {
		return err
	}
	return d.ops.set(c, i, item)
}

// Count returns the number of items or entries.
func (d *TypeDescriptor) Count(v reflect.Value) int {
	c, err := d.target(v)
	if err != nil {
		return 0
	}
	switch {
	case d.ops.count != nil:
		return d.ops.count(c)
	case d.ops.items != nil:
		return len(d.ops.items(c))
	case d.ops.entries != nil:
		return len(d.ops.entries(c))
	}
	return 0
}

// Items returns the items in iteration order.
func (d *TypeDescriptor) Items(v reflect.Value) ([]reflect.Value, error) {
	if d.ops.items == nil {
		return nil, d.missing("enumeration")
	}
	c, err := d.target(v)
	if err != nil {
		return nil, err
	}
	return d.ops.items(c), nil
}

// Entries returns the dictionary entries in iteration order.
func (d *TypeDescriptor) Entries(v reflect.Value) ([]Entry, error) {
	if d.ops.entries == nil {
		return nil, d.missing("entry enumeration")
	}
	c, err := d.target(v)
	if err != nil {
		return nil, err
	}
	return d.ops.entries(c), nil
}

// AddEntry adds a dictionary entry. Adding a key already present fails with
// ErrDuplicateKey.
func (d *TypeDescriptor) AddEntry(v, key, value reflect.Value) error {
	if d.ops.addEntry == nil {
		return errors.Wrapf(ErrNoAddMethod, "%s", d.typ)
	}
	c, err := d.target(v)
	if err != nil {
		return err
	}
	if d.IsReadOnly(v) {
		return errors.Wrapf(ErrReadOnlyTarget, "%s", d.typ)
	}
	if key, err = coerce(key, d.key); err != nil {
		return err
	}
	if value, err = coerce(value, d.value); err != nil {
		return err
	}
	return d.ops.addEntry(c, key, value)
}
