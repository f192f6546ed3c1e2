package muesli

import (
	"errors"
	"fmt"
	"iter"
	"reflect"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type plainRecord struct {
	Name  string `yaml:"name"`
	Count int    `yaml:"count"`
}

type bag struct {
	items []string
}

func (b *bag) All() iter.Seq[string] { return slices.Values(b.items) }
func (b *bag) Add(s string)          { b.items = append(b.items, s) }
func (b *bag) Len() int              { return len(b.items) }
func (b *bag) Clear()                { b.items = nil }

type tagSet struct {
	m map[string]bool
}

func (s *tagSet) All() iter.Seq[string] {
	return func(yield func(string) bool) {
		for k := range s.m {
			if !yield(k) {
				return
			}
		}
	}
}
func (s *tagSet) Contains(v string) bool { return s.m[v] }
func (s *tagSet) Add(v string) bool {
	if s.m == nil {
		s.m = make(map[string]bool)
	}
	added := !s.m[v]
	s.m[v] = true
	return added
}

type vector struct {
	xs []float64
}

func (v *vector) At(i int) float64        { return v.xs[i] }
func (v *vector) Set(i int, x float64)    { v.xs[i] = x }
func (v *vector) Len() int                { return len(v.xs) }
func (v *vector) Add(x float64)           { v.xs = append(v.xs, x) }
func (v *vector) Insert(i int, x float64) { v.xs = slices.Insert(v.xs, i, x) }
func (v *vector) RemoveAt(i int)          { v.xs = slices.Delete(v.xs, i, i+1) }
func (v *vector) IsReadOnly() bool        { return false }

type registry struct {
	entries map[string]int
}

func (r *registry) All() iter.Seq2[string, int] {
	return func(yield func(string, int) bool) {
		for k, v := range r.entries {
			if !yield(k, v) {
				return
			}
		}
	}
}
func (r *registry) Add(k string, v int) error {
	if r.entries == nil {
		r.entries = make(map[string]int)
	}
	r.entries[k] = v
	return nil
}

type orderedRecord struct {
	Last   string `yaml:"last,order=9"`
	Plain  string `yaml:"plain"`
	First  string `yaml:"first,order=-1"`
	Middle string `yaml:"middle,order=3"`
	Skip   string `yaml:"-"`
	hidden string
}

type innerPart struct {
	Host string `yaml:"host"`
}

type embeddingRecord struct {
	innerPart
	Port int `yaml:"port"`
}

type duplicateNames struct {
	A string `yaml:"x"`
	B string `yaml:"x"`
}

type aliasCollision struct {
	A string `yaml:"a"`
	B string `yaml:"b,alias=a"`
}

type annotatedUnexported struct {
	Name    string `yaml:"name"`
	private string `yaml:"private"`
}

type badBinary struct {
	Names []string `yaml:"names,mode=binary"`
}

type goodBinary struct {
	Samples []float32 `yaml:"samples,mode=binary"`
}

type contractRecord struct {
	Kept    string `yaml:"kept"`
	Dropped string
}

type predicateRecord struct {
	Name  string `yaml:"name"`
	Notes string `yaml:"notes"`
}

func (p predicateRecord) ShouldSerializeNotes() bool { return p.Name != "" }

type defaultsRecord struct {
	Timeout time.Duration `yaml:"timeout,default=30s"`
	Retries int           `yaml:"retries,default=3"`
	Label   *string       `yaml:"label,default=none"`
}

type ownedRecord struct {
	Name  string       `yaml:"name"`
	Owner *plainRecord `yaml:"owner"`
	Tags  []string     `yaml:"tags"`
}

// memberLayout flattens what a build decides about each member.
func memberLayout(d *TypeDescriptor) []string {
	var out []string
	for _, m := range d.Members() {
		order, ok := m.Order()
		out = append(out, fmt.Sprintf("%s/%s %s mode=%v order=%d,%v aliases=%v",
			m.Name(), m.OriginalName(), m.DeclaredType(), m.Mode(), order, ok, m.AlternativeNames()))
	}
	return out
}

func TestDescriptorFactory_Categories(t *testing.T) {
	f := NewDescriptorFactory(NewAttributeRegistry(), DefaultNaming, nil)

	tests := []struct {
		typ  reflect.Type
		want Category
	}{
		{reflect.TypeFor[int](), CategoryPrimitive},
		{reflect.TypeFor[string](), CategoryPrimitive},
		{reflect.TypeFor[float32](), CategoryPrimitive},
		{reflect.TypeFor[time.Time](), CategoryPrimitive},
		{reflect.TypeFor[time.Duration](), CategoryPrimitive},
		{reflect.TypeFor[[]byte](), CategoryPrimitive},
		{reflect.TypeFor[*int](), CategoryNullable},
		{reflect.TypeFor[*time.Time](), CategoryNullable},
		{reflect.TypeFor[[4]int](), CategoryArray},
		{reflect.TypeFor[[]string](), CategoryList},
		{reflect.TypeFor[map[string]int](), CategoryDictionary},
		{reflect.TypeFor[map[int]struct{}](), CategorySet},
		{reflect.TypeFor[plainRecord](), CategoryObject},
		{reflect.TypeFor[*plainRecord](), CategoryObject},
		{reflect.TypeFor[any](), CategoryObject},
		{reflect.TypeFor[bag](), CategoryCollection},
		{reflect.TypeFor[tagSet](), CategorySet},
		{reflect.TypeFor[vector](), CategoryList},
		{reflect.TypeFor[registry](), CategoryDictionary},
	}

	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			d, err := f.Find(tt.typ)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Category())
		})
	}
}

func TestDescriptorFactory_UnsupportedShapes(t *testing.T) {
	f := NewDescriptorFactory(NewAttributeRegistry(), DefaultNaming, nil)

	for _, typ := range []reflect.Type{
		reflect.TypeFor[chan int](),
		reflect.TypeFor[func()](),
		reflect.TypeFor[complex128](),
		reflect.TypeFor[**plainRecord](),
	} {
		t.Run(typ.String(), func(t *testing.T) {
			_, err := f.Find(typ)
			if !errors.Is(err, ErrUnsupportedShape) {
				t.Fatalf("Find(%s) error = %v, want ErrUnsupportedShape", typ, err)
			}
			var cfg *ConfigError
			if !errors.As(err, &cfg) {
				t.Fatalf("Find(%s) error %T is not a *ConfigError", typ, err)
			}
		})
	}
}

func TestDescriptorFactory_Pointer(t *testing.T) {
	f := NewDescriptorFactory(NewAttributeRegistry(), DefaultNaming, nil)

	d, err := f.Find(reflect.TypeFor[*plainRecord]())
	require.NoError(t, err)
	assert.True(t, d.Indirect())
	assert.Len(t, d.Members(), 2)

	v := d.New()
	assert.Equal(t, reflect.Pointer, v.Kind())
	assert.False(t, v.IsNil())

	n, err := f.Find(reflect.TypeFor[*int]())
	require.NoError(t, err)
	assert.Equal(t, reflect.TypeFor[int](), n.UnderlyingType())
}

func TestDescriptorFactory_ConcurrentFind(t *testing.T) {
	f := NewDescriptorFactory(NewAttributeRegistry(), DefaultNaming, nil)
	typ := reflect.TypeFor[orderedRecord]()

	const workers = 32
	got := make([]*TypeDescriptor, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := f.Find(typ)
			if err != nil {
				t.Errorf("Find() error: %v", err)
				return
			}
			got[i] = d
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		if got[i] != got[0] {
			t.Fatalf("Find() returned different descriptors for the same type")
		}
	}
	if stats := f.Stats(); stats.Builds != 1 {
		t.Errorf("Stats().Builds = %d, want 1", stats.Builds)
	}
}

func TestDescriptorFactory_ConcurrentFindMixedTypes(t *testing.T) {
	f := NewDescriptorFactory(NewAttributeRegistry(), DefaultNaming, nil)
	types := []reflect.Type{
		reflect.TypeFor[plainRecord](),
		reflect.TypeFor[*plainRecord](),
		reflect.TypeFor[orderedRecord](),
		reflect.TypeFor[embeddingRecord](),
		reflect.TypeFor[ownedRecord](),
	}

	const rounds = 16
	got := make([][]*TypeDescriptor, rounds)
	var wg sync.WaitGroup
	for r := range rounds {
		got[r] = make([]*TypeDescriptor, len(types))
		for i, typ := range types {
			wg.Add(1)
			go func() {
				defer wg.Done()
				d, err := f.Find(typ)
				if err != nil {
					t.Errorf("Find(%s) error: %v", typ, err)
					return
				}
				if err := d.Initialize(); err != nil {
					t.Errorf("Initialize(%s) error: %v", typ, err)
				}
				got[r][i] = d
			}()
		}
	}
	wg.Wait()

	for i, typ := range types {
		for r := 1; r < rounds; r++ {
			assert.Same(t, got[0][i], got[r][i], "descriptor of %s", typ)
		}
	}
}

func TestDescriptor_InitializeIsIdempotent(t *testing.T) {
	f := NewDescriptorFactory(NewAttributeRegistry(), DefaultNaming, nil)
	d, err := f.Find(reflect.TypeFor[orderedRecord]())
	require.NoError(t, err)

	first := d.Members()
	require.NoError(t, d.Initialize())
	require.NoError(t, d.Initialize())
	second := d.Members()

	require.Len(t, second, len(first))
	for i := range first {
		assert.Same(t, first[i], second[i])
	}
}

func TestDescriptor_InitializeRepeatsItsError(t *testing.T) {
	f := NewDescriptorFactory(NewAttributeRegistry(), DefaultNaming, nil)
	d, err := f.build(reflect.TypeFor[duplicateNames]())
	require.NoError(t, err, "members are prepared on Initialize")

	first := d.Initialize()
	require.True(t, errors.Is(first, ErrConfiguration), "got %v", first)
	assert.Equal(t, first, d.Initialize())
	assert.Empty(t, d.Members())
}

func TestDescriptor_BuildIsDeterministic(t *testing.T) {
	types := []reflect.Type{
		reflect.TypeFor[orderedRecord](),
		reflect.TypeFor[embeddingRecord](),
		reflect.TypeFor[defaultsRecord](),
		reflect.TypeFor[ownedRecord](),
		reflect.TypeFor[*bag](),
		reflect.TypeFor[*registry](),
		reflect.TypeFor[map[string][]int](),
	}

	for _, typ := range types {
		t.Run(typ.String(), func(t *testing.T) {
			a, err := NewDescriptorFactory(NewAttributeRegistry(), DefaultNaming, nil).Find(typ)
			require.NoError(t, err)
			b, err := NewDescriptorFactory(NewAttributeRegistry(), DefaultNaming, nil).Find(typ)
			require.NoError(t, err)

			assert.NotSame(t, a, b)
			assert.Equal(t, a.Category(), b.Category())
			assert.Equal(t, a.Indirect(), b.Indirect())
			assert.Equal(t, a.ElementType(), b.ElementType())
			assert.Equal(t, a.KeyType(), b.KeyType())
			assert.Equal(t, memberLayout(a), memberLayout(b))
		})
	}
}

func TestDescriptor_MemberOrder(t *testing.T) {
	f := NewDescriptorFactory(NewAttributeRegistry(), DefaultNaming, nil)

	d, err := f.Find(reflect.TypeFor[orderedRecord]())
	require.NoError(t, err)

	var names []string
	for _, m := range d.Members() {
		names = append(names, m.Name())
	}
	assert.Equal(t, []string{"first", "middle", "last", "plain"}, names)
}

func TestDescriptor_EmbeddedFlattening(t *testing.T) {
	f := NewDescriptorFactory(NewAttributeRegistry(), DefaultNaming, nil)

	d, err := f.Find(reflect.TypeFor[embeddingRecord]())
	require.NoError(t, err)

	m, remapped, ok := d.TryGetMember("host")
	require.True(t, ok)
	assert.False(t, remapped)

	v := reflect.ValueOf(embeddingRecord{innerPart: innerPart{Host: "db"}, Port: 5432})
	assert.Equal(t, "db", m.Get(v).String())
}

func TestDescriptor_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		typ  reflect.Type
	}{
		{"duplicate names", reflect.TypeFor[duplicateNames]()},
		{"alias collides with name", reflect.TypeFor[aliasCollision]()},
		{"annotated unexported field", reflect.TypeFor[annotatedUnexported]()},
		{"binary mode on strings", reflect.TypeFor[badBinary]()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewDescriptorFactory(NewAttributeRegistry(), DefaultNaming, nil)
			_, err := f.Find(tt.typ)
			if !errors.Is(err, ErrConfiguration) {
				t.Fatalf("Find() error = %v, want ErrConfiguration", err)
			}
			if !isFatal(err) {
				t.Error("configuration errors must be fatal")
			}
		})
	}
}

func TestDescriptor_AnnotatedUnexportedField(t *testing.T) {
	f := NewDescriptorFactory(NewAttributeRegistry(), DefaultNaming, nil)
	_, err := f.Find(reflect.TypeFor[annotatedUnexported]())

	var ce *ConfigError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, "private", ce.Member)
	assert.Contains(t, ce.Reason, "export it or drop the tag")

	type quiet struct {
		Name    string `yaml:"name"`
		private string
	}
	d, err := f.Find(reflect.TypeFor[quiet]())
	require.NoError(t, err, "unannotated unexported fields are skipped")
	assert.Len(t, d.Members(), 1)
}

func TestDescriptor_BinaryMode(t *testing.T) {
	f := NewDescriptorFactory(NewAttributeRegistry(), DefaultNaming, nil)

	d, err := f.Find(reflect.TypeFor[goodBinary]())
	require.NoError(t, err)
	require.Len(t, d.Members(), 1)
	assert.Equal(t, ModeBinary, d.Members()[0].Mode())
}

func TestDescriptor_DataContract(t *testing.T) {
	attrs := NewAttributeRegistry()
	attrs.Register(reflect.TypeFor[contractRecord](), DataContract{})
	f := NewDescriptorFactory(attrs, DefaultNaming, nil)

	d, err := f.Find(reflect.TypeFor[contractRecord]())
	require.NoError(t, err)
	require.Len(t, d.Members(), 1)
	assert.Equal(t, "kept", d.Members()[0].Name())
}

func TestDescriptor_NamingConvention(t *testing.T) {
	type untagged struct {
		FirstName string
		HTTPPort  int
	}
	f := NewDescriptorFactory(NewAttributeRegistry(), FlatNaming, nil)

	d, err := f.Find(reflect.TypeFor[untagged]())
	require.NoError(t, err)
	_, _, ok := d.TryGetMember("first_name")
	assert.True(t, ok)
	_, _, ok = d.TryGetMember("FirstName")
	assert.False(t, ok)
}

func TestDescriptor_MemberPolicy(t *testing.T) {
	policy := func(_ *TypeDescriptor, m *MemberDescriptor) (bool, error) {
		if m.OriginalName() == "Count" {
			return false, nil
		}
		m.SetName("NAME")
		return true, nil
	}
	f := NewDescriptorFactory(NewAttributeRegistry(), DefaultNaming, policy)

	d, err := f.Find(reflect.TypeFor[plainRecord]())
	require.NoError(t, err)
	require.Len(t, d.Members(), 1)
	assert.Equal(t, "NAME", d.Members()[0].Name())
}

func TestMember_ShouldSerializePredicate(t *testing.T) {
	f := NewDescriptorFactory(NewAttributeRegistry(), DefaultNaming, nil)
	d, err := f.Find(reflect.TypeFor[predicateRecord]())
	require.NoError(t, err)

	notes, _, ok := d.TryGetMember("notes")
	require.True(t, ok)

	assert.False(t, notes.ShouldSerialize(reflect.ValueOf(predicateRecord{Notes: "x"}), false))
	assert.True(t, notes.ShouldSerialize(reflect.ValueOf(predicateRecord{Name: "a", Notes: "x"}), false))
	// the predicate wins over EmitDefaultValues
	assert.False(t, notes.ShouldSerialize(reflect.ValueOf(predicateRecord{Notes: "x"}), true))
}

func TestMember_NilReferenceWithoutDefault(t *testing.T) {
	f := NewDescriptorFactory(NewAttributeRegistry(), DefaultNaming, nil)
	d, err := f.Find(reflect.TypeFor[ownedRecord]())
	require.NoError(t, err)

	owner, _, ok := d.TryGetMember("owner")
	require.True(t, ok)
	_, hasDefault := owner.DefaultValue()
	require.False(t, hasDefault)

	empty := reflect.ValueOf(ownedRecord{Name: "a"})
	assert.False(t, owner.ShouldSerialize(empty, false), "nil is the implicit default of a reference")
	assert.True(t, owner.ShouldSerialize(empty, true), "written as null when defaults are emitted")

	owned := reflect.ValueOf(ownedRecord{Owner: &plainRecord{}})
	assert.True(t, owner.ShouldSerialize(owned, false))

	tags, _, ok := d.TryGetMember("tags")
	require.True(t, ok)
	assert.False(t, tags.ShouldSerialize(empty, false))
	assert.True(t, tags.ShouldSerialize(reflect.ValueOf(ownedRecord{Tags: []string{}}), false), "empty but not nil")
}

func TestMember_TextDefaults(t *testing.T) {
	f := NewDescriptorFactory(NewAttributeRegistry(), DefaultNaming, nil)
	d, err := f.Find(reflect.TypeFor[defaultsRecord]())
	require.NoError(t, err)

	timeout, _, _ := d.TryGetMember("timeout")
	def, ok := timeout.DefaultValue()
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, def.Interface())

	label, _, _ := d.TryGetMember("label")
	def, ok = label.DefaultValue()
	require.True(t, ok)
	assert.Equal(t, "none", *def.Interface().(*string))

	atDefault := reflect.ValueOf(defaultsRecord{Timeout: 30 * time.Second, Retries: 3})
	assert.False(t, timeout.ShouldSerialize(atDefault, false))
	assert.True(t, timeout.ShouldSerialize(atDefault, true))

	changed := reflect.ValueOf(defaultsRecord{Timeout: time.Minute})
	assert.True(t, timeout.ShouldSerialize(changed, false))
}

func TestDescriptor_CollectionOps(t *testing.T) {
	f := NewDescriptorFactory(NewAttributeRegistry(), DefaultNaming, nil)

	d, err := f.Find(reflect.TypeFor[[]int]())
	require.NoError(t, err)

	s := reflect.New(d.Type()).Elem()
	for _, n := range []int{1, 3} {
		require.NoError(t, d.Add(s, reflect.ValueOf(n)))
	}
	require.NoError(t, d.Insert(s, 1, reflect.ValueOf(2)))
	assert.Equal(t, []int{1, 2, 3}, s.Interface())

	require.NoError(t, d.RemoveAt(s, 0))
	removed, err := d.Remove(s, reflect.ValueOf(3))
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, 1, d.Count(s))

	_, err = d.GetIndex(s, 5)
	assert.ErrorIs(t, err, ErrUnsupportedOperation)

	require.NoError(t, d.Clear(s))
	assert.Equal(t, 0, d.Count(s))
}

func TestDescriptor_ProbedList(t *testing.T) {
	f := NewDescriptorFactory(NewAttributeRegistry(), DefaultNaming, nil)

	d, err := f.Find(reflect.TypeFor[*vector]())
	require.NoError(t, err)
	assert.True(t, d.HasIndexerAccessors())
	assert.True(t, d.HasInsert())
	assert.True(t, d.HasRemoveAt())
	assert.True(t, d.IsPureCollection())

	v := reflect.ValueOf(&vector{xs: []float64{1, 2}})
	require.NoError(t, d.SetIndex(v, 0, reflect.ValueOf(9.5)))
	item, err := d.GetIndex(v, 0)
	require.NoError(t, err)
	assert.Equal(t, 9.5, item.Float())
}

func TestDescriptor_ProbedDictionary(t *testing.T) {
	f := NewDescriptorFactory(NewAttributeRegistry(), DefaultNaming, nil)

	d, err := f.Find(reflect.TypeFor[*registry]())
	require.NoError(t, err)
	assert.True(t, d.IsPureDictionary())
	assert.Equal(t, reflect.TypeFor[string](), d.KeyType())
	assert.Equal(t, reflect.TypeFor[int](), d.ValueType())

	r := &registry{}
	require.NoError(t, d.AddEntry(reflect.ValueOf(r), reflect.ValueOf("a"), reflect.ValueOf(1)))
	assert.Equal(t, map[string]int{"a": 1}, r.entries)
}

func TestDescriptor_MapDuplicateKey(t *testing.T) {
	f := NewDescriptorFactory(NewAttributeRegistry(), DefaultNaming, nil)

	d, err := f.Find(reflect.TypeFor[map[string]int]())
	require.NoError(t, err)

	m := d.New()
	require.NoError(t, d.AddEntry(m, reflect.ValueOf("k"), reflect.ValueOf(1)))
	err = d.AddEntry(m, reflect.ValueOf("k"), reflect.ValueOf(2))
	assert.ErrorIs(t, err, ErrDuplicateKey)
}
