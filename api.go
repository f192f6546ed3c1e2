// Package muesli converts Go object graphs to and from YAML documents.
//
// A Serializer walks values by reflection, guided by cached type descriptors.
// Every value passes through a chain of stages: the anchor stage resolves
// aliases and labels shared references, the tag stage maps document tags to Go
// types, user stages run next, and the routing stage hands the value to the
// serializer of its category (primitive, array, list, collection, set,
// dictionary or object).
//
// # Basic Usage
//
//	type Config struct {
//	    Name    string        `yaml:"name"`
//	    Timeout time.Duration `yaml:"timeout,default=30s"`
//	    Tags    []string      `yaml:"tags,alias=labels"`
//	}
//
//	s := muesli.New(muesli.WithNamingConvention(muesli.CamelCaseNaming))
//
//	data, _ := s.Serialize(ctx, &Config{Name: "api"})
//
//	var cfg Config
//	report, _ := s.DeserializeInto(ctx, data, &cfg)
//
// # Member Tags
//
// Members are declared with the yaml struct tag:
//
//	yaml:"name,alias=a|b,mode=content,order=N,mask=N,default=TEXT,style=flow,omitempty"
//
// A tag of "-" ignores the member. Metadata for types that cannot be edited
// is registered on an AttributeRegistry (RegisterMember, RegisterShadow,
// RegisterVirtual, RegisterEnum).
//
// # Errors
//
// Read failures carry the document position of the failing node
// (*PositionError) and wrap one of the sentinel errors. With AllowErrors,
// malformed members and items are skipped and reported as warnings.
//
// # Override Interfaces
//
// Types take part in their own serialization through Builder, Finalizer,
// MemberDefaults and ShouldSerialize<Member>() methods.
package muesli

import (
	"bytes"
	"context"
	"io"
	"reflect"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zoobzio/muesli/event"
	"github.com/zoobzio/muesli/yaml"
	"go.uber.org/zap"
)

// Serializer reads and writes YAML documents. It is immutable after New and
// safe for concurrent use.
type Serializer struct {
	settings Settings
	factory  *DescriptorFactory
	tags     *TagRegistry
	chain    *chain
	routing  *routingStage
}

// New returns a Serializer configured by opts.
func New(opts ...Option) *Serializer {
	settings := DefaultSettings()
	for _, opt := range opts {
		opt(&settings)
	}
	if settings.Logger == nil {
		settings.Logger = zap.NewNop()
	}
	if settings.NamingConvention == nil {
		settings.NamingConvention = DefaultNaming
	}
	if settings.Attributes == nil {
		settings.Attributes = DefaultAttributes()
	}
	if settings.Tags == nil {
		settings.Tags = DefaultTags(settings.EmitShortTypeName)
	}
	if settings.SpecialCollectionMember == "" {
		settings.SpecialCollectionMember = DefaultSettings().SpecialCollectionMember
	}
	if settings.MaxDepth <= 0 {
		settings.MaxDepth = DefaultSettings().MaxDepth
	}
	if settings.MemberMask == 0 {
		settings.MemberMask = DefaultSettings().MemberMask
	}
	if settings.EmitJSONCompatible {
		settings.EmitAlias = false
	}

	for t, attrs := range settings.Attributes.tagged() {
		settings.Tags.registerAttributes(t, attrs)
	}

	routing := &routingStage{
		factories: append(append([]SerializerFactory{}, settings.factories...), builtinFactories()...),
	}
	stages := []Stage{anchorStage{}, tagStage{}}
	stages = append(stages, settings.stages...)
	stages = append(stages, routing)

	return &Serializer{
		settings: settings,
		factory:  useFactory(settings.Attributes, settings.NamingConvention, settings.policy),
		tags:     settings.Tags,
		chain:    newChain(stages),
		routing:  routing,
	}
}

// Settings returns a copy of the serializer settings.
func (s *Serializer) Settings() Settings { return s.settings }

// Tags returns the tag registry of the serializer.
func (s *Serializer) Tags() *TagRegistry { return s.tags }

// Factory returns the descriptor factory of the serializer.
func (s *Serializer) Factory() *DescriptorFactory { return s.factory }

// describe returns the descriptor of t, counting descriptors built.
func (s *Serializer) describe(t reflect.Type) (*TypeDescriptor, error) {
	d, built, err := s.factory.find(t)
	if built {
		s.settings.Metrics.built()
	}
	return d, err
}

// ReadYaml reads the next document of r as a value of expected (nil reads a
// generic value). A valid existing value is filled in place where its type
// allows. A stream with no document left reads as nil.
func (s *Serializer) ReadYaml(ctx context.Context, r *event.Reader, expected reflect.Type, existing any) (any, *Report, error) {
	sc := s.newContext(ctx)
	sc.reader = r

	v, err := sc.readDocument(expected, reflect.ValueOf(existing))
	if err != nil || !v.IsValid() {
		return nil, sc.report(), err
	}
	return v.Interface(), sc.report(), nil
}

func (sc *SerializerContext) readDocument(expected reflect.Type, existing reflect.Value) (reflect.Value, error) {
	r := sc.reader
	r.Allow(event.StreamStart)
	if r.Done() || r.Accept(event.StreamEnd) {
		return reflect.Value{}, nil
	}
	if _, err := r.Expect(event.DocumentStart); err != nil {
		got, _ := r.Current()
		return reflect.Value{}, structuralError("document", got)
	}

	root, _ := r.Current()
	v, err := sc.Read(&ObjectContext{Expected: expected, Instance: existing})
	if err != nil {
		return reflect.Value{}, newPositionError(err, root, expected, "")
	}
	if expected != nil && v.IsValid() {
		if v, err = coerce(v, expected); err != nil {
			return reflect.Value{}, newPositionError(err, root, expected, "")
		}
	}

	if _, err := r.Expect(event.DocumentEnd); err != nil {
		got, _ := r.Current()
		return reflect.Value{}, newPositionError(structuralError("document end", got), got, expected, "")
	}
	return v, nil
}

// WriteYaml writes value as one document to em. expected is the static type
// of the value; a runtime type differing from an interface expected type is
// tagged.
func (s *Serializer) WriteYaml(ctx context.Context, em event.Emitter, value any, expected reflect.Type) error {
	if s.settings.EmitJSONCompatible {
		em = jsonEmitter{next: em}
	}
	if s.settings.EmitAlias {
		em = newAnchorStripper(em)
	}

	sc := s.newContext(ctx)
	sc.writer = em
	if err := em.Emit(event.Event{Kind: event.DocumentStart}); err != nil {
		return err
	}
	if err := sc.WriteValue(reflect.ValueOf(value), expected, event.StyleAny); err != nil {
		return err
	}
	return em.Emit(event.Event{Kind: event.DocumentEnd})
}

// Serialize renders v as YAML text.
func (s *Serializer) Serialize(ctx context.Context, v any) ([]byte, error) {
	return s.serialize(ctx, v, nil)
}

// SerializeTo writes v as YAML text to w.
func (s *Serializer) SerializeTo(ctx context.Context, w io.Writer, v any) error {
	return s.write(ctx, w, v, nil)
}

func (s *Serializer) serialize(ctx context.Context, v any, expected reflect.Type) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.write(ctx, &buf, v, expected); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Serializer) write(ctx context.Context, w io.Writer, v any, expected reflect.Type) (err error) {
	start := time.Now()
	typeName := typeNameOf(reflect.TypeOf(v))
	emitSerializeStart(ctx, typeName)

	counter := &countingWriter{w: w}
	defer func() {
		s.settings.Metrics.pass("serialize", time.Since(start), err)
		emitSerializeComplete(ctx, typeName, counter.n, time.Since(start), err)
	}()

	em := yaml.NewEmitter(counter, yaml.WithIndent(s.settings.PreferredIndent))
	if err := em.Emit(event.Event{Kind: event.StreamStart}); err != nil {
		return err
	}
	if err := s.WriteYaml(ctx, em, v, expected); err != nil {
		return err
	}
	return em.Emit(event.Event{Kind: event.StreamEnd})
}

// Deserialize reads the first document of data as a value of expected.
func (s *Serializer) Deserialize(ctx context.Context, data []byte, expected reflect.Type) (any, *Report, error) {
	return s.DeserializeFrom(ctx, bytes.NewReader(data), expected)
}

// DeserializeFrom reads the first document of r as a value of expected.
func (s *Serializer) DeserializeFrom(ctx context.Context, r io.Reader, expected reflect.Type) (v any, report *Report, err error) {
	start := time.Now()
	typeName := typeNameOf(expected)
	emitDeserializeStart(ctx, typeName)
	defer func() {
		s.settings.Metrics.pass("deserialize", time.Since(start), err)
		emitDeserializeComplete(ctx, typeName, time.Since(start), warningCount(report), err)
	}()

	events, err := yaml.ParseReader(r)
	if err != nil {
		return nil, &Report{}, errors.Wrap(errors.Mark(err, ErrStructural), "parse document")
	}
	return s.ReadYaml(ctx, event.NewReader(events), expected, nil)
}

// DeserializeInto reads the first document of data into target, a non-nil
// pointer. Members absent from the document keep their value.
func (s *Serializer) DeserializeInto(ctx context.Context, data []byte, target any) (report *Report, err error) {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return &Report{}, errors.Wrapf(ErrUnsupportedOperation, "deserialize into %T: target must be a non-nil pointer", target)
	}

	start := time.Now()
	typeName := typeNameOf(rv.Type())
	emitDeserializeStart(ctx, typeName)
	defer func() {
		s.settings.Metrics.pass("deserialize", time.Since(start), err)
		emitDeserializeComplete(ctx, typeName, time.Since(start), warningCount(report), err)
	}()

	events, err := yaml.Parse(data)
	if err != nil {
		return &Report{}, errors.Wrap(errors.Mark(err, ErrStructural), "parse document")
	}
	v, report, err := s.ReadYaml(ctx, event.NewReader(events), rv.Type(), target)
	if err != nil || v == nil {
		return report, err
	}

	// A finalizer may hand back a different value than the one filled in.
	out := reflect.ValueOf(v)
	if out.Kind() == reflect.Pointer && !out.IsNil() && out.Pointer() != rv.Pointer() {
		rv.Elem().Set(out.Elem())
	}
	return report, nil
}

// DeserializeAll reads every document of data as a value of expected. Anchors
// do not cross documents.
func (s *Serializer) DeserializeAll(ctx context.Context, data []byte, expected reflect.Type) (values []any, report *Report, err error) {
	start := time.Now()
	typeName := typeNameOf(expected)
	emitDeserializeStart(ctx, typeName)
	report = &Report{}
	defer func() {
		s.settings.Metrics.pass("deserialize", time.Since(start), err)
		emitDeserializeComplete(ctx, typeName, time.Since(start), warningCount(report), err)
	}()

	events, err := yaml.Parse(data)
	if err != nil {
		return nil, report, errors.Wrap(errors.Mark(err, ErrStructural), "parse document")
	}
	r := event.NewReader(events)
	for {
		r.Allow(event.StreamStart)
		if !r.Accept(event.DocumentStart) {
			break
		}
		v, rep, err := s.ReadYaml(ctx, r, expected, nil)
		report.Warnings = append(report.Warnings, rep.Warnings...)
		report.Remapped = report.Remapped || rep.Remapped
		if err != nil {
			return nil, report, err
		}
		values = append(values, v)
	}
	return values, report, nil
}

// ContentType returns the MIME type of the documents written.
func (s *Serializer) ContentType() string {
	return yaml.ContentType
}

// Marshal renders v as YAML text.
func (s *Serializer) Marshal(v any) ([]byte, error) {
	return s.Serialize(context.Background(), v)
}

// Unmarshal reads data into v, a non-nil pointer.
func (s *Serializer) Unmarshal(data []byte, v any) error {
	_, err := s.DeserializeInto(context.Background(), data, v)
	return err
}

// Encode renders v as YAML text with T as its static type: a value held in
// an interface T is tagged with its runtime type.
func Encode[T any](ctx context.Context, s *Serializer, v T) ([]byte, error) {
	prescan[T]()
	return s.serialize(ctx, v, reflect.TypeFor[T]())
}

// Decode reads the first document of data as a T.
func Decode[T any](ctx context.Context, s *Serializer, data []byte) (T, *Report, error) {
	prescan[T]()
	var zero T
	v, report, err := s.Deserialize(ctx, data, reflect.TypeFor[T]())
	if err != nil || v == nil {
		return zero, report, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, report, errors.Wrapf(ErrConversion, "decoded %T, want %s", v, reflect.TypeFor[T]())
	}
	return out, report, nil
}

func typeNameOf(t reflect.Type) string {
	if t == nil {
		return "any"
	}
	return t.String()
}

func warningCount(r *Report) int {
	if r == nil {
		return 0
	}
	return len(r.Warnings)
}

// countingWriter counts the bytes written through it.
type countingWriter struct {
	w io.Writer
	n int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += n
	return n, err
}
