package muesli

import (
	"context"
	"reflect"

	"github.com/cockroachdb/errors"
	"github.com/zoobzio/muesli/event"
	"go.uber.org/zap"
)

// Warning is a failure skipped while reading with AllowErrors.
type Warning struct {
	Err    error
	Type   string
	Member string
	Start  event.Mark
}

// Report describes a finished read.
type Report struct {
	Warnings []Warning
	Remapped bool // an alias name, alias tag or enum alias was used
}

// SerializerContext is the state of one read or write pass. It is created by
// the Serializer for every call and must not be shared between goroutines.
type SerializerContext struct {
	ctx        context.Context
	serializer *Serializer
	settings   *Settings
	reader     *event.Reader
	writer     event.Emitter
	anchors    *anchorTable
	depth      int
	remapped   bool
	warnings   []Warning
	logger     *zap.Logger
}

func (s *Serializer) newContext(ctx context.Context) *SerializerContext {
	return &SerializerContext{
		ctx:        ctx,
		serializer: s,
		settings:   &s.settings,
		anchors:    newAnchorTable(),
		logger:     s.settings.Logger,
	}
}

// Context returns the context of the call that started the pass.
func (sc *SerializerContext) Context() context.Context { return sc.ctx }

// Settings returns the settings of the pass. They must not be modified.
func (sc *SerializerContext) Settings() *Settings { return sc.settings }

// Reader returns the event reader of a read pass.
func (sc *SerializerContext) Reader() *event.Reader { return sc.reader }

// Writer returns the emitter of a write pass.
func (sc *SerializerContext) Writer() event.Emitter { return sc.writer }

// Factory returns the descriptor factory of the serializer.
func (sc *SerializerContext) Factory() *DescriptorFactory { return sc.serializer.factory }

// Tags returns the tag registry of the serializer.
func (sc *SerializerContext) Tags() *TagRegistry { return sc.serializer.tags }

// MarkRemapped records that the document used an alias.
func (sc *SerializerContext) MarkRemapped() { sc.remapped = true }

// Remapped reports whether the document used an alias so far.
func (sc *SerializerContext) Remapped() bool { return sc.remapped }

// Describe returns the descriptor of t.
func (sc *SerializerContext) Describe(t reflect.Type) (*TypeDescriptor, error) {
	return sc.serializer.describe(t)
}

func (sc *SerializerContext) report() *Report {
	return &Report{Warnings: sc.warnings, Remapped: sc.remapped}
}

// ObjectContext carries one value through the serializer chain. Stages may
// replace Descriptor when they learn a more specific type; later stages
// dispatch on the replacement.
type ObjectContext struct {
	*SerializerContext

	Instance   reflect.Value   // value written, or existing value read into
	Descriptor *TypeDescriptor // most specific known description of Instance
	Expected   reflect.Type    // static type of the slot; nil at an untyped root

	Tag         string
	Anchor      string
	Style       event.Style
	ScalarStyle event.ScalarStyle

	ParentMember *MemberDescriptor
	Parent       reflect.Value
}

// Instantiated registers a freshly created value under the pending anchor so
// references inside it resolve before it is complete.
func (oc *ObjectContext) Instantiated(v reflect.Value) {
	if oc.Anchor != "" {
		oc.anchors.register(oc.Anchor, v)
	}
}

// ReadValue reads the node under the cursor as a value of expected, into
// existing when it is valid.
func (sc *SerializerContext) ReadValue(expected reflect.Type, existing reflect.Value) (reflect.Value, error) {
	return sc.Read(&ObjectContext{Expected: expected, Instance: existing})
}

// Read runs oc through the chain.
func (sc *SerializerContext) Read(oc *ObjectContext) (reflect.Value, error) {
	oc.SerializerContext = sc

	sc.depth++
	defer func() { sc.depth-- }()
	if sc.depth > sc.settings.MaxDepth {
		return reflect.Value{}, errors.Wrapf(ErrMaxDepthExceeded, "depth %d", sc.depth)
	}

	ev, ok := sc.reader.Current()
	if !ok {
		return reflect.Value{}, errors.Wrap(ErrStructural, "unexpected end of document")
	}
	if ev.IsNull() && ev.Anchor == "" {
		sc.reader.Next()
		return readNull(oc)
	}

	if oc.Descriptor == nil && oc.Expected != nil {
		d, err := sc.Describe(oc.Expected)
		if err != nil {
			return reflect.Value{}, err
		}
		oc.Descriptor = d
	}
	return sc.serializer.chain.read(oc)
}

// readNull resolves a null scalar: nil for nilable slots, the empty string,
// the existing (or zero) value for structs and arrays. Other primitives
// cannot be null.
func readNull(oc *ObjectContext) (reflect.Value, error) {
	t := oc.Expected
	if t == nil {
		return reflect.Value{}, nil
	}
	switch t.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return reflect.Zero(t), nil
	case reflect.String:
		return reflect.Zero(t), nil
	case reflect.Struct, reflect.Array:
		if oc.Instance.IsValid() && oc.Instance.Type() == t {
			return oc.Instance, nil
		}
		return reflect.Zero(t), nil
	}
	return reflect.Value{}, errors.Wrapf(ErrConversion, "null is not a valid %s", t)
}

// WriteValue writes v, whose slot has the static type expected, with the
// preferred container style.
func (sc *SerializerContext) WriteValue(v reflect.Value, expected reflect.Type, style event.Style) error {
	return sc.Write(&ObjectContext{Instance: v, Expected: expected, Style: style})
}

// Write runs oc through the chain. Nil values are written as null.
func (sc *SerializerContext) Write(oc *ObjectContext) error {
	oc.SerializerContext = sc

	sc.depth++
	defer func() { sc.depth-- }()
	if sc.depth > sc.settings.MaxDepth {
		return errors.Wrapf(ErrMaxDepthExceeded, "depth %d", sc.depth)
	}

	v := oc.Instance
	if v.IsValid() && v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	if !v.IsValid() || (isNilable(v.Kind()) && v.IsNil()) {
		return sc.writer.Emit(event.NewScalar("null", "", "", event.ScalarPlain))
	}
	oc.Instance = v

	d, err := sc.Describe(v.Type())
	if err != nil {
		return err
	}
	oc.Descriptor = d
	return sc.serializer.chain.write(oc)
}

// recover handles a failure raised while reading one member, item or entry
// whose node started with start, at reader depth depth and position pos.
// Without AllowErrors (or for fatal errors) it returns the positioned error;
// otherwise it records a warning, skips the rest of the node and returns nil.
func (sc *SerializerContext) recover(err error, start event.Event, depth, pos int, owner reflect.Type, member string) error {
	err = newPositionError(err, start, owner, member)
	if !sc.settings.AllowErrors || isFatal(err) {
		return err
	}
	sc.warn(err, start, owner, member)
	sc.reader.Skip(depth, sc.reader.Pos() == pos)
	return nil
}

func (sc *SerializerContext) warn(err error, start event.Event, owner reflect.Type, member string) {
	typeName := ""
	if owner != nil {
		typeName = owner.String()
	}
	sc.warnings = append(sc.warnings, Warning{Err: err, Type: typeName, Member: member, Start: start.Start})
	sc.logger.Warn("skipped malformed node",
		zap.Error(err),
		zap.String("type", typeName),
		zap.String("member", member),
		zap.Stringer("position", start.Start),
	)
	emitNodeSkipped(sc.ctx, typeName, member, err)
	sc.settings.Metrics.skip()
}
