// Package event defines the document model consumed and produced by the
// serializer: a flat stream of parsing events (stream, document, mapping,
// sequence, scalar and alias), each carrying an optional tag, anchor and
// presentation style together with its source position.
//
// The stream is produced by a parser adapter (see the yaml package) and
// consumed through the pull-style Reader. Writers push events into an Emitter.
package event

import "fmt"

// Kind identifies the type of a document event.
type Kind int

const (
	// StreamStart opens a stream of documents.
	StreamStart Kind = iota
	// StreamEnd closes a stream of documents.
	StreamEnd
	// DocumentStart opens a single document.
	DocumentStart
	// DocumentEnd closes a single document.
	DocumentEnd
	// Scalar is a leaf value.
	Scalar
	// SequenceStart opens an ordered list of nodes.
	SequenceStart
	// SequenceEnd closes a sequence.
	SequenceEnd
	// MappingStart opens a list of key/value node pairs.
	MappingStart
	// MappingEnd closes a mapping.
	MappingEnd
	// Alias refers back to an anchored node.
	Alias
)

var kindNames = map[Kind]string{
	StreamStart:   "StreamStart",
	StreamEnd:     "StreamEnd",
	DocumentStart: "DocumentStart",
	DocumentEnd:   "DocumentEnd",
	Scalar:        "Scalar",
	SequenceStart: "SequenceStart",
	SequenceEnd:   "SequenceEnd",
	MappingStart:  "MappingStart",
	MappingEnd:    "MappingEnd",
	Alias:         "Alias",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Opens reports whether events of this kind increase nesting depth.
func (k Kind) Opens() bool {
	return k == StreamStart || k == DocumentStart || k == SequenceStart || k == MappingStart
}

// Closes reports whether events of this kind decrease nesting depth.
func (k Kind) Closes() bool {
	return k == StreamEnd || k == DocumentEnd || k == SequenceEnd || k == MappingEnd
}

// Style is the presentation hint of a sequence or mapping.
type Style int

const (
	// StyleAny lets the emitter decide.
	StyleAny Style = iota
	// StyleBlock renders one entry per line.
	StyleBlock
	// StyleFlow renders the node compactly, e.g. [1, 2, 3].
	StyleFlow
)

// ScalarStyle is the presentation hint of a scalar.
type ScalarStyle int

const (
	// ScalarAny lets the emitter decide.
	ScalarAny ScalarStyle = iota
	// ScalarPlain is an unquoted scalar.
	ScalarPlain
	// ScalarSingleQuoted is a 'quoted' scalar.
	ScalarSingleQuoted
	// ScalarDoubleQuoted is a "quoted" scalar.
	ScalarDoubleQuoted
	// ScalarLiteral is a | block scalar.
	ScalarLiteral
	// ScalarFolded is a > block scalar.
	ScalarFolded
)

// Quoted reports whether the style forces the scalar to be read as text.
func (s ScalarStyle) Quoted() bool {
	return s == ScalarSingleQuoted || s == ScalarDoubleQuoted || s == ScalarLiteral || s == ScalarFolded
}

// Mark is a position in the source document. Line and Column are 1-based;
// the zero Mark means the position is unknown.
type Mark struct {
	Line   int
	Column int
}

func (m Mark) String() string {
	if m.Line == 0 {
		return "?"
	}
	return fmt.Sprintf("%d:%d", m.Line, m.Column)
}

// Event is one element of the document stream.
type Event struct {
	Kind Kind

	// Tag is the explicit tag of a scalar, sequence or mapping ("" when implicit).
	Tag string

	// Anchor labels the node so later aliases can refer to it.
	Anchor string

	// Value is the text of a scalar or the anchor name targeted by an alias.
	Value string

	Style       Style
	ScalarStyle ScalarStyle

	Start Mark
	End   Mark
}

func (e Event) String() string {
	switch e.Kind {
	case Scalar:
		return fmt.Sprintf("%s(%q tag=%q anchor=%q)", e.Kind, e.Value, e.Tag, e.Anchor)
	case Alias:
		return fmt.Sprintf("%s(*%s)", e.Kind, e.Value)
	case SequenceStart, MappingStart:
		return fmt.Sprintf("%s(tag=%q anchor=%q)", e.Kind, e.Tag, e.Anchor)
	default:
		return e.Kind.String()
	}
}

// IsNull reports whether the event is a scalar standing for the null value:
// an explicit !!null tag, or a plain untagged ~, null, Null, NULL or empty text.
func (e Event) IsNull() bool {
	if e.Kind != Scalar {
		return false
	}
	if e.Tag == "!!null" {
		return true
	}
	if e.Tag != "" || e.ScalarStyle.Quoted() {
		return false
	}
	switch e.Value {
	case "", "~", "null", "Null", "NULL":
		return true
	}
	return false
}

// Convenience constructors used by writers.

// NewScalar returns a scalar event.
func NewScalar(value, tag, anchor string, style ScalarStyle) Event {
	return Event{Kind: Scalar, Value: value, Tag: tag, Anchor: anchor, ScalarStyle: style}
}

// NewAlias returns an alias event targeting anchor.
func NewAlias(anchor string) Event {
	return Event{Kind: Alias, Value: anchor}
}

// NewSequenceStart returns a sequence start event.
func NewSequenceStart(tag, anchor string, style Style) Event {
	return Event{Kind: SequenceStart, Tag: tag, Anchor: anchor, Style: style}
}

// NewMappingStart returns a mapping start event.
func NewMappingStart(tag, anchor string, style Style) Event {
	return Event{Kind: MappingStart, Tag: tag, Anchor: anchor, Style: style}
}
