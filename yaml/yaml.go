// Package yaml adapts gopkg.in/yaml.v3 to the event document model.
//
// Parse turns YAML text into a flat event stream (one DocumentStart/DocumentEnd
// pair per document, positions taken from the parsed nodes). Emitter consumes
// an event stream and renders it back to YAML text.
package yaml

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/zoobzio/muesli/event"
	"gopkg.in/yaml.v3"
)

// ContentType is the MIME type of documents handled by this package.
const ContentType = "application/yaml"

// SyntaxError wraps a failure reported by the YAML parser.
type SyntaxError struct {
	Err error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("yaml syntax: %v", e.Err)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}

// Parse decodes every document in data into an event stream.
func Parse(data []byte) ([]event.Event, error) {
	return ParseReader(bytes.NewReader(data))
}

// ParseReader decodes every document read from r into an event stream.
func ParseReader(r io.Reader) ([]event.Event, error) {
	dec := yaml.NewDecoder(r)
	events := []event.Event{{Kind: event.StreamStart, Start: event.Mark{Line: 1, Column: 1}}}
	for {
		var doc yaml.Node
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &SyntaxError{Err: err}
		}
		events = flatten(events, &doc)
	}
	return append(events, event.Event{Kind: event.StreamEnd}), nil
}

// flatten appends the events describing n (depth first) to events.
func flatten(events []event.Event, n *yaml.Node) []event.Event {
	mark := event.Mark{Line: n.Line, Column: n.Column}

	switch n.Kind {
	case yaml.DocumentNode:
		events = append(events, event.Event{Kind: event.DocumentStart, Start: mark, End: mark})
		for _, child := range n.Content {
			events = flatten(events, child)
		}
		return append(events, event.Event{Kind: event.DocumentEnd, Start: lastMark(n, mark), End: lastMark(n, mark)})

	case yaml.SequenceNode:
		events = append(events, event.Event{
			Kind:   event.SequenceStart,
			Tag:    explicitTag(n),
			Anchor: n.Anchor,
			Style:  containerStyle(n.Style),
			Start:  mark,
			End:    mark,
		})
		for _, child := range n.Content {
			events = flatten(events, child)
		}
		end := lastMark(n, mark)
		return append(events, event.Event{Kind: event.SequenceEnd, Start: end, End: end})

	case yaml.MappingNode:
		events = append(events, event.Event{
			Kind:   event.MappingStart,
			Tag:    explicitTag(n),
			Anchor: n.Anchor,
			Style:  containerStyle(n.Style),
			Start:  mark,
			End:    mark,
		})
		for _, child := range n.Content {
			events = flatten(events, child)
		}
		end := lastMark(n, mark)
		return append(events, event.Event{Kind: event.MappingEnd, Start: end, End: end})

	case yaml.AliasNode:
		return append(events, event.Event{Kind: event.Alias, Value: n.Value, Start: mark, End: mark})

	default:
		return append(events, event.Event{
			Kind:        event.Scalar,
			Tag:         explicitTag(n),
			Anchor:      n.Anchor,
			Value:       n.Value,
			ScalarStyle: scalarStyle(n.Style),
			Start:       mark,
			End:         event.Mark{Line: n.Line, Column: n.Column + len(n.Value)},
		})
	}
}

// explicitTag returns the tag written in the source; yaml.v3 resolves
// implicit tags on every node, which must not leak into the event stream.
func explicitTag(n *yaml.Node) string {
	if n.Style&yaml.TaggedStyle == 0 {
		return ""
	}
	return n.Tag
}

func lastMark(n *yaml.Node, fallback event.Mark) event.Mark {
	if len(n.Content) == 0 {
		return fallback
	}
	last := n.Content[len(n.Content)-1]
	return event.Mark{Line: last.Line, Column: last.Column}
}

func containerStyle(s yaml.Style) event.Style {
	if s&yaml.FlowStyle != 0 {
		return event.StyleFlow
	}
	return event.StyleBlock
}

func scalarStyle(s yaml.Style) event.ScalarStyle {
	switch {
	case s&yaml.DoubleQuotedStyle != 0:
		return event.ScalarDoubleQuoted
	case s&yaml.SingleQuotedStyle != 0:
		return event.ScalarSingleQuoted
	case s&yaml.LiteralStyle != 0:
		return event.ScalarLiteral
	case s&yaml.FoldedStyle != 0:
		return event.ScalarFolded
	default:
		return event.ScalarPlain
	}
}
