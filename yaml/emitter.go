package yaml

import (
	"bytes"
	"fmt"
	"io"

	"github.com/zoobzio/muesli/event"
	"gopkg.in/yaml.v3"
)

// Emitter renders an event stream as YAML text.
//
// Events of one document are assembled into a yaml.Node tree which is encoded
// when the DocumentEnd event arrives. Aliases must refer to an anchor emitted
// earlier in the same document.
type Emitter struct {
	enc     *yaml.Encoder
	doc     *yaml.Node
	stack   []*yaml.Node
	anchors map[string]*yaml.Node
}

// EmitterOption configures an Emitter.
type EmitterOption func(*yaml.Encoder)

// WithIndent sets the number of spaces used for indentation.
func WithIndent(spaces int) EmitterOption {
	return func(enc *yaml.Encoder) {
		if spaces > 0 {
			enc.SetIndent(spaces)
		}
	}
}

// NewEmitter returns an Emitter writing to w.
func NewEmitter(w io.Writer, opts ...EmitterOption) *Emitter {
	enc := yaml.NewEncoder(w)
	for _, opt := range opts {
		opt(enc)
	}
	return &Emitter{enc: enc}
}

// Emit consumes one event.
func (e *Emitter) Emit(ev event.Event) error {
	switch ev.Kind {
	case event.StreamStart:
		return nil

	case event.StreamEnd:
		return e.enc.Close()

	case event.DocumentStart:
		e.doc = &yaml.Node{Kind: yaml.DocumentNode}
		e.stack = []*yaml.Node{e.doc}
		e.anchors = make(map[string]*yaml.Node)
		return nil

	case event.DocumentEnd:
		if e.doc == nil || len(e.stack) != 1 {
			return fmt.Errorf("yaml emitter: unbalanced document end")
		}
		doc := e.doc
		e.doc, e.stack = nil, nil
		return e.enc.Encode(doc)

	case event.MappingStart, event.SequenceStart:
		kind := yaml.MappingNode
		if ev.Kind == event.SequenceStart {
			kind = yaml.SequenceNode
		}
		n := &yaml.Node{Kind: kind, Anchor: ev.Anchor}
		applyTag(n, ev.Tag)
		if ev.Style == event.StyleFlow {
			n.Style |= yaml.FlowStyle
		}
		if err := e.append(n); err != nil {
			return err
		}
		e.stack = append(e.stack, n)
		return nil

	case event.MappingEnd, event.SequenceEnd:
		if len(e.stack) < 2 {
			return fmt.Errorf("yaml emitter: unbalanced %s", ev.Kind)
		}
		e.stack = e.stack[:len(e.stack)-1]
		return nil

	case event.Scalar:
		n := &yaml.Node{Kind: yaml.ScalarNode, Value: ev.Value, Anchor: ev.Anchor}
		applyTag(n, ev.Tag)
		switch ev.ScalarStyle {
		case event.ScalarDoubleQuoted:
			n.Style |= yaml.DoubleQuotedStyle
		case event.ScalarSingleQuoted:
			n.Style |= yaml.SingleQuotedStyle
		case event.ScalarLiteral:
			n.Style |= yaml.LiteralStyle
		case event.ScalarFolded:
			n.Style |= yaml.FoldedStyle
		}
		return e.append(n)

	case event.Alias:
		target, ok := e.anchors[ev.Value]
		if !ok {
			return fmt.Errorf("yaml emitter: alias *%s has no anchor", ev.Value)
		}
		return e.append(&yaml.Node{Kind: yaml.AliasNode, Value: ev.Value, Alias: target})
	}
	return fmt.Errorf("yaml emitter: unknown event %s", ev.Kind)
}

func (e *Emitter) append(n *yaml.Node) error {
	if len(e.stack) == 0 {
		return fmt.Errorf("yaml emitter: node outside of a document")
	}
	parent := e.stack[len(e.stack)-1]
	if parent.Kind == yaml.DocumentNode && len(parent.Content) > 0 {
		return fmt.Errorf("yaml emitter: document already has a root node")
	}
	parent.Content = append(parent.Content, n)
	if n.Anchor != "" {
		e.anchors[n.Anchor] = n
	}
	return nil
}

func applyTag(n *yaml.Node, tag string) {
	if tag == "" {
		return
	}
	n.Tag = tag
	n.Style |= yaml.TaggedStyle
}

// Marshal renders a complete event stream to YAML text.
func Marshal(events []event.Event, opts ...EmitterOption) ([]byte, error) {
	var buf bytes.Buffer
	em := NewEmitter(&buf, opts...)
	for _, ev := range events {
		if err := em.Emit(ev); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
