package muesli

import "github.com/zoobzio/muesli/event"

// anchorStripper buffers each document and drops the anchors no alias refers
// to before passing the events on.
type anchorStripper struct {
	next      event.Emitter
	buffering bool
	events    []event.Event
	used      map[string]bool
}

func newAnchorStripper(next event.Emitter) *anchorStripper {
	return &anchorStripper{next: next, used: make(map[string]bool)}
}

func (s *anchorStripper) Emit(ev event.Event) error {
	switch ev.Kind {
	case event.DocumentStart:
		s.buffering = true
		s.events = append(s.events[:0], ev)
		clear(s.used)
		return nil
	case event.DocumentEnd:
		s.events = append(s.events, ev)
		s.buffering = false
		return s.flush()
	case event.Alias:
		s.used[ev.Value] = true
	}
	if !s.buffering {
		return s.next.Emit(ev)
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *anchorStripper) flush() error {
	for _, ev := range s.events {
		if ev.Anchor != "" && !s.used[ev.Anchor] {
			ev.Anchor = ""
		}
		if err := s.next.Emit(ev); err != nil {
			return err
		}
	}
	s.events = s.events[:0]
	return nil
}

// jsonEmitter rewrites events so the rendered text is JSON: containers in
// flow style, no tags, no anchors.
type jsonEmitter struct {
	next event.Emitter
}

func (j jsonEmitter) Emit(ev event.Event) error {
	ev.Tag, ev.Anchor = "", ""
	switch ev.Kind {
	case event.MappingStart, event.SequenceStart:
		ev.Style = event.StyleFlow
	case event.Scalar:
		if ev.ScalarStyle == event.ScalarLiteral || ev.ScalarStyle == event.ScalarFolded || ev.ScalarStyle == event.ScalarSingleQuoted {
			ev.ScalarStyle = event.ScalarDoubleQuoted
		}
	}
	return j.next.Emit(ev)
}
