package event

import "fmt"

// UnexpectedError reports that the current event is not of the expected kind.
type UnexpectedError struct {
	Expected Kind
	Got      *Event // nil at end of stream
}

func (e *UnexpectedError) Error() string {
	if e.Got == nil {
		return fmt.Sprintf("expected %s, reached end of stream", e.Expected)
	}
	return fmt.Sprintf("expected %s, got %s at %s", e.Expected, e.Got, e.Got.Start)
}

// Reader is a pull-style cursor over an event stream.
//
// Reader tracks the nesting depth of consumed events so that callers can
// scan forward past a malformed subtree with Skip. A Reader is not safe for
// concurrent use.
type Reader struct {
	events []Event
	pos    int
	depth  int
}

// NewReader returns a Reader positioned on the first event.
func NewReader(events []Event) *Reader {
	return &Reader{events: events}
}

// Current returns the event under the cursor without consuming it.
func (r *Reader) Current() (Event, bool) {
	if r.pos >= len(r.events) {
		return Event{}, false
	}
	return r.events[r.pos], true
}

// Pos returns the index of the current event.
func (r *Reader) Pos() int {
	return r.pos
}

// Depth returns the number of containers opened and not yet closed.
func (r *Reader) Depth() int {
	return r.depth
}

// Done reports whether every event was consumed.
func (r *Reader) Done() bool {
	return r.pos >= len(r.events)
}

// Peek returns the current event if it has the given kind, without consuming it.
func (r *Reader) Peek(kind Kind) (Event, bool) {
	ev, ok := r.Current()
	if !ok || ev.Kind != kind {
		return Event{}, false
	}
	return ev, true
}

// Accept reports whether the current event has the given kind.
func (r *Reader) Accept(kind Kind) bool {
	_, ok := r.Peek(kind)
	return ok
}

// Allow consumes the current event if it has the given kind.
func (r *Reader) Allow(kind Kind) (Event, bool) {
	ev, ok := r.Peek(kind)
	if !ok {
		return Event{}, false
	}
	r.advance()
	return ev, true
}

// Expect consumes the current event, failing if it does not have the given kind.
func (r *Reader) Expect(kind Kind) (Event, error) {
	ev, ok := r.Current()
	if !ok {
		return Event{}, &UnexpectedError{Expected: kind}
	}
	if ev.Kind != kind {
		return Event{}, &UnexpectedError{Expected: kind, Got: &ev}
	}
	r.advance()
	return ev, nil
}

// Next consumes and returns the current event.
func (r *Reader) Next() (Event, bool) {
	ev, ok := r.Current()
	if !ok {
		return Event{}, false
	}
	r.advance()
	return ev, true
}

// Skip consumes events until the nesting depth falls back to untilDepth.
// When atLeastOne is set, one event is consumed first even if the depth
// already matches, which skips a whole node that has not been entered yet.
func (r *Reader) Skip(untilDepth int, atLeastOne bool) {
	if atLeastOne {
		if _, ok := r.Next(); !ok {
			return
		}
	}
	for r.depth > untilDepth {
		if _, ok := r.Next(); !ok {
			return
		}
	}
}

func (r *Reader) advance() {
	kind := r.events[r.pos].Kind
	switch {
	case kind.Opens():
		r.depth++
	case kind.Closes():
		r.depth--
	}
	r.pos++
}
