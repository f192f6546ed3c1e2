package event

// Emitter accepts events pushed by a writer.
type Emitter interface {
	Emit(ev Event) error
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(ev Event) error

// Emit calls f(ev).
func (f EmitterFunc) Emit(ev Event) error {
	return f(ev)
}

// Buffer is an Emitter recording every event in memory.
type Buffer struct {
	Events []Event
}

// Emit appends ev to the buffer.
func (b *Buffer) Emit(ev Event) error {
	b.Events = append(b.Events, ev)
	return nil
}

// Reader returns a Reader over the recorded events.
func (b *Buffer) Reader() *Reader {
	return NewReader(b.Events)
}

// Reset drops the recorded events.
func (b *Buffer) Reset() {
	b.Events = b.Events[:0]
}
