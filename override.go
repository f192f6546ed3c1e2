package muesli

// Override interfaces let types take part in their own serialization.
// The object serializer checks for them on the value being read or written
// (or on its address when the method has a pointer receiver).

// Builder swaps the value being read for a mutable staging value. Use it for
// immutable types: the document is read into the staging value, which must
// implement Finalizer to produce the finished value.
type Builder interface {
	// YAMLBuilder returns the staging value (usually a pointer to a builder struct).
	YAMLBuilder() any
}

// Finalizer turns a value whose members were just read into the finished value.
type Finalizer interface {
	// YAMLFinalize returns the value stored in place of the receiver.
	YAMLFinalize() (any, error)
}

// MemberDefaults lets a parent override the declared default of one of its
// members. A member equal to the returned default is not written when
// default values are suppressed.
type MemberDefaults interface {
	// YAMLDefault returns the default for the member with the given Go name.
	YAMLDefault(member string) (any, bool)
}
