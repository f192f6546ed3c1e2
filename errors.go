package muesli

import (
	"fmt"
	"reflect"

	"github.com/cockroachdb/errors"
	"github.com/zoobzio/muesli/event"
)

// Sentinel errors for programmatic error handling.
// Use errors.Is() to check for these error types.
var (
	// ErrStructural indicates the document shape does not match what the
	// target type expects (e.g. a scalar where a mapping was required).
	ErrStructural = errors.New("structural mismatch")

	// ErrUnresolvedType indicates a tag, or the lack of one, could not be
	// mapped to a concrete type.
	ErrUnresolvedType = errors.New("unresolved type")

	// ErrUnknownMember indicates a mapping key matches no member or alias.
	ErrUnknownMember = errors.New("unknown member")

	// ErrUnsupportedOperation indicates a descriptor lacks a capability.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrReadOnlyTarget indicates items cannot be added to a read-only target.
	ErrReadOnlyTarget = errors.Wrap(ErrUnsupportedOperation, "read-only target")

	// ErrNoAddMethod indicates a collection type exposes no way to add items.
	ErrNoAddMethod = errors.Wrap(ErrUnsupportedOperation, "no add method")

	// ErrArrayOverflow indicates a sequence has more items than the fixed array.
	ErrArrayOverflow = errors.New("array overflow")

	// ErrAnchorNotFound indicates an alias refers to an anchor never seen.
	ErrAnchorNotFound = errors.New("anchor not found")

	// ErrConversion indicates scalar text cannot be parsed as the target type.
	ErrConversion = errors.New("conversion failed")

	// ErrConfiguration indicates a descriptor invariant was violated while
	// building a type descriptor.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrUnsupportedShape indicates a type cannot be serialized at all
	// (channels, functions, complex numbers, pointers to pointers).
	ErrUnsupportedShape = errors.New("unsupported shape")

	// ErrDuplicateKey indicates a dictionary already holds the key being added.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrMaxDepthExceeded indicates the document nests deeper than allowed.
	ErrMaxDepthExceeded = errors.New("maximum depth exceeded")
)

// ConfigError represents a descriptor build failure.
// It wraps a sentinel error with the type and member that triggered it.
type ConfigError struct {
	Err    error  // Underlying sentinel error (ErrConfiguration, ErrUnsupportedShape)
	Type   string // Type being described
	Member string // Member that triggered the error, if any
	Reason string
}

func (e *ConfigError) Error() string {
	msg := e.Err.Error()
	if e.Reason != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Reason)
	}
	if e.Member != "" {
		return fmt.Sprintf("%s (type %s, member %s)", msg, e.Type, e.Member)
	}
	if e.Type != "" {
		return fmt.Sprintf("%s (type %s)", msg, e.Type)
	}
	return msg
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// PositionError attaches the document location of the failing node to an
// error raised while reading.
type PositionError struct {
	Err    error
	Start  event.Mark
	End    event.Mark
	Type   string // Type being read, if known
	Member string // Member or key being read, if known
}

func (e *PositionError) Error() string {
	where := fmt.Sprintf("(%s - %s)", e.Start, e.End)
	switch {
	case e.Member != "":
		return fmt.Sprintf("%s %s.%s: %v", where, e.Type, e.Member, e.Err)
	case e.Type != "":
		return fmt.Sprintf("%s %s: %v", where, e.Type, e.Err)
	default:
		return fmt.Sprintf("%s %v", where, e.Err)
	}
}

func (e *PositionError) Unwrap() error {
	return e.Err
}

// newConfigError creates a ConfigError for a descriptor build failure.
func newConfigError(sentinel error, t reflect.Type, member, reason string) error {
	name := ""
	if t != nil {
		name = t.String()
	}
	return &ConfigError{
		Err:    sentinel,
		Type:   name,
		Member: member,
		Reason: reason,
	}
}

// newPositionError wraps err with the location of ev. The innermost position
// wins: an error that already carries one is returned unchanged.
func newPositionError(err error, ev event.Event, t reflect.Type, member string) error {
	var pe *PositionError
	if errors.As(err, &pe) {
		return err
	}
	name := ""
	if t != nil {
		name = t.String()
	}
	return &PositionError{
		Err:    err,
		Start:  ev.Start,
		End:    ev.End,
		Type:   name,
		Member: member,
	}
}

// isFatal reports whether err must abort the pass even when errors are allowed.
func isFatal(err error) bool {
	return errors.Is(err, ErrConfiguration) ||
		errors.Is(err, ErrUnsupportedShape) ||
		errors.Is(err, ErrArrayOverflow) ||
		errors.Is(err, ErrMaxDepthExceeded)
}

// conversionError reports that text could not be parsed as t.
func conversionError(text string, t reflect.Type, cause error) error {
	if cause != nil {
		return errors.Wrapf(ErrConversion, "cannot read %q as %s: %v", text, t, cause)
	}
	return errors.Wrapf(ErrConversion, "cannot read %q as %s", text, t)
}

// structuralError reports that got was found where want was expected.
func structuralError(want string, got event.Event) error {
	return errors.Wrapf(ErrStructural, "expected %s, got %s", want, got)
}
