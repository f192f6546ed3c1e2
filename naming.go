package muesli

import "github.com/samber/lo"

// NamingConvention maps Go member names to serialized names.
type NamingConvention interface {
	// Name identifies the convention; descriptors are cached per convention name.
	Name() string
	// Convert returns the serialized form of a Go member name.
	Convert(name string) string
}

type namingFunc struct {
	name    string
	convert func(string) string
}

func (n namingFunc) Name() string               { return n.name }
func (n namingFunc) Convert(name string) string { return n.convert(name) }

// NewNamingConvention builds a convention from a conversion function.
func NewNamingConvention(name string, convert func(string) string) NamingConvention {
	return namingFunc{name: name, convert: convert}
}

var (
	// DefaultNaming keeps Go member names unchanged.
	DefaultNaming = NewNamingConvention("default", func(s string) string { return s })

	// CamelCaseNaming lowers the first word: FirstName becomes firstName.
	CamelCaseNaming = NewNamingConvention("camel", lo.CamelCase)

	// FlatNaming lowers every word and joins them with underscores:
	// FirstName becomes first_name.
	FlatNaming = NewNamingConvention("flat", lo.SnakeCase)
)

// namingByName resolves the conventions accepted in settings files.
func namingByName(name string) (NamingConvention, bool) {
	switch name {
	case "", "default":
		return DefaultNaming, true
	case "camel":
		return CamelCaseNaming, true
	case "flat":
		return FlatNaming, true
	}
	return nil, false
}
