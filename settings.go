package muesli

import (
	"os"

	"github.com/cockroachdb/errors"
	goyaml "github.com/goccy/go-yaml"
	"go.uber.org/zap"
)

// Settings configures a Serializer. Build them with options passed to New.
type Settings struct {
	// EmitDefaultValues writes members equal to their default value.
	EmitDefaultValues bool
	// SortKeyForMapping sorts dictionary keys and set items on write.
	SortKeyForMapping bool
	// ComparerForKeySorting orders keys when sorting; nil uses DefaultKeyComparer.
	ComparerForKeySorting func(a, b any) int
	// LimitPrimitiveFlowSequence is the largest sequence of primitives
	// written in flow style.
	LimitPrimitiveFlowSequence int
	// AllowErrors skips malformed members and items, recording warnings,
	// instead of failing the read.
	AllowErrors bool
	// EmitTags writes tags for values whose type differs from their slot.
	EmitTags bool
	// SerializeDictionaryItemsAsMembers writes string-keyed entries of a
	// dictionary with members next to those members.
	SerializeDictionaryItemsAsMembers bool
	// SpecialCollectionMember is the key holding the items of a collection
	// or dictionary that has members of its own.
	SpecialCollectionMember string
	// EmitAlias labels shared references with anchors and writes aliases
	// for repeated ones. On by default; without it cycles cannot be written
	// and shared references read back as copies.
	EmitAlias bool
	// EmitShortTypeName generates tags without the package path.
	EmitShortTypeName bool
	// EmitJSONCompatible writes output that parses as JSON.
	EmitJSONCompatible bool
	// NamingConvention maps Go member names to serialized names.
	NamingConvention NamingConvention
	// PreferredIndent is the indentation of YAML text output.
	PreferredIndent int
	// MemberMask selects the members written: a member is written when its
	// mask shares a bit with this one.
	MemberMask uint
	// MaxDepth bounds the nesting of documents read and values written.
	MaxDepth int

	Logger     *zap.Logger
	Attributes *AttributeRegistry
	Tags       *TagRegistry
	Metrics    *Metrics

	factories []SerializerFactory
	stages    []Stage
	policy    MemberPolicy
}

// Option configures Settings.
type Option func(*Settings)

// DefaultSettings returns the settings used when no option is given.
func DefaultSettings() Settings {
	return Settings{
		SortKeyForMapping:          true,
		LimitPrimitiveFlowSequence: 0,
		EmitTags:                   true,
		EmitAlias:                  true,
		SpecialCollectionMember:    "~Items",
		NamingConvention:           DefaultNaming,
		PreferredIndent:            2,
		MemberMask:                 1,
		MaxDepth:                   512,
		Logger:                     zap.NewNop(),
	}
}

// WithEmitDefaultValues writes members equal to their default.
func WithEmitDefaultValues(emit bool) Option {
	return func(s *Settings) { s.EmitDefaultValues = emit }
}

// WithSortKeys sets whether mapping keys are sorted, and by which comparer.
// A nil comparer uses DefaultKeyComparer.
func WithSortKeys(sort bool, cmp func(a, b any) int) Option {
	return func(s *Settings) {
		s.SortKeyForMapping = sort
		s.ComparerForKeySorting = cmp
	}
}

// WithFlowSequenceLimit writes sequences of at most n primitives in flow style.
func WithFlowSequenceLimit(n int) Option {
	return func(s *Settings) { s.LimitPrimitiveFlowSequence = n }
}

// WithAllowErrors skips malformed nodes while reading.
func WithAllowErrors(allow bool) Option {
	return func(s *Settings) { s.AllowErrors = allow }
}

// WithEmitTags sets whether tags are written.
func WithEmitTags(emit bool) Option {
	return func(s *Settings) { s.EmitTags = emit }
}

// WithDictionaryItemsAsMembers writes dictionary entries next to members.
func WithDictionaryItemsAsMembers(enabled bool) Option {
	return func(s *Settings) { s.SerializeDictionaryItemsAsMembers = enabled }
}

// WithSpecialCollectionMember sets the key holding collection items.
func WithSpecialCollectionMember(name string) Option {
	return func(s *Settings) { s.SpecialCollectionMember = name }
}

// WithEmitAlias writes anchors and aliases for shared references.
func WithEmitAlias(emit bool) Option {
	return func(s *Settings) { s.EmitAlias = emit }
}

// WithShortTypeNames generates tags without package paths.
func WithShortTypeNames(short bool) Option {
	return func(s *Settings) { s.EmitShortTypeName = short }
}

// WithJSONCompatible writes JSON-compatible output.
func WithJSONCompatible(enabled bool) Option {
	return func(s *Settings) { s.EmitJSONCompatible = enabled }
}

// WithNamingConvention sets the member naming convention.
func WithNamingConvention(n NamingConvention) Option {
	return func(s *Settings) { s.NamingConvention = n }
}

// WithIndent sets the indentation of YAML text output.
func WithIndent(spaces int) Option {
	return func(s *Settings) { s.PreferredIndent = spaces }
}

// WithMemberMask selects the members written.
func WithMemberMask(mask uint) Option {
	return func(s *Settings) { s.MemberMask = mask }
}

// WithMaxDepth bounds document nesting.
func WithMaxDepth(depth int) Option {
	return func(s *Settings) { s.MaxDepth = depth }
}

// WithLogger sets the logger receiving warnings.
func WithLogger(l *zap.Logger) Option {
	return func(s *Settings) { s.Logger = l }
}

// WithAttributes sets the attribute registry.
func WithAttributes(r *AttributeRegistry) Option {
	return func(s *Settings) { s.Attributes = r }
}

// WithTags sets the tag registry.
func WithTags(r *TagRegistry) Option {
	return func(s *Settings) { s.Tags = r }
}

// WithMetrics records pass metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Settings) { s.Metrics = m }
}

// WithSerializerFactory adds a factory consulted before the built-in ones.
func WithSerializerFactory(f SerializerFactory) Option {
	return func(s *Settings) { s.factories = append(s.factories, f) }
}

// WithStage inserts a stage between the tag and routing stages.
func WithStage(stage Stage) Option {
	return func(s *Settings) { s.stages = append(s.stages, stage) }
}

// WithMemberPolicy sets the hook run on every member while descriptors are built.
func WithMemberPolicy(p MemberPolicy) Option {
	return func(s *Settings) { s.policy = p }
}

// settingsFile is the on-disk form of Settings.
type settingsFile struct {
	EmitDefaultValues                 *bool   `yaml:"emit_default_values"`
	SortKeyForMapping                 *bool   `yaml:"sort_key_for_mapping"`
	LimitPrimitiveFlowSequence        *int    `yaml:"limit_primitive_flow_sequence"`
	AllowErrors                       *bool   `yaml:"allow_errors"`
	EmitTags                          *bool   `yaml:"emit_tags"`
	SerializeDictionaryItemsAsMembers *bool   `yaml:"serialize_dictionary_items_as_members"`
	SpecialCollectionMember           *string `yaml:"special_collection_member"`
	EmitAlias                         *bool   `yaml:"emit_alias"`
	EmitShortTypeName                 *bool   `yaml:"emit_short_type_name"`
	EmitJSONCompatible                *bool   `yaml:"emit_json_compatible"`
	NamingConvention                  *string `yaml:"naming_convention"`
	PreferredIndent                   *int    `yaml:"preferred_indent"`
	MemberMask                        *uint   `yaml:"member_mask"`
	MaxDepth                          *int    `yaml:"max_depth"`
}

// LoadSettingsFile reads settings from a YAML file. Keys absent from the
// file keep their current value. The result is an Option for New.
func LoadSettingsFile(path string) (Option, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read settings %s", path)
	}
	return ParseSettings(data)
}

// ParseSettings reads settings from YAML text.
func ParseSettings(data []byte) (Option, error) {
	var f settingsFile
	if err := goyaml.UnmarshalWithOptions(data, &f, goyaml.Strict()); err != nil {
		return nil, errors.Wrap(errors.Mark(err, ErrConfiguration), "parse settings")
	}

	var naming NamingConvention
	if f.NamingConvention != nil {
		n, ok := namingByName(*f.NamingConvention)
		if !ok {
			return nil, errors.Wrapf(ErrConfiguration, "unknown naming convention %q", *f.NamingConvention)
		}
		naming = n
	}
	if f.MaxDepth != nil && *f.MaxDepth <= 0 {
		return nil, errors.Wrapf(ErrConfiguration, "max_depth must be positive, got %d", *f.MaxDepth)
	}

	return func(s *Settings) {
		set(&s.EmitDefaultValues, f.EmitDefaultValues)
		set(&s.SortKeyForMapping, f.SortKeyForMapping)
		set(&s.LimitPrimitiveFlowSequence, f.LimitPrimitiveFlowSequence)
		set(&s.AllowErrors, f.AllowErrors)
		set(&s.EmitTags, f.EmitTags)
		set(&s.SerializeDictionaryItemsAsMembers, f.SerializeDictionaryItemsAsMembers)
		set(&s.SpecialCollectionMember, f.SpecialCollectionMember)
		set(&s.EmitAlias, f.EmitAlias)
		set(&s.EmitShortTypeName, f.EmitShortTypeName)
		set(&s.EmitJSONCompatible, f.EmitJSONCompatible)
		set(&s.PreferredIndent, f.PreferredIndent)
		set(&s.MemberMask, f.MemberMask)
		set(&s.MaxDepth, f.MaxDepth)
		if naming != nil {
			s.NamingConvention = naming
		}
	}, nil
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
