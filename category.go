package muesli

// Category is the structural classification of a type. It decides which
// category serializer reads and writes values of the type.
type Category int

const (
	// CategoryUnknown is the zero value; no descriptor carries it.
	CategoryUnknown Category = iota

	// CategoryPrimitive is a scalar: numbers, booleans, strings, time values,
	// registered enums and text-marshaling types.
	CategoryPrimitive

	// CategoryNullable is a pointer to a primitive.
	CategoryNullable

	// CategoryArray is a fixed-size Go array.
	CategoryArray

	// CategoryCollection supports adding items but not indexed access.
	CategoryCollection

	// CategoryList supports adding items and get/set by index.
	CategoryList

	// CategoryDictionary holds key/value entries.
	CategoryDictionary

	// CategorySet holds unique items.
	CategorySet

	// CategoryObject is a bag of members: structs and interfaces.
	CategoryObject

	// CategoryUnsupported is an object explicitly flagged as unsupported.
	// It serializes like CategoryObject.
	CategoryUnsupported
)

var categoryNames = map[Category]string{
	CategoryUnknown:     "unknown",
	CategoryPrimitive:   "primitive",
	CategoryNullable:    "nullable",
	CategoryArray:       "array",
	CategoryCollection:  "collection",
	CategoryList:        "list",
	CategoryDictionary:  "dictionary",
	CategorySet:         "set",
	CategoryObject:      "object",
	CategoryUnsupported: "unsupported",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return "unknown"
}

// IsCollectionLike reports whether values of the category are sequences of items.
func (c Category) IsCollectionLike() bool {
	return c == CategoryCollection || c == CategoryList || c == CategorySet || c == CategoryArray
}

// MemberMode controls how a member takes part in serialization.
// Use these constants in struct tags: `yaml:"name,mode=content"`
type MemberMode string

const (
	// ModeDefault resolves to Assign, Content or Never from the member's shape.
	ModeDefault MemberMode = ""

	// ModeContent reads into the member's current value instead of replacing it.
	ModeContent MemberMode = "content"

	// ModeAssign reads a new value and assigns it to the member.
	ModeAssign MemberMode = "assign"

	// ModeBinary stores a fixed-layout value array as one base64 MessagePack scalar.
	ModeBinary MemberMode = "binary"

	// ModeNever excludes the member.
	ModeNever MemberMode = "never"
)

// validMemberModes contains all valid member modes for tag validation.
var validMemberModes = map[MemberMode]bool{
	ModeDefault: true,
	ModeContent: true,
	ModeAssign:  true,
	ModeBinary:  true,
	ModeNever:   true,
}

// IsValidMemberMode returns true if the mode is a known member mode.
func IsValidMemberMode(mode MemberMode) bool {
	return validMemberModes[mode]
}
