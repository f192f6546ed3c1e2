package muesli

import "github.com/zoobzio/muesli/msgpack"

// Codec provides content-type aware marshaling.
type Codec interface {
	// ContentType returns the MIME type for this codec (e.g., "application/yaml").
	ContentType() string

	// Marshal encodes v into bytes.
	Marshal(v any) ([]byte, error)

	// Unmarshal decodes data into v.
	Unmarshal(data []byte, v any) error
}

var (
	_ Codec = (*Serializer)(nil)
	_ Codec = (*msgpack.Codec)(nil)
)
