// Package jsoncodec is the JSON codec shared by the parcel wire format, the
// JSON parser and the introspection endpoints.
package jsoncodec

import (
	"io"

	"github.com/bytedance/sonic"
)

// api mirrors encoding/json: sorted map keys, HTML escaping and string
// validation. A parcel always encodes to the same bytes.
var api = sonic.Config{
	EscapeHTML:       true,
	SortMapKeys:      true,
	CompactMarshaler: true,
	CopyString:       true,
	ValidateString:   true,
}.Froze()

func Marshal(v any) ([]byte, error) {
	return api.Marshal(v)
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return api.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v any) error {
	return api.Unmarshal(data, v)
}

// Encode writes v to w followed by a newline.
func Encode(w io.Writer, v any) error {
	return api.NewEncoder(w).Encode(v)
}

func Decode(r io.Reader, v any) error {
	return api.NewDecoder(r).Decode(v)
}

// Convert re-encodes src into dst. It turns loosely typed message maps into
// structs and handler structs back into maps.
func Convert(src, dst any) error {
	data, err := api.Marshal(src)
	if err != nil {
		return err
	}
	return api.Unmarshal(data, dst)
}
