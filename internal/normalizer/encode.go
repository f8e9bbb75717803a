package normalizer

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// ErrUnknownEncoding is returned by LookupEncoding for unsupported names.
var ErrUnknownEncoding = errors.New("unknown output encoding")

// Encoding decides how Text values are represented in converted output.
type Encoding interface {
	Name() string
	EncodeText(s string) (Value, error)
}

type nativeEncoding struct{}

func (nativeEncoding) Name() string { return "native" }

func (nativeEncoding) EncodeText(s string) (Value, error) { return Text(s), nil }

type utf8Encoding struct{}

func (utf8Encoding) Name() string { return "utf-8" }

func (utf8Encoding) EncodeText(s string) (Value, error) { return Bytes(s), nil }

type charsetEncoding struct {
	name string
	enc  encoding.Encoding
}

func (c charsetEncoding) Name() string { return c.name }

// EncodeText replaces characters the charset cannot represent.
func (c charsetEncoding) EncodeText(s string) (Value, error) {
	out, err := encoding.ReplaceUnsupported(c.enc.NewEncoder()).Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", c.name, err)
	}
	return Bytes(out), nil
}

var (
	// Native keeps Text values as they are.
	Native Encoding = nativeEncoding{}
	// UTF8 turns every Text value into its UTF-8 bytes.
	UTF8 Encoding = utf8Encoding{}
)

// Charset returns an Encoding that turns Text values into bytes of the given
// character set.
func Charset(name string, enc encoding.Encoding) Encoding {
	return charsetEncoding{name: name, enc: enc}
}

// LookupEncoding resolves an encoding name. "native" keeps text, "utf-8" (the
// default for an empty name) produces UTF-8 bytes, and any WHATWG encoding
// label such as "latin1" or "utf-16le" produces bytes in that charset.
func LookupEncoding(name string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return UTF8, nil
	case "native", "text":
		return Native, nil
	}

	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
	}
	canonical, err := htmlindex.Name(enc)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
	}
	if canonical == "utf-8" {
		return UTF8, nil
	}
	return Charset(canonical, enc), nil
}

// Encode re-encodes every Text in v, keys included, and returns a new value of
// the same shape. Values other than Text are returned unchanged.
func Encode(v Value, enc Encoding) (Value, error) {
	switch v := v.(type) {
	case Map:
		out := NewMap(v.Len())
		for _, e := range v.entries {
			key, err := Encode(e.Key, enc)
			if err != nil {
				return nil, err
			}
			val, err := Encode(e.Value, enc)
			if err != nil {
				return nil, err
			}
			out.entries = append(out.entries, Entry{Key: key, Value: val})
		}
		return out, nil
	case List:
		out := make(List, len(v))
		for i, item := range v {
			encoded, err := Encode(item, enc)
			if err != nil {
				return nil, err
			}
			out[i] = encoded
		}
		return out, nil
	case Text:
		return enc.EncodeText(string(v))
	default:
		return v, nil
	}
}

// EncodeMaps applies Encode to each map.
func EncodeMaps(maps []Map, enc Encoding) ([]Map, error) {
	out := make([]Map, len(maps))
	for i, m := range maps {
		encoded, err := Encode(m, enc)
		if err != nil {
			return nil, err
		}
		out[i] = encoded.(Map)
	}
	return out, nil
}
