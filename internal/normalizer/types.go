// Package normalizer converts parsed filter-list records into plain nested
// values for consumers that cannot use the parser's record types.
package normalizer

import (
	"github.com/xxxbrian/filterdict/internal/filters"
)

// Value is a converted value: Text, Bytes, Bool, Int, List or Map.
type Value interface {
	isValue()
}

// Text is a string value.
type Text string

// Bytes is an encoded string value.
type Bytes []byte

// Bool is a boolean value.
type Bool bool

// Int is an integer value.
type Int int64

// List is an ordered sequence of values.
type List []Value

// Entry is one key/value pair of a Map. Keys are Text or Bytes.
type Entry struct {
	Key   Value
	Value Value
}

// Map is an insertion-ordered mapping.
type Map struct {
	entries []Entry
}

func (Text) isValue()  {}
func (Bytes) isValue() {}
func (Bool) isValue()  {}
func (Int) isValue()   {}
func (List) isValue()  {}
func (Map) isValue()   {}

// NewMap returns an empty Map with room for n entries.
func NewMap(n int) Map {
	return Map{entries: make([]Entry, 0, n)}
}

// Len returns the number of entries.
func (m Map) Len() int {
	return len(m.entries)
}

// Entries returns the entries in insertion order. The slice must not be
// modified.
func (m Map) Entries() []Entry {
	return m.entries
}

// Keys returns the keys as strings, in insertion order.
func (m Map) Keys() []string {
	keys := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		k, _ := keyString(e.Key)
		keys = append(keys, k)
	}
	return keys
}

// Get looks up a key, matching both Text and Bytes keys.
func (m Map) Get(key string) (Value, bool) {
	for _, e := range m.entries {
		if k, ok := keyString(e.Key); ok && k == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Set replaces the value of an existing key in place or appends a new entry.
func (m *Map) Set(key, value Value) {
	if k, ok := keyString(key); ok {
		for i, e := range m.entries {
			if ek, ok := keyString(e.Key); ok && ek == k {
				m.entries[i].Value = value
				return
			}
		}
	}
	m.entries = append(m.entries, Entry{Key: key, Value: value})
}

func keyString(v Value) (string, bool) {
	switch k := v.(type) {
	case Text:
		return string(k), true
	case Bytes:
		return string(k), true
	default:
		return "", false
	}
}

// RecordType names the record variant a mapping was converted from.
type RecordType int

const (
	TypeUnknown RecordType = iota
	TypeHeader
	TypeEmptyLine
	TypeComment
	TypeMetadata
	TypeInclude
	TypeFilter
)

var recordTypeNames = [...]string{
	TypeUnknown:   "Unknown",
	TypeHeader:    "Header",
	TypeEmptyLine: "EmptyLine",
	TypeComment:   "Comment",
	TypeMetadata:  "Metadata",
	TypeInclude:   "Include",
	TypeFilter:    "Filter",
}

var recordTypes = map[filters.Kind]RecordType{
	filters.KindHeader:    TypeHeader,
	filters.KindEmptyLine: TypeEmptyLine,
	filters.KindComment:   TypeComment,
	filters.KindMetadata:  TypeMetadata,
	filters.KindInclude:   TypeInclude,
	filters.KindFilter:    TypeFilter,
}

// TypeOf returns the record type for a parsed record.
func TypeOf(rec filters.Record) RecordType {
	if t, ok := recordTypes[rec.Kind()]; ok {
		return t
	}
	return TypeUnknown
}

func (t RecordType) String() string {
	if t < 0 || int(t) >= len(recordTypeNames) {
		return recordTypeNames[TypeUnknown]
	}
	return recordTypeNames[t]
}
