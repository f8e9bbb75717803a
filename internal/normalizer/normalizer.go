package normalizer

import (
	"fmt"

	"github.com/xxxbrian/filterdict/internal/filters"
)

// Parser turns one line of filter-list text into a record.
type Parser interface {
	ParseLine(text string, mode filters.Mode) (filters.Record, error)
}

// ParserFunc adapts a function to the Parser interface.
type ParserFunc func(text string, mode filters.Mode) (filters.Record, error)

// ParseLine calls f(text, mode).
func (f ParserFunc) ParseLine(text string, mode filters.Mode) (filters.Record, error) {
	return f(text, mode)
}

// DefaultParser is the bundled Adblock Plus line parser.
var DefaultParser Parser = ParserFunc(filters.ParseLine)

// Options configures a Normalizer.
type Options struct {
	// Encoding applied to every Text value. Nil means UTF8.
	Encoding Encoding
	KeyStyle KeyStyle
}

// Normalizer converts filter-list lines into encoded Maps. It holds no mutable
// state and is safe for concurrent use.
type Normalizer struct {
	parser Parser
	enc    Encoding
	style  KeyStyle
}

// New creates a Normalizer around parser.
func New(parser Parser, opts Options) *Normalizer {
	if parser == nil {
		parser = DefaultParser
	}
	enc := opts.Encoding
	if enc == nil {
		enc = UTF8
	}
	return &Normalizer{
		parser: parser,
		enc:    enc,
		style:  opts.KeyStyle,
	}
}

// Encoding returns the output encoding in use.
func (n *Normalizer) Encoding() Encoding {
	return n.enc
}

// LineToMap parses one line and returns the encoded Map for its record.
// Parser errors are returned as they are.
func (n *Normalizer) LineToMap(text string, mode filters.Mode) (Map, error) {
	rec, err := n.parser.ParseLine(text, mode)
	if err != nil {
		return Map{}, err
	}
	return n.convert(rec)
}

// LinesToMaps converts each line in order. It stops at the first line the
// parser rejects and returns no partial results.
func (n *Normalizer) LinesToMaps(lines []string, mode filters.Mode) ([]Map, error) {
	result := make([]Map, 0, len(lines))
	for _, line := range lines {
		m, err := n.LineToMap(line, mode)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, nil
}

// ListToMaps converts the lines of a whole filter list, choosing the mode of
// each line by its position the way filters.ParseList does.
func (n *Normalizer) ListToMaps(lines []string) ([]Map, error) {
	var pos filters.ListPosition
	result := make([]Map, 0, len(lines))
	for _, line := range lines {
		rec, err := n.parser.ParseLine(line, pos.Mode())
		if err != nil {
			return nil, err
		}
		pos.Advance(rec)
		m, err := n.convert(rec)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, nil
}

func (n *Normalizer) convert(rec filters.Record) (Map, error) {
	m := recordToMap(rec, n.style)
	encoded, err := Encode(m, n.enc)
	if err != nil {
		return Map{}, fmt.Errorf("%s record: %w", TypeOf(rec), err)
	}
	return encoded.(Map), nil
}

var defaultNormalizer = New(DefaultParser, Options{})

// LineToMap converts one line with the bundled parser, encoding every string
// as UTF-8 bytes.
func LineToMap(text string, mode filters.Mode) (Map, error) {
	return defaultNormalizer.LineToMap(text, mode)
}

// LinesToMaps converts lines with the bundled parser, encoding every string as
// UTF-8 bytes.
func LinesToMaps(lines []string, mode filters.Mode) ([]Map, error) {
	return defaultNormalizer.LinesToMaps(lines, mode)
}
