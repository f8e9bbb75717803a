package normalizer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/iancoleman/strcase"

	"github.com/xxxbrian/filterdict/internal/filters"
)

// ErrUnknownKeyStyle is returned by ParseKeyStyle for unsupported names.
var ErrUnknownKeyStyle = errors.New("unknown key style")

const (
	typeKey    = "type"
	optionsKey = "options"
	domainKey  = "domain"
)

// KeyStyle controls how record field names and option names are written.
// Domain names inside the domain option are never restyled.
type KeyStyle int

const (
	KeyAsIs KeyStyle = iota
	KeySnake
	KeyCamel
)

// ParseKeyStyle converts a style name (as-is, snake, camel) into a KeyStyle.
func ParseKeyStyle(name string) (KeyStyle, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "as-is", "asis":
		return KeyAsIs, nil
	case "snake":
		return KeySnake, nil
	case "camel":
		return KeyCamel, nil
	default:
		return KeyAsIs, fmt.Errorf("%w: %q", ErrUnknownKeyStyle, name)
	}
}

func (s KeyStyle) String() string {
	switch s {
	case KeySnake:
		return "snake"
	case KeyCamel:
		return "camel"
	default:
		return "as-is"
	}
}

func (s KeyStyle) apply(name string) string {
	switch s {
	case KeySnake:
		return strcase.ToSnake(name)
	case KeyCamel:
		return strcase.ToLowerCamel(name)
	default:
		return name
	}
}

// OptionsToMap converts filter options into a Map. The value of a domain
// option, itself a list of options, is converted the same way.
func OptionsToMap(options []filters.Option) Map {
	return optionsToMap(options, KeyAsIs)
}

// RecordToMap converts a parsed record into a Map of its fields plus a type
// entry naming the record variant.
func RecordToMap(rec filters.Record) Map {
	return recordToMap(rec, KeyAsIs)
}

func recordToMap(rec filters.Record, style KeyStyle) Map {
	fields := rec.Fields()
	m := NewMap(len(fields) + 1)
	for _, f := range fields {
		var v Value
		if opts, ok := f.Value.([]filters.Option); ok && f.Name == optionsKey {
			v = optionsToMap(opts, style)
		} else {
			v = fieldValue(f.Value)
		}
		m.Set(Text(style.apply(f.Name)), v)
	}
	m.Set(Text(typeKey), Text(TypeOf(rec).String()))
	return m
}

func optionsToMap(options []filters.Option, style KeyStyle) Map {
	m := NewMap(len(options))
	for _, opt := range options {
		var v Value
		if nested, ok := opt.Value.([]filters.Option); ok && opt.Name == domainKey {
			v = optionsToMap(nested, KeyAsIs)
		} else {
			v = fieldValue(opt.Value)
		}
		m.Set(Text(style.apply(opt.Name)), v)
	}
	return m
}

func fieldValue(v any) Value {
	switch v := v.(type) {
	case nil:
		return nil
	case string:
		return Text(v)
	case bool:
		return Bool(v)
	case int:
		return Int(v)
	case int64:
		return Int(v)
	case filters.Action:
		return Text(v)
	case filters.SelectorType:
		return Text(v)
	case filters.Selector:
		m := NewMap(2)
		m.Set(Text("type"), Text(v.Type))
		m.Set(Text("value"), Text(v.Value))
		return m
	case []string:
		list := make(List, 0, len(v))
		for _, s := range v {
			list = append(list, Text(s))
		}
		return list
	case []filters.Option:
		list := make(List, 0, len(v))
		for _, opt := range v {
			list = append(list, List{Text(opt.Name), fieldValue(opt.Value)})
		}
		return list
	default:
		return Text(fmt.Sprint(v))
	}
}
