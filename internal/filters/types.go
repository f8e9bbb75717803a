// Package filters parses Adblock Plus filter-list lines into typed records.
package filters

import (
	"strconv"
)

// Kind identifies the concrete record variant produced by the parser.
type Kind int

const (
	KindHeader Kind = iota
	KindEmptyLine
	KindComment
	KindMetadata
	KindInclude
	KindFilter
)

// Mode selects which record variants a line may be parsed as.
type Mode string

const (
	ModeBody     Mode = "body"
	ModeStart    Mode = "start"
	ModeMetadata Mode = "metadata"
)

// SelectorType is the kind of selector a filter carries.
type SelectorType string

const (
	SelectorURLPattern  SelectorType = "url-pattern"
	SelectorURLRegexp   SelectorType = "url-regexp"
	SelectorCSS         SelectorType = "css"
	SelectorExtendedCSS SelectorType = "extended-css"
	SelectorSnippet     SelectorType = "snippet"
)

// Action is what a filter does with the content it matches.
type Action string

const (
	ActionBlock Action = "block"
	ActionAllow Action = "allow"
	ActionHide  Action = "hide"
	ActionShow  Action = "show"
)

// Field is one named field of a record, in declared order.
//
// Value holds one of: string, bool, Selector, Action, []string or []Option.
type Field struct {
	Name  string
	Value any
}

// Record is a parsed filter-list line.
type Record interface {
	Kind() Kind
	Fields() []Field
	String() string
}

// Selector is the matching part of a filter.
type Selector struct {
	Type  SelectorType
	Value string
}

// Option is a single filter option.
//
// Value is a bool for flag options (false when negated with ~), a string for
// name=value options, []Option for domain and []string for sitekey.
type Option struct {
	Name  string
	Value any
}

// Header is the [Adblock Plus x.y] line opening a list.
type Header struct {
	Version string
}

func (Header) Kind() Kind { return KindHeader }

func (h Header) Fields() []Field {
	return []Field{{Name: "version", Value: h.Version}}
}

func (h Header) String() string { return "[" + h.Version + "]" }

// EmptyLine is a blank line.
type EmptyLine struct{}

func (EmptyLine) Kind() Kind { return KindEmptyLine }

func (EmptyLine) Fields() []Field { return nil }

func (EmptyLine) String() string { return "" }

// Comment is a line starting with "!".
type Comment struct {
	Text string
}

func (Comment) Kind() Kind { return KindComment }

func (c Comment) Fields() []Field {
	return []Field{{Name: "text", Value: c.Text}}
}

func (c Comment) String() string { return "! " + c.Text }

// Metadata is a "! Key: value" line in the list preamble.
type Metadata struct {
	Key   string
	Value string
}

func (Metadata) Kind() Kind { return KindMetadata }

func (m Metadata) Fields() []Field {
	return []Field{
		{Name: "key", Value: m.Key},
		{Name: "value", Value: m.Value},
	}
}

func (m Metadata) String() string { return "! " + m.Key + ": " + m.Value }

// Include is a %include target% instruction.
type Include struct {
	Target string
}

func (Include) Kind() Kind { return KindInclude }

func (i Include) Fields() []Field {
	return []Field{{Name: "target", Value: i.Target}}
}

func (i Include) String() string { return "%include " + i.Target + "%" }

// Filter is a blocking or element hiding filter.
type Filter struct {
	Text     string
	Selector Selector
	Action   Action
	Options  []Option
}

func (Filter) Kind() Kind { return KindFilter }

func (f Filter) Fields() []Field {
	return []Field{
		{Name: "text", Value: f.Text},
		{Name: "selector", Value: f.Selector},
		{Name: "action", Value: f.Action},
		{Name: "options", Value: f.Options},
	}
}

func (f Filter) String() string { return f.Text }

// Option looks up the value of the named option. When an option is repeated
// the last occurrence wins.
func (f Filter) Option(name string) (any, bool) {
	for i := len(f.Options) - 1; i >= 0; i-- {
		if f.Options[i].Name == name {
			return f.Options[i].Value, true
		}
	}
	return nil, false
}

func (k Kind) String() string {
	switch k {
	case KindHeader:
		return "Header"
	case KindEmptyLine:
		return "EmptyLine"
	case KindComment:
		return "Comment"
	case KindMetadata:
		return "Metadata"
	case KindInclude:
		return "Include"
	case KindFilter:
		return "Filter"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}
