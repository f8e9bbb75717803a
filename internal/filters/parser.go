package filters

import (
	"regexp"
	"strings"
)

var (
	headerPattern   = regexp.MustCompile(`(?i)^\[(Adblock(?:\s*Plus\s*[\d.]+?)?)\]$`)
	metadataPattern = regexp.MustCompile(`^!\s*([\w\s-]+?)\s*:\s*(.*)$`)
	includePattern  = regexp.MustCompile(`^%include\s+(.+)%$`)
	hidingPattern   = regexp.MustCompile(`^([^/*|@"!]*?)#([@?$])?#(.+)$`)
	optionsPattern  = regexp.MustCompile(`\$(~?[\w-]+(?:=[^,]+)?(?:,~?[\w-]+(?:=[^,]+)?)*)$`)
)

// Valid reports whether m is a mode the parser understands.
func (m Mode) Valid() bool {
	switch m {
	case ModeBody, ModeStart, ModeMetadata:
		return true
	}
	return false
}

// ParseMode converts a mode name into a Mode.
func ParseMode(name string) (Mode, error) {
	mode := Mode(strings.ToLower(strings.TrimSpace(name)))
	if !mode.Valid() {
		return "", &ParseError{Message: "unknown mode", Text: name, Err: ErrInvalidMode}
	}
	return mode, nil
}

// ParseLine parses a single filter-list line.
//
// Headers are only recognized in start mode and metadata only in start and
// metadata modes; in body mode such lines parse as filters and comments.
func ParseLine(line string, mode Mode) (Record, error) {
	if !mode.Valid() {
		return nil, &ParseError{Message: "unknown mode " + string(mode), Text: line, Err: ErrInvalidMode}
	}

	stripped := strings.TrimSpace(line)
	if stripped == "" {
		return EmptyLine{}, nil
	}

	if mode == ModeStart {
		if m := headerPattern.FindStringSubmatch(stripped); m != nil {
			return Header{Version: m[1]}, nil
		}
	}

	if strings.HasPrefix(stripped, "!") {
		if mode != ModeBody {
			if m := metadataPattern.FindStringSubmatch(stripped); m != nil {
				return Metadata{Key: m[1], Value: m[2]}, nil
			}
		}
		return Comment{Text: strings.TrimSpace(stripped[1:])}, nil
	}

	if strings.HasPrefix(stripped, "%") && strings.HasSuffix(stripped, "%") {
		return parseInstruction(stripped)
	}

	return ParseFilter(stripped), nil
}

func parseInstruction(text string) (Record, error) {
	m := includePattern.FindStringSubmatch(text)
	if m == nil {
		return nil, &ParseError{Message: "unrecognized instruction", Text: text}
	}
	return Include{Target: strings.TrimSpace(m[1])}, nil
}

// ParseFilter parses the text of a blocking or element hiding filter.
func ParseFilter(text string) Filter {
	if m := hidingPattern.FindStringSubmatch(text); m != nil {
		return parseHidingFilter(text, m[1], m[2], m[3])
	}
	return parseBlockingFilter(text)
}

func parseBlockingFilter(text string) Filter {
	pattern := text
	action := ActionBlock
	var options []Option

	if strings.Contains(pattern, "$") {
		if loc := optionsPattern.FindStringSubmatchIndex(pattern); loc != nil {
			options = parseFilterOptions(pattern[loc[2]:loc[3]])
			pattern = pattern[:loc[0]]
		}
	}

	if strings.HasPrefix(pattern, "@@") {
		action = ActionAllow
		pattern = pattern[2:]
	}

	selector := Selector{Type: SelectorURLPattern, Value: pattern}
	if len(pattern) > 1 && strings.HasPrefix(pattern, "/") && strings.HasSuffix(pattern, "/") {
		selector = Selector{Type: SelectorURLRegexp, Value: pattern[1 : len(pattern)-1]}
	}

	return Filter{
		Text:     text,
		Selector: selector,
		Action:   action,
		Options:  options,
	}
}

func parseHidingFilter(text, domains, flag, body string) Filter {
	selector := Selector{Type: SelectorCSS, Value: body}
	action := ActionHide

	switch flag {
	case "@":
		action = ActionShow
	case "?":
		selector.Type = SelectorExtendedCSS
	case "$":
		selector.Type = SelectorSnippet
	}

	var options []Option
	if domains != "" {
		options = append(options, Option{Name: "domain", Value: parseOptionList(domains, ",")})
	}

	return Filter{
		Text:     text,
		Selector: selector,
		Action:   action,
		Options:  options,
	}
}

func parseFilterOptions(text string) []Option {
	parts := strings.Split(text, ",")
	options := make([]Option, 0, len(parts))
	for _, part := range parts {
		options = append(options, parseFilterOption(part))
	}
	return options
}

// parseFilterOption handles the options whose value is itself a list.
func parseFilterOption(text string) Option {
	opt := parseOption(text)
	value, ok := opt.Value.(string)
	if !ok {
		return opt
	}
	switch opt.Name {
	case "domain":
		opt.Value = parseOptionList(value, "|")
	case "sitekey":
		opt.Value = strings.Split(value, "|")
	}
	return opt
}

func parseOptionList(text, sep string) []Option {
	parts := strings.Split(text, sep)
	options := make([]Option, 0, len(parts))
	for _, part := range parts {
		options = append(options, parseOption(part))
	}
	return options
}

func parseOption(text string) Option {
	if name, value, ok := strings.Cut(text, "="); ok {
		return Option{Name: name, Value: value}
	}
	if strings.HasPrefix(text, "~") {
		return Option{Name: text[1:], Value: false}
	}
	return Option{Name: text, Value: true}
}
