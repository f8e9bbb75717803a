package filters

// ListPosition tracks which mode the next line of a filter list is parsed in:
// the first line may be a header, the lines after it may be metadata until
// anything else appears, and everything after that is body.
type ListPosition struct {
	seen   int
	closed bool
}

// Mode returns the mode for the next line.
func (p *ListPosition) Mode() Mode {
	switch {
	case p.seen == 0:
		return ModeStart
	case p.closed:
		return ModeBody
	default:
		return ModeMetadata
	}
}

// Advance records the record parsed from the previous line.
func (p *ListPosition) Advance(rec Record) {
	p.seen++
	if k := rec.Kind(); k != KindHeader && k != KindMetadata {
		p.closed = true
	}
}

// ParseList parses the lines of a whole filter list, in order. It stops at the
// first line that fails to parse.
func ParseList(lines []string) ([]Record, error) {
	var pos ListPosition
	records := make([]Record, 0, len(lines))
	for _, line := range lines {
		rec, err := ParseLine(line, pos.Mode())
		if err != nil {
			return nil, err
		}
		pos.Advance(rec)
		records = append(records, rec)
	}
	return records, nil
}
