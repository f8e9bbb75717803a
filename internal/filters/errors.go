package filters

import (
	"errors"
	"fmt"
)

// ErrInvalidMode is wrapped by the ParseError returned for an unknown mode.
var ErrInvalidMode = errors.New("invalid parsing mode")

// ParseError reports a line the parser could not handle.
type ParseError struct {
	Message string
	Text    string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %q", e.Message, e.Text)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
