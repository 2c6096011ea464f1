package shell

import (
	"errors"
	"fmt"
)

var (
	// ErrUnterminatedQuote is returned when the input ends inside a quote.
	ErrUnterminatedQuote = errors.New("unterminated quote")
	// ErrTrailingBackslash is returned when the input ends with an escape.
	ErrTrailingBackslash = errors.New("trailing backslash")

	ErrEmptyPipelineSegment  = errors.New("empty pipeline segment")
	ErrMissingRedirectTarget = errors.New("missing redirect target")
	ErrUnclosedBlock         = errors.New("unclosed block")
	ErrUnexpectedToken       = errors.New("unexpected token")
)

// LexError is a tokenizer failure at a rune offset in the input line.
type LexError struct {
	Pos int
	Err error
}

func (e *LexError) Error() string {
	return fmt.Sprintf("%v at position %d", e.Err, e.Pos)
}

func (e *LexError) Unwrap() error {
	return e.Err
}

// ParseError is a parser failure near the given token text.
type ParseError struct {
	Near string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Near == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v near %q", e.Err, e.Near)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Incomplete reports whether err means more input could complete the line:
// an open quote, an unclosed block or a trailing line continuation.
func Incomplete(err error) bool {
	return errors.Is(err, ErrUnterminatedQuote) ||
		errors.Is(err, ErrUnclosedBlock) ||
		errors.Is(err, ErrTrailingBackslash)
}
