package gps

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedSentence matches any *MalformedSentenceError.
	ErrMalformedSentence = errors.New("malformed sentence")
	// ErrInvalidField matches any *InvalidFieldError.
	ErrInvalidField = errors.New("invalid field")
)

// MalformedSentenceError reports an unrecognized identifier or a token count
// that does not fit the recognized sentence kind.
type MalformedSentenceError struct {
	Expected   Kind
	Identifier string
	TokenCount int
}

func (e *MalformedSentenceError) Error() string {
	if e.Expected == KindUnknown {
		return fmt.Sprintf("malformed sentence: unrecognized identifier %q (tokens=%d)", e.Identifier, e.TokenCount)
	}
	return fmt.Sprintf("malformed sentence: %s with %d tokens", e.Expected, e.TokenCount)
}

func (e *MalformedSentenceError) Is(target error) bool {
	return target == ErrMalformedSentence
}

// InvalidFieldError reports a numeric field holding non-numeric content.
// Index is the position in the token sequence (0 is the identifier).
type InvalidFieldError struct {
	Kind  Kind
	Index int
	Raw   string
	Err   error
}

func (e *InvalidFieldError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid field: %s[%d]=%q: %v", e.Kind, e.Index, e.Raw, e.Err)
	}
	return fmt.Sprintf("invalid field: %s[%d]=%q", e.Kind, e.Index, e.Raw)
}

func (e *InvalidFieldError) Is(target error) bool {
	return target == ErrInvalidField
}

func (e *InvalidFieldError) Unwrap() error {
	return e.Err
}
