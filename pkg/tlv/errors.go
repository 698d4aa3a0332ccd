package tlv

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncated is returned when the input ends inside a tag,
	// length, or value.
	ErrTruncated = errors.New("tlv: truncated input")

	// ErrInvalidTag is returned for malformed tag bytes (unsupported
	// multi-byte forms).
	ErrInvalidTag = errors.New("tlv: invalid tag")

	// ErrInvalidLength is returned for unsupported length forms
	// (indefinite or longer than two length bytes).
	ErrInvalidLength = errors.New("tlv: invalid length")

	// ErrTagNotFound is returned by Find when the tag is absent.
	ErrTagNotFound = errors.New("tlv: tag not found")
)

// MalformedError reports a structural error together with the tag and
// byte offset at which it was detected.
type MalformedError struct {
	Tag    Tag
	Offset int
	Err    error
}

func (e *MalformedError) Error() string {
	if e.Tag == 0 {
		return fmt.Sprintf("tlv: malformed element at offset %d: %v", e.Offset, e.Err)
	}
	return fmt.Sprintf("tlv: malformed element %s at offset %d: %v", e.Tag, e.Offset, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }
