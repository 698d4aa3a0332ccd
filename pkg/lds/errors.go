package lds

import "errors"

var (
	// ErrFileNotFound means the chip has no elementary file with the
	// requested identifier.
	ErrFileNotFound = errors.New("lds: file not found")

	// ErrAccessDenied means the chip refused the select or read,
	// usually because secure messaging is not established.
	ErrAccessDenied = errors.New("lds: access denied")

	// ErrTruncatedFile means the chip returned less data than the
	// file's encoded length announces.
	ErrTruncatedFile = errors.New("lds: truncated file")

	// ErrMalformedFile means a file's contents do not parse as the
	// structure its tag promises.
	ErrMalformedFile = errors.New("lds: malformed file")

	// ErrUnexpectedTag means a file starts with a different outer tag
	// than registered for its identifier.
	ErrUnexpectedTag = errors.New("lds: unexpected outer tag")

	// ErrNotFacialRecord means a biometric data block does not carry
	// an ISO 19794-5 facial record.
	ErrNotFacialRecord = errors.New("lds: not a facial record")
)
