package mrz

import "errors"

var (
	// ErrChecksum is returned when an embedded check digit disagrees
	// with the recomputed one.
	ErrChecksum = errors.New("mrz: check digit mismatch")

	// ErrInvalidCharacter is returned for characters outside the MRZ
	// alphabet (0-9, A-Z, <).
	ErrInvalidCharacter = errors.New("mrz: invalid character")

	// ErrInvalidFormat is returned when the zone length or field
	// layout matches neither TD1 nor TD3.
	ErrInvalidFormat = errors.New("mrz: invalid format")

	// ErrSeedMismatch is returned when a parsed document disagrees
	// with the key seed used for access control.
	ErrSeedMismatch = errors.New("mrz: document does not match key seed")
)
