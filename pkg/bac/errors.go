package bac

import "errors"

var (
	// ErrChallengeRejected is returned when GET CHALLENGE fails or
	// yields anything but 8 bytes.
	ErrChallengeRejected = errors.New("bac: chip rejected challenge request")

	// ErrAuthRejected is returned when the chip answers EXTERNAL
	// AUTHENTICATE with an error status. The usual cause is a
	// misread MRZ: the derived keys do not match the document.
	ErrAuthRejected = errors.New("bac: chip rejected authentication")

	// ErrMACInvalid is returned when the MAC on the chip's
	// authentication response does not verify. The derived keys are
	// wrong or the chip is hostile; the attempt is never retried
	// with the same keys.
	ErrMACInvalid = errors.New("bac: response MAC invalid")

	// ErrChallengeEchoMismatch is returned when the decrypted
	// response does not echo the nonces exchanged earlier.
	ErrChallengeEchoMismatch = errors.New("bac: challenge echo mismatch")

	// ErrBadResponseLength is returned when the authentication
	// response has the wrong size.
	ErrBadResponseLength = errors.New("bac: bad authentication response length")

	// ErrInvalidState is returned when Authenticate is called on a
	// spent authenticator.
	ErrInvalidState = errors.New("bac: authenticator already used")
)
