package secure

import "errors"

var (
	// ErrMACInvalid is returned when a response MAC does not verify.
	// The channel is no longer trustworthy and refuses all further
	// traffic.
	ErrMACInvalid = errors.New("secure: response MAC invalid")

	// ErrChannelClosed is returned when using a closed or poisoned
	// channel.
	ErrChannelClosed = errors.New("secure: channel closed")

	// ErrMalformedResponse is returned when the response lacks the
	// mandatory protected objects or carries broken ones.
	ErrMalformedResponse = errors.New("secure: malformed protected response")

	// ErrUnprotectedResponse is returned when the chip answered a
	// protected command with a bare status word, which chips do when
	// secure messaging broke down on their side.
	ErrUnprotectedResponse = errors.New("secure: unprotected response to protected command")
)
