// Package transport abstracts the APDU exchange with a contactless
// chip. The protocol layers above it never touch I/O directly; they
// talk to a Transport, which makes them testable against simulated
// chips.
package transport

import (
	"errors"

	"github.com/skythen/apdu"
)

var (
	// ErrTagLost is returned when the document was removed from the
	// field mid-exchange. Callers surface this separately from other
	// I/O failures: it is the expected failure mode, not a fault.
	ErrTagLost = errors.New("transport: tag lost")

	// ErrTimeout is returned when one exchange exceeded the deadline.
	// The chip-side session state is unknown afterwards, so the
	// session cannot be resumed.
	ErrTimeout = errors.New("transport: exchange timed out")

	// ErrNotConnected is returned when Exchange is called before
	// Connect or after Disconnect.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrNoReader is returned when no card reader is available.
	ErrNoReader = errors.New("transport: no reader found")
)

// Transport exchanges command APDUs with a chip. Implementations are
// not safe for concurrent use; the protocol is strictly sequential.
type Transport interface {
	// Connect establishes the card session.
	Connect() error

	// Exchange transmits one command APDU and returns the response.
	// At most one exchange is outstanding at a time.
	Exchange(capdu apdu.Capdu) (apdu.Rapdu, error)

	// Disconnect releases the card session. Safe to call more than
	// once.
	Disconnect() error
}

// ParseResponse splits raw response bytes into an apdu.Rapdu.
func ParseResponse(raw []byte) (apdu.Rapdu, error) {
	if len(raw) < 2 {
		return apdu.Rapdu{}, errors.New("transport: response shorter than status words")
	}
	var data []byte
	if len(raw) > 2 {
		data = append([]byte(nil), raw[:len(raw)-2]...)
	}
	return apdu.Rapdu{
		Data: data,
		SW1:  raw[len(raw)-2],
		SW2:  raw[len(raw)-1],
	}, nil
}
