package reader

import (
	"context"
	"errors"

	"github.com/epassd/mrtd/pkg/bac"
	"github.com/epassd/mrtd/pkg/lds"
	"github.com/epassd/mrtd/pkg/mrz"
	"github.com/epassd/mrtd/pkg/secure"
	"github.com/epassd/mrtd/pkg/transport"
)

var (
	// ErrBusy is returned when Read is called while another read is
	// in flight on the same Reader.
	ErrBusy = errors.New("reader: read already in progress")

	// ErrMRZMismatch is returned when the machine readable zone in
	// data group 1 disagrees with the key seed that opened the chip.
	// Authentication succeeding first makes this a strong signal of a
	// cloned or miswritten document rather than a typo.
	ErrMRZMismatch = errors.New("reader: data group 1 does not match the access key MRZ")

	// ErrMissingBiometric is returned when data group 2 was requested
	// but the chip does not carry it and the configuration does not
	// allow skipping it.
	ErrMissingBiometric = errors.New("reader: chip carries no data group 2")
)

// Category is a coarse classification of read failures, aimed at the
// operator-facing layer: it decides whether to ask the user to rescan
// the MRZ, re-present the document, or give up.
type Category int

const (
	// CategoryNone means no failure.
	CategoryNone Category = iota

	// CategoryMRZ means the printed MRZ data is wrong or mismatched.
	// Re-acquire the MRZ before retrying.
	CategoryMRZ

	// CategoryAuth means the chip rejected mutual authentication.
	// Usually also an MRZ problem, but retrying too eagerly can
	// trip chip-side rate limits.
	CategoryAuth

	// CategoryConnection means the document left the field, the
	// reader vanished, or an exchange timed out. Re-present the
	// document and retry.
	CategoryConnection

	// CategoryChip means the chip misbehaved after authentication:
	// secure-messaging integrity failures or unparseable files.
	CategoryChip

	// CategoryCancelled means the caller cancelled the read.
	CategoryCancelled

	// CategoryInternal is everything else.
	CategoryInternal
)

// String returns a human-readable name for the category.
func (c Category) String() string {
	switch c {
	case CategoryNone:
		return "None"
	case CategoryMRZ:
		return "MRZ"
	case CategoryAuth:
		return "Auth"
	case CategoryConnection:
		return "Connection"
	case CategoryChip:
		return "Chip"
	case CategoryCancelled:
		return "Cancelled"
	default:
		return "Internal"
	}
}

// Categorize maps a Read error onto its Category.
func Categorize(err error) Category {
	switch {
	case err == nil:
		return CategoryNone
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CategoryCancelled
	case errors.Is(err, ErrMRZMismatch),
		errors.Is(err, mrz.ErrChecksum),
		errors.Is(err, mrz.ErrInvalidCharacter),
		errors.Is(err, mrz.ErrInvalidFormat),
		errors.Is(err, mrz.ErrSeedMismatch):
		return CategoryMRZ
	case errors.Is(err, bac.ErrAuthRejected),
		errors.Is(err, bac.ErrMACInvalid),
		errors.Is(err, bac.ErrChallengeRejected),
		errors.Is(err, bac.ErrChallengeEchoMismatch),
		errors.Is(err, bac.ErrBadResponseLength):
		return CategoryAuth
	case errors.Is(err, transport.ErrTagLost),
		errors.Is(err, transport.ErrTimeout),
		errors.Is(err, transport.ErrNotConnected),
		errors.Is(err, transport.ErrNoReader):
		return CategoryConnection
	case errors.Is(err, secure.ErrMACInvalid),
		errors.Is(err, secure.ErrMalformedResponse),
		errors.Is(err, secure.ErrUnprotectedResponse),
		errors.Is(err, lds.ErrFileNotFound),
		errors.Is(err, lds.ErrAccessDenied),
		errors.Is(err, lds.ErrTruncatedFile),
		errors.Is(err, lds.ErrMalformedFile),
		errors.Is(err, lds.ErrUnexpectedTag),
		errors.Is(err, lds.ErrNotFacialRecord),
		errors.Is(err, ErrMissingBiometric):
		return CategoryChip
	default:
		return CategoryInternal
	}
}
