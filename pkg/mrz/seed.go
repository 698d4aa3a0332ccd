package mrz

import (
	"fmt"
	"strings"
)

// KeySeed carries the three MRZ fields the BAC keys are derived from,
// each with its check digit. The digits normally come straight from
// the optically read zone; NewKeySeed computes them when only the
// field values are known.
type KeySeed struct {
	// DocumentNumber is at most 9 characters; shorter numbers are
	// '<'-padded for derivation.
	DocumentNumber string

	// BirthDate and ExpiryDate are YYMMDD.
	BirthDate  string
	ExpiryDate string

	// The ASCII check digits belonging to the three fields.
	DocumentNumberCheck byte
	BirthDateCheck      byte
	ExpiryDateCheck     byte
}

// NewKeySeed builds a seed from bare field values, computing the three
// check digits.
func NewKeySeed(documentNumber, birthDate, expiryDate string) (KeySeed, error) {
	s := KeySeed{
		DocumentNumber: documentNumber,
		BirthDate:      birthDate,
		ExpiryDate:     expiryDate,
	}
	var err error
	if s.DocumentNumberCheck, err = CheckDigit(s.paddedDocumentNumber()); err != nil {
		return KeySeed{}, err
	}
	if s.BirthDateCheck, err = CheckDigit(birthDate); err != nil {
		return KeySeed{}, err
	}
	if s.ExpiryDateCheck, err = CheckDigit(expiryDate); err != nil {
		return KeySeed{}, err
	}
	if err := s.Validate(); err != nil {
		return KeySeed{}, err
	}
	return s, nil
}

// Validate recomputes all three check digits and verifies the field
// shapes. A mismatch means the zone was misread or the seed was
// corrupted in transit; the seed must not be used for derivation.
func (s KeySeed) Validate() error {
	if n := len(s.DocumentNumber); n == 0 || n > 9 {
		return fmt.Errorf("mrz: document number length %d: %w", n, ErrInvalidFormat)
	}
	if len(s.BirthDate) != 6 || len(s.ExpiryDate) != 6 {
		return fmt.Errorf("mrz: dates must be YYMMDD: %w", ErrInvalidFormat)
	}
	checks := []struct {
		field string
		value string
		digit byte
	}{
		{"document number", s.paddedDocumentNumber(), s.DocumentNumberCheck},
		{"date of birth", s.BirthDate, s.BirthDateCheck},
		{"date of expiry", s.ExpiryDate, s.ExpiryDateCheck},
	}
	for _, c := range checks {
		d, err := CheckDigit(c.value)
		if err != nil {
			return err
		}
		if d != c.digit {
			return fmt.Errorf("mrz: %s check digit %c, computed %c: %w", c.field, c.digit, d, ErrChecksum)
		}
	}
	return nil
}

// SeedBytes returns the 24-character MRZ information string hashed
// into the document key seed: padded document number, birth date and
// expiry date, each followed by its check digit.
func (s KeySeed) SeedBytes() []byte {
	var b strings.Builder
	b.WriteString(s.paddedDocumentNumber())
	b.WriteByte(s.DocumentNumberCheck)
	b.WriteString(s.BirthDate)
	b.WriteByte(s.BirthDateCheck)
	b.WriteString(s.ExpiryDate)
	b.WriteByte(s.ExpiryDateCheck)
	return []byte(b.String())
}

func (s KeySeed) paddedDocumentNumber() string {
	if len(s.DocumentNumber) >= 9 {
		return s.DocumentNumber
	}
	return s.DocumentNumber + strings.Repeat("<", 9-len(s.DocumentNumber))
}
