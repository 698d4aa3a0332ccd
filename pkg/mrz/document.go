package mrz

import (
	"fmt"
	"strings"
)

// Format identifies the MRZ layout.
type Format int

const (
	// FormatTD3 is the two-line 44-character passport zone.
	FormatTD3 Format = iota

	// FormatTD1 is the three-line 30-character ID-card zone.
	FormatTD1
)

// String returns the ICAO name of the format.
func (f Format) String() string {
	if f == FormatTD1 {
		return "TD1"
	}
	return "TD3"
}

// Zone lengths.
const (
	TD3Len = 88
	TD1Len = 90
)

// Document is a fully parsed and check-digit-verified MRZ.
type Document struct {
	Format       Format
	Type         string // document code, e.g. "P", "ID"
	IssuingState string
	Primary      string // primary identifier (surname)
	Secondary    string // secondary identifier (given names)

	DocumentNumber string // filler stripped
	Nationality    string
	BirthDate      string // YYMMDD
	Sex            string // "M", "F" or ""
	ExpiryDate     string // YYMMDD
	PersonalNumber string // optional data, filler stripped

	// Raw is the zone as read from the chip, without line breaks.
	Raw string
}

// ParseDocument parses a concatenated MRZ as stored in DG1: 88
// characters for TD3 (passports) or 90 for TD1 (ID cards). Every
// embedded check digit, including the composite, is verified.
func ParseDocument(zone string) (*Document, error) {
	switch len(zone) {
	case TD3Len:
		return parseTD3(zone)
	case TD1Len:
		return parseTD1(zone)
	default:
		return nil, fmt.Errorf("mrz: zone length %d: %w", len(zone), ErrInvalidFormat)
	}
}

// MatchesSeed verifies that the parsed document agrees with the key
// seed used for access control: same document number, birth date and
// expiry date. Passing BAC already proves key agreement; this guards
// against a misread zone matching a different document's fields.
func (d *Document) MatchesSeed(seed KeySeed) error {
	if d.DocumentNumber != strings.TrimRight(seed.DocumentNumber, "<") ||
		d.BirthDate != seed.BirthDate ||
		d.ExpiryDate != seed.ExpiryDate {
		return ErrSeedMismatch
	}
	return nil
}

func parseTD3(zone string) (*Document, error) {
	l1, l2 := zone[:44], zone[44:]

	if err := verifyDigit(l2[:9], l2[9], "document number"); err != nil {
		return nil, err
	}
	if err := verifyDigit(l2[13:19], l2[19], "date of birth"); err != nil {
		return nil, err
	}
	if err := verifyDigit(l2[21:27], l2[27], "date of expiry"); err != nil {
		return nil, err
	}
	// The personal-number check digit may be '<' when the field is
	// empty.
	if pn := l2[28:42]; strings.Trim(pn, "<") != "" || l2[42] != '<' {
		if err := verifyDigit(pn, l2[42], "personal number"); err != nil {
			return nil, err
		}
	}
	if err := verifyDigit(l2[:10]+l2[13:20]+l2[21:43], l2[43], "composite"); err != nil {
		return nil, err
	}

	primary, secondary := splitName(l1[5:44])
	return &Document{
		Format:         FormatTD3,
		Type:           strings.TrimRight(l1[:2], "<"),
		IssuingState:   strings.TrimRight(l1[2:5], "<"),
		Primary:        primary,
		Secondary:      secondary,
		DocumentNumber: strings.TrimRight(l2[:9], "<"),
		Nationality:    strings.TrimRight(l2[10:13], "<"),
		BirthDate:      l2[13:19],
		Sex:            sexString(l2[20]),
		ExpiryDate:     l2[21:27],
		PersonalNumber: strings.TrimRight(l2[28:42], "<"),
		Raw:            zone,
	}, nil
}

func parseTD1(zone string) (*Document, error) {
	l1, l2, l3 := zone[:30], zone[30:60], zone[60:]

	if err := verifyDigit(l1[5:14], l1[14], "document number"); err != nil {
		return nil, err
	}
	if err := verifyDigit(l2[:6], l2[6], "date of birth"); err != nil {
		return nil, err
	}
	if err := verifyDigit(l2[8:14], l2[14], "date of expiry"); err != nil {
		return nil, err
	}
	composite := l1[5:30] + l2[:7] + l2[8:15] + l2[18:29]
	if err := verifyDigit(composite, l2[29], "composite"); err != nil {
		return nil, err
	}

	primary, secondary := splitName(l3)
	return &Document{
		Format:         FormatTD1,
		Type:           strings.TrimRight(l1[:2], "<"),
		IssuingState:   strings.TrimRight(l1[2:5], "<"),
		Primary:        primary,
		Secondary:      secondary,
		DocumentNumber: strings.TrimRight(l1[5:14], "<"),
		Nationality:    strings.TrimRight(l2[15:18], "<"),
		BirthDate:      l2[:6],
		Sex:            sexString(l2[7]),
		ExpiryDate:     l2[8:14],
		PersonalNumber: strings.TrimRight(l1[15:30], "<"),
		Raw:            zone,
	}, nil
}

func verifyDigit(field string, digit byte, name string) error {
	d, err := CheckDigit(field)
	if err != nil {
		return err
	}
	if d != digit {
		return fmt.Errorf("mrz: %s check digit %c, computed %c: %w", name, digit, d, ErrChecksum)
	}
	return nil
}

// splitName separates the name field into primary and secondary
// identifiers: the two are separated by "<<", single fillers separate
// name parts.
func splitName(field string) (primary, secondary string) {
	field = strings.TrimRight(field, "<")
	primary, secondary, _ = strings.Cut(field, "<<")
	return strings.ReplaceAll(primary, "<", " "), strings.ReplaceAll(secondary, "<", " ")
}

func sexString(c byte) string {
	switch c {
	case 'M':
		return "M"
	case 'F':
		return "F"
	default:
		return ""
	}
}
