// Package tlv implements the BER-TLV encoding used by ISO 7816 data
// objects and the ICAO Logical Data Structure: one- and two-byte tags,
// and definite lengths in short form or long form ('81'/'82').
package tlv

import "fmt"

// Tag is a BER-TLV tag. One-byte tags occupy the low byte; two-byte
// tags (first byte with all five low bits set, e.g. 5F1F, 7F61) use
// both bytes in big-endian order.
type Tag uint16

// String formats the tag the way ICAO documents write them.
func (t Tag) String() string {
	if t > 0xFF {
		return fmt.Sprintf("'%04X'", uint16(t))
	}
	return fmt.Sprintf("'%02X'", uint16(t))
}

// Constructed reports whether the tag's constructed bit is set.
func (t Tag) Constructed() bool {
	first := byte(t)
	if t > 0xFF {
		first = byte(t >> 8)
	}
	return first&0x20 != 0
}

// encodedLen returns the number of bytes the tag occupies on the wire.
func (t Tag) encodedLen() int {
	if t > 0xFF {
		return 2
	}
	return 1
}

// append writes the tag bytes.
func (t Tag) append(b []byte) []byte {
	if t > 0xFF {
		return append(b, byte(t>>8), byte(t))
	}
	return append(b, byte(t))
}
