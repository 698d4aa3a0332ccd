package tlv

import (
	"golang.org/x/crypto/cryptobyte"
)

// Element is one decoded TLV data object.
type Element struct {
	Tag   Tag
	Value []byte
}

// Reader walks a sequence of sibling TLV elements.
//
//	r := tlv.NewReader(data)
//	for r.Next() {
//	    el := r.Element()
//	    ...
//	}
//	if err := r.Err(); err != nil { ... }
type Reader struct {
	s      cryptobyte.String
	offset int
	cur    Element
	err    error
}

// NewReader creates a Reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{s: cryptobyte.String(data)}
}

// Next advances to the next element. It returns false at the end of
// input or on error; the two are told apart via Err.
func (r *Reader) Next() bool {
	if r.err != nil || r.s.Empty() {
		return false
	}

	start := r.offset
	tag, n, err := readTag(&r.s)
	if err != nil {
		r.err = &MalformedError{Offset: start, Err: err}
		return false
	}
	r.offset += n

	length, n, err := readLength(&r.s)
	if err != nil {
		r.err = &MalformedError{Tag: tag, Offset: start, Err: err}
		return false
	}
	r.offset += n

	var value []byte
	if !r.s.ReadBytes(&value, length) {
		r.err = &MalformedError{Tag: tag, Offset: start, Err: ErrTruncated}
		return false
	}
	r.offset += length

	r.cur = Element{Tag: tag, Value: value}
	return true
}

// Element returns the current element. Only valid after Next returned
// true.
func (r *Reader) Element() Element { return r.cur }

// Err returns the first error encountered while reading.
func (r *Reader) Err() error { return r.err }

// Parse decodes exactly one element from the front of data and returns
// the remaining bytes.
func Parse(data []byte) (Element, []byte, error) {
	r := NewReader(data)
	if !r.Next() {
		if err := r.Err(); err != nil {
			return Element{}, nil, err
		}
		return Element{}, nil, &MalformedError{Offset: 0, Err: ErrTruncated}
	}
	return r.cur, []byte(r.s), nil
}

// Find scans sibling elements in data for the given tag.
func Find(data []byte, tag Tag) (Element, error) {
	r := NewReader(data)
	for r.Next() {
		if r.cur.Tag == tag {
			return r.cur, nil
		}
	}
	if err := r.Err(); err != nil {
		return Element{}, err
	}
	return Element{}, ErrTagNotFound
}

// OuterLen returns the total encoded length (header plus value) of the
// element starting at prefix. Only the header bytes need to be present;
// this is how a file length is discovered from the first bytes of a
// READ BINARY response.
func OuterLen(prefix []byte) (int, error) {
	s := cryptobyte.String(prefix)
	_, tagLen, err := readTag(&s)
	if err != nil {
		return 0, &MalformedError{Offset: 0, Err: err}
	}
	valLen, lenLen, err := readLength(&s)
	if err != nil {
		return 0, &MalformedError{Offset: tagLen, Err: err}
	}
	return tagLen + lenLen + valLen, nil
}

func readTag(s *cryptobyte.String) (Tag, int, error) {
	var first byte
	if !s.ReadUint8(&first) {
		return 0, 0, ErrTruncated
	}
	if first == 0x00 || first == 0xFF {
		return 0, 0, ErrInvalidTag
	}
	if first&0x1F != 0x1F {
		return Tag(first), 1, nil
	}
	var second byte
	if !s.ReadUint8(&second) {
		return 0, 0, ErrTruncated
	}
	// Tag numbers above two bytes do not occur in the LDS.
	if second&0x80 != 0 {
		return 0, 0, ErrInvalidTag
	}
	return Tag(uint16(first)<<8 | uint16(second)), 2, nil
}

func readLength(s *cryptobyte.String) (int, int, error) {
	var first byte
	if !s.ReadUint8(&first) {
		return 0, 0, ErrTruncated
	}
	switch {
	case first < 0x80:
		return int(first), 1, nil
	case first == 0x81:
		var l byte
		if !s.ReadUint8(&l) {
			return 0, 0, ErrTruncated
		}
		return int(l), 2, nil
	case first == 0x82:
		var l uint16
		if !s.ReadUint16(&l) {
			return 0, 0, ErrTruncated
		}
		return int(l), 3, nil
	default:
		// 0x80 (indefinite) and three-plus byte lengths are not
		// valid in the LDS.
		return 0, 0, ErrInvalidLength
	}
}
