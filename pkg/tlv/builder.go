package tlv

// Builder assembles BER-TLV encoded data objects.
type Builder struct {
	buf []byte
}

// Add appends one tag/length/value triple. The length form is chosen
// automatically (short, '81', or '82').
func (b *Builder) Add(tag Tag, value []byte) *Builder {
	b.buf = tag.append(b.buf)
	b.buf = AppendLength(b.buf, len(value))
	b.buf = append(b.buf, value...)
	return b
}

// AddRaw appends pre-encoded bytes unchanged.
func (b *Builder) AddRaw(raw []byte) *Builder {
	b.buf = append(b.buf, raw...)
	return b
}

// Bytes returns the encoded result.
func (b *Builder) Bytes() []byte { return b.buf }

// Len returns the current encoded size.
func (b *Builder) Len() int { return len(b.buf) }

// Encode is a convenience for a single element.
func Encode(tag Tag, value []byte) []byte {
	var b Builder
	return b.Add(tag, value).Bytes()
}

// AppendLength appends a BER definite length in its minimal form.
func AppendLength(buf []byte, n int) []byte {
	switch {
	case n < 0x80:
		return append(buf, byte(n))
	case n <= 0xFF:
		return append(buf, 0x81, byte(n))
	default:
		return append(buf, 0x82, byte(n>>8), byte(n))
	}
}
