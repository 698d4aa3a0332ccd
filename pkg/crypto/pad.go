package crypto

import "errors"

// ErrBadPadding is returned when ISO 9797-1 padding cannot be removed.
var ErrBadPadding = errors.New("crypto: bad ISO 9797-1 padding")

// Pad applies ISO 9797-1 padding method 2: a mandatory 0x80 byte
// followed by zeros up to the next multiple of blockLen. The input is
// not modified.
func Pad(data []byte, blockLen int) []byte {
	padLen := blockLen - len(data)%blockLen
	out := make([]byte, len(data)+padLen)
	copy(out, data)
	out[len(data)] = 0x80
	return out
}

// Unpad removes ISO 9797-1 method 2 padding. It fails if no 0x80
// marker is found among the trailing zeros.
func Unpad(data []byte) ([]byte, error) {
	i := len(data) - 1
	for i >= 0 && data[i] == 0x00 {
		i--
	}
	if i < 0 || data[i] != 0x80 {
		return nil, ErrBadPadding
	}
	return data[:i], nil
}
