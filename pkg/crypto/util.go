package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"
)

// MACEqual compares two MACs in constant time.
func MACEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// RandomBytes reads n bytes from src, or from crypto/rand when src is
// nil. Protocol objects take an injectable reader so published test
// vectors with fixed randoms can be replayed.
func RandomBytes(src io.Reader, n int) ([]byte, error) {
	if src == nil {
		src = rand.Reader
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(src, buf); err != nil {
		return nil, fmt.Errorf("crypto: reading random bytes: %w", err)
	}
	return buf, nil
}

// Zeroize overwrites key material in place. Callers still hold the
// slice header; the backing bytes are gone.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// XOR returns a XOR b. Both inputs must have the same length.
func XOR(a, b []byte) ([]byte, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("crypto: XOR length mismatch (%d vs %d)", len(a), len(b))
	}
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out, nil
}
