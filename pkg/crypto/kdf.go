package crypto

import (
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"math/bits"
)

// Key derivation counters from Doc 9303 Part 11 Section 9.7.1.
const (
	// KDFEnc derives an encryption key.
	KDFEnc uint32 = 1

	// KDFMac derives a MAC key.
	KDFMac uint32 = 2
)

// DeriveKey implements the BAC key derivation mechanism: the first 16
// bytes of SHA1(seed || counter), with counter encoded big-endian.
// For the 3DES suite the DES parity bits are adjusted; for AES-128 the
// truncated hash is used as-is.
//
// The loop over the hash output is branch-free with respect to the
// seed content.
func DeriveKey(seed []byte, counter uint32, suite Suite) ([]byte, error) {
	if len(seed) == 0 {
		return nil, fmt.Errorf("crypto: empty derivation seed")
	}

	h := sha1.New()
	h.Write(seed)
	var c [4]byte
	binary.BigEndian.PutUint32(c[:], counter)
	h.Write(c[:])
	sum := h.Sum(nil)
	defer Zeroize(sum)

	key := make([]byte, KeyLen)
	copy(key, sum[:KeyLen])

	if suite == SuiteTDES {
		AdjustDESParity(key)
	}
	return key, nil
}

// AdjustDESParity sets the least significant bit of every byte so the
// byte has odd parity, in place. DES ignores these bits; well-formed
// keys carry them anyway.
func AdjustDESParity(key []byte) {
	for i, b := range key {
		// Parity over the 7 key bits decides the low bit.
		ones := bits.OnesCount8(b >> 1)
		key[i] = (b &^ 1) | byte(1-ones&1)
	}
}
