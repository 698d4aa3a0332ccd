package crypto

import (
	"crypto/des"
	"fmt"
)

// RetailMAC computes ISO 9797-1 MAC algorithm 3 with DES (the "retail
// MAC" used by BAC): single-DES CBC under Ka over all blocks, then one
// DES decryption under Kb and a final DES encryption under Ka.
//
// The key is a 16-byte bundle Ka|Kb. Data must already be padded to an
// 8-byte boundary (method 2); this function does not pad.
func RetailMAC(key, data []byte) ([]byte, error) {
	if len(key) != KeyLen {
		return nil, fmt.Errorf("crypto: retail MAC key must be %d bytes, got %d", KeyLen, len(key))
	}
	if len(data)%DESBlockLen != 0 {
		return nil, fmt.Errorf("crypto: retail MAC input not block aligned (%d bytes)", len(data))
	}

	ka, err := des.NewCipher(key[:8])
	if err != nil {
		return nil, err
	}
	kb, err := des.NewCipher(key[8:])
	if err != nil {
		return nil, err
	}

	h := make([]byte, DESBlockLen)
	for i := 0; i < len(data); i += DESBlockLen {
		for j := 0; j < DESBlockLen; j++ {
			h[j] ^= data[i+j]
		}
		ka.Encrypt(h, h)
	}

	// Final iteration: D(Kb) then E(Ka).
	kb.Decrypt(h, h)
	ka.Encrypt(h, h)
	return h, nil
}
