// Package crypto provides the cryptographic primitives used by Basic
// Access Control and secure messaging, as defined in ICAO Doc 9303
// Part 11 and ISO 9797-1.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"fmt"
)

// Block and key size constants.
const (
	// KeyLen is the length of every BAC key (KEnc, KMac, KSEnc, KSMAC).
	KeyLen = 16

	// DESBlockLen is the DES/3DES block length.
	DESBlockLen = 8

	// AESBlockLen is the AES block length.
	AESBlockLen = 16

	// MACLen is the length of every secure-messaging MAC.
	MACLen = 8
)

// Suite selects the cipher suite for key derivation and secure messaging.
// BAC chips use 3DES; the AES-128 variant is shared with PACE-capable
// documents.
type Suite int

const (
	// SuiteTDES is two-key 3DES with retail MAC (the BAC baseline).
	SuiteTDES Suite = iota

	// SuiteAES128 is AES-128-CBC with CMAC.
	SuiteAES128
)

// String returns a human-readable name for the suite.
func (s Suite) String() string {
	switch s {
	case SuiteTDES:
		return "3DES"
	case SuiteAES128:
		return "AES-128"
	default:
		return "Unknown"
	}
}

// BlockLen returns the cipher block length of the suite.
func (s Suite) BlockLen() int {
	if s == SuiteAES128 {
		return AESBlockLen
	}
	return DESBlockLen
}

// tdesCipher builds a 3DES cipher from a two-key (16-byte) or
// three-key (24-byte) bundle. Two-key bundles are expanded K1|K2|K1
// per ISO 11568.
func tdesCipher(key []byte) (cipher.Block, error) {
	switch len(key) {
	case 16:
		k := make([]byte, 24)
		copy(k, key)
		copy(k[16:], key[:8])
		defer Zeroize(k)
		return des.NewTripleDESCipher(k)
	case 24:
		return des.NewTripleDESCipher(key)
	default:
		return nil, fmt.Errorf("crypto: invalid 3DES key length %d", len(key))
	}
}

// TDESCBCEncrypt encrypts data with two-key 3DES in CBC mode.
// Data must already be padded to an 8-byte boundary.
func TDESCBCEncrypt(key, iv, data []byte) ([]byte, error) {
	if len(data)%DESBlockLen != 0 {
		return nil, fmt.Errorf("crypto: 3DES-CBC input not block aligned (%d bytes)", len(data))
	}
	block, err := tdesCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, data)
	return out, nil
}

// TDESCBCDecrypt decrypts 3DES-CBC ciphertext.
func TDESCBCDecrypt(key, iv, data []byte) ([]byte, error) {
	if len(data)%DESBlockLen != 0 {
		return nil, fmt.Errorf("crypto: 3DES-CBC input not block aligned (%d bytes)", len(data))
	}
	block, err := tdesCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	return out, nil
}

// AESCBCEncrypt encrypts block-aligned data with AES-CBC.
func AESCBCEncrypt(key, iv, data []byte) ([]byte, error) {
	if len(data)%AESBlockLen != 0 {
		return nil, fmt.Errorf("crypto: AES-CBC input not block aligned (%d bytes)", len(data))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, data)
	return out, nil
}

// AESCBCDecrypt decrypts AES-CBC ciphertext.
func AESCBCDecrypt(key, iv, data []byte) ([]byte, error) {
	if len(data)%AESBlockLen != 0 {
		return nil, fmt.Errorf("crypto: AES-CBC input not block aligned (%d bytes)", len(data))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	return out, nil
}

// AESEncryptBlock encrypts a single 16-byte block. Used to derive the
// secure-messaging IV from the send-sequence counter in the AES suite.
func AESEncryptBlock(key, in []byte) ([]byte, error) {
	if len(in) != AESBlockLen {
		return nil, fmt.Errorf("crypto: AES block must be %d bytes, got %d", AESBlockLen, len(in))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, AESBlockLen)
	block.Encrypt(out, in)
	return out, nil
}
