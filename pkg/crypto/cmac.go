package crypto

import (
	"crypto/aes"
)

// cmacRb is the constant from RFC 4493 subkey generation for a
// 128-bit block.
const cmacRb = 0x87

// AESCMAC computes AES-CMAC (RFC 4493) over msg. The full 16-byte MAC
// is returned; secure messaging truncates it to MACLen bytes.
func AESCMAC(key, msg []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	k1, k2 := cmacSubkeys(block)
	defer Zeroize(k1)
	defer Zeroize(k2)

	n := (len(msg) + AESBlockLen - 1) / AESBlockLen
	if n == 0 {
		n = 1
	}
	complete := len(msg) != 0 && len(msg)%AESBlockLen == 0

	last := make([]byte, AESBlockLen)
	rest := msg[(n-1)*AESBlockLen:]
	copy(last, rest)
	if complete {
		xorBytes(last, k1)
	} else {
		last[len(rest)] = 0x80
		xorBytes(last, k2)
	}

	x := make([]byte, AESBlockLen)
	for i := 0; i < n-1; i++ {
		xorBytes(x, msg[i*AESBlockLen:(i+1)*AESBlockLen])
		block.Encrypt(x, x)
	}
	xorBytes(x, last)
	block.Encrypt(x, x)
	return x, nil
}

func cmacSubkeys(block interface{ Encrypt(dst, src []byte) }) (k1, k2 []byte) {
	l := make([]byte, AESBlockLen)
	block.Encrypt(l, l)

	k1 = shiftLeft1(l)
	if l[0]&0x80 != 0 {
		k1[AESBlockLen-1] ^= cmacRb
	}
	k2 = shiftLeft1(k1)
	if k1[0]&0x80 != 0 {
		k2[AESBlockLen-1] ^= cmacRb
	}
	return k1, k2
}

func shiftLeft1(src []byte) []byte {
	dst := make([]byte, len(src))
	var carry byte
	for i := len(src) - 1; i >= 0; i-- {
		dst[i] = src[i]<<1 | carry
		carry = src[i] >> 7
	}
	return dst
}

func xorBytes(dst, src []byte) {
	for i := range dst {
		dst[i] ^= src[i]
	}
}
