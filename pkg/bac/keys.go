// Package bac implements Basic Access Control from ICAO Doc 9303
// Part 11: derivation of the document basic access keys from the MRZ
// and the GET CHALLENGE / EXTERNAL AUTHENTICATE mutual authentication
// that yields the secure-messaging session keys.
package bac

import (
	"crypto/sha1"
	"fmt"

	"github.com/epassd/mrtd/pkg/crypto"
	"github.com/epassd/mrtd/pkg/mrz"
)

// DocumentKeys are the basic access keys KEnc and KMac derived from
// the MRZ. They live for one read session and are zeroized when it
// ends.
type DocumentKeys struct {
	Enc   []byte
	Mac   []byte
	Suite crypto.Suite
}

// DeriveKeys derives the 3DES document basic access keys from the MRZ
// key seed. Pure and deterministic: no I/O, same seed, same keys.
//
// The seed's check digits are recomputed here even though the caller
// validated them at acquisition time; a disagreement means the seed
// was corrupted in between and must not produce key material.
func DeriveKeys(seed mrz.KeySeed) (*DocumentKeys, error) {
	return DeriveKeysSuite(seed, crypto.SuiteTDES)
}

// DeriveKeysSuite derives basic access keys for the given cipher
// suite.
func DeriveKeysSuite(seed mrz.KeySeed, suite crypto.Suite) (*DocumentKeys, error) {
	if err := seed.Validate(); err != nil {
		return nil, fmt.Errorf("bac: %w", err)
	}

	info := seed.SeedBytes()
	sum := sha1.Sum(info)
	kseed := sum[:crypto.KeyLen]
	defer crypto.Zeroize(kseed)
	crypto.Zeroize(info)

	enc, err := crypto.DeriveKey(kseed, crypto.KDFEnc, suite)
	if err != nil {
		return nil, err
	}
	mac, err := crypto.DeriveKey(kseed, crypto.KDFMac, suite)
	if err != nil {
		crypto.Zeroize(enc)
		return nil, err
	}
	return &DocumentKeys{Enc: enc, Mac: mac, Suite: suite}, nil
}

// Zeroize wipes the key material. The keys are unusable afterwards.
func (k *DocumentKeys) Zeroize() {
	if k == nil {
		return
	}
	crypto.Zeroize(k.Enc)
	crypto.Zeroize(k.Mac)
}
