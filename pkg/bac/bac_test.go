package bac

import (
	"bytes"
	"errors"
	"testing"

	"github.com/skythen/apdu"

	"github.com/epassd/mrtd/pkg/crypto"
)

func testKeys(t *testing.T) *DocumentKeys {
	t.Helper()
	keys, err := DeriveKeys(workedExampleSeed(t))
	if err != nil {
		t.Fatalf("DeriveKeys: %v", err)
	}
	return keys
}

func fixedRand(t *testing.T) *bytes.Reader {
	t.Helper()
	return bytes.NewReader(mustHex(t, "781723860C06C2260B795240CB7049B01C19B33E32804F0B"))
}

func TestAuthenticateChallengeRejected(t *testing.T) {
	tests := []struct {
		name string
		resp apdu.Rapdu
	}{
		{"ErrorStatus", apdu.Rapdu{SW1: 0x69, SW2: 0x82}},
		{"ShortChallenge", apdu.Rapdu{Data: []byte{1, 2, 3, 4}, SW1: 0x90, SW2: 0x00}},
		{"LongChallenge", apdu.Rapdu{Data: make([]byte, 16), SW1: 0x90, SW2: 0x00}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := NewAuthenticator(AuthenticatorConfig{
				Transport: &scriptedTransport{responses: []apdu.Rapdu{tc.resp}},
				Keys:      testKeys(t),
				Rand:      fixedRand(t),
			})
			if _, err := a.Authenticate(); !errors.Is(err, ErrChallengeRejected) {
				t.Errorf("err = %v, want ErrChallengeRejected", err)
			}
			if a.State() != StateFailed {
				t.Errorf("state = %s, want Failed", a.State())
			}
		})
	}
}

func TestAuthenticateRejectedStatus(t *testing.T) {
	chip := &scriptedTransport{responses: []apdu.Rapdu{
		{Data: mustHex(t, "4608F91988702212"), SW1: 0x90, SW2: 0x00},
		{SW1: 0x63, SW2: 0x00},
	}}
	a := NewAuthenticator(AuthenticatorConfig{Transport: chip, Keys: testKeys(t), Rand: fixedRand(t)})
	if _, err := a.Authenticate(); !errors.Is(err, ErrAuthRejected) {
		t.Errorf("err = %v, want ErrAuthRejected", err)
	}
}

// TestAuthenticateWrongKeyMAC simulates a chip that derived different
// keys (a misread MRZ): its response MAC never verifies, and the
// authenticator must fail closed rather than reach Authenticated.
func TestAuthenticateWrongKeyMAC(t *testing.T) {
	wrongMac := mustHex(t, "00112233445566778899AABBCCDDEEFF")
	rndICC := mustHex(t, "4608F91988702212")
	rndIFD := mustHex(t, "781723860C06C226")
	kICC := mustHex(t, "0B4F80323EB3191CB04970CB4052790B")

	keys := testKeys(t)
	r := append(append(append([]byte{}, rndICC...), rndIFD...), kICC...)
	iv := make([]byte, crypto.DESBlockLen)
	eICC, err := crypto.TDESCBCEncrypt(keys.Enc, iv, r)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	mICC, err := crypto.RetailMAC(wrongMac, crypto.Pad(eICC, crypto.DESBlockLen))
	if err != nil {
		t.Fatalf("mac: %v", err)
	}

	chip := &scriptedTransport{responses: []apdu.Rapdu{
		{Data: rndICC, SW1: 0x90, SW2: 0x00},
		{Data: append(eICC, mICC...), SW1: 0x90, SW2: 0x00},
	}}
	a := NewAuthenticator(AuthenticatorConfig{Transport: chip, Keys: keys, Rand: fixedRand(t)})
	if _, err := a.Authenticate(); !errors.Is(err, ErrMACInvalid) {
		t.Errorf("err = %v, want ErrMACInvalid", err)
	}
}

// TestAuthenticateEchoMismatch simulates a chip replaying a cryptogram
// from a different run: the MAC verifies under the right keys but the
// embedded nonces are stale.
func TestAuthenticateEchoMismatch(t *testing.T) {
	rndICC := mustHex(t, "4608F91988702212")
	staleIFD := mustHex(t, "0000000000000000")
	kICC := mustHex(t, "0B4F80323EB3191CB04970CB4052790B")

	keys := testKeys(t)
	r := append(append(append([]byte{}, rndICC...), staleIFD...), kICC...)
	iv := make([]byte, crypto.DESBlockLen)
	eICC, err := crypto.TDESCBCEncrypt(keys.Enc, iv, r)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	mICC, err := crypto.RetailMAC(keys.Mac, crypto.Pad(eICC, crypto.DESBlockLen))
	if err != nil {
		t.Fatalf("mac: %v", err)
	}

	chip := &scriptedTransport{responses: []apdu.Rapdu{
		{Data: rndICC, SW1: 0x90, SW2: 0x00},
		{Data: append(eICC, mICC...), SW1: 0x90, SW2: 0x00},
	}}
	a := NewAuthenticator(AuthenticatorConfig{Transport: chip, Keys: keys, Rand: fixedRand(t)})
	if _, err := a.Authenticate(); !errors.Is(err, ErrChallengeEchoMismatch) {
		t.Errorf("err = %v, want ErrChallengeEchoMismatch", err)
	}
}

func TestAuthenticateBadResponseLength(t *testing.T) {
	chip := &scriptedTransport{responses: []apdu.Rapdu{
		{Data: mustHex(t, "4608F91988702212"), SW1: 0x90, SW2: 0x00},
		{Data: make([]byte, 20), SW1: 0x90, SW2: 0x00},
	}}
	a := NewAuthenticator(AuthenticatorConfig{Transport: chip, Keys: testKeys(t), Rand: fixedRand(t)})
	if _, err := a.Authenticate(); !errors.Is(err, ErrBadResponseLength) {
		t.Errorf("err = %v, want ErrBadResponseLength", err)
	}
}

func TestAuthenticatorSingleUse(t *testing.T) {
	a := NewAuthenticator(AuthenticatorConfig{
		Transport: &scriptedTransport{},
		Keys:      testKeys(t),
		Rand:      fixedRand(t),
	})
	if _, err := a.Authenticate(); err == nil {
		t.Fatal("Authenticate succeeded against an empty script")
	}
	if _, err := a.Authenticate(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second Authenticate err = %v, want ErrInvalidState", err)
	}
}

func TestSessionZeroize(t *testing.T) {
	s := &Session{
		KSEnc: mustHex(t, "979EC13B1CBFE9DCD01AB0FED307EAE5"),
		KSMAC: mustHex(t, "F1CB1F1FB5ADF208806B89DC579DC1F8"),
		SSC:   0x887022120C06C226,
	}
	s.Zeroize()
	if !bytes.Equal(s.KSEnc, make([]byte, 16)) || !bytes.Equal(s.KSMAC, make([]byte, 16)) || s.SSC != 0 {
		t.Error("Zeroize left key material behind")
	}
}
