package bac

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pion/logging"
	"github.com/skythen/apdu"

	"github.com/epassd/mrtd/pkg/crypto"
	"github.com/epassd/mrtd/pkg/transport"
)

// Authentication sizes from Doc 9303 Part 11 Section 4.3.
const (
	// ChallengeLen is the length of RND.ICC and RND.IFD.
	ChallengeLen = 8

	// KeyingLen is the length of K.IFD and K.ICC.
	KeyingLen = 16

	// cryptogramLen is the encrypted part of either authentication
	// message: RND(8) || RND(8) || K(16).
	cryptogramLen = ChallengeLen*2 + KeyingLen
)

// State tracks the mutual authentication progress.
type State int

const (
	StateIdle State = iota
	StateChallengeRequested
	StateChallengeReceived
	StateAuthenticateSent
	StateAuthenticated
	StateFailed
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateChallengeRequested:
		return "ChallengeRequested"
	case StateChallengeReceived:
		return "ChallengeReceived"
	case StateAuthenticateSent:
		return "AuthenticateSent"
	case StateAuthenticated:
		return "Authenticated"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Session is the output of a successful mutual authentication: the
// secure-messaging keys and the initial send-sequence counter. It is
// handed to the secure channel, which owns it from then on.
type Session struct {
	KSEnc []byte
	KSMAC []byte
	SSC   uint64
	Suite crypto.Suite
}

// Zeroize wipes the session key material.
func (s *Session) Zeroize() {
	if s == nil {
		return
	}
	crypto.Zeroize(s.KSEnc)
	crypto.Zeroize(s.KSMAC)
	s.SSC = 0
}

// AuthenticatorConfig configures an Authenticator.
type AuthenticatorConfig struct {
	// Transport exchanges the authentication APDUs. Required.
	Transport transport.Transport

	// Keys are the derived document basic access keys. Required.
	Keys *DocumentKeys

	// Rand supplies RND.IFD and K.IFD. Nil means crypto/rand; tests
	// inject the published worked-example values here.
	Rand io.Reader

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Authenticator runs one GET CHALLENGE / EXTERNAL AUTHENTICATE
// exchange. It is single-use: any failure is terminal, because a
// failed run is the signature of a misread MRZ and some chips
// rate-limit or lock after repeated failures. Re-acquiring the MRZ
// and building a fresh Authenticator is the only retry path.
type Authenticator struct {
	transport transport.Transport
	keys      *DocumentKeys
	rand      io.Reader
	log       logging.LeveledLogger

	state State
}

// NewAuthenticator creates an authenticator in StateIdle.
func NewAuthenticator(config AuthenticatorConfig) *Authenticator {
	a := &Authenticator{
		transport: config.Transport,
		keys:      config.Keys,
		rand:      config.Rand,
		state:     StateIdle,
	}
	if config.LoggerFactory != nil {
		a.log = config.LoggerFactory.NewLogger("bac")
	}
	return a
}

// State returns the current protocol state.
func (a *Authenticator) State() State { return a.state }

// Authenticate performs the mutual authentication and returns the
// session keys. On any failure the authenticator settles in
// StateFailed and cannot be reused.
func (a *Authenticator) Authenticate() (*Session, error) {
	if a.state != StateIdle {
		return nil, ErrInvalidState
	}

	session, err := a.run()
	if err != nil {
		a.state = StateFailed
		return nil, err
	}
	a.state = StateAuthenticated
	return session, nil
}

func (a *Authenticator) run() (*Session, error) {
	// Step 1: GET CHALLENGE.
	a.state = StateChallengeRequested
	resp, err := a.transport.Exchange(apdu.Capdu{Ins: 0x84, Ne: ChallengeLen})
	if err != nil {
		return nil, fmt.Errorf("bac: requesting challenge: %w", err)
	}
	if !resp.IsSuccess() || len(resp.Data) != ChallengeLen {
		return nil, fmt.Errorf("%w: SW %02X%02X, %d bytes",
			ErrChallengeRejected, resp.SW1, resp.SW2, len(resp.Data))
	}
	rndICC := resp.Data
	a.state = StateChallengeReceived
	if a.log != nil {
		a.log.Debugf("RND.ICC % X", rndICC)
	}

	// Step 2: reader randoms.
	rndIFD, err := crypto.RandomBytes(a.rand, ChallengeLen)
	if err != nil {
		return nil, err
	}
	kIFD, err := crypto.RandomBytes(a.rand, KeyingLen)
	if err != nil {
		return nil, err
	}
	defer crypto.Zeroize(kIFD)

	// Step 3: E.IFD = E(KEnc, RND.IFD || RND.ICC || K.IFD),
	// M.IFD = MAC(KMac, pad(E.IFD)).
	s := make([]byte, 0, cryptogramLen)
	s = append(s, rndIFD...)
	s = append(s, rndICC...)
	s = append(s, kIFD...)
	defer crypto.Zeroize(s)

	iv := make([]byte, crypto.DESBlockLen)
	eIFD, err := crypto.TDESCBCEncrypt(a.keys.Enc, iv, s)
	if err != nil {
		return nil, err
	}
	mIFD, err := crypto.RetailMAC(a.keys.Mac, crypto.Pad(eIFD, crypto.DESBlockLen))
	if err != nil {
		return nil, err
	}

	cmd := append(eIFD, mIFD...)
	a.state = StateAuthenticateSent
	resp, err = a.transport.Exchange(apdu.Capdu{Ins: 0x82, Data: cmd, Ne: len(cmd)})
	if err != nil {
		return nil, fmt.Errorf("bac: external authenticate: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("%w: SW %02X%02X", ErrAuthRejected, resp.SW1, resp.SW2)
	}
	if len(resp.Data) != cryptogramLen+crypto.MACLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadResponseLength, len(resp.Data))
	}

	// Step 4: verify the chip's MAC before anything else, then
	// decrypt and check the nonce echo.
	eICC := resp.Data[:cryptogramLen]
	mICC := resp.Data[cryptogramLen:]

	wantMAC, err := crypto.RetailMAC(a.keys.Mac, crypto.Pad(eICC, crypto.DESBlockLen))
	if err != nil {
		return nil, err
	}
	if !crypto.MACEqual(mICC, wantMAC) {
		return nil, ErrMACInvalid
	}

	r, err := crypto.TDESCBCDecrypt(a.keys.Enc, iv, eICC)
	if err != nil {
		return nil, err
	}
	defer crypto.Zeroize(r)

	if !crypto.MACEqual(r[:ChallengeLen], rndICC) ||
		!crypto.MACEqual(r[ChallengeLen:2*ChallengeLen], rndIFD) {
		return nil, ErrChallengeEchoMismatch
	}
	kICC := r[2*ChallengeLen:]

	// Step 5: session keys from K.IFD XOR K.ICC, SSC from the low
	// halves of both nonces.
	return newSession(kIFD, kICC, rndICC, rndIFD, a.keys.Suite)
}

func newSession(kIFD, kICC, rndICC, rndIFD []byte, suite crypto.Suite) (*Session, error) {
	kseed, err := crypto.XOR(kIFD, kICC)
	if err != nil {
		return nil, err
	}
	defer crypto.Zeroize(kseed)

	ksEnc, err := crypto.DeriveKey(kseed, crypto.KDFEnc, suite)
	if err != nil {
		return nil, err
	}
	ksMAC, err := crypto.DeriveKey(kseed, crypto.KDFMac, suite)
	if err != nil {
		crypto.Zeroize(ksEnc)
		return nil, err
	}

	var ssc [8]byte
	copy(ssc[:4], rndICC[4:])
	copy(ssc[4:], rndIFD[4:])

	return &Session{
		KSEnc: ksEnc,
		KSMAC: ksMAC,
		SSC:   binary.BigEndian.Uint64(ssc[:]),
		Suite: suite,
	}, nil
}
