package reader

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/skythen/apdu"

	"github.com/epassd/mrtd/pkg/bac"
	"github.com/epassd/mrtd/pkg/crypto"
	"github.com/epassd/mrtd/pkg/mrz"
	"github.com/epassd/mrtd/pkg/tlv"
	"github.com/epassd/mrtd/pkg/transport"
)

// SimChipConfig configures a SimChip.
type SimChipConfig struct {
	// Seed is the MRZ key seed the chip authenticates against.
	Seed mrz.KeySeed

	// Suite is the cryptographic suite. Zero value is triple DES.
	Suite crypto.Suite

	// Files maps elementary file identifiers to contents.
	Files map[uint16][]byte

	// Rand supplies RND.ICC and K.ICC. Nil means crypto/rand.
	Rand io.Reader

	// RejectChallenge makes GET CHALLENGE fail.
	RejectChallenge bool

	// RejectAuth makes EXTERNAL AUTHENTICATE fail regardless of the
	// presented cryptogram.
	RejectAuth bool

	// CorruptAuthMAC flips a bit in the authentication response MAC.
	CorruptAuthMAC bool

	// VanishAfter, when positive, removes the chip from the field
	// after that many exchanges.
	VanishAfter int

	// CutFilesAt, when positive, makes reads past that offset in any
	// file return no data, so every file appears shorter than its
	// header announces.
	CutFilesAt int
}

// SimChip is a complete in-memory document chip: it answers the
// mutual authentication and serves elementary files over secure
// messaging. It implements transport.Transport, so an entire read
// session runs against it without hardware.
type SimChip struct {
	keys  *bac.DocumentKeys
	suite crypto.Suite
	files map[uint16][]byte
	rand  io.Reader

	rejectChallenge bool
	rejectAuth      bool
	corruptAuthMAC  bool
	vanishAfter     int
	cutFilesAt      int

	connected   bool
	exchanges   int
	disconnects int
	rndICC      []byte

	// secure-messaging session, present after authentication
	ksEnc   []byte
	ksMAC   []byte
	ssc     uint64
	secured bool

	selected uint16
	hasFile  bool
}

// NewSimChip creates a chip personalized with the given seed and
// files.
func NewSimChip(config SimChipConfig) (*SimChip, error) {
	keys, err := bac.DeriveKeysSuite(config.Seed, config.Suite)
	if err != nil {
		return nil, err
	}
	return &SimChip{
		keys:            keys,
		suite:           config.Suite,
		files:           config.Files,
		rand:            config.Rand,
		rejectChallenge: config.RejectChallenge,
		rejectAuth:      config.RejectAuth,
		corruptAuthMAC:  config.CorruptAuthMAC,
		vanishAfter:     config.VanishAfter,
		cutFilesAt:      config.CutFilesAt,
	}, nil
}

// Exchanges returns the number of exchanges the chip has seen.
func (c *SimChip) Exchanges() int { return c.exchanges }

// Disconnects returns how many times the session was released.
func (c *SimChip) Disconnects() int { return c.disconnects }

// Connect implements transport.Transport.
func (c *SimChip) Connect() error {
	c.connected = true
	return nil
}

// Disconnect implements transport.Transport. It drops the session
// state the way a field reset does.
func (c *SimChip) Disconnect() error {
	if c.connected {
		c.disconnects++
	}
	c.connected = false
	c.secured = false
	c.hasFile = false
	c.rndICC = nil
	crypto.Zeroize(c.ksEnc)
	crypto.Zeroize(c.ksMAC)
	return nil
}

// Exchange implements transport.Transport.
func (c *SimChip) Exchange(capdu apdu.Capdu) (apdu.Rapdu, error) {
	if !c.connected {
		return apdu.Rapdu{}, transport.ErrNotConnected
	}
	c.exchanges++
	if c.vanishAfter > 0 && c.exchanges > c.vanishAfter {
		return apdu.Rapdu{}, transport.ErrTagLost
	}

	if c.secured && capdu.Cla&0x0C == 0x0C {
		return c.securedExchange(capdu)
	}
	switch capdu.Ins {
	case 0x84:
		return c.getChallenge()
	case 0x82:
		return c.externalAuthenticate(capdu.Data)
	default:
		return apdu.Rapdu{SW1: 0x6D, SW2: 0x00}, nil
	}
}

func (c *SimChip) getChallenge() (apdu.Rapdu, error) {
	if c.rejectChallenge {
		return apdu.Rapdu{SW1: 0x69, SW2: 0x86}, nil
	}
	rnd, err := crypto.RandomBytes(c.rand, bac.ChallengeLen)
	if err != nil {
		return apdu.Rapdu{}, err
	}
	c.rndICC = rnd
	return apdu.Rapdu{Data: rnd, SW1: 0x90, SW2: 0x00}, nil
}

func (c *SimChip) externalAuthenticate(data []byte) (apdu.Rapdu, error) {
	if c.rejectAuth || c.rndICC == nil {
		return apdu.Rapdu{SW1: 0x63, SW2: 0x00}, nil
	}
	const cryptogramLen = 2*bac.ChallengeLen + bac.KeyingLen
	if len(data) != cryptogramLen+crypto.MACLen {
		return apdu.Rapdu{SW1: 0x67, SW2: 0x00}, nil
	}
	eIFD, mIFD := data[:cryptogramLen], data[cryptogramLen:]

	want, err := crypto.RetailMAC(c.keys.Mac, crypto.Pad(eIFD, crypto.DESBlockLen))
	if err != nil {
		return apdu.Rapdu{}, err
	}
	if !crypto.MACEqual(mIFD, want) {
		return apdu.Rapdu{SW1: 0x63, SW2: 0x00}, nil
	}

	iv := make([]byte, crypto.DESBlockLen)
	s, err := crypto.TDESCBCDecrypt(c.keys.Enc, iv, eIFD)
	if err != nil {
		return apdu.Rapdu{}, err
	}
	rndIFD := s[:bac.ChallengeLen]
	echo := s[bac.ChallengeLen : 2*bac.ChallengeLen]
	kIFD := s[2*bac.ChallengeLen:]
	if !crypto.MACEqual(echo, c.rndICC) {
		return apdu.Rapdu{SW1: 0x63, SW2: 0x00}, nil
	}

	kICC, err := crypto.RandomBytes(c.rand, bac.KeyingLen)
	if err != nil {
		return apdu.Rapdu{}, err
	}

	r := make([]byte, 0, cryptogramLen)
	r = append(r, c.rndICC...)
	r = append(r, rndIFD...)
	r = append(r, kICC...)
	eICC, err := crypto.TDESCBCEncrypt(c.keys.Enc, iv, r)
	if err != nil {
		return apdu.Rapdu{}, err
	}
	mICC, err := crypto.RetailMAC(c.keys.Mac, crypto.Pad(eICC, crypto.DESBlockLen))
	if err != nil {
		return apdu.Rapdu{}, err
	}
	if c.corruptAuthMAC {
		mICC[0] ^= 0x01
	}

	if err := c.openSession(kIFD, kICC, rndIFD); err != nil {
		return apdu.Rapdu{}, err
	}
	return apdu.Rapdu{Data: append(eICC, mICC...), SW1: 0x90, SW2: 0x00}, nil
}

func (c *SimChip) openSession(kIFD, kICC, rndIFD []byte) error {
	kseed, err := crypto.XOR(kIFD, kICC)
	if err != nil {
		return err
	}
	defer crypto.Zeroize(kseed)
	if c.ksEnc, err = crypto.DeriveKey(kseed, crypto.KDFEnc, c.suite); err != nil {
		return err
	}
	if c.ksMAC, err = crypto.DeriveKey(kseed, crypto.KDFMac, c.suite); err != nil {
		return err
	}

	var ssc [8]byte
	copy(ssc[:4], c.rndICC[4:])
	copy(ssc[4:], rndIFD[4:])
	c.ssc = binary.BigEndian.Uint64(ssc[:])
	c.secured = true
	return nil
}

// securedExchange unwraps one protected command, dispatches it, and
// wraps the response.
func (c *SimChip) securedExchange(capdu apdu.Capdu) (apdu.Rapdu, error) {
	c.ssc++

	do87, do97, mac, err := splitCommandDOs(capdu.Data)
	if err != nil {
		return apdu.Rapdu{}, err
	}

	header := []byte{capdu.Cla, capdu.Ins, capdu.P1, capdu.P2}
	macIn := append(c.sscBytes(), crypto.Pad(header, c.suite.BlockLen())...)
	macIn = append(macIn, do87...)
	macIn = append(macIn, do97...)
	want, err := c.mac(macIn)
	if err != nil {
		return apdu.Rapdu{}, err
	}
	if !crypto.MACEqual(mac, want) {
		// A real chip answers 6988 outside secure messaging and
		// drops the session.
		c.secured = false
		return apdu.Rapdu{SW1: 0x69, SW2: 0x88}, nil
	}

	var plain []byte
	if do87 != nil {
		el, _, err := tlv.Parse(do87)
		if err != nil {
			return apdu.Rapdu{}, err
		}
		dec, err := c.decrypt(el.Value[1:])
		if err != nil {
			return apdu.Rapdu{}, err
		}
		if plain, err = crypto.Unpad(dec); err != nil {
			return apdu.Rapdu{}, err
		}
	}
	ne := 0
	if do97 != nil {
		el, _, err := tlv.Parse(do97)
		if err != nil {
			return apdu.Rapdu{}, err
		}
		if len(el.Value) == 1 && el.Value[0] != 0 {
			ne = int(el.Value[0])
		} else {
			ne = 256
		}
	}

	data, sw1, sw2 := c.dispatch(capdu.Ins, capdu.P1, capdu.P2, plain, ne)
	return c.respond(data, sw1, sw2)
}

func (c *SimChip) dispatch(ins, p1, p2 byte, data []byte, ne int) ([]byte, byte, byte) {
	switch ins {
	case 0xA4:
		if len(data) != 2 {
			return nil, 0x67, 0x00
		}
		id := uint16(data[0])<<8 | uint16(data[1])
		if _, ok := c.files[id]; !ok {
			return nil, 0x6A, 0x82
		}
		c.selected, c.hasFile = id, true
		return nil, 0x90, 0x00
	case 0xB0:
		if !c.hasFile {
			return nil, 0x69, 0x86
		}
		file := c.files[c.selected]
		offset := int(p1)<<8 | int(p2)
		if c.cutFilesAt > 0 && offset >= c.cutFilesAt {
			return nil, 0x62, 0x82
		}
		if offset >= len(file) {
			return nil, 0x6B, 0x00
		}
		end := offset + ne
		if end > len(file) {
			end = len(file)
		}
		if c.cutFilesAt > 0 && end > c.cutFilesAt {
			end = c.cutFilesAt
		}
		return file[offset:end], 0x90, 0x00
	default:
		return nil, 0x6D, 0x00
	}
}

func (c *SimChip) respond(data []byte, sw1, sw2 byte) (apdu.Rapdu, error) {
	c.ssc++

	var body []byte
	if len(data) > 0 {
		enc, err := c.encrypt(crypto.Pad(data, c.suite.BlockLen()))
		if err != nil {
			return apdu.Rapdu{}, err
		}
		body = append(body, tlv.Encode(0x87, append([]byte{0x01}, enc...))...)
	}
	body = append(body, tlv.Encode(0x99, []byte{sw1, sw2})...)
	mac, err := c.mac(append(c.sscBytes(), body...))
	if err != nil {
		return apdu.Rapdu{}, err
	}
	body = append(body, tlv.Encode(0x8E, mac)...)
	return apdu.Rapdu{Data: body, SW1: 0x90, SW2: 0x00}, nil
}

func (c *SimChip) sscBytes() []byte {
	b := make([]byte, 0, 16)
	if c.suite == crypto.SuiteAES128 {
		b = append(b, make([]byte, 8)...)
	}
	return binary.BigEndian.AppendUint64(b, c.ssc)
}

func (c *SimChip) mac(in []byte) ([]byte, error) {
	if c.suite == crypto.SuiteAES128 {
		full, err := crypto.AESCMAC(c.ksMAC, crypto.Pad(in, crypto.AESBlockLen))
		if err != nil {
			return nil, err
		}
		return full[:crypto.MACLen], nil
	}
	return crypto.RetailMAC(c.ksMAC, crypto.Pad(in, crypto.DESBlockLen))
}

func (c *SimChip) encrypt(padded []byte) ([]byte, error) {
	if c.suite == crypto.SuiteAES128 {
		iv, err := crypto.AESEncryptBlock(c.ksEnc, c.sscBytes())
		if err != nil {
			return nil, err
		}
		return crypto.AESCBCEncrypt(c.ksEnc, iv, padded)
	}
	return crypto.TDESCBCEncrypt(c.ksEnc, make([]byte, crypto.DESBlockLen), padded)
}

func (c *SimChip) decrypt(ciphertext []byte) ([]byte, error) {
	if c.suite == crypto.SuiteAES128 {
		iv, err := crypto.AESEncryptBlock(c.ksEnc, c.sscBytes())
		if err != nil {
			return nil, err
		}
		return crypto.AESCBCDecrypt(c.ksEnc, iv, ciphertext)
	}
	return crypto.TDESCBCDecrypt(c.ksEnc, make([]byte, crypto.DESBlockLen), ciphertext)
}

func splitCommandDOs(data []byte) (do87, do97, mac []byte, err error) {
	r := tlv.NewReader(data)
	for r.Next() {
		el := r.Element()
		switch el.Tag {
		case 0x87:
			do87 = tlv.Encode(el.Tag, el.Value)
		case 0x97:
			do97 = tlv.Encode(el.Tag, el.Value)
		case 0x8E:
			mac = el.Value
		}
	}
	if err := r.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("simchip: command DOs: %w", err)
	}
	return do87, do97, mac, nil
}
