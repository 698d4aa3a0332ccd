// Package secure implements the ISO 7816-4 secure-messaging channel
// established by Basic Access Control: every command is encrypted and
// MAC'd, every response MAC-verified and decrypted, under a shared
// send-sequence counter.
package secure

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/pion/logging"
	"github.com/skythen/apdu"

	"github.com/epassd/mrtd/pkg/bac"
	"github.com/epassd/mrtd/pkg/crypto"
	"github.com/epassd/mrtd/pkg/tlv"
)

// Secure-messaging data object tags.
const (
	tagEncryptedData  tlv.Tag = 0x87
	tagExpectedLength tlv.Tag = 0x97
	tagStatus         tlv.Tag = 0x99
	tagMAC            tlv.Tag = 0x8E
)

// claSecureMessaging marks a class byte as secure-messaging protected
// (SM indicated, header authenticated).
const claSecureMessaging = 0x0C

// Transmitter is the interface the channel drives to move wrapped
// APDUs. transport.Transport satisfies it.
type Transmitter interface {
	Exchange(capdu apdu.Capdu) (apdu.Rapdu, error)
}

// ChannelConfig configures a Channel.
type ChannelConfig struct {
	// Session holds the keys and initial counter from a successful
	// authentication. Required. The channel takes ownership: the
	// session is zeroized when the channel closes.
	Session *bac.Session

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Channel is an authenticated secure-messaging session. It owns the
// session keys and the send-sequence counter; the counter is strictly
// monotonic for the channel's lifetime and is never reset. A MAC
// failure poisons the channel permanently.
//
// Channel is safe for sequential use only, matching the underlying
// card session.
type Channel struct {
	session *bac.Session
	log     logging.LeveledLogger

	mu     sync.Mutex
	closed bool
}

// NewChannel creates a channel over an authenticated session.
func NewChannel(config ChannelConfig) (*Channel, error) {
	if config.Session == nil {
		return nil, fmt.Errorf("secure: nil session")
	}
	c := &Channel{session: config.Session}
	if config.LoggerFactory != nil {
		c.log = config.LoggerFactory.NewLogger("secure")
	}
	return c, nil
}

// SSC returns the current send-sequence counter value.
func (c *Channel) SSC() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.SSC
}

// Close zeroizes the session keys and marks the channel unusable.
// Safe to call more than once.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.session.Zeroize()
		c.closed = true
	}
}

// Wrap protects one command APDU. The counter is incremented before
// the wrap is computed; both sides must agree on that ordering or
// every following MAC diverges.
func (c *Channel) Wrap(capdu apdu.Capdu) (apdu.Capdu, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return apdu.Capdu{}, ErrChannelClosed
	}

	c.session.SSC++
	blockLen := c.session.Suite.BlockLen()

	header := []byte{capdu.Cla | claSecureMessaging, capdu.Ins, capdu.P1, capdu.P2}

	var do87 []byte
	if len(capdu.Data) > 0 {
		enc, err := c.encrypt(crypto.Pad(capdu.Data, blockLen))
		if err != nil {
			return apdu.Capdu{}, err
		}
		do87 = tlv.Encode(tagEncryptedData, append([]byte{0x01}, enc...))
	}

	var do97 []byte
	if capdu.Ne > 0 {
		do97 = tlv.Encode(tagExpectedLength, leBytes(capdu.Ne))
	}

	macIn := make([]byte, 0, 8+2*blockLen+len(do87)+len(do97))
	macIn = c.appendSSC(macIn)
	macIn = append(macIn, crypto.Pad(header, blockLen)...)
	macIn = append(macIn, do87...)
	macIn = append(macIn, do97...)
	mac, err := c.mac(macIn)
	if err != nil {
		return apdu.Capdu{}, err
	}

	data := make([]byte, 0, len(do87)+len(do97)+2+crypto.MACLen)
	data = append(data, do87...)
	data = append(data, do97...)
	data = append(data, tlv.Encode(tagMAC, mac)...)

	wrapped := apdu.Capdu{
		Cla:  header[0],
		Ins:  capdu.Ins,
		P1:   capdu.P1,
		P2:   capdu.P2,
		Data: data,
		Ne:   apdu.MaxLenResponseDataStandard,
	}
	if c.log != nil {
		c.log.Debugf("wrap SSC %016X: %s", c.session.SSC, wrapped.String())
	}
	return wrapped, nil
}

// Unwrap verifies and decrypts one protected response. The counter is
// incremented first, mirroring the chip's increment before it built
// the response MAC.
func (c *Channel) Unwrap(rapdu apdu.Rapdu) (apdu.Rapdu, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return apdu.Rapdu{}, ErrChannelClosed
	}

	c.session.SSC++

	if len(rapdu.Data) == 0 {
		// The chip dropped out of secure messaging; nothing about
		// this response is authenticated.
		c.poison()
		return apdu.Rapdu{}, fmt.Errorf("%w: SW %02X%02X", ErrUnprotectedResponse, rapdu.SW1, rapdu.SW2)
	}

	// The MAC covers the DO'87' and DO'99' bytes exactly as the chip
	// sent them, so keep the received encodings rather than
	// re-encoding the parsed elements.
	var do87, do99, mac []byte
	rest := rapdu.Data
	for len(rest) > 0 {
		el, tail, err := tlv.Parse(rest)
		if err != nil {
			c.poison()
			return apdu.Rapdu{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		raw := rest[:len(rest)-len(tail)]
		switch el.Tag {
		case tagEncryptedData:
			do87 = raw
		case tagStatus:
			do99 = raw
		case tagMAC:
			mac = el.Value
		}
		rest = tail
	}
	if mac == nil || do99 == nil {
		c.poison()
		return apdu.Rapdu{}, fmt.Errorf("%w: missing DO'8E' or DO'99'", ErrMalformedResponse)
	}

	blockLen := c.session.Suite.BlockLen()
	macIn := make([]byte, 0, 8+len(do87)+len(do99)+blockLen)
	macIn = c.appendSSC(macIn)
	macIn = append(macIn, do87...)
	macIn = append(macIn, do99...)
	want, err := c.mac(macIn)
	if err != nil {
		c.poison()
		return apdu.Rapdu{}, err
	}
	if !crypto.MACEqual(mac, want) {
		// The channel is compromised or out of sync; either way it
		// cannot be trusted again.
		c.poison()
		return apdu.Rapdu{}, ErrMACInvalid
	}

	out := apdu.Rapdu{}
	status, _, err := tlv.Parse(do99)
	if err != nil || len(status.Value) != 2 {
		c.poison()
		return apdu.Rapdu{}, fmt.Errorf("%w: bad DO'99'", ErrMalformedResponse)
	}
	out.SW1, out.SW2 = status.Value[0], status.Value[1]

	if do87 != nil {
		enc, _, err := tlv.Parse(do87)
		if err != nil || len(enc.Value) < 2 || enc.Value[0] != 0x01 {
			c.poison()
			return apdu.Rapdu{}, fmt.Errorf("%w: bad DO'87'", ErrMalformedResponse)
		}
		plain, err := c.decrypt(enc.Value[1:])
		if err != nil {
			c.poison()
			return apdu.Rapdu{}, err
		}
		out.Data, err = crypto.Unpad(plain)
		if err != nil {
			c.poison()
			return apdu.Rapdu{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
	}
	return out, nil
}

// Transceive wraps the command, exchanges it, and unwraps the
// response.
func (c *Channel) Transceive(t Transmitter, capdu apdu.Capdu) (apdu.Rapdu, error) {
	wrapped, err := c.Wrap(capdu)
	if err != nil {
		return apdu.Rapdu{}, err
	}
	resp, err := t.Exchange(wrapped)
	if err != nil {
		return apdu.Rapdu{}, err
	}
	return c.Unwrap(resp)
}

func (c *Channel) poison() {
	c.session.Zeroize()
	c.closed = true
}

// appendSSC appends the counter in the width the suite's MAC expects:
// 8 bytes for 3DES, a full 16-byte block for AES.
func (c *Channel) appendSSC(b []byte) []byte {
	if c.session.Suite == crypto.SuiteAES128 {
		b = append(b, make([]byte, 8)...)
	}
	return binary.BigEndian.AppendUint64(b, c.session.SSC)
}

// encrypt applies the suite cipher: 3DES with a zero IV, AES with
// IV = E(KSEnc, SSC).
func (c *Channel) encrypt(padded []byte) ([]byte, error) {
	if c.session.Suite == crypto.SuiteAES128 {
		iv, err := c.aesIV()
		if err != nil {
			return nil, err
		}
		return crypto.AESCBCEncrypt(c.session.KSEnc, iv, padded)
	}
	return crypto.TDESCBCEncrypt(c.session.KSEnc, make([]byte, crypto.DESBlockLen), padded)
}

func (c *Channel) decrypt(ciphertext []byte) ([]byte, error) {
	if c.session.Suite == crypto.SuiteAES128 {
		iv, err := c.aesIV()
		if err != nil {
			return nil, err
		}
		return crypto.AESCBCDecrypt(c.session.KSEnc, iv, ciphertext)
	}
	return crypto.TDESCBCDecrypt(c.session.KSEnc, make([]byte, crypto.DESBlockLen), ciphertext)
}

func (c *Channel) aesIV() ([]byte, error) {
	return crypto.AESEncryptBlock(c.session.KSEnc, c.appendSSC(nil))
}

// mac computes the suite MAC over the padded input.
func (c *Channel) mac(in []byte) ([]byte, error) {
	if c.session.Suite == crypto.SuiteAES128 {
		full, err := crypto.AESCMAC(c.session.KSMAC, crypto.Pad(in, crypto.AESBlockLen))
		if err != nil {
			return nil, err
		}
		return full[:crypto.MACLen], nil
	}
	return crypto.RetailMAC(c.session.KSMAC, crypto.Pad(in, crypto.DESBlockLen))
}

// leBytes encodes an expected length for DO'97'.
func leBytes(ne int) []byte {
	if ne >= 256 {
		return []byte{0x00}
	}
	return []byte{byte(ne)}
}
