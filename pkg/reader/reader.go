// Package reader orchestrates a complete document read: connect,
// derive the access keys from the MRZ, authenticate, and fetch the
// data groups over secure messaging. It is the package applications
// use; the layers below are its moving parts.
package reader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/logging"

	"github.com/epassd/mrtd/pkg/bac"
	"github.com/epassd/mrtd/pkg/crypto"
	"github.com/epassd/mrtd/pkg/lds"
	"github.com/epassd/mrtd/pkg/mrz"
	"github.com/epassd/mrtd/pkg/secure"
	"github.com/epassd/mrtd/pkg/transport"
)

// Config collects the parameters for a Reader.
type Config struct {
	// Transport carries the APDU exchange. Required.
	Transport transport.Transport

	// Suite selects the cryptographic suite for access control and
	// secure messaging. The zero value is triple DES, which every
	// fielded document supports.
	Suite crypto.Suite

	// ReadDG2 requests the holder's face images in addition to the
	// machine readable zone.
	ReadDG2 bool

	// AllowMissingBiometric makes a chip without data group 2
	// acceptable when ReadDG2 is set, instead of failing the read.
	AllowMissingBiometric bool

	// ChunkLen bounds the plaintext bytes per READ BINARY. Zero means
	// the lds default.
	ChunkLen int

	// OnProgress, when set, observes the session's progress.
	OnProgress ProgressFunc

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory

	// Rand overrides the randomness source for authentication.
	// Nil means crypto/rand.
	Rand io.Reader
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Transport == nil {
		return errors.New("reader: config needs a transport")
	}
	if c.ChunkLen < 0 {
		return errors.New("reader: negative chunk length")
	}
	return nil
}

// Result is everything a successful read produced.
type Result struct {
	// COM is the chip's table of contents.
	COM *lds.COM

	// Document is the machine readable zone from data group 1,
	// already cross-checked against the access key seed.
	Document mrz.Document

	// Biometrics holds the face images from data group 2. Nil when
	// not requested or when the chip has none and the configuration
	// allowed skipping it.
	Biometrics *lds.DG2

	// SOD is the document security object, kept raw for a passive
	// authentication layer.
	SOD *lds.SOD
}

// Reader runs read sessions against one transport. A Reader is safe
// for concurrent use in the sense that overlapping calls fail fast
// with ErrBusy; the card protocol itself is strictly sequential.
type Reader struct {
	config Config
	log    logging.LeveledLogger

	mu   sync.Mutex
	busy bool
}

// New creates a Reader.
func New(config Config) (*Reader, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	r := &Reader{config: config}
	if config.LoggerFactory != nil {
		r.log = config.LoggerFactory.NewLogger("reader")
	}
	return r, nil
}

// Read performs one complete read session. The context is honored
// between protocol steps and between file chunks; a cancelled read
// leaves the transport disconnected and all key material wiped.
//
// Key material derived from the seed lives only for the duration of
// the call.
func (r *Reader) Read(ctx context.Context, seed mrz.KeySeed) (*Result, error) {
	r.mu.Lock()
	if r.busy {
		r.mu.Unlock()
		return nil, ErrBusy
	}
	r.busy = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.busy = false
		r.mu.Unlock()
	}()

	session := &readSession{
		reader: r,
		id:     uuid.NewString(),
	}
	result, err := session.run(ctx, seed)
	if err != nil {
		session.fail()
		if r.log != nil {
			r.log.Errorf("session %s: %v (%s)", session.id, err, Categorize(err))
		}
		return nil, err
	}
	return result, nil
}

// readSession is the state of one Read call.
type readSession struct {
	reader *Reader
	id     string
	state  State
}

func (s *readSession) advance(state State, file string, percent int) {
	s.state = state
	r := s.reader
	if r.log != nil {
		r.log.Debugf("session %s: %s %s %d%%", s.id, state, file, percent)
	}
	if r.config.OnProgress != nil {
		r.config.OnProgress(Progress{
			SessionID: s.id,
			State:     state,
			File:      file,
			Percent:   percent,
		})
	}
}

func (s *readSession) fail() {
	if s.state != StateFailed {
		s.advance(StateFailed, "", 100)
	}
}

func (s *readSession) run(ctx context.Context, seed mrz.KeySeed) (*Result, error) {
	config := s.reader.config

	if err := config.Transport.Connect(); err != nil {
		return nil, err
	}
	defer func() { _ = config.Transport.Disconnect() }()
	s.advance(StateConnected, "", 5)

	keys, err := bac.DeriveKeysSuite(seed, config.Suite)
	if err != nil {
		return nil, err
	}
	defer keys.Zeroize()
	s.advance(StateKeysDerived, "", 10)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.advance(StateAuthenticating, "", 15)
	auth := bac.NewAuthenticator(bac.AuthenticatorConfig{
		Transport:     config.Transport,
		Keys:          keys,
		Rand:          config.Rand,
		LoggerFactory: config.LoggerFactory,
	})
	bacSession, err := auth.Authenticate()
	if err != nil {
		return nil, err
	}

	channel, err := secure.NewChannel(secure.ChannelConfig{
		Session:       bacSession,
		LoggerFactory: config.LoggerFactory,
	})
	if err != nil {
		bacSession.Zeroize()
		return nil, err
	}
	defer channel.Close()
	s.advance(StateAuthenticated, "", 30)

	files, err := lds.NewFileReader(lds.FileReaderConfig{
		Channel:       channel,
		Transport:     config.Transport,
		ChunkLen:      config.ChunkLen,
		LoggerFactory: config.LoggerFactory,
	})
	if err != nil {
		return nil, err
	}
	return s.readDataGroups(ctx, files, seed)
}

func (s *readSession) readDataGroups(ctx context.Context, files *lds.FileReader, seed mrz.KeySeed) (*Result, error) {
	config := s.reader.config
	result := &Result{}

	s.advance(StateReadingDataGroups, lds.EFCOM.Name, 35)
	raw, err := files.ReadFile(ctx, lds.EFCOM)
	if err != nil {
		return nil, err
	}
	if result.COM, err = lds.ParseCOM(raw); err != nil {
		return nil, err
	}

	s.advance(StateReadingDataGroups, lds.EFDG1.Name, 45)
	raw, err = files.ReadFile(ctx, lds.EFDG1)
	if err != nil {
		return nil, err
	}
	dg1, err := lds.ParseDG1(raw)
	if err != nil {
		return nil, err
	}
	// The chip opened under these keys; its MRZ must say the same.
	if err := dg1.Document.MatchesSeed(seed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMRZMismatch, err)
	}
	result.Document = dg1.Document

	if config.ReadDG2 {
		s.advance(StateReadingDataGroups, lds.EFDG2.Name, 60)
		dg2, err := s.readBiometrics(ctx, files, result.COM)
		if err != nil {
			return nil, err
		}
		result.Biometrics = dg2
	}

	s.advance(StateReadingDataGroups, lds.EFSOD.Name, 90)
	raw, err = files.ReadFile(ctx, lds.EFSOD)
	if err != nil {
		return nil, err
	}
	if result.SOD, err = lds.ParseSOD(raw); err != nil {
		return nil, err
	}

	s.advance(StateComplete, "", 100)
	return result, nil
}

func (s *readSession) readBiometrics(ctx context.Context, files *lds.FileReader, com *lds.COM) (*lds.DG2, error) {
	config := s.reader.config
	if !com.Contains(lds.EFDG2.Tag) {
		if config.AllowMissingBiometric {
			if s.reader.log != nil {
				s.reader.log.Infof("session %s: no data group 2, skipping", s.id)
			}
			return nil, nil
		}
		return nil, ErrMissingBiometric
	}

	raw, err := files.ReadFile(ctx, lds.EFDG2)
	if err != nil {
		// A chip can announce the group and still refuse the file.
		if errors.Is(err, lds.ErrFileNotFound) && config.AllowMissingBiometric {
			return nil, nil
		}
		return nil, err
	}
	return lds.ParseDG2(raw)
}
