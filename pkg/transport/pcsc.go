package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/ebfe/scard"
	"github.com/pion/logging"
	"github.com/pion/transport/v3/deadline"
	"github.com/skythen/apdu"
)

// DefaultExchangeTimeout bounds one APDU exchange. Contactless chips
// answer in well under a second; a stall this long means the coupling
// broke.
const DefaultExchangeTimeout = 5 * time.Second

// PCSCConfig configures a PC/SC transport.
type PCSCConfig struct {
	// Reader is the reader name to connect to. Empty selects by
	// ReaderIndex.
	Reader string

	// ReaderIndex selects a reader when Reader is empty (0-based).
	ReaderIndex int

	// ExchangeTimeout bounds one Transmit call
	// (default: DefaultExchangeTimeout).
	ExchangeTimeout time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// PCSC is a Transport over a PC/SC smart-card reader.
type PCSC struct {
	config PCSCConfig
	log    logging.LeveledLogger

	ctx  *scard.Context
	card *scard.Card
}

// NewPCSC creates a PC/SC transport. No reader I/O happens until
// Connect.
func NewPCSC(config PCSCConfig) *PCSC {
	if config.ExchangeTimeout == 0 {
		config.ExchangeTimeout = DefaultExchangeTimeout
	}
	p := &PCSC{config: config}
	if config.LoggerFactory != nil {
		p.log = config.LoggerFactory.NewLogger("pcsc")
	}
	return p
}

// Connect establishes the PC/SC context and connects to the card.
func (p *PCSC) Connect() error {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return fmt.Errorf("transport: establishing PC/SC context: %w", err)
	}

	readers, err := ctx.ListReaders()
	if err != nil || len(readers) == 0 {
		ctx.Release()
		return ErrNoReader
	}

	name := p.config.Reader
	if name == "" {
		if p.config.ReaderIndex < 0 || p.config.ReaderIndex >= len(readers) {
			ctx.Release()
			return fmt.Errorf("transport: reader index %d out of range 0..%d: %w",
				p.config.ReaderIndex, len(readers)-1, ErrNoReader)
		}
		name = readers[p.config.ReaderIndex]
	}

	card, err := ctx.Connect(name, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		ctx.Release()
		return mapSCardError(fmt.Errorf("transport: connecting to %q: %w", name, err))
	}

	if p.log != nil {
		p.log.Infof("connected to reader %q", name)
	}
	p.ctx = ctx
	p.card = card
	return nil
}

// Exchange transmits one APDU, bounded by the configured timeout.
func (p *PCSC) Exchange(capdu apdu.Capdu) (apdu.Rapdu, error) {
	if p.card == nil {
		return apdu.Rapdu{}, ErrNotConnected
	}

	d := deadline.New()
	d.Set(time.Now().Add(p.config.ExchangeTimeout))
	defer d.Set(time.Time{})

	type result struct {
		raw []byte
		err error
	}
	ch := make(chan result, 1)
	go func() {
		raw, err := p.card.Transmit(capdu.Bytes())
		ch <- result{raw, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return apdu.Rapdu{}, mapSCardError(res.err)
		}
		if p.log != nil {
			p.log.Debugf("exchange: -> % X <- % X", capdu.Bytes(), res.raw)
		}
		return ParseResponse(res.raw)
	case <-d.Done():
		// The chip-side state is unknown now; the session is lost.
		return apdu.Rapdu{}, ErrTimeout
	}
}

// Disconnect releases the card and the PC/SC context.
func (p *PCSC) Disconnect() error {
	if p.card != nil {
		_ = p.card.Disconnect(scard.LeaveCard)
		p.card = nil
	}
	if p.ctx != nil {
		_ = p.ctx.Release()
		p.ctx = nil
	}
	return nil
}

// mapSCardError folds the PC/SC removed-card conditions into
// ErrTagLost.
func mapSCardError(err error) error {
	if errors.Is(err, scard.ErrRemovedCard) || errors.Is(err, scard.ErrNoSmartcard) ||
		errors.Is(err, scard.ErrResetCard) {
		return fmt.Errorf("%w: %v", ErrTagLost, err)
	}
	return err
}
