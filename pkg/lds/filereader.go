package lds

import (
	"context"
	"fmt"

	"github.com/pion/logging"
	"github.com/skythen/apdu"

	"github.com/epassd/mrtd/pkg/secure"
	"github.com/epassd/mrtd/pkg/tlv"
)

const (
	insSelect     = 0xA4
	insReadBinary = 0xB0

	// headerReadLen is enough to cover any outer tag plus a three
	// byte length.
	headerReadLen = 4

	// DefaultChunkLen bounds one READ BINARY. It leaves headroom for
	// the secure-messaging overhead within a short length response.
	DefaultChunkLen = 0xDF

	// maxFileOffset is the largest offset encodable in P1/P2 with the
	// high bit clear.
	maxFileOffset = 0x7FFF
)

// FileReaderConfig configures a FileReader.
type FileReaderConfig struct {
	// Channel is the established secure-messaging channel. Required.
	Channel *secure.Channel

	// Transport carries the wrapped APDUs. Required.
	Transport secure.Transmitter

	// ChunkLen bounds the plaintext length requested per READ BINARY.
	// Defaults to DefaultChunkLen.
	ChunkLen int

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// FileReader reads elementary files over an authenticated channel,
// discovering each file's length from its leading tag-length header
// and fetching the body in chunks.
type FileReader struct {
	channel   *secure.Channel
	transport secure.Transmitter
	chunkLen  int
	log       logging.LeveledLogger
}

// NewFileReader creates a FileReader.
func NewFileReader(config FileReaderConfig) (*FileReader, error) {
	if config.Channel == nil {
		return nil, fmt.Errorf("lds: nil channel")
	}
	if config.Transport == nil {
		return nil, fmt.Errorf("lds: nil transport")
	}
	fr := &FileReader{
		channel:   config.Channel,
		transport: config.Transport,
		chunkLen:  config.ChunkLen,
	}
	if fr.chunkLen <= 0 {
		fr.chunkLen = DefaultChunkLen
	}
	if config.LoggerFactory != nil {
		fr.log = config.LoggerFactory.NewLogger("lds")
	}
	return fr, nil
}

// ReadFile selects the file and returns its complete contents,
// including the outer tag and length. The context is checked between
// chunks, so a cancelled read stops after at most one exchange.
func (fr *FileReader) ReadFile(ctx context.Context, file File) ([]byte, error) {
	if err := fr.selectFile(file); err != nil {
		return nil, err
	}

	header, err := fr.readBinary(0, headerReadLen)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file.Name, err)
	}
	if len(header) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrTruncatedFile, file.Name)
	}
	if tlv.Tag(header[0]) != file.Tag {
		return nil, fmt.Errorf("%w: %s starts with %02X", ErrUnexpectedTag, file.Name, header[0])
	}

	total, err := tlv.OuterLen(header)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file.Name, err)
	}
	if fr.log != nil {
		fr.log.Debugf("%s: %d bytes", file, total)
	}

	contents := make([]byte, 0, total)
	contents = append(contents, header...)
	for len(contents) < total {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		offset := len(contents)
		if offset > maxFileOffset {
			return nil, fmt.Errorf("%w: %s exceeds addressable length", ErrMalformedFile, file.Name)
		}
		want := total - offset
		if want > fr.chunkLen {
			want = fr.chunkLen
		}
		chunk, err := fr.readBinary(offset, want)
		if err != nil {
			return nil, fmt.Errorf("%s at offset %d: %w", file.Name, offset, err)
		}
		if len(chunk) == 0 {
			return nil, fmt.Errorf("%w: %s ended at offset %d of %d", ErrTruncatedFile, file.Name, offset, total)
		}
		contents = append(contents, chunk...)
	}
	if len(contents) > total {
		contents = contents[:total]
	}
	return contents, nil
}

func (fr *FileReader) selectFile(file File) error {
	resp, err := fr.channel.Transceive(fr.transport, apdu.Capdu{
		Ins:  insSelect,
		P1:   0x02,
		P2:   0x0C,
		Data: file.idBytes(),
	})
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("select %s: %w", file.Name, statusError(resp))
	}
	return nil
}

func (fr *FileReader) readBinary(offset, length int) ([]byte, error) {
	resp, err := fr.channel.Transceive(fr.transport, apdu.Capdu{
		Ins: insReadBinary,
		P1:  byte(offset >> 8),
		P2:  byte(offset),
		Ne:  length,
	})
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, statusError(resp)
	}
	return resp.Data, nil
}

// statusError maps a failure status word onto the package errors.
func statusError(resp apdu.Rapdu) error {
	sw := uint16(resp.SW1)<<8 | uint16(resp.SW2)
	switch sw {
	case 0x6A82:
		return ErrFileNotFound
	case 0x6282, 0x6B00:
		// End of file or offset outside the file: the chip holds less
		// than the header announced.
		return fmt.Errorf("%w: SW %04X", ErrTruncatedFile, sw)
	case 0x6982, 0x6985, 0x6988:
		return fmt.Errorf("%w: SW %04X", ErrAccessDenied, sw)
	default:
		return fmt.Errorf("lds: SW %04X", sw)
	}
}
