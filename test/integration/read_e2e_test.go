// Package integration contains end-to-end tests that exercise a
// complete document read through the public API only: key seed in,
// parsed data groups out, against a simulated chip.
package integration

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/pion/logging"

	"github.com/epassd/mrtd/pkg/crypto"
	"github.com/epassd/mrtd/pkg/lds"
	"github.com/epassd/mrtd/pkg/mrz"
	"github.com/epassd/mrtd/pkg/reader"
	"github.com/epassd/mrtd/pkg/tlv"
)

const testMRZ = "P<UTOERIKSSON<<ANNA<MARIA<<<<<<<<<<<<<<<<<<<" +
	"L898902C<3UTO6908061F9406236ZE184226B<<<<<14"

func testSeed(t *testing.T) mrz.KeySeed {
	t.Helper()
	seed, err := mrz.NewKeySeed("L898902C", "690806", "940623")
	if err != nil {
		t.Fatalf("NewKeySeed: %v", err)
	}
	return seed
}

func testChipImage(t *testing.T) map[uint16][]byte {
	t.Helper()

	comBody := tlv.Encode(0x5F01, []byte("0106"))
	comBody = append(comBody, tlv.Encode(0x5F36, []byte("040000"))...)
	comBody = append(comBody, tlv.Encode(0x5C, []byte{0x61, 0x75})...)

	image := append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, bytes.Repeat([]byte{0x3C}, 512)...)
	blockLen := 20 + 12 + len(image)
	var rec bytes.Buffer
	rec.WriteString("FAC\x00010\x00")
	binary.Write(&rec, binary.BigEndian, uint32(14+blockLen))
	binary.Write(&rec, binary.BigEndian, uint16(1))
	binary.Write(&rec, binary.BigEndian, uint32(blockLen))
	rec.Write(make([]byte, 16))
	rec.Write(make([]byte, 12))
	rec.Write(image)
	info := tlv.Encode(0xA1, []byte{0x87, 0x02, 0x01, 0x01})
	info = append(info, tlv.Encode(0x5F2E, rec.Bytes())...)
	group := append([]byte{0x02, 0x01, 0x01}, tlv.Encode(0x7F60, info)...)

	return map[uint16][]byte{
		lds.EFCOM.ID: tlv.Encode(lds.EFCOM.Tag, comBody),
		lds.EFDG1.ID: tlv.Encode(lds.EFDG1.Tag, tlv.Encode(0x5F1F, []byte(testMRZ))),
		lds.EFDG2.ID: tlv.Encode(lds.EFDG2.Tag, tlv.Encode(0x7F61, group)),
		lds.EFSOD.ID: tlv.Encode(lds.EFSOD.Tag, []byte{0x30, 0x06, 0x02, 0x01, 0x00, 0x31, 0x01, 0x00}),
	}
}

// TestE2E_FullDocumentRead walks the whole protocol stack: connect,
// mutual authentication, secure messaging, and all four files.
func TestE2E_FullDocumentRead(t *testing.T) {
	for _, suite := range []crypto.Suite{crypto.SuiteTDES, crypto.SuiteAES128} {
		t.Run(suite.String(), func(t *testing.T) {
			chip, err := reader.NewSimChip(reader.SimChipConfig{
				Seed:  testSeed(t),
				Suite: suite,
				Files: testChipImage(t),
			})
			if err != nil {
				t.Fatalf("NewSimChip: %v", err)
			}

			loggerFactory := logging.NewDefaultLoggerFactory()
			r, err := reader.New(reader.Config{
				Transport:     chip,
				Suite:         suite,
				ReadDG2:       true,
				LoggerFactory: loggerFactory,
			})
			if err != nil {
				t.Fatalf("reader.New: %v", err)
			}

			result, err := r.Read(context.Background(), testSeed(t))
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if result.Document.DocumentNumber != "L898902C" || result.Document.Primary != "ERIKSSON" {
				t.Errorf("document = %+v", result.Document)
			}
			if result.Biometrics == nil || len(result.Biometrics.Images) != 1 {
				t.Fatal("face image missing")
			}
			if result.Biometrics.Images[0].Format != lds.ImageFormatJPEG {
				t.Errorf("image format = %v", result.Biometrics.Images[0].Format)
			}
			if result.SOD == nil {
				t.Error("security object missing")
			}
		})
	}
}

// TestE2E_RetryAfterTagLoss models the operator flow: the document
// leaves the field mid-read, and the same Reader succeeds on the next
// presentation.
func TestE2E_RetryAfterTagLoss(t *testing.T) {
	chip, err := reader.NewSimChip(reader.SimChipConfig{
		Seed:        testSeed(t),
		Files:       testChipImage(t),
		VanishAfter: 5,
	})
	if err != nil {
		t.Fatalf("NewSimChip: %v", err)
	}
	r, err := reader.New(reader.Config{Transport: chip, ReadDG2: true})
	if err != nil {
		t.Fatalf("reader.New: %v", err)
	}

	_, err = r.Read(context.Background(), testSeed(t))
	if reader.Categorize(err) != reader.CategoryConnection {
		t.Fatalf("first read: got %v (%v)", err, reader.Categorize(err))
	}

	// Second presentation.
	steady, err := reader.NewSimChip(reader.SimChipConfig{
		Seed:  testSeed(t),
		Files: testChipImage(t),
	})
	if err != nil {
		t.Fatalf("NewSimChip: %v", err)
	}
	r2, err := reader.New(reader.Config{Transport: steady, ReadDG2: true})
	if err != nil {
		t.Fatalf("reader.New: %v", err)
	}
	if _, err := r2.Read(context.Background(), testSeed(t)); err != nil {
		t.Fatalf("second read: %v", err)
	}
}

// TestE2E_WrongMRZNeverReachesFiles verifies a bad seed fails before
// any file is selected, and that the error classifies as an MRZ or
// authentication problem for the operator.
func TestE2E_WrongMRZNeverReachesFiles(t *testing.T) {
	chip, err := reader.NewSimChip(reader.SimChipConfig{
		Seed:  testSeed(t),
		Files: testChipImage(t),
	})
	if err != nil {
		t.Fatalf("NewSimChip: %v", err)
	}
	r, err := reader.New(reader.Config{Transport: chip})
	if err != nil {
		t.Fatalf("reader.New: %v", err)
	}

	wrong, err := mrz.NewKeySeed("X00000000", "700101", "300101")
	if err != nil {
		t.Fatalf("NewKeySeed: %v", err)
	}
	_, err = r.Read(context.Background(), wrong)
	if err == nil {
		t.Fatal("read succeeded with the wrong seed")
	}
	if got := reader.Categorize(err); got != reader.CategoryAuth {
		t.Errorf("category = %v", got)
	}
	// Challenge plus authenticate, nothing after.
	if chip.Exchanges() > 2 {
		t.Errorf("chip saw %d exchanges after failed auth", chip.Exchanges())
	}

	if errors.Is(err, context.Canceled) {
		t.Error("misclassified as cancellation")
	}
}
