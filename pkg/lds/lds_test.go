package lds

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/epassd/mrtd/pkg/tlv"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex %q: %v", s, err)
	}
	return b
}

const specimenMRZ = "P<UTOERIKSSON<<ANNA<MARIA<<<<<<<<<<<<<<<<<<<" +
	"L898902C<3UTO6908061F9406236ZE184226B<<<<<14"

func specimenDG1() []byte {
	return tlv.Encode(EFDG1.Tag, tlv.Encode(tagMRZData, []byte(specimenMRZ)))
}

// specimenFacialRecord builds a one face ISO 19794-5 record around
// the given image bytes, declaring the given image data type.
func specimenFacialRecord(image []byte, dataType byte) []byte {
	blockLen := facialInfoLen + facImageInfoLen + len(image)

	var rec bytes.Buffer
	rec.Write(facMagic)
	rec.WriteString("010\x00")
	binary.Write(&rec, binary.BigEndian, uint32(facHeaderLen+blockLen))
	binary.Write(&rec, binary.BigEndian, uint16(1))

	binary.Write(&rec, binary.BigEndian, uint32(blockLen))
	binary.Write(&rec, binary.BigEndian, uint16(0)) // feature points
	rec.Write(make([]byte, facialInfoLen-6))

	imageInfo := make([]byte, facImageInfoLen)
	imageInfo[imageTypeOffset] = dataType
	rec.Write(imageInfo)
	rec.Write(image)
	return rec.Bytes()
}

func specimenDG2(image []byte, dataType byte) []byte {
	info := tlv.Encode(0xA1, mustHexStatic("8702010188020008")) // header template
	info = append(info, tlv.Encode(tagBiometricData, specimenFacialRecord(image, dataType))...)
	group := []byte{0x02, 0x01, 0x01} // one instance
	group = append(group, tlv.Encode(tagBiometricInfo, info)...)
	return tlv.Encode(EFDG2.Tag, tlv.Encode(tagBiometricGroup, group))
}

func mustHexStatic(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

func TestParseCOM(t *testing.T) {
	data := mustHex(t, "60145F0104303130365F36063034303030305C026175")
	com, err := ParseCOM(data)
	if err != nil {
		t.Fatalf("ParseCOM: %v", err)
	}
	if com.LDSVersion != "0106" {
		t.Errorf("LDSVersion = %q", com.LDSVersion)
	}
	if com.UnicodeVersion != "040000" {
		t.Errorf("UnicodeVersion = %q", com.UnicodeVersion)
	}
	if len(com.DataGroupTags) != 2 || com.DataGroupTags[0] != 0x61 || com.DataGroupTags[1] != 0x75 {
		t.Errorf("DataGroupTags = %v", com.DataGroupTags)
	}
	if !com.Contains(EFDG1.Tag) || com.Contains(0x63) {
		t.Error("Contains answers wrong")
	}
}

func TestParseCOMRejects(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"WrongOuterTag", "61045F010130"},
		{"NoDataGroupList", "60075F010430313036"},
		{"Truncated", "60145F0104303130"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := ParseCOM(mustHex(t, c.data)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestParseDG1(t *testing.T) {
	dg1, err := ParseDG1(specimenDG1())
	if err != nil {
		t.Fatalf("ParseDG1: %v", err)
	}
	doc := dg1.Document
	if doc.DocumentNumber != "L898902C" {
		t.Errorf("DocumentNumber = %q", doc.DocumentNumber)
	}
	if doc.Primary != "ERIKSSON" || doc.Secondary != "ANNA MARIA" {
		t.Errorf("name = %q / %q", doc.Primary, doc.Secondary)
	}
	if doc.BirthDate != "690806" || doc.ExpiryDate != "940623" {
		t.Errorf("dates = %q / %q", doc.BirthDate, doc.ExpiryDate)
	}
}

func TestParseDG1Rejects(t *testing.T) {
	if _, err := ParseDG1(tlv.Encode(EFDG1.Tag, tlv.Encode(0x5F20, []byte("X")))); !errors.Is(err, ErrMalformedFile) {
		t.Fatalf("missing MRZ element: got %v", err)
	}
	corrupt := []byte(specimenMRZ)
	corrupt[44] = 'X' // document number no longer matches its digit
	if _, err := ParseDG1(tlv.Encode(EFDG1.Tag, tlv.Encode(tagMRZData, corrupt))); err == nil {
		t.Fatal("expected checksum failure")
	}
}

func TestParseDG2(t *testing.T) {
	jpeg := append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, []byte("image-bytes")...)
	dg2, err := ParseDG2(specimenDG2(jpeg, 0x00))
	if err != nil {
		t.Fatalf("ParseDG2: %v", err)
	}
	if len(dg2.Images) != 1 {
		t.Fatalf("got %d images", len(dg2.Images))
	}
	if dg2.Images[0].Format != ImageFormatJPEG {
		t.Errorf("format = %v", dg2.Images[0].Format)
	}
	if !bytes.Equal(dg2.Images[0].Data, jpeg) {
		t.Errorf("image data = %X", dg2.Images[0].Data)
	}
}

func TestParseDG2JPEG2000Magic(t *testing.T) {
	jp2 := append(mustHex(t, "0000000C6A502020"), 0x01)
	// Declared as JPEG, but the payload magic wins.
	dg2, err := ParseDG2(specimenDG2(jp2, 0x00))
	if err != nil {
		t.Fatalf("ParseDG2: %v", err)
	}
	if dg2.Images[0].Format != ImageFormatJPEG2000 {
		t.Errorf("format = %v", dg2.Images[0].Format)
	}
}

func TestParseDG2Rejects(t *testing.T) {
	notFac := tlv.Encode(EFDG2.Tag, tlv.Encode(tagBiometricGroup,
		tlv.Encode(tagBiometricInfo, tlv.Encode(tagBiometricData, []byte("not a record")))))
	if _, err := ParseDG2(notFac); !errors.Is(err, ErrNotFacialRecord) {
		t.Fatalf("got %v, want ErrNotFacialRecord", err)
	}

	noGroup := tlv.Encode(EFDG2.Tag, tlv.Encode(0xA0, []byte{0x00}))
	if _, err := ParseDG2(noGroup); !errors.Is(err, ErrMalformedFile) {
		t.Fatalf("got %v, want ErrMalformedFile", err)
	}
}

func TestParseSOD(t *testing.T) {
	raw := tlv.Encode(EFSOD.Tag, []byte{0x30, 0x03, 0x02, 0x01, 0x00})
	sod, err := ParseSOD(raw)
	if err != nil {
		t.Fatalf("ParseSOD: %v", err)
	}
	if !bytes.Equal(sod.Raw, raw) {
		t.Error("Raw does not round the file")
	}
	if _, err := ParseSOD(tlv.Encode(0x60, nil)); !errors.Is(err, ErrUnexpectedTag) {
		t.Fatalf("got %v, want ErrUnexpectedTag", err)
	}
}
