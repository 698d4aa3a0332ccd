package lds

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/epassd/mrtd/pkg/tlv"
)

// Data group 2 template tags.
const (
	tagBiometricGroup tlv.Tag = 0x7F61
	tagBiometricInfo  tlv.Tag = 0x7F60
	tagBiometricData  tlv.Tag = 0x5F2E
	tagBiometricDataB tlv.Tag = 0x7F2E
)

// ISO 19794-5 facial record framing.
var facMagic = []byte{'F', 'A', 'C', 0x00}

const (
	facHeaderLen    = 14
	facialInfoLen   = 20
	featurePointLen = 8
	facImageInfoLen = 12
	imageTypeOffset = 1 // within the image information block
)

// ImageFormat is the encoding of a face image.
type ImageFormat int

const (
	ImageFormatUnknown ImageFormat = iota
	ImageFormatJPEG
	ImageFormatJPEG2000
)

func (f ImageFormat) String() string {
	switch f {
	case ImageFormatJPEG:
		return "JPEG"
	case ImageFormatJPEG2000:
		return "JPEG2000"
	default:
		return "Unknown"
	}
}

// FaceImage is one encoded portrait from data group 2.
type FaceImage struct {
	Format ImageFormat
	Data   []byte
}

// DG2 is the parsed data group 2: the holder's encoded face images.
type DG2 struct {
	Images []FaceImage
}

// ParseDG2 parses a complete EF.DG2 file and extracts every face
// image from its biometric information templates.
func ParseDG2(data []byte) (*DG2, error) {
	outer, _, err := tlv.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: EF.DG2: %v", ErrMalformedFile, err)
	}
	if outer.Tag != EFDG2.Tag {
		return nil, fmt.Errorf("%w: EF.DG2 outer tag %s", ErrUnexpectedTag, outer.Tag)
	}

	group, err := tlv.Find(outer.Value, tagBiometricGroup)
	if err != nil {
		return nil, fmt.Errorf("%w: EF.DG2 has no biometric group", ErrMalformedFile)
	}

	dg2 := &DG2{}
	r := tlv.NewReader(group.Value)
	for r.Next() {
		el := r.Element()
		if el.Tag != tagBiometricInfo {
			continue
		}
		block, err := biometricDataBlock(el.Value)
		if err != nil {
			return nil, err
		}
		images, err := parseFacialRecord(block)
		if err != nil {
			return nil, err
		}
		dg2.Images = append(dg2.Images, images...)
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("%w: EF.DG2: %v", ErrMalformedFile, err)
	}
	if len(dg2.Images) == 0 {
		return nil, fmt.Errorf("%w: EF.DG2 has no face image", ErrMalformedFile)
	}
	return dg2, nil
}

// biometricDataBlock returns the payload of the information
// template's data element, which may carry either the primitive or
// the constructed form of the tag.
func biometricDataBlock(info []byte) ([]byte, error) {
	r := tlv.NewReader(info)
	for r.Next() {
		el := r.Element()
		if el.Tag == tagBiometricData || el.Tag == tagBiometricDataB {
			return el.Value, nil
		}
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("%w: EF.DG2: %v", ErrMalformedFile, err)
	}
	return nil, fmt.Errorf("%w: biometric template has no data block", ErrMalformedFile)
}

// parseFacialRecord walks an ISO 19794-5 record: a fixed header, then
// per face a facial information block, optional feature points, an
// image information block, and the image itself.
func parseFacialRecord(block []byte) ([]FaceImage, error) {
	if len(block) < facHeaderLen || !bytes.HasPrefix(block, facMagic) {
		return nil, ErrNotFacialRecord
	}
	faceCount := int(binary.BigEndian.Uint16(block[12:14]))
	if faceCount == 0 {
		return nil, fmt.Errorf("%w: facial record with zero faces", ErrMalformedFile)
	}

	images := make([]FaceImage, 0, faceCount)
	rest := block[facHeaderLen:]
	for i := 0; i < faceCount; i++ {
		if len(rest) < 4+2 {
			return nil, fmt.Errorf("%w: facial record truncated", ErrMalformedFile)
		}
		blockLen := int(binary.BigEndian.Uint32(rest[:4]))
		if blockLen < facialInfoLen+facImageInfoLen || blockLen > len(rest) {
			return nil, fmt.Errorf("%w: facial block length %d", ErrMalformedFile, blockLen)
		}
		featurePoints := int(binary.BigEndian.Uint16(rest[4:6]))

		imageStart := facialInfoLen + featurePoints*featurePointLen + facImageInfoLen
		if imageStart > blockLen {
			return nil, fmt.Errorf("%w: facial block overruns image data", ErrMalformedFile)
		}
		image := rest[imageStart:blockLen]
		imageInfo := rest[imageStart-facImageInfoLen : imageStart]
		images = append(images, FaceImage{
			Format: imageFormat(imageInfo[imageTypeOffset], image),
			Data:   image,
		})
		rest = rest[blockLen:]
	}
	return images, nil
}

// imageFormat decides the encoding from the declared image data type,
// falling back to the payload's magic bytes when the declaration and
// the payload disagree.
func imageFormat(dataType byte, image []byte) ImageFormat {
	switch {
	case bytes.HasPrefix(image, []byte{0xFF, 0xD8, 0xFF}):
		return ImageFormatJPEG
	case bytes.HasPrefix(image, []byte{0x00, 0x00, 0x00, 0x0C, 0x6A, 0x50}),
		bytes.HasPrefix(image, []byte{0xFF, 0x4F, 0xFF, 0x51}):
		return ImageFormatJPEG2000
	case dataType == 0x00:
		return ImageFormatJPEG
	case dataType == 0x01:
		return ImageFormatJPEG2000
	default:
		return ImageFormatUnknown
	}
}
