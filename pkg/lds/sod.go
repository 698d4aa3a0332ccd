package lds

import (
	"fmt"

	"github.com/epassd/mrtd/pkg/tlv"
)

// SOD is the document security object EF.SOD. Its contents are a CMS
// SignedData structure; verification belongs to a passive
// authentication layer, so the payload is kept opaque here.
type SOD struct {
	// Raw is the complete file as read from the chip.
	Raw []byte
}

// ParseSOD validates the file framing and wraps the raw contents.
func ParseSOD(data []byte) (*SOD, error) {
	outer, _, err := tlv.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: EF.SOD: %v", ErrMalformedFile, err)
	}
	if outer.Tag != EFSOD.Tag {
		return nil, fmt.Errorf("%w: EF.SOD outer tag %s", ErrUnexpectedTag, outer.Tag)
	}
	return &SOD{Raw: data}, nil
}
