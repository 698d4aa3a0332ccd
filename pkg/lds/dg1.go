package lds

import (
	"fmt"

	"github.com/epassd/mrtd/pkg/mrz"
	"github.com/epassd/mrtd/pkg/tlv"
)

const tagMRZData tlv.Tag = 0x5F1F

// DG1 is the parsed data group 1: the machine readable zone as
// printed on the data page.
type DG1 struct {
	Document mrz.Document
}

// ParseDG1 parses a complete EF.DG1 file.
func ParseDG1(data []byte) (*DG1, error) {
	outer, _, err := tlv.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: EF.DG1: %v", ErrMalformedFile, err)
	}
	if outer.Tag != EFDG1.Tag {
		return nil, fmt.Errorf("%w: EF.DG1 outer tag %s", ErrUnexpectedTag, outer.Tag)
	}

	zone, err := tlv.Find(outer.Value, tagMRZData)
	if err != nil {
		return nil, fmt.Errorf("%w: EF.DG1 has no MRZ element", ErrMalformedFile)
	}
	doc, err := mrz.ParseDocument(string(zone.Value))
	if err != nil {
		return nil, fmt.Errorf("EF.DG1: %w", err)
	}
	return &DG1{Document: *doc}, nil
}
