package lds

import (
	"fmt"

	"github.com/epassd/mrtd/pkg/tlv"
)

const (
	tagLDSVersion     tlv.Tag = 0x5F01
	tagUnicodeVersion tlv.Tag = 0x5F36
	tagDataGroupList  tlv.Tag = 0x5C
)

// COM is the parsed common data file EF.COM: the LDS and Unicode
// version strings and the outer tag of every data group present on
// the chip.
type COM struct {
	LDSVersion     string
	UnicodeVersion string
	DataGroupTags  []tlv.Tag
}

// Contains reports whether the chip announces the data group with the
// given outer tag.
func (c *COM) Contains(tag tlv.Tag) bool {
	for _, t := range c.DataGroupTags {
		if t == tag {
			return true
		}
	}
	return false
}

// ParseCOM parses a complete EF.COM file.
func ParseCOM(data []byte) (*COM, error) {
	outer, _, err := tlv.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: EF.COM: %v", ErrMalformedFile, err)
	}
	if outer.Tag != EFCOM.Tag {
		return nil, fmt.Errorf("%w: EF.COM outer tag %s", ErrUnexpectedTag, outer.Tag)
	}

	com := &COM{}
	r := tlv.NewReader(outer.Value)
	for r.Next() {
		el := r.Element()
		switch el.Tag {
		case tagLDSVersion:
			com.LDSVersion = string(el.Value)
		case tagUnicodeVersion:
			com.UnicodeVersion = string(el.Value)
		case tagDataGroupList:
			for _, b := range el.Value {
				com.DataGroupTags = append(com.DataGroupTags, tlv.Tag(b))
			}
		}
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("%w: EF.COM: %v", ErrMalformedFile, err)
	}
	if com.DataGroupTags == nil {
		return nil, fmt.Errorf("%w: EF.COM has no data group list", ErrMalformedFile)
	}
	return com, nil
}
