// Package lds reads and parses the Logical Data Structure of a
// machine readable travel document: the common data file, the data
// groups, and the document security object.
package lds

import (
	"fmt"

	"github.com/epassd/mrtd/pkg/tlv"
)

// File identifies one elementary file in the LDS together with the
// outer tag its contents must carry.
type File struct {
	Name string
	ID   uint16
	Tag  tlv.Tag
}

// The elementary files this package knows how to read.
var (
	EFCOM = File{Name: "EF.COM", ID: 0x011E, Tag: 0x60}
	EFDG1 = File{Name: "EF.DG1", ID: 0x0101, Tag: 0x61}
	EFDG2 = File{Name: "EF.DG2", ID: 0x0102, Tag: 0x75}
	EFSOD = File{Name: "EF.SOD", ID: 0x011D, Tag: 0x77}
)

func (f File) String() string {
	return fmt.Sprintf("%s ('%04X')", f.Name, f.ID)
}

// idBytes returns the two byte file identifier for SELECT.
func (f File) idBytes() []byte {
	return []byte{byte(f.ID >> 8), byte(f.ID)}
}
