// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package peedit

import (
	"encoding/binary"
)

// ImageDOSHeader represents the DOS stub of a PE. Only Magic and
// AddressOfNewEXEHeader are semantically required by this module; the rest
// of the 64-byte header is carried verbatim on parse and reserialized
// unchanged (spec.md §3: "only e_lfanew is semantically required").
type ImageDOSHeader struct {
	Magic                    uint16     `json:"magic"`
	BytesOnLastPageOfFile    uint16     `json:"bytes_on_last_page_of_file"`
	PagesInFile              uint16     `json:"pages_in_file"`
	Relocations              uint16     `json:"relocations"`
	SizeOfHeader             uint16     `json:"size_of_header"`
	MinExtraParagraphsNeeded uint16     `json:"min_extra_paragraphs_needed"`
	MaxExtraParagraphsNeeded uint16     `json:"max_extra_paragraphs_needed"`
	InitialSS                uint16     `json:"initial_ss"`
	InitialSP                uint16     `json:"initial_sp"`
	Checksum                 uint16     `json:"checksum"`
	InitialIP                uint16     `json:"initial_ip"`
	InitialCS                uint16     `json:"initial_cs"`
	AddressOfRelocationTable uint16     `json:"address_of_relocation_table"`
	OverlayNumber            uint16     `json:"overlay_number"`
	ReservedWords1           [4]uint16  `json:"reserved_words_1"`
	OEMIdentifier            uint16     `json:"oem_identifier"`
	OEMInformation           uint16     `json:"oem_information"`
	ReservedWords2           [10]uint16 `json:"reserved_words_2"`

	// AddressOfNewEXEHeader is e_lfanew: the file offset of the "PE\0\0"
	// signature.
	AddressOfNewEXEHeader uint32 `json:"address_of_new_exe_header"`
}

// ParseDOSHeader parses the 64-byte DOS header stub that precedes every PE
// file. Every PE file begins with a small MS-DOS stub whose only job, on
// real DOS, is to print a message saying Windows is required.
func (pe *File) ParseDOSHeader() error {
	size := uint32(binary.Size(pe.DOSHeader))
	if err := pe.structUnpack(&pe.DOSHeader, 0, size); err != nil {
		return ErrTruncatedInput
	}

	// It can be ZM on a (non-PE) EXE. These still run under XP via ntvdm,
	// but are not PE files.
	if pe.DOSHeader.Magic != ImageDOSSignature &&
		pe.DOSHeader.Magic != ImageDOSZMSignature {
		return ErrInvalidDosSignature
	}

	// e_lfanew must be 8-byte aligned and point within the file (spec.md §3).
	if pe.DOSHeader.AddressOfNewEXEHeader < 0x40 ||
		pe.DOSHeader.AddressOfNewEXEHeader%8 != 0 ||
		pe.DOSHeader.AddressOfNewEXEHeader > pe.size {
		return ErrMalformedHeader
	}

	pe.HasDOSHdr = true
	return nil
}

// writeDOSHeader emits the DOS header bytes unchanged from parse time; it is
// always 64 bytes and is never recomputed during rebuild (spec.md §3).
func (pe *File) writeDOSHeader(buf []byte) {
	binary.LittleEndian.PutUint16(buf[0:2], pe.DOSHeader.Magic)
	binary.LittleEndian.PutUint16(buf[2:4], pe.DOSHeader.BytesOnLastPageOfFile)
	binary.LittleEndian.PutUint16(buf[4:6], pe.DOSHeader.PagesInFile)
	binary.LittleEndian.PutUint16(buf[6:8], pe.DOSHeader.Relocations)
	binary.LittleEndian.PutUint16(buf[8:10], pe.DOSHeader.SizeOfHeader)
	binary.LittleEndian.PutUint16(buf[10:12], pe.DOSHeader.MinExtraParagraphsNeeded)
	binary.LittleEndian.PutUint16(buf[12:14], pe.DOSHeader.MaxExtraParagraphsNeeded)
	binary.LittleEndian.PutUint16(buf[14:16], pe.DOSHeader.InitialSS)
	binary.LittleEndian.PutUint16(buf[16:18], pe.DOSHeader.InitialSP)
	binary.LittleEndian.PutUint16(buf[18:20], pe.DOSHeader.Checksum)
	binary.LittleEndian.PutUint16(buf[20:22], pe.DOSHeader.InitialIP)
	binary.LittleEndian.PutUint16(buf[22:24], pe.DOSHeader.InitialCS)
	binary.LittleEndian.PutUint16(buf[24:26], pe.DOSHeader.AddressOfRelocationTable)
	binary.LittleEndian.PutUint16(buf[26:28], pe.DOSHeader.OverlayNumber)
	for i, w := range pe.DOSHeader.ReservedWords1 {
		binary.LittleEndian.PutUint16(buf[28+i*2:30+i*2], w)
	}
	binary.LittleEndian.PutUint16(buf[36:38], pe.DOSHeader.OEMIdentifier)
	binary.LittleEndian.PutUint16(buf[38:40], pe.DOSHeader.OEMInformation)
	for i, w := range pe.DOSHeader.ReservedWords2 {
		binary.LittleEndian.PutUint16(buf[40+i*2:42+i*2], w)
	}
	binary.LittleEndian.PutUint32(buf[60:64], pe.DOSHeader.AddressOfNewEXEHeader)
}
