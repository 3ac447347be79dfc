// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package peedit

import (
	"encoding/binary"
	"math"
	"sort"
	"strings"
)

// Section characteristics flags relevant to rebuilding: only the bits this
// module ever inspects or sets on the synthesized .rsrc section are named.
const (
	ImageScnCntCode              = 0x00000020
	ImageScnCntInitializedData   = 0x00000040
	ImageScnCntUninitializedData = 0x00000080
	ImageScnMemDiscardable       = 0x02000000
	ImageScnMemNotCached         = 0x04000000
	ImageScnMemNotPaged          = 0x08000000
	ImageScnMemShared            = 0x10000000
	ImageScnMemExecute           = 0x20000000
	ImageScnMemRead              = 0x40000000
	ImageScnMemWrite             = 0x80000000
)

// rsrcSectionCharacteristics is what every linker stamps on a resource
// section: initialized data, readable, not writable.
const rsrcSectionCharacteristics = ImageScnCntInitializedData | ImageScnMemRead

// ImageSectionHeader is one 40-byte row of the section table.
type ImageSectionHeader struct {
	Name                 [8]uint8
	VirtualSize          uint32
	VirtualAddress       uint32
	SizeOfRawData        uint32
	PointerToRawData     uint32
	PointerToRelocations uint32
	PointerToLineNumbers uint32
	NumberOfRelocations  uint16
	NumberOfLineNumbers  uint16
	Characteristics      uint32
}

// Section is a parsed section header plus derived data.
type Section struct {
	Header  ImageSectionHeader
	Entropy float64 `json:",omitempty"`
}

// ParseSectionHeader parses the section table, which immediately follows the
// optional header.
func (pe *File) ParseSectionHeader() error {
	optionalHeaderOffset := pe.DOSHeader.AddressOfNewEXEHeader + 4 +
		uint32(binary.Size(pe.NtHeader.FileHeader))
	offset := optionalHeaderOffset + uint32(pe.NtHeader.FileHeader.SizeOfOptionalHeader)

	secHeader := ImageSectionHeader{}
	numberOfSections := pe.NtHeader.FileHeader.NumberOfSections
	secHeaderSize := uint32(binary.Size(secHeader))

	for i := uint16(0); i < numberOfSections; i++ {
		if err := pe.structUnpack(&secHeader, offset, secHeaderSize); err != nil {
			return ErrTruncatedInput
		}

		if secEnd := int64(secHeader.PointerToRawData) + int64(secHeader.SizeOfRawData); secEnd > pe.OverlayOffset {
			pe.OverlayOffset = secEnd
		}

		sec := Section{Header: secHeader}
		secName := sec.String()

		if secHeader.SizeOfRawData+secHeader.PointerToRawData > pe.size {
			pe.Anomalies = append(pe.Anomalies, "section `"+secName+"` SizeOfRawData extends past end of file")
		}

		if pe.opts.SectionEntropy {
			sec.Entropy = sec.CalculateEntropy(pe)
		}
		pe.Sections = append(pe.Sections, sec)

		offset += secHeaderSize
	}

	if !sort.IsSorted(byVirtualAddress(pe.Sections)) {
		pe.Anomalies = append(pe.Anomalies, "sections are not sorted by VirtualAddress")
	}
	for i := 1; i < len(pe.Sections); i++ {
		prev, cur := pe.Sections[i-1], pe.Sections[i]
		prevEnd := pe.adjustSectionAlignment(prev.Header.VirtualAddress) +
			Max(prev.Header.VirtualSize, prev.Header.SizeOfRawData)
		if prevEnd > pe.adjustSectionAlignment(cur.Header.VirtualAddress) {
			return ErrSectionOverlap
		}
	}

	if numberOfSections > 0 {
		offset += secHeaderSize * uint32(numberOfSections)
	}

	var rawDataPointers []uint32
	for _, sec := range pe.Sections {
		if sec.Header.PointerToRawData > 0 {
			rawDataPointers = append(rawDataPointers, pe.adjustFileAlignment(sec.Header.PointerToRawData))
		}
	}

	var lowestSectionOffset uint32
	if len(rawDataPointers) > 0 {
		lowestSectionOffset = Min(rawDataPointers)
	}

	if lowestSectionOffset == 0 || lowestSectionOffset < offset {
		if offset <= pe.size {
			pe.Header = pe.data[:offset]
		}
	} else if lowestSectionOffset <= pe.size {
		pe.Header = pe.data[:lowestSectionOffset]
	}

	pe.HasSections = true
	return nil
}

// String stringifies the section name, stripping NUL padding.
func (section *Section) String() string {
	return strings.Replace(string(section.Header.Name[:]), "\x00", "", -1)
}

// NextHeaderAddr returns the VirtualAddress of the section following this
// one, or 0 if this is the last section.
func (section *Section) NextHeaderAddr(pe *File) uint32 {
	for i := range pe.Sections {
		if pe.Sections[i].Header.VirtualAddress == section.Header.VirtualAddress {
			if i == len(pe.Sections)-1 {
				return 0
			}
			return pe.Sections[i+1].Header.VirtualAddress
		}
	}
	return 0
}

// Contains reports whether rva falls within this section.
func (section *Section) Contains(rva uint32, pe *File) bool {
	var size uint32
	adjustedPointer := pe.adjustFileAlignment(section.Header.PointerToRawData)
	if uint32(len(pe.data))-adjustedPointer < section.Header.SizeOfRawData {
		size = section.Header.VirtualSize
	} else {
		size = Max(section.Header.SizeOfRawData, section.Header.VirtualSize)
	}
	vaAdj := pe.adjustSectionAlignment(section.Header.VirtualAddress)

	if next := section.NextHeaderAddr(pe); next != 0 && next > section.Header.VirtualAddress && vaAdj+size > next {
		size = next - vaAdj
	}

	return vaAdj <= rva && rva < vaAdj+size
}

// Data returns the raw bytes of the section, or a sub-range of it when start
// and length are nonzero.
func (section *Section) Data(start, length uint32, pe *File) []byte {
	pointerToRawDataAdj := pe.adjustFileAlignment(section.Header.PointerToRawData)
	virtualAddressAdj := pe.adjustSectionAlignment(section.Header.VirtualAddress)

	var offset uint32
	if start == 0 {
		offset = pointerToRawDataAdj
	} else {
		offset = (start - virtualAddressAdj) + pointerToRawDataAdj
	}

	if offset > pe.size {
		return nil
	}

	var end uint32
	if length != 0 {
		end = offset + length
	} else {
		end = offset + section.Header.SizeOfRawData
	}

	if end > section.Header.PointerToRawData+section.Header.SizeOfRawData &&
		section.Header.PointerToRawData+section.Header.SizeOfRawData > offset {
		end = section.Header.PointerToRawData + section.Header.SizeOfRawData
	}
	if end > pe.size {
		end = pe.size
	}

	return pe.data[offset:end]
}

// CalculateEntropy computes the Shannon entropy, in bits per byte, of the
// section's raw content.
func (section *Section) CalculateEntropy(pe *File) float64 {
	sectionData := section.Data(0, 0, pe)
	if sectionData == nil {
		return 0.0
	}

	sectionSize := float64(len(sectionData))
	if sectionSize == 0.0 {
		return 0.0
	}

	var frequencies [256]uint64
	for _, v := range sectionData {
		frequencies[v]++
	}

	var entropy float64
	for _, p := range frequencies {
		if p > 0 {
			freq := float64(p) / sectionSize
			entropy += freq * math.Log2(freq)
		}
	}

	return -entropy
}

// byVirtualAddress sorts sections by VirtualAddress, the order the loader
// requires.
type byVirtualAddress []Section

func (s byVirtualAddress) Len() int      { return len(s) }
func (s byVirtualAddress) Swap(i, j int) { s[i], s[j] = s[j], s[i] }
func (s byVirtualAddress) Less(i, j int) bool {
	return s[i].Header.VirtualAddress < s[j].Header.VirtualAddress
}

// PrettySectionFlags returns the set characteristics flags by name.
func (section *Section) PrettySectionFlags() []string {
	var values []string
	sectionFlags := map[uint32]string{
		ImageScnCntCode:              "Contains Code",
		ImageScnCntInitializedData:   "Initialized Data",
		ImageScnCntUninitializedData: "Uninitialized Data",
		ImageScnMemDiscardable:       "Discardable",
		ImageScnMemNotCached:         "NotCached",
		ImageScnMemNotPaged:          "NotPaged",
		ImageScnMemShared:            "Shared",
		ImageScnMemExecute:           "Executable",
		ImageScnMemRead:              "Readable",
		ImageScnMemWrite:             "Writable",
	}

	flags := section.Header.Characteristics
	for k, v := range sectionFlags {
		if (k & flags) == k {
			values = append(values, v)
		}
	}
	return values
}

// writeSectionName copies name into an 8-byte, NUL-padded field, truncating
// if name is longer than 8 bytes (executable images do not support a string
// table for long section names).
func writeSectionName(name string) [8]uint8 {
	var out [8]uint8
	copy(out[:], name)
	return out
}

// writeSectionHeader serializes a 40-byte IMAGE_SECTION_HEADER row into buf.
func writeSectionHeader(buf []byte, h ImageSectionHeader) {
	copy(buf[0:8], h.Name[:])
	binary.LittleEndian.PutUint32(buf[8:12], h.VirtualSize)
	binary.LittleEndian.PutUint32(buf[12:16], h.VirtualAddress)
	binary.LittleEndian.PutUint32(buf[16:20], h.SizeOfRawData)
	binary.LittleEndian.PutUint32(buf[20:24], h.PointerToRawData)
	binary.LittleEndian.PutUint32(buf[24:28], h.PointerToRelocations)
	binary.LittleEndian.PutUint32(buf[28:32], h.PointerToLineNumbers)
	binary.LittleEndian.PutUint16(buf[32:34], h.NumberOfRelocations)
	binary.LittleEndian.PutUint16(buf[34:36], h.NumberOfLineNumbers)
	binary.LittleEndian.PutUint32(buf[36:40], h.Characteristics)
}
