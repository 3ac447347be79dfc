// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package peedit

import (
	"encoding/binary"
)

// Bytes re-serializes the image, applying every queued resource mutation.
// When nothing has been mutated it still re-renders the file from the parsed
// structures rather than returning the original buffer verbatim, so callers
// can rely on Bytes() always reflecting File's in-memory state. The output is
// not a byte copy of the input: the resource section is re-laid out, section
// raw offsets, SizeOfImage, SizeOfHeaders, SizeOfInitializedData, the
// resource data directory and CheckSum are recomputed, every resource
// directory header is written with only its entry counts set
// (Characteristics, TimeDateStamp and the version fields are zero), and an
// image without a resource section gains a new .rsrc section.
func (pe *File) Bytes() ([]byte, error) {
	rsrcIdx := pe.findResourceSectionIndex()

	var oldVirtualSize, oldRawSize uint32
	var sectionRVA uint32
	if rsrcIdx >= 0 {
		oldVirtualSize = pe.Sections[rsrcIdx].Header.VirtualSize
		oldRawSize = pe.Sections[rsrcIdx].Header.SizeOfRawData
		sectionRVA = pe.Sections[rsrcIdx].Header.VirtualAddress
	} else {
		sectionRVA = pe.nextSectionRVA()
	}

	content := serializeResourceTree(pe.Resources, sectionRVA)
	if len(content) > 0x7fffffff {
		return nil, ErrResourceTooLarge
	}

	fileAlign := pe.fileAlignment()
	sectionAlign := pe.sectionAlignment()

	newRawSize := alignUp(uint32(len(content)), fileAlign)
	newVirtualSize := uint32(len(content))

	sections := make([]Section, len(pe.Sections))
	copy(sections, pe.Sections)

	if rsrcIdx >= 0 {
		sections[rsrcIdx].Header.VirtualSize = newVirtualSize
		sections[rsrcIdx].Header.SizeOfRawData = newRawSize

		deltaVirtual := int64(alignUp(newVirtualSize, sectionAlign)) - int64(alignUp(oldVirtualSize, sectionAlign))
		deltaRaw := int64(newRawSize) - int64(alignUp(oldRawSize, fileAlign))

		oldRsrcVA := pe.Sections[rsrcIdx].Header.VirtualAddress
		for i := range sections {
			if i == rsrcIdx {
				continue
			}
			if sections[i].Header.VirtualAddress > sections[rsrcIdx].Header.VirtualAddress {
				sections[i].Header.VirtualAddress = uint32(int64(sections[i].Header.VirtualAddress) + deltaVirtual)
			}
			if sections[i].Header.PointerToRawData > 0 &&
				sections[i].Header.PointerToRawData > pe.Sections[rsrcIdx].Header.PointerToRawData {
				sections[i].Header.PointerToRawData = uint32(int64(sections[i].Header.PointerToRawData) + deltaRaw)
			}
		}

		// Every other RVA-relative data directory whose target lived inside a
		// section that just shifted needs the same delta, or it keeps pointing
		// at the pre-shift address (spec.md §4.5 step 5). The certificate
		// directory is a file offset, not an RVA, and is never shifted.
		for d := ImageDirectoryEntry(0); d < ImageNumberOfDirectoryEntries; d++ {
			if d == ImageDirectoryEntryResource || d == ImageDirectoryEntryCertificate {
				continue
			}
			entry := pe.dataDirectory(d)
			if entry.VirtualAddress == 0 {
				continue
			}
			if entry.VirtualAddress > oldRsrcVA {
				entry.VirtualAddress = uint32(int64(entry.VirtualAddress) + deltaVirtual)
				pe.setDataDirectory(d, entry)
			}
		}
	} else {
		newSection := Section{Header: ImageSectionHeader{
			Name:            writeSectionName(".rsrc"),
			VirtualSize:     newVirtualSize,
			VirtualAddress:  sectionRVA,
			SizeOfRawData:   newRawSize,
			Characteristics: rsrcSectionCharacteristics,
		}}
		sections = append(sections, newSection)
		rsrcIdx = len(sections) - 1
	}

	numberOfSections := uint32(len(sections))
	requiredHeaderSize := pe.ntHeaderTotalSize() + numberOfSections*40
	headerSize := alignUp(requiredHeaderSize, fileAlign)
	if uint32(len(pe.Header)) > headerSize {
		headerSize = alignUp(uint32(len(pe.Header)), fileAlign)
	}

	// Recompute every section's raw placement from scratch in VirtualAddress
	// order so growth/shrinkage of the resource section (or growth of the
	// header area to fit one more section row) never leaves a gap or an
	// overlap, regardless of what PointerToRawData happened to hold before.
	pe.relayoutRawOffsets(sections, headerSize, fileAlign)

	sizeOfImage := headerSize
	for _, s := range sections {
		end := alignUp(s.Header.VirtualAddress+Max(s.Header.VirtualSize, s.Header.SizeOfRawData), sectionAlign)
		if end > sizeOfImage {
			sizeOfImage = end
		}
	}
	sizeOfImage = alignUp(sizeOfImage, sectionAlign)

	var sizeOfInitializedData uint32
	for _, s := range sections {
		if s.Header.Characteristics&ImageScnCntInitializedData != 0 {
			sizeOfInitializedData += s.Header.SizeOfRawData
		}
	}

	pe.setDataDirectory(ImageDirectoryEntryResource, DataDirectory{
		VirtualAddress: sections[rsrcIdx].Header.VirtualAddress,
		Size:           newVirtualSize,
	})
	pe.setSizeFields(sizeOfImage, headerSize, sizeOfInitializedData)

	totalSize := sections[len(sections)-1].Header.PointerToRawData + sections[len(sections)-1].Header.SizeOfRawData
	if pe.HasOverlay {
		totalSize += uint32(uint32(pe.size) - uint32(pe.OverlayOffset))
	}

	out := make([]byte, totalSize)
	pe.writeDOSHeader(out)
	pe.writeNTHeader(out, headerSize, sizeOfImage, numberOfSections)
	pe.writeSectionTable(out, sections)

	for i, s := range sections {
		if i == rsrcIdx {
			copy(out[s.Header.PointerToRawData:], content)
			continue
		}
		orig := pe.Sections[i].Data(0, 0, pe)
		if orig != nil {
			n := copy(out[s.Header.PointerToRawData:s.Header.PointerToRawData+s.Header.SizeOfRawData], orig)
			_ = n
		}
	}

	if pe.HasOverlay {
		copy(out[totalSize-uint32(uint32(pe.size)-uint32(pe.OverlayOffset)):], pe.data[pe.OverlayOffset:])
	}

	checksumOffset := pe.checksumFieldOffset()
	if pe.opts.computeChecksum() {
		cs := computeChecksum(out, checksumOffset)
		binary.LittleEndian.PutUint32(out[checksumOffset:], cs)
	} else {
		binary.LittleEndian.PutUint32(out[checksumOffset:], 0)
	}

	return out, nil
}

// findResourceSectionIndex returns the index of the section containing the
// resource data directory's RVA, or -1 if there is none (a fresh resource
// tree needs a brand new section).
func (pe *File) findResourceSectionIndex() int {
	dir := pe.dataDirectory(ImageDirectoryEntryResource)
	if dir.VirtualAddress == 0 {
		for i := range pe.Sections {
			if pe.Sections[i].String() == ".rsrc" {
				return i
			}
		}
		return -1
	}
	for i := range pe.Sections {
		if pe.Sections[i].Contains(dir.VirtualAddress, pe) {
			return i
		}
	}
	return -1
}

// nextSectionRVA returns an aligned RVA immediately following the last
// section, suitable for a newly allocated .rsrc section.
func (pe *File) nextSectionRVA() uint32 {
	align := pe.sectionAlignment()
	var highest uint32
	for _, s := range pe.Sections {
		end := alignUp(s.Header.VirtualAddress+Max(s.Header.VirtualSize, s.Header.SizeOfRawData), align)
		if end > highest {
			highest = end
		}
	}
	if highest == 0 {
		highest = align
	}
	return highest
}

// relayoutRawOffsets lays every section's PointerToRawData out contiguously,
// in VirtualAddress order, starting right after the header area. This is the
// single source of truth for file-offset placement: whatever PointerToRawData
// values earlier steps guessed at are overwritten here.
func (pe *File) relayoutRawOffsets(sections []Section, headerSize, fileAlign uint32) {
	order := make([]int, len(sections))
	for i := range order {
		order[i] = i
	}
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && sections[order[j]].Header.VirtualAddress < sections[order[j-1]].Header.VirtualAddress; j-- {
			order[j], order[j-1] = order[j-1], order[j]
		}
	}

	offset := alignUp(headerSize, fileAlign)
	for _, idx := range order {
		sections[idx].Header.PointerToRawData = offset
		offset += alignUp(sections[idx].Header.SizeOfRawData, fileAlign)
	}
}

// ntHeaderTotalSize returns the byte size of everything from e_lfanew through
// the end of the optional header (i.e. everything before the section table).
func (pe *File) ntHeaderTotalSize() uint32 {
	return pe.DOSHeader.AddressOfNewEXEHeader + 4 +
		uint32(binary.Size(pe.NtHeader.FileHeader)) +
		uint32(pe.NtHeader.FileHeader.SizeOfOptionalHeader)
}

// checksumFieldOffset returns the absolute file offset of the optional
// header's CheckSum field.
func (pe *File) checksumFieldOffset() uint32 {
	base := pe.DOSHeader.AddressOfNewEXEHeader + 4 + uint32(binary.Size(pe.NtHeader.FileHeader))
	// CheckSum sits at the same relative offset (64) in both PE32 and PE32+
	// optional headers; only the fields after ImageBase differ in width.
	return base + 64
}

// setSizeFields updates SizeOfImage/SizeOfHeaders/SizeOfInitializedData on
// the in-memory optional header so pe continues to describe the image
// Bytes() is about to produce.
func (pe *File) setSizeFields(sizeOfImage, sizeOfHeaders, sizeOfInitializedData uint32) {
	if pe.Is64 {
		oh := pe.NtHeader.OptionalHeader.(ImageOptionalHeader64)
		oh.SizeOfImage = sizeOfImage
		oh.SizeOfHeaders = sizeOfHeaders
		oh.SizeOfInitializedData = sizeOfInitializedData
		pe.NtHeader.OptionalHeader = oh
		return
	}
	oh := pe.NtHeader.OptionalHeader.(ImageOptionalHeader32)
	oh.SizeOfImage = sizeOfImage
	oh.SizeOfHeaders = sizeOfHeaders
	oh.SizeOfInitializedData = sizeOfInitializedData
	pe.NtHeader.OptionalHeader = oh
}

func (pe *File) writeNTHeader(buf []byte, sizeOfHeaders, sizeOfImage, numberOfSections uint32) {
	ntOffset := pe.DOSHeader.AddressOfNewEXEHeader
	binary.LittleEndian.PutUint32(buf[ntOffset:], ImageNTSignature)

	fh := pe.NtHeader.FileHeader
	fh.NumberOfSections = uint16(numberOfSections)
	fhOffset := ntOffset + 4
	binary.LittleEndian.PutUint16(buf[fhOffset:], uint16(fh.Machine))
	binary.LittleEndian.PutUint16(buf[fhOffset+2:], fh.NumberOfSections)
	binary.LittleEndian.PutUint32(buf[fhOffset+4:], fh.TimeDateStamp)
	binary.LittleEndian.PutUint32(buf[fhOffset+8:], fh.PointerToSymbolTable)
	binary.LittleEndian.PutUint32(buf[fhOffset+12:], fh.NumberOfSymbols)
	binary.LittleEndian.PutUint16(buf[fhOffset+16:], fh.SizeOfOptionalHeader)
	binary.LittleEndian.PutUint16(buf[fhOffset+18:], uint16(fh.Characteristics))

	ohOffset := fhOffset + 20
	if pe.Is64 {
		oh := pe.NtHeader.OptionalHeader.(ImageOptionalHeader64)
		oh.SizeOfImage = sizeOfImage
		oh.SizeOfHeaders = sizeOfHeaders
		writeOptionalHeader64(buf[ohOffset:], oh)
	} else {
		oh := pe.NtHeader.OptionalHeader.(ImageOptionalHeader32)
		oh.SizeOfImage = sizeOfImage
		oh.SizeOfHeaders = sizeOfHeaders
		writeOptionalHeader32(buf[ohOffset:], oh)
	}
}

func (pe *File) writeSectionTable(buf []byte, sections []Section) {
	offset := pe.ntHeaderTotalSize()
	for _, s := range sections {
		writeSectionHeader(buf[offset:offset+40], s.Header)
		offset += 40
	}
}
