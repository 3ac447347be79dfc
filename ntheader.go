// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package peedit

import (
	"encoding/binary"
)

// ImageFileHeaderMachineType represents the IMAGE_FILE_HEADER `Machine` field.
type ImageFileHeaderMachineType uint16

// ImageFileHeaderCharacteristicsType represents the IMAGE_FILE_HEADER
// `Characteristics` field.
type ImageFileHeaderCharacteristicsType uint16

// ImageOptionalHeaderSubsystemType represents the optional header `Subsystem`
// field.
type ImageOptionalHeaderSubsystemType uint16

// ImageOptionalHeaderDllCharacteristicsType represents the optional header
// `DllCharacteristics` field.
type ImageOptionalHeaderDllCharacteristicsType uint16

// ImageNtHeader is the general term for the structure IMAGE_NT_HEADERS: the
// COFF file header followed by the optional header.
type ImageNtHeader struct {
	Signature uint32 `json:"signature"`

	FileHeader ImageFileHeader `json:"file_header"`

	// OptionalHeader is either ImageOptionalHeader32 or ImageOptionalHeader64.
	OptionalHeader interface{} `json:"optional_header"`
}

// ImageFileHeader contains the physical layout and characteristics of the
// file.
type ImageFileHeader struct {
	Machine              ImageFileHeaderMachineType         `json:"machine"`
	NumberOfSections     uint16                             `json:"number_of_sections"`
	TimeDateStamp        uint32                             `json:"time_date_stamp"`
	PointerToSymbolTable uint32                             `json:"pointer_to_symbol_table"`
	NumberOfSymbols      uint32                             `json:"number_of_symbols"`
	SizeOfOptionalHeader uint16                             `json:"size_of_optional_header"`
	Characteristics      ImageFileHeaderCharacteristicsType `json:"characteristics"`
}

// ImageOptionalHeader32 is the PE32 optional header.
type ImageOptionalHeader32 struct {
	Magic                       uint16            `json:"magic"`
	MajorLinkerVersion          uint8             `json:"major_linker_version"`
	MinorLinkerVersion          uint8             `json:"minor_linker_version"`
	SizeOfCode                  uint32            `json:"size_of_code"`
	SizeOfInitializedData       uint32            `json:"size_of_initialized_data"`
	SizeOfUninitializedData     uint32            `json:"size_of_uninitialized_data"`
	AddressOfEntryPoint         uint32            `json:"address_of_entrypoint"`
	BaseOfCode                  uint32            `json:"base_of_code"`
	BaseOfData                  uint32            `json:"base_of_data"`
	ImageBase                   uint32            `json:"image_base"`
	SectionAlignment            uint32            `json:"section_alignment"`
	FileAlignment                uint32            `json:"file_alignment"`
	MajorOperatingSystemVersion uint16            `json:"major_os_version"`
	MinorOperatingSystemVersion uint16            `json:"minor_os_version"`
	MajorImageVersion           uint16            `json:"major_image_version"`
	MinorImageVersion           uint16            `json:"minor_image_version"`
	MajorSubsystemVersion       uint16            `json:"major_subsystem_version"`
	MinorSubsystemVersion       uint16            `json:"minor_subsystem_version"`
	Win32VersionValue           uint32            `json:"win32_version_value"`
	SizeOfImage                  uint32            `json:"size_of_image"`
	SizeOfHeaders                uint32            `json:"size_of_headers"`
	CheckSum                     uint32            `json:"checksum"`
	Subsystem                   ImageOptionalHeaderSubsystemType          `json:"subsystem"`
	DllCharacteristics           ImageOptionalHeaderDllCharacteristicsType `json:"dll_characteristics"`
	SizeOfStackReserve          uint32            `json:"size_of_stack_reserve"`
	SizeOfStackCommit           uint32            `json:"size_of_stack_commit"`
	SizeOfHeapReserve           uint32            `json:"size_of_heap_reserve"`
	SizeOfHeapCommit            uint32            `json:"size_of_heap_commit"`
	LoaderFlags                 uint32            `json:"loader_flags"`
	NumberOfRvaAndSizes         uint32            `json:"number_of_rva_and_sizes"`
	DataDirectory               [16]DataDirectory `json:"data_directories"`
}

// ImageOptionalHeader64 is the PE32+ optional header.
type ImageOptionalHeader64 struct {
	Magic                       uint16            `json:"magic"`
	MajorLinkerVersion          uint8             `json:"major_linker_version"`
	MinorLinkerVersion          uint8             `json:"minor_linker_version"`
	SizeOfCode                  uint32            `json:"size_of_code"`
	SizeOfInitializedData       uint32            `json:"size_of_initialized_data"`
	SizeOfUninitializedData     uint32            `json:"size_of_uninitialized_data"`
	AddressOfEntryPoint         uint32            `json:"address_of_entrypoint"`
	BaseOfCode                  uint32            `json:"base_of_code"`
	ImageBase                   uint64            `json:"image_base"`
	SectionAlignment            uint32            `json:"section_alignment"`
	FileAlignment                uint32            `json:"file_alignment"`
	MajorOperatingSystemVersion uint16            `json:"major_os_version"`
	MinorOperatingSystemVersion uint16            `json:"minor_os_version"`
	MajorImageVersion           uint16            `json:"major_image_version"`
	MinorImageVersion           uint16            `json:"minor_image_version"`
	MajorSubsystemVersion       uint16            `json:"major_subsystem_version"`
	MinorSubsystemVersion       uint16            `json:"minor_subsystem_version"`
	Win32VersionValue           uint32            `json:"win32_version_value"`
	SizeOfImage                  uint32            `json:"size_of_image"`
	SizeOfHeaders                uint32            `json:"size_of_headers"`
	CheckSum                     uint32            `json:"checksum"`
	Subsystem                   ImageOptionalHeaderSubsystemType          `json:"subsystem"`
	DllCharacteristics           ImageOptionalHeaderDllCharacteristicsType `json:"dll_characteristics"`
	SizeOfStackReserve          uint64            `json:"size_of_stack_reserve"`
	SizeOfStackCommit           uint64            `json:"size_of_stack_commit"`
	SizeOfHeapReserve           uint64            `json:"size_of_heap_reserve"`
	SizeOfHeapCommit            uint64            `json:"size_of_heap_commit"`
	LoaderFlags                 uint32            `json:"loader_flags"`
	NumberOfRvaAndSizes         uint32            `json:"number_of_rva_and_sizes"`
	DataDirectory               [16]DataDirectory `json:"data_directories"`
}

// DataDirectory is one entry of the 16-slot IMAGE_DATA_DIRECTORY array: an
// RVA/size pair describing a table the loader consumes.
type DataDirectory struct {
	VirtualAddress uint32
	Size           uint32
}

// ParseNTHeader parses IMAGE_NT_HEADERS at the offset recorded in the DOS
// header (e_lfanew), distinguishing PE32 from PE32+ by the optional header
// magic.
func (pe *File) ParseNTHeader() error {
	ntHeaderOffset := pe.DOSHeader.AddressOfNewEXEHeader
	signature, err := pe.ReadUint32(ntHeaderOffset)
	if err != nil {
		return ErrTruncatedInput
	}

	switch signature & 0xFFFF {
	case ImageOS2Signature, ImageOS2LESignature, ImageVXDSignature, ImageTESignature:
		return ErrInvalidPeSignature
	}
	if signature != ImageNTSignature {
		return ErrInvalidPeSignature
	}
	pe.NtHeader.Signature = signature

	fileHeaderSize := uint32(binary.Size(pe.NtHeader.FileHeader))
	fileHeaderOffset := ntHeaderOffset + 4
	if err := pe.structUnpack(&pe.NtHeader.FileHeader, fileHeaderOffset, fileHeaderSize); err != nil {
		return ErrTruncatedInput
	}

	if int(pe.NtHeader.FileHeader.NumberOfSections) > maxSections {
		return ErrTooManySections
	}

	oh32 := ImageOptionalHeader32{}
	oh64 := ImageOptionalHeader64{}

	optHeaderOffset := ntHeaderOffset + fileHeaderSize + 4
	magic, err := pe.ReadUint16(optHeaderOffset)
	if err != nil {
		return ErrTruncatedInput
	}

	switch magic {
	case ImageNtOptionalHeader64Magic:
		size := uint32(binary.Size(oh64))
		if err := pe.structUnpack(&oh64, optHeaderOffset, size); err != nil {
			return ErrTruncatedInput
		}
		pe.Is64 = true
		pe.NtHeader.OptionalHeader = oh64
	case ImageNtOptionalHeader32Magic:
		size := uint32(binary.Size(oh32))
		if err := pe.structUnpack(&oh32, optHeaderOffset, size); err != nil {
			return ErrTruncatedInput
		}
		pe.Is32 = true
		pe.NtHeader.OptionalHeader = oh32
	default:
		return ErrUnsupportedOptionalMagic
	}

	pe.HasNTHdr = true
	return nil
}

// dataDirectory returns the i'th data directory slot, regardless of PE32 vs
// PE32+.
func (pe *File) dataDirectory(i ImageDirectoryEntry) DataDirectory {
	if pe.Is64 {
		return pe.NtHeader.OptionalHeader.(ImageOptionalHeader64).DataDirectory[i]
	}
	return pe.NtHeader.OptionalHeader.(ImageOptionalHeader32).DataDirectory[i]
}

// setDataDirectory overwrites the i'th data directory slot in place.
func (pe *File) setDataDirectory(i ImageDirectoryEntry, d DataDirectory) {
	if pe.Is64 {
		oh := pe.NtHeader.OptionalHeader.(ImageOptionalHeader64)
		oh.DataDirectory[i] = d
		pe.NtHeader.OptionalHeader = oh
		return
	}
	oh := pe.NtHeader.OptionalHeader.(ImageOptionalHeader32)
	oh.DataDirectory[i] = d
	pe.NtHeader.OptionalHeader = oh
}

// writeOptionalHeader32 serializes a PE32 optional header, including its 16
// data directory slots, into buf.
func writeOptionalHeader32(buf []byte, oh ImageOptionalHeader32) {
	binary.LittleEndian.PutUint16(buf[0:2], oh.Magic)
	buf[2] = oh.MajorLinkerVersion
	buf[3] = oh.MinorLinkerVersion
	binary.LittleEndian.PutUint32(buf[4:8], oh.SizeOfCode)
	binary.LittleEndian.PutUint32(buf[8:12], oh.SizeOfInitializedData)
	binary.LittleEndian.PutUint32(buf[12:16], oh.SizeOfUninitializedData)
	binary.LittleEndian.PutUint32(buf[16:20], oh.AddressOfEntryPoint)
	binary.LittleEndian.PutUint32(buf[20:24], oh.BaseOfCode)
	binary.LittleEndian.PutUint32(buf[24:28], oh.BaseOfData)
	binary.LittleEndian.PutUint32(buf[28:32], oh.ImageBase)
	binary.LittleEndian.PutUint32(buf[32:36], oh.SectionAlignment)
	binary.LittleEndian.PutUint32(buf[36:40], oh.FileAlignment)
	binary.LittleEndian.PutUint16(buf[40:42], oh.MajorOperatingSystemVersion)
	binary.LittleEndian.PutUint16(buf[42:44], oh.MinorOperatingSystemVersion)
	binary.LittleEndian.PutUint16(buf[44:46], oh.MajorImageVersion)
	binary.LittleEndian.PutUint16(buf[46:48], oh.MinorImageVersion)
	binary.LittleEndian.PutUint16(buf[48:50], oh.MajorSubsystemVersion)
	binary.LittleEndian.PutUint16(buf[50:52], oh.MinorSubsystemVersion)
	binary.LittleEndian.PutUint32(buf[52:56], oh.Win32VersionValue)
	binary.LittleEndian.PutUint32(buf[56:60], oh.SizeOfImage)
	binary.LittleEndian.PutUint32(buf[60:64], oh.SizeOfHeaders)
	binary.LittleEndian.PutUint32(buf[64:68], oh.CheckSum)
	binary.LittleEndian.PutUint16(buf[68:70], uint16(oh.Subsystem))
	binary.LittleEndian.PutUint16(buf[70:72], uint16(oh.DllCharacteristics))
	binary.LittleEndian.PutUint32(buf[72:76], oh.SizeOfStackReserve)
	binary.LittleEndian.PutUint32(buf[76:80], oh.SizeOfStackCommit)
	binary.LittleEndian.PutUint32(buf[80:84], oh.SizeOfHeapReserve)
	binary.LittleEndian.PutUint32(buf[84:88], oh.SizeOfHeapCommit)
	binary.LittleEndian.PutUint32(buf[88:92], oh.LoaderFlags)
	binary.LittleEndian.PutUint32(buf[92:96], oh.NumberOfRvaAndSizes)

	off := 96
	for _, d := range oh.DataDirectory {
		binary.LittleEndian.PutUint32(buf[off:off+4], d.VirtualAddress)
		binary.LittleEndian.PutUint32(buf[off+4:off+8], d.Size)
		off += 8
	}
}

// writeOptionalHeader64 serializes a PE32+ optional header, including its 16
// data directory slots, into buf.
func writeOptionalHeader64(buf []byte, oh ImageOptionalHeader64) {
	binary.LittleEndian.PutUint16(buf[0:2], oh.Magic)
	buf[2] = oh.MajorLinkerVersion
	buf[3] = oh.MinorLinkerVersion
	binary.LittleEndian.PutUint32(buf[4:8], oh.SizeOfCode)
	binary.LittleEndian.PutUint32(buf[8:12], oh.SizeOfInitializedData)
	binary.LittleEndian.PutUint32(buf[12:16], oh.SizeOfUninitializedData)
	binary.LittleEndian.PutUint32(buf[16:20], oh.AddressOfEntryPoint)
	binary.LittleEndian.PutUint32(buf[20:24], oh.BaseOfCode)
	binary.LittleEndian.PutUint64(buf[24:32], oh.ImageBase)
	binary.LittleEndian.PutUint32(buf[32:36], oh.SectionAlignment)
	binary.LittleEndian.PutUint32(buf[36:40], oh.FileAlignment)
	binary.LittleEndian.PutUint16(buf[40:42], oh.MajorOperatingSystemVersion)
	binary.LittleEndian.PutUint16(buf[42:44], oh.MinorOperatingSystemVersion)
	binary.LittleEndian.PutUint16(buf[44:46], oh.MajorImageVersion)
	binary.LittleEndian.PutUint16(buf[46:48], oh.MinorImageVersion)
	binary.LittleEndian.PutUint16(buf[48:50], oh.MajorSubsystemVersion)
	binary.LittleEndian.PutUint16(buf[50:52], oh.MinorSubsystemVersion)
	binary.LittleEndian.PutUint32(buf[52:56], oh.Win32VersionValue)
	binary.LittleEndian.PutUint32(buf[56:60], oh.SizeOfImage)
	binary.LittleEndian.PutUint32(buf[60:64], oh.SizeOfHeaders)
	binary.LittleEndian.PutUint32(buf[64:68], oh.CheckSum)
	binary.LittleEndian.PutUint16(buf[68:70], uint16(oh.Subsystem))
	binary.LittleEndian.PutUint16(buf[70:72], uint16(oh.DllCharacteristics))
	binary.LittleEndian.PutUint64(buf[72:80], oh.SizeOfStackReserve)
	binary.LittleEndian.PutUint64(buf[80:88], oh.SizeOfStackCommit)
	binary.LittleEndian.PutUint64(buf[88:96], oh.SizeOfHeapReserve)
	binary.LittleEndian.PutUint64(buf[96:104], oh.SizeOfHeapCommit)
	binary.LittleEndian.PutUint32(buf[104:108], oh.LoaderFlags)
	binary.LittleEndian.PutUint32(buf[108:112], oh.NumberOfRvaAndSizes)

	off := 112
	for _, d := range oh.DataDirectory {
		binary.LittleEndian.PutUint32(buf[off:off+4], d.VirtualAddress)
		binary.LittleEndian.PutUint32(buf[off+4:off+8], d.Size)
		off += 8
	}
}

// String returns a human-readable machine type name.
func (t ImageFileHeaderMachineType) String() string {
	machineType := map[uint16]string{
		ImageFileMachineUnknown: "Unknown",
		ImageFileMachineAMD64:   "x64",
		ImageFileMachineARM:     "ARM little endian",
		ImageFileMachineARM64:   "ARM64 little endian",
		ImageFileMachineARMNT:   "ARM Thumb-2 little endian",
		ImageFileMachineI386:    "Intel 386 or later / compatible processors",
		ImageFileMachineIA64:    "Intel Itanium processor family",
	}
	if val, ok := machineType[uint16(t)]; ok {
		return val
	}
	return "?"
}

// String returns the set bits of Characteristics as flag names.
func (t ImageFileHeaderCharacteristicsType) String() []string {
	var values []string
	flags := map[ImageFileHeaderCharacteristicsType]string{
		ImageFileRelocsStripped:    "RelocsStripped",
		ImageFileExecutableImage:   "ExecutableImage",
		ImageFileLineNumsStripped:  "LineNumsStripped",
		ImageFileLargeAddressAware: "LargeAddressAware",
		ImageFile32BitMachine:      "32BitMachine",
		ImageFileDebugStripped:     "DebugStripped",
		ImageFileSystem:            "FileSystem",
		ImageFileDLL:               "DLL",
	}
	for k, s := range flags {
		if uint16(k)&uint16(t) != 0 {
			values = append(values, s)
		}
	}
	return values
}

// String returns a human-readable subsystem name.
func (s ImageOptionalHeaderSubsystemType) String() string {
	names := map[ImageOptionalHeaderSubsystemType]string{
		ImageSubsystemUnknown:    "Unknown",
		ImageSubsystemNative:     "Native",
		ImageSubsystemWindowsGUI: "Windows GUI",
		ImageSubsystemWindowsCUI: "Windows CUI",
	}
	if val, ok := names[s]; ok {
		return val
	}
	return "?"
}

// PrettyOptionalHeaderMagic returns "PE32" or "PE64" for the parsed optional
// header.
func (pe *File) PrettyOptionalHeaderMagic() string {
	if pe.Is64 {
		return "PE64"
	}
	return "PE32"
}
