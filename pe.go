// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package peedit

// Image executable signatures. Parse accepts the MZ and ZM DOS signatures
// at the start of the file and only ImageNTSignature at e_lfanew; any other
// value there, including the other signatures listed here, fails with the
// same ErrInvalidPeSignature.
const (
	// ImageDOSSignature is the 'MZ' magic at the start of every DOS/PE file.
	ImageDOSSignature = 0x5A4D
	// ImageDOSZMSignature is the less common 'ZM' variant of the DOS magic.
	ImageDOSZMSignature = 0x4D5A

	ImageOS2Signature   = 0x454E // 'NE', 16-bit New Executable.
	ImageOS2LESignature = 0x454C // 'LE'/'LX', Linear Executable.
	ImageVXDSignature   = 0x584C // 'LX' VxD variant.
	ImageTESignature    = 0x5A56 // 'VZ' Terse Executable.

	// ImageNTSignature is the 'PE\0\0' signature at e_lfanew.
	ImageNTSignature = 0x00004550
)

// Optional header magic numbers, distinguishing PE32 from PE32+.
const (
	ImageNtOptionalHeader32Magic = 0x10b
	ImageNtOptionalHeader64Magic = 0x20b
	ImageROMOptionalHeaderMagic  = 0x10
)

// Image file machine types relevant to the subset of binaries this module
// targets (x86/x64/ARM, the common build-tooling targets).
const (
	ImageFileMachineUnknown = uint16(0x0)
	ImageFileMachineAMD64   = uint16(0x8664)
	ImageFileMachineARM     = uint16(0x1c0)
	ImageFileMachineARM64   = uint16(0xaa64)
	ImageFileMachineARMNT   = uint16(0x1c4)
	ImageFileMachineI386    = uint16(0x14c)
	ImageFileMachineIA64    = uint16(0x200)
)

// COFF file header characteristics flags.
const (
	ImageFileRelocsStripped    = 0x0001
	ImageFileExecutableImage   = 0x0002
	ImageFileLineNumsStripped  = 0x0004
	ImageFileLargeAddressAware = 0x0020
	ImageFile32BitMachine      = 0x0100
	ImageFileDebugStripped     = 0x0200
	ImageFileSystem            = 0x1000
	ImageFileDLL               = 0x2000
)

// Subsystem values of the optional header.
const (
	ImageSubsystemUnknown    = 0
	ImageSubsystemNative     = 1
	ImageSubsystemWindowsGUI = 2
	ImageSubsystemWindowsCUI = 3
)

// ImageDirectoryEntry indexes the optional header's data-directory table.
type ImageDirectoryEntry int

// Data-directory entries, in table order. Only Resource and a handful of
// others are ever inspected by this module, but the full table is kept so
// RVA-shift bookkeeping in the rebuilder (§4.5 step 5) can walk every slot.
const (
	ImageDirectoryEntryExport      ImageDirectoryEntry = iota // Export Table
	ImageDirectoryEntryImport                                 // Import Table
	ImageDirectoryEntryResource                                // Resource Table
	ImageDirectoryEntryException                               // Exception Table
	ImageDirectoryEntryCertificate                             // Certificate Directory (not RVA-relative, never shifted)
	ImageDirectoryEntryBaseReloc                               // Base Relocation Table
	ImageDirectoryEntryDebug                                   // Debug
	ImageDirectoryEntryArchitecture                            // Architecture Specific Data
	ImageDirectoryEntryGlobalPtr                               // Global pointer register value
	ImageDirectoryEntryTLS                                     // Thread Local Storage table
	ImageDirectoryEntryLoadConfig                              // Load configuration table
	ImageDirectoryEntryBoundImport                             // Bound import table
	ImageDirectoryEntryIAT                                     // Import Address Table
	ImageDirectoryEntryDelayImport                             // Delay Import Descriptor
	ImageDirectoryEntryCLR                                     // CLR Runtime Header
	ImageDirectoryEntryReserved                                // Must be zero
	ImageNumberOfDirectoryEntries                              // Tables count
)

func (entry ImageDirectoryEntry) String() string {
	names := map[ImageDirectoryEntry]string{
		ImageDirectoryEntryExport:       "Export",
		ImageDirectoryEntryImport:       "Import",
		ImageDirectoryEntryResource:     "Resource",
		ImageDirectoryEntryException:    "Exception",
		ImageDirectoryEntryCertificate:  "Security",
		ImageDirectoryEntryBaseReloc:    "Relocation",
		ImageDirectoryEntryDebug:        "Debug",
		ImageDirectoryEntryArchitecture: "Architecture",
		ImageDirectoryEntryGlobalPtr:    "GlobalPtr",
		ImageDirectoryEntryTLS:          "TLS",
		ImageDirectoryEntryLoadConfig:   "LoadConfig",
		ImageDirectoryEntryBoundImport:  "BoundImport",
		ImageDirectoryEntryIAT:          "IAT",
		ImageDirectoryEntryDelayImport:  "DelayImport",
		ImageDirectoryEntryCLR:          "CLR",
		ImageDirectoryEntryReserved:     "Reserved",
	}
	return names[entry]
}

// ResourceLang identifies a resource's primary language.
type ResourceLang uint16

// Common resource languages used by default when installing icons, manifests
// and version info (LangNeutral/LangEnglish), plus the rest of the table for
// callers that want to stamp a specific localized language.
const (
	LangNeutral    ResourceLang = 0x00
	LangInvariant  ResourceLang = 0x7f
	LangArabic     ResourceLang = 0x01
	LangChinese    ResourceLang = 0x04
	LangCzech      ResourceLang = 0x05
	LangDanish     ResourceLang = 0x06
	LangDutch      ResourceLang = 0x13
	LangEnglish    ResourceLang = 0x09
	LangFinnish    ResourceLang = 0x0b
	LangFrench     ResourceLang = 0x0c
	LangGerman     ResourceLang = 0x07
	LangGreek      ResourceLang = 0x08
	LangHebrew     ResourceLang = 0x0d
	LangHungarian  ResourceLang = 0x0e
	LangItalian    ResourceLang = 0x10
	LangJapanese   ResourceLang = 0x11
	LangKorean     ResourceLang = 0x12
	LangNorwegian  ResourceLang = 0x14
	LangPolish     ResourceLang = 0x15
	LangPortuguese ResourceLang = 0x16
	LangRomanian   ResourceLang = 0x18
	LangRussian    ResourceLang = 0x19
	LangSpanish    ResourceLang = 0x0a
	LangSwedish    ResourceLang = 0x1d
	LangThai       ResourceLang = 0x1e
	LangTurkish    ResourceLang = 0x1f
	LangUkrainian  ResourceLang = 0x22
)

// ResourceSubLang identifies a resource's regional sub-language. Only the
// defaults are named; callers may use any raw value.
type ResourceSubLang uint16

// Common sub-languages.
const (
	SubLangDefault    ResourceSubLang = 0x01
	SubLangNeutral    ResourceSubLang = 0x00
	SubLangEnglishUs  ResourceSubLang = 0x01
	SubLangEnglishUk  ResourceSubLang = 0x02
)

// FileInfo summarizes which structures a parsed File carries.
type FileInfo struct {
	Is32        bool
	Is64        bool
	HasDOSHdr   bool
	HasNTHdr    bool
	HasSections bool
	HasResource bool
	HasOverlay  bool
}
