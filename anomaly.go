// Copyright 2021 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package peedit

import (
	"encoding/binary"
	"time"
)

// Anomalies reported by GetAnomalies. These never prevent the Windows loader
// from accepting the file; they are informational, surfaced the way the
// teacher's anomaly.go does for downstream malware-analysis consumers.
var (
	AnoPETimeStampNull   = "File Header timestamp set to 0"
	AnoPETimeStampFuture = "File Header timestamp set in the future"

	AnoNumberOfSections10Plus   = "Number of sections is 10+"
	AnoNumberOfSectionsNull     = "Number of sections is 0"
	AnoSizeOfOptionalHeaderNull = "Size of optional header is 0"

	AnoUncommonSizeOfOptionalHeader32 = "Size of optional header is larger than standard (PE32)"
	AnoUncommonSizeOfOptionalHeader64 = "Size of optional header is larger than standard (PE32+)"

	AnoAddressOfEntryPointNull      = "Address of entry point is 0"
	AnoAddressOfEPLessSizeOfHeaders = "Address of entry point is smaller than size of headers"

	AnoImageBaseNull = "Image base is 0"

	AnoInvalidSizeOfImage  = "SizeOfImage is not a multiple of SectionAlignment"
	AnoMajorSubsystemVersion = "MajorSubsystemVersion is outside the 3-6 boundary"
	AnonWin32VersionValue    = "Win32VersionValue is a reserved field, must be set to zero"
	AnoInvalidPEChecksum     = "Optional header checksum is invalid"
	AnoNumberOfRvaAndSizes   = "Optional header NumberOfRvaAndSizes != 16"
)

// GetAnomalies inspects the already-parsed headers for structural oddities
// that a real linker would never produce. It appends to pe.Anomalies rather
// than returning them, matching how Parse's callers inspect pe.Anomalies
// after the fact.
func (pe *File) GetAnomalies() error {
	if pe.NtHeader.FileHeader.NumberOfSections >= 10 {
		pe.addAnomaly(AnoNumberOfSections10Plus)
	}
	if pe.NtHeader.FileHeader.NumberOfSections == 0 {
		pe.addAnomaly(AnoNumberOfSectionsNull)
	}

	if pe.NtHeader.FileHeader.TimeDateStamp == 0 {
		pe.addAnomaly(AnoPETimeStampNull)
	}
	future := uint32(time.Now().Add(24 * time.Hour).Unix())
	if pe.NtHeader.FileHeader.TimeDateStamp > future {
		pe.addAnomaly(AnoPETimeStampFuture)
	}

	if pe.NtHeader.FileHeader.SizeOfOptionalHeader == 0 {
		pe.addAnomaly(AnoSizeOfOptionalHeaderNull)
	}

	oh32 := ImageOptionalHeader32{}
	oh64 := ImageOptionalHeader64{}
	if pe.Is32 && pe.NtHeader.FileHeader.SizeOfOptionalHeader > uint16(binary.Size(oh32)) {
		pe.addAnomaly(AnoUncommonSizeOfOptionalHeader32)
	}
	if pe.Is64 && pe.NtHeader.FileHeader.SizeOfOptionalHeader > uint16(binary.Size(oh64)) {
		pe.addAnomaly(AnoUncommonSizeOfOptionalHeader64)
	}

	var oh ImageOptionalHeader32
	var imageBaseNull bool
	if pe.Is64 {
		oh64 = pe.NtHeader.OptionalHeader.(ImageOptionalHeader64)
		oh = ImageOptionalHeader32{
			AddressOfEntryPoint: oh64.AddressOfEntryPoint,
			SizeOfHeaders:       oh64.SizeOfHeaders,
			SectionAlignment:    oh64.SectionAlignment,
			SizeOfImage:         oh64.SizeOfImage,
			MajorSubsystemVersion: oh64.MajorSubsystemVersion,
			Win32VersionValue:   oh64.Win32VersionValue,
			CheckSum:            oh64.CheckSum,
			NumberOfRvaAndSizes: oh64.NumberOfRvaAndSizes,
		}
		imageBaseNull = oh64.ImageBase == 0
	} else {
		oh32 = pe.NtHeader.OptionalHeader.(ImageOptionalHeader32)
		oh = oh32
		imageBaseNull = oh32.ImageBase == 0
	}

	if oh.AddressOfEntryPoint != 0 && oh.AddressOfEntryPoint < oh.SizeOfHeaders {
		pe.addAnomaly(AnoAddressOfEPLessSizeOfHeaders)
	}
	if oh.AddressOfEntryPoint == 0 {
		pe.addAnomaly(AnoAddressOfEntryPointNull)
	}
	if imageBaseNull {
		pe.addAnomaly(AnoImageBaseNull)
	}
	if oh.SectionAlignment != 0 && oh.SizeOfImage%oh.SectionAlignment != 0 {
		pe.addAnomaly(AnoInvalidSizeOfImage)
	}
	if oh.MajorSubsystemVersion < 3 || oh.MajorSubsystemVersion > 6 {
		pe.addAnomaly(AnoMajorSubsystemVersion)
	}
	if oh.Win32VersionValue != 0 {
		pe.addAnomaly(AnonWin32VersionValue)
	}
	if oh.NumberOfRvaAndSizes != 16 {
		pe.addAnomaly(AnoNumberOfRvaAndSizes)
	}
	if oh.CheckSum != 0 {
		got := computeChecksum(pe.data, pe.checksumFieldOffset())
		if got != oh.CheckSum {
			pe.addAnomaly(AnoInvalidPEChecksum)
		}
	}

	return nil
}

// addAnomaly appends anomaly unless it is already present.
func (pe *File) addAnomaly(anomaly string) {
	for _, a := range pe.Anomalies {
		if a == anomaly {
			return
		}
	}
	pe.Anomalies = append(pe.Anomalies, anomaly)
}
