// Copyright 2021 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package peedit

import "testing"

func parsedHeader(t *testing.T, data []byte) *File {
	t.Helper()
	f, err := NewBytes(data, &Options{})
	if err != nil {
		t.Fatalf("NewBytes: %v", err)
	}
	if err := f.ParseDOSHeader(); err != nil {
		t.Fatalf("ParseDOSHeader: %v", err)
	}
	return f
}

func TestParseNTHeaderPE32Plus(t *testing.T) {
	data := buildMinimalPE(t, nil)
	f := parsedHeader(t, data)
	if err := f.ParseNTHeader(); err != nil {
		t.Fatalf("ParseNTHeader: %v", err)
	}
	if !f.Is64 || f.Is32 {
		t.Fatalf("Is64/Is32 = %v/%v, want true/false", f.Is64, f.Is32)
	}
	if f.NtHeader.Signature != ImageNTSignature {
		t.Errorf("bad signature %#x", f.NtHeader.Signature)
	}
}

func TestParseNTHeaderBadSignature(t *testing.T) {
	data := buildMinimalPE(t, nil)
	data[0x40] = 0xFF
	f := parsedHeader(t, data)
	if err := f.ParseNTHeader(); err != ErrInvalidPeSignature {
		t.Fatalf("got %v, want ErrInvalidPeSignature", err)
	}
}

func TestParseNTHeaderTooManySections(t *testing.T) {
	data := buildMinimalPE(t, nil)
	fhOff := 0x40 + 4
	data[fhOff+2] = 0xFF
	data[fhOff+3] = 0xFF // NumberOfSections = 0xFFFF
	f := parsedHeader(t, data)
	if err := f.ParseNTHeader(); err != ErrTooManySections {
		t.Fatalf("got %v, want ErrTooManySections", err)
	}
}

func TestDataDirectoryAccessors(t *testing.T) {
	data := buildMinimalPE(t, nil)
	f := mustParse(t, data)
	f.setDataDirectory(ImageDirectoryEntryResource, DataDirectory{VirtualAddress: 0x2000, Size: 0x40})
	dd := f.dataDirectory(ImageDirectoryEntryResource)
	if dd.VirtualAddress != 0x2000 || dd.Size != 0x40 {
		t.Fatalf("got %+v", dd)
	}
}
