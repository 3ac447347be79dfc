// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package peedit

import "testing"

func TestParseDOSHeaderValid(t *testing.T) {
	data := buildMinimalPE(t, nil)
	f, err := NewBytes(data, &Options{})
	if err != nil {
		t.Fatalf("NewBytes: %v", err)
	}
	if err := f.ParseDOSHeader(); err != nil {
		t.Fatalf("ParseDOSHeader: %v", err)
	}
	if f.DOSHeader.Magic != ImageDOSSignature {
		t.Errorf("Magic = %#x, want %#x", f.DOSHeader.Magic, ImageDOSSignature)
	}
	if f.DOSHeader.AddressOfNewEXEHeader != 0x40 {
		t.Errorf("AddressOfNewEXEHeader = %#x, want 0x40", f.DOSHeader.AddressOfNewEXEHeader)
	}
}

func TestParseDOSHeaderBadMagic(t *testing.T) {
	data := buildMinimalPE(t, nil)
	data[0] = 'X'
	f, _ := NewBytes(data, &Options{})
	if err := f.ParseDOSHeader(); err != ErrInvalidDosSignature {
		t.Fatalf("got %v, want ErrInvalidDosSignature", err)
	}
}

func TestParseDOSHeaderMisalignedLfanew(t *testing.T) {
	data := buildMinimalPE(t, nil)
	data[0x3C] = 0x41 // no longer 8-byte aligned
	f, _ := NewBytes(data, &Options{})
	if err := f.ParseDOSHeader(); err != ErrMalformedHeader {
		t.Fatalf("got %v, want ErrMalformedHeader", err)
	}
}

func TestParseDOSHeaderTruncated(t *testing.T) {
	f, err := NewBytes(make([]byte, 10), &Options{})
	if err != nil {
		t.Fatalf("NewBytes: %v", err)
	}
	if err := f.ParseDOSHeader(); err != ErrTruncatedInput {
		t.Fatalf("got %v, want ErrTruncatedInput", err)
	}
}
