// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package peedit

import "testing"

func TestParseSectionHeaderSingle(t *testing.T) {
	data := buildMinimalPE(t, []testSection{
		{name: ".text", virtualAddress: 0x1000, data: []byte("int main(){}"), characteristics: ImageScnCntCode | ImageScnMemExecute | ImageScnMemRead},
	})
	f := mustParse(t, data)
	if len(f.Sections) != 1 {
		t.Fatalf("got %d sections, want 1", len(f.Sections))
	}
	if f.Sections[0].String() != ".text" {
		t.Errorf("name = %q", f.Sections[0].String())
	}
}

func TestParseSectionHeaderOverlap(t *testing.T) {
	data := buildMinimalPE(t, []testSection{
		{name: ".a", virtualAddress: 0x1000, data: make([]byte, 0x1000)},
		{name: ".b", virtualAddress: 0x1800, data: make([]byte, 0x1000)}, // overlaps .a
	})
	f, err := NewBytes(data, &Options{})
	if err != nil {
		t.Fatalf("NewBytes: %v", err)
	}
	if err := f.ParseDOSHeader(); err != nil {
		t.Fatalf("ParseDOSHeader: %v", err)
	}
	if err := f.ParseNTHeader(); err != nil {
		t.Fatalf("ParseNTHeader: %v", err)
	}
	if err := f.ParseSectionHeader(); err != ErrSectionOverlap {
		t.Fatalf("got %v, want ErrSectionOverlap", err)
	}
}

func TestWriteSectionNameTruncates(t *testing.T) {
	name := writeSectionName(".verylongname")
	if string(name[:]) != ".verylon" {
		t.Errorf("got %q", name[:])
	}
}

func TestSectionDataBounds(t *testing.T) {
	payload := []byte("hello world payload")
	data := buildMinimalPE(t, []testSection{
		{name: ".rdata", virtualAddress: 0x1000, data: payload},
	})
	f := mustParse(t, data)
	got := f.Sections[0].Data(0, uint32(len(payload)), f)
	if string(got) != string(payload) {
		t.Errorf("got %q, want %q", got, payload)
	}
}
