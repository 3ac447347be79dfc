// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package peedit

import "testing"

func TestParseMinimalImage(t *testing.T) {
	data := buildMinimalPE(t, []testSection{
		{name: ".text", virtualAddress: 0x1000, data: []byte{0x90, 0x90}, characteristics: ImageScnCntCode | ImageScnMemExecute | ImageScnMemRead},
	})
	f := mustParse(t, data)
	if !f.Is64 {
		t.Fatal("expected PE32+")
	}
	if len(f.Sections) != 1 {
		t.Fatalf("got %d sections", len(f.Sections))
	}
	if f.HasOverlay {
		t.Errorf("should have no overlay")
	}
}

func TestParseTruncatedInput(t *testing.T) {
	f, err := NewBytes(make([]byte, 4), &Options{})
	if err != nil {
		t.Fatalf("NewBytes: %v", err)
	}
	if err := f.Parse(); err != ErrTruncatedInput {
		t.Fatalf("got %v, want ErrTruncatedInput", err)
	}
}

func TestFastOptionSkipsResourceDirectory(t *testing.T) {
	data := buildMinimalPE(t, nil)
	f := mustParse(t, data)
	f.InsertResource(ResourceKey{Type: RTManifest, ID: 1, Lang: LangNeutral}, []byte("<xml/>"))
	rebuilt, err := f.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}

	fast, err := NewBytes(rebuilt, &Options{Fast: true})
	if err != nil {
		t.Fatalf("NewBytes: %v", err)
	}
	if err := fast.Parse(); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(fast.Resources.Entries) != 0 {
		t.Errorf("Fast mode should skip resource parsing, got %d entries", len(fast.Resources.Entries))
	}

	full := mustParse(t, rebuilt)
	if len(full.Resources.Entries) != 1 {
		t.Fatalf("full parse should see the manifest resource, got %d entries", len(full.Resources.Entries))
	}
}

func TestComputeChecksumDefaultsTrue(t *testing.T) {
	opts := &Options{}
	if !opts.computeChecksum() {
		t.Error("computeChecksum should default true")
	}
	disabled := false
	opts.ComputeChecksum = &disabled
	if opts.computeChecksum() {
		t.Error("computeChecksum should honor explicit false")
	}
}

func TestNewBytesCopiesInput(t *testing.T) {
	data := buildMinimalPE(t, nil)
	orig := append([]byte(nil), data...)
	f, err := NewBytes(data, &Options{})
	if err != nil {
		t.Fatalf("NewBytes: %v", err)
	}
	data[0] = 0xFF
	if f.data[0] != orig[0] {
		t.Error("NewBytes must defensively copy its input")
	}
}

func TestCloseOnHeapBackedFileIsNoop(t *testing.T) {
	data := buildMinimalPE(t, nil)
	f, err := NewBytes(data, &Options{})
	if err != nil {
		t.Fatalf("NewBytes: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Errorf("Close on a NewBytes-backed File should be a no-op, got %v", err)
	}
}
