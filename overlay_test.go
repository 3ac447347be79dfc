// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package peedit

import "testing"

func TestNoOverlayByDefault(t *testing.T) {
	data := buildMinimalPE(t, []testSection{
		{name: ".text", virtualAddress: 0x1000, data: []byte{0x90}},
	})
	f := mustParse(t, data)
	if f.HasOverlay {
		t.Fatal("freshly built image should have no overlay")
	}
	if _, err := f.Overlay(); err != ErrNoOverlayFound {
		t.Fatalf("got %v, want ErrNoOverlayFound", err)
	}
	if f.OverlayLength() != 0 {
		t.Errorf("OverlayLength = %d, want 0", f.OverlayLength())
	}
}

func TestSetOverlayRoundTrip(t *testing.T) {
	data := buildMinimalPE(t, []testSection{
		{name: ".text", virtualAddress: 0x1000, data: []byte{0x90}},
	})
	f := mustParse(t, data)

	trailer := []byte("trailing-signature-blob")
	f.SetOverlay(trailer)

	if !f.HasOverlay {
		t.Fatal("SetOverlay should set HasOverlay")
	}
	got, err := f.Overlay()
	if err != nil {
		t.Fatalf("Overlay: %v", err)
	}
	if string(got) != string(trailer) {
		t.Fatalf("got %q, want %q", got, trailer)
	}
	if f.OverlayLength() != int64(len(trailer)) {
		t.Errorf("OverlayLength = %d, want %d", f.OverlayLength(), len(trailer))
	}
}

func TestOverlaySurvivesRebuild(t *testing.T) {
	data := buildMinimalPE(t, []testSection{
		{name: ".text", virtualAddress: 0x1000, data: []byte{0x90}},
	})
	f := mustParse(t, data)

	trailer := []byte("signature-appended-by-installer")
	f.SetOverlay(trailer)

	rebuilt, err := f.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	f2 := mustParse(t, rebuilt)
	got, err := f2.Overlay()
	if err != nil {
		t.Fatalf("Overlay: %v", err)
	}
	if string(got) != string(trailer) {
		t.Fatalf("got %q, want %q", got, trailer)
	}
}

func TestSetOverlayClearsWithEmptyData(t *testing.T) {
	data := buildMinimalPE(t, []testSection{
		{name: ".text", virtualAddress: 0x1000, data: []byte{0x90}},
	})
	f := mustParse(t, data)
	f.SetOverlay([]byte("temp"))
	f.SetOverlay(nil)
	if f.HasOverlay {
		t.Error("SetOverlay(nil) should clear HasOverlay")
	}
}
