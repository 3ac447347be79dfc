// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package peedit

import "testing"

func TestBuildAndParseVersionInfoRoundTrip(t *testing.T) {
	v := VersionInfo{
		Fixed: VsFixedFileInfo{
			FileVersionMS: 0x00010002,
			FileVersionLS: 0x00030004,
		},
		StringTables: map[string]map[string]string{
			"040904B0": {
				"CompanyName": "Acme Corp",
				"ProductName": "Widget",
				"FileVersion": "1.2.3.4",
			},
		},
		Translations: []struct{ Lang, CodePage uint16 }{
			{Lang: 0x0409, CodePage: 0x04B0},
		},
	}

	data := buildVersionInfo(v)
	got, err := parseVersionInfo(data)
	if err != nil {
		t.Fatalf("parseVersionInfo: %v", err)
	}
	if got.Fixed.Signature != VsFileInfoSignature {
		t.Errorf("Signature = %#x, want %#x", got.Fixed.Signature, VsFileInfoSignature)
	}
	if got.Fixed.FileVersionMS != v.Fixed.FileVersionMS || got.Fixed.FileVersionLS != v.Fixed.FileVersionLS {
		t.Errorf("fixed file version mismatch: got %+v", got.Fixed)
	}
	strs, ok := got.StringTables["040904B0"]
	if !ok {
		t.Fatal("missing string table for 040904B0")
	}
	for k, want := range v.StringTables["040904B0"] {
		if strs[k] != want {
			t.Errorf("string %q = %q, want %q", k, strs[k], want)
		}
	}
	if len(got.Translations) != 1 || got.Translations[0].Lang != 0x0409 || got.Translations[0].CodePage != 0x04B0 {
		t.Errorf("translations = %+v", got.Translations)
	}
}

func TestSetAndGetVersionInfoThroughResourceTree(t *testing.T) {
	data := buildMinimalPE(t, nil)
	f := mustParse(t, data)

	f.SetVersionInfo(VersionInfo{
		StringTables: map[string]map[string]string{
			"040904B0": {"ProductName": "Example"},
		},
	})

	rebuilt, err := f.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	f2 := mustParse(t, rebuilt)
	got, err := f2.GetVersionInfo()
	if err != nil {
		t.Fatalf("GetVersionInfo: %v", err)
	}
	if got.StringTables["040904B0"]["ProductName"] != "Example" {
		t.Errorf("ProductName = %q", got.StringTables["040904B0"]["ProductName"])
	}
}

func TestGetVersionInfoMissingReturnsError(t *testing.T) {
	data := buildMinimalPE(t, nil)
	f := mustParse(t, data)
	if _, err := f.GetVersionInfo(); err == nil {
		t.Fatal("expected an error when no version resource is installed")
	}
}

func TestBuildStringAlignsTo4Bytes(t *testing.T) {
	out := buildString("K", "V")
	if len(out)%4 != 0 {
		t.Errorf("buildString output length %d is not 4-byte aligned", len(out))
	}
}
