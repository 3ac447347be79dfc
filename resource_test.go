// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package peedit

import "testing"

func TestInsertAndGetResourceRoundTrip(t *testing.T) {
	data := buildMinimalPE(t, nil)
	f := mustParse(t, data)

	f.InsertResource(ResourceKey{Type: RTRCdata, ID: 7, Lang: LangNeutral}, []byte("payload"))
	got, ok := f.GetResource(ResourceKey{Type: RTRCdata, ID: 7, Lang: LangNeutral})
	if !ok {
		t.Fatal("GetResource: not found")
	}
	if string(got) != "payload" {
		t.Errorf("got %q", got)
	}

	rebuilt, err := f.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	f2 := mustParse(t, rebuilt)
	got2, ok := f2.GetResource(ResourceKey{Type: RTRCdata, ID: 7, Lang: LangNeutral})
	if !ok || string(got2) != "payload" {
		t.Fatalf("round trip mismatch: got %q, ok=%v", got2, ok)
	}
}

func TestInsertResourceReplacesExisting(t *testing.T) {
	data := buildMinimalPE(t, nil)
	f := mustParse(t, data)

	key := ResourceKey{Type: RTRCdata, ID: 1, Lang: LangNeutral}
	f.InsertResource(key, []byte("first"))
	f.InsertResource(key, []byte("second"))

	got, ok := f.GetResource(key)
	if !ok || string(got) != "second" {
		t.Fatalf("got %q, ok=%v, want \"second\"", got, ok)
	}
	if len(f.Resources.Entries) != 1 {
		t.Fatalf("replacing an existing leaf should not create a second type entry, got %d", len(f.Resources.Entries))
	}
}

func TestRemoveResourcePrunesEmptyDirectories(t *testing.T) {
	data := buildMinimalPE(t, nil)
	f := mustParse(t, data)

	key := ResourceKey{Type: RTRCdata, ID: 1, Lang: LangNeutral}
	f.InsertResource(key, []byte("x"))
	if !f.RemoveResource(key) {
		t.Fatal("RemoveResource reported not-found for a key just inserted")
	}
	if len(f.Resources.Entries) != 0 {
		t.Errorf("removing the only leaf should prune the type directory, got %d entries", len(f.Resources.Entries))
	}
	if f.RemoveResource(key) {
		t.Error("RemoveResource should report false for an already-removed key")
	}
}

func TestSortDirectoryOrdersNamedBeforeID(t *testing.T) {
	dir := ResourceDirectory{
		Entries: []ResourceDirectoryEntry{
			{ID: 5},
			{Name: "zeta"},
			{ID: 1},
			{Name: "alpha"},
		},
	}
	sortDirectory(&dir)

	want := []string{"alpha", "zeta", "", ""}
	for i, e := range dir.Entries {
		if e.Name != want[i] {
			t.Fatalf("entry %d name = %q, want %q", i, e.Name, want[i])
		}
	}
	if dir.Entries[2].ID != 1 || dir.Entries[3].ID != 5 {
		t.Errorf("ID entries not sorted numerically: %+v", dir.Entries)
	}
	if dir.Struct.NumberOfNamedEntries != 2 || dir.Struct.NumberOfIDEntries != 2 {
		t.Errorf("counts = %d named, %d id", dir.Struct.NumberOfNamedEntries, dir.Struct.NumberOfIDEntries)
	}
}

func TestResourceDirectoryCloneIsIndependent(t *testing.T) {
	data := buildMinimalPE(t, nil)
	f := mustParse(t, data)
	f.InsertResource(ResourceKey{Type: RTRCdata, ID: 1, Lang: LangNeutral}, []byte("original"))

	clone := f.Resources.Clone()
	f.InsertResource(ResourceKey{Type: RTRCdata, ID: 1, Lang: LangNeutral}, []byte("mutated"))

	got, ok := f.GetResource(ResourceKey{Type: RTRCdata, ID: 1, Lang: LangNeutral})
	if !ok || string(got) != "mutated" {
		t.Fatalf("original should reflect the mutation, got %q", got)
	}

	cloneEntries := clone.Entries
	if len(cloneEntries) != 1 || cloneEntries[0].Directory.Entries[0].Directory.Entries[0].Data.Bytes == nil {
		t.Fatalf("clone structure unexpected: %+v", cloneEntries)
	}
	if string(cloneEntries[0].Directory.Entries[0].Directory.Entries[0].Data.Bytes) != "original" {
		t.Error("mutating the original tree after Clone must not affect the clone")
	}
}

func TestMultipleResourceTypesSurviveRebuild(t *testing.T) {
	data := buildMinimalPE(t, nil)
	f := mustParse(t, data)

	f.InsertResource(ResourceKey{Type: RTRCdata, ID: 1, Lang: LangNeutral}, []byte("a"))
	f.InsertResource(ResourceKey{Type: RTManifest, ID: 1, Lang: LangNeutral}, []byte("<xml/>"))
	f.InsertResource(ResourceKey{Type: RTVersion, ID: 1, Lang: LangNeutral}, []byte("v"))

	rebuilt, err := f.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	f2 := mustParse(t, rebuilt)
	if len(f2.Resources.Entries) != 3 {
		t.Fatalf("got %d resource types, want 3", len(f2.Resources.Entries))
	}
	for _, key := range []ResourceKey{
		{Type: RTRCdata, ID: 1, Lang: LangNeutral},
		{Type: RTManifest, ID: 1, Lang: LangNeutral},
		{Type: RTVersion, ID: 1, Lang: LangNeutral},
	} {
		if _, ok := f2.GetResource(key); !ok {
			t.Errorf("missing resource %+v after rebuild", key)
		}
	}
}
