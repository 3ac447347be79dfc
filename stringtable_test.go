// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package peedit

import "testing"

func TestStringTableSetGetDelete(t *testing.T) {
	data := buildMinimalPE(t, nil)
	f := mustParse(t, data)

	if err := f.StringTableSet(5, LangNeutral, "hello"); err != nil {
		t.Fatalf("StringTableSet: %v", err)
	}
	got, ok := f.StringTableGet(5, LangNeutral)
	if !ok || got != "hello" {
		t.Fatalf("got %q, ok=%v", got, ok)
	}

	if !f.StringTableDelete(5, LangNeutral) {
		t.Fatal("StringTableDelete reported not-found for an id just set")
	}
	if _, ok := f.StringTableGet(5, LangNeutral); ok {
		t.Error("string should be gone after delete")
	}
}

func TestStringTableSharesBlockAcrossIDs(t *testing.T) {
	data := buildMinimalPE(t, nil)
	f := mustParse(t, data)

	if err := f.StringTableSet(0, LangNeutral, "zero"); err != nil {
		t.Fatalf("StringTableSet(0): %v", err)
	}
	if err := f.StringTableSet(15, LangNeutral, "fifteen"); err != nil {
		t.Fatalf("StringTableSet(15): %v", err)
	}

	if _, ok := f.GetResource(ResourceKey{Type: RTString, ID: 1, Lang: LangNeutral}); !ok {
		t.Fatal("ids 0 and 15 should share RT_STRING block id 1")
	}

	got0, _ := f.StringTableGet(0, LangNeutral)
	got15, _ := f.StringTableGet(15, LangNeutral)
	if got0 != "zero" || got15 != "fifteen" {
		t.Fatalf("got %q / %q", got0, got15)
	}

	if !f.StringTableDelete(0, LangNeutral) {
		t.Fatal("delete id 0 failed")
	}
	// id 15 is still set, so the block must survive.
	if _, ok := f.GetResource(ResourceKey{Type: RTString, ID: 1, Lang: LangNeutral}); !ok {
		t.Fatal("block should survive while a sibling slot is still populated")
	}
	if !f.StringTableDelete(15, LangNeutral) {
		t.Fatal("delete id 15 failed")
	}
	if _, ok := f.GetResource(ResourceKey{Type: RTString, ID: 1, Lang: LangNeutral}); ok {
		t.Error("block should be removed once every slot is empty")
	}
}

func TestStringTableSurvivesRebuild(t *testing.T) {
	data := buildMinimalPE(t, nil)
	f := mustParse(t, data)
	if err := f.StringTableSet(100, LangNeutral, "persisted"); err != nil {
		t.Fatalf("StringTableSet: %v", err)
	}

	rebuilt, err := f.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	f2 := mustParse(t, rebuilt)
	got, ok := f2.StringTableGet(100, LangNeutral)
	if !ok || got != "persisted" {
		t.Fatalf("got %q, ok=%v", got, ok)
	}
}
