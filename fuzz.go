// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package peedit

import "testing"

// Fuzz is a github.com/dvyukov/go-fuzz-style harness: parse, then exercise
// the rebuild path so corruption introduced by a round-trip (not just a bad
// parse) is caught too.
func Fuzz(data []byte) int {
	f, err := NewBytes(data, &Options{Fast: false, SectionEntropy: true})
	if err != nil {
		return 0
	}
	if err := f.Parse(); err != nil {
		return 0
	}

	out, err := f.Bytes()
	if err != nil {
		return 0
	}

	f2, err := NewBytes(out, &Options{})
	if err != nil {
		return 0
	}
	if err := f2.Parse(); err != nil {
		return 0
	}

	return 1
}

// FuzzRoundTrip is the native go test fuzzing entry point for the same
// property: Bytes() of a successfully parsed image always re-parses clean
// (spec.md §8 "Round-trip").
func FuzzRoundTrip(f *testing.F) {
	f.Add([]byte{})
	f.Fuzz(func(t *testing.T, data []byte) {
		pf, err := NewBytes(data, &Options{})
		if err != nil {
			return
		}
		if err := pf.Parse(); err != nil {
			return
		}
		out, err := pf.Bytes()
		if err != nil {
			t.Fatalf("Bytes() failed on a successfully parsed image: %v", err)
		}
		rf, err := NewBytes(out, &Options{})
		if err != nil {
			t.Fatalf("re-parsing rebuilt image failed to construct: %v", err)
		}
		if err := rf.Parse(); err != nil {
			t.Fatalf("re-parsing rebuilt image failed: %v", err)
		}
	})
}
