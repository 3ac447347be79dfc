// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package peedit

import "testing"

func hasAnomaly(anomalies []string, want string) bool {
	for _, a := range anomalies {
		if a == want {
			return true
		}
	}
	return false
}

func TestGetAnomaliesFlagsZeroedFields(t *testing.T) {
	data := buildMinimalPE(t, nil)
	f := mustParse(t, data)
	if err := f.GetAnomalies(); err != nil {
		t.Fatalf("GetAnomalies: %v", err)
	}

	for _, want := range []string{
		AnoNumberOfSectionsNull,
		AnoPETimeStampNull,
		AnoAddressOfEntryPointNull,
		AnoImageBaseNull,
		AnoMajorSubsystemVersion,
	} {
		if !hasAnomaly(f.Anomalies, want) {
			t.Errorf("missing expected anomaly %q, got %v", want, f.Anomalies)
		}
	}
}

func TestGetAnomaliesDoesNotFlagFewSections(t *testing.T) {
	var sections []testSection
	for i := 0; i < 3; i++ {
		sections = append(sections, testSection{
			name:           ".s",
			virtualAddress: uint32(0x1000 * (i + 1)),
			data:           []byte{0x01},
		})
	}
	data := buildMinimalPE(t, sections)
	f := mustParse(t, data)
	if err := f.GetAnomalies(); err != nil {
		t.Fatalf("GetAnomalies: %v", err)
	}
	if hasAnomaly(f.Anomalies, AnoNumberOfSections10Plus) {
		t.Error("3 sections should not trigger the 10+ anomaly")
	}
}

func TestAddAnomalyDeduplicates(t *testing.T) {
	data := buildMinimalPE(t, nil)
	f := mustParse(t, data)
	f.addAnomaly("custom")
	f.addAnomaly("custom")
	count := 0
	for _, a := range f.Anomalies {
		if a == "custom" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("addAnomaly should dedupe, got %d copies", count)
	}
}
