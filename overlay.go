// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package peedit

import "errors"

// ErrNoOverlayFound is returned by Overlay when the image carries no trailing
// data past the last section.
var ErrNoOverlayFound = errors.New("peedit: pe does not have overlay data")

// Overlay returns the bytes appended past the end of the last section, the
// data preserved verbatim by Bytes() (spec.md §4.5 step 7 "Overlay
// preservation"). Unlike the teacher's Overlay/NewOverlayReader, this works
// directly off the in-memory buffer so it also covers the NewBytes
// construction path, which has no backing *os.File.
func (pe *File) Overlay() ([]byte, error) {
	if !pe.HasOverlay {
		return nil, ErrNoOverlayFound
	}
	return pe.data[pe.OverlayOffset:], nil
}

// OverlayLength returns the number of trailing overlay bytes, 0 if none.
func (pe *File) OverlayLength() int64 {
	if !pe.HasOverlay {
		return 0
	}
	return int64(pe.size) - pe.OverlayOffset
}

// SetOverlay replaces the overlay content, appending a fresh overlay region
// if the image previously had none.
func (pe *File) SetOverlay(data []byte) {
	pe.dirty = true
	if !pe.HasOverlay {
		pe.OverlayOffset = int64(pe.size)
	}
	newData := make([]byte, pe.OverlayOffset)
	copy(newData, pe.data[:pe.OverlayOffset])
	newData = append(newData, data...)
	pe.data = newData
	pe.size = uint32(len(newData))
	pe.HasOverlay = len(data) > 0
}
