// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package peedit

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"testing"
)

// buildTestICO assembles a minimal .ico container with one image per payload: the payloads
// don't need to be valid bitmap data, only the container framing matters to
// parseICOContainer/installIcoEntries.
func buildTestICO(t *testing.T, payloads [][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint16(0))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(len(payloads)))

	headerSize := 6 + 16*len(payloads)
	offset := headerSize
	for _, p := range payloads {
		buf.WriteByte(32)                                      // width
		buf.WriteByte(32)                                      // height
		buf.WriteByte(0)                                       // color count
		buf.WriteByte(0)                                       // reserved
		binary.Write(&buf, binary.LittleEndian, uint16(1))     // planes
		binary.Write(&buf, binary.LittleEndian, uint16(32))    // bit count
		binary.Write(&buf, binary.LittleEndian, uint32(len(p)))
		binary.Write(&buf, binary.LittleEndian, uint32(offset))
		offset += len(p)
	}
	for _, p := range payloads {
		buf.Write(p)
	}
	return buf.Bytes()
}

func TestSetMainIconInstallsAndReplacesGroup(t *testing.T) {
	data := buildMinimalPE(t, nil)
	f := mustParse(t, data)

	ico := buildTestICO(t, [][]byte{[]byte("frame-32"), []byte("frame-16")})
	if err := f.SetMainIcon(ico); err != nil {
		t.Fatalf("SetMainIcon: %v", err)
	}

	ids, err := f.GetMainIconIDs()
	if err != nil {
		t.Fatalf("GetMainIconIDs: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("got %d icon ids, want 2", len(ids))
	}
	if ids[0] != 1 || ids[1] != 2 {
		t.Errorf("ids = %v, want [1 2]", ids)
	}

	// Installing a second icon should allocate fresh ids and remove the first
	// icon's now-stale RT_ICON entries.
	ico2 := buildTestICO(t, [][]byte{[]byte("new-frame")})
	if err := f.SetMainIcon(ico2); err != nil {
		t.Fatalf("second SetMainIcon: %v", err)
	}
	ids2, err := f.GetMainIconIDs()
	if err != nil {
		t.Fatalf("GetMainIconIDs: %v", err)
	}
	if len(ids2) != 1 || ids2[0] != 3 {
		t.Fatalf("got %v, want [3]", ids2)
	}
	if _, ok := f.GetResource(ResourceKey{Type: RTIcon, ID: 1, Lang: LangNeutral}); ok {
		t.Error("stale RT_ICON id=1 should have been removed")
	}
}

func TestSetMainIconRejectsMalformedContainer(t *testing.T) {
	data := buildMinimalPE(t, nil)
	f := mustParse(t, data)
	if err := f.SetMainIcon([]byte{1, 2, 3}); err != ErrInvalidIcoContainer {
		t.Fatalf("got %v, want ErrInvalidIcoContainer", err)
	}
}

func TestIconSurvivesRebuild(t *testing.T) {
	data := buildMinimalPE(t, nil)
	f := mustParse(t, data)
	ico := buildTestICO(t, [][]byte{[]byte("frame")})
	if err := f.SetMainIcon(ico); err != nil {
		t.Fatalf("SetMainIcon: %v", err)
	}

	rebuilt, err := f.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	f2 := mustParse(t, rebuilt)
	ids, err := f2.GetMainIconIDs()
	if err != nil {
		t.Fatalf("GetMainIconIDs: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("got %d ids, want 1", len(ids))
	}
	payload, ok := f2.GetResource(ResourceKey{Type: RTIcon, ID: ids[0], Lang: LangNeutral})
	if !ok || string(payload) != "frame" {
		t.Fatalf("got %q, ok=%v", payload, ok)
	}
}

// stubImageDecoder returns a fixed-size solid-color frame for every
// requested size, avoiding a dependency on resize/gobmp's actual pixel
// output for this test's purposes.
type stubImageDecoder struct{}

func (stubImageDecoder) Resample(img image.Image, sizes []int) ([][]byte, error) {
	frames := make([][]byte, len(sizes))
	for i := range sizes {
		frames[i] = []byte{byte(sizes[i])}
	}
	return frames, nil
}

func TestSetMainIconFromImageUsesConfiguredDecoder(t *testing.T) {
	data := buildMinimalPE(t, nil)
	decoder := ImageDecoder(stubImageDecoder{})
	f, err := NewBytes(data, &Options{ImageDecoder: decoder})
	if err != nil {
		t.Fatalf("NewBytes: %v", err)
	}
	if err := f.Parse(); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}

	if err := f.SetMainIconFromImage(buf.Bytes()); err != nil {
		t.Fatalf("SetMainIconFromImage: %v", err)
	}
	ids, err := f.GetMainIconIDs()
	if err != nil {
		t.Fatalf("GetMainIconIDs: %v", err)
	}
	if len(ids) != len(standardIconSizes) {
		t.Fatalf("got %d icon frames, want %d", len(ids), len(standardIconSizes))
	}
}

func TestSetMainIconFromImageRejectsNonImageInput(t *testing.T) {
	data := buildMinimalPE(t, nil)
	f := mustParse(t, data)
	if err := f.SetMainIconFromImage([]byte("not an image")); err != ErrImageDecodeFailed {
		t.Fatalf("got %v, want ErrImageDecodeFailed", err)
	}
}
