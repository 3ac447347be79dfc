// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package peedit

import (
	"bytes"
	"encoding/binary"
	"image"
	_ "image/jpeg"
	"image/png"

	"github.com/gabriel-vasile/mimetype"
)

// icoEntry is one on-disk ICONDIRENTRY/GRPICONDIRENTRY: the common prefix is
// identical between the two formats, only the last field differs (a file
// offset in an ICO, a resource id once installed).
type icoEntry struct {
	Width      uint8
	Height     uint8
	ColorCount uint8
	Reserved   uint8
	Planes     uint16
	BitCount   uint16
	BytesInRes uint32
}

// icoContainer is a fully parsed .ico file: the header plus, for every
// directory entry, its metadata and raw image payload (spec.md §4.6, §6 "ICO
// container").
type icoContainer struct {
	entries  []icoEntry
	payloads [][]byte
}

// parseICOContainer validates and decodes an ICO container per spec.md §6:
// `{reserved:0, type:1, count:n}` followed by n ICONDIRENTRY rows, followed
// by n image payloads addressed by each row's offset/size.
func parseICOContainer(data []byte) (*icoContainer, error) {
	if len(data) < 6 {
		return nil, ErrInvalidIcoContainer
	}
	reserved := binary.LittleEndian.Uint16(data[0:2])
	typ := binary.LittleEndian.Uint16(data[2:4])
	count := binary.LittleEndian.Uint16(data[4:6])
	if reserved != 0 || typ != 1 {
		return nil, ErrInvalidIcoContainer
	}

	const dirEntrySize = 16
	if len(data) < 6+int(count)*dirEntrySize {
		return nil, ErrInvalidIcoContainer
	}

	ico := &icoContainer{}
	for i := 0; i < int(count); i++ {
		off := 6 + i*dirEntrySize
		row := data[off : off+dirEntrySize]
		entry := icoEntry{
			Width:      row[0],
			Height:     row[1],
			ColorCount: row[2],
			Reserved:   row[3],
			Planes:     binary.LittleEndian.Uint16(row[4:6]),
			BitCount:   binary.LittleEndian.Uint16(row[6:8]),
			BytesInRes: binary.LittleEndian.Uint32(row[8:12]),
		}
		imageOffset := binary.LittleEndian.Uint32(row[12:16])

		end := uint64(imageOffset) + uint64(entry.BytesInRes)
		if end > uint64(len(data)) {
			return nil, ErrInvalidIcoContainer
		}
		payload := make([]byte, entry.BytesInRes)
		copy(payload, data[imageOffset:end])

		ico.entries = append(ico.entries, entry)
		ico.payloads = append(ico.payloads, payload)
	}
	return ico, nil
}

// buildGroupIconDirectory serializes a GRPICONDIR + GRPICONDIRENTRY[] block
// referencing ids by RT_ICON resource id rather than by file offset (spec.md
// §4.6 step 4).
func buildGroupIconDirectory(entries []icoEntry, ids []uint16) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint16(0)) // reserved
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // type: icon
	binary.Write(&buf, binary.LittleEndian, uint16(len(entries)))

	for i, e := range entries {
		buf.WriteByte(e.Width)
		buf.WriteByte(e.Height)
		buf.WriteByte(e.ColorCount)
		buf.WriteByte(e.Reserved)
		binary.Write(&buf, binary.LittleEndian, e.Planes)
		binary.Write(&buf, binary.LittleEndian, e.BitCount)
		binary.Write(&buf, binary.LittleEndian, e.BytesInRes)
		binary.Write(&buf, binary.LittleEndian, ids[i])
	}
	return buf.Bytes()
}

// parseGroupIconDirectory is the inverse of buildGroupIconDirectory, used by
// GetMainIconIDs and removeStaleIcons to discover which RT_ICON ids a
// GRPICONDIR still references.
func parseGroupIconDirectory(data []byte) ([]icoEntry, []uint16, error) {
	if len(data) < 6 {
		return nil, nil, ErrInvalidIcoContainer
	}
	count := binary.LittleEndian.Uint16(data[4:6])
	const entrySize = 14
	if len(data) < 6+int(count)*entrySize {
		return nil, nil, ErrInvalidIcoContainer
	}

	var entries []icoEntry
	var ids []uint16
	for i := 0; i < int(count); i++ {
		off := 6 + i*entrySize
		row := data[off : off+entrySize]
		entries = append(entries, icoEntry{
			Width:      row[0],
			Height:     row[1],
			ColorCount: row[2],
			Reserved:   row[3],
			Planes:     binary.LittleEndian.Uint16(row[4:6]),
			BitCount:   binary.LittleEndian.Uint16(row[6:8]),
			BytesInRes: binary.LittleEndian.Uint32(row[8:12]),
		})
		ids = append(ids, binary.LittleEndian.Uint16(row[12:14]))
	}
	return entries, ids, nil
}

// nextIconID returns 1 + the highest currently installed RT_ICON id, or 1 if
// none exist (spec.md §4.6 step 2).
func (pe *File) nextIconID() uint32 {
	var max uint32
	for _, typeEntry := range pe.Resources.Entries {
		if !typeEntry.IsResourceDir || typeEntry.ID != uint32(RTIcon) {
			continue
		}
		for _, nameEntry := range typeEntry.Directory.Entries {
			if nameEntry.ID > max {
				max = nameEntry.ID
			}
		}
	}
	return max + 1
}

// installIcoEntries installs every payload under freshly allocated RT_ICON
// ids, installs a GRPICONDIR block referencing them as RT_GROUP_ICON id=1,
// then removes any RT_ICON entry that no RT_GROUP_ICON references any more
// (spec.md §4.6 steps 2-5).
func (pe *File) installIcoEntries(ico *icoContainer) {
	startID := pe.nextIconID()
	ids := make([]uint16, len(ico.entries))
	for i, payload := range ico.payloads {
		id := startID + uint32(i)
		ids[i] = uint16(id)
		pe.InsertResource(ResourceKey{Type: RTIcon, ID: id, Lang: LangNeutral}, payload)
	}

	group := buildGroupIconDirectory(ico.entries, ids)
	pe.InsertResource(ResourceKey{Type: RTGroupIcon, ID: 1, Lang: LangNeutral}, group)
	pe.removeStaleIcons(ids)
}

// removeStaleIcons deletes every currently installed RT_ICON entry whose id
// is neither in keep nor referenced by any installed RT_GROUP_ICON, i.e. the
// entries the previous RT_GROUP_ICON id=1 referenced and nothing references
// now (spec.md §4.6 step 5).
func (pe *File) removeStaleIcons(keep []uint16) {
	keepSet := make(map[uint32]bool, len(keep))
	for _, id := range keep {
		keepSet[uint32(id)] = true
	}
	for _, typeEntry := range pe.Resources.Entries {
		if !typeEntry.IsResourceDir || typeEntry.ID != uint32(RTGroupIcon) {
			continue
		}
		for _, nameEntry := range typeEntry.Directory.Entries {
			for _, langEntry := range nameEntry.Directory.Entries {
				_, ids, _ := parseGroupIconDirectory(langEntry.Data.Bytes)
				for _, id := range ids {
					keepSet[uint32(id)] = true
				}
			}
		}
	}

	var staleIDs []uint32
	for _, typeEntry := range pe.Resources.Entries {
		if !typeEntry.IsResourceDir || typeEntry.ID != uint32(RTIcon) {
			continue
		}
		for _, nameEntry := range typeEntry.Directory.Entries {
			if !keepSet[nameEntry.ID] {
				staleIDs = append(staleIDs, nameEntry.ID)
			}
		}
	}
	for _, id := range staleIDs {
		pe.RemoveResource(ResourceKey{Type: RTIcon, ID: id, Lang: LangNeutral})
	}
}

// SetMainIcon installs icoData, a raw .ico file, as the application's main
// icon (spec.md §4.6).
func (pe *File) SetMainIcon(icoData []byte) error {
	ico, err := parseICOContainer(icoData)
	if err != nil {
		return err
	}
	pe.installIcoEntries(ico)
	return nil
}

// SetMainIconFromImage decodes a PNG, JPEG or BMP raster image (sniffed first
// via gabriel-vasile/mimetype; any other input, image or not, fails fast with
// ErrImageDecodeFailed rather than a confusing decode error), resamples it to
// the standard icon size set, and installs the result the same way
// SetMainIcon does (spec.md §4.6 "When the optional raster codec is
// present...").
func (pe *File) SetMainIconFromImage(raw []byte) error {
	mime := mimetype.Detect(raw)
	if !mime.Is("image/png") && !mime.Is("image/jpeg") && !mime.Is("image/bmp") {
		return ErrImageDecodeFailed
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return ErrImageDecodeFailed
	}

	decoder := pe.imageDecoder()
	if decoder == nil {
		return ErrNoImageDecoder
	}
	frames, err := decoder.Resample(img, standardIconSizes)
	if err != nil {
		return err
	}

	ico := &icoContainer{}
	for i, size := range standardIconSizes {
		dim := uint8(size)
		if size >= 256 {
			dim = 0 // ICONDIRENTRY encodes 256 as 0
		}
		ico.entries = append(ico.entries, icoEntry{
			Width:      dim,
			Height:     dim,
			Planes:     1,
			BitCount:   32,
			BytesInRes: uint32(len(frames[i])),
		})
		ico.payloads = append(ico.payloads, frames[i])
	}
	pe.installIcoEntries(ico)
	return nil
}

// GetMainIconIDs returns the RT_ICON ids the installed RT_GROUP_ICON id=1
// currently references, in directory order (used by the icon round-trip
// property, spec.md §8 invariant 6).
func (pe *File) GetMainIconIDs() ([]uint32, error) {
	data, ok := pe.GetResource(ResourceKey{Type: RTGroupIcon, ID: 1, Lang: LangNeutral})
	if !ok {
		return nil, ErrInvalidIcoContainer
	}
	_, ids, err := parseGroupIconDirectory(data)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, len(ids))
	for i, id := range ids {
		out[i] = uint32(id)
	}
	return out, nil
}

// ExtractMainIconPNG returns the main icon as PNG bytes. The first RT_ICON
// payload the group references that is already PNG-encoded is returned as
// is; when none is, the largest payload is decoded with the formats
// registered with the stdlib image package and re-encoded as PNG. A raw,
// headerless DIB payload is not decodable that way and yields
// ErrImageDecodeFailed.
func (pe *File) ExtractMainIconPNG() ([]byte, error) {
	ids, err := pe.GetMainIconIDs()
	if err != nil {
		return nil, err
	}

	var largest []byte
	for _, id := range ids {
		data, ok := pe.GetResource(ResourceKey{Type: RTIcon, ID: id, Lang: LangNeutral})
		if !ok {
			continue
		}
		if mimetype.Detect(data).Is("image/png") {
			return data, nil
		}
		if len(data) > len(largest) {
			largest = data
		}
	}
	if largest == nil {
		return nil, ErrInvalidIcoContainer
	}

	img, _, err := image.Decode(bytes.NewReader(largest))
	if err != nil {
		return nil, ErrImageDecodeFailed
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
