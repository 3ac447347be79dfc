// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package peedit

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// VsFileInfoSignature identifies a VS_FIXEDFILEINFO block.
const VsFileInfoSignature uint32 = 0xFEEF04BD

// VsFixedFileInfo is the language/codepage-independent half of a version
// resource (VS_FIXEDFILEINFO).
type VsFixedFileInfo struct {
	Signature        uint32
	StructVer        uint32
	FileVersionMS    uint32
	FileVersionLS    uint32
	ProductVersionMS uint32
	ProductVersionLS uint32
	FileFlagMask     uint32
	FileFlags        uint32
	FileOS           uint32
	FileType         uint32
	FileSubtype      uint32
	FileDateMS       uint32
	FileDateLS       uint32
}

// VersionInfo is the decoded form of a VS_VERSION_INFO resource: the fixed
// binary fields plus the StringFileInfo string tables (keyed by the 8-hex-
// digit lang/codepage identifier the resource compiler emits, e.g.
// "040904B0") and the VarFileInfo Translation pairs.
type VersionInfo struct {
	Fixed        VsFixedFileInfo
	StringTables map[string]map[string]string
	Translations []struct{ Lang, CodePage uint16 }
}

func alignDword4(n int) int {
	return (n + 3) &^ 3
}

type versionWriter struct {
	buf bytes.Buffer
}

func (w *versionWriter) u16(v uint16) { binary.Write(&w.buf, binary.LittleEndian, v) }
func (w *versionWriter) u32(v uint32) { binary.Write(&w.buf, binary.LittleEndian, v) }

func (w *versionWriter) nulString(s string) {
	w.buf.Write(EncodeUTF16String(s))
	w.u16(0)
}

func (w *versionWriter) padTo4() {
	for w.buf.Len()%4 != 0 {
		w.buf.WriteByte(0)
	}
}

// buildString writes one String structure (the leaf of StringTable) and
// returns its encoded bytes, wLength already filled in.
func buildString(key, value string) []byte {
	var w versionWriter
	w.u16(0) // wLength placeholder
	valueUnits := len(EncodeUTF16String(value))/2 + 1
	w.u16(uint16(valueUnits))
	w.u16(1) // wType: text
	w.nulString(key)
	w.padTo4()
	w.nulString(value)
	w.padTo4()
	out := w.buf.Bytes()
	binary.LittleEndian.PutUint16(out[0:2], uint16(len(out)))
	return out
}

// buildStringTable writes one StringTable (szKey = lang/codepage hex id).
func buildStringTable(langHex string, strs map[string]string) []byte {
	var w versionWriter
	w.u16(0)
	w.u16(0)
	w.u16(1)
	w.nulString(langHex)
	w.padTo4()
	for k, v := range strs {
		w.buf.Write(buildString(k, v))
		w.padTo4()
	}
	out := w.buf.Bytes()
	binary.LittleEndian.PutUint16(out[0:2], uint16(len(out)))
	return out
}

// buildStringFileInfo writes the StringFileInfo block containing every
// language's StringTable.
func buildStringFileInfo(tables map[string]map[string]string) []byte {
	if len(tables) == 0 {
		return nil
	}
	var w versionWriter
	w.u16(0)
	w.u16(0)
	w.u16(1)
	w.nulString("StringFileInfo")
	w.padTo4()
	for lang, strs := range tables {
		w.buf.Write(buildStringTable(lang, strs))
		w.padTo4()
	}
	out := w.buf.Bytes()
	binary.LittleEndian.PutUint16(out[0:2], uint16(len(out)))
	return out
}

// buildVarFileInfo writes the VarFileInfo block containing the single
// "Translation" Var entry, the lang/codepage pairs StringTable keys map to.
func buildVarFileInfo(translations []struct{ Lang, CodePage uint16 }) []byte {
	if len(translations) == 0 {
		return nil
	}
	var w versionWriter
	w.u16(0)
	w.u16(0)
	w.u16(1)
	w.nulString("VarFileInfo")
	w.padTo4()

	var vw versionWriter
	vw.u16(0)
	vw.u16(uint16(4 * len(translations)))
	vw.u16(0) // wType: binary
	vw.nulString("Translation")
	vw.padTo4()
	for _, t := range translations {
		vw.u16(t.Lang)
		vw.u16(t.CodePage)
	}
	vw.padTo4()
	varOut := vw.buf.Bytes()
	binary.LittleEndian.PutUint16(varOut[0:2], uint16(len(varOut)))

	w.buf.Write(varOut)
	out := w.buf.Bytes()
	binary.LittleEndian.PutUint16(out[0:2], uint16(len(out)))
	return out
}

// buildVersionInfo serializes v into a complete VS_VERSION_INFO resource
// leaf, ready to install under (RT_VERSION, id, lang).
func buildVersionInfo(v VersionInfo) []byte {
	v.Fixed.Signature = VsFileInfoSignature
	var w versionWriter
	w.u16(0) // wLength placeholder
	fixedSize := uint16(binary.Size(v.Fixed))
	w.u16(fixedSize)
	w.u16(0) // wType: binary
	w.nulString("VS_VERSION_INFO")
	w.padTo4()
	binary.Write(&w.buf, binary.LittleEndian, v.Fixed)
	w.padTo4()

	if sfi := buildStringFileInfo(v.StringTables); sfi != nil {
		w.buf.Write(sfi)
		w.padTo4()
	}
	if vfi := buildVarFileInfo(v.Translations); vfi != nil {
		w.buf.Write(vfi)
		w.padTo4()
	}

	out := w.buf.Bytes()
	binary.LittleEndian.PutUint16(out[0:2], uint16(len(out)))
	return out
}

// SetVersionInfo installs v as the version resource at (RT_VERSION, id=1,
// LangNeutral), replacing any resource already at that key. Version
// resources under other ids or languages are left in place.
func (pe *File) SetVersionInfo(v VersionInfo) {
	v.Fixed.Signature = VsFileInfoSignature
	data := buildVersionInfo(v)
	pe.InsertResource(ResourceKey{Type: RTVersion, ID: 1, Lang: LangNeutral}, data)
}

type versionReader struct {
	buf []byte
	pos int
}

func (r *versionReader) u16() (uint16, error) {
	if r.pos+2 > len(r.buf) {
		return 0, ErrOutsideBoundary
	}
	v := binary.LittleEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *versionReader) nulString() (string, error) {
	start := r.pos
	for {
		if r.pos+2 > len(r.buf) {
			return "", ErrOutsideBoundary
		}
		if r.buf[r.pos] == 0 && r.buf[r.pos+1] == 0 {
			s, err := DecodeUTF16String(r.buf[start:r.pos])
			r.pos += 2
			return s, err
		}
		r.pos += 2
	}
}

func (r *versionReader) align4() {
	for r.pos%4 != 0 {
		r.pos++
	}
}

// GetVersionInfo locates and decodes the RT_VERSION resource installed by
// SetVersionInfo (or parsed from an existing image).
func (pe *File) GetVersionInfo() (*VersionInfo, error) {
	data, ok := pe.GetResource(ResourceKey{Type: RTVersion, ID: 1, Lang: LangNeutral})
	if !ok {
		return nil, fmt.Errorf("peedit: no version resource installed")
	}
	return parseVersionInfo(data)
}

func parseVersionInfo(data []byte) (*VersionInfo, error) {
	r := &versionReader{buf: data}
	wLength, err := r.u16()
	if err != nil {
		return nil, err
	}
	valueLength, err := r.u16()
	if err != nil {
		return nil, err
	}
	if _, err := r.u16(); err != nil { // wType
		return nil, err
	}
	key, err := r.nulString()
	if err != nil {
		return nil, err
	}
	if key != "VS_VERSION_INFO" {
		return nil, fmt.Errorf("peedit: invalid VS_VERSION_INFO block %q", key)
	}
	r.align4()

	var v VersionInfo
	v.StringTables = map[string]map[string]string{}
	if valueLength > 0 {
		fixedSize := int(valueLength)
		if r.pos+fixedSize > len(r.buf) {
			return nil, ErrOutsideBoundary
		}
		rd := bytes.NewReader(r.buf[r.pos : r.pos+fixedSize])
		if err := binary.Read(rd, binary.LittleEndian, &v.Fixed); err != nil {
			return nil, err
		}
		r.pos += fixedSize
		r.align4()
	}

	end := int(wLength)
	if end > len(r.buf) {
		end = len(r.buf)
	}
	for r.pos < end {
		childStart := r.pos
		childLen, err := r.u16()
		if err != nil || childLen == 0 {
			break
		}
		if _, err := r.u16(); err != nil { // wValueLength
			break
		}
		if _, err := r.u16(); err != nil { // wType
			break
		}
		name, err := r.nulString()
		if err != nil {
			break
		}
		r.align4()

		switch name {
		case "StringFileInfo":
			parseStringTables(r, childStart+int(childLen), v.StringTables)
		case "VarFileInfo":
			v.Translations = parseTranslations(r, childStart+int(childLen))
		}
		r.pos = childStart + int(childLen)
		r.align4()
	}
	return &v, nil
}

func parseStringTables(r *versionReader, end int, out map[string]map[string]string) {
	for r.pos < end {
		tblStart := r.pos
		tblLen, err := r.u16()
		if err != nil || tblLen == 0 {
			return
		}
		if _, err := r.u16(); err != nil {
			return
		}
		if _, err := r.u16(); err != nil {
			return
		}
		langHex, err := r.nulString()
		if err != nil {
			return
		}
		r.align4()

		strs := map[string]string{}
		tblEnd := tblStart + int(tblLen)
		for r.pos < tblEnd {
			sStart := r.pos
			sLen, err := r.u16()
			if err != nil || sLen == 0 {
				break
			}
			valUnits, err := r.u16()
			if err != nil {
				break
			}
			if _, err := r.u16(); err != nil {
				break
			}
			k, err := r.nulString()
			if err != nil {
				break
			}
			r.align4()
			if valUnits > 0 {
				valBytes := int(valUnits)*2 - 2
				if r.pos+valBytes > len(r.buf) {
					break
				}
				val, err := DecodeUTF16String(r.buf[r.pos : r.pos+valBytes])
				if err == nil {
					strs[k] = val
				}
				r.pos += valBytes + 2
			}
			r.align4()
			r.pos = sStart + int(sLen)
			r.align4()
		}
		out[langHex] = strs
		r.pos = tblEnd
		r.align4()
	}
}

func parseTranslations(r *versionReader, end int) []struct{ Lang, CodePage uint16 } {
	var out []struct{ Lang, CodePage uint16 }
	for r.pos < end {
		start := r.pos
		length, err := r.u16()
		if err != nil || length == 0 {
			return out
		}
		valLen, err := r.u16()
		if err != nil {
			return out
		}
		if _, err := r.u16(); err != nil {
			return out
		}
		if _, err := r.nulString(); err != nil {
			return out
		}
		r.align4()
		n := int(valLen) / 4
		for i := 0; i < n; i++ {
			lang, err := r.u16()
			if err != nil {
				return out
			}
			cp, err := r.u16()
			if err != nil {
				return out
			}
			out = append(out, struct{ Lang, CodePage uint16 }{lang, cp})
		}
		r.pos = start + int(length)
		r.align4()
	}
	return out
}
