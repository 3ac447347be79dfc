// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package peedit

import "encoding/binary"

// codePageUnicode is the code page InsertResource stamps on a freshly
// installed leaf. A leaf carried over from parse keeps whatever code page it
// was found with (overwhelmingly 0 in practice) rather than being silently
// rewritten to 1200.
const codePageUnicode = 1200

// planEntry decorates one ResourceDirectoryEntry with the local offsets its
// serialized form will occupy. Plan nodes are built once (sizes depend only
// on tree shape and string/blob lengths, never on where the .rsrc section
// ends up living) and then reused both to compute the section's total size
// and to emit it, so offset arithmetic happens in exactly one place.
type planEntry struct {
	name    string
	id      uint32
	isDir   bool
	child   *planDir
	nameIdx int // index into the shared name list, valid when name != ""

	leafBytes    []byte
	leafLang     uint32
	leafSubLang  uint32
	leafCodePage uint32
	leafIdx      int // index into the shared leaf list, valid when !isDir

	nameOffset      uint32
	dataEntryOffset uint32
	rawOffset       uint32
}

// planDir decorates one ResourceDirectory with the local offset of its
// serialized header.
type planDir struct {
	numNamed uint16
	numID    uint16
	entries  []*planEntry
	offset   uint32
}

// resourcePlan is the full decorated tree plus the flat lists serialization
// walks in emission order.
type resourcePlan struct {
	root       *planDir
	dirs       []*planDir
	names      []string
	leaves     []*planEntry
	allEntries []*planEntry
}

func buildResourcePlan(dir ResourceDirectory) *resourcePlan {
	p := &resourcePlan{}
	p.root = p.buildDir(dir)
	return p
}

func (p *resourcePlan) buildDir(dir ResourceDirectory) *planDir {
	pd := &planDir{}
	p.dirs = append(p.dirs, pd)
	for _, e := range dir.Entries {
		pe := &planEntry{name: e.Name, id: e.ID, isDir: e.IsResourceDir}
		if e.Name != "" {
			pe.nameIdx = len(p.names)
			p.names = append(p.names, e.Name)
			pd.numNamed++
		} else {
			pd.numID++
		}
		if e.IsResourceDir {
			pe.child = p.buildDir(e.Directory)
		} else {
			pe.leafBytes = e.Data.Bytes
			pe.leafLang = e.Data.Lang
			pe.leafSubLang = e.Data.SubLang
			pe.leafCodePage = e.Data.Struct.CodePage
			pe.leafIdx = len(p.leaves)
			p.leaves = append(p.leaves, pe)
		}
		pd.entries = append(pd.entries, pe)
		p.allEntries = append(p.allEntries, pe)
	}
	return pd
}

// layout assigns local (section-relative) byte offsets to every directory
// header, data-entry slot, name string, and raw data blob, returning the
// total serialized size of the resource section's content.
func (p *resourcePlan) layout() uint32 {
	var offset uint32
	for _, pd := range p.dirs {
		pd.offset = offset
		offset += 16 + 8*uint32(len(pd.entries))
	}

	dataEntriesStart := offset
	for _, leaf := range p.leaves {
		leaf.dataEntryOffset = dataEntriesStart + uint32(leaf.leafIdx)*16
	}
	offset = dataEntriesStart + uint32(len(p.leaves))*16

	nameOffsets := make([]uint32, len(p.names))
	for i, name := range p.names {
		nameOffsets[i] = offset
		offset += 2 + uint32(len(EncodeUTF16String(name)))
	}
	for _, e := range p.allEntries {
		if e.name != "" {
			e.nameOffset = nameOffsets[e.nameIdx]
		}
	}

	offset = alignUp(offset, 4)
	for _, leaf := range p.leaves {
		leaf.rawOffset = offset
		offset += alignUp(uint32(len(leaf.leafBytes)), 4)
	}

	return offset
}

// emit serializes the plan into a freshly allocated buffer. sectionRVA is
// the RVA the owning .rsrc section will load at; data-entry OffsetToData
// fields are absolute RVAs, unlike directory/name offsets which are local to
// the section.
func (p *resourcePlan) emit(sectionRVA, size uint32) []byte {
	buf := make([]byte, size)

	for _, pd := range p.dirs {
		o := pd.offset
		binary.LittleEndian.PutUint32(buf[o:], 0)
		binary.LittleEndian.PutUint32(buf[o+4:], 0)
		binary.LittleEndian.PutUint16(buf[o+8:], 0)
		binary.LittleEndian.PutUint16(buf[o+10:], 0)
		binary.LittleEndian.PutUint16(buf[o+12:], pd.numNamed)
		binary.LittleEndian.PutUint16(buf[o+14:], pd.numID)

		entryOff := o + 16
		for _, e := range pd.entries {
			var nameField uint32
			if e.name != "" {
				nameField = 0x80000000 | e.nameOffset
			} else {
				nameField = e.id
			}
			var dataField uint32
			if e.isDir {
				dataField = 0x80000000 | e.child.offset
			} else {
				dataField = e.dataEntryOffset
			}
			binary.LittleEndian.PutUint32(buf[entryOff:], nameField)
			binary.LittleEndian.PutUint32(buf[entryOff+4:], dataField)
			entryOff += 8
		}
	}

	for _, leaf := range p.leaves {
		o := leaf.dataEntryOffset
		binary.LittleEndian.PutUint32(buf[o:], sectionRVA+leaf.rawOffset)
		binary.LittleEndian.PutUint32(buf[o+4:], uint32(len(leaf.leafBytes)))
		binary.LittleEndian.PutUint32(buf[o+8:], leaf.leafCodePage)
		binary.LittleEndian.PutUint32(buf[o+12:], 0)
	}

	for _, e := range p.allEntries {
		if e.name == "" {
			continue
		}
		encoded := EncodeUTF16String(e.name)
		binary.LittleEndian.PutUint16(buf[e.nameOffset:], uint16(len(encoded)/2))
		copy(buf[e.nameOffset+2:], encoded)
	}

	for _, leaf := range p.leaves {
		copy(buf[leaf.rawOffset:], leaf.leafBytes)
	}

	return buf
}

// serializeResourceTree renders root as the complete content of a .rsrc
// section that will be loaded at sectionRVA.
func serializeResourceTree(root ResourceDirectory, sectionRVA uint32) []byte {
	plan := buildResourcePlan(root)
	size := plan.layout()
	return plan.emit(sectionRVA, size)
}
