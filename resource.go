// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package peedit

import (
	"encoding/binary"
	"sort"
)

// ResourceType identifies a resource's type, either one of the predefined
// RT_* values or an application-defined numeric/string type.
type ResourceType int

const (
	// maxAllowedEntries bounds entries-per-directory-level during parse; it
	// is overridden per File by Options.MaxResourceEntries.
	maxAllowedEntries = 0x1000

	// maxResourceDepth is the number of levels of a well-formed tree,
	// counting the leaf: type -> name -> language -> (leaf). That is 3
	// directory levels; doParseResourceDirectory rejects a fourth with
	// ErrMalformedResourceTree, since anything deeper is either malicious or
	// corrupt.
	maxResourceDepth = 4
)

// Predefined resource types.
const (
	RTCursor       ResourceType = iota + 1      // Hardware-dependent cursor resource.
	RTBitmap                    = 2             // Bitmap resource.
	RTIcon                      = 3             // Hardware-dependent icon resource.
	RTMenu                      = 4             // Menu resource.
	RTDialog                    = 5             // Dialog box.
	RTString                    = 6             // String-table entry.
	RTFontDir                   = 7             // Font directory resource.
	RTFont                      = 8             // Font resource.
	RTAccelerator               = 9             // Accelerator table.
	RTRCdata                    = 10            // Application-defined resource (raw data).
	RTMessageTable              = 11            // Message-table entry.
	RTGroupCursor               = RTCursor + 11 // Hardware-independent cursor resource.
	RTGroupIcon                 = RTIcon + 11   // Hardware-independent icon resource.
	RTVersion                   = 16            // Version resource.
	RTDlgInclude                = 17            // Dialog include entry.
	RTPlugPlay                  = 19            // Plug and Play resource.
	RTVxD                       = 20            // VXD.
	RTAniCursor                 = 21            // Animated cursor.
	RTAniIcon                   = 22            // Animated icon.
	RTHtml                      = 23            // HTML resource.
	RTManifest                  = 24            // Side-by-Side Assembly Manifest.
)

// String stringifies the resource type.
func (rt ResourceType) String() string {
	rsrcTypeMap := map[ResourceType]string{
		RTCursor:       "Cursor",
		RTBitmap:       "Bitmap",
		RTIcon:         "Icon",
		RTMenu:         "Menu",
		RTDialog:       "Dialog box",
		RTString:       "String",
		RTFontDir:      "Font directory",
		RTFont:         "Font",
		RTAccelerator:  "Accelerator",
		RTRCdata:       "RC Data",
		RTMessageTable: "Message Table",
		RTGroupCursor:  "Group Cursor",
		RTGroupIcon:    "Group Icon",
		RTVersion:      "Version",
		RTDlgInclude:   "Dialog Include",
		RTPlugPlay:     "Plug & Play",
		RTVxD:          "VxD",
		RTAniCursor:    "Animated Cursor",
		RTAniIcon:      "Animated Icon",
		RTHtml:         "HTML",
		RTManifest:     "Manifest",
	}
	if s, ok := rsrcTypeMap[rt]; ok {
		return s
	}
	return "Unknown"
}

// ImageResourceDirectory is the on-disk IMAGE_RESOURCE_DIRECTORY header that
// precedes every directory level's entry array.
type ImageResourceDirectory struct {
	Characteristics      uint32 `json:"characteristics"`
	TimeDateStamp        uint32 `json:"time_date_stamp"`
	MajorVersion         uint16 `json:"major_version"`
	MinorVersion         uint16 `json:"minor_version"`
	NumberOfNamedEntries uint16 `json:"number_of_named_entries"`
	NumberOfIDEntries    uint16 `json:"number_of_id_entries"`
}

// ImageResourceDirectoryEntry is one on-disk IMAGE_RESOURCE_DIRECTORY_ENTRY.
type ImageResourceDirectoryEntry struct {
	Name         uint32 `json:"name"`
	OffsetToData uint32 `json:"offset_to_data"`
}

// ImageResourceDataEntry is the on-disk IMAGE_RESOURCE_DATA_ENTRY leaf.
type ImageResourceDataEntry struct {
	OffsetToData uint32 `json:"offset_to_data"`
	Size         uint32 `json:"size"`
	CodePage     uint32 `json:"code_page"`
	Reserved     uint32 `json:"reserved"`
}

// ResourceDirectory is one level of the four-level resource tree
// (type -> name -> language -> data).
type ResourceDirectory struct {
	Struct  ImageResourceDirectory    `json:"struct"`
	Entries []ResourceDirectoryEntry `json:"entries"`
}

// ResourceDirectoryEntry is one child of a ResourceDirectory: either another
// subdirectory (IsResourceDir true) or a data leaf.
type ResourceDirectoryEntry struct {
	Name          string            `json:"name"`
	ID            uint32            `json:"id"`
	IsResourceDir bool              `json:"is_resource_dir"`
	Directory     ResourceDirectory `json:"directory,omitempty"`
	Data          ResourceDataEntry `json:"data,omitempty"`
}

// ResourceDataEntry is a leaf's payload plus its language/sub-language and
// raw bytes. Bytes is populated on parse and is the single source of truth
// for reserialization; Struct.OffsetToData/Size are recomputed by the
// rebuilder and must not be trusted after mutation.
type ResourceDataEntry struct {
	Struct  ImageResourceDataEntry `json:"struct"`
	Lang    uint32                 `json:"lang"`
	SubLang uint32                 `json:"sub_lang"`
	Bytes   []byte                 `json:"-"`
}

// byNameThenID orders directory entries the way a real resource compiler emits
// them: named entries first (sorted lexically), then ID entries (sorted
// numerically). This ordering is recomputed on every mutation so the tree
// serializes deterministically regardless of insert order.
type byNameThenID []ResourceDirectoryEntry

func (e byNameThenID) Len() int      { return len(e) }
func (e byNameThenID) Swap(i, j int) { e[i], e[j] = e[j], e[i] }
func (e byNameThenID) Less(i, j int) bool {
	if e[i].Name != "" && e[j].Name == "" {
		return true
	}
	if e[i].Name == "" && e[j].Name != "" {
		return false
	}
	if e[i].Name != "" {
		return e[i].Name < e[j].Name
	}
	return e[i].ID < e[j].ID
}

func sortDirectory(dir *ResourceDirectory) {
	sort.Stable(byNameThenID(dir.Entries))
	dir.Struct.NumberOfNamedEntries = 0
	dir.Struct.NumberOfIDEntries = 0
	for _, e := range dir.Entries {
		if e.Name != "" {
			dir.Struct.NumberOfNamedEntries++
		} else {
			dir.Struct.NumberOfIDEntries++
		}
	}
}

func (pe *File) parseResourceDataEntry(rva uint32) ImageResourceDataEntry {
	dataEntry := ImageResourceDataEntry{}
	dataEntrySize := uint32(binary.Size(dataEntry))
	offset := pe.GetOffsetFromRva(rva)
	if err := pe.structUnpack(&dataEntry, offset, dataEntrySize); err != nil {
		pe.logger.Warnf("resource data entry at rva %#x is truncated", rva)
	}
	return dataEntry
}

func (pe *File) parseResourceDirectoryEntry(rva uint32) *ImageResourceDirectoryEntry {
	entry := ImageResourceDirectoryEntry{}
	entrySize := uint32(binary.Size(entry))
	offset := pe.GetOffsetFromRva(rva)
	if err := pe.structUnpack(&entry, offset, entrySize); err != nil {
		return nil
	}
	if entry == (ImageResourceDirectoryEntry{}) {
		return nil
	}
	return &entry
}

// doParseResourceDirectory recursively walks one level of the resource tree.
// dirs accumulates every directory offset visited on the current path so a
// directory entry pointing back at an ancestor (a cycle malware/corruption
// can construct) is rejected instead of recursing forever; depth separately
// enforces the four-level structural limit that a well-formed tree obeys.
func (pe *File) doParseResourceDirectory(rva, size, baseRVA uint32, depth int, dirs []uint32) (ResourceDirectory, error) {
	if depth >= maxResourceDepth-1 {
		return ResourceDirectory{}, ErrMalformedResourceTree
	}

	resourceDir := ImageResourceDirectory{}
	resourceDirSize := uint32(binary.Size(resourceDir))
	offset := pe.GetOffsetFromRva(rva)
	if err := pe.structUnpack(&resourceDir, offset, resourceDirSize); err != nil {
		return ResourceDirectory{}, ErrMalformedResourceTree
	}

	if baseRVA == 0 {
		baseRVA = rva
	}
	if len(dirs) == 0 {
		dirs = append(dirs, rva)
	}

	rva += resourceDirSize

	numberOfEntries := int(resourceDir.NumberOfNamedEntries + resourceDir.NumberOfIDEntries)
	if numberOfEntries > pe.opts.MaxResourceEntries {
		return ResourceDirectory{}, ErrMalformedResourceTree
	}

	var dirEntries []ResourceDirectoryEntry
	for i := 0; i < numberOfEntries; i++ {
		res := pe.parseResourceDirectoryEntry(rva)
		if res == nil {
			break
		}

		nameIsString := (res.Name & 0x80000000) >> 31
		entryName := ""
		entryID := uint32(0)
		if nameIsString == 0 {
			entryID = res.Name
		} else {
			nameOffset := res.Name & 0x7FFFFFFF
			uStringOffset := pe.GetOffsetFromRva(baseRVA + nameOffset)
			maxLen, err := pe.ReadUint16(uStringOffset)
			if err != nil {
				break
			}
			entryName = pe.readUnicodeStringAtRVA(baseRVA+nameOffset+2, uint32(maxLen)*2)
		}

		dataIsDirectory := (res.OffsetToData & 0x80000000) >> 31
		offsetToDirectory := res.OffsetToData & 0x7FFFFFFF

		if dataIsDirectory > 0 {
			childRVA := baseRVA + offsetToDirectory
			if intInSlice(childRVA, dirs) {
				return ResourceDirectory{}, ErrMalformedResourceTree
			}
			childDirs := append(append([]uint32{}, dirs...), childRVA)
			directoryEntry, err := pe.doParseResourceDirectory(
				childRVA, size-(rva-baseRVA), baseRVA, depth+1, childDirs)
			if err != nil {
				return ResourceDirectory{}, err
			}
			dirEntries = append(dirEntries, ResourceDirectoryEntry{
				Name:          entryName,
				ID:            entryID,
				IsResourceDir: true,
				Directory:     directoryEntry,
			})
		} else {
			dataEntryStruct := pe.parseResourceDataEntry(baseRVA + offsetToDirectory)
			dataOffset := pe.GetOffsetFromRva(dataEntryStruct.OffsetToData)
			raw, err := pe.ReadBytesAtOffset(dataOffset, dataEntryStruct.Size)
			if err != nil {
				raw = nil
			}
			dirEntries = append(dirEntries, ResourceDirectoryEntry{
				Name:          entryName,
				ID:            entryID,
				IsResourceDir: false,
				Data: ResourceDataEntry{
					Struct:  dataEntryStruct,
					Lang:    res.Name & 0x3ff,
					SubLang: res.Name >> 10,
					Bytes:   raw,
				},
			})
		}

		rva += uint32(binary.Size(res))
	}

	return ResourceDirectory{Struct: resourceDir, Entries: dirEntries}, nil
}

// parseResourceDirectory parses the full resource tree rooted at the
// directory's data-directory entry.
func (pe *File) parseResourceDirectory(rva, size uint32) error {
	resources, err := pe.doParseResourceDirectory(rva, size, 0, 0, nil)
	if err != nil {
		return err
	}
	pe.Resources = resources
	pe.HasResource = true
	return nil
}

// ResourceKey addresses a single leaf in the tree by its type/name-or-id/
// language triple.
type ResourceKey struct {
	Type ResourceType
	// Name identifies the resource by string name; takes precedence over ID
	// when non-empty, matching how the resource compiler distinguishes named
	// from numeric resources at every tree level.
	Name string
	ID   uint32
	Lang ResourceLang
}

func entryMatches(e ResourceDirectoryEntry, name string, id uint32) bool {
	if name != "" {
		return e.Name == name
	}
	return e.Name == "" && e.ID == id
}

// GetResource returns the raw bytes of the resource addressed by key, or
// (nil, false) if no such leaf exists.
func (pe *File) GetResource(key ResourceKey) ([]byte, bool) {
	for _, typeEntry := range pe.Resources.Entries {
		if !typeEntry.IsResourceDir || !entryMatches(typeEntry, "", uint32(key.Type)) {
			continue
		}
		for _, nameEntry := range typeEntry.Directory.Entries {
			if !nameEntry.IsResourceDir || !entryMatches(nameEntry, key.Name, key.ID) {
				continue
			}
			for _, langEntry := range nameEntry.Directory.Entries {
				if langEntry.IsResourceDir || langEntry.ID != uint32(key.Lang) {
					continue
				}
				return langEntry.Data.Bytes, true
			}
		}
	}
	return nil, false
}

// InsertResource installs or replaces the leaf at key with data, creating
// any missing type/name directory levels. The tree is re-sorted after every
// mutation so serialization order never depends on call order.
func (pe *File) InsertResource(key ResourceKey, data []byte) {
	pe.dirty = true
	pe.HasResource = true

	typeIdx := findOrCreate(&pe.Resources.Entries, "", uint32(key.Type))
	typeEntry := &pe.Resources.Entries[typeIdx]
	typeEntry.IsResourceDir = true

	nameIdx := findOrCreate(&typeEntry.Directory.Entries, key.Name, key.ID)
	nameEntry := &typeEntry.Directory.Entries[nameIdx]
	nameEntry.IsResourceDir = true

	langIdx := findOrCreate(&nameEntry.Directory.Entries, "", uint32(key.Lang))
	langEntry := &nameEntry.Directory.Entries[langIdx]
	langEntry.IsResourceDir = false
	langEntry.Data = ResourceDataEntry{
		Struct:  ImageResourceDataEntry{CodePage: codePageUnicode},
		Lang:    uint32(key.Lang) & 0x3ff,
		SubLang: uint32(key.Lang) >> 10,
		Bytes:   data,
	}

	sortDirectory(&nameEntry.Directory)
	sortDirectory(&typeEntry.Directory)
	sortDirectory(&pe.Resources)
}

// RemoveResource deletes the leaf at key, pruning any name/type directory
// that becomes empty as a result. Returns false if the leaf did not exist.
func (pe *File) RemoveResource(key ResourceKey) bool {
	for ti := range pe.Resources.Entries {
		typeEntry := &pe.Resources.Entries[ti]
		if !typeEntry.IsResourceDir || !entryMatches(*typeEntry, "", uint32(key.Type)) {
			continue
		}
		for ni := range typeEntry.Directory.Entries {
			nameEntry := &typeEntry.Directory.Entries[ni]
			if !nameEntry.IsResourceDir || !entryMatches(*nameEntry, key.Name, key.ID) {
				continue
			}
			for li, langEntry := range nameEntry.Directory.Entries {
				if langEntry.IsResourceDir || langEntry.ID != uint32(key.Lang) {
					continue
				}
				nameEntry.Directory.Entries = append(
					nameEntry.Directory.Entries[:li], nameEntry.Directory.Entries[li+1:]...)
				pe.dirty = true

				if len(nameEntry.Directory.Entries) == 0 {
					typeEntry.Directory.Entries = append(
						typeEntry.Directory.Entries[:ni], typeEntry.Directory.Entries[ni+1:]...)
					if len(typeEntry.Directory.Entries) == 0 {
						pe.Resources.Entries = append(
							pe.Resources.Entries[:ti], pe.Resources.Entries[ti+1:]...)
					}
				}
				return true
			}
			break
		}
		break
	}
	return false
}

func findOrCreate(entries *[]ResourceDirectoryEntry, name string, id uint32) int {
	for i, e := range *entries {
		if entryMatches(e, name, id) {
			return i
		}
	}
	*entries = append(*entries, ResourceDirectoryEntry{Name: name, ID: id})
	return len(*entries) - 1
}

// Clone returns a deep copy of dir. A caller that needs to mutate a
// resource tree concurrently with the owning File (spec.md §5 "Ownership")
// must clone first: File itself is not safe for concurrent mutation.
func (dir ResourceDirectory) Clone() ResourceDirectory {
	out := ResourceDirectory{Struct: dir.Struct}
	if dir.Entries == nil {
		return out
	}
	out.Entries = make([]ResourceDirectoryEntry, len(dir.Entries))
	for i, e := range dir.Entries {
		clone := e
		if e.IsResourceDir {
			clone.Directory = e.Directory.Clone()
		} else {
			clone.Data.Bytes = append([]byte(nil), e.Data.Bytes...)
		}
		out.Entries[i] = clone
	}
	return out
}

// intInSlice reports whether v is present in s.
func intInSlice(v uint32, s []uint32) bool {
	for _, e := range s {
		if e == v {
			return true
		}
	}
	return false
}
