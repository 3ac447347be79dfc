// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package peedit

import (
	"os"

	mmap "github.com/edsrzf/mmap-go"

	"github.com/corkteam/peedit/log"
)

// File represents a parsed PE/PE32+ image: the subset of structure this
// module understands (headers, sections, resource directory, overlay) plus
// whatever mutations a caller has queued through SetMainIcon/SetManifest/
// SetVersionInfo/InsertResource/RemoveResource. Bytes() re-serializes the
// whole thing, applying the Image Rebuilder.
type File struct {
	DOSHeader ImageDOSHeader    `json:"dos_header,omitempty"`
	NtHeader  ImageNtHeader     `json:"nt_header,omitempty"`
	Sections  []Section         `json:"sections,omitempty"`
	Resources ResourceDirectory `json:"resources,omitempty"`
	Anomalies []string          `json:"anomalies,omitempty"`
	Header    []byte

	data mmap.MMap
	FileInfo
	size          uint32
	OverlayOffset int64
	f             *os.File
	opts          *Options
	logger        *log.Helper

	dirty bool
}

// Options configures both parsing and rebuild behavior.
type Options struct {
	// Fast parses only the PE header and section table, skipping data
	// directories. Mutation entry points require the resource directory to
	// have been parsed, so Fast is incompatible with them.
	Fast bool

	// SectionEntropy additionally computes Shannon entropy per section.
	SectionEntropy bool

	// ComputeChecksum controls whether Bytes() recomputes
	// OptionalHeader.CheckSum. Defaults to true; set false to write 0 into the
	// field instead (faster, but drivers/boot DLLs are loaded only with a
	// valid checksum).
	ComputeChecksum *bool

	// ImageDecoder resamples arbitrary raster images into the standard icon
	// sizes SetMainIconFromImage installs. Defaults to the stdlib/x/image-backed
	// implementation in codec.go.
	ImageDecoder ImageDecoder

	// MaxResourceEntries bounds how many sibling entries any one resource
	// directory level may declare, guarding against maliciously inflated
	// trees. Defaults to maxAllowedEntries.
	MaxResourceEntries int

	// A custom logger.
	Logger log.Logger
}

func (o *Options) computeChecksum() bool {
	return o.ComputeChecksum == nil || *o.ComputeChecksum
}

// New opens the PE file at path, memory-mapping it read-only. It does not
// parse it; call Parse on the returned File.
func New(name string, opts *Options) (*File, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}

	file := newFile(opts)
	file.data = data
	file.size = uint32(len(file.data))
	file.f = f
	return file, nil
}

// NewBytes loads a PE image already held in memory; as with New, Parse must
// be called on the returned File before use. The returned File never
// retains a reference into data; Bytes() always allocates a fresh buffer.
func NewBytes(data []byte, opts *Options) (*File, error) {
	file := newFile(opts)
	buf := make(mmap.MMap, len(data))
	copy(buf, data)
	file.data = buf
	file.size = uint32(len(file.data))
	return file, nil
}

func newFile(opts *Options) *File {
	file := &File{}
	if opts != nil {
		file.opts = opts
	} else {
		file.opts = &Options{}
	}
	if file.opts.MaxResourceEntries == 0 {
		file.opts.MaxResourceEntries = maxAllowedEntries
	}

	var logger log.Logger
	if file.opts.Logger == nil {
		logger = log.NewStdLogger(os.Stdout)
		file.logger = log.NewHelper(log.NewFilter(logger, log.FilterLevel(log.LevelError)))
	} else {
		file.logger = log.NewHelper(file.opts.Logger)
	}

	return file
}

// Close releases the underlying mapping/file handle, if any. Only a File
// opened with New actually holds a live mmap; NewBytes and any subsequent
// SetOverlay copy into plain heap-backed slices that must never be passed to
// munmap.
func (pe *File) Close() error {
	if pe.f != nil {
		_ = pe.data.Unmap()
		return pe.f.Close()
	}
	return nil
}

// Parse walks the headers, section table, and (unless Options.Fast) the
// resource data directory.
func (pe *File) Parse() error {
	if len(pe.data) < TinyPESize {
		return ErrTruncatedInput
	}

	if err := pe.ParseDOSHeader(); err != nil {
		return err
	}

	if err := pe.ParseNTHeader(); err != nil {
		return err
	}

	if err := pe.ParseSectionHeader(); err != nil {
		return err
	}

	if pe.OverlayOffset > 0 && pe.OverlayOffset < int64(pe.size) {
		pe.HasOverlay = true
	}

	if pe.opts.Fast {
		return nil
	}

	dir := pe.dataDirectory(ImageDirectoryEntryResource)
	if dir.VirtualAddress == 0 {
		return nil
	}
	return pe.parseResourceDirectory(dir.VirtualAddress, dir.Size)
}
