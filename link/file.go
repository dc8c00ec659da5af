// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package link

import (
	"bytes"
	"debug/elf"
	"fmt"
	"os"
)

// A File is one input buffer handed to the linker: a standalone file
// from the command line or a member extracted from an archive.
type File struct {
	// Name identifies the file in diagnostics. For an archive member
	// this is the member name, not the archive path.
	Name string

	// ArchiveName is the path of the containing archive, or "" if the
	// file came directly from the command line.
	ArchiveName string

	// Contents is the raw image. The linker treats it as immutable and
	// keeps sub-slices of it alive for the whole link.
	Contents []byte
}

// String returns the human-readable identifier used in diagnostics,
// "archive:member" for archive members.
func (f *File) String() string {
	if f.ArchiveName != "" {
		return f.ArchiveName + ":" + f.Name
	}
	return f.Name
}

// ReadFile loads path into memory.
func ReadFile(path string) (*File, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", path, err)
	}
	return &File{Name: path, Contents: contents}, nil
}

// FileType classifies an input buffer by its magic number.
type FileType int

const (
	FileTypeUnknown FileType = iota
	FileTypeObject            // ET_REL
	FileTypeSharedObject      // ET_DYN
	FileTypeArchive           // !<arch>
)

var (
	elfMagic     = []byte("\x7fELF")
	archiveMagic = []byte("!<arch>\n")
)

// IdentifyFile classifies contents.
func IdentifyFile(contents []byte) FileType {
	if bytes.HasPrefix(contents, archiveMagic) {
		return FileTypeArchive
	}
	if bytes.HasPrefix(contents, elfMagic) && len(contents) >= EhdrSize {
		// e_type is at a fixed offset; no need to decode the whole
		// header to classify.
		switch elf.Type(order.Uint16(contents[16:])) {
		case elf.ET_REL:
			return FileTypeObject
		case elf.ET_DYN:
			return FileTypeSharedObject
		}
	}
	return FileTypeUnknown
}
