// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package link

import "debug/elf"

// An InputSection is one section of an ObjectFile that contributes
// bytes to the output. It is exclusively owned by its file; layout
// later assigns it to an OutputSection at some offset.
type InputSection struct {
	// File is the owning object file.
	File *ObjectFile

	// Shdr is the section header. For sections materialised from
	// common symbols this is synthetic rather than read from the file.
	Shdr Shdr

	// Name is the section name from the section string table.
	Name string

	// Rels holds the section's relocations, attached from the
	// corresponding SHT_RELA section if one exists.
	Rels []Rela

	// OutputSection is the output section this section was assigned
	// to. Offset is the section's offset within it, filled in by
	// layout.
	OutputSection *OutputSection
	Offset        uint64
}

// NewInputSection creates the input section for shdr and binds it to
// its output section.
func NewInputSection(ctx *Context, file *ObjectFile, shdr Shdr, name string) *InputSection {
	isec := &InputSection{
		File: file,
		Shdr: shdr,
		Name: name,
	}
	isec.OutputSection = ctx.GetOutputSection(name, shdr.Type, shdr.Flags)
	return isec
}

// Contents returns the section's bytes from the file image, or nil
// for sections with no file-backed data.
func (isec *InputSection) Contents() []byte {
	if isec.Shdr.Type == uint32(elf.SHT_NOBITS) {
		return nil
	}
	return isec.File.File.Contents[isec.Shdr.Offset : isec.Shdr.Offset+isec.Shdr.Size]
}
