// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package link

import (
	"debug/elf"
	"fmt"
	"sync/atomic"
)

// An ObjectFile is one input relocatable object (or the symbol table
// of a shared object) being linked.
type ObjectFile struct {
	// File is the underlying input buffer.
	File *File

	// Priority orders the file within the whole input set: lower means
	// earlier on the command line (or earlier within an archive).
	// Priorities are unique, and they decide every resolution
	// tie-break, which is what makes the parallel passes
	// deterministic.
	Priority int

	// IsAlive reports that the file participates in the link. It is
	// set exactly once, by atomic exchange, when MarkLiveObjects
	// processes the file: immediately for command-line files, on
	// demand for archive members, never for members nothing pulls in.
	IsAlive atomic.Bool

	// IsDSO marks a shared object, parsed only for its dynamic symbol
	// table.
	IsDSO bool

	ehdr        Ehdr
	ElfSections []Shdr
	ElfSyms     []Sym
	// FirstGlobal is the index of the first non-local symbol in
	// ElfSyms, from the symbol table's sh_info.
	FirstGlobal  int
	shStrtab     []byte
	symbolStrtab []byte
	symtabShdr   *Shdr

	// Sections holds one entry per ElfSections slot. Entries are nil
	// for sections that don't materialise (symbol tables, relocation
	// sections, ...) or that lost COMDAT deduplication. Sections
	// materialised from common symbols are appended past the last slot.
	Sections []*InputSection

	// LocalSymbols holds the names of the file's local symbols,
	// aligned to ElfSyms[:FirstGlobal].
	LocalSymbols []string

	// Symbols holds the interned global symbols, aligned to
	// ElfSyms[FirstGlobal:].
	Symbols []*Symbol

	// ComdatGroups lists the COMDAT groups this file contributes.
	ComdatGroups []ComdatGroupRef

	// HasCommonSymbol is set if any global symbol is a common
	// (tentative) definition.
	HasCommonSymbol bool

	// Output symbol table sizes in bytes. The local sizes are
	// accumulated at parse time, the global ones by ComputeSymtab.
	LocalSymtabSize  uint64
	LocalStrtabSize  uint64
	GlobalSymtabSize uint64
	GlobalStrtabSize uint64

	// Byte offsets of this file's slices of the output .symtab and
	// .strtab, assigned from prefix sums over the sizes above.
	LocalSymtabOff  uint64
	LocalStrtabOff  uint64
	GlobalSymtabOff uint64
	GlobalStrtabOff uint64
}

// NewObjectFile wraps file for parsing. priority must be unique
// across the input set.
func NewObjectFile(file *File, priority int) *ObjectFile {
	return &ObjectFile{File: file, Priority: priority}
}

// IsInArchive reports whether the file is an archive member.
func (o *ObjectFile) IsInArchive() bool { return o.File.ArchiveName != "" }

// String returns the file identifier used in diagnostics.
func (o *ObjectFile) String() string { return o.File.String() }

// errorf builds a malformed-input error identifying the file.
func (o *ObjectFile) errorf(format string, args ...any) error {
	return fmt.Errorf("%s: %s", o, fmt.Sprintf(format, args...))
}

// shdrData returns the bytes of the section described by shdr.
func (o *ObjectFile) shdrData(shdr *Shdr) ([]byte, error) {
	if shdr.Type == uint32(elf.SHT_NOBITS) {
		return nil, nil
	}
	end := shdr.Offset + shdr.Size
	if end < shdr.Offset || end > uint64(len(o.File.Contents)) {
		return nil, o.errorf("section extends past end of file")
	}
	return o.File.Contents[shdr.Offset:end], nil
}

// sectionName resolves a section's name from the section string
// table.
func (o *ObjectFile) sectionName(shdr *Shdr) (string, error) {
	name, err := getName(o.shStrtab, shdr.Name)
	if err != nil {
		return "", o.errorf("bad section name: %v", err)
	}
	return name, nil
}

// symbolName resolves a symbol's name from the symbol string table.
func (o *ObjectFile) symbolName(esym *Sym) (string, error) {
	name, err := getName(o.symbolStrtab, esym.Name)
	if err != nil {
		return "", o.errorf("bad symbol name: %v", err)
	}
	return name, nil
}

// Parse reads the ELF image: headers, section table, symbol table,
// and then the derived InputSections and interned Symbols. Any
// malformed structure aborts with an error identifying the file.
func (o *ObjectFile) Parse(ctx *Context) error {
	if err := o.parseHeaders(); err != nil {
		return err
	}

	symtabType := elf.SHT_SYMTAB
	if o.IsDSO {
		symtabType = elf.SHT_DYNSYM
	}
	o.symtabShdr = o.findSection(uint32(symtabType))
	if o.symtabShdr != nil {
		if err := o.parseSymtab(); err != nil {
			return err
		}
	}

	if err := o.initializeSections(ctx); err != nil {
		return err
	}
	if o.symtabShdr != nil {
		if err := o.initializeSymbols(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (o *ObjectFile) parseHeaders() error {
	if len(o.File.Contents) < EhdrSize {
		return o.errorf("file too small for ELF header")
	}
	ehdr, err := readStruct[Ehdr](o.File.Contents)
	if err != nil {
		return o.errorf("bad ELF header: %v", err)
	}
	o.ehdr = ehdr
	o.IsDSO = elf.Type(ehdr.Type) == elf.ET_DYN

	if ehdr.ShOff > uint64(len(o.File.Contents)) {
		return o.errorf("section header table offset out of range")
	}
	shdrs := o.File.Contents[ehdr.ShOff:]
	first, err := readStruct[Shdr](shdrs)
	if err != nil {
		return o.errorf("bad section header: %v", err)
	}

	// If e_shnum overflows, the real count lives in the sh_size of
	// section header 0.
	numSections := uint64(ehdr.ShNum)
	if numSections == 0 {
		numSections = first.Size
	}
	if numSections > uint64(len(shdrs))/ShdrSize {
		return o.errorf("section header table extends past end of file")
	}

	o.ElfSections = make([]Shdr, 0, numSections)
	o.ElfSections = append(o.ElfSections, first)
	for i := uint64(1); i < numSections; i++ {
		shdr, err := readStruct[Shdr](shdrs[i*ShdrSize:])
		if err != nil {
			return o.errorf("bad section header: %v", err)
		}
		o.ElfSections = append(o.ElfSections, shdr)
	}

	// Like the section count, a large section name string table index
	// moves into sh_link of section header 0.
	shstrndx := uint64(ehdr.ShStrndx)
	if shstrndx == uint64(elf.SHN_XINDEX) {
		shstrndx = uint64(first.Link)
	}
	if shstrndx >= uint64(len(o.ElfSections)) {
		return o.errorf("section name string table index out of range")
	}
	o.shStrtab, err = o.shdrData(&o.ElfSections[shstrndx])
	return err
}

func (o *ObjectFile) parseSymtab() error {
	o.FirstGlobal = int(o.symtabShdr.Info)

	data, err := o.shdrData(o.symtabShdr)
	if err != nil {
		return err
	}
	o.ElfSyms, err = readSlice[Sym](data, SymSize)
	if err != nil {
		return o.errorf("bad symbol table: %v", err)
	}
	if o.FirstGlobal > len(o.ElfSyms) {
		return o.errorf("symbol table sh_info %d exceeds %d symbols", o.FirstGlobal, len(o.ElfSyms))
	}

	if o.symtabShdr.Link >= uint32(len(o.ElfSections)) {
		return o.errorf("symbol string table index out of range")
	}
	o.symbolStrtab, err = o.shdrData(&o.ElfSections[o.symtabShdr.Link])
	return err
}

func (o *ObjectFile) findSection(typ uint32) *Shdr {
	for i := range o.ElfSections {
		if o.ElfSections[i].Type == typ {
			return &o.ElfSections[i]
		}
	}
	return nil
}

// initializeSections materialises InputSections, records COMDAT
// groups, and attaches relocations to their target sections.
func (o *ObjectFile) initializeSections(ctx *Context) error {
	o.Sections = make([]*InputSection, len(o.ElfSections))

	for i := range o.ElfSections {
		shdr := &o.ElfSections[i]

		if shdr.Flags&SHF_EXCLUDE != 0 && shdr.Flags&uint64(elf.SHF_ALLOC) == 0 {
			continue
		}

		switch elf.SectionType(shdr.Type) {
		case elf.SHT_GROUP:
			if err := o.readComdatGroup(ctx, uint32(i), shdr); err != nil {
				return err
			}
		case elf.SHT_SYMTAB_SHNDX:
			return o.errorf("SHT_SYMTAB_SHNDX section is not supported")
		case elf.SHT_SYMTAB, elf.SHT_STRTAB, elf.SHT_REL, elf.SHT_RELA, elf.SHT_NULL:
			// Consumed by the linker itself; no InputSection.
		default:
			name, err := o.sectionName(shdr)
			if err != nil {
				return err
			}
			o.Sections[i] = NewInputSection(ctx, o, *shdr, name)
		}
	}

	for i := range o.ElfSections {
		shdr := &o.ElfSections[i]
		if shdr.Type != uint32(elf.SHT_RELA) {
			continue
		}
		if shdr.Info >= uint32(len(o.Sections)) {
			return o.errorf("invalid relocated section index: %d", shdr.Info)
		}
		target := o.Sections[shdr.Info]
		if target == nil {
			continue
		}
		data, err := o.shdrData(shdr)
		if err != nil {
			return err
		}
		target.Rels, err = readSlice[Rela](data, RelaSize)
		if err != nil {
			return o.errorf("bad relocation section: %v", err)
		}
	}
	return nil
}

// readComdatGroup interprets a SHT_GROUP section: the signature comes
// from the symbol named by sh_info, the payload is a flag word
// followed by the member section indices.
func (o *ObjectFile) readComdatGroup(ctx *Context, shndx uint32, shdr *Shdr) error {
	if shdr.Info >= uint32(len(o.ElfSyms)) {
		return o.errorf("invalid symbol index")
	}
	signature, err := o.symbolName(&o.ElfSyms[shdr.Info])
	if err != nil {
		return err
	}

	data, err := o.shdrData(shdr)
	if err != nil {
		return err
	}
	entries, err := readSlice[uint32](data, 4)
	if err != nil {
		return o.errorf("bad SHT_GROUP section: %v", err)
	}
	if len(entries) == 0 {
		return o.errorf("empty SHT_GROUP")
	}
	if entries[0] == 0 {
		// Not a COMDAT group; nothing to deduplicate.
		return nil
	}
	if entries[0] != GRP_COMDAT {
		return o.errorf("unsupported SHT_GROUP format")
	}
	members := entries[1:]
	for _, m := range members {
		if m >= uint32(len(o.ElfSections)) {
			return o.errorf("invalid SHT_GROUP member index: %d", m)
		}
	}

	group := ctx.comdatGroup(signature)
	o.ComdatGroups = append(o.ComdatGroups, ComdatGroupRef{
		Group:      group,
		SectionIdx: shndx,
		Members:    members,
	})
	return nil
}

// initializeSymbols records local symbol names (and their share of
// the output symbol table) and interns global symbols.
func (o *ObjectFile) initializeSymbols(ctx *Context) error {
	o.LocalSymbols = make([]string, 0, o.FirstGlobal)
	for i := 0; i < o.FirstGlobal; i++ {
		esym := &o.ElfSyms[i]
		name, err := o.symbolName(esym)
		if err != nil {
			return err
		}
		o.LocalSymbols = append(o.LocalSymbols, name)
		if esym.Type() != elf.STT_SECTION {
			o.LocalStrtabSize += uint64(len(name)) + 1
			o.LocalSymtabSize += SymSize
		}
	}

	o.Symbols = make([]*Symbol, 0, len(o.ElfSyms)-o.FirstGlobal)
	for i := o.FirstGlobal; i < len(o.ElfSyms); i++ {
		esym := &o.ElfSyms[i]
		name, err := o.symbolName(esym)
		if err != nil {
			return err
		}
		o.Symbols = append(o.Symbols, ctx.Symbol(name))

		if esym.IsCommon() {
			o.HasCommonSymbol = true
		}
		// Validate section indices up front so the resolution passes
		// can dereference without checks.
		if !esym.IsUndef() && !esym.IsAbs() && !esym.IsCommon() {
			if esym.Shndx >= uint16(elf.SHN_LORESERVE) || int(esym.Shndx) >= len(o.Sections) {
				return o.errorf("symbol %s: invalid section index %d", name, esym.Shndx)
			}
		}
	}
	return nil
}

// globalSym returns the ELF symbol entry matching Symbols[i].
func (o *ObjectFile) globalSym(i int) *Sym {
	return &o.ElfSyms[o.FirstGlobal+i]
}
